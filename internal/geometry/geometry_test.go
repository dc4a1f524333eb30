package geometry

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/switchmap/internal/domain"
	"github.com/vbonduro/switchmap/internal/mapcap"
	"github.com/vbonduro/switchmap/internal/mapcap/headless"
)

var roofCabinet = []domain.LatLng{{Lat: -37.81, Lng: 144.96}, {Lat: -37.82, Lng: 144.97}, {Lat: -37.83, Lng: 144.96}}

func TestToCoordinatesReflectsLiveEdits(t *testing.T) {
	m := headless.New(domain.Camera{})
	h, err := m.CreatePolygon(roofCabinet, mapcap.HandleOptions{Editable: true})
	require.NoError(t, err)

	edited := append([]domain.LatLng{}, roofCabinet...)
	edited = append(edited, domain.LatLng{Lat: -37.815, Lng: 144.955})
	require.NoError(t, m.EditPath(h, edited))

	c, err := ToCoordinates(h)
	require.NoError(t, err)
	assert.Equal(t, edited, c.Path)
}

func TestToCoordinatesPoint(t *testing.T) {
	m := headless.New(domain.Camera{})
	h, err := m.CreateMarker(domain.LatLng{Lat: -37.8, Lng: 144.9}, mapcap.HandleOptions{})
	require.NoError(t, err)

	c, err := ToCoordinates(h)
	require.NoError(t, err)
	assert.Equal(t, domain.LatLng{Lat: -37.8, Lng: 144.9}, c.Point)

	raw, err := Encode(domain.AreaPoint, c)
	require.NoError(t, err)
	assert.JSONEq(t, `[-37.8,144.9]`, string(raw))
}

func TestToCoordinatesRejectsShortPolygon(t *testing.T) {
	m := headless.New(domain.Camera{})
	h, err := m.CreatePolygon(roofCabinet[:2], mapcap.HandleOptions{})
	require.NoError(t, err)

	_, err = ToCoordinates(h)
	var ge *domain.InvalidGeometryError
	assert.True(t, errors.As(err, &ge))
}

func TestValidateRejectsNonFinite(t *testing.T) {
	err := Validate(domain.AreaPoint, domain.PointCoordinates(domain.LatLng{Lat: math.NaN(), Lng: 1}))
	var ge *domain.InvalidGeometryError
	require.True(t, errors.As(err, &ge))

	err = Validate(domain.AreaPolygon, domain.PathCoordinates([]domain.LatLng{{1, 1}, {2, math.Inf(1)}, {3, 3}}))
	assert.True(t, errors.As(err, &ge))
}

func TestAnchorOfPolygonIsEnvelopeCenter(t *testing.T) {
	m := headless.New(domain.Camera{})
	// Vertex-heavy on one side, so the area centroid would differ from the
	// envelope center.
	path := []domain.LatLng{{0, 0}, {0, 1}, {0, 2}, {0, 3}, {4, 0}}
	h, err := m.CreatePolygon(path, mapcap.HandleOptions{})
	require.NoError(t, err)

	anchor, err := AnchorOf(h)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, anchor.Lat, 1e-12)
	assert.InDelta(t, 1.5, anchor.Lng, 1e-12)
}

func TestAnchorOfPoint(t *testing.T) {
	m := headless.New(domain.Camera{})
	h, err := m.CreateMarker(domain.LatLng{Lat: 5, Lng: 6}, mapcap.HandleOptions{})
	require.NoError(t, err)

	anchor, err := AnchorOf(h)
	require.NoError(t, err)
	assert.Equal(t, domain.LatLng{Lat: 5, Lng: 6}, anchor)
}

func TestRectangleToPolygonCorners(t *testing.T) {
	b := mapcap.Bounds{North: -37.80, South: -37.82, East: 144.98, West: 144.95}
	corners := RectangleToPolygon(b)

	require.Len(t, corners, 4)
	assert.Equal(t, []domain.LatLng{
		{Lat: -37.80, Lng: 144.95},
		{Lat: -37.80, Lng: 144.98},
		{Lat: -37.82, Lng: 144.98},
		{Lat: -37.82, Lng: 144.95},
	}, corners)
}

func TestRectangleToPolygonWindingIsConsistent(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		south := rnd.Float64()*100 - 50
		west := rnd.Float64()*200 - 100
		b := mapcap.Bounds{South: south, North: south + rnd.Float64() + 0.001, West: west, East: west + rnd.Float64() + 0.001}

		corners := RectangleToPolygon(b)
		require.Len(t, corners, 4)
		// Shoelace with lng as x and lat as y: clockwise gives a negative sum.
		assert.Less(t, signedArea(corners), 0.0)
	}
}

func TestEncodeDecodeRoundTripPreservesOrder(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	m := headless.New(domain.Camera{})
	for i := 0; i < 50; i++ {
		n := MinPolygonVertices + rnd.Intn(10)
		path := make([]domain.LatLng, n)
		for j := range path {
			path[j] = domain.LatLng{Lat: rnd.Float64()*180 - 90, Lng: rnd.Float64()*360 - 180}
		}

		h, err := m.CreatePolygon(path, mapcap.HandleOptions{})
		require.NoError(t, err)
		c, err := ToCoordinates(h)
		require.NoError(t, err)

		raw, err := Encode(domain.AreaPolygon, c)
		require.NoError(t, err)
		decoded, err := Decode(domain.AreaPolygon, raw)
		require.NoError(t, err)

		g, err := GeometryFor(domain.AreaPolygon, decoded)
		require.NoError(t, err)
		h2, err := m.CreatePolygon(g.Path, mapcap.HandleOptions{})
		require.NoError(t, err)
		again, err := ToCoordinates(h2)
		require.NoError(t, err)

		assert.Equal(t, path, again.Path)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := Decode(domain.AreaPoint, []byte(`[1]`))
	assert.Error(t, err)

	_, err = Decode(domain.AreaPolygon, []byte(`[[1,2],[3,4]]`))
	var ge *domain.InvalidGeometryError
	assert.True(t, errors.As(err, &ge))

	_, err = Decode(domain.AreaPolygon, []byte(`"nope"`))
	assert.Error(t, err)
}

func TestEqualWithinTolerance(t *testing.T) {
	a := domain.PathCoordinates(roofCabinet)
	b := domain.PathCoordinates(roofCabinet)
	b.Path[1].Lat += 1e-12

	assert.True(t, Equal(domain.AreaPolygon, a, b, 1e-9))
	b.Path[1].Lat += 1e-3
	assert.False(t, Equal(domain.AreaPolygon, a, b, 1e-9))
	assert.False(t, Equal(domain.AreaPolygon, a, domain.PathCoordinates(roofCabinet[:2]), 1e-9))
}

func TestAreaTypeOf(t *testing.T) {
	got, err := AreaTypeOf(mapcap.ShapeMarker)
	require.NoError(t, err)
	assert.Equal(t, domain.AreaPoint, got)

	_, err = AreaTypeOf(mapcap.ShapeRectangle)
	assert.Error(t, err)
}

func signedArea(path []domain.LatLng) float64 {
	sum := 0.0
	for i := range path {
		a, b := path[i], path[(i+1)%len(path)]
		sum += a.Lng*b.Lat - b.Lng*a.Lat
	}
	return sum / 2
}
