package localcache

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/switchmap/internal/db"
	"github.com/vbonduro/switchmap/internal/domain"
	"github.com/vbonduro/switchmap/internal/geometry"
	"github.com/vbonduro/switchmap/internal/mapcap"
	"github.com/vbonduro/switchmap/internal/mapcap/headless"
	"github.com/vbonduro/switchmap/internal/shape"
	"github.com/vbonduro/switchmap/internal/store"
)

var square = []domain.LatLng{{Lat: 1, Lng: 1}, {Lat: 1, Lng: 2}, {Lat: 2, Lng: 2}, {Lat: 2, Lng: 1}}

func newBlobs(t *testing.T) *store.BlobStore {
	t.Helper()
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return store.NewBlobStore(d)
}

func renderer(m *headless.Map) RenderFunc {
	return func(t domain.AreaType, c domain.Coordinates) (mapcap.Handle, error) {
		g, err := geometry.GeometryFor(t, c)
		if err != nil {
			return nil, err
		}
		if g.Shape == mapcap.ShapeMarker {
			return m.CreateMarker(g.Position, mapcap.HandleOptions{})
		}
		return m.CreatePolygon(g.Path, mapcap.HandleOptions{Style: mapcap.DefaultStyle})
	}
}

type failingBlobs struct{}

func (failingBlobs) Get(context.Context, string) ([]byte, error) { return nil, errors.New("disk gone") }
func (failingBlobs) Put(context.Context, string, []byte) error   { return errors.New("disk gone") }

func TestSnapshotThenRestore(t *testing.T) {
	ctx := context.Background()
	blobs := newBlobs(t)
	cache := NewShapeCache(blobs, slog.Default())

	src := headless.New(domain.Camera{})
	mk, err := src.CreateMarker(domain.LatLng{Lat: -37.8, Lng: 144.9}, mapcap.HandleOptions{})
	require.NoError(t, err)
	pg, err := src.CreatePolygon(square, mapcap.HandleOptions{})
	require.NoError(t, err)
	a, err := shape.New(mk, domain.Area{Name: "ignored", Description: "also ignored"})
	require.NoError(t, err)
	b, err := shape.New(pg, domain.Area{})
	require.NoError(t, err)

	cache.Snapshot(ctx, []*shape.DrawnShape{a, b})

	dst := headless.New(domain.Camera{})
	restored := cache.Restore(ctx, renderer(dst))
	require.Len(t, restored, 2)

	assert.Equal(t, domain.AreaPoint, restored[0].Type())
	assert.True(t, restored[0].Provisional())
	assert.Empty(t, restored[0].Area().Name)
	assert.Equal(t, domain.LatLng{Lat: -37.8, Lng: 144.9}, restored[0].Handle().Geometry().Position)
	assert.Equal(t, domain.AreaPolygon, restored[1].Type())
	assert.Equal(t, square, restored[1].Handle().Geometry().Path)
	assert.Equal(t, 2, dst.Len())
}

func TestSnapshotReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	cache := NewShapeCache(newBlobs(t), slog.Default())
	m := headless.New(domain.Camera{})

	h, err := m.CreateMarker(domain.LatLng{Lat: 1, Lng: 1}, mapcap.HandleOptions{})
	require.NoError(t, err)
	s, err := shape.New(h, domain.Area{})
	require.NoError(t, err)

	cache.Snapshot(ctx, []*shape.DrawnShape{s, s})
	cache.Snapshot(ctx, []*shape.DrawnShape{s})

	assert.Len(t, cache.Restore(ctx, renderer(headless.New(domain.Camera{}))), 1)
}

func TestRestoreAbsentCache(t *testing.T) {
	cache := NewShapeCache(newBlobs(t), slog.Default())
	assert.Empty(t, cache.Restore(context.Background(), renderer(headless.New(domain.Camera{}))))
}

func TestRestoreMalformedCache(t *testing.T) {
	ctx := context.Background()
	blobs := newBlobs(t)
	require.NoError(t, blobs.Put(ctx, ShapesKey, []byte(`{not json`)))

	cache := NewShapeCache(blobs, slog.Default())
	assert.Empty(t, cache.Restore(ctx, renderer(headless.New(domain.Camera{}))))
}

func TestRestoreSkipsBadEntries(t *testing.T) {
	ctx := context.Background()
	blobs := newBlobs(t)
	require.NoError(t, blobs.Put(ctx, ShapesKey, []byte(`[
		{"areaType":"POINT","coordinates":[1,2]},
		{"areaType":"POLYGON","coordinates":[[1,2],[3,4]]},
		{"areaType":"CIRCLE","coordinates":[1,2]},
		{"areaType":"POINT","coordinates":"x"}
	]`)))

	m := headless.New(domain.Camera{})
	restored := NewShapeCache(blobs, slog.Default()).Restore(ctx, renderer(m))
	require.Len(t, restored, 1)
	assert.Equal(t, domain.LatLng{Lat: 1, Lng: 2}, restored[0].Handle().Geometry().Position)
	assert.Equal(t, 1, m.Len())
}

func TestRestoreSkipsRenderFailures(t *testing.T) {
	ctx := context.Background()
	blobs := newBlobs(t)
	require.NoError(t, blobs.Put(ctx, ShapesKey, []byte(`[{"areaType":"POINT","coordinates":[1,2]}]`)))

	render := func(domain.AreaType, domain.Coordinates) (mapcap.Handle, error) {
		return nil, errors.New("map not ready")
	}
	assert.Empty(t, NewShapeCache(blobs, slog.Default()).Restore(ctx, render))
}

func TestStorageFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	cache := NewShapeCache(failingBlobs{}, slog.Default())

	assert.NotPanics(t, func() { cache.Snapshot(ctx, nil) })
	assert.Empty(t, cache.Restore(ctx, renderer(headless.New(domain.Camera{}))))

	cam := NewCameraCache(failingBlobs{}, slog.Default())
	cam.Save(ctx, domain.Camera{Zoom: 3})
	_, ok := cam.Load(ctx)
	assert.False(t, ok)
}

func TestCameraCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := NewCameraCache(newBlobs(t), slog.Default())

	_, ok := cache.Load(ctx)
	assert.False(t, ok)

	want := domain.Camera{Center: domain.LatLng{Lat: -37.83, Lng: 144.78}, Zoom: 18, Tilt: 45, Heading: 90}
	cache.Save(ctx, want)

	got, ok := cache.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestCameraCacheMalformed(t *testing.T) {
	ctx := context.Background()
	blobs := newBlobs(t)
	require.NoError(t, blobs.Put(ctx, CameraKey, []byte(`[]`)))

	_, ok := NewCameraCache(blobs, slog.Default()).Load(ctx)
	assert.False(t, ok)
}
