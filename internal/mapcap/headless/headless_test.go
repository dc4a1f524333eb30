package headless

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/switchmap/internal/domain"
	"github.com/vbonduro/switchmap/internal/mapcap"
)

var triangle = []domain.LatLng{{Lat: -37.81, Lng: 144.96}, {Lat: -37.82, Lng: 144.97}, {Lat: -37.83, Lng: 144.96}}

func TestClickHitsPolygonAndMissesOutside(t *testing.T) {
	m := New(domain.Camera{})
	h, err := m.CreatePolygon(triangle, mapcap.HandleOptions{})
	require.NoError(t, err)

	var clicked []mapcap.Handle
	h.On(mapcap.EventClick, func(ev mapcap.Event) { clicked = append(clicked, ev.Handle) })
	var mapClicks int
	m.On(mapcap.EventClick, func(mapcap.Event) { mapClicks++ })

	m.Click(domain.LatLng{Lat: -37.82, Lng: 144.963})
	m.Click(domain.LatLng{Lat: -37.82, Lng: 144.99})

	require.Len(t, clicked, 1)
	assert.Same(t, h, clicked[0])
	assert.Equal(t, 1, mapClicks)
}

func TestClickPrefersTopmostHandle(t *testing.T) {
	m := New(domain.Camera{})
	_, err := m.CreatePolygon(triangle, mapcap.HandleOptions{})
	require.NoError(t, err)
	marker, err := m.CreateMarker(domain.LatLng{Lat: -37.82, Lng: 144.963}, mapcap.HandleOptions{})
	require.NoError(t, err)

	got, ok := m.HandleAt(domain.LatLng{Lat: -37.82, Lng: 144.963})
	require.True(t, ok)
	assert.Same(t, marker, got)
}

func TestRemoveIsIdempotentAndUnindexes(t *testing.T) {
	m := New(domain.Camera{})
	h, err := m.CreateMarker(domain.LatLng{Lat: 1, Lng: 1}, mapcap.HandleOptions{})
	require.NoError(t, err)

	m.Remove(h)
	m.Remove(h)

	assert.Zero(t, m.Len())
	_, ok := m.HandleAt(domain.LatLng{Lat: 1, Lng: 1})
	assert.False(t, ok)
}

func TestSetGeometryReindexes(t *testing.T) {
	m := New(domain.Camera{})
	h, err := m.CreateMarker(domain.LatLng{Lat: 1, Lng: 1}, mapcap.HandleOptions{Draggable: true})
	require.NoError(t, err)

	var dragged int
	h.On(mapcap.EventDragEnd, func(mapcap.Event) { dragged++ })
	require.NoError(t, m.Drag(h, mapcap.Geometry{Shape: mapcap.ShapeMarker, Position: domain.LatLng{Lat: 2, Lng: 2}}))

	_, ok := m.HandleAt(domain.LatLng{Lat: 1, Lng: 1})
	assert.False(t, ok)
	_, ok = m.HandleAt(domain.LatLng{Lat: 2, Lng: 2})
	assert.True(t, ok)
	assert.Equal(t, 1, dragged)
}

func TestSetGeometryRejectsKindChange(t *testing.T) {
	m := New(domain.Camera{})
	h, err := m.CreateMarker(domain.LatLng{Lat: 1, Lng: 1}, mapcap.HandleOptions{})
	require.NoError(t, err)

	err = h.SetGeometry(mapcap.Geometry{Shape: mapcap.ShapePolygon, Path: triangle})
	assert.Error(t, err)
}

func TestDragRequiresDraggable(t *testing.T) {
	m := New(domain.Camera{})
	h, err := m.CreateMarker(domain.LatLng{Lat: 1, Lng: 1}, mapcap.HandleOptions{})
	require.NoError(t, err)

	err = m.Drag(h, mapcap.Geometry{Shape: mapcap.ShapeMarker, Position: domain.LatLng{Lat: 2, Lng: 2}})
	assert.Error(t, err)
}

func TestDrawRequiresMatchingTool(t *testing.T) {
	m := New(domain.Camera{})

	_, err := m.Draw(mapcap.Geometry{Shape: mapcap.ShapeMarker})
	assert.Error(t, err)

	m.SetDrawingMode(mapcap.ToolPolygon)
	_, err = m.Draw(mapcap.Geometry{Shape: mapcap.ShapeMarker})
	assert.Error(t, err)

	var completed []mapcap.Event
	m.On(mapcap.EventOverlayComplete, func(ev mapcap.Event) { completed = append(completed, ev) })
	h, err := m.Draw(mapcap.Geometry{Shape: mapcap.ShapePolygon, Path: triangle})
	require.NoError(t, err)

	require.Len(t, completed, 1)
	assert.Same(t, h, completed[0].Handle)
	assert.Equal(t, mapcap.ToolPolygon, completed[0].Tool)
}

func TestDisposerStopsDelivery(t *testing.T) {
	m := New(domain.Camera{})
	n := 0
	dispose := m.On(mapcap.EventCameraChanged, func(mapcap.Event) { n++ })

	m.Pan(domain.Camera{Zoom: 10})
	dispose()
	m.Pan(domain.Camera{Zoom: 11})

	assert.Equal(t, 1, n)
	assert.Zero(t, m.ListenerCount(mapcap.EventCameraChanged))
	assert.Equal(t, 11.0, m.Camera().Zoom)
}

func TestGeometryReturnsCopy(t *testing.T) {
	m := New(domain.Camera{})
	h, err := m.CreatePolygon(triangle, mapcap.HandleOptions{})
	require.NoError(t, err)

	g := h.Geometry()
	g.Path[0].Lat = 0

	assert.Equal(t, triangle[0], h.Geometry().Path[0])
}
