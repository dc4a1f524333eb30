// Package headless is an in-memory mapcap.Map. It keeps handles in an R-tree
// for hit testing and exposes methods that simulate user input (clicks,
// hover, drawing, dragging, camera moves) so the canvas can be driven from a
// terminal or from tests.
package headless

import (
	"fmt"
	"sort"
	"sync"

	"github.com/peterstace/simplefeatures/rtree"

	"github.com/vbonduro/switchmap/internal/domain"
	"github.com/vbonduro/switchmap/internal/mapcap"
)

// markerTolerance is the half-width, in degrees, of a marker's clickable box.
const markerTolerance = 0.0001

type Map struct {
	mu        sync.Mutex
	handles   map[int]*handle
	boxes     map[int]rtree.Box
	tree      rtree.RTree
	nextID    int
	mode      mapcap.Tool
	camera    domain.Camera
	listeners listenerSet
}

func New(camera domain.Camera) *Map {
	return &Map{
		handles: make(map[int]*handle),
		boxes:   make(map[int]rtree.Box),
		camera:  camera,
	}
}

func (m *Map) CreateMarker(pos domain.LatLng, opts mapcap.HandleOptions) (mapcap.Handle, error) {
	return m.create(mapcap.Geometry{Shape: mapcap.ShapeMarker, Position: pos}, opts)
}

func (m *Map) CreatePolygon(path []domain.LatLng, opts mapcap.HandleOptions) (mapcap.Handle, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("polygon path is empty")
	}
	return m.create(mapcap.Geometry{Shape: mapcap.ShapePolygon, Path: clonePath(path)}, opts)
}

func (m *Map) create(g mapcap.Geometry, opts mapcap.HandleOptions) (*handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	h := &handle{
		m:         m,
		id:        m.nextID,
		geom:      g,
		draggable: opts.Draggable,
		editable:  opts.Editable,
		style:     opts.Style,
	}
	m.handles[h.id] = h
	m.index(h)
	return h, nil
}

// Remove detaches h from the map. Removing an unknown or already removed
// handle is a no-op.
func (m *Map) Remove(mh mapcap.Handle) {
	h, ok := mh.(*handle)
	if !ok || h.m != m {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, live := m.handles[h.id]; !live {
		return
	}
	m.unindex(h)
	delete(m.handles, h.id)
	h.removed = true
}

func (m *Map) DrawingMode() mapcap.Tool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

func (m *Map) SetDrawingMode(t mapcap.Tool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = t
}

func (m *Map) Camera() domain.Camera {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.camera
}

func (m *Map) MoveCamera(c domain.Camera) {
	m.mu.Lock()
	m.camera = c
	m.mu.Unlock()
	m.listeners.emit(mapcap.Event{Type: mapcap.EventCameraChanged, Position: c.Center})
}

func (m *Map) On(event mapcap.EventType, fn mapcap.Listener) mapcap.Disposer {
	return m.listeners.add(event, fn)
}

// Handles returns the live handles in creation order.
func (m *Map) Handles() []mapcap.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int, 0, len(m.handles))
	for id := range m.handles {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]mapcap.Handle, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.handles[id])
	}
	return out
}

func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// HandleAt returns the topmost handle under pos.
func (m *Map) HandleAt(pos domain.LatLng) (mapcap.Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.hit(pos)
	if h == nil {
		return nil, false
	}
	return h, true
}

// Click delivers a click at pos to the topmost handle under it, or to the map
// itself when nothing is hit.
func (m *Map) Click(pos domain.LatLng) {
	m.mu.Lock()
	h := m.hit(pos)
	m.mu.Unlock()

	if h == nil {
		m.listeners.emit(mapcap.Event{Type: mapcap.EventClick, Position: pos})
		return
	}
	h.listeners.emit(mapcap.Event{Type: mapcap.EventClick, Handle: h, Position: pos})
}

// Hover simulates the pointer entering (on) or leaving a handle.
func (m *Map) Hover(mh mapcap.Handle, on bool) {
	h, ok := mh.(*handle)
	if !ok {
		return
	}
	typ := mapcap.EventMouseOut
	if on {
		typ = mapcap.EventMouseOver
	}
	h.listeners.emit(mapcap.Event{Type: typ, Handle: h})
}

// Draw completes a drawing with the active tool. The geometry shape must
// match the tool. An overlay-complete event carrying the new handle is
// emitted on the map.
func (m *Map) Draw(g mapcap.Geometry) (mapcap.Handle, error) {
	mode := m.DrawingMode()
	want := map[mapcap.Tool]mapcap.Shape{
		mapcap.ToolMarker:    mapcap.ShapeMarker,
		mapcap.ToolPolygon:   mapcap.ShapePolygon,
		mapcap.ToolRectangle: mapcap.ShapeRectangle,
	}[mode]
	if mode == mapcap.ToolNone {
		return nil, fmt.Errorf("no drawing tool is active")
	}
	if g.Shape != want {
		return nil, fmt.Errorf("active tool is %s, cannot draw a %s", mode, g.Shape)
	}
	g.Path = clonePath(g.Path)
	h, err := m.create(g, mapcap.HandleOptions{Style: mapcap.DefaultStyle})
	if err != nil {
		return nil, err
	}
	m.listeners.emit(mapcap.Event{Type: mapcap.EventOverlayComplete, Handle: h, Tool: mode})
	return h, nil
}

// Drag moves a draggable handle to g and emits dragend.
func (m *Map) Drag(mh mapcap.Handle, g mapcap.Geometry) error {
	h, ok := mh.(*handle)
	if !ok {
		return fmt.Errorf("foreign handle")
	}
	if !h.Draggable() {
		return fmt.Errorf("handle is not draggable")
	}
	if err := h.SetGeometry(g); err != nil {
		return err
	}
	h.listeners.emit(mapcap.Event{Type: mapcap.EventDragEnd, Handle: h})
	return nil
}

// EditPath replaces an editable polygon's path and emits path_changed.
func (m *Map) EditPath(mh mapcap.Handle, path []domain.LatLng) error {
	h, ok := mh.(*handle)
	if !ok {
		return fmt.Errorf("foreign handle")
	}
	if !h.Editable() {
		return fmt.Errorf("handle is not editable")
	}
	if err := h.SetGeometry(mapcap.Geometry{Shape: mapcap.ShapePolygon, Path: path}); err != nil {
		return err
	}
	h.listeners.emit(mapcap.Event{Type: mapcap.EventPathChanged, Handle: h})
	return nil
}

// Pan moves the camera as a user gesture would, emitting camera_changed.
func (m *Map) Pan(c domain.Camera) {
	m.MoveCamera(c)
}

// hit must be called with m.mu held.
func (m *Map) hit(pos domain.LatLng) *handle {
	probe := rtree.Box{MinX: pos.Lng, MinY: pos.Lat, MaxX: pos.Lng, MaxY: pos.Lat}
	best := 0
	_ = m.tree.RangeSearch(probe, func(id int) error {
		h := m.handles[id]
		if h == nil || !contains(h.geom, pos) {
			return nil
		}
		if id > best {
			best = id
		}
		return nil
	})
	if best == 0 {
		return nil
	}
	return m.handles[best]
}

// index and unindex must be called with m.mu held.
func (m *Map) index(h *handle) {
	box := boxOf(h.geom)
	m.tree.Insert(box, h.id)
	m.boxes[h.id] = box
}

func (m *Map) unindex(h *handle) {
	if box, ok := m.boxes[h.id]; ok {
		m.tree.Delete(box, h.id)
		delete(m.boxes, h.id)
	}
}

func boxOf(g mapcap.Geometry) rtree.Box {
	switch g.Shape {
	case mapcap.ShapeMarker:
		return rtree.Box{
			MinX: g.Position.Lng - markerTolerance, MinY: g.Position.Lat - markerTolerance,
			MaxX: g.Position.Lng + markerTolerance, MaxY: g.Position.Lat + markerTolerance,
		}
	case mapcap.ShapeRectangle:
		return rtree.Box{MinX: g.Bounds.West, MinY: g.Bounds.South, MaxX: g.Bounds.East, MaxY: g.Bounds.North}
	default:
		box := rtree.Box{MinX: g.Path[0].Lng, MinY: g.Path[0].Lat, MaxX: g.Path[0].Lng, MaxY: g.Path[0].Lat}
		for _, p := range g.Path[1:] {
			box.MinX = min(box.MinX, p.Lng)
			box.MinY = min(box.MinY, p.Lat)
			box.MaxX = max(box.MaxX, p.Lng)
			box.MaxY = max(box.MaxY, p.Lat)
		}
		return box
	}
}

func contains(g mapcap.Geometry, pos domain.LatLng) bool {
	switch g.Shape {
	case mapcap.ShapeMarker:
		return abs(g.Position.Lat-pos.Lat) <= markerTolerance && abs(g.Position.Lng-pos.Lng) <= markerTolerance
	case mapcap.ShapeRectangle:
		return pos.Lat <= g.Bounds.North && pos.Lat >= g.Bounds.South &&
			pos.Lng <= g.Bounds.East && pos.Lng >= g.Bounds.West
	default:
		return pointInPolygon(g.Path, pos)
	}
}

// pointInPolygon is the even-odd ray casting test with lng as x, lat as y.
func pointInPolygon(path []domain.LatLng, pos domain.LatLng) bool {
	inside := false
	for i, j := 0, len(path)-1; i < len(path); j, i = i, i+1 {
		a, b := path[i], path[j]
		if (a.Lat > pos.Lat) != (b.Lat > pos.Lat) &&
			pos.Lng < (b.Lng-a.Lng)*(pos.Lat-a.Lat)/(b.Lat-a.Lat)+a.Lng {
			inside = !inside
		}
	}
	return inside
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clonePath(path []domain.LatLng) []domain.LatLng {
	if path == nil {
		return nil
	}
	cp := make([]domain.LatLng, len(path))
	copy(cp, path)
	return cp
}
