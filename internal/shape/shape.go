package shape

import (
	"sync"

	"github.com/google/uuid"

	"github.com/vbonduro/switchmap/internal/domain"
	"github.com/vbonduro/switchmap/internal/geometry"
	"github.com/vbonduro/switchmap/internal/mapcap"
)

type Highlight int

const (
	HighlightNone Highlight = iota
	HighlightHover
	HighlightSelected
)

// DrawnShape pairs an area with its live map handle. The handle's shape
// always matches the area type: markers back POINT areas, polygons back
// POLYGON areas.
type DrawnShape struct {
	key    uuid.UUID
	handle mapcap.Handle

	mu        sync.Mutex
	area      domain.Area
	highlight Highlight
	disposers []mapcap.Disposer
}

// New wraps handle with area. The area's coordinates are taken from the
// handle, not from area.
func New(handle mapcap.Handle, area domain.Area) (*DrawnShape, error) {
	t, err := geometry.AreaTypeOf(handle.Geometry().Shape)
	if err != nil {
		return nil, err
	}
	if area.Type != "" && area.Type != t {
		return nil, &domain.InvalidGeometryError{Reason: "handle is a " + handle.Geometry().Shape.String() + ", area is " + string(area.Type)}
	}
	c, err := geometry.ToCoordinates(handle)
	if err != nil {
		return nil, err
	}
	area.Type = t
	area.Coordinates = c
	area.Photos = append([]domain.PhotoRef(nil), area.Photos...)
	return &DrawnShape{key: uuid.New(), handle: handle, area: area}, nil
}

// Key is the local identity of the shape, stable for its lifetime.
func (s *DrawnShape) Key() uuid.UUID { return s.key }

func (s *DrawnShape) Handle() mapcap.Handle { return s.handle }

func (s *DrawnShape) Type() domain.AreaType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.area.Type
}

// ID returns the backend id, or nil while the shape is provisional.
func (s *DrawnShape) ID() *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.area.ID == nil {
		return nil
	}
	return domain.Int64Ptr(*s.area.ID)
}

func (s *DrawnShape) Provisional() bool {
	return s.ID() == nil
}

// Area returns the metadata as last linked. Coordinates are those recorded at
// creation or link time; use Snapshot for the live geometry.
func (s *DrawnShape) Area() domain.Area {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneArea(s.area)
}

// Snapshot returns the area with coordinates read from the live handle.
func (s *DrawnShape) Snapshot() (domain.Area, error) {
	c, err := geometry.ToCoordinates(s.handle)
	if err != nil {
		return domain.Area{}, err
	}
	a := s.Area()
	a.Coordinates = c
	return a, nil
}

func (s *DrawnShape) Highlight() Highlight {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highlight
}

// SetHighlight updates the highlight state and the handle style.
func (s *DrawnShape) SetHighlight(h Highlight) {
	s.mu.Lock()
	s.highlight = h
	s.mu.Unlock()

	switch h {
	case HighlightSelected:
		s.handle.SetStyle(mapcap.SelectStyle)
	case HighlightHover:
		s.handle.SetStyle(mapcap.HoverStyle)
	default:
		s.handle.SetStyle(mapcap.DefaultStyle)
	}
}

// SetInteractive toggles the handle flags used while editing. Polygons become
// editable and draggable, markers only draggable.
func (s *DrawnShape) SetInteractive(on bool) {
	s.handle.SetDraggable(on)
	if s.Type() == domain.AreaPolygon {
		s.handle.SetEditable(on)
	}
}

// SetSelected toggles the handle flags that follow selection. Markers stay
// draggable for as long as they are selected; polygons only move while
// editing.
func (s *DrawnShape) SetSelected(on bool) {
	if s.Type() == domain.AreaPoint {
		s.handle.SetDraggable(on)
	}
}

func (s *DrawnShape) setArea(a domain.Area) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.area = cloneArea(a)
}

func (s *DrawnShape) bind(ds []mapcap.Disposer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposers = append(s.disposers, ds...)
}

func (s *DrawnShape) dispose() {
	s.mu.Lock()
	ds := s.disposers
	s.disposers = nil
	s.mu.Unlock()
	for _, d := range ds {
		d()
	}
}

func cloneArea(a domain.Area) domain.Area {
	if a.ID != nil {
		a.ID = domain.Int64Ptr(*a.ID)
	}
	a.Coordinates = a.Coordinates.Clone()
	a.Photos = append([]domain.PhotoRef(nil), a.Photos...)
	return a
}
