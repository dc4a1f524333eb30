// Package shape holds the live set of shapes rendered on the map and their
// link to backend area records.
package shape

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vbonduro/switchmap/internal/domain"
	"github.com/vbonduro/switchmap/internal/mapcap"
)

// Binder attaches per-shape event subscriptions when a shape is installed.
// The returned disposers run when the shape is removed.
type Binder func(s *DrawnShape) []mapcap.Disposer

// Registry exclusively owns the live DrawnShapes. No two entries share a
// backend id.
type Registry struct {
	m      mapcap.Map
	logger *slog.Logger

	mu     sync.Mutex
	shapes []*DrawnShape
	binder Binder
}

func NewRegistry(m mapcap.Map, logger *slog.Logger) *Registry {
	return &Registry{m: m, logger: logger}
}

// SetBinder installs b for shapes added from now on.
func (r *Registry) SetBinder(b Binder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.binder = b
}

// Register wraps a freshly drawn handle in a provisional shape.
func (r *Registry) Register(h mapcap.Handle, t domain.AreaType) (*DrawnShape, error) {
	s, err := New(h, domain.Area{Type: t})
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.shapes = append(r.shapes, s)
	b := r.binder
	r.mu.Unlock()

	r.bind(b, s)
	r.logger.Debug("shape registered", "shape_key", s.Key(), "area_type", t)
	return s, nil
}

// Link attaches backend identity and metadata to s. The handle geometry is
// left untouched.
func (r *Registry) Link(s *DrawnShape, area domain.Area) error {
	if area.ID == nil {
		return fmt.Errorf("cannot link area without id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(s) < 0 {
		return domain.ErrShapeNotFound
	}
	for _, other := range r.shapes {
		if other == s {
			continue
		}
		if id := other.ID(); id != nil && *id == *area.ID {
			return &domain.DuplicateAreaError{ID: *area.ID}
		}
	}

	current := s.Area()
	current.ID = domain.Int64Ptr(*area.ID)
	current.Name = area.Name
	current.Description = area.Description
	current.Photos = area.Photos
	if area.Type == current.Type {
		current.Coordinates = area.Coordinates
	}
	s.setArea(current)
	r.logger.Debug("shape linked", "shape_key", s.Key(), "area_id", *area.ID)
	return nil
}

// Remove takes s off the map and out of the live set. Removing a shape that
// is not present is a no-op.
func (r *Registry) Remove(s *DrawnShape) {
	r.mu.Lock()
	i := r.indexOf(s)
	if i < 0 {
		r.mu.Unlock()
		return
	}
	r.shapes = append(r.shapes[:i], r.shapes[i+1:]...)
	r.mu.Unlock()

	r.detach(s)
	r.logger.Debug("shape removed", "shape_key", s.Key())
}

// ReplaceAll installs shapes as the new live set. Handles of current shapes
// that are not part of the new set are removed from the map. When two
// incoming shapes share a backend id the first one wins; the later one is
// un-rendered and a DuplicateAreaError is reported for it.
func (r *Registry) ReplaceAll(shapes []*DrawnShape) error {
	var errs []error
	seen := make(map[int64]bool)
	keep := make([]*DrawnShape, 0, len(shapes))
	var dropped []*DrawnShape
	for _, s := range shapes {
		if id := s.ID(); id != nil {
			if seen[*id] {
				errs = append(errs, &domain.DuplicateAreaError{ID: *id})
				dropped = append(dropped, s)
				continue
			}
			seen[*id] = true
		}
		keep = append(keep, s)
	}

	r.mu.Lock()
	incoming := make(map[*DrawnShape]bool, len(keep))
	for _, s := range keep {
		incoming[s] = true
	}
	previous := make(map[*DrawnShape]bool, len(r.shapes))
	var stale []*DrawnShape
	for _, s := range r.shapes {
		previous[s] = true
		if !incoming[s] {
			stale = append(stale, s)
		}
	}
	r.shapes = keep
	b := r.binder
	r.mu.Unlock()

	for _, s := range stale {
		r.detach(s)
	}
	for _, s := range dropped {
		if !incoming[s] {
			r.detach(s)
		}
	}
	for _, s := range keep {
		if !previous[s] {
			r.bind(b, s)
		}
	}

	if err := errors.Join(errs...); err != nil {
		r.logger.Warn("duplicate areas during reconciliation", "error", err)
		return err
	}
	return nil
}

// Unbind disposes every live shape's subscriptions and clears the binder.
// Handles stay on the map.
func (r *Registry) Unbind() {
	r.mu.Lock()
	shapes := append([]*DrawnShape(nil), r.shapes...)
	r.binder = nil
	r.mu.Unlock()

	for _, s := range shapes {
		s.dispose()
	}
}

// Shapes returns the live shapes in insertion order.
func (r *Registry) Shapes() []*DrawnShape {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*DrawnShape(nil), r.shapes...)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shapes)
}

func (r *Registry) Contains(s *DrawnShape) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexOf(s) >= 0
}

// Lookup finds the shape rendered by h.
func (r *Registry) Lookup(h mapcap.Handle) (*DrawnShape, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.shapes {
		if s.handle == h {
			return s, true
		}
	}
	return nil, false
}

// ByID finds the shape linked to a backend id.
func (r *Registry) ByID(id int64) (*DrawnShape, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.shapes {
		if sid := s.ID(); sid != nil && *sid == id {
			return s, true
		}
	}
	return nil, false
}

// indexOf must be called with r.mu held.
func (r *Registry) indexOf(s *DrawnShape) int {
	for i, cur := range r.shapes {
		if cur == s {
			return i
		}
	}
	return -1
}

func (r *Registry) bind(b Binder, s *DrawnShape) {
	if b == nil {
		return
	}
	s.bind(b(s))
}

func (r *Registry) detach(s *DrawnShape) {
	s.dispose()
	r.m.Remove(s.handle)
}
