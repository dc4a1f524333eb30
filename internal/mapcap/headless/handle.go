package headless

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vbonduro/switchmap/internal/mapcap"
)

type handle struct {
	m         *Map
	id        int
	geom      mapcap.Geometry
	draggable bool
	editable  bool
	style     mapcap.Style
	removed   bool
	listeners listenerSet
}

func (h *handle) String() string {
	return fmt.Sprintf("%s#%d", h.Geometry().Shape, h.id)
}

func (h *handle) Geometry() mapcap.Geometry {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	g := h.geom
	g.Path = clonePath(g.Path)
	return g
}

// SetGeometry replaces the geometry. The shape kind of a handle is fixed.
func (h *handle) SetGeometry(g mapcap.Geometry) error {
	if g.Shape != h.geom.Shape {
		return fmt.Errorf("cannot change a %s handle into a %s", h.geom.Shape, g.Shape)
	}
	if g.Shape == mapcap.ShapePolygon && len(g.Path) == 0 {
		return fmt.Errorf("polygon path is empty")
	}
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	g.Path = clonePath(g.Path)
	if h.removed {
		h.geom = g
		return nil
	}
	h.m.unindex(h)
	h.geom = g
	h.m.index(h)
	return nil
}

func (h *handle) Draggable() bool {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return h.draggable
}

func (h *handle) SetDraggable(v bool) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	h.draggable = v
}

func (h *handle) Editable() bool {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return h.editable
}

func (h *handle) SetEditable(v bool) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	h.editable = v
}

func (h *handle) Style() mapcap.Style {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return h.style
}

func (h *handle) SetStyle(s mapcap.Style) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	h.style = s
}

func (h *handle) On(event mapcap.EventType, fn mapcap.Listener) mapcap.Disposer {
	return h.listeners.add(event, fn)
}

// listenerSet is safe for concurrent use. Listeners run without the lock held
// so they may subscribe, unsubscribe, or call back into the map.
type listenerSet struct {
	mu     sync.Mutex
	nextID int
	byType map[mapcap.EventType]map[int]mapcap.Listener
}

func (s *listenerSet) add(event mapcap.EventType, fn mapcap.Listener) mapcap.Disposer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byType == nil {
		s.byType = make(map[mapcap.EventType]map[int]mapcap.Listener)
	}
	if s.byType[event] == nil {
		s.byType[event] = make(map[int]mapcap.Listener)
	}
	s.nextID++
	id := s.nextID
	s.byType[event][id] = fn
	return mapcap.Once(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.byType[event], id)
	})
}

func (s *listenerSet) count(event mapcap.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byType[event])
}

func (s *listenerSet) emit(ev mapcap.Event) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.byType[ev.Type]))
	for id := range s.byType[ev.Type] {
		ids = append(ids, id)
	}
	fns := make([]mapcap.Listener, 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, s.byType[ev.Type][id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// ListenerCount reports the map-level listeners registered for event.
func (m *Map) ListenerCount(event mapcap.EventType) int {
	return m.listeners.count(event)
}

// HandleListenerCount reports the listeners registered on h for event.
func HandleListenerCount(mh mapcap.Handle, event mapcap.EventType) int {
	h, ok := mh.(*handle)
	if !ok {
		return 0
	}
	return h.listeners.count(event)
}
