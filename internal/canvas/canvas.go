// Package canvas is the top-level map view. It restores cached state, binds
// map and shape events to the controllers, reconciles the cache against the
// backend, and serves the list view.
package canvas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vbonduro/switchmap/internal/domain"
	"github.com/vbonduro/switchmap/internal/drawing"
	"github.com/vbonduro/switchmap/internal/geometry"
	"github.com/vbonduro/switchmap/internal/localcache"
	"github.com/vbonduro/switchmap/internal/mapcap"
	"github.com/vbonduro/switchmap/internal/metrics"
	"github.com/vbonduro/switchmap/internal/notify"
	"github.com/vbonduro/switchmap/internal/selection"
	"github.com/vbonduro/switchmap/internal/shape"
)

const (
	// DefaultDebounce coalesces bursts of camera events.
	DefaultDebounce = 100 * time.Millisecond
	// FocusZoom is the zoom used when the list view jumps to an area.
	FocusZoom = 18

	coordinateTolerance = 1e-9
)

// Lister fetches the authoritative area list.
type Lister interface {
	List(ctx context.Context) ([]domain.Area, error)
}

type Options struct {
	Map       mapcap.Map
	Registry  *shape.Registry
	Selection *selection.Controller
	Drawing   *drawing.Controller
	Remote    Lister
	Shapes    *localcache.ShapeCache
	Camera    *localcache.CameraCache
	Notifier  notify.Notifier
	Logger    *slog.Logger
	// State must not be nil. It is kept by the owner across sessions.
	State    *SessionState
	Debounce time.Duration
	// Sleep defaults to a timer wait. Tests replace it.
	Sleep Sleeper
}

type Session struct {
	m         mapcap.Map
	registry  *shape.Registry
	selection *selection.Controller
	drawing   *drawing.Controller
	remote    Lister
	shapes    *localcache.ShapeCache
	camera    *localcache.CameraCache
	notifier  notify.Notifier
	logger    *slog.Logger
	debounce  time.Duration
	sleep     Sleeper

	scope    mapcap.Scope
	reloadMu sync.Mutex

	mu             sync.Mutex
	state          *SessionState
	timer          *time.Timer
	restoredCamera bool
	started        bool
	closed         bool
}

func New(opts Options) *Session {
	s := &Session{
		m:         opts.Map,
		registry:  opts.Registry,
		selection: opts.Selection,
		drawing:   opts.Drawing,
		remote:    opts.Remote,
		shapes:    opts.Shapes,
		camera:    opts.Camera,
		notifier:  opts.Notifier,
		logger:    opts.Logger,
		state:     opts.State,
		debounce:  opts.Debounce,
		sleep:     opts.Sleep,
	}
	if s.debounce <= 0 {
		s.debounce = DefaultDebounce
	}
	if s.sleep == nil {
		s.sleep = sleep
	}
	if s.state == nil {
		s.state = &SessionState{}
	}
	return s
}

// Start restores the camera and cached shapes, subscribes to map events and
// reconciles with the backend. A failed reload is surfaced but does not fail
// Start: the cached shapes stay on the map.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("session already started")
	}
	s.started = true
	s.mu.Unlock()

	cam, ok := s.camera.Load(ctx)
	if !ok {
		cam = StartPosition
	}
	s.mu.Lock()
	s.restoredCamera = ok
	s.mu.Unlock()
	s.m.MoveCamera(cam)

	s.registry.SetBinder(s.bindShape(ctx))
	restored := s.shapes.Restore(ctx, s.render)
	if err := s.registry.ReplaceAll(restored); err != nil {
		s.logger.Warn("failed to install cached shapes", "error", err)
	}
	s.logger.Info("restored cached shapes", "count", s.registry.Len(), "camera_restored", ok)

	s.scope.Add(s.m.On(mapcap.EventClick, func(mapcap.Event) { s.selection.ClickMap() }))
	s.scope.Add(s.m.On(mapcap.EventCameraChanged, func(mapcap.Event) { s.cameraChanged(ctx) }))
	if s.drawing != nil {
		s.scope.Add(s.drawing.Bind(ctx))
	}
	s.scope.Add(s.registry.Unbind)

	_ = s.Reload(ctx)
	return nil
}

// Reload fetches the area list and replaces the live set with it. Cached
// provisional shapes that match a remote area are linked in place of a new
// render; other provisional shapes are dropped, except the one being edited.
func (s *Session) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	areas, err := s.remote.List(ctx)
	if err != nil {
		s.logger.Warn("failed to load areas", "error", err)
		s.notifier.Notify(notify.Failure("load areas", err))
		return err
	}

	next := s.reconcile(areas)
	if err := s.registry.ReplaceAll(next); err != nil {
		metrics.ReconcileDuplicatesTotal.Add(float64(countDuplicates(err)))
	}
	s.selection.Forget()
	metrics.ShapesLive.Set(float64(s.registry.Len()))
	s.shapes.Snapshot(ctx, s.registry.Shapes())
	s.logger.Info("areas reconciled", "remote", len(areas), "live", s.registry.Len())
	return nil
}

func (s *Session) reconcile(areas []domain.Area) []*shape.DrawnShape {
	current := s.registry.Shapes()
	editing := s.selection.State() == selection.Editing
	selected := s.selection.Current()

	claimed := make(map[*shape.DrawnShape]bool, len(current))
	out := make([]*shape.DrawnShape, 0, len(areas)+1)

	for _, area := range areas {
		if area.ID == nil {
			continue
		}
		if ds := s.reuse(current, claimed, area); ds != nil {
			claimed[ds] = true
			out = append(out, ds)
			continue
		}
		h, err := s.render(area.Type, area.Coordinates)
		if err != nil {
			s.logger.Warn("failed to render area", "area_id", *area.ID, "error", err)
			continue
		}
		ds, err := shape.New(h, area)
		if err != nil {
			s.m.Remove(h)
			s.logger.Warn("failed to wrap area", "area_id", *area.ID, "error", err)
			continue
		}
		out = append(out, ds)
	}

	if editing && selected != nil && selected.Provisional() && !claimed[selected] {
		out = append(out, selected)
	}
	return out
}

// reuse finds a live shape that can stand for area: the shape already
// linked to its id, or an unclaimed provisional shape of the same type at
// the same coordinates. The chosen shape is linked to area.
func (s *Session) reuse(current []*shape.DrawnShape, claimed map[*shape.DrawnShape]bool, area domain.Area) *shape.DrawnShape {
	if ds, ok := s.registry.ByID(*area.ID); ok && !claimed[ds] {
		if ds.Type() != area.Type {
			return nil
		}
		if err := s.registry.Link(ds, area); err != nil {
			s.logger.Warn("failed to refresh linked shape", "area_id", *area.ID, "error", err)
			return nil
		}
		s.refreshGeometry(ds, area)
		return ds
	}
	for _, ds := range current {
		if claimed[ds] || !ds.Provisional() || ds.Type() != area.Type {
			continue
		}
		coords, err := geometry.ToCoordinates(ds.Handle())
		if err != nil || !geometry.Equal(area.Type, coords, area.Coordinates, coordinateTolerance) {
			continue
		}
		if err := s.registry.Link(ds, area); err != nil {
			s.logger.Warn("failed to link cached shape", "area_id", *area.ID, "error", err)
			continue
		}
		s.logger.Debug("cached shape reconciled", "shape_key", ds.Key(), "area_id", *area.ID)
		return ds
	}
	return nil
}

// refreshGeometry moves a linked shape to the backend's coordinates unless
// the user is editing it.
func (s *Session) refreshGeometry(ds *shape.DrawnShape, area domain.Area) {
	if s.selection.State() == selection.Editing && s.selection.Current() == ds {
		return
	}
	g, err := geometry.GeometryFor(area.Type, area.Coordinates)
	if err != nil {
		s.logger.Warn("backend returned invalid geometry", "area_id", *area.ID, "error", err)
		return
	}
	if err := ds.Handle().SetGeometry(g); err != nil {
		s.logger.Warn("failed to move shape", "area_id", *area.ID, "error", err)
	}
}

// Teardown disposes every subscription the session made and stops the
// camera debounce. It is safe to call more than once.
func (s *Session) Teardown() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.scope.Teardown()
	s.logger.Debug("session torn down")
}

// ListAreas returns the live shapes that have been saved, in map order.
func (s *Session) ListAreas(ctx context.Context) []domain.Area {
	shapes := s.registry.Shapes()
	out := make([]domain.Area, 0, len(shapes))
	for _, ds := range shapes {
		if ds.Provisional() {
			continue
		}
		a, err := ds.Snapshot()
		if err != nil {
			s.logger.Warn("skipping unreadable shape", "shape_key", ds.Key(), "error", err)
			continue
		}
		out = append(out, a)
	}
	return out
}

// Focus selects the area with id and centres the camera on it.
func (s *Session) Focus(id int64) error {
	ds, ok := s.registry.ByID(id)
	if !ok {
		return &domain.NotFoundError{ID: id}
	}
	if err := s.selection.Select(ds); err != nil {
		return err
	}
	anchor, err := geometry.AnchorOf(ds.Handle())
	if err != nil {
		return err
	}
	cam := s.m.Camera()
	cam.Center = anchor
	cam.Zoom = FocusZoom
	s.m.MoveCamera(cam)
	return nil
}

// DeleteArea deletes the area with id. The caller has already confirmed.
func (s *Session) DeleteArea(ctx context.Context, id int64) error {
	ds, ok := s.registry.ByID(id)
	if !ok {
		return &domain.NotFoundError{ID: id}
	}
	if err := s.selection.Delete(ctx, ds); err != nil {
		return err
	}
	metrics.ShapesLive.Set(float64(s.registry.Len()))
	return nil
}

func (s *Session) bindShape(ctx context.Context) shape.Binder {
	return func(ds *shape.DrawnShape) []mapcap.Disposer {
		h := ds.Handle()
		return []mapcap.Disposer{
			h.On(mapcap.EventClick, func(mapcap.Event) {
				if err := s.selection.Click(ds); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
					s.logger.Debug("click ignored", "shape_key", ds.Key(), "error", err)
				}
			}),
			h.On(mapcap.EventMouseOver, func(mapcap.Event) { s.selection.Hover(ds, true) }),
			h.On(mapcap.EventMouseOut, func(mapcap.Event) { s.selection.Hover(ds, false) }),
			h.On(mapcap.EventDragEnd, func(mapcap.Event) {
				s.selection.Moved(ds)
				s.shapes.Snapshot(ctx, s.registry.Shapes())
			}),
			h.On(mapcap.EventPathChanged, func(mapcap.Event) { s.shapes.Snapshot(ctx, s.registry.Shapes()) }),
		}
	}
}

func (s *Session) render(t domain.AreaType, c domain.Coordinates) (mapcap.Handle, error) {
	g, err := geometry.GeometryFor(t, c)
	if err != nil {
		return nil, err
	}
	opts := mapcap.HandleOptions{Style: mapcap.DefaultStyle}
	if g.Shape == mapcap.ShapeMarker {
		return s.m.CreateMarker(g.Position, opts)
	}
	return s.m.CreatePolygon(g.Path, opts)
}

func (s *Session) cameraChanged(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() { s.saveCamera(ctx) })
}

func (s *Session) saveCamera(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	cam := s.m.Camera()
	s.camera.Save(ctx, cam)
	s.logger.Debug("camera saved", "lat", cam.Center.Lat, "lng", cam.Center.Lng, "zoom", cam.Zoom)
}

func countDuplicates(err error) int {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		n := 0
		for _, e := range joined.Unwrap() {
			n += countDuplicates(e)
		}
		return n
	}
	var dup *domain.DuplicateAreaError
	if errors.As(err, &dup) {
		return 1
	}
	return 0
}
