// Package drawing toggles the map's drawing tool and turns completed
// overlays into provisional shapes.
package drawing

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/vbonduro/switchmap/internal/domain"
	"github.com/vbonduro/switchmap/internal/geometry"
	"github.com/vbonduro/switchmap/internal/mapcap"
	"github.com/vbonduro/switchmap/internal/notify"
	"github.com/vbonduro/switchmap/internal/selection"
	"github.com/vbonduro/switchmap/internal/shape"
)

var unsavedNotice = notify.Notification{Level: notify.LevelInfo, Message: "Save or discard your changes before drawing"}

type Controller struct {
	m         mapcap.Map
	registry  *shape.Registry
	selection *selection.Controller
	cache     selection.Snapshotter
	notifier  notify.Notifier
	logger    *slog.Logger

	mu     sync.Mutex
	active mapcap.Tool
}

func New(m mapcap.Map, registry *shape.Registry, sel *selection.Controller, cache selection.Snapshotter, notifier notify.Notifier, logger *slog.Logger) *Controller {
	return &Controller{
		m:         m,
		registry:  registry,
		selection: sel,
		cache:     cache,
		notifier:  notifier,
		logger:    logger,
	}
}

func (c *Controller) Mode() mapcap.Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// SetMode activates tool, or turns drawing off if tool is already active.
// Activation is refused while the selection has unsaved edits.
func (c *Controller) SetMode(tool mapcap.Tool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := tool
	if tool == c.active {
		next = mapcap.ToolNone
	}
	if next != mapcap.ToolNone && c.selection.Dirty() {
		c.notifier.Notify(unsavedNotice)
		return domain.ErrUnsavedChanges
	}
	c.active = next
	c.m.SetDrawingMode(next)
	c.logger.Debug("drawing mode changed", "tool", next.String())
	return nil
}

// Bind routes the map's overlay-complete events into Complete.
func (c *Controller) Bind(ctx context.Context) mapcap.Disposer {
	return c.m.On(mapcap.EventOverlayComplete, func(ev mapcap.Event) {
		// Failures are already logged and surfaced.
		_, _ = c.Complete(ctx, ev.Handle)
	})
}

// Complete turns a freshly drawn overlay into a provisional shape and opens
// its editor. Drawing is switched off first: one shape per activation. The
// overlay is removed again if another shape has unsaved edits.
func (c *Controller) Complete(ctx context.Context, h mapcap.Handle) (*shape.DrawnShape, error) {
	c.mu.Lock()
	c.active = mapcap.ToolNone
	c.m.SetDrawingMode(mapcap.ToolNone)
	c.mu.Unlock()

	g := h.Geometry()
	if g.Shape == mapcap.ShapeRectangle {
		corners := geometry.RectangleToPolygon(g.Bounds)
		c.m.Remove(h)
		poly, err := c.m.CreatePolygon(corners, mapcap.HandleOptions{Style: mapcap.DefaultStyle})
		if err != nil {
			c.logger.Error("failed to convert rectangle", "error", err)
			c.notifier.Notify(notify.Failure("add area", err))
			return nil, err
		}
		h = poly
	}

	t, err := geometry.AreaTypeOf(h.Geometry().Shape)
	if err != nil {
		c.m.Remove(h)
		c.notifier.Notify(notify.Failure("add area", err))
		return nil, err
	}
	s, err := c.registry.Register(h, t)
	if err != nil {
		c.m.Remove(h)
		c.logger.Warn("rejected drawn shape", "error", err)
		c.notifier.Notify(notify.Failure("add area", err))
		return nil, err
	}
	if err := c.selection.BeginNew(s); err != nil {
		c.registry.Remove(s)
		if errors.Is(err, domain.ErrUnsavedChanges) {
			c.notifier.Notify(unsavedNotice)
		} else {
			c.notifier.Notify(notify.Failure("add area", err))
		}
		c.logger.Info("dropped drawn shape", "shape_key", s.Key(), "error", err)
		return nil, err
	}
	if c.cache != nil {
		c.cache.Snapshot(ctx, c.registry.Shapes())
	}
	c.logger.Info("shape drawn", "shape_key", s.Key(), "area_type", t)
	return s, nil
}
