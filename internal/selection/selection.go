// Package selection implements the select, view, edit, save, and delete
// state machine over the live shapes.
package selection

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/vbonduro/switchmap/internal/domain"
	"github.com/vbonduro/switchmap/internal/geometry"
	"github.com/vbonduro/switchmap/internal/mapcap"
	"github.com/vbonduro/switchmap/internal/notify"
	"github.com/vbonduro/switchmap/internal/photostore"
	"github.com/vbonduro/switchmap/internal/shape"
	"github.com/vbonduro/switchmap/internal/vision"
)

type State int

const (
	Idle State = iota
	Selected
	Editing
	Viewing
)

func (s State) String() string {
	switch s {
	case Selected:
		return "selected"
	case Editing:
		return "editing"
	case Viewing:
		return "viewing"
	default:
		return "idle"
	}
}

// Prompt is a modal question shown on top of the current state.
type Prompt int

const (
	PromptNone Prompt = iota
	PromptUnsavedChanges
	PromptConfirmDelete
)

func (p Prompt) String() string {
	switch p {
	case PromptUnsavedChanges:
		return "unsaved_changes"
	case PromptConfirmDelete:
		return "confirm_delete"
	default:
		return "none"
	}
}

// coordinateTolerance decides when a dragged or edited handle counts as moved.
const coordinateTolerance = 1e-9

// Repository persists areas.
type Repository interface {
	Create(ctx context.Context, area domain.Area, files []domain.PhotoFile) (domain.Area, error)
	Update(ctx context.Context, id int64, area domain.Area, files []domain.PhotoFile) (domain.Area, error)
	Remove(ctx context.Context, id int64) error
}

// Snapshotter records the live shapes after every change to the set.
type Snapshotter interface {
	Snapshot(ctx context.Context, shapes []*shape.DrawnShape)
}

// Form is the details panel content.
type Form struct {
	Name        string
	Description string
	Pending     []domain.PendingPhoto
}

func (f Form) clone() Form {
	f.Pending = append([]domain.PendingPhoto(nil), f.Pending...)
	return f
}

func (f Form) equal(o Form) bool {
	return f.Name == o.Name && f.Description == o.Description && len(f.Pending) == len(o.Pending)
}

type Options struct {
	Registry    *shape.Registry
	Repository  Repository
	Cache       Snapshotter
	Notifier    notify.Notifier
	Logger      *slog.Logger
	Photos      photostore.PhotoStore
	Describer   vision.Describer
	MaxPhotoDim int
}

// Controller is safe for concurrent use. Its lock is released while a
// request is on the wire; results re-check that the shape is still live.
type Controller struct {
	registry    *shape.Registry
	repo        Repository
	cache       Snapshotter
	notifier    notify.Notifier
	logger      *slog.Logger
	photos      photostore.PhotoStore
	describer   vision.Describer
	maxPhotoDim int

	mu       sync.Mutex
	state    State
	prompt   Prompt
	current  *shape.DrawnShape
	hovered  *shape.DrawnShape
	anchor   *domain.LatLng
	form     Form
	baseline Form
	// geom is the handle geometry as of entering the editor, or as of
	// selection outside it.
	geom mapcap.Geometry
	// next is the shape to select once an unsaved-changes prompt resolves
	// by discarding.
	next     *shape.DrawnShape
	inflight map[*shape.DrawnShape]bool
}

func New(opts Options) *Controller {
	return &Controller{
		registry:    opts.Registry,
		repo:        opts.Repository,
		cache:       opts.Cache,
		notifier:    opts.Notifier,
		logger:      opts.Logger,
		photos:      opts.Photos,
		describer:   opts.Describer,
		maxPhotoDim: opts.MaxPhotoDim,
		inflight:    make(map[*shape.DrawnShape]bool),
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Prompt() Prompt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompt
}

// Current returns the selected shape, or nil when idle.
func (c *Controller) Current() *shape.DrawnShape {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Anchor is where the selection popup is placed.
func (c *Controller) Anchor() (domain.LatLng, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.anchor == nil {
		return domain.LatLng{}, false
	}
	return *c.anchor, true
}

func (c *Controller) Form() Form {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form.clone()
}

// Dirty reports whether the shape being edited differs from its last saved
// form or geometry. A never-saved shape is always dirty.
func (c *Controller) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty()
}

// InFlight reports whether a save or delete for s is outstanding.
func (c *Controller) InFlight(s *shape.DrawnShape) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight[s]
}

// Click handles a click on a shape.
func (c *Controller) Click(s *shape.DrawnShape) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.registry.Contains(s) {
		return domain.ErrShapeNotFound
	}
	if c.prompt != PromptNone {
		return domain.ErrInvalidTransition
	}

	switch c.state {
	case Idle:
		c.selectLocked(s)
	case Selected, Viewing:
		if s == c.current {
			c.clearLocked()
		} else {
			c.selectLocked(s)
		}
	case Editing:
		if s == c.current {
			return nil
		}
		if c.dirty() {
			c.prompt = PromptUnsavedChanges
			c.next = s
			return nil
		}
		c.exitEditLocked()
		c.selectLocked(s)
	}
	return nil
}

// ClickMap handles a click on empty map.
func (c *Controller) ClickMap() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.prompt != PromptNone {
		return
	}
	switch c.state {
	case Selected, Viewing:
		c.clearLocked()
	case Editing:
		c.cancelLocked()
	}
}

// Escape dismisses an open prompt, otherwise steps back one level.
func (c *Controller) Escape() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.prompt != PromptNone {
		c.prompt = PromptNone
		c.next = nil
		return
	}
	switch c.state {
	case Selected:
		c.clearLocked()
	case Viewing:
		c.state = Selected
	case Editing:
		c.cancelLocked()
	}
}

// Hover highlights a shape under the pointer unless it is selected.
func (c *Controller) Hover(s *shape.DrawnShape, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s == c.current {
		return
	}
	if on {
		c.hovered = s
		s.SetHighlight(shape.HighlightHover)
		return
	}
	if c.hovered == s {
		c.hovered = nil
	}
	s.SetHighlight(shape.HighlightNone)
}

// Edit opens the details form for the selected shape.
func (c *Controller) Edit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Selected || c.prompt != PromptNone {
		return domain.ErrInvalidTransition
	}
	a := c.current.Area()
	c.enterEditLocked(Form{Name: a.Name, Description: a.Description})
	return nil
}

// Moved handles the end of a drag on s. A marker dragged while selected
// outside the editor opens the editor with the move as an unsaved change.
// While a prompt is open the move is reverted.
func (c *Controller) Moved(s *shape.DrawnShape) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s != c.current {
		return
	}
	switch {
	case c.state == Editing:
	case c.prompt != PromptNone:
		if err := s.Handle().SetGeometry(c.geom); err != nil {
			c.logger.Warn("failed to revert move", "shape_key", s.Key(), "error", err)
		}
	case c.state == Selected || c.state == Viewing:
		before := c.geom
		a := s.Area()
		c.enterEditLocked(Form{Name: a.Name, Description: a.Description})
		c.geom = before
	}
	c.updateAnchorLocked()
}

// BeginNew selects a freshly drawn shape and opens an empty form for it. It
// fails with ErrUnsavedChanges while another shape has unsaved edits.
func (c *Controller) BeginNew(s *shape.DrawnShape) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.registry.Contains(s) {
		return domain.ErrShapeNotFound
	}
	if c.state == Editing && c.current != s {
		if c.dirty() {
			return domain.ErrUnsavedChanges
		}
		c.exitEditLocked()
	}
	c.prompt = PromptNone
	c.next = nil
	c.selectLocked(s)
	c.enterEditLocked(Form{})
	return nil
}

func (c *Controller) SetName(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Editing {
		return domain.ErrInvalidTransition
	}
	c.form.Name = name
	return nil
}

func (c *Controller) SetDescription(desc string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Editing {
		return domain.ErrInvalidTransition
	}
	c.form.Description = desc
	return nil
}

// AttachPhoto stages a local photo for upload on the next save. Only adding
// photos is supported.
func (c *Controller) AttachPhoto(ctx context.Context, filename string, data []byte) error {
	c.mu.Lock()
	if c.state != Editing {
		c.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	target := c.current
	c.mu.Unlock()

	if c.photos == nil {
		return errors.New("photo staging is not configured")
	}
	file, err := photostore.Prepare(filename, data, c.maxPhotoDim)
	if err != nil {
		c.notifier.Notify(notify.Failure("attach photo", err))
		return err
	}
	pending, err := photostore.Stage(ctx, c.photos, file)
	if err != nil {
		c.notifier.Notify(notify.Failure("attach photo", err))
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Editing || c.current != target {
		c.logger.Info("dropping photo attached after edit closed", "shape_key", target.Key())
		c.deleteStaged(ctx, []domain.PendingPhoto{pending})
		return domain.ErrInvalidTransition
	}
	c.form.Pending = append(c.form.Pending, pending)
	return nil
}

// SuggestDescription fills the description from the first pending photo.
func (c *Controller) SuggestDescription(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Editing {
		c.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	if c.describer == nil || c.photos == nil {
		c.mu.Unlock()
		return domain.ErrDescriberUnavailable
	}
	if len(c.form.Pending) == 0 {
		c.mu.Unlock()
		return &domain.ValidationError{Field: "photos", Message: "attach a photo first"}
	}
	target := c.current
	photo := c.form.Pending[0]
	c.mu.Unlock()

	file, err := photostore.Load(ctx, c.photos, photo)
	if err != nil {
		c.notifier.Notify(notify.Failure("read photo", err))
		return err
	}
	text, err := c.describer.Describe(ctx, bytes.NewReader(file.Data), file.MimeType)
	if err != nil {
		c.logger.Warn("description suggestion failed", "shape_key", target.Key(), "error", err)
		c.notifier.Notify(notify.Failure("suggest a description", err))
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Editing || c.current != target {
		c.logger.Info("dropping description for closed edit", "shape_key", target.Key())
		return nil
	}
	c.form.Description = text
	return nil
}

// Save creates or updates the area being edited. A blank name fails with a
// ValidationError before any request is made.
func (c *Controller) Save(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Editing || c.prompt == PromptConfirmDelete {
		c.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	if strings.TrimSpace(c.form.Name) == "" {
		c.mu.Unlock()
		err := &domain.ValidationError{Field: "name", Message: "name is required"}
		c.notifier.Notify(notify.Failure("save area", err))
		return err
	}
	s := c.current
	if c.inflight[s] {
		c.mu.Unlock()
		return domain.ErrBusy
	}
	area, err := s.Snapshot()
	if err != nil {
		c.mu.Unlock()
		c.notifier.Notify(notify.Failure("save area", err))
		return err
	}
	area.Name = strings.TrimSpace(c.form.Name)
	area.Description = c.form.Description
	pending := append([]domain.PendingPhoto(nil), c.form.Pending...)
	c.inflight[s] = true
	c.mu.Unlock()

	saved, err := c.send(ctx, area, pending)
	if err == nil && saved.ID == nil {
		err = errors.New("server returned an area without id")
	}

	c.mu.Lock()
	delete(c.inflight, s)
	if err != nil {
		c.mu.Unlock()
		c.logger.Warn("save failed", "shape_key", s.Key(), "error", err)
		c.notifier.Notify(notify.Failure("save area", err))
		return err
	}
	if !c.registry.Contains(s) {
		c.mu.Unlock()
		c.logger.Info("dropping save result for removed shape", "shape_key", s.Key(), "area_id", *saved.ID)
		return nil
	}
	if err := c.registry.Link(s, saved); err != nil {
		c.mu.Unlock()
		c.logger.Error("failed to link saved area", "shape_key", s.Key(), "error", err)
		c.notifier.Notify(notify.Failure("save area", err))
		return err
	}
	if c.current == s && c.state == Editing {
		c.form.Pending = nil
		c.baseline = Form{Name: saved.Name, Description: saved.Description}
		c.form = c.baseline.clone()
		c.prompt = PromptNone
		c.next = nil
		c.exitEditLocked()
	} else {
		c.logger.Info("save completed after edit closed", "shape_key", s.Key(), "area_id", *saved.ID)
	}
	c.mu.Unlock()

	c.deleteStaged(ctx, pending)
	c.snapshot(ctx)
	c.notifier.Notify(notify.Notification{Level: notify.LevelSuccess, Message: "Area saved"})
	c.logger.Info("area saved", "shape_key", s.Key(), "area_id", *saved.ID)
	return nil
}

func (c *Controller) send(ctx context.Context, area domain.Area, pending []domain.PendingPhoto) (domain.Area, error) {
	files := make([]domain.PhotoFile, 0, len(pending))
	for _, p := range pending {
		f, err := photostore.Load(ctx, c.photos, p)
		if err != nil {
			return domain.Area{}, err
		}
		files = append(files, f)
	}
	if area.ID == nil {
		return c.repo.Create(ctx, area, files)
	}
	return c.repo.Update(ctx, *area.ID, area, files)
}

// Cancel closes the editor. With unsaved changes it opens the
// unsaved-changes prompt instead.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Editing {
		return domain.ErrInvalidTransition
	}
	c.cancelLocked()
	return nil
}

// Discard drops unsaved edits. A shape that was never saved is removed.
// It fails with ErrBusy while a save for the shape is outstanding.
func (c *Controller) Discard(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Editing || c.prompt == PromptConfirmDelete {
		c.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	s, next := c.current, c.next
	if c.inflight[s] {
		c.mu.Unlock()
		return domain.ErrBusy
	}
	pending := c.form.Pending
	c.prompt = PromptNone
	c.next = nil

	if err := s.Handle().SetGeometry(c.geom); err != nil {
		c.logger.Warn("failed to restore geometry", "shape_key", s.Key(), "error", err)
	}
	c.exitEditLocked()
	c.clearLocked()
	removed := s.Provisional()
	if removed {
		c.registry.Remove(s)
	}
	if next != nil && c.registry.Contains(next) {
		c.selectLocked(next)
	}
	c.mu.Unlock()

	c.deleteStaged(ctx, pending)
	c.snapshot(ctx)
	c.logger.Debug("edit discarded", "shape_key", s.Key(), "removed", removed)
	return nil
}

// KeepEditing closes the unsaved-changes prompt.
func (c *Controller) KeepEditing() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prompt != PromptUnsavedChanges {
		return domain.ErrInvalidTransition
	}
	c.prompt = PromptNone
	c.next = nil
	return nil
}

func (c *Controller) View() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Selected || c.prompt != PromptNone {
		return domain.ErrInvalidTransition
	}
	c.state = Viewing
	return nil
}

func (c *Controller) CloseView() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Viewing || c.prompt != PromptNone {
		return domain.ErrInvalidTransition
	}
	c.state = Selected
	return nil
}

// RequestDelete asks for confirmation before deleting the selected shape.
func (c *Controller) RequestDelete() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if (c.state != Editing && c.state != Viewing) || c.prompt != PromptNone {
		return domain.ErrInvalidTransition
	}
	c.prompt = PromptConfirmDelete
	return nil
}

func (c *Controller) CancelDelete() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prompt != PromptConfirmDelete {
		return domain.ErrInvalidTransition
	}
	c.prompt = PromptNone
	return nil
}

// ConfirmDelete deletes the selected shape. On failure the shape keeps its
// state and selection. The prompt stays open while a request for the shape
// is outstanding.
func (c *Controller) ConfirmDelete(ctx context.Context) error {
	c.mu.Lock()
	if c.prompt != PromptConfirmDelete {
		c.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	s := c.current
	if c.inflight[s] {
		c.mu.Unlock()
		return domain.ErrBusy
	}
	c.prompt = PromptNone
	c.mu.Unlock()

	return c.Delete(ctx, s)
}

// Delete removes s from the backend, the registry, and the map. The caller
// is responsible for having confirmed it. An area already gone from the
// backend counts as deleted.
func (c *Controller) Delete(ctx context.Context, s *shape.DrawnShape) error {
	c.mu.Lock()
	if !c.registry.Contains(s) {
		c.mu.Unlock()
		return domain.ErrShapeNotFound
	}
	if c.inflight[s] {
		c.mu.Unlock()
		return domain.ErrBusy
	}
	id := s.ID()
	c.inflight[s] = true
	c.mu.Unlock()

	var err error
	if id != nil {
		err = c.repo.Remove(ctx, *id)
		if domain.IsNotFound(err) {
			c.logger.Info("area already deleted", "area_id", *id)
			err = nil
		}
	}

	c.mu.Lock()
	delete(c.inflight, s)
	if err != nil {
		c.mu.Unlock()
		c.logger.Warn("delete failed", "shape_key", s.Key(), "error", err)
		c.notifier.Notify(notify.Failure("delete area", err))
		return err
	}
	var pending []domain.PendingPhoto
	if c.current == s {
		pending = c.form.Pending
		c.exitEditLocked()
		c.clearLocked()
	}
	if c.hovered == s {
		c.hovered = nil
	}
	c.registry.Remove(s)
	c.mu.Unlock()

	c.deleteStaged(ctx, pending)
	c.snapshot(ctx)
	c.notifier.Notify(notify.Notification{Level: notify.LevelSuccess, Message: "Area deleted"})
	c.logger.Info("area deleted", "shape_key", s.Key())
	return nil
}

// Select makes s the selection from any state without an unsaved-changes
// check. Used by the list view, which refuses to focus while edits are dirty.
func (c *Controller) Select(s *shape.DrawnShape) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.registry.Contains(s) {
		return domain.ErrShapeNotFound
	}
	if c.state == Editing {
		if c.dirty() {
			return domain.ErrUnsavedChanges
		}
		c.exitEditLocked()
	}
	c.prompt = PromptNone
	c.next = nil
	c.selectLocked(s)
	return nil
}

// Forget resets to Idle if the selected shape is no longer live. Called
// after the registry is replaced wholesale.
func (c *Controller) Forget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && !c.registry.Contains(c.current) {
		c.logger.Debug("selected shape superseded", "shape_key", c.current.Key())
		c.state = Idle
		c.prompt = PromptNone
		c.current = nil
		c.anchor = nil
		c.next = nil
		c.form = Form{}
	}
	if c.hovered != nil && !c.registry.Contains(c.hovered) {
		c.hovered = nil
	}
}

// cancelLocked closes the editor or asks about unsaved changes.
func (c *Controller) cancelLocked() {
	if c.dirty() {
		c.prompt = PromptUnsavedChanges
		return
	}
	c.exitEditLocked()
}

func (c *Controller) dirty() bool {
	if c.state != Editing || c.current == nil {
		return false
	}
	if c.current.Provisional() || !c.form.equal(c.baseline) || len(c.form.Pending) > 0 {
		return true
	}
	t := c.current.Type()
	now, err := geometry.ToCoordinates(c.current.Handle())
	if err != nil {
		return true
	}
	before := domain.Coordinates{Point: c.geom.Position, Path: c.geom.Path}
	return !geometry.Equal(t, now, before, coordinateTolerance)
}

func (c *Controller) selectLocked(s *shape.DrawnShape) {
	if c.current != nil && c.current != s {
		c.current.SetHighlight(shape.HighlightNone)
		c.current.SetSelected(false)
	}
	c.current = s
	c.state = Selected
	c.geom = s.Handle().Geometry()
	if c.hovered == s {
		c.hovered = nil
	}
	s.SetHighlight(shape.HighlightSelected)
	s.SetSelected(true)
	c.updateAnchorLocked()
}

func (c *Controller) clearLocked() {
	if c.current != nil {
		c.current.SetHighlight(shape.HighlightNone)
		c.current.SetSelected(false)
	}
	c.current = nil
	c.anchor = nil
	c.state = Idle
	c.form = Form{}
	c.baseline = Form{}
}

func (c *Controller) enterEditLocked(f Form) {
	c.form = f.clone()
	c.baseline = f.clone()
	c.geom = c.current.Handle().Geometry()
	c.current.SetInteractive(true)
	c.state = Editing
}

// exitEditLocked leaves Editing for Selected and locks the handle. The
// current geometry becomes the baseline for moves made while selected.
func (c *Controller) exitEditLocked() {
	if c.state != Editing {
		return
	}
	c.current.SetInteractive(false)
	c.current.SetSelected(true)
	c.geom = c.current.Handle().Geometry()
	c.state = Selected
	c.updateAnchorLocked()
}

func (c *Controller) updateAnchorLocked() {
	a, err := geometry.AnchorOf(c.current.Handle())
	if err != nil {
		c.logger.Warn("failed to compute anchor", "shape_key", c.current.Key(), "error", err)
		c.anchor = nil
		return
	}
	c.anchor = &a
}

func (c *Controller) snapshot(ctx context.Context) {
	if c.cache == nil {
		return
	}
	c.cache.Snapshot(ctx, c.registry.Shapes())
}

func (c *Controller) deleteStaged(ctx context.Context, pending []domain.PendingPhoto) {
	if c.photos == nil {
		return
	}
	for _, p := range pending {
		if err := c.photos.Delete(ctx, p.StorageKey); err != nil && !errors.Is(err, photostore.ErrNotFound) {
			c.logger.Warn("failed to delete staged photo", "storage_key", p.StorageKey, "error", err)
		}
	}
}
