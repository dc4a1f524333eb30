// Package notify carries user-visible messages out of the controllers.
package notify

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vbonduro/switchmap/internal/domain"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

type Notification struct {
	Level   Level
	Message string
}

type Notifier interface {
	Notify(n Notification)
}

// LogNotifier writes notifications to a logger. Used when no UI is attached.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(msg Notification) {
	switch msg.Level {
	case LevelError:
		n.logger.Error(msg.Message, "notification", true)
	default:
		n.logger.Info(msg.Message, "notification", true, "level", string(msg.Level))
	}
}

// Recorder keeps every notification it receives.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Last returns the most recent notification, or false if there is none.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Notification{}, false
	}
	return r.items[len(r.items)-1], true
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}

// Failure turns err into an error notification prefixed with action, e.g.
// "Failed to save area: server returned 500".
func Failure(action string, err error) Notification {
	return Notification{Level: LevelError, Message: fmt.Sprintf("Failed to %s: %s", action, Describe(err))}
}

// Describe renders err in words fit for the user.
func Describe(err error) string {
	var (
		ne *domain.NetworkError
		se *domain.ServerError
		ve *domain.ValidationError
		ge *domain.InvalidGeometryError
		nf *domain.NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Message
	case errors.As(err, &ne):
		return "could not reach the server"
	case errors.As(err, &nf):
		return "the area no longer exists"
	case errors.As(err, &se):
		return fmt.Sprintf("server returned %d", se.StatusCode)
	case errors.As(err, &ge):
		return ge.Reason
	case errors.Is(err, domain.ErrBusy):
		return "a request for this area is still in progress"
	default:
		return err.Error()
	}
}
