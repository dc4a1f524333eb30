package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a request for the same shape is still in flight.
	ErrBusy = errors.New("a request for this shape is already in progress")
	// ErrInvalidTransition is returned when an action is not valid in the
	// current selection state.
	ErrInvalidTransition = errors.New("action not available in the current state")
	// ErrUnsavedChanges is returned when an action would drop unsaved edits.
	ErrUnsavedChanges = errors.New("there are unsaved changes")
	// ErrShapeNotFound is returned when a shape is not in the live registry.
	ErrShapeNotFound = errors.New("shape not found")
	// ErrDescriberUnavailable is returned when no vision backend is configured.
	ErrDescriberUnavailable = errors.New("photo description is not configured")
)

// NetworkError is a transport failure talking to the backend.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response from the backend.
type ServerError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: server returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: server returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

// NotFoundError is a 404 for a specific area.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("area %d not found", e.ID)
}

// ValidationError blocks a save before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InvalidGeometryError blocks registration of a malformed shape.
type InvalidGeometryError struct {
	Reason string
}

func (e *InvalidGeometryError) Error() string {
	return "invalid geometry: " + e.Reason
}

// DuplicateAreaError means two live shapes claimed the same backend id.
type DuplicateAreaError struct {
	ID int64
}

func (e *DuplicateAreaError) Error() string {
	return fmt.Sprintf("area %d is already linked to another shape", e.ID)
}

// StorageError is a local cache read, write, or parse failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("local cache %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
