package notify

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/switchmap/internal/domain"
)

func TestFailureMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation", &domain.ValidationError{Field: "name", Message: "name is required"}, "Failed to save area: name is required"},
		{"network", fmt.Errorf("wrapped: %w", &domain.NetworkError{Op: "create", Err: errors.New("dial")}), "Failed to save area: could not reach the server"},
		{"server", &domain.ServerError{Op: "create", StatusCode: 500}, "Failed to save area: server returned 500"},
		{"busy", domain.ErrBusy, "Failed to save area: a request for this area is still in progress"},
		{"other", errors.New("boom"), "Failed to save area: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Failure("save area", tt.err)
			assert.Equal(t, LevelError, n.Level)
			assert.Equal(t, tt.want, n.Message)
		})
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	_, ok := r.Last()
	assert.False(t, ok)

	r.Notify(Notification{Level: LevelInfo, Message: "a"})
	r.Notify(Notification{Level: LevelSuccess, Message: "b"})

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, "b", last.Message)
	assert.Len(t, r.All(), 2)

	r.Reset()
	assert.Empty(t, r.All())
}
