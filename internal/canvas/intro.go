package canvas

import (
	"context"
	"time"

	"github.com/vbonduro/switchmap/internal/domain"
)

// StartPosition is the camera used when no saved position exists.
var StartPosition = domain.Camera{Center: domain.LatLng{Lat: -28.263778, Lng: 134.402009}, Zoom: 4}

// Keyframe is one step of the intro fly-in. The camera holds its previous
// position for Wait before jumping to Camera.
type Keyframe struct {
	Camera domain.Camera
	Wait   time.Duration
}

const (
	introStartDelay = 2000 * time.Millisecond
	stageDuration   = 4000 * time.Millisecond
	tiltDuration    = 3000 * time.Millisecond
)

// IntroKeyframes fly from the whole country down to the site.
var IntroKeyframes = []Keyframe{
	{Camera: StartPosition, Wait: 0},
	{Camera: domain.Camera{Center: domain.LatLng{Lat: -37.899874, Lng: 144.943917}, Zoom: 10}, Wait: introStartDelay},
	{Camera: domain.Camera{Center: domain.LatLng{Lat: -37.818443, Lng: 144.787437}, Zoom: 14}, Wait: stageDuration},
	{Camera: domain.Camera{Center: domain.LatLng{Lat: -37.831958, Lng: 144.788857}, Zoom: 18}, Wait: stageDuration},
	{Camera: domain.Camera{Center: domain.LatLng{Lat: -37.831958, Lng: 144.788857}, Zoom: 18, Tilt: 45}, Wait: tiltDuration},
}

// SessionState is owned by whoever creates the session and outlives it, so
// the intro plays once per owner rather than once per session.
type SessionState struct {
	IntroPlayed bool
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PlayIntro steps the camera through IntroKeyframes. It does nothing when
// the intro already played for this session state or a saved camera was
// restored. Cancelling ctx stops the sequence where it is.
func (s *Session) PlayIntro(ctx context.Context) error {
	s.mu.Lock()
	if s.state.IntroPlayed || s.restoredCamera {
		s.mu.Unlock()
		return nil
	}
	s.state.IntroPlayed = true
	s.mu.Unlock()

	s.logger.Debug("playing intro", "keyframes", len(IntroKeyframes))
	for _, k := range IntroKeyframes {
		if err := s.sleep(ctx, k.Wait); err != nil {
			return err
		}
		s.m.MoveCamera(k.Camera)
	}
	return nil
}
