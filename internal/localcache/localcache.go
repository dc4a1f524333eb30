// Package localcache keeps an advisory copy of the drawn shapes and the last
// camera position so a reload can repaint before the backend answers.
package localcache

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/vbonduro/switchmap/internal/domain"
	"github.com/vbonduro/switchmap/internal/geometry"
	"github.com/vbonduro/switchmap/internal/mapcap"
	"github.com/vbonduro/switchmap/internal/shape"
)

const (
	ShapesKey = "savedShapes"
	CameraKey = "mapViewState"
)

// Blobs is the key/value storage the caches write through.
type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// RenderFunc creates a fresh handle for a cached entry.
type RenderFunc func(t domain.AreaType, c domain.Coordinates) (mapcap.Handle, error)

type entry struct {
	AreaType    domain.AreaType `json:"areaType"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// ShapeCache stores {areaType, coordinates} for every live shape. Photos and
// descriptions are never cached.
type ShapeCache struct {
	blobs  Blobs
	logger *slog.Logger
}

func NewShapeCache(blobs Blobs, logger *slog.Logger) *ShapeCache {
	return &ShapeCache{blobs: blobs, logger: logger}
}

// Snapshot replaces the cached blob with the current geometry of shapes.
// Failures are logged and otherwise ignored.
func (c *ShapeCache) Snapshot(ctx context.Context, shapes []*shape.DrawnShape) {
	entries := make([]entry, 0, len(shapes))
	for _, s := range shapes {
		coords, err := geometry.ToCoordinates(s.Handle())
		if err != nil {
			c.logger.Warn("skipping shape in cache snapshot", "shape_key", s.Key(), "error", err)
			continue
		}
		raw, err := geometry.Encode(s.Type(), coords)
		if err != nil {
			c.logger.Warn("skipping shape in cache snapshot", "shape_key", s.Key(), "error", err)
			continue
		}
		entries = append(entries, entry{AreaType: s.Type(), Coordinates: raw})
	}

	data, err := json.Marshal(entries)
	if err != nil {
		c.logger.Error("failed to encode shape cache", "error", &domain.StorageError{Op: "encode", Err: err})
		return
	}
	if err := c.blobs.Put(ctx, ShapesKey, data); err != nil {
		c.logger.Error("failed to write shape cache", "error", &domain.StorageError{Op: "write", Err: err})
		return
	}
	c.logger.Debug("shape cache written", "count", len(entries))
}

// Restore renders every cached entry and returns the resulting provisional
// shapes. A missing or unreadable cache yields an empty list.
func (c *ShapeCache) Restore(ctx context.Context, render RenderFunc) []*shape.DrawnShape {
	data, err := c.blobs.Get(ctx, ShapesKey)
	if err != nil {
		c.logger.Warn("failed to read shape cache", "error", &domain.StorageError{Op: "read", Err: err})
		return nil
	}
	if data == nil {
		return nil
	}

	var entries []entry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("discarding malformed shape cache", "error", &domain.StorageError{Op: "parse", Err: err})
		return nil
	}

	shapes := make([]*shape.DrawnShape, 0, len(entries))
	for i, e := range entries {
		t, err := domain.ParseAreaType(string(e.AreaType))
		if err != nil {
			c.logger.Warn("skipping cached shape", "index", i, "error", err)
			continue
		}
		coords, err := geometry.Decode(t, e.Coordinates)
		if err != nil {
			c.logger.Warn("skipping cached shape", "index", i, "error", err)
			continue
		}
		h, err := render(t, coords)
		if err != nil {
			c.logger.Warn("failed to render cached shape", "index", i, "error", err)
			continue
		}
		s, err := shape.New(h, domain.Area{Type: t})
		if err != nil {
			c.logger.Warn("failed to wrap cached shape", "index", i, "error", err)
			continue
		}
		shapes = append(shapes, s)
	}
	return shapes
}

// CameraCache stores the last viewed camera position.
type CameraCache struct {
	blobs  Blobs
	logger *slog.Logger
}

func NewCameraCache(blobs Blobs, logger *slog.Logger) *CameraCache {
	return &CameraCache{blobs: blobs, logger: logger}
}

type cameraState struct {
	Center  domain.LatLng `json:"center"`
	Zoom    float64       `json:"zoom"`
	Tilt    float64       `json:"tilt"`
	Heading float64       `json:"heading"`
}

func (c *CameraCache) Save(ctx context.Context, cam domain.Camera) {
	data, err := json.Marshal(cameraState{Center: cam.Center, Zoom: cam.Zoom, Tilt: cam.Tilt, Heading: cam.Heading})
	if err != nil {
		c.logger.Error("failed to encode camera", "error", &domain.StorageError{Op: "encode", Err: err})
		return
	}
	if err := c.blobs.Put(ctx, CameraKey, data); err != nil {
		c.logger.Error("failed to write camera", "error", &domain.StorageError{Op: "write", Err: err})
	}
}

// Load returns the saved camera, or false when none is stored or it cannot be
// read.
func (c *CameraCache) Load(ctx context.Context) (domain.Camera, bool) {
	data, err := c.blobs.Get(ctx, CameraKey)
	if err != nil {
		c.logger.Warn("failed to read camera", "error", &domain.StorageError{Op: "read", Err: err})
		return domain.Camera{}, false
	}
	if data == nil {
		return domain.Camera{}, false
	}
	var st cameraState
	if err := json.Unmarshal(data, &st); err != nil {
		c.logger.Warn("discarding malformed camera", "error", &domain.StorageError{Op: "parse", Err: err})
		return domain.Camera{}, false
	}
	return domain.Camera{Center: st.Center, Zoom: st.Zoom, Tilt: st.Tilt, Heading: st.Heading}, true
}
