// Package geometry converts between handle geometry and the serializable
// coordinate form of an area, and computes the anchor used to place popups.
package geometry

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/vbonduro/switchmap/internal/domain"
	"github.com/vbonduro/switchmap/internal/mapcap"
)

// MinPolygonVertices is the smallest vertex count a polygon may have.
const MinPolygonVertices = 3

// AreaTypeOf maps a handle shape to the persisted area type. Rectangles have
// no area type of their own.
func AreaTypeOf(s mapcap.Shape) (domain.AreaType, error) {
	switch s {
	case mapcap.ShapeMarker:
		return domain.AreaPoint, nil
	case mapcap.ShapePolygon:
		return domain.AreaPolygon, nil
	default:
		return "", &domain.InvalidGeometryError{Reason: fmt.Sprintf("%s handles cannot be persisted", s)}
	}
}

// ToCoordinates reads the handle's current geometry, including any edits
// made since it was created.
func ToCoordinates(h mapcap.Handle) (domain.Coordinates, error) {
	g := h.Geometry()
	switch g.Shape {
	case mapcap.ShapeMarker:
		c := domain.PointCoordinates(g.Position)
		return c, Validate(domain.AreaPoint, c)
	case mapcap.ShapePolygon:
		c := domain.PathCoordinates(g.Path)
		return c, Validate(domain.AreaPolygon, c)
	default:
		return domain.Coordinates{}, &domain.InvalidGeometryError{Reason: fmt.Sprintf("unsupported handle shape %s", g.Shape)}
	}
}

// AnchorOf returns the marker position, or the center of a polygon's
// bounding envelope.
func AnchorOf(h mapcap.Handle) (domain.LatLng, error) {
	g := h.Geometry()
	switch g.Shape {
	case mapcap.ShapeMarker:
		if err := validatePoint(g.Position); err != nil {
			return domain.LatLng{}, err
		}
		return g.Position, nil
	case mapcap.ShapePolygon:
		if err := Validate(domain.AreaPolygon, domain.Coordinates{Path: g.Path}); err != nil {
			return domain.LatLng{}, err
		}
		return EnvelopeCenter(g.Path), nil
	default:
		return domain.LatLng{}, &domain.InvalidGeometryError{Reason: fmt.Sprintf("unsupported handle shape %s", g.Shape)}
	}
}

// EnvelopeCenter is the midpoint of the path's bounding box. path must not
// be empty.
func EnvelopeCenter(path []domain.LatLng) domain.LatLng {
	xys := make([]geom.XY, len(path))
	for i, p := range path {
		xys[i] = geom.XY{X: p.Lng, Y: p.Lat}
	}
	env := geom.NewEnvelope(xys[0], xys[1:]...)
	lo, hi := env.Min(), env.Max()
	return domain.LatLng{Lat: (lo.Y + hi.Y) / 2, Lng: (lo.X + hi.X) / 2}
}

// Validate checks vertex count and that every number is finite.
func Validate(t domain.AreaType, c domain.Coordinates) error {
	switch t {
	case domain.AreaPoint:
		return validatePoint(c.Point)
	case domain.AreaPolygon:
		if len(c.Path) < MinPolygonVertices {
			return &domain.InvalidGeometryError{
				Reason: fmt.Sprintf("polygon has %d vertices, need at least %d", len(c.Path), MinPolygonVertices),
			}
		}
		for _, p := range c.Path {
			if err := validatePoint(p); err != nil {
				return err
			}
		}
		return nil
	default:
		return &domain.InvalidGeometryError{Reason: fmt.Sprintf("unknown area type %q", t)}
	}
}

func validatePoint(p domain.LatLng) error {
	if !finite(p.Lat) || !finite(p.Lng) {
		return &domain.InvalidGeometryError{Reason: fmt.Sprintf("coordinate (%v, %v) is not finite", p.Lat, p.Lng)}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// RectangleToPolygon returns the four corners of b in NW, NE, SE, SW order.
func RectangleToPolygon(b mapcap.Bounds) []domain.LatLng {
	return []domain.LatLng{
		{Lat: b.North, Lng: b.West},
		{Lat: b.North, Lng: b.East},
		{Lat: b.South, Lng: b.East},
		{Lat: b.South, Lng: b.West},
	}
}

// GeometryFor builds the handle geometry used to render an area.
func GeometryFor(t domain.AreaType, c domain.Coordinates) (mapcap.Geometry, error) {
	if err := Validate(t, c); err != nil {
		return mapcap.Geometry{}, err
	}
	if t == domain.AreaPoint {
		return mapcap.Geometry{Shape: mapcap.ShapeMarker, Position: c.Point}, nil
	}
	return mapcap.Geometry{Shape: mapcap.ShapePolygon, Path: c.Clone().Path}, nil
}

// Equal compares coordinates of the same area type within tolerance.
func Equal(t domain.AreaType, a, b domain.Coordinates, tolerance float64) bool {
	if t == domain.AreaPoint {
		return near(a.Point, b.Point, tolerance)
	}
	if len(a.Path) != len(b.Path) {
		return false
	}
	for i := range a.Path {
		if !near(a.Path[i], b.Path[i], tolerance) {
			return false
		}
	}
	return true
}

func near(a, b domain.LatLng, tolerance float64) bool {
	return math.Abs(a.Lat-b.Lat) <= tolerance && math.Abs(a.Lng-b.Lng) <= tolerance
}

// Encode renders coordinates as the wire JSON: [lat,lng] for points and
// [[lat,lng],...] for polygons.
func Encode(t domain.AreaType, c domain.Coordinates) ([]byte, error) {
	switch t {
	case domain.AreaPoint:
		return json.Marshal([2]float64{c.Point.Lat, c.Point.Lng})
	case domain.AreaPolygon:
		pairs := make([][2]float64, len(c.Path))
		for i, p := range c.Path {
			pairs[i] = [2]float64{p.Lat, p.Lng}
		}
		return json.Marshal(pairs)
	default:
		return nil, fmt.Errorf("unknown area type %q", t)
	}
}

// Decode parses wire JSON for the given area type and validates it.
func Decode(t domain.AreaType, raw []byte) (domain.Coordinates, error) {
	var c domain.Coordinates
	switch t {
	case domain.AreaPoint:
		var pair []float64
		if err := json.Unmarshal(raw, &pair); err != nil {
			return c, fmt.Errorf("failed to decode point coordinates: %w", err)
		}
		if len(pair) != 2 {
			return c, &domain.InvalidGeometryError{Reason: fmt.Sprintf("point has %d numbers, need 2", len(pair))}
		}
		c = domain.PointCoordinates(domain.LatLng{Lat: pair[0], Lng: pair[1]})
	case domain.AreaPolygon:
		var pairs [][]float64
		if err := json.Unmarshal(raw, &pairs); err != nil {
			return c, fmt.Errorf("failed to decode polygon coordinates: %w", err)
		}
		path := make([]domain.LatLng, 0, len(pairs))
		for i, pair := range pairs {
			if len(pair) != 2 {
				return c, &domain.InvalidGeometryError{Reason: fmt.Sprintf("vertex %d has %d numbers, need 2", i, len(pair))}
			}
			path = append(path, domain.LatLng{Lat: pair[0], Lng: pair[1]})
		}
		c = domain.Coordinates{Path: path}
	default:
		return c, fmt.Errorf("unknown area type %q", t)
	}
	return c, Validate(t, c)
}
