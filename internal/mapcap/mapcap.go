// Package mapcap describes the map rendering capability the canvas drives:
// handle creation and removal, handle geometry and flags, drawing tools, the
// camera, and event subscription. Application code only ever sees the tagged
// Geometry union, never the concrete handle types of an implementation.
package mapcap

import "github.com/vbonduro/switchmap/internal/domain"

// Shape tags the kind of geometry a handle carries.
type Shape int

const (
	ShapeMarker Shape = iota + 1
	ShapePolygon
	ShapeRectangle
)

func (s Shape) String() string {
	switch s {
	case ShapeMarker:
		return "marker"
	case ShapePolygon:
		return "polygon"
	case ShapeRectangle:
		return "rectangle"
	default:
		return "unknown"
	}
}

// Bounds is an axis-aligned lat/lng box.
type Bounds struct {
	North float64
	South float64
	East  float64
	West  float64
}

// Geometry is the tagged union carried alongside every handle. Position is
// used by markers, Path by polygons, Bounds by rectangles.
type Geometry struct {
	Shape    Shape
	Position domain.LatLng
	Path     []domain.LatLng
	Bounds   Bounds
}

// Style is the visual state of a polygon. Markers ignore it.
type Style struct {
	FillColor    string
	FillOpacity  float64
	StrokeColor  string
	StrokeWeight int
}

var (
	DefaultStyle = Style{FillColor: "#2196f3", FillOpacity: 0.3, StrokeColor: "#000000", StrokeWeight: 2}
	HoverStyle   = Style{FillColor: "#2196f3", FillOpacity: 0.2, StrokeColor: "#4CAF50", StrokeWeight: 2}
	SelectStyle  = Style{FillColor: "#4CAF50", FillOpacity: 0.3, StrokeColor: "#4CAF50", StrokeWeight: 3}
)

// HandleOptions are applied when a handle is created.
type HandleOptions struct {
	Style     Style
	Draggable bool
	Editable  bool
}

// Tool is the active drawing tool.
type Tool int

const (
	ToolNone Tool = iota
	ToolMarker
	ToolPolygon
	ToolRectangle
)

func (t Tool) String() string {
	switch t {
	case ToolMarker:
		return "marker"
	case ToolPolygon:
		return "polygon"
	case ToolRectangle:
		return "rectangle"
	default:
		return "none"
	}
}

// ParseTool maps a tool name to a Tool.
func ParseTool(s string) (Tool, bool) {
	switch s {
	case "none", "off", "":
		return ToolNone, true
	case "marker", "point":
		return ToolMarker, true
	case "polygon":
		return ToolPolygon, true
	case "rectangle", "rect":
		return ToolRectangle, true
	default:
		return ToolNone, false
	}
}

// EventType names an event emitted by the map or by a handle.
type EventType string

const (
	EventClick           EventType = "click"
	EventMouseOver       EventType = "mouseover"
	EventMouseOut        EventType = "mouseout"
	EventDragEnd         EventType = "dragend"
	EventPathChanged     EventType = "path_changed"
	EventOverlayComplete EventType = "overlaycomplete"
	EventCameraChanged   EventType = "camera_changed"
)

// Event is delivered to listeners. Handle is set for handle events and for
// overlay-complete events, where it is the freshly drawn overlay.
type Event struct {
	Type     EventType
	Handle   Handle
	Tool     Tool
	Position domain.LatLng
}

// Listener receives events.
type Listener func(Event)

// Disposer removes the listener it was returned for. Calling it more than
// once is a no-op.
type Disposer func()

// Handle is an opaque reference to a geometry object owned by the map.
type Handle interface {
	Geometry() Geometry
	SetGeometry(g Geometry) error
	Draggable() bool
	SetDraggable(v bool)
	Editable() bool
	SetEditable(v bool)
	Style() Style
	SetStyle(s Style)
	On(event EventType, fn Listener) Disposer
}

// Map is the rendering capability.
type Map interface {
	CreateMarker(pos domain.LatLng, opts HandleOptions) (Handle, error)
	CreatePolygon(path []domain.LatLng, opts HandleOptions) (Handle, error)
	Remove(h Handle)
	DrawingMode() Tool
	SetDrawingMode(t Tool)
	Camera() domain.Camera
	MoveCamera(c domain.Camera)
	On(event EventType, fn Listener) Disposer
}
