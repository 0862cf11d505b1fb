package draw

import (
	"github.com/stargety/oasis-mapeditor/internal/geom"
	"github.com/stargety/oasis-mapeditor/internal/shape"
	"github.com/stargety/oasis-mapeditor/internal/viewport"
)

// DefaultHitRadius is the origin-snap distance in screen pixels.
const DefaultHitRadius = 10.0

// PolygonState is the transient click-to-add-vertex state.
type PolygonState struct {
	IsDrawing       bool         `json:"isDrawing"`
	Vertices        []geom.Point `json:"vertices"`
	PreviewPoint    *geom.Point  `json:"previewPoint,omitempty"`
	IsOriginHovered bool         `json:"isOriginHovered"`
}

// Segment is a line between two world points.
type Segment struct {
	From geom.Point `json:"from"`
	To   geom.Point `json:"to"`
}

// PolygonPreview is what the renderer draws while a polygon is in progress.
type PolygonPreview struct {
	Vertices      []geom.Point `json:"vertices"`
	Line          *Segment     `json:"line,omitempty"`
	Closing       *Segment     `json:"closing,omitempty"`
	OriginHovered bool         `json:"originHovered"`
}

// PolygonTool draws polygons one vertex per click. It commits on a click
// near the first vertex, on Finish (double click / Enter) and discards on
// Cancel (Escape).
type PolygonTool struct {
	Category shape.Category
	// HitRadius is in screen pixels and divided by zoom before use.
	HitRadius float64

	state PolygonState
	newID IDFunc
}

func NewPolygonTool(newID IDFunc) *PolygonTool {
	return &PolygonTool{
		Category:  shape.CategoryCollision,
		HitRadius: DefaultHitRadius,
		newID:     newID,
	}
}

// State returns a copy of the drawing state.
func (t *PolygonTool) State() PolygonState {
	s := t.state
	s.Vertices = append([]geom.Point(nil), t.state.Vertices...)
	if t.state.PreviewPoint != nil {
		p := *t.state.PreviewPoint
		s.PreviewPoint = &p
	}
	return s
}

func (t *PolygonTool) IsDrawing() bool {
	return t.state.IsDrawing
}

func (t *PolygonTool) VertexCount() int {
	return len(t.state.Vertices)
}

// Click handles a primary click at world point p. It returns the committed
// polygon when the click closes the shape.
func (t *PolygonTool) Click(p geom.Point, zoom float64) (shape.Shape, bool) {
	if !p.IsFinite() {
		return shape.Shape{}, false
	}
	if !t.state.IsDrawing {
		t.state = PolygonState{IsDrawing: true, Vertices: []geom.Point{p}}
		return shape.Shape{}, false
	}

	radius := t.worldRadius(zoom)
	if t.nearOrigin(p, radius) {
		return t.commit()
	}
	// The second click of a double click lands on the vertex just added.
	last := t.state.Vertices[len(t.state.Vertices)-1]
	if last.Near(p, radius) {
		return shape.Shape{}, false
	}
	t.state.Vertices = append(t.state.Vertices, p)
	t.state.IsOriginHovered = false
	return shape.Shape{}, false
}

// Move updates the live preview for the cursor at world point p.
func (t *PolygonTool) Move(p geom.Point, zoom float64) {
	if !t.state.IsDrawing || !p.IsFinite() {
		return
	}
	t.state.PreviewPoint = &p
	t.state.IsOriginHovered = t.nearOrigin(p, t.worldRadius(zoom))
}

// Finish commits when enough vertices exist; otherwise it does nothing and
// drawing continues.
func (t *PolygonTool) Finish() (shape.Shape, bool) {
	if !t.state.IsDrawing {
		return shape.Shape{}, false
	}
	return t.commit()
}

// Cancel drops every accumulated vertex.
func (t *PolygonTool) Cancel() {
	t.state = PolygonState{}
}

// Preview returns the in-progress outline, or false when idle.
func (t *PolygonTool) Preview() (PolygonPreview, bool) {
	if !t.state.IsDrawing {
		return PolygonPreview{}, false
	}
	pv := PolygonPreview{
		Vertices:      append([]geom.Point(nil), t.state.Vertices...),
		OriginHovered: t.state.IsOriginHovered,
	}
	if t.state.PreviewPoint != nil {
		last := t.state.Vertices[len(t.state.Vertices)-1]
		pv.Line = &Segment{From: last, To: *t.state.PreviewPoint}
		if t.state.IsOriginHovered {
			pv.Closing = &Segment{From: *t.state.PreviewPoint, To: t.state.Vertices[0]}
		}
	}
	return pv, true
}

func (t *PolygonTool) commit() (shape.Shape, bool) {
	if len(t.state.Vertices) < shape.MinPolygonPoints {
		return shape.Shape{}, false
	}
	s := shape.New(t.newID(), t.Category, shape.PolygonGeometry(t.state.Vertices))
	t.state = PolygonState{}
	return s, true
}

// nearOrigin only reports true once the polygon could be closed.
func (t *PolygonTool) nearOrigin(p geom.Point, radius float64) bool {
	if len(t.state.Vertices) < shape.MinPolygonPoints {
		return false
	}
	return t.state.Vertices[0].Near(p, radius)
}

func (t *PolygonTool) worldRadius(zoom float64) float64 {
	if zoom <= 0 {
		zoom = 1
	}
	return viewport.Viewport{Zoom: zoom}.WorldDistance(t.HitRadius)
}
