// Package draw holds the per-tool drawing state machines. Each tool
// accumulates pointer input in world coordinates and emits a finished
// shape.Shape on commit. Invalid input never errors: it is dropped.
package draw

import (
	"github.com/stargety/oasis-mapeditor/internal/geom"
	"github.com/stargety/oasis-mapeditor/internal/shape"
)

// IDFunc generates IDs for committed shapes.
type IDFunc func() string

// RectState is the transient rectangle drag state.
type RectState struct {
	IsDrawing    bool       `json:"isDrawing"`
	StartPoint   geom.Point `json:"startPoint"`
	CurrentPoint geom.Point `json:"currentPoint"`
}

// RectTool draws axis-aligned rectangles by drag: idle -> drawing -> idle.
type RectTool struct {
	Category shape.Category
	MinSize  float64

	state RectState
	newID IDFunc
}

func NewRectTool(newID IDFunc) *RectTool {
	return &RectTool{
		Category: shape.CategoryCollision,
		MinSize:  shape.MinRectSize,
		newID:    newID,
	}
}

func (t *RectTool) State() RectState {
	return t.state
}

func (t *RectTool) IsDrawing() bool {
	return t.state.IsDrawing
}

// Begin records the drag start.
func (t *RectTool) Begin(p geom.Point) {
	if !p.IsFinite() {
		return
	}
	t.state = RectState{IsDrawing: true, StartPoint: p, CurrentPoint: p}
}

// Move updates the drag end while drawing.
func (t *RectTool) Move(p geom.Point) {
	if !t.state.IsDrawing || !p.IsFinite() {
		return
	}
	t.state.CurrentPoint = p
}

// Preview returns the normalized box between start and current point.
func (t *RectTool) Preview() (geom.Rect, bool) {
	if !t.state.IsDrawing {
		return geom.Rect{}, false
	}
	return geom.RectFromPoints(t.state.StartPoint, t.state.CurrentPoint), true
}

// Commit ends the drag. A shape is emitted only when both sides exceed
// MinSize; smaller drags are discarded.
func (t *RectTool) Commit() (shape.Shape, bool) {
	r, ok := t.Preview()
	t.state = RectState{}
	if !ok || r.Width <= t.MinSize || r.Height <= t.MinSize {
		return shape.Shape{}, false
	}
	return shape.New(t.newID(), t.Category, shape.RectGeometry(r)), true
}

// Cancel abandons the drag.
func (t *RectTool) Cancel() {
	t.state = RectState{}
}
