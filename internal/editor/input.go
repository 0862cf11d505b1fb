package editor

import (
	"math"

	"github.com/stargety/oasis-mapeditor/internal/geom"
	"github.com/stargety/oasis-mapeditor/internal/selection"
	"github.com/stargety/oasis-mapeditor/internal/shape"
	"github.com/stargety/oasis-mapeditor/internal/viewport"
)

// Button matches the DOM MouseEvent.button numbering.
type Button int

const (
	ButtonPrimary   Button = 0
	ButtonMiddle    Button = 1
	ButtonSecondary Button = 2
)

// PointerEvent is a pointer sample in screen (stage) pixels.
type PointerEvent struct {
	X         float64             `json:"x"`
	Y         float64             `json:"y"`
	Button    Button              `json:"button"`
	Modifiers selection.Modifiers `json:"modifiers"`
}

func (ev PointerEvent) screen() geom.Point {
	return geom.Pt(ev.X, ev.Y)
}

func (e *Engine) toWorld(screen geom.Point) geom.Point {
	return viewport.ScreenToWorld(screen, e.view.Viewport())
}

// PointerDown starts a gesture. The middle button pans with every tool.
func (e *Engine) PointerDown(ev PointerEvent) {
	at := ev.screen()
	if !at.IsFinite() || e.gesture != gestureNone {
		return
	}

	if ev.Button == ButtonMiddle {
		if e.view.BeginPan(at, viewport.TriggerMiddleButton) {
			e.gesture = gesturePan
		}
		return
	}
	if ev.Button != ButtonPrimary {
		return
	}

	switch e.tool {
	case ToolPan:
		if e.view.BeginPan(at, viewport.TriggerPanTool) {
			e.gesture = gesturePan
		}
	case ToolRect:
		e.rectTool.Begin(e.toWorld(at))
	case ToolPolygon:
		// Vertices are placed on pointer up, matching click semantics.
	case ToolSelect:
		e.selectDown(at, ev.Modifiers)
	}
}

// PointerMove feeds the pointer position to the active gesture or tool.
func (e *Engine) PointerMove(ev PointerEvent) {
	at := ev.screen()
	if !at.IsFinite() {
		return
	}

	switch e.gesture {
	case gesturePan:
		e.view.PanTo(at)
		return
	case gestureMarquee:
		e.selection.UpdateMarquee(at)
		return
	case gestureMove:
		e.dragTo(at)
		return
	}

	switch e.tool {
	case ToolRect:
		e.rectTool.Move(e.toWorld(at))
	case ToolPolygon:
		e.polyTool.Move(e.toWorld(at), e.view.Zoom())
	}
}

// PointerUp ends the current gesture and commits drawn shapes.
func (e *Engine) PointerUp(ev PointerEvent) {
	at := ev.screen()

	switch e.gesture {
	case gesturePan:
		e.view.EndPan()
		e.gesture = gestureNone
		return
	case gestureMarquee:
		e.selection.UpdateMarquee(at)
		e.selection.EndMarquee(e.shapes.All(), e.view.Viewport())
		e.gesture = gestureNone
		return
	case gestureMove:
		e.endMove(ev.Modifiers)
		return
	}

	if ev.Button != ButtonPrimary || !at.IsFinite() {
		return
	}
	switch e.tool {
	case ToolRect:
		e.rectTool.Move(e.toWorld(at))
		if s, ok := e.rectTool.Commit(); ok {
			e.commitDrawn(s)
		}
	case ToolPolygon:
		if s, ok := e.polyTool.Click(e.toWorld(at), e.view.Zoom()); ok {
			e.commitDrawn(s)
		}
	}
}

// DoubleClick closes the polygon being drawn.
func (e *Engine) DoubleClick(ev PointerEvent) {
	if e.tool != ToolPolygon {
		return
	}
	if s, ok := e.polyTool.Finish(); ok {
		e.commitDrawn(s)
	}
}

// Wheel zooms around the cursor.
func (e *Engine) Wheel(x, y, deltaY float64) {
	e.view.Wheel(deltaY, geom.Pt(x, y))
}

// KeyDown handles editor shortcuts. key is a DOM KeyboardEvent.key value.
// It reports whether the key was consumed.
func (e *Engine) KeyDown(key string) bool {
	switch key {
	case "Escape":
		switch {
		case e.polyTool.IsDrawing():
			e.polyTool.Cancel()
		case e.rectTool.IsDrawing():
			e.rectTool.Cancel()
		case e.gesture == gestureMarquee:
			e.selection.CancelMarquee()
			e.gesture = gestureNone
		case e.gesture == gestureMove:
			e.abortMove()
		default:
			e.selection.Clear()
		}
		return true
	case "Enter":
		if !e.polyTool.IsDrawing() {
			return false
		}
		if s, ok := e.polyTool.Finish(); ok {
			e.commitDrawn(s)
		}
		return true
	case "Delete", "Backspace":
		if e.selection.Len() == 0 || e.isDrawing() {
			return false
		}
		e.DeleteShapes(e.selection.IDs())
		return true
	case "+", "=":
		e.view.ZoomIn()
		return true
	case "-":
		e.view.ZoomOut()
		return true
	case "0":
		e.view.Reset()
		return true
	}
	return false
}

func (e *Engine) isDrawing() bool {
	return e.rectTool.IsDrawing() || e.polyTool.IsDrawing()
}

func (e *Engine) commitDrawn(s shape.Shape) {
	if e.AddShape(s) {
		e.selection.Select([]string{s.ID})
	}
}

// selectDown decides between a shape drag and a marquee. Pressing a shape
// that is already part of the selection keeps the selection so the whole
// group can be dragged; the narrowing click is applied on release.
func (e *Engine) selectDown(at geom.Point, mods selection.Modifiers) {
	world := e.toWorld(at)
	id, hit := e.shapes.TopmostAt(func(s shape.Shape) bool {
		return s.Geometry.Contains(world)
	})
	if !hit {
		e.selection.BeginMarquee(at)
		e.gesture = gestureMarquee
		return
	}

	wasSelected := e.selection.IsSelected(id)
	if !wasSelected || mods.Toggle() {
		e.selection.HandleShapeClick(id, mods)
	}
	if !e.selection.IsSelected(id) {
		return
	}

	e.gesture = gestureMove
	e.dragOrigin = at
	e.dragStart = world
	e.dragLast = world
	e.dragMoved = false
	e.dragPressed = id
	e.dragNarrow = wasSelected && !mods.Toggle()
	e.dragBefore = make(map[string]shape.Shape, e.selection.Len())
	for _, sid := range e.selection.IDs() {
		if s, ok := e.shapes.Get(sid); ok {
			e.dragBefore[sid] = s
		}
	}
}

func (e *Engine) dragTo(at geom.Point) {
	if !e.dragMoved {
		d := at.Sub(e.dragOrigin)
		if math.Abs(d.X) <= e.dragThresh && math.Abs(d.Y) <= e.dragThresh {
			return
		}
		e.dragMoved = true
	}
	world := e.toWorld(at)
	delta := world.Sub(e.dragLast)
	e.dragLast = world
	for id := range e.dragBefore {
		e.shapes.Update(id, func(s *shape.Shape) {
			s.Geometry = s.Geometry.Translate(delta)
		})
	}
}

func (e *Engine) endMove(mods selection.Modifiers) {
	moved := e.dragMoved
	pressed, narrow := e.dragPressed, e.dragNarrow
	e.finishMove()
	if !moved && narrow {
		e.selection.HandleShapeClick(pressed, mods)
	}
}

// dragOffset is the world distance the dragged shapes have travelled.
func (e *Engine) dragOffset() geom.Point {
	if !e.dragMoved {
		return geom.Point{}
	}
	return e.dragLast.Sub(e.dragStart)
}

// finishMove emits one update per dragged shape, in stacking order, and
// resets drag state.
func (e *Engine) finishMove() {
	if e.dragMoved {
		for _, after := range e.shapes.All() {
			if before, ok := e.dragBefore[after.ID]; ok {
				e.emitUpdated(before, after)
			}
		}
	}
	e.resetMove()
}

// abortMove puts dragged shapes back where the drag started. Nothing is
// emitted since nothing was reported yet.
func (e *Engine) abortMove() {
	for _, before := range e.dragBefore {
		if e.shapes.Has(before.ID) {
			e.shapes.Upsert(before)
		}
	}
	e.resetMove()
}

func (e *Engine) resetMove() {
	e.gesture = gestureNone
	e.dragMoved = false
	e.dragBefore = nil
	e.dragPressed = ""
	e.dragNarrow = false
}
