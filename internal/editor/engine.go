// Package editor is the map editor core. An Engine owns the shape list,
// the selection, the viewport and the drawing tools, turns pointer and
// keyboard input into mutations and compiles the current state into draw
// commands for the canvas layer.
//
// The engine is single-threaded: every method must be called from the UI
// thread that delivers input events.
package editor

import (
	"encoding/json"

	"github.com/stargety/oasis-mapeditor/internal/document"
	"github.com/stargety/oasis-mapeditor/internal/draw"
	"github.com/stargety/oasis-mapeditor/internal/geom"
	"github.com/stargety/oasis-mapeditor/internal/selection"
	"github.com/stargety/oasis-mapeditor/internal/shape"
	"github.com/stargety/oasis-mapeditor/internal/typeid"
	"github.com/stargety/oasis-mapeditor/internal/viewport"
)

// Tool is the active pointer tool.
type Tool string

const (
	ToolSelect  Tool = "select"
	ToolPan     Tool = "pan"
	ToolRect    Tool = "rect"
	ToolPolygon Tool = "polygon"
)

// ParseTool maps a tool name to a Tool.
func ParseTool(s string) (Tool, bool) {
	switch Tool(s) {
	case ToolSelect, ToolPan, ToolRect, ToolPolygon:
		return Tool(s), true
	default:
		return "", false
	}
}

// Options tunes the pixel thresholds. Zero values take the defaults.
type Options struct {
	NewID         draw.IDFunc
	MinRectSize   float64 // world units
	HitRadius     float64 // screen pixels
	DragThreshold float64 // screen pixels
}

type gesture int

const (
	gestureNone gesture = iota
	gesturePan
	gestureMarquee
	gestureMove
)

type Engine struct {
	info      document.MapInfo
	shapes    *shape.List
	selection *selection.Set
	view      *viewport.Controller

	rectTool *draw.RectTool
	polyTool *draw.PolygonTool
	tool     Tool
	category shape.Category

	gesture      gesture
	dragOrigin   geom.Point // screen
	dragStart    geom.Point // world
	dragLast     geom.Point // world
	dragMoved    bool
	dragPressed  string
	dragNarrow   bool
	dragBefore   map[string]shape.Shape
	dragThresh   float64
	listeners    []func(Change)
	selListeners []func([]string)
}

// NewEngine creates an engine with an empty map.
func NewEngine(opts Options) *Engine {
	if opts.NewID == nil {
		opts.NewID = typeid.NewShapeID
	}
	if opts.DragThreshold <= 0 {
		opts.DragThreshold = selection.DefaultDragThreshold
	}

	e := &Engine{
		shapes:     shape.NewList(nil),
		selection:  selection.New(),
		view:       viewport.NewController(),
		rectTool:   draw.NewRectTool(opts.NewID),
		polyTool:   draw.NewPolygonTool(opts.NewID),
		tool:       ToolSelect,
		category:   shape.CategoryCollision,
		dragThresh: opts.DragThreshold,
	}
	if opts.MinRectSize > 0 {
		e.rectTool.MinSize = opts.MinRectSize
	}
	if opts.HitRadius > 0 {
		e.polyTool.HitRadius = opts.HitRadius
	}
	e.selection.SetDragThreshold(opts.DragThreshold)
	e.selection.OnChange(func(ids []string) {
		for _, fn := range e.selListeners {
			fn(ids)
		}
	})
	return e
}

// --- Commands ---

// LoadDocument replaces the map, clearing selection and any gesture.
// Shapes that break their invariants are skipped.
func (e *Engine) LoadDocument(doc *document.MapDocument) {
	if e.gesture == gestureMove {
		e.abortMove()
	}
	e.cancelGestures()
	e.info = doc.Map
	valid := make([]shape.Shape, 0, len(doc.Shapes))
	for _, s := range doc.Shapes {
		if s.Validate() == nil {
			valid = append(valid, s)
		}
	}
	e.shapes = shape.NewList(valid)
	e.selection.Clear()
}

// Document snapshots the map as a persistable document.
func (e *Engine) Document() *document.MapDocument {
	return &document.MapDocument{Map: e.info, Shapes: e.shapes.All()}
}

// SetMapInfo replaces the map metadata.
func (e *Engine) SetMapInfo(info document.MapInfo) {
	e.info = info
}

// SetTool switches tools, abandoning any drawing in progress.
func (e *Engine) SetTool(t Tool) {
	if _, ok := ParseTool(string(t)); !ok || t == e.tool {
		return
	}
	e.cancelGestures()
	e.tool = t
}

// SetDrawCategory sets the category that newly drawn shapes get.
func (e *Engine) SetDrawCategory(c shape.Category) {
	if _, err := shape.ParseCategory(string(c)); err != nil {
		return
	}
	e.category = c
	e.rectTool.Category = c
	e.polyTool.Category = c
}

// Select replaces the selection, ignoring IDs of unknown shapes.
func (e *Engine) Select(ids []string) {
	known := make([]string, 0, len(ids))
	for _, id := range ids {
		if e.shapes.Has(id) {
			known = append(known, id)
		}
	}
	e.selection.Select(known)
}

// ClearSelection empties the selection.
func (e *Engine) ClearSelection() {
	e.selection.Clear()
}

// OnChange registers a listener for shape mutations made through the
// engine's own API and input handlers.
func (e *Engine) OnChange(fn func(Change)) {
	e.listeners = append(e.listeners, fn)
}

// OnSelectionChange registers a listener for selection changes.
func (e *Engine) OnSelectionChange(fn func([]string)) {
	e.selListeners = append(e.selListeners, fn)
}

// Viewport exposes the viewport controller for zoom buttons and fitting.
func (e *Engine) Viewport() *viewport.Controller {
	return e.view
}

// --- Queries ---

func (e *Engine) Tool() Tool {
	return e.tool
}

func (e *Engine) DrawCategory() shape.Category {
	return e.category
}

func (e *Engine) MapInfo() document.MapInfo {
	return e.info
}

func (e *Engine) Shapes() []shape.Shape {
	return e.shapes.All()
}

func (e *Engine) Shape(id string) (shape.Shape, bool) {
	return e.shapes.Get(id)
}

func (e *Engine) Selection() []string {
	return e.selection.IDs()
}

func (e *Engine) IsSelected(id string) bool {
	return e.selection.IsSelected(id)
}

// HitTest returns the front-most shape under a screen point.
func (e *Engine) HitTest(screen geom.Point) (string, bool) {
	world := viewport.ScreenToWorld(screen, e.view.Viewport())
	return e.shapes.TopmostAt(func(s shape.Shape) bool {
		return s.Geometry.Contains(world)
	})
}

// SelectionBounds is the union of the selected shapes' world bounds.
func (e *Engine) SelectionBounds() geom.Rect {
	var out geom.Rect
	for _, id := range e.selection.IDs() {
		if s, ok := e.shapes.Get(id); ok {
			out = out.Union(s.Bounds())
		}
	}
	return out
}

// State is the UI-facing snapshot of non-shape editor state.
type State struct {
	Tool      Tool              `json:"tool"`
	Category  shape.Category    `json:"category"`
	Selection []string          `json:"selection"`
	Viewport  viewport.Viewport `json:"viewport"`
	Rect      draw.RectState    `json:"rect"`
	Polygon   draw.PolygonState `json:"polygon"`
	Map       document.MapInfo  `json:"map"`
}

func (e *Engine) State() State {
	sel := e.selection.IDs()
	if sel == nil {
		sel = []string{}
	}
	return State{
		Tool:      e.tool,
		Category:  e.category,
		Selection: sel,
		Viewport:  e.view.Viewport(),
		Rect:      e.rectTool.State(),
		Polygon:   e.polyTool.State(),
		Map:       e.info,
	}
}

// StateJSON returns State as JSON.
func (e *Engine) StateJSON() string {
	data, _ := json.Marshal(e.State())
	return string(data)
}

func (e *Engine) cancelGestures() {
	e.rectTool.Cancel()
	e.polyTool.Cancel()
	e.selection.CancelMarquee()
	if e.gesture == gestureMove {
		e.finishMove()
	}
	e.view.EndPan()
	e.gesture = gestureNone
}
