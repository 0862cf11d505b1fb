//go:build js && wasm

package main

import (
	"encoding/json"
	"sync"
	"syscall/js"
	"time"

	"github.com/stargety/oasis-mapeditor/internal/collab"
	"github.com/stargety/oasis-mapeditor/internal/document"
	"github.com/stargety/oasis-mapeditor/internal/editor"
	"github.com/stargety/oasis-mapeditor/internal/geom"
	"github.com/stargety/oasis-mapeditor/internal/selection"
	"github.com/stargety/oasis-mapeditor/internal/shape"
	"github.com/stargety/oasis-mapeditor/internal/typeid"
	"github.com/stargety/oasis-mapeditor/internal/viewport"
)

const (
	persistDelay     = 500 * time.Millisecond
	presenceInterval = 50 * time.Millisecond
)

// bridge owns the editor for the page. Every exported call takes mu since
// socket goroutines apply server messages to the same engine.
type bridge struct {
	mu       sync.Mutex
	engine   *editor.Engine
	handles  *editor.Registry[js.Value]
	persist  *document.Debouncer
	listener js.Value
	events   chan string

	session      *collab.Session
	socket       *socket
	lastPresence time.Time

	// resume is where the last session left off on resumeMap. Any edit
	// made while disconnected invalidates it.
	resume    *collab.ResumePoint
	resumeMap string
}

func newBridge() *bridge {
	e := editor.NewEngine(editor.Options{})
	b := &bridge{
		engine:  e,
		handles: editor.NewRegistry[js.Value](),
		persist: document.NewDebouncer(persistDelay),
		events:  make(chan string, 64),
	}
	b.handles.Track(e)
	e.OnChange(func(editor.Change) {
		b.localEdit()
		b.schedulePersist()
	})
	go b.dispatch()
	return b
}

func ok() interface{} {
	return js.ValueOf(map[string]interface{}{"ok": true})
}

func fail(msg string) interface{} {
	return js.ValueOf(map[string]interface{}{"error": msg})
}

// restore loads the last locally saved document, if any.
func (b *bridge) restore() {
	storage := js.Global().Get("localStorage")
	if storage.IsUndefined() || storage.IsNull() {
		return
	}
	raw := storage.Call("getItem", document.StorageKey)
	if raw.IsNull() || raw.IsUndefined() {
		return
	}
	doc, err := document.Parse([]byte(raw.String()))
	if err != nil {
		js.Global().Get("console").Call("warn", "discarding saved map: "+err.Error())
		return
	}
	b.engine.LoadDocument(doc)
}

// schedulePersist writes the document to local storage once edits settle.
// Offline edits only; a connected session is persisted by the server.
func (b *bridge) schedulePersist() {
	if b.session != nil {
		return
	}
	b.persist.Call(func() {
		b.mu.Lock()
		data, err := json.Marshal(b.engine.Document())
		b.mu.Unlock()
		if err != nil {
			return
		}
		storage := js.Global().Get("localStorage")
		if storage.IsUndefined() || storage.IsNull() {
			return
		}
		storage.Call("setItem", document.StorageKey, string(data))
	})
}

// after runs once a command changed state: it hands queued operations to
// the socket and tells the page to redraw.
func (b *bridge) after() {
	if b.session != nil && b.socket != nil {
		b.socket.enqueue(b.session.Outbox())
	}
	b.localEdit()
	b.notify("local")
}

// localEdit drops the resume point once the offline document diverges
// from what the server last confirmed. Caller holds mu.
func (b *bridge) localEdit() {
	if b.session == nil {
		b.resume = nil
	}
}

// notify queues an update for the page. The listener runs without mu held
// since it usually calls straight back into render.
func (b *bridge) notify(kind string) {
	select {
	case b.events <- kind:
	default:
	}
}

func (b *bridge) dispatch() {
	for kind := range b.events {
		b.mu.Lock()
		listener := b.listener
		b.mu.Unlock()
		if listener.Type() == js.TypeFunction {
			listener.Invoke(kind)
		}
	}
}

// --- Commands ---

func (b *bridge) loadDocument(_ js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return fail("missing document JSON")
	}
	doc, err := document.Parse([]byte(args[0].String()))
	if err != nil {
		return fail(err.Error())
	}
	if err := doc.Validate(); err != nil {
		return fail(err.Error())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.engine.LoadDocument(doc)
	b.localEdit()
	b.handles.Prune(b.hasShape)
	b.schedulePersist()
	b.notify("load")
	return ok()
}

func (b *bridge) loadSampleDocument(_ js.Value, _ []js.Value) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.engine.LoadDocument(document.NewSampleDocument(typeid.NewMapID()))
	b.localEdit()
	b.handles.Prune(b.hasShape)
	b.schedulePersist()
	b.notify("load")
	return ok()
}

func (b *bridge) newDocument(_ js.Value, args []js.Value) interface{} {
	name := "Untitled map"
	if len(args) > 0 && args[0].Type() == js.TypeString && args[0].String() != "" {
		name = args[0].String()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.engine.LoadDocument(document.NewEmptyDocument(typeid.NewMapID(), name))
	b.localEdit()
	b.handles.Prune(b.hasShape)
	b.schedulePersist()
	b.notify("load")
	return ok()
}

func (b *bridge) setTool(_ js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return fail("missing tool")
	}
	t, valid := editor.ParseTool(args[0].String())
	if !valid {
		return fail("unknown tool: " + args[0].String())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.engine.SetTool(t)
	b.after()
	return ok()
}

func (b *bridge) setDrawCategory(_ js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return fail("missing category")
	}
	c, err := shape.ParseCategory(args[0].String())
	if err != nil {
		return fail(err.Error())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.engine.SetDrawCategory(c)
	b.after()
	return ok()
}

// pointerEvent reads (x, y, button, shift, ctrl, meta, alt).
func pointerEvent(args []js.Value) editor.PointerEvent {
	ev := editor.PointerEvent{}
	if len(args) > 0 {
		ev.X = args[0].Float()
	}
	if len(args) > 1 {
		ev.Y = args[1].Float()
	}
	if len(args) > 2 {
		ev.Button = editor.Button(args[2].Int())
	}
	ev.Modifiers = selection.Modifiers{
		Shift: len(args) > 3 && args[3].Truthy(),
		Ctrl:  len(args) > 4 && args[4].Truthy(),
		Meta:  len(args) > 5 && args[5].Truthy(),
		Alt:   len(args) > 6 && args[6].Truthy(),
	}
	return ev
}

func (b *bridge) pointerDown(_ js.Value, args []js.Value) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.engine.PointerDown(pointerEvent(args))
	b.after()
	return nil
}

func (b *bridge) pointerMove(_ js.Value, args []js.Value) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	ev := pointerEvent(args)
	b.engine.PointerMove(ev)
	b.sharePresence(geom.Pt(ev.X, ev.Y))
	b.after()
	return nil
}

func (b *bridge) pointerUp(_ js.Value, args []js.Value) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.engine.PointerUp(pointerEvent(args))
	b.after()
	return nil
}

func (b *bridge) doubleClick(_ js.Value, args []js.Value) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.engine.DoubleClick(pointerEvent(args))
	b.after()
	return nil
}

func (b *bridge) wheel(_ js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.engine.Wheel(args[0].Float(), args[1].Float(), args[2].Float())
	b.after()
	return nil
}

// keyDown reports whether the editor consumed the key, so the page can
// call preventDefault.
func (b *bridge) keyDown(_ js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf(false)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	handled := b.engine.KeyDown(args[0].String())
	if handled {
		b.after()
	}
	return js.ValueOf(handled)
}

func parseIDs(v js.Value) ([]string, error) {
	var ids []string
	if err := json.Unmarshal([]byte(v.String()), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (b *bridge) selectShapes(_ js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return fail("missing ids JSON")
	}
	ids, err := parseIDs(args[0])
	if err != nil {
		return fail("invalid ids JSON: " + err.Error())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.engine.Select(ids)
	b.after()
	return ok()
}

func (b *bridge) clearSelection(_ js.Value, _ []js.Value) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.engine.ClearSelection()
	b.after()
	return ok()
}

func (b *bridge) deleteShapes(_ js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return fail("missing ids JSON")
	}
	ids, err := parseIDs(args[0])
	if err != nil {
		return fail("invalid ids JSON: " + err.Error())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.engine.DeleteShapes(ids)
	b.after()
	return js.ValueOf(n)
}

func (b *bridge) setStyle(_ js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return fail("missing id or style JSON")
	}
	var style shape.Style
	if err := json.Unmarshal([]byte(args[1].String()), &style); err != nil {
		return fail("invalid style JSON: " + err.Error())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.engine.SetStyle(args[0].String(), style) {
		return fail("shape not found")
	}
	b.after()
	return ok()
}

func (b *bridge) setCategory(_ js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return fail("missing id or category")
	}
	c, err := shape.ParseCategory(args[1].String())
	if err != nil {
		return fail(err.Error())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.engine.SetCategory(args[0].String(), c) {
		return fail("shape not found")
	}
	b.after()
	return ok()
}

func (b *bridge) setMetadata(_ js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return fail("missing id, key or value")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.engine.SetMetadata(args[0].String(), args[1].String(), args[2].String()) {
		return fail("shape not found")
	}
	b.after()
	return ok()
}

// world converts a stage point from the page into world space. Caller
// holds mu.
func (b *bridge) world(x, y js.Value) geom.Point {
	return viewport.ScreenToWorld(geom.Pt(x.Float(), y.Float()), b.engine.Viewport().Viewport())
}

// resizeRect(id, x1, y1, x2, y2) sets a rectangle to the box spanned by
// two stage points, usually the fixed corner and the dragged handle.
func (b *bridge) resizeRect(_ js.Value, args []js.Value) interface{} {
	if len(args) < 5 {
		return fail("missing id or corners")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p, q := b.world(args[1], args[2]), b.world(args[3], args[4])
	r := geom.Rect{X: p.X, Y: p.Y, Width: q.X - p.X, Height: q.Y - p.Y}
	if !b.engine.ResizeRect(args[0].String(), r) {
		return fail("cannot resize shape")
	}
	b.after()
	return ok()
}

// moveVertex(id, index, x, y) drags a polygon vertex to a stage point.
func (b *bridge) moveVertex(_ js.Value, args []js.Value) interface{} {
	if len(args) < 4 {
		return fail("missing id, index or point")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.engine.MoveVertex(args[0].String(), args[1].Int(), b.world(args[2], args[3])) {
		return fail("cannot move vertex")
	}
	b.after()
	return ok()
}

// insertVertex(id, index, x, y) adds a polygon vertex before index.
func (b *bridge) insertVertex(_ js.Value, args []js.Value) interface{} {
	if len(args) < 4 {
		return fail("missing id, index or point")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.engine.InsertVertex(args[0].String(), args[1].Int(), b.world(args[2], args[3])) {
		return fail("cannot insert vertex")
	}
	b.after()
	return ok()
}

func (b *bridge) removeVertex(_ js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return fail("missing id or index")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.engine.RemoveVertex(args[0].String(), args[1].Int()) {
		return fail("cannot remove vertex")
	}
	b.after()
	return ok()
}

func (b *bridge) renameMap(_ js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return fail("missing name")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		b.session.RenameMap(args[0].String())
	} else {
		info := b.engine.MapInfo()
		info.Name = args[0].String()
		b.engine.SetMapInfo(info)
		b.schedulePersist()
	}
	b.after()
	return ok()
}

func (b *bridge) updateMap(_ js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return fail("missing changes JSON")
	}
	var changes collab.MapChanges
	if err := json.Unmarshal([]byte(args[0].String()), &changes); err != nil {
		return fail("invalid changes JSON: " + err.Error())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		if err := b.session.UpdateMap(changes); err != nil {
			return fail(err.Error())
		}
	} else {
		info, err := changes.Apply(b.engine.MapInfo())
		if err != nil {
			return fail(err.Error())
		}
		b.engine.SetMapInfo(info)
		b.schedulePersist()
	}
	b.after()
	return ok()
}

func (b *bridge) zoomIn(_ js.Value, _ []js.Value) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.engine.Viewport().ZoomIn()
	b.after()
	return nil
}

func (b *bridge) zoomOut(_ js.Value, _ []js.Value) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.engine.Viewport().ZoomOut()
	b.after()
	return nil
}

func (b *bridge) resetView(_ js.Value, _ []js.Value) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.engine.Viewport().Reset()
	b.after()
	return nil
}

// fitToContent(stageWidth, stageHeight) frames every shape, or the whole
// map when it is empty.
func (b *bridge) fitToContent(_ js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	info := b.engine.MapInfo()
	bounds := geom.Rect{Width: float64(info.Width), Height: float64(info.Height)}
	if shapes := b.engine.Shapes(); len(shapes) > 0 {
		bounds = shapes[0].Bounds()
		for _, s := range shapes[1:] {
			bounds = bounds.Union(s.Bounds())
		}
	}
	b.engine.Viewport().FitRect(bounds, args[0].Float(), args[1].Float(), 40)
	b.after()
	return nil
}

// registerHandle(id, value) ties a page-side object (a canvas node, a DOM
// element) to a shape ID.
func (b *bridge) registerHandle(_ js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handles.Register(args[0].String(), args[1])
	return nil
}

func (b *bridge) unregisterHandle(_ js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handles.Unregister(args[0].String())
	return nil
}

// onUpdate(fn) registers the page callback invoked with "local", "load" or
// "remote" after state changes.
func (b *bridge) onUpdate(_ js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listener = args[0]
	return nil
}

func (b *bridge) hasShape(id string) bool {
	_, found := b.engine.Shape(id)
	return found
}

// --- Queries ---

func (b *bridge) render(_ js.Value, _ []js.Value) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	out, err := b.engine.RenderJSON()
	if err != nil {
		return fail(err.Error())
	}
	return js.ValueOf(out)
}

func (b *bridge) getState(_ js.Value, _ []js.Value) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return js.ValueOf(b.engine.StateJSON())
}

func (b *bridge) getDocument(_ js.Value, _ []js.Value) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return jsonValue(b.engine.Document())
}

func (b *bridge) getSelection(_ js.Value, _ []js.Value) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return jsonValue(b.engine.Selection())
}

func (b *bridge) getSelectionBounds(_ js.Value, _ []js.Value) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.engine.Selection()) == 0 {
		return js.Null()
	}
	return jsonValue(b.engine.SelectionBounds())
}

func (b *bridge) hitTest(_ js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return js.ValueOf("")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id, _ := b.engine.HitTest(geom.Pt(args[0].Float(), args[1].Float()))
	return js.ValueOf(id)
}

func (b *bridge) isSelected(_ js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf(false)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return js.ValueOf(b.engine.IsSelected(args[0].String()))
}

// resolveHandles(idsJSON) returns the registered handles for ids, skipping
// unknown ones. With no argument it resolves the selection.
func (b *bridge) resolveHandles(_ js.Value, args []js.Value) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := b.engine.Selection()
	if len(args) > 0 && args[0].Type() == js.TypeString {
		parsed, err := parseIDs(args[0])
		if err != nil {
			return fail("invalid ids JSON: " + err.Error())
		}
		ids = parsed
	}
	handles := b.handles.Resolve(ids)
	out := make([]interface{}, len(handles))
	for i, h := range handles {
		out[i] = h
	}
	return js.ValueOf(out)
}

func jsonValue(v interface{}) interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return fail(err.Error())
	}
	return js.ValueOf(string(data))
}
