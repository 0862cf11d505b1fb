//go:build js && wasm

package main

import (
	"syscall/js"
)

func main() {
	b := newBridge()
	b.restore()

	api := js.Global().Get("Object").New()

	// --- Commands (frontend → editor) ---
	api.Set("loadDocument", js.FuncOf(b.loadDocument))
	api.Set("loadSampleDocument", js.FuncOf(b.loadSampleDocument))
	api.Set("newDocument", js.FuncOf(b.newDocument))
	api.Set("setTool", js.FuncOf(b.setTool))
	api.Set("setDrawCategory", js.FuncOf(b.setDrawCategory))
	api.Set("pointerDown", js.FuncOf(b.pointerDown))
	api.Set("pointerMove", js.FuncOf(b.pointerMove))
	api.Set("pointerUp", js.FuncOf(b.pointerUp))
	api.Set("doubleClick", js.FuncOf(b.doubleClick))
	api.Set("wheel", js.FuncOf(b.wheel))
	api.Set("keyDown", js.FuncOf(b.keyDown))
	api.Set("select", js.FuncOf(b.selectShapes))
	api.Set("clearSelection", js.FuncOf(b.clearSelection))
	api.Set("deleteShapes", js.FuncOf(b.deleteShapes))
	api.Set("setStyle", js.FuncOf(b.setStyle))
	api.Set("setCategory", js.FuncOf(b.setCategory))
	api.Set("setMetadata", js.FuncOf(b.setMetadata))
	api.Set("resizeRect", js.FuncOf(b.resizeRect))
	api.Set("moveVertex", js.FuncOf(b.moveVertex))
	api.Set("insertVertex", js.FuncOf(b.insertVertex))
	api.Set("removeVertex", js.FuncOf(b.removeVertex))
	api.Set("renameMap", js.FuncOf(b.renameMap))
	api.Set("updateMap", js.FuncOf(b.updateMap))
	api.Set("zoomIn", js.FuncOf(b.zoomIn))
	api.Set("zoomOut", js.FuncOf(b.zoomOut))
	api.Set("resetView", js.FuncOf(b.resetView))
	api.Set("fitToContent", js.FuncOf(b.fitToContent))
	api.Set("registerHandle", js.FuncOf(b.registerHandle))
	api.Set("unregisterHandle", js.FuncOf(b.unregisterHandle))
	api.Set("onUpdate", js.FuncOf(b.onUpdate))
	api.Set("connect", js.FuncOf(b.connect))
	api.Set("disconnect", js.FuncOf(b.disconnect))

	// --- Queries (frontend ← editor) ---
	api.Set("render", js.FuncOf(b.render))
	api.Set("getState", js.FuncOf(b.getState))
	api.Set("getDocument", js.FuncOf(b.getDocument))
	api.Set("getSelection", js.FuncOf(b.getSelection))
	api.Set("getSelectionBounds", js.FuncOf(b.getSelectionBounds))
	api.Set("hitTest", js.FuncOf(b.hitTest))
	api.Set("isSelected", js.FuncOf(b.isSelected))
	api.Set("resolveHandles", js.FuncOf(b.resolveHandles))
	api.Set("getPeers", js.FuncOf(b.getPeers))
	api.Set("isConnected", js.FuncOf(b.isConnected))

	js.Global().Set("oasisMapEditor", api)
	js.Global().Set("oasisMapEditorReady", js.ValueOf(true))

	// Keep Go runtime alive
	select {}
}
