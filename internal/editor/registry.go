package editor

// Registry maps shape IDs to renderer-side handles (canvas nodes, DOM
// elements) so the UI can resolve the selection to concrete objects. It
// replaces per-shape ref bookkeeping in the view layer.
type Registry[H any] struct {
	handles map[string]H
}

func NewRegistry[H any]() *Registry[H] {
	return &Registry[H]{handles: make(map[string]H)}
}

// Register binds id to h, replacing any previous handle.
func (r *Registry[H]) Register(id string, h H) {
	if id == "" {
		return
	}
	r.handles[id] = h
}

func (r *Registry[H]) Unregister(id string) {
	delete(r.handles, id)
}

func (r *Registry[H]) Lookup(id string) (H, bool) {
	h, ok := r.handles[id]
	return h, ok
}

// Resolve returns the handles of ids in order, skipping unknown IDs.
func (r *Registry[H]) Resolve(ids []string) []H {
	out := make([]H, 0, len(ids))
	for _, id := range ids {
		if h, ok := r.handles[id]; ok {
			out = append(out, h)
		}
	}
	return out
}

// Prune drops every handle whose ID keep rejects.
func (r *Registry[H]) Prune(keep func(id string) bool) int {
	n := 0
	for id := range r.handles {
		if !keep(id) {
			delete(r.handles, id)
			n++
		}
	}
	return n
}

func (r *Registry[H]) Len() int {
	return len(r.handles)
}

// Track keeps the registry in step with e by dropping handles of deleted
// shapes.
func (r *Registry[H]) Track(e *Engine) {
	e.OnChange(func(c Change) {
		if c.Kind == ChangeDeleted {
			r.Unregister(c.ShapeID)
		}
	})
}
