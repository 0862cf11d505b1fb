package editor

import "github.com/stargety/oasis-mapeditor/internal/shape"

type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// Change describes one shape mutation. Before is nil for creations, After
// is nil for deletions.
type Change struct {
	Kind    ChangeKind   `json:"kind"`
	ShapeID string       `json:"shapeId"`
	Before  *shape.Shape `json:"before,omitempty"`
	After   *shape.Shape `json:"after,omitempty"`
}

func (e *Engine) emit(c Change) {
	for _, fn := range e.listeners {
		fn(c)
	}
}

func (e *Engine) emitCreated(s shape.Shape) {
	after := s.Clone()
	e.emit(Change{Kind: ChangeCreated, ShapeID: s.ID, After: &after})
}

func (e *Engine) emitUpdated(before, after shape.Shape) {
	b, a := before.Clone(), after.Clone()
	e.emit(Change{Kind: ChangeUpdated, ShapeID: after.ID, Before: &b, After: &a})
}

func (e *Engine) emitDeleted(before shape.Shape) {
	b := before.Clone()
	e.emit(Change{Kind: ChangeDeleted, ShapeID: before.ID, Before: &b})
}
