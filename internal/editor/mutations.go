package editor

import (
	"github.com/stargety/oasis-mapeditor/internal/geom"
	"github.com/stargety/oasis-mapeditor/internal/shape"
)

// AddShape appends a valid shape on top. Invalid shapes and duplicate IDs
// are refused.
func (e *Engine) AddShape(s shape.Shape) bool {
	if s.Validate() != nil || !e.shapes.Add(s) {
		return false
	}
	e.emitCreated(s)
	return true
}

// DeleteShapes removes ids and drops them from the selection. It returns
// how many shapes were removed.
func (e *Engine) DeleteShapes(ids []string) int {
	n := 0
	for _, id := range ids {
		removed, ok := e.shapes.Remove(id)
		if !ok {
			continue
		}
		e.selection.Remove(id)
		e.emitDeleted(removed)
		n++
	}
	return n
}

// MoveShapes translates ids by a world-space delta.
func (e *Engine) MoveShapes(ids []string, d geom.Point) int {
	if !d.IsFinite() || (d.X == 0 && d.Y == 0) {
		return 0
	}
	n := 0
	for _, id := range ids {
		if e.mutate(id, func(s *shape.Shape) bool {
			s.Geometry = s.Geometry.Translate(d)
			return true
		}) {
			n++
		}
	}
	return n
}

// ResizeRect replaces a rectangle's box. The box must stay above the
// minimum size.
func (e *Engine) ResizeRect(id string, r geom.Rect) bool {
	r = r.Normalize()
	if !r.Max().IsFinite() || !geom.Pt(r.X, r.Y).IsFinite() {
		return false
	}
	return e.mutate(id, func(s *shape.Shape) bool {
		if s.Geometry.Kind != shape.KindRect {
			return false
		}
		g := shape.RectGeometry(r)
		if !g.Valid() {
			return false
		}
		s.Geometry = g
		return true
	})
}

// MoveVertex places polygon vertex i at world point p.
func (e *Engine) MoveVertex(id string, i int, p geom.Point) bool {
	if !p.IsFinite() {
		return false
	}
	return e.mutate(id, func(s *shape.Shape) bool {
		poly := &s.Geometry.Polygon
		if s.Geometry.Kind != shape.KindPolygon || i < 0 || i >= len(poly.Points) {
			return false
		}
		poly.Points[i] = p.Sub(poly.Origin)
		return true
	})
}

// InsertVertex inserts world point p before index i. i == len appends.
func (e *Engine) InsertVertex(id string, i int, p geom.Point) bool {
	if !p.IsFinite() {
		return false
	}
	return e.mutate(id, func(s *shape.Shape) bool {
		poly := &s.Geometry.Polygon
		if s.Geometry.Kind != shape.KindPolygon || i < 0 || i > len(poly.Points) {
			return false
		}
		poly.Points = append(poly.Points, geom.Point{})
		copy(poly.Points[i+1:], poly.Points[i:])
		poly.Points[i] = p.Sub(poly.Origin)
		return true
	})
}

// RemoveVertex deletes vertex i, refusing to go below the polygon minimum.
func (e *Engine) RemoveVertex(id string, i int) bool {
	return e.mutate(id, func(s *shape.Shape) bool {
		poly := &s.Geometry.Polygon
		if s.Geometry.Kind != shape.KindPolygon || i < 0 || i >= len(poly.Points) {
			return false
		}
		if len(poly.Points) <= shape.MinPolygonPoints {
			return false
		}
		poly.Points = append(poly.Points[:i], poly.Points[i+1:]...)
		return true
	})
}

func (e *Engine) SetStyle(id string, style shape.Style) bool {
	return e.mutate(id, func(s *shape.Shape) bool {
		if s.Style == style {
			return false
		}
		s.Style = style
		return true
	})
}

// SetCategory changes a shape's category and resets it to that
// category's default style.
func (e *Engine) SetCategory(id string, c shape.Category) bool {
	if _, err := shape.ParseCategory(string(c)); err != nil {
		return false
	}
	return e.mutate(id, func(s *shape.Shape) bool {
		if s.Category == c {
			return false
		}
		s.Category = c
		s.Style = shape.DefaultStyle(c)
		return true
	})
}

// SetMetadata sets key to value. An empty value deletes the key.
func (e *Engine) SetMetadata(id, key, value string) bool {
	if key == "" {
		return false
	}
	return e.mutate(id, func(s *shape.Shape) bool {
		old, had := s.Metadata[key]
		if value == "" {
			if !had {
				return false
			}
			delete(s.Metadata, key)
			return true
		}
		if had && old == value {
			return false
		}
		if s.Metadata == nil {
			s.Metadata = map[string]string{}
		}
		s.Metadata[key] = value
		return true
	})
}

// mutate runs fn on a working copy and stores it when fn reports a
// change, emitting an update. The stored shape is untouched on refusal.
func (e *Engine) mutate(id string, fn func(*shape.Shape) bool) bool {
	before, ok := e.shapes.Get(id)
	if !ok {
		return false
	}
	after := before.Clone()
	if !fn(&after) {
		return false
	}
	e.shapes.Upsert(after)
	e.emitUpdated(before, after)
	return true
}

// --- Remote ---

// ApplyRemote stores a shape received from a collaborator without
// emitting a change. A shape being dragged keeps following the pointer
// from its new position.
func (e *Engine) ApplyRemote(s shape.Shape) bool {
	if s.Validate() != nil {
		return false
	}
	if _, dragging := e.dragBefore[s.ID]; dragging && e.gesture == gestureMove {
		e.dragBefore[s.ID] = s.Clone()
		s.Geometry = s.Geometry.Translate(e.dragOffset())
	}
	e.shapes.Upsert(s)
	return true
}

// ApplyRemoteMove translates a shape moved by a collaborator without
// emitting a change.
func (e *Engine) ApplyRemoteMove(id string, d geom.Point) bool {
	if !d.IsFinite() {
		return false
	}
	if !e.shapes.Update(id, func(s *shape.Shape) {
		s.Geometry = s.Geometry.Translate(d)
	}) {
		return false
	}
	if before, dragging := e.dragBefore[id]; dragging {
		before.Geometry = before.Geometry.Translate(d)
		e.dragBefore[id] = before
	}
	return true
}

// ApplyRemoteDelete removes a shape deleted by a collaborator without
// emitting a change.
func (e *Engine) ApplyRemoteDelete(id string) bool {
	if _, ok := e.shapes.Remove(id); !ok {
		return false
	}
	e.selection.Remove(id)
	delete(e.dragBefore, id)
	return true
}
