// Package selection tracks which shapes are selected and turns clicks and
// drag-marquees into selection changes.
package selection

import (
	"math"

	"github.com/stargety/oasis-mapeditor/internal/geom"
	"github.com/stargety/oasis-mapeditor/internal/shape"
	"github.com/stargety/oasis-mapeditor/internal/viewport"
)

// DefaultDragThreshold is how far, in screen pixels, the pointer must move
// before a press on empty canvas becomes a marquee instead of a click.
const DefaultDragThreshold = 3.0

// Modifiers are the keyboard modifiers held during a pointer event.
type Modifiers struct {
	Ctrl  bool `json:"ctrl"`
	Meta  bool `json:"meta"`
	Shift bool `json:"shift"`
	Alt   bool `json:"alt"`
}

// Toggle reports whether the click should toggle rather than replace.
func (m Modifiers) Toggle() bool {
	return m.Ctrl || m.Meta
}

// Set is an insertion-ordered set of shape IDs.
type Set struct {
	ids    []string
	member map[string]struct{}

	marquee       bool
	marqueeStart  geom.Point
	marqueeEnd    geom.Point
	marqueeActive bool
	threshold     float64

	onChange func([]string)
}

func New() *Set {
	return &Set{
		member:    make(map[string]struct{}),
		threshold: DefaultDragThreshold,
	}
}

// OnChange registers a callback run after every effective change.
func (s *Set) OnChange(fn func([]string)) {
	s.onChange = fn
}

// SetDragThreshold overrides the marquee threshold in screen pixels.
func (s *Set) SetDragThreshold(px float64) {
	if px >= 0 {
		s.threshold = px
	}
}

// IsSelected is an O(1) membership test.
func (s *Set) IsSelected(id string) bool {
	_, ok := s.member[id]
	return ok
}

// IDs returns the selection in selection order.
func (s *Set) IDs() []string {
	return append([]string(nil), s.ids...)
}

func (s *Set) Len() int {
	return len(s.ids)
}

// HandleShapeClick applies a click on a shape. With ctrl/cmd held it
// toggles id, otherwise it replaces the selection with id. It returns true
// when the click was consumed so the caller does not forward it to the
// stage handler.
func (s *Set) HandleShapeClick(id string, mods Modifiers) bool {
	if id == "" {
		return false
	}
	if mods.Toggle() {
		if s.IsSelected(id) {
			s.remove(id)
		} else {
			s.add(id)
		}
		s.changed()
		return true
	}
	if len(s.ids) == 1 && s.ids[0] == id {
		return true
	}
	s.reset()
	s.add(id)
	s.changed()
	return true
}

// HandleStageClick clears the selection when the click hit empty canvas.
func (s *Set) HandleStageClick(onShape bool) {
	if onShape {
		return
	}
	s.Clear()
}

// Select replaces the selection with ids, skipping empties and repeats.
func (s *Set) Select(ids []string) {
	s.reset()
	for _, id := range ids {
		if id != "" && !s.IsSelected(id) {
			s.add(id)
		}
	}
	s.changed()
}

// Clear empties the selection.
func (s *Set) Clear() {
	if len(s.ids) == 0 {
		return
	}
	s.reset()
	s.changed()
}

// Remove drops id, e.g. after the shape was deleted. Unknown IDs are ignored.
func (s *Set) Remove(id string) {
	if !s.IsSelected(id) {
		return
	}
	s.remove(id)
	s.changed()
}

// Retain drops every selected ID for which keep returns false.
func (s *Set) Retain(keep func(string) bool) {
	var dropped bool
	for _, id := range s.IDs() {
		if !keep(id) {
			s.remove(id)
			dropped = true
		}
	}
	if dropped {
		s.changed()
	}
}

func (s *Set) add(id string) {
	s.member[id] = struct{}{}
	s.ids = append(s.ids, id)
}

func (s *Set) remove(id string) {
	delete(s.member, id)
	for i, v := range s.ids {
		if v == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			return
		}
	}
}

func (s *Set) reset() {
	s.ids = nil
	s.member = make(map[string]struct{})
}

func (s *Set) changed() {
	if s.onChange != nil {
		s.onChange(s.IDs())
	}
}

// Intersecting returns the IDs of shapes touched by the world-space box.
func Intersecting(shapes []shape.Shape, box geom.Rect) []string {
	var ids []string
	for _, sh := range shapes {
		if sh.Geometry.IntersectsBox(box) {
			ids = append(ids, sh.ID)
		}
	}
	return ids
}

// BeginMarquee starts tracking a press on empty canvas at a screen point.
func (s *Set) BeginMarquee(screen geom.Point) {
	s.marquee = true
	s.marqueeActive = false
	s.marqueeStart = screen
	s.marqueeEnd = screen
}

// UpdateMarquee follows the pointer. The marquee becomes visible once the
// pointer moved past the drag threshold on either axis.
func (s *Set) UpdateMarquee(screen geom.Point) {
	if !s.marquee || !screen.IsFinite() {
		return
	}
	s.marqueeEnd = screen
	d := screen.Sub(s.marqueeStart)
	if !s.marqueeActive && (math.Abs(d.X) > s.threshold || math.Abs(d.Y) > s.threshold) {
		s.marqueeActive = true
	}
}

// Marquee returns the live screen-space selection box while dragging.
func (s *Set) Marquee() (geom.Rect, bool) {
	if !s.marquee || !s.marqueeActive {
		return geom.Rect{}, false
	}
	return geom.RectFromPoints(s.marqueeStart, s.marqueeEnd), true
}

// EndMarquee finishes the gesture. After a real drag the shapes
// intersecting the box replace the selection and dragged is true. A press
// that never passed the threshold is a click on empty canvas and clears
// the selection.
func (s *Set) EndMarquee(shapes []shape.Shape, vp viewport.Viewport) (dragged bool) {
	box, active := s.Marquee()
	tracking := s.marquee
	s.marquee = false
	s.marqueeActive = false
	if !tracking {
		return false
	}
	if !active {
		s.HandleStageClick(false)
		return false
	}
	s.Select(Intersecting(shapes, viewport.ScreenRectToWorld(box, vp)))
	return true
}

// CancelMarquee abandons the gesture without touching the selection.
func (s *Set) CancelMarquee() {
	s.marquee = false
	s.marqueeActive = false
}
