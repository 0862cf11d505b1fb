package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stargety/oasis-mapeditor/internal/geom"
	"github.com/stargety/oasis-mapeditor/internal/shape"
	"github.com/stargety/oasis-mapeditor/internal/viewport"
)

func rectShape(id string, x, y, w, h float64) shape.Shape {
	return shape.New(id, shape.CategoryCollision, shape.RectGeometry(geom.Rect{X: x, Y: y, Width: w, Height: h}))
}

func TestClickToggleReplace(t *testing.T) {
	s := New()

	assert.True(t, s.HandleShapeClick("A", Modifiers{}))
	assert.True(t, s.HandleShapeClick("B", Modifiers{Ctrl: true}))
	assert.Equal(t, []string{"A", "B"}, s.IDs())

	assert.True(t, s.HandleShapeClick("C", Modifiers{}))
	assert.Equal(t, []string{"C"}, s.IDs())

	s.HandleShapeClick("D", Modifiers{Meta: true})
	s.HandleShapeClick("C", Modifiers{Meta: true})
	assert.Equal(t, []string{"D"}, s.IDs())
}

func TestEmptyIDIsNoop(t *testing.T) {
	s := New()
	s.HandleShapeClick("A", Modifiers{})
	assert.False(t, s.HandleShapeClick("", Modifiers{}))
	s.Remove("missing")
	assert.Equal(t, []string{"A"}, s.IDs())
}

func TestStageClick(t *testing.T) {
	s := New()
	s.Select([]string{"A", "B"})

	s.HandleStageClick(true)
	assert.Equal(t, 2, s.Len())

	s.HandleStageClick(false)
	assert.Zero(t, s.Len())
	assert.False(t, s.IsSelected("A"))
}

func TestIsSelectedIdempotent(t *testing.T) {
	s := New()
	s.Select([]string{"A"})
	for i := 0; i < 5; i++ {
		assert.True(t, s.IsSelected("A"))
		assert.False(t, s.IsSelected("B"))
	}
}

func TestOnChangeOnlyForEffectiveChanges(t *testing.T) {
	s := New()
	var got [][]string
	s.OnChange(func(ids []string) { got = append(got, ids) })

	s.Clear()
	s.HandleShapeClick("A", Modifiers{})
	s.HandleShapeClick("A", Modifiers{})
	s.Remove("B")

	require.Len(t, got, 1)
	assert.Equal(t, []string{"A"}, got[0])
}

func TestMarqueeSelectsIntersecting(t *testing.T) {
	shapes := []shape.Shape{
		rectShape("inside", 20, 20, 10, 10),
		rectShape("partial", 90, 90, 40, 40),
		shape.New("poly-touch", shape.CategoryInteractive, shape.PolygonGeometry([]geom.Point{
			{X: 95, Y: 50}, {X: 200, Y: 40}, {X: 200, Y: 70},
		})),
		rectShape("outside", 300, 300, 10, 10),
		shape.New("poly-outside", shape.CategoryInteractive, shape.PolygonGeometry([]geom.Point{
			{X: 150, Y: 150}, {X: 200, Y: 150}, {X: 200, Y: 200},
		})),
	}

	s := New()
	s.Select([]string{"outside"})

	s.BeginMarquee(geom.Pt(100, 100))
	s.UpdateMarquee(geom.Pt(50, 50))
	s.UpdateMarquee(geom.Pt(10, 10)) // reverse drag direction

	box, ok := s.Marquee()
	require.True(t, ok)
	assert.Equal(t, geom.Rect{X: 10, Y: 10, Width: 90, Height: 90}, box)

	dragged := s.EndMarquee(shapes, viewport.Default())
	assert.True(t, dragged)
	assert.Equal(t, []string{"inside", "partial", "poly-touch"}, s.IDs(), "replaces the previous selection")
}

func TestMarqueeUsesViewport(t *testing.T) {
	shapes := []shape.Shape{rectShape("a", 100, 100, 10, 10)}
	vp := viewport.Viewport{Zoom: 2, Pan: geom.Pt(-100, -100)}

	s := New()
	// World box (100,100)-(110,110) is screen (100,100)-(120,120).
	s.BeginMarquee(geom.Pt(95, 95))
	s.UpdateMarquee(geom.Pt(125, 125))
	require.True(t, s.EndMarquee(shapes, vp))
	assert.Equal(t, []string{"a"}, s.IDs())
}

func TestMarqueeBelowThresholdIsStageClick(t *testing.T) {
	s := New()
	s.Select([]string{"A"})

	s.BeginMarquee(geom.Pt(10, 10))
	s.UpdateMarquee(geom.Pt(12, 13))
	_, visible := s.Marquee()
	assert.False(t, visible)

	dragged := s.EndMarquee(nil, viewport.Default())
	assert.False(t, dragged)
	assert.Zero(t, s.Len())
}

func TestCancelMarquee(t *testing.T) {
	s := New()
	s.Select([]string{"A"})
	s.BeginMarquee(geom.Pt(0, 0))
	s.UpdateMarquee(geom.Pt(50, 50))
	s.CancelMarquee()

	assert.False(t, s.EndMarquee(nil, viewport.Default()))
	assert.Equal(t, []string{"A"}, s.IDs())
}
