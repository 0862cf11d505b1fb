package draw

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stargety/oasis-mapeditor/internal/geom"
	"github.com/stargety/oasis-mapeditor/internal/shape"
)

func seqIDs() IDFunc {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("shape_%d", n)
	}
}

func TestRectDrawCommit(t *testing.T) {
	want := geom.Rect{X: 10, Y: 10, Width: 90, Height: 70}

	for _, tc := range []struct {
		name       string
		start, end geom.Point
	}{
		{"forward", geom.Pt(10, 10), geom.Pt(100, 80)},
		{"reverse", geom.Pt(100, 80), geom.Pt(10, 10)},
		{"up-right", geom.Pt(10, 80), geom.Pt(100, 10)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tool := NewRectTool(seqIDs())
			tool.Category = shape.CategoryInteractive
			tool.Begin(tc.start)
			tool.Move(geom.Pt(500, 500))
			tool.Move(tc.end)

			preview, ok := tool.Preview()
			require.True(t, ok)
			assert.Equal(t, want, preview)

			s, ok := tool.Commit()
			require.True(t, ok)
			assert.Equal(t, shape.KindRect, s.Geometry.Kind)
			assert.Equal(t, want, s.Geometry.Rect)
			assert.Equal(t, shape.CategoryInteractive, s.Category)
			assert.Equal(t, shape.DefaultStyle(shape.CategoryInteractive), s.Style)
			assert.Equal(t, "shape_1", s.ID)
			assert.False(t, tool.IsDrawing())
		})
	}
}

func TestRectDrawBelowThresholdDropped(t *testing.T) {
	for _, end := range []geom.Point{
		geom.Pt(14, 13),  // within 5 on both axes
		geom.Pt(10, 10),  // zero size
		geom.Pt(200, 15), // thin strip
		geom.Pt(15, 200),
	} {
		tool := NewRectTool(seqIDs())
		tool.Begin(geom.Pt(10, 10))
		tool.Move(end)
		_, ok := tool.Commit()
		assert.False(t, ok, "end %v", end)
		assert.False(t, tool.IsDrawing())
	}
}

func TestRectIdleIgnoresInput(t *testing.T) {
	tool := NewRectTool(seqIDs())
	tool.Move(geom.Pt(50, 50))
	_, ok := tool.Preview()
	assert.False(t, ok)
	_, ok = tool.Commit()
	assert.False(t, ok)

	tool.Begin(geom.Pt(0, 0))
	tool.Move(geom.Pt(50, 50))
	tool.Cancel()
	_, ok = tool.Commit()
	assert.False(t, ok)
}

func TestPolygonCloseOnOrigin(t *testing.T) {
	tool := NewPolygonTool(seqIDs())
	for _, p := range []geom.Point{{X: 0, Y: 0}, {X: 50, Y: 0}, {X: 50, Y: 50}} {
		_, done := tool.Click(p, 1)
		require.False(t, done)
	}

	s, done := tool.Click(geom.Pt(3, -2), 1)
	require.True(t, done)
	assert.Equal(t, shape.KindPolygon, s.Geometry.Kind)
	assert.Equal(t, []geom.Point{{X: 0, Y: 0}, {X: 50, Y: 0}, {X: 50, Y: 50}}, s.Geometry.Polygon.Points)
	assert.Equal(t, geom.Point{}, s.Geometry.Polygon.Origin)
	assert.False(t, tool.IsDrawing())
}

func TestPolygonHitRadiusScalesWithZoom(t *testing.T) {
	tool := NewPolygonTool(seqIDs())
	for _, p := range []geom.Point{{X: 0, Y: 0}, {X: 50, Y: 0}, {X: 50, Y: 50}} {
		tool.Click(p, 4)
	}
	// 10px at zoom 4 is 2.5 world units, so (4,0) is not on the origin.
	_, done := tool.Click(geom.Pt(4, 0), 4)
	assert.False(t, done)
	assert.Equal(t, 4, tool.VertexCount())

	// At zoom 0.5 the radius is 20 world units.
	_, done = tool.Click(geom.Pt(15, 10), 0.5)
	assert.True(t, done)
}

func TestPolygonEnterNeedsThreeVertices(t *testing.T) {
	tool := NewPolygonTool(seqIDs())
	tool.Click(geom.Pt(0, 0), 1)
	tool.Click(geom.Pt(50, 0), 1)

	_, done := tool.Finish()
	assert.False(t, done)
	assert.True(t, tool.IsDrawing(), "a rejected finish keeps drawing")
	assert.Equal(t, 2, tool.VertexCount())

	tool.Click(geom.Pt(50, 50), 1)
	s, done := tool.Finish()
	require.True(t, done)
	assert.Len(t, s.Geometry.Polygon.Points, 3)
}

func TestPolygonDoubleClickDoesNotDuplicateVertex(t *testing.T) {
	tool := NewPolygonTool(seqIDs())
	tool.Click(geom.Pt(0, 0), 1)
	tool.Click(geom.Pt(50, 0), 1)
	tool.Click(geom.Pt(50, 50), 1)
	tool.Click(geom.Pt(50, 50), 1) // second click of the double click

	s, done := tool.Finish()
	require.True(t, done)
	assert.Len(t, s.Geometry.Polygon.Points, 3)
}

func TestPolygonCancel(t *testing.T) {
	tool := NewPolygonTool(seqIDs())
	tool.Click(geom.Pt(0, 0), 1)
	tool.Click(geom.Pt(50, 0), 1)
	tool.Click(geom.Pt(50, 50), 1)
	tool.Cancel()

	assert.False(t, tool.IsDrawing())
	assert.Zero(t, tool.VertexCount())
	_, done := tool.Finish()
	assert.False(t, done)
}

func TestPolygonPreview(t *testing.T) {
	tool := NewPolygonTool(seqIDs())
	_, ok := tool.Preview()
	assert.False(t, ok)

	tool.Click(geom.Pt(0, 0), 1)
	tool.Click(geom.Pt(50, 0), 1)
	tool.Move(geom.Pt(1, 1), 1)

	pv, ok := tool.Preview()
	require.True(t, ok)
	require.NotNil(t, pv.Line)
	assert.Equal(t, Segment{From: geom.Pt(50, 0), To: geom.Pt(1, 1)}, *pv.Line)
	assert.False(t, pv.OriginHovered, "cannot close with two vertices")
	assert.Nil(t, pv.Closing)

	tool.Click(geom.Pt(50, 50), 1)
	tool.Move(geom.Pt(2, 1), 1)
	pv, _ = tool.Preview()
	assert.True(t, pv.OriginHovered)
	require.NotNil(t, pv.Closing)
	assert.Equal(t, geom.Pt(0, 0), pv.Closing.To)
	assert.True(t, tool.State().IsOriginHovered)

	tool.Move(geom.Pt(30, 30), 1)
	pv, _ = tool.Preview()
	assert.False(t, pv.OriginHovered)
	assert.Nil(t, pv.Closing)
}
