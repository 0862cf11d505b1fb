package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRectFromPointsDirectionIndependent(t *testing.T) {
	want := Rect{X: 10, Y: 10, Width: 90, Height: 70}
	assert.Equal(t, want, RectFromPoints(Pt(10, 10), Pt(100, 80)))
	assert.Equal(t, want, RectFromPoints(Pt(100, 80), Pt(10, 10)))
	assert.Equal(t, want, RectFromPoints(Pt(100, 10), Pt(10, 80)))
	assert.Equal(t, want, Rect{X: 100, Y: 80, Width: -90, Height: -70}.Normalize())
}

func TestRectIntersects(t *testing.T) {
	box := Rect{X: 0, Y: 0, Width: 10, Height: 10}

	tests := []struct {
		name  string
		other Rect
		want  bool
	}{
		{"inside", Rect{X: 2, Y: 2, Width: 2, Height: 2}, true},
		{"partial", Rect{X: 5, Y: 5, Width: 10, Height: 10}, true},
		{"touching edge", Rect{X: 10, Y: 0, Width: 5, Height: 5}, true},
		{"gap right", Rect{X: 11, Y: 0, Width: 5, Height: 5}, false},
		{"gap above", Rect{X: 0, Y: -6, Width: 5, Height: 5}, false},
		{"covering", Rect{X: -5, Y: -5, Width: 30, Height: 30}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, box.Intersects(tt.other))
			assert.Equal(t, tt.want, tt.other.Intersects(box))
		})
	}
}

func TestPointInPolygon(t *testing.T) {
	square := []Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	assert.True(t, PointInPolygon(Pt(5, 5), square))
	assert.False(t, PointInPolygon(Pt(15, 5), square))
	assert.False(t, PointInPolygon(Pt(5, 5), square[:2]))
}

func TestMatrixApply(t *testing.T) {
	m := Translate(30, -12).Multiply(Scale(2.5, 2.5))
	got := m.Apply(Pt(7, 9))
	assert.True(t, got.ApproxEqual(Pt(47.5, 10.5), 1e-9), "got %v", got)
	assert.Equal(t, []float64{2.5, 0, 0, 2.5, 30, -12}, m.ToSlice())
}

func TestBoundingBox(t *testing.T) {
	r := BoundingBox([]Point{{5, 1}, {-3, 4}, {2, 9}})
	assert.Equal(t, Rect{X: -3, Y: 1, Width: 8, Height: 8}, r)
	assert.Equal(t, Rect{}, BoundingBox(nil))
}

func TestPointNear(t *testing.T) {
	assert.True(t, Pt(0, 0).Near(Pt(3, 4), 5))
	assert.False(t, Pt(0, 0).Near(Pt(3, 4.01), 5))
}
