// Package geom provides the 2D primitives shared by the map editor:
// points, axis-aligned rectangles, affine matrices and polygon helpers.
package geom

import "math"

// Point is a 2D point. Depending on context it is in screen or world space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns p + q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Scale returns p scaled by f.
func (p Point) Scale(f float64) Point {
	return Point{X: p.X * f, Y: p.Y * f}
}

// Near reports whether q lies within radius of p (inclusive).
func (p Point) Near(q Point, radius float64) bool {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx+dy*dy <= radius*radius
}

// IsFinite reports whether both coordinates are finite numbers.
func (p Point) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// ApproxEqual compares two points within eps on each axis.
func (p Point) ApproxEqual(q Point, eps float64) bool {
	return math.Abs(p.X-q.X) <= eps && math.Abs(p.Y-q.Y) <= eps
}
