package geom

import "math"

// Rect represents an axis-aligned box. A normalized rect has non-negative
// width and height.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// RectFromPoints returns the normalized bounding box of two corners,
// whatever the order they were given in.
func RectFromPoints(a, b Point) Rect {
	minX := math.Min(a.X, b.X)
	minY := math.Min(a.Y, b.Y)
	return Rect{
		X:      minX,
		Y:      minY,
		Width:  math.Max(a.X, b.X) - minX,
		Height: math.Max(a.Y, b.Y) - minY,
	}
}

// Normalize flips negative width/height so the rect covers the same area
// with a top-left origin.
func (r Rect) Normalize() Rect {
	return RectFromPoints(Point{r.X, r.Y}, Point{r.X + r.Width, r.Y + r.Height})
}

// Max returns the bottom-right corner.
func (r Rect) Max() Point {
	return Point{X: r.X + r.Width, Y: r.Y + r.Height}
}

// Contains checks if a point is inside the rect, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.Width && p.Y >= r.Y && p.Y <= r.Y+r.Height
}

// Intersects reports whether two normalized rects overlap. Touching edges
// count as overlap: the boxes intersect unless there is a gap on some axis.
func (r Rect) Intersects(other Rect) bool {
	return !(other.X > r.X+r.Width ||
		other.X+other.Width < r.X ||
		other.Y > r.Y+r.Height ||
		other.Y+other.Height < r.Y)
}

// IsEmpty checks if the rect has zero or negative area.
func (r Rect) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Union returns the smallest rect containing both rects.
func (r Rect) Union(other Rect) Rect {
	if r.IsEmpty() {
		return other
	}
	if other.IsEmpty() {
		return r
	}

	minX := min(r.X, other.X)
	minY := min(r.Y, other.Y)
	maxX := max(r.X+r.Width, other.X+other.Width)
	maxY := max(r.Y+r.Height, other.Y+other.Height)

	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Translate returns the rect moved by d.
func (r Rect) Translate(d Point) Rect {
	r.X += d.X
	r.Y += d.Y
	return r
}

// Center returns the center point of the rect.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Corners returns the four corners clockwise from the top-left.
func (r Rect) Corners() [4]Point {
	return [4]Point{
		{r.X, r.Y},
		{r.X + r.Width, r.Y},
		{r.X + r.Width, r.Y + r.Height},
		{r.X, r.Y + r.Height},
	}
}
