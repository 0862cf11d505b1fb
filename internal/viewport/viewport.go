// Package viewport maps between screen space (pixels on the rendering
// surface) and world space (the map's own coordinates) and owns the zoom
// and pan state that drives that mapping.
package viewport

import (
	"github.com/stargety/oasis-mapeditor/internal/geom"
)

const (
	MinZoom = 0.1
	MaxZoom = 5.0
)

// Viewport is the current zoom level and pan offset. Pan is in screen
// pixels: world origin is drawn at screen point Pan.
type Viewport struct {
	Zoom float64    `json:"zoom"`
	Pan  geom.Point `json:"pan"`
}

// Default returns the unzoomed, unpanned viewport.
func Default() Viewport {
	return Viewport{Zoom: 1}
}

// ScreenToWorld converts a screen point into world coordinates.
func ScreenToWorld(s geom.Point, v Viewport) geom.Point {
	return geom.Point{
		X: (s.X - v.Pan.X) / v.Zoom,
		Y: (s.Y - v.Pan.Y) / v.Zoom,
	}
}

// WorldToScreen is the inverse of ScreenToWorld.
func WorldToScreen(w geom.Point, v Viewport) geom.Point {
	return geom.Point{
		X: w.X*v.Zoom + v.Pan.X,
		Y: w.Y*v.Zoom + v.Pan.Y,
	}
}

// ScreenRectToWorld converts a screen-space box into world space.
func ScreenRectToWorld(r geom.Rect, v Viewport) geom.Rect {
	return geom.RectFromPoints(
		ScreenToWorld(geom.Pt(r.X, r.Y), v),
		ScreenToWorld(r.Max(), v),
	)
}

// Matrix returns the world-to-screen mapping as an affine matrix.
func (v Viewport) Matrix() geom.Matrix2D {
	return geom.Translate(v.Pan.X, v.Pan.Y).Multiply(geom.Scale(v.Zoom, v.Zoom))
}

// WorldDistance converts a screen-space length to world units at the
// current zoom, so pixel-sized tolerances stay constant on screen.
func (v Viewport) WorldDistance(screenPx float64) float64 {
	return screenPx / v.Zoom
}

// ClampZoom limits z to [MinZoom, MaxZoom]. NaN maps to MinZoom.
func ClampZoom(z float64) float64 {
	if z != z || z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}
