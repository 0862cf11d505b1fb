package viewport

import (
	"math"

	"github.com/stargety/oasis-mapeditor/internal/geom"
)

const (
	// ZoomStep is the factor applied by one ZoomIn/ZoomOut.
	ZoomStep = 1.2

	// WheelSensitivity scales wheel deltaY into an exponential zoom factor.
	WheelSensitivity = 0.001
)

// PanTrigger identifies what started a pointer gesture.
type PanTrigger int

const (
	TriggerNone PanTrigger = iota
	TriggerMiddleButton
	TriggerPanTool
)

// Controller holds the viewport and the pan gesture state.
// It is not safe for concurrent use; it lives on the UI thread.
type Controller struct {
	vp Viewport

	panning  bool
	lastPan  geom.Point
	onChange func(Viewport)
}

// NewController creates a controller with the default viewport.
func NewController() *Controller {
	return &Controller{vp: Default()}
}

// OnChange registers a callback invoked after every viewport mutation.
func (c *Controller) OnChange(fn func(Viewport)) {
	c.onChange = fn
}

// Viewport returns the current viewport.
func (c *Controller) Viewport() Viewport {
	return c.vp
}

// Zoom returns the current zoom.
func (c *Controller) Zoom() float64 {
	return c.vp.Zoom
}

// IsPanning reports whether a pan gesture is in progress.
func (c *Controller) IsPanning() bool {
	return c.panning
}

// Set replaces the viewport, clamping zoom.
func (c *Controller) Set(v Viewport) {
	v.Zoom = ClampZoom(v.Zoom)
	if !v.Pan.IsFinite() {
		v.Pan = c.vp.Pan
	}
	c.vp = v
	c.changed()
}

// Reset returns to zoom 1 with no pan.
func (c *Controller) Reset() {
	c.panning = false
	c.Set(Default())
}

// SetZoom sets the zoom level, keeping the pan offset.
func (c *Controller) SetZoom(z float64) {
	if c.vp.Zoom == ClampZoom(z) {
		return
	}
	c.vp.Zoom = ClampZoom(z)
	c.changed()
}

// ZoomIn increases the zoom level by one step.
func (c *Controller) ZoomIn() {
	c.SetZoom(c.vp.Zoom * ZoomStep)
}

// ZoomOut decreases the zoom level by one step.
func (c *Controller) ZoomOut() {
	c.SetZoom(c.vp.Zoom / ZoomStep)
}

// Wheel zooms proportionally to deltaY (negative zooms in) keeping the
// world point under cursor fixed on screen.
func (c *Controller) Wheel(deltaY float64, cursor geom.Point) {
	if math.IsNaN(deltaY) || math.IsInf(deltaY, 0) || deltaY == 0 {
		return
	}
	c.ZoomAt(c.vp.Zoom*math.Exp(-deltaY*WheelSensitivity), cursor)
}

// ZoomAt sets zoom to z (clamped) and recomputes pan so the world point
// under anchor stays at anchor.
func (c *Controller) ZoomAt(z float64, anchor geom.Point) {
	z = ClampZoom(z)
	if z == c.vp.Zoom {
		return
	}
	if !anchor.IsFinite() {
		c.SetZoom(z)
		return
	}
	world := ScreenToWorld(anchor, c.vp)
	c.vp.Zoom = z
	c.vp.Pan = geom.Point{
		X: anchor.X - world.X*z,
		Y: anchor.Y - world.Y*z,
	}
	c.changed()
}

// BeginPan starts a pan gesture when trigger allows it. It returns whether
// the gesture started.
func (c *Controller) BeginPan(at geom.Point, trigger PanTrigger) bool {
	if trigger != TriggerMiddleButton && trigger != TriggerPanTool {
		return false
	}
	if !at.IsFinite() {
		return false
	}
	c.panning = true
	c.lastPan = at
	return true
}

// PanTo moves the viewport by the pointer delta since the previous frame.
// Outside a pan gesture it does nothing.
func (c *Controller) PanTo(at geom.Point) {
	if !c.panning || !at.IsFinite() {
		return
	}
	delta := at.Sub(c.lastPan)
	c.lastPan = at
	if delta.X == 0 && delta.Y == 0 {
		return
	}
	c.vp.Pan = c.vp.Pan.Add(delta)
	c.changed()
}

// EndPan finishes the pan gesture.
func (c *Controller) EndPan() {
	c.panning = false
}

// PanBy shifts the viewport by a screen-space offset.
func (c *Controller) PanBy(dx, dy float64) {
	d := geom.Pt(dx, dy)
	if !d.IsFinite() {
		return
	}
	c.vp.Pan = c.vp.Pan.Add(d)
	c.changed()
}

// FitRect zooms and pans so world rect r fills a screen of the given size
// with padding pixels on every side.
func (c *Controller) FitRect(r geom.Rect, screenW, screenH, padding float64) {
	r = r.Normalize()
	availW := screenW - 2*padding
	availH := screenH - 2*padding
	if r.IsEmpty() || availW <= 0 || availH <= 0 {
		return
	}
	z := ClampZoom(math.Min(availW/r.Width, availH/r.Height))
	center := r.Center()
	c.vp = Viewport{
		Zoom: z,
		Pan:  geom.Pt(screenW/2-center.X*z, screenH/2-center.Y*z),
	}
	c.changed()
}

func (c *Controller) changed() {
	if c.onChange != nil {
		c.onChange(c.vp)
	}
}
