package editor

import (
	"encoding/json"

	"github.com/stargety/oasis-mapeditor/internal/geom"
	"github.com/stargety/oasis-mapeditor/internal/shape"
)

// PathCommand is a path verb followed by its coordinates:
// ["M", x, y], ["L", x, y] or ["Z"].
type PathCommand []interface{}

// Roles tell the canvas layer what a command draws.
const (
	RoleShape        = "shape"
	RoleDraft        = "draft"
	RolePreviewLine  = "preview-line"
	RoleClosingLine  = "closing-line"
	RoleVertex       = "vertex"
	RoleOriginTarget = "origin-target"
	RoleMarquee      = "marquee"
)

// Overlay colours.
const (
	selectedStroke = "#facc15"
	draftStroke    = "#f9fafb"
	marqueeFill    = "rgba(96, 165, 250, 0.15)"
	marqueeStroke  = "#60a5fa"
	originFill     = "#22c55e"
)

// DrawCommand is a single drawing operation for the canvas layer. World
// commands are drawn under the frame's viewport transform; Screen commands
// are drawn in stage pixels.
type DrawCommand struct {
	Op          string        `json:"op"` // "path"
	Role        string        `json:"role"`
	ShapeID     string        `json:"shapeId,omitempty"`
	Screen      bool          `json:"screen,omitempty"`
	Path        []PathCommand `json:"path"`
	Closed      bool          `json:"closed,omitempty"`
	Fill        string        `json:"fill,omitempty"`
	Stroke      string        `json:"stroke,omitempty"`
	StrokeWidth float64       `json:"strokeWidth,omitempty"`
	Opacity     float64       `json:"opacity,omitempty"`
	Dash        []float64     `json:"dash,omitempty"`
	Selected    bool          `json:"selected,omitempty"`
}

// Frame is one render of the editor.
type Frame struct {
	Viewport []float64     `json:"viewport"` // [a, b, c, d, e, f]
	Zoom     float64       `json:"zoom"`
	Commands []DrawCommand `json:"commands"`
}

// RectPath returns a closed path around r.
func RectPath(r geom.Rect) []PathCommand {
	c := r.Corners()
	return []PathCommand{
		{"M", c[0].X, c[0].Y},
		{"L", c[1].X, c[1].Y},
		{"L", c[2].X, c[2].Y},
		{"L", c[3].X, c[3].Y},
		{"Z"},
	}
}

// PolylinePath returns a path through points, closed when closed is set.
func PolylinePath(points []geom.Point, closed bool) []PathCommand {
	if len(points) == 0 {
		return nil
	}
	path := make([]PathCommand, 0, len(points)+1)
	path = append(path, PathCommand{"M", points[0].X, points[0].Y})
	for _, p := range points[1:] {
		path = append(path, PathCommand{"L", p.X, p.Y})
	}
	if closed {
		path = append(path, PathCommand{"Z"})
	}
	return path
}

// ShapePath returns the world-space outline of s.
func ShapePath(s shape.Shape) []PathCommand {
	switch s.Geometry.Kind {
	case shape.KindRect:
		return RectPath(s.Geometry.Rect)
	case shape.KindPolygon:
		return PolylinePath(s.Geometry.Polygon.WorldPoints(), true)
	default:
		return nil
	}
}

// CompileShapes generates shape commands in painter's order. Selected
// shapes get a highlight stroke whose width stays constant on screen.
func CompileShapes(shapes []shape.Shape, selected func(string) bool, zoom float64) []DrawCommand {
	if zoom <= 0 {
		zoom = 1
	}
	cmds := make([]DrawCommand, 0, len(shapes))
	for _, s := range shapes {
		path := ShapePath(s)
		if len(path) == 0 {
			continue
		}
		cmd := DrawCommand{
			Op:          "path",
			Role:        RoleShape,
			ShapeID:     s.ID,
			Path:        path,
			Closed:      true,
			Fill:        s.Style.Fill,
			Stroke:      s.Style.Stroke,
			StrokeWidth: s.Style.StrokeWidth / zoom,
			Opacity:     s.Style.Opacity,
		}
		if selected != nil && selected(s.ID) {
			cmd.Selected = true
			cmd.Stroke = selectedStroke
			cmd.StrokeWidth = (s.Style.StrokeWidth + 1) / zoom
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}

// Render compiles the whole editor state.
func (e *Engine) Render() Frame {
	vp := e.view.Viewport()
	cmds := CompileShapes(e.shapes.All(), e.selection.IsSelected, vp.Zoom)
	cmds = append(cmds, e.overlayCommands(vp.Zoom)...)
	return Frame{
		Viewport: vp.Matrix().ToSlice(),
		Zoom:     vp.Zoom,
		Commands: cmds,
	}
}

// RenderJSON serializes Render.
func (e *Engine) RenderJSON() (string, error) {
	data, err := json.Marshal(e.Render())
	if err != nil {
		return `{"viewport":[1,0,0,1,0,0],"commands":[]}`, err
	}
	return string(data), nil
}

func (e *Engine) overlayCommands(zoom float64) []DrawCommand {
	var cmds []DrawCommand
	px := 1 / zoom
	style := shape.DefaultStyle(e.category)

	if r, ok := e.rectTool.Preview(); ok {
		cmds = append(cmds, DrawCommand{
			Op: "path", Role: RoleDraft, Path: RectPath(r), Closed: true,
			Fill: style.Fill, Stroke: style.Stroke, StrokeWidth: style.StrokeWidth * px,
			Opacity: 1, Dash: []float64{6 * px, 4 * px},
		})
	}

	if pv, ok := e.polyTool.Preview(); ok {
		cmds = append(cmds, DrawCommand{
			Op: "path", Role: RoleDraft, Path: PolylinePath(pv.Vertices, false),
			Stroke: style.Stroke, StrokeWidth: style.StrokeWidth * px, Opacity: 1,
		})
		if pv.Line != nil {
			cmds = append(cmds, DrawCommand{
				Op: "path", Role: RolePreviewLine,
				Path:   PolylinePath([]geom.Point{pv.Line.From, pv.Line.To}, false),
				Stroke: draftStroke, StrokeWidth: px, Opacity: 1, Dash: []float64{4 * px, 4 * px},
			})
		}
		if pv.Closing != nil {
			cmds = append(cmds, DrawCommand{
				Op: "path", Role: RoleClosingLine,
				Path:   PolylinePath([]geom.Point{pv.Closing.From, pv.Closing.To}, false),
				Stroke: originFill, StrokeWidth: px, Opacity: 1, Dash: []float64{4 * px, 4 * px},
			})
		}
		for i, v := range pv.Vertices {
			half := 3 * px
			fill := draftStroke
			role := RoleVertex
			if i == 0 && pv.OriginHovered {
				half = 6 * px
				fill = originFill
				role = RoleOriginTarget
			}
			cmds = append(cmds, DrawCommand{
				Op: "path", Role: role,
				Path:   RectPath(geom.Rect{X: v.X - half, Y: v.Y - half, Width: 2 * half, Height: 2 * half}),
				Closed: true, Fill: fill, Stroke: style.Stroke, StrokeWidth: px, Opacity: 1,
			})
		}
	}

	if box, ok := e.selection.Marquee(); ok {
		cmds = append(cmds, DrawCommand{
			Op: "path", Role: RoleMarquee, Screen: true, Path: RectPath(box), Closed: true,
			Fill: marqueeFill, Stroke: marqueeStroke, StrokeWidth: 1, Opacity: 1,
		})
	}
	return cmds
}
