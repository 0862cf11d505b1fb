package shape

import (
	"encoding/json"
	"fmt"

	"github.com/stargety/oasis-mapeditor/internal/geom"
)

// Kind tags which variant a Geometry holds.
type Kind string

const (
	KindRect    Kind = "rect"
	KindPolygon Kind = "polygon"
)

// MinRectSize is the size a drawn rectangle must exceed on both axes,
// in world units.
const MinRectSize = 5.0

// MinPolygonPoints is the vertex count below which a polygon is not closed.
const MinPolygonPoints = 3

// Polygon is an ordered vertex list translated by Origin. Freshly drawn
// polygons have a zero origin; dragging a polygon moves only the origin.
type Polygon struct {
	Origin geom.Point
	Points []geom.Point
}

// WorldPoints returns the vertices with the origin offset applied.
func (p Polygon) WorldPoints() []geom.Point {
	return geom.TranslatePoints(p.Points, p.Origin)
}

// Geometry is a tagged variant: Rect is meaningful when Kind is KindRect,
// Polygon when Kind is KindPolygon.
type Geometry struct {
	Kind    Kind
	Rect    geom.Rect
	Polygon Polygon
}

// RectGeometry builds a normalized rectangle geometry.
func RectGeometry(r geom.Rect) Geometry {
	return Geometry{Kind: KindRect, Rect: r.Normalize()}
}

// PolygonGeometry builds a polygon geometry with a zero origin.
func PolygonGeometry(points []geom.Point) Geometry {
	pts := make([]geom.Point, len(points))
	copy(pts, points)
	return Geometry{Kind: KindPolygon, Polygon: Polygon{Points: pts}}
}

// Valid reports whether the geometry satisfies its size invariant.
func (g Geometry) Valid() bool {
	switch g.Kind {
	case KindRect:
		return g.Rect.Width > MinRectSize && g.Rect.Height > MinRectSize
	case KindPolygon:
		return len(g.Polygon.Points) >= MinPolygonPoints
	default:
		return false
	}
}

// Bounds returns the world-space bounding box.
func (g Geometry) Bounds() geom.Rect {
	switch g.Kind {
	case KindRect:
		return g.Rect
	case KindPolygon:
		return geom.BoundingBox(g.Polygon.WorldPoints())
	default:
		return geom.Rect{}
	}
}

// Contains hit-tests a world point against the shape's filled area.
func (g Geometry) Contains(p geom.Point) bool {
	switch g.Kind {
	case KindRect:
		return g.Rect.Contains(p)
	case KindPolygon:
		return geom.PointInPolygon(p.Sub(g.Polygon.Origin), g.Polygon.Points)
	default:
		return false
	}
}

// IntersectsBox is the drag-select test. Rectangles use AABB overlap;
// polygons match when any translated vertex falls inside box.
func (g Geometry) IntersectsBox(box geom.Rect) bool {
	box = box.Normalize()
	switch g.Kind {
	case KindRect:
		return g.Rect.Intersects(box)
	case KindPolygon:
		for _, p := range g.Polygon.Points {
			if box.Contains(p.Add(g.Polygon.Origin)) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Translate returns the geometry moved by d.
func (g Geometry) Translate(d geom.Point) Geometry {
	switch g.Kind {
	case KindRect:
		g.Rect = g.Rect.Translate(d)
	case KindPolygon:
		g = g.Clone()
		g.Polygon.Origin = g.Polygon.Origin.Add(d)
	}
	return g
}

// Clone deep-copies the vertex slice.
func (g Geometry) Clone() Geometry {
	if g.Polygon.Points != nil {
		pts := make([]geom.Point, len(g.Polygon.Points))
		copy(pts, g.Polygon.Points)
		g.Polygon.Points = pts
	}
	return g
}

type geometryJSON struct {
	Type   Kind         `json:"type"`
	X      float64      `json:"x"`
	Y      float64      `json:"y"`
	Width  *float64     `json:"width,omitempty"`
	Height *float64     `json:"height,omitempty"`
	Points []geom.Point `json:"points,omitempty"`
}

// MarshalJSON writes {"type":"rect",x,y,width,height} or
// {"type":"polygon",x,y,points}.
func (g Geometry) MarshalJSON() ([]byte, error) {
	switch g.Kind {
	case KindRect:
		w, h := g.Rect.Width, g.Rect.Height
		return json.Marshal(geometryJSON{Type: KindRect, X: g.Rect.X, Y: g.Rect.Y, Width: &w, Height: &h})
	case KindPolygon:
		pts := g.Polygon.Points
		if pts == nil {
			pts = []geom.Point{}
		}
		return json.Marshal(struct {
			Type   Kind         `json:"type"`
			X      float64      `json:"x"`
			Y      float64      `json:"y"`
			Points []geom.Point `json:"points"`
		}{KindPolygon, g.Polygon.Origin.X, g.Polygon.Origin.Y, pts})
	default:
		return nil, fmt.Errorf("marshal geometry: unknown type %q", g.Kind)
	}
}

// UnmarshalJSON reads the tagged form written by MarshalJSON.
func (g *Geometry) UnmarshalJSON(data []byte) error {
	var raw geometryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case KindRect:
		if raw.Width == nil || raw.Height == nil {
			return fmt.Errorf("rect geometry missing width/height")
		}
		*g = Geometry{Kind: KindRect, Rect: geom.Rect{X: raw.X, Y: raw.Y, Width: *raw.Width, Height: *raw.Height}}
	case KindPolygon:
		*g = Geometry{Kind: KindPolygon, Polygon: Polygon{Origin: geom.Pt(raw.X, raw.Y), Points: raw.Points}}
	default:
		return fmt.Errorf("unknown geometry type %q", raw.Type)
	}
	return nil
}
