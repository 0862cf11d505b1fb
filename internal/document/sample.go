package document

import (
	"github.com/stargety/oasis-mapeditor/internal/geom"
	"github.com/stargety/oasis-mapeditor/internal/shape"
	"github.com/stargety/oasis-mapeditor/internal/typeid"
)

// NewSampleDocument builds a small office floor: walls as collision
// rectangles, a pillar polygon and two interactive zones.
func NewSampleDocument(mapID string) *MapDocument {
	doc := NewEmptyDocument(mapID, "Sample Office")

	wall := func(x, y, w, h float64) shape.Shape {
		s := shape.New(typeid.NewShapeID(), shape.CategoryCollision,
			shape.RectGeometry(geom.Rect{X: x, Y: y, Width: w, Height: h}))
		s.Metadata["name"] = "wall"
		return s
	}

	pillar := shape.New(typeid.NewShapeID(), shape.CategoryCollision, shape.PolygonGeometry([]geom.Point{
		{X: 0, Y: -30}, {X: 26, Y: -15}, {X: 26, Y: 15}, {X: 0, Y: 30}, {X: -26, Y: 15}, {X: -26, Y: -15},
	}).Translate(geom.Pt(960, 540)))
	pillar.Metadata["name"] = "pillar"

	meeting := shape.New(typeid.NewShapeID(), shape.CategoryInteractive,
		shape.RectGeometry(geom.Rect{X: 1300, Y: 120, Width: 420, Height: 300}))
	meeting.Metadata["name"] = "Meeting Room"
	meeting.Metadata["action"] = "join-video"

	kitchen := shape.New(typeid.NewShapeID(), shape.CategoryInteractive, shape.PolygonGeometry([]geom.Point{
		{X: 120, Y: 700}, {X: 520, Y: 700}, {X: 520, Y: 960}, {X: 320, Y: 960}, {X: 120, Y: 860},
	}))
	kitchen.Metadata["name"] = "Kitchen"
	kitchen.Metadata["action"] = "open-chat"

	doc.Shapes = append(doc.Shapes,
		wall(0, 0, 1920, 20),
		wall(0, 1060, 1920, 20),
		wall(0, 0, 20, 1080),
		wall(1900, 0, 20, 1080),
		pillar,
		meeting,
		kitchen,
	)
	return doc
}
