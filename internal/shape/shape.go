// Package shape defines the map regions drawn in the editor: tagged
// rectangle/polygon geometry, a semantic category, render style and free
// form metadata.
package shape

import (
	"fmt"

	"github.com/stargety/oasis-mapeditor/internal/geom"
)

// Category is the semantic role of a region.
type Category string

const (
	CategoryCollision   Category = "collision"
	CategoryInteractive Category = "interactive"
)

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryCollision, CategoryInteractive:
		return Category(s), nil
	default:
		return "", fmt.Errorf("unknown shape category %q", s)
	}
}

type Style struct {
	Fill        string  `json:"fill"`
	Stroke      string  `json:"stroke"`
	StrokeWidth float64 `json:"strokeWidth"`
	Opacity     float64 `json:"opacity"`
}

// DefaultStyle is the style a freshly drawn shape of category c gets.
func DefaultStyle(c Category) Style {
	switch c {
	case CategoryCollision:
		return Style{Fill: "rgba(239, 68, 68, 0.3)", Stroke: "#ef4444", StrokeWidth: 2, Opacity: 1}
	case CategoryInteractive:
		return Style{Fill: "rgba(59, 130, 246, 0.3)", Stroke: "#3b82f6", StrokeWidth: 2, Opacity: 1}
	default:
		return Style{Fill: "rgba(156, 163, 175, 0.3)", Stroke: "#9ca3af", StrokeWidth: 2, Opacity: 1}
	}
}

type Shape struct {
	ID       string            `json:"id"`
	Category Category          `json:"category"`
	Geometry Geometry          `json:"geometry"`
	Style    Style             `json:"style"`
	Metadata map[string]string `json:"metadata"`
}

// New creates a shape with the category's default style.
func New(id string, category Category, g Geometry) Shape {
	return Shape{
		ID:       id,
		Category: category,
		Geometry: g,
		Style:    DefaultStyle(category),
		Metadata: map[string]string{},
	}
}

// Bounds returns the world-space bounding box.
func (s Shape) Bounds() geom.Rect {
	return s.Geometry.Bounds()
}

// Clone returns a deep copy.
func (s Shape) Clone() Shape {
	s.Geometry = s.Geometry.Clone()
	md := make(map[string]string, len(s.Metadata))
	for k, v := range s.Metadata {
		md[k] = v
	}
	s.Metadata = md
	return s
}

// Validate checks the invariants a stored shape must hold.
func (s Shape) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("shape has empty id")
	}
	if _, err := ParseCategory(string(s.Category)); err != nil {
		return fmt.Errorf("shape %s: %w", s.ID, err)
	}
	switch s.Geometry.Kind {
	case KindRect:
		if !s.Geometry.Valid() {
			return fmt.Errorf("shape %s: rect %vx%v not above minimum size %v",
				s.ID, s.Geometry.Rect.Width, s.Geometry.Rect.Height, MinRectSize)
		}
	case KindPolygon:
		if !s.Geometry.Valid() {
			return fmt.Errorf("shape %s: polygon has %d points, need %d",
				s.ID, len(s.Geometry.Polygon.Points), MinPolygonPoints)
		}
	default:
		return fmt.Errorf("shape %s: unknown geometry type %q", s.ID, s.Geometry.Kind)
	}
	return nil
}
