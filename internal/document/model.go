package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stargety/oasis-mapeditor/internal/shape"
)

// StorageKey is the browser local storage key the editor state lives under.
const StorageKey = "oasis.mapEditor.state"

// MaxMapSize bounds map width and height so they fit the int32 columns
// they are stored in.
const MaxMapSize = 1 << 20

// ValidSize reports whether n is a usable map width or height.
func ValidSize(n int) bool {
	return n > 0 && n <= MaxMapSize
}

// MapDocument is the persisted form of a map: its metadata plus the flat
// shape list in painter's order. There is no version field.
type MapDocument struct {
	Map    MapInfo       `json:"map"`
	Shapes []shape.Shape `json:"shapes"`
}

type MapInfo struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Width             int    `json:"width"`
	Height            int    `json:"height"`
	Background        string `json:"background"`
	BackgroundAssetID string `json:"backgroundAssetId,omitempty"`
	CreatedAt         string `json:"createdAt"`
	UpdatedAt         string `json:"updatedAt"`
}

// NewEmptyDocument creates an empty document for a new map
func NewEmptyDocument(mapID, name string) *MapDocument {
	now := time.Now().UTC().Format(time.RFC3339)
	return &MapDocument{
		Map: MapInfo{
			ID:         mapID,
			Name:       name,
			Width:      1920,
			Height:     1080,
			Background: "#1f2937",
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		Shapes: []shape.Shape{},
	}
}

// Parse decodes a document and fills missing collections.
func Parse(data []byte) (*MapDocument, error) {
	var doc MapDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode map document: %w", err)
	}
	if doc.Shapes == nil {
		doc.Shapes = []shape.Shape{}
	}
	for i := range doc.Shapes {
		if doc.Shapes[i].Metadata == nil {
			doc.Shapes[i].Metadata = map[string]string{}
		}
	}
	return &doc, nil
}

// Validate reports every broken invariant in the document.
func (d *MapDocument) Validate() error {
	var errs []error
	if d.Map.ID == "" {
		errs = append(errs, errors.New("map has empty id"))
	}
	if !ValidSize(d.Map.Width) || !ValidSize(d.Map.Height) {
		errs = append(errs, fmt.Errorf("map size %dx%d must be between 1 and %d", d.Map.Width, d.Map.Height, MaxMapSize))
	}
	seen := make(map[string]bool, len(d.Shapes))
	for i, s := range d.Shapes {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("shapes[%d]: %w", i, err))
		}
		if s.ID != "" && seen[s.ID] {
			errs = append(errs, fmt.Errorf("shapes[%d]: duplicate id %s", i, s.ID))
		}
		seen[s.ID] = true
	}
	return errors.Join(errs...)
}

// Touch bumps UpdatedAt.
func (d *MapDocument) Touch() {
	d.Map.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}
