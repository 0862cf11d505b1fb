package typeid

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

const (
	PrefixUser     = "user"
	PrefixMap      = "map"
	PrefixSnapshot = "snap"
	PrefixOp       = "op"
	PrefixShape    = "shape"
	PrefixAsset    = "asset"
)

func New(prefix string) string {
	id := typeid.MustGenerate(prefix)
	return id.String()
}

func NewUserID() string     { return New(PrefixUser) }
func NewMapID() string      { return New(PrefixMap) }
func NewSnapshotID() string { return New(PrefixSnapshot) }
func NewOpID() string       { return New(PrefixOp) }
func NewShapeID() string    { return New(PrefixShape) }
func NewAssetID() string    { return New(PrefixAsset) }

func Validate(id, expectedPrefix string) error {
	parsed, err := typeid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid typeid %q: %w", id, err)
	}
	if parsed.Prefix() != expectedPrefix {
		return fmt.Errorf("expected prefix %q but got %q in id %q", expectedPrefix, parsed.Prefix(), id)
	}
	return nil
}
