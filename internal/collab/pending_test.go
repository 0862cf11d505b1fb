package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stargety/oasis-mapeditor/internal/document"
	"github.com/stargety/oasis-mapeditor/internal/shape"
)

func TestPendingAckNack(t *testing.T) {
	p := NewPending()
	before := *testRect("s1", 0)

	p.Track(Operation{ID: "create", Type: OpShapeCreate, Shape: testRect("s2", 0)}, nil)
	p.Track(Operation{ID: "update", Type: OpShapeUpdate, Shape: testRect("s1", 40)}, &before)
	assert.Equal(t, []string{"create", "update"}, p.IDs())

	assert.True(t, p.Ack("create"))
	assert.False(t, p.Ack("create"))

	rb, ok := p.Nack("update")
	require.True(t, ok)
	assert.Equal(t, "s1", rb.ShapeID)
	require.NotNil(t, rb.Restore)
	assert.Equal(t, 0.0, rb.Restore.Geometry.Rect.X)
	assert.Equal(t, 0, p.Len())

	_, ok = p.Nack("unknown")
	assert.False(t, ok)
}

func TestPendingNackHandsPreimageForward(t *testing.T) {
	p := NewPending()
	p.Track(Operation{ID: "a", Type: OpShapeCreate, Shape: testRect("s1", 0)}, nil)
	p.Track(Operation{ID: "b", Type: OpShapeUpdate, Shape: testRect("s1", 30)}, testRect("s1", 0))

	_, ok := p.Nack("a")
	assert.False(t, ok, "the later update still stands")

	rb, ok := p.Nack("b")
	require.True(t, ok)
	assert.Nil(t, rb.Restore, "the shape never existed on the server")
	assert.Equal(t, "s1", rb.ShapeID)
}

func TestPendingRebase(t *testing.T) {
	p := NewPending()
	p.Track(Operation{ID: "a", Type: OpShapeDelete, ShapeID: "s1"}, testRect("s1", 0))
	p.TrackMap(Operation{ID: "b", Type: OpMapRename, Name: "X"}, document.MapInfo{Name: "Old"})
	p.Track(Operation{Type: OpShapeDelete, ShapeID: "s9"}, nil)
	assert.Equal(t, 2, p.Len(), "operations without an id are not tracked")
	assert.Len(t, p.MapOps(), 1)
	assert.Equal(t, 2, p.Rebase())
	assert.Equal(t, 0, p.Len())
}

func TestPendingSupersede(t *testing.T) {
	p := NewPending()
	p.Track(Operation{ID: "op1", Type: OpShapeDelete, ShapeID: "s1"}, testRect("s1", 0))
	p.TrackMap(Operation{ID: "op2", Type: OpMapRename, Name: "B"}, document.MapInfo{Name: "A"})

	assert.False(t, p.Supersede("other", nil))
	assert.True(t, p.Supersede("s1", func(before *shape.Shape) *shape.Shape {
		moved := before.Clone()
		moved.Geometry.Rect.X = 25
		return &moved
	}))
	assert.True(t, p.SupersedeMap(func(info document.MapInfo) document.MapInfo {
		info.Background = "#ffffff"
		return info
	}))

	rb, ok := p.Nack("op1")
	require.True(t, ok)
	assert.Equal(t, 25.0, rb.Restore.Geometry.Rect.X)

	rb, ok = p.Nack("op2")
	require.True(t, ok)
	require.NotNil(t, rb.Map)
	assert.Equal(t, "A", rb.Map.Name)
	assert.Equal(t, "#ffffff", rb.Map.Background)
}
