package collab

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stargety/oasis-mapeditor/internal/document"
	"github.com/stargety/oasis-mapeditor/internal/geom"
	"github.com/stargety/oasis-mapeditor/internal/shape"
)

var (
	ErrUnknownOperation = errors.New("unknown operation type")
	ErrShapeNotFound    = errors.New("shape not found")
	ErrShapeExists      = errors.New("shape already exists")
	ErrInvalidOperation = errors.New("invalid operation")
)

// maxOpLog bounds the in-memory history kept per room.
const maxOpLog = 1000

// DocumentState holds the authoritative map state for a room
type DocumentState struct {
	mu        sync.RWMutex
	info      document.MapInfo
	shapes    *shape.List
	serverSeq int64
	savedSeq  int64
	epoch     string
	opLog     []Operation
}

// NewDocumentState creates a new document state from an initial document
func NewDocumentState(doc *document.MapDocument) *DocumentState {
	return &DocumentState{
		info:   doc.Map,
		shapes: shape.NewList(doc.Shapes),
		epoch:  uuid.NewString(),
		opLog:  make([]Operation, 0),
	}
}

// Epoch identifies this state's sequence numbering. Sequences restart
// whenever a room is reopened from storage.
func (ds *DocumentState) Epoch() string {
	return ds.epoch
}

// Snapshot returns a copy of the current document and its sequence.
func (ds *DocumentState) Snapshot() (*document.MapDocument, int64) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return &document.MapDocument{Map: ds.info, Shapes: ds.shapes.All()}, ds.serverSeq
}

// Dirty reports whether operations were applied since the last save.
func (ds *DocumentState) Dirty() bool {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.serverSeq != ds.savedSeq
}

// MarkSaved records that the document at seq was persisted.
func (ds *DocumentState) MarkSaved(seq int64) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if seq > ds.savedSeq {
		ds.savedSeq = seq
	}
}

// Since returns the logged operations after seq, oldest first. ok is false
// when the log no longer reaches back that far.
func (ds *DocumentState) Since(seq int64) (ops []Operation, ok bool) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	if seq < 0 || seq > ds.serverSeq {
		return nil, false
	}
	first := ds.serverSeq - int64(len(ds.opLog)) + 1
	if seq+1 < first {
		return nil, false
	}
	if seq >= ds.serverSeq {
		return nil, true
	}
	start := int(seq + 1 - first)
	return append([]Operation(nil), ds.opLog[start:]...), true
}

// ApplyOperation applies an operation to the document and returns the server sequence
func (ds *DocumentState) ApplyOperation(op Operation) (int64, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if err := ds.applyOperationLocked(op); err != nil {
		return 0, err
	}

	ds.serverSeq++
	ds.info.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	ds.opLog = append(ds.opLog, op)
	if len(ds.opLog) > maxOpLog {
		ds.opLog = append([]Operation(nil), ds.opLog[len(ds.opLog)-maxOpLog:]...)
	}

	return ds.serverSeq, nil
}

// applyOperationLocked applies the operation without locking (caller must hold lock)
func (ds *DocumentState) applyOperationLocked(op Operation) error {
	switch op.Type {
	case OpShapeCreate:
		return ds.applyCreate(op)
	case OpShapeUpdate:
		return ds.applyUpdate(op)
	case OpShapeDelete:
		return ds.applyDelete(op)
	case OpShapeMove:
		return ds.applyMove(op)
	case OpMapRename:
		return ds.applyRename(op)
	case OpMapUpdate:
		return ds.applyMapUpdate(op)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownOperation, op.Type)
	}
}

func (ds *DocumentState) applyCreate(op Operation) error {
	if op.Shape == nil {
		return fmt.Errorf("%w: create without shape", ErrInvalidOperation)
	}
	if err := op.Shape.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOperation, err)
	}
	if !ds.shapes.Add(*op.Shape) {
		return fmt.Errorf("%w: %s", ErrShapeExists, op.Shape.ID)
	}
	return nil
}

func (ds *DocumentState) applyUpdate(op Operation) error {
	if op.Shape == nil {
		return fmt.Errorf("%w: update without shape", ErrInvalidOperation)
	}
	if !ds.shapes.Has(op.Shape.ID) {
		return fmt.Errorf("%w: %s", ErrShapeNotFound, op.Shape.ID)
	}
	if err := op.Shape.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOperation, err)
	}
	ds.shapes.Upsert(*op.Shape)
	return nil
}

func (ds *DocumentState) applyDelete(op Operation) error {
	if _, ok := ds.shapes.Remove(op.ShapeID); !ok {
		return fmt.Errorf("%w: %s", ErrShapeNotFound, op.ShapeID)
	}
	return nil
}

func (ds *DocumentState) applyMove(op Operation) error {
	d := geom.Pt(op.DX, op.DY)
	if !d.IsFinite() {
		return fmt.Errorf("%w: non-finite move", ErrInvalidOperation)
	}
	ok := ds.shapes.Update(op.ShapeID, func(s *shape.Shape) {
		s.Geometry = s.Geometry.Translate(d)
	})
	if !ok {
		return fmt.Errorf("%w: %s", ErrShapeNotFound, op.ShapeID)
	}
	return nil
}

func (ds *DocumentState) applyRename(op Operation) error {
	name := strings.TrimSpace(op.Name)
	if name == "" {
		return fmt.Errorf("%w: empty map name", ErrInvalidOperation)
	}
	ds.info.Name = name
	return nil
}

func (ds *DocumentState) applyMapUpdate(op Operation) error {
	if op.Changes == nil {
		return fmt.Errorf("%w: update without changes", ErrInvalidOperation)
	}
	info, err := op.Changes.Apply(ds.info)
	if err != nil {
		return err
	}
	ds.info = info
	return nil
}

// Apply returns info with every set field replaced. Nothing is applied
// when a field is invalid.
func (c MapChanges) Apply(info document.MapInfo) (document.MapInfo, error) {
	orig := info
	if c.Name != nil {
		name := strings.TrimSpace(*c.Name)
		if name == "" {
			return orig, fmt.Errorf("%w: empty map name", ErrInvalidOperation)
		}
		info.Name = name
	}
	if c.Width != nil {
		if !document.ValidSize(*c.Width) {
			return orig, fmt.Errorf("%w: width %d", ErrInvalidOperation, *c.Width)
		}
		info.Width = *c.Width
	}
	if c.Height != nil {
		if !document.ValidSize(*c.Height) {
			return orig, fmt.Errorf("%w: height %d", ErrInvalidOperation, *c.Height)
		}
		info.Height = *c.Height
	}
	if c.Background != nil {
		info.Background = *c.Background
	}
	if c.BackgroundAssetID != nil {
		info.BackgroundAssetID = *c.BackgroundAssetID
	}
	return info, nil
}

// GetServerTimestamp returns the current server timestamp
func GetServerTimestamp() int64 {
	return time.Now().UnixMilli()
}
