package collab

import (
	"encoding/json"

	"github.com/stargety/oasis-mapeditor/internal/document"
	"github.com/stargety/oasis-mapeditor/internal/shape"
)

type Message struct {
	Type     string          `json:"type"`
	MapID    string          `json:"mapId,omitempty"`
	ClientID string          `json:"clientId,omitempty"`
	UserID   string          `json:"userId,omitempty"`
	Seq      int64           `json:"seq,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

type PresencePayload struct {
	Cursor      *CursorPos `json:"cursor,omitempty"`
	Selection   []string   `json:"selection,omitempty"`
	Tool        string     `json:"tool,omitempty"`
	DisplayName string     `json:"displayName,omitempty"`
}

// CursorPos is in world coordinates so peers at other zooms agree.
type CursorPos struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type PresenceStatePayload struct {
	Presences map[string]*PresencePayload `json:"presences"`
}

type PresenceJoinPayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type PresenceLeavePayload struct {
	UserID string `json:"userId"`
}

// WelcomePayload opens a connection. Epoch names the room's in-memory
// history; when Resumed is set the server replays operations after the
// client's resume point instead of sending doc.sync.
type WelcomePayload struct {
	ClientID  string `json:"clientId"`
	UserID    string `json:"userId"`
	ServerSeq int64  `json:"serverSeq"`
	Epoch     string `json:"epoch"`
	Resumed   bool   `json:"resumed,omitempty"`
}

// ResumePoint is the last server sequence a client applied within an
// epoch. It travels as the epoch and since query parameters.
type ResumePoint struct {
	Epoch string `json:"epoch"`
	Seq   int64  `json:"seq"`
}

type DocSyncPayload struct {
	Document  *document.MapDocument `json:"document"`
	ServerSeq int64                 `json:"serverSeq"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

const (
	TypePresenceUpdate = "presence.update"
	TypePresenceState  = "presence.state"
	TypePresenceJoin   = "presence.join"
	TypePresenceLeave  = "presence.leave"
	TypeError          = "error"

	// Connection
	TypeWelcome = "welcome"

	// Document sync
	TypeDocSync = "doc.sync"

	// Operation message types
	TypeOpSubmit    = "op.submit"
	TypeOpAck       = "op.ack"
	TypeOpNack      = "op.nack"
	TypeOpBroadcast = "op.broadcast"
)

// --- Operation Types ---

const (
	OpShapeCreate = "shape.create"
	OpShapeUpdate = "shape.update"
	OpShapeDelete = "shape.delete"
	OpShapeMove   = "shape.move"
	OpMapRename   = "map.rename"
	OpMapUpdate   = "map.update"
)

// Operation represents a map mutation
type Operation struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	ClientSeq int64  `json:"clientSeq"`

	// For shape.create / shape.update
	Shape *shape.Shape `json:"shape,omitempty"`

	// For shape.delete / shape.move
	ShapeID string  `json:"shapeId,omitempty"`
	DX      float64 `json:"dx,omitempty"`
	DY      float64 `json:"dy,omitempty"`

	// For map.rename
	Name string `json:"name,omitempty"`

	// For map.update
	Changes *MapChanges `json:"changes,omitempty"`
}

// MapChanges carries the map.update fields that are set.
type MapChanges struct {
	Name              *string `json:"name,omitempty"`
	Width             *int    `json:"width,omitempty"`
	Height            *int    `json:"height,omitempty"`
	Background        *string `json:"background,omitempty"`
	BackgroundAssetID *string `json:"backgroundAssetId,omitempty"`
}

// TargetID is the shape an operation touches, or "" for map operations.
func (op Operation) TargetID() string {
	if op.Shape != nil {
		return op.Shape.ID
	}
	return op.ShapeID
}

// OperationSubmitPayload is the payload for op.submit messages
type OperationSubmitPayload struct {
	Operation Operation `json:"operation"`
}

// OperationAckPayload is the payload for op.ack messages
type OperationAckPayload struct {
	OperationID     string `json:"operationId"`
	ServerSeq       int64  `json:"serverSeq"`
	ServerTimestamp int64  `json:"serverTimestamp"`
}

// OperationNackPayload is the payload for op.nack messages
type OperationNackPayload struct {
	OperationID string `json:"operationId"`
	Reason      string `json:"reason"`
}

// OperationBroadcastPayload is the payload for op.broadcast messages
type OperationBroadcastPayload struct {
	Operation Operation `json:"operation"`
	UserID    string    `json:"userId"`
	ServerSeq int64     `json:"serverSeq"`
}

// NewMessage marshals payload into a message of the given type.
func NewMessage(typ string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Type: typ, Payload: data}, nil
}
