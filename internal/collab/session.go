package collab

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stargety/oasis-mapeditor/internal/document"
	"github.com/stargety/oasis-mapeditor/internal/editor"
	"github.com/stargety/oasis-mapeditor/internal/geom"
	"github.com/stargety/oasis-mapeditor/internal/shape"
)

// Session is the client end of a collaborative map. It turns local editor
// changes into op.submit messages applied optimistically, and applies
// server messages back to the editor. It does no I/O: the transport
// drains Outbox and feeds received messages to Handle.
//
// Acks and broadcasts are applied strictly in server sequence order.
// Messages that arrive early are held until the gap fills and repeats
// are dropped. Nothing is handed to the transport until the server has
// either sent the document or confirmed a resume.
//
// A Session is not safe for concurrent use; it lives on the UI thread
// with its editor.
type Session struct {
	mapID   string
	engine  *editor.Engine
	pending *Pending
	newOpID func() string

	outbox    []*Message
	clientSeq int64
	serverSeq int64
	clientID  string
	userID    string
	epoch     string
	resuming  bool
	synced    bool
	held      map[int64]*Message
	peers     map[string]PresencePayload
	closed    bool
}

// NewSession subscribes to engine changes.
func NewSession(mapID string, e *editor.Engine, newOpID func() string) *Session {
	s := &Session{
		mapID:   mapID,
		engine:  e,
		pending: NewPending(),
		newOpID: newOpID,
		held:    make(map[int64]*Message),
		peers:   make(map[string]PresencePayload),
	}
	e.OnChange(s.onChange)
	return s
}

// OperationFromChange maps an editor change to the operation that
// reproduces it on the server.
func OperationFromChange(c editor.Change) (Operation, bool) {
	switch c.Kind {
	case editor.ChangeCreated:
		if c.After == nil {
			return Operation{}, false
		}
		return Operation{Type: OpShapeCreate, Shape: c.After}, true
	case editor.ChangeUpdated:
		if c.After == nil {
			return Operation{}, false
		}
		return Operation{Type: OpShapeUpdate, Shape: c.After}, true
	case editor.ChangeDeleted:
		return Operation{Type: OpShapeDelete, ShapeID: c.ShapeID}, true
	default:
		return Operation{}, false
	}
}

func (s *Session) onChange(c editor.Change) {
	if s.closed {
		return
	}
	op, ok := OperationFromChange(c)
	if !ok {
		return
	}
	s.stamp(&op)
	s.pending.Track(op, c.Before)
	s.submit(op)
}

// RenameMap renames the map locally and submits the rename.
func (s *Session) RenameMap(name string) bool {
	name = strings.TrimSpace(name)
	before := s.engine.MapInfo()
	if name == "" || name == before.Name {
		return false
	}
	after := before
	after.Name = name
	s.engine.SetMapInfo(after)

	op := Operation{Type: OpMapRename, Name: name}
	s.stamp(&op)
	s.pending.TrackMap(op, before)
	s.submit(op)
	return true
}

// UpdateMap applies map changes locally and submits them.
func (s *Session) UpdateMap(c MapChanges) error {
	before := s.engine.MapInfo()
	after, err := c.Apply(before)
	if err != nil {
		return err
	}
	s.engine.SetMapInfo(after)

	op := Operation{Type: OpMapUpdate, Changes: &c}
	s.stamp(&op)
	s.pending.TrackMap(op, before)
	s.submit(op)
	return nil
}

// UpdatePresence queues the local cursor (world coordinates), tool and
// current selection for peers.
func (s *Session) UpdatePresence(cursor *CursorPos) {
	msg, err := NewMessage(TypePresenceUpdate, PresencePayload{
		Cursor:    cursor,
		Selection: s.engine.Selection(),
		Tool:      string(s.engine.Tool()),
	})
	if err != nil {
		return
	}
	msg.MapID = s.mapID
	s.outbox = append(s.outbox, msg)
}

// Close detaches the session from its editor. Later edits are no longer
// queued.
func (s *Session) Close() {
	s.closed = true
	s.outbox = nil
}

// ResumeFrom asks to continue from p instead of loading the server
// document. The editor must still hold exactly the state at p. Call it
// before the first message is handled.
func (s *Session) ResumeFrom(p ResumePoint) {
	s.epoch, s.serverSeq, s.resuming = p.Epoch, p.Seq, true
}

// ResumePoint reports where a later connection can pick up. ok is false
// while local operations are unconfirmed, since the server would not
// replay them.
func (s *Session) ResumePoint() (ResumePoint, bool) {
	if !s.synced || s.epoch == "" || s.pending.Len() > 0 || len(s.held) > 0 {
		return ResumePoint{}, false
	}
	for _, m := range s.outbox {
		if m.Type == TypeOpSubmit {
			return ResumePoint{}, false
		}
	}
	return ResumePoint{Epoch: s.epoch, Seq: s.serverSeq}, true
}

// Outbox returns and clears the queued outgoing messages. It returns
// nothing until the session is synced.
func (s *Session) Outbox() []*Message {
	if !s.synced {
		return nil
	}
	out := s.outbox
	s.outbox = nil
	return out
}

func (s *Session) stamp(op *Operation) {
	s.clientSeq++
	op.ID = s.newOpID()
	op.ClientSeq = s.clientSeq
	op.Timestamp = time.Now().UnixMilli()
}

func (s *Session) submit(op Operation) {
	msg, err := NewMessage(TypeOpSubmit, OperationSubmitPayload{Operation: op})
	if err != nil {
		return
	}
	msg.MapID = s.mapID
	msg.ClientID = s.clientID
	s.outbox = append(s.outbox, msg)
}

// Handle applies one server message.
func (s *Session) Handle(msg *Message) error {
	switch msg.Type {
	case TypeWelcome:
		var p WelcomePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode welcome: %w", err)
		}
		s.clientID, s.userID = p.ClientID, p.UserID
		if p.Resumed && s.resuming && p.Epoch == s.epoch {
			s.synced = true
			return s.drain()
		}
		s.epoch, s.resuming = p.Epoch, false
	case TypeDocSync:
		var p DocSyncPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode doc sync: %w", err)
		}
		if p.Document == nil {
			return fmt.Errorf("decode doc sync: missing document")
		}
		s.pending.Rebase()
		s.dropQueuedOps()
		s.engine.LoadDocument(p.Document)
		s.serverSeq = p.ServerSeq
		s.resuming, s.synced = false, true
		return s.drain()
	case TypeOpAck:
		var p OperationAckPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode ack: %w", err)
		}
		s.hold(p.ServerSeq, msg)
		return s.drain()
	case TypeOpNack:
		var p OperationNackPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode nack: %w", err)
		}
		if rb, ok := s.pending.Nack(p.OperationID); ok {
			s.rollback(rb)
		}
	case TypeOpBroadcast:
		var p OperationBroadcastPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode broadcast: %w", err)
		}
		s.hold(p.ServerSeq, msg)
		return s.drain()
	case TypePresenceState:
		var p PresenceStatePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode presence state: %w", err)
		}
		s.peers = make(map[string]PresencePayload, len(p.Presences))
		for id, pr := range p.Presences {
			if pr != nil && id != s.userID {
				s.peers[id] = *pr
			}
		}
	case TypePresenceJoin:
		var p PresenceJoinPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode presence join: %w", err)
		}
		s.peers[p.UserID] = PresencePayload{DisplayName: p.DisplayName}
	case TypePresenceUpdate:
		var p PresencePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode presence: %w", err)
		}
		s.peers[msg.UserID] = p
	case TypePresenceLeave:
		var p PresenceLeavePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode presence leave: %w", err)
		}
		delete(s.peers, p.UserID)
	case TypeError:
		var p ErrorPayload
		_ = json.Unmarshal(msg.Payload, &p)
		return fmt.Errorf("server error: %s", p.Message)
	}
	return nil
}

func (s *Session) hold(seq int64, msg *Message) {
	if s.synced && seq <= s.serverSeq {
		return
	}
	s.held[seq] = msg
}

// drain applies held messages that continue the sequence and forgets
// those already covered by it.
func (s *Session) drain() error {
	if !s.synced {
		return nil
	}
	for seq := range s.held {
		if seq <= s.serverSeq {
			delete(s.held, seq)
		}
	}
	for {
		msg, ok := s.held[s.serverSeq+1]
		if !ok {
			return nil
		}
		delete(s.held, s.serverSeq+1)
		s.serverSeq++
		if err := s.applySequenced(msg); err != nil {
			return err
		}
	}
}

func (s *Session) applySequenced(msg *Message) error {
	switch msg.Type {
	case TypeOpAck:
		var p OperationAckPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode ack: %w", err)
		}
		s.pending.Ack(p.OperationID)
	case TypeOpBroadcast:
		var p OperationBroadcastPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode broadcast: %w", err)
		}
		s.applyRemote(p.Operation)
	}
	return nil
}

func (s *Session) dropQueuedOps() {
	kept := s.outbox[:0]
	for _, m := range s.outbox {
		if m.Type != TypeOpSubmit {
			kept = append(kept, m)
		}
	}
	s.outbox = kept
}

func (s *Session) rollback(rb Rollback) {
	switch {
	case rb.Map != nil:
		s.engine.SetMapInfo(*rb.Map)
	case rb.Restore != nil:
		s.engine.ApplyRemote(*rb.Restore)
	case rb.ShapeID != "":
		s.engine.ApplyRemoteDelete(rb.ShapeID)
	}
}

// applyRemote applies a peer's operation unless a local pending operation
// on the same target will override it on the server.
func (s *Session) applyRemote(op Operation) {
	switch op.Type {
	case OpShapeCreate, OpShapeUpdate:
		if op.Shape == nil {
			return
		}
		remote := op.Shape.Clone()
		if s.pending.Supersede(remote.ID, func(*shape.Shape) *shape.Shape { return &remote }) {
			return
		}
		s.engine.ApplyRemote(remote)
	case OpShapeDelete:
		if s.pending.Supersede(op.ShapeID, func(*shape.Shape) *shape.Shape { return nil }) {
			return
		}
		s.engine.ApplyRemoteDelete(op.ShapeID)
	case OpShapeMove:
		d := geom.Pt(op.DX, op.DY)
		move := func(before *shape.Shape) *shape.Shape {
			if before == nil {
				return nil
			}
			moved := before.Clone()
			moved.Geometry = moved.Geometry.Translate(d)
			return &moved
		}
		if s.pending.Supersede(op.ShapeID, move) {
			return
		}
		s.engine.ApplyRemoteMove(op.ShapeID, d)
	case OpMapRename:
		rename := func(info document.MapInfo) document.MapInfo {
			info.Name = op.Name
			return info
		}
		s.pending.SupersedeMap(rename)
		s.setRemoteMapInfo(rename)
	case OpMapUpdate:
		if op.Changes == nil {
			return
		}
		update := func(info document.MapInfo) document.MapInfo {
			if next, err := op.Changes.Apply(info); err == nil {
				return next
			}
			return info
		}
		s.pending.SupersedeMap(update)
		s.setRemoteMapInfo(update)
	}
}

// setRemoteMapInfo applies a peer's map change and replays local pending
// map operations on top, since the server orders them after it.
func (s *Session) setRemoteMapInfo(fn func(document.MapInfo) document.MapInfo) {
	info := fn(s.engine.MapInfo())
	for _, op := range s.pending.MapOps() {
		switch op.Type {
		case OpMapRename:
			info.Name = op.Name
		case OpMapUpdate:
			if op.Changes != nil {
				if next, err := op.Changes.Apply(info); err == nil {
					info = next
				}
			}
		}
	}
	s.engine.SetMapInfo(info)
}

func (s *Session) MapID() string {
	return s.mapID
}

func (s *Session) ServerSeq() int64 {
	return s.serverSeq
}

func (s *Session) PendingCount() int {
	return s.pending.Len()
}

// Peers returns the presence of other users keyed by user ID.
func (s *Session) Peers() map[string]PresencePayload {
	out := make(map[string]PresencePayload, len(s.peers))
	for k, v := range s.peers {
		out[k] = v
	}
	return out
}
