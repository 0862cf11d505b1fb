package collab

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stargety/oasis-mapeditor/internal/document"
)

// DocumentLoader fetches the stored document for a map. A nil document
// with a nil error means the map has nothing stored yet.
type DocumentLoader func(ctx context.Context, mapID string) (*document.MapDocument, error)

// DocumentSaver persists a document snapshot for a map.
type DocumentSaver func(ctx context.Context, mapID string, doc *document.MapDocument) error

const (
	storageTimeout = 10 * time.Second
	// flushParallelism bounds concurrent saves during Stop.
	flushParallelism = 4
)

type Room struct {
	mapID    string
	clients  map[string]*Client // clientID -> client
	presence *PresenceManager
	state    *DocumentState
	saves    *document.Debouncer
}

func NewRoom(mapID string, state *DocumentState, saveDelay time.Duration) *Room {
	return &Room{
		mapID:    mapID,
		clients:  make(map[string]*Client),
		presence: NewPresenceManager(),
		state:    state,
		saves:    document.NewDebouncer(saveDelay),
	}
}

type Hub struct {
	mu         sync.RWMutex
	rooms      map[string]*Room // mapID -> room
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	load      DocumentLoader
	save      DocumentSaver
	saveDelay time.Duration
}

func NewHub(load DocumentLoader, save DocumentSaver, saveDelay time.Duration) *Hub {
	return &Hub{
		rooms:      make(map[string]*Room),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		load:       load,
		save:       save,
		saveDelay:  saveDelay,
	}
}

// Run processes joins and leaves until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-h.done:
			return
		}
	}
}

// Register hands a connected client to the hub. It returns false once the
// hub is stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Stop ends Run and saves every dirty room.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		rooms := make([]*Room, 0, len(h.rooms))
		for _, room := range h.rooms {
			rooms = append(rooms, room)
			for _, c := range room.clients {
				c.close()
			}
		}
		h.rooms = make(map[string]*Room)
		h.mu.Unlock()

		var g errgroup.Group
		g.SetLimit(flushParallelism)
		for _, room := range rooms {
			g.Go(func() error {
				room.saves.Stop()
				h.saveRoom(room)
				return nil
			})
		}
		_ = g.Wait()
		slog.Info("hub stopped", "rooms", len(rooms))
	})
}

// Rooms returns the number of open rooms.
func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) openRoom(mapID string) (*Room, error) {
	h.mu.RLock()
	room, ok := h.rooms[mapID]
	h.mu.RUnlock()
	if ok {
		return room, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	doc, err := h.load(ctx, mapID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		doc = document.NewEmptyDocument(mapID, "Untitled map")
	}

	room = NewRoom(mapID, NewDocumentState(doc), h.saveDelay)
	h.mu.Lock()
	h.rooms[mapID] = room
	h.mu.Unlock()
	return room, nil
}

func (h *Hub) addClient(client *Client) {
	room, err := h.openRoom(client.MapID)
	if err != nil {
		slog.Error("load map document", "error", err, "map", client.MapID)
		if msg, err := NewMessage(TypeError, ErrorPayload{Message: "could not load map"}); err == nil {
			client.Send(msg)
		}
		client.close()
		return
	}

	h.mu.Lock()
	room.clients[client.ClientID] = client
	h.mu.Unlock()

	if !h.replay(room, client) {
		h.syncDocument(room, client)
	}

	// Send current presence state to new client
	stateMsg := room.presence.StateMessage()
	if stateMsg != nil {
		client.Send(stateMsg)
	}

	// Broadcast join to other clients, once per user
	if room.presence.Join(client.UserID, client.DisplayName) {
		joinPayload, _ := json.Marshal(PresenceJoinPayload{
			UserID:      client.UserID,
			DisplayName: client.DisplayName,
		})
		joinMsg := &Message{
			Type:    TypePresenceJoin,
			UserID:  client.UserID,
			Payload: joinPayload,
		}
		h.broadcastToRoom(client.MapID, joinMsg, client.ClientID)
	}

	slog.Info("client joined", "user", client.UserID, "map", client.MapID)
}

// syncDocument welcomes a client with the full current document.
func (h *Hub) syncDocument(room *Room, client *Client) {
	doc, seq := room.state.Snapshot()
	if msg, err := NewMessage(TypeWelcome, WelcomePayload{
		ClientID:  client.ClientID,
		UserID:    client.UserID,
		ServerSeq: seq,
		Epoch:     room.state.Epoch(),
	}); err == nil {
		client.Send(msg)
	}
	if msg, err := NewMessage(TypeDocSync, DocSyncPayload{Document: doc, ServerSeq: seq}); err == nil {
		msg.Seq = seq
		client.Send(msg)
	}
}

// replay catches a reconnecting client up from its resume point with the
// logged operations. It reports false when the point is unknown to this
// room, in which case the client needs a full sync.
func (h *Hub) replay(room *Room, client *Client) bool {
	from := client.Resume
	if from == nil || from.Epoch != room.state.Epoch() {
		return false
	}
	ops, ok := room.state.Since(from.Seq)
	if !ok {
		return false
	}

	last := from.Seq + int64(len(ops))
	welcome, err := NewMessage(TypeWelcome, WelcomePayload{
		ClientID:  client.ClientID,
		UserID:    client.UserID,
		ServerSeq: last,
		Epoch:     from.Epoch,
		Resumed:   true,
	})
	if err != nil {
		return false
	}
	client.Send(welcome)
	for i, op := range ops {
		seq := from.Seq + int64(i) + 1
		if msg, err := NewMessage(TypeOpBroadcast, OperationBroadcastPayload{Operation: op, ServerSeq: seq}); err == nil {
			msg.Seq = seq
			client.Send(msg)
		}
	}
	slog.Debug("replayed operations", "map", room.mapID, "from", from.Seq, "count", len(ops))
	return true
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.MapID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, member := room.clients[client.ClientID]; !member {
		h.mu.Unlock()
		return
	}

	delete(room.clients, client.ClientID)
	client.close()
	left := room.presence.Remove(client.UserID)

	empty := len(room.clients) == 0
	if empty {
		delete(h.rooms, client.MapID)
	}
	h.mu.Unlock()

	if empty {
		room.saves.Stop()
		h.saveRoom(room)
		slog.Info("room closed", "map", room.mapID)
		return
	}
	if !left {
		return
	}

	// Broadcast leave to remaining clients
	leavePayload, _ := json.Marshal(PresenceLeavePayload{
		UserID: client.UserID,
	})
	leaveMsg := &Message{
		Type:    TypePresenceLeave,
		UserID:  client.UserID,
		Payload: leavePayload,
	}
	h.broadcastToRoom(client.MapID, leaveMsg, "")

	slog.Info("client left", "user", client.UserID, "map", client.MapID)
}

func (h *Hub) handleMessage(sender *Client, msg *Message) {
	switch msg.Type {
	case TypePresenceUpdate:
		h.handlePresenceUpdate(sender, msg)
	case TypeOpSubmit:
		h.handleOpSubmit(sender, msg)
	default:
		slog.Warn("unknown message type", "type", msg.Type, "user", sender.UserID)
	}
}

func (h *Hub) room(mapID string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.rooms[mapID]
	return room, ok
}

func (h *Hub) handlePresenceUpdate(sender *Client, msg *Message) {
	var presence PresencePayload
	if err := json.Unmarshal(msg.Payload, &presence); err != nil {
		slog.Warn("invalid presence payload", "error", err)
		return
	}

	presence.DisplayName = sender.DisplayName

	room, ok := h.room(sender.MapID)
	if !ok {
		return
	}

	room.presence.Update(sender.UserID, &presence)

	// Broadcast to other clients in room
	outPayload, _ := json.Marshal(presence)
	outMsg := &Message{
		Type:    TypePresenceUpdate,
		UserID:  sender.UserID,
		Payload: outPayload,
	}
	h.broadcastToRoom(sender.MapID, outMsg, sender.ClientID)
}

func (h *Hub) handleOpSubmit(sender *Client, msg *Message) {
	var submit OperationSubmitPayload
	if err := json.Unmarshal(msg.Payload, &submit); err != nil {
		slog.Warn("invalid operation payload", "error", err, "user", sender.UserID)
		h.nack(sender, "", "malformed operation")
		return
	}
	op := submit.Operation

	room, ok := h.room(sender.MapID)
	if !ok {
		h.nack(sender, op.ID, "map is not open")
		return
	}

	seq, err := room.state.ApplyOperation(op)
	if err != nil {
		if !errors.Is(err, ErrShapeNotFound) && !errors.Is(err, ErrShapeExists) {
			slog.Warn("rejected operation", "error", err, "op", op.Type, "user", sender.UserID)
		}
		h.nack(sender, op.ID, err.Error())
		return
	}

	if ack, err := NewMessage(TypeOpAck, OperationAckPayload{
		OperationID:     op.ID,
		ServerSeq:       seq,
		ServerTimestamp: GetServerTimestamp(),
	}); err == nil {
		ack.Seq = seq
		sender.Send(ack)
	}

	if out, err := NewMessage(TypeOpBroadcast, OperationBroadcastPayload{
		Operation: op,
		UserID:    sender.UserID,
		ServerSeq: seq,
	}); err == nil {
		out.Seq = seq
		out.UserID = sender.UserID
		h.broadcastToRoom(sender.MapID, out, sender.ClientID)
	}

	room.saves.Call(func() { h.saveRoom(room) })
}

func (h *Hub) nack(c *Client, opID, reason string) {
	msg, err := NewMessage(TypeOpNack, OperationNackPayload{OperationID: opID, Reason: reason})
	if err != nil {
		return
	}
	c.Send(msg)
}

func (h *Hub) saveRoom(room *Room) {
	if !room.state.Dirty() {
		return
	}
	doc, seq := room.state.Snapshot()

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	if err := h.save(ctx, room.mapID, doc); err != nil {
		slog.Error("save map document", "error", err, "map", room.mapID)
		return
	}
	room.state.MarkSaved(seq)
	slog.Debug("saved map document", "map", room.mapID, "seq", seq)
}

func (h *Hub) broadcastToRoom(mapID string, msg *Message, excludeClientID string) {
	h.mu.RLock()
	room, ok := h.rooms[mapID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	clients := make([]*Client, 0, len(room.clients))
	for _, c := range room.clients {
		if c.ClientID != excludeClientID {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Send(msg)
	}
}
