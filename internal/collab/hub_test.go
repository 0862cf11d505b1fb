package collab

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/stargety/oasis-mapeditor/internal/document"
	"github.com/stargety/oasis-mapeditor/internal/geom"
	"github.com/stargety/oasis-mapeditor/internal/shape"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memStore struct {
	mu    sync.Mutex
	docs  map[string]*document.MapDocument
	loads int
	saves int
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]*document.MapDocument)}
}

func (s *memStore) load(_ context.Context, mapID string) (*document.MapDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	return s.docs[mapID], nil
}

func (s *memStore) save(_ context.Context, mapID string, doc *document.MapDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.docs[mapID] = doc
	return nil
}

func (s *memStore) snapshot(mapID string) (*document.MapDocument, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[mapID], s.saves
}

func startHub(t *testing.T, store *memStore) *Hub {
	t.Helper()
	h := NewHub(store.load, store.save, time.Hour)
	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()
	t.Cleanup(func() {
		h.Stop()
		<-done
	})
	return h
}

func join(t *testing.T, h *Hub, clientID, userID, mapID string) *Client {
	t.Helper()
	c := NewClient(h, nil, userID, "User "+userID, mapID, clientID)
	require.True(t, h.Register(c))
	expect(t, c, TypeWelcome)
	return c
}

// expect reads from the client's queue until a message of typ arrives.
func expect(t *testing.T, c *Client, typ string) *Message {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case data, ok := <-c.send:
			require.True(t, ok, "client closed while waiting for %s", typ)
			var msg Message
			require.NoError(t, json.Unmarshal(data, &msg))
			if msg.Type == typ {
				return &msg
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
			return nil
		}
	}
}

func submit(t *testing.T, h *Hub, c *Client, op Operation) {
	t.Helper()
	msg, err := NewMessage(TypeOpSubmit, OperationSubmitPayload{Operation: op})
	require.NoError(t, err)
	h.handleMessage(c, msg)
}

func testRect(id string, x float64) *shape.Shape {
	s := shape.New(id, shape.CategoryCollision, shape.RectGeometry(geom.Rect{X: x, Y: 0, Width: 50, Height: 50}))
	return &s
}

func TestHubSyncsNewClients(t *testing.T) {
	store := newMemStore()
	doc := document.NewEmptyDocument("map_a", "Lobby")
	doc.Shapes = append(doc.Shapes, *testRect("wall", 0))
	store.docs["map_a"] = doc
	h := startHub(t, store)

	a := NewClient(h, nil, "u1", "Ann", "map_a", "c1")
	require.True(t, h.Register(a))

	welcome := expect(t, a, TypeWelcome)
	var wp WelcomePayload
	require.NoError(t, json.Unmarshal(welcome.Payload, &wp))
	assert.Equal(t, "c1", wp.ClientID)

	synced := expect(t, a, TypeDocSync)
	var sp DocSyncPayload
	require.NoError(t, json.Unmarshal(synced.Payload, &sp))
	assert.Equal(t, "Lobby", sp.Document.Map.Name)
	require.Len(t, sp.Document.Shapes, 1)
	assert.Equal(t, "wall", sp.Document.Shapes[0].ID)

	expect(t, a, TypePresenceState)

	b := join(t, h, "c2", "u2", "map_a")
	joined := expect(t, a, TypePresenceJoin)
	assert.Equal(t, "u2", joined.UserID)
	expect(t, b, TypeDocSync)

	assert.Equal(t, 1, h.Rooms())
	store.mu.Lock()
	assert.Equal(t, 1, store.loads)
	store.mu.Unlock()
}

func TestHubAcksAndBroadcasts(t *testing.T) {
	store := newMemStore()
	h := startHub(t, store)
	a := join(t, h, "c1", "u1", "map_a")
	b := join(t, h, "c2", "u2", "map_a")

	submit(t, h, a, Operation{ID: "op1", Type: OpShapeCreate, Shape: testRect("s1", 10)})

	ack := expect(t, a, TypeOpAck)
	var ap OperationAckPayload
	require.NoError(t, json.Unmarshal(ack.Payload, &ap))
	assert.Equal(t, "op1", ap.OperationID)
	assert.Equal(t, int64(1), ap.ServerSeq)

	bc := expect(t, b, TypeOpBroadcast)
	var bp OperationBroadcastPayload
	require.NoError(t, json.Unmarshal(bc.Payload, &bp))
	assert.Equal(t, "u1", bp.UserID)
	require.NotNil(t, bp.Operation.Shape)
	assert.Equal(t, "s1", bp.Operation.Shape.ID)

	submit(t, h, a, Operation{ID: "op2", Type: OpShapeDelete, ShapeID: "missing"})
	nack := expect(t, a, TypeOpNack)
	var np OperationNackPayload
	require.NoError(t, json.Unmarshal(nack.Payload, &np))
	assert.Equal(t, "op2", np.OperationID)
	assert.Contains(t, np.Reason, "shape not found")
}

func TestHubPresence(t *testing.T) {
	store := newMemStore()
	h := startHub(t, store)
	a := join(t, h, "c1", "u1", "map_a")
	b := join(t, h, "c2", "u2", "map_a")

	msg, err := NewMessage(TypePresenceUpdate, PresencePayload{Cursor: &CursorPos{X: 5, Y: 6}, Tool: "rect"})
	require.NoError(t, err)
	h.handleMessage(a, msg)

	got := expect(t, b, TypePresenceUpdate)
	var p PresencePayload
	require.NoError(t, json.Unmarshal(got.Payload, &p))
	assert.Equal(t, "User u1", p.DisplayName)
	assert.Equal(t, "rect", p.Tool)
	assert.Equal(t, &CursorPos{X: 5, Y: 6}, p.Cursor)

	// A second tab of u1 does not announce u1 again, and closing it
	// does not announce a leave.
	a2 := join(t, h, "c3", "u1", "map_a")
	h.Unregister(a2)
	h.Unregister(a)
	left := expect(t, b, TypePresenceLeave)
	assert.Equal(t, "u1", left.UserID)
}

func TestHubSavesWhenRoomEmpties(t *testing.T) {
	store := newMemStore()
	h := startHub(t, store)
	a := join(t, h, "c1", "u1", "map_a")

	submit(t, h, a, Operation{ID: "op1", Type: OpShapeCreate, Shape: testRect("s1", 10)})
	expect(t, a, TypeOpAck)
	submit(t, h, a, Operation{ID: "op2", Type: OpMapRename, Name: "Atrium"})
	expect(t, a, TypeOpAck)

	h.Unregister(a)
	assert.Eventually(t, func() bool {
		_, saves := store.snapshot("map_a")
		return saves == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, h.Rooms())

	doc, _ := store.snapshot("map_a")
	require.NotNil(t, doc)
	assert.Equal(t, "Atrium", doc.Map.Name)
	require.Len(t, doc.Shapes, 1)
	assert.Equal(t, "s1", doc.Shapes[0].ID)
}

func TestHubStopFlushesDirtyRooms(t *testing.T) {
	store := newMemStore()
	h := NewHub(store.load, store.save, time.Hour)
	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()

	a := join(t, h, "c1", "u1", "map_a")
	submit(t, h, a, Operation{ID: "op1", Type: OpShapeCreate, Shape: testRect("s1", 10)})
	expect(t, a, TypeOpAck)

	h.Stop()
	<-done

	_, saves := store.snapshot("map_a")
	assert.Equal(t, 1, saves)
	assert.False(t, h.Register(NewClient(h, nil, "u2", "Bo", "map_a", "c2")))
	h.Stop()
}

func TestHubLoadFailureClosesClient(t *testing.T) {
	h := NewHub(func(context.Context, string) (*document.MapDocument, error) {
		return nil, context.DeadlineExceeded
	}, func(context.Context, string, *document.MapDocument) error { return nil }, time.Hour)
	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()
	defer func() {
		h.Stop()
		<-done
	}()

	c := NewClient(h, nil, "u1", "Ann", "map_x", "c1")
	require.True(t, h.Register(c))
	expect(t, c, TypeError)
	_, open := <-c.send
	assert.False(t, open)
	assert.Equal(t, 0, h.Rooms())
}

func TestHubReplaysForResumingClient(t *testing.T) {
	store := newMemStore()
	h := startHub(t, store)

	a := NewClient(h, nil, "u1", "Ann", "map_a", "c1")
	require.True(t, h.Register(a))
	var wp WelcomePayload
	require.NoError(t, json.Unmarshal(expect(t, a, TypeWelcome).Payload, &wp))
	require.NotEmpty(t, wp.Epoch)

	submit(t, h, a, Operation{ID: "op1", Type: OpShapeCreate, Shape: testRect("s1", 10)})
	expect(t, a, TypeOpAck)
	submit(t, h, a, Operation{ID: "op2", Type: OpShapeMove, ShapeID: "s1", DX: 5})
	expect(t, a, TypeOpAck)

	b := NewClient(h, nil, "u2", "Bo", "map_a", "c2")
	b.Resume = &ResumePoint{Epoch: wp.Epoch, Seq: 1}
	require.True(t, h.Register(b))

	var bw WelcomePayload
	require.NoError(t, json.Unmarshal(expect(t, b, TypeWelcome).Payload, &bw))
	assert.True(t, bw.Resumed)
	assert.Equal(t, int64(2), bw.ServerSeq)

	next := <-b.send
	var msg Message
	require.NoError(t, json.Unmarshal(next, &msg))
	require.Equal(t, TypeOpBroadcast, msg.Type, "no doc.sync on resume")
	var bp OperationBroadcastPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &bp))
	assert.Equal(t, int64(2), bp.ServerSeq)
	assert.Equal(t, OpShapeMove, bp.Operation.Type)

	c := NewClient(h, nil, "u3", "Cy", "map_a", "c3")
	c.Resume = &ResumePoint{Epoch: "stale", Seq: 1}
	require.True(t, h.Register(c))
	var cw WelcomePayload
	require.NoError(t, json.Unmarshal(expect(t, c, TypeWelcome).Payload, &cw))
	assert.False(t, cw.Resumed)
	expect(t, c, TypeDocSync)
}

func TestDocumentStateSince(t *testing.T) {
	ds := NewDocumentState(document.NewEmptyDocument("map_a", "Lobby"))
	_, err := ds.ApplyOperation(Operation{Type: OpMapRename, Name: "A"})
	require.NoError(t, err)

	_, ok := ds.Since(5)
	assert.False(t, ok, "a point beyond the log is from another epoch")
	_, ok = ds.Since(-1)
	assert.False(t, ok)
	assert.NotEqual(t, ds.Epoch(), NewDocumentState(document.NewEmptyDocument("map_a", "Lobby")).Epoch())
}
