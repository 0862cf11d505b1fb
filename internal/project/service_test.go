package project

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stargety/oasis-mapeditor/internal/auth"
	"github.com/stargety/oasis-mapeditor/internal/document"
	"github.com/stargety/oasis-mapeditor/internal/geom"
	"github.com/stargety/oasis-mapeditor/internal/shape"
	"github.com/stargety/oasis-mapeditor/internal/store"
)

type memQueries struct {
	mu        sync.Mutex
	users     map[string]store.User
	maps      map[string]store.Map
	members   map[string]map[string]store.MapRole
	snapshots map[string][]store.Snapshot
}

func newMemQueries() *memQueries {
	return &memQueries{
		users:     make(map[string]store.User),
		maps:      make(map[string]store.Map),
		members:   make(map[string]map[string]store.MapRole),
		snapshots: make(map[string][]store.Snapshot),
	}
}

func (q *memQueries) addUser(id, email string) {
	q.users[id] = store.User{ID: id, Email: email, DisplayName: strings.ToUpper(id)}
}

func (q *memQueries) CreateMap(_ context.Context, arg store.CreateMapParams) (store.Map, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	m := store.Map{ID: arg.ID, Name: arg.Name, OwnerID: arg.OwnerID, Width: arg.Width, Height: arg.Height, CreatedAt: now, UpdatedAt: now}
	q.maps[m.ID] = m
	return m, nil
}

func (q *memQueries) GetMap(_ context.Context, id string) (store.Map, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	m, ok := q.maps[id]
	if !ok {
		return store.Map{}, pgx.ErrNoRows
	}
	return m, nil
}

func (q *memQueries) ListMapsForUser(_ context.Context, userID string) ([]store.Map, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []store.Map
	for id, members := range q.members {
		if _, ok := members[userID]; ok {
			out = append(out, q.maps[id])
		}
	}
	return out, nil
}

func (q *memQueries) UpdateMapInfo(_ context.Context, arg store.UpdateMapInfoParams) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	m := q.maps[arg.ID]
	m.Name, m.Width, m.Height = arg.Name, arg.Width, arg.Height
	q.maps[arg.ID] = m
	return nil
}

func (q *memQueries) DeleteMap(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.maps, id)
	delete(q.members, id)
	delete(q.snapshots, id)
	return nil
}

func (q *memQueries) AddMapMember(_ context.Context, arg store.AddMapMemberParams) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.members[arg.MapID] == nil {
		q.members[arg.MapID] = make(map[string]store.MapRole)
	}
	if _, ok := q.members[arg.MapID][arg.UserID]; !ok {
		q.members[arg.MapID][arg.UserID] = arg.Role
	}
	return nil
}

func (q *memQueries) GetMapMember(_ context.Context, arg store.GetMapMemberParams) (store.MapMember, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	role, ok := q.members[arg.MapID][arg.UserID]
	if !ok {
		return store.MapMember{}, pgx.ErrNoRows
	}
	return store.MapMember{MapID: arg.MapID, UserID: arg.UserID, Role: role}, nil
}

func (q *memQueries) ListMapMembers(_ context.Context, mapID string) ([]store.MapMemberRow, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []store.MapMemberRow
	for userID, role := range q.members[mapID] {
		u := q.users[userID]
		out = append(out, store.MapMemberRow{UserID: userID, Role: role, DisplayName: u.DisplayName, Email: u.Email})
	}
	return out, nil
}

func (q *memQueries) RemoveMapMember(_ context.Context, arg store.RemoveMapMemberParams) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.members[arg.MapID], arg.UserID)
	return nil
}

func (q *memQueries) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, u := range q.users {
		if u.Email == email {
			return u, nil
		}
	}
	return store.User{}, pgx.ErrNoRows
}

func (q *memQueries) CreateSnapshot(_ context.Context, arg store.CreateSnapshotParams) (store.Snapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	snaps := q.snapshots[arg.MapID]
	s := store.Snapshot{ID: arg.ID, MapID: arg.MapID, Version: int32(len(snaps) + 1), Document: arg.Document}
	if len(snaps) > 0 {
		s.Version = snaps[len(snaps)-1].Version + 1
	}
	q.snapshots[arg.MapID] = append(snaps, s)
	return s, nil
}

func (q *memQueries) GetLatestSnapshot(_ context.Context, mapID string) (store.Snapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	snaps := q.snapshots[mapID]
	if len(snaps) == 0 {
		return store.Snapshot{}, pgx.ErrNoRows
	}
	return snaps[len(snaps)-1], nil
}

func (q *memQueries) PruneSnapshots(_ context.Context, arg store.PruneSnapshotsParams) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	snaps := q.snapshots[arg.MapID]
	if int32(len(snaps)) <= arg.Keep {
		return 0, nil
	}
	n := len(snaps) - int(arg.Keep)
	q.snapshots[arg.MapID] = append([]store.Snapshot(nil), snaps[n:]...)
	return int64(n), nil
}

func TestCreateSeedsSnapshot(t *testing.T) {
	q := newMemQueries()
	q.addUser("owner", "owner@x.test")
	s := NewService(q, 0)
	ctx := context.Background()

	m, err := s.Create(ctx, "  Lobby ", "owner", 0, 720)
	require.NoError(t, err)
	assert.Equal(t, "Lobby", m.Name)
	assert.Equal(t, 1920, m.Width)
	assert.Equal(t, 720, m.Height)

	doc, err := s.GetDocument(ctx, m.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, m.ID, doc.Map.ID)
	assert.Empty(t, doc.Shapes)

	_, err = s.Create(ctx, " ", "owner", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidMap)
	_, err = s.Create(ctx, "Wide", "owner", document.MaxMapSize+1, 0)
	assert.ErrorIs(t, err, ErrInvalidMap)

	maps, err := s.List(ctx, "owner")
	require.NoError(t, err)
	assert.Len(t, maps, 1)
}

func TestMembership(t *testing.T) {
	q := newMemQueries()
	q.addUser("owner", "owner@x.test")
	q.addUser("guest", "guest@x.test")
	s := NewService(q, 0)
	ctx := context.Background()

	m, err := s.Create(ctx, "Lobby", "owner", 0, 0)
	require.NoError(t, err)

	_, err = s.Get(ctx, m.ID, "guest")
	assert.ErrorIs(t, err, ErrNotMember)

	assert.ErrorIs(t, s.InviteByEmail(ctx, m.ID, "guest", "guest@x.test"), ErrForbidden)
	assert.ErrorIs(t, s.InviteByEmail(ctx, m.ID, "owner", "nobody@x.test"), ErrUserNotFound)
	require.NoError(t, s.InviteByEmail(ctx, m.ID, "owner", " Guest@X.test "))

	got, err := s.Get(ctx, m.ID, "guest")
	require.NoError(t, err)
	assert.Equal(t, "owner", got.OwnerID)

	members, err := s.ListMembers(ctx, m.ID, "guest")
	require.NoError(t, err)
	assert.Len(t, members, 2)

	assert.ErrorIs(t, s.RemoveMember(ctx, m.ID, "owner", "owner"), ErrCannotRemoveOwner)
	assert.ErrorIs(t, s.Delete(ctx, m.ID, "guest"), ErrForbidden)
	require.NoError(t, s.RemoveMember(ctx, m.ID, "owner", "guest"))
	assert.ErrorIs(t, s.CheckMembership(ctx, m.ID, "guest"), ErrNotMember)

	require.NoError(t, s.Delete(ctx, m.ID, "owner"))
	assert.ErrorIs(t, s.Delete(ctx, m.ID, "owner"), ErrNotFound)
}

func TestSaveAndLoadDocument(t *testing.T) {
	q := newMemQueries()
	q.addUser("owner", "owner@x.test")
	s := NewService(q, 2)
	ctx := context.Background()

	missing, err := s.LoadDocument(ctx, "map_unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)

	m, err := s.Create(ctx, "Lobby", "owner", 0, 0)
	require.NoError(t, err)

	doc, err := s.LoadDocument(ctx, m.ID)
	require.NoError(t, err)
	doc.Map.Name = "Atrium"
	doc.Shapes = append(doc.Shapes, shape.New("wall", shape.CategoryCollision, shape.RectGeometry(geom.Rect{Width: 10, Height: 10})))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.SaveDocument(ctx, m.ID, doc))
	}

	assert.Len(t, q.snapshots[m.ID], 2)
	assert.Equal(t, "Atrium", q.maps[m.ID].Name)

	loaded, err := s.LoadDocument(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Shapes, 1)
	assert.Equal(t, "wall", loaded.Shapes[0].ID)

	doc.Map.Width = document.MaxMapSize + 1
	assert.ErrorIs(t, s.SaveDocument(ctx, m.ID, doc), ErrInvalidMap)
	assert.Len(t, q.snapshots[m.ID], 2)
	assert.Equal(t, int32(1920), q.maps[m.ID].Width)
}

func newRouter(t *testing.T) (*mux.Router, *Service) {
	t.Helper()
	q := newMemQueries()
	q.addUser("owner", "owner@x.test")
	s := NewService(q, 0)
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), r.Header.Get("X-User"))))
		})
	})
	NewHandler(s).Routes(api)
	return r, s
}

func do(r http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-User", user)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRoutes(t *testing.T) {
	r, _ := newRouter(t)

	rec := do(r, http.MethodPost, "/api/maps", "owner", `{"name":"Lobby"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var m Map
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))

	rec = do(r, http.MethodPost, "/api/maps", "owner", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, http.MethodGet, "/api/maps/"+m.ID, "stranger", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(r, http.MethodGet, "/api/maps/"+m.ID+"/snapshots/latest", "owner", "")
	require.Equal(t, http.StatusOK, rec.Code)
	doc, err := document.Parse(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "Lobby", doc.Map.Name)

	rec = do(r, http.MethodGet, "/api/maps/"+m.ID+"/export.svg", "owner", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<title>Lobby</title>")

	rec = do(r, http.MethodPost, "/api/maps/"+m.ID+"/invite", "owner", `{"email":"ghost@x.test"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(r, http.MethodDelete, "/api/maps/"+m.ID+"/members/owner", "owner", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(r, http.MethodDelete, "/api/maps/"+m.ID, "owner", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(r, http.MethodGet, "/api/maps", "owner", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
