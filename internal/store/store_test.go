package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stargety/oasis-mapeditor/internal/typeid"
)

func TestSchemaDeclaresTables(t *testing.T) {
	for _, table := range []string{"users", "maps", "map_members", "map_snapshots"} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
}

// testQueries runs each test inside a transaction that is rolled back.
func testQueries(t *testing.T) *Queries {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback(context.Background()) })
	return New(pool).WithTx(tx)
}

func mustCreateUser(t *testing.T, q *Queries, name string) User {
	t.Helper()
	u, err := q.CreateUser(context.Background(), CreateUserParams{
		ID:          typeid.NewUserID(),
		Email:       strings.ToLower(name) + "@" + typeid.NewUserID() + ".test",
		Password:    "hash",
		DisplayName: name,
	})
	require.NoError(t, err)
	return u
}

func TestUsers(t *testing.T) {
	q := testQueries(t)
	ctx := context.Background()

	u := mustCreateUser(t, q, "Ann")
	got, err := q.GetUserByEmail(ctx, u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	got, err = q.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.DisplayName)

	_, err = q.GetUserByID(ctx, "user_missing")
	assert.True(t, errors.Is(err, pgx.ErrNoRows))
}

func TestMapsAndMembers(t *testing.T) {
	q := testQueries(t)
	ctx := context.Background()
	owner := mustCreateUser(t, q, "Owner")
	guest := mustCreateUser(t, q, "Guest")

	m, err := q.CreateMap(ctx, CreateMapParams{ID: typeid.NewMapID(), Name: "Lobby", OwnerID: owner.ID, Width: 1920, Height: 1080})
	require.NoError(t, err)
	require.NoError(t, q.AddMapMember(ctx, AddMapMemberParams{MapID: m.ID, UserID: owner.ID, Role: MapRoleOwner}))
	require.NoError(t, q.AddMapMember(ctx, AddMapMemberParams{MapID: m.ID, UserID: guest.ID, Role: MapRoleEditor}))
	// Adding twice is a no-op.
	require.NoError(t, q.AddMapMember(ctx, AddMapMemberParams{MapID: m.ID, UserID: guest.ID, Role: MapRoleEditor}))

	members, err := q.ListMapMembers(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, MapRoleOwner, members[0].Role)

	maps, err := q.ListMapsForUser(ctx, guest.ID)
	require.NoError(t, err)
	require.Len(t, maps, 1)
	assert.Equal(t, "Lobby", maps[0].Name)

	require.NoError(t, q.UpdateMapInfo(ctx, UpdateMapInfoParams{ID: m.ID, Name: "Atrium", Width: 800, Height: 600}))
	m, err = q.GetMap(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Atrium", m.Name)
	assert.Equal(t, int32(800), m.Width)

	require.NoError(t, q.RemoveMapMember(ctx, RemoveMapMemberParams{MapID: m.ID, UserID: guest.ID}))
	_, err = q.GetMapMember(ctx, GetMapMemberParams{MapID: m.ID, UserID: guest.ID})
	assert.ErrorIs(t, err, pgx.ErrNoRows)

	require.NoError(t, q.DeleteMap(ctx, m.ID))
	_, err = q.GetMap(ctx, m.ID)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestSnapshots(t *testing.T) {
	q := testQueries(t)
	ctx := context.Background()
	owner := mustCreateUser(t, q, "Owner")
	m, err := q.CreateMap(ctx, CreateMapParams{ID: typeid.NewMapID(), Name: "Lobby", OwnerID: owner.ID, Width: 10, Height: 10})
	require.NoError(t, err)

	_, err = q.GetLatestSnapshot(ctx, m.ID)
	assert.ErrorIs(t, err, pgx.ErrNoRows)

	for i := 1; i <= 3; i++ {
		s, err := q.CreateSnapshot(ctx, CreateSnapshotParams{
			ID:       typeid.NewSnapshotID(),
			MapID:    m.ID,
			Document: json.RawMessage(`{"n":` + string(rune('0'+i)) + `}`),
		})
		require.NoError(t, err)
		assert.Equal(t, int32(i), s.Version)
	}

	latest, err := q.GetLatestSnapshot(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(3), latest.Version)
	assert.JSONEq(t, `{"n":3}`, string(latest.Document))

	n, err := q.PruneSnapshots(ctx, PruneSnapshotsParams{MapID: m.ID, Keep: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
