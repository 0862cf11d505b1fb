package store

import (
	"context"
	"encoding/json"
	"time"
)

type MapRole string

const (
	MapRoleOwner  MapRole = "owner"
	MapRoleEditor MapRole = "editor"
	MapRoleViewer MapRole = "viewer"
)

type User struct {
	ID          string
	Email       string
	Password    string
	DisplayName string
	CreatedAt   time.Time
}

type Map struct {
	ID        string
	Name      string
	OwnerID   string
	Width     int32
	Height    int32
	CreatedAt time.Time
	UpdatedAt time.Time
}

type MapMember struct {
	MapID     string
	UserID    string
	Role      MapRole
	CreatedAt time.Time
}

// MapMemberRow is a member joined with their user record.
type MapMemberRow struct {
	UserID      string
	Role        MapRole
	DisplayName string
	Email       string
}

type Snapshot struct {
	ID        string
	MapID     string
	Version   int32
	Document  json.RawMessage
	CreatedAt time.Time
}

type CreateUserParams struct {
	ID          string
	Email       string
	Password    string
	DisplayName string
}

const createUser = `INSERT INTO users (id, email, password, display_name)
VALUES ($1, $2, $3, $4)
RETURNING id, email, password, display_name, created_at`

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	var u User
	err := q.db.QueryRow(ctx, createUser, arg.ID, arg.Email, arg.Password, arg.DisplayName).
		Scan(&u.ID, &u.Email, &u.Password, &u.DisplayName, &u.CreatedAt)
	return u, err
}

const getUserByEmail = `SELECT id, email, password, display_name, created_at FROM users WHERE email = $1`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := q.db.QueryRow(ctx, getUserByEmail, email).
		Scan(&u.ID, &u.Email, &u.Password, &u.DisplayName, &u.CreatedAt)
	return u, err
}

const getUserByID = `SELECT id, email, password, display_name, created_at FROM users WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	var u User
	err := q.db.QueryRow(ctx, getUserByID, id).
		Scan(&u.ID, &u.Email, &u.Password, &u.DisplayName, &u.CreatedAt)
	return u, err
}

type CreateMapParams struct {
	ID      string
	Name    string
	OwnerID string
	Width   int32
	Height  int32
}

const createMap = `INSERT INTO maps (id, name, owner_id, width, height)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, name, owner_id, width, height, created_at, updated_at`

func (q *Queries) CreateMap(ctx context.Context, arg CreateMapParams) (Map, error) {
	return scanMap(q.db.QueryRow(ctx, createMap, arg.ID, arg.Name, arg.OwnerID, arg.Width, arg.Height))
}

const getMap = `SELECT id, name, owner_id, width, height, created_at, updated_at FROM maps WHERE id = $1`

func (q *Queries) GetMap(ctx context.Context, id string) (Map, error) {
	return scanMap(q.db.QueryRow(ctx, getMap, id))
}

const listMapsForUser = `SELECT m.id, m.name, m.owner_id, m.width, m.height, m.created_at, m.updated_at
FROM maps m
JOIN map_members mm ON mm.map_id = m.id
WHERE mm.user_id = $1
ORDER BY m.updated_at DESC`

func (q *Queries) ListMapsForUser(ctx context.Context, userID string) ([]Map, error) {
	rows, err := q.db.Query(ctx, listMapsForUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var maps []Map
	for rows.Next() {
		m, err := scanMap(rows)
		if err != nil {
			return nil, err
		}
		maps = append(maps, m)
	}
	return maps, rows.Err()
}

type UpdateMapInfoParams struct {
	ID     string
	Name   string
	Width  int32
	Height int32
}

const updateMapInfo = `UPDATE maps SET name = $2, width = $3, height = $4, updated_at = now() WHERE id = $1`

// UpdateMapInfo mirrors the document's map metadata into the maps row.
func (q *Queries) UpdateMapInfo(ctx context.Context, arg UpdateMapInfoParams) error {
	_, err := q.db.Exec(ctx, updateMapInfo, arg.ID, arg.Name, arg.Width, arg.Height)
	return err
}

const deleteMap = `DELETE FROM maps WHERE id = $1`

func (q *Queries) DeleteMap(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, deleteMap, id)
	return err
}

type AddMapMemberParams struct {
	MapID  string
	UserID string
	Role   MapRole
}

const addMapMember = `INSERT INTO map_members (map_id, user_id, role) VALUES ($1, $2, $3)
ON CONFLICT (map_id, user_id) DO NOTHING`

func (q *Queries) AddMapMember(ctx context.Context, arg AddMapMemberParams) error {
	_, err := q.db.Exec(ctx, addMapMember, arg.MapID, arg.UserID, string(arg.Role))
	return err
}

type GetMapMemberParams struct {
	MapID  string
	UserID string
}

const getMapMember = `SELECT map_id, user_id, role, created_at FROM map_members WHERE map_id = $1 AND user_id = $2`

func (q *Queries) GetMapMember(ctx context.Context, arg GetMapMemberParams) (MapMember, error) {
	var m MapMember
	var role string
	err := q.db.QueryRow(ctx, getMapMember, arg.MapID, arg.UserID).
		Scan(&m.MapID, &m.UserID, &role, &m.CreatedAt)
	m.Role = MapRole(role)
	return m, err
}

const listMapMembers = `SELECT mm.user_id, mm.role, u.display_name, u.email
FROM map_members mm
JOIN users u ON u.id = mm.user_id
WHERE mm.map_id = $1
ORDER BY mm.created_at`

func (q *Queries) ListMapMembers(ctx context.Context, mapID string) ([]MapMemberRow, error) {
	rows, err := q.db.Query(ctx, listMapMembers, mapID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []MapMemberRow
	for rows.Next() {
		var m MapMemberRow
		var role string
		if err := rows.Scan(&m.UserID, &role, &m.DisplayName, &m.Email); err != nil {
			return nil, err
		}
		m.Role = MapRole(role)
		members = append(members, m)
	}
	return members, rows.Err()
}

type RemoveMapMemberParams struct {
	MapID  string
	UserID string
}

const removeMapMember = `DELETE FROM map_members WHERE map_id = $1 AND user_id = $2`

func (q *Queries) RemoveMapMember(ctx context.Context, arg RemoveMapMemberParams) error {
	_, err := q.db.Exec(ctx, removeMapMember, arg.MapID, arg.UserID)
	return err
}

type CreateSnapshotParams struct {
	ID       string
	MapID    string
	Document json.RawMessage
}

// The version is one past the map's latest snapshot.
const createSnapshot = `INSERT INTO map_snapshots (id, map_id, version, document)
VALUES ($1, $2, COALESCE((SELECT MAX(version) FROM map_snapshots WHERE map_id = $2), 0) + 1, $3)
RETURNING id, map_id, version, document, created_at`

func (q *Queries) CreateSnapshot(ctx context.Context, arg CreateSnapshotParams) (Snapshot, error) {
	var s Snapshot
	err := q.db.QueryRow(ctx, createSnapshot, arg.ID, arg.MapID, []byte(arg.Document)).
		Scan(&s.ID, &s.MapID, &s.Version, &s.Document, &s.CreatedAt)
	return s, err
}

const getLatestSnapshot = `SELECT id, map_id, version, document, created_at
FROM map_snapshots WHERE map_id = $1
ORDER BY version DESC LIMIT 1`

func (q *Queries) GetLatestSnapshot(ctx context.Context, mapID string) (Snapshot, error) {
	var s Snapshot
	err := q.db.QueryRow(ctx, getLatestSnapshot, mapID).
		Scan(&s.ID, &s.MapID, &s.Version, &s.Document, &s.CreatedAt)
	return s, err
}

type PruneSnapshotsParams struct {
	MapID string
	Keep  int32
}

const pruneSnapshots = `DELETE FROM map_snapshots
WHERE map_id = $1 AND version <= COALESCE((SELECT MAX(version) FROM map_snapshots WHERE map_id = $1), 0) - $2`

// PruneSnapshots deletes all but the newest Keep snapshots of a map and
// returns how many rows went.
func (q *Queries) PruneSnapshots(ctx context.Context, arg PruneSnapshotsParams) (int64, error) {
	tag, err := q.db.Exec(ctx, pruneSnapshots, arg.MapID, arg.Keep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMap(row rowScanner) (Map, error) {
	var m Map
	err := row.Scan(&m.ID, &m.Name, &m.OwnerID, &m.Width, &m.Height, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}
