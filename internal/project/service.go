package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/stargety/oasis-mapeditor/internal/document"
	"github.com/stargety/oasis-mapeditor/internal/store"
	"github.com/stargety/oasis-mapeditor/internal/typeid"
)

var (
	ErrNotFound          = errors.New("map not found")
	ErrForbidden         = errors.New("forbidden")
	ErrNotMember         = errors.New("not a map member")
	ErrUserNotFound      = errors.New("user not found")
	ErrCannotRemoveOwner = errors.New("cannot remove map owner")
	ErrInvalidMap        = errors.New("invalid map")
)

// Queries is the subset of store.Queries the service runs.
type Queries interface {
	CreateMap(ctx context.Context, arg store.CreateMapParams) (store.Map, error)
	GetMap(ctx context.Context, id string) (store.Map, error)
	ListMapsForUser(ctx context.Context, userID string) ([]store.Map, error)
	UpdateMapInfo(ctx context.Context, arg store.UpdateMapInfoParams) error
	DeleteMap(ctx context.Context, id string) error
	AddMapMember(ctx context.Context, arg store.AddMapMemberParams) error
	GetMapMember(ctx context.Context, arg store.GetMapMemberParams) (store.MapMember, error)
	ListMapMembers(ctx context.Context, mapID string) ([]store.MapMemberRow, error)
	RemoveMapMember(ctx context.Context, arg store.RemoveMapMemberParams) error
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateSnapshot(ctx context.Context, arg store.CreateSnapshotParams) (store.Snapshot, error)
	GetLatestSnapshot(ctx context.Context, mapID string) (store.Snapshot, error)
	PruneSnapshots(ctx context.Context, arg store.PruneSnapshotsParams) (int64, error)
}

type Service struct {
	queries   Queries
	retention int32
}

// NewService keeps the newest retention snapshots per map; zero keeps all.
func NewService(queries Queries, retention int) *Service {
	return &Service{queries: queries, retention: int32(retention)}
}

type Map struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	OwnerID   string `json:"ownerId"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type Member struct {
	UserID      string `json:"userId"`
	Role        string `json:"role"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// Create makes a map owned by ownerID and seeds it with an empty document.
// Zero width or height takes the document default.
func (s *Service) Create(ctx context.Context, name, ownerID string, width, height int) (*Map, error) {
	name = strings.TrimSpace(name)
	if name == "" || width < 0 || height < 0 || width > document.MaxMapSize || height > document.MaxMapSize {
		return nil, ErrInvalidMap
	}

	mapID := typeid.NewMapID()
	doc := document.NewEmptyDocument(mapID, name)
	if width > 0 {
		doc.Map.Width = width
	}
	if height > 0 {
		doc.Map.Height = height
	}

	dbMap, err := s.queries.CreateMap(ctx, store.CreateMapParams{
		ID:      mapID,
		Name:    name,
		OwnerID: ownerID,
		Width:   int32(doc.Map.Width),
		Height:  int32(doc.Map.Height),
	})
	if err != nil {
		return nil, fmt.Errorf("create map: %w", err)
	}

	err = s.queries.AddMapMember(ctx, store.AddMapMemberParams{
		MapID:  mapID,
		UserID: ownerID,
		Role:   store.MapRoleOwner,
	})
	if err != nil {
		return nil, fmt.Errorf("add owner as member: %w", err)
	}

	if err := s.writeSnapshot(ctx, mapID, doc); err != nil {
		return nil, fmt.Errorf("create initial snapshot: %w", err)
	}

	return toMap(dbMap), nil
}

func (s *Service) Get(ctx context.Context, mapID, userID string) (*Map, error) {
	if err := s.CheckMembership(ctx, mapID, userID); err != nil {
		return nil, err
	}

	dbMap, err := s.getMap(ctx, mapID)
	if err != nil {
		return nil, err
	}
	return toMap(dbMap), nil
}

func (s *Service) List(ctx context.Context, userID string) ([]Map, error) {
	dbMaps, err := s.queries.ListMapsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list maps: %w", err)
	}

	maps := make([]Map, len(dbMaps))
	for i, m := range dbMaps {
		maps[i] = *toMap(m)
	}
	return maps, nil
}

func (s *Service) Delete(ctx context.Context, mapID, userID string) error {
	if _, err := s.ownedMap(ctx, mapID, userID); err != nil {
		return err
	}
	return s.queries.DeleteMap(ctx, mapID)
}

func (s *Service) InviteByEmail(ctx context.Context, mapID, ownerID, inviteeEmail string) error {
	if _, err := s.ownedMap(ctx, mapID, ownerID); err != nil {
		return err
	}

	invitee, err := s.queries.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(inviteeEmail)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("find user: %w", err)
	}

	return s.queries.AddMapMember(ctx, store.AddMapMemberParams{
		MapID:  mapID,
		UserID: invitee.ID,
		Role:   store.MapRoleEditor,
	})
}

func (s *Service) ListMembers(ctx context.Context, mapID, userID string) ([]Member, error) {
	if err := s.CheckMembership(ctx, mapID, userID); err != nil {
		return nil, err
	}

	rows, err := s.queries.ListMapMembers(ctx, mapID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	members := make([]Member, len(rows))
	for i, m := range rows {
		members[i] = Member{
			UserID:      m.UserID,
			Role:        string(m.Role),
			DisplayName: m.DisplayName,
			Email:       m.Email,
		}
	}
	return members, nil
}

func (s *Service) RemoveMember(ctx context.Context, mapID, ownerID, targetUserID string) error {
	if _, err := s.ownedMap(ctx, mapID, ownerID); err != nil {
		return err
	}
	if targetUserID == ownerID {
		return ErrCannotRemoveOwner
	}

	return s.queries.RemoveMapMember(ctx, store.RemoveMapMemberParams{
		MapID:  mapID,
		UserID: targetUserID,
	})
}

// GetLatestSnapshot returns the newest stored document JSON.
func (s *Service) GetLatestSnapshot(ctx context.Context, mapID, userID string) (json.RawMessage, error) {
	if err := s.CheckMembership(ctx, mapID, userID); err != nil {
		return nil, err
	}

	snap, err := s.queries.GetLatestSnapshot(ctx, mapID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return snap.Document, nil
}

// GetDocument is GetLatestSnapshot decoded.
func (s *Service) GetDocument(ctx context.Context, mapID, userID string) (*document.MapDocument, error) {
	raw, err := s.GetLatestSnapshot(ctx, mapID, userID)
	if err != nil {
		return nil, err
	}
	return document.Parse(raw)
}

// LoadDocument returns the newest stored document of a map, or nil when
// none was ever saved. It does no membership check.
func (s *Service) LoadDocument(ctx context.Context, mapID string) (*document.MapDocument, error) {
	snap, err := s.queries.GetLatestSnapshot(ctx, mapID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return document.Parse(snap.Document)
}

// SaveDocument stores doc as the map's newest snapshot, mirrors its name
// and size into the map row and prunes old snapshots.
func (s *Service) SaveDocument(ctx context.Context, mapID string, doc *document.MapDocument) error {
	if !document.ValidSize(doc.Map.Width) || !document.ValidSize(doc.Map.Height) {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidMap, doc.Map.Width, doc.Map.Height)
	}
	if err := s.writeSnapshot(ctx, mapID, doc); err != nil {
		return err
	}

	err := s.queries.UpdateMapInfo(ctx, store.UpdateMapInfoParams{
		ID:     mapID,
		Name:   doc.Map.Name,
		Width:  int32(doc.Map.Width),
		Height: int32(doc.Map.Height),
	})
	if err != nil {
		return fmt.Errorf("update map info: %w", err)
	}

	if s.retention > 0 {
		if _, err := s.queries.PruneSnapshots(ctx, store.PruneSnapshotsParams{MapID: mapID, Keep: s.retention}); err != nil {
			return fmt.Errorf("prune snapshots: %w", err)
		}
	}
	return nil
}

func (s *Service) CheckMembership(ctx context.Context, mapID, userID string) error {
	_, err := s.queries.GetMapMember(ctx, store.GetMapMemberParams{
		MapID:  mapID,
		UserID: userID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotMember
		}
		return fmt.Errorf("check membership: %w", err)
	}
	return nil
}

func (s *Service) writeSnapshot(ctx context.Context, mapID string, doc *document.MapDocument) error {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	_, err = s.queries.CreateSnapshot(ctx, store.CreateSnapshotParams{
		ID:       typeid.NewSnapshotID(),
		MapID:    mapID,
		Document: docJSON,
	})
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	return nil
}

func (s *Service) getMap(ctx context.Context, mapID string) (store.Map, error) {
	dbMap, err := s.queries.GetMap(ctx, mapID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Map{}, ErrNotFound
		}
		return store.Map{}, fmt.Errorf("get map: %w", err)
	}
	return dbMap, nil
}

func (s *Service) ownedMap(ctx context.Context, mapID, userID string) (store.Map, error) {
	dbMap, err := s.getMap(ctx, mapID)
	if err != nil {
		return store.Map{}, err
	}
	if dbMap.OwnerID != userID {
		return store.Map{}, ErrForbidden
	}
	return dbMap, nil
}

func toMap(m store.Map) *Map {
	return &Map{
		ID:        m.ID,
		Name:      m.Name,
		OwnerID:   m.OwnerID,
		Width:     int(m.Width),
		Height:    int(m.Height),
		CreatedAt: m.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		UpdatedAt: m.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}
