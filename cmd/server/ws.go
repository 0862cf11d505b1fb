package main

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/stargety/oasis-mapeditor/internal/auth"
	"github.com/stargety/oasis-mapeditor/internal/collab"
	"github.com/stargety/oasis-mapeditor/internal/project"
)

// wsHandler upgrades /ws/map/{mapId} to a collaboration connection. Real
// maps need ?token= from a member; the playground map admits anyone. A
// reconnecting client may pass ?epoch=&since= to get the operations it
// missed instead of the whole document.
type wsHandler struct {
	hub            *collab.Hub
	auth           *auth.Service
	maps           *project.Service
	playgroundID   string
	originPatterns []string
}

func (h *wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mapID := mux.Vars(r)["mapId"]

	var userID, displayName string
	if mapID == h.playgroundID {
		userID = "anon-" + uuid.New().String()[:8]
		displayName = "Anonymous"
	} else {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		var err error
		userID, err = h.auth.ValidateToken(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		if err := h.maps.CheckMembership(r.Context(), mapID, userID); err != nil {
			if errors.Is(err, project.ErrNotMember) {
				http.Error(w, "not a map member", http.StatusForbidden)
				return
			}
			slog.Error("check membership", "error", err, "map", mapID)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		user, err := h.auth.GetUser(r.Context(), userID)
		if err != nil {
			http.Error(w, "user not found", http.StatusInternalServerError)
			return
		}
		displayName = user.DisplayName
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Error("websocket accept", "error", err)
		return
	}

	client := collab.NewClient(h.hub, conn, userID, displayName, mapID, uuid.New().String())
	client.Resume = resumePoint(r)
	if !h.hub.Register(client) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	ctx := r.Context()
	go client.WritePump(ctx)
	client.ReadPump(ctx)
}

func resumePoint(r *http.Request) *collab.ResumePoint {
	q := r.URL.Query()
	epoch := q.Get("epoch")
	if epoch == "" {
		return nil
	}
	since, err := strconv.ParseInt(q.Get("since"), 10, 64)
	if err != nil || since < 0 {
		return nil
	}
	return &collab.ResumePoint{Epoch: epoch, Seq: since}
}
