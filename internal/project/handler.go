package project

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stargety/oasis-mapeditor/internal/auth"
	"github.com/stargety/oasis-mapeditor/internal/export"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the map endpoints on an authenticated router.
func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/maps", h.List).Methods("GET")
	r.HandleFunc("/maps", h.Create).Methods("POST")
	r.HandleFunc("/maps/{mapId}", h.Get).Methods("GET")
	r.HandleFunc("/maps/{mapId}", h.Delete).Methods("DELETE")
	r.HandleFunc("/maps/{mapId}/invite", h.Invite).Methods("POST")
	r.HandleFunc("/maps/{mapId}/members", h.ListMembers).Methods("GET")
	r.HandleFunc("/maps/{mapId}/members/{userId}", h.RemoveMember).Methods("DELETE")
	r.HandleFunc("/maps/{mapId}/snapshots/latest", h.GetLatestSnapshot).Methods("GET")
	r.HandleFunc("/maps/{mapId}/export.svg", h.ExportSVG).Methods("GET")
}

type createRequest struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type inviteRequest struct {
	Email string `json:"email"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	m, err := h.service.Create(r.Context(), req.Name, userID, req.Width, req.Height)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	mapID := mux.Vars(r)["mapId"]

	m, err := h.service.Get(r.Context(), mapID, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	maps, err := h.service.List(r.Context(), userID)
	if err != nil {
		slog.Error("list maps failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, maps)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	mapID := mux.Vars(r)["mapId"]

	if err := h.service.Delete(r.Context(), mapID, userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Invite(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	mapID := mux.Vars(r)["mapId"]

	var req inviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email is required"})
		return
	}

	if err := h.service.InviteByEmail(r.Context(), mapID, userID, req.Email); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "invited"})
}

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	mapID := mux.Vars(r)["mapId"]

	members, err := h.service.ListMembers(r.Context(), mapID, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, members)
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	vars := mux.Vars(r)

	if err := h.service.RemoveMember(r.Context(), vars["mapId"], userID, vars["userId"]); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	mapID := mux.Vars(r)["mapId"]

	doc, err := h.service.GetLatestSnapshot(r.Context(), mapID, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (h *Handler) ExportSVG(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	mapID := mux.Vars(r)["mapId"]

	opts, err := export.ParseOptions(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	doc, err := h.service.GetDocument(r.Context(), mapID, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	export.Respond(w, doc, opts)
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrCannotRemoveOwner):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrNotMember):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "not a map member"})
	case errors.Is(err, ErrInvalidMap):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid map"})
	default:
		slog.Error("service error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
