package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apimw "github.com/questdeck/questdeck/internal/api/middleware"
	"github.com/questdeck/questdeck/internal/session"
)

// SessionHandler handles session lifecycle endpoints. Joining registers the
// participant and returns their client id; the streaming transport drains the
// participant's channel separately.
type SessionHandler struct {
	sessions *session.Manager
	buffer   int
	logger   *zap.Logger
}

func NewSessionHandler(sessions *session.Manager, buffer int, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, buffer: buffer, logger: logger}
}

type createSessionRequest struct {
	WorldID string `json:"world_id"`
}

// Create handles POST /api/v1/sessions
//
// @Summary  Start a new play session
// @Tags     sessions
// @Accept   json
// @Produce  json
// @Param    body  body      createSessionRequest  true  "Session payload"
// @Success  201   {object}  map[string]string
// @Router   /api/v1/sessions [post]
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id := h.sessions.Create(req.WorldID)
	respondJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

// List handles GET /api/v1/sessions
//
// @Summary  List active session ids
// @Tags     sessions
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/sessions [get]
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"sessions": h.sessions.SessionIDs()})
}

type joinSessionRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Join handles POST /api/v1/sessions/{id}/join
//
// @Summary  Join a session as dm, player, or spectator
// @Tags     sessions
// @Accept   json
// @Produce  json
// @Param    id    path      string              true  "Session UUID"
// @Param    body  body      joinSessionRequest  true  "Join payload"
// @Success  200   {object}  map[string]string
// @Failure  404   {object}  map[string]string
// @Failure  409   {object}  map[string]string
// @Router   /api/v1/sessions/{id}/join [post]
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req joinSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	role := session.Role(req.Role)
	if role != session.RoleDM && role != session.RolePlayer && role != session.RoleSpectator {
		respondError(w, http.StatusUnprocessableEntity, "role must be dm, player, or spectator")
		return
	}

	clientID := uuid.New().String()
	if _, err := h.sessions.Join(sessionID, clientID, req.UserID, role, h.buffer); err != nil {
		mapError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"session_id": sessionID,
		"client_id":  clientID,
	})
}

// Leave handles POST /api/v1/sessions/{id}/leave
//
// @Summary  Leave a session
// @Tags     sessions
// @Param    id  path  string  true  "Session UUID"
// @Success  204
// @Router   /api/v1/sessions/{id}/leave [post]
func (h *SessionHandler) Leave(w http.ResponseWriter, r *http.Request) {
	clientID := apimw.GetClientID(r.Context())
	if clientID == "" {
		respondError(w, http.StatusBadRequest, "X-Client-ID header is required")
		return
	}
	if err := h.sessions.Leave(clientID); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// History handles GET /api/v1/sessions/{id}/history
//
// @Summary  Conversation history of a session
// @Tags     sessions
// @Produce  json
// @Param    id   path      string  true  "Session UUID"
// @Success  200  {object}  map[string]any
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/sessions/{id}/history [get]
func (h *SessionHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	history, err := h.sessions.History(sessionID)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"history": history})
}
