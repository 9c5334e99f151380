package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/questdeck/questdeck/internal/api/middleware"
	"github.com/questdeck/questdeck/internal/domain"
	"github.com/questdeck/questdeck/internal/game"
)

// ActionHandler handles player and DM submission endpoints. Submissions are
// queued, never processed inline; the 202 response carries the queue item id.
type ActionHandler struct {
	svc    *game.Service
	logger *zap.Logger
}

func NewActionHandler(svc *game.Service, logger *zap.Logger) *ActionHandler {
	return &ActionHandler{svc: svc, logger: logger}
}

// SubmitPlayerAction handles POST /api/v1/sessions/{id}/actions
//
// @Summary  Submit a player action
// @Tags     actions
// @Accept   json
// @Produce  json
// @Param    id    path      string              true  "Session UUID"
// @Param    body  body      domain.PlayerAction true  "Action payload"
// @Success  202   {object}  map[string]string
// @Failure  404   {object}  map[string]string
// @Failure  422   {object}  map[string]string
// @Router   /api/v1/sessions/{id}/actions [post]
func (h *ActionHandler) SubmitPlayerAction(w http.ResponseWriter, r *http.Request) {
	var action domain.PlayerAction
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	action.SessionID = chi.URLParam(r, "id")

	id, err := h.svc.SubmitPlayerAction(r.Context(), action)
	if err != nil {
		h.logger.Warn("player action rejected",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"item_id": id})
}

// SubmitDMAction handles POST /api/v1/sessions/{id}/dm-actions
//
// @Summary  Submit a DM command
// @Tags     actions
// @Accept   json
// @Produce  json
// @Param    id    path      string          true  "Session UUID"
// @Param    body  body      domain.DMAction true  "Command payload"
// @Success  202   {object}  map[string]string
// @Failure  403   {object}  map[string]string
// @Failure  404   {object}  map[string]string
// @Router   /api/v1/sessions/{id}/dm-actions [post]
func (h *ActionHandler) SubmitDMAction(w http.ResponseWriter, r *http.Request) {
	var action domain.DMAction
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	action.SessionID = chi.URLParam(r, "id")
	if action.DMID == "" {
		action.DMID = apimw.GetClientID(r.Context())
	}

	id, err := h.svc.SubmitDMAction(r.Context(), action)
	if err != nil {
		h.logger.Warn("dm action rejected",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"item_id": id})
}

// RequestSuggestion handles POST /api/v1/sessions/{id}/suggestions
//
// @Summary  Ask the model to draft campaign content for the DM
// @Tags     actions
// @Accept   json
// @Produce  json
// @Param    id    path      string                   true  "Session UUID"
// @Param    body  body      domain.SuggestionContext true  "Suggestion context"
// @Success  202   {object}  map[string]string
// @Failure  403   {object}  map[string]string
// @Router   /api/v1/sessions/{id}/suggestions [post]
func (h *ActionHandler) RequestSuggestion(w http.ResponseWriter, r *http.Request) {
	var sc domain.SuggestionContext
	if err := json.NewDecoder(r.Body).Decode(&sc); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	callbackID, err := h.svc.RequestSuggestion(r.Context(),
		chi.URLParam(r, "id"), apimw.GetClientID(r.Context()), sc)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"callback_id": callbackID})
}

// RequestAssets handles POST /api/v1/assets
//
// @Summary  Queue image-asset generation
// @Tags     actions
// @Accept   json
// @Produce  json
// @Param    body  body      domain.AssetRequest  true  "Asset request"
// @Success  202   {object}  map[string]string
// @Router   /api/v1/assets [post]
func (h *ActionHandler) RequestAssets(w http.ResponseWriter, r *http.Request) {
	var req domain.AssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := h.svc.RequestAssets(r.Context(), apimw.GetClientID(r.Context()), req)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"item_id": id})
}
