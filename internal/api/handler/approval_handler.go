package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/questdeck/questdeck/internal/api/middleware"
	"github.com/questdeck/questdeck/internal/approval"
	"github.com/questdeck/questdeck/internal/domain"
	"github.com/questdeck/questdeck/internal/queue"
)

// ApprovalHandler handles the DM decision endpoints for pending NPC
// responses and pending challenge outcomes.
type ApprovalHandler struct {
	gate      *approval.Service
	outcomes  *approval.OutcomeService
	approvals queue.ApprovalQueue[domain.ApprovalItem]
	logger    *zap.Logger
}

func NewApprovalHandler(
	gate *approval.Service,
	outcomes *approval.OutcomeService,
	approvals queue.ApprovalQueue[domain.ApprovalItem],
	logger *zap.Logger,
) *ApprovalHandler {
	return &ApprovalHandler{gate: gate, outcomes: outcomes, approvals: approvals, logger: logger}
}

// ListPending handles GET /api/v1/sessions/{id}/approvals
//
// @Summary  Pending approvals for a session, oldest first
// @Tags     approvals
// @Produce  json
// @Param    id   path      string  true  "Session UUID"
// @Success  200  {object}  map[string]any
// @Router   /api/v1/sessions/{id}/approvals [get]
func (h *ApprovalHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	respondJSON(w, http.StatusOK, map[string]any{
		"pending": h.gate.Pending(sessionID),
	})
}

// History handles GET /api/v1/sessions/{id}/approvals/history
//
// @Summary  Decided approvals for a session, newest first
// @Tags     approvals
// @Produce  json
// @Param    id     path      string  true   "Session UUID"
// @Param    limit  query     int     false  "Max entries (default 50)"
// @Success  200    {object}  map[string]any
// @Router   /api/v1/sessions/{id}/approvals/history [get]
func (h *ApprovalHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 200 {
		limit = l
	}

	items, err := h.approvals.GetHistory(r.Context(), sessionID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load approval history")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"history": items})
}

type decideRequest struct {
	SessionID string                  `json:"session_id"`
	Decision  domain.ApprovalDecision `json:"decision"`
}

// Decide handles POST /api/v1/approvals/{id}/decision
//
// @Summary  Apply a DM decision to a pending NPC response
// @Tags     approvals
// @Accept   json
// @Produce  json
// @Param    id    path      string         true  "Request UUID"
// @Param    body  body      decideRequest  true  "Decision payload"
// @Success  200   {object}  domain.ApprovalResult
// @Failure  403   {object}  map[string]string
// @Failure  404   {object}  map[string]string
// @Router   /api/v1/approvals/{id}/decision [post]
func (h *ApprovalHandler) Decide(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "id")

	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := h.gate.Decide(r.Context(), req.SessionID,
		apimw.GetClientID(r.Context()), requestID, req.Decision)
	if err != nil {
		h.logger.Warn("approval decision rejected",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// QueueOutcome handles POST /api/v1/sessions/{id}/resolutions
//
// @Summary  Submit a resolved challenge roll for outcome approval
// @Tags     outcomes
// @Accept   json
// @Produce  json
// @Param    id    path      string                      true  "Session UUID"
// @Param    body  body      domain.ChallengeResolution  true  "Resolution payload"
// @Success  202   {object}  map[string]string
// @Router   /api/v1/sessions/{id}/resolutions [post]
func (h *ApprovalHandler) QueueOutcome(w http.ResponseWriter, r *http.Request) {
	var res domain.ChallengeResolution
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res.SessionID = chi.URLParam(r, "id")
	if res.ResolutionID == "" {
		respondError(w, http.StatusUnprocessableEntity, "resolution_id is required")
		return
	}

	if err := h.outcomes.QueueForApproval(res); err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"resolution_id": res.ResolutionID})
}

// ListPendingOutcomes handles GET /api/v1/sessions/{id}/outcomes
//
// @Summary  Pending challenge outcomes for a session, oldest first
// @Tags     outcomes
// @Produce  json
// @Param    id   path      string  true  "Session UUID"
// @Success  200  {object}  map[string]any
// @Router   /api/v1/sessions/{id}/outcomes [get]
func (h *ApprovalHandler) ListPendingOutcomes(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	respondJSON(w, http.StatusOK, map[string]any{
		"pending": h.outcomes.Pending(sessionID),
	})
}

type decideOutcomeRequest struct {
	SessionID string                 `json:"session_id"`
	Decision  domain.OutcomeDecision `json:"decision"`
}

// DecideOutcome handles POST /api/v1/outcomes/{id}/decision
//
// @Summary  Apply a DM decision to a pending challenge outcome
// @Tags     outcomes
// @Accept   json
// @Produce  json
// @Param    id    path      string                true  "Resolution UUID"
// @Param    body  body      decideOutcomeRequest  true  "Decision payload"
// @Success  200   {object}  domain.OutcomeResult
// @Failure  403   {object}  map[string]string
// @Failure  404   {object}  map[string]string
// @Router   /api/v1/outcomes/{id}/decision [post]
func (h *ApprovalHandler) DecideOutcome(w http.ResponseWriter, r *http.Request) {
	resolutionID := chi.URLParam(r, "id")

	var req decideOutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := h.outcomes.Decide(r.Context(), req.SessionID,
		apimw.GetClientID(r.Context()), resolutionID, req.Decision)
	if err != nil {
		h.logger.Warn("outcome decision rejected",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.String("resolution_id", resolutionID),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
