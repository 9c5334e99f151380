// Package game is the write-side entry point: it validates incoming player
// and DM submissions and turns them into queue items. Nothing here blocks on
// model calls; the queues decouple submission from processing.
package game

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/questdeck/questdeck/internal/domain"
	"github.com/questdeck/questdeck/internal/queue"
	"github.com/questdeck/questdeck/internal/ratelimiter"
)

// SessionPort is what submission validation needs from session state.
type SessionPort interface {
	SessionExists(sessionID string) bool
	IsClientDM(clientID string) bool
}

// Service validates submissions and enqueues them on their topics. Player
// submissions are rate-limited per session.
type Service struct {
	sessions SessionPort
	queues   *queue.Queues
	limiter  *ratelimiter.SessionLimiters
	logger   *zap.Logger
}

func NewService(sessions SessionPort, queues *queue.Queues, limiter *ratelimiter.SessionLimiters, logger *zap.Logger) *Service {
	return &Service{sessions: sessions, queues: queues, limiter: limiter, logger: logger}
}

// SubmitPlayerAction queues a player's action and returns the queue item id.
func (s *Service) SubmitPlayerAction(ctx context.Context, action domain.PlayerAction) (string, error) {
	if action.ActionType == "" {
		return "", domain.ErrInvalidAction
	}
	if !s.sessions.SessionExists(action.SessionID) {
		return "", domain.ErrSessionNotFound
	}
	if !s.limiter.Allow(action.SessionID) {
		return "", domain.ErrRateLimited
	}
	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now().UTC()
	}

	id, err := s.queues.PlayerActions.Enqueue(ctx, action, 0)
	if err != nil {
		return "", fmt.Errorf("enqueue player action: %w", err)
	}
	s.logger.Info("player action queued",
		zap.String("item_id", id),
		zap.String("session_id", action.SessionID),
		zap.String("player_id", action.PlayerID),
		zap.String("action_type", action.ActionType))
	return id, nil
}

// SubmitDMAction queues a DM command. The submitter must be the DM of the
// session; the command's effects are ordered behind whatever the DM queued
// before it.
func (s *Service) SubmitDMAction(ctx context.Context, action domain.DMAction) (string, error) {
	if !s.sessions.SessionExists(action.SessionID) {
		return "", domain.ErrSessionNotFound
	}
	if !s.sessions.IsClientDM(action.DMID) {
		return "", domain.ErrNotAuthorized
	}
	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now().UTC()
	}

	id, err := s.queues.DMActions.Enqueue(ctx, action, 0)
	if err != nil {
		return "", fmt.Errorf("enqueue dm action: %w", err)
	}
	s.logger.Info("dm action queued",
		zap.String("item_id", id),
		zap.String("session_id", action.SessionID),
		zap.String("kind", string(action.Kind)))
	return id, nil
}

// RequestSuggestion queues a content-suggestion request for the DM. The
// returned id shows up as callback_id on the suggestion_ready bus event.
func (s *Service) RequestSuggestion(ctx context.Context, sessionID, clientID string, sc domain.SuggestionContext) (string, error) {
	if sc.FieldType == "" {
		return "", domain.ErrInvalidAction
	}
	if !s.sessions.SessionExists(sessionID) {
		return "", domain.ErrSessionNotFound
	}
	if !s.sessions.IsClientDM(clientID) {
		return "", domain.ErrNotAuthorized
	}

	req := domain.LLMRequest{
		Kind:       domain.KindSuggestion,
		SessionID:  sessionID,
		Suggestion: &sc,
		CallbackID: uuid.New().String(),
	}
	if _, err := s.queues.LLMRequests.Enqueue(ctx, req, 0); err != nil {
		return "", fmt.Errorf("enqueue suggestion request: %w", err)
	}
	s.logger.Info("suggestion request queued",
		zap.String("callback_id", req.CallbackID),
		zap.String("session_id", sessionID),
		zap.String("field_type", sc.FieldType))
	return req.CallbackID, nil
}

// RequestAssets queues an image-generation request.
func (s *Service) RequestAssets(ctx context.Context, clientID string, req domain.AssetRequest) (string, error) {
	if req.WorkflowID == "" || req.Prompt == "" {
		return "", domain.ErrInvalidAction
	}
	if req.SessionID != "" && !s.sessions.SessionExists(req.SessionID) {
		return "", domain.ErrSessionNotFound
	}
	if req.Count <= 0 {
		req.Count = 1
	}

	id, err := s.queues.AssetGeneration.Enqueue(ctx, req, 0)
	if err != nil {
		return "", fmt.Errorf("enqueue asset request: %w", err)
	}
	s.logger.Info("asset request queued",
		zap.String("item_id", id),
		zap.String("entity_type", req.EntityType),
		zap.String("entity_id", req.EntityID))
	return id, nil
}
