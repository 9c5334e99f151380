// Package approval implements the human gate: machine-drafted content is
// held pending until the session's DM decides what happens to it. Nothing
// reaches players without passing through a decision here.
package approval

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/questdeck/questdeck/internal/domain"
	"github.com/questdeck/questdeck/internal/session"
)

// SessionPort is what the approval layer needs from session state. The
// session manager satisfies it.
type SessionPort interface {
	IsClientDM(clientID string) bool
	BroadcastToPlayers(sessionID string, msg session.Message) error
	SendToDM(sessionID string, msg session.Message) error
	AddToConversationHistory(sessionID, speaker, text string) error
}

// Decider is the shape shared by every approval variant: one decision kind
// in, one result out, DM-only. Service and OutcomeService both implement it.
type Decider[D, R any] interface {
	Decide(ctx context.Context, sessionID, clientID, requestID string, decision D) (R, error)
}

// Hooks are optional observation points, wired to metrics in main.
type Hooks struct {
	OnDecision func(kind string)
	OnExpired  func(n int)
}

func (h Hooks) decided(kind string) {
	if h.OnDecision != nil {
		h.OnDecision(kind)
	}
}

// PendingApproval is the DM-facing view of one item awaiting a decision.
type PendingApproval struct {
	RequestID                string                           `json:"request_id"`
	SessionID                string                           `json:"session_id"`
	DecisionType             domain.DecisionType              `json:"decision_type"`
	Urgency                  string                           `json:"urgency"`
	NPCName                  string                           `json:"npc_name"`
	ProposedDialogue         string                           `json:"proposed_dialogue"`
	InternalReasoning        string                           `json:"internal_reasoning"`
	ProposedTools            []domain.ProposedTool            `json:"proposed_tools,omitempty"`
	RetryCount               int                              `json:"retry_count"`
	RequestedAt              time.Time                        `json:"requested_at"`
	ChallengeSuggestion      *domain.ChallengeSuggestion      `json:"challenge_suggestion,omitempty"`
	NarrativeEventSuggestion *domain.NarrativeEventSuggestion `json:"narrative_event_suggestion,omitempty"`
}

// Service is the decision point for NPC responses. Pending items live in a
// Store; the notifier worker feeds it from the approvals queue and the API
// layer calls Decide on behalf of the DM.
type Service struct {
	pending    *Store[domain.ApprovalItem]
	sessions   SessionPort
	maxRetries int
	hooks      Hooks
	logger     *zap.Logger
}

func NewService(sessions SessionPort, maxRetries int, hooks Hooks, logger *zap.Logger) *Service {
	return &Service{
		pending:    NewStore[domain.ApprovalItem](),
		sessions:   sessions,
		maxRetries: maxRetries,
		hooks:      hooks,
		logger:     logger,
	}
}

// Track registers a dequeued approval item as pending. It reports false if
// the request id is already tracked, so re-delivery is harmless.
func (s *Service) Track(requestID string, item domain.ApprovalItem) bool {
	added := s.pending.Add(requestID, item.SessionID, item)
	if added {
		s.logger.Info("approval pending",
			zap.String("request_id", requestID),
			zap.String("session_id", item.SessionID),
			zap.String("urgency", item.Urgency.String()))
	}
	return added
}

// Tracked reports whether a request id is currently pending.
func (s *Service) Tracked(requestID string) bool {
	return s.pending.Contains(requestID)
}

// Snapshot returns the DM-facing view of one tracked item.
func (s *Service) Snapshot(requestID string) (PendingApproval, bool) {
	entry, ok := s.pending.Get(requestID)
	if !ok {
		return PendingApproval{}, false
	}
	return pendingView(entry), true
}

// Untrack drops a tracked item without a decision. The notifier uses it when
// an item has to go back to the queue.
func (s *Service) Untrack(requestID string) bool {
	return s.pending.Remove(requestID)
}

// Pending returns the DM-facing view of everything awaiting a decision in a
// session, oldest first.
func (s *Service) Pending(sessionID string) []PendingApproval {
	entries := s.pending.BySession(sessionID)
	out := make([]PendingApproval, 0, len(entries))
	for _, e := range entries {
		out = append(out, pendingView(e))
	}
	return out
}

// Decide applies a DM decision to a pending NPC response.
//
// Accept and TakeOver broadcast and remove the item. AcceptWithModification
// broadcasts the DM's text; the model's draft is never shown to players.
// Reject increments the retry count; on the decision that reaches the cap the
// item is removed and the DM is told the draft is exhausted.
func (s *Service) Decide(ctx context.Context, sessionID, clientID, requestID string, decision domain.ApprovalDecision) (domain.ApprovalResult, error) {
	var zero domain.ApprovalResult

	if !s.sessions.IsClientDM(clientID) {
		return zero, domain.ErrNotAuthorized
	}

	entry, ok := s.pending.Get(requestID)
	if !ok {
		return zero, domain.ErrApprovalNotFound
	}
	if entry.SessionID != sessionID {
		return zero, domain.ErrSessionMismatch
	}
	item := entry.Value

	switch decision.Kind {
	case domain.DecisionAccept:
		if err := s.deliver(sessionID, item.NPCName, item.ProposedDialogue); err != nil {
			return zero, err
		}
		s.pending.Remove(requestID)
		s.hooks.decided(string(decision.Kind))
		s.logger.Info("approval accepted",
			zap.String("request_id", requestID), zap.String("session_id", sessionID))
		return domain.ApprovalResult{RequestID: requestID, BroadcastSent: true}, nil

	case domain.DecisionAcceptWithModification:
		if decision.ModifiedDialogue == "" {
			return zero, fmt.Errorf("%w: modified dialogue is empty", domain.ErrInvalidDecision)
		}
		if err := s.deliver(sessionID, item.NPCName, decision.ModifiedDialogue); err != nil {
			return zero, err
		}
		approved := filterTools(item.ProposedTools, decision.ApprovedTools)
		s.pending.Remove(requestID)
		s.hooks.decided(string(decision.Kind))
		s.logger.Info("approval accepted with modification",
			zap.String("request_id", requestID),
			zap.String("session_id", sessionID),
			zap.Strings("approved_tools", toolNames(approved)),
			zap.Strings("rejected_tools", decision.RejectedTools))
		return domain.ApprovalResult{
			RequestID:     requestID,
			BroadcastSent: true,
			ApprovedTools: approved,
		}, nil

	case domain.DecisionReject:
		updated, ok := s.pending.Update(requestID, func(p *Pending[domain.ApprovalItem]) {
			p.Value.RetryCount++
		})
		if !ok {
			return zero, domain.ErrApprovalNotFound
		}
		retries := updated.Value.RetryCount
		s.hooks.decided(string(decision.Kind))

		if retries >= s.maxRetries {
			s.pending.Remove(requestID)
			if err := s.sessions.SendToDM(sessionID, session.ErrorMessage(
				domain.CodeApprovalMaxRetries,
				fmt.Sprintf("request %s rejected %d times, dropping it", requestID, retries),
			)); err != nil {
				s.logger.Warn("max-retries notice not delivered",
					zap.String("request_id", requestID), zap.Error(err))
			}
			s.logger.Info("approval exhausted",
				zap.String("request_id", requestID),
				zap.String("session_id", sessionID),
				zap.Int("retries", retries))
			return domain.ApprovalResult{
				RequestID:          requestID,
				RetryCount:         retries,
				MaxRetriesExceeded: true,
			}, nil
		}

		// The draft goes back for another pass; tell the DM to expect a
		// replacement rather than silence.
		if err := s.sessions.SendToDM(sessionID, session.LLMProcessing(requestID)); err != nil {
			s.logger.Warn("reprocessing notice not delivered",
				zap.String("request_id", requestID), zap.Error(err))
		}
		s.logger.Info("approval rejected",
			zap.String("request_id", requestID),
			zap.String("session_id", sessionID),
			zap.Int("retries", retries),
			zap.String("feedback", decision.Feedback))
		return domain.ApprovalResult{RequestID: requestID, RetryCount: retries}, nil

	case domain.DecisionTakeOver:
		if decision.DMResponse == "" {
			return zero, fmt.Errorf("%w: dm response is empty", domain.ErrInvalidDecision)
		}
		if err := s.deliver(sessionID, item.NPCName, decision.DMResponse); err != nil {
			return zero, err
		}
		s.pending.Remove(requestID)
		s.hooks.decided(string(decision.Kind))
		s.logger.Info("approval taken over",
			zap.String("request_id", requestID), zap.String("session_id", sessionID))
		return domain.ApprovalResult{RequestID: requestID, BroadcastSent: true}, nil

	default:
		return zero, fmt.Errorf("%w: %q", domain.ErrInvalidDecision, decision.Kind)
	}
}

// ExpireOlderThan drops stale pending items, returning how many were dropped.
func (s *Service) ExpireOlderThan(age time.Duration) int {
	n := s.pending.ExpireOlderThan(age)
	if n > 0 {
		if s.hooks.OnExpired != nil {
			s.hooks.OnExpired(n)
		}
		s.logger.Info("expired stale approvals", zap.Int("count", n))
	}
	return n
}

// PendingCount returns the number of items awaiting a decision across all
// sessions.
func (s *Service) PendingCount() int { return s.pending.Len() }

// deliver broadcasts an approved line to players and records it in the
// conversation history. History failure after a successful broadcast is
// logged, not returned: the players already have the line.
func (s *Service) deliver(sessionID, npcName, text string) error {
	if err := s.sessions.BroadcastToPlayers(sessionID, session.DialogueResponse(npcName, text)); err != nil {
		return fmt.Errorf("broadcast dialogue: %w", err)
	}
	if err := s.sessions.AddToConversationHistory(sessionID, npcName, text); err != nil {
		s.logger.Warn("history append failed",
			zap.String("session_id", sessionID), zap.Error(err))
	}
	return nil
}

// filterTools keeps the proposed tools whose ids the DM approved.
func filterTools(proposed []domain.ProposedTool, approvedIDs []string) []domain.ProposedTool {
	if len(proposed) == 0 || len(approvedIDs) == 0 {
		return nil
	}
	ids := make(map[string]struct{}, len(approvedIDs))
	for _, id := range approvedIDs {
		ids[id] = struct{}{}
	}
	var out []domain.ProposedTool
	for _, t := range proposed {
		if _, ok := ids[t.ID]; ok {
			out = append(out, t)
		}
	}
	return out
}

func toolNames(tools []domain.ProposedTool) []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return names
}

func pendingView(e Pending[domain.ApprovalItem]) PendingApproval {
	return PendingApproval{
		RequestID:                e.RequestID,
		SessionID:                e.SessionID,
		DecisionType:             e.Value.DecisionType,
		Urgency:                  e.Value.Urgency.String(),
		NPCName:                  e.Value.NPCName,
		ProposedDialogue:         e.Value.ProposedDialogue,
		InternalReasoning:        e.Value.InternalReasoning,
		ProposedTools:            e.Value.ProposedTools,
		RetryCount:               e.Value.RetryCount,
		RequestedAt:              e.RequestedAt,
		ChallengeSuggestion:      e.Value.ChallengeSuggestion,
		NarrativeEventSuggestion: e.Value.NarrativeEventSuggestion,
	}
}

// compile-time check that Service satisfies the shared decider shape.
var _ Decider[domain.ApprovalDecision, domain.ApprovalResult] = (*Service)(nil)
