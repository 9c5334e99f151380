package approval

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/questdeck/questdeck/internal/domain"
	"github.com/questdeck/questdeck/internal/llm"
	"github.com/questdeck/questdeck/internal/session"
)

// OutcomeData is the payload of outcome_pending and challenge_resolved
// messages.
type OutcomeData struct {
	ResolutionID  string `json:"resolution_id"`
	ChallengeName string `json:"challenge_name"`
	CharacterName string `json:"character_name"`
	Roll          int    `json:"roll"`
	Modifier      int    `json:"modifier"`
	Total         int    `json:"total"`
	OutcomeType   string `json:"outcome_type"`
	Description   string `json:"description,omitempty"`
	RollBreakdown string `json:"roll_breakdown,omitempty"`
}

// SuggestionData carries model-drafted alternative outcome texts to the DM.
type SuggestionData struct {
	ResolutionID string   `json:"resolution_id"`
	Suggestions  []string `json:"suggestions"`
}

// OutcomeService is the decision point for challenge-roll outcomes. The roll
// itself is public the moment it lands; the narrated consequence is held here
// until the DM accepts it, edits it, or asks the model for alternatives.
//
// Suggestion generation runs in supervised goroutines: they live on a
// service-owned context so Close can stop them during shutdown without
// racing the HTTP server teardown.
type OutcomeService struct {
	pending  *Store[domain.ChallengeResolution]
	sessions SessionPort
	model    llm.Client
	hooks    Hooks
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewOutcomeService(sessions SessionPort, model llm.Client, hooks Hooks, logger *zap.Logger) *OutcomeService {
	ctx, cancel := context.WithCancel(context.Background())
	return &OutcomeService{
		pending:  NewStore[domain.ChallengeResolution](),
		sessions: sessions,
		model:    model,
		hooks:    hooks,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// QueueForApproval records a resolved roll as awaiting the DM's outcome
// decision. Players see the dice immediately, without the narrated outcome;
// the DM gets the full draft.
func (s *OutcomeService) QueueForApproval(res domain.ChallengeResolution) error {
	if !s.pending.Add(res.ResolutionID, res.SessionID, res) {
		return nil // already queued
	}

	if err := s.sessions.BroadcastToPlayers(res.SessionID, session.Message{
		Type: session.TypeChallengeResolved,
		Data: rollOnly(res),
	}); err != nil {
		return fmt.Errorf("broadcast roll: %w", err)
	}
	if err := s.sessions.SendToDM(res.SessionID, session.Message{
		Type: session.TypeOutcomePending,
		Data: outcomeData(res),
	}); err != nil {
		return fmt.Errorf("notify dm: %w", err)
	}

	s.logger.Info("outcome pending",
		zap.String("resolution_id", res.ResolutionID),
		zap.String("session_id", res.SessionID),
		zap.String("challenge", res.ChallengeName))
	return nil
}

// Pending returns the resolutions awaiting a decision in a session, oldest
// first.
func (s *OutcomeService) Pending(sessionID string) []domain.ChallengeResolution {
	entries := s.pending.BySession(sessionID)
	out := make([]domain.ChallengeResolution, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Value)
	}
	return out
}

// Decide applies a DM decision to a pending challenge outcome.
//
// Accept broadcasts the drafted narration; Edit broadcasts the DM's text
// instead. Suggest keeps the item pending and asks the model for alternative
// narrations in the background.
func (s *OutcomeService) Decide(ctx context.Context, sessionID, clientID, resolutionID string, decision domain.OutcomeDecision) (domain.OutcomeResult, error) {
	var zero domain.OutcomeResult

	if !s.sessions.IsClientDM(clientID) {
		return zero, domain.ErrNotAuthorized
	}

	entry, ok := s.pending.Get(resolutionID)
	if !ok {
		return zero, domain.ErrResolutionNotFound
	}
	if entry.SessionID != sessionID {
		return zero, domain.ErrSessionMismatch
	}
	res := entry.Value

	switch decision.Kind {
	case domain.OutcomeAccept:
		if err := s.deliver(res, res.OutcomeDescription); err != nil {
			return zero, err
		}
		s.pending.Remove(resolutionID)
		s.hooks.decided(string(decision.Kind))
		return domain.OutcomeResult{ResolutionID: resolutionID, BroadcastSent: true}, nil

	case domain.OutcomeEdit:
		if decision.ModifiedDescription == "" {
			return zero, fmt.Errorf("%w: modified description is empty", domain.ErrInvalidDecision)
		}
		if err := s.deliver(res, decision.ModifiedDescription); err != nil {
			return zero, err
		}
		s.pending.Remove(resolutionID)
		s.hooks.decided(string(decision.Kind))
		return domain.OutcomeResult{ResolutionID: resolutionID, BroadcastSent: true}, nil

	case domain.OutcomeSuggest:
		s.spawnSuggest(res, decision.Guidance)
		s.hooks.decided(string(decision.Kind))
		return domain.OutcomeResult{ResolutionID: resolutionID, SuggestionsRequested: true}, nil

	default:
		return zero, fmt.Errorf("%w: %q", domain.ErrInvalidDecision, decision.Kind)
	}
}

// ExpireOlderThan drops stale pending resolutions.
func (s *OutcomeService) ExpireOlderThan(age time.Duration) int {
	n := s.pending.ExpireOlderThan(age)
	if n > 0 {
		if s.hooks.OnExpired != nil {
			s.hooks.OnExpired(n)
		}
		s.logger.Info("expired stale outcomes", zap.Int("count", n))
	}
	return n
}

// PendingCount returns the number of resolutions awaiting a decision.
func (s *OutcomeService) PendingCount() int { return s.pending.Len() }

// Close stops in-flight suggestion generation and waits for it to finish.
func (s *OutcomeService) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *OutcomeService) deliver(res domain.ChallengeResolution, description string) error {
	res.OutcomeDescription = description
	if err := s.sessions.BroadcastToPlayers(res.SessionID, session.Message{
		Type: session.TypeChallengeResolved,
		Data: outcomeData(res),
	}); err != nil {
		return fmt.Errorf("broadcast outcome: %w", err)
	}
	line := fmt.Sprintf("%s (%s, %d): %s", res.CharacterName, res.ChallengeName, res.Total, description)
	if err := s.sessions.AddToConversationHistory(res.SessionID, "Narrator", line); err != nil {
		s.logger.Warn("history append failed",
			zap.String("session_id", res.SessionID), zap.Error(err))
	}
	return nil
}

func (s *OutcomeService) spawnSuggest(res domain.ChallengeResolution, guidance string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
		defer cancel()

		resp, err := s.model.Generate(ctx, suggestionPrompt(res, guidance))
		if err != nil {
			s.logger.Error("suggestion generation failed",
				zap.String("resolution_id", res.ResolutionID), zap.Error(err))
			if sendErr := s.sessions.SendToDM(res.SessionID, session.ErrorMessage(
				"SUGGESTION_FAILED", "could not generate outcome suggestions",
			)); sendErr != nil {
				s.logger.Warn("suggestion failure notice not delivered", zap.Error(sendErr))
			}
			return
		}

		if err := s.sessions.SendToDM(res.SessionID, session.Message{
			Type: session.TypeSuggestionReady,
			Data: SuggestionData{
				ResolutionID: res.ResolutionID,
				Suggestions:  splitSuggestions(resp.NPCDialogue),
			},
		}); err != nil {
			s.logger.Warn("suggestion not delivered",
				zap.String("resolution_id", res.ResolutionID), zap.Error(err))
		}
	}()
}

func suggestionPrompt(res domain.ChallengeResolution, guidance string) domain.PromptRequest {
	user := fmt.Sprintf(
		"Challenge %q, %s rolled %d+%d=%d (%s). Current outcome draft: %s.",
		res.ChallengeName, res.CharacterName, res.Roll, res.Modifier, res.Total,
		res.OutcomeType, res.OutcomeDescription,
	)
	if guidance != "" {
		user += " DM guidance: " + guidance
	}
	return domain.PromptRequest{
		System: "You narrate tabletop challenge outcomes. Offer three alternative outcome descriptions, one per line.",
		User:   user,
	}
}

// splitSuggestions turns the model's line-per-suggestion reply into a slice,
// dropping blank lines.
func splitSuggestions(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func rollOnly(res domain.ChallengeResolution) OutcomeData {
	d := outcomeData(res)
	d.Description = ""
	return d
}

func outcomeData(res domain.ChallengeResolution) OutcomeData {
	return OutcomeData{
		ResolutionID:  res.ResolutionID,
		ChallengeName: res.ChallengeName,
		CharacterName: res.CharacterName,
		Roll:          res.Roll,
		Modifier:      res.Modifier,
		Total:         res.Total,
		OutcomeType:   res.OutcomeType,
		Description:   res.OutcomeDescription,
		RollBreakdown: res.RollBreakdown,
	}
}

var _ Decider[domain.OutcomeDecision, domain.OutcomeResult] = (*OutcomeService)(nil)
