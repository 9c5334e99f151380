package approval_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/questdeck/questdeck/internal/approval"
	"github.com/questdeck/questdeck/internal/domain"
	"github.com/questdeck/questdeck/internal/llm"
	"github.com/questdeck/questdeck/internal/session"
)

type mockModel struct {
	response *llm.Response
	err      error
}

func (m *mockModel) Generate(context.Context, domain.PromptRequest) (*llm.Response, error) {
	return m.response, m.err
}

func (m *mockModel) GenerateWithTools(context.Context, domain.PromptRequest, []llm.ToolDef) (*llm.Response, error) {
	return m.response, m.err
}

func newOutcomes(sessions approval.SessionPort, model llm.Client) *approval.OutcomeService {
	return approval.NewOutcomeService(sessions, model, approval.Hooks{}, zap.NewNop())
}

func resolution(id string) domain.ChallengeResolution {
	return domain.ChallengeResolution{
		ResolutionID:       id,
		SessionID:          "s1",
		ChallengeID:        "ch1",
		ChallengeName:      "Pick the lock",
		CharacterID:        "c1",
		CharacterName:      "Yara",
		Roll:               14,
		Modifier:           3,
		Total:              17,
		OutcomeType:        "success",
		OutcomeDescription: "The lock clicks open.",
	}
}

func TestOutcomeService_QueueForApproval(t *testing.T) {
	sessions := newMockSessions("dm1")
	outcomes := newOutcomes(sessions, &mockModel{})
	defer outcomes.Close()

	if err := outcomes.QueueForApproval(resolution("res1")); err != nil {
		t.Fatalf("queue: %v", err)
	}

	// Players see the dice, not the narration.
	if len(sessions.broadcasts) != 1 {
		t.Fatalf("expected 1 player broadcast, got %d", len(sessions.broadcasts))
	}
	rolled := sessions.broadcasts[0].Data.(approval.OutcomeData)
	if rolled.Total != 17 || rolled.Description != "" {
		t.Fatalf("players must see the roll without the outcome, got %+v", rolled)
	}

	// The DM sees everything.
	if len(sessions.dmMessages) != 1 || sessions.dmMessages[0].Type != session.TypeOutcomePending {
		t.Fatalf("expected outcome_pending to DM, got %+v", sessions.dmMessages)
	}
	full := sessions.dmMessages[0].Data.(approval.OutcomeData)
	if full.Description != "The lock clicks open." {
		t.Fatalf("DM must see the drafted outcome, got %+v", full)
	}

	if len(outcomes.Pending("s1")) != 1 {
		t.Fatal("resolution must be pending")
	}

	// Re-queueing the same resolution is a no-op.
	if err := outcomes.QueueForApproval(resolution("res1")); err != nil {
		t.Fatalf("re-queue: %v", err)
	}
	if len(sessions.broadcasts) != 1 {
		t.Fatal("duplicate queue must not re-broadcast")
	}
}

func TestOutcomeService_Accept(t *testing.T) {
	sessions := newMockSessions("dm1")
	outcomes := newOutcomes(sessions, &mockModel{})
	defer outcomes.Close()
	outcomes.QueueForApproval(resolution("res1"))

	result, err := outcomes.Decide(context.Background(), "s1", "dm1", "res1",
		domain.OutcomeDecision{Kind: domain.OutcomeAccept})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !result.BroadcastSent {
		t.Fatal("expected broadcast_sent=true")
	}

	last := sessions.broadcasts[len(sessions.broadcasts)-1].Data.(approval.OutcomeData)
	if last.Description != "The lock clicks open." {
		t.Fatalf("expected drafted narration, got %q", last.Description)
	}
	if len(outcomes.Pending("s1")) != 0 {
		t.Fatal("resolution must be removed after accept")
	}
}

func TestOutcomeService_Edit(t *testing.T) {
	sessions := newMockSessions("dm1")
	outcomes := newOutcomes(sessions, &mockModel{})
	defer outcomes.Close()
	outcomes.QueueForApproval(resolution("res1"))

	result, err := outcomes.Decide(context.Background(), "s1", "dm1", "res1",
		domain.OutcomeDecision{
			Kind:                domain.OutcomeEdit,
			ModifiedDescription: "The lock opens, but the hinge squeals.",
		})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !result.BroadcastSent {
		t.Fatal("expected broadcast_sent=true")
	}

	last := sessions.broadcasts[len(sessions.broadcasts)-1].Data.(approval.OutcomeData)
	if last.Description != "The lock opens, but the hinge squeals." {
		t.Fatalf("players must receive the DM's text, got %q", last.Description)
	}
}

func TestOutcomeService_EditEmptyDescription(t *testing.T) {
	sessions := newMockSessions("dm1")
	outcomes := newOutcomes(sessions, &mockModel{})
	defer outcomes.Close()
	outcomes.QueueForApproval(resolution("res1"))

	_, err := outcomes.Decide(context.Background(), "s1", "dm1", "res1",
		domain.OutcomeDecision{Kind: domain.OutcomeEdit})
	if !errors.Is(err, domain.ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision, got %v", err)
	}
}

func TestOutcomeService_Suggest(t *testing.T) {
	sessions := newMockSessions("dm1")
	model := &mockModel{response: &llm.Response{
		NPCDialogue: "The lock snaps.\nThe pick breaks inside.\nA guard hears the scraping.",
	}}
	outcomes := newOutcomes(sessions, model)
	outcomes.QueueForApproval(resolution("res1"))

	result, err := outcomes.Decide(context.Background(), "s1", "dm1", "res1",
		domain.OutcomeDecision{Kind: domain.OutcomeSuggest, Guidance: "make it riskier"})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !result.SuggestionsRequested || result.BroadcastSent {
		t.Fatalf("expected suggestions_requested only, got %+v", result)
	}
	if len(outcomes.Pending("s1")) != 1 {
		t.Fatal("resolution must stay pending while suggestions generate")
	}

	// Close waits for the background generation to finish.
	outcomes.Close()

	var sug *approval.SuggestionData
	for _, msg := range sessions.dmMessages {
		if msg.Type == session.TypeSuggestionReady {
			d := msg.Data.(approval.SuggestionData)
			sug = &d
		}
	}
	if sug == nil {
		t.Fatal("expected suggestion_ready to the DM")
	}
	if sug.ResolutionID != "res1" || len(sug.Suggestions) != 3 {
		t.Fatalf("expected 3 suggestions for res1, got %+v", sug)
	}
}

func TestOutcomeService_NonDMRefused(t *testing.T) {
	sessions := newMockSessions("dm1")
	outcomes := newOutcomes(sessions, &mockModel{})
	defer outcomes.Close()
	outcomes.QueueForApproval(resolution("res1"))

	_, err := outcomes.Decide(context.Background(), "s1", "player9", "res1",
		domain.OutcomeDecision{Kind: domain.OutcomeAccept})
	if !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestOutcomeService_UnknownResolution(t *testing.T) {
	sessions := newMockSessions("dm1")
	outcomes := newOutcomes(sessions, &mockModel{})
	defer outcomes.Close()

	_, err := outcomes.Decide(context.Background(), "s1", "dm1", "nope",
		domain.OutcomeDecision{Kind: domain.OutcomeAccept})
	if !errors.Is(err, domain.ErrResolutionNotFound) {
		t.Fatalf("expected ErrResolutionNotFound, got %v", err)
	}
}
