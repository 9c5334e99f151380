package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/questdeck/questdeck/internal/domain"
)

func TestUrgency(t *testing.T) {
	t.Run("ordering matches escalation", func(t *testing.T) {
		if !(domain.UrgencyNormal < domain.UrgencyAwaitingPlayer &&
			domain.UrgencyAwaitingPlayer < domain.UrgencySceneCritical) {
			t.Fatal("urgency values must escalate")
		}
	})

	t.Run("string names", func(t *testing.T) {
		if got := domain.UrgencyAwaitingPlayer.String(); got != "awaiting_player" {
			t.Fatalf("expected awaiting_player, got %q", got)
		}
		if got := domain.UrgencySceneCritical.String(); got != "scene_critical" {
			t.Fatalf("expected scene_critical, got %q", got)
		}
	})

	t.Run("validation", func(t *testing.T) {
		if !domain.UrgencyNormal.IsValid() || !domain.UrgencySceneCritical.IsValid() {
			t.Fatal("known urgencies are valid")
		}
		if domain.Urgency(7).IsValid() || domain.Urgency(-1).IsValid() {
			t.Fatal("out-of-range urgencies are invalid")
		}
	})
}

func TestWireCode(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{domain.ErrNotAuthorized, domain.CodeNotAuthorized},
		{domain.ErrApprovalNotFound, domain.CodeApprovalNotFound},
		{domain.ErrResolutionNotFound, domain.CodeResolutionNotFound},
		{domain.ErrSessionMismatch, domain.CodeSessionMismatch},
		{domain.ErrMaxRetriesExceeded, domain.CodeApprovalMaxRetries},
		{domain.ErrInvalidDecision, domain.CodeInvalidDecision},
	}
	for _, c := range cases {
		code, ok := domain.WireCode(c.err)
		if !ok || code != c.code {
			t.Fatalf("WireCode(%v) = %q, %v; want %q", c.err, code, ok, c.code)
		}
	}

	t.Run("wrapped errors still map", func(t *testing.T) {
		err := fmt.Errorf("decide: %w", domain.ErrSessionMismatch)
		code, ok := domain.WireCode(err)
		if !ok || code != domain.CodeSessionMismatch {
			t.Fatalf("expected %s, got %q, %v", domain.CodeSessionMismatch, code, ok)
		}
	})

	t.Run("backend errors do not map", func(t *testing.T) {
		if _, ok := domain.WireCode(errors.New("connection refused")); ok {
			t.Fatal("arbitrary errors must not acquire a wire code")
		}
	})
}

func TestSessionKeys(t *testing.T) {
	payloads := []interface{ SessionKey() string }{
		domain.PlayerAction{SessionID: "s1"},
		domain.DMAction{SessionID: "s1"},
		domain.LLMRequest{SessionID: "s1"},
		domain.ApprovalItem{SessionID: "s1"},
		domain.AssetRequest{SessionID: "s1"},
	}
	for _, p := range payloads {
		if p.SessionKey() != "s1" {
			t.Fatalf("%T keys by session id", p)
		}
	}
}
