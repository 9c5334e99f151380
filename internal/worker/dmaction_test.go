package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/questdeck/questdeck/internal/domain"
	"github.com/questdeck/questdeck/internal/events"
	"github.com/questdeck/questdeck/internal/queue"
	"github.com/questdeck/questdeck/internal/session"
	"github.com/questdeck/questdeck/internal/worker"
)

type mockDecider struct {
	mu      sync.Mutex
	err     error
	decided []domain.ApprovalDecision
}

func (m *mockDecider) Decide(_ context.Context, _, _, _ string, d domain.ApprovalDecision) (domain.ApprovalResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.ApprovalResult{}, m.err
	}
	m.decided = append(m.decided, d)
	return domain.ApprovalResult{BroadcastSent: true}, nil
}

func runDMWorker(t *testing.T, actions queue.Queue[domain.DMAction], decider *mockDecider, sessions *mockSessions) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	bus := events.NewBus(zap.NewNop())
	w := worker.NewDMWorker(actions, decider, sessions, bus,
		20*time.Millisecond, 10*time.Millisecond, worker.MetricHooks{}, zap.NewNop())
	done := make(chan struct{})
	go func() { defer close(done); w.Run(ctx) }()
	return func() { cancel(); <-done }
}

func awaitTerminal(t *testing.T, q queue.Queue[domain.DMAction], id string) queue.Status {
	t.Helper()
	ctx := context.Background()
	var status queue.Status
	waitFor(t, 2*time.Second, func() bool {
		it, err := q.Get(ctx, id)
		if err != nil || it == nil {
			return false
		}
		status = it.Status
		return it.Status.Terminal()
	})
	return status
}

func TestDMWorker_ApprovalDecisionApplied(t *testing.T) {
	ctx := context.Background()
	actions := queue.NewMemory[domain.DMAction](queue.TopicDMActions, 1)
	decider := &mockDecider{}
	sessions := newMockSessions()
	stop := runDMWorker(t, actions, decider, sessions)
	defer stop()

	id, _ := actions.Enqueue(ctx, domain.DMAction{
		SessionID: "s1",
		DMID:      "dm1",
		Kind:      domain.DMActionApprovalDecision,
		RequestID: "req1",
		Decision:  &domain.ApprovalDecision{Kind: domain.DecisionAccept},
	}, 0)

	if got := awaitTerminal(t, actions, id); got != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
	decider.mu.Lock()
	defer decider.mu.Unlock()
	if len(decider.decided) != 1 || decider.decided[0].Kind != domain.DecisionAccept {
		t.Fatalf("decision not routed to the gate: %+v", decider.decided)
	}
}

func TestDMWorker_DecisionErrorAnsweredOnWire(t *testing.T) {
	ctx := context.Background()
	actions := queue.NewMemory[domain.DMAction](queue.TopicDMActions, 1)
	decider := &mockDecider{err: domain.ErrApprovalNotFound}
	sessions := newMockSessions()
	stop := runDMWorker(t, actions, decider, sessions)
	defer stop()

	id, _ := actions.Enqueue(ctx, domain.DMAction{
		SessionID: "s1",
		DMID:      "dm1",
		Kind:      domain.DMActionApprovalDecision,
		RequestID: "gone",
		Decision:  &domain.ApprovalDecision{Kind: domain.DecisionAccept},
	}, 0)

	// A stale request id is the DM's mistake, not a backend failure: the DM
	// hears about it and the item completes rather than retrying.
	if got := awaitTerminal(t, actions, id); got != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s", got)
	}

	sessions.mu.Lock()
	defer sessions.mu.Unlock()
	msgs := sessions.clientMsgs["dm1"]
	if len(msgs) != 1 || msgs[0].Type != session.TypeError {
		t.Fatalf("expected one error message to the DM, got %+v", msgs)
	}
	data := msgs[0].Data.(session.ErrorData)
	if data.Code != domain.CodeApprovalNotFound {
		t.Fatalf("expected %s, got %s", domain.CodeApprovalNotFound, data.Code)
	}
}

func TestDMWorker_MissingDecisionPayload(t *testing.T) {
	ctx := context.Background()
	actions := queue.NewMemory[domain.DMAction](queue.TopicDMActions, 1)
	sessions := newMockSessions()
	stop := runDMWorker(t, actions, &mockDecider{}, sessions)
	defer stop()

	id, _ := actions.Enqueue(ctx, domain.DMAction{
		SessionID: "s1",
		DMID:      "dm1",
		Kind:      domain.DMActionApprovalDecision,
		RequestID: "req1",
	}, 0)

	if got := awaitTerminal(t, actions, id); got != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
	sessions.mu.Lock()
	defer sessions.mu.Unlock()
	data := sessions.clientMsgs["dm1"][0].Data.(session.ErrorData)
	if data.Code != domain.CodeInvalidDecision {
		t.Fatalf("expected %s, got %s", domain.CodeInvalidDecision, data.Code)
	}
}

func TestDMWorker_DirectNPCControl(t *testing.T) {
	ctx := context.Background()
	actions := queue.NewMemory[domain.DMAction](queue.TopicDMActions, 1)
	sessions := newMockSessions()
	stop := runDMWorker(t, actions, &mockDecider{}, sessions)
	defer stop()

	id, _ := actions.Enqueue(ctx, domain.DMAction{
		SessionID: "s1",
		DMID:      "dm1",
		Kind:      domain.DMActionDirectNPCControl,
		NPCName:   "Brunhilde",
		Dialogue:  "Enough talk.",
	}, 0)

	if got := awaitTerminal(t, actions, id); got != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
	sessions.mu.Lock()
	defer sessions.mu.Unlock()
	if len(sessions.broadcasts) != 1 || sessions.broadcasts[0].Type != session.TypeDialogueResponse {
		t.Fatalf("expected one dialogue broadcast, got %+v", sessions.broadcasts)
	}
	if len(sessions.history) != 1 || sessions.history[0] != "Brunhilde: Enough talk." {
		t.Fatalf("history not appended: %+v", sessions.history)
	}
}

func TestDMWorker_TransitionScene(t *testing.T) {
	ctx := context.Background()
	actions := queue.NewMemory[domain.DMAction](queue.TopicDMActions, 1)
	sessions := newMockSessions()
	stop := runDMWorker(t, actions, &mockDecider{}, sessions)
	defer stop()

	id, _ := actions.Enqueue(ctx, domain.DMAction{
		SessionID: "s1",
		DMID:      "dm1",
		Kind:      domain.DMActionTransitionScene,
		SceneID:   "scene-7",
	}, 0)

	if got := awaitTerminal(t, actions, id); got != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
	sessions.mu.Lock()
	defer sessions.mu.Unlock()
	if sessions.scene != "scene-7" {
		t.Fatalf("scene not applied, got %q", sessions.scene)
	}
	if len(sessions.broadcasts) != 1 || sessions.broadcasts[0].Type != session.TypeSceneChanged {
		t.Fatalf("expected scene_changed broadcast, got %+v", sessions.broadcasts)
	}
}
