package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/questdeck/questdeck/internal/approval"
	"github.com/questdeck/questdeck/internal/domain"
	"github.com/questdeck/questdeck/internal/queue"
	"github.com/questdeck/questdeck/internal/session"
	"github.com/questdeck/questdeck/internal/worker"
)

func pendingApproval() domain.ApprovalItem {
	return domain.ApprovalItem{
		SessionID:        "s1",
		SourceActionID:   "a1",
		DecisionType:     domain.DecisionTypeNPCResponse,
		Urgency:          domain.UrgencyAwaitingPlayer,
		NPCName:          "Brunhilde",
		ProposedDialogue: "Step no closer.",
	}
}

func TestNotifyWorker_TracksAndNotifiesDM(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	approvals := queue.NewMemory[domain.ApprovalItem](queue.TopicApprovals, 1)
	sessions := newMockSessions()
	gate := approval.NewService(sessions, 3, approval.Hooks{}, zap.NewNop())

	id, _ := approvals.Enqueue(ctx, pendingApproval(), int(domain.UrgencyAwaitingPlayer))

	w := worker.NewNotifyWorker(approvals, gate, sessions,
		20*time.Millisecond, 10*time.Millisecond, 50*time.Millisecond,
		worker.MetricHooks{}, zap.NewNop())
	done := make(chan struct{})
	go func() { defer close(done); w.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool {
		it, _ := approvals.Get(ctx, id)
		return it != nil && it.Status == queue.StatusCompleted
	})
	cancel()
	<-done

	if !gate.Tracked(id) {
		t.Fatal("approval must stay tracked awaiting the DM decision")
	}
	sessions.mu.Lock()
	defer sessions.mu.Unlock()
	if len(sessions.dmMessages) != 1 || sessions.dmMessages[0].Type != session.TypeApprovalRequired {
		t.Fatalf("expected one approval_required message, got %+v", sessions.dmMessages)
	}
	view := sessions.dmMessages[0].Data.(approval.PendingApproval)
	if view.RequestID != id || view.NPCName != "Brunhilde" {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestNotifyWorker_AbsentSessionDelaysItem(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	approvals := queue.NewMemory[domain.ApprovalItem](queue.TopicApprovals, 1)
	sessions := newMockSessions()
	sessions.dmErr = errors.New("no such session")
	gate := approval.NewService(sessions, 3, approval.Hooks{}, zap.NewNop())

	id, _ := approvals.Enqueue(ctx, pendingApproval(), 0)

	w := worker.NewNotifyWorker(approvals, gate, sessions,
		20*time.Millisecond, 10*time.Millisecond, time.Hour,
		worker.MetricHooks{}, zap.NewNop())
	done := make(chan struct{})
	go func() { defer close(done); w.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool {
		it, _ := approvals.Get(ctx, id)
		return it != nil && it.Status == queue.StatusDelayed
	})
	cancel()
	<-done

	// The item went back to the queue, not into the gate.
	if gate.Tracked(id) {
		t.Fatal("undeliverable approval must not stay tracked")
	}
	if n, _ := approvals.Depth(ctx); n != 1 {
		t.Fatalf("delayed item still counts toward depth, got %d", n)
	}
}
