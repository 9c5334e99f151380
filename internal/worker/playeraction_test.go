package worker_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/questdeck/questdeck/internal/domain"
	"github.com/questdeck/questdeck/internal/llm"
	"github.com/questdeck/questdeck/internal/queue"
	"github.com/questdeck/questdeck/internal/worker"
)

func TestActionWorker_TurnsActionIntoLLMRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	actions := queue.NewMemory[domain.PlayerAction](queue.TopicPlayerActions, 1)
	requests := queue.NewMemory[domain.LLMRequest](queue.TopicLLMRequests, 1)

	id, _ := actions.Enqueue(ctx, domain.PlayerAction{
		SessionID:  "s1",
		PlayerID:   "p1",
		ActionType: "talk",
		Target:     "Brunhilde",
		Dialogue:   "Who rules this keep?",
		Timestamp:  time.Now().UTC(),
	}, 0)

	w := worker.NewActionWorker(actions, requests, llm.BasicPromptBuilder{},
		20*time.Millisecond, 10*time.Millisecond, worker.MetricHooks{}, zap.NewNop())
	done := make(chan struct{})
	go func() { defer close(done); w.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool {
		it, _ := actions.Get(ctx, id)
		return it != nil && it.Status == queue.StatusCompleted
	})
	cancel()
	<-done

	req, err := requests.Dequeue(context.Background())
	if err != nil || req == nil {
		t.Fatalf("expected one llm request, got %v, %v", req, err)
	}
	if req.Payload.Kind != domain.KindNPCResponse {
		t.Fatalf("expected npc_response kind, got %s", req.Payload.Kind)
	}
	if req.Payload.SourceActionID != id {
		t.Fatalf("request must point back at the action item, got %q", req.Payload.SourceActionID)
	}
	if req.Payload.Prompt == nil || req.Payload.Prompt.NPCName != "Brunhilde" {
		t.Fatalf("prompt not built from the action: %+v", req.Payload.Prompt)
	}
}

func TestPool_StartsAndWaits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	actions := queue.NewMemory[domain.PlayerAction](queue.TopicPlayerActions, 1)
	requests := queue.NewMemory[domain.LLMRequest](queue.TopicLLMRequests, 1)
	w := worker.NewActionWorker(actions, requests, llm.BasicPromptBuilder{},
		20*time.Millisecond, 10*time.Millisecond, worker.MetricHooks{}, zap.NewNop())

	pool := worker.NewPool(w, w)
	pool.Start(ctx)

	cancel()
	waited := make(chan struct{})
	go func() { defer close(waited); pool.Wait() }()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after cancellation")
	}
}
