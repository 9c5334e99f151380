package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/questdeck/questdeck/internal/domain"
	"github.com/questdeck/questdeck/internal/queue"
)

func newApprovalQueue() *queue.Memory[domain.ApprovalItem] {
	return queue.NewMemory[domain.ApprovalItem](queue.TopicApprovals, 1)
}

func approvalFor(sessionID string, urgency domain.Urgency) domain.ApprovalItem {
	return domain.ApprovalItem{
		SessionID:        sessionID,
		DecisionType:     domain.DecisionTypeNPCResponse,
		Urgency:          urgency,
		NPCName:          "Brunhilde",
		ProposedDialogue: "The road north is closed.",
	}
}

func TestMemory_PriorityOrder(t *testing.T) {
	ctx := context.Background()

	// Enqueue in both orders; the higher priority must come out first
	// regardless of insertion order.
	for _, priorities := range [][2]int{{1, 5}, {5, 1}} {
		q := newApprovalQueue()
		var wantFirst string
		for _, p := range priorities {
			id, err := q.Enqueue(ctx, approvalFor("s1", domain.UrgencyNormal), p)
			if err != nil {
				t.Fatalf("enqueue: %v", err)
			}
			if p == 5 {
				wantFirst = id
			}
		}

		it, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if it == nil || it.ID != wantFirst {
			t.Fatalf("expected priority-5 item first, got %+v", it)
		}
	}
}

func TestMemory_FIFOWithinPriority(t *testing.T) {
	ctx := context.Background()
	q := newApprovalQueue()

	first, _ := q.Enqueue(ctx, approvalFor("s1", domain.UrgencyNormal), 3)
	second, _ := q.Enqueue(ctx, approvalFor("s1", domain.UrgencyNormal), 3)

	it, _ := q.Dequeue(ctx)
	if it.ID != first {
		t.Fatalf("expected first-enqueued item, got %s", it.ID)
	}
	it, _ = q.Dequeue(ctx)
	if it.ID != second {
		t.Fatalf("expected second-enqueued item, got %s", it.ID)
	}
}

func TestMemory_UrgencyBands(t *testing.T) {
	ctx := context.Background()
	q := newApprovalQueue()

	q.Enqueue(ctx, approvalFor("s1", domain.UrgencyNormal), int(domain.UrgencyNormal))
	q.Enqueue(ctx, approvalFor("s1", domain.UrgencyAwaitingPlayer), int(domain.UrgencyAwaitingPlayer))
	q.Enqueue(ctx, approvalFor("s1", domain.UrgencySceneCritical), int(domain.UrgencySceneCritical))

	want := []domain.Urgency{
		domain.UrgencySceneCritical,
		domain.UrgencyAwaitingPlayer,
		domain.UrgencyNormal,
	}
	for _, u := range want {
		it, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if it.Payload.Urgency != u {
			t.Fatalf("expected urgency %s, got %s", u, it.Payload.Urgency)
		}
	}
}

func TestMemory_DequeueEmpty(t *testing.T) {
	q := newApprovalQueue()
	it, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if it != nil {
		t.Fatalf("expected nil item from empty queue, got %+v", it)
	}
}

func TestMemory_ExclusiveClaim(t *testing.T) {
	ctx := context.Background()
	q := newApprovalQueue()

	const items = 50
	for i := 0; i < items; i++ {
		q.Enqueue(ctx, approvalFor("s1", domain.UrgencyNormal), 0)
	}

	var (
		mu      sync.Mutex
		claimed = map[string]int{}
		wg      sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				it, err := q.Dequeue(ctx)
				if err != nil {
					t.Errorf("dequeue: %v", err)
					return
				}
				if it == nil {
					return
				}
				mu.Lock()
				claimed[it.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != items {
		t.Fatalf("expected %d distinct claims, got %d", items, len(claimed))
	}
	for id, n := range claimed {
		if n != 1 {
			t.Fatalf("item %s claimed %d times", id, n)
		}
	}
}

func TestMemory_PeekDoesNotClaim(t *testing.T) {
	ctx := context.Background()
	q := newApprovalQueue()
	id, _ := q.Enqueue(ctx, approvalFor("s1", domain.UrgencyNormal), 0)

	it, err := q.Peek(ctx)
	if err != nil || it == nil || it.ID != id {
		t.Fatalf("peek: item=%+v err=%v", it, err)
	}
	if it.Status != queue.StatusPending {
		t.Fatalf("peek must not change status, got %s", it.Status)
	}

	it, _ = q.Dequeue(ctx)
	if it == nil || it.ID != id {
		t.Fatal("item should still be claimable after peek")
	}
}

func TestMemory_FailRecordsErrorAndAttempts(t *testing.T) {
	ctx := context.Background()
	q := newApprovalQueue()
	id, _ := q.Enqueue(ctx, approvalFor("s1", domain.UrgencyNormal), 0)
	q.Dequeue(ctx)

	if err := q.Fail(ctx, id, "model timeout"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	it, _ := q.Get(ctx, id)
	if it.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", it.Status)
	}
	if it.Attempts != 1 || it.LastError != "model timeout" {
		t.Fatalf("expected attempts=1 lastError recorded, got %+v", it)
	}
}

func TestMemory_InvalidTransitions(t *testing.T) {
	ctx := context.Background()
	q := newApprovalQueue()
	id, _ := q.Enqueue(ctx, approvalFor("s1", domain.UrgencyNormal), 0)

	// Pending may not complete without being claimed first.
	if err := q.Complete(ctx, id); err == nil {
		t.Fatal("expected error completing a pending item")
	}

	if err := q.Complete(ctx, "no-such-id"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_DelayedBecomesEligible(t *testing.T) {
	ctx := context.Background()
	q := newApprovalQueue()
	id, _ := q.Enqueue(ctx, approvalFor("s1", domain.UrgencyNormal), 0)

	if err := q.Delay(ctx, id, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("delay: %v", err)
	}
	if it, _ := q.Dequeue(ctx); it != nil {
		t.Fatal("delayed item must not be claimable before its time")
	}

	// Re-delay into the past; it becomes eligible again.
	if err := q.Delay(ctx, id, time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("re-delay: %v", err)
	}
	it, _ := q.Dequeue(ctx)
	if it == nil || it.ID != id {
		t.Fatal("expected delayed item to become eligible")
	}
}

func TestMemory_DelayReleasesClaim(t *testing.T) {
	ctx := context.Background()
	q := newApprovalQueue()
	id, _ := q.Enqueue(ctx, approvalFor("s1", domain.UrgencyNormal), 0)

	if it, _ := q.Dequeue(ctx); it == nil || it.ID != id {
		t.Fatal("expected to claim the item")
	}

	// A worker that cannot act yet hands the item back for later.
	if err := q.Delay(ctx, id, time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("delaying a processing item must release the claim: %v", err)
	}
	it, _ := q.Get(ctx, id)
	if it.Status != queue.StatusDelayed {
		t.Fatalf("expected delayed, got %s", it.Status)
	}

	again, _ := q.Dequeue(ctx)
	if again == nil || again.ID != id {
		t.Fatal("expected the handed-back item to be claimable again")
	}
}

func TestMemory_Depth(t *testing.T) {
	ctx := context.Background()
	q := newApprovalQueue()

	q.Enqueue(ctx, approvalFor("s1", domain.UrgencyNormal), 0)
	id2, _ := q.Enqueue(ctx, approvalFor("s1", domain.UrgencyNormal), 0)
	q.Delay(ctx, id2, time.Now().Add(time.Hour))

	n, err := q.Depth(ctx)
	if err != nil || n != 2 {
		t.Fatalf("expected depth 2 (pending + delayed), got %d err=%v", n, err)
	}

	it, _ := q.Dequeue(ctx)
	q.Complete(ctx, it.ID)
	if n, _ = q.Depth(ctx); n != 1 {
		t.Fatalf("expected depth 1 after completion, got %d", n)
	}
}

func TestMemory_CleanupRemovesOldTerminal(t *testing.T) {
	ctx := context.Background()
	q := newApprovalQueue()

	id, _ := q.Enqueue(ctx, approvalFor("s1", domain.UrgencyNormal), 0)
	q.Dequeue(ctx)
	q.Complete(ctx, id)

	// Zero age removes everything terminal, regardless of how fresh.
	n, err := q.Cleanup(ctx, 0)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 removed, got %d err=%v", n, err)
	}
	if it, _ := q.Get(ctx, id); it != nil {
		t.Fatal("expected item gone after cleanup")
	}
}

func TestMemory_ListBySessionIsolation(t *testing.T) {
	ctx := context.Background()
	q := newApprovalQueue()

	q.Enqueue(ctx, approvalFor("s1", domain.UrgencyNormal), 0)
	q.Enqueue(ctx, approvalFor("s1", domain.UrgencyNormal), 0)
	q.Enqueue(ctx, approvalFor("s2", domain.UrgencyNormal), 0)

	items, err := q.ListBySession(ctx, "s1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items for s1, got %d", len(items))
	}
	for _, it := range items {
		if it.Payload.SessionID != "s1" {
			t.Fatalf("wrong session in result: %s", it.Payload.SessionID)
		}
	}
}

func TestMemory_GetHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	q := newApprovalQueue()

	var ids []string
	for i := 0; i < 3; i++ {
		id, _ := q.Enqueue(ctx, approvalFor("s1", domain.UrgencyNormal), 0)
		ids = append(ids, id)
		q.Dequeue(ctx)
		q.Complete(ctx, id)
	}

	history, err := q.GetHistory(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected limit honored, got %d", len(history))
	}
	if history[0].ID != ids[2] || history[1].ID != ids[1] {
		t.Fatal("expected newest-first ordering")
	}
}

func TestMemory_ExpireOldDropsWaiting(t *testing.T) {
	ctx := context.Background()
	q := newApprovalQueue()

	claimed, _ := q.Enqueue(ctx, approvalFor("s1", domain.UrgencyNormal), 0)
	q.Enqueue(ctx, approvalFor("s1", domain.UrgencyNormal), 0)
	q.Dequeue(ctx) // claims the first; now one pending, one processing

	n, err := q.ExpireOld(ctx, 0)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired waiting item, got %d", n)
	}
	if it, _ := q.Get(ctx, claimed); it == nil {
		t.Fatal("processing item must survive expiry")
	}
}

func TestNotifier_WakesWaiter(t *testing.T) {
	ctx := context.Background()
	q := newApprovalQueue()

	done := make(chan bool, 1)
	go func() {
		done <- q.Notifier().Wait(ctx, 5*time.Second)
	}()

	// Give the waiter a moment to park, then enqueue.
	time.Sleep(10 * time.Millisecond)
	q.Enqueue(ctx, approvalFor("s1", domain.UrgencyNormal), 0)

	select {
	case woken := <-done:
		if !woken {
			t.Fatal("expected wake by signal, not timeout")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never woke")
	}
}

func TestNotifier_FallbackTimeout(t *testing.T) {
	q := newApprovalQueue()
	start := time.Now()
	if woken := q.Notifier().Wait(context.Background(), 20*time.Millisecond); woken {
		t.Fatal("expected timeout, not signal")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("returned before the fallback timeout")
	}
}
