package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is the volatile backend: a mutex-guarded in-process store. A
// process restart loses all queued state, which is appropriate for
// single-node, best-effort topics.
//
// Terminal items are retained (for history queries) until Cleanup removes
// them.
type Memory[T Payload] struct {
	topic     string
	batchSize int
	notifier  *Notifier

	mu    sync.Mutex
	items map[string]*Item[T]
	seq   uint64 // FIFO tie-break when CreatedAt collides
	order map[string]uint64
}

// NewMemory creates an in-memory queue for the given topic. batchSize is the
// advisory concurrent-processing limit reported through ProcessingQueue.
func NewMemory[T Payload](topic string, batchSize int) *Memory[T] {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Memory[T]{
		topic:     topic,
		batchSize: batchSize,
		notifier:  NewNotifier(),
		items:     make(map[string]*Item[T]),
		order:     make(map[string]uint64),
	}
}

func (m *Memory[T]) Enqueue(_ context.Context, payload T, priority int) (string, error) {
	now := time.Now().UTC()
	it := &Item[T]{
		ID:        uuid.New().String(),
		Payload:   payload,
		Priority:  priority,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.seq++
	m.items[it.ID] = it
	m.order[it.ID] = m.seq
	m.mu.Unlock()

	m.notifier.Notify()
	return it.ID, nil
}

func (m *Memory[T]) Dequeue(_ context.Context) (*Item[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it := m.pickEligible(time.Now().UTC())
	if it == nil {
		return nil, nil
	}

	it.Status = StatusProcessing
	it.UpdatedAt = time.Now().UTC()
	cp := *it
	return &cp, nil
}

func (m *Memory[T]) Peek(_ context.Context) (*Item[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it := m.pickEligible(time.Now().UTC())
	if it == nil {
		return nil, nil
	}
	cp := *it
	return &cp, nil
}

func (m *Memory[T]) Complete(_ context.Context, id string) error {
	return m.transition(id, StatusCompleted, "")
}

func (m *Memory[T]) Fail(_ context.Context, id string, errMsg string) error {
	return m.transition(id, StatusFailed, errMsg)
}

func (m *Memory[T]) Delay(_ context.Context, id string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return fmt.Errorf("delay %s: %w", id, ErrNotFound)
	}
	if !it.Status.CanTransition(StatusDelayed) {
		return fmt.Errorf("delay %s: cannot delay item in status %q", id, it.Status)
	}
	it.Status = StatusDelayed
	it.AvailableAt = until.UTC()
	it.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory[T]) Get(_ context.Context, id string) (*Item[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	cp := *it
	return &cp, nil
}

func (m *Memory[T]) ListByStatus(_ context.Context, status Status) ([]*Item[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Item[T]
	for _, it := range m.items {
		if it.Status == status {
			cp := *it
			out = append(out, &cp)
		}
	}
	m.sortFIFO(out)
	return out, nil
}

func (m *Memory[T]) Depth(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, it := range m.items {
		if it.Status == StatusPending || it.Status == StatusDelayed {
			n++
		}
	}
	return n, nil
}

func (m *Memory[T]) Cleanup(_ context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, it := range m.items {
		if it.Status.Terminal() && it.UpdatedAt.Before(cutoff) {
			delete(m.items, id)
			delete(m.order, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory[T]) Notifier() *Notifier { return m.notifier }

// ---- ProcessingQueue ----

func (m *Memory[T]) BatchSize() int { return m.batchSize }

func (m *Memory[T]) ProcessingCount(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, it := range m.items {
		if it.Status == StatusProcessing {
			n++
		}
	}
	return n, nil
}

func (m *Memory[T]) HasCapacity(ctx context.Context) (bool, error) {
	n, err := m.ProcessingCount(ctx)
	if err != nil {
		return false, err
	}
	return n < m.batchSize, nil
}

// ---- ApprovalQueue ----

func (m *Memory[T]) ListBySession(_ context.Context, sessionID string) ([]*Item[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Item[T]
	for _, it := range m.items {
		if it.Payload.SessionKey() != sessionID {
			continue
		}
		if it.Status == StatusPending || it.Status == StatusDelayed {
			cp := *it
			out = append(out, &cp)
		}
	}
	m.sortFIFO(out)
	return out, nil
}

func (m *Memory[T]) GetHistory(_ context.Context, sessionID string, limit int) ([]*Item[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Item[T]
	for _, it := range m.items {
		if it.Payload.SessionKey() == sessionID && it.Status.Terminal() {
			cp := *it
			out = append(out, &cp)
		}
	}
	// Newest first.
	sort.Slice(out, func(i, j int) bool {
		return m.order[out[i].ID] > m.order[out[j].ID]
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory[T]) ExpireOld(_ context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, it := range m.items {
		waiting := it.Status == StatusPending || it.Status == StatusDelayed
		if waiting && it.CreatedAt.Before(cutoff) {
			delete(m.items, id)
			delete(m.order, id)
			n++
		}
	}
	return n, nil
}

// ---- internals ----

// pickEligible selects the highest-priority, oldest eligible item.
// Caller holds m.mu.
func (m *Memory[T]) pickEligible(now time.Time) *Item[T] {
	var best *Item[T]
	for _, it := range m.items {
		if !it.eligible(now) {
			continue
		}
		if best == nil || m.before(it, best) {
			best = it
		}
	}
	return best
}

// before reports whether a should be served ahead of b: priority descending,
// then enqueue order ascending.
func (m *Memory[T]) before(a, b *Item[T]) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return m.order[a.ID] < m.order[b.ID]
}

func (m *Memory[T]) sortFIFO(items []*Item[T]) {
	sort.Slice(items, func(i, j int) bool {
		return m.before(items[i], items[j])
	})
}

func (m *Memory[T]) transition(id string, to Status, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return fmt.Errorf("%s %s: %w", to, id, ErrNotFound)
	}
	if !it.Status.CanTransition(to) {
		return fmt.Errorf("%s %s: invalid transition from %q", to, id, it.Status)
	}
	it.Status = to
	it.UpdatedAt = time.Now().UTC()
	if to == StatusFailed {
		it.Attempts++
		it.LastError = errMsg
	}
	return nil
}

// Compile-time interface checks.
var (
	_ ProcessingQueue[payloadStub] = (*Memory[payloadStub])(nil)
	_ ApprovalQueue[payloadStub]   = (*Memory[payloadStub])(nil)
)

type payloadStub struct{}

func (payloadStub) SessionKey() string { return "" }
