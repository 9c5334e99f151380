// Package queue provides the durable work-queue abstraction behind the
// session backend: a generic priority+FIFO queue contract with a volatile
// in-memory backend and a PostgreSQL backend implementing the same
// interfaces.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an operation references an item id the
// backend does not hold. All other errors are backend failures wrapped with
// detail.
var ErrNotFound = errors.New("queue item not found")

// Payload is the constraint every topic payload satisfies: it must be
// JSON-serializable (enforced by use) and know which session it belongs to.
// Payloads without a session scope return "".
type Payload interface {
	SessionKey() string
}

// Topic names. Each topic is an independently-configured queue instance; the
// durable backend stores one table per topic.
const (
	TopicPlayerActions   = "player_actions"
	TopicLLMRequests     = "llm_requests"
	TopicDMActions       = "dm_actions"
	TopicAssetGeneration = "asset_generation"
	TopicApprovals       = "approvals"
)

// Queue is the base contract, implemented identically by every backend.
type Queue[T Payload] interface {
	// Enqueue stores a new Pending item and returns its id.
	Enqueue(ctx context.Context, payload T, priority int) (string, error)

	// Dequeue claims the highest-priority, oldest-eligible item, atomically
	// transitioning it to Processing. Ordering is priority descending, then
	// created_at ascending (FIFO within a priority band). Returns (nil, nil)
	// when no eligible item exists: callers treat that as "queue empty",
	// not an error.
	Dequeue(ctx context.Context) (*Item[T], error)

	// Peek returns what Dequeue would claim, without claiming it.
	Peek(ctx context.Context) (*Item[T], error)

	// Complete marks a Processing item Completed.
	Complete(ctx context.Context, id string) error

	// Fail marks a Processing item Failed, records the error text and
	// increments attempts. It never re-enqueues: retry is always an explicit
	// caller action.
	Fail(ctx context.Context, id string, errMsg string) error

	// Delay moves an item out of the eligible set until the given time.
	Delay(ctx context.Context, id string, until time.Time) error

	Get(ctx context.Context, id string) (*Item[T], error)
	ListByStatus(ctx context.Context, status Status) ([]*Item[T], error)

	// Depth returns the number of waiting (Pending or Delayed) items.
	Depth(ctx context.Context) (int, error)

	// Cleanup removes terminal items whose last update is older than the
	// given age and returns how many were removed.
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)

	// Notifier returns the queue's wake signal. Enqueue fires it; idle
	// workers wait on it with a bounded fallback timeout so liveness never
	// depends on the signal alone.
	Notifier() *Notifier
}

// ProcessingQueue adds advisory self-limiting for concurrency-bounded
// workers. The authoritative bound is the worker's permit semaphore; these
// let a worker avoid claiming items it cannot start yet.
type ProcessingQueue[T Payload] interface {
	Queue[T]

	BatchSize() int
	ProcessingCount(ctx context.Context) (int, error)
	HasCapacity(ctx context.Context) (bool, error)
}

// ApprovalQueue adds session-scoped visibility and garbage collection for
// the human-gate topic.
type ApprovalQueue[T Payload] interface {
	Queue[T]

	// ListBySession returns the waiting items whose payload belongs to the
	// given session.
	ListBySession(ctx context.Context, sessionID string) ([]*Item[T], error)

	// GetHistory returns up to limit terminal items for the session, newest
	// first.
	GetHistory(ctx context.Context, sessionID string, limit int) ([]*Item[T], error)

	// ExpireOld drops waiting items older than the given age and returns how
	// many were dropped.
	ExpireOld(ctx context.Context, olderThan time.Duration) (int, error)
}
