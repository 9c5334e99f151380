package queue

import "time"

// Status tracks the lifecycle of a queue item. An item holds exactly one
// status at a time; the transition to Processing is the exclusive claim.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDelayed    Status = "delayed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusDelayed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
// Failed is terminal unless the caller explicitly re-enqueues a fresh item:
// retry is never automatic (dead-letter by default).
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition guards the allowed lifecycle edges:
//
//	Pending    → Processing                      (dequeue claim)
//	Pending    → Delayed                         (delay)
//	Delayed    → Pending | Processing | Delayed  (due again; claim; re-delay)
//	Processing → Completed | Failed | Delayed    (finish; dead-letter; hand back)
//
// Processing → Delayed releases the claim: a worker that cannot act on an
// item yet returns it to the queue for a later attempt instead of
// dead-lettering it.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusProcessing || to == StatusDelayed
	case StatusDelayed:
		return to == StatusPending || to == StatusProcessing || to == StatusDelayed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed || to == StatusDelayed
	}
	return false
}

// Item is the generic envelope every topic stores. The payload is an opaque,
// JSON-serializable value specific to the topic.
type Item[T Payload] struct {
	ID        string    `json:"id"`
	Payload   T         `json:"payload"`
	Priority  int       `json:"priority"`
	Status    Status    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	// AvailableAt is set by Delay; a delayed item becomes eligible again once
	// it has passed.
	AvailableAt time.Time `json:"available_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// eligible reports whether the item can be claimed at time now.
func (it *Item[T]) eligible(now time.Time) bool {
	switch it.Status {
	case StatusPending:
		return true
	case StatusDelayed:
		return !it.AvailableAt.After(now)
	}
	return false
}
