package approval

import (
	"sort"
	"sync"
	"time"
)

// Pending wraps a value awaiting a DM decision.
type Pending[T any] struct {
	RequestID   string
	SessionID   string
	RequestedAt time.Time
	Value       T
}

// Store is the one pending-decision container used by every approval
// variant: a reader/writer-locked map behind a shareable handle. Readers
// (status queries, the notifier worker) run concurrently; mutation takes the
// write lock. Values are copied on the way out, so callers can never mutate
// shared state without going through Update.
type Store[T any] struct {
	mu   sync.RWMutex
	seq  uint64 // arrival order tie-break; RequestedAt alone may collide
	byID map[string]*Pending[T]
	arr  map[string]uint64
}

func NewStore[T any]() *Store[T] {
	return &Store[T]{
		byID: make(map[string]*Pending[T]),
		arr:  make(map[string]uint64),
	}
}

// Add stores a pending entry. It reports false if the id is already present
// (the existing entry is kept).
func (s *Store[T]) Add(requestID, sessionID string, v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[requestID]; ok {
		return false
	}
	s.seq++
	s.byID[requestID] = &Pending[T]{
		RequestID:   requestID,
		SessionID:   sessionID,
		RequestedAt: time.Now().UTC(),
		Value:       v,
	}
	s.arr[requestID] = s.seq
	return true
}

func (s *Store[T]) Get(requestID string) (Pending[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[requestID]
	if !ok {
		var zero Pending[T]
		return zero, false
	}
	return *p, true
}

func (s *Store[T]) Contains(requestID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[requestID]
	return ok
}

// Update mutates an entry under the write lock and returns the updated copy.
func (s *Store[T]) Update(requestID string, fn func(*Pending[T])) (Pending[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[requestID]
	if !ok {
		var zero Pending[T]
		return zero, false
	}
	fn(p)
	return *p, true
}

func (s *Store[T]) Remove(requestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[requestID]; !ok {
		return false
	}
	delete(s.byID, requestID)
	delete(s.arr, requestID)
	return true
}

// BySession returns copies of all entries for a session, oldest first.
func (s *Store[T]) BySession(sessionID string) []Pending[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Pending[T]
	for _, p := range s.byID {
		if p.SessionID == sessionID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.arr[out[i].RequestID] < s.arr[out[j].RequestID]
	})
	return out
}

// ExpireOlderThan drops entries older than the given age and returns how
// many were dropped.
func (s *Store[T]) ExpireOlderThan(age time.Duration) int {
	cutoff := time.Now().UTC().Add(-age)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, p := range s.byID {
		if p.RequestedAt.Before(cutoff) {
			delete(s.byID, id)
			delete(s.arr, id)
			n++
		}
	}
	return n
}

func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

