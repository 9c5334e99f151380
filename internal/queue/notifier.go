package queue

import (
	"context"
	"time"
)

// Notifier is the wake-notification channel between producers and the worker
// loop. Notify never blocks and coalesces bursts into a single pending
// signal; Wait returns on a signal, on the fallback timeout, or when the
// context is cancelled. The timeout guarantees liveness even if a signal is
// lost (for example after a crash/restart), at the cost of at most one
// timeout interval of added latency.
type Notifier struct {
	ch chan struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{}, 1)}
}

// Notify wakes at most one waiter. Safe to call from any goroutine.
func (n *Notifier) Notify() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until a signal arrives, the timeout elapses, or ctx is
// cancelled. It reports whether it was woken by a signal.
func (n *Notifier) Wait(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-n.ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
