// Package worker runs the queue consumers: the concurrency-bounded LLM
// dispatcher, the player/DM action workers, the asset worker, the approval
// notifier, and the maintenance sweeper. Each worker is a Run(ctx) loop that
// stops cleanly on context cancellation.
package worker

import (
	"context"
	"time"

	"github.com/questdeck/questdeck/internal/session"
)

// SessionPort is what the workers need from session state. The session
// manager satisfies it.
type SessionPort interface {
	SessionIDs() []string
	BroadcastToSession(sessionID string, msg session.Message) error
	BroadcastToPlayers(sessionID string, msg session.Message) error
	SendToDM(sessionID string, msg session.Message) error
	SendToClient(clientID string, msg session.Message) error
	AddToConversationHistory(sessionID, speaker, text string) error
	SetCurrentScene(sessionID, sceneID string) error
}

// MetricHooks carries the metric callback functions injected by main.
// Using a struct keeps worker constructor signatures clean.
type MetricHooks struct {
	OnProcessed func(topic string, latency time.Duration)
	OnFailed    func(topic string)
}

func (h MetricHooks) processed(topic string, latency time.Duration) {
	if h.OnProcessed != nil {
		h.OnProcessed(topic, latency)
	}
}

func (h MetricHooks) failed(topic string) {
	if h.OnFailed != nil {
		h.OnFailed(topic)
	}
}

// sleep waits for d or until ctx is cancelled, reporting false on
// cancellation. Workers use it for error backoff.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
