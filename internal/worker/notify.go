package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/questdeck/questdeck/internal/approval"
	"github.com/questdeck/questdeck/internal/domain"
	"github.com/questdeck/questdeck/internal/queue"
	"github.com/questdeck/questdeck/internal/session"
)

// NotifyWorker moves items from the approvals topic into the in-memory
// approval gate and tells the DM about them. Queue priority is the urgency
// band, so scene-critical items reach the DM first.
//
// An item whose session is not active yet is put back with a delay instead
// of failing: approvals outlive DM reconnects.
type NotifyWorker struct {
	approvals queue.ApprovalQueue[domain.ApprovalItem]
	gate      *approval.Service
	sessions  SessionPort
	recovery  time.Duration
	backoff   time.Duration
	retryIn   time.Duration
	hooks     MetricHooks
	logger    *zap.Logger
}

func NewNotifyWorker(
	approvals queue.ApprovalQueue[domain.ApprovalItem],
	gate *approval.Service,
	sessions SessionPort,
	recovery, backoff, retryIn time.Duration,
	hooks MetricHooks,
	logger *zap.Logger,
) *NotifyWorker {
	return &NotifyWorker{
		approvals: approvals,
		gate:      gate,
		sessions:  sessions,
		recovery:  recovery,
		backoff:   backoff,
		retryIn:   retryIn,
		hooks:     hooks,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled, processing one approval per iteration.
func (w *NotifyWorker) Run(ctx context.Context) {
	w.logger.Info("approval notifier started")
	for {
		item, err := w.approvals.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("approval notifier stopping")
				return
			}
			w.logger.Error("dequeue error", zap.Error(err))
			if !sleep(ctx, w.backoff) {
				return
			}
			continue
		}
		if item == nil {
			w.approvals.Notifier().Wait(ctx, w.recovery)
			if ctx.Err() != nil {
				w.logger.Info("approval notifier stopping")
				return
			}
			continue
		}
		w.process(ctx, item)
	}
}

func (w *NotifyWorker) process(ctx context.Context, item *queue.Item[domain.ApprovalItem]) {
	start := time.Now()
	log := w.logger.With(
		zap.String("request_id", item.ID),
		zap.String("session_id", item.Payload.SessionID),
		zap.String("urgency", item.Payload.Urgency.String()),
	)

	w.gate.Track(item.ID, item.Payload)

	view, _ := w.gate.Snapshot(item.ID)
	if err := w.sessions.SendToDM(item.Payload.SessionID, session.Message{
		Type: session.TypeApprovalRequired,
		Data: view,
	}); err != nil {
		// No such session yet: hand the item back and try again later.
		w.gate.Untrack(item.ID)
		if delayErr := w.approvals.Delay(ctx, item.ID, time.Now().UTC().Add(w.retryIn)); delayErr != nil {
			log.Error("could not delay approval", zap.Error(delayErr))
			if failErr := w.approvals.Fail(ctx, item.ID, err.Error()); failErr != nil {
				log.Error("could not mark approval failed", zap.Error(failErr))
			}
			w.hooks.failed(queue.TopicApprovals)
		}
		log.Info("session not active, approval delayed")
		return
	}

	if err := w.approvals.Complete(ctx, item.ID); err != nil {
		log.Error("could not mark approval completed", zap.Error(err))
	}
	w.hooks.processed(queue.TopicApprovals, time.Since(start))
	log.Info("dm notified of pending approval")
}
