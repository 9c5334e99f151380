package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/questdeck/questdeck/internal/queue"
)

// Expirer is the stale-entry surface of the in-memory approval gates.
type Expirer interface {
	ExpireOlderThan(age time.Duration) int
	PendingCount() int
}

// GaugeHooks carries the gauge callbacks observed on every maintenance
// sweep. Any nil hook is skipped.
type GaugeHooks struct {
	OnQueueDepth       func(topic string, depth int)
	OnApprovalsPending func(n int)
	OnActiveSessions   func(n int)
}

func (h GaugeHooks) queueDepth(topic string, depth int) {
	if h.OnQueueDepth != nil {
		h.OnQueueDepth(topic, depth)
	}
}

func (h GaugeHooks) approvalsPending(n int) {
	if h.OnApprovalsPending != nil {
		h.OnApprovalsPending(n)
	}
}

func (h GaugeHooks) activeSessions(n int) {
	if h.OnActiveSessions != nil {
		h.OnActiveSessions(n)
	}
}

// MaintenanceWorker sweeps on a fixed interval: terminal queue items past
// retention are removed, waiting approvals past the expiry age are dropped,
// and the in-memory gates shed stale pending entries. Each sweep also
// refreshes the depth, pending-approval, and active-session gauges.
type MaintenanceWorker struct {
	queues    *queue.Queues
	gates     []Expirer
	sessions  SessionPort
	interval  time.Duration
	retention time.Duration
	expiry    time.Duration
	gauges    GaugeHooks
	logger    *zap.Logger
}

func NewMaintenanceWorker(
	queues *queue.Queues,
	gates []Expirer,
	sessions SessionPort,
	interval, retention, expiry time.Duration,
	gauges GaugeHooks,
	logger *zap.Logger,
) *MaintenanceWorker {
	return &MaintenanceWorker{
		queues:    queues,
		gates:     gates,
		sessions:  sessions,
		interval:  interval,
		retention: retention,
		expiry:    expiry,
		gauges:    gauges,
		logger:    logger,
	}
}

// Run ticks every interval and sweeps. Stops cleanly when ctx is cancelled.
func (mw *MaintenanceWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(mw.interval)
	defer ticker.Stop()

	mw.logger.Info("maintenance worker started", zap.Duration("interval", mw.interval))

	for {
		select {
		case <-ctx.Done():
			mw.logger.Info("maintenance worker stopping")
			return
		case <-ticker.C:
			mw.sweep(ctx)
		}
	}
}

func (mw *MaintenanceWorker) sweep(ctx context.Context) {
	removed := 0
	removed += mw.cleanup(ctx, queue.TopicPlayerActions, mw.queues.PlayerActions)
	removed += mw.cleanup(ctx, queue.TopicLLMRequests, mw.queues.LLMRequests)
	removed += mw.cleanup(ctx, queue.TopicDMActions, mw.queues.DMActions)
	removed += mw.cleanup(ctx, queue.TopicAssetGeneration, mw.queues.AssetGeneration)
	removed += mw.cleanup(ctx, queue.TopicApprovals, mw.queues.Approvals)

	expired, err := mw.queues.Approvals.ExpireOld(ctx, mw.expiry)
	if err != nil {
		mw.logger.Error("approval expiry error", zap.Error(err))
	}
	pending := 0
	for _, gate := range mw.gates {
		expired += gate.ExpireOlderThan(mw.expiry)
		pending += gate.PendingCount()
	}

	mw.gauges.approvalsPending(pending)
	mw.gauges.activeSessions(len(mw.sessions.SessionIDs()))

	if removed > 0 || expired > 0 {
		mw.logger.Info("maintenance sweep",
			zap.Int("removed", removed), zap.Int("expired", expired))
	}
}

// cleanup removes terminal items past retention and refreshes the topic's
// depth gauge while it holds the queue anyway.
func (mw *MaintenanceWorker) cleanup(ctx context.Context, topic string, q interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
	Depth(ctx context.Context) (int, error)
}) int {
	n, err := q.Cleanup(ctx, mw.retention)
	if err != nil {
		mw.logger.Error("cleanup error", zap.String("topic", topic), zap.Error(err))
		return 0
	}
	if depth, err := q.Depth(ctx); err == nil {
		mw.gauges.queueDepth(topic, depth)
	}
	return n
}
