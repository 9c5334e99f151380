package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/questdeck/questdeck/internal/assets"
	"github.com/questdeck/questdeck/internal/domain"
	"github.com/questdeck/questdeck/internal/events"
	"github.com/questdeck/questdeck/internal/queue"
)

// AssetWorker consumes the asset_generation topic and submits jobs to the
// image backend. Generation is fire-and-forget from the session's point of
// view; completion lands on the event bus.
type AssetWorker struct {
	requests  queue.Queue[domain.AssetRequest]
	generator assets.Generator
	bus       *events.Bus
	recovery  time.Duration
	backoff   time.Duration
	hooks     MetricHooks
	logger    *zap.Logger
}

func NewAssetWorker(
	requests queue.Queue[domain.AssetRequest],
	generator assets.Generator,
	bus *events.Bus,
	recovery, backoff time.Duration,
	hooks MetricHooks,
	logger *zap.Logger,
) *AssetWorker {
	return &AssetWorker{
		requests:  requests,
		generator: generator,
		bus:       bus,
		recovery:  recovery,
		backoff:   backoff,
		hooks:     hooks,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled, processing one request per iteration.
func (w *AssetWorker) Run(ctx context.Context) {
	w.logger.Info("asset worker started")
	for {
		item, err := w.requests.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("asset worker stopping")
				return
			}
			w.logger.Error("dequeue error", zap.Error(err))
			if !sleep(ctx, w.backoff) {
				return
			}
			continue
		}
		if item == nil {
			w.requests.Notifier().Wait(ctx, w.recovery)
			if ctx.Err() != nil {
				w.logger.Info("asset worker stopping")
				return
			}
			continue
		}
		w.process(ctx, item)
	}
}

func (w *AssetWorker) process(ctx context.Context, item *queue.Item[domain.AssetRequest]) {
	start := time.Now()
	req := item.Payload
	log := w.logger.With(
		zap.String("item_id", item.ID),
		zap.String("entity_type", req.EntityType),
		zap.String("entity_id", req.EntityID),
	)

	result, err := w.generator.Generate(ctx, req)
	if err != nil {
		log.Warn("asset generation failed", zap.Error(err))
		if failErr := w.requests.Fail(ctx, item.ID, err.Error()); failErr != nil {
			log.Error("could not mark request failed", zap.Error(failErr))
		}
		w.hooks.failed(queue.TopicAssetGeneration)
		return
	}

	w.bus.Publish(events.Event{
		Type:      events.TypeAssetReady,
		SessionID: req.SessionID,
		Data: map[string]any{
			"entity_type": req.EntityType,
			"entity_id":   req.EntityID,
			"job_ids":     result.JobIDs,
		},
	})

	if err := w.requests.Complete(ctx, item.ID); err != nil {
		log.Error("could not mark request completed", zap.Error(err))
	}
	w.hooks.processed(queue.TopicAssetGeneration, time.Since(start))
	log.Info("asset jobs submitted", zap.Int("jobs", len(result.JobIDs)))
}
