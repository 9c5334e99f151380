package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/questdeck/questdeck/internal/domain"
	"github.com/questdeck/questdeck/internal/llm"
	"github.com/questdeck/questdeck/internal/queue"
)

// ActionWorker consumes the player_actions topic: each action is turned into
// an NPC-response request on the llm_requests topic. The queue item id of the
// action rides along as SourceActionID so the eventual approval can be traced
// back to the action that caused it.
type ActionWorker struct {
	actions  queue.Queue[domain.PlayerAction]
	requests queue.Queue[domain.LLMRequest]
	prompts  llm.PromptBuilder
	recovery time.Duration
	backoff  time.Duration
	hooks    MetricHooks
	logger   *zap.Logger
}

func NewActionWorker(
	actions queue.Queue[domain.PlayerAction],
	requests queue.Queue[domain.LLMRequest],
	prompts llm.PromptBuilder,
	recovery, backoff time.Duration,
	hooks MetricHooks,
	logger *zap.Logger,
) *ActionWorker {
	return &ActionWorker{
		actions:  actions,
		requests: requests,
		prompts:  prompts,
		recovery: recovery,
		backoff:  backoff,
		hooks:    hooks,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled, processing one action per iteration.
func (w *ActionWorker) Run(ctx context.Context) {
	w.logger.Info("player action worker started")
	for {
		item, err := w.actions.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("player action worker stopping")
				return
			}
			w.logger.Error("dequeue error", zap.Error(err))
			if !sleep(ctx, w.backoff) {
				return
			}
			continue
		}
		if item == nil {
			w.actions.Notifier().Wait(ctx, w.recovery)
			if ctx.Err() != nil {
				w.logger.Info("player action worker stopping")
				return
			}
			continue
		}
		w.process(ctx, item)
	}
}

func (w *ActionWorker) process(ctx context.Context, item *queue.Item[domain.PlayerAction]) {
	start := time.Now()
	action := item.Payload
	log := w.logger.With(
		zap.String("item_id", item.ID),
		zap.String("session_id", action.SessionID),
		zap.String("action_type", action.ActionType),
	)

	if err := w.handle(ctx, item.ID, action); err != nil {
		log.Warn("player action failed", zap.Error(err))
		if failErr := w.actions.Fail(ctx, item.ID, err.Error()); failErr != nil {
			log.Error("could not mark action failed", zap.Error(failErr))
		}
		w.hooks.failed(queue.TopicPlayerActions)
		return
	}

	if err := w.actions.Complete(ctx, item.ID); err != nil {
		log.Error("could not mark action completed", zap.Error(err))
	}
	w.hooks.processed(queue.TopicPlayerActions, time.Since(start))
	log.Info("player action processed")
}

func (w *ActionWorker) handle(ctx context.Context, itemID string, action domain.PlayerAction) error {
	prompt, err := w.prompts.BuildNPCPrompt(action)
	if err != nil {
		return fmt.Errorf("build prompt: %w", err)
	}

	req := domain.LLMRequest{
		Kind:           domain.KindNPCResponse,
		SessionID:      action.SessionID,
		SourceActionID: itemID,
		Prompt:         prompt,
		CallbackID:     itemID,
	}
	if _, err := w.requests.Enqueue(ctx, req, 0); err != nil {
		return fmt.Errorf("enqueue llm request: %w", err)
	}
	return nil
}
