package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/questdeck/questdeck/internal/approval"
	"github.com/questdeck/questdeck/internal/domain"
	"github.com/questdeck/questdeck/internal/events"
	"github.com/questdeck/questdeck/internal/queue"
	"github.com/questdeck/questdeck/internal/session"
)

// DMWorker consumes the dm_actions topic so DM commands apply in the order
// they were issued. Decision errors that are the DM's fault (wrong id, not
// authorized) are reported back to the DM over the session wire and the
// queue item still completes; only backend failures mark the item failed.
type DMWorker struct {
	actions   queue.Queue[domain.DMAction]
	approvals approval.Decider[domain.ApprovalDecision, domain.ApprovalResult]
	sessions  SessionPort
	bus       *events.Bus
	recovery  time.Duration
	backoff   time.Duration
	hooks     MetricHooks
	logger    *zap.Logger
}

func NewDMWorker(
	actions queue.Queue[domain.DMAction],
	approvals approval.Decider[domain.ApprovalDecision, domain.ApprovalResult],
	sessions SessionPort,
	bus *events.Bus,
	recovery, backoff time.Duration,
	hooks MetricHooks,
	logger *zap.Logger,
) *DMWorker {
	return &DMWorker{
		actions:   actions,
		approvals: approvals,
		sessions:  sessions,
		bus:       bus,
		recovery:  recovery,
		backoff:   backoff,
		hooks:     hooks,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled, processing one DM action per iteration.
func (w *DMWorker) Run(ctx context.Context) {
	w.logger.Info("dm action worker started")
	for {
		item, err := w.actions.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("dm action worker stopping")
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
				w.logger.Info("dm action worker stopping")
				return
			}
			continue
		}
		w.process(ctx, item)
	}
}

func (w *DMWorker) process(ctx context.Context, item *queue.Item[domain.DMAction]) {
	start := time.Now()
	action := item.Payload
	log := w.logger.With(
		zap.String("item_id", item.ID),
		zap.String("session_id", action.SessionID),
		zap.String("kind", string(action.Kind)),
	)

	if err := w.handle(ctx, action); err != nil {
		// The DM's own mistakes complete the item; they are answered on the
		// wire, not retried.
		if code, ok := domain.WireCode(err); ok {
			if sendErr := w.sessions.SendToClient(action.DMID,
				session.ErrorMessage(code, err.Error())); sendErr != nil {
				log.Warn("decision error not delivered", zap.Error(sendErr))
			}
			log.Info("dm action refused", zap.String("code", code))
			if err := w.actions.Complete(ctx, item.ID); err != nil {
				log.Error("could not mark action completed", zap.Error(err))
			}
			return
		}

		log.Warn("dm action failed", zap.Error(err))
		if failErr := w.actions.Fail(ctx, item.ID, err.Error()); failErr != nil {
			log.Error("could not mark action failed", zap.Error(failErr))
		}
		w.hooks.failed(queue.TopicDMActions)
		return
	}

	if err := w.actions.Complete(ctx, item.ID); err != nil {
		log.Error("could not mark action completed", zap.Error(err))
	}
	w.hooks.processed(queue.TopicDMActions, time.Since(start))
	log.Info("dm action processed")
}

func (w *DMWorker) handle(ctx context.Context, action domain.DMAction) error {
	switch action.Kind {
	case domain.DMActionApprovalDecision:
		if action.Decision == nil {
			return fmt.Errorf("%w: decision payload missing", domain.ErrInvalidDecision)
		}
		result, err := w.approvals.Decide(ctx, action.SessionID, action.DMID, action.RequestID, *action.Decision)
		if err != nil {
			return err
		}
		if result.RetryCount > 0 {
			w.logger.Info("approval rejected for another pass",
				zap.String("request_id", action.RequestID),
				zap.Int("retry_count", result.RetryCount),
				zap.Bool("dropped", result.MaxRetriesExceeded))
		}
		return nil

	case domain.DMActionDirectNPCControl:
		if err := w.sessions.BroadcastToPlayers(action.SessionID,
			session.DialogueResponse(action.NPCName, action.Dialogue)); err != nil {
			return fmt.Errorf("broadcast npc dialogue: %w", err)
		}
		if err := w.sessions.AddToConversationHistory(action.SessionID, action.NPCName, action.Dialogue); err != nil {
			w.logger.Warn("history append failed",
				zap.String("session_id", action.SessionID), zap.Error(err))
		}
		return nil

	case domain.DMActionTriggerEvent:
		w.bus.Publish(events.Event{
			Type:      events.TypeEventTriggered,
			SessionID: action.SessionID,
			Data:      map[string]string{"event_id": action.EventID},
		})
		if err := w.sessions.BroadcastToSession(action.SessionID, session.Message{
			Type: session.TypeEventTriggered,
			Data: map[string]string{"event_id": action.EventID},
		}); err != nil {
			return fmt.Errorf("broadcast event: %w", err)
		}
		return nil

	case domain.DMActionTransitionScene:
		if err := w.sessions.SetCurrentScene(action.SessionID, action.SceneID); err != nil {
			return fmt.Errorf("set scene: %w", err)
		}
		if err := w.sessions.BroadcastToSession(action.SessionID, session.Message{
			Type: session.TypeSceneChanged,
			Data: map[string]string{"scene_id": action.SceneID},
		}); err != nil {
			return fmt.Errorf("broadcast scene change: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unknown dm action kind %q", action.Kind)
	}
}
