package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/questdeck/questdeck/internal/domain"
	"github.com/questdeck/questdeck/internal/events"
	"github.com/questdeck/questdeck/internal/llm"
	"github.com/questdeck/questdeck/internal/queue"
	"github.com/questdeck/questdeck/internal/session"
)

// Dispatcher consumes the llm_requests topic with a hard concurrency bound.
//
// The permit is acquired BEFORE the dequeue: an item is only ever claimed
// when a slot exists to run it, so in-flight model calls can never exceed the
// bound and claimed items never sit waiting for capacity. When the queue is
// empty the permit is returned and the loop parks on the queue's wake signal
// with a recovery-interval fallback, so liveness never depends on the signal
// alone.
type Dispatcher struct {
	requests  queue.ProcessingQueue[domain.LLMRequest]
	approvals queue.Queue[domain.ApprovalItem]
	model     llm.Client
	sessions  SessionPort
	bus       *events.Bus
	tools     []llm.ToolDef

	sem      *semaphore.Weighted
	recovery time.Duration
	backoff  time.Duration
	hooks    MetricHooks
	logger   *zap.Logger
	wg       sync.WaitGroup
}

func NewDispatcher(
	requests queue.ProcessingQueue[domain.LLMRequest],
	approvals queue.Queue[domain.ApprovalItem],
	model llm.Client,
	sessions SessionPort,
	bus *events.Bus,
	tools []llm.ToolDef,
	maxConcurrent int64,
	recovery, backoff time.Duration,
	hooks MetricHooks,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		requests:  requests,
		approvals: approvals,
		model:     model,
		sessions:  sessions,
		bus:       bus,
		tools:     tools,
		sem:       semaphore.NewWeighted(maxConcurrent),
		recovery:  recovery,
		backoff:   backoff,
		hooks:     hooks,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled, claiming one request per free permit.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("llm dispatcher started")
	for {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			d.logger.Info("llm dispatcher stopping")
			return
		}

		item, err := d.requests.Dequeue(ctx)
		if err != nil {
			d.sem.Release(1)
			if ctx.Err() != nil {
				d.logger.Info("llm dispatcher stopping")
				return
			}
			d.logger.Error("dequeue error", zap.Error(err))
			if !sleep(ctx, d.backoff) {
				return
			}
			continue
		}
		if item == nil {
			d.sem.Release(1)
			d.requests.Notifier().Wait(ctx, d.recovery)
			if ctx.Err() != nil {
				d.logger.Info("llm dispatcher stopping")
				return
			}
			continue
		}

		d.wg.Add(1)
		go func(item *queue.Item[domain.LLMRequest]) {
			defer d.wg.Done()
			defer d.sem.Release(1)
			d.dispatch(ctx, item)
		}(item)
	}
}

// Wait blocks until every in-flight model call has finished. Call after
// cancelling the run context.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, item *queue.Item[domain.LLMRequest]) {
	start := time.Now()
	req := item.Payload
	log := d.logger.With(
		zap.String("item_id", item.ID),
		zap.String("kind", string(req.Kind)),
		zap.String("session_id", req.SessionID),
	)

	var err error
	switch req.Kind {
	case domain.KindNPCResponse:
		err = d.npcResponse(ctx, item)
	case domain.KindSuggestion:
		err = d.suggestion(ctx, item)
	case domain.KindChallengeReasoning:
		err = d.challengeReasoning(ctx, item)
	default:
		err = fmt.Errorf("unknown request kind %q", req.Kind)
	}

	elapsed := time.Since(start)
	if err != nil {
		log.Warn("llm request failed", zap.Error(err), zap.Duration("latency", elapsed))
		if failErr := d.requests.Fail(ctx, item.ID, err.Error()); failErr != nil {
			log.Error("could not mark request failed", zap.Error(failErr))
		}
		d.hooks.failed(queue.TopicLLMRequests)
		return
	}

	if err := d.requests.Complete(ctx, item.ID); err != nil {
		log.Error("could not mark request completed", zap.Error(err))
	}
	d.hooks.processed(queue.TopicLLMRequests, elapsed)
	log.Info("llm request processed", zap.Duration("latency", elapsed))
}

// npcResponse generates an NPC reply and routes it into the approval gate.
// Nothing generated here reaches players directly.
func (d *Dispatcher) npcResponse(ctx context.Context, item *queue.Item[domain.LLMRequest]) error {
	req := item.Payload
	if req.Prompt == nil {
		return fmt.Errorf("npc response request without prompt")
	}

	resp, err := d.model.GenerateWithTools(ctx, *req.Prompt, d.tools)
	if err != nil {
		if sendErr := d.sessions.SendToDM(req.SessionID, session.ErrorMessage(
			"LLM_FAILED", fmt.Sprintf("could not generate a response for %s", req.Prompt.NPCName),
		)); sendErr != nil {
			d.logger.Warn("llm failure notice not delivered", zap.Error(sendErr))
		}
		return fmt.Errorf("generate npc response: %w", err)
	}

	decisionType := domain.DecisionTypeNPCResponse
	tools := make([]domain.ProposedTool, 0, len(resp.ProposedToolCalls))
	for _, call := range resp.ProposedToolCalls {
		tools = append(tools, domain.ProposedTool{
			ID:        uuid.New().String(),
			Name:      call.Name,
			Arguments: call.Arguments,
		})
	}
	if len(tools) > 0 {
		decisionType = domain.DecisionTypeToolUsage
	}

	approval := domain.ApprovalItem{
		SessionID:                req.SessionID,
		SourceActionID:           req.SourceActionID,
		DecisionType:             decisionType,
		Urgency:                  domain.UrgencyAwaitingPlayer,
		NPCName:                  req.Prompt.NPCName,
		ProposedDialogue:         resp.NPCDialogue,
		InternalReasoning:        resp.InternalReasoning,
		ProposedTools:            tools,
		ChallengeSuggestion:      resp.ChallengeSuggestion,
		NarrativeEventSuggestion: resp.NarrativeEventSuggestion,
	}
	if _, err := d.approvals.Enqueue(ctx, approval, int(approval.Urgency)); err != nil {
		return fmt.Errorf("enqueue approval: %w", err)
	}
	return nil
}

// suggestion generates draft content for the DM and publishes it on the
// event bus under the request's callback id.
func (d *Dispatcher) suggestion(ctx context.Context, item *queue.Item[domain.LLMRequest]) error {
	req := item.Payload
	if req.Suggestion == nil {
		return fmt.Errorf("suggestion request without context")
	}

	resp, err := d.model.Generate(ctx, domain.PromptRequest{
		System: "You draft tabletop campaign content for the DM. Reply with the requested text only.",
		User: fmt.Sprintf("Draft a %s. Context: %s",
			req.Suggestion.FieldType, req.Suggestion.Context),
	})
	if err != nil {
		return fmt.Errorf("generate suggestion: %w", err)
	}

	d.bus.Publish(events.Event{
		Type:      events.TypeSuggestionReady,
		SessionID: req.SessionID,
		Data: map[string]string{
			"callback_id": req.CallbackID,
			"field_type":  req.Suggestion.FieldType,
			"entity_id":   req.Suggestion.EntityID,
			"text":        resp.NPCDialogue,
		},
	})
	return nil
}

// challengeReasoning asks the model whether a proposed challenge fits the
// scene and publishes the verdict for the requester.
func (d *Dispatcher) challengeReasoning(ctx context.Context, item *queue.Item[domain.LLMRequest]) error {
	req := item.Payload
	resp, err := d.model.Generate(ctx, domain.PromptRequest{
		System: "You assess whether a skill challenge fits the current scene. Answer briefly.",
		User:   fmt.Sprintf("Challenge %s: does it fit? Explain in two sentences.", req.ChallengeID),
	})
	if err != nil {
		return fmt.Errorf("generate challenge reasoning: %w", err)
	}

	d.bus.Publish(events.Event{
		Type:      events.TypeSuggestionReady,
		SessionID: req.SessionID,
		Data: map[string]string{
			"callback_id":  req.CallbackID,
			"challenge_id": req.ChallengeID,
			"text":         resp.NPCDialogue,
		},
	})
	return nil
}
