package handler

import (
	"net/http"

	"github.com/questdeck/questdeck/internal/queue"
)

// QueueHandler serves a human-readable JSON queue snapshot.
// Raw Prometheus metrics (counters, histograms) are available at /metrics
// via promhttp.Handler and are separate from this endpoint.
type QueueHandler struct {
	queues *queue.Queues
}

func NewQueueHandler(queues *queue.Queues) *QueueHandler {
	return &QueueHandler{queues: queues}
}

// GetStats handles GET /api/v1/queues
//
// @Summary  Real-time queue depth snapshot per topic
// @Tags     metrics
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/queues [get]
func (h *QueueHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	depths := map[string]int{}
	total := 0

	for topic, depth := range map[string]func() (int, error){
		queue.TopicPlayerActions:   func() (int, error) { return h.queues.PlayerActions.Depth(ctx) },
		queue.TopicLLMRequests:     func() (int, error) { return h.queues.LLMRequests.Depth(ctx) },
		queue.TopicDMActions:       func() (int, error) { return h.queues.DMActions.Depth(ctx) },
		queue.TopicAssetGeneration: func() (int, error) { return h.queues.AssetGeneration.Depth(ctx) },
		queue.TopicApprovals:       func() (int, error) { return h.queues.Approvals.Depth(ctx) },
	} {
		n, err := depth()
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to read queue depth")
			return
		}
		depths[topic] = n
		total += n
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"queue_depth": depths,
		"total":       total,
	})
}
