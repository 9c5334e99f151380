package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/questdeck/questdeck/internal/api/handler"
	apimw "github.com/questdeck/questdeck/internal/api/middleware"
	"github.com/questdeck/questdeck/internal/approval"
	"github.com/questdeck/questdeck/internal/game"
	"github.com/questdeck/questdeck/internal/queue"
	"github.com/questdeck/questdeck/internal/session"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	sessions *session.Manager,
	svc *game.Service,
	gate *approval.Service,
	outcomes *approval.OutcomeService,
	queues *queue.Queues,
	backend queue.Backend,
	pinger handler.Pinger,
	participantBuffer int,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1<<20)) // 1 MB max request body
	r.Use(apimw.Identity)           // correlation + client id inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	sh := handler.NewSessionHandler(sessions, participantBuffer, logger)
	ah := handler.NewActionHandler(svc, logger)
	ph := handler.NewApprovalHandler(gate, outcomes, queues.Approvals, logger)
	qh := handler.NewQueueHandler(queues)
	hh := handler.NewHealthHandler(string(backend), pinger)

	// --- routes ---
	r.Get("/health", hh.Health)
	r.Get("/ready", hh.Ready)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sessions", sh.Create)
		r.Get("/sessions", sh.List)
		r.Post("/sessions/{id}/join", sh.Join)
		r.Post("/sessions/{id}/leave", sh.Leave)
		r.Get("/sessions/{id}/history", sh.History)

		r.Post("/sessions/{id}/actions", ah.SubmitPlayerAction)
		r.Post("/sessions/{id}/dm-actions", ah.SubmitDMAction)
		r.Post("/sessions/{id}/suggestions", ah.RequestSuggestion)
		r.Post("/assets", ah.RequestAssets)

		// Decision routes stay flat so request ids never collide with
		// literal path segments.
		r.Get("/sessions/{id}/approvals", ph.ListPending)
		r.Get("/sessions/{id}/approvals/history", ph.History)
		r.Post("/approvals/{id}/decision", ph.Decide)

		r.Post("/sessions/{id}/resolutions", ph.QueueOutcome)
		r.Get("/sessions/{id}/outcomes", ph.ListPendingOutcomes)
		r.Post("/outcomes/{id}/decision", ph.DecideOutcome)

		// JSON queue snapshot
		r.Get("/queues", qh.GetStats)
	})

	return r
}
