package handler

import (
	"net/http"

	"github.com/boddenberg/contribution-bfa-go/internal/infra/observability"
	"github.com/boddenberg/contribution-bfa-go/internal/infra/session"
	"github.com/boddenberg/contribution-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// contrib may be nil, in which case only the operational endpoints work.
func NewRouter(contrib *service.ContributionService, sessions *session.Provider, metrics *observability.Metrics, corsOrigins []string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger, metrics))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(contrib))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	if contrib == nil {
		return r
	}

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		if sessions != nil {
			r.Use(SessionMiddleware(sessions, logger))
		}

		// Catalog & fees
		r.Get("/projects/{projectId}/catalog", getCatalogHandler(contrib, logger))
		r.Get("/fees/preview", previewFeesHandler(contrib))

		// Contribution flows
		r.Route("/contributions/flows", func(r chi.Router) {
			r.Post("/", createFlowHandler(contrib, logger))

			r.Route("/{flowId}", func(r chi.Router) {
				r.Get("/", getFlowHandler(contrib, logger))
				r.Post("/terms", acceptTermsHandler(contrib, logger))
				r.Post("/proceed", flowActionHandler(contrib, "proceed", (*service.Flow).Proceed, logger))
				r.Post("/phase", selectPhaseHandler(contrib, logger))
				r.Post("/milestone", selectMilestoneHandler(contrib, logger))
				r.Put("/custom-amount", customAmountHandler(contrib, logger))
				r.Put("/payment-type", paymentTypeHandler(contrib, logger))
				r.Post("/confirm", flowActionHandler(contrib, "confirm", (*service.Flow).ProceedToConfirm, logger))
				r.Post("/dismiss-warning", flowActionHandler(contrib, "dismiss-warning", (*service.Flow).DismissWarning, logger))
				r.Post("/change-phase", flowActionHandler(contrib, "change-phase", (*service.Flow).ChangePhase, logger))
				r.Post("/change-selection", flowActionHandler(contrib, "change-selection", (*service.Flow).ChangeSelection, logger))
				r.Post("/retry", flowActionHandler(contrib, "retry", (*service.Flow).RetryCatalog, logger))
				r.Post("/submit", submitHandler(contrib, logger))
			})
		})
	})

	return r
}

func healthzHandler(contrib *service.ContributionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if contrib == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
			return
		}
		writeJSON(w, http.StatusOK, contrib.Health(r.Context()))
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
