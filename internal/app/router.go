package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/enduro-dash/enduro-dash/internal/dashboard"
	"github.com/enduro-dash/enduro-dash/internal/observability"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	DashboardHandler *dashboard.Handler
	Metrics          *observability.Metrics
	// RequestsPerMinute overrides the per-IP rate limit.
	RequestsPerMinute int
}

// NewRouter constructs the chi.Router with dashboard defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:            params.Logger,
		Config:            params.Config,
		Metrics:           params.Metrics,
		RequestsPerMinute: params.RequestsPerMinute,
	}) {
		r.Use(mw)
	}

	if !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.DashboardHandler != nil {
		r.Route("/api", params.DashboardHandler.MountRoutes)
	}

	return r
}
