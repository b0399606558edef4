package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"whitelist/internal/admission/handler"
	"whitelist/internal/platform/metrics"
	"whitelist/pkg/platform/httputil"
	"whitelist/pkg/platform/middleware/metadata"
	request "whitelist/pkg/platform/middleware/request"
	"whitelist/pkg/platform/middleware/requesttime"
)

const healthTimeout = 2 * time.Second

// HealthCheck probes one backing dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Config collects what the router needs. Nil HTTPMetrics and Gatherer disable
// instrumentation and the /metrics endpoint. RateLimit, when set, guards the
// whitelist routes.
type Config struct {
	Logger        *slog.Logger
	Whitelist     *handler.Handler
	RequireCaller func(http.Handler) http.Handler
	RateLimit     func(http.Handler) http.Handler
	HTTPMetrics   *metrics.Metrics
	Gatherer      prometheus.Gatherer
	HealthChecks  []HealthCheck
}

// NewRouter wires the middleware chain and every public endpoint. The HTTP
// layer stays thin: handlers delegate to services.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.RequestID)
	r.Use(request.Logger(cfg.Logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	if cfg.HTTPMetrics != nil {
		r.Use(cfg.HTTPMetrics.Middleware)
	}

	r.Get("/healthz", healthHandler(cfg.Logger, cfg.HealthChecks))
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		if cfg.RateLimit != nil {
			r.Use(cfg.RateLimit)
		}
		cfg.Whitelist.Register(r, cfg.RequireCaller)
	})
	// server spans use the global provider; admission service spans nest under them
	return otelhttp.NewHandler(r, "whitelist.http")
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(logger *slog.Logger, checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed",
					"check", c.Name,
					"error", err.Error(),
				)
				resp.Checks[c.Name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.Name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
