package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	credhandler "credreg/internal/credential/handler"
	"credreg/internal/platform/metrics"
	"credreg/internal/platform/middleware"
	ratelimit "credreg/internal/ratelimit/middleware"
	"credreg/internal/ratelimit/models"
	schemahandler "credreg/internal/schema/handler"
)

// RouterConfig collects what NewRouter mounts.
type RouterConfig struct {
	Registry    *Handler
	Schemas     *schemahandler.Handler
	Credentials *credhandler.Handler

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Tokens validates bearer tokens. When RequireAuth is set, mutating
	// routes reject anonymous callers; otherwise a token is optional.
	Tokens      middleware.TokenValidator
	RequireAuth bool

	// Limiter throttles mutating routes per caller. Nil disables throttling.
	Limiter *ratelimit.Middleware

	// RequestTimeout bounds single-credential routes. Bulk routes run
	// under the server write timeout instead.
	RequestTimeout time.Duration
}

// NewRouter wires every registry route behind the shared middleware chain.
func NewRouter(cfg RouterConfig) http.Handler {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(cfg.Logger, cfg.Metrics))

	r.Get("/health", cfg.Registry.HandleHealth)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	auth := middleware.OptionalAuth(cfg.Tokens, cfg.Logger)
	if cfg.RequireAuth {
		auth = middleware.RequireAuth(cfg.Tokens, cfg.Logger)
	}

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(timeout))
		cfg.Registry.RegisterPublic(r)
		cfg.Schemas.Register(r)
		cfg.Credentials.Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Group(func(r chi.Router) {
			r.Use(throttle(cfg.Limiter, models.ClassWrite))
			r.Use(chimw.Timeout(timeout))
			r.Post("/issue", cfg.Registry.HandleIssue)
			r.Post("/revoke", cfg.Registry.HandleRevoke)
			cfg.Schemas.RegisterAdmin(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(throttle(cfg.Limiter, models.ClassBulk))
			r.Post("/bulkIssue", cfg.Registry.HandleBulkIssue)
			r.Post("/bulkIssue/csv", cfg.Registry.HandleBulkIssueCSV)
		})
	})
	return r
}

func throttle(limiter *ratelimit.Middleware, class models.EndpointClass) func(http.Handler) http.Handler {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return limiter.RateLimit(class)
}
