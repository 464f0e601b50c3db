package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/fschubi/lbvatlas-sub005/internal/auth"
	"github.com/fschubi/lbvatlas-sub005/internal/observability"
	"github.com/fschubi/lbvatlas-sub005/internal/rbac"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	AuthHandler   *auth.Handler
	RBACHandler   *rbac.Handler
	Authenticator auth.Authenticator
	Metrics       *observability.Metrics
}

// NewRouter constructs the chi.Router with Atlas defaults. Everything
// except login, refresh, logout, healthz and metrics sits behind the
// bearer-token middleware.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	params.AuthHandler.MountRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(params.Authenticator.Middleware)
		r.Get("/validate", params.AuthHandler.Validate)
		params.RBACHandler.MountRoutes(r)
	})

	return r
}
