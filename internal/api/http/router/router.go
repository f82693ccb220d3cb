package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dtroode/rollcall-server/internal/logger"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// Router builds the HTTP surface: health checks and the display feed.
type Router struct {
	display http.Handler
	checks  map[string]Check
	logger  *logger.Logger
}

// New creates new HTTP Router instance.
func New(display http.Handler, checks map[string]Check, logger *logger.Logger) *Router {
	return &Router{display: display, checks: checks, logger: logger}
}

// Register mounts all routes.
func (r *Router) Register() http.Handler {
	mux := chi.NewRouter()
	mux.Use(chimiddleware.RealIP)
	mux.Use(chimiddleware.Recoverer)

	mux.Get("/healthz", r.healthz)
	if r.display != nil {
		mux.Handle("/display/{sessionID}/ws", r.display)
	}
	return mux
}

func (r *Router) healthz(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
	defer cancel()

	code := http.StatusOK
	result := map[string]string{"status": "ok"}
	for name, check := range r.checks {
		if err := check(ctx); err != nil {
			r.logger.Warn("HTTP router: health check failed", "dependency", name, "error", err.Error())
			result[name] = "unavailable"
			result["status"] = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		result[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(result)
}
