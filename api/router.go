package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aiser/queryengine/api/handlers"
)

// QueryHandlers is the subset of handlers.QueryHandler's methods the router
// needs, kept as an interface so tests can mount a stub.
type QueryHandlers interface {
	HandleQuery(w http.ResponseWriter, r *http.Request)
	HandleStream(w http.ResponseWriter, r *http.Request)
}

// NewRouter mounts the C12 public request surface and health endpoints onto
// a chi.Router. middlewares, if given, are applied in order to every route
// (recovery, request ID, logging, CORS, etc. belong here, supplied by the
// caller's cmd/queryengine/middleware.go stack).
func NewRouter(qh QueryHandlers, health *handlers.HealthHandler, middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/healthz", health.HandleHealthz)
	r.Get("/ready", health.HandleReady)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/queries", qh.HandleQuery)
		r.Post("/queries/stream", qh.HandleStream)
	})

	return r
}
