package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"localrag/internal/handlers"
)

// Deps holds the handlers the router wires up.
type Deps struct {
	Query      *handlers.QueryHandler
	Synthesize *handlers.SynthesizeHandler
	Ingest     *handlers.IngestHandler
	Health     *handlers.HealthHandler
}

// NewRouter creates the HTTP router.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(CORS)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/query", deps.Query)
		r.Method(http.MethodPost, "/synthesize", deps.Synthesize)
		r.Method(http.MethodPost, "/ingest", deps.Ingest)
	})

	r.Method(http.MethodGet, "/healthz", deps.Health)

	return r
}
