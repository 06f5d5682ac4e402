package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/reedfamily/reedcraft/internal/auth"
	"github.com/reedfamily/reedcraft/internal/events"
)

type Deps struct {
	Snapshots      SnapshotService
	Server         ServerState
	Probe          Pinger
	Console        Commander
	Events         *events.Broker
	Metrics        http.Handler
	Tokens         *auth.TokenVerifier
	AllowedOrigins []string
}

// NewRouter builds the read-only admin API.
func NewRouter(d Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	if len(d.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   d.AllowedOrigins,
			AllowedMethods:   []string{"GET", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	snapshots := NewSnapshotHandler(d.Snapshots)
	eventStream := NewEventHandler(d.Events)
	status := NewStatusHandler(d.Server, d.Probe, d.Console)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(d.Tokens))
		r.Get("/server/status", status.Status)
		r.Get("/snapshots", snapshots.List)
		r.Get("/snapshots/{name}/download", snapshots.Download)
		r.Get("/events", eventStream.Handle)
	})
	return r
}
