package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DoyleJ11/lobbyd/internal/hub"
	"github.com/DoyleJ11/lobbyd/internal/lobby"
)

// Lobbies is the read side of the hub the admin API needs.
type Lobbies interface {
	ListPublic(ctx context.Context) ([]lobby.Summary, error)
	Stats(ctx context.Context) (hub.Stats, error)
}

type Deps struct {
	Lobbies Lobbies
	Metrics http.Handler
	WS      http.Handler
}

func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Get("/lobbies", ListLobbies(d.Lobbies))
	r.Get("/stats", GetStats(d.Lobbies))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}
	if d.WS != nil {
		r.Method(http.MethodGet, "/ws", d.WS)
	}
	return r
}
