package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/DoyleJ11/lobbyd/internal/types"
)

const hubTimeout = 2 * time.Second

func ListLobbies(l Lobbies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), hubTimeout)
		defer cancel()

		list, err := l.ListPublic(ctx)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, types.ErrorResponse{Error: "lobby registry unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, types.FromSummaries(list))
	}
}

func GetStats(l Lobbies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), hubTimeout)
		defer cancel()

		st, err := l.Stats(ctx)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, types.ErrorResponse{Error: "lobby registry unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
