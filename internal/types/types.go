package types

import "github.com/DoyleJ11/lobbyd/internal/lobby"

// LobbySummary is the admin API view of a public lobby.
type LobbySummary struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"max_players"`
}

type LobbyList struct {
	Lobbies []LobbySummary `json:"lobbies"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func FromSummaries(in []lobby.Summary) LobbyList {
	out := LobbyList{Lobbies: make([]LobbySummary, len(in))}
	for i, s := range in {
		out.Lobbies[i] = LobbySummary{Code: s.Code, Name: s.Name, Players: s.Players, MaxPlayers: s.MaxPlayers}
	}
	return out
}
