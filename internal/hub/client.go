package hub

import (
	"context"
	"errors"

	"github.com/DoyleJ11/lobbyd/internal/lobby"
)

// The methods below wrap a message round-trip through the inbox. ctx bounds
// the wait only; once the hub has accepted a message it runs to completion.

func (h *Hub) Create(ctx context.Context, name, nickname string, playerID, maxPlayers int, vis lobby.Visibility) (Created, error) {
	return ask(ctx, h, func(reply chan Reply[Created]) Msg {
		return CreateLobby{Name: name, Nickname: nickname, PlayerID: playerID, MaxPlayers: maxPlayers, Visibility: vis, Reply: reply}
	})
}

func (h *Hub) Join(ctx context.Context, code, nickname string, playerID int) (Joined, error) {
	return ask(ctx, h, func(reply chan Reply[Joined]) Msg {
		return JoinLobby{Code: code, Nickname: nickname, PlayerID: playerID, Reply: reply}
	})
}

func (h *Hub) SetReady(ctx context.Context, code string, playerID int, ready bool) (ReadyState, error) {
	return ask(ctx, h, func(reply chan Reply[ReadyState]) Msg {
		return SetReady{Code: code, PlayerID: playerID, Ready: ready, Reply: reply}
	})
}

func (h *Hub) Start(ctx context.Context, code string) (Started, error) {
	return ask(ctx, h, func(reply chan Reply[Started]) Msg {
		return StartMatch{Code: code, Reply: reply}
	})
}

func (h *Hub) Exit(ctx context.Context, playerID int) error {
	reply := make(chan error, 1)
	if err := h.send(ctx, ExitPlayer{PlayerID: playerID, Reply: reply}); err != nil {
		return err
	}
	return await(ctx, h, reply)
}

func (h *Hub) ListPublic(ctx context.Context) ([]lobby.Summary, error) {
	reply := make(chan []lobby.Summary, 1)
	if err := h.send(ctx, ListPublic{Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return nil, ErrStopped
	}
}

func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	if err := h.send(ctx, GetStats{Reply: reply}); err != nil {
		return Stats{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case <-h.done:
		return Stats{}, ErrStopped
	}
}

// Stop kills every running game server and ends the loop.
func (h *Hub) Stop(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := h.send(ctx, ShutdownHub{Reply: reply}); err != nil {
		if errors.Is(err, ErrStopped) {
			return nil
		}
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-h.done:
		// parent context ended the loop first; it already stopped the matches
		select {
		case err := <-reply:
			return err
		default:
			return nil
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func ask[T any](ctx context.Context, h *Hub, build func(chan Reply[T]) Msg) (T, error) {
	reply := make(chan Reply[T], 1)
	if err := h.send(ctx, build(reply)); err != nil {
		var zero T
		return zero, err
	}
	select {
	case r := <-reply:
		return r.Value, r.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-h.done:
		select {
		case r := <-reply:
			return r.Value, r.Err
		default:
			var zero T
			return zero, ErrStopped
		}
	}
}

func await(ctx context.Context, h *Hub, reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrStopped
	}
}

func (h *Hub) send(ctx context.Context, m Msg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrStopped
	}
}
