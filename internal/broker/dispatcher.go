// Package broker turns protocol frames into registry calls and registry
// results back into frames. It is shared by every transport.
package broker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lobbyd/internal/hub"
	"github.com/DoyleJ11/lobbyd/internal/launcher"
	"github.com/DoyleJ11/lobbyd/internal/lobby"
	"github.com/DoyleJ11/lobbyd/internal/metrics"
	"github.com/DoyleJ11/lobbyd/internal/ports"
	"github.com/DoyleJ11/lobbyd/internal/protocol"
)

// Registry is the slice of the hub the dispatcher drives.
type Registry interface {
	Create(ctx context.Context, name, nickname string, playerID, maxPlayers int, vis lobby.Visibility) (hub.Created, error)
	Join(ctx context.Context, code, nickname string, playerID int) (hub.Joined, error)
	SetReady(ctx context.Context, code string, playerID int, ready bool) (hub.ReadyState, error)
	Start(ctx context.Context, code string) (hub.Started, error)
	Exit(ctx context.Context, playerID int) error
	ListPublic(ctx context.Context) ([]lobby.Summary, error)
}

// playerLocks stripes per-player serialisation so a disconnect cleanup and a
// request from the same player on another connection cannot interleave.
const playerLocks = 64

const (
	resultOK       = "ok"
	resultRejected = "rejected"
	resultError    = "error"
)

type Dispatcher struct {
	hub     Registry
	metrics *metrics.Metrics
	log     *zap.Logger

	mu     sync.Mutex
	byAddr map[string]int
	byID   map[int]string

	players [playerLocks]sync.Mutex
}

func NewDispatcher(h Registry, m *metrics.Metrics, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		hub:     h,
		metrics: m,
		log:     log.Named("broker"),
		byAddr:  make(map[string]int),
		byID:    make(map[int]string),
	}
}

// Handle processes one inbound frame from addr. A nil reply means nothing
// should be written back. Client mistakes come back as a reply with a nil
// error; a non-nil error means the registry itself failed, and the reply then
// carries a generic message for the client.
func (d *Dispatcher) Handle(ctx context.Context, addr string, raw []byte) ([]byte, error) {
	cmd, err := protocol.Parse(raw)
	if err != nil {
		d.metrics.Request(verbOf(raw), resultRejected)
		d.log.Debug("rejected frame", zap.String("addr", addr), zap.String("frame", protocol.Fields(raw)), zap.Error(err))
		return []byte(err.Error()), nil
	}

	verb := string(cmd.Verb())
	if id, ok := playerID(cmd); ok {
		unlock := d.lockPlayer(id)
		defer unlock()
	}
	reply, err := d.dispatch(ctx, addr, cmd)
	if err == nil {
		d.metrics.Request(verb, resultOK)
		return reply, nil
	}

	if msg, ok := clientMessage(cmd, err); ok {
		d.metrics.Request(verb, resultRejected)
		d.log.Debug("request refused", zap.String("addr", addr), zap.String("verb", verb), zap.Error(err))
		return []byte(msg), nil
	}

	d.metrics.Request(verb, resultError)
	d.log.Error("request failed", zap.String("addr", addr), zap.String("verb", verb), zap.Error(err))
	return []byte(protocol.MsgServerError), err
}

func (d *Dispatcher) dispatch(ctx context.Context, addr string, cmd protocol.Command) ([]byte, error) {
	switch c := cmd.(type) {
	case protocol.Create:
		vis := lobby.Private
		if c.Public {
			vis = lobby.Public
		}
		created, err := d.hub.Create(ctx, c.RoomName, c.Nickname, c.PlayerID, c.MaxPlayers, vis)
		if err != nil {
			return nil, err
		}
		d.bind(addr, c.PlayerID)
		return protocol.RoomCreated(created.Code), nil

	case protocol.Join:
		joined, err := d.hub.Join(ctx, c.RoomCode, c.Nickname, c.PlayerID)
		if err != nil {
			return nil, err
		}
		return protocol.JoinedRoom(joined.Port, joined.Name), nil

	case protocol.Ready:
		state, err := d.hub.SetReady(ctx, c.RoomCode, c.PlayerID, c.Ready)
		if err != nil {
			return nil, err
		}
		d.bind(addr, c.PlayerID)
		if state.Started {
			return protocol.GameStarting(state.Port), nil
		}
		return protocol.Roster(rosterEntries(state.Roster)), nil

	case protocol.Start:
		started, err := d.hub.Start(ctx, c.RoomCode)
		if err != nil {
			return nil, err
		}
		return protocol.GameStarting(started.Port), nil

	case protocol.List:
		list, err := d.hub.ListPublic(ctx)
		if err != nil {
			return nil, err
		}
		return protocol.LobbyList(listEntries(list)), nil

	case protocol.Exit:
		if err := d.hub.Exit(ctx, c.PlayerID); err != nil {
			return nil, err
		}
		d.unbindID(c.PlayerID)
		return nil, nil
	}
	return nil, protocol.ErrUnrecognized
}

// Disconnect runs exit cleanup for whichever player was last bound to addr.
// Calling it for an unbound address, or twice, does nothing.
func (d *Dispatcher) Disconnect(ctx context.Context, addr string) {
	d.mu.Lock()
	id, ok := d.byAddr[addr]
	d.mu.Unlock()
	if !ok {
		return
	}

	unlock := d.lockPlayer(id)
	defer unlock()

	// the id may have moved to another connection while we waited
	d.mu.Lock()
	current, ok := d.byAddr[addr]
	if ok && current == id {
		delete(d.byAddr, addr)
		delete(d.byID, id)
	}
	d.mu.Unlock()
	if !ok || current != id {
		return
	}

	err := d.hub.Exit(ctx, id)
	switch {
	case err == nil:
		d.log.Info("disconnect cleanup", zap.String("addr", addr), zap.Int("player", id))
	case errors.Is(err, hub.ErrNoLobby):
		// already gone through an explicit exit
	default:
		d.log.Warn("disconnect cleanup failed", zap.String("addr", addr), zap.Int("player", id), zap.Error(err))
	}
}

// bind points addr at id. An id lives at one address; rebinding moves it.
func (d *Dispatcher) bind(addr string, id int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.byID[id]; ok && prev != addr {
		delete(d.byAddr, prev)
	}
	if prevID, ok := d.byAddr[addr]; ok && prevID != id {
		delete(d.byID, prevID)
	}
	d.byAddr[addr] = id
	d.byID[id] = addr
}

func (d *Dispatcher) unbindID(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if addr, ok := d.byID[id]; ok {
		delete(d.byAddr, addr)
		delete(d.byID, id)
	}
}

// Bound reports the player id currently tied to addr.
func (d *Dispatcher) Bound(addr string) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.byAddr[addr]
	return id, ok
}

func (d *Dispatcher) lockPlayer(id int) func() {
	m := &d.players[uint(id)%playerLocks]
	m.Lock()
	return m.Unlock
}

func playerID(cmd protocol.Command) (int, bool) {
	switch c := cmd.(type) {
	case protocol.Create:
		return c.PlayerID, true
	case protocol.Join:
		return c.PlayerID, true
	case protocol.Ready:
		return c.PlayerID, true
	case protocol.Exit:
		return c.PlayerID, true
	}
	return 0, false
}

func clientMessage(cmd protocol.Command, err error) (string, bool) {
	switch {
	case errors.Is(err, lobby.ErrSizeTooLarge):
		return protocol.MsgSizeTooLarge(), true
	case errors.Is(err, lobby.ErrInvalidSize):
		return protocol.MsgInvalidSize, true
	case errors.Is(err, ports.ErrNoPorts):
		return protocol.MsgNoPorts, true
	case errors.Is(err, hub.ErrRoomNotFound):
		return protocol.RoomNotFound(roomOf(cmd)), true
	case errors.Is(err, lobby.ErrFull):
		return protocol.RoomFull(roomOf(cmd)), true
	case errors.Is(err, lobby.ErrAlreadyJoined):
		return protocol.MsgAlreadyJoined, true
	case errors.Is(err, lobby.ErrPlayerNotFound):
		return protocol.PlayerNotFound(playerOf(cmd), roomOf(cmd)), true
	case errors.Is(err, hub.ErrNotAllReady):
		return protocol.MsgNotAllReady, true
	case errors.Is(err, launcher.ErrLaunch):
		return protocol.MsgLaunchFailed, true
	case errors.Is(err, hub.ErrNoLobby):
		return protocol.NoLobbyFor(playerOf(cmd)), true
	}

	var pe *protocol.Error
	if errors.As(err, &pe) {
		return pe.Msg, true
	}
	return "", false
}

func roomOf(cmd protocol.Command) string {
	switch c := cmd.(type) {
	case protocol.Join:
		return c.RoomCode
	case protocol.Ready:
		return c.RoomCode
	case protocol.Start:
		return c.RoomCode
	}
	return ""
}

func playerOf(cmd protocol.Command) int {
	id, _ := playerID(cmd)
	return id
}

// verbOf labels a frame that failed to parse, keeping metric cardinality bounded.
func verbOf(raw []byte) string {
	switch v := protocol.Verb(protocol.Split(raw)[0]); v {
	case protocol.VerbCreate, protocol.VerbJoin, protocol.VerbReady,
		protocol.VerbStart, protocol.VerbList, protocol.VerbExit:
		return string(v)
	}
	return "unknown"
}

func rosterEntries(players []lobby.Player) []protocol.RosterEntry {
	out := make([]protocol.RosterEntry, len(players))
	for i, p := range players {
		out[i] = protocol.RosterEntry{ID: p.ID, Nickname: p.Nickname, Ordinal: p.Ordinal, Ready: p.Ready}
	}
	return out
}

func listEntries(list []lobby.Summary) []protocol.ListEntry {
	out := make([]protocol.ListEntry, len(list))
	for i, s := range list {
		out[i] = protocol.ListEntry{Code: s.Code, Name: s.Name, Players: s.Players, MaxPlayers: s.MaxPlayers}
	}
	return out
}
