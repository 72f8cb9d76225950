// Package hub owns every live lobby. All state lives in one goroutine fed by
// an inbox channel, so each request runs to completion before the next one
// starts and none of the maps need a lock.
package hub

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lobbyd/internal/history"
	"github.com/DoyleJ11/lobbyd/internal/launcher"
	"github.com/DoyleJ11/lobbyd/internal/lobby"
	"github.com/DoyleJ11/lobbyd/internal/metrics"
	"github.com/DoyleJ11/lobbyd/internal/ports"
	"github.com/DoyleJ11/lobbyd/internal/roomcode"
)

const DefaultResetDelay = time.Second

var ErrRoomNotFound = errors.New("room not found")
var ErrNoLobby = errors.New("player not in any lobby")
var ErrNotAllReady = errors.New("not all players ready")
var ErrStopped = errors.New("hub stopped")

// Enqueuer takes started matches for the history log without blocking.
type Enqueuer interface {
	Enqueue(history.Match)
}

type Config struct {
	Pool              *ports.Pool
	Launcher          launcher.Launcher
	StartedResetDelay time.Duration
	Metrics           *metrics.Metrics
	History           Enqueuer
	Log               *zap.Logger
}

type Hub struct {
	inbox chan Msg
	done  chan struct{}
	ctx   context.Context
	// cancel ends the loop and drops pending exit/timer posts.
	cancel context.CancelFunc

	public  map[string]*lobby.Lobby
	private map[string]*lobby.Lobby
	players map[int]*lobby.Lobby
	byPort  map[int]*lobby.Lobby
	running map[int]launcher.Process

	pool       *ports.Pool
	launcher   launcher.Launcher
	resetDelay time.Duration
	metrics    *metrics.Metrics
	history    Enqueuer
	log        *zap.Logger

	newCode func(taken func(string) bool) (string, error)
	now     func() time.Time
}

func New(parent context.Context, cfg Config) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if cfg.StartedResetDelay <= 0 {
		cfg.StartedResetDelay = DefaultResetDelay
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}

	h := &Hub{
		inbox:      make(chan Msg, 64),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		public:     make(map[string]*lobby.Lobby),
		private:    make(map[string]*lobby.Lobby),
		players:    make(map[int]*lobby.Lobby),
		byPort:     make(map[int]*lobby.Lobby),
		running:    make(map[int]launcher.Process),
		pool:       cfg.Pool,
		launcher:   cfg.Launcher,
		resetDelay: cfg.StartedResetDelay,
		metrics:    cfg.Metrics,
		history:    cfg.History,
		log:        cfg.Log.Named("hub"),
		newCode:    roomcode.GenerateUnique,
		now:        time.Now,
	}
	go h.loop()
	return h
}

// Inbox exposes the raw message channel. Reply channels must be buffered.
func (h *Hub) Inbox() chan<- Msg { return h.inbox }

// Done is closed once the loop has exited.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			if err := h.stopMatches(); err != nil {
				h.log.Warn("stopping game servers", zap.Error(err))
			}
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				v, err := h.create(msg)
				msg.Reply <- Reply[Created]{Value: v, Err: err}

			case JoinLobby:
				v, err := h.join(msg)
				msg.Reply <- Reply[Joined]{Value: v, Err: err}

			case SetReady:
				v, err := h.setReady(msg)
				msg.Reply <- Reply[ReadyState]{Value: v, Err: err}

			case StartMatch:
				v, err := h.start(msg)
				msg.Reply <- Reply[Started]{Value: v, Err: err}

			case ExitPlayer:
				msg.Reply <- h.exit(msg.PlayerID)

			case ListPublic:
				msg.Reply <- slices.SortedFunc(h.publicLobbies(), func(a, b lobby.Summary) int {
					return strings.Compare(a.Code, b.Code)
				})

			case GetStats:
				msg.Reply <- h.stats()

			case processExited:
				h.processExited(msg)

			case resetStarted:
				h.resetStarted(msg)

			case inspect:
				// test-only: read internal state without data races
				msg.fn(h)
				close(msg.done)

			case ShutdownHub:
				msg.Reply <- h.stopMatches()
				h.cancel()
				return
			}
			h.observe()
		}
	}
}

func (h *Hub) create(m CreateLobby) (Created, error) {
	if err := lobby.ValidateSize(m.MaxPlayers); err != nil {
		return Created{}, err
	}

	port, err := h.pool.Acquire()
	if err != nil {
		h.log.Warn("create rejected, port pool exhausted", zap.Int("player", m.PlayerID))
		return Created{}, err
	}

	code, err := h.newCode(h.codeTaken)
	if err != nil {
		h.pool.Release(port)
		return Created{}, fmt.Errorf("generate room code: %w", err)
	}

	if prior := h.players[m.PlayerID]; prior != nil {
		h.removeFrom(prior, m.PlayerID)
	}

	l := lobby.New(code, m.Name, m.MaxPlayers, m.Visibility, port,
		lobby.Player{ID: m.PlayerID, Nickname: m.Nickname}, h.now())
	h.partition(m.Visibility)[code] = l
	h.players[m.PlayerID] = l
	h.byPort[port] = l

	h.log.Info("lobby created",
		zap.String("room", code),
		zap.String("name", m.Name),
		zap.Int("port", port),
		zap.Int("max_players", m.MaxPlayers),
		zap.Stringer("visibility", m.Visibility),
		zap.Int("host", m.PlayerID))

	return Created{Code: code, Name: m.Name, Port: port, Visibility: m.Visibility}, nil
}

func (h *Hub) join(m JoinLobby) (Joined, error) {
	l := h.lookup(m.Code)
	if l == nil {
		return Joined{}, ErrRoomNotFound
	}

	prior := h.players[m.PlayerID]
	p, err := l.Join(m.PlayerID, m.Nickname, h.now())
	if err != nil {
		return Joined{}, err
	}
	if prior != nil {
		h.removeFrom(prior, m.PlayerID)
	}
	h.players[m.PlayerID] = l

	h.log.Info("player joined",
		zap.String("room", l.Code),
		zap.Int("player", p.ID),
		zap.Int("ordinal", p.Ordinal))

	return Joined{Code: l.Code, Name: l.Name, Port: l.Port, Player: p}, nil
}

func (h *Hub) setReady(m SetReady) (ReadyState, error) {
	l := h.lookup(m.Code)
	if l == nil {
		return ReadyState{}, ErrRoomNotFound
	}
	if !l.Has(m.PlayerID) {
		return ReadyState{}, lobby.ErrPlayerNotFound
	}

	// Once started, readiness is frozen and pollers are told the match is on.
	// The first such poll arms the revert back to pre-match semantics.
	if l.Started {
		if !l.ResetPending {
			l.ResetPending = true
			h.armReset(l)
		}
		return ReadyState{Code: l.Code, Started: true, Port: l.Port}, nil
	}

	if err := l.SetReady(m.PlayerID, m.Ready, h.now()); err != nil {
		return ReadyState{}, err
	}
	return ReadyState{Code: l.Code, Port: l.Port, Roster: l.Roster()}, nil
}

func (h *Hub) start(m StartMatch) (Started, error) {
	l := h.lookup(m.Code)
	if l == nil {
		return Started{}, ErrRoomNotFound
	}
	if !l.AllReady() {
		return Started{}, ErrNotAllReady
	}

	if !h.pool.Leased(l.Port) {
		if err := h.pool.Claim(l.Port); err != nil {
			return Started{}, fmt.Errorf("reclaim port for %s: %w", l.Code, err)
		}
	}

	if _, live := h.running[l.Port]; !live {
		proc, err := h.launcher.Launch(h.ctx, l.Port, l.MaxPlayers)
		if err != nil {
			h.log.Error("game server launch failed", zap.String("room", l.Code), zap.Int("port", l.Port), zap.Error(err))
			return Started{}, err
		}
		h.running[l.Port] = proc
		go h.watch(proc)
	}

	l.Started = true
	l.StartGen++
	l.ResetPending = false

	h.metrics.MatchStarted()
	if h.history != nil {
		h.history.Enqueue(history.Match{
			RoomCode:  l.Code,
			RoomName:  l.Name,
			Port:      l.Port,
			Players:   l.Len(),
			Public:    l.Visibility == lobby.Public,
			StartedAt: h.now(),
		})
	}

	h.log.Info("match starting", zap.String("room", l.Code), zap.Int("port", l.Port), zap.Int("players", l.Len()))
	return Started{Code: l.Code, Port: l.Port}, nil
}

func (h *Hub) exit(id int) error {
	l := h.players[id]
	if l == nil {
		return ErrNoLobby
	}
	h.removeFrom(l, id)
	delete(h.players, id)
	h.log.Info("player left", zap.String("room", l.Code), zap.Int("player", id))
	return nil
}

// removeFrom takes id out of l and deletes l if that emptied it. The caller
// owns the player index entry.
func (h *Hub) removeFrom(l *lobby.Lobby, id int) {
	l.Remove(id)
	if !l.Empty() {
		return
	}

	delete(h.partition(l.Visibility), l.Code)
	delete(h.byPort, l.Port)
	if _, live := h.running[l.Port]; !live {
		h.pool.Release(l.Port)
	}
	h.log.Info("lobby closed", zap.String("room", l.Code), zap.Int("port", l.Port))
}

func (h *Hub) watch(p launcher.Process) {
	exit, ok := <-p.Done()
	if !ok {
		return
	}
	h.post(processExited{proc: p, exit: exit})
}

func (h *Hub) processExited(m processExited) {
	port := m.exit.Port
	if h.running[port] != m.proc {
		return
	}
	delete(h.running, port)
	h.metrics.ProcessExit(m.exit.Code)

	if _, held := h.byPort[port]; !held {
		h.pool.Release(port)
	}
	h.log.Info("port reclaimed from game server", zap.Int("port", port), zap.Int("code", m.exit.Code))
}

func (h *Hub) armReset(l *lobby.Lobby) {
	msg := resetStarted{lobby: l, gen: l.StartGen}
	time.AfterFunc(h.resetDelay, func() { h.post(msg) })
}

func (h *Hub) resetStarted(m resetStarted) {
	l := h.lookup(m.lobby.Code)
	if l != m.lobby || l.StartGen != m.gen {
		return
	}
	l.Started = false
	l.ResetPending = false
	h.log.Debug("start flag cleared", zap.String("room", l.Code))
}

// post delivers a message from a helper goroutine unless the hub is gone.
func (h *Hub) post(m Msg) {
	select {
	case h.inbox <- m:
	case <-h.ctx.Done():
	}
}

func (h *Hub) lookup(code string) *lobby.Lobby {
	if len(code) != roomcode.Length {
		return nil
	}
	if l, ok := h.public[code]; ok {
		return l
	}
	return h.private[code]
}

func (h *Hub) codeTaken(code string) bool {
	_, pub := h.public[code]
	_, priv := h.private[code]
	return pub || priv
}

func (h *Hub) partition(v lobby.Visibility) map[string]*lobby.Lobby {
	if v == lobby.Public {
		return h.public
	}
	return h.private
}

func (h *Hub) publicLobbies() iter.Seq[lobby.Summary] {
	return func(yield func(lobby.Summary) bool) {
		for _, l := range h.public {
			if !yield(l.Summary()) {
				return
			}
		}
	}
}

func (h *Hub) stats() Stats {
	return Stats{
		Public:      len(h.public),
		Private:     len(h.private),
		Players:     len(h.players),
		Running:     len(h.running),
		PortsLeased: h.pool.InUse(),
	}
}

func (h *Hub) observe() {
	h.metrics.Snapshot(len(h.public), len(h.private), len(h.players), h.pool.InUse())
}

func (h *Hub) stopMatches() error {
	var err error
	for port, p := range h.running {
		err = multierr.Append(err, p.Stop())
		delete(h.running, port)
		if _, held := h.byPort[port]; !held {
			h.pool.Release(port)
		}
	}
	return err
}
