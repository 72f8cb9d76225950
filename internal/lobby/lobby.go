package lobby

import (
	"errors"
	"slices"
	"time"
)

const MaxPlayers = 4

var ErrInvalidSize = errors.New("lobby size must be at least 1")
var ErrSizeTooLarge = errors.New("lobby size above maximum")
var ErrFull = errors.New("lobby full")
var ErrAlreadyJoined = errors.New("player already in lobby")
var ErrPlayerNotFound = errors.New("player not in lobby")

type Visibility int

const (
	Private Visibility = iota
	Public
)

func (v Visibility) String() string {
	if v == Public {
		return "public"
	}
	return "private"
}

type Player struct {
	ID         int
	Nickname   string
	Ready      bool
	Ordinal    int
	LastUpdate time.Time
}

// Lobby is not safe for concurrent use; the hub owns every instance.
type Lobby struct {
	Code       string
	Name       string
	MaxPlayers int
	Visibility Visibility
	Port       int
	Started    bool

	// StartGen bumps on every successful start so a revert timer armed for an
	// older start can tell it is stale.
	StartGen     int
	ResetPending bool

	players     []*Player
	nextOrdinal int
}

// Summary is the list-view of a lobby.
type Summary struct {
	Code       string
	Name       string
	Players    int
	MaxPlayers int
}

func ValidateSize(n int) error {
	if n < 1 {
		return ErrInvalidSize
	}
	if n > MaxPlayers {
		return ErrSizeTooLarge
	}
	return nil
}

// New builds a lobby with the creator as its first (ordinal 1) player.
func New(code, name string, maxPlayers int, vis Visibility, port int, creator Player, now time.Time) *Lobby {
	l := &Lobby{
		Code:        code,
		Name:        name,
		MaxPlayers:  maxPlayers,
		Visibility:  vis,
		Port:        port,
		nextOrdinal: 1,
	}
	l.add(creator.ID, creator.Nickname, now)
	return l
}

// Join appends a player. New players start ready.
func (l *Lobby) Join(id int, nickname string, now time.Time) (Player, error) {
	if len(l.players) >= l.MaxPlayers {
		return Player{}, ErrFull
	}
	if l.find(id) != nil {
		return Player{}, ErrAlreadyJoined
	}
	return *l.add(id, nickname, now), nil
}

func (l *Lobby) add(id int, nickname string, now time.Time) *Player {
	p := &Player{
		ID:         id,
		Nickname:   nickname,
		Ready:      true,
		Ordinal:    l.nextOrdinal,
		LastUpdate: now,
	}
	l.nextOrdinal++
	l.players = append(l.players, p)
	return p
}

func (l *Lobby) SetReady(id int, ready bool, now time.Time) error {
	p := l.find(id)
	if p == nil {
		return ErrPlayerNotFound
	}
	p.Ready = ready
	p.LastUpdate = now
	return nil
}

// Remove drops the player; remaining ordinals keep their gaps.
func (l *Lobby) Remove(id int) bool {
	i := slices.IndexFunc(l.players, func(p *Player) bool { return p.ID == id })
	if i < 0 {
		return false
	}
	l.players = slices.Delete(l.players, i, i+1)
	return true
}

func (l *Lobby) Has(id int) bool { return l.find(id) != nil }

func (l *Lobby) AllReady() bool {
	for _, p := range l.players {
		if !p.Ready {
			return false
		}
	}
	return true
}

func (l *Lobby) Len() int    { return len(l.players) }
func (l *Lobby) Empty() bool { return len(l.players) == 0 }

// Roster returns a copy in join order.
func (l *Lobby) Roster() []Player {
	out := make([]Player, len(l.players))
	for i, p := range l.players {
		out[i] = *p
	}
	return out
}

func (l *Lobby) IDs() []int {
	ids := make([]int, len(l.players))
	for i, p := range l.players {
		ids[i] = p.ID
	}
	return ids
}

func (l *Lobby) Summary() Summary {
	return Summary{
		Code:       l.Code,
		Name:       l.Name,
		Players:    len(l.players),
		MaxPlayers: l.MaxPlayers,
	}
}

func (l *Lobby) find(id int) *Player {
	for _, p := range l.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}
