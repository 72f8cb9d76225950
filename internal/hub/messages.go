package hub

import (
	"github.com/DoyleJ11/lobbyd/internal/launcher"
	"github.com/DoyleJ11/lobbyd/internal/lobby"
)

type Msg interface{ isHubMsg() }

type Reply[T any] struct {
	Value T
	Err   error
}

type CreateLobby struct {
	Name       string
	Nickname   string
	PlayerID   int
	MaxPlayers int
	Visibility lobby.Visibility
	Reply      chan Reply[Created]
}

type JoinLobby struct {
	Code     string
	Nickname string
	PlayerID int
	Reply    chan Reply[Joined]
}

type SetReady struct {
	Code     string
	PlayerID int
	Ready    bool
	Reply    chan Reply[ReadyState]
}

type StartMatch struct {
	Code  string
	Reply chan Reply[Started]
}

type ExitPlayer struct {
	PlayerID int
	Reply    chan error
}

type ListPublic struct {
	Reply chan []lobby.Summary
}

type GetStats struct {
	Reply chan Stats
}

type ShutdownHub struct {
	Reply chan error
}

type processExited struct {
	proc launcher.Process
	exit launcher.Exit
}

type resetStarted struct {
	lobby *lobby.Lobby
	gen   int
}

type inspect struct {
	fn   func(*Hub)
	done chan struct{}
}

func (CreateLobby) isHubMsg()   {}
func (JoinLobby) isHubMsg()     {}
func (SetReady) isHubMsg()      {}
func (StartMatch) isHubMsg()    {}
func (ExitPlayer) isHubMsg()    {}
func (ListPublic) isHubMsg()    {}
func (GetStats) isHubMsg()      {}
func (ShutdownHub) isHubMsg()   {}
func (processExited) isHubMsg() {}
func (resetStarted) isHubMsg()  {}
func (inspect) isHubMsg()       {}

type Created struct {
	Code       string
	Name       string
	Port       int
	Visibility lobby.Visibility
}

type Joined struct {
	Code   string
	Name   string
	Port   int
	Player lobby.Player
}

// ReadyState is either a roster (Started false) or a start notice.
type ReadyState struct {
	Code    string
	Started bool
	Port    int
	Roster  []lobby.Player
}

type Started struct {
	Code string
	Port int
}

type Stats struct {
	Public      int `json:"public_lobbies"`
	Private     int `json:"private_lobbies"`
	Players     int `json:"players"`
	Running     int `json:"running_matches"`
	PortsLeased int `json:"ports_leased"`
}
