package protocol

import (
	"strconv"
	"strings"
)

// Response tags.
const (
	TagRoomCreated  = "rc"
	TagJoinedRoom   = "jr"
	TagGameStarting = "gs"
	TagRoster       = "rd"
	TagLobbyList    = "ll"
)

type RosterEntry struct {
	ID       int
	Nickname string
	Ordinal  int
	Ready    bool
}

type ListEntry struct {
	Code       string
	Name       string
	Players    int
	MaxPlayers int
}

// Frame joins a tag and its payload fields with the delimiter.
func Frame(tag string, fields ...string) []byte {
	var b strings.Builder
	b.WriteString(tag)
	for _, f := range fields {
		b.WriteByte(Delimiter)
		b.WriteString(f)
	}
	return []byte(b.String())
}

func RoomCreated(code string) []byte { return Frame(TagRoomCreated, code) }

func JoinedRoom(port int, roomName string) []byte {
	return Frame(TagJoinedRoom, strconv.Itoa(port), roomName)
}

func GameStarting(port int) []byte { return Frame(TagGameStarting, strconv.Itoa(port)) }

// Roster writes one comma-joined (id, nickname, ordinal, ready) group per player.
func Roster(players []RosterEntry) []byte {
	groups := make([]string, len(players))
	for i, p := range players {
		groups[i] = strings.Join([]string{
			strconv.Itoa(p.ID),
			p.Nickname,
			strconv.Itoa(p.Ordinal),
			strconv.FormatBool(p.Ready),
		}, ",")
	}
	return Frame(TagRoster, groups...)
}

func LobbyList(lobbies []ListEntry) []byte {
	groups := make([]string, len(lobbies))
	for i, l := range lobbies {
		groups[i] = strings.Join([]string{
			l.Code,
			l.Name,
			strconv.Itoa(l.Players),
			strconv.Itoa(l.MaxPlayers),
		}, ",")
	}
	return Frame(TagLobbyList, groups...)
}
