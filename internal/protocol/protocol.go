package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/DoyleJ11/lobbyd/internal/lobby"
)

// Delimiter separates fields in requests and responses (ASCII unit separator).
const Delimiter byte = 31

const MaxNameLen = 16

type Verb string

const (
	VerbCreate Verb = "create"
	VerbJoin   Verb = "join"
	VerbReady  Verb = "ready"
	VerbStart  Verb = "start"
	VerbList   Verb = "list"
	VerbExit   Verb = "exit"
)

// Error is a validation failure whose text is sent back to the client verbatim.
type Error struct{ Msg string }

func (e *Error) Error() string { return e.Msg }

func errorf(format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

var ErrUnrecognized = &Error{Msg: "Unrecognized request."}

const (
	msgBadSize     = "Invalid lobby size - not a number."
	msgBadPublic   = "Invalid public setting - please use 0 or 1."
	msgBadPlayerID = "Invalid player id provided - please use an integer."
	msgBadID       = "Invalid ID provided."
	msgBadStatus   = "Invalid status received - please use 0 or 1."
)

type Command interface{ Verb() Verb }

type Create struct {
	Nickname   string
	MaxPlayers int
	Public     bool
	PlayerID   int
	RoomName   string
}

type Join struct {
	Nickname string
	RoomCode string
	PlayerID int
}

type Ready struct {
	RoomCode string
	PlayerID int
	Ready    bool
}

type Start struct{ RoomCode string }

type List struct{}

type Exit struct{ PlayerID int }

func (Create) Verb() Verb { return VerbCreate }
func (Join) Verb() Verb   { return VerbJoin }
func (Ready) Verb() Verb  { return VerbReady }
func (Start) Verb() Verb  { return VerbStart }
func (List) Verb() Verb   { return VerbList }
func (Exit) Verb() Verb   { return VerbExit }

// Split breaks a frame on the delimiter and trims control bytes and spaces
// from both ends of every field.
func Split(raw []byte) []string {
	parts := bytes.Split(raw, []byte{Delimiter})
	fields := make([]string, len(parts))
	for i, p := range parts {
		fields[i] = string(bytes.TrimFunc(p, isControl))
	}
	return fields
}

func isControl(r rune) bool { return r <= 0x20 }

// Parse turns one inbound frame into a typed command.
func Parse(raw []byte) (Command, error) {
	fields := Split(raw)
	args := fields[1:]

	switch Verb(fields[0]) {
	case VerbCreate:
		return parseCreate(args)
	case VerbJoin:
		return parseJoin(args)
	case VerbReady:
		return parseReady(args)
	case VerbStart:
		if len(args) < 1 {
			return nil, errorf("Malformed start request.")
		}
		return Start{RoomCode: args[0]}, nil
	case VerbList:
		return List{}, nil
	case VerbExit:
		if len(args) < 1 {
			return nil, errorf(msgBadID)
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, errorf(msgBadID)
		}
		return Exit{PlayerID: id}, nil
	default:
		return nil, ErrUnrecognized
	}
}

func parseCreate(args []string) (Command, error) {
	if len(args) < 5 {
		return nil, errorf("Malformed create request.")
	}

	nickname, err := name("Nickname", args[0])
	if err != nil {
		return nil, err
	}
	size, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, errorf(msgBadSize)
	}
	switch lobby.ValidateSize(size) {
	case lobby.ErrSizeTooLarge:
		return nil, &Error{Msg: MsgSizeTooLarge()}
	case lobby.ErrInvalidSize:
		return nil, &Error{Msg: MsgInvalidSize}
	}
	public, ok := flag(args[2])
	if !ok {
		return nil, errorf(msgBadPublic)
	}
	id, err := strconv.Atoi(args[3])
	if err != nil {
		return nil, errorf(msgBadPlayerID)
	}
	room, err := name("Room name", args[4])
	if err != nil {
		return nil, err
	}

	return Create{Nickname: nickname, MaxPlayers: size, Public: public, PlayerID: id, RoomName: room}, nil
}

func parseJoin(args []string) (Command, error) {
	if len(args) < 3 {
		return nil, errorf("Malformed join request.")
	}

	nickname, err := name("Nickname", args[0])
	if err != nil {
		return nil, err
	}
	id, err := strconv.Atoi(args[2])
	if err != nil {
		return nil, errorf(msgBadPlayerID)
	}
	return Join{Nickname: nickname, RoomCode: args[1], PlayerID: id}, nil
}

func parseReady(args []string) (Command, error) {
	if len(args) < 3 {
		return nil, errorf("Malformed ready request.")
	}

	id, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, errorf(msgBadID)
	}
	ready, ok := flag(args[2])
	if !ok {
		return nil, errorf(msgBadStatus)
	}
	return Ready{RoomCode: args[0], PlayerID: id, Ready: ready}, nil
}

func flag(s string) (bool, bool) {
	switch s {
	case "0":
		return false, true
	case "1":
		return true, true
	default:
		return false, false
	}
}

// name normalises a nickname or room name. Commas are refused because roster
// and list groups are comma-joined.
func name(label, s string) (string, error) {
	s = norm.NFC.String(s)
	if strings.ContainsAny(s, ","+string(rune(Delimiter))) {
		return "", errorf("%s cannot contain commas.", label)
	}
	if utf8.RuneCountInString(s) > MaxNameLen {
		return "", errorf("%s too long - maximum length is %d.", label, MaxNameLen)
	}
	return s, nil
}

// Messages for failures the dispatcher detects after parsing.
func RoomNotFound(code string) string { return fmt.Sprintf("Room %s not found.", code) }
func RoomFull(code string) string     { return fmt.Sprintf("Room %s full", code) }
func PlayerNotFound(id int, code string) string {
	return fmt.Sprintf("Player with ID %d not found in room %s.", id, code)
}
func NoLobbyFor(id int) string { return fmt.Sprintf("Could not find lobby for %d", id) }

const (
	MsgAlreadyJoined = "Brother you are already in this room"
	MsgNotAllReady   = "Can't start yet! not all players are ready."
	MsgNoPorts       = "No free ports!"
	MsgLaunchFailed  = "Failed to launch game server."
	MsgInvalidSize   = "Invalid lobby size - must be at least 1."
	MsgServerError   = "Server error, please try again."
)

func MsgSizeTooLarge() string {
	return fmt.Sprintf("Requested lobby size is greater than maximum allowed. Maximum lobby size is %d", lobby.MaxPlayers)
}

// IsClientError reports whether err carries a client-facing message.
func IsClientError(err error) bool {
	var pe *Error
	return errors.As(err, &pe)
}

// Fields re-joins a frame for logging; the delimiter is unreadable in logs.
func Fields(raw []byte) string {
	return strings.Join(Split(raw), "|")
}
