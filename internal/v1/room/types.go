// Package room implements the Room Store and Room State Machine: the
// authoritative per-room critical section that owns room/game lifecycle,
// admission, move validation, draw negotiation, and disconnect handling,
// and fans out ordered events to subscribed connections (the Event Bus).
package room

import (
	"time"

	"github.com/chess-room-engine/backend/internal/v1/chess"
	"github.com/chess-room-engine/backend/internal/v1/clock"
	"github.com/chess-room-engine/backend/internal/v1/registry"
)

// ClientIdType is the stable identity string bound to a connection (see
// internal/v1/identity). RoomIdType is the short, collision-resistant room
// token. DisplayNameType is the human-readable name shown to other
// participants.
type ClientIdType string
type RoomIdType string
type DisplayNameType string

// RoleType mirrors registry.Role for the purposes of router permission
// checks; kept as a distinct string alias so the room package does not leak
// its own dependency on the registry package's concrete type into wire
// payloads.
type RoleType string

const (
	RoleTypeHost      RoleType = "host"
	RoleTypeOpponent  RoleType = "opponent"
	RoleTypeSpectator RoleType = "spectator"
)

func toRegistryRole(r RoleType) registry.Role {
	switch r {
	case RoleTypeHost:
		return registry.RoleHost
	case RoleTypeOpponent:
		return registry.RoleOpponent
	default:
		return registry.RoleSpectator
	}
}

// RoomState is the closed set of room lifecycle states. Monotonic except via
// deletion; Finished is terminal.
type RoomState string

const (
	StateWaitingForPlayer RoomState = "waiting_for_player"
	StateInProgress       RoomState = "in_progress"
	StateFinished         RoomState = "finished"
)

// GameStatus is the closed set of game outcomes. Only Active permits moves.
type GameStatus string

const (
	GameActive    GameStatus = "active"
	GameCheckmate GameStatus = "checkmate"
	GameStalemate GameStatus = "stalemate"
	GameDraw      GameStatus = "draw"
	GameResigned  GameStatus = "resigned"
	GameTimeout   GameStatus = "timeout"
	GameAbandoned GameStatus = "abandoned"
)

// TimeControl is the room's configured clock, or nil for untimed games.
type TimeControl struct {
	InitialSeconds   int `json:"initial"`
	IncrementSeconds int `json:"increment"`
}

func (t *TimeControl) toClockControl() clock.Control {
	if t == nil {
		return clock.Control{}
	}
	return clock.NewControl(int64(t.InitialSeconds), int64(t.IncrementSeconds))
}

// Settings is the configurable subset of room behavior.
type Settings struct {
	TimeControl     *TimeControl `json:"timeControl,omitempty"`
	AllowSpectators bool         `json:"allowSpectators"`
	AllowJoin       bool         `json:"allowJoin"`
	IsPrivate       bool         `json:"isPrivate"`
	RoomName        string       `json:"roomName,omitempty"`
	IsLocked        bool         `json:"isLocked"`
	PasswordHash    string       `json:"-"`
}

// SettingsPatch is the partial-update payload for updateSettings; nil
// pointers mean "leave unchanged".
type SettingsPatch struct {
	AllowSpectators *bool   `json:"allowSpectators,omitempty"`
	AllowJoin       *bool   `json:"allowJoin,omitempty"`
	IsPrivate       *bool   `json:"isPrivate,omitempty"`
	RoomName        *string `json:"roomName,omitempty"`
}

// MoveRecord is one accepted move in a game's history.
type MoveRecord struct {
	From          string `json:"from"`
	To            string `json:"to"`
	SAN           string `json:"san"`
	PositionAfter string `json:"positionAfter"`
	Timestamp     int64  `json:"timestamp"`
	Promotion     string `json:"promotion,omitempty"`
}

// Game is the embedded chess game of an in-progress or finished room.
type Game struct {
	FEN        string       `json:"position"`
	Turn       chess.Color  `json:"turn"`
	Moves      []MoveRecord `json:"moves"`
	Status     GameStatus   `json:"status"`
	Winner     *chess.Color `json:"winner"`
	WhiteTime  *int64       `json:"whiteTime"`
	BlackTime  *int64       `json:"blackTime"`
	LastMoveAt int64        `json:"lastMoveAt"`
	StartedAt  int64        `json:"startedAt"`

	clockState clock.Clock
	control    clock.Control
	timed      bool
	lastMoveAt time.Time
}

// ChatInfo is a single chat message, public or private.
type ChatInfo struct {
	ChatID     string          `json:"chatId"`
	SenderID   ClientIdType    `json:"senderId"`
	SenderName DisplayNameType `json:"senderName"`
	Content    string          `json:"content"`
	ChatType   string          `json:"chatType"`
	Timestamp  int64           `json:"timestamp"`
}

// Snapshot is the serializable room projection sent as room:updated /
// room:sync payloads and returned from join/spectate/restoreSession.
type Snapshot struct {
	RoomID        RoomIdType                         `json:"roomId"`
	HostID        ClientIdType                       `json:"hostId"`
	HostName      DisplayNameType                    `json:"hostName"`
	OpponentID    ClientIdType                       `json:"opponentId,omitempty"`
	OpponentName  DisplayNameType                     `json:"opponentName,omitempty"`
	Spectators    map[ClientIdType]DisplayNameType   `json:"spectators"`
	State         RoomState                          `json:"state"`
	CreatedAt     int64                              `json:"createdAt"`
	LastActivity  int64                              `json:"lastActivity"`
	Game          *Game                              `json:"game"`
	Settings      Settings                           `json:"settings"`
	DrawOffererID ClientIdType                       `json:"drawOffererId,omitempty"`
}

// Listing is the Public Catalog projection of a single room: never exposes
// passwords or spectator identities.
type Listing struct {
	RoomID         RoomIdType      `json:"roomId"`
	RoomName       string          `json:"roomName,omitempty"`
	HostName       DisplayNameType `json:"hostName"`
	State          RoomState       `json:"state"`
	PlayerCount    int             `json:"playerCount"`
	SpectatorCount int             `json:"spectatorCount"`
	TimeControl    *TimeControl    `json:"timeControl,omitempty"`
	CreatedAt      int64           `json:"createdAt"`
	LastActivity   int64           `json:"lastActivity"`
}
