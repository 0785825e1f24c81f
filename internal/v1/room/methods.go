package room

import (
	"fmt"
	"time"

	"github.com/chess-room-engine/backend/internal/v1/chess"
	"github.com/chess-room-engine/backend/internal/v1/clock"
	"github.com/chess-room-engine/backend/internal/v1/wire"
	"golang.org/x/crypto/bcrypt"
)

// checkPassword reports whether attempt satisfies the room's configured
// password, or true unconditionally if the room has none set.
func (r *Room) checkPassword(attempt string) bool {
	if r.settings.PasswordHash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(r.settings.PasswordHash), []byte(attempt)) == nil
}

// hashPassword produces the stored form of a room password, empty in-empty-out.
func hashPassword(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// admitOpponent seats the second player and starts the game. Caller holds r.mu.
func (r *Room) admitOpponent(id ClientIdType, name DisplayNameType) {
	r.opponentID = id
	r.opponentName = name
	r.state = StateInProgress
	r.startGame()
	r.touch()
}

// startGame initializes the embedded Game from the room's time control.
func (r *Room) startGame() {
	now := time.Now()
	control := r.settings.TimeControl.toClockControl()
	cl := clock.NewClock(control)
	r.game = &Game{
		FEN:        chess.StartingPosition().FEN,
		Turn:       chess.White,
		Status:     GameActive,
		StartedAt:  now.Unix(),
		LastMoveAt: now.Unix(),
		clockState: cl,
		control:    control,
		timed:      control.Enabled,
		lastMoveAt: now,
	}
	if control.Enabled {
		r.game.WhiteTime = ptr(cl.WhiteMs)
		r.game.BlackTime = ptr(cl.BlackMs)
		r.startClockSweep()
	}
}

func ptr[T any](v T) *T { return &v }

// applyMove validates mover identity/turn, charges the clock, and applies the
// move via the chess engine. Caller holds r.mu.
func (r *Room) applyMove(mover ClientIdType, from, to, promotion string) *wire.Error {
	if r.game == nil || r.game.Status != GameActive {
		return wire.NewError(wire.ErrGameNotInProgress, "no active game")
	}

	var moverColor chess.Color
	switch mover {
	case r.hostID:
		moverColor = chess.White
	case r.opponentID:
		moverColor = chess.Black
	default:
		return wire.NewError(wire.ErrNotAPlayer, "not a player in this game")
	}

	if moverColor != r.game.Turn {
		return wire.NewError(wire.ErrNotYourTurn, "it is not your turn")
	}

	result, err := chess.ApplyMove(chess.Position{FEN: r.game.FEN}, from, to, promotion)
	if err != nil {
		switch err {
		case chess.ErrPromotionRequired:
			return wire.NewError(wire.ErrPromotionRequired, err.Error())
		case chess.ErrBadSquare, chess.ErrBadPromotion, chess.ErrPromotionNotApplicable:
			return wire.NewError(wire.ErrValidationFailed, err.Error())
		default:
			return wire.NewError(wire.ErrInvalidMove, err.Error())
		}
	}

	now := time.Now()
	var flagFallen bool
	if r.game.timed {
		white := moverColor == chess.White
		charge := clock.Charge(r.game.clockState, r.game.control, white, r.game.lastMoveAt, now)
		r.game.clockState = charge.Clock
		r.game.WhiteTime = ptr(r.game.clockState.WhiteMs)
		r.game.BlackTime = ptr(r.game.clockState.BlackMs)
		flagFallen = charge.FlagFallen
	}

	// The move was legal and is recorded regardless of what the clock charge
	// above found; only the resulting status differs on flag-fall.
	r.game.FEN = result.Position.FEN
	r.game.Turn = result.Turn
	r.game.LastMoveAt = now.Unix()
	r.game.lastMoveAt = now
	r.game.Moves = append(r.game.Moves, MoveRecord{
		From: from, To: to, SAN: result.SAN, PositionAfter: result.Position.FEN,
		Timestamp: now.Unix(), Promotion: promotion,
	})
	r.drawOfferer = ""

	switch {
	case flagFallen:
		r.endOnTimeout(moverColor)
	case result.IsTermination:
		r.game.Status = statusFromChess(result.Status)
		if r.game.Status == GameCheckmate {
			r.game.Winner = ptr(result.Winner)
		}
		r.state = StateFinished
		r.stopClockSweep()
	}

	return nil
}

func statusFromChess(s chess.Status) GameStatus {
	switch s {
	case chess.StatusCheckmate:
		return GameCheckmate
	case chess.StatusStalemate:
		return GameStalemate
	case chess.StatusDraw:
		return GameDraw
	default:
		return GameActive
	}
}

// endOnTimeout ends the game because the side to move's own clock expired.
func (r *Room) endOnTimeout(flaggedColor chess.Color) {
	winner := flaggedColor.Other()
	r.game.Status = GameTimeout
	r.game.Winner = &winner
	r.drawOfferer = ""
	r.state = StateFinished
	r.stopClockSweep()
	r.touch()
}

// resign ends the game in resigner's opponent's favor. Caller holds r.mu.
func (r *Room) resign(identity ClientIdType) *wire.Error {
	if r.game == nil || r.game.Status != GameActive {
		return wire.NewError(wire.ErrGameNotInProgress, "no active game")
	}
	var winner chess.Color
	switch identity {
	case r.hostID:
		winner = chess.Black
	case r.opponentID:
		winner = chess.White
	default:
		return wire.NewError(wire.ErrNotAPlayer, "not a player in this game")
	}
	r.game.Status = GameResigned
	r.game.Winner = &winner
	r.drawOfferer = ""
	r.state = StateFinished
	r.stopClockSweep()
	r.touch()
	return nil
}

// offerDraw occupies the single-slot draw offer if empty. Caller holds r.mu.
func (r *Room) offerDraw(identity ClientIdType) *wire.Error {
	if r.game == nil || r.game.Status != GameActive {
		return wire.NewError(wire.ErrGameNotInProgress, "no active game")
	}
	if identity != r.hostID && identity != r.opponentID {
		return wire.NewError(wire.ErrNotAPlayer, "not a player in this game")
	}
	r.drawOfferer = identity
	r.touch()
	return nil
}

// acceptDraw ends the game as a draw if the caller is the non-offering player.
func (r *Room) acceptDraw(identity ClientIdType) *wire.Error {
	if r.drawOfferer == "" {
		return wire.NewError(wire.ErrNoDrawOffer, "no draw offer pending")
	}
	if identity == r.drawOfferer {
		return wire.NewError(wire.ErrCannotAcceptOwnDraw, "cannot accept your own draw offer")
	}
	if identity != r.hostID && identity != r.opponentID {
		return wire.NewError(wire.ErrNotAPlayer, "not a player in this game")
	}
	r.game.Status = GameDraw
	r.drawOfferer = ""
	r.state = StateFinished
	r.stopClockSweep()
	r.touch()
	return nil
}

// declineDraw clears the slot if the caller is the non-offering player.
func (r *Room) declineDraw(identity ClientIdType) *wire.Error {
	if r.drawOfferer == "" {
		return wire.NewError(wire.ErrNoDrawOffer, "no draw offer pending")
	}
	if identity == r.drawOfferer {
		return wire.NewError(wire.ErrCannotAcceptOwnDraw, "cannot decline your own draw offer")
	}
	r.drawOfferer = ""
	r.touch()
	return nil
}

// addChat appends a message to the bounded chat history, evicting the oldest
// entry once the cap is reached.
func (r *Room) addChat(info ChatInfo) {
	r.chatHistory.PushBack(info)
	if r.chatHistory.Len() > maxChatHistoryLength {
		r.chatHistory.Remove(r.chatHistory.Front())
	}
}

// applySettingsPatch merges a partial update into the room's settings.
// Caller holds r.mu.
func (r *Room) applySettingsPatch(patch SettingsPatch) {
	if patch.AllowSpectators != nil {
		r.settings.AllowSpectators = *patch.AllowSpectators
	}
	if patch.AllowJoin != nil {
		r.settings.AllowJoin = *patch.AllowJoin
	}
	if patch.IsPrivate != nil {
		r.settings.IsPrivate = *patch.IsPrivate
	}
	if patch.RoomName != nil {
		r.settings.RoomName = *patch.RoomName
	}
	r.touch()
}

// snapshot projects the room's current state. Caller holds r.mu.
func (r *Room) snapshot() Snapshot {
	spectators := make(map[ClientIdType]DisplayNameType, len(r.spectators))
	for id, name := range r.spectators {
		spectators[id] = name
	}
	return Snapshot{
		RoomID:        r.id,
		HostID:        r.hostID,
		HostName:      r.hostName,
		OpponentID:    r.opponentID,
		OpponentName:  r.opponentName,
		Spectators:    spectators,
		State:         r.state,
		CreatedAt:     r.createdAt.Unix(),
		LastActivity:  r.lastActivity.Unix(),
		Game:          r.game,
		Settings:      r.settings,
		DrawOffererID: r.drawOfferer,
	}
}

// listing projects the room for the public catalog. Caller holds r.mu.
func (r *Room) listing() Listing {
	playerCount := 1
	if r.opponentID != "" {
		playerCount = 2
	}
	return Listing{
		RoomID:         r.id,
		RoomName:       r.settings.RoomName,
		HostName:       r.hostName,
		State:          r.state,
		PlayerCount:    playerCount,
		SpectatorCount: len(r.spectators),
		TimeControl:    r.settings.TimeControl,
		CreatedAt:      r.createdAt.Unix(),
		LastActivity:   r.lastActivity.Unix(),
	}
}

// Public reads the room's public-catalog projection under lock, or false if
// the room is private and must not appear in the catalog.
func (r *Room) Public() (Listing, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settings.IsPrivate {
		return Listing{}, false
	}
	return r.listing(), true
}

// Snapshot reads the full room projection under lock, for HTTP room detail.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// IsFinishedIdleSince reports whether a finished room has been idle at least
// since cutoff, for the finished-room GC sweep.
func (r *Room) IsFinishedIdleSince(cutoff time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == StateFinished && r.lastActivity.Before(cutoff)
}

// IsWaitingIdleSince reports whether a still-unmatched room has been idle at
// least since cutoff, for the waiting-room GC sweep.
func (r *Room) IsWaitingIdleSince(cutoff time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == StateWaitingForPlayer && r.lastActivity.Before(cutoff)
}

// IsEmpty reports whether no connections remain attached.
func (r *Room) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients) == 0
}

func nextChatID(roomID RoomIdType, seq int) string {
	return fmt.Sprintf("%s-%d", roomID, seq)
}
