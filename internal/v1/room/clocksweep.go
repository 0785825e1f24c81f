package room

import (
	"context"
	"time"

	"github.com/chess-room-engine/backend/internal/v1/chess"
	"github.com/chess-room-engine/backend/internal/v1/clock"
	"github.com/chess-room-engine/backend/internal/v1/logging"
	"github.com/chess-room-engine/backend/internal/v1/metrics"
	"github.com/chess-room-engine/backend/internal/v1/wire"
	"go.uber.org/zap"
)

const clockSweepPeriod = 1 * time.Second

// startClockSweep runs for the lifetime of a timed game, detecting flag-fall
// against a player who has gone silent rather than waiting for the other
// side's next move to charge the clock. Untimed games never start one.
// Caller holds r.mu (called from startGame).
func (r *Room) startClockSweep() {
	r.clockSweepStop = make(chan struct{})
	go r.runClockSweep(r.clockSweepStop)
}

func (r *Room) runClockSweep(stop chan struct{}) {
	ticker := time.NewTicker(clockSweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if r.tickClockSweep() {
				return
			}
		}
	}
}

// tickClockSweep checks the moving side's clock and ends the game on
// flag-fall. Returns true once the game is no longer active, so the sweep
// goroutine can exit instead of ticking forever against a finished room.
func (r *Room) tickClockSweep() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.game == nil || r.game.Status != GameActive {
		return true
	}
	if !r.game.timed {
		return true
	}

	white := r.game.Turn == chess.White
	if !clock.Expired(r.game.clockState, r.game.control, white, r.game.lastMoveAt, time.Now()) {
		return false
	}

	r.endOnTimeout(r.game.Turn)
	metrics.ActiveGames.Dec()
	r.broadcast(wire.EventGameEnded, r.snapshot().Game, nil)
	r.broadcast(wire.EventRoomUpdated, r.snapshot(), nil)
	r.notifyCatalog()
	logging.Info(context.Background(), "active clock sweep ended game on flag-fall", zap.String("roomId", string(r.id)))
	return true
}

// stopClockSweep signals the sweep goroutine to exit, if one was started.
// Caller holds r.mu.
func (r *Room) stopClockSweep() {
	if r.clockSweepStop != nil {
		close(r.clockSweepStop)
		r.clockSweepStop = nil
	}
}
