// Package clock implements the Game Clock: a passive time-accounting
// subsystem that is only ever consulted when the mover acts. It does not
// run its own ticker; the room's active sweep (see Sweeper) is what detects
// a flag-fall against a silent player.
package clock

import "time"

// Control is a time control configuration, or the zero value when the game
// has no clock at all.
type Control struct {
	InitialMs   int64
	IncrementMs int64
	Enabled     bool
}

// NewControl builds a Control from initial/increment seconds, clamped to the
// wire schema's bounds (initial 60-3600s, increment 0-60s) by the caller
// before construction; this type just carries the validated values in ms.
func NewControl(initialSeconds, incrementSeconds int64) Control {
	return Control{
		InitialMs:   initialSeconds * 1000,
		IncrementMs: incrementSeconds * 1000,
		Enabled:     true,
	}
}

// Clock tracks remaining time for both sides in milliseconds. A nil/zero
// Clock (Control.Enabled == false) means the game is untimed.
type Clock struct {
	WhiteMs int64
	BlackMs int64
}

// NewClock seeds both sides with the control's initial allotment.
func NewClock(c Control) Clock {
	return Clock{WhiteMs: c.InitialMs, BlackMs: c.InitialMs}
}

// Remaining returns the side's remaining time.
func (c Clock) Remaining(white bool) int64 {
	if white {
		return c.WhiteMs
	}
	return c.BlackMs
}

// ChargeResult is the outcome of charging a mover's clock.
type ChargeResult struct {
	Clock      Clock
	FlagFallen bool // remaining time reached or passed zero at charge time
}

// Charge subtracts the elapsed time since lastMoveAt from the mover's clock,
// then adds the increment. Per the move operation's charge-at-move-time
// rule, a clock that reaches zero during the charge still records the move
// but reports FlagFallen so the caller can mark the game a timeout loss for
// the mover rather than rejecting the move outright.
func Charge(c Clock, control Control, white bool, lastMoveAt, now time.Time) ChargeResult {
	if !control.Enabled {
		return ChargeResult{Clock: c}
	}

	elapsed := now.Sub(lastMoveAt).Milliseconds()
	remaining := c.Remaining(white) - elapsed

	flagFallen := remaining <= 0
	if !flagFallen {
		remaining += control.IncrementMs
	}

	result := c
	if white {
		result.WhiteMs = remaining
	} else {
		result.BlackMs = remaining
	}
	return ChargeResult{Clock: result, FlagFallen: flagFallen}
}

// Expired reports whether the side on move has run out of time as of now,
// without mutating the clock. Used by the active sweep to detect flag-fall
// against a player who has gone silent (§4.5 of the engine's time-control
// contract: required when a time control is configured).
func Expired(c Clock, control Control, white bool, lastMoveAt, now time.Time) bool {
	if !control.Enabled {
		return false
	}
	elapsed := now.Sub(lastMoveAt).Milliseconds()
	return c.Remaining(white)-elapsed <= 0
}
