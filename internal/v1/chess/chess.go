// Package chess wraps a FIDE-compliant rules engine behind a narrow surface:
// validate and apply a move against a position, report terminal conditions,
// report side-to-move, and serialize position. Nothing upstream of this
// package reaches into github.com/notnil/chess directly.
package chess

import (
	"errors"
	"fmt"
	"regexp"

	engine "github.com/notnil/chess"
)

// Color mirrors the two sides of a chess game.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

// Status is the terminal (or non-terminal) condition of a game, independent
// of how it got there (timeout/resignation/abandonment are recorded by the
// caller, not by this package, since the rules engine has no notion of them).
type Status string

const (
	StatusActive    Status = "active"
	StatusCheckmate Status = "checkmate"
	StatusStalemate Status = "stalemate"
	StatusDraw      Status = "draw"
)

var promotionPieces = map[string]engine.PieceType{
	"q": engine.Queen,
	"r": engine.Rook,
	"b": engine.Bishop,
	"n": engine.Knight,
}

var squareRe = regexp.MustCompile(`^[a-h][1-8]$`)

var (
	// ErrBadSquare is returned when from/to are not valid algebraic squares.
	ErrBadSquare = errors.New("chess: malformed square")
	// ErrBadPromotion is returned when a promotion piece is not one of q/r/b/n.
	ErrBadPromotion = errors.New("chess: malformed promotion piece")
	// ErrIllegalMove is returned when the move is not legal in the current position.
	ErrIllegalMove = errors.New("chess: illegal move")
	// ErrPromotionRequired is returned when a pawn reaches the last rank without
	// a promotion piece being supplied.
	ErrPromotionRequired = errors.New("chess: promotion piece required")
	// ErrPromotionNotApplicable is returned when a promotion piece is supplied
	// for a move that isn't a promotion.
	ErrPromotionNotApplicable = errors.New("chess: promotion not applicable to this move")
)

// Position holds a chess position serialized as FEN, the minimum needed to
// resume rules evaluation (piece placement, side to move, castling rights,
// en-passant target, halfmove clock, fullmove number).
type Position struct {
	FEN string
}

// StartingPosition returns the standard initial position.
func StartingPosition() Position {
	return Position{FEN: engine.StartingPosition().String()}
}

// Turn reports which side is to move in this position.
func (p Position) Turn() (Color, error) {
	g, err := newEngineGame(p)
	if err != nil {
		return "", err
	}
	return colorOf(g.Position().Turn()), nil
}

// MoveResult describes the outcome of applying a single move.
type MoveResult struct {
	Position      Position
	SAN           string
	Turn          Color // side to move after the move
	Status        Status
	Winner        Color // zero value "" means no winner (draw, or non-terminal)
	IsPromotion   bool
	IsCheck       bool
	IsTermination bool
}

// ApplyMove validates `from`-`to`[=`promotion`] against the supplied position
// and, if legal, returns the resulting position and a description of the
// move. It never mutates its input; callers hold the previous Position
// immutably in their own records.
func ApplyMove(pos Position, from, to, promotion string) (MoveResult, error) {
	if !squareRe.MatchString(from) || !squareRe.MatchString(to) {
		return MoveResult{}, ErrBadSquare
	}

	g, err := newEngineGame(pos)
	if err != nil {
		return MoveResult{}, err
	}

	target, promoErr := resolveMove(g, from, to, promotion)
	if promoErr != nil {
		return MoveResult{}, promoErr
	}

	if err := g.Move(target); err != nil {
		return MoveResult{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}

	status, winner := outcomeToStatus(g.Outcome(), g.Method())
	moves := g.Moves()
	san := ""
	if len(moves) > 0 {
		san = engine.AlgebraicNotation{}.Encode(g.Position(), moves[len(moves)-1])
	}

	return MoveResult{
		Position:      Position{FEN: g.Position().String()},
		SAN:           san,
		Turn:          colorOf(g.Position().Turn()),
		Status:        status,
		Winner:        winner,
		IsPromotion:   target.Promo() != engine.NoPieceType,
		IsCheck:       g.Position().Status() == engine.Check,
		IsTermination: status != StatusActive,
	}, nil
}

// resolveMove decodes a from/to/promotion triple into a legal *engine.Move,
// enforcing that promotion is supplied exactly when required.
func resolveMove(g *engine.Game, from, to, promotion string) (*engine.Move, error) {
	valid := g.ValidMoves()
	var candidates []*engine.Move
	for _, m := range valid {
		if m.S1().String() == from && m.S2().String() == to {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrIllegalMove
	}

	isPromotionMove := len(candidates) > 1 || candidates[0].Promo() != engine.NoPieceType

	if !isPromotionMove {
		if promotion != "" {
			return nil, ErrPromotionNotApplicable
		}
		return candidates[0], nil
	}

	if promotion == "" {
		return nil, ErrPromotionRequired
	}
	piece, ok := promotionPieces[promotion]
	if !ok {
		return nil, ErrBadPromotion
	}
	for _, m := range candidates {
		if m.Promo() == piece {
			return m, nil
		}
	}
	return nil, ErrIllegalMove
}

func newEngineGame(pos Position) (*engine.Game, error) {
	fenFn, err := engine.FEN(pos.FEN)
	if err != nil {
		return nil, fmt.Errorf("chess: invalid stored position: %w", err)
	}
	return engine.NewGame(fenFn), nil
}

func colorOf(c engine.Color) Color {
	if c == engine.White {
		return White
	}
	return Black
}

// outcomeToStatus maps the engine's outcome/method pair onto our closed
// Status enum plus a winner, leaving every non-rules-driven ending (timeout,
// resignation, abandonment) to the caller.
func outcomeToStatus(outcome engine.Outcome, method engine.Method) (Status, Color) {
	switch outcome {
	case engine.WhiteWon:
		return StatusCheckmate, White
	case engine.BlackWon:
		return StatusCheckmate, Black
	case engine.Draw:
		switch method {
		case engine.Stalemate:
			return StatusStalemate, ""
		default:
			return StatusDraw, ""
		}
	default:
		return StatusActive, ""
	}
}
