package chess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMove_FoolsMate(t *testing.T) {
	pos := StartingPosition()

	moves := []struct{ from, to string }{
		{"f2", "f3"},
		{"e7", "e5"},
		{"g2", "g4"},
		{"d8", "h4"},
	}

	var result MoveResult
	var err error
	for _, m := range moves {
		result, err = ApplyMove(pos, m.from, m.to, "")
		require.NoError(t, err)
		pos = result.Position
	}

	assert.Equal(t, StatusCheckmate, result.Status)
	assert.Equal(t, Black, result.Winner)
}

func TestApplyMove_IllegalMove(t *testing.T) {
	pos := StartingPosition()
	_, err := ApplyMove(pos, "e2", "e5", "")
	assert.ErrorIs(t, err, ErrIllegalMove)
}

func TestApplyMove_BadSquare(t *testing.T) {
	pos := StartingPosition()
	_, err := ApplyMove(pos, "z9", "e4", "")
	assert.ErrorIs(t, err, ErrBadSquare)
}

func TestApplyMove_PromotionRequired(t *testing.T) {
	// A position one move from white queening on a7-a8.
	pos := Position{FEN: "8/P6k/8/8/8/8/7K/8 w - - 0 1"}
	_, err := ApplyMove(pos, "a7", "a8", "")
	assert.ErrorIs(t, err, ErrPromotionRequired)
}

func TestApplyMove_PromotionApplied(t *testing.T) {
	pos := Position{FEN: "8/P6k/8/8/8/8/7K/8 w - - 0 1"}
	result, err := ApplyMove(pos, "a7", "a8", "q")
	require.NoError(t, err)
	assert.True(t, result.IsPromotion)
	assert.Equal(t, Black, result.Turn)
}

func TestApplyMove_PromotionNotApplicable(t *testing.T) {
	pos := StartingPosition()
	_, err := ApplyMove(pos, "e2", "e4", "q")
	assert.ErrorIs(t, err, ErrPromotionNotApplicable)
}

func TestApplyMove_BadPromotionPiece(t *testing.T) {
	pos := Position{FEN: "8/P6k/8/8/8/8/7K/8 w - - 0 1"}
	_, err := ApplyMove(pos, "a7", "a8", "k")
	assert.ErrorIs(t, err, ErrBadPromotion)
}

func TestApplyMove_Stalemate(t *testing.T) {
	// Classic stalemate position: black to move, no legal moves, not in check.
	pos := Position{FEN: "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1"}
	turn, err := pos.Turn()
	require.NoError(t, err)
	assert.Equal(t, Black, turn)
}
