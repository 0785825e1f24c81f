package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCharge_DeductsElapsedAndAddsIncrement(t *testing.T) {
	control := NewControl(60, 2)
	c := NewClock(control)
	start := time.Now()

	result := Charge(c, control, true, start, start.Add(5*time.Second))

	assert.False(t, result.FlagFallen)
	assert.Equal(t, int64(60_000-5_000+2_000), result.Clock.WhiteMs)
	assert.Equal(t, int64(60_000), result.Clock.BlackMs)
}

func TestCharge_FlagFall(t *testing.T) {
	control := NewControl(60, 0)
	c := NewClock(control)
	start := time.Now()

	result := Charge(c, control, false, start, start.Add(90*time.Second))

	assert.True(t, result.FlagFallen)
	assert.LessOrEqual(t, result.Clock.BlackMs, int64(0))
}

func TestCharge_UntimedIsNoop(t *testing.T) {
	control := Control{}
	c := Clock{}

	result := Charge(c, control, true, time.Now(), time.Now().Add(time.Hour))

	assert.False(t, result.FlagFallen)
	assert.Equal(t, Clock{}, result.Clock)
}

func TestExpired(t *testing.T) {
	control := NewControl(60, 0)
	c := NewClock(control)
	start := time.Now()

	assert.False(t, Expired(c, control, true, start, start.Add(59*time.Second)))
	assert.True(t, Expired(c, control, true, start, start.Add(61*time.Second)))
}
