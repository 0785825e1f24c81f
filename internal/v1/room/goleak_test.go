package room

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies no goroutine started by this package's tests (the clock
// sweep ticker, the Redis subscription relay) outlives the test that started
// it, grounded on the teacher's internal/v1/room/goleak_test.go.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
