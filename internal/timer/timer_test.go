package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestElapsedMs(t *testing.T) {
	base := time.Unix(1700000000, 0)

	t.Run("Microsecond resolution", func(t *testing.T) {
		end := base.Add(1500 * time.Microsecond)
		assert.Equal(t, 1.5, ElapsedMs(base, end))
	})

	t.Run("Truncates nanoseconds", func(t *testing.T) {
		end := base.Add(2*time.Millisecond + 999*time.Nanosecond)
		assert.Equal(t, 2.0, ElapsedMs(base, end))
	})

	t.Run("Zero", func(t *testing.T) {
		assert.Equal(t, 0.0, ElapsedMs(base, base))
	})
}

func TestElapsedMs_Sleep(t *testing.T) {
	start := Now()
	time.Sleep(10 * time.Millisecond)
	end := Now()

	got := ElapsedMs(start, end)
	assert.GreaterOrEqual(t, got, 10.0)
	// Generous upper bound for loaded CI machines
	assert.Less(t, got, 250.0)
}

func TestSince_NonNegative(t *testing.T) {
	start := Now()
	assert.GreaterOrEqual(t, Since(start), 0.0)
}
