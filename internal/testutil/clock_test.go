package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notestream/internal/domain"
)

var _ domain.Clock = (*Clock)(nil)

func TestClock_StartsAtUTC(t *testing.T) {
	loc := time.FixedZone("plus2", 2*60*60)
	clock := NewClock(time.Date(2026, 1, 1, 12, 0, 0, 0, loc))

	assert.Equal(t, time.UTC, clock.Now().Location())
	assert.Equal(t, 10, clock.Now().Hour())
}

func TestClock_Advance(t *testing.T) {
	start := MustTime("2026-01-01T00:00:00Z")
	clock := NewClock(start)

	assert.Equal(t, start.Add(time.Minute), clock.Advance(time.Minute))
	assert.Equal(t, start.Add(time.Minute), clock.Now())

	// Backwards is ignored
	assert.Equal(t, start.Add(time.Minute), clock.Advance(-time.Hour))
}

func TestClock_Set(t *testing.T) {
	clock := NewClock(MustTime("2026-01-01T00:00:00Z"))

	require.True(t, clock.Set(MustTime("2026-02-01T00:00:00Z")))
	assert.Equal(t, MustTime("2026-02-01T00:00:00Z"), clock.Now())

	assert.False(t, clock.Set(MustTime("2025-12-31T00:00:00Z")))
	assert.Equal(t, MustTime("2026-02-01T00:00:00Z"), clock.Now())
}

func TestClock_ThreadSafe(t *testing.T) {
	start := MustTime("2026-01-01T00:00:00Z")
	clock := NewClock(start)
	const numGoroutines = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for range numGoroutines {
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
			_ = clock.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, start.Add(numGoroutines*time.Second), clock.Now())
}

func TestMustTime_Panics(t *testing.T) {
	assert.Panics(t, func() { MustTime("yesterday") })
}
