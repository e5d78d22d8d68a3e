package stats

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorZeroRate(t *testing.T) {
	var a Accumulator
	s := a.Snapshot()
	assert.Zero(t, s.Rate)
	assert.Zero(t, s.AvgLatency)

	a.Add(100, 0)
	s = a.Snapshot()
	assert.Equal(t, uint64(100), s.Hashes)
	assert.Zero(t, s.Rate)
}

func TestAccumulatorMonotonic(t *testing.T) {
	var a Accumulator
	var prev Snapshot
	for i := 1; i <= 50; i++ {
		a.Add(32768, time.Duration(i)*time.Microsecond)
		s := a.Snapshot()
		assert.Greater(t, s.Hashes, prev.Hashes)
		assert.Greater(t, s.Elapsed, prev.Elapsed)
		assert.Equal(t, uint64(i), s.Iterations)
		assert.Greater(t, s.Rate, 0.0)
		assert.False(t, math.IsInf(s.Rate, 0) || math.IsNaN(s.Rate))
		prev = s
	}
}

func TestAccumulatorRateAndLatency(t *testing.T) {
	var a Accumulator
	a.Add(1000, 500*time.Millisecond)
	a.Add(1000, 1500*time.Millisecond)

	s := a.Snapshot()
	assert.InDelta(t, 1000.0, s.Rate, 1e-9)
	assert.Equal(t, time.Second, s.AvgLatency)

	a.Add(0, 0)
	next := a.Snapshot()
	assert.Equal(t, s.Hashes, next.Hashes)
	assert.Equal(t, s.Elapsed, next.Elapsed)
	assert.Equal(t, s.Iterations+1, next.Iterations)
}

func TestAccumulatorConcurrent(t *testing.T) {
	var a Accumulator
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				a.Add(10, time.Millisecond)
				_ = a.Snapshot()
			}
		}()
	}
	wg.Wait()
	s := a.Snapshot()
	assert.Equal(t, uint64(8000), s.Hashes)
	assert.Equal(t, uint64(800), s.Iterations)
}

func TestParseUnit(t *testing.T) {
	for _, s := range []string{"", "auto", "H/s", "kH/s", "MH/s", "GH/s"} {
		_, err := ParseUnit(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseUnit("TH/s")
	assert.Error(t, err)
}

func TestUnitFormat(t *testing.T) {
	assert.Equal(t, "1.50 MH/s", UnitMH.Format(1.5e6))
	assert.Equal(t, "1500.00 kH/s", UnitKH.Format(1.5e6))
	assert.Equal(t, "0.00 GH/s", UnitGH.Format(0))

	u, err := ParseUnit("auto")
	require.NoError(t, err)
	assert.Equal(t, "1.5 MH/s", u.Format(1.5e6))
	assert.Equal(t, "12.34 kH/s", u.Format(12345))
	assert.Equal(t, "0 H/s", u.Format(math.Inf(1)))
}
