// Package stats accumulates benchmark throughput.
package stats

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Snapshot is a point-in-time view of an Accumulator.
type Snapshot struct {
	Hashes     uint64
	Elapsed    time.Duration
	Iterations uint64
	Rate       float64       // hashes per second
	AvgLatency time.Duration // mean compute time of one iteration
}

// Accumulator sums hashes and compute time across iterations. It is safe
// for concurrent use so a monitor may read while the loop writes.
type Accumulator struct {
	mu         sync.Mutex
	hashes     uint64
	elapsed    time.Duration
	iterations uint64
}

// Add records one iteration of n hashes computed in elapsed.
func (a *Accumulator) Add(n int, elapsed time.Duration) {
	if n < 0 {
		n = 0
	}
	if elapsed < 0 {
		elapsed = 0
	}
	a.mu.Lock()
	a.hashes += uint64(n)
	a.elapsed += elapsed
	a.iterations++
	a.mu.Unlock()
}

// Snapshot returns the current totals. Rate stays zero until some time has
// been recorded.
func (a *Accumulator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Snapshot{
		Hashes:     a.hashes,
		Elapsed:    a.elapsed,
		Iterations: a.iterations,
	}
	if secs := a.elapsed.Seconds(); secs > 0 {
		s.Rate = float64(a.hashes) / secs
	}
	if a.iterations > 0 {
		s.AvgLatency = a.elapsed / time.Duration(a.iterations)
	}
	return s
}

// Unit selects how rates are printed.
type Unit string

const (
	UnitAuto Unit = "auto"
	UnitH    Unit = "H/s"
	UnitKH   Unit = "kH/s"
	UnitMH   Unit = "MH/s"
	UnitGH   Unit = "GH/s"
)

var unitScale = map[Unit]float64{
	UnitH:  1,
	UnitKH: 1e3,
	UnitMH: 1e6,
	UnitGH: 1e9,
}

// ParseUnit converts a configuration value to a Unit.
func ParseUnit(s string) (Unit, error) {
	u := Unit(s)
	if u == "" || u == UnitAuto {
		return UnitAuto, nil
	}
	if _, ok := unitScale[u]; ok {
		return u, nil
	}
	return "", fmt.Errorf("unknown rate unit %q (want auto, H/s, kH/s, MH/s or GH/s)", s)
}

// Format renders rate, in hashes per second, as "<value> <unit>".
func (u Unit) Format(rate float64) string {
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		rate = 0
	}
	scale, ok := unitScale[u]
	if !ok {
		return humanize.SIWithDigits(rate, 2, "H/s")
	}
	return fmt.Sprintf("%.2f %s", rate/scale, u)
}
