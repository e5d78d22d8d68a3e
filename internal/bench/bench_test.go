package bench

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stormycloud/shabench/internal/backend"
	"github.com/stormycloud/shabench/internal/batch"
	"github.com/stormycloud/shabench/internal/cpu"
	"github.com/stormycloud/shabench/internal/gpu"
	"github.com/stormycloud/shabench/internal/stats"
	"github.com/stormycloud/shabench/internal/validate"
)

func baseConfig() Config {
	return Config{
		BatchSize:     64,
		Content:       []byte(batch.DefaultContent),
		Policy:        validate.PolicyFirstLast,
		ReportEvery:   5,
		MaxIterations: 20,
	}
}

func newCPU(t *testing.T) *cpu.Backend {
	t.Helper()
	b, err := cpu.New(4)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

type recorder struct {
	mu         sync.Mutex
	iterations int
	hashes     int
	retries    int
	resets     int
}

func (r *recorder) Iteration(n int, _ time.Duration) {
	r.mu.Lock()
	r.iterations++
	r.hashes += n
	r.mu.Unlock()
}

func (r *recorder) Retry(error) {
	r.mu.Lock()
	r.retries++
	r.mu.Unlock()
}

func (r *recorder) Reset() {
	r.mu.Lock()
	r.resets++
	r.mu.Unlock()
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	b := newCPU(t)

	cfg := baseConfig()
	cfg.BatchSize = 0
	_, err := New(b, cfg)
	assert.Error(t, err)

	cfg = baseConfig()
	cfg.ReportEvery = 0
	_, err = New(b, cfg)
	assert.Error(t, err)

	cfg = baseConfig()
	cfg.Retry.Attempts = -1
	_, err = New(b, cfg)
	assert.Error(t, err)

	_, err = New(nil, baseConfig())
	assert.Error(t, err)
}

func TestRunReportsEveryInterval(t *testing.T) {
	var buf bytes.Buffer
	rec := &recorder{}
	l, err := New(newCPU(t), baseConfig(),
		WithReporter(NewLineReporter(&buf, stats.UnitAuto, false)),
		WithObserver(rec))
	require.NoError(t, err)
	assert.Equal(t, "CPU", l.Label())

	require.NoError(t, l.Run(context.Background()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	for i, line := range lines {
		assert.True(t, strings.HasPrefix(line, "CPU: After "), line)
		assert.Contains(t, line, "iterations: ")
		assert.True(t, strings.HasSuffix(line, "H/s"), line)
		assert.Contains(t, line, []string{"After 5 ", "After 10 ", "After 15 ", "After 20 "}[i])
	}

	s := l.Snapshot()
	assert.Equal(t, uint64(20), s.Iterations)
	assert.Equal(t, uint64(20*64), s.Hashes)
	assert.Equal(t, 20, rec.iterations)
}

func TestRunReuseBatchWithSpotCheck(t *testing.T) {
	cfg := baseConfig()
	cfg.ReuseBatch = true
	cfg.SpotCheck = true
	cfg.Policy = validate.PolicyAll
	cfg.Label = "reuse"

	l, err := New(newCPU(t), cfg)
	require.NoError(t, err)
	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, uint64(20), l.Snapshot().Iterations)
}

func TestRunGPUEmulator(t *testing.T) {
	g, err := gpu.New(gpu.SessionConfig{Device: "emulator"}, gpu.BackendConfig{GroupWidth: 16})
	require.NoError(t, err)
	defer g.Close()

	cfg := baseConfig()
	cfg.BatchSize = 100
	cfg.SpotCheck = true
	l, err := New(g, cfg)
	require.NoError(t, err)
	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, uint64(2000), l.Snapshot().Hashes)
}

func TestRunCanceledReturnsNil(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxIterations = 0

	l, err := New(newCPU(t), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, l.Run(ctx))
	assert.Greater(t, l.Snapshot().Iterations, uint64(0))
}

type corrupting struct {
	backend.Backend
	at int
	n  int
}

func (c *corrupting) Dispatch(ctx context.Context, b *batch.Batch) (batch.Digests, time.Duration, error) {
	out, d, err := c.Backend.Dispatch(ctx, b)
	c.n++
	if err == nil && c.n == c.at {
		out.Slot(out.Len() - 1)[0] ^= 1
	}
	return out, d, err
}

func TestRunMismatchIsFatal(t *testing.T) {
	var buf bytes.Buffer
	b := &corrupting{Backend: newCPU(t), at: 3}
	cfg := baseConfig()
	cfg.ReportEvery = 1

	l, err := New(b, cfg, WithReporter(NewLineReporter(&buf, stats.UnitH, false)))
	require.NoError(t, err)

	err = l.Run(context.Background())
	var me *validate.MismatchError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, 63, me.Index)
	assert.Contains(t, err.Error(), "iteration 3")
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
	assert.Equal(t, uint64(2), l.Snapshot().Iterations)
}

// truncating drops the middle digest but keeps the first and last correct.
type truncating struct {
	backend.Backend
}

func (t truncating) Dispatch(ctx context.Context, b *batch.Batch) (batch.Digests, time.Duration, error) {
	out, d, err := t.Backend.Dispatch(ctx, b)
	if err != nil || out.Len() < 3 {
		return out, d, err
	}
	short := batch.NewDigests(out.Len() - 1)
	copy(short.Bytes(), out.Bytes()[:short.Len()*batch.DigestSize])
	return short, d, nil
}

func TestRunShortDigestBufferIsFatal(t *testing.T) {
	rec := &recorder{}
	l, err := New(truncating{newCPU(t)}, baseConfig(), WithObserver(rec))
	require.NoError(t, err)

	err = l.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got 63 digests for 64 records")
	assert.False(t, backend.IsTransient(err))
	assert.Zero(t, l.Snapshot().Hashes)
	assert.Zero(t, rec.hashes)
}

// miscomputing hashes every record with a primitive that is consistent
// with itself but is not SHA-256.
type miscomputing struct{}

func (miscomputing) Name() string { return "broken" }
func (miscomputing) Close() error { return nil }

func (miscomputing) Dispatch(_ context.Context, b *batch.Batch) (batch.Digests, time.Duration, error) {
	out := batch.NewDigests(b.Len())
	for i := 0; i < b.Len(); i++ {
		sum := sha256.Sum224(b.Record(i).Bytes())
		copy(out.Slot(i), sum[:])
	}
	return out, time.Millisecond, nil
}

func TestRunRejectsWrongPrimitiveWithoutSpotCheck(t *testing.T) {
	cfg := baseConfig()
	cfg.SpotCheck = false

	l, err := New(miscomputing{}, cfg)
	require.NoError(t, err)

	var me *validate.MismatchError
	require.ErrorAs(t, l.Run(context.Background()), &me)
	assert.Equal(t, 0, me.Index)
	assert.Equal(t, "91e9240f415223982edc345532630710e94a7f52cd5f48f5ee1afc555078f0ab", me.Want.String())
}

func failAt(dispatches ...uint64) func(uint64) error {
	return func(n uint64) error {
		for _, d := range dispatches {
			if n == d {
				return errors.New("device lost")
			}
		}
		return nil
	}
}

func faultyGPU(t *testing.T, fault func(uint64) error) *gpu.Backend {
	t.Helper()
	g, err := gpu.New(gpu.SessionConfig{
		Device:   "emulator",
		Emulator: gpu.EmulatorOptions{Fault: fault},
	}, gpu.BackendConfig{GroupWidth: 8})
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g
}

func TestRunTransientAbortsByDefault(t *testing.T) {
	l, err := New(faultyGPU(t, failAt(2)), baseConfig())
	require.NoError(t, err)

	err = l.Run(context.Background())
	require.Error(t, err)
	assert.True(t, backend.IsTransient(err))
	assert.Equal(t, uint64(1), l.Snapshot().Iterations)
}

func TestRunRetriesWithoutReset(t *testing.T) {
	rec := &recorder{}
	cfg := baseConfig()
	cfg.Retry = RetryPolicy{Attempts: 2, Backoff: time.Millisecond}

	l, err := New(faultyGPU(t, failAt(2, 3)), cfg, WithObserver(rec))
	require.NoError(t, err)
	require.NoError(t, l.Run(context.Background()))

	assert.Equal(t, 2, rec.retries)
	assert.Zero(t, rec.resets)
	assert.Equal(t, uint64(20), l.Snapshot().Iterations)
}

func TestRunRetriesWithReset(t *testing.T) {
	rec := &recorder{}
	cfg := baseConfig()
	cfg.Retry = RetryPolicy{Attempts: 1, ResetSession: true}

	// Dispatch numbers restart on every new session, so fail only once.
	var fired atomic.Bool
	fault := func(n uint64) error {
		if n == 4 && !fired.Swap(true) {
			return errors.New("device lost")
		}
		return nil
	}
	l, err := New(faultyGPU(t, fault), cfg, WithObserver(rec))
	require.NoError(t, err)
	require.NoError(t, l.Run(context.Background()))

	assert.Equal(t, 1, rec.retries)
	assert.Equal(t, 1, rec.resets)
	assert.Equal(t, 20, rec.iterations)
}

func TestRunRetriesExhausted(t *testing.T) {
	cfg := baseConfig()
	cfg.Retry = RetryPolicy{Attempts: 2}

	l, err := New(faultyGPU(t, failAt(1, 2, 3)), cfg)
	require.NoError(t, err)
	err = l.Run(context.Background())
	require.Error(t, err)
	assert.True(t, backend.IsTransient(err))
	assert.Zero(t, l.Snapshot().Iterations)
}

func TestStartDeliversSnapshotsAndCloses(t *testing.T) {
	cfg := baseConfig()
	cfg.ReportEvery = 1
	cfg.MaxIterations = 0

	l, err := New(newCPU(t), cfg)
	require.NoError(t, err)

	snaps, errs := l.Start(context.Background())
	var got stats.Snapshot
	select {
	case got = <-snaps:
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot")
	}
	assert.Greater(t, got.Iterations, uint64(0))

	l.Stop()
	for range snaps {
	}
	err, ok := <-errs
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestStartAgainAfterRunEnds(t *testing.T) {
	cfg := baseConfig()
	cfg.ReportEvery = 1
	cfg.MaxIterations = 2

	l, err := New(newCPU(t), cfg)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		snaps, errs := l.Start(context.Background())
		for range snaps {
		}
		err, ok := <-errs
		assert.False(t, ok)
		assert.NoError(t, err)
	}

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, uint64(6), l.Snapshot().Iterations)
}

func TestFormatLine(t *testing.T) {
	s := stats.Snapshot{Iterations: 1000, Rate: 2.5e6}
	assert.Equal(t, "CPU: After 1000 iterations: 2.50 MH/s", FormatLine("CPU", s, stats.UnitMH, false))
	assert.Equal(t, "\x1b[1mGPU\x1b[0m: After 1000 iterations: 2.5 MH/s", FormatLine("GPU", s, stats.UnitAuto, true))
}
