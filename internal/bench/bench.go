// Package bench drives a backend in a generate, dispatch, validate,
// accumulate loop and reports throughput.
package bench

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stormycloud/shabench/internal/backend"
	"github.com/stormycloud/shabench/internal/batch"
	"github.com/stormycloud/shabench/internal/stats"
	"github.com/stormycloud/shabench/internal/validate"
)

// RetryPolicy governs transient dispatch failures. With zero Attempts every
// dispatch error aborts the run.
type RetryPolicy struct {
	Attempts     int
	Backoff      time.Duration // multiplied by the attempt number
	ResetSession bool          // call backend.Resetter before retrying
}

// Config is everything the loop needs besides the backend.
type Config struct {
	Label         string // report prefix; defaults to the backend name
	BatchSize     int
	Content       []byte
	ReuseBatch    bool // generate once instead of every iteration
	Policy        validate.Policy
	SpotCheck     bool
	ReportEvery   int
	MaxIterations uint64 // zero runs until canceled
	Retry         RetryPolicy
}

// Observer receives per-iteration events. Implementations must not block.
type Observer interface {
	Iteration(hashes int, elapsed time.Duration)
	Retry(err error)
	Reset()
}

type nopObserver struct{}

func (nopObserver) Iteration(int, time.Duration) {}
func (nopObserver) Retry(error)                  {}
func (nopObserver) Reset()                       {}

// Option configures a Loop.
type Option func(*Loop)

// WithReporter adds a reporter called every ReportEvery iterations.
func WithReporter(r Reporter) Option {
	return func(l *Loop) { l.reporters = append(l.reporters, r) }
}

// WithObserver sets the per-iteration observer.
func WithObserver(o Observer) Option {
	return func(l *Loop) { l.observer = o }
}

// Loop is one benchmark run against one backend.
type Loop struct {
	cfg       Config
	backend   backend.Backend
	want      batch.Digest
	acc       stats.Accumulator
	reporters []Reporter
	observer  Observer

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New checks cfg and builds a Loop. The backend stays owned by the caller.
func New(b backend.Backend, cfg Config, opts ...Option) (*Loop, error) {
	switch {
	case b == nil:
		return nil, errors.New("bench: nil backend")
	case cfg.BatchSize < 1:
		return nil, fmt.Errorf("bench: batch size must be at least 1, got %d", cfg.BatchSize)
	case cfg.ReportEvery < 1:
		return nil, fmt.Errorf("bench: report interval must be at least 1, got %d", cfg.ReportEvery)
	case cfg.Retry.Attempts < 0:
		return nil, fmt.Errorf("bench: retry attempts must not be negative, got %d", cfg.Retry.Attempts)
	}
	if cfg.Label == "" {
		cfg.Label = b.Name()
	}
	if cfg.Policy == "" {
		cfg.Policy = validate.DefaultPolicy
	}

	l := &Loop{
		cfg:      cfg,
		backend:  b,
		want:     validate.Expected(cfg.Content),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Label returns the report prefix.
func (l *Loop) Label() string { return l.cfg.Label }

// Snapshot returns the current totals.
func (l *Loop) Snapshot() stats.Snapshot { return l.acc.Snapshot() }

// Run executes iterations until ctx is canceled, MaxIterations is reached,
// or an iteration fails. Cancellation is not an error.
func (l *Loop) Run(ctx context.Context) error {
	return l.run(ctx, nil)
}

// run is Run with extra reporters that receive this run's reports only.
func (l *Loop) run(ctx context.Context, extra []Reporter) error {
	log.Debugf("Starting %s run: batch=%d reuse=%v policy=%s report_every=%d max_iterations=%d",
		l.cfg.Label, l.cfg.BatchSize, l.cfg.ReuseBatch, l.cfg.Policy, l.cfg.ReportEvery, l.cfg.MaxIterations)

	if l.cfg.SpotCheck {
		if err := validate.SpotCheck(ctx, l.backend); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}

	var in *batch.Batch
	if l.cfg.ReuseBatch {
		in = batch.Generate(l.cfg.BatchSize, l.cfg.Content)
	}

	for i := uint64(1); l.cfg.MaxIterations == 0 || i <= l.cfg.MaxIterations; i++ {
		if ctx.Err() != nil {
			log.Debugf("%s run canceled after %d iterations", l.cfg.Label, i-1)
			return nil
		}

		if !l.cfg.ReuseBatch {
			in = batch.Generate(l.cfg.BatchSize, l.cfg.Content)
		}

		out, elapsed, err := l.dispatch(ctx, in)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return fmt.Errorf("iteration %d: %w", i, err)
		}
		if out.Len() != in.Len() {
			return fmt.Errorf("iteration %d: %w", i, &backend.DispatchError{
				Backend: l.backend.Name(),
				Err:     fmt.Errorf("got %d digests for %d records", out.Len(), in.Len()),
			})
		}
		if err := validate.Check(out, l.want, l.cfg.Policy); err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}

		l.acc.Add(in.Len(), elapsed)
		l.observer.Iteration(in.Len(), elapsed)

		if i%uint64(l.cfg.ReportEvery) == 0 {
			l.report(extra)
		}
	}
	return nil
}

func (l *Loop) dispatch(ctx context.Context, in *batch.Batch) (batch.Digests, time.Duration, error) {
	for attempt := 1; ; attempt++ {
		out, elapsed, err := l.backend.Dispatch(ctx, in)
		if err == nil {
			return out, elapsed, nil
		}
		if !backend.IsTransient(err) || attempt > l.cfg.Retry.Attempts {
			return batch.Digests{}, 0, err
		}

		log.Warnf("Transient dispatch failure (retry %d of %d): %v", attempt, l.cfg.Retry.Attempts, err)
		l.observer.Retry(err)

		if l.cfg.Retry.ResetSession {
			if r, ok := l.backend.(backend.Resetter); ok {
				if rerr := r.Reset(); rerr != nil {
					return batch.Digests{}, 0, fmt.Errorf("reset after %v: %w", err, rerr)
				}
				l.observer.Reset()
			}
		}

		if wait := l.cfg.Retry.Backoff * time.Duration(attempt); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return batch.Digests{}, 0, ctx.Err()
			case <-t.C:
			}
		}
	}
}

func (l *Loop) report(extra []Reporter) {
	s := l.acc.Snapshot()
	log.Debugf("%s: %d hashes in %v, average iteration %v", l.cfg.Label, s.Hashes, s.Elapsed, s.AvgLatency)
	for _, r := range l.reporters {
		r.Report(l.cfg.Label, s)
	}
	for _, r := range extra {
		r.Report(l.cfg.Label, s)
	}
}

// Start runs the loop in the background. The snapshot channel receives one
// value per report and drops values nobody is reading. The error channel
// receives at most one value. Both close when the run ends.
func (l *Loop) Start(ctx context.Context) (<-chan stats.Snapshot, <-chan error) {
	ctx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()

	snapCh := make(chan stats.Snapshot, 1)
	errCh := make(chan error, 1)
	toChannel := ReporterFunc(func(_ string, s stats.Snapshot) {
		select {
		case snapCh <- s:
		default:
		}
	})

	go func() {
		defer cancel()
		defer close(snapCh)
		defer close(errCh)
		if err := l.run(ctx, []Reporter{toChannel}); err != nil {
			errCh <- err
		}
	}()
	return snapCh, errCh
}

// Stop cancels a run started with Start.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
}
