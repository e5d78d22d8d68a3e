// Package cpu implements the CPU backend: a fixed-width pool of goroutines
// that maps SHA-256 over a batch.
package cpu

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/minio/sha256-simd"

	"github.com/stormycloud/shabench/internal/backend"
	"github.com/stormycloud/shabench/internal/batch"
)

// Name labels this backend in reports and errors.
const Name = "CPU"

// Range is a half-open span of record indexes owned by one worker.
type Range struct {
	Lo, Hi int
}

type job struct {
	in   *batch.Batch
	out  batch.Digests
	span Range
	done *sync.WaitGroup
}

// Backend owns a pool of workers created once and reused by every Dispatch.
type Backend struct {
	workers int
	jobs    chan job
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New starts a pool of workers goroutines.
func New(workers int) (*Backend, error) {
	if workers < 1 {
		return nil, &backend.SetupError{
			Backend: Name,
			Stage:   backend.StagePool,
			Err:     fmt.Errorf("worker count must be at least 1, got %d", workers),
		}
	}

	b := &Backend{
		workers: workers,
		jobs:    make(chan job, workers),
	}
	b.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go b.worker()
	}
	log.Debugf("Started CPU pool with %d workers", workers)
	return b, nil
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return Name }

// Workers returns the pool width.
func (b *Backend) Workers() int { return b.workers }

// Dispatch hashes every record of in. Each worker writes only the slots of
// its own range, so the output needs no locking; the only synchronization is
// the final join.
func (b *Backend) Dispatch(ctx context.Context, in *batch.Batch) (batch.Digests, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return batch.Digests{}, 0, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return batch.Digests{}, 0, backend.ErrClosed
	}

	out := batch.NewDigests(in.Len())
	spans := Partition(in.Len(), b.workers)

	var done sync.WaitGroup
	done.Add(len(spans))

	start := time.Now()
	for _, span := range spans {
		b.jobs <- job{in: in, out: out, span: span, done: &done}
	}
	done.Wait()
	return out, time.Since(start), nil
}

// Close stops the workers. It is safe to call more than once.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.jobs)
	b.mu.Unlock()

	b.wg.Wait()
	log.Debugf("Stopped CPU pool")
	return nil
}

func (b *Backend) worker() {
	defer b.wg.Done()
	for j := range b.jobs {
		for i := j.span.Lo; i < j.span.Hi; i++ {
			sum := sha256.Sum256(j.in.Record(i).Bytes())
			copy(j.out.Slot(i), sum[:])
		}
		j.done.Done()
	}
}

// Partition splits [0,n) into at most parts contiguous, disjoint ranges whose
// sizes differ by no more than one.
func Partition(n, parts int) []Range {
	if n <= 0 || parts <= 0 {
		return nil
	}
	if parts > n {
		parts = n
	}
	spans := make([]Range, parts)
	size, extra := n/parts, n%parts
	lo := 0
	for i := range spans {
		hi := lo + size
		if i < extra {
			hi++
		}
		spans[i] = Range{Lo: lo, Hi: hi}
		lo = hi
	}
	return spans
}
