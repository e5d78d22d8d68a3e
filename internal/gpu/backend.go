package gpu

import (
	"context"
	"fmt"
	"time"

	"github.com/stormycloud/shabench/internal/backend"
	"github.com/stormycloud/shabench/internal/batch"
)

// DefaultGroupWidth is the thread-group width used when none is configured.
const DefaultGroupWidth = 64

// BackendConfig sets the dispatch geometry.
type BackendConfig struct {
	GroupWidth int // invocations per thread-group
	ChunkSize  int // records per invocation
}

// Backend hashes batches on a Session. It owns the session and closes it.
type Backend struct {
	session *Session
	width   int
	chunk   int
}

// NewBackend checks the geometry against the session's device.
func NewBackend(s *Session, cfg BackendConfig) (*Backend, error) {
	width, chunk := cfg.GroupWidth, cfg.ChunkSize
	if width == 0 {
		width = DefaultGroupWidth
	}
	if chunk == 0 {
		chunk = 1
	}

	dev := s.Device()
	switch {
	case width < 1:
		return nil, &backend.SetupError{Backend: Name, Stage: backend.StagePipeline,
			Err: fmt.Errorf("group width must be at least 1, got %d", width)}
	case dev.MaxGroupWidth > 0 && width > dev.MaxGroupWidth:
		return nil, &backend.SetupError{Backend: Name, Stage: backend.StagePipeline,
			Err: fmt.Errorf("group width %d exceeds %s limit of %d", width, dev.Name, dev.MaxGroupWidth)}
	case chunk < 1:
		return nil, &backend.SetupError{Backend: Name, Stage: backend.StagePipeline,
			Err: fmt.Errorf("chunk size must be at least 1, got %d", chunk)}
	}

	return &Backend{session: s, width: width, chunk: chunk}, nil
}

// New opens a session and wraps it in a Backend.
func New(scfg SessionConfig, bcfg BackendConfig) (*Backend, error) {
	s, err := Open(scfg)
	if err != nil {
		return nil, err
	}
	b, err := NewBackend(s, bcfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	return b, nil
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return Name }

// Device returns the device the backend runs on.
func (b *Backend) Device() Device { return b.session.Device() }

// GroupWidth returns the configured thread-group width.
func (b *Backend) GroupWidth() int { return b.width }

// Dispatch hashes every record of in with a single kernel launch. The
// elapsed time spans encoding through read back.
func (b *Backend) Dispatch(ctx context.Context, in *batch.Batch) (batch.Digests, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return batch.Digests{}, 0, err
	}

	start := time.Now()
	enc := in.Encode()
	grid, err := PlanGrid(enc.Count, b.width, b.chunk)
	if err != nil {
		return batch.Digests{}, 0, &backend.DispatchError{Backend: Name, Err: err}
	}
	out, err := b.session.execute(enc, grid)
	if err != nil {
		return batch.Digests{}, 0, err
	}
	elapsed := time.Since(start)
	log.Tracef("Dispatched %d records as %d groups of %d in %v", grid.Count, grid.Groups, grid.Width, elapsed)
	return out, elapsed, nil
}

// Reset implements backend.Resetter.
func (b *Backend) Reset() error { return b.session.Reset() }

// Close releases the session.
func (b *Backend) Close() error {
	b.session.Close()
	return nil
}
