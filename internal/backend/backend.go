package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stormycloud/shabench/internal/batch"
)

// Kind selects one of the two compute engines.
type Kind string

const (
	KindCPU Kind = "cpu"
	KindGPU Kind = "gpu"
)

// ParseKind converts a configuration value to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCPU, KindGPU:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown backend %q (want cpu or gpu)", s)
	}
}

// Backend turns a batch into index-aligned digests. Dispatch blocks until
// every digest is available and reports the wall-clock time of the compute
// phase only.
type Backend interface {
	Name() string
	Dispatch(ctx context.Context, b *batch.Batch) (batch.Digests, time.Duration, error)
	Close() error
}

// Resetter is implemented by backends that can rebuild their long-lived
// session after a transient failure.
type Resetter interface {
	Reset() error
}

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("backend closed")

// Setup stages.
const (
	StageDevice   = "device"
	StageCompile  = "compile"
	StagePipeline = "pipeline"
	StagePool     = "pool"
)

// SetupError reports a failure while constructing a backend. It is never
// retried.
type SetupError struct {
	Backend string
	Stage   string
	Err     error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s setup failed (%s): %v", e.Backend, e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// DispatchError reports a failure while computing one batch. Transient is set
// when the device reported an execution failure that a new attempt, possibly
// on a fresh session, may not hit again.
type DispatchError struct {
	Backend   string
	Transient bool
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s dispatch failed: %v", e.Backend, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// IsSetup reports whether err is, or wraps, a *SetupError.
func IsSetup(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}

// IsTransient reports whether err wraps a transient *DispatchError.
func IsTransient(err error) bool {
	var de *DispatchError
	return errors.As(err, &de) && de.Transient
}
