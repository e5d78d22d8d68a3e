package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/stormycloud/shabench/internal/backend"
	"github.com/stormycloud/shabench/internal/batch"
)

// SessionConfig selects a device and the kernel to build on it.
type SessionConfig struct {
	Device   string // name substring; "" picks the first hardware device
	Entry    string // defaults to EntryPoint
	Emulator EmulatorOptions
}

// Session is the process-lifetime GPU object: device, compiled pipeline and
// command queue. It runs one dispatch at a time.
type Session struct {
	mu     sync.Mutex
	cfg    SessionConfig
	dev    Device
	drv    driver
	closed bool
}

var errNotOpen = errors.New("session is not open")

// Open selects a device and builds the compute pipeline on it.
func Open(cfg SessionConfig) (*Session, error) {
	dev, err := SelectDevice(cfg.Device)
	if err != nil {
		return nil, &backend.SetupError{Backend: Name, Stage: backend.StageDevice, Err: err}
	}

	s := &Session{cfg: cfg, dev: dev}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) open() error {
	p := lookupProvider(s.dev.Backend)
	if p == nil {
		return &backend.SetupError{
			Backend: Name,
			Stage:   backend.StageDevice,
			Err:     fmt.Errorf("%s driver not compiled in", s.dev.Backend),
		}
	}

	entry := s.cfg.Entry
	if entry == "" {
		entry = EntryPoint
	}
	drv, err := p.open(s.dev, kernel{entry: entry, source: kernelSource(s.dev.Backend)}, s.cfg)
	if err != nil {
		return err
	}
	if w := drv.maxGroupWidth(); w > 0 && (s.dev.MaxGroupWidth == 0 || w < s.dev.MaxGroupWidth) {
		s.dev.MaxGroupWidth = w
	}
	s.drv = drv
	log.Infof("Opened %s session on %s (max group width %d)", s.dev.Backend, s.dev.Name, s.dev.MaxGroupWidth)
	return nil
}

// Device returns the device the session runs on.
func (s *Session) Device() Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev
}

// execute runs one batch: encode, bind, dispatch, read back. Every buffer
// allocated here is released before it returns.
func (s *Session) execute(enc batch.Encoded, grid Grid) (batch.Digests, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return batch.Digests{}, backend.ErrClosed
	}
	if s.drv == nil {
		return batch.Digests{}, &backend.DispatchError{Backend: Name, Err: errNotOpen}
	}

	// Drivers reject zero-length allocations, which an all-empty batch
	// would otherwise need.
	inputs, err := s.drv.newBuffer(atLeast(enc.Inputs, 4))
	if err != nil {
		return batch.Digests{}, s.dispatchError("allocate inputs", err)
	}
	defer inputs.release()

	lengths, err := s.drv.newBuffer(enc.Lengths)
	if err != nil {
		return batch.Digests{}, s.dispatchError("allocate lengths", err)
	}
	defer lengths.release()

	outputs, err := s.drv.newZeroBuffer(enc.Count * batch.DigestSize)
	if err != nil {
		return batch.Digests{}, s.dispatchError("allocate outputs", err)
	}
	defer outputs.release()

	params, err := s.drv.newBuffer(grid.Params(enc.Stride))
	if err != nil {
		return batch.Digests{}, s.dispatchError("allocate params", err)
	}
	defer params.release()

	var bindings [numSlots]buffer
	bindings[slotInputs] = inputs
	bindings[slotLengths] = lengths
	bindings[slotOutputs] = outputs
	bindings[slotParams] = params

	if err := s.drv.dispatch(bindings, grid.Groups, grid.Width); err != nil {
		return batch.Digests{}, s.dispatchError("execute", err)
	}

	out := batch.NewDigests(enc.Count)
	if err := outputs.read(out.Bytes()); err != nil {
		return batch.Digests{}, s.dispatchError("read back", err)
	}
	return out, nil
}

func (s *Session) dispatchError(op string, err error) error {
	transient := true
	var de *driverError
	if errors.As(err, &de) && de.permanent {
		transient = false
	}
	return &backend.DispatchError{
		Backend:   Name,
		Transient: transient,
		Err:       fmt.Errorf("%s: %w", op, err),
	}
}

// liveBuffers reports the driver's outstanding allocations when it tracks
// them.
func (s *Session) liveBuffers() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.drv.(interface{ liveBuffers() int })
	if !ok {
		return 0, false
	}
	return c.liveBuffers(), true
}

// Reset tears down the pipeline and queue and builds them again on the same
// device.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return backend.ErrClosed
	}
	if s.drv != nil {
		s.drv.close()
		s.drv = nil
	}
	log.Infof("Resetting %s session on %s", s.dev.Backend, s.dev.Name)
	return s.open()
}

// Close releases the session. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if s.drv != nil {
		s.drv.close()
		s.drv = nil
	}
	log.Debugf("Closed %s session", s.dev.Backend)
}

func atLeast(b []byte, n int) []byte {
	if len(b) >= n {
		return b
	}
	p := make([]byte, n)
	copy(p, b)
	return p
}
