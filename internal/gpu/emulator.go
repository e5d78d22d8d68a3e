package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/minio/sha256-simd"

	"github.com/stormycloud/shabench/internal/backend"
	"github.com/stormycloud/shabench/internal/batch"
)

const (
	emulatorName     = "Software Emulator"
	emulatorMaxGroup = 1024
)

// EmulatorOptions tunes the software device.
type EmulatorOptions struct {
	// Units is the number of goroutines executing thread-groups. Zero means
	// GOMAXPROCS.
	Units int

	// Fault, when set, is consulted before every dispatch with the 1-based
	// dispatch number of the current session. A non-nil result fails that
	// dispatch as a device execution error.
	Fault func(dispatch uint64) error
}

// kernelFunc executes one invocation against the bound slots.
type kernelFunc func(id uint32, slots *[numSlots][]byte)

// emulatedKernels maps entry points to their Go implementations.
var emulatedKernels = map[string]kernelFunc{
	EntryPoint: sha256Kernel,
}

func init() {
	register(emulatorProvider{})
}

type emulatorProvider struct{}

func (emulatorProvider) name() string { return BackendEmulator }

func (emulatorProvider) devices() ([]Device, error) {
	return []Device{{
		Name:          emulatorName,
		Vendor:        "shabench",
		MaxGroupWidth: emulatorMaxGroup,
		Backend:       BackendEmulator,
	}}, nil
}

func (emulatorProvider) open(dev Device, k kernel, cfg SessionConfig) (driver, error) {
	fn, ok := emulatedKernels[k.entry]
	if !ok {
		return nil, &backend.SetupError{
			Backend: Name,
			Stage:   backend.StageCompile,
			Err:     fmt.Errorf("entry point %q not found", k.entry),
		}
	}
	units := cfg.Emulator.Units
	if units < 1 {
		units = runtime.GOMAXPROCS(0)
	}
	return &emulator{
		kern:  fn,
		units: units,
		fault: cfg.Emulator.Fault,
	}, nil
}

type emulator struct {
	kern       kernelFunc
	units      int
	fault      func(uint64) error
	live       atomic.Int64
	dispatches atomic.Uint64
}

type emuBuffer struct {
	data     []byte
	live     *atomic.Int64
	released atomic.Bool
}

var errReleased = errors.New("buffer already released")

func (b *emuBuffer) size() int { return len(b.data) }

func (b *emuBuffer) read(dst []byte) error {
	if b.released.Load() {
		return errReleased
	}
	if len(dst) > len(b.data) {
		return fmt.Errorf("read of %d bytes from %d byte buffer", len(dst), len(b.data))
	}
	copy(dst, b.data)
	return nil
}

func (b *emuBuffer) release() {
	if b.released.CompareAndSwap(false, true) {
		b.live.Add(-1)
		b.data = nil
	}
}

func (e *emulator) newBuffer(data []byte) (buffer, error) {
	b := &emuBuffer{data: append([]byte(nil), data...), live: &e.live}
	e.live.Add(1)
	return b, nil
}

func (e *emulator) newZeroBuffer(size int) (buffer, error) {
	if size < 0 {
		return nil, fmt.Errorf("negative buffer size %d", size)
	}
	b := &emuBuffer{data: make([]byte, size), live: &e.live}
	e.live.Add(1)
	return b, nil
}

func (e *emulator) dispatch(bindings [numSlots]buffer, groups, width int) error {
	n := e.dispatches.Add(1)
	if e.fault != nil {
		if err := e.fault(n); err != nil {
			return err
		}
	}

	var slots [numSlots][]byte
	for i, b := range bindings {
		eb, ok := b.(*emuBuffer)
		if !ok || eb.released.Load() {
			return &driverError{op: "bind", code: i, permanent: true}
		}
		slots[i] = eb.data
	}
	if len(slots[slotParams]) < 16 {
		return &driverError{op: "bind", code: slotParams, permanent: true}
	}

	units := e.units
	if units > groups {
		units = groups
	}
	var (
		next int64
		wg   sync.WaitGroup
	)
	wg.Add(units)
	for u := 0; u < units; u++ {
		go func() {
			defer wg.Done()
			for {
				g := int(atomic.AddInt64(&next, 1) - 1)
				if g >= groups {
					return
				}
				base := g * width
				for t := 0; t < width; t++ {
					e.kern(uint32(base+t), &slots)
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

func (e *emulator) maxGroupWidth() int { return emulatorMaxGroup }

func (e *emulator) liveBuffers() int { return int(e.live.Load()) }

func (e *emulator) close() {}

// sha256Kernel is the Go rendition of kernels/sha256.cl.
func sha256Kernel(id uint32, slots *[numSlots][]byte) {
	inputs, lengths, outputs, params := slots[slotInputs], slots[slotLengths], slots[slotOutputs], slots[slotParams]
	count := uint64(binary.LittleEndian.Uint32(params[0:]))
	chunk := uint64(binary.LittleEndian.Uint32(params[4:]))
	stride := uint64(binary.LittleEndian.Uint32(params[8:]))

	first := uint64(id) * chunk
	for k := uint64(0); k < chunk; k++ {
		i := first + k
		if i >= count {
			return
		}
		n := uint64(binary.LittleEndian.Uint32(lengths[i*4:]))
		off := i * stride
		sum := sha256.Sum256(inputs[off : off+n])
		copy(outputs[i*batch.DigestSize:(i+1)*batch.DigestSize], sum[:])
	}
}
