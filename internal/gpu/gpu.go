// Package gpu implements the GPU backend: a long-lived device session that
// runs the sha256_kernel compute kernel over a batch with one dispatch per
// iteration.
//
// Hardware drivers are selected at build time. Metal is compiled on darwin
// with cgo, OpenCL with cgo and the opencl build tag. A pure-Go emulator that
// executes the same kernel ABI is always present.
package gpu

import (
	"fmt"
	"strings"
)

// Name labels this backend in reports and errors.
const Name = "GPU"

// EntryPoint is the kernel function every driver compiles.
const EntryPoint = "sha256_kernel"

// Driver names reported in Device.Backend.
const (
	BackendMetal    = "Metal"
	BackendOpenCL   = "OpenCL"
	BackendEmulator = "Emulator"
)

// Device represents a detected compute device.
type Device struct {
	Name          string
	Vendor        string
	MaxGroupWidth int
	Backend       string // "Metal", "OpenCL" or "Emulator"
	Index         int    // position within its driver's device list
}

// Hardware reports whether d is a physical device rather than the emulator.
func (d Device) Hardware() bool { return d.Backend != BackendEmulator }

func (d Device) String() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Backend)
}

// Binding slots of the kernel ABI.
const (
	slotInputs = iota
	slotLengths
	slotOutputs
	slotParams
	numSlots
)

// kernel is what a driver needs to build a pipeline.
type kernel struct {
	entry  string
	source string
}

// buffer is a device allocation.
type buffer interface {
	size() int
	read(dst []byte) error
	release()
}

// driver is one open device session: context, compiled pipeline and queue.
type driver interface {
	newBuffer(data []byte) (buffer, error)
	newZeroBuffer(size int) (buffer, error)
	// dispatch binds the buffers to their slots, runs groups thread-groups
	// of width invocations and returns once the device has finished.
	dispatch(bindings [numSlots]buffer, groups, width int) error
	// maxGroupWidth is the largest thread-group the compiled pipeline
	// accepts.
	maxGroupWidth() int
	close()
}

// provider enumerates the devices of one driver and opens sessions on them.
// open returns a *backend.SetupError naming the failed stage.
type provider interface {
	name() string
	devices() ([]Device, error)
	open(dev Device, k kernel, cfg SessionConfig) (driver, error)
}

var providers []provider

func register(p provider) {
	providers = append(providers, p)
}

func lookupProvider(name string) provider {
	for _, p := range providers {
		if p.name() == name {
			return p
		}
	}
	return nil
}

// ListDevices enumerates every device of every compiled-in driver. Hardware
// devices come first; the emulator is always last.
func ListDevices() ([]Device, error) {
	var hw, soft []Device
	for _, p := range providers {
		devs, err := p.devices()
		if err != nil {
			log.Debugf("Listing %s devices: %v", p.name(), err)
			continue
		}
		for _, d := range devs {
			if d.Hardware() {
				hw = append(hw, d)
			} else {
				soft = append(soft, d)
			}
		}
	}
	return append(hw, soft...), nil
}

// Available returns true if at least one hardware device is detected.
func Available() bool {
	devs, _ := ListDevices()
	for _, d := range devs {
		if d.Hardware() {
			return true
		}
	}
	return false
}

// SelectDevice picks a device by case-insensitive name substring. An empty
// name selects the first hardware device.
func SelectDevice(name string) (Device, error) {
	devs, err := ListDevices()
	if err != nil {
		return Device{}, err
	}

	if name == "" {
		for _, d := range devs {
			if d.Hardware() {
				return d, nil
			}
		}
		return Device{}, fmt.Errorf("no GPU device found (select %q for the software emulator)", "emulator")
	}

	want := strings.ToLower(name)
	for _, d := range devs {
		if strings.Contains(strings.ToLower(d.Name), want) ||
			strings.EqualFold(d.Backend, name) {
			return d, nil
		}
	}

	names := make([]string, len(devs))
	for i, d := range devs {
		names[i] = d.Name
	}
	return Device{}, fmt.Errorf("no device matching %q (available: %s)", name, strings.Join(names, ", "))
}

// driverError is a failure reported by a device API.
type driverError struct {
	op        string
	code      int
	permanent bool
}

func (e *driverError) Error() string {
	return fmt.Sprintf("%s failed with code %d", e.op, e.code)
}
