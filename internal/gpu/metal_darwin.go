//go:build darwin && cgo

package gpu

/*
#cgo CFLAGS: -x objective-c -fobjc-arc
#cgo LDFLAGS: -framework Metal -framework Foundation -framework CoreGraphics
#include <stdlib.h>
#include "metal_bridge.h"
*/
import "C"
import (
	"fmt"
	"unsafe"

	"github.com/stormycloud/shabench/internal/backend"
)

func init() {
	register(metalProvider{})
}

type metalProvider struct{}

func (metalProvider) name() string { return BackendMetal }

// devices enumerates Metal GPU devices.
func (metalProvider) devices() ([]Device, error) {
	count := int(C.metalDeviceCount())
	if count == 0 {
		return nil, nil
	}

	devices := make([]Device, count)
	for i := 0; i < count; i++ {
		cName := C.metalDeviceName(C.int(i))
		devices[i] = Device{
			Name:          C.GoString(cName),
			Vendor:        "Apple",
			MaxGroupWidth: int(C.metalDeviceMaxGroup(C.int(i))),
			Backend:       BackendMetal,
			Index:         i,
		}
		C.free(unsafe.Pointer(cName))
	}
	return devices, nil
}

func (metalProvider) open(dev Device, k kernel, _ SessionConfig) (driver, error) {
	cSource := C.CString(k.source)
	defer C.free(unsafe.Pointer(cSource))
	cEntry := C.CString(k.entry)
	defer C.free(unsafe.Pointer(cEntry))

	var (
		stage    C.int
		buildLog [4096]C.char
	)
	handle := C.metalOpenSession(C.int(dev.Index), cSource, cEntry, &stage,
		&buildLog[0], C.size_t(len(buildLog)))
	if handle == nil {
		msg := C.GoString(&buildLog[0])
		if msg == "" {
			msg = "failed to create Metal compute pipeline"
		}
		return nil, &backend.SetupError{Backend: Name, Stage: metalStage(int(stage)), Err: fmt.Errorf("%s", msg)}
	}
	return &metalDriver{handle: handle}, nil
}

func metalStage(stage int) string {
	switch stage {
	case 2:
		return backend.StageCompile
	case 3:
		return backend.StagePipeline
	default:
		return backend.StageDevice
	}
}

type metalDriver struct {
	handle unsafe.Pointer
}

type metalBuffer struct {
	buf unsafe.Pointer
	n   int
}

func (b *metalBuffer) size() int { return b.n }

func (b *metalBuffer) read(dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	if C.metalReadBuffer(b.buf, unsafe.Pointer(&dst[0]), C.size_t(len(dst))) != 0 {
		return fmt.Errorf("read of %d bytes from %d byte buffer", len(dst), b.n)
	}
	return nil
}

func (b *metalBuffer) release() {
	if b.buf != nil {
		C.metalReleaseBuffer(b.buf)
		b.buf = nil
	}
}

func (d *metalDriver) newBuffer(data []byte) (buffer, error) {
	if len(data) == 0 {
		return nil, &driverError{op: "newBufferWithBytes", code: -1, permanent: true}
	}
	buf := C.metalNewBuffer(d.handle, unsafe.Pointer(&data[0]), C.size_t(len(data)))
	if buf == nil {
		return nil, &driverError{op: "newBufferWithBytes", code: -1}
	}
	return &metalBuffer{buf: buf, n: len(data)}, nil
}

func (d *metalDriver) newZeroBuffer(size int) (buffer, error) {
	return d.newBuffer(make([]byte, size))
}

func (d *metalDriver) dispatch(bindings [numSlots]buffer, groups, width int) error {
	var bufs [numSlots]unsafe.Pointer
	for i, b := range bindings {
		bufs[i] = b.(*metalBuffer).buf
	}
	code := int(C.metalDispatch(d.handle, bufs[0], bufs[1], bufs[2], bufs[3],
		C.ulong(groups), C.ulong(width)))
	if code != 0 {
		return &driverError{op: "MTLCommandBuffer", code: code}
	}
	return nil
}

func (d *metalDriver) maxGroupWidth() int {
	return int(C.metalSessionMaxGroup(d.handle))
}

func (d *metalDriver) close() {
	if d.handle != nil {
		C.metalCloseSession(d.handle)
		d.handle = nil
	}
}
