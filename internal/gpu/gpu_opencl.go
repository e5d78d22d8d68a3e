//go:build opencl && cgo

package gpu

/*
#cgo linux LDFLAGS: -lOpenCL
#cgo windows LDFLAGS: -lOpenCL
#cgo darwin LDFLAGS: -framework OpenCL

#define CL_TARGET_OPENCL_VERSION 120
#ifdef __APPLE__
#include <OpenCL/cl.h>
#else
#include <CL/cl.h>
#endif

#include <stdlib.h>
#include <string.h>

#define OCL_STAGE_DEVICE   1
#define OCL_STAGE_COMPILE  2
#define OCL_STAGE_PIPELINE 3

typedef struct {
    cl_device_id device;
    cl_context context;
    cl_command_queue queue;
    cl_program program;
    cl_kernel kernel;
    size_t maxGroup;
} OpenCLSession;

static cl_device_id* g_devices = NULL;
static int g_deviceCount = 0;
static int g_initialized = 0;

static void ensureInit(void) {
    if (g_initialized) return;
    g_initialized = 1;

    cl_uint numPlatforms = 0;
    clGetPlatformIDs(0, NULL, &numPlatforms);
    if (numPlatforms == 0) return;

    cl_platform_id* platforms = (cl_platform_id*)malloc(sizeof(cl_platform_id) * numPlatforms);
    clGetPlatformIDs(numPlatforms, platforms, NULL);

    int total = 0;
    for (cl_uint p = 0; p < numPlatforms; p++) {
        cl_uint nd = 0;
        clGetDeviceIDs(platforms[p], CL_DEVICE_TYPE_GPU, 0, NULL, &nd);
        total += nd;
    }
    if (total == 0) { free(platforms); return; }

    g_devices = (cl_device_id*)malloc(sizeof(cl_device_id) * total);
    int idx = 0;
    for (cl_uint p = 0; p < numPlatforms; p++) {
        cl_uint nd = 0;
        clGetDeviceIDs(platforms[p], CL_DEVICE_TYPE_GPU, 0, NULL, &nd);
        if (nd > 0) {
            clGetDeviceIDs(platforms[p], CL_DEVICE_TYPE_GPU, nd, g_devices + idx, NULL);
            idx += nd;
        }
    }
    g_deviceCount = idx;
    free(platforms);
}

int oclDeviceCount(void) {
    ensureInit();
    return g_deviceCount;
}

char* oclDeviceName(int index) {
    ensureInit();
    if (index < 0 || index >= g_deviceCount) return strdup("Unknown");
    char name[256];
    clGetDeviceInfo(g_devices[index], CL_DEVICE_NAME, sizeof(name), name, NULL);
    return strdup(name);
}

char* oclDeviceVendor(int index) {
    ensureInit();
    if (index < 0 || index >= g_deviceCount) return strdup("Unknown");
    char vendor[256];
    clGetDeviceInfo(g_devices[index], CL_DEVICE_VENDOR, sizeof(vendor), vendor, NULL);
    return strdup(vendor);
}

size_t oclDeviceMaxGroup(int index) {
    ensureInit();
    if (index < 0 || index >= g_deviceCount) return 0;
    size_t n = 0;
    clGetDeviceInfo(g_devices[index], CL_DEVICE_MAX_WORK_GROUP_SIZE, sizeof(n), &n, NULL);
    return n;
}

void* oclOpenSession(int deviceIndex, const char* source, const char* entry,
                     int* stage, int* code, char* log, size_t logLen) {
    ensureInit();
    *stage = 0;
    *code = 0;
    if (deviceIndex < 0 || deviceIndex >= g_deviceCount) {
        *stage = OCL_STAGE_DEVICE;
        return NULL;
    }

    cl_device_id dev = g_devices[deviceIndex];
    cl_int err;

    cl_context ctx = clCreateContext(NULL, 1, &dev, NULL, NULL, &err);
    if (err != CL_SUCCESS) { *stage = OCL_STAGE_DEVICE; *code = err; return NULL; }

    cl_command_queue queue = clCreateCommandQueue(ctx, dev, 0, &err);
    if (err != CL_SUCCESS) {
        clReleaseContext(ctx);
        *stage = OCL_STAGE_DEVICE; *code = err;
        return NULL;
    }

    size_t srcLen = strlen(source);
    cl_program prog = clCreateProgramWithSource(ctx, 1, &source, &srcLen, &err);
    if (err != CL_SUCCESS) {
        clReleaseCommandQueue(queue);
        clReleaseContext(ctx);
        *stage = OCL_STAGE_COMPILE; *code = err;
        return NULL;
    }

    err = clBuildProgram(prog, 1, &dev, NULL, NULL, NULL);
    if (err != CL_SUCCESS) {
        clGetProgramBuildInfo(prog, dev, CL_PROGRAM_BUILD_LOG, logLen, log, NULL);
        clReleaseProgram(prog);
        clReleaseCommandQueue(queue);
        clReleaseContext(ctx);
        *stage = OCL_STAGE_COMPILE; *code = err;
        return NULL;
    }

    cl_kernel kern = clCreateKernel(prog, entry, &err);
    if (err != CL_SUCCESS) {
        clReleaseProgram(prog);
        clReleaseCommandQueue(queue);
        clReleaseContext(ctx);
        *stage = OCL_STAGE_PIPELINE; *code = err;
        return NULL;
    }

    size_t maxGroup = 0;
    clGetKernelWorkGroupInfo(kern, dev, CL_KERNEL_WORK_GROUP_SIZE, sizeof(maxGroup), &maxGroup, NULL);

    OpenCLSession* s = (OpenCLSession*)calloc(1, sizeof(OpenCLSession));
    s->device = dev;
    s->context = ctx;
    s->queue = queue;
    s->program = prog;
    s->kernel = kern;
    s->maxGroup = maxGroup;
    return s;
}

size_t oclSessionMaxGroup(void* handle) {
    OpenCLSession* s = (OpenCLSession*)handle;
    return s ? s->maxGroup : 0;
}

void* oclNewBuffer(void* handle, const void* data, size_t size, int* code) {
    OpenCLSession* s = (OpenCLSession*)handle;
    cl_int err;
    cl_mem mem = clCreateBuffer(s->context, CL_MEM_READ_WRITE | CL_MEM_COPY_HOST_PTR,
                                size, (void*)data, &err);
    *code = err;
    if (err != CL_SUCCESS) return NULL;
    return mem;
}

void oclReleaseBuffer(void* mem) {
    if (mem) clReleaseMemObject((cl_mem)mem);
}

int oclDispatch(void* handle, void* b0, void* b1, void* b2, void* b3,
                size_t groups, size_t width) {
    OpenCLSession* s = (OpenCLSession*)handle;
    cl_mem bufs[4] = { (cl_mem)b0, (cl_mem)b1, (cl_mem)b2, (cl_mem)b3 };
    for (cl_uint i = 0; i < 4; i++) {
        cl_int err = clSetKernelArg(s->kernel, i, sizeof(cl_mem), &bufs[i]);
        if (err != CL_SUCCESS) return err;
    }

    size_t global = groups * width;
    size_t local = width;
    cl_int err = clEnqueueNDRangeKernel(s->queue, s->kernel, 1, NULL, &global, &local, 0, NULL, NULL);
    if (err != CL_SUCCESS) return err;
    return clFinish(s->queue);
}

int oclReadBuffer(void* handle, void* mem, void* dst, size_t size) {
    OpenCLSession* s = (OpenCLSession*)handle;
    return clEnqueueReadBuffer(s->queue, (cl_mem)mem, CL_TRUE, 0, size, dst, 0, NULL, NULL);
}

void oclCloseSession(void* handle) {
    OpenCLSession* s = (OpenCLSession*)handle;
    if (!s) return;
    clReleaseKernel(s->kernel);
    clReleaseProgram(s->program);
    clReleaseCommandQueue(s->queue);
    clReleaseContext(s->context);
    free(s);
}
*/
import "C"
import (
	"fmt"
	"unsafe"

	"github.com/stormycloud/shabench/internal/backend"
)

// OpenCL status codes that a retry cannot fix.
const (
	clInvalidWorkGroupSize = -54
	clInvalidKernelArgs    = -52
	clInvalidArgValue      = -50
)

func init() {
	register(openclProvider{})
}

type openclProvider struct{}

func (openclProvider) name() string { return BackendOpenCL }

// devices enumerates OpenCL GPU devices.
func (openclProvider) devices() ([]Device, error) {
	count := int(C.oclDeviceCount())
	if count == 0 {
		return nil, nil
	}

	devices := make([]Device, count)
	for i := 0; i < count; i++ {
		cName := C.oclDeviceName(C.int(i))
		cVendor := C.oclDeviceVendor(C.int(i))
		devices[i] = Device{
			Name:          C.GoString(cName),
			Vendor:        C.GoString(cVendor),
			MaxGroupWidth: int(C.oclDeviceMaxGroup(C.int(i))),
			Backend:       BackendOpenCL,
			Index:         i,
		}
		C.free(unsafe.Pointer(cName))
		C.free(unsafe.Pointer(cVendor))
	}
	return devices, nil
}

func (openclProvider) open(dev Device, k kernel, _ SessionConfig) (driver, error) {
	cSource := C.CString(k.source)
	defer C.free(unsafe.Pointer(cSource))
	cEntry := C.CString(k.entry)
	defer C.free(unsafe.Pointer(cEntry))

	var (
		stage, code C.int
		buildLog    [4096]C.char
	)
	handle := C.oclOpenSession(C.int(dev.Index), cSource, cEntry, &stage, &code,
		&buildLog[0], C.size_t(len(buildLog)))
	if handle == nil {
		err := fmt.Errorf("OpenCL error %d", int(code))
		if msg := C.GoString(&buildLog[0]); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return nil, &backend.SetupError{Backend: Name, Stage: openclStage(int(stage)), Err: err}
	}
	return &openclDriver{handle: handle}, nil
}

func openclStage(stage int) string {
	switch stage {
	case 2:
		return backend.StageCompile
	case 3:
		return backend.StagePipeline
	default:
		return backend.StageDevice
	}
}

type openclDriver struct {
	handle unsafe.Pointer
}

type openclBuffer struct {
	drv *openclDriver
	mem unsafe.Pointer
	n   int
}

func (b *openclBuffer) size() int { return b.n }

func (b *openclBuffer) read(dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	if len(dst) > b.n {
		return fmt.Errorf("read of %d bytes from %d byte buffer", len(dst), b.n)
	}
	code := C.oclReadBuffer(b.drv.handle, b.mem, unsafe.Pointer(&dst[0]), C.size_t(len(dst)))
	if code != 0 {
		return &driverError{op: "clEnqueueReadBuffer", code: int(code)}
	}
	return nil
}

func (b *openclBuffer) release() {
	if b.mem != nil {
		C.oclReleaseBuffer(b.mem)
		b.mem = nil
	}
}

func (d *openclDriver) newBuffer(data []byte) (buffer, error) {
	if len(data) == 0 {
		return nil, &driverError{op: "clCreateBuffer", code: clInvalidArgValue, permanent: true}
	}
	var code C.int
	mem := C.oclNewBuffer(d.handle, unsafe.Pointer(&data[0]), C.size_t(len(data)), &code)
	if mem == nil {
		return nil, &driverError{op: "clCreateBuffer", code: int(code)}
	}
	return &openclBuffer{drv: d, mem: mem, n: len(data)}, nil
}

func (d *openclDriver) newZeroBuffer(size int) (buffer, error) {
	return d.newBuffer(make([]byte, size))
}

func (d *openclDriver) dispatch(bindings [numSlots]buffer, groups, width int) error {
	var mems [numSlots]unsafe.Pointer
	for i, b := range bindings {
		mems[i] = b.(*openclBuffer).mem
	}
	code := int(C.oclDispatch(d.handle, mems[0], mems[1], mems[2], mems[3],
		C.size_t(groups), C.size_t(width)))
	if code != 0 {
		permanent := code == clInvalidWorkGroupSize || code == clInvalidKernelArgs
		return &driverError{op: "clEnqueueNDRangeKernel", code: code, permanent: permanent}
	}
	return nil
}

func (d *openclDriver) maxGroupWidth() int {
	return int(C.oclSessionMaxGroup(d.handle))
}

func (d *openclDriver) close() {
	if d.handle != nil {
		C.oclCloseSession(d.handle)
		d.handle = nil
	}
}
