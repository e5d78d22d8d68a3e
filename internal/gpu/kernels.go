package gpu

import _ "embed"

var (
	//go:embed kernels/sha256.cl
	openclSource string

	//go:embed kernels/sha256.metal
	metalSource string
)

func kernelSource(driver string) string {
	switch driver {
	case BackendOpenCL:
		return openclSource
	case BackendMetal:
		return metalSource
	default:
		return ""
	}
}
