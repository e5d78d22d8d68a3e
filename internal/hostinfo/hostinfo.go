// Package hostinfo describes the CPU the benchmark runs on.
package hostinfo

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// Info summarizes the host processor.
type Info struct {
	Brand         string
	Vendor        string
	Arch          string
	PhysicalCores int
	LogicalCores  int
	Hz            int64
	SHA           bool // x86 SHA extensions
	SHA2          bool // ARMv8 SHA-2 instructions
	AVX2          bool
	AVX512        bool
	Features      []string
}

// Detect queries the running CPU.
func Detect() Info {
	return Info{
		Brand:         cpuid.CPU.BrandName,
		Vendor:        cpuid.CPU.VendorString,
		Arch:          runtime.GOARCH,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		Hz:            cpuid.CPU.Hz,
		SHA:           cpuid.CPU.Supports(cpuid.SHA),
		SHA2:          cpuid.CPU.Supports(cpuid.SHA2),
		AVX2:          cpuid.CPU.Supports(cpuid.AVX2),
		AVX512:        cpuid.CPU.Supports(cpuid.AVX512F),
		Features:      cpuid.CPU.FeatureSet(),
	}
}

// HashAccelerated reports whether SHA-256 has hardware instructions.
func (i Info) HashAccelerated() bool { return i.SHA || i.SHA2 }

// SuggestedWorkers is a CPU pool width for this host.
func (i Info) SuggestedWorkers() int {
	if i.LogicalCores > 0 {
		return i.LogicalCores
	}
	return runtime.NumCPU()
}

func (i Info) String() string {
	brand := i.Brand
	if brand == "" {
		brand = "unknown CPU"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s), %d cores / %d threads", brand, i.Arch, i.PhysicalCores, i.LogicalCores)
	if i.Hz > 0 {
		fmt.Fprintf(&b, ", %.2f GHz", float64(i.Hz)/1e9)
	}
	if i.HashAccelerated() {
		b.WriteString(", SHA-256 instructions")
	}
	return b.String()
}
