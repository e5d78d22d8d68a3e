package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Grid is the launch geometry for one dispatch.
type Grid struct {
	Count       int // records in the batch
	Width       int // invocations per thread-group
	Chunk       int // records per invocation
	Invocations int // ceil(Count/Chunk)
	Groups      int // ceil(Invocations/Width)
}

// PlanGrid computes the geometry for count records processed chunk at a time
// by thread-groups of width invocations. The provisioned invocations may
// exceed the work; the kernel bounds-checks the surplus.
func PlanGrid(count, width, chunk int) (Grid, error) {
	switch {
	case count < 1:
		return Grid{}, fmt.Errorf("record count must be at least 1, got %d", count)
	case count > math.MaxUint32:
		return Grid{}, fmt.Errorf("record count %d exceeds the kernel's 32-bit index", count)
	case width < 1:
		return Grid{}, fmt.Errorf("group width must be at least 1, got %d", width)
	case chunk < 1:
		return Grid{}, fmt.Errorf("chunk size must be at least 1, got %d", chunk)
	}

	invocations := ceilDiv(count, chunk)
	return Grid{
		Count:       count,
		Width:       width,
		Chunk:       chunk,
		Invocations: invocations,
		Groups:      ceilDiv(invocations, width),
	}, nil
}

// Total is the number of invocations launched.
func (g Grid) Total() int { return g.Groups * g.Width }

// Span returns the half-open record range handled by invocation id. The
// range is empty for surplus invocations.
func (g Grid) Span(id int) (lo, hi int) {
	lo = id * g.Chunk
	if lo >= g.Count {
		return g.Count, g.Count
	}
	hi = lo + g.Chunk
	if hi > g.Count {
		hi = g.Count
	}
	return lo, hi
}

// Params encodes the parameter block bound at slot 3:
// {record_count, records_per_invocation, stride, 0} as little-endian u32.
func (g Grid) Params(stride int) []byte {
	p := make([]byte, 16)
	binary.LittleEndian.PutUint32(p[0:], uint32(g.Count))
	binary.LittleEndian.PutUint32(p[4:], uint32(g.Chunk))
	binary.LittleEndian.PutUint32(p[8:], uint32(stride))
	return p
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
