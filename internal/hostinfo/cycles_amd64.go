package hostinfo

import "github.com/dterei/gotsc"

// MeasureCycles runs fn n times between serialized TSC reads and returns the
// mean cycles per call.
func MeasureCycles(fn func(), n int) (float64, bool) {
	if n < 1 {
		return 0, false
	}
	overhead := gotsc.TSCOverhead()
	start := gotsc.BenchStart()
	for i := 0; i < n; i++ {
		fn()
	}
	end := gotsc.BenchEnd()

	cycles := end - start
	if cycles > overhead {
		cycles -= overhead
	}
	return float64(cycles) / float64(n), true
}
