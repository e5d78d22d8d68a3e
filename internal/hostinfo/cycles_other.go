//go:build !amd64

package hostinfo

// MeasureCycles is unavailable without a time-stamp counter.
func MeasureCycles(fn func(), n int) (float64, bool) {
	return 0, false
}
