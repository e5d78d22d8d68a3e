package hostinfo

import (
	"runtime"
	"testing"

	"github.com/minio/sha256-simd"
	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	info := Detect()
	assert.Equal(t, runtime.GOARCH, info.Arch)
	assert.Positive(t, info.SuggestedWorkers())
	assert.NotEmpty(t, info.String())
}

func TestMeasureCycles(t *testing.T) {
	data := []byte("hello1")
	cycles, ok := MeasureCycles(func() { sha256.Sum256(data) }, 1000)
	if runtime.GOARCH != "amd64" {
		assert.False(t, ok)
		return
	}
	assert.True(t, ok)
	assert.Positive(t, cycles)

	_, ok = MeasureCycles(func() {}, 0)
	assert.False(t, ok)
}
