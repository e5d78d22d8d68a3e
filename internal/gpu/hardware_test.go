//go:build (darwin && cgo) || (opencl && cgo)

package gpu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stormycloud/shabench/internal/batch"
)

func TestHardwareKnownDigest(t *testing.T) {
	if !Available() {
		t.Skip("GPU not available")
	}

	b, err := New(SessionConfig{}, BackendConfig{GroupWidth: 64})
	require.NoError(t, err)
	defer b.Close()
	assert.True(t, b.Device().Hardware())

	out, _, err := b.Dispatch(context.Background(), batch.Generate(32768, []byte("hello1")))
	require.NoError(t, err)
	assert.Equal(t, hello1, out.At(0).String())
	assert.Equal(t, hello1, out.At(32767).String())
}

func TestHardwareMatchesEmulator(t *testing.T) {
	if !Available() {
		t.Skip("GPU not available")
	}

	hw, err := New(SessionConfig{}, BackendConfig{GroupWidth: 32, ChunkSize: 3})
	require.NoError(t, err)
	defer hw.Close()
	emu := newEmulated(t, 32, 3, EmulatorOptions{})

	in := batch.New(
		batch.NewRecord(nil),
		batch.NewRecord([]byte("abc")),
		batch.NewRecord(make([]byte, 55)),
		batch.NewRecord(make([]byte, 56)),
		batch.NewRecord(make([]byte, 64)),
		batch.NewRecord(make([]byte, 1000)),
	)
	want, _, err := emu.Dispatch(context.Background(), in)
	require.NoError(t, err)
	got, _, err := hw.Dispatch(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}
