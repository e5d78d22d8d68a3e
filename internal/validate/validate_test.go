package validate

import (
	"context"
	stdsha256 "crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stormycloud/shabench/internal/batch"
	"github.com/stormycloud/shabench/internal/cpu"
)

func filled(n int, d batch.Digest) batch.Digests {
	out := batch.NewDigests(n)
	for i := 0; i < n; i++ {
		copy(out.Slot(i), d[:])
	}
	return out
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyFirstLast, p)

	p, err = ParsePolicy("all")
	require.NoError(t, err)
	assert.Equal(t, PolicyAll, p)

	_, err = ParsePolicy("sometimes")
	assert.Error(t, err)
}

func TestExpectedUsesRecordedAnswers(t *testing.T) {
	for _, v := range KnownVectors {
		assert.Equal(t, v.Digest, Expected(v.Input).String(), v.Name)
	}
	assert.Equal(t, KnownVectors[0].Digest, Expected([]byte{}).String())

	content := []byte("not a known vector")
	assert.Equal(t, batch.Digest(stdsha256.Sum256(content)), Expected(content))
}

func TestCheckPolicies(t *testing.T) {
	want := Expected([]byte("hello1"))
	assert.Equal(t, "91e9240f415223982edc345532630710e94a7f52cd5f48f5ee1afc555078f0ab", want.String())

	out := filled(10, want)
	for _, p := range []Policy{PolicyFirst, PolicyFirstLast, PolicyAll} {
		assert.NoError(t, Check(out, want, p), p)
	}

	// Corrupt the middle: only "all" sees it.
	out.Slot(5)[0] ^= 0xff
	assert.NoError(t, Check(out, want, PolicyFirst))
	assert.NoError(t, Check(out, want, PolicyFirstLast))
	var me *MismatchError
	require.ErrorAs(t, Check(out, want, PolicyAll), &me)
	assert.Equal(t, 5, me.Index)
	assert.Equal(t, want, me.Want)

	// Corrupt the last: first-last catches it.
	out.Slot(9)[31] ^= 0x01
	require.ErrorAs(t, Check(out, want, PolicyFirstLast), &me)
	assert.Equal(t, 9, me.Index)
	assert.NoError(t, Check(out, want, PolicyFirst))
}

func TestCheckEmptyOutput(t *testing.T) {
	var me *MismatchError
	assert.ErrorAs(t, Check(batch.Digests{}, Expected(nil), PolicyFirst), &me)
}

func TestSpotCheckCPU(t *testing.T) {
	b, err := cpu.New(2)
	require.NoError(t, err)
	defer b.Close()

	assert.NoError(t, SpotCheck(context.Background(), b))
}

type corruptBackend struct {
	inner *cpu.Backend
	index int
}

func (c *corruptBackend) Name() string { return "corrupt" }

func (c *corruptBackend) Dispatch(ctx context.Context, b *batch.Batch) (batch.Digests, time.Duration, error) {
	out, d, err := c.inner.Dispatch(ctx, b)
	if err == nil {
		out.Slot(c.index)[0] ^= 0x80
	}
	return out, d, err
}

func (c *corruptBackend) Close() error { return c.inner.Close() }

type failingBackend struct{ err error }

func (f failingBackend) Name() string { return "failing" }

func (f failingBackend) Dispatch(context.Context, *batch.Batch) (batch.Digests, time.Duration, error) {
	return batch.Digests{}, 0, f.err
}

func (f failingBackend) Close() error { return nil }

func TestSpotCheckDetectsCorruption(t *testing.T) {
	inner, err := cpu.New(2)
	require.NoError(t, err)
	b := &corruptBackend{inner: inner, index: 3}
	defer b.Close()

	err = SpotCheck(context.Background(), b)
	var me *MismatchError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, 3, me.Index)
	assert.Contains(t, err.Error(), KnownVectors[3].Name)
}

func TestSpotCheckDispatchError(t *testing.T) {
	boom := errors.New("boom")
	assert.ErrorIs(t, SpotCheck(context.Background(), failingBackend{err: boom}), boom)
}
