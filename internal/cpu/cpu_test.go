package cpu

import (
	"context"
	stdsha256 "crypto/sha256"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stormycloud/shabench/internal/backend"
	"github.com/stormycloud/shabench/internal/batch"
)

const hello1 = "91e9240f415223982edc345532630710e94a7f52cd5f48f5ee1afc555078f0ab"

func TestNewRejectsInvalidWidth(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
	assert.True(t, backend.IsSetup(err))
}

func TestDispatchKnownDigest(t *testing.T) {
	b, err := New(4)
	require.NoError(t, err)
	defer b.Close()

	out, elapsed, err := b.Dispatch(context.Background(), batch.Generate(1, []byte("hello1")))
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, hello1, out.At(0).String())
	assert.GreaterOrEqual(t, int64(elapsed), int64(0))
}

func TestDispatchFullBatchFirstAndLast(t *testing.T) {
	b, err := New(8)
	require.NoError(t, err)
	defer b.Close()

	out, _, err := b.Dispatch(context.Background(), batch.Generate(32768, []byte("hello1")))
	require.NoError(t, err)
	require.Equal(t, 32768, out.Len())
	assert.Equal(t, hello1, out.At(0).String())
	assert.Equal(t, hello1, out.At(32767).String())
}

func TestDispatchIndexAlignment(t *testing.T) {
	b, err := New(3)
	require.NoError(t, err)
	defer b.Close()

	for _, n := range []int{1, 2, 3, 4, 7, 64, 65} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			records := make([]batch.Record, n)
			for i := range records {
				records[i] = batch.NewRecord([]byte(fmt.Sprintf("record-%d", i)))
			}
			out, _, err := b.Dispatch(context.Background(), batch.New(records...))
			require.NoError(t, err)
			require.Equal(t, n, out.Len())
			for i := range records {
				want := stdsha256.Sum256(records[i].Bytes())
				assert.Equal(t, batch.Digest(want), out.At(i), "index %d", i)
			}
		})
	}
}

func TestDispatchAfterClose(t *testing.T) {
	b, err := New(2)
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, _, err = b.Dispatch(context.Background(), batch.Generate(1, nil))
	assert.ErrorIs(t, err, backend.ErrClosed)
}

func TestDispatchCanceledContext(t *testing.T) {
	b, err := New(2)
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = b.Dispatch(ctx, batch.Generate(1, nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPartitionCoversExactlyOnce(t *testing.T) {
	for n := 1; n <= 40; n++ {
		for parts := 1; parts <= 10; parts++ {
			spans := Partition(n, parts)
			require.LessOrEqual(t, len(spans), parts)

			seen := make([]int, n)
			next := 0
			for _, s := range spans {
				require.Equal(t, next, s.Lo, "n=%d parts=%d", n, parts)
				require.Greater(t, s.Hi, s.Lo)
				for i := s.Lo; i < s.Hi; i++ {
					seen[i]++
				}
				next = s.Hi
			}
			require.Equal(t, n, next)
			for i, c := range seen {
				require.Equal(t, 1, c, "n=%d parts=%d index=%d", n, parts, i)
			}
		}
	}
	assert.Nil(t, Partition(0, 4))
}

func BenchmarkDispatch(b *testing.B) {
	be, err := New(8)
	if err != nil {
		b.Fatal(err)
	}
	defer be.Close()
	in := batch.Generate(32768, []byte(batch.DefaultContent))

	var hashes int
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		out, _, err := be.Dispatch(context.Background(), in)
		if err != nil {
			b.Fatalf("dispatch: %v", err)
		}
		hashes += out.Len()
	}
	b.StopTimer()

	if elapsed := b.Elapsed().Seconds(); elapsed > 0 {
		b.ReportMetric(float64(hashes)/elapsed, "hashes/sec")
	}
}
