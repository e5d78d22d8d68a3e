// Package validate checks backend output against an expected digest.
package validate

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/stormycloud/shabench/internal/backend"
	"github.com/stormycloud/shabench/internal/batch"
)

// Policy selects which indexes of a homogeneous batch are compared.
type Policy string

const (
	PolicyFirst     Policy = "first"
	PolicyFirstLast Policy = "first-last"
	PolicyAll       Policy = "all"
)

// DefaultPolicy compares the first and last digest.
const DefaultPolicy = PolicyFirstLast

// ParsePolicy converts a configuration value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyFirst, PolicyFirstLast, PolicyAll:
		return Policy(s), nil
	case "":
		return DefaultPolicy, nil
	default:
		return "", fmt.Errorf("unknown validation policy %q (want first, first-last or all)", s)
	}
}

// MismatchError reports a digest that differs from the expected value.
type MismatchError struct {
	Index int
	Got   batch.Digest
	Want  batch.Digest
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("digest mismatch at index %d: got %s, want %s", e.Index, e.Got, e.Want)
}

// Expected returns the reference digest of content: the recorded answer
// when content is one of KnownVectors, otherwise the standard library hash.
// It never uses sha256-simd, the primitive the backends are built on.
func Expected(content []byte) batch.Digest {
	for _, v := range KnownVectors {
		if bytes.Equal(v.Input, content) {
			if d, err := batch.ParseDigest(v.Digest); err == nil {
				return d
			}
		}
	}
	return sha256.Sum256(content)
}

// Check compares the indexes selected by policy against want. An empty
// output is a mismatch at index 0.
func Check(out batch.Digests, want batch.Digest, policy Policy) error {
	n := out.Len()
	if n == 0 {
		return &MismatchError{Index: 0, Want: want}
	}

	var indexes []int
	switch policy {
	case PolicyFirst:
		indexes = []int{0}
	case PolicyAll:
		for i := 0; i < n; i++ {
			if !bytes.Equal(out.Slot(i), want[:]) {
				return &MismatchError{Index: i, Got: out.At(i), Want: want}
			}
		}
		return nil
	default:
		indexes = []int{0, n - 1}
	}

	for _, i := range indexes {
		if got := out.At(i); got != want {
			return &MismatchError{Index: i, Got: got, Want: want}
		}
	}
	return nil
}

// Vector is a known-answer test case.
type Vector struct {
	Name   string
	Input  []byte
	Digest string
}

// KnownVectors covers the empty message, the one-block boundary cases and a
// multi-block input.
var KnownVectors = []Vector{
	{"empty", nil, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
	{"abc", []byte("abc"), "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
	{"hello1", []byte("hello1"), "91e9240f415223982edc345532630710e94a7f52cd5f48f5ee1afc555078f0ab"},
	{"64 x 'a'", bytes.Repeat([]byte("a"), 64), "ffe054fe7ae0cb6dc65c3af9b61d5209f439851db43d0ba5997337df154668eb"},
	{"1000 x 'a'", bytes.Repeat([]byte("a"), 1000), "41edece42d63e8d9bf515a9ba6932e1c20cbc9f5a5d134645adb5db1b9737ea3"},
}

// SpotCheck runs KnownVectors through b as one heterogeneous batch and
// verifies every digest. It is meant to run once before a benchmark.
func SpotCheck(ctx context.Context, b backend.Backend) error {
	records := make([]batch.Record, len(KnownVectors))
	for i, v := range KnownVectors {
		records[i] = batch.NewRecord(v.Input)
	}

	out, _, err := b.Dispatch(ctx, batch.New(records...))
	if err != nil {
		return fmt.Errorf("spot check: %w", err)
	}
	if out.Len() != len(KnownVectors) {
		return fmt.Errorf("spot check: got %d digests for %d inputs", out.Len(), len(KnownVectors))
	}

	for i, v := range KnownVectors {
		want, err := batch.ParseDigest(v.Digest)
		if err != nil {
			return err
		}
		if got := out.At(i); got != want {
			return fmt.Errorf("spot check %q: %w", v.Name, &MismatchError{Index: i, Got: got, Want: want})
		}
	}
	log.Debugf("%s passed %d known-answer vectors", b.Name(), len(KnownVectors))
	return nil
}
