package batch

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// DigestSize is the size of one SHA-256 digest in bytes.
const DigestSize = 32

// Digest is a single SHA-256 output.
type Digest [DigestSize]byte

// String returns the lowercase hex encoding of d.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// ParseDigest decodes a 64 character hex string.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("parse digest: %w", err)
	}
	if len(b) != DigestSize {
		return d, fmt.Errorf("parse digest: want %d bytes, got %d", DigestSize, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// Digests is a contiguous buffer of N digests where entry i is the hash of
// record i of the batch that produced it. All access goes through At and Slot
// so no caller computes byte offsets by hand.
type Digests struct {
	buf []byte
}

// NewDigests allocates a zeroed buffer for n digests.
func NewDigests(n int) Digests {
	return Digests{buf: make([]byte, n*DigestSize)}
}

// DigestsFromBytes wraps buf, which must hold a whole number of digests.
func DigestsFromBytes(buf []byte) (Digests, error) {
	if len(buf)%DigestSize != 0 {
		return Digests{}, fmt.Errorf("digest buffer of %d bytes is not a multiple of %d", len(buf), DigestSize)
	}
	return Digests{buf: buf}, nil
}

// Len returns the number of digests.
func (d Digests) Len() int { return len(d.buf) / DigestSize }

// At returns a copy of digest i. It panics when i is out of range.
func (d Digests) At(i int) Digest {
	var out Digest
	copy(out[:], d.Slot(i))
	return out
}

// Slot returns the writable 32-byte window of digest i. Producers fill slots
// before handing the buffer over; consumers use At.
func (d Digests) Slot(i int) []byte {
	if i < 0 || i >= d.Len() {
		panic(fmt.Sprintf("batch: digest index %d out of range [0,%d)", i, d.Len()))
	}
	off := i * DigestSize
	return d.buf[off : off+DigestSize : off+DigestSize]
}

// Bytes exposes the raw buffer, for fingerprinting and comparisons.
func (d Digests) Bytes() []byte { return d.buf }

// Equal reports whether both buffers hold the same digests in the same order.
func (d Digests) Equal(o Digests) bool { return bytes.Equal(d.buf, o.buf) }
