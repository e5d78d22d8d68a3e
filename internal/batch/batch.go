// Package batch builds the input records hashed by a benchmark iteration and
// the index-aligned digest buffers the backends produce for them.
package batch

import (
	"encoding/binary"
	"fmt"
)

// DefaultContent is the fixed input hashed by every record of a default run.
const DefaultContent = "hello1"

// Record is one immutable input. Records of a generated batch share a single
// backing array, so callers must never write through Bytes.
type Record struct {
	data []byte
}

// NewRecord copies b into a new record.
func NewRecord(b []byte) Record {
	return Record{data: append([]byte(nil), b...)}
}

// Bytes returns the record content.
func (r Record) Bytes() []byte { return r.data }

// Len returns the record length as carried in the kernel length buffer.
func (r Record) Len() uint32 { return uint32(len(r.data)) }

// Batch is an ordered, non-empty sequence of records.
type Batch struct {
	records []Record
}

// Generate returns count records that all carry content. It panics if count
// is less than one; configuration validation rejects such sizes earlier.
func Generate(count int, content []byte) *Batch {
	if count < 1 {
		panic(fmt.Sprintf("batch: count must be at least 1, got %d", count))
	}
	shared := NewRecord(content)
	records := make([]Record, count)
	for i := range records {
		records[i] = shared
	}
	return &Batch{records: records}
}

// New builds a batch from possibly heterogeneous records.
func New(records ...Record) *Batch {
	if len(records) == 0 {
		panic("batch: at least one record is required")
	}
	return &Batch{records: append([]Record(nil), records...)}
}

// Len returns N, the number of records.
func (b *Batch) Len() int { return len(b.records) }

// Record returns record i.
func (b *Batch) Record(i int) Record { return b.records[i] }

// Stride returns the length of the longest record.
func (b *Batch) Stride() int {
	stride := 0
	for _, r := range b.records {
		if len(r.data) > stride {
			stride = len(r.data)
		}
	}
	return stride
}

// Encoded is the device wire layout of a batch: record i occupies
// Inputs[i*Stride : i*Stride+len(i)] and Lengths holds one little-endian u32
// per record.
type Encoded struct {
	Inputs  []byte
	Lengths []byte
	Stride  int
	Count   int
}

// Encode flattens the batch into the fixed-stride layout read by the device
// kernel.
func (b *Batch) Encode() Encoded {
	stride := b.Stride()
	n := len(b.records)
	enc := Encoded{
		Inputs:  make([]byte, stride*n),
		Lengths: make([]byte, 4*n),
		Stride:  stride,
		Count:   n,
	}
	for i, r := range b.records {
		copy(enc.Inputs[i*stride:], r.data)
		binary.LittleEndian.PutUint32(enc.Lengths[i*4:], r.Len())
	}
	return enc
}
