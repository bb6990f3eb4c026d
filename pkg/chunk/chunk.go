// Package chunk splits an opaque payload into bounded, ordered envelopes and
// merges them back. The codec is stateless; accumulation of out-of-order
// arrivals lives in Assembler, which the owning channel holds for one
// operation at a time.
package chunk

import (
    "fmt"
    "sort"
    "strings"
)

// Envelope is one bounded fragment of a larger payload.
// Seq is zero-based and strictly less than Total; every envelope of the same
// payload carries the same Total.
type Envelope struct {
    Seq   uint32 `cbor:"1,keyasint" json:"seq"`
    Total uint32 `cbor:"2,keyasint" json:"total"`
    Data  []byte `cbor:"3,keyasint" json:"data"`
}

// Split slices payload into ceil(len/size) envelopes of at most size bytes.
// Chunk i carries bytes [i*size, min((i+1)*size, len)). An empty payload
// yields a single empty envelope with Total=1 so that receivers still get a
// well-formed sequence.
func Split(payload []byte, size int) ([]Envelope, error) {
    if size <= 0 {
        return nil, fmt.Errorf("chunk: invalid chunk size %d", size)
    }
    if len(payload) == 0 {
        return []Envelope{{Seq: 0, Total: 1, Data: []byte{}}}, nil
    }
    total := (len(payload) + size - 1) / size
    out := make([]Envelope, 0, total)
    for i := 0; i < total; i++ {
        start := i * size
        end := start + size
        if end > len(payload) { end = len(payload) }
        e := Envelope{Seq: uint32(i), Total: uint32(total)}
        e.Data = append([]byte(nil), payload[start:end]...)
        out = append(out, e)
    }
    return out, nil
}

// Merge reconstructs the payload from a complete envelope set. Order of the
// input slice does not matter; concatenation is by Seq. An incomplete or
// inconsistent set fails with *IncompleteSetError or a plain error.
func Merge(envs []Envelope) ([]byte, error) {
    if len(envs) == 0 {
        return nil, fmt.Errorf("chunk: no envelopes")
    }
    total := envs[0].Total
    if total == 0 {
        return nil, fmt.Errorf("chunk: zero total")
    }
    bySeq := make(map[uint32][]byte, len(envs))
    for _, e := range envs {
        if e.Total != total {
            return nil, fmt.Errorf("chunk: total mismatch: %d vs %d", e.Total, total)
        }
        if e.Seq >= total {
            return nil, fmt.Errorf("chunk: sequence %d out of range (total %d)", e.Seq, total)
        }
        bySeq[e.Seq] = e.Data
    }
    if uint32(len(bySeq)) != total {
        return nil, missingError(bySeq, total)
    }
    var n int
    for _, d := range bySeq { n += len(d) }
    buf := make([]byte, 0, n)
    for i := uint32(0); i < total; i++ {
        buf = append(buf, bySeq[i]...)
    }
    return buf, nil
}

// IncompleteSetError reports which sequences of [0,Total) never arrived.
type IncompleteSetError struct {
    Total   uint32
    Missing []uint32
}

func (e *IncompleteSetError) Error() string {
    parts := make([]string, len(e.Missing))
    for i, s := range e.Missing { parts[i] = fmt.Sprintf("%d", s) }
    return fmt.Sprintf("chunk: incomplete set: missing %s of %d", strings.Join(parts, ","), e.Total)
}

func missingError(bySeq map[uint32][]byte, total uint32) *IncompleteSetError {
    miss := make([]uint32, 0, total)
    for i := uint32(0); i < total; i++ {
        if _, ok := bySeq[i]; !ok { miss = append(miss, i) }
    }
    sort.Slice(miss, func(i, j int) bool { return miss[i] < miss[j] })
    return &IncompleteSetError{Total: total, Missing: miss}
}
