package chunk

import (
    "bytes"
    "fmt"
)

// Assembler accumulates envelopes for one payload, keyed by sequence, so
// out-of-order and re-transmitted arrivals are handled idempotently.
// A re-send with identical bytes is a no-op; the same sequence with different
// bytes is a protocol violation and is rejected rather than overwritten.
type Assembler struct {
    total uint32
    parts map[uint32][]byte
}

func NewAssembler() *Assembler {
    return &Assembler{parts: make(map[uint32][]byte)}
}

// Add stores one envelope. It returns true when the arrival was new (not a
// duplicate), so callers can count progress.
func (a *Assembler) Add(e Envelope) (bool, error) {
    if e.Total == 0 {
        return false, fmt.Errorf("chunk: zero total")
    }
    if e.Seq >= e.Total {
        return false, fmt.Errorf("chunk: sequence %d out of range (total %d)", e.Seq, e.Total)
    }
    if a.total == 0 {
        a.total = e.Total
    } else if e.Total != a.total {
        return false, fmt.Errorf("chunk: total mismatch: %d vs %d", e.Total, a.total)
    }
    if prev, ok := a.parts[e.Seq]; ok {
        if bytes.Equal(prev, e.Data) { return false, nil }
        return false, fmt.Errorf("chunk: conflicting re-send of sequence %d", e.Seq)
    }
    a.parts[e.Seq] = append([]byte(nil), e.Data...)
    return true, nil
}

// Complete reports whether the full set {0..Total-1} has arrived.
func (a *Assembler) Complete() bool {
    return a.total != 0 && uint32(len(a.parts)) == a.total
}

// Received returns how many distinct sequences have arrived.
func (a *Assembler) Received() int { return len(a.parts) }

// Total returns the expected envelope count, or 0 before the first arrival.
func (a *Assembler) Total() uint32 { return a.total }

// Payload merges the accumulated set. Forcing completion before every
// sequence arrived fails with *IncompleteSetError naming the gaps.
func (a *Assembler) Payload() ([]byte, error) {
    if a.total == 0 {
        return nil, fmt.Errorf("chunk: no envelopes")
    }
    if !a.Complete() {
        return nil, missingError(a.parts, a.total)
    }
    var n int
    for _, d := range a.parts { n += len(d) }
    buf := make([]byte, 0, n)
    for i := uint32(0); i < a.total; i++ {
        buf = append(buf, a.parts[i]...)
    }
    return buf, nil
}

// Reset discards all accumulated state so the assembler can be reused.
func (a *Assembler) Reset() {
    a.total = 0
    a.parts = make(map[uint32][]byte)
}
