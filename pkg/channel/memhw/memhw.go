// Package memhw provides in-process simulated hardware for every medium:
// a paired tag link for near-field, a shared ether for radio, and a
// display↔scanner frame bus for visual codes. It backs the loopback demo
// and the channel tests; devices count their hardware interactions so tests
// can assert that a rejected operation never touched hardware.
package memhw

import (
    "context"
    "fmt"
    "sync"
    "sync/atomic"

    "tokentap/pkg/channel"
)

// hwState is the common probe/availability core shared by all simulated
// devices.
type hwState struct {
    mu         sync.Mutex
    available  bool
    denied     bool
    opened     bool
    calls      atomic.Int64
}

func newHWState() hwState { return hwState{available: true} }

// SetAvailable toggles the simulated hardware presence.
func (h *hwState) SetAvailable(ok bool) {
    h.mu.Lock()
    h.available = ok
    h.mu.Unlock()
}

// SetPermissionDenied simulates a refused OS-level permission prompt.
func (h *hwState) SetPermissionDenied(denied bool) {
    h.mu.Lock()
    h.denied = denied
    h.mu.Unlock()
}

// HardwareCalls reports how many hardware interactions happened (probes
// excluded; they are side-effect-free).
func (h *hwState) HardwareCalls() int64 { return h.calls.Load() }

func (h *hwState) probe() error {
    h.mu.Lock()
    defer h.mu.Unlock()
    if !h.available {
        return fmt.Errorf("hardware absent: %w", channel.ErrUnavailable)
    }
    if h.denied {
        return channel.ErrPermissionDenied
    }
    return nil
}

func (h *hwState) open(ctx context.Context) error {
    if err := ctx.Err(); err != nil { return err }
    if err := h.probe(); err != nil { return err }
    h.calls.Add(1)
    h.mu.Lock()
    h.opened = true
    h.mu.Unlock()
    return nil
}

func (h *hwState) close() error {
    h.mu.Lock()
    h.opened = false
    h.mu.Unlock()
    return nil
}
