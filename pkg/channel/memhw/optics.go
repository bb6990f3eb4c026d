package memhw

import (
    "context"
    "fmt"

    "tokentap/pkg/channel"
    "tokentap/pkg/channel/visual"
)

// frameBufDepth bounds the simulated capture buffer. Shown frames beyond
// the buffer are dropped, like a camera missing frames.
const frameBufDepth = 1024

// OpticsDevice simulates a display plus camera. A pair shares a frame bus:
// whatever one side shows, the other side's scanner captures in order.
type OpticsDevice struct {
    hwState
    out        chan []byte // frames this side displays
    in         chan []byte // frames this side's camera captures
    canDisplay bool
    canScan    bool
}

// NewOpticsPair returns two optics devices facing each other.
func NewOpticsPair() (*OpticsDevice, *OpticsDevice) {
    a2b := make(chan []byte, frameBufDepth)
    b2a := make(chan []byte, frameBufDepth)
    a := &OpticsDevice{hwState: newHWState(), out: a2b, in: b2a, canDisplay: true, canScan: true}
    b := &OpticsDevice{hwState: newHWState(), out: b2a, in: a2b, canDisplay: true, canScan: true}
    return a, b
}

// SetSides restricts the device, e.g. scan-only hardware with no display.
func (d *OpticsDevice) SetSides(canDisplay, canScan bool) {
    d.mu.Lock()
    d.canDisplay, d.canScan = canDisplay, canScan
    d.mu.Unlock()
}

func (d *OpticsDevice) Probe(ctx context.Context) error { return d.probe() }
func (d *OpticsDevice) Open(ctx context.Context) error  { return d.open(ctx) }
func (d *OpticsDevice) Close() error                    { return d.close() }

func (d *OpticsDevice) DisplaySide() (visual.Display, error) {
    d.mu.Lock()
    ok := d.canDisplay
    d.mu.Unlock()
    if !ok {
        return nil, fmt.Errorf("no display: %w", channel.ErrUnavailable)
    }
    return (*opticsDisplay)(d), nil
}

func (d *OpticsDevice) ScannerSide() (visual.Scanner, error) {
    d.mu.Lock()
    ok := d.canScan
    d.mu.Unlock()
    if !ok {
        return nil, fmt.Errorf("no camera: %w", channel.ErrUnavailable)
    }
    return (*opticsScanner)(d), nil
}

type opticsDisplay OpticsDevice

// Show publishes the frame to the facing camera. A full capture buffer
// drops the frame, as a real camera would miss it.
func (s *opticsDisplay) Show(ctx context.Context, frame []byte) error {
    if err := ctx.Err(); err != nil { return err }
    s.calls.Add(1)
    f := append([]byte(nil), frame...)
    select {
    case s.out <- f:
    default:
    }
    return nil
}

func (s *opticsDisplay) Clear() error { return nil }

type opticsScanner OpticsDevice

// ScanFrame blocks until the facing display showed a frame.
func (s *opticsScanner) ScanFrame(ctx context.Context) ([]byte, error) {
    s.calls.Add(1)
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    case f := <-s.in:
        return f, nil
    }
}
