package memhw

import (
    "context"

    "tokentap/pkg/channel/nearfield"
)

type tagTransfer struct {
    msg []byte
    ack chan struct{}
}

// tagLink is the shared medium between two paired tag devices: one side
// emulates, the other taps and reads. The read acknowledgment travels back
// over ack, giving the emulation role a genuine completion signal.
type tagLink struct {
    ch chan tagTransfer
}

// TagDevice simulates a near-field adapter.
type TagDevice struct {
    hwState
    link       *tagLink
    canEmulate bool
    canRead    bool
}

// NewTagPair returns two tag devices wired to each other. Either side can
// emulate or read until restricted with SetRoles.
func NewTagPair() (*TagDevice, *TagDevice) {
    l := &tagLink{ch: make(chan tagTransfer)}
    a := &TagDevice{hwState: newHWState(), link: l, canEmulate: true, canRead: true}
    b := &TagDevice{hwState: newHWState(), link: l, canEmulate: true, canRead: true}
    return a, b
}

// SetRoles restricts the device's role support, e.g. read-only hardware.
func (d *TagDevice) SetRoles(canEmulate, canRead bool) {
    d.mu.Lock()
    d.canEmulate, d.canRead = canEmulate, canRead
    d.mu.Unlock()
}

func (d *TagDevice) Probe(ctx context.Context) (nearfield.DeviceInfo, error) {
    if err := d.probe(); err != nil {
        return nearfield.DeviceInfo{}, err
    }
    d.mu.Lock()
    info := nearfield.DeviceInfo{CanEmulate: d.canEmulate, CanRead: d.canRead}
    d.mu.Unlock()
    return info, nil
}

func (d *TagDevice) Open(ctx context.Context) error { return d.open(ctx) }
func (d *TagDevice) Close() error                   { return d.close() }

// Emulate offers msg on the link and blocks until the paired reader
// acknowledged the complete read or ctx ends.
func (d *TagDevice) Emulate(ctx context.Context, msg []byte) error {
    d.calls.Add(1)
    t := tagTransfer{msg: append([]byte(nil), msg...), ack: make(chan struct{})}
    select {
    case <-ctx.Done():
        return ctx.Err()
    case d.link.ch <- t:
    }
    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-t.ack:
        return nil
    }
}

// ReadTag blocks until the paired side emulates, then acknowledges the
// read.
func (d *TagDevice) ReadTag(ctx context.Context) ([]byte, error) {
    d.calls.Add(1)
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    case t := <-d.link.ch:
        close(t.ack)
        return t.msg, nil
    }
}
