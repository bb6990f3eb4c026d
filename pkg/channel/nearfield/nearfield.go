// Package nearfield implements the near-field tap channel: tag emulation on
// send, tag reading on receive. The two roles are asymmetric; hardware that
// cannot emulate still receives, so CanSend may be false while CanReceive is
// true.
package nearfield

import (
    "context"
    "encoding/hex"
    "fmt"
    "hash/adler32"

    "go.uber.org/zap"

    "tokentap/pkg/channel"
    "tokentap/pkg/codec"
)

// EnvelopeVersion is the wire version this implementation speaks.
const EnvelopeVersion = 1

const envelopeType = "token"

// DefaultMaxPayload is the practical single-tap ceiling. A tap carries the
// whole payload; there is no multi-tap chunked transfer.
const DefaultMaxPayload = 8 * 1024

// Envelope is the versioned near-field wire frame. Checksum is a rolling
// hash over Data for integrity only; authenticity is the token's own
// concern.
type Envelope struct {
    Version  uint32 `json:"version"`
    Type     string `json:"type"`
    Data     string `json:"data"`
    Checksum string `json:"checksum"`
}

// Checksum computes the hex form of the Adler-32 rolling hash over data.
func Checksum(data []byte) string {
    var b [4]byte
    s := adler32.Checksum(data)
    b[0], b[1], b[2], b[3] = byte(s>>24), byte(s>>16), byte(s>>8), byte(s)
    return hex.EncodeToString(b[:])
}

// DeviceInfo reports the hardware's role support.
type DeviceInfo struct {
    CanEmulate bool
    CanRead    bool
}

// TagDevice is the near-field hardware handle. Open/Close scope one session
// per operation; the handle is never held across operations.
type TagDevice interface {
    // Probe reports role support without side effects.
    Probe(ctx context.Context) (DeviceInfo, error)
    Open(ctx context.Context) error
    Close() error

    // Emulate presents msg as a readable tag and blocks until a reader
    // acknowledged the complete read or ctx ends. The read acknowledgment
    // is the transfer-completion signal for the emulation role.
    Emulate(ctx context.Context, msg []byte) error

    // ReadTag blocks until a tag is tapped and returns its message.
    ReadTag(ctx context.Context) ([]byte, error)
}

// Config tunes the channel. Zero values take defaults.
type Config struct {
    MaxPayloadSize int
}

// Channel implements channel.Channel over a TagDevice.
type Channel struct {
    dev  TagDevice
    caps channel.Capabilities
    em   *channel.Emitter
    gate *channel.Gate
    jc   codec.Codec
    log  *zap.Logger
}

// New constructs the near-field channel. Capabilities are fixed here from
// the device's probed role support; cap.CanSend stays false on read-only
// hardware.
func New(dev TagDevice, cfg Config, log *zap.Logger) *Channel {
    if log == nil { log = zap.NewNop() }
    max := cfg.MaxPayloadSize
    if max <= 0 { max = DefaultMaxPayload }
    em := channel.NewEmitter()
    c := &Channel{
        dev: dev,
        caps: channel.Capabilities{
            CanSend:        true,
            CanReceive:     true,
            MaxPayloadSize: max,
        },
        em:   em,
        gate: channel.NewGate(channel.MediumNearField, em, log),
        jc:   codec.JSON(),
        log:  log.Named("nearfield"),
    }
    if dev != nil {
        if info, err := dev.Probe(context.Background()); err == nil {
            c.caps.CanSend = info.CanEmulate
            c.caps.CanReceive = info.CanRead
        }
    }
    return c
}

func (c *Channel) Medium() channel.Medium             { return channel.MediumNearField }
func (c *Channel) Capabilities() channel.Capabilities { return c.caps }
func (c *Channel) Status() channel.Status             { return c.gate.Status() }

// Available probes the hardware without side effects.
func (c *Channel) Available(ctx context.Context) bool {
    if c.dev == nil { return false }
    _, err := c.dev.Probe(ctx)
    return err == nil
}

// Initialize claims the near-field adapter. Idempotent.
func (c *Channel) Initialize(ctx context.Context) error {
    if c.gate.Initialized() { return nil }
    if c.dev == nil {
        return fmt.Errorf("no near-field device: %w", channel.ErrUnavailable)
    }
    if _, err := c.dev.Probe(ctx); err != nil {
        return fmt.Errorf("near-field probe: %w", err)
    }
    c.gate.MarkReady()
    return nil
}

// Shutdown cancels any in-flight operation and returns the channel to Idle.
func (c *Channel) Shutdown(ctx context.Context) error {
    c.gate.Drain()
    c.gate.MarkIdle()
    return nil
}

func (c *Channel) Cancel()                       { c.gate.Cancel() }
func (c *Channel) Subscribe(fn channel.Listener) int { return c.em.Subscribe(fn) }
func (c *Channel) Unsubscribe(id int)            { c.em.Unsubscribe(id) }

// Send emulates a tag carrying the payload and waits for the reader's
// acknowledgment.
func (c *Channel) Send(ctx context.Context, payload []byte, opts channel.SendOptions) channel.SendResult {
    if !c.caps.CanSend {
        return channel.SendResult{Err: fmt.Errorf("tag emulation not supported: %w", channel.ErrUnavailable)}
    }
    if len(payload) > c.caps.MaxPayloadSize {
        return channel.SendResult{Err: &channel.PayloadTooLargeError{Size: len(payload), Max: c.caps.MaxPayloadSize}}
    }
    op, err := c.gate.Begin(ctx, channel.StatusSending, opts.Timeout)
    if err != nil {
        return channel.SendResult{Err: err}
    }
    sent, err := c.doSend(op.Ctx(), payload)
    d, err := op.Done(err)
    res := channel.SendResult{Success: err == nil, BytesTransferred: sent, Duration: d, Err: err}
    if res.Success {
        c.em.Emit(channel.Event{Kind: channel.EventSendComplete, Medium: channel.MediumNearField})
        c.log.Info("tap send complete", zap.Int("bytes", sent), zap.Duration("took", d))
    }
    return res
}

func (c *Channel) doSend(ctx context.Context, payload []byte) (int, error) {
    if err := c.dev.Open(ctx); err != nil {
        return 0, fmt.Errorf("open near-field session: %w", err)
    }
    defer c.dev.Close()

    env := Envelope{Version: EnvelopeVersion, Type: envelopeType, Data: string(payload), Checksum: Checksum(payload)}
    frame, err := c.jc.Marshal(env)
    if err != nil {
        return 0, fmt.Errorf("encode envelope: %w", err)
    }
    if err := c.dev.Emulate(ctx, frame); err != nil {
        return 0, err
    }
    return len(payload), nil
}

// Receive reads one tapped tag and validates its envelope.
func (c *Channel) Receive(ctx context.Context, opts channel.ReceiveOptions) channel.ReceiveResult {
    if !c.caps.CanReceive {
        return channel.ReceiveResult{Err: fmt.Errorf("tag reading not supported: %w", channel.ErrUnavailable)}
    }
    op, err := c.gate.Begin(ctx, channel.StatusReceiving, opts.Timeout)
    if err != nil {
        return channel.ReceiveResult{Err: err}
    }
    payload, err := c.doReceive(op.Ctx())
    d, err := op.Done(err)
    res := channel.ReceiveResult{Success: err == nil, Payload: payload, BytesReceived: len(payload), Duration: d, Err: err}
    if res.Success {
        c.em.Emit(channel.Event{Kind: channel.EventDataReceived, Medium: channel.MediumNearField, Payload: payload})
        c.log.Info("tap receive complete", zap.Int("bytes", len(payload)), zap.Duration("took", d))
    }
    return res
}

func (c *Channel) doReceive(ctx context.Context) ([]byte, error) {
    if err := c.dev.Open(ctx); err != nil {
        return nil, fmt.Errorf("open near-field session: %w", err)
    }
    defer c.dev.Close()

    frame, err := c.dev.ReadTag(ctx)
    if err != nil {
        return nil, err
    }
    var env Envelope
    if err := c.jc.Unmarshal(frame, &env); err != nil {
        return nil, fmt.Errorf("decode envelope: %w", err)
    }
    if env.Type != envelopeType {
        return nil, fmt.Errorf("unexpected frame type %q", env.Type)
    }
    if env.Version != EnvelopeVersion {
        return nil, fmt.Errorf("version %d: %w", env.Version, channel.ErrUnsupportedVersion)
    }
    payload := []byte(env.Data)
    if Checksum(payload) != env.Checksum {
        return nil, channel.ErrChecksumMismatch
    }
    return payload, nil
}
