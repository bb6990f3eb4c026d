// Package radio implements the short-range radio channel. The roles are
// asymmetric per operation: the sender advertises a well-known service and
// serves the token characteristic, the receiver scans, connects to the
// first responder, drains the chunk frames and disconnects.
package radio

import (
    "context"
    "errors"
    "fmt"
    "io"
    "time"

    "go.uber.org/zap"

    "tokentap/pkg/channel"
    "tokentap/pkg/chunk"
    "tokentap/pkg/codec"
)

// TokenServiceUUID identifies the token exchange service in advertisements.
const TokenServiceUUID = "b3f1c0de-7a7e-4e0e-9c2a-5d1f08c90001"

// Defaults. The chunk budget stays under a negotiated 512-byte MTU with
// room for the envelope framing; the payload ceiling is a design choice far
// above near-field's.
const (
    DefaultChunkSize        = 480
    DefaultMaxPayload       = 512 * 1024
    DefaultDiscoveryTimeout = 10 * time.Second
)

// Radio is the hardware handle covering both roles. Open/Close scope one
// operation; the handle is never held across operations.
type Radio interface {
    // Probe reports adapter presence and permission without side effects.
    Probe(ctx context.Context) error
    Open(ctx context.Context) error
    Close() error

    // Advertise exposes serviceID and serves frames to one connecting
    // central, in order, one frame per characteristic read. It blocks until
    // every frame was read or ctx ends.
    Advertise(ctx context.Context, serviceID string, frames [][]byte) error

    // Scan looks for the first peer advertising serviceID. It returns the
    // peer's device id, or "" with a nil error when the scan window closed
    // with zero responders. A non-nil error is a hardware-level failure.
    Scan(ctx context.Context, serviceID string) (string, error)

    // Connect opens a link to a discovered peer.
    Connect(ctx context.Context, device string) (Conn, error)
}

// Conn is one established link. ReadFrame returns io.EOF after the last
// frame; any other failure means the link dropped.
type Conn interface {
    ReadFrame(ctx context.Context) ([]byte, error)
    Close() error
}

// Config tunes the channel. Zero values take defaults.
type Config struct {
    ChunkSize        int
    MaxPayloadSize   int
    DiscoveryTimeout time.Duration
}

// Channel implements channel.Channel over a Radio.
type Channel struct {
    dev  Radio
    cfg  Config
    caps channel.Capabilities
    em   *channel.Emitter
    gate *channel.Gate
    cc   codec.Codec
    log  *zap.Logger
}

func New(dev Radio, cfg Config, log *zap.Logger) *Channel {
    if log == nil { log = zap.NewNop() }
    if cfg.ChunkSize <= 0 { cfg.ChunkSize = DefaultChunkSize }
    if cfg.MaxPayloadSize <= 0 { cfg.MaxPayloadSize = DefaultMaxPayload }
    if cfg.DiscoveryTimeout <= 0 { cfg.DiscoveryTimeout = DefaultDiscoveryTimeout }
    em := channel.NewEmitter()
    return &Channel{
        dev: dev,
        cfg: cfg,
        caps: channel.Capabilities{
            CanSend:                 true,
            CanReceive:              true,
            MaxPayloadSize:          cfg.MaxPayloadSize,
            RequiresPairing:         true,
            SupportsMultipleDevices: true,
        },
        em:   em,
        gate: channel.NewGate(channel.MediumRadio, em, log),
        cc:   codec.MustCBOR(),
        log:  log.Named("radio"),
    }
}

func (c *Channel) Medium() channel.Medium             { return channel.MediumRadio }
func (c *Channel) Capabilities() channel.Capabilities { return c.caps }
func (c *Channel) Status() channel.Status             { return c.gate.Status() }

func (c *Channel) Available(ctx context.Context) bool {
    return c.dev != nil && c.dev.Probe(ctx) == nil
}

func (c *Channel) Initialize(ctx context.Context) error {
    if c.gate.Initialized() { return nil }
    if c.dev == nil {
        return fmt.Errorf("no radio adapter: %w", channel.ErrUnavailable)
    }
    if err := c.dev.Probe(ctx); err != nil {
        return fmt.Errorf("radio probe: %w", err)
    }
    c.gate.MarkReady()
    return nil
}

func (c *Channel) Shutdown(ctx context.Context) error {
    c.gate.Drain()
    c.gate.MarkIdle()
    return nil
}

func (c *Channel) Cancel()                           { c.gate.Cancel() }
func (c *Channel) Subscribe(fn channel.Listener) int { return c.em.Subscribe(fn) }
func (c *Channel) Unsubscribe(id int)                { c.em.Unsubscribe(id) }

// Send advertises the service and serves the chunked payload until the
// peer drained every frame.
func (c *Channel) Send(ctx context.Context, payload []byte, opts channel.SendOptions) channel.SendResult {
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
        c.em.Emit(channel.Event{Kind: channel.EventSendComplete, Medium: channel.MediumRadio})
        c.log.Info("radio send complete", zap.Int("bytes", sent), zap.Duration("took", d))
    }
    return res
}

func (c *Channel) doSend(ctx context.Context, payload []byte) (int, error) {
    envs, err := chunk.Split(payload, c.cfg.ChunkSize)
    if err != nil {
        return 0, err
    }
    frames := make([][]byte, len(envs))
    for i, e := range envs {
        if frames[i], err = c.cc.Marshal(e); err != nil {
            return 0, fmt.Errorf("encode chunk %d: %w", e.Seq, err)
        }
    }
    if err := c.dev.Open(ctx); err != nil {
        return 0, fmt.Errorf("open radio: %w", err)
    }
    defer c.dev.Close()

    c.log.Debug("advertising", zap.String("service", TokenServiceUUID), zap.Int("frames", len(frames)))
    if err := c.dev.Advertise(ctx, TokenServiceUUID, frames); err != nil {
        return 0, err
    }
    return len(payload), nil
}

// Receive scans for an advertising sender, connects to the first responder
// and drains the chunk frames. Exactly one device is paired with per
// operation.
func (c *Channel) Receive(ctx context.Context, opts channel.ReceiveOptions) channel.ReceiveResult {
    op, err := c.gate.Begin(ctx, channel.StatusConnecting, opts.Timeout)
    if err != nil {
        return channel.ReceiveResult{Err: err}
    }
    payload, err := c.doReceive(op.Ctx())
    d, err := op.Done(err)
    res := channel.ReceiveResult{Success: err == nil, Payload: payload, BytesReceived: len(payload), Duration: d, Err: err}
    if res.Success {
        c.em.Emit(channel.Event{Kind: channel.EventDataReceived, Medium: channel.MediumRadio, Payload: payload})
        c.log.Info("radio receive complete", zap.Int("bytes", len(payload)), zap.Duration("took", d))
    }
    return res
}

func (c *Channel) doReceive(ctx context.Context) ([]byte, error) {
    if err := c.dev.Open(ctx); err != nil {
        return nil, fmt.Errorf("open radio: %w", err)
    }
    defer c.dev.Close()

    scanCtx, cancel := context.WithTimeout(ctx, c.cfg.DiscoveryTimeout)
    device, err := c.dev.Scan(scanCtx, TokenServiceUUID)
    cancel()
    if err != nil {
        // Distinguish the operation's own deadline from the scan window.
        if ctx.Err() != nil { return nil, ctx.Err() }
        return nil, fmt.Errorf("scan: %w", err)
    }
    if device == "" {
        if ctx.Err() != nil { return nil, ctx.Err() }
        return nil, channel.ErrNoDeviceFound
    }
    c.em.Emit(channel.Event{Kind: channel.EventDeviceDiscovered, Medium: channel.MediumRadio, Device: device})

    conn, err := c.dev.Connect(ctx, device)
    if err != nil {
        return nil, fmt.Errorf("connect %s: %w", device, channel.ErrConnectionLost)
    }
    defer conn.Close()
    c.gate.SetStatus(channel.StatusConnected)
    c.em.Emit(channel.Event{Kind: channel.EventConnectionEstablished, Medium: channel.MediumRadio, Device: device})
    c.gate.SetStatus(channel.StatusReceiving)

    asm := chunk.NewAssembler()
    for !asm.Complete() {
        if err := ctx.Err(); err != nil { return nil, err }
        frame, err := conn.ReadFrame(ctx)
        if errors.Is(err, io.EOF) {
            break
        }
        if err != nil {
            if ctx.Err() != nil { return nil, ctx.Err() }
            c.em.Emit(channel.Event{Kind: channel.EventConnectionLost, Medium: channel.MediumRadio, Device: device})
            return nil, fmt.Errorf("read frame: %w", channel.ErrConnectionLost)
        }
        var env chunk.Envelope
        if err := c.cc.Unmarshal(frame, &env); err != nil {
            return nil, fmt.Errorf("decode chunk frame: %w", err)
        }
        if _, err := asm.Add(env); err != nil {
            return nil, err
        }
    }
    return asm.Payload()
}
