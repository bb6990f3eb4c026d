// Package visual implements the camera-readable code channel. Small
// payloads render as one static code; larger ones as an animated envelope
// sequence cycled at a fixed display interval. The receiver scans
// continuously and tolerates re-seeing frames, since the animation wraps.
package visual

import (
    "context"
    "fmt"
    "time"

    "go.uber.org/zap"

    "tokentap/pkg/channel"
    "tokentap/pkg/chunk"
    "tokentap/pkg/codec"
)

// Frame header flags; the first byte of every rendered frame.
const (
    frameFlagChunked     = 1 << 0
    frameFlagTransformed = 1 << 1
)

// Defaults. FrameCapacity approximates a dense single code; the payload
// ceiling keeps animations to a scannable length.
const (
    DefaultFrameCapacity   = 2048
    DefaultMaxPayload      = 64 * 1024
    DefaultDisplayInterval = 250 * time.Millisecond
    DefaultSendCycles      = 2
)

// Display renders one code frame at a time, replacing the previous frame.
type Display interface {
    Show(ctx context.Context, frame []byte) error
    Clear() error
}

// Scanner decodes code frames from the camera. ScanFrame blocks until a
// frame was decoded or ctx ends.
type Scanner interface {
    ScanFrame(ctx context.Context) ([]byte, error)
}

// Optics is the visual hardware handle: a display, a camera, or both.
// Read-only hardware returns ErrUnavailable from DisplaySide.
type Optics interface {
    // Probe reports camera/display access without side effects.
    Probe(ctx context.Context) error
    Open(ctx context.Context) error
    Close() error

    DisplaySide() (Display, error)
    ScannerSide() (Scanner, error)
}

// Config tunes the channel. Zero values take defaults.
type Config struct {
    FrameCapacity   int
    MaxPayloadSize  int
    DisplayInterval time.Duration
    SendCycles      int
    Transform       Transform // nil disables the optional transform
}

// Channel implements channel.Channel over Optics.
type Channel struct {
    dev  Optics
    cfg  Config
    caps channel.Capabilities
    em   *channel.Emitter
    gate *channel.Gate
    cc   codec.Codec
    log  *zap.Logger
}

func New(dev Optics, cfg Config, log *zap.Logger) *Channel {
    if log == nil { log = zap.NewNop() }
    if cfg.FrameCapacity <= 0 { cfg.FrameCapacity = DefaultFrameCapacity }
    if cfg.MaxPayloadSize <= 0 { cfg.MaxPayloadSize = DefaultMaxPayload }
    if cfg.DisplayInterval <= 0 { cfg.DisplayInterval = DefaultDisplayInterval }
    if cfg.SendCycles <= 0 { cfg.SendCycles = DefaultSendCycles }
    em := channel.NewEmitter()
    c := &Channel{
        dev: dev,
        cfg: cfg,
        caps: channel.Capabilities{
            CanSend:        true,
            CanReceive:     true,
            MaxPayloadSize: cfg.MaxPayloadSize,
        },
        em:   em,
        gate: channel.NewGate(channel.MediumVisualCode, em, log),
        cc:   codec.MustCBOR(),
        log:  log.Named("visual"),
    }
    if dev != nil {
        if _, err := dev.DisplaySide(); err != nil { c.caps.CanSend = false }
        if _, err := dev.ScannerSide(); err != nil { c.caps.CanReceive = false }
    }
    return c
}

func (c *Channel) Medium() channel.Medium             { return channel.MediumVisualCode }
func (c *Channel) Capabilities() channel.Capabilities { return c.caps }
func (c *Channel) Status() channel.Status             { return c.gate.Status() }

func (c *Channel) Available(ctx context.Context) bool {
    return c.dev != nil && c.dev.Probe(ctx) == nil
}

func (c *Channel) Initialize(ctx context.Context) error {
    if c.gate.Initialized() { return nil }
    if c.dev == nil {
        return fmt.Errorf("no visual hardware: %w", channel.ErrUnavailable)
    }
    if err := c.dev.Probe(ctx); err != nil {
        return fmt.Errorf("visual probe: %w", err)
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

// EstimateFrames is advisory: how many code frames a payload of n bytes
// needs after framing overhead, ignoring the transform. It only informs the
// single-vs-animated decision, never correctness.
func (c *Channel) EstimateFrames(n int) int {
    if n <= c.cfg.FrameCapacity { return 1 }
    per := c.chunkBudget()
    return (n + per - 1) / per
}

// chunkBudget leaves headroom inside FrameCapacity for the frame flag byte
// and the envelope encoding around Data.
func (c *Channel) chunkBudget() int {
    b := c.cfg.FrameCapacity - 64
    if b < 1 { b = 1 }
    return b
}

// Send renders the payload as one code or an animated sequence.
func (c *Channel) Send(ctx context.Context, payload []byte, opts channel.SendOptions) channel.SendResult {
    if !c.caps.CanSend {
        return channel.SendResult{Err: fmt.Errorf("display not supported: %w", channel.ErrUnavailable)}
    }
    if len(payload) > c.caps.MaxPayloadSize {
        return channel.SendResult{Err: &channel.PayloadTooLargeError{Size: len(payload), Max: c.caps.MaxPayloadSize}}
    }
    op, err := c.gate.Begin(ctx, channel.StatusSending, opts.Timeout)
    if err != nil {
        return channel.SendResult{Err: err}
    }
    sent, err := c.doSend(op.Ctx(), payload, opts.Compress)
    d, err := op.Done(err)
    res := channel.SendResult{Success: err == nil, BytesTransferred: sent, Duration: d, Err: err}
    if res.Success {
        c.em.Emit(channel.Event{Kind: channel.EventSendComplete, Medium: channel.MediumVisualCode})
        c.log.Info("visual send complete", zap.Int("bytes", sent), zap.Duration("took", d))
    }
    return res
}

func (c *Channel) doSend(ctx context.Context, payload []byte, compress bool) (int, error) {
    frames, err := c.buildFrames(payload, compress)
    if err != nil {
        return 0, err
    }
    if err := c.dev.Open(ctx); err != nil {
        return 0, fmt.Errorf("open visual hardware: %w", err)
    }
    defer c.dev.Close()
    disp, err := c.dev.DisplaySide()
    if err != nil {
        return 0, err
    }
    defer disp.Clear()

    cycles := c.cfg.SendCycles
    if len(frames) == 1 { cycles = 1 }
    c.log.Debug("rendering", zap.Int("frames", len(frames)), zap.Int("cycles", cycles))
    tick := time.NewTimer(0)
    defer tick.Stop()
    for cycle := 0; cycle < cycles; cycle++ {
        for _, f := range frames {
            if err := disp.Show(ctx, f); err != nil {
                return 0, err
            }
            tick.Reset(c.cfg.DisplayInterval)
            select {
            case <-ctx.Done():
                return 0, ctx.Err()
            case <-tick.C:
            }
        }
    }
    return len(payload), nil
}

// buildFrames applies the optional transform and frames the result: a
// single raw-body frame when it fits, otherwise one frame per chunk
// envelope.
func (c *Channel) buildFrames(payload []byte, compress bool) ([][]byte, error) {
    body := payload
    var flags byte
    if compress && c.cfg.Transform != nil {
        t, err := c.cfg.Transform.Apply(payload)
        if err != nil {
            return nil, fmt.Errorf("%s transform: %w", c.cfg.Transform.Name(), err)
        }
        body = t
        flags |= frameFlagTransformed
    }
    if len(body) <= c.cfg.FrameCapacity {
        return [][]byte{frame(flags, body)}, nil
    }
    envs, err := chunk.Split(body, c.chunkBudget())
    if err != nil {
        return nil, err
    }
    out := make([][]byte, len(envs))
    for i, e := range envs {
        enc, err := c.cc.Marshal(e)
        if err != nil {
            return nil, fmt.Errorf("encode frame %d: %w", e.Seq, err)
        }
        out[i] = frame(flags|frameFlagChunked, enc)
    }
    return out, nil
}

func frame(flags byte, body []byte) []byte {
    f := make([]byte, 1+len(body))
    f[0] = flags
    copy(f[1:], body)
    return f
}

// Receive scans until one complete code, or a full envelope set, was read.
func (c *Channel) Receive(ctx context.Context, opts channel.ReceiveOptions) channel.ReceiveResult {
    if !c.caps.CanReceive {
        return channel.ReceiveResult{Err: fmt.Errorf("camera not supported: %w", channel.ErrUnavailable)}
    }
    op, err := c.gate.Begin(ctx, channel.StatusReceiving, opts.Timeout)
    if err != nil {
        return channel.ReceiveResult{Err: err}
    }
    payload, err := c.doReceive(op.Ctx())
    d, err := op.Done(err)
    res := channel.ReceiveResult{Success: err == nil, Payload: payload, BytesReceived: len(payload), Duration: d, Err: err}
    if res.Success {
        c.em.Emit(channel.Event{Kind: channel.EventDataReceived, Medium: channel.MediumVisualCode, Payload: payload})
        c.log.Info("visual receive complete", zap.Int("bytes", len(payload)), zap.Duration("took", d))
    }
    return res
}

func (c *Channel) doReceive(ctx context.Context) ([]byte, error) {
    if err := c.dev.Open(ctx); err != nil {
        return nil, fmt.Errorf("open visual hardware: %w", err)
    }
    defer c.dev.Close()
    scan, err := c.dev.ScannerSide()
    if err != nil {
        return nil, err
    }

    asm := chunk.NewAssembler()
    for {
        if err := ctx.Err(); err != nil { return nil, err }
        f, err := scan.ScanFrame(ctx)
        if err != nil {
            if ctx.Err() != nil { return nil, ctx.Err() }
            return nil, fmt.Errorf("scan frame: %w", err)
        }
        if len(f) == 0 {
            continue
        }
        flags, body := f[0], f[1:]
        if flags&frameFlagChunked == 0 {
            return c.finish(flags, body)
        }
        var env chunk.Envelope
        if err := c.cc.Unmarshal(body, &env); err != nil {
            return nil, fmt.Errorf("decode frame: %w", err)
        }
        // Wrap-around repeats are no-ops in the assembler.
        if _, err := asm.Add(env); err != nil {
            return nil, err
        }
        if asm.Complete() {
            full, err := asm.Payload()
            if err != nil {
                return nil, err
            }
            return c.finish(flags, full)
        }
    }
}

func (c *Channel) finish(flags byte, body []byte) ([]byte, error) {
    if flags&frameFlagTransformed == 0 {
        return body, nil
    }
    if c.cfg.Transform == nil {
        return nil, fmt.Errorf("frame marked transformed but no transform configured")
    }
    out, err := c.cfg.Transform.Invert(body)
    if err != nil {
        return nil, fmt.Errorf("%s invert: %w", c.cfg.Transform.Name(), err)
    }
    return out, nil
}
