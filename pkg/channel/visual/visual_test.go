package visual_test

import (
    "bytes"
    "context"
    "errors"
    "testing"
    "time"

    "tokentap/pkg/channel"
    "tokentap/pkg/channel/memhw"
    "tokentap/pkg/channel/visual"
)

func fastConfig() visual.Config {
    return visual.Config{
        FrameCapacity:   128,
        DisplayInterval: time.Millisecond,
        SendCycles:      2,
        Transform:       visual.Deflate(),
    }
}

func newPair(t *testing.T, cfg visual.Config) (*visual.Channel, *visual.Channel, *memhw.OpticsDevice, *memhw.OpticsDevice) {
    t.Helper()
    devA, devB := memhw.NewOpticsPair()
    a := visual.New(devA, cfg, nil)
    b := visual.New(devB, cfg, nil)
    ctx := context.Background()
    if err := a.Initialize(ctx); err != nil { t.Fatalf("init a: %v", err) }
    if err := b.Initialize(ctx); err != nil { t.Fatalf("init b: %v", err) }
    return a, b, devA, devB
}

func TestVisualSingleCodeRoundtrip(t *testing.T) {
    a, b, _, _ := newPair(t, fastConfig())
    ctx := context.Background()

    payload := []byte("small token")
    recvCh := make(chan channel.ReceiveResult, 1)
    go func() { recvCh <- b.Receive(ctx, channel.ReceiveOptions{Timeout: 5 * time.Second}) }()
    // Give the scanner a moment to open before frames start flowing.
    time.Sleep(5 * time.Millisecond)

    res := a.Send(ctx, payload, channel.SendOptions{Timeout: 5 * time.Second})
    if res.Err != nil { t.Fatalf("send: %v", res.Err) }

    recv := <-recvCh
    if recv.Err != nil { t.Fatalf("receive: %v", recv.Err) }
    if !bytes.Equal(recv.Payload, payload) { t.Fatalf("payload mismatch: %q", recv.Payload) }
}

func TestVisualAnimatedRoundtripWithRepeats(t *testing.T) {
    a, b, _, _ := newPair(t, fastConfig())
    ctx := context.Background()

    // Random-ish bytes defeat the transform, forcing the animated path.
    payload := make([]byte, 1000)
    for i := range payload { payload[i] = byte(i*31 + i/7) }
    if a.EstimateFrames(len(payload)) < 2 {
        t.Fatalf("payload unexpectedly fits a single frame")
    }

    recvCh := make(chan channel.ReceiveResult, 1)
    go func() { recvCh <- b.Receive(ctx, channel.ReceiveOptions{Timeout: 10 * time.Second}) }()
    time.Sleep(5 * time.Millisecond)

    // Two display cycles: the receiver finishes during the first and every
    // frame of the second arrives as an already-seen no-op.
    res := a.Send(ctx, payload, channel.SendOptions{Timeout: 10 * time.Second})
    if res.Err != nil { t.Fatalf("send: %v", res.Err) }

    recv := <-recvCh
    if recv.Err != nil { t.Fatalf("receive: %v", recv.Err) }
    if !bytes.Equal(recv.Payload, payload) { t.Fatalf("payload mismatch (%d bytes)", len(recv.Payload)) }
}

func TestVisualCompressedRoundtrip(t *testing.T) {
    a, b, _, _ := newPair(t, fastConfig())
    ctx := context.Background()

    payload := bytes.Repeat([]byte("cashu token chunk "), 60) // > FrameCapacity raw, compresses well
    recvCh := make(chan channel.ReceiveResult, 1)
    go func() { recvCh <- b.Receive(ctx, channel.ReceiveOptions{Timeout: 10 * time.Second}) }()
    time.Sleep(5 * time.Millisecond)

    res := a.Send(ctx, payload, channel.SendOptions{Timeout: 10 * time.Second, Compress: true})
    if res.Err != nil { t.Fatalf("send: %v", res.Err) }

    recv := <-recvCh
    if recv.Err != nil { t.Fatalf("receive: %v", recv.Err) }
    if !bytes.Equal(recv.Payload, payload) { t.Fatalf("payload mismatch after transform roundtrip") }
}

func TestVisualPayloadTooLargeSkipsHardware(t *testing.T) {
    devA, _ := memhw.NewOpticsPair()
    cfg := fastConfig()
    cfg.MaxPayloadSize = 256
    a := visual.New(devA, cfg, nil)
    if err := a.Initialize(context.Background()); err != nil { t.Fatalf("init: %v", err) }

    res := a.Send(context.Background(), make([]byte, 257), channel.SendOptions{})
    var tooBig *channel.PayloadTooLargeError
    if !errors.As(res.Err, &tooBig) { t.Fatalf("want PayloadTooLargeError, got %v", res.Err) }
    if n := devA.HardwareCalls(); n != 0 { t.Fatalf("hardware touched %d times", n) }
}

func TestVisualScanOnlyHardware(t *testing.T) {
    devA, _ := memhw.NewOpticsPair()
    devA.SetSides(false, true)
    a := visual.New(devA, fastConfig(), nil)

    caps := a.Capabilities()
    if caps.CanSend || !caps.CanReceive { t.Fatalf("caps = %+v, want scan-only", caps) }
    if err := a.Initialize(context.Background()); err != nil { t.Fatalf("init: %v", err) }
    res := a.Send(context.Background(), []byte("x"), channel.SendOptions{})
    if !errors.Is(res.Err, channel.ErrUnavailable) { t.Fatalf("want ErrUnavailable, got %v", res.Err) }
}

func TestVisualReceiveTimeout(t *testing.T) {
    _, b, _, _ := newPair(t, fastConfig())
    recv := b.Receive(context.Background(), channel.ReceiveOptions{Timeout: 20 * time.Millisecond})
    if !errors.Is(recv.Err, channel.ErrTimeout) { t.Fatalf("want ErrTimeout, got %v", recv.Err) }
    if b.Status() != channel.StatusReady { t.Fatalf("status = %v", b.Status()) }
}

func TestVisualCancelDuringScan(t *testing.T) {
    _, b, _, _ := newPair(t, fastConfig())
    done := make(chan channel.ReceiveResult, 1)
    go func() { done <- b.Receive(context.Background(), channel.ReceiveOptions{}) }()

    deadline := time.Now().Add(time.Second)
    for b.Status() != channel.StatusReceiving && time.Now().Before(deadline) {
        time.Sleep(time.Millisecond)
    }
    b.Cancel()
    recv := <-done
    if !errors.Is(recv.Err, channel.ErrCanceled) { t.Fatalf("want ErrCanceled, got %v", recv.Err) }
}

func TestVisualEstimateFrames(t *testing.T) {
    a, _, _, _ := newPair(t, fastConfig())
    if got := a.EstimateFrames(10); got != 1 { t.Fatalf("EstimateFrames(10) = %d", got) }
    if got := a.EstimateFrames(128); got != 1 { t.Fatalf("EstimateFrames(128) = %d", got) }
    if got := a.EstimateFrames(129); got < 2 { t.Fatalf("EstimateFrames(129) = %d", got) }
}

func TestDeflateTransformRoundtrip(t *testing.T) {
    tr := visual.Deflate()
    in := bytes.Repeat([]byte("the same phrase over and over "), 50)
    packed, err := tr.Apply(in)
    if err != nil { t.Fatalf("apply: %v", err) }
    if len(packed) >= len(in) { t.Fatalf("repetitive input did not shrink: %d -> %d", len(in), len(packed)) }
    out, err := tr.Invert(packed)
    if err != nil { t.Fatalf("invert: %v", err) }
    if !bytes.Equal(out, in) { t.Fatalf("transform not lossless") }
}

func TestDeflateTransformEmpty(t *testing.T) {
    tr := visual.Deflate()
    packed, err := tr.Apply(nil)
    if err != nil { t.Fatalf("apply: %v", err) }
    out, err := tr.Invert(packed)
    if err != nil { t.Fatalf("invert: %v", err) }
    if len(out) != 0 { t.Fatalf("empty roundtrip = %d bytes", len(out)) }
}
