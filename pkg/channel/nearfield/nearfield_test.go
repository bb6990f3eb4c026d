package nearfield_test

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "testing"
    "time"

    "tokentap/pkg/channel"
    "tokentap/pkg/channel/memhw"
    "tokentap/pkg/channel/nearfield"
)

func newPair(t *testing.T) (*nearfield.Channel, *nearfield.Channel, *memhw.TagDevice, *memhw.TagDevice) {
    t.Helper()
    devA, devB := memhw.NewTagPair()
    a := nearfield.New(devA, nearfield.Config{}, nil)
    b := nearfield.New(devB, nearfield.Config{}, nil)
    ctx := context.Background()
    if err := a.Initialize(ctx); err != nil { t.Fatalf("init a: %v", err) }
    if err := b.Initialize(ctx); err != nil { t.Fatalf("init b: %v", err) }
    return a, b, devA, devB
}

func TestTapRoundtrip(t *testing.T) {
    a, b, _, _ := newPair(t)
    ctx := context.Background()

    var gotEvents []channel.EventKind
    b.Subscribe(func(ev channel.Event) { gotEvents = append(gotEvents, ev.Kind) })

    payload := []byte("cashuAeyJ0b2tlbiI6W119")
    recvCh := make(chan channel.ReceiveResult, 1)
    go func() { recvCh <- b.Receive(ctx, channel.ReceiveOptions{Timeout: 5 * time.Second}) }()

    res := a.Send(ctx, payload, channel.SendOptions{Timeout: 5 * time.Second})
    if res.Err != nil { t.Fatalf("send: %v", res.Err) }
    if !res.Success || res.BytesTransferred != len(payload) {
        t.Fatalf("send result: %+v", res)
    }

    recv := <-recvCh
    if recv.Err != nil { t.Fatalf("receive: %v", recv.Err) }
    if !bytes.Equal(recv.Payload, payload) { t.Fatalf("payload mismatch: %q", recv.Payload) }

    if a.Status() != channel.StatusReady || b.Status() != channel.StatusReady {
        t.Fatalf("status after transfer: %v / %v", a.Status(), b.Status())
    }
    var sawData bool
    for _, k := range gotEvents {
        if k == channel.EventDataReceived { sawData = true }
    }
    if !sawData { t.Fatalf("no data-received event, got %v", gotEvents) }
}

func TestTapChecksumMismatch(t *testing.T) {
    _, b, devA, _ := newPair(t)
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()

    frame, _ := json.Marshal(nearfield.Envelope{
        Version:  nearfield.EnvelopeVersion,
        Type:     "token",
        Data:     "tampered",
        Checksum: "00000000",
    })
    go func() { _ = devA.Emulate(ctx, frame) }()

    recv := b.Receive(ctx, channel.ReceiveOptions{Timeout: 5 * time.Second})
    if !errors.Is(recv.Err, channel.ErrChecksumMismatch) {
        t.Fatalf("want ErrChecksumMismatch, got %v", recv.Err)
    }
    if b.Status() != channel.StatusReady { t.Fatalf("status = %v", b.Status()) }
}

func TestTapUnsupportedVersion(t *testing.T) {
    _, b, devA, _ := newPair(t)
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()

    frame, _ := json.Marshal(nearfield.Envelope{
        Version:  99,
        Type:     "token",
        Data:     "x",
        Checksum: nearfield.Checksum([]byte("x")),
    })
    go func() { _ = devA.Emulate(ctx, frame) }()

    recv := b.Receive(ctx, channel.ReceiveOptions{Timeout: 5 * time.Second})
    if !errors.Is(recv.Err, channel.ErrUnsupportedVersion) {
        t.Fatalf("want ErrUnsupportedVersion, got %v", recv.Err)
    }
}

func TestTapPayloadTooLargeSkipsHardware(t *testing.T) {
    devA, _ := memhw.NewTagPair()
    a := nearfield.New(devA, nearfield.Config{MaxPayloadSize: 64}, nil)
    if err := a.Initialize(context.Background()); err != nil { t.Fatalf("init: %v", err) }

    big := bytes.Repeat([]byte{1}, 65)
    res := a.Send(context.Background(), big, channel.SendOptions{})
    var tooBig *channel.PayloadTooLargeError
    if !errors.As(res.Err, &tooBig) { t.Fatalf("want PayloadTooLargeError, got %v", res.Err) }
    if tooBig.Size != 65 || tooBig.Max != 64 {
        t.Fatalf("sizes = %d/%d", tooBig.Size, tooBig.Max)
    }
    if n := devA.HardwareCalls(); n != 0 {
        t.Fatalf("hardware touched %d times on rejected send", n)
    }
}

func TestTapBusyRejection(t *testing.T) {
    a, _, _, _ := newPair(t)
    ctx := context.Background()

    started := make(chan struct{})
    done := make(chan channel.ReceiveResult, 1)
    go func() {
        close(started)
        done <- a.Receive(ctx, channel.ReceiveOptions{Timeout: time.Second})
    }()
    <-started
    waitStatus(t, a, channel.StatusReceiving)

    res := a.Send(ctx, []byte("x"), channel.SendOptions{})
    if !errors.Is(res.Err, channel.ErrBusy) { t.Fatalf("want ErrBusy, got %v", res.Err) }

    a.Cancel()
    <-done
}

func TestTapCancelDuringReceive(t *testing.T) {
    a, _, _, _ := newPair(t)
    done := make(chan channel.ReceiveResult, 1)
    go func() { done <- a.Receive(context.Background(), channel.ReceiveOptions{}) }()
    waitStatus(t, a, channel.StatusReceiving)

    a.Cancel()
    recv := <-done
    if !errors.Is(recv.Err, channel.ErrCanceled) { t.Fatalf("want ErrCanceled, got %v", recv.Err) }
    if a.Status() != channel.StatusReady { t.Fatalf("status = %v", a.Status()) }
}

func TestTapReceiveTimeout(t *testing.T) {
    a, _, _, _ := newPair(t)
    recv := a.Receive(context.Background(), channel.ReceiveOptions{Timeout: 20 * time.Millisecond})
    if !errors.Is(recv.Err, channel.ErrTimeout) { t.Fatalf("want ErrTimeout, got %v", recv.Err) }
}

func TestTapReadOnlyHardware(t *testing.T) {
    devA, _ := memhw.NewTagPair()
    devA.SetRoles(false, true)
    a := nearfield.New(devA, nearfield.Config{}, nil)

    caps := a.Capabilities()
    if caps.CanSend || !caps.CanReceive {
        t.Fatalf("caps = %+v, want receive-only", caps)
    }
    if err := a.Initialize(context.Background()); err != nil { t.Fatalf("init: %v", err) }
    res := a.Send(context.Background(), []byte("x"), channel.SendOptions{})
    if !errors.Is(res.Err, channel.ErrUnavailable) { t.Fatalf("want ErrUnavailable, got %v", res.Err) }
}

func TestTapUninitializedRejected(t *testing.T) {
    devA, _ := memhw.NewTagPair()
    a := nearfield.New(devA, nearfield.Config{}, nil)
    res := a.Send(context.Background(), []byte("x"), channel.SendOptions{})
    if !errors.Is(res.Err, channel.ErrUnavailable) { t.Fatalf("want ErrUnavailable, got %v", res.Err) }
}

func TestTapShutdownReturnsToIdle(t *testing.T) {
    a, _, _, _ := newPair(t)
    if err := a.Shutdown(context.Background()); err != nil { t.Fatalf("shutdown: %v", err) }
    if a.Status() != channel.StatusIdle { t.Fatalf("status = %v", a.Status()) }
    // Initialize is idempotent both ways: re-init works after shutdown.
    if err := a.Initialize(context.Background()); err != nil { t.Fatalf("re-init: %v", err) }
    if err := a.Initialize(context.Background()); err != nil { t.Fatalf("second init: %v", err) }
}

func TestTapAvailability(t *testing.T) {
    devA, _ := memhw.NewTagPair()
    a := nearfield.New(devA, nearfield.Config{}, nil)
    if !a.Available(context.Background()) { t.Fatalf("want available") }
    devA.SetAvailable(false)
    if a.Available(context.Background()) { t.Fatalf("want unavailable") }
    devA.SetAvailable(true)
    devA.SetPermissionDenied(true)
    if a.Available(context.Background()) { t.Fatalf("want unavailable on denied permission") }
    if err := a.Initialize(context.Background()); !errors.Is(err, channel.ErrPermissionDenied) {
        t.Fatalf("want ErrPermissionDenied, got %v", err)
    }
}

func TestChecksumStability(t *testing.T) {
    if nearfield.Checksum([]byte("abc")) != nearfield.Checksum([]byte("abc")) {
        t.Fatalf("checksum not deterministic")
    }
    if nearfield.Checksum([]byte("abc")) == nearfield.Checksum([]byte("abd")) {
        t.Fatalf("checksum collision on near inputs")
    }
    if len(nearfield.Checksum(nil)) != 8 { t.Fatalf("checksum not 8 hex chars") }
}

func waitStatus(t *testing.T, c channel.Channel, want channel.Status) {
    t.Helper()
    deadline := time.Now().Add(time.Second)
    for time.Now().Before(deadline) {
        if c.Status() == want { return }
        time.Sleep(time.Millisecond)
    }
    t.Fatalf("status never reached %v (now %v)", want, c.Status())
}
