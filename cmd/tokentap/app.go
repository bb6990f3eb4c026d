package main

import (
    "context"
    "fmt"
    "time"

    "go.uber.org/zap"

    "tokentap/pkg/channel"
    "tokentap/pkg/channel/memhw"
    "tokentap/pkg/channel/nearfield"
    "tokentap/pkg/channel/radio"
    "tokentap/pkg/channel/visual"
    "tokentap/pkg/config"
    "tokentap/pkg/manager"
    "tokentap/pkg/observability"
)

// rig bundles the two simulated endpoints of every medium so the loopback
// command can drive a full round trip in one process.
type rig struct {
    local  *manager.Manager
    remote *manager.Manager
}

func buildRig(cfg *config.Config, log *zap.Logger) (*rig, error) {
    local := manager.New(log.Named("local"))
    remote := manager.New(log.Named("remote"))

    if cfg.Channels.NearField.Enabled {
        tagA, tagB := memhw.NewTagPair()
        nfCfg := nearfield.Config{MaxPayloadSize: cfg.Channels.NearField.MaxPayloadSize}
        if err := local.Register(nearfield.New(tagA, nfCfg, log)); err != nil { return nil, err }
        if err := remote.Register(nearfield.New(tagB, nfCfg, log)); err != nil { return nil, err }
    }
    if cfg.Channels.Radio.Enabled {
        ether := memhw.NewEther()
        rCfg := radio.Config{
            ChunkSize:        cfg.Channels.Radio.ChunkSize,
            MaxPayloadSize:   cfg.Channels.Radio.MaxPayloadSize,
            DiscoveryTimeout: time.Duration(cfg.Channels.Radio.DiscoveryTimeoutMS) * time.Millisecond,
        }
        if err := local.Register(radio.New(ether.NewRadio("local"), rCfg, log)); err != nil { return nil, err }
        if err := remote.Register(radio.New(ether.NewRadio("remote"), rCfg, log)); err != nil { return nil, err }
    }
    if cfg.Channels.Visual.Enabled {
        optA, optB := memhw.NewOpticsPair()
        vCfg := visual.Config{
            FrameCapacity:   cfg.Channels.Visual.FrameCapacity,
            MaxPayloadSize:  cfg.Channels.Visual.MaxPayloadSize,
            DisplayInterval: time.Duration(cfg.Channels.Visual.DisplayIntervalMS) * time.Millisecond,
            SendCycles:      cfg.Channels.Visual.SendCycles,
            Transform:       visual.Deflate(),
        }
        if err := local.Register(visual.New(optA, vCfg, log)); err != nil { return nil, err }
        if err := remote.Register(visual.New(optB, vCfg, log)); err != nil { return nil, err }
    }
    return &rig{local: local, remote: remote}, nil
}

func setup(cfgPath string) (*config.Config, *zap.Logger, error) {
    cfg, err := config.Load(cfgPath)
    if err != nil {
        return nil, nil, fmt.Errorf("load config: %w", err)
    }
    log, err := observability.SetupLogger(cfg.Log)
    if err != nil {
        return nil, nil, fmt.Errorf("setup logger: %w", err)
    }
    return cfg, log, nil
}

func runProbe(cfgPath string) error {
    cfg, log, err := setup(cfgPath)
    if err != nil {
        return err
    }
    defer func() { _ = log.Sync() }()

    r, err := buildRig(cfg, log)
    if err != nil {
        return err
    }
    ctx := context.Background()
    avail := r.local.Available(ctx)
    usable := make(map[channel.Medium]bool, len(avail))
    for _, c := range avail { usable[c.Medium()] = true }

    for _, med := range r.local.Media() {
        c := r.local.Get(med)
        caps := c.Capabilities()
        fmt.Printf("%-12s available=%-5v send=%-5v receive=%-5v max=%d\n",
            med, usable[med], caps.CanSend, caps.CanReceive, caps.MaxPayloadSize)
    }
    if best := r.local.Best(ctx); best != nil {
        fmt.Printf("best: %s\n", best.Medium())
    } else {
        fmt.Println("best: none")
    }
    return nil
}

func runLoopback(cfgPath, medium, message string) error {
    cfg, log, err := setup(cfgPath)
    if err != nil {
        return err
    }
    defer func() { _ = log.Sync() }()

    // Keep the demo snappy over the visual bus.
    if cfg.Channels.Visual.DisplayIntervalMS == 0 {
        cfg.Channels.Visual.DisplayIntervalMS = 5
    }

    r, err := buildRig(cfg, log)
    if err != nil {
        return err
    }
    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    defer cancel()

    if err := r.local.InitializeAll(ctx); err != nil {
        log.Warn("some local channels failed to initialize", zap.Error(err))
    }
    if err := r.remote.InitializeAll(ctx); err != nil {
        log.Warn("some remote channels failed to initialize", zap.Error(err))
    }
    defer func() {
        _ = r.local.ShutdownAll(context.Background())
        _ = r.remote.ShutdownAll(context.Background())
    }()

    sender := r.local.Best(ctx)
    if medium != "best" {
        sender = nil
        for _, med := range r.local.Media() {
            if med.String() == medium { sender = r.local.Get(med) }
        }
    }
    if sender == nil {
        return fmt.Errorf("no usable channel for medium %q", medium)
    }
    receiver := r.remote.Get(sender.Medium())

    sub := receiver.Subscribe(func(ev channel.Event) {
        log.Debug("remote event", zap.Stringer("kind", ev.Kind), zap.Stringer("medium", ev.Medium))
    })
    defer receiver.Unsubscribe(sub)

    recvCh := make(chan channel.ReceiveResult, 1)
    go func() {
        recvCh <- receiver.Receive(ctx, channel.ReceiveOptions{Timeout: 20 * time.Second})
    }()

    res := sender.Send(ctx, []byte(message), channel.SendOptions{
        Timeout:  20 * time.Second,
        Compress: cfg.Channels.Visual.Compress,
    })
    if res.Err != nil {
        return fmt.Errorf("send over %s: %w", sender.Medium(), res.Err)
    }

    recv := <-recvCh
    if recv.Err != nil {
        return fmt.Errorf("receive over %s: %w", sender.Medium(), recv.Err)
    }
    if string(recv.Payload) != message {
        return fmt.Errorf("payload mismatch: sent %d bytes, received %d", len(message), len(recv.Payload))
    }
    fmt.Printf("moved %d bytes over %s in %s (receive took %s)\n",
        res.BytesTransferred, sender.Medium(), res.Duration, recv.Duration)
    return nil
}
