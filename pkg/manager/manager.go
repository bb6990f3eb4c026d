// Package manager keeps the registry of offline channels, one per medium,
// and selects the best available one by a fixed priority policy.
package manager

import (
    "context"
    "errors"
    "fmt"
    "sync"

    "go.uber.org/zap"

    "tokentap/pkg/channel"
)

// Manager maps medium → channel instance and fans lifecycle calls out
// across all registered channels. At most one channel per medium; the
// manager owns the instances for the process lifetime.
type Manager struct {
    mu    sync.RWMutex
    chans map[channel.Medium]channel.Channel
    order []channel.Medium
    log   *zap.Logger
}

func New(log *zap.Logger) *Manager {
    if log == nil { log = zap.NewNop() }
    return &Manager{chans: make(map[channel.Medium]channel.Channel), log: log.Named("manager")}
}

// Register adds a channel. A second channel for the same medium is refused.
func (m *Manager) Register(c channel.Channel) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    med := c.Medium()
    if _, ok := m.chans[med]; ok {
        return fmt.Errorf("manager: channel for %s already registered", med)
    }
    m.chans[med] = c
    m.order = append(m.order, med)
    return nil
}

// Get returns the channel for a medium, or nil.
func (m *Manager) Get(med channel.Medium) channel.Channel {
    m.mu.RLock()
    defer m.mu.RUnlock()
    return m.chans[med]
}

// Media lists registered media in registration order.
func (m *Manager) Media() []channel.Medium {
    m.mu.RLock()
    defer m.mu.RUnlock()
    out := make([]channel.Medium, len(m.order))
    copy(out, m.order)
    return out
}

// Available probes every registered channel concurrently and returns the
// available subset in registration order. An empty result is valid: no
// offline channel is usable right now.
func (m *Manager) Available(ctx context.Context) []channel.Channel {
    m.mu.RLock()
    order := make([]channel.Medium, len(m.order))
    copy(order, m.order)
    chans := make([]channel.Channel, len(order))
    for i, med := range order { chans[i] = m.chans[med] }
    m.mu.RUnlock()

    ok := make([]bool, len(chans))
    var wg sync.WaitGroup
    for i, c := range chans {
        wg.Add(1)
        go func(i int, c channel.Channel) {
            defer wg.Done()
            ok[i] = c.Available(ctx)
        }(i, c)
    }
    wg.Wait()

    var out []channel.Channel
    for i, c := range chans {
        if ok[i] { out = append(out, c) }
    }
    return out
}

// Priority order across media; higher is better. Media outside the list
// rank zero and fall back to registration order.
func baseRank(m channel.Medium) int {
    switch m {
    case channel.MediumNearField:
        return 100
    case channel.MediumRadio:
        return 90
    case channel.MediumVisualCode:
        return 80
    default:
        return 0
    }
}

// Best returns the highest-priority available channel: near-field, then
// radio, then visual-code; ties and unranked media break by registration
// order. Nil when nothing is available.
func (m *Manager) Best(ctx context.Context) channel.Channel {
    avail := m.Available(ctx)
    var best channel.Channel
    bestRank := -1
    for _, c := range avail {
        if r := baseRank(c.Medium()); r > bestRank {
            best, bestRank = c, r
        }
    }
    return best
}

// InitializeAll initializes every registered channel, continuing past
// individual failures; each failure is logged and the joined error is
// returned as a non-fatal diagnostic.
func (m *Manager) InitializeAll(ctx context.Context) error {
    var errs []error
    for _, med := range m.Media() {
        c := m.Get(med)
        if err := c.Initialize(ctx); err != nil {
            m.log.Warn("channel initialize failed", zap.Stringer("medium", med), zap.Error(err))
            errs = append(errs, fmt.Errorf("%s: %w", med, err))
        }
    }
    return errors.Join(errs...)
}

// ShutdownAll shuts every registered channel down, continuing past
// individual failures.
func (m *Manager) ShutdownAll(ctx context.Context) error {
    var errs []error
    for _, med := range m.Media() {
        c := m.Get(med)
        if err := c.Shutdown(ctx); err != nil {
            m.log.Warn("channel shutdown failed", zap.Stringer("medium", med), zap.Error(err))
            errs = append(errs, fmt.Errorf("%s: %w", med, err))
        }
    }
    return errors.Join(errs...)
}
