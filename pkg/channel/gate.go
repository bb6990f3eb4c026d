package channel

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "time"

    "go.uber.org/zap"
)

// Gate owns a channel's mutable lifecycle state: the status and the single
// in-flight operation. Concrete channels embed one per instance; all status
// transitions go through it so every exit path restores Ready and clears the
// operation.
type Gate struct {
    mu     sync.Mutex
    status Status
    cancel context.CancelFunc
    ops    sync.WaitGroup

    medium Medium
    em     *Emitter
    log    *zap.Logger
}

func NewGate(m Medium, em *Emitter, log *zap.Logger) *Gate {
    if log == nil { log = zap.NewNop() }
    return &Gate{status: StatusIdle, medium: m, em: em, log: log}
}

// Status returns the current lifecycle state.
func (g *Gate) Status() Status {
    g.mu.Lock()
    defer g.mu.Unlock()
    return g.status
}

// Initialized reports whether the channel left Idle.
func (g *Gate) Initialized() bool { return g.Status() != StatusIdle }

// MarkReady transitions Idle→Ready after resource acquisition.
func (g *Gate) MarkReady() { g.SetStatus(StatusReady) }

// MarkIdle returns the channel to its pre-initialization state.
func (g *Gate) MarkIdle() { g.SetStatus(StatusIdle) }

// SetStatus moves to s and emits status-changed when the state actually
// moved. Emission happens outside the lock so listeners may call back in.
func (g *Gate) SetStatus(s Status) {
    g.mu.Lock()
    changed := g.status != s
    g.status = s
    g.mu.Unlock()
    if changed {
        g.log.Debug("status changed", zap.Stringer("medium", g.medium), zap.Stringer("status", s))
        g.em.Emit(Event{Kind: EventStatusChanged, Medium: g.medium, Status: s})
    }
}

// Op is one admitted send or receive. The operation runs inside Ctx and must
// call Done exactly once, on every exit path.
type Op struct {
    g      *Gate
    ctx    context.Context
    cancel context.CancelFunc
    start  time.Time
    once   sync.Once
}

// Begin admits an operation and transitions to status op (Sending or
// Receiving). A second operation while one is active is rejected with
// ErrBusy; an uninitialized channel rejects with ErrUnavailable. A positive
// timeout bounds the operation's context.
func (g *Gate) Begin(ctx context.Context, op Status, timeout time.Duration) (*Op, error) {
    g.mu.Lock()
    if g.status.active() {
        g.mu.Unlock()
        return nil, ErrBusy
    }
    if g.status == StatusIdle {
        g.mu.Unlock()
        return nil, fmt.Errorf("channel not initialized: %w", ErrUnavailable)
    }
    var opCtx context.Context
    var cancel context.CancelFunc
    if timeout > 0 {
        opCtx, cancel = context.WithTimeout(ctx, timeout)
    } else {
        opCtx, cancel = context.WithCancel(ctx)
    }
    g.cancel = cancel
    g.status = op
    g.ops.Add(1)
    g.mu.Unlock()

    g.em.Emit(Event{Kind: EventStatusChanged, Medium: g.medium, Status: op})
    return &Op{g: g, ctx: opCtx, cancel: cancel, start: time.Now()}, nil
}

// Ctx is the operation context; it expires on timeout, Cancel or parent
// cancellation. Channels must check it at every suspension point.
func (o *Op) Ctx() context.Context { return o.ctx }

// Done releases the operation, normalizes context errors to the reported
// taxonomy and restores Ready. It returns the elapsed duration and the
// normalized error, and is safe to call through deferred cleanup.
func (o *Op) Done(err error) (time.Duration, error) {
    d := time.Since(o.start)
    norm := err
    o.once.Do(func() {
        norm = o.normalize(err)
        o.cancel()
        o.g.mu.Lock()
        o.g.cancel = nil
        o.g.mu.Unlock()
        if norm != nil {
            o.g.SetStatus(StatusError)
            o.g.em.Emit(Event{Kind: EventError, Medium: o.g.medium, Err: norm})
        }
        o.g.SetStatus(StatusReady)
        o.g.ops.Done()
    })
    return d, norm
}

func (o *Op) normalize(err error) error {
    if err == nil { return nil }
    if errors.Is(err, context.DeadlineExceeded) { return ErrTimeout }
    if errors.Is(err, context.Canceled) { return ErrCanceled }
    return err
}

// Cancel aborts the in-flight operation, if any. Idempotent; a no-op when
// nothing is running. The operation itself unwinds cooperatively, releasing
// hardware and partial chunk state before Done restores Ready.
func (g *Gate) Cancel() {
    g.mu.Lock()
    cancel := g.cancel
    g.mu.Unlock()
    if cancel != nil { cancel() }
}

// Drain cancels the in-flight operation and blocks until it finished
// unwinding. Shutdown uses it to guarantee no operation survives the
// release of hardware resources.
func (g *Gate) Drain() {
    g.Cancel()
    g.ops.Wait()
}
