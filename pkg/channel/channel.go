package channel

import (
    "context"
    "time"
)

// SendOptions tunes one send operation. Retries is accepted for callers that
// loop themselves; the transport runs no retry loop of its own so partial
// chunk state and open connections stay unambiguous.
type SendOptions struct {
    Timeout  time.Duration
    Retries  int
    Compress bool
}

// ReceiveOptions tunes one receive operation.
type ReceiveOptions struct {
    Timeout    time.Duration
    AutoAccept bool
}

// SendResult reports the outcome of one send. Failures live in Err; the
// operation never panics through to the caller.
type SendResult struct {
    Success          bool
    BytesTransferred int
    Duration         time.Duration
    Err              error
}

// ReceiveResult reports the outcome of one receive, carrying the
// reassembled payload on success.
type ReceiveResult struct {
    Success       bool
    Payload       []byte
    BytesReceived int
    Duration      time.Duration
    Err           error
}

// Channel is the uniform transport contract every medium implements.
// A channel owns at most one in-flight operation; a second Send/Receive is
// rejected with ErrBusy, never queued.
type Channel interface {
    Medium() Medium
    Capabilities() Capabilities
    Status() Status

    // Available probes hardware and permissions without side effects.
    Available(ctx context.Context) bool

    // Initialize acquires hardware resources. Idempotent: a second call on
    // an initialized channel is a no-op.
    Initialize(ctx context.Context) error

    // Shutdown cancels any in-flight operation, releases all resources and
    // returns the channel to Idle.
    Shutdown(ctx context.Context) error

    // Send transfers payload to a peer. MaxPayloadSize is enforced before
    // any hardware interaction.
    Send(ctx context.Context, payload []byte, opts SendOptions) SendResult

    // Receive waits for a peer transfer and returns the full payload.
    Receive(ctx context.Context, opts ReceiveOptions) ReceiveResult

    // Cancel aborts the in-flight operation, if any. Idempotent and safe
    // from any state.
    Cancel()

    Subscribe(fn Listener) int
    Unsubscribe(id int)
}
