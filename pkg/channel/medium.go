package channel

// Medium identifies the physical channel class. The set is closed: exactly
// one channel instance per medium exists for the process lifetime.
type Medium int

const (
    MediumUnknown Medium = iota
    MediumNearField
    MediumRadio
    MediumVisualCode
)

func (m Medium) String() string {
    switch m {
    case MediumNearField:
        return "near-field"
    case MediumRadio:
        return "radio"
    case MediumVisualCode:
        return "visual-code"
    default:
        return "unknown"
    }
}

// Capabilities is a per-channel immutable snapshot, fixed at construction.
// MaxPayloadSize is a hard ceiling enforced before any transfer attempt.
type Capabilities struct {
    CanSend                 bool
    CanReceive              bool
    MaxPayloadSize          int
    RequiresPairing         bool
    SupportsMultipleDevices bool
}

// Status is the channel lifecycle state. Idle is pre-initialization; a
// channel re-enters Idle only on shutdown. Error is reachable from any
// active state; operations still settle back to Ready on exit.
type Status int

const (
    StatusIdle Status = iota
    StatusReady
    StatusConnecting
    StatusConnected
    StatusSending
    StatusReceiving
    StatusError
)

func (s Status) String() string {
    switch s {
    case StatusIdle:
        return "idle"
    case StatusReady:
        return "ready"
    case StatusConnecting:
        return "connecting"
    case StatusConnected:
        return "connected"
    case StatusSending:
        return "sending"
    case StatusReceiving:
        return "receiving"
    case StatusError:
        return "error"
    default:
        return "unknown"
    }
}

// active reports whether s represents an in-flight operation.
func (s Status) active() bool {
    switch s {
    case StatusConnecting, StatusConnected, StatusSending, StatusReceiving:
        return true
    }
    return false
}
