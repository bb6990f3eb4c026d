package channel

import (
    "sync"
    "time"
)

// EventKind enumerates the channel→caller signals.
type EventKind int

const (
    EventStatusChanged EventKind = iota
    EventDataReceived
    EventSendComplete
    EventError
    EventDeviceDiscovered
    EventConnectionEstablished
    EventConnectionLost
)

func (k EventKind) String() string {
    switch k {
    case EventStatusChanged:
        return "status-changed"
    case EventDataReceived:
        return "data-received"
    case EventSendComplete:
        return "send-complete"
    case EventError:
        return "error"
    case EventDeviceDiscovered:
        return "device-discovered"
    case EventConnectionEstablished:
        return "connection-established"
    case EventConnectionLost:
        return "connection-lost"
    default:
        return "unknown"
    }
}

// Event is the only push signal a channel emits. Payload, Device and Err are
// populated per kind; Status accompanies status-changed.
type Event struct {
    Kind      EventKind
    Medium    Medium
    Timestamp time.Time
    Status    Status
    Payload   []byte
    Device    string
    Err       error
}

// Listener receives events synchronously, in subscription order.
type Listener func(Event)

// Emitter fans events out to independent listeners. Emission snapshots the
// listener list so a listener unsubscribing itself does not race the walk;
// emission and mutation are expected on the channel's own call path.
type Emitter struct {
    mu     sync.Mutex
    nextID int
    subs   []subscription
}

type subscription struct {
    id int
    fn Listener
}

func NewEmitter() *Emitter { return &Emitter{} }

// Subscribe registers fn and returns its subscription id.
func (e *Emitter) Subscribe(fn Listener) int {
    e.mu.Lock()
    defer e.mu.Unlock()
    e.nextID++
    e.subs = append(e.subs, subscription{id: e.nextID, fn: fn})
    return e.nextID
}

// Unsubscribe removes a listener by id. Unknown ids are ignored.
func (e *Emitter) Unsubscribe(id int) {
    e.mu.Lock()
    defer e.mu.Unlock()
    for i, s := range e.subs {
        if s.id == id {
            e.subs = append(e.subs[:i], e.subs[i+1:]...)
            return
        }
    }
}

// Emit delivers ev to every listener in registration order.
func (e *Emitter) Emit(ev Event) {
    if ev.Timestamp.IsZero() { ev.Timestamp = time.Now() }
    e.mu.Lock()
    snap := make([]subscription, len(e.subs))
    copy(snap, e.subs)
    e.mu.Unlock()
    for _, s := range snap {
        s.fn(ev)
    }
}
