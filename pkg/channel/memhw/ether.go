package memhw

import (
    "context"
    "errors"
    "io"
    "sync"
    "sync/atomic"
    "time"

    "tokentap/pkg/channel/radio"
)

var errLinkSevered = errors.New("memhw: link severed")

// Ether is the shared radio medium. Advertisements are visible to every
// radio on the same ether; one central connects and drains the frames.
type Ether struct {
    mu      sync.Mutex
    adverts map[string]*advert // keyed by advertising device id
}

type advert struct {
    device    string
    serviceID string
    frames    [][]byte
    failAfter int
    done      chan struct{}
    abort     chan struct{}
    doneOnce  sync.Once
    abortOnce sync.Once
}

func (a *advert) finish() { a.doneOnce.Do(func() { close(a.done) }) }
func (a *advert) sever()  { a.abortOnce.Do(func() { close(a.abort) }) }

func NewEther() *Ether { return &Ether{adverts: make(map[string]*advert)} }

// NewRadio attaches a new simulated adapter to the ether.
func (e *Ether) NewRadio(device string) *RadioDevice {
    return &RadioDevice{hwState: newHWState(), ether: e, device: device}
}

func (e *Ether) lookupService(serviceID string) *advert {
    e.mu.Lock()
    defer e.mu.Unlock()
    for _, a := range e.adverts {
        if a.serviceID == serviceID { return a }
    }
    return nil
}

// RadioDevice simulates a short-range radio adapter in both roles.
type RadioDevice struct {
    hwState
    ether     *Ether
    device    string
    failAfter int
    scanErr   error
}

// SetFailAfter severs the next advertised link after n frames were read,
// simulating connection loss mid-transfer. Zero disables.
func (d *RadioDevice) SetFailAfter(n int) {
    d.mu.Lock()
    d.failAfter = n
    d.mu.Unlock()
}

// SetScanError injects a hardware-level scan failure, distinct from an
// empty scan window.
func (d *RadioDevice) SetScanError(err error) {
    d.mu.Lock()
    d.scanErr = err
    d.mu.Unlock()
}

func (d *RadioDevice) Probe(ctx context.Context) error  { return d.probe() }
func (d *RadioDevice) Open(ctx context.Context) error   { return d.open(ctx) }
func (d *RadioDevice) Close() error                     { return d.close() }

// Advertise registers the service on the ether and blocks until one central
// drained every frame, the link was severed, or ctx ended.
func (d *RadioDevice) Advertise(ctx context.Context, serviceID string, frames [][]byte) error {
    d.calls.Add(1)
    d.mu.Lock()
    fa := d.failAfter
    d.mu.Unlock()
    a := &advert{
        device:    d.device,
        serviceID: serviceID,
        frames:    frames,
        failAfter: fa,
        done:      make(chan struct{}),
        abort:     make(chan struct{}),
    }
    d.ether.mu.Lock()
    d.ether.adverts[d.device] = a
    d.ether.mu.Unlock()
    defer func() {
        d.ether.mu.Lock()
        delete(d.ether.adverts, d.device)
        d.ether.mu.Unlock()
    }()

    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-a.abort:
        return errLinkSevered
    case <-a.done:
        return nil
    }
}

// Scan polls the ether for the service until ctx expires. An empty window
// returns ("", nil); injected hardware failures return an error.
func (d *RadioDevice) Scan(ctx context.Context, serviceID string) (string, error) {
    d.calls.Add(1)
    d.mu.Lock()
    scanErr := d.scanErr
    d.mu.Unlock()
    if scanErr != nil { return "", scanErr }

    tick := time.NewTicker(time.Millisecond)
    defer tick.Stop()
    for {
        if a := d.ether.lookupService(serviceID); a != nil {
            return a.device, nil
        }
        select {
        case <-ctx.Done():
            return "", nil
        case <-tick.C:
        }
    }
}

// Connect opens a link to an advertising device.
func (d *RadioDevice) Connect(ctx context.Context, device string) (radio.Conn, error) {
    d.calls.Add(1)
    if err := ctx.Err(); err != nil { return nil, err }
    d.ether.mu.Lock()
    a := d.ether.adverts[device]
    d.ether.mu.Unlock()
    if a == nil {
        return nil, errors.New("memhw: peer no longer advertising")
    }
    return &etherConn{ad: a, calls: &d.calls}, nil
}

type etherConn struct {
    mu    sync.Mutex
    ad    *advert
    read  int
    calls *atomic.Int64
}

// ReadFrame serves the next characteristic read. After the last frame it
// returns io.EOF and signals the advertiser that the transfer completed.
func (c *etherConn) ReadFrame(ctx context.Context) ([]byte, error) {
    if err := ctx.Err(); err != nil { return nil, err }
    c.calls.Add(1)
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.ad.failAfter > 0 && c.read >= c.ad.failAfter {
        c.ad.sever()
        return nil, errLinkSevered
    }
    if c.read >= len(c.ad.frames) {
        return nil, io.EOF
    }
    f := c.ad.frames[c.read]
    c.read++
    if c.read == len(c.ad.frames) && c.ad.failAfter == 0 {
        c.ad.finish()
    }
    return f, nil
}

func (c *etherConn) Close() error { return nil }
