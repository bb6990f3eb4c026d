package channel

import (
    "errors"
    "fmt"
)

// Sentinel errors for the channel taxonomy. Operation failures are carried
// in result structs and matched with errors.Is/As; only Initialize and
// Shutdown return raw errors the caller must react to.
var (
    // ErrUnavailable: hardware or permission missing. Non-fatal; callers
    // hide the option rather than failing.
    ErrUnavailable = errors.New("channel unavailable")

    // ErrBusy: a second send/receive while one is active. Never queued.
    ErrBusy = errors.New("operation already in progress")

    // ErrTimeout: the options-supplied deadline elapsed.
    ErrTimeout = errors.New("operation timed out")

    // ErrCanceled: the operation was canceled by Cancel or context.
    ErrCanceled = errors.New("operation canceled")

    // ErrNoDeviceFound: discovery finished with zero peers. Distinct from a
    // hardware-level scan failure.
    ErrNoDeviceFound = errors.New("no device found")

    // ErrChecksumMismatch: received frame failed integrity verification.
    ErrChecksumMismatch = errors.New("checksum mismatch")

    // ErrUnsupportedVersion: peer spoke an unknown envelope version.
    ErrUnsupportedVersion = errors.New("unsupported envelope version")

    // ErrConnectionLost: the link dropped mid-transfer; partial state is
    // discarded, there is no resume.
    ErrConnectionLost = errors.New("connection lost")

    // ErrPermissionDenied: the OS-level permission probe refused access.
    ErrPermissionDenied = errors.New("permission denied")
)

// PayloadTooLargeError fails a send before any hardware interaction when the
// payload exceeds the channel's capability ceiling.
type PayloadTooLargeError struct {
    Size int
    Max  int
}

func (e *PayloadTooLargeError) Error() string {
    return fmt.Sprintf("payload too large: %d bytes (limit %d)", e.Size, e.Max)
}
