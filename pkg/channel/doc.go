// Package channel defines the canonical contract for offline token channels
// and the shared lifecycle machinery the concrete media build on.
//
// Key concepts:
//   - Medium: the physical channel class (near-field, radio, visual-code)
//   - Channel: one stateful instance implementing the contract for a medium
//   - Gate: the per-channel operation gate; serializes send/receive, rejects
//     concurrent operations with Busy, and guarantees cleanup on every exit
//   - Emitter: listener fan-out; events are the only channel→caller push signal
//
// Concrete implementations live in the nearfield, radio and visual
// subpackages; the manager package ranks and selects among them.
package channel
