// Package engine implements the device identity and challenge-response
// authentication protocol.
//
// The engine is pure and synchronous: every operation takes the current
// device record, mutates it to the state that should be committed, and
// returns an outcome with a Persist flag. Persistence, per-device
// serialization, and transaction commit/rollback belong to the DeviceStore
// collaborator; the engine never blocks and keeps no background timers.
// Challenge expiry and rotation cadence are evaluated lazily at call time.
//
// Failure handling follows the protocol's dual-outcome rule: a failed
// identity binding, static-key check, or challenge verification both returns
// a typed error and increments the device's failure counter in the same
// atomic commit, while every other mutation of that call is rolled back. The
// engine implements this by working on a clone of the record and applying
// only the failure side effect to the original.
package engine
