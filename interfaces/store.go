package interfaces

import (
	"context"
	"errors"
)

// ErrNotFound is returned by stores when no record exists for a device ID.
var ErrNotFound = errors.New("device record not found")

// MutateFunc is applied to a device record inside a store transaction. When
// the record does not exist yet, dev is a zero record carrying only the
// device ID and found is false; the function may fill it in to create it.
// The returned flag decides whether the (possibly mutated) record is
// persisted when the transaction commits. Returning false discards every
// mutation made by the function.
type MutateFunc func(dev *Device, found bool) (persist bool)

// DeviceStore is the durable, transactional registry of device records.
//
// Implementations must serialize Mutate calls per device ID: two concurrent
// mutations of the same device observe each other's committed state, never
// interleave. Mutations of different devices proceed independently. Context
// cancellation aborts the transaction and leaves the record unchanged.
type DeviceStore interface {
	// Get returns a snapshot of the record, or ErrNotFound.
	Get(ctx context.Context, deviceID string) (*Device, error)

	// List returns snapshots of all records ordered by name.
	List(ctx context.Context) ([]*Device, error)

	// Mutate runs fn against the record identified by deviceID as one atomic
	// read-modify-write transaction. The returned error reports storage
	// faults only; protocol outcomes travel through fn's closure.
	Mutate(ctx context.Context, deviceID string, fn MutateFunc) error

	// Delete removes the record permanently, or returns ErrNotFound.
	Delete(ctx context.Context, deviceID string) error
}
