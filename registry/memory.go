package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/oneedge/gateway/interfaces"
)

// MemoryStore is an in-process DeviceStore. Each device has its own lock, so
// mutations of different devices proceed independently while mutations of
// the same device serialize, matching the contract the GORM store gets from
// row-level locking.
type MemoryStore struct {
	mu      sync.RWMutex
	devices map[string]*interfaces.Device
	locks   map[string]*sync.Mutex
}

// NewMemoryStore creates an empty in-memory device registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices: make(map[string]*interfaces.Device),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) deviceLock(deviceID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[deviceID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[deviceID] = lock
	}
	return lock
}

// Get returns a snapshot of the record, or interfaces.ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, deviceID string) (*interfaces.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	dev, ok := s.devices[deviceID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return dev.Clone(), nil
}

// List returns snapshots of all records ordered by name.
func (s *MemoryStore) List(ctx context.Context) ([]*interfaces.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	devices := make([]*interfaces.Device, 0, len(s.devices))
	for _, dev := range s.devices {
		devices = append(devices, dev.Clone())
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices, nil
}

// Mutate runs fn against the record under the device's lock. The function
// receives a working copy; it becomes visible only when fn asks to persist,
// so a declined persist rolls back every mutation.
func (s *MemoryStore) Mutate(ctx context.Context, deviceID string, fn interfaces.MutateFunc) error {
	lock := s.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	stored, found := s.devices[deviceID]
	s.mu.RUnlock()

	work := &interfaces.Device{DeviceID: deviceID}
	if found {
		work = stored.Clone()
	}

	if !fn(work, found) {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.devices[deviceID] = work.Clone()
	s.mu.Unlock()
	return nil
}

// Delete removes the record permanently.
func (s *MemoryStore) Delete(ctx context.Context, deviceID string) error {
	lock := s.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[deviceID]; !ok {
		return interfaces.ErrNotFound
	}
	delete(s.devices, deviceID)
	return nil
}
