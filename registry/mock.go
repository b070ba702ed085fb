package registry

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/oneedge/gateway/interfaces"
)

// MockStore mocks the DeviceStore contract for collaborator tests.
type MockStore struct {
	mock.Mock
}

// Get mocks the Get method.
func (m *MockStore) Get(ctx context.Context, deviceID string) (*interfaces.Device, error) {
	args := m.Called(ctx, deviceID)
	dev, _ := args.Get(0).(*interfaces.Device)
	return dev, args.Error(1)
}

// List mocks the List method.
func (m *MockStore) List(ctx context.Context) ([]*interfaces.Device, error) {
	args := m.Called(ctx)
	devices, _ := args.Get(0).([]*interfaces.Device)
	return devices, args.Error(1)
}

// Mutate mocks the Mutate method. Tests that need fn applied should do so
// in a Run callback on the expectation.
func (m *MockStore) Mutate(ctx context.Context, deviceID string, fn interfaces.MutateFunc) error {
	args := m.Called(ctx, deviceID, fn)
	return args.Error(0)
}

// Delete mocks the Delete method.
func (m *MockStore) Delete(ctx context.Context, deviceID string) error {
	args := m.Called(ctx, deviceID)
	return args.Error(0)
}
