package storage

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockBackend is a testify mock implementation of Backend.
type MockBackend struct {
	mock.Mock
}

// Read is the mock implementation of the Read method.
func (m *MockBackend) Read(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1) //nolint:wrapcheck
}

// Write is the mock implementation of the Write method.
func (m *MockBackend) Write(ctx context.Context, key string, data []byte) error {
	args := m.Called(ctx, key, data)
	return args.Error(0) //nolint:wrapcheck
}
