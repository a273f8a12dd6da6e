package cloud

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/fhelab/hpvs-deployer/interfaces"
)

// MockAPI mocks the interfaces.CloudAPI interface for tests.
type MockAPI struct {
	mock.Mock
}

// ExchangeToken mocks the ExchangeToken method.
func (m *MockAPI) ExchangeToken(ctx context.Context, apiKey string) (string, time.Time, error) {
	args := m.Called(ctx, apiKey)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

// LookupAccount mocks the LookupAccount method.
func (m *MockAPI) LookupAccount(ctx context.Context, token, apiKey string) (string, error) {
	args := m.Called(ctx, token, apiKey)
	return args.String(0), args.Error(1)
}

// DefaultResourceGroup mocks the DefaultResourceGroup method.
func (m *MockAPI) DefaultResourceGroup(ctx context.Context, token, accountID string) (string, error) {
	args := m.Called(ctx, token, accountID)
	return args.String(0), args.Error(1)
}

// CreateInstance mocks the CreateInstance method.
func (m *MockAPI) CreateInstance(ctx context.Context, token string, req interfaces.ProvisionRequest) (string, error) {
	args := m.Called(ctx, token, req)
	return args.String(0), args.Error(1)
}
