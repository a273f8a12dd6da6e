package docker

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockRuntime mocks the interfaces.ContainerRuntime interface for tests.
type MockRuntime struct {
	mock.Mock
}

// Tag mocks the Tag method.
func (m *MockRuntime) Tag(ctx context.Context, source, target string) error {
	args := m.Called(ctx, source, target)
	return args.Error(0)
}

// Login mocks the Login method.
func (m *MockRuntime) Login(ctx context.Context, registryURL, user, password string) error {
	args := m.Called(ctx, registryURL, user, password)
	return args.Error(0)
}

// Logout mocks the Logout method.
func (m *MockRuntime) Logout(ctx context.Context, registryURL string) error {
	args := m.Called(ctx, registryURL)
	return args.Error(0)
}

// LoadDelegationKey mocks the LoadDelegationKey method.
func (m *MockRuntime) LoadDelegationKey(ctx context.Context, privateKeyFile, keyName, passphrase string) error {
	args := m.Called(ctx, privateKeyFile, keyName, passphrase)
	return args.Error(0)
}

// AddDelegationSigner mocks the AddDelegationSigner method.
func (m *MockRuntime) AddDelegationSigner(ctx context.Context, repository, keyName, publicKeyFile, rootPassphrase, trustServer string) error {
	args := m.Called(ctx, repository, keyName, publicKeyFile, rootPassphrase, trustServer)
	return args.Error(0)
}

// PushSigned mocks the PushSigned method.
func (m *MockRuntime) PushSigned(ctx context.Context, ref, passphrase, trustServer string) error {
	args := m.Called(ctx, ref, passphrase, trustServer)
	return args.Error(0)
}
