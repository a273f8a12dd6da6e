package keyring

import (
	"github.com/stretchr/testify/mock"
)

// MockKeyring mocks the interfaces.Keyring interface for tests.
type MockKeyring struct {
	mock.Mock
}

// ImportPublicKey mocks the ImportPublicKey method.
func (m *MockKeyring) ImportPublicKey(armored []byte) (string, error) {
	args := m.Called(armored)
	return args.String(0), args.Error(1)
}

// ImportPrivateKey mocks the ImportPrivateKey method.
func (m *MockKeyring) ImportPrivateKey(armored, passphrase []byte) (string, error) {
	args := m.Called(armored, passphrase)
	return args.String(0), args.Error(1)
}

// EncryptAndSign mocks the EncryptAndSign method.
func (m *MockKeyring) EncryptAndSign(plaintext []byte, recipientFingerprint, signerFingerprint string) ([]byte, error) {
	args := m.Called(plaintext, recipientFingerprint, signerFingerprint)
	return args.Get(0).([]byte), args.Error(1)
}
