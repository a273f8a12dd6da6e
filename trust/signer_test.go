package trust

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fhelab/hpvs-deployer/config"
	"github.com/fhelab/hpvs-deployer/docker"
	"github.com/fhelab/hpvs-deployer/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.DeploymentConfig {
	return config.DeploymentConfig{
		Platform: interfaces.PlatformFedora,
		Source:   interfaces.SourceRemoteRegistry,
		Tag:      "latest",
		Registry: config.RegistryConfig{
			URL:       "docker.io",
			Namespace: "acme",
			User:      "deployer",
			Password:  "hunter2",
		},
		Trust: config.TrustConfig{
			RootPassphrase: "root-secret",
			Server:         "https://notary.docker.io",
		},
	}
}

func TestEstablishTrust_RootOnlySigning(t *testing.T) {
	rt := new(docker.MockRuntime)
	signer := NewSigner(rt, testLogger())
	cfg := testConfig()

	target := "docker.io/acme/fhe-toolkit-fedora-s390x:latest"
	rt.On("Tag", mock.Anything, cfg.LocalImageRef(), target).Return(nil)
	rt.On("Login", mock.Anything, "docker.io", "deployer", "hunter2").Return(nil)
	rt.On("PushSigned", mock.Anything, target, "root-secret", "https://notary.docker.io").Return(nil)

	ref, err := signer.EstablishTrust(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, target, ref.String())

	rt.AssertExpectations(t)
	rt.AssertNotCalled(t, "LoadDelegationKey", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	rt.AssertNotCalled(t, "AddDelegationSigner", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEstablishTrust_LoginFailureShortCircuits(t *testing.T) {
	rt := new(docker.MockRuntime)
	signer := NewSigner(rt, testLogger())
	cfg := testConfig()

	rt.On("Tag", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	rt.On("Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("denied"))

	_, err := signer.EstablishTrust(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrAuth))

	// A failed login must never be followed by a push attempt.
	rt.AssertNotCalled(t, "PushSigned", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEstablishTrust_TagFailureIsBuildError(t *testing.T) {
	rt := new(docker.MockRuntime)
	signer := NewSigner(rt, testLogger())

	rt.On("Tag", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("no such image"))

	_, err := signer.EstablishTrust(context.Background(), testConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrBuild))
	rt.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEstablishTrust_LocalBuildArchMismatch(t *testing.T) {
	rt := new(docker.MockRuntime)
	signer := NewSigner(rt, testLogger())
	signer.hostArch = "amd64"

	cfg := testConfig()
	cfg.Source = interfaces.SourceLocalBuild

	_, err := signer.EstablishTrust(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrConfiguration))

	// Fails before any runtime call, network or otherwise.
	rt.AssertNotCalled(t, "Tag", mock.Anything, mock.Anything, mock.Anything)
	rt.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEstablishTrust_DelegationKeyMissing(t *testing.T) {
	rt := new(docker.MockRuntime)
	signer := NewSigner(rt, testLogger())

	cfg := testConfig()
	cfg.Trust.Delegation = interfaces.TrustDelegation{
		KeyName:        "releases-bot",
		PrivateKeyFile: filepath.Join(t.TempDir(), "missing.pem"),
		Passphrase:     "delegation-secret",
	}

	rt.On("Tag", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	rt.On("Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := signer.EstablishTrust(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrCrypto))

	rt.AssertNotCalled(t, "LoadDelegationKey", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	rt.AssertNotCalled(t, "PushSigned", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEstablishTrust_DelegationSigning(t *testing.T) {
	rt := new(docker.MockRuntime)
	signer := NewSigner(rt, testLogger())

	keyFile := filepath.Join(t.TempDir(), "delegation.pem")
	require.NoError(t, os.WriteFile(keyFile, []byte("fake key material"), 0600))

	cfg := testConfig()
	cfg.Trust.Delegation = interfaces.TrustDelegation{
		KeyName:        "releases-bot",
		PublicKeyFile:  "delegation.pub.pem",
		PrivateKeyFile: keyFile,
		Passphrase:     "delegation-secret",
	}

	repo := "docker.io/acme/fhe-toolkit-fedora-s390x"
	rt.On("Tag", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	rt.On("Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	rt.On("LoadDelegationKey", mock.Anything, keyFile, "releases-bot", "delegation-secret").Return(nil)
	rt.On("AddDelegationSigner", mock.Anything, repo, "releases", "delegation.pub.pem", "root-secret", cfg.Trust.Server).Return(nil)
	rt.On("AddDelegationSigner", mock.Anything, repo, "releases-bot", "delegation.pub.pem", "root-secret", cfg.Trust.Server).Return(nil)
	// The push signs with the delegation passphrase, not the root one.
	rt.On("PushSigned", mock.Anything, repo+":latest", "delegation-secret", cfg.Trust.Server).Return(nil)

	_, err := signer.EstablishTrust(context.Background(), cfg)
	require.NoError(t, err)
	rt.AssertExpectations(t)
}
