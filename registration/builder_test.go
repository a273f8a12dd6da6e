package registration

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhelab/hpvs-deployer/config"
	"github.com/fhelab/hpvs-deployer/interfaces"
	"github.com/fhelab/hpvs-deployer/keyring"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testSetup writes vendor and recipient key files into a temp dir and returns
// a config pointing at them plus the recipient's private key for round-trip
// verification.
func testSetup(t *testing.T) (config.DeploymentConfig, string) {
	t.Helper()
	dir := t.TempDir()

	vendor, err := crypto.GenerateKey("vendor", "vendor@example.com", "x25519", 0)
	require.NoError(t, err)
	vendorPriv, err := vendor.Armor()
	require.NoError(t, err)
	vendorPub, err := vendor.GetArmoredPublicKey()
	require.NoError(t, err)

	recipient, err := crypto.GenerateKey("recipient", "recipient@example.com", "x25519", 0)
	require.NoError(t, err)
	recipientPriv, err := recipient.Armor()
	require.NoError(t, err)
	recipientPub, err := recipient.GetArmoredPublicKey()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "vendor.pub.asc"), []byte(vendorPub), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vendor.asc"), []byte(vendorPriv), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "recipient.pub.asc"), []byte(recipientPub), 0600))

	cfg := config.DeploymentConfig{
		Platform: interfaces.PlatformFedora,
		Registry: config.RegistryConfig{
			URL:       "docker.io",
			Namespace: "acme",
			User:      "deployer",
			Password:  "hunter2",
		},
		Vendor: config.VendorConfig{
			PublicKeyFile:  filepath.Join(dir, "vendor.pub.asc"),
			PrivateKeyFile: filepath.Join(dir, "vendor.asc"),
			KeyName:        "vendor",
		},
		RecipientKeyFile: filepath.Join(dir, "recipient.pub.asc"),
		RegistrationFile: filepath.Join(dir, "registration.json"),
	}
	return cfg, recipientPriv
}

func testRef() interfaces.SignedImageRef {
	return interfaces.SignedImageRef{
		RegistryURL: "docker.io",
		Namespace:   "acme",
		Repository:  "fhe-toolkit-fedora-s390x",
		Tag:         "latest",
	}
}

func TestBuildAndSeal_RoundTrip(t *testing.T) {
	cfg, recipientPriv := testSetup(t)
	kr := keyring.New(testLogger())
	builder := NewBuilder(kr, testLogger())

	artifact, err := builder.BuildAndSeal(context.Background(), cfg, testRef())
	require.NoError(t, err)
	assert.Equal(t, cfg.RegistrationFile, artifact.Path)
	assert.Contains(t, string(artifact.Ciphertext), "BEGIN PGP MESSAGE")

	// The artifact on disk is the armored ciphertext, not the document.
	onDisk, err := os.ReadFile(cfg.RegistrationFile)
	require.NoError(t, err)
	assert.Equal(t, artifact.Ciphertext, onDisk)
	assert.NotContains(t, string(onDisk), "hunter2")

	// Decrypting with the recipient private key recovers the document.
	recipientFP, err := kr.ImportPrivateKey([]byte(recipientPriv), nil)
	require.NoError(t, err)
	vendorPub, err := os.ReadFile(cfg.Vendor.PublicKeyFile)
	require.NoError(t, err)
	vendorFP, err := kr.ImportPublicKey(vendorPub)
	require.NoError(t, err)

	recovered, err := kr.DecryptAndVerify(artifact.Ciphertext, recipientFP, vendorFP)
	require.NoError(t, err)

	var doc interfaces.RegistrationDocument
	require.NoError(t, json.Unmarshal(recovered, &doc))
	assert.Equal(t, "acme", doc.Namespace)
	assert.Equal(t, "fhe-toolkit-fedora-s390x", doc.Repository)
	assert.Equal(t, "docker.io", doc.RegistryURL)
	assert.Equal(t, "deployer", doc.RegistryUser)
	assert.Equal(t, "hunter2", doc.RegistryPassword)
	assert.Equal(t, string(vendorPub), doc.VendorPublicKey)
}

func TestBuildAndSeal_NoCleartextLeftBehind(t *testing.T) {
	cfg, _ := testSetup(t)
	builder := NewBuilder(keyring.New(testLogger()), testLogger())

	_, err := builder.BuildAndSeal(context.Background(), cfg, testRef())
	require.NoError(t, err)

	// Nothing in the directory may contain the registry password: no temp
	// files, no cleartext document.
	dir := filepath.Dir(cfg.RegistrationFile)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		require.NoError(t, err)
		assert.NotContains(t, string(data), "hunter2", "cleartext found in %s", entry.Name())
	}
}

func TestBuildAndSeal_MissingVendorKey(t *testing.T) {
	cfg, _ := testSetup(t)
	cfg.Vendor.PrivateKeyFile = filepath.Join(t.TempDir(), "missing.asc")
	builder := NewBuilder(keyring.New(testLogger()), testLogger())

	_, err := builder.BuildAndSeal(context.Background(), cfg, testRef())
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrCrypto))

	// A failed seal must not leave an artifact behind.
	_, statErr := os.Stat(cfg.RegistrationFile)
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuildAndSeal_GarbageRecipientKey(t *testing.T) {
	cfg, _ := testSetup(t)
	require.NoError(t, os.WriteFile(cfg.RecipientKeyFile, []byte("not a key"), 0600))
	builder := NewBuilder(keyring.New(testLogger()), testLogger())

	_, err := builder.BuildAndSeal(context.Background(), cfg, testRef())
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrCrypto))
}
