package keyring

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhelab/hpvs-deployer/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func generateKeyPair(t *testing.T, name string) (armoredPriv, armoredPub string) {
	t.Helper()
	key, err := crypto.GenerateKey(name, name+"@example.com", "x25519", 0)
	require.NoError(t, err)

	armoredPriv, err = key.Armor()
	require.NoError(t, err)
	armoredPub, err = key.GetArmoredPublicKey()
	require.NoError(t, err)
	return armoredPriv, armoredPub
}

func TestImportPublicKey_Idempotent(t *testing.T) {
	k := New(testLogger())
	_, pub := generateKeyPair(t, "vendor")

	fp1, err := k.ImportPublicKey([]byte(pub))
	require.NoError(t, err)
	fp2, err := k.ImportPublicKey([]byte(pub))
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
}

func TestImportPublicKey_Garbage(t *testing.T) {
	k := New(testLogger())
	_, err := k.ImportPublicKey([]byte("not a key"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrCrypto))
}

func TestImportPrivateKey_RejectsPublicKey(t *testing.T) {
	k := New(testLogger())
	_, pub := generateKeyPair(t, "vendor")

	_, err := k.ImportPrivateKey([]byte(pub), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrCrypto))
}

func TestImportPrivateKey_WrongPassphrase(t *testing.T) {
	key, err := crypto.GenerateKey("vendor", "vendor@example.com", "x25519", 0)
	require.NoError(t, err)
	locked, err := key.Lock([]byte("correct-passphrase"))
	require.NoError(t, err)
	armored, err := locked.Armor()
	require.NoError(t, err)

	k := New(testLogger())
	_, err = k.ImportPrivateKey([]byte(armored), []byte("wrong-passphrase"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrCrypto))

	fp, err := k.ImportPrivateKey([]byte(armored), []byte("correct-passphrase"))
	require.NoError(t, err)
	assert.NotEmpty(t, fp)
}

func TestEncryptAndSign_RoundTrip(t *testing.T) {
	k := New(testLogger())

	vendorPriv, vendorPub := generateKeyPair(t, "vendor")
	recipientPriv, recipientPub := generateKeyPair(t, "recipient")

	signerFP, err := k.ImportPrivateKey([]byte(vendorPriv), nil)
	require.NoError(t, err)
	_, err = k.ImportPublicKey([]byte(vendorPub))
	require.NoError(t, err)
	recipientFP, err := k.ImportPublicKey([]byte(recipientPub))
	require.NoError(t, err)

	plaintext := []byte(`{"repository":"fhe-toolkit-fedora-s390x","password":"hunter2"}`)
	sealed, err := k.EncryptAndSign(plaintext, recipientFP, signerFP)
	require.NoError(t, err)
	assert.Contains(t, string(sealed), "BEGIN PGP MESSAGE")
	assert.NotContains(t, string(sealed), "hunter2")

	// The recipient side: private key decrypts and the vendor public key
	// verifies the signature.
	_, err = k.ImportPrivateKey([]byte(recipientPriv), nil)
	require.NoError(t, err)

	recovered, err := k.DecryptAndVerify(sealed, recipientFP, signerFP)
	require.NoError(t, err)
	assert.Equal(t, plaintext, recovered)
}

func TestEncryptAndSign_UnknownKey(t *testing.T) {
	k := New(testLogger())
	_, err := k.EncryptAndSign([]byte("data"), "deadbeef", "deadbeef")
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrCrypto))
}

func TestEncryptAndSign_PublicKeyCannotSign(t *testing.T) {
	k := New(testLogger())
	_, vendorPub := generateKeyPair(t, "vendor")
	_, recipientPub := generateKeyPair(t, "recipient")

	vendorFP, err := k.ImportPublicKey([]byte(vendorPub))
	require.NoError(t, err)
	recipientFP, err := k.ImportPublicKey([]byte(recipientPub))
	require.NoError(t, err)

	_, err = k.EncryptAndSign([]byte("data"), recipientFP, vendorFP)
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrCrypto))
}
