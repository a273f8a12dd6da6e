// Package keyring implements the interfaces.Keyring collaborator with an
// in-process OpenPGP keyring. It imports armored keys and seals registration
// documents by encrypting for a recipient key and signing with the vendor key
// in a single pass.
package keyring

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ProtonMail/gopenpgp/v2/crypto"

	"github.com/fhelab/hpvs-deployer/interfaces"
)

// Keyring holds imported OpenPGP keys indexed by fingerprint. All methods
// are safe for concurrent use, although the pipeline itself is sequential.
type Keyring struct {
	log *slog.Logger

	mu   sync.Mutex
	keys map[string]*crypto.Key
}

// New creates an empty keyring.
func New(log *slog.Logger) *Keyring {
	return &Keyring{log: log, keys: make(map[string]*crypto.Key)}
}

// ImportPublicKey loads an armored public key and returns its fingerprint.
// Re-importing a known key is a no-op.
func (k *Keyring) ImportPublicKey(armored []byte) (string, error) {
	key, err := crypto.NewKeyFromArmored(string(armored))
	if err != nil {
		return "", fmt.Errorf("%w: could not parse public key: %v", interfaces.ErrCrypto, err)
	}

	fingerprint := key.GetFingerprint()
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.keys[fingerprint]; !ok {
		k.keys[fingerprint] = key
		k.log.Debug("imported public key", "fingerprint", fingerprint)
	}
	return fingerprint, nil
}

// ImportPrivateKey loads and unlocks an armored private key, returning its
// fingerprint. Re-importing a known key is a no-op.
func (k *Keyring) ImportPrivateKey(armored, passphrase []byte) (string, error) {
	key, err := crypto.NewKeyFromArmored(string(armored))
	if err != nil {
		return "", fmt.Errorf("%w: could not parse private key: %v", interfaces.ErrCrypto, err)
	}
	if !key.IsPrivate() {
		return "", fmt.Errorf("%w: key %s is not a private key", interfaces.ErrCrypto, key.GetFingerprint())
	}

	fingerprint := key.GetFingerprint()
	k.mu.Lock()
	defer k.mu.Unlock()
	if existing, ok := k.keys[fingerprint]; ok && existing.IsPrivate() {
		return fingerprint, nil
	}

	locked, err := key.IsLocked()
	if err != nil {
		return "", fmt.Errorf("%w: could not inspect private key %s: %v", interfaces.ErrCrypto, fingerprint, err)
	}
	if locked {
		key, err = key.Unlock(passphrase)
		if err != nil {
			return "", fmt.Errorf("%w: could not unlock private key %s: %v", interfaces.ErrCrypto, fingerprint, err)
		}
	}

	k.keys[fingerprint] = key
	k.log.Debug("imported private key", "fingerprint", fingerprint)
	return fingerprint, nil
}

// EncryptAndSign encrypts plaintext for the recipient key and signs it with
// the signer's private key, returning the armored message.
func (k *Keyring) EncryptAndSign(plaintext []byte, recipientFingerprint, signerFingerprint string) ([]byte, error) {
	recipientRing, err := k.ringFor(recipientFingerprint, false)
	if err != nil {
		return nil, err
	}
	signerRing, err := k.ringFor(signerFingerprint, true)
	if err != nil {
		return nil, err
	}

	encrypted, err := recipientRing.Encrypt(crypto.NewPlainMessage(plaintext), signerRing)
	if err != nil {
		return nil, fmt.Errorf("%w: could not encrypt and sign: %v", interfaces.ErrCrypto, err)
	}

	armored, err := encrypted.GetArmored()
	if err != nil {
		return nil, fmt.Errorf("%w: could not armor message: %v", interfaces.ErrCrypto, err)
	}
	return []byte(armored), nil
}

// DecryptAndVerify decrypts an armored message with the recipient's private
// key and verifies the embedded signature against the signer's key. Used for
// round-trip verification; decryption in production happens on the hosting
// service's side.
func (k *Keyring) DecryptAndVerify(armored []byte, recipientFingerprint, signerFingerprint string) ([]byte, error) {
	recipientRing, err := k.ringFor(recipientFingerprint, true)
	if err != nil {
		return nil, err
	}
	signerRing, err := k.ringFor(signerFingerprint, false)
	if err != nil {
		return nil, err
	}

	message, err := crypto.NewPGPMessageFromArmored(string(armored))
	if err != nil {
		return nil, fmt.Errorf("%w: could not parse armored message: %v", interfaces.ErrCrypto, err)
	}

	plain, err := recipientRing.Decrypt(message, signerRing, crypto.GetUnixTime())
	if err != nil {
		return nil, fmt.Errorf("%w: could not decrypt or verify: %v", interfaces.ErrCrypto, err)
	}
	return plain.GetBinary(), nil
}

// ringFor builds a single-key keyring for the fingerprint. When private is
// set the stored key must carry private material.
func (k *Keyring) ringFor(fingerprint string, private bool) (*crypto.KeyRing, error) {
	k.mu.Lock()
	key, ok := k.keys[fingerprint]
	k.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: no key with fingerprint %s in keyring", interfaces.ErrCrypto, fingerprint)
	}
	if private && !key.IsPrivate() {
		return nil, fmt.Errorf("%w: key %s has no private material", interfaces.ErrCrypto, fingerprint)
	}

	ring, err := crypto.NewKeyRing(key)
	if err != nil {
		return nil, fmt.Errorf("%w: could not build keyring for %s: %v", interfaces.ErrCrypto, fingerprint, err)
	}
	return ring, nil
}
