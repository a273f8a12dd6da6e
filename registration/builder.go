// Package registration builds the registration document describing a signed
// image's registry coordinates and seals it for the hosting service: the
// document is encrypted for the recipient's public key and signed with the
// vendor key, and the sealed artifact replaces any cleartext on disk.
package registration

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fhelab/hpvs-deployer/config"
	"github.com/fhelab/hpvs-deployer/interfaces"
)

// Builder seals registration documents through an OpenPGP keyring.
type Builder struct {
	keyring interfaces.Keyring
	log     *slog.Logger
}

// NewBuilder creates a registration builder using the given keyring.
func NewBuilder(kr interfaces.Keyring, log *slog.Logger) *Builder {
	return &Builder{keyring: kr, log: log}
}

// BuildAndSeal builds the registration document for the signed image and
// seals it at the configured path. Any cryptographic failure aborts the
// pipeline; no cleartext registration survives a successful seal.
func (b *Builder) BuildAndSeal(ctx context.Context, cfg config.DeploymentConfig, ref interfaces.SignedImageRef) (interfaces.EncryptedRegistrationArtifact, error) {
	var zero interfaces.EncryptedRegistrationArtifact
	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("%w: %v", interfaces.ErrTransient, err)
	}

	// Vendor key pair. Importing an already loaded key is a no-op.
	vendorPub, err := os.ReadFile(cfg.Vendor.PublicKeyFile)
	if err != nil {
		return zero, fmt.Errorf("%w: could not read vendor public key %s: %v", interfaces.ErrCrypto, cfg.Vendor.PublicKeyFile, err)
	}
	if _, err := b.keyring.ImportPublicKey(vendorPub); err != nil {
		return zero, err
	}

	vendorPriv, err := os.ReadFile(cfg.Vendor.PrivateKeyFile)
	if err != nil {
		return zero, fmt.Errorf("%w: could not read vendor private key %s: %v", interfaces.ErrCrypto, cfg.Vendor.PrivateKeyFile, err)
	}
	signerFP, err := b.keyring.ImportPrivateKey(vendorPriv, []byte(cfg.Vendor.Passphrase))
	if err != nil {
		return zero, err
	}

	// Recipient key. The file comes from a fixed well-known source, not
	// user input; the fingerprint is logged so it can be verified out of
	// band.
	recipientPub, err := os.ReadFile(cfg.RecipientKeyFile)
	if err != nil {
		return zero, fmt.Errorf("%w: could not read recipient public key %s: %v", interfaces.ErrCrypto, cfg.RecipientKeyFile, err)
	}
	recipientFP, err := b.keyring.ImportPublicKey(recipientPub)
	if err != nil {
		return zero, err
	}
	b.log.Info("imported recipient key, verify this fingerprint out of band", "fingerprint", recipientFP)

	doc := interfaces.RegistrationDocument{
		VendorPublicKey:  string(vendorPub),
		RegistryUser:     cfg.Registry.User,
		RegistryPassword: cfg.Registry.Password,
		Namespace:        ref.Namespace,
		Repository:       ref.Repository,
		RegistryURL:      ref.RegistryURL,
	}
	cleartext, err := json.Marshal(doc)
	if err != nil {
		return zero, fmt.Errorf("%w: could not serialize registration document: %v", interfaces.ErrCrypto, err)
	}

	sealed, err := b.keyring.EncryptAndSign(cleartext, recipientFP, signerFP)
	if err != nil {
		return zero, err
	}

	if err := writeSealed(cfg.RegistrationFile, sealed); err != nil {
		return zero, err
	}
	b.log.Info("sealed registration document", "path", cfg.RegistrationFile, "repository", ref.Repository)

	return interfaces.EncryptedRegistrationArtifact{
		Ciphertext: sealed,
		Path:       cfg.RegistrationFile,
	}, nil
}

// writeSealed writes the sealed artifact via a temp file and rename so a
// failure mid-write never leaves a partial artifact at the final path, and no
// cleartext registration ever reaches disk.
func writeSealed(path string, sealed []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".registration-*")
	if err != nil {
		return fmt.Errorf("%w: could not create temp file in %s: %v", interfaces.ErrCrypto, dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: could not write sealed registration: %v", interfaces.ErrCrypto, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: could not close sealed registration: %v", interfaces.ErrCrypto, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: could not move sealed registration to %s: %v", interfaces.ErrCrypto, path, err)
	}
	return nil
}
