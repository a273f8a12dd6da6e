// Package trust establishes content trust for a toolkit image: it tags the
// local image, authenticates to the registry, optionally sets up a signing
// delegation and pushes image layers together with trust metadata. Trust
// establishment is all-or-nothing; a partially signed image must never be
// provisioned.
package trust

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/fhelab/hpvs-deployer/config"
	"github.com/fhelab/hpvs-deployer/interfaces"
)

// releasesDelegation is the shared delegation role delegation keys are
// registered under before the repository-specific delegation is created.
const releasesDelegation = "releases"

// hostArchTarget is the only host architecture whose local builds the
// hosting service can run.
const hostArchTarget = "s390x"

// Signer establishes content trust for deployment images through a container
// runtime.
type Signer struct {
	runtime interfaces.ContainerRuntime
	log     *slog.Logger

	// hostArch overrides the detected architecture in tests.
	hostArch string
}

// NewSigner creates a trust signer using the given container runtime.
func NewSigner(rt interfaces.ContainerRuntime, log *slog.Logger) *Signer {
	return &Signer{runtime: rt, log: log, hostArch: runtime.GOARCH}
}

// EstablishTrust tags, signs and pushes the configured image, returning the
// signed image reference. Any failure aborts the run; there is no retry at
// this layer.
func (s *Signer) EstablishTrust(ctx context.Context, cfg config.DeploymentConfig) (interfaces.SignedImageRef, error) {
	var zero interfaces.SignedImageRef

	// Step 1: resolve the local reference. A local build on a foreign
	// architecture can never run on the hosting service, so fail before
	// attempting any network call.
	if cfg.Source == interfaces.SourceLocalBuild && s.hostArch != hostArchTarget {
		return zero, fmt.Errorf("%w: local-build image for %s cannot be produced on a %s host", interfaces.ErrConfiguration, hostArchTarget, s.hostArch)
	}
	localRef := cfg.LocalImageRef()
	target := cfg.TargetImageRef()

	// Step 2: tag. Failure means the local image does not exist.
	if err := s.runtime.Tag(ctx, localRef, target.String()); err != nil {
		return zero, fmt.Errorf("%w: %v", interfaces.ErrBuild, err)
	}
	s.log.Info("tagged image", "source", localRef, "target", target.String())

	// Step 3: registry login.
	if err := s.runtime.Login(ctx, cfg.Registry.URL, cfg.Registry.User, cfg.Registry.Password); err != nil {
		return zero, fmt.Errorf("%w: %v", interfaces.ErrAuth, err)
	}

	// Step 4: delegation setup, or root-only signing when no delegation
	// key material was supplied.
	passphrase := cfg.Trust.RootPassphrase
	if d := cfg.Trust.Delegation; d.Enabled() {
		if err := s.setupDelegation(ctx, target, d, cfg.Trust); err != nil {
			return zero, err
		}
		passphrase = d.Passphrase
	} else {
		s.log.Info("no delegation key configured, signing with the repository root key",
			"repository", target.Repository)
	}

	// Step 5: signed push. Layers and trust metadata go out in one step;
	// on failure no partial state is usable.
	if err := s.runtime.PushSigned(ctx, target.String(), passphrase, cfg.Trust.Server); err != nil {
		return zero, fmt.Errorf("signed push of %s failed: %w", target.String(), err)
	}
	s.log.Info("signed and pushed image", "ref", target.String())

	return target, nil
}

// setupDelegation loads the delegation private key and registers the
// delegation public key under the shared releases role plus a
// repository-specific delegation.
func (s *Signer) setupDelegation(ctx context.Context, target interfaces.SignedImageRef, d interfaces.TrustDelegation, tc config.TrustConfig) error {
	if _, err := os.Stat(d.PrivateKeyFile); err != nil {
		return fmt.Errorf("%w: delegation private key %s is not readable: %v", interfaces.ErrCrypto, d.PrivateKeyFile, err)
	}

	if err := s.runtime.LoadDelegationKey(ctx, d.PrivateKeyFile, d.KeyName, d.Passphrase); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrCrypto, err)
	}

	repo := fmt.Sprintf("%s/%s/%s", target.RegistryURL, target.Namespace, target.Repository)
	if err := s.runtime.AddDelegationSigner(ctx, repo, releasesDelegation, d.PublicKeyFile, tc.RootPassphrase, tc.Server); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrCrypto, err)
	}
	if err := s.runtime.AddDelegationSigner(ctx, repo, d.KeyName, d.PublicKeyFile, tc.RootPassphrase, tc.Server); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrCrypto, err)
	}

	s.log.Info("delegation registered", "repository", repo, "signer", d.KeyName)
	return nil
}
