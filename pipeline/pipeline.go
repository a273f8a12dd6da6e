// Package pipeline sequences the secure deployment pipeline end to end:
// trust establishment, registration sealing and instance provisioning, in
// that order, with fail-fast semantics and a best-effort registry logout that
// always runs.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/atomic"

	"github.com/fhelab/hpvs-deployer/config"
	"github.com/fhelab/hpvs-deployer/interfaces"
)

// TrustSigner establishes content trust and pushes the signed image.
type TrustSigner interface {
	EstablishTrust(ctx context.Context, cfg config.DeploymentConfig) (interfaces.SignedImageRef, error)
}

// RegistrationBuilder builds and seals the registration document.
type RegistrationBuilder interface {
	BuildAndSeal(ctx context.Context, cfg config.DeploymentConfig, ref interfaces.SignedImageRef) (interfaces.EncryptedRegistrationArtifact, error)
}

// InstanceProvisioner submits the provisioning request.
type InstanceProvisioner interface {
	Provision(ctx context.Context, artifact interfaces.EncryptedRegistrationArtifact, ref interfaces.SignedImageRef, cfg config.DeploymentConfig) (interfaces.ProvisionedInstance, error)
}

// Runner drives the pipeline. All fields must be set; use New.
type Runner struct {
	signer      TrustSigner
	builder     RegistrationBuilder
	provisioner InstanceProvisioner
	runtime     interfaces.ContainerRuntime
	archives    interfaces.StorageBackendFactory
	log         *slog.Logger

	loggedOut atomic.Bool
}

// New creates a pipeline runner. The archive factory may be nil when
// artifact archiving is not configured.
func New(signer TrustSigner, builder RegistrationBuilder, provisioner InstanceProvisioner, rt interfaces.ContainerRuntime, archives interfaces.StorageBackendFactory, log *slog.Logger) *Runner {
	return &Runner{
		signer:      signer,
		builder:     builder,
		provisioner: provisioner,
		runtime:     rt,
		archives:    archives,
		log:         log,
	}
}

// Run executes the pipeline for the resolved configuration. The sequence is
// strict and never reordered: establish trust and push, build and seal the
// registration, provision the instance. Any component error halts the run
// immediately; the registry logout cleanup still happens, exactly once, and
// its own failure never fails the run.
func (r *Runner) Run(ctx context.Context, cfg config.DeploymentConfig) (interfaces.ProvisionedInstance, error) {
	var zero interfaces.ProvisionedInstance
	defer r.logout(cfg)

	ref, err := r.signer.EstablishTrust(ctx, cfg)
	if err != nil {
		return zero, &interfaces.StageError{Stage: "trust", Subject: cfg.Platform.Repository(), Err: err}
	}

	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("%w: run cancelled after trust establishment: %v", interfaces.ErrTransient, err)
	}

	artifact, err := r.builder.BuildAndSeal(ctx, cfg, ref)
	if err != nil {
		return zero, &interfaces.StageError{Stage: "registration", Subject: cfg.RegistrationFile, Err: err}
	}

	if err := ctx.Err(); err != nil {
		// A cancelled seal must not be provisioned even if the artifact
		// file was produced.
		return zero, fmt.Errorf("%w: run cancelled after registration sealing: %v", interfaces.ErrTransient, err)
	}

	instance, err := r.provisioner.Provision(ctx, artifact, ref, cfg)
	if err != nil {
		return zero, &interfaces.StageError{Stage: "provision", Subject: cfg.Cloud.InstanceName, Err: err}
	}

	r.archive(ctx, cfg, artifact)
	return instance, nil
}

// logout removes the registry credentials stored by the trust stage. It runs
// on every exit path but only acts once per run.
func (r *Runner) logout(cfg config.DeploymentConfig) {
	if !r.loggedOut.CompareAndSwap(false, true) {
		return
	}
	// Fresh context: the run's context may already be cancelled.
	if err := r.runtime.Logout(context.Background(), cfg.Registry.URL); err != nil {
		r.log.Warn("registry logout failed", "registry", cfg.Registry.URL, "err", err)
	}
}

// archive stores the sealed artifact in the configured archive backend.
// Best-effort: a failure is logged, never surfaced.
func (r *Runner) archive(ctx context.Context, cfg config.DeploymentConfig, artifact interfaces.EncryptedRegistrationArtifact) {
	if cfg.ArchiveURI == "" || r.archives == nil {
		return
	}

	backend, err := r.archives.StorageBackendFor(cfg.ArchiveURI)
	if err != nil {
		r.log.Warn("artifact archive unavailable", "uri", cfg.ArchiveURI, "err", err)
		return
	}
	id, err := backend.Store(ctx, artifact.Ciphertext)
	if err != nil {
		r.log.Warn("artifact archiving failed", "uri", cfg.ArchiveURI, "err", err)
		return
	}
	r.log.Info("archived sealed registration artifact", "id", id.String(), "backend", backend.LocationURI())
}
