package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fhelab/hpvs-deployer/config"
	"github.com/fhelab/hpvs-deployer/interfaces"
)

// expirySlack refreshes the token slightly before it actually expires so a
// long run never submits with a token about to lapse mid-request.
const expirySlack = 30 * time.Second

// Provisioner resolves cloud context and submits provisioning requests
// through a CloudAPI.
type Provisioner struct {
	api interfaces.CloudAPI
	log *slog.Logger

	// now is swapped out in tests.
	now func() time.Time
}

// NewProvisioner creates a provisioner using the given control plane client.
func NewProvisioner(api interfaces.CloudAPI, log *slog.Logger) *Provisioner {
	return &Provisioner{api: api, log: log, now: time.Now}
}

// Provision exchanges the API key for a session, resolves the resource group
// and submits the provisioning request carrying the sealed registration
// artifact. It does not poll for readiness: the returned instance identifier
// means the request was accepted.
func (p *Provisioner) Provision(ctx context.Context, artifact interfaces.EncryptedRegistrationArtifact, ref interfaces.SignedImageRef, cfg config.DeploymentConfig) (interfaces.ProvisionedInstance, error) {
	var zero interfaces.ProvisionedInstance

	session, err := p.newSession(ctx, cfg)
	if err != nil {
		return zero, err
	}

	// Resolve the resource group only when none was configured: account
	// lookup first, then the account's default group.
	session.ResourceGroupID = cfg.Cloud.ResourceGroup
	if session.ResourceGroupID == "" {
		session.AccountID, err = p.api.LookupAccount(ctx, session.AccessToken, cfg.Cloud.APIKey)
		if err != nil {
			return zero, fmt.Errorf("account lookup failed: %w", err)
		}
		session.ResourceGroupID, err = p.api.DefaultResourceGroup(ctx, session.AccessToken, session.AccountID)
		if err != nil {
			return zero, fmt.Errorf("resource group lookup failed: %w", err)
		}
		p.log.Info("resolved default resource group",
			"account", session.AccountID, "resource_group", session.ResourceGroupID)
	}

	if session, err = p.refreshIfNeeded(ctx, session, cfg); err != nil {
		return zero, err
	}

	instanceID, err := p.api.CreateInstance(ctx, session.AccessToken, interfaces.ProvisionRequest{
		Name:            cfg.Cloud.InstanceName,
		Location:        cfg.Cloud.Location,
		ResourceGroupID: session.ResourceGroupID,
		ResourcePlanID:  cfg.Cloud.ResourcePlanID,
		Tag:             ref.Tag,
		Registration:    artifact.Ciphertext,
	})
	if err != nil {
		return zero, fmt.Errorf("provisioning request failed: %w", err)
	}

	p.log.Info("provisioning request accepted",
		"instance_id", instanceID, "name", cfg.Cloud.InstanceName, "location", cfg.Cloud.Location)
	return interfaces.ProvisionedInstance{
		InstanceID:     instanceID,
		Location:       cfg.Cloud.Location,
		ResourcePlanID: cfg.Cloud.ResourcePlanID,
		SourceTag:      ref.Tag,
	}, nil
}

func (p *Provisioner) newSession(ctx context.Context, cfg config.DeploymentConfig) (interfaces.CloudSession, error) {
	token, expiry, err := p.api.ExchangeToken(ctx, cfg.Cloud.APIKey)
	if err != nil {
		return interfaces.CloudSession{}, fmt.Errorf("token exchange failed: %w", err)
	}
	return interfaces.CloudSession{AccessToken: token, Expiry: expiry}, nil
}

// refreshIfNeeded re-exchanges the API key when the session token is at or
// past its expiry slack. Lookups that ran before this point used the original
// token; only the submission needs a fresh one.
func (p *Provisioner) refreshIfNeeded(ctx context.Context, session interfaces.CloudSession, cfg config.DeploymentConfig) (interfaces.CloudSession, error) {
	if !session.Expired(p.now().Add(expirySlack)) {
		return session, nil
	}

	p.log.Debug("session token near expiry, refreshing")
	fresh, err := p.newSession(ctx, cfg)
	if err != nil {
		return interfaces.CloudSession{}, err
	}
	fresh.AccountID = session.AccountID
	fresh.ResourceGroupID = session.ResourceGroupID
	return fresh, nil
}
