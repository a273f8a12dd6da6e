// Package interfaces defines the core types and collaborator contracts for the
// secure deployment pipeline. It provides the contract between components
// without implementation details.
package interfaces

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies the container image OS variant to deploy.
type Platform int

const (
	PlatformAlpine Platform = iota
	PlatformFedora
	PlatformUbuntu
)

// ParsePlatform converts a platform name into a Platform. The comparison is
// case-insensitive. An empty string resolves to the fedora default.
func ParsePlatform(name string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "fedora":
		return PlatformFedora, nil
	case "alpine":
		return PlatformAlpine, nil
	case "ubuntu":
		return PlatformUbuntu, nil
	default:
		return 0, fmt.Errorf("%w: unsupported platform %q (expected alpine, fedora or ubuntu)", ErrConfiguration, name)
	}
}

// String returns the lowercase platform name.
func (p Platform) String() string {
	switch p {
	case PlatformAlpine:
		return "alpine"
	case PlatformFedora:
		return "fedora"
	case PlatformUbuntu:
		return "ubuntu"
	default:
		return "unknown"
	}
}

// Repository returns the image repository name for the platform. All toolkit
// images target the s390x architecture class of the hosting service.
func (p Platform) Repository() string {
	return fmt.Sprintf("fhe-toolkit-%s-s390x", p)
}

// SourceMode selects where the image to sign and push comes from.
type SourceMode int

const (
	// SourceRemoteRegistry deploys the published toolkit image pulled from
	// the public registry.
	SourceRemoteRegistry SourceMode = iota
	// SourceLocalBuild deploys an image built on this host. Only valid on
	// s390x hosts since the hosting service cannot run foreign binaries.
	SourceLocalBuild
)

// ParseSourceMode converts a source mode name into a SourceMode.
func ParseSourceMode(name string) (SourceMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "remote-registry":
		return SourceRemoteRegistry, nil
	case "local-build":
		return SourceLocalBuild, nil
	default:
		return 0, fmt.Errorf("%w: unsupported source mode %q (expected remote-registry or local-build)", ErrConfiguration, name)
	}
}

// String returns the source mode name.
func (m SourceMode) String() string {
	if m == SourceLocalBuild {
		return "local-build"
	}
	return "remote-registry"
}

// SignedImageRef identifies an image that has been content-trust signed and
// pushed. Downstream components must not reference an image before this value
// exists.
type SignedImageRef struct {
	RegistryURL string
	Namespace   string
	Repository  string
	Tag         string
}

// String returns the full image reference.
func (r SignedImageRef) String() string {
	return fmt.Sprintf("%s/%s/%s:%s", r.RegistryURL, r.Namespace, r.Repository, r.Tag)
}

// TrustDelegation holds the optional delegation key material for content
// trust signing. A zero value means root-only signing.
type TrustDelegation struct {
	PublicKeyFile  string
	PrivateKeyFile string
	KeyName        string
	Passphrase     string
}

// Enabled reports whether delegation key material was supplied.
func (d TrustDelegation) Enabled() bool {
	return d.KeyName != ""
}

// RegistrationDocument describes the registry coordinates and credentials the
// hosting service needs to pull the signed image. It exists in cleartext only
// transiently while being sealed.
type RegistrationDocument struct {
	VendorPublicKey  string `json:"public_key"`
	RegistryUser     string `json:"user"`
	RegistryPassword string `json:"password"`
	Namespace        string `json:"namespace"`
	Repository       string `json:"repository"`
	RegistryURL      string `json:"registry"`
}

// EncryptedRegistrationArtifact is the sealed registration document: an
// armored OpenPGP message encrypted for the recipient and signed by the
// vendor key. It replaces the cleartext document at rest.
type EncryptedRegistrationArtifact struct {
	// Ciphertext is the armored encrypted and signed payload.
	Ciphertext []byte
	// Path is where the artifact was written, replacing the cleartext file.
	Path string
}

// CloudSession holds the short-lived credentials and account context derived
// from the API key. It is never persisted beyond the process lifetime.
type CloudSession struct {
	AccessToken     string
	Expiry          time.Time
	AccountID       string
	ResourceGroupID string
}

// Expired reports whether the access token needs to be refreshed before the
// next call.
func (s CloudSession) Expired(now time.Time) bool {
	return !s.Expiry.IsZero() && !now.Before(s.Expiry)
}

// ProvisionedInstance is the terminal output of the pipeline. A non-empty
// InstanceID means the provisioning request was accepted, not that the
// instance is ready; readiness polling is the caller's concern.
type ProvisionedInstance struct {
	InstanceID     string
	Location       string
	ResourcePlanID string
	SourceTag      string
}
