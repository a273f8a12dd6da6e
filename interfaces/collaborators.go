package interfaces

import (
	"context"
	"time"
)

// ContainerRuntime abstracts the container engine primitives the pipeline
// needs. Implementations return the call's combined output for logging; the
// pipeline treats every call as an opaque success or failure.
type ContainerRuntime interface {
	// Tag applies target as an additional reference for source.
	Tag(ctx context.Context, source, target string) error

	// Login authenticates to the registry with the given credentials.
	Login(ctx context.Context, registryURL, user, password string) error

	// Logout removes the stored credentials for the registry.
	Logout(ctx context.Context, registryURL string) error

	// LoadDelegationKey imports a delegation private key into the local
	// trust store under the given name.
	LoadDelegationKey(ctx context.Context, privateKeyFile, keyName, passphrase string) error

	// AddDelegationSigner registers the delegation public key as an
	// authorized signer for the repository, creating the repository trust
	// data on the trust server if needed. Requires the root passphrase.
	AddDelegationSigner(ctx context.Context, repository, keyName, publicKeyFile, rootPassphrase, trustServer string) error

	// PushSigned pushes the image reference with content trust enabled,
	// signing with the given passphrase. Image layers and trust metadata
	// are pushed in one step; on failure no partial state is usable.
	PushSigned(ctx context.Context, ref, passphrase, trustServer string) error
}

// Keyring abstracts the OpenPGP keyring operations used to seal registration
// documents for the hosting service.
type Keyring interface {
	// ImportPublicKey loads an armored public key and returns its
	// fingerprint. Importing an already known key is not an error.
	ImportPublicKey(armored []byte) (string, error)

	// ImportPrivateKey loads and unlocks an armored private key.
	ImportPrivateKey(armored, passphrase []byte) (string, error)

	// EncryptAndSign encrypts plaintext for the recipient key and signs it
	// with the named private key in one pass, returning the armored
	// message.
	EncryptAndSign(plaintext []byte, recipientFingerprint, signerFingerprint string) ([]byte, error)
}

// CloudAPI abstracts the hosting service's HTTPS control plane. Exact
// request and response schemas are the implementation's concern.
type CloudAPI interface {
	// ExchangeToken trades the API key for a short-lived bearer token.
	ExchangeToken(ctx context.Context, apiKey string) (token string, expiry time.Time, err error)

	// LookupAccount resolves the account identifier owning the API key.
	LookupAccount(ctx context.Context, token, apiKey string) (accountID string, err error)

	// DefaultResourceGroup returns the account's default resource group
	// identifier.
	DefaultResourceGroup(ctx context.Context, token, accountID string) (groupID string, err error)

	// CreateInstance submits the provisioning request and returns the
	// accepted instance identifier.
	CreateInstance(ctx context.Context, token string, req ProvisionRequest) (instanceID string, err error)
}

// ProvisionRequest carries the fields of a provisioning submission.
type ProvisionRequest struct {
	Name            string
	Location        string
	ResourceGroupID string
	ResourcePlanID  string
	Tag             string
	Registration    []byte
}
