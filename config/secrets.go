package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	vaultapi "github.com/hashicorp/vault/api"
)

// SecretResolver resolves secret field references in the configuration file.
// Supported forms:
//
//	literal-value
//	env://VARIABLE_NAME
//	vault://<mount>/<path>#<field>
//
// Vault references use the standard VAULT_ADDR / VAULT_TOKEN environment for
// client configuration. The client is created lazily on first use so runs
// without vault references never touch Vault.
type SecretResolver struct {
	log *slog.Logger

	mu     sync.Mutex
	client *vaultapi.Client

	// newClient is swapped out in tests.
	newClient func() (*vaultapi.Client, error)
}

// NewSecretResolver creates a resolver with the default Vault client
// construction.
func NewSecretResolver(log *slog.Logger) *SecretResolver {
	return &SecretResolver{
		log: log,
		newClient: func() (*vaultapi.Client, error) {
			return vaultapi.NewClient(vaultapi.DefaultConfig())
		},
	}
}

// Resolve returns the secret value a configuration field refers to. Literal
// values pass through unchanged.
func (r *SecretResolver) Resolve(ctx context.Context, ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "env://"):
		name := strings.TrimPrefix(ref, "env://")
		value, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("environment variable %s is not set", name)
		}
		return value, nil
	case strings.HasPrefix(ref, "vault://"):
		return r.resolveVault(ctx, strings.TrimPrefix(ref, "vault://"))
	default:
		return ref, nil
	}
}

// resolveVault reads <mount>/<path>#<field> from Vault's KV v2 API.
func (r *SecretResolver) resolveVault(ctx context.Context, ref string) (string, error) {
	location, field, ok := strings.Cut(ref, "#")
	if !ok {
		return "", fmt.Errorf("vault reference %q is missing the #field part", ref)
	}
	mount, secretPath, ok := strings.Cut(location, "/")
	if !ok {
		return "", fmt.Errorf("vault reference %q is missing the secret path", ref)
	}

	client, err := r.vaultClient()
	if err != nil {
		return "", fmt.Errorf("could not create vault client: %w", err)
	}

	// KV v2 path structure, matching `vault kv get <mount>/<path>`.
	readPath := fmt.Sprintf("%s/data/%s", mount, secretPath)
	secret, err := client.Logical().ReadWithContext(ctx, readPath)
	if err != nil {
		return "", fmt.Errorf("vault read %s: %w", readPath, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("vault secret %s not found", readPath)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("vault secret %s has no KV v2 data", readPath)
	}
	value, ok := data[field].(string)
	if !ok {
		return "", fmt.Errorf("vault secret %s has no string field %q", readPath, field)
	}

	r.log.Debug("resolved secret from vault", "path", readPath, "field", field)
	return value, nil
}

func (r *SecretResolver) vaultClient() (*vaultapi.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client, nil
	}
	client, err := r.newClient()
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}
