// Package config resolves the deployment configuration for the secure
// deployment pipeline. It loads a YAML configuration file, resolves secret
// references, applies documented defaults and validates the result into one
// immutable DeploymentConfig value.
package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/fhelab/hpvs-deployer/interfaces"
)

// Documented defaults applied when the configuration leaves a field unset.
const (
	// DefaultLocation is the hosting service region used when none is
	// configured.
	DefaultLocation = "dal13"

	// DefaultResourcePlanID is the plan identifier of the free hosting
	// tier.
	DefaultResourcePlanID = "bb0005a1-ec13-4ee4-86f4-0c3b15a357d5"

	// DefaultTrustServer serves the content trust metadata for Docker Hub
	// repositories.
	DefaultTrustServer = "https://notary.docker.io"

	// DefaultRegistryURL is the registry images are pushed to.
	DefaultRegistryURL = "docker.io"

	// DefaultSourceNamespace is the public namespace the published toolkit
	// images are pulled from in remote-registry mode.
	DefaultSourceNamespace = "fhelab"

	// DefaultIAMEndpoint issues bearer tokens for API keys.
	DefaultIAMEndpoint = "https://iam.cloud.ibm.com"

	// DefaultResourceEndpoint serves account, resource-group and
	// provisioning requests.
	DefaultResourceEndpoint = "https://resource-controller.cloud.ibm.com"

	// DefaultTag is the image tag deployed when none is configured.
	DefaultTag = "latest"
)

// hostArchTarget is the only host architecture that can produce images the
// hosting service runs.
const hostArchTarget = "s390x"

// RegistryConfig holds the push registry coordinates and credentials.
type RegistryConfig struct {
	URL       string
	Namespace string
	User      string
	Password  string
}

// TrustConfig holds the content trust parameters.
type TrustConfig struct {
	RootPassphrase string
	Server         string
	Delegation     interfaces.TrustDelegation
}

// VendorConfig holds the vendor OpenPGP key pair used to sign registration
// documents.
type VendorConfig struct {
	PublicKeyFile  string
	PrivateKeyFile string
	KeyName        string
	Passphrase     string
}

// CloudConfig holds the hosting service credentials and target parameters.
type CloudConfig struct {
	APIKey           string
	IAMEndpoint      string
	ResourceEndpoint string
	Location         string
	ResourceGroup    string
	ResourcePlanID   string
	InstanceName     string
}

// DeploymentConfig is the immutable set of parameters a deployment run needs.
// It is constructed once by Resolve and passed by value between components.
type DeploymentConfig struct {
	Platform interfaces.Platform
	Source   interfaces.SourceMode
	Tag      string

	Registry RegistryConfig
	Trust    TrustConfig
	Vendor   VendorConfig

	// RecipientKeyFile is the hosting service's armored public key used to
	// encrypt registration documents. It comes from a fixed well-known
	// source, not from user input.
	RecipientKeyFile string

	Cloud CloudConfig

	// RegistrationFile is where the sealed registration artifact ends up.
	RegistrationFile string

	// ArchiveURI optionally names a storage backend sealed artifacts are
	// archived to after a successful provision.
	ArchiveURI string
}

// LocalImageRef returns the image reference to tag for pushing, as determined
// jointly by platform and source mode.
func (c DeploymentConfig) LocalImageRef() string {
	repo := c.Platform.Repository()
	if c.Source == interfaces.SourceLocalBuild {
		return fmt.Sprintf("%s:%s", repo, c.Tag)
	}
	return fmt.Sprintf("%s/%s:%s", DefaultSourceNamespace, repo, c.Tag)
}

// TargetImageRef returns the signed image reference the pipeline pushes and
// provisions.
func (c DeploymentConfig) TargetImageRef() interfaces.SignedImageRef {
	return interfaces.SignedImageRef{
		RegistryURL: c.Registry.URL,
		Namespace:   c.Registry.Namespace,
		Repository:  c.Platform.Repository(),
		Tag:         c.Tag,
	}
}

// fileConfig mirrors the YAML configuration file layout.
type fileConfig struct {
	Platform string `yaml:"platform"`
	Source   string `yaml:"source"`
	Tag      string `yaml:"tag"`

	Registry struct {
		URL       string `yaml:"url"`
		Namespace string `yaml:"namespace"`
		User      string `yaml:"user"`
		Password  string `yaml:"password"`
	} `yaml:"registry"`

	Trust struct {
		RootPassphrase string `yaml:"root_passphrase"`
		Server         string `yaml:"server"`
		Delegation     struct {
			KeyName        string `yaml:"key_name"`
			PublicKeyFile  string `yaml:"public_key_file"`
			PrivateKeyFile string `yaml:"private_key_file"`
			Passphrase     string `yaml:"passphrase"`
		} `yaml:"delegation"`
	} `yaml:"trust"`

	Vendor struct {
		PublicKeyFile  string `yaml:"public_key_file"`
		PrivateKeyFile string `yaml:"private_key_file"`
		KeyName        string `yaml:"key_name"`
		Passphrase     string `yaml:"passphrase"`
	} `yaml:"vendor"`

	RecipientKeyFile string `yaml:"recipient_key_file"`

	Cloud struct {
		APIKey           string `yaml:"api_key"`
		IAMEndpoint      string `yaml:"iam_endpoint"`
		ResourceEndpoint string `yaml:"resource_endpoint"`
		Location         string `yaml:"location"`
		ResourceGroup    string `yaml:"resource_group"`
		ResourcePlanID   string `yaml:"resource_plan_id"`
		InstanceName     string `yaml:"instance_name"`
	} `yaml:"cloud"`

	RegistrationFile string `yaml:"registration_file"`
	ArchiveURI       string `yaml:"archive_uri"`
}

// Options adjust how Resolve interprets the configuration file.
type Options struct {
	// Platform overrides the file's platform when non-empty (CLI
	// positional argument).
	Platform string

	// LocalBuild forces local-build source mode (CLI flag).
	LocalBuild bool

	// HostArch overrides the detected host architecture. Empty means
	// runtime.GOARCH. Used by tests.
	HostArch string

	// Secrets resolves secret references. Nil means NewSecretResolver.
	Secrets *SecretResolver

	// Log receives resolution diagnostics. Nil means a discard logger.
	Log *slog.Logger
}

// Resolve loads, resolves and validates the configuration file at path into
// an immutable DeploymentConfig. All defaults are applied here; no component
// downstream re-checks whether a field was set.
func Resolve(ctx context.Context, path string, opts Options) (DeploymentConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return DeploymentConfig{}, fmt.Errorf("%w: could not read configuration file %s: %v", interfaces.ErrConfiguration, path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return DeploymentConfig{}, fmt.Errorf("%w: could not parse configuration file %s: %v", interfaces.ErrConfiguration, path, err)
	}

	return resolveFileConfig(ctx, fc, opts)
}

func resolveFileConfig(ctx context.Context, fc fileConfig, opts Options) (DeploymentConfig, error) {
	log := opts.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	platformName := fc.Platform
	if opts.Platform != "" {
		platformName = opts.Platform
	}
	platform, err := interfaces.ParsePlatform(platformName)
	if err != nil {
		return DeploymentConfig{}, err
	}

	sourceName := fc.Source
	if opts.LocalBuild {
		sourceName = "local-build"
	}
	source, err := interfaces.ParseSourceMode(sourceName)
	if err != nil {
		return DeploymentConfig{}, err
	}

	hostArch := opts.HostArch
	if hostArch == "" {
		hostArch = runtime.GOARCH
	}
	if source == interfaces.SourceLocalBuild && hostArch != hostArchTarget {
		return DeploymentConfig{}, fmt.Errorf("%w: local-build requires a %s host, this host is %s", interfaces.ErrConfiguration, hostArchTarget, hostArch)
	}

	secrets := opts.Secrets
	if secrets == nil {
		secrets = NewSecretResolver(log)
	}

	cfg := DeploymentConfig{
		Platform: platform,
		Source:   source,
		Tag:      defaultString(fc.Tag, DefaultTag),
		Registry: RegistryConfig{
			URL:       defaultString(fc.Registry.URL, DefaultRegistryURL),
			Namespace: fc.Registry.Namespace,
			User:      fc.Registry.User,
		},
		Trust: TrustConfig{
			Server: defaultString(fc.Trust.Server, DefaultTrustServer),
			Delegation: interfaces.TrustDelegation{
				KeyName:        fc.Trust.Delegation.KeyName,
				PublicKeyFile:  fc.Trust.Delegation.PublicKeyFile,
				PrivateKeyFile: fc.Trust.Delegation.PrivateKeyFile,
			},
		},
		Vendor: VendorConfig{
			PublicKeyFile:  fc.Vendor.PublicKeyFile,
			PrivateKeyFile: fc.Vendor.PrivateKeyFile,
			KeyName:        fc.Vendor.KeyName,
		},
		RecipientKeyFile: fc.RecipientKeyFile,
		Cloud: CloudConfig{
			IAMEndpoint:      defaultString(fc.Cloud.IAMEndpoint, DefaultIAMEndpoint),
			ResourceEndpoint: defaultString(fc.Cloud.ResourceEndpoint, DefaultResourceEndpoint),
			Location:         defaultString(fc.Cloud.Location, DefaultLocation),
			ResourceGroup:    fc.Cloud.ResourceGroup,
			ResourcePlanID:   defaultString(fc.Cloud.ResourcePlanID, DefaultResourcePlanID),
			InstanceName:     fc.Cloud.InstanceName,
		},
		RegistrationFile: fc.RegistrationFile,
		ArchiveURI:       fc.ArchiveURI,
	}

	if cfg.Cloud.InstanceName == "" {
		cfg.Cloud.InstanceName = fmt.Sprintf("fhe-toolkit-%s-%s", platform, shortUID())
		log.Debug("no instance name configured, generated one", "name", cfg.Cloud.InstanceName)
	}

	// Secret-bearing fields may hold literals or env:// / vault://
	// references.
	secretFields := []struct {
		name string
		src  string
		dst  *string
	}{
		{"registry.password", fc.Registry.Password, &cfg.Registry.Password},
		{"trust.root_passphrase", fc.Trust.RootPassphrase, &cfg.Trust.RootPassphrase},
		{"trust.delegation.passphrase", fc.Trust.Delegation.Passphrase, &cfg.Trust.Delegation.Passphrase},
		{"vendor.passphrase", fc.Vendor.Passphrase, &cfg.Vendor.Passphrase},
		{"cloud.api_key", fc.Cloud.APIKey, &cfg.Cloud.APIKey},
	}
	for _, f := range secretFields {
		resolved, err := secrets.Resolve(ctx, f.src)
		if err != nil {
			return DeploymentConfig{}, fmt.Errorf("%w: could not resolve %s: %v", interfaces.ErrConfiguration, f.name, err)
		}
		*f.dst = resolved
	}

	if err := validate(cfg); err != nil {
		return DeploymentConfig{}, err
	}
	return cfg, nil
}

func validate(cfg DeploymentConfig) error {
	required := []struct {
		name  string
		value string
	}{
		{"registry.namespace", cfg.Registry.Namespace},
		{"registry.user", cfg.Registry.User},
		{"registry.password", cfg.Registry.Password},
		{"trust.root_passphrase", cfg.Trust.RootPassphrase},
		{"vendor.public_key_file", cfg.Vendor.PublicKeyFile},
		{"vendor.private_key_file", cfg.Vendor.PrivateKeyFile},
		{"vendor.key_name", cfg.Vendor.KeyName},
		{"recipient_key_file", cfg.RecipientKeyFile},
		{"cloud.api_key", cfg.Cloud.APIKey},
		{"registration_file", cfg.RegistrationFile},
	}
	var missing []string
	for _, f := range required {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required settings: %s", interfaces.ErrConfiguration, strings.Join(missing, ", "))
	}

	d := cfg.Trust.Delegation
	if d.Enabled() && d.PrivateKeyFile == "" {
		return fmt.Errorf("%w: trust.delegation.key_name is set but trust.delegation.private_key_file is not", interfaces.ErrConfiguration)
	}
	return nil
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func shortUID() string {
	return uuid.NewString()[:8]
}
