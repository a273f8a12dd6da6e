package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/fhelab/hpvs-deployer/interfaces"
)

// WizardResult holds the user's choices from the configuration wizard.
type WizardResult struct {
	Platform          interfaces.Platform
	RegistryNamespace string
	RegistryUser      string
	Location          string
	InstanceName      string
	KeyDir            string
}

// RunWizard interactively collects the settings a starter configuration file
// needs and writes the file to path. Secret fields are emitted as env://
// references so credentials never land in the file itself.
func RunWizard(ctx context.Context, path string) error {
	result := &WizardResult{
		Platform: interfaces.PlatformFedora,
		Location: DefaultLocation,
		KeyDir:   "keys",
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[interfaces.Platform]().
				Title("Image platform").
				Description("OS variant of the toolkit container image").
				Options(
					huh.NewOption("Fedora", interfaces.PlatformFedora),
					huh.NewOption("Alpine", interfaces.PlatformAlpine),
					huh.NewOption("Ubuntu", interfaces.PlatformUbuntu),
				).
				Value(&result.Platform),
		),

		huh.NewGroup(
			huh.NewInput().
				Title("Registry namespace").
				Description("Docker Hub namespace the signed image is pushed to").
				Placeholder("my-org").
				Value(&result.RegistryNamespace).
				Validate(validateNotEmpty("registry namespace")),

			huh.NewInput().
				Title("Registry user").
				Value(&result.RegistryUser).
				Validate(validateNotEmpty("registry user")),
		),

		huh.NewGroup(
			huh.NewInput().
				Title("Hosting location").
				Description("Region of the hosting service").
				Value(&result.Location),

			huh.NewInput().
				Title("Instance name").
				Description("Leave empty to generate one per run").
				Value(&result.InstanceName),
		),

		huh.NewGroup(
			huh.NewInput().
				Title("Key directory").
				Description("Directory holding the vendor and recipient OpenPGP keys").
				Value(&result.KeyDir).
				Validate(validateNotEmpty("key directory")),
		),
	)

	if err := form.RunWithContext(ctx); err != nil {
		return fmt.Errorf("%w: configuration wizard aborted: %v", interfaces.ErrConfiguration, err)
	}

	return writeStarterConfig(path, result)
}

func writeStarterConfig(path string, result *WizardResult) error {
	content := fmt.Sprintf(`platform: %s
source: remote-registry

registry:
  url: %s
  namespace: %s
  user: %s
  password: env://REGISTRY_PASSWORD

trust:
  root_passphrase: env://TRUST_ROOT_PASSPHRASE
  server: %s

vendor:
  public_key_file: %s/vendor.pub.asc
  private_key_file: %s/vendor.asc
  key_name: vendor
  passphrase: env://VENDOR_KEY_PASSPHRASE

recipient_key_file: %s/recipient.pub.asc

cloud:
  api_key: env://CLOUD_API_KEY
  location: %s
  instance_name: %s

registration_file: registration.json
`,
		result.Platform,
		DefaultRegistryURL,
		result.RegistryNamespace,
		result.RegistryUser,
		DefaultTrustServer,
		result.KeyDir, result.KeyDir, result.KeyDir,
		result.Location,
		result.InstanceName,
	)

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("%w: could not write configuration file %s: %v", interfaces.ErrConfiguration, path, err)
	}
	return nil
}

func validateNotEmpty(field string) func(string) error {
	return func(value string) error {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s must not be empty", field)
		}
		return nil
	}
}
