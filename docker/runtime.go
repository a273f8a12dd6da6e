// Package docker implements the interfaces.ContainerRuntime collaborator on
// top of the docker CLI. Every primitive is an opaque command invocation; the
// pipeline only sees success or failure plus the command output for logging.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/fhelab/hpvs-deployer/interfaces"
)

// Content trust environment variables understood by the docker CLI.
const (
	envContentTrust         = "DOCKER_CONTENT_TRUST=1"
	envTrustServer          = "DOCKER_CONTENT_TRUST_SERVER"
	envRootPassphrase       = "DOCKER_CONTENT_TRUST_ROOT_PASSPHRASE"
	envRepositoryPassphrase = "DOCKER_CONTENT_TRUST_REPOSITORY_PASSPHRASE"
)

// Runtime executes docker CLI commands. The zero value is not usable; create
// instances with NewRuntime.
type Runtime struct {
	bin string
	log *slog.Logger
}

// NewRuntime creates a docker-CLI-backed container runtime.
func NewRuntime(log *slog.Logger) *Runtime {
	return &Runtime{bin: "docker", log: log}
}

// Tag applies target as an additional reference for source.
func (r *Runtime) Tag(ctx context.Context, source, target string) error {
	if _, err := r.run(ctx, nil, nil, "tag", source, target); err != nil {
		return fmt.Errorf("could not tag %s as %s: %w", source, target, err)
	}
	return nil
}

// Login authenticates to the registry. The password is passed on stdin so it
// never appears in the process table.
func (r *Runtime) Login(ctx context.Context, registryURL, user, password string) error {
	stdin := strings.NewReader(password)
	if _, err := r.run(ctx, nil, stdin, "login", "-u", user, "--password-stdin", registryURL); err != nil {
		return fmt.Errorf("could not log in to %s as %s: %w", registryURL, user, err)
	}
	return nil
}

// Logout removes the stored credentials for the registry.
func (r *Runtime) Logout(ctx context.Context, registryURL string) error {
	if _, err := r.run(ctx, nil, nil, "logout", registryURL); err != nil {
		return fmt.Errorf("could not log out of %s: %w", registryURL, err)
	}
	return nil
}

// LoadDelegationKey imports the delegation private key into the local trust
// store under the given name.
func (r *Runtime) LoadDelegationKey(ctx context.Context, privateKeyFile, keyName, passphrase string) error {
	env := []string{fmt.Sprintf("%s=%s", envRepositoryPassphrase, passphrase)}
	if _, err := r.run(ctx, env, nil, "trust", "key", "load", privateKeyFile, "--name", keyName); err != nil {
		return fmt.Errorf("could not load delegation key %s from %s: %w", keyName, privateKeyFile, err)
	}
	return nil
}

// AddDelegationSigner registers the delegation public key as an authorized
// signer for the repository, initializing the repository trust data on the
// trust server if needed.
func (r *Runtime) AddDelegationSigner(ctx context.Context, repository, keyName, publicKeyFile, rootPassphrase, trustServer string) error {
	env := []string{
		fmt.Sprintf("%s=%s", envTrustServer, trustServer),
		fmt.Sprintf("%s=%s", envRootPassphrase, rootPassphrase),
		fmt.Sprintf("%s=%s", envRepositoryPassphrase, rootPassphrase),
	}
	if _, err := r.run(ctx, env, nil, "trust", "signer", "add", "--key", publicKeyFile, keyName, repository); err != nil {
		return fmt.Errorf("could not add signer %s to %s: %w", keyName, repository, err)
	}
	return nil
}

// PushSigned pushes the image with content trust enabled, signing with the
// given passphrase. Layers and trust metadata go out in one command.
func (r *Runtime) PushSigned(ctx context.Context, ref, passphrase, trustServer string) error {
	env := []string{
		envContentTrust,
		fmt.Sprintf("%s=%s", envTrustServer, trustServer),
		fmt.Sprintf("%s=%s", envRepositoryPassphrase, passphrase),
	}
	if _, err := r.run(ctx, env, nil, "push", ref); err != nil {
		return fmt.Errorf("could not push signed image %s: %w", ref, err)
	}
	return nil
}

// run invokes the docker CLI and returns its combined output. extraEnv is
// appended to the inherited environment so passphrases reach the CLI without
// showing up in arguments.
func (r *Runtime) run(ctx context.Context, extraEnv []string, stdin *strings.Reader, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.bin, args...)
	cmd.Env = append(os.Environ(), extraEnv...)
	if stdin != nil {
		cmd.Stdin = stdin
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	r.log.Debug("running container runtime command", "args", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return out.String(), fmt.Errorf("%w: docker %s interrupted: %v", interfaces.ErrTransient, args[0], ctx.Err())
		}
		return out.String(), fmt.Errorf("docker %s: %v: %s", args[0], err, strings.TrimSpace(out.String()))
	}
	return out.String(), nil
}
