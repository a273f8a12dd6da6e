// Package interfaces defines the core types and collaborator contracts for
// the secure deployment pipeline.
//
// This package provides the contracts between the pipeline components without
// including implementation details. It separates the interface definitions
// from their implementations, allowing for:
//
//   - Clear separation of concerns
//   - Multiple implementations of the same interface
//   - Better testability through mock implementations
//   - Reduced coupling between components
//
// # Collaborator Interfaces
//
//   - ContainerRuntime: container engine primitives (tag, login, logout,
//     content-trust signing and push)
//   - Keyring: OpenPGP key import, encryption and signing
//   - CloudAPI: token exchange, account and resource-group lookup, instance
//     provisioning
//   - StorageBackend / StorageBackendFactory: content-addressed archival of
//     sealed registration artifacts
//
// # Type Definitions
//
// The package defines the values passed between pipeline stages:
//
//   - Platform / SourceMode: closed enumerations replacing string matching;
//     invalid values fail at construction time
//   - SignedImageRef: an image reference that exists only after a successful
//     signed push
//   - RegistrationDocument / EncryptedRegistrationArtifact: the cleartext
//     descriptor and its sealed form
//   - CloudSession / ProvisionedInstance: the short-lived cloud context and
//     the accepted provisioning result
//
// # Error Classes
//
// Sentinel errors classify every failure for the orchestrator and the
// operator-facing fatal message:
//
//   - ErrConfiguration: invalid settings, raised before any network call
//   - ErrAuth: registry or cloud authentication failure
//   - ErrBuild: local image not found or not taggable
//   - ErrCrypto: key import, encryption or signing failure
//   - ErrTransient / ErrRequestRejected: cloud API failures by response class
//
// Components wrap sentinels with fmt.Errorf("...: %w", ...) and the
// orchestrator adds a StageError naming the failed stage.
package interfaces
