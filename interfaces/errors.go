package interfaces

import (
	"errors"
	"fmt"
)

// Error classes for the deployment pipeline. Components wrap these sentinels
// so callers can classify failures with errors.Is without depending on the
// failing component.
var (
	// ErrConfiguration indicates missing, invalid or mutually exclusive
	// settings. Always raised before any network call.
	ErrConfiguration = errors.New("configuration error")

	// ErrAuth indicates a registry login or cloud token failure.
	ErrAuth = errors.New("authentication error")

	// ErrBuild indicates the local image could not be found or tagged.
	ErrBuild = errors.New("build error")

	// ErrCrypto indicates a key import, encryption or signing failure. A
	// partially processed artifact must never proceed past this error.
	ErrCrypto = errors.New("crypto error")

	// ErrTransient indicates a network failure or 5xx response from the
	// cloud API. The pipeline performs no automatic retry; the caller may
	// re-invoke the run.
	ErrTransient = errors.New("transient error")

	// ErrRequestRejected indicates the cloud API rejected the request
	// (4xx). Retrying without changing the request will not help.
	ErrRequestRejected = errors.New("request rejected")
)

// StageError annotates a component error with the pipeline stage that failed
// and the guiding parameter (repository, instance name, ...) needed to
// diagnose the failure without re-running in verbose mode.
type StageError struct {
	Stage   string
	Subject string
	Err     error
}

func (e *StageError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("stage %s failed for %s: %v", e.Stage, e.Subject, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
