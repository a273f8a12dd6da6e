package interfaces

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ContentID is a 32-byte SHA-256 hash uniquely identifying archived content.
type ContentID [32]byte

// NewContentIDFromHex parses a content ID from its hex representation. A
// leading 0x prefix is accepted.
func NewContentIDFromHex(source string) (ContentID, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return ContentID{}, errors.New("invalid content ID length: hex string must be 64 characters")
	}

	hashBytes, err := hex.DecodeString(clean)
	if err != nil {
		return ContentID{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var hash [32]byte
	copy(hash[:], hashBytes)
	return ContentID(hash), nil
}

// ComputeID calculates the content ID of data.
func ComputeID(data []byte) ContentID {
	return ContentID(sha256.Sum256(data))
}

// String returns the hex representation.
func (id ContentID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the raw 32-byte hash.
func (id ContentID) Bytes() []byte {
	return id[:]
}

// Equal compares two content IDs.
func (id ContentID) Equal(other ContentID) bool {
	return bytes.Equal(id[:], other[:])
}

// Standard errors returned by archive operations.
var (
	// ErrContentNotFound indicates the content is not in the archive.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable indicates the archive backend is not
	// accessible.
	ErrBackendUnavailable = errors.New("archive backend unavailable")

	// ErrInvalidLocationURI indicates a malformed archive location URI.
	ErrInvalidLocationURI = errors.New("invalid archive location URI")
)

// StorageBackend archives sealed registration artifacts by content hash so a
// provisioning run can be audited after the fact.
type StorageBackend interface {
	// Store persists data and returns its content ID.
	Store(ctx context.Context, data []byte) (ContentID, error)

	// Fetch retrieves data by content ID.
	Fetch(ctx context.Context, id ContentID) ([]byte, error)

	// Available checks whether the backend is reachable.
	Available(ctx context.Context) bool

	// LocationURI returns the URI this backend was created from.
	LocationURI() string
}

// StorageBackendFactory creates archive backends from location URIs.
type StorageBackendFactory interface {
	StorageBackendFor(locationURI string) (StorageBackend, error)
}
