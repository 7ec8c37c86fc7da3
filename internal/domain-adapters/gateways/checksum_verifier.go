package gateways

import (
	"context"
	"crypto/md5"  //nolint:gosec // G501: md5 fingerprints are what the upstream bundle publishes
	"crypto/sha1" //nolint:gosec // G505: accepted for legacy fingerprints only
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/DecBayComp/tramway-tour/internal/domain/entities"
	"golang.org/x/crypto/blake2b"
)

// checksumVerifier implements file fingerprinting using pure Go hashes
type checksumVerifier struct{}

// NewChecksumVerifier creates a new checksum verifier
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewChecksumVerifier() *checksumVerifier {
	return &checksumVerifier{}
}

// newHash returns a fresh hash for the algorithm
func newHash(algorithm entities.DigestAlgorithm) (hash.Hash, error) {
	switch algorithm {
	case entities.DigestMD5:
		//nolint:gosec // G401: md5 is used as a content fingerprint, not for secrecy
		return md5.New(), nil
	case entities.DigestSHA1:
		//nolint:gosec // G401: sha1 is used as a content fingerprint, not for secrecy
		return sha1.New(), nil
	case entities.DigestSHA256:
		return sha256.New(), nil
	case entities.DigestSHA512:
		return sha512.New(), nil
	case entities.DigestBLAKE2b256:
		return blake2b.New256(nil)
	default:
		return nil, fmt.Errorf("unsupported digest algorithm: %q", algorithm)
	}
}

// VerifyChecksum verifies a file's fingerprint.
// The comparison is an exact match on the lower-case hex strings.
func (v *checksumVerifier) VerifyChecksum(_ context.Context, filePath, expectedSum string, algorithm entities.DigestAlgorithm) error {
	actualSum, err := v.CalculateChecksum(filePath, algorithm)
	if err != nil {
		return err
	}

	if actualSum != expectedSum {
		return &entities.IntegrityError{
			Path:     filePath,
			Expected: expectedSum,
			Actual:   actualSum,
		}
	}

	return nil
}

// CalculateChecksum calculates the hex digest over the full file bytes
func (v *checksumVerifier) CalculateChecksum(filePath string, algorithm entities.DigestAlgorithm) (string, error) {
	h, err := newHash(algorithm)
	if err != nil {
		return "", err
	}

	//nolint:gosec // G304: File path is the configured bundle location
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
