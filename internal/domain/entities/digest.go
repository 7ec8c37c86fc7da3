package entities

import (
	"fmt"
	"strings"
)

// DigestAlgorithm names the hash used to fingerprint a bundle
type DigestAlgorithm string

// Supported fingerprint algorithms
const (
	DigestMD5        DigestAlgorithm = "md5"
	DigestSHA1       DigestAlgorithm = "sha1"
	DigestSHA256     DigestAlgorithm = "sha256"
	DigestSHA512     DigestAlgorithm = "sha512"
	DigestBLAKE2b256 DigestAlgorithm = "blake2b-256"
)

// HexLen returns the length of a hex-encoded digest, or 0 for unknown algorithms
func (a DigestAlgorithm) HexLen() int {
	switch a {
	case DigestMD5:
		return 32
	case DigestSHA1:
		return 40
	case DigestSHA256, DigestBLAKE2b256:
		return 64
	case DigestSHA512:
		return 128
	default:
		return 0
	}
}

// ParseDigestAlgorithm parses an algorithm name. An empty name infers the
// algorithm from the fingerprint length; blake2b-256 is never inferred.
func ParseDigestAlgorithm(name, fingerprint string) (DigestAlgorithm, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		switch len(fingerprint) {
		case 32:
			return DigestMD5, nil
		case 40:
			return DigestSHA1, nil
		case 64:
			return DigestSHA256, nil
		case 128:
			return DigestSHA512, nil
		default:
			return "", fmt.Errorf("cannot infer digest algorithm from a %d-character fingerprint", len(fingerprint))
		}
	}

	algo := DigestAlgorithm(name)
	if algo.HexLen() == 0 {
		return "", fmt.Errorf("unsupported digest algorithm: %s", name)
	}
	return algo, nil
}

// ValidateFingerprint checks a fingerprint is lower-case hex of the right length
func ValidateFingerprint(algo DigestAlgorithm, fingerprint string) error {
	if len(fingerprint) != algo.HexLen() {
		return fmt.Errorf("%s fingerprint must be %d hex characters, got %d", algo, algo.HexLen(), len(fingerprint))
	}
	for _, c := range fingerprint {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("fingerprint contains non-hex character %q", c)
		}
	}
	return nil
}
