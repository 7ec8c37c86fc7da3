// Package gateways defines interfaces for external service adapters.
package gateways

import (
	"context"

	"github.com/DecBayComp/tramway-tour/internal/domain/entities"
)

// Fetcher downloads a remote file.
// Failures to reach the remote end are reported as *entities.TransientNetworkError.
type Fetcher interface {
	DownloadFile(ctx context.Context, url, dest string) (int64, error)
}

// Digester fingerprints local files
type Digester interface {
	// CalculateChecksum returns the lower-case hex digest of the whole file
	CalculateChecksum(filePath string, algorithm entities.DigestAlgorithm) (string, error)

	// VerifyChecksum returns *entities.IntegrityError when the digest differs
	VerifyChecksum(ctx context.Context, filePath, expectedSum string, algorithm entities.DigestAlgorithm) error
}

// Extractor unpacks bundle archives without letting entries escape the root
type Extractor interface {
	// Extract unpacks archivePath under root.
	// Entries resolving outside root fail with *entities.PathTraversalError.
	Extract(ctx context.Context, archivePath, root string) ([]entities.ArchiveEntry, error)

	// List returns the entries of an archive without writing anything
	List(ctx context.Context, archivePath string) ([]entities.ArchiveEntry, error)
}

// SignatureVerifier checks detached OpenPGP signatures against a keyring file
type SignatureVerifier interface {
	VerifyDetached(ctx context.Context, filePath, sigPath, keyringPath string) error
}
