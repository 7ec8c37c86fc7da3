// Package services implements domain business logic and use cases.
package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/DecBayComp/tramway-tour/internal/domain/entities"
	"github.com/DecBayComp/tramway-tour/internal/domain/interfaces"
	"github.com/DecBayComp/tramway-tour/internal/domain/interfaces/gateways"
	"github.com/DecBayComp/tramway-tour/internal/domain/interfaces/services"
)

// ErrInvalidDescriptor marks configuration mistakes in a bundle descriptor
var ErrInvalidDescriptor = errors.New("invalid bundle descriptor")

// ErrBundleMissing is returned by Verify and Extract when the local archive is absent
var ErrBundleMissing = errors.New("bundle archive not present")

// ErrNotArchive is returned by Extract for a bundle that is a plain file
var ErrNotArchive = errors.New("bundle is not an archive")

// archiveProvisioner implements services.Provisioner
type archiveProvisioner struct {
	fetcher    gateways.Fetcher
	digester   gateways.Digester
	extractor  gateways.Extractor
	signatures gateways.SignatureVerifier
	logger     interfaces.Logger
}

// NewProvisioner creates a provisioner. signatures may be nil when no bundle
// is signed.
func NewProvisioner(
	fetcher gateways.Fetcher,
	digester gateways.Digester,
	extractor gateways.Extractor,
	signatures gateways.SignatureVerifier,
	logger interfaces.Logger,
) services.Provisioner {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &archiveProvisioner{
		fetcher:    fetcher,
		digester:   digester,
		extractor:  extractor,
		signatures: signatures,
		logger:     logger,
	}
}

// EnsurePresent makes sure desc.LocalPath holds the fingerprinted archive and
// that it has been unpacked. A matching local archive short-circuits with
// Fetched=false and no network activity. Plain file bundles are placed at
// LocalPath without unpacking.
func (p *archiveProvisioner) EnsurePresent(ctx context.Context, desc *entities.BundleDescriptor) (*entities.ProvisionResult, error) {
	algo, err := validateDescriptor(desc)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := &entities.ProvisionResult{
		RunID:       uuid.NewString(),
		Bundle:      desc.Name,
		Fingerprint: desc.Fingerprint,
	}
	p.logger.Debug("Checking bundle",
		interfaces.F("bundle", desc.Name),
		interfaces.F("path", desc.LocalPath),
		interfaces.F("run_id", result.RunID))

	verifyErr := p.checkLocal(ctx, desc, algo)
	if verifyErr == nil {
		p.logger.Info("Bundle already satisfied",
			interfaces.F("bundle", desc.Name),
			interfaces.F("path", desc.LocalPath))
		result.Duration = time.Since(start)
		return result, nil
	}
	p.logger.Info("Local bundle invalid, fetching",
		interfaces.F("bundle", desc.Name),
		interfaces.F("url", desc.RemoteURL),
		interfaces.F("reason", verifyErr.Error()))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tmpPath, err := reserveTemp(desc.LocalPath)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			//nolint:errcheck // best-effort cleanup
			os.Remove(tmpPath)
		}
	}()

	n, err := p.fetcher.DownloadFile(ctx, desc.RemoteURL, tmpPath)
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", desc.Name, err)
	}
	result.Bytes = n

	if err := p.verifyFetched(ctx, desc, tmpPath, algo); err != nil {
		var integrity *entities.IntegrityError
		if errors.As(err, &integrity) {
			integrity.Path = desc.RemoteURL
		}
		p.logger.Error("Fetched bundle failed fingerprint check",
			interfaces.F("bundle", desc.Name),
			interfaces.F("url", desc.RemoteURL),
			interfaces.F("error", err.Error()))
		return nil, fmt.Errorf("bundle %s: %w", desc.Name, err)
	}

	if desc.Signed() {
		if err := p.checkSignature(ctx, desc, tmpPath); err != nil {
			return nil, fmt.Errorf("bundle %s: %w", desc.Name, err)
		}
	}

	// Unpack from the temporary copy so a rejected archive never lands at
	// LocalPath, where the next run would take it as already satisfied.
	root := extractRoot(desc)
	var entries []entities.ArchiveEntry
	if !desc.PlainFile {
		entries, err = p.extractor.Extract(ctx, tmpPath, root)
		if err != nil {
			p.logger.Error("Bundle extraction failed",
				interfaces.F("bundle", desc.Name),
				interfaces.F("root", root),
				interfaces.F("error", err.Error()))
			return nil, fmt.Errorf("bundle %s: %w", desc.Name, err)
		}
	}

	if err := os.Rename(tmpPath, desc.LocalPath); err != nil {
		return nil, fmt.Errorf("failed to move bundle into place: %w", err)
	}
	committed = true

	result.Fetched = true
	result.Extracted = !desc.PlainFile
	result.Entries = entries
	result.Duration = time.Since(start)

	p.logger.Info("Bundle provisioned",
		interfaces.F("bundle", desc.Name),
		interfaces.F("bytes", result.Bytes),
		interfaces.F("entries", len(entries)),
		interfaces.F("path", desc.LocalPath),
		interfaces.F("duration", result.Duration.String()))
	return result, nil
}

// Extract unpacks the local archive again after checking its fingerprint
func (p *archiveProvisioner) Extract(ctx context.Context, desc *entities.BundleDescriptor) (*entities.ProvisionResult, error) {
	start := time.Now()
	if err := p.Verify(ctx, desc); err != nil {
		return nil, err
	}
	if desc.PlainFile {
		return nil, fmt.Errorf("bundle %s: %w", desc.Name, ErrNotArchive)
	}

	root := extractRoot(desc)
	entries, err := p.extractor.Extract(ctx, desc.LocalPath, root)
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", desc.Name, err)
	}

	p.logger.Info("Bundle re-extracted",
		interfaces.F("bundle", desc.Name),
		interfaces.F("entries", len(entries)),
		interfaces.F("root", root))
	return &entities.ProvisionResult{
		RunID:       uuid.NewString(),
		Bundle:      desc.Name,
		Extracted:   true,
		Entries:     entries,
		Fingerprint: desc.Fingerprint,
		Duration:    time.Since(start),
	}, nil
}

// Verify checks the local archive against its fingerprint without fetching
func (p *archiveProvisioner) Verify(ctx context.Context, desc *entities.BundleDescriptor) error {
	algo, err := validateDescriptor(desc)
	if err != nil {
		return err
	}

	if _, err := os.Stat(desc.LocalPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("bundle %s at %s: %w", desc.Name, desc.LocalPath, ErrBundleMissing)
		}
		return fmt.Errorf("bundle %s: %w", desc.Name, err)
	}

	if desc.ExistenceOnly() {
		return nil
	}
	if err := p.digester.VerifyChecksum(ctx, desc.LocalPath, desc.Fingerprint, algo); err != nil {
		return fmt.Errorf("bundle %s: %w", desc.Name, err)
	}
	return nil
}

// checkLocal reports why the copy at LocalPath cannot be used, or nil
func (p *archiveProvisioner) checkLocal(ctx context.Context, desc *entities.BundleDescriptor, algo entities.DigestAlgorithm) error {
	if desc.ExistenceOnly() {
		_, err := os.Stat(desc.LocalPath)
		return err
	}
	return p.digester.VerifyChecksum(ctx, desc.LocalPath, desc.Fingerprint, algo)
}

func (p *archiveProvisioner) verifyFetched(ctx context.Context, desc *entities.BundleDescriptor, path string, algo entities.DigestAlgorithm) error {
	if desc.ExistenceOnly() {
		return nil
	}
	return p.digester.VerifyChecksum(ctx, path, desc.Fingerprint, algo)
}

// checkSignature downloads the detached signature next to the archive and
// checks it before anything is unpacked.
func (p *archiveProvisioner) checkSignature(ctx context.Context, desc *entities.BundleDescriptor, archivePath string) error {
	if p.signatures == nil {
		return fmt.Errorf("%w: %s is signed but no signature verifier is configured", ErrInvalidDescriptor, desc.Name)
	}

	sigPath, err := reserveTemp(desc.LocalPath + ".sig")
	if err != nil {
		return err
	}
	//nolint:errcheck // best-effort cleanup
	defer os.Remove(sigPath)

	if _, err := p.fetcher.DownloadFile(ctx, desc.Signature.URL, sigPath); err != nil {
		return err
	}

	if err := p.signatures.VerifyDetached(ctx, archivePath, sigPath, desc.Signature.KeyringPath); err != nil {
		var integrity *entities.IntegrityError
		if errors.As(err, &integrity) {
			integrity.Path = desc.RemoteURL
		}
		return err
	}

	p.logger.Info("Bundle signature verified",
		interfaces.F("bundle", desc.Name),
		interfaces.F("signature", desc.Signature.URL))
	return nil
}

// validateDescriptor returns the digest algorithm to use for desc.
// desc itself is never modified.
func validateDescriptor(desc *entities.BundleDescriptor) (entities.DigestAlgorithm, error) {
	if desc == nil {
		return "", fmt.Errorf("%w: nil descriptor", ErrInvalidDescriptor)
	}
	if desc.LocalPath == "" {
		return "", fmt.Errorf("%w: %s has no local path", ErrInvalidDescriptor, desc.Name)
	}
	if desc.RemoteURL == "" {
		return "", fmt.Errorf("%w: %s has no remote URL", ErrInvalidDescriptor, desc.Name)
	}
	if desc.Signed() && desc.Signature.KeyringPath == "" {
		return "", fmt.Errorf("%w: %s has a signature URL but no keyring", ErrInvalidDescriptor, desc.Name)
	}
	if desc.ExistenceOnly() {
		if !desc.PlainFile {
			return "", fmt.Errorf("%w: archive %s has no fingerprint", ErrInvalidDescriptor, desc.Name)
		}
		return "", nil
	}

	algo, err := entities.ParseDigestAlgorithm(string(desc.Algorithm), desc.Fingerprint)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidDescriptor, desc.Name, err)
	}
	if err := entities.ValidateFingerprint(algo, desc.Fingerprint); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidDescriptor, desc.Name, err)
	}
	return algo, nil
}

func extractRoot(desc *entities.BundleDescriptor) string {
	if desc.ExtractRoot != "" {
		return desc.ExtractRoot
	}
	return filepath.Dir(desc.LocalPath)
}

// reserveTemp creates an empty temporary file in the directory of path
func reserveTemp(path string) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create bundle directory: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		//nolint:errcheck // best-effort cleanup
		os.Remove(name)
		return "", fmt.Errorf("failed to close temporary file: %w", err)
	}
	return name, nil
}
