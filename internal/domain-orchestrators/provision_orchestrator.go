// Package orchestrators coordinates complex workflows across multiple domain services.
package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DecBayComp/tramway-tour/internal/domain/entities"
	"github.com/DecBayComp/tramway-tour/internal/domain/interfaces"
	"github.com/DecBayComp/tramway-tour/internal/domain/interfaces/repositories"
	"github.com/DecBayComp/tramway-tour/internal/domain/interfaces/services"
)

// ErrMissingFiles is returned when a provisioned bundle lacks files it declares
var ErrMissingFiles = errors.New("bundle is missing required files")

// ProvisionOrchestrator provisions the bundles of a manifest one at a time
type ProvisionOrchestrator struct {
	bundles     repositories.BundleRepository
	provisioner services.Provisioner
	logger      interfaces.Logger
	retries     int
	backoff     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// ProvisionOrchestratorConfig holds configuration for the orchestrator
type ProvisionOrchestratorConfig struct {
	// Retries is how many extra attempts a TransientNetworkError gets.
	// Zero keeps the provisioner's single-attempt behavior.
	Retries int
	Backoff time.Duration
}

// NewProvisionOrchestrator creates a new provision orchestrator
func NewProvisionOrchestrator(
	bundles repositories.BundleRepository,
	provisioner services.Provisioner,
	config ProvisionOrchestratorConfig,
	logger interfaces.Logger,
) *ProvisionOrchestrator {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	retries := config.Retries
	if retries < 0 {
		retries = 0
	}
	backoff := config.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	return &ProvisionOrchestrator{
		bundles:     bundles,
		provisioner: provisioner,
		logger:      logger,
		retries:     retries,
		backoff:     backoff,
		sleep:       sleepContext,
	}
}

// BundleOutcome is the per-bundle part of a ProvisionReport
type BundleOutcome struct {
	Bundle   string
	Result   *entities.ProvisionResult
	Attempts int
	Repaired bool     // files were restored from the local archive
	Missing  []string // required files still absent
	Err      error
}

// ProvisionReport contains the result of a provisioning run
type ProvisionReport struct {
	Outcomes []*BundleOutcome
	Duration time.Duration
}

// Failed returns the outcomes that ended in an error
func (r *ProvisionReport) Failed() []*BundleOutcome {
	var failed []*BundleOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Summary renders a short human-readable report
func (r *ProvisionReport) Summary() string {
	var sb strings.Builder
	for _, o := range r.Outcomes {
		switch {
		case o.Err != nil:
			fmt.Fprintf(&sb, "✗ %s: %v\n", o.Bundle, o.Err)
		case o.Result != nil && o.Result.Fetched && !o.Result.Extracted:
			fmt.Fprintf(&sb, "✓ %s: fetched %d bytes\n", o.Bundle, o.Result.Bytes)
		case o.Result != nil && o.Result.Fetched:
			fmt.Fprintf(&sb, "✓ %s: fetched %d bytes, %d entries\n", o.Bundle, o.Result.Bytes, len(o.Result.Entries))
		case o.Repaired:
			fmt.Fprintf(&sb, "✓ %s: repaired from local archive\n", o.Bundle)
		default:
			fmt.Fprintf(&sb, "✓ %s: already satisfied\n", o.Bundle)
		}
	}
	fmt.Fprintf(&sb, "%d bundle(s), %d failed, %s", len(r.Outcomes), len(r.Failed()), r.Duration.Round(time.Millisecond))
	return sb.String()
}

// ProvisionBundles provisions the named bundles, or every bundle of the
// manifest when names is empty. The returned error joins every per-bundle
// failure so callers can still match the error classes.
func (o *ProvisionOrchestrator) ProvisionBundles(ctx context.Context, names []string) (*ProvisionReport, error) {
	start := time.Now()
	descs, err := o.resolve(ctx, names)
	if err != nil {
		return nil, err
	}

	report := &ProvisionReport{}
	var errs []error
	for _, desc := range descs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		outcome := o.provisionBundle(ctx, desc)
		report.Outcomes = append(report.Outcomes, outcome)
		if outcome.Err != nil {
			errs = append(errs, outcome.Err)
		}
	}
	report.Duration = time.Since(start)

	return report, errors.Join(errs...)
}

func (o *ProvisionOrchestrator) resolve(ctx context.Context, names []string) ([]*entities.BundleDescriptor, error) {
	if len(names) == 0 {
		descs, err := o.bundles.ListBundles(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list bundles: %w", err)
		}
		return descs, nil
	}

	descs := make([]*entities.BundleDescriptor, 0, len(names))
	for _, name := range names {
		desc, err := o.bundles.GetBundle(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to load bundle: %w", err)
		}
		descs = append(descs, desc)
	}
	return descs, nil
}

func (o *ProvisionOrchestrator) provisionBundle(ctx context.Context, desc *entities.BundleDescriptor) *BundleOutcome {
	outcome := &BundleOutcome{Bundle: desc.Name}

	for {
		outcome.Attempts++
		result, err := o.provisioner.EnsurePresent(ctx, desc)
		if err == nil {
			outcome.Result = result
			break
		}
		if !entities.IsTransient(err) || outcome.Attempts > o.retries {
			outcome.Err = err
			return outcome
		}

		o.logger.Warn("Transient fetch failure, retrying",
			interfaces.F("bundle", desc.Name),
			interfaces.F("attempt", outcome.Attempts),
			interfaces.F("backoff", o.backoff.String()),
			interfaces.F("error", err.Error()))
		if err := o.sleep(ctx, o.backoff); err != nil {
			outcome.Err = err
			return outcome
		}
	}

	outcome.Missing = missingFiles(desc)
	if len(outcome.Missing) == 0 {
		return outcome
	}

	if outcome.Result.Fetched || desc.PlainFile {
		outcome.Err = fmt.Errorf("%w: %s lacks %s", ErrMissingFiles, desc.Name, strings.Join(outcome.Missing, ", "))
		return outcome
	}

	o.logger.Warn("Required files missing, re-extracting local archive",
		interfaces.F("bundle", desc.Name),
		interfaces.F("missing", outcome.Missing))
	if _, err := o.provisioner.Extract(ctx, desc); err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.Repaired = true

	outcome.Missing = missingFiles(desc)
	if len(outcome.Missing) > 0 {
		outcome.Err = fmt.Errorf("%w: %s lacks %s", ErrMissingFiles, desc.Name, strings.Join(outcome.Missing, ", "))
	}
	return outcome
}

// missingFiles lists the declared files that do not exist under the extraction root
func missingFiles(desc *entities.BundleDescriptor) []string {
	root := desc.ExtractRoot
	if root == "" {
		root = filepath.Dir(desc.LocalPath)
	}

	var missing []string
	for _, name := range desc.Files {
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(name))); err != nil {
			missing = append(missing, name)
		}
	}
	return missing
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
