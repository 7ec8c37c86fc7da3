// Package services defines interfaces for domain service contracts.
package services

import (
	"context"

	"github.com/DecBayComp/tramway-tour/internal/domain/entities"
)

// Provisioner guarantees a bundle is present and authentic before it is read
type Provisioner interface {
	// EnsurePresent fetches and unpacks the bundle unless the local archive
	// already matches its fingerprint.
	EnsurePresent(ctx context.Context, desc *entities.BundleDescriptor) (*entities.ProvisionResult, error)

	// Extract unpacks the local archive again without any network activity
	Extract(ctx context.Context, desc *entities.BundleDescriptor) (*entities.ProvisionResult, error)

	// Verify checks the local archive against its fingerprint without fetching
	Verify(ctx context.Context, desc *entities.BundleDescriptor) error
}
