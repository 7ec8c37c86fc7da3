// Package repositories defines interfaces for data access layers.
package repositories

import (
	"context"

	"github.com/DecBayComp/tramway-tour/internal/domain/entities"
)

// BundleRepository defines the interface for accessing bundle descriptors
type BundleRepository interface {
	// GetBundle retrieves a bundle descriptor by name
	GetBundle(ctx context.Context, name string) (*entities.BundleDescriptor, error)

	// ListBundles returns all bundle descriptors in manifest order
	ListBundles(ctx context.Context) ([]*entities.BundleDescriptor, error)

	// BaseDir returns the directory relative paths are resolved against
	BaseDir() string
}
