package yaml

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/DecBayComp/tramway-tour/internal/domain/entities"
)

// BundleRepository implements repositories.BundleRepository over a bundles.yml file
type BundleRepository struct {
	manifestPath string
	baseDir      string
	parser       *ManifestParser
}

// NewBundleRepository creates a repository reading manifestPath. Relative
// paths in the manifest resolve against the manifest's directory.
func NewBundleRepository(manifestPath string) *BundleRepository {
	baseDir := filepath.Dir(manifestPath)
	if abs, err := filepath.Abs(baseDir); err == nil {
		baseDir = abs
	}
	return &BundleRepository{
		manifestPath: manifestPath,
		baseDir:      baseDir,
		parser:       NewManifestParser(),
	}
}

// BaseDir returns the directory relative manifest paths resolve against
func (r *BundleRepository) BaseDir() string {
	return r.baseDir
}

// GetBundle retrieves a bundle descriptor by name
func (r *BundleRepository) GetBundle(ctx context.Context, name string) (*entities.BundleDescriptor, error) {
	descs, err := r.ListBundles(ctx)
	if err != nil {
		return nil, err
	}
	for _, desc := range descs {
		if desc.Name == name {
			return desc, nil
		}
	}
	return nil, fmt.Errorf("bundle not found: %s", name)
}

// ListBundles returns all bundle descriptors in manifest order
func (r *BundleRepository) ListBundles(_ context.Context) ([]*entities.BundleDescriptor, error) {
	descs, err := r.parser.ParseFile(r.manifestPath)
	if err != nil {
		return nil, err
	}

	for _, desc := range descs {
		desc.LocalPath = r.resolve(desc.LocalPath)
		if desc.ExtractRoot == "" {
			desc.ExtractRoot = r.baseDir
		} else {
			desc.ExtractRoot = r.resolve(desc.ExtractRoot)
		}
		if desc.Signature.KeyringPath != "" {
			desc.Signature.KeyringPath = r.resolve(desc.Signature.KeyringPath)
		}
	}
	return descs, nil
}

func (r *BundleRepository) resolve(p string) string {
	p = filepath.FromSlash(p)
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(r.baseDir, p)
}
