package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DecBayComp/tramway-tour/internal/domain/entities"
)

func newVerifyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [bundle...]",
		Short: "Check local bundle archives against their checksums",
		Long: `Verify digests the local archive of every named bundle (all bundles when
none are named) and compares it with the manifest checksum. A bundle
without a checksum only has to exist. Verify never touches the network.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			descs, err := loadBundles(cmd, a, args)
			if err != nil {
				return err
			}

			p := a.provisioner(nil)
			var errs []error
			for _, desc := range descs {
				if err := p.Verify(cmd.Context(), desc); err != nil {
					fmt.Fprintf(a.stdout, "✗ %s: %v\n", desc.Name, err)
					errs = append(errs, err)
					continue
				}
				if desc.ExistenceOnly() {
					fmt.Fprintf(a.stdout, "✓ %s present (no checksum)\n", desc.Name)
					continue
				}
				fmt.Fprintf(a.stdout, "✓ %s %s:%s\n", desc.Name, desc.Algorithm, desc.Fingerprint)
			}
			return errors.Join(errs...)
		},
	}
}

// loadBundles resolves names against the manifest, or returns every bundle
func loadBundles(cmd *cobra.Command, a *app, names []string) ([]*entities.BundleDescriptor, error) {
	repo := a.repository()
	if len(names) == 0 {
		return repo.ListBundles(cmd.Context())
	}

	descs := make([]*entities.BundleDescriptor, 0, len(names))
	for _, name := range names {
		desc, err := repo.GetBundle(cmd.Context(), name)
		if err != nil {
			return nil, err
		}
		descs = append(descs, desc)
	}
	return descs, nil
}
