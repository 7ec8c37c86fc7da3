package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DecBayComp/tramway-tour/internal/domain-adapters/gateways"
)

func newPackCommand(a *app) *cobra.Command {
	var projectDir string

	cmd := &cobra.Command{
		Use:   "pack <bundle>",
		Short: "Build a bundle archive from its file list",
		Long: `Pack writes the files a bundle declares into its local archive, compressed
according to the archive extension, and prints the new checksum to copy
into the manifest before uploading.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := a.repository()
			desc, err := repo.GetBundle(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			dir := projectDir
			if dir == "" {
				dir = desc.ExtractRoot
			}

			result, err := gateways.NewPackager(a.log()).PackBundle(cmd.Context(), desc, dir)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "Packed %d entries into %s\n", len(result.Entries), result.Path)
			fmt.Fprintf(a.stdout, "%s: %s\n", result.Algorithm, result.Fingerprint)
			if result.Fingerprint != desc.Fingerprint {
				fmt.Fprintf(a.stdout, "Checksum differs from the manifest; update %q in %s\n", desc.Name, a.cfg.ManifestPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&projectDir, "project", "", "Directory the file list is relative to (default: the bundle's extraction root)")
	return cmd
}
