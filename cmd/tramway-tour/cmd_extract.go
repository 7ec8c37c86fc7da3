package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DecBayComp/tramway-tour/internal/domain-adapters/gateways"
	"github.com/DecBayComp/tramway-tour/internal/domain/entities"
)

func newExtractCommand(a *app) *cobra.Command {
	var (
		root    string
		list    bool
		maxSize int64
	)

	cmd := &cobra.Command{
		Use:   "extract <archive>",
		Short: "Safely unpack any tar archive",
		Long: `Extract unpacks a tar archive (plain, gzip, bzip2, xz or zstd) under the
root directory. Entries that would land outside the root, through ".."
components, absolute names or links, abort the extraction before anything
is written.`,
		Example: `  tramway-tour extract package_data.tar.bz2 --root .
  tramway-tour extract package_data.tar.bz2 --list`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extractor := gateways.NewExtractor(a.log())
			if maxSize > 0 {
				extractor.SetMaxEntrySize(maxSize)
			}

			var (
				entries []entities.ArchiveEntry
				err     error
			)
			if list {
				entries, err = extractor.List(cmd.Context(), args[0])
			} else {
				entries, err = extractor.Extract(cmd.Context(), args[0], root)
			}
			if err != nil {
				return err
			}

			for _, e := range entries {
				if e.LinkTarget != "" {
					fmt.Fprintf(a.stdout, "%-7s %s -> %s\n", e.Type, e.Name, e.LinkTarget)
					continue
				}
				fmt.Fprintf(a.stdout, "%-7s %s\n", e.Type, e.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "Extraction root directory")
	cmd.Flags().BoolVar(&list, "list", false, "List entries without extracting")
	cmd.Flags().Int64Var(&maxSize, "max-entry-size", gateways.DefaultMaxEntrySize, "Largest allowed file entry in bytes")
	return cmd
}
