package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newListCommand(a *app) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the bundles declared in the manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			descs, err := a.repository().ListBundles(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "Bundles in %s (%d total):\n\n", a.cfg.ManifestPath, len(descs))
			for _, desc := range descs {
				state := "absent"
				if _, err := os.Stat(desc.LocalPath); err == nil {
					state = "present"
				}

				fmt.Fprintf(a.stdout, "  %s", desc.Name)
				if desc.Version != "" {
					fmt.Fprintf(a.stdout, " %s", desc.Version)
				}
				fmt.Fprintf(a.stdout, " [%s]\n", state)
				if desc.Description != "" {
					fmt.Fprintf(a.stdout, "    %s\n", desc.Description)
				}
				if verbose {
					fmt.Fprintf(a.stdout, "    url:      %s\n", desc.RemoteURL)
					if desc.PlainFile {
						fmt.Fprintf(a.stdout, "    file:     %s\n", desc.LocalPath)
					} else {
						fmt.Fprintf(a.stdout, "    archive:  %s\n", desc.LocalPath)
					}
					if desc.ExistenceOnly() {
						fmt.Fprintf(a.stdout, "    checksum: none, presence only\n")
					} else {
						fmt.Fprintf(a.stdout, "    checksum: %s:%s\n", desc.Algorithm, desc.Fingerprint)
					}
					if desc.Signed() {
						fmt.Fprintf(a.stdout, "    signed:   %s\n", desc.Signature.URL)
					}
					for _, f := range desc.Files {
						fmt.Fprintf(a.stdout, "    - %s\n", f)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show URLs, checksums and file lists")
	return cmd
}
