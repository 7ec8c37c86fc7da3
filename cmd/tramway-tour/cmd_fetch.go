package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	orchestrators "github.com/DecBayComp/tramway-tour/internal/domain-orchestrators"
)

func newFetchCommand(a *app) *cobra.Command {
	var (
		retries int
		backoff time.Duration
		quiet   bool
	)

	cmd := &cobra.Command{
		Use:   "fetch [bundle...]",
		Short: "Fetch and unpack bundles unless already present",
		Long: `Fetch makes every named bundle (all bundles when none are named) present
and unpacked. A local archive whose checksum matches is left alone and no
network request is made. Required files missing from a valid local archive
are restored by unpacking it again. Bundles with extract: false are
placed as downloaded.`,
		Example: `  tramway-tour fetch
  tramway-tour fetch package_data --retries 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("retries") {
				retries = a.cfg.Retries
			}

			var progress io.Writer
			if !quiet {
				progress = a.stderr
			}

			orch := orchestrators.NewProvisionOrchestrator(
				a.repository(),
				a.provisioner(progress),
				orchestrators.ProvisionOrchestratorConfig{Retries: retries, Backoff: backoff},
				a.log(),
			)

			report, err := orch.ProvisionBundles(cmd.Context(), args)
			if report != nil {
				fmt.Fprintln(a.stdout, report.Summary())
			}
			return err
		},
	}

	cmd.Flags().IntVar(&retries, "retries", 0,
		"Extra attempts after a network failure (default $TRAMWAY_TOUR_RETRIES or 0)")
	cmd.Flags().DurationVar(&backoff, "backoff", 2*time.Second, "Wait between attempts")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not render download progress")
	return cmd
}
