package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/DecBayComp/tramway-tour/internal/config"
	"github.com/DecBayComp/tramway-tour/internal/domain-adapters/gateways"
	"github.com/DecBayComp/tramway-tour/internal/domain/entities"
	"github.com/DecBayComp/tramway-tour/internal/domain/interfaces"
	"github.com/DecBayComp/tramway-tour/internal/domain/interfaces/services"
	provisioning "github.com/DecBayComp/tramway-tour/internal/domain/services"
	"github.com/DecBayComp/tramway-tour/internal/external-adapters/yaml"
	"github.com/DecBayComp/tramway-tour/internal/external-adapters/zaplog"
)

// Exit codes let build scripts retry (2) or abort (3, 4)
const (
	exitOK            = 0
	exitFailure       = 1
	exitTransient     = 2
	exitIntegrity     = 3
	exitPathTraversal = 4
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{stdout: stdout, stderr: stderr}
	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if a.logger != nil {
		//nolint:errcheck // stderr sync fails on some terminals
		a.logger.Sync()
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

// exitCode maps the provisioning error classes to process exit codes
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case entities.IsPathTraversal(err):
		return exitPathTraversal
	case entities.IsIntegrity(err):
		return exitIntegrity
	case entities.IsTransient(err):
		return exitTransient
	default:
		return exitFailure
	}
}

// app carries what every subcommand shares once the root flags are parsed
type app struct {
	stdout io.Writer
	stderr io.Writer

	manifest  string
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger *zaplog.Logger
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "tramway-tour",
		Short: "Provision the data bundle of the TRamWAy tour notebooks",
		Long: `tramway-tour makes sure the data files the tour notebooks read are
present and authentic. Bundles are declared in a YAML manifest with their
download URL and checksum; they are fetched only when the local archive is
missing or does not match, and are unpacked without letting any entry
escape the project directory.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.manifest, "manifest", "",
		"Path to the bundle manifest (default $"+config.EnvManifest+" or bundles.yml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "",
		"Log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "",
		"Log format: console or json")

	root.AddCommand(
		newFetchCommand(a),
		newVerifyCommand(a),
		newExtractCommand(a),
		newPackCommand(a),
		newListCommand(a),
	)
	return root
}

// setup loads configuration, applies flag overrides and builds the logger
func (a *app) setup(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.manifest != "" {
		cfg.ManifestPath = a.manifest
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}
	a.cfg = cfg

	logger, err := zaplog.New(zaplog.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: a.stderr,
	})
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

func (a *app) log() interfaces.Logger {
	if a.logger == nil {
		return &interfaces.NoOpLogger{}
	}
	return a.logger
}

func (a *app) repository() *yaml.BundleRepository {
	return yaml.NewBundleRepository(a.cfg.ManifestPath)
}

// provisioner wires the production gateways. progress may be nil.
func (a *app) provisioner(progress io.Writer) services.Provisioner {
	opts := []gateways.DownloaderOption{
		gateways.WithTimeout(a.cfg.HTTPTimeout),
		gateways.WithUserAgent(a.cfg.UserAgent),
	}
	if progress != nil {
		opts = append(opts, gateways.WithProgress(progress))
	}

	return provisioning.NewProvisioner(
		gateways.NewDownloader(opts...),
		gateways.NewChecksumVerifier(),
		gateways.NewExtractor(a.log()),
		gateways.NewGPGVerifier(),
		a.log(),
	)
}
