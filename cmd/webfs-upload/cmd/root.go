package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/webfs/internal/config"
	"github.com/oshokin/webfs/internal/logger"
	"github.com/oshokin/webfs/internal/service/uploader"
	"github.com/oshokin/webfs/internal/version"
)

var (
	// configPath to the configuration YAML file; webfs.yaml is used when present.
	configPath string
	// environment is the build environment; PIOENV is used when empty.
	environment string
	// outputDir overrides the configured canonical tree.
	outputDir string
	// stateFile overrides the configured upload state file.
	stateFile string
	// dryRun reports the verdict without uploading.
	dryRun bool
	// logLevel is the minimum level of emitted log entries.
	logLevel string

	// errUnknownLogLevel is returned for --log-level values zap does not know.
	errUnknownLogLevel = errors.New("unknown log level")

	// rootCmd represents the post-build hook that flashes the filesystem image on change.
	rootCmd = &cobra.Command{
		Use:   "webfs-upload",
		Short: "Upload the device filesystem image when the web assets changed.",
		Long: `Post-build hook that fingerprints the canonical tree and runs the filesystem upload
only when the fingerprint differs from the one recorded after the last successful upload.

The fingerprint is a SHA-256 digest over every file's slash-separated relative path and
contents in lexicographic path order. The state file is written only after the upload
command exits successfully, so a failed upload is retried by the next build.
A failed upload is reported but never fails the firmware build.`,
		Args:              cobra.NoArgs,
		PersistentPreRunE: applyLogLevel,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			cmd.SilenceUsage = true

			_, err := uploader.Run(ctx, options())

			return err
		},
	}

	// fingerprintCmd prints the current fingerprint of the canonical tree.
	fingerprintCmd = &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the fingerprint of the canonical tree.",
		Long:  "Print the fingerprint of the canonical tree, or nothing when the tree is absent or empty.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true

			current, err := uploader.CurrentFingerprint(cmd.Context(), options())
			if err != nil {
				return err
			}

			if !current.IsZero() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), current)
			}

			return nil
		},
	}
)

// Execute runs the webfs-upload CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func options() *uploader.Options {
	return &uploader.Options{
		ConfigPath:  configPath,
		OutputDir:   outputDir,
		StateFile:   stateFile,
		Environment: environment,
		DryRun:      dryRun,
	}
}

// applyLogLevel configures the global logger from --log-level.
func applyLogLevel(_ *cobra.Command, _ []string) error {
	level, ok := logger.ParseLogLevel(logLevel)
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownLogLevel, logLevel)
	}

	logger.SetLevel(level)

	return nil
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "path to configuration file (default "+config.DefaultConfigFilename+" when present)")
	flags.StringVarP(&environment, "environment", "e", "", "build environment (default $"+config.EnvironmentVariable+")")
	flags.StringVar(&outputDir, "output", "", "canonical tree to fingerprint (default "+config.DefaultOutputDir+")")
	flags.StringVar(&stateFile, "state-file", "", "file holding the last uploaded fingerprint (default "+config.DefaultStateFilename+")")
	flags.StringVar(&logLevel, "log-level", "info", "minimum log level (debug, info, warn, error)")

	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report whether an upload is needed without uploading")

	rootCmd.AddCommand(fingerprintCmd)
}
