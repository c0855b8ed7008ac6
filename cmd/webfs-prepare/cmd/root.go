package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/oshokin/webfs/internal/config"
	"github.com/oshokin/webfs/internal/logger"
	"github.com/oshokin/webfs/internal/service/preparer"
	"github.com/oshokin/webfs/internal/version"
)

var (
	// configPath to the configuration YAML file; webfs.yaml is used when present.
	configPath string
	// sourceDir overrides the configured source tree.
	sourceDir string
	// outputDir overrides the configured canonical tree.
	outputDir string
	// logLevel is the minimum level of emitted log entries.
	logLevel string
	// force allows init-config to overwrite an existing file.
	force bool

	// errUnknownLogLevel is returned for --log-level values zap does not know.
	errUnknownLogLevel = errors.New("unknown log level")

	// rootCmd represents the pre-build hook that rebuilds the canonical tree.
	rootCmd = &cobra.Command{
		Use:   "webfs-prepare",
		Short: "Rebuild the device filesystem tree from the web UI build.",
		Long: `Pre-build hook that turns the web UI build output into the tree packed into the
device filesystem image.

Every allow-listed asset is gzip-compressed at the maximum level and stored with a .gz
suffix. Files whose name carries the no-compress marker (for example sound.nogz.mp3)
are copied verbatim with the marker removed. The output tree is deleted and rebuilt on
every run, then the top level of the source tree is purged except for dotfiles and
pipeline scripts.

When the source tree holds no eligible files an existing output tree is reused as is.`,
		Args:              cobra.NoArgs,
		PersistentPreRunE: applyLogLevel,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			cmd.SilenceUsage = true

			_, err := preparer.Run(ctx, &preparer.Options{
				ConfigPath: configPath,
				SourceDir:  sourceDir,
				OutputDir:  outputDir,
			})

			return err
		},
	}

	// initConfigCmd writes the default settings file.
	initConfigCmd = &cobra.Command{
		Use:   "init-config",
		Short: "Write a settings file with the default values.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true

			path := configPath
			if path == "" {
				path = config.DefaultConfigFilename
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite it", path)
			}

			if err := config.Save(path, config.Default()); err != nil {
				return err
			}

			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("stat %s: %w", path, err)
			}

			logger.Infof(cmd.Context(), "Wrote %s (%s)", path, humanize.Bytes(uint64(info.Size()))) //nolint:gosec // Sizes are never negative.

			return nil
		},
	}
)

// Execute runs the webfs-prepare CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
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
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file (default "+config.DefaultConfigFilename+" when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "minimum log level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&sourceDir, "source", "", "source tree with the web UI build (default "+config.DefaultSourceDir+")")
	rootCmd.Flags().StringVar(&outputDir, "output", "", "canonical tree packed into the filesystem image (default "+config.DefaultOutputDir+")")

	initConfigCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing settings file")

	rootCmd.AddCommand(initConfigCmd)
}
