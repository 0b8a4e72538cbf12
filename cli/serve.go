package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/petal-labs/namewatch/daemon"
	"github.com/petal-labs/namewatch/otel"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the name watcher daemon",
		Long: "Watch the names listed in the configuration file, journal every\n" +
			"disappearance, and serve the journal over HTTP.",
		RunE: runServe,
	}

	cmd.Flags().String("config", "", "Path to config file (default: ./namewatch.yaml, then ~/.namewatch/config.yaml)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	explicitPath, _ := cmd.Flags().GetString("config")

	path, found, err := daemon.DiscoverConfigPath(explicitPath)
	if err != nil {
		return exitError(exitFileNotFound, "%v", err)
	}
	if !found {
		return exitError(exitConfig, "no config file found (looked for ./namewatch.yaml and ~/.namewatch/config.yaml)")
	}
	cfg, err := daemon.LoadConfig(path)
	if err != nil {
		return exitError(exitConfig, "%v", err)
	}

	logger := slog.Default()
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	if verbose {
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.SetupTracing(ctx, otel.TracingConfig{
		Endpoint: cfg.Tracing.Endpoint,
		Insecure: cfg.Tracing.Insecure,
	})
	if err != nil {
		return exitError(exitRuntime, "setting up tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("tracing shutdown failed", "error", err)
		}
	}()

	d, err := daemon.New(cfg, daemon.Options{Logger: logger})
	if err != nil {
		return exitError(exitConnect, "%v", err)
	}

	logger.Info("namewatch daemon starting", "config", path, "names", cfg.Names)
	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return exitError(exitRuntime, "%v", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Shut down cleanly")
	return nil
}
