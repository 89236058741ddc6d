package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SVOIcom/everscale-connect-backend/internal/cluster"
	"github.com/SVOIcom/everscale-connect-backend/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "everconnect",
	Short: "Everscale Connect backend proxy",
	Long: `Runs the backend proxy that executes read-only contract calls and
encodes message payloads for clients without a chain SDK.

Without a subcommand the process becomes the coordinator and starts
MAX_WORKERS worker processes sharing PORT.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			os.Setenv(config.FileEnv, configPath)
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if cluster.IsWorker() {
			return run(cmd.Context(), roleWorker)
		}
		return run(cmd.Context(), roleCoordinator)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the proxy in this process without workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), roleStandalone)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (overrides "+config.FileEnv+")")
	rootCmd.AddCommand(serveCmd)
}

type role string

const (
	roleCoordinator role = "coordinator"
	roleWorker      role = "worker"
	roleStandalone  role = "standalone"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "everconnect: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, r role) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, sink := newLogger(cfg.Log, r)
	defer sink.Close()
	slog.SetDefault(logger)

	switch r {
	case roleCoordinator:
		return runCoordinator(ctx, cfg, logger, sink)
	default:
		return runWorker(ctx, cfg, logger, r)
	}
}
