package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PaulBabatuyi/PlacementAssets/internal/config"
	"github.com/PaulBabatuyi/PlacementAssets/internal/observability"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "placement-assets",
		Short:         "Resume and logo storage for the internship portal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the admin gRPC server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()

			return runServe(cmd.Context(), cfg, logger)
		},
	}

	var maxAge time.Duration
	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Remove staged files left behind by crashed processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if maxAge <= 0 {
				maxAge = cfg.StagingMaxAge
			}
			n, err := runSweep(cfg, logger, maxAge)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d staged file(s) older than %s\n", n, maxAge)
			return nil
		},
	}
	sweep.Flags().DurationVar(&maxAge, "older-than", 0, "age threshold (defaults to STAGING_MAX_AGE)")

	root.AddCommand(serve, sweep)
	// bare invocation serves
	root.RunE = serve.RunE

	return root
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.InitLogger(cfg.IsDev())
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
