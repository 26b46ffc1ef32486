package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/devfolio/portfolio-backend/internal/app"
	"github.com/devfolio/portfolio-backend/internal/config"
	"github.com/devfolio/portfolio-backend/internal/observability"
	"github.com/devfolio/portfolio-backend/internal/tools/common"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:           "portfolio-server",
		Short:         "Portfolio backend API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "env file loaded before configuration")
	return cmd
}

func serve(ctx context.Context, envFile string) error {
	if err := common.LoadEnvFile(envFile); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, loggerProvider, err := observability.InitLogging(ctx, cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	runtime, err := observability.InitRuntime(ctx, cfg, logger, loggerProvider)
	if err != nil {
		return err
	}

	a, cleanup, err := app.InitializeApp(cfg, logger, runtime)
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = runtime.Shutdown(shutdownCtx)
		return err
	}
	defer cleanup()

	logger.Info("server starting", "addr", cfg.ServerAddr, "base_url", cfg.BaseURL)
	if err := a.Run(ctx); err != nil {
		logger.Error("server exited with error", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}
