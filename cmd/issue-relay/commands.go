package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cam3ron2/issue-relay/internal/app"
	"github.com/cam3ron2/issue-relay/internal/config"
	"github.com/cam3ron2/issue-relay/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "issue-relay",
		Short: "Relay GitHub issue history to a forecasting service",
		Long: `issue-relay serves an HTTP API that collects a year of GitHub issues for a
repository, buckets them by month, and attaches forecasts produced by a
remote forecasting service. It also looks up summary counts for batches of
repositories.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config file (optional)")

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newDetailsCmd(opts))
	rootCmd.AddCommand(newForecastCmd(opts))
	return rootCmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP relay server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func newDetailsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "details <owner/repo>...",
		Short: "Print star, fork, and issue counts for repositories as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(opts, func(runtime *app.Runtime) error {
				summaries := runtime.Service().RepositoryDetails(commandContext(cmd), args)
				return printJSON(cmd.OutOrStdout(), summaries)
			})
		},
	}
}

func newForecastCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "forecast <owner/repo>",
		Short: "Print the monthly issue series and forecasts for one repository as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(opts, func(runtime *app.Runtime) error {
				report, err := runtime.Service().IssueForecast(commandContext(cmd), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// withRuntime builds config, logger, and runtime for a one-shot command.
func withRuntime(opts *rootOptions, fn func(runtime *app.Runtime) error) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger, syncLogger, err := buildLogger(cfg.Server.LogLevel)
	if err != nil {
		return err
	}
	defer syncLogger()

	runtime, err := app.NewRuntime(cfg, logger)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	return fn(runtime)
}

func printJSON(w io.Writer, payload any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(payload); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func runServe(parent context.Context, opts *rootOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	logger, syncLogger, err := buildLogger(cfg.Server.LogLevel)
	if err != nil {
		return err
	}
	defer syncLogger()

	telemetryRuntime, err := setupTelemetry(cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetryRuntime.Shutdown(shutdownCtx)
	}()

	runtime, err := app.NewRuntime(cfg, logger)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           runtime.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	rootCtx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info(
			"http server starting",
			zap.String("addr", cfg.Server.ListenAddr),
			zap.String("forecast_url", cfg.Forecast.URL),
			zap.Int("window_count", cfg.GitHub.WindowCount),
			zap.Int("page_size", cfg.GitHub.PageSize),
		)
		if serveErr := server.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			serverErrCh <- serveErr
		}
		close(serverErrCh)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case serveErr := <-serverErrCh:
		if serveErr != nil {
			return fmt.Errorf("http server failed: %w", serveErr)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func setupTelemetry(cfg *config.Config) (telemetry.Runtime, error) {
	telemetryRuntime, err := telemetry.Setup(telemetry.Config{
		Enabled:          cfg.Telemetry.OTELEnabled,
		ServiceName:      "issue-relay",
		TraceMode:        cfg.Telemetry.OTELTraceMode,
		TraceSampleRatio: cfg.Telemetry.OTELTraceSampleRatio,
	})
	if err != nil {
		return telemetry.Runtime{}, fmt.Errorf("setup telemetry: %w", err)
	}
	return telemetryRuntime, nil
}
