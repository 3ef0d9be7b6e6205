package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cam3ron2/github-insights/internal/app"
	"github.com/cam3ron2/github-insights/internal/config"
	"github.com/cam3ron2/github-insights/internal/telemetry"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set by linker flags at release time.
var version = "dev"

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand(os.Stdout).ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "github-insights: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	output     string
	out        io.Writer
	lookupEnv  func(string) (string, bool)
}

func newRootCommand(out io.Writer) *cobra.Command {
	opts := &rootOptions{out: out, lookupEnv: os.LookupEnv}

	root := &cobra.Command{
		Use:           "github-insights",
		Short:         "Contributor, streak, and badge analytics over the GitHub API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return validateOutput(opts.output)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config file (defaults apply when empty)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", outputTable, "output format: table or json")

	root.AddCommand(
		newServeCommand(opts),
		newCommitsCommand(opts),
		newContributorsCommand(opts),
		newStreaksCommand(opts),
		newActivityCommand(opts),
		newInsightCommand(opts),
		newBadgesCommand(opts),
		newRateLimitCommand(opts),
	)
	return root
}

// withRuntime builds config, logger, telemetry, and runtime around fn and
// tears them down afterwards.
func (o *rootOptions) withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) (err error) {
	cfg, err := loadConfig(o.configPath, o.lookupEnv)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Server.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil && !shouldIgnoreLoggerSyncError(syncErr) {
			_, _ = fmt.Fprintf(os.Stderr, "github-insights: sync logger: %v\n", syncErr)
		}
	}()

	telemetryRuntime, err := telemetry.Setup(telemetry.Config{
		Enabled:          cfg.Telemetry.OTELEnabled,
		ServiceName:      "github-insights",
		ServiceVersion:   version,
		TraceMode:        cfg.Telemetry.OTELTraceMode,
		TraceSampleRatio: cfg.Telemetry.OTELTraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := telemetryRuntime.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(shutdownErr))
		}
	}()

	runtime, err := app.NewRuntime(cfg, logger)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer func() {
		if closeErr := runtime.Close(); closeErr != nil {
			logger.Warn("failed to close snapshot store", zap.Error(closeErr))
		}
	}()

	return fn(ctx, runtime)
}

func loadConfig(path string, lookup func(string) (string, bool)) (*config.Config, error) {
	cfg := config.Default()
	if strings.TrimSpace(path) != "" {
		configFile, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config file: %w", err)
		}
		defer func() {
			_ = configFile.Close()
		}()

		cfg, err = config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	cfg.ApplyEnv(lookup)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(logLevel(level))
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func logLevel(raw string) zapcore.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// shouldIgnoreLoggerSyncError reports sync failures that stderr and
// terminals return on some platforms.
func shouldIgnoreLoggerSyncError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}
