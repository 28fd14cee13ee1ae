// Command etl fetches the current weather observation, derives its heat index
// and stores it once per observation timestamp. It runs once and exits, so it
// is meant to be triggered by cron or a similar scheduler.
//
// Usage:
//
//	etl              run extract, transform and load
//	etl --dry-run    extract and transform only, print the observation
//	etl --recent 10  print the 10 newest stored observations
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	kafkaadapter "github.com/couchcryptid/weather-readings-etl/internal/adapter/kafka"
	"github.com/couchcryptid/weather-readings-etl/internal/adapter/openweather"
	"github.com/couchcryptid/weather-readings-etl/internal/adapter/sqlstore"
	"github.com/couchcryptid/weather-readings-etl/internal/config"
	"github.com/couchcryptid/weather-readings-etl/internal/domain"
	"github.com/couchcryptid/weather-readings-etl/internal/observability"
	"github.com/couchcryptid/weather-readings-etl/internal/pipeline"
	"github.com/spf13/pflag"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

type options struct {
	dryRun bool
	recent int
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return exitConfig
	}

	level, err := observability.ParseLevel(cfg.LogLevel)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return exitConfig
	}
	logger := observability.NewLogger(level, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()

	if opts.recent > 0 {
		return exitCode(printRecent(ctx, cfg, opts.recent, logger, stdout))
	}

	metrics := observability.NewMetrics()
	extractor := openweather.NewClient(
		cfg.OpenWeatherAPIKey,
		domain.Location{Lat: cfg.Lat, Lon: cfg.Lon},
		cfg.OpenWeatherBaseURL,
		cfg.OpenWeatherTimeout,
		logger,
	)
	loader := sqlstore.NewLoader(cfg.DatabaseURL, logger)
	p := pipeline.New(extractor, pipeline.NewTransformer(), loader, logger, metrics)

	var writer *kafkaadapter.Writer
	if cfg.PublishEnabled() && !opts.dryRun {
		writer = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		p.WithPublisher(writer)
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	if opts.dryRun {
		obs, err := p.Extract(ctx)
		if err != nil {
			logger.Error("dry run failed", "error", err, "error_kind", domain.Kind(err))
			return exitCode(err)
		}
		return exitCode(writeJSON(stdout, obs))
	}

	_, runErr := p.Run(ctx)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := loader.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}
	if cfg.PushgatewayURL != "" {
		if err := metrics.Push(shutdownCtx, cfg.PushgatewayURL); err != nil {
			logger.Warn("metrics push failed", "error", err)
		}
	}

	return exitCode(runErr)
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("etl", pflag.ContinueOnError)
	fs.BoolVar(&opts.dryRun, "dry-run", false, "extract and transform only; print the observation as JSON")
	fs.IntVar(&opts.recent, "recent", 0, "print the `N` newest stored observations as JSON and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.recent < 0 {
		return options{}, fmt.Errorf("--recent must be positive, got %d", opts.recent)
	}
	if opts.dryRun && opts.recent > 0 {
		return options{}, errors.New("--dry-run and --recent are mutually exclusive")
	}
	return opts, nil
}

// printRecent writes the newest stored observations. A missing table and an
// empty table are reported as different errors.
func printRecent(ctx context.Context, cfg *config.Config, n int, logger *slog.Logger, stdout io.Writer) error {
	loader := sqlstore.NewLoader(cfg.DatabaseURL, logger)
	if err := loader.Validate(); err != nil {
		logger.Error("recent readings failed", "error", err)
		return err
	}
	defer func() {
		if err := loader.Close(); err != nil {
			logger.Error("database close error", "error", err)
		}
	}()

	store, err := loader.Store(ctx)
	if err != nil {
		logger.Error("recent readings failed", "error", err)
		return err
	}

	readings, err := store.Recent(ctx, n)
	switch {
	case errors.Is(err, sqlstore.ErrTableMissing):
		logger.Error("no readings table yet; run the etl first", "error", err)
		return err
	case errors.Is(err, sqlstore.ErrNoReadings):
		logger.Warn("readings table is empty", "error", err)
		return err
	case err != nil:
		logger.Error("recent readings failed", "error", err)
		return err
	}
	return writeJSON(stdout, readings)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var cfgErr *domain.ConfigError
	if errors.As(err, &cfgErr) {
		return exitConfig
	}
	return exitFailed
}
