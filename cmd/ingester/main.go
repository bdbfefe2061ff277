package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"weather-warehouse/internal/config"
	"weather-warehouse/internal/quality"
	"weather-warehouse/internal/repository"
	"weather-warehouse/internal/services"
	"weather-warehouse/pkg/database"
	"weather-warehouse/pkg/logging"
	"weather-warehouse/pkg/metrics"
)

const version = "1.0.0"

// app holds the wiring shared by every subcommand. It is built once the
// command line has been parsed so that --help never touches the database.
type app struct {
	cfg     *config.Config
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	db      *database.PostgresDB

	ingestion *services.IngestionService
	engine    *services.AggregationEngine
	stats     *services.StatisticsService
	yields    *services.YieldService
}

func newApp(cfg *config.Config) (*app, error) {
	logger := logging.NewStructuredLogger("weather-ingester", version, logging.ParseLevel(cfg.Logging.Level))
	metricsCollector := metrics.NewCollector("weather_ingester", prometheus.DefaultRegisterer)

	policy := quality.DefaultPolicy()
	if cfg.Ingestion.QualityPolicyPath != "" {
		var err error
		if policy, err = quality.LoadPolicy(cfg.Ingestion.QualityPolicyPath); err != nil {
			return nil, err
		}
	}
	scorer, err := quality.NewScorer(policy)
	if err != nil {
		return nil, err
	}
	logger.Info(context.Background(), "[STARTUP] Quality policy loaded", logging.Fields{
		"policy_version": policy.Version,
		"policy_path":    cfg.Ingestion.QualityPolicyPath,
	})

	db, err := database.NewPostgresDB(cfg.Database.Postgres(), logger, metricsCollector)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := repository.NewWeatherRepository(db, logger, metricsCollector)
	clock := clockwork.NewRealClock()

	upserter, err := services.NewFactUpserter(repo, clock, logger, metricsCollector)
	if err != nil {
		db.Close()
		return nil, err
	}
	engine := services.NewAggregationEngine(repo, clock, logger, metricsCollector)
	coordinator := services.NewIngestionCoordinator(scorer, upserter, engine, services.CoordinatorConfig{
		Workers:              cfg.Ingestion.Workers,
		RetryAttempts:        cfg.Ingestion.RetryAttempts,
		RetryInitialInterval: cfg.Ingestion.RetryInitialInterval,
		RetryMaxInterval:     cfg.Ingestion.RetryMaxInterval,
		BreakerThreshold:     cfg.Ingestion.BreakerThreshold,
		BreakerTimeout:       cfg.Ingestion.BreakerTimeout,
	}, clock, logger, metricsCollector)

	return &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   metricsCollector,
		db:        db,
		ingestion: services.NewIngestionService(repo, coordinator, clock, logger, metricsCollector),
		engine:    engine,
		stats:     services.NewStatisticsService(repo, engine, cfg.Ingestion.Workers, clock, logger, metricsCollector),
		yields:    services.NewYieldService(repo, clock, logger),
	}, nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

// cli owns the app for the lifetime of one command invocation
type cli struct {
	app *app
}

func (c *cli) get() *app { return c.app }

func (c *cli) close() {
	if c.app != nil {
		c.app.Close()
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "ingester",
		Short:         "Weather warehouse ingestion and aggregation tool",
		Long:          `Loads station observation files, scores their quality, upserts facts, and maintains annual, quarterly, and monthly aggregations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			c.app, err = newApp(cfg)
			return err
		},
	}

	root.AddCommand(
		newIngestCmd(c.get),
		newWatchCmd(c.get),
		newAggregateCmd(c.get),
		newYieldsCmd(c.get),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{}
	err := newRootCmd(c).ExecuteContext(ctx)
	c.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
