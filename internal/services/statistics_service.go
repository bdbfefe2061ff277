package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"weather-warehouse/internal/models"
	"weather-warehouse/internal/repository"
	"weather-warehouse/pkg/logging"
	"weather-warehouse/pkg/metrics"
)

// StatisticsService serves aggregations and drives full recomputation
type StatisticsService struct {
	repo    repository.WeatherRepository
	engine  *AggregationEngine
	workers int
	clock   clockwork.Clock
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// RecomputeResult reports a full recomputation run
type RecomputeResult struct {
	StationYears int
	Recomputed   int
	Failed       int
	RowsWritten  int
	Errors       []AggregationError
	Duration     time.Duration
}

// NewStatisticsService creates a new statistics service
func NewStatisticsService(repo repository.WeatherRepository, engine *AggregationEngine, workers int, clock clockwork.Clock, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *StatisticsService {
	if workers <= 0 {
		workers = 1
	}
	return &StatisticsService{
		repo:    repo,
		engine:  engine,
		workers: workers,
		clock:   clock,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// RecomputeAll regenerates aggregations for every station/year that has facts
func (s *StatisticsService) RecomputeAll(ctx context.Context) (*RecomputeResult, error) {
	startTime := s.clock.Now()

	s.logger.Info(ctx, "[STATS_CALC_START] Starting aggregation recomputation", logging.Fields{
		"stage": "INITIALIZATION",
	})

	keys, err := s.repo.StationYears(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list station years: %w", err)
	}

	rows := make([]int, len(keys))
	errs := make([]error, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			rows[i], errs[i] = s.engine.Recompute(gctx, key)
			return nil
		})
	}
	_ = g.Wait()

	result := &RecomputeResult{StationYears: len(keys)}
	for i, err := range errs {
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, AggregationError{
				StationID: keys[i].StationID,
				Year:      keys[i].Year,
				Kind:      models.ErrorKind(err),
				Message:   err.Error(),
			})
			continue
		}
		result.Recomputed++
		result.RowsWritten += rows[i]
	}
	result.Duration = s.clock.Since(startTime)

	s.logger.Info(ctx, "[STATS_CALC_COMPLETE] Aggregation recomputation completed", logging.Fields{
		"station_years":    result.StationYears,
		"recomputed":       result.Recomputed,
		"failed":           result.Failed,
		"rows_written":     result.RowsWritten,
		"duration_seconds": result.Duration.Seconds(),
		"stage":            "COMPLETE",
	})

	return result, ctx.Err()
}

// Recompute regenerates aggregations for one station/year
func (s *StatisticsService) Recompute(ctx context.Context, key models.StationYear) (int, error) {
	return s.engine.Recompute(ctx, key)
}

// ListAggregations retrieves aggregations with filtering
func (s *StatisticsService) ListAggregations(ctx context.Context, filter repository.AggregationFilter) ([]*models.WeatherAggregation, int, error) {
	return s.repo.ListAggregations(ctx, filter)
}
