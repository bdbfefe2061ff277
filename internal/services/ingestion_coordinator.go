package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"weather-warehouse/internal/models"
	"weather-warehouse/internal/quality"
	"weather-warehouse/pkg/logging"
	"weather-warehouse/pkg/metrics"
)

// CoordinatorConfig tunes parallelism and storage retries
type CoordinatorConfig struct {
	Workers              int
	RetryAttempts        int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	BreakerThreshold     uint32
	BreakerTimeout       time.Duration
}

// DefaultCoordinatorConfig returns the settings used when none are configured
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		Workers:              4,
		RetryAttempts:        3,
		RetryInitialInterval: 100 * time.Millisecond,
		RetryMaxInterval:     2 * time.Second,
		BreakerThreshold:     10,
		BreakerTimeout:       30 * time.Second,
	}
}

// RecordError describes why one record of a batch was skipped
type RecordError struct {
	Index     int    `json:"index"`
	StationID string `json:"station_id"`
	Date      string `json:"date"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

// AggregationError describes a failed station/year recomputation
type AggregationError struct {
	StationID string `json:"station_id"`
	Year      int    `json:"year"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

// IngestionSummary reports the outcome of one batch
type IngestionSummary struct {
	RunID                  string             `json:"ingest_run_id"`
	Source                 string             `json:"source"`
	Total                  int                `json:"total"`
	Scored                 int                `json:"scored"`
	Upserted               int                `json:"upserted"`
	Failed                 int                `json:"failed"`
	AggregationsRecomputed int                `json:"aggregations_recomputed"`
	AggregationsFailed     int                `json:"aggregations_failed"`
	Errors                 []RecordError      `json:"errors,omitempty"`
	AggregationErrors      []AggregationError `json:"aggregation_errors,omitempty"`
	Duration               time.Duration      `json:"duration"`
}

// Merge adds the counts and errors of other into s
func (s *IngestionSummary) Merge(other *IngestionSummary) {
	s.Total += other.Total
	s.Scored += other.Scored
	s.Upserted += other.Upserted
	s.Failed += other.Failed
	s.AggregationsRecomputed += other.AggregationsRecomputed
	s.AggregationsFailed += other.AggregationsFailed
	s.Errors = append(s.Errors, other.Errors...)
	s.AggregationErrors = append(s.AggregationErrors, other.AggregationErrors...)
	s.Duration += other.Duration
}

// IngestionCoordinator scores and upserts a batch of records, then recomputes
// the aggregations of every station/year the batch touched.
type IngestionCoordinator struct {
	scorer   *quality.Scorer
	upserter *FactUpserter
	engine   *AggregationEngine
	cfg      CoordinatorConfig
	breaker  *gobreaker.CircuitBreaker
	clock    clockwork.Clock
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// NewIngestionCoordinator creates a new ingestion coordinator
func NewIngestionCoordinator(
	scorer *quality.Scorer,
	upserter *FactUpserter,
	engine *AggregationEngine,
	cfg CoordinatorConfig,
	clock clockwork.Clock,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *IngestionCoordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}

	threshold := cfg.BreakerThreshold
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "fact-store",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return threshold > 0 && counts.ConsecutiveFailures >= threshold
		},
		// Only transient store failures count against the breaker; rejected
		// rows do not.
		IsSuccessful: func(err error) bool {
			return err == nil || !models.IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "[BREAKER_STATE] Circuit breaker state changed", logging.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})

	return &IngestionCoordinator{
		scorer:   scorer,
		upserter: upserter,
		engine:   engine,
		cfg:      cfg,
		breaker:  breaker,
		clock:    clock,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

type scored struct {
	qa  models.QualityAssessment
	err error
}

// IngestBatch runs one batch. Record and recomputation failures are collected
// into the summary; the returned error is non-nil only when ctx ends early.
func (c *IngestionCoordinator) IngestBatch(ctx context.Context, records []models.ObservationRecord, source, runID string) (*IngestionSummary, error) {
	start := c.clock.Now()
	if source == "" {
		source = models.DefaultSource
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = logging.WithRunID(ctx, runID)

	summary := &IngestionSummary{RunID: runID, Source: source, Total: len(records)}
	c.metrics.IngestionBatchSize.Observe(float64(len(records)))

	c.logger.Info(ctx, "[INGEST_BATCH_START] Starting batch", logging.Fields{
		"records": len(records),
		"source":  source,
		"stage":   "SCORING",
	})

	results := c.scoreAll(records)

	touched := make(map[models.StationYear]struct{})
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			summary.Duration = c.clock.Since(start)
			return summary, err
		}

		res := results[i]
		if res.err != nil {
			c.recordFailure(summary, i, rec, res.err)
			continue
		}
		summary.Scored++
		c.metrics.RecordQuality(string(res.qa.Category))

		var fact *models.WeatherFact
		err := c.withRetry(ctx, "upsert_fact", func() error {
			var err error
			fact, err = c.upserter.Upsert(ctx, rec, res.qa, source, runID)
			return err
		})
		if err != nil {
			c.recordFailure(summary, i, rec, err)
			continue
		}
		summary.Upserted++
		c.metrics.IngestionRecordsTotal.WithLabelValues("upserted").Inc()
		touched[models.StationYear{StationID: fact.StationID, Year: fact.ObservationDate.Year()}] = struct{}{}
	}

	c.recomputeAll(ctx, touched, summary)

	summary.Duration = c.clock.Since(start)
	c.metrics.IngestionDuration.Observe(summary.Duration.Seconds())

	c.logger.Info(ctx, "[INGEST_BATCH_COMPLETE] Batch completed", logging.Fields{
		"total":                   summary.Total,
		"scored":                  summary.Scored,
		"upserted":                summary.Upserted,
		"failed":                  summary.Failed,
		"aggregations_recomputed": summary.AggregationsRecomputed,
		"aggregations_failed":     summary.AggregationsFailed,
		"duration_ms":             summary.Duration.Milliseconds(),
		"stage":                   "COMPLETE",
	})
	return summary, ctx.Err()
}

// scoreAll scores records in parallel. Scoring is pure, so workers share
// nothing but their own slot in the result slice.
func (c *IngestionCoordinator) scoreAll(records []models.ObservationRecord) []scored {
	results := make([]scored, len(records))
	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)
	for i := range records {
		i := i
		g.Go(func() error {
			qa, err := c.scorer.Score(records[i].Measurements())
			results[i] = scored{qa: qa, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// recomputeAll recomputes each touched station/year once, in parallel
func (c *IngestionCoordinator) recomputeAll(ctx context.Context, touched map[models.StationYear]struct{}, summary *IngestionSummary) {
	keys := make([]models.StationYear, 0, len(touched))
	for k := range touched {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].StationID != keys[j].StationID {
			return keys[i].StationID < keys[j].StationID
		}
		return keys[i].Year < keys[j].Year
	})

	errs := make([]error, len(keys))
	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			errs[i] = c.withRetry(ctx, "replace_aggregations", func() error {
				_, err := c.engine.Recompute(ctx, key)
				return err
			})
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err == nil {
			summary.AggregationsRecomputed++
			continue
		}
		summary.AggregationsFailed++
		summary.AggregationErrors = append(summary.AggregationErrors, AggregationError{
			StationID: keys[i].StationID,
			Year:      keys[i].Year,
			Kind:      models.ErrorKind(err),
			Message:   err.Error(),
		})
	}
}

func (c *IngestionCoordinator) recordFailure(summary *IngestionSummary, index int, rec models.ObservationRecord, err error) {
	kind := models.ErrorKind(err)
	summary.Failed++
	summary.Errors = append(summary.Errors, RecordError{
		Index:     index,
		StationID: rec.StationID,
		Date:      rec.Date,
		Kind:      kind,
		Message:   err.Error(),
	})
	c.metrics.IngestionRecordsTotal.WithLabelValues("failed").Inc()
	c.metrics.RecordIngestionError(kind)
}

// withRetry runs fn through the circuit breaker, retrying transient storage
// errors with exponential backoff. An open breaker fails fast.
func (c *IngestionCoordinator) withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := c.cfg.RetryInitialInterval
	for attempt := 1; ; attempt++ {
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, fn()
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &models.StorageError{Op: op, Err: fmt.Errorf("circuit breaker: %w", err)}
		}
		if !models.IsTransient(err) || attempt >= c.cfg.RetryAttempts {
			return err
		}

		c.metrics.IngestionRetriesTotal.Inc()
		c.logger.Warn(ctx, "[INGEST_RETRY] Transient storage error, retrying", logging.Fields{
			"operation":  op,
			"attempt":    attempt,
			"backoff_ms": backoff.Milliseconds(),
			"error":      err.Error(),
		})
		if !c.sleep(ctx, backoff) {
			return &models.StorageError{Op: op, Err: ctx.Err()}
		}
		backoff = nextBackoff(backoff, c.cfg.RetryMaxInterval)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if maxBackoff > 0 && next > maxBackoff {
		return maxBackoff
	}
	return next
}

// sleep waits d on the coordinator's clock and reports false if ctx ended first
func (c *IngestionCoordinator) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := c.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
