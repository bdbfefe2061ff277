package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"weather-warehouse/internal/models"
	"weather-warehouse/internal/repository"
	"weather-warehouse/pkg/logging"
	"weather-warehouse/pkg/metrics"
)

type writeFunc func(ctx context.Context, fact *models.WeatherFact) error

// FactUpserter writes scored observations into the fact store, one row per
// (station_id, observation_date, source).
type FactUpserter struct {
	repo    repository.WeatherRepository
	write   writeFunc
	clock   clockwork.Clock
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewFactUpserter picks the write strategy from the store's capabilities:
// native upsert when advertised, otherwise transactional replace.
func NewFactUpserter(repo repository.WeatherRepository, clock clockwork.Clock, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*FactUpserter, error) {
	u := &FactUpserter{
		repo:    repo,
		clock:   clock,
		logger:  logger,
		metrics: metricsCollector,
	}

	caps := repo.Capabilities()
	switch replacer, ok := repo.(repository.FactReplacer); {
	case caps.Upsert:
		u.write = repo.UpsertFact
	case ok:
		u.write = replacer.ReplaceFact
	default:
		return nil, errors.New("fact store supports neither upsert nor replace")
	}

	logger.Debug(context.Background(), "[UPSERTER_INIT] Fact write strategy selected", logging.Fields{
		"native_upsert":   caps.Upsert,
		"range_partition": caps.RangePartition,
	})
	return u, nil
}

// Upsert validates the record's date, raw ranges and station, then inserts the fact or
// replaces the row stored under the same key. Calling it again with the same
// input leaves the same row behind, apart from ingested_at.
func (u *FactUpserter) Upsert(ctx context.Context, rec models.ObservationRecord, qa models.QualityAssessment, source, runID string) (*models.WeatherFact, error) {
	date, err := models.ParseObservationDate(rec.Date)
	if err != nil {
		return nil, err
	}
	if err := rec.ValidateRaw(); err != nil {
		return nil, err
	}

	exists, err := u.repo.StationExists(ctx, rec.StationID)
	if err != nil {
		return nil, asStorageError("station_exists", err)
	}
	if !exists {
		return nil, &models.ValidationError{Field: "station_id", Value: rec.StationID, Message: "unknown station"}
	}

	if source == "" {
		source = models.DefaultSource
	}
	fact := models.NewWeatherFact(rec, date, source, qa)
	fact.IngestedAt = u.clock.Now().UTC()
	fact.IngestRunID = runID

	if err := u.write(ctx, fact); err != nil {
		return nil, asStorageError("upsert_fact", err)
	}
	return fact, nil
}

// asStorageError keeps typed errors and wraps anything else as a
// non-retryable storage failure
func asStorageError(op string, err error) error {
	var se *models.StorageError
	var ve *models.ValidationError
	if errors.As(err, &se) || errors.As(err, &ve) {
		return err
	}
	return &models.StorageError{Op: op, Err: fmt.Errorf("unexpected store error: %w", err)}
}
