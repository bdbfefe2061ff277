package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"weather-warehouse/internal/models"
	"weather-warehouse/internal/quality"
	"weather-warehouse/internal/repository"
	"weather-warehouse/pkg/logging"
	"weather-warehouse/pkg/metrics"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type testStack struct {
	repo        repository.WeatherRepository
	clock       *clockwork.FakeClock
	metrics     *metrics.Collector
	logger      *logging.StructuredLogger
	scorer      *quality.Scorer
	upserter    *FactUpserter
	engine      *AggregationEngine
	coordinator *IngestionCoordinator
}

func newTestStack(t *testing.T, repo repository.WeatherRepository, cfg CoordinatorConfig) *testStack {
	t.Helper()

	clock := clockwork.NewFakeClockAt(testNow)
	logger := logging.NewNopLogger()
	m := metrics.NewForTesting()

	scorer, err := quality.NewScorer(quality.DefaultPolicy())
	require.NoError(t, err)
	upserter, err := NewFactUpserter(repo, clock, logger, m)
	require.NoError(t, err)
	engine := NewAggregationEngine(repo, clock, logger, m)

	return &testStack{
		repo:        repo,
		clock:       clock,
		metrics:     m,
		logger:      logger,
		scorer:      scorer,
		upserter:    upserter,
		engine:      engine,
		coordinator: NewIngestionCoordinator(scorer, upserter, engine, cfg, clock, logger, m),
	}
}

func fastRetries() CoordinatorConfig {
	cfg := DefaultCoordinatorConfig()
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RetryMaxInterval = 5 * time.Millisecond
	return cfg
}

// advanceOnWait moves clock forward by step whenever something waits on it,
// so backoff sleeps complete without real delay.
func advanceOnWait(t *testing.T, clock *clockwork.FakeClock, step time.Duration) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		for clock.BlockUntilContext(ctx, 1) == nil {
			clock.Advance(step)
		}
	}()
}

func memoryWithStations(t *testing.T, ids ...string) *repository.MemoryRepository {
	t.Helper()
	repo := repository.NewMemoryRepository()
	for _, id := range ids {
		require.NoError(t, repo.CreateStation(context.Background(), &models.WeatherStation{
			StationID: id, Name: "Station " + id, State: "IA", Country: "USA", Active: true,
		}))
	}
	return repo
}

func intp(v int) *int { return &v }

func record(stationID, date string, maxTenths, minTenths, precipTenths *int) models.ObservationRecord {
	return models.ObservationRecord{
		StationID:  stationID,
		Date:       date,
		RawMaxTemp: maxTenths,
		RawMinTemp: minTenths,
		RawPrecip:  precipTenths,
	}
}

// januaryRecords returns n complete, consistent, in-range records for
// January 2020 with max temperatures 10.0, 11.0, ...
func januaryRecords(stationID string, n int) []models.ObservationRecord {
	out := make([]models.ObservationRecord, n)
	for i := 0; i < n; i++ {
		date := time.Date(2020, 1, i+1, 0, 0, 0, 0, time.UTC).Format("20060102")
		out[i] = record(stationID, date, intp(100+i*10), intp(-20+i), intp(5))
	}
	return out
}

// flakyRepo fails the first failures calls of UpsertFact and
// ReplaceAggregations with err, and counts recomputations per key.
type flakyRepo struct {
	*repository.MemoryRepository

	mu              sync.Mutex
	upsertFailures  int
	replaceFailures int
	err             error
	upsertCalls     int
	recomputes      map[models.StationYear]int
}

func newFlakyRepo(base *repository.MemoryRepository, err error) *flakyRepo {
	return &flakyRepo{MemoryRepository: base, err: err, recomputes: make(map[models.StationYear]int)}
}

func (r *flakyRepo) UpsertFact(ctx context.Context, fact *models.WeatherFact) error {
	r.mu.Lock()
	r.upsertCalls++
	if r.upsertFailures > 0 {
		r.upsertFailures--
		r.mu.Unlock()
		return r.err
	}
	r.mu.Unlock()
	return r.MemoryRepository.UpsertFact(ctx, fact)
}

func (r *flakyRepo) ReplaceAggregations(ctx context.Context, key models.StationYear, build repository.AggregateBuilder) (int, error) {
	r.mu.Lock()
	r.recomputes[key]++
	if r.replaceFailures > 0 {
		r.replaceFailures--
		r.mu.Unlock()
		return 0, r.err
	}
	r.mu.Unlock()
	return r.MemoryRepository.ReplaceAggregations(ctx, key, build)
}
