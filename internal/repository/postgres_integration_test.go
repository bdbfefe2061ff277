//go:build integration

package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"weather-warehouse/internal/migrations"
	"weather-warehouse/internal/models"
	"weather-warehouse/internal/repository"
	"weather-warehouse/pkg/database"
	"weather-warehouse/pkg/logging"
	"weather-warehouse/pkg/metrics"
)

// startPostgres runs a throwaway PostgreSQL container with the schema applied.
func startPostgres(ctx context.Context, t *testing.T) repository.WeatherRepository {
	t.Helper()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("weather_test"),
		tcpostgres.WithUsername("weather"),
		tcpostgres.WithPassword("weather"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start postgres container")

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sqlx.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	runner, err := migrations.NewRunner(db.DB)
	require.NoError(t, err)
	_, err = runner.Up(ctx)
	require.NoError(t, err, "apply migrations")

	logger := logging.NewNopLogger()
	m := metrics.NewForTesting()
	pg, err := database.Wrap(db, &database.Config{Database: "weather_test", MaxOpenConns: 10}, logger, m)
	require.NoError(t, err)
	require.True(t, pg.Capabilities().Upsert)

	return repository.NewWeatherRepository(pg, logger, m)
}

func TestPostgresRepository_FactLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	repo := startPostgres(ctx, t)

	require.NoError(t, repo.CreateStation(ctx, &models.WeatherStation{
		StationID: "USC00110072", Name: "Test", Latitude: 41.5, Longitude: -93.6,
		State: "IA", Country: "USA", Timezone: "UTC", Active: true,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))

	exists, err := repo.StationExists(ctx, "USC00110072")
	require.NoError(t, err)
	assert.True(t, exists)

	date := time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)
	raw := 100
	maxC := 10.0
	fact := &models.WeatherFact{
		StationID: "USC00110072", ObservationDate: date, Source: "manual",
		RawMaxTemp: &raw, MaxTempC: &maxC,
		DataQuality: models.QualityFair, QualityScore: 0.8, MissingValues: 2,
		QualityNotes: "missing: min_temp, precipitation", IngestedAt: time.Now().UTC(), IngestRunID: "run-1",
	}
	require.NoError(t, repo.UpsertFact(ctx, fact))

	fact.QualityScore = 0.7
	fact.IngestRunID = "run-2"
	require.NoError(t, repo.UpsertFact(ctx, fact))

	got, err := repo.GetFact(ctx, "USC00110072", date, "manual")
	require.NoError(t, err)
	assert.Equal(t, 0.7, got.QualityScore)
	assert.Equal(t, "run-2", got.IngestRunID)
	assert.Nil(t, got.RawMinTemp)

	_, total, err := repo.ListFacts(ctx, repository.FactFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	keys, err := repo.StationYears(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.StationYear{{StationID: "USC00110072", Year: 2020}}, keys)
}

func TestPostgresRepository_UnknownStationIsStorageError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	repo := startPostgres(ctx, t)

	err := repo.UpsertFact(ctx, &models.WeatherFact{
		StationID: "MISSING", ObservationDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Source: "manual", DataQuality: models.QualityPoor, IngestedAt: time.Now(),
	})
	require.Error(t, err)
	assert.Equal(t, "storage", models.ErrorKind(err))
	assert.True(t, models.IsTransient(err))
}

func TestPostgresRepository_ConcurrentRecomputeSerializes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	repo := startPostgres(ctx, t)

	require.NoError(t, repo.CreateStation(ctx, &models.WeatherStation{
		StationID: "S1", Name: "S1", State: "IA", Country: "USA", Timezone: "UTC", Active: true,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))

	key := models.StationYear{StationID: "S1", Year: 2020}
	build := func(facts []*models.WeatherFact) ([]*models.WeatherAggregation, error) {
		start, end := models.PeriodAnnual.Bounds(2020, 1)
		return []*models.WeatherAggregation{{
			StationID: "S1", Year: 2020, PeriodType: models.PeriodAnnual, PeriodNumber: 1,
			PeriodStart: start, PeriodEnd: end, RecordCount: len(facts), CalculatedAt: time.Now(),
		}}, nil
	}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.ReplaceAggregations(ctx, key, build)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	rows, total, err := repo.ListAggregations(ctx, repository.AggregationFilter{StationID: &key.StationID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, models.PeriodAnnual, rows[0].PeriodType)
}

func TestPostgresRepository_ReplaceFactAndYields(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	repo := startPostgres(ctx, t)

	require.NoError(t, repo.CreateStation(ctx, &models.WeatherStation{
		StationID: "USC00111280", Name: "Test", State: "IA", Country: "USA", Timezone: "UTC", Active: true,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))

	replacer, ok := repo.(repository.FactReplacer)
	require.True(t, ok)

	date := time.Date(2001, 3, 2, 0, 0, 0, 0, time.UTC)
	for _, run := range []string{"run-1", "run-2"} {
		require.NoError(t, replacer.ReplaceFact(ctx, &models.WeatherFact{
			StationID: "USC00111280", ObservationDate: date, Source: "manual",
			DataQuality: models.QualityPoor, QualityScore: 0.5, MissingValues: 3,
			IngestedAt: time.Now().UTC(), IngestRunID: run,
		}))
	}
	got, err := repo.GetFact(ctx, "USC00111280", date, "manual")
	require.NoError(t, err)
	assert.Equal(t, "run-2", got.IngestRunID)

	now := time.Now().UTC()
	require.NoError(t, repo.UpsertYield(ctx, &models.CornYield{Year: 1985, Yield: 100, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, repo.UpsertYield(ctx, &models.CornYield{Year: 1985, Yield: 225447, CreatedAt: now, UpdatedAt: now}))
	yields, total, err := repo.ListYields(ctx, repository.YieldFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, int64(225447), yields[0].Yield)
}
