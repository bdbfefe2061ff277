package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-warehouse/internal/models"
	"weather-warehouse/internal/repository"
	"weather-warehouse/pkg/logging"
	"weather-warehouse/pkg/metrics"
)

func TestFactUpserter_Idempotent(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t, memoryWithStations(t, "S1"), fastRetries())

	rec := record("S1", "20200115", intp(123), intp(45), intp(67))
	qa, err := stack.scorer.Score(rec.Measurements())
	require.NoError(t, err)

	_, err = stack.upserter.Upsert(ctx, rec, qa, "manual", "run-1")
	require.NoError(t, err)
	first, _, err := stack.repo.ListFacts(ctx, repository.FactFilter{})
	require.NoError(t, err)

	_, err = stack.upserter.Upsert(ctx, rec, qa, "manual", "run-1")
	require.NoError(t, err)
	second, _, err := stack.repo.ListFacts(ctx, repository.FactFilter{})
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second upsert changed the store (-first +second):\n%s", diff)
	}
	require.Len(t, second, 1)

	f := second[0]
	assert.Equal(t, 12.3, *f.MaxTempC)
	assert.Equal(t, 4.5, *f.MinTempC)
	assert.InDelta(t, 6.7, *f.PrecipMM, 1e-9)
	assert.InDelta(t, 0.67, *f.PrecipCM, 1e-9)
	assert.Equal(t, 123, *f.RawMaxTemp)
	assert.Equal(t, testNow, f.IngestedAt)
}

func TestFactUpserter_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t, memoryWithStations(t, "S1"), fastRetries())

	for i, maxTenths := range []int{100, 200, 300} {
		rec := record("S1", "2020-01-15", intp(maxTenths), intp(0), intp(0))
		qa, err := stack.scorer.Score(rec.Measurements())
		require.NoError(t, err)
		stack.clock.Advance(time.Minute)
		_, err = stack.upserter.Upsert(ctx, rec, qa, "", "run-"+string(rune('a'+i)))
		require.NoError(t, err)
	}

	facts, total, err := stack.repo.ListFacts(ctx, repository.FactFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, 30.0, *facts[0].MaxTempC)
	assert.Equal(t, "run-c", facts[0].IngestRunID)
	assert.Equal(t, models.DefaultSource, facts[0].Source)
	assert.Equal(t, testNow.Add(3*time.Minute), facts[0].IngestedAt)
}

func TestFactUpserter_Validation(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t, memoryWithStations(t, "S1"), fastRetries())
	qa := models.QualityAssessment{Score: 1, Category: models.QualityExcellent}

	tests := []struct {
		name  string
		rec   models.ObservationRecord
		field string
	}{
		{"unknown station", record("S9", "20200101", nil, nil, nil), "station_id"},
		{"bad date", record("S1", "2020-13-01", nil, nil, nil), "observation_date"},
		{"garbage date", record("S1", "yesterday", nil, nil, nil), "observation_date"},
		{"precip beyond smallint", record("S1", "20200101", intp(100), intp(0), intp(40000)), "raw_precip"},
		{"max temp beyond smallint", record("S1", "20200101", intp(32768), intp(0), intp(0)), "raw_max_temp"},
		{"min temp below smallint", record("S1", "20200101", intp(0), intp(-32769), intp(0)), "raw_min_temp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := stack.upserter.Upsert(ctx, tt.rec, qa, "manual", "run-1")
			var ve *models.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
			assert.False(t, models.IsTransient(err))
		})
	}
}

func TestFactUpserter_AcceptsSmallintBounds(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t, memoryWithStations(t, "S1"), fastRetries())

	rec := record("S1", "20200101", intp(32767), intp(-32768), intp(32767))
	qa, err := stack.scorer.Score(rec.Measurements())
	require.NoError(t, err)

	fact, err := stack.upserter.Upsert(ctx, rec, qa, "manual", "run-1")
	require.NoError(t, err)
	assert.Equal(t, 32767, *fact.RawPrecip)
	assert.Equal(t, -32768, *fact.RawMinTemp)
}

// replaceOnlyRepo hides native upsert so the upserter falls back to ReplaceFact
type replaceOnlyRepo struct {
	*repository.MemoryRepository
	replaced int
}

func (r *replaceOnlyRepo) ReplaceFact(ctx context.Context, fact *models.WeatherFact) error {
	r.replaced++
	return r.MemoryRepository.ReplaceFact(ctx, fact)
}

func TestFactUpserter_FallsBackToReplace(t *testing.T) {
	ctx := context.Background()
	base := repository.NewMemoryRepositoryWithCapabilities(repository.Capabilities{Upsert: false})
	require.NoError(t, base.CreateStation(ctx, &models.WeatherStation{StationID: "S1", State: "IA"}))
	repo := &replaceOnlyRepo{MemoryRepository: base}

	stack := newTestStack(t, repo, fastRetries())
	rec := record("S1", "20200101", intp(10), intp(0), intp(0))
	_, err := stack.upserter.Upsert(ctx, rec, models.QualityAssessment{Category: models.QualityGood}, "manual", "r")
	require.NoError(t, err)
	_, err = stack.upserter.Upsert(ctx, rec, models.QualityAssessment{Category: models.QualityGood}, "manual", "r")
	require.NoError(t, err)

	assert.Equal(t, 2, repo.replaced)
	_, total, err := repo.ListFacts(ctx, repository.FactFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

// noWriteRepo advertises no upsert and offers no replace
type noWriteRepo struct {
	repository.WeatherRepository
}

func (noWriteRepo) Capabilities() repository.Capabilities { return repository.Capabilities{} }

func TestNewFactUpserter_RequiresWriteCapability(t *testing.T) {
	_, err := NewFactUpserter(noWriteRepo{}, nil, logging.NewNopLogger(), metrics.NewForTesting())
	assert.Error(t, err)
}
