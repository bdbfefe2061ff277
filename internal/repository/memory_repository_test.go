package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-warehouse/internal/models"
)

func seedStation(t *testing.T, repo *MemoryRepository, id string) {
	t.Helper()
	require.NoError(t, repo.CreateStation(context.Background(), &models.WeatherStation{
		StationID: id, Name: "Station " + id, State: "IA", Country: "USA", Active: true,
	}))
}

func fact(stationID, date, source string, score float64) *models.WeatherFact {
	d, _ := time.Parse(models.DateLayout, date)
	raw := 100
	return &models.WeatherFact{
		StationID:       stationID,
		ObservationDate: d,
		Source:          source,
		RawMaxTemp:      &raw,
		QualityScore:    score,
		DataQuality:     models.QualityExcellent,
	}
}

func TestMemoryRepository_UpsertReplacesByKey(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedStation(t, repo, "USC001")

	require.NoError(t, repo.UpsertFact(ctx, fact("USC001", "2020-01-01", "manual", 1.0)))
	updated := fact("USC001", "2020-01-01", "manual", 0.8)
	updated.DataQuality = models.QualityFair
	require.NoError(t, repo.UpsertFact(ctx, updated))
	require.NoError(t, repo.UpsertFact(ctx, fact("USC001", "2020-01-01", "noaa", 1.0)))

	facts, total, err := repo.ListFacts(ctx, FactFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, facts, 2)

	got, err := repo.GetFact(ctx, "USC001", updated.ObservationDate, "manual")
	require.NoError(t, err)
	assert.Equal(t, models.QualityFair, got.DataQuality)
	assert.Equal(t, 0.8, got.QualityScore)
}

func TestMemoryRepository_UnknownStationRejected(t *testing.T) {
	repo := NewMemoryRepository()
	err := repo.UpsertFact(context.Background(), fact("NOPE", "2020-01-01", "manual", 1))

	var se *models.StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "upsert_fact", se.Op)
}

func TestMemoryRepository_GetFactNotFound(t *testing.T) {
	repo := NewMemoryRepository()
	_, err := repo.GetFact(context.Background(), "USC001", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), "manual")

	var nf *models.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "USC001:2020-01-01:manual", nf.ID)
}

func TestMemoryRepository_ListFactsFiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedStation(t, repo, "USC001")
	seedStation(t, repo, "USC002")

	for _, d := range []string{"2020-01-01", "2020-01-02", "2020-01-03", "2020-02-01"} {
		require.NoError(t, repo.UpsertFact(ctx, fact("USC001", d, "manual", 1)))
	}
	require.NoError(t, repo.UpsertFact(ctx, fact("USC002", "2020-01-02", "manual", 1)))

	station := "USC001"
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC)
	facts, total, err := repo.ListFacts(ctx, FactFilter{StationID: &station, StartDate: &start, EndDate: &end, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, facts, 2)
	assert.Equal(t, "2020-01-03", facts[0].ObservationDate.Format(models.DateLayout))
	assert.Equal(t, "2020-01-02", facts[1].ObservationDate.Format(models.DateLayout))

	facts, _, err = repo.ListFacts(ctx, FactFilter{StationID: &station, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedStation(t, repo, "USC001")
	f := fact("USC001", "2020-01-01", "manual", 1)
	require.NoError(t, repo.UpsertFact(ctx, f))

	f.QualityScore = 0
	got, err := repo.GetFact(ctx, "USC001", f.ObservationDate, "manual")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.QualityScore)
}

func TestMemoryRepository_StationYears(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedStation(t, repo, "USC002")
	seedStation(t, repo, "USC001")
	require.NoError(t, repo.UpsertFact(ctx, fact("USC002", "2021-03-01", "manual", 1)))
	require.NoError(t, repo.UpsertFact(ctx, fact("USC001", "2020-03-01", "manual", 1)))
	require.NoError(t, repo.UpsertFact(ctx, fact("USC001", "2020-04-01", "manual", 1)))
	require.NoError(t, repo.UpsertFact(ctx, fact("USC001", "2019-04-01", "manual", 1)))

	keys, err := repo.StationYears(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.StationYear{
		{StationID: "USC001", Year: 2019},
		{StationID: "USC001", Year: 2020},
		{StationID: "USC002", Year: 2021},
	}, keys)
}

func TestMemoryRepository_ReplaceAggregationsSwapsYear(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedStation(t, repo, "USC001")
	require.NoError(t, repo.UpsertFact(ctx, fact("USC001", "2020-01-05", "manual", 1)))
	require.NoError(t, repo.UpsertFact(ctx, fact("USC001", "2021-01-05", "manual", 1)))

	key := models.StationYear{StationID: "USC001", Year: 2020}
	build := func(n int) AggregateBuilder {
		return func(facts []*models.WeatherFact) ([]*models.WeatherAggregation, error) {
			require.Len(t, facts, 1)
			var rows []*models.WeatherAggregation
			for i := 1; i <= n; i++ {
				rows = append(rows, &models.WeatherAggregation{
					StationID: "USC001", Year: 2020, PeriodType: models.PeriodMonthly, PeriodNumber: i, RecordCount: len(facts),
				})
			}
			return rows, nil
		}
	}

	written, err := repo.ReplaceAggregations(ctx, key, build(3))
	require.NoError(t, err)
	assert.Equal(t, 3, written)

	written, err = repo.ReplaceAggregations(ctx, key, build(1))
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	rows, total, err := repo.ListAggregations(ctx, AggregationFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, rows[0].PeriodNumber)
}

func TestMemoryRepository_ReplaceAggregationsBuildErrorKeepsRows(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedStation(t, repo, "USC001")
	key := models.StationYear{StationID: "USC001", Year: 2020}

	_, err := repo.ReplaceAggregations(ctx, key, func([]*models.WeatherFact) ([]*models.WeatherAggregation, error) {
		return []*models.WeatherAggregation{{StationID: "USC001", Year: 2020, PeriodType: models.PeriodAnnual, PeriodNumber: 1}}, nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = repo.ReplaceAggregations(ctx, key, func([]*models.WeatherFact) ([]*models.WeatherAggregation, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	_, total, err := repo.ListAggregations(ctx, AggregationFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestMemoryRepository_Yields(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.UpsertYield(ctx, &models.CornYield{Year: 1986, Yield: 208943}))
	require.NoError(t, repo.UpsertYield(ctx, &models.CornYield{Year: 1985, Yield: 225453}))
	require.NoError(t, repo.UpsertYield(ctx, &models.CornYield{Year: 1986, Yield: 1}))

	yields, total, err := repo.ListYields(ctx, YieldFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1985, yields[0].Year)
	assert.Equal(t, int64(1), yields[1].Yield)
}

func TestFilterQuery(t *testing.T) {
	q := newFilterQuery("SELECT * FROM t WHERE 1=1")
	q.where("a = ?", 1)
	q.where("b >= ?", "x")

	query, args := q.page("a", 10, 20)
	assert.Equal(t, "SELECT * FROM t WHERE 1=1 AND a = $1 AND b >= $2 ORDER BY a LIMIT $3 OFFSET $4", query)
	assert.Equal(t, []interface{}{1, "x", 10, 20}, args)

	query, args = q.page("a", 0, 0)
	assert.Equal(t, "SELECT * FROM t WHERE 1=1 AND a = $1 AND b >= $2 ORDER BY a", query)
	assert.Len(t, args, 2)
}
