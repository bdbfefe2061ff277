package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"weather-warehouse/internal/models"
	"weather-warehouse/internal/repository"
	"weather-warehouse/pkg/logging"
	"weather-warehouse/pkg/metrics"
)

// MinAggregationYear is the earliest year the engine accepts
const MinAggregationYear = 1800

// AggregationEngine derives annual, quarterly and monthly statistics for one
// station/year from the fact store. Rows are always regenerated as a whole.
type AggregationEngine struct {
	repo    repository.WeatherRepository
	clock   clockwork.Clock
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewAggregationEngine creates a new aggregation engine
func NewAggregationEngine(repo repository.WeatherRepository, clock clockwork.Clock, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *AggregationEngine {
	return &AggregationEngine{
		repo:    repo,
		clock:   clock,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ValidateYear rejects years before 1800 or after next year
func (e *AggregationEngine) ValidateYear(year int) error {
	maxYear := e.clock.Now().Year() + 1
	if year < MinAggregationYear || year > maxYear {
		return &models.ValidationError{
			Field:   "year",
			Value:   strconv.Itoa(year),
			Message: fmt.Sprintf("year must be between %d and %d", MinAggregationYear, maxYear),
		}
	}
	return nil
}

// Recompute deletes and regenerates every aggregation row of key inside one
// store transaction and returns the number of rows written.
func (e *AggregationEngine) Recompute(ctx context.Context, key models.StationYear) (int, error) {
	if err := e.ValidateYear(key.Year); err != nil {
		return 0, err
	}

	timer := e.metrics.NewTimer(e.metrics.AggregationDuration)
	calculatedAt := e.clock.Now().UTC()

	written, err := e.repo.ReplaceAggregations(ctx, key, func(facts []*models.WeatherFact) ([]*models.WeatherAggregation, error) {
		return BuildAggregations(key, facts, calculatedAt), nil
	})
	duration := timer.ObserveDuration()
	if err != nil {
		e.metrics.RecordAggregation("failed")
		e.logger.Error(ctx, "[AGGREGATE_ERROR] Recomputation failed", logging.Fields{
			"station_id": key.StationID,
			"year":       key.Year,
		}, err)
		return 0, asStorageError("replace_aggregations", err)
	}

	e.metrics.RecordAggregation("success")
	e.metrics.AggregationRowsTotal.Add(float64(written))
	e.logger.Debug(ctx, "[AGGREGATE_COMPLETE] Aggregations recomputed", logging.Fields{
		"station_id":  key.StationID,
		"year":        key.Year,
		"rows":        written,
		"duration_ms": duration.Milliseconds(),
	})
	return written, nil
}

// Compute reads the year's facts and returns the rows of one period type
// without writing them.
func (e *AggregationEngine) Compute(ctx context.Context, stationID string, year int, periodType models.PeriodType) ([]*models.WeatherAggregation, error) {
	if err := e.ValidateYear(year); err != nil {
		return nil, err
	}

	start, end := repository.YearBounds(year)
	facts, _, err := e.repo.ListFacts(ctx, repository.FactFilter{
		StationID: &stationID,
		StartDate: &start,
		EndDate:   &end,
	})
	if err != nil {
		return nil, asStorageError("list_facts", err)
	}

	key := models.StationYear{StationID: stationID, Year: year}
	var rows []*models.WeatherAggregation
	for _, row := range BuildAggregations(key, facts, e.clock.Now().UTC()) {
		if row.PeriodType == periodType {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// BuildAggregations is the pure derivation behind Recompute. It always emits
// the annual row, plus one quarterly and one monthly row per period that has
// at least one fact. Facts from other stations or years are ignored.
func BuildAggregations(key models.StationYear, facts []*models.WeatherFact, calculatedAt time.Time) []*models.WeatherAggregation {
	inYear := make([]*models.WeatherFact, 0, len(facts))
	for _, f := range facts {
		if f.StationID == key.StationID && f.ObservationDate.Year() == key.Year {
			inYear = append(inYear, f)
		}
	}
	// Fixed summation order keeps float results identical across runs.
	sort.SliceStable(inYear, func(i, j int) bool {
		if !inYear[i].ObservationDate.Equal(inYear[j].ObservationDate) {
			return inYear[i].ObservationDate.Before(inYear[j].ObservationDate)
		}
		return inYear[i].Source < inYear[j].Source
	})

	var rows []*models.WeatherAggregation
	for _, pt := range models.PeriodTypes {
		buckets := make([][]*models.WeatherFact, pt.Periods()+1)
		for _, f := range inYear {
			n := pt.PeriodOf(f.ObservationDate)
			buckets[n] = append(buckets[n], f)
		}
		for n := 1; n <= pt.Periods(); n++ {
			if len(buckets[n]) == 0 && pt != models.PeriodAnnual {
				continue
			}
			rows = append(rows, summarize(key, pt, n, buckets[n], calculatedAt))
		}
	}
	return rows
}

func summarize(key models.StationYear, pt models.PeriodType, n int, facts []*models.WeatherFact, calculatedAt time.Time) *models.WeatherAggregation {
	start, end := pt.Bounds(key.Year, n)
	agg := &models.WeatherAggregation{
		StationID:    key.StationID,
		Year:         key.Year,
		PeriodType:   pt,
		PeriodNumber: n,
		PeriodStart:  start,
		PeriodEnd:    end,
		RecordCount:  len(facts),
		CalculatedAt: calculatedAt,
	}

	var maxSum, minSum, scoreSum float64
	var maxN, minN int
	for _, f := range facts {
		scoreSum += f.QualityScore
		if !f.DataQuality.IsValid() {
			continue
		}
		agg.ValidRecordCount++
		if f.MaxTempC != nil {
			maxSum += *f.MaxTempC
			maxN++
		}
		if f.MinTempC != nil {
			minSum += *f.MinTempC
			minN++
		}
		if f.PrecipMM != nil {
			agg.TotalPrecipitation += *f.PrecipMM
		}
	}

	agg.AvgMaxTemp = mean(maxSum, maxN)
	agg.AvgMinTemp = mean(minSum, minN)
	agg.AvgQualityScore = mean(scoreSum, len(facts))
	if agg.RecordCount > 0 {
		agg.CompletenessRatio = float64(agg.ValidRecordCount) / float64(agg.RecordCount)
	}
	return agg
}

func mean(sum float64, n int) *float64 {
	if n == 0 {
		return nil
	}
	v := sum / float64(n)
	return &v
}
