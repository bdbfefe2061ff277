package repository

import (
	"context"
	"time"

	"weather-warehouse/internal/models"
)

// WeatherRepository is the store contract the ingestion core and the read
// API depend on.
type WeatherRepository interface {
	// Capabilities is fixed for the lifetime of the repository
	Capabilities() Capabilities

	// Station operations
	CreateStation(ctx context.Context, station *models.WeatherStation) error
	GetStation(ctx context.Context, stationID string) (*models.WeatherStation, error)
	StationExists(ctx context.Context, stationID string) (bool, error)
	ListStations(ctx context.Context, filter StationFilter) ([]*models.WeatherStation, int, error)

	// Fact operations
	UpsertFact(ctx context.Context, fact *models.WeatherFact) error
	GetFact(ctx context.Context, stationID string, date time.Time, source string) (*models.WeatherFact, error)
	ListFacts(ctx context.Context, filter FactFilter) ([]*models.WeatherFact, int, error)
	StationYears(ctx context.Context) ([]models.StationYear, error)

	// Aggregation operations
	ReplaceAggregations(ctx context.Context, key models.StationYear, build AggregateBuilder) (int, error)
	ListAggregations(ctx context.Context, filter AggregationFilter) ([]*models.WeatherAggregation, int, error)

	// Corn yield reference table
	UpsertYield(ctx context.Context, y *models.CornYield) error
	ListYields(ctx context.Context, filter YieldFilter) ([]*models.CornYield, int, error)

	HealthCheck(ctx context.Context) error
}

// FactReplacer is implemented by stores that cannot upsert natively but can
// delete and insert a fact inside one transaction.
type FactReplacer interface {
	ReplaceFact(ctx context.Context, fact *models.WeatherFact) error
}

// AggregateBuilder derives the full aggregation row set for one station/year
// from that year's facts. It runs inside the store's recomputation
// transaction and must not touch the store.
type AggregateBuilder func(facts []*models.WeatherFact) ([]*models.WeatherAggregation, error)

// Capabilities advertises optional store features. Selected once at startup.
type Capabilities struct {
	Upsert         bool `json:"upsert"`
	RangePartition bool `json:"range_partition"`
}

// StationFilter defines filters for listing stations
type StationFilter struct {
	State   *string
	Country *string
	Active  *bool
	Limit   int
	Offset  int
}

// FactFilter defines filters for querying weather facts
type FactFilter struct {
	StationID   *string
	StartDate   *time.Time
	EndDate     *time.Time
	Source      *string
	DataQuality *models.QualityCategory
	Limit       int
	Offset      int
}

// AggregationFilter defines filters for querying aggregations
type AggregationFilter struct {
	StationID  *string
	Year       *int
	PeriodType *models.PeriodType
	Limit      int
	Offset     int
}

// YieldFilter defines filters for the corn yield table
type YieldFilter struct {
	Year   *int
	Limit  int
	Offset int
}

// YearBounds returns the first and last day of year
func YearBounds(year int) (time.Time, time.Time) {
	return models.PeriodAnnual.Bounds(year, 1)
}
