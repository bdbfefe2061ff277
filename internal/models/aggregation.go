package models

import (
	"fmt"
	"strings"
	"time"
)

// PeriodType is the granularity of a weather aggregation
type PeriodType string

const (
	PeriodMonthly   PeriodType = "monthly"
	PeriodQuarterly PeriodType = "quarterly"
	PeriodAnnual    PeriodType = "annual"
)

// PeriodTypes lists every granularity recomputed for a station/year
var PeriodTypes = []PeriodType{PeriodAnnual, PeriodQuarterly, PeriodMonthly}

// ParsePeriodType validates a period type name
func ParsePeriodType(s string) (PeriodType, error) {
	switch p := PeriodType(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodMonthly, PeriodQuarterly, PeriodAnnual:
		return p, nil
	}
	return "", &ValidationError{Field: "period_type", Value: s, Message: "period_type must be monthly, quarterly or annual"}
}

// Periods returns how many periods of this type make up a year
func (p PeriodType) Periods() int {
	switch p {
	case PeriodMonthly:
		return 12
	case PeriodQuarterly:
		return 4
	default:
		return 1
	}
}

// PeriodOf returns the 1-based period number a date falls into
func (p PeriodType) PeriodOf(date time.Time) int {
	switch p {
	case PeriodMonthly:
		return int(date.Month())
	case PeriodQuarterly:
		return (int(date.Month())-1)/3 + 1
	default:
		return 1
	}
}

// Bounds returns the first and last day of period n of year, inclusive
func (p PeriodType) Bounds(year, n int) (time.Time, time.Time) {
	months := 12 / p.Periods()
	start := time.Date(year, time.Month((n-1)*months+1), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, months, -1)
	return start, end
}

// WeatherAggregation holds derived statistics for one station and calendar
// period. Rows are regenerated from facts, never patched.
type WeatherAggregation struct {
	StationID          string     `json:"station_id" db:"station_id"`
	Year               int        `json:"year" db:"year"`
	PeriodType         PeriodType `json:"period_type" db:"period_type"`
	PeriodNumber       int        `json:"period_number" db:"period_number"`
	PeriodStart        time.Time  `json:"period_start" db:"period_start"`
	PeriodEnd          time.Time  `json:"period_end" db:"period_end"`
	AvgMaxTemp         *float64   `json:"avg_max_temp" db:"avg_max_temp"`
	AvgMinTemp         *float64   `json:"avg_min_temp" db:"avg_min_temp"`
	TotalPrecipitation float64    `json:"total_precipitation" db:"total_precipitation"`
	AvgQualityScore    *float64   `json:"avg_quality_score" db:"avg_quality_score"`
	RecordCount        int        `json:"record_count" db:"record_count"`
	ValidRecordCount   int        `json:"valid_record_count" db:"valid_record_count"`
	CompletenessRatio  float64    `json:"completeness_ratio" db:"completeness_ratio"`
	CalculatedAt       time.Time  `json:"calculated_at" db:"calculated_at"`
}

// Key identifies the aggregation row
func (a *WeatherAggregation) Key() string {
	return fmt.Sprintf("%s:%d:%s:%d", a.StationID, a.Year, a.PeriodType, a.PeriodNumber)
}

// StationYear is the unit of aggregation recomputation
type StationYear struct {
	StationID string
	Year      int
}

func (k StationYear) String() string {
	return fmt.Sprintf("%s/%d", k.StationID, k.Year)
}
