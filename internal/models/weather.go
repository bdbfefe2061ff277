package models

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// MissingValue marks an absent measurement in station files
const MissingValue = -9999

// DefaultSource is used when a batch does not name its source
const DefaultSource = "manual"

// QualityCategory classifies a fact by its quality score
type QualityCategory string

const (
	QualityExcellent QualityCategory = "excellent"
	QualityGood      QualityCategory = "good"
	QualityFair      QualityCategory = "fair"
	QualityPoor      QualityCategory = "poor"
)

// IsValid reports whether facts of this category feed period averages
func (c QualityCategory) IsValid() bool {
	return c == QualityExcellent || c == QualityGood
}

// ParseQualityCategory accepts the four category names, case-insensitively
func ParseQualityCategory(s string) (QualityCategory, error) {
	switch c := QualityCategory(strings.ToLower(strings.TrimSpace(s))); c {
	case QualityExcellent, QualityGood, QualityFair, QualityPoor:
		return c, nil
	}
	return "", &ValidationError{Field: "data_quality", Value: s, Message: "unknown quality category"}
}

// RawWeatherRecord represents a single line from a station data file.
// Values are in tenths of a unit and may carry the -9999 sentinel.
type RawWeatherRecord struct {
	Date                 string
	MaxTemperatureTenths int
	MinTemperatureTenths int
	PrecipitationTenths  int
	Humidity             *float64
	WindSpeed            *float64
}

// ToRecord converts the file representation into an ingestion record,
// turning sentinels into absent values.
func (r *RawWeatherRecord) ToRecord(stationID string) ObservationRecord {
	return ObservationRecord{
		StationID:  stationID,
		Date:       r.Date,
		RawMaxTemp: tenths(r.MaxTemperatureTenths),
		RawMinTemp: tenths(r.MinTemperatureTenths),
		RawPrecip:  tenths(r.PrecipitationTenths),
		Humidity:   r.Humidity,
		WindSpeed:  r.WindSpeed,
	}
}

func tenths(v int) *int {
	if v == MissingValue {
		return nil
	}
	return &v
}

// ObservationRecord is one parsed observation handed to the ingestion
// coordinator. Temperatures are tenths of °C, precipitation tenths of mm.
type ObservationRecord struct {
	StationID  string
	Date       string
	RawMaxTemp *int
	RawMinTemp *int
	RawPrecip  *int
	Humidity   *float64 // percent
	WindSpeed  *float64 // m/s
}

// Measurements returns the record in clean units
func (r ObservationRecord) Measurements() Measurements {
	m := Measurements{
		Humidity:  r.Humidity,
		WindSpeed: r.WindSpeed,
	}
	if r.RawMaxTemp != nil {
		m.MaxTempC = ptr(float64(*r.RawMaxTemp) / 10.0)
	}
	if r.RawMinTemp != nil {
		m.MinTempC = ptr(float64(*r.RawMinTemp) / 10.0)
	}
	if r.RawPrecip != nil {
		m.PrecipMM = ptr(float64(*r.RawPrecip) / 10.0)
	}
	return m
}

// ValidateRaw rejects raw readings that do not fit the store's 16-bit columns
func (r ObservationRecord) ValidateRaw() error {
	for _, f := range []struct {
		field string
		value *int
	}{
		{"raw_max_temp", r.RawMaxTemp},
		{"raw_min_temp", r.RawMinTemp},
		{"raw_precip", r.RawPrecip},
	} {
		if f.value != nil && (*f.value < math.MinInt16 || *f.value > math.MaxInt16) {
			return &ValidationError{
				Field:   f.field,
				Value:   strconv.Itoa(*f.value),
				Message: "value out of storable range",
			}
		}
	}
	return nil
}

// Measurements are the clean values the quality scorer inspects
type Measurements struct {
	MaxTempC  *float64
	MinTempC  *float64
	PrecipMM  *float64
	Humidity  *float64
	WindSpeed *float64
}

// QualityAssessment is the outcome of scoring one observation
type QualityAssessment struct {
	Score         float64         `json:"quality_score"`
	Category      QualityCategory `json:"data_quality"`
	MissingValues int             `json:"missing_values"`
	OutlierCount  int             `json:"outlier_count"`
	Notes         string          `json:"quality_notes"`
}

// WeatherFact is one observation for one station, day and source.
// (station_id, observation_date, source) is the primary key.
type WeatherFact struct {
	StationID       string    `json:"station_id" db:"station_id"`
	ObservationDate time.Time `json:"observation_date" db:"observation_date"`
	Source          string    `json:"source" db:"source"`

	RawMaxTemp *int `json:"raw_max_temp" db:"raw_max_temp"`
	RawMinTemp *int `json:"raw_min_temp" db:"raw_min_temp"`
	RawPrecip  *int `json:"raw_precip" db:"raw_precip"`

	MaxTempC  *float64 `json:"max_temp_c" db:"max_temp_c"`
	MinTempC  *float64 `json:"min_temp_c" db:"min_temp_c"`
	PrecipMM  *float64 `json:"precip_mm" db:"precip_mm"`
	PrecipCM  *float64 `json:"precip_cm" db:"precip_cm"`
	Humidity  *float64 `json:"humidity_pct,omitempty" db:"humidity_pct"`
	WindSpeed *float64 `json:"wind_speed_ms,omitempty" db:"wind_speed_ms"`

	DataQuality   QualityCategory `json:"data_quality" db:"data_quality"`
	QualityScore  float64         `json:"quality_score" db:"quality_score"`
	MissingValues int             `json:"missing_values" db:"missing_values"`
	OutlierCount  int             `json:"outlier_count" db:"outlier_count"`
	QualityNotes  string          `json:"quality_notes" db:"quality_notes"`

	IngestedAt  time.Time `json:"ingested_at" db:"ingested_at"`
	IngestRunID string    `json:"ingest_run_id" db:"ingest_run_id"`
}

// NewWeatherFact assembles a fact row from a record, its parsed date and its assessment
func NewWeatherFact(rec ObservationRecord, date time.Time, source string, qa QualityAssessment) *WeatherFact {
	m := rec.Measurements()
	fact := &WeatherFact{
		StationID:       rec.StationID,
		ObservationDate: date,
		Source:          source,
		RawMaxTemp:      rec.RawMaxTemp,
		RawMinTemp:      rec.RawMinTemp,
		RawPrecip:       rec.RawPrecip,
		MaxTempC:        m.MaxTempC,
		MinTempC:        m.MinTempC,
		PrecipMM:        m.PrecipMM,
		Humidity:        m.Humidity,
		WindSpeed:       m.WindSpeed,
		DataQuality:     qa.Category,
		QualityScore:    qa.Score,
		MissingValues:   qa.MissingValues,
		OutlierCount:    qa.OutlierCount,
		QualityNotes:    qa.Notes,
	}
	if m.PrecipMM != nil {
		fact.PrecipCM = ptr(float64(*rec.RawPrecip) / 100.0)
	}
	return fact
}

// Key returns the fact's primary key
func (f *WeatherFact) Key() FactKey {
	return FactKey{StationID: f.StationID, Date: f.ObservationDate.Format(DateLayout), Source: f.Source}
}

// FactKey identifies one fact row
type FactKey struct {
	StationID string
	Date      string
	Source    string
}

// DateLayout is the canonical observation date format
const DateLayout = "2006-01-02"

// ParseObservationDate accepts YYYYMMDD or YYYY-MM-DD and rejects anything
// that is not a real calendar date.
func ParseObservationDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layout := "20060102"
	if strings.Contains(s, "-") {
		layout = DateLayout
	}
	date, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, &ValidationError{
			Field:   "observation_date",
			Value:   s,
			Message: "invalid observation date, expected YYYYMMDD or YYYY-MM-DD",
		}
	}
	return date, nil
}

func ptr(v float64) *float64 {
	return &v
}
