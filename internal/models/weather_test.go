package models

import (
	"errors"
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

// TestRawWeatherRecord_ToRecord tests sentinel handling and unit conversion
func TestRawWeatherRecord_ToRecord(t *testing.T) {
	tests := []struct {
		name        string
		record      RawWeatherRecord
		checkValues func(*testing.T, Measurements)
	}{
		{
			name: "valid record with all values",
			record: RawWeatherRecord{
				Date:                 "20230115",
				MaxTemperatureTenths: 250,
				MinTemperatureTenths: 150,
				PrecipitationTenths:  100,
			},
			checkValues: func(t *testing.T, m Measurements) {
				if m.MaxTempC == nil || *m.MaxTempC != 25.0 {
					t.Errorf("MaxTempC = %v, want 25.0", m.MaxTempC)
				}
				if m.MinTempC == nil || *m.MinTempC != 15.0 {
					t.Errorf("MinTempC = %v, want 15.0", m.MinTempC)
				}
				if m.PrecipMM == nil || *m.PrecipMM != 10.0 {
					t.Errorf("PrecipMM = %v, want 10.0", m.PrecipMM)
				}
			},
		},
		{
			name: "missing max temperature",
			record: RawWeatherRecord{
				Date:                 "20230115",
				MaxTemperatureTenths: MissingValue,
				MinTemperatureTenths: 150,
				PrecipitationTenths:  100,
			},
			checkValues: func(t *testing.T, m Measurements) {
				if m.MaxTempC != nil {
					t.Error("MaxTempC should be nil for -9999")
				}
				if m.MinTempC == nil {
					t.Error("MinTempC should not be nil")
				}
			},
		},
		{
			name: "all missing",
			record: RawWeatherRecord{
				Date:                 "20230115",
				MaxTemperatureTenths: MissingValue,
				MinTemperatureTenths: MissingValue,
				PrecipitationTenths:  MissingValue,
			},
			checkValues: func(t *testing.T, m Measurements) {
				if m.MaxTempC != nil || m.MinTempC != nil || m.PrecipMM != nil {
					t.Errorf("expected all measurements nil, got %+v", m)
				}
			},
		},
		{
			name: "negative temperatures",
			record: RawWeatherRecord{
				Date:                 "20230115",
				MaxTemperatureTenths: -50,
				MinTemperatureTenths: -100,
				PrecipitationTenths:  0,
			},
			checkValues: func(t *testing.T, m Measurements) {
				if m.MaxTempC == nil || *m.MaxTempC != -5.0 {
					t.Errorf("MaxTempC = %v, want -5.0", m.MaxTempC)
				}
				if m.MinTempC == nil || *m.MinTempC != -10.0 {
					t.Errorf("MinTempC = %v, want -10.0", m.MinTempC)
				}
				if m.PrecipMM == nil || *m.PrecipMM != 0 {
					t.Errorf("PrecipMM = %v, want 0", m.PrecipMM)
				}
			},
		},
		{
			name: "decimal conversion",
			record: RawWeatherRecord{
				Date:                 "20230115",
				MaxTemperatureTenths: 255,
				MinTemperatureTenths: 144,
				PrecipitationTenths:  123,
			},
			checkValues: func(t *testing.T, m Measurements) {
				if *m.MaxTempC != 25.5 {
					t.Errorf("MaxTempC = %v, want 25.5", *m.MaxTempC)
				}
				if *m.MinTempC != 14.4 {
					t.Errorf("MinTempC = %v, want 14.4", *m.MinTempC)
				}
				if *m.PrecipMM != 12.3 {
					t.Errorf("PrecipMM = %v, want 12.3", *m.PrecipMM)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.record.ToRecord("TEST001")
			if rec.StationID != "TEST001" {
				t.Errorf("StationID = %v, want TEST001", rec.StationID)
			}
			if rec.Date != tt.record.Date {
				t.Errorf("Date = %v, want %v", rec.Date, tt.record.Date)
			}
			tt.checkValues(t, rec.Measurements())
		})
	}
}

func TestNewWeatherFact_KeepsRawAndCleanPairs(t *testing.T) {
	rec := ObservationRecord{StationID: "S1", Date: "20200105", RawMaxTemp: intPtr(-12), RawMinTemp: intPtr(-80), RawPrecip: intPtr(55)}
	date := time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC)
	qa := QualityAssessment{Score: 1, Category: QualityExcellent}

	fact := NewWeatherFact(rec, date, "manual", qa)

	if *fact.RawMaxTemp != -12 || *fact.MaxTempC != -1.2 {
		t.Errorf("max temp pair = %v/%v", *fact.RawMaxTemp, *fact.MaxTempC)
	}
	if *fact.PrecipMM != 5.5 || *fact.PrecipCM != 0.55 {
		t.Errorf("precip = %v mm / %v cm, want 5.5 / 0.55", *fact.PrecipMM, *fact.PrecipCM)
	}
	if fact.Key() != (FactKey{StationID: "S1", Date: "2020-01-05", Source: "manual"}) {
		t.Errorf("Key() = %+v", fact.Key())
	}
}

func TestParseObservationDate(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "20200131", want: time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC)},
		{in: "2020-02-29", want: time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC)},
		{in: "2019-02-29", wantErr: true},
		{in: "20201301", wantErr: true},
		{in: "", wantErr: true},
		{in: "yesterday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseObservationDate(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseObservationDate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Errorf("error type = %T, want *ValidationError", err)
				}
				return
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseObservationDate(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestPeriodType_Bounds(t *testing.T) {
	tests := []struct {
		period    PeriodType
		n         int
		wantStart string
		wantEnd   string
	}{
		{PeriodAnnual, 1, "2020-01-01", "2020-12-31"},
		{PeriodQuarterly, 1, "2020-01-01", "2020-03-31"},
		{PeriodQuarterly, 4, "2020-10-01", "2020-12-31"},
		{PeriodMonthly, 2, "2020-02-01", "2020-02-29"},
		{PeriodMonthly, 12, "2020-12-01", "2020-12-31"},
	}

	for _, tt := range tests {
		start, end := tt.period.Bounds(2020, tt.n)
		if start.Format(DateLayout) != tt.wantStart || end.Format(DateLayout) != tt.wantEnd {
			t.Errorf("%s %d bounds = %s..%s, want %s..%s", tt.period, tt.n,
				start.Format(DateLayout), end.Format(DateLayout), tt.wantStart, tt.wantEnd)
		}
	}
}

func TestPeriodType_PeriodOf(t *testing.T) {
	d := time.Date(2020, 8, 17, 0, 0, 0, 0, time.UTC)
	if got := PeriodQuarterly.PeriodOf(d); got != 3 {
		t.Errorf("quarter = %d, want 3", got)
	}
	if got := PeriodMonthly.PeriodOf(d); got != 8 {
		t.Errorf("month = %d, want 8", got)
	}
	if got := PeriodAnnual.PeriodOf(d); got != 1 {
		t.Errorf("annual period = %d, want 1", got)
	}
}

// TestErrorTaxonomy tests error classification
func TestErrorTaxonomy(t *testing.T) {
	ve := &ValidationError{Field: "date", Value: "invalid", Message: "invalid date format"}
	if ve.Error() != "invalid date format" {
		t.Errorf("Error() = %v, want %v", ve.Error(), "invalid date format")
	}
	if IsTransient(ve) {
		t.Error("ValidationError should not be transient")
	}

	cause := errors.New("deadlock detected")
	se := &StorageError{Op: "upsert_fact", Err: cause, Transient: true}
	wrapped := errors.Join(errors.New("record 3"), se)
	if !IsTransient(wrapped) {
		t.Error("wrapped transient StorageError should be transient")
	}
	if !errors.Is(se, cause) {
		t.Error("StorageError should unwrap to its cause")
	}
	if ErrorKind(wrapped) != "storage" || ErrorKind(ve) != "validation" || ErrorKind(cause) != "internal" {
		t.Error("ErrorKind misclassified an error")
	}
}

func TestObservationRecord_ValidateRaw(t *testing.T) {
	tests := []struct {
		name      string
		record    ObservationRecord
		wantField string
	}{
		{"all absent", ObservationRecord{}, ""},
		{"smallint bounds", ObservationRecord{RawMaxTemp: intPtr(32767), RawMinTemp: intPtr(-32768), RawPrecip: intPtr(0)}, ""},
		{"precip overflow", ObservationRecord{RawMaxTemp: intPtr(100), RawMinTemp: intPtr(0), RawPrecip: intPtr(40000)}, "raw_precip"},
		{"max temp overflow", ObservationRecord{RawMaxTemp: intPtr(32768)}, "raw_max_temp"},
		{"min temp underflow", ObservationRecord{RawMinTemp: intPtr(-32769)}, "raw_min_temp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.ValidateRaw()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("expected field %s, got %s", tt.wantField, ve.Field)
			}
		})
	}
}
