// Package quality assigns a deterministic quality score and category to
// weather observations.
package quality

import (
	"fmt"
	"math"
	"strings"

	"weather-warehouse/internal/models"
)

// Scorer applies a Policy. It holds no mutable state and is safe for
// concurrent use.
type Scorer struct {
	policy Policy
}

// NewScorer creates a scorer for the given policy
func NewScorer(policy Policy) (*Scorer, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{policy: policy}, nil
}

// Policy returns the rule set in use
func (s *Scorer) Policy() Policy {
	return s.policy
}

// Score evaluates one observation. The only failure is a non-finite value,
// reported as a ValidationError.
func (s *Scorer) Score(m models.Measurements) (models.QualityAssessment, error) {
	if err := checkFinite(m); err != nil {
		return models.QualityAssessment{}, err
	}

	p := s.policy
	score := 1.0
	var qa models.QualityAssessment
	var notes []string

	var missing []string
	if m.MaxTempC == nil {
		missing = append(missing, "max_temp")
		score -= p.MissingTempPenalty
	}
	if m.MinTempC == nil {
		missing = append(missing, "min_temp")
		score -= p.MissingTempPenalty
	}
	if m.PrecipMM == nil {
		missing = append(missing, "precipitation")
		score -= p.MissingPrecipPenalty
	}
	qa.MissingValues = len(missing)
	if len(missing) > 0 {
		notes = append(notes, "missing: "+strings.Join(missing, ", "))
	}

	if m.MaxTempC != nil && m.MinTempC != nil && *m.MaxTempC < *m.MinTempC {
		score -= p.InconsistencyPenalty
		notes = append(notes, fmt.Sprintf("logical inconsistency: max_temp %.1f < min_temp %.1f", *m.MaxTempC, *m.MinTempC))
	}

	outlier := func(name string, v *float64, r Range, unit string) {
		if v == nil || r.Contains(*v) {
			return
		}
		qa.OutlierCount++
		score -= p.OutlierPenalty
		notes = append(notes, fmt.Sprintf("outlier: %s %g%s outside [%g, %g]", name, *v, unit, r.Min, r.Max))
	}
	outlier("max_temp", m.MaxTempC, p.Ranges.Temperature, "C")
	outlier("min_temp", m.MinTempC, p.Ranges.Temperature, "C")
	outlier("precipitation", m.PrecipMM, p.Ranges.Precipitation, "mm")
	outlier("humidity", m.Humidity, p.Ranges.Humidity, "%")
	outlier("wind_speed", m.WindSpeed, p.Ranges.WindSpeed, "m/s")

	qa.Score = roundScore(math.Max(0, math.Min(1, score)))
	qa.Category = s.categorize(qa.Score)
	qa.Notes = strings.Join(notes, "; ")
	return qa, nil
}

func (s *Scorer) categorize(score float64) models.QualityCategory {
	t := s.policy.Thresholds
	switch {
	case score >= t.Excellent:
		return models.QualityExcellent
	case score >= t.Good:
		return models.QualityGood
	case score >= t.Fair:
		return models.QualityFair
	default:
		return models.QualityPoor
	}
}

// roundScore keeps two decimals, the precision of the stored column, so
// float residue never moves a score across a threshold.
func roundScore(v float64) float64 {
	return math.Round(v*100) / 100
}

func checkFinite(m models.Measurements) error {
	fields := []struct {
		name string
		v    *float64
	}{
		{"max_temp", m.MaxTempC},
		{"min_temp", m.MinTempC},
		{"precipitation", m.PrecipMM},
		{"humidity", m.Humidity},
		{"wind_speed", m.WindSpeed},
	}
	for _, f := range fields {
		if f.v != nil && (math.IsNaN(*f.v) || math.IsInf(*f.v, 0)) {
			return &models.ValidationError{
				Field:   f.name,
				Value:   fmt.Sprintf("%g", *f.v),
				Message: fmt.Sprintf("%s is not a finite number", f.name),
			}
		}
	}
	return nil
}
