package quality

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Range is an inclusive physically-plausible interval
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Contains reports whether v lies inside the range
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Thresholds are the lowest scores that still earn each category
type Thresholds struct {
	Excellent float64 `yaml:"excellent" json:"excellent"`
	Good      float64 `yaml:"good" json:"good"`
	Fair      float64 `yaml:"fair" json:"fair"`
}

// Ranges bound each measured field
type Ranges struct {
	Temperature   Range `yaml:"temperature_c" json:"temperature_c"`
	Precipitation Range `yaml:"precipitation_mm" json:"precipitation_mm"`
	Humidity      Range `yaml:"humidity_pct" json:"humidity_pct"`
	WindSpeed     Range `yaml:"wind_speed_ms" json:"wind_speed_ms"`
}

// Policy is the versioned rule set the scorer applies. Two runs with the
// same policy version score identical input identically.
type Policy struct {
	Version              string     `yaml:"version" json:"version"`
	MissingTempPenalty   float64    `yaml:"missing_temp_penalty" json:"missing_temp_penalty"`
	MissingPrecipPenalty float64    `yaml:"missing_precip_penalty" json:"missing_precip_penalty"`
	InconsistencyPenalty float64    `yaml:"inconsistency_penalty" json:"inconsistency_penalty"`
	OutlierPenalty       float64    `yaml:"outlier_penalty" json:"outlier_penalty"`
	Thresholds           Thresholds `yaml:"category_thresholds" json:"category_thresholds"`
	Ranges               Ranges     `yaml:"ranges" json:"ranges"`
}

// DefaultPolicy returns the built-in v1 rule set
func DefaultPolicy() Policy {
	return Policy{
		Version:              "v1",
		MissingTempPenalty:   0.20,
		MissingPrecipPenalty: 0.10,
		InconsistencyPenalty: 0.30,
		OutlierPenalty:       0.15,
		Thresholds: Thresholds{
			Excellent: 0.95,
			Good:      0.85,
			Fair:      0.70,
		},
		Ranges: Ranges{
			Temperature:   Range{Min: -90, Max: 60},
			Precipitation: Range{Min: 0, Max: 1000},
			Humidity:      Range{Min: 0, Max: 100},
			WindSpeed:     Range{Min: 0, Max: 120},
		},
	}
}

// LoadPolicy reads a YAML policy file. Keys absent from the file keep
// their default values.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()

	content, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read quality policy: %w", err)
	}
	if err := yaml.Unmarshal(content, &policy); err != nil {
		return Policy{}, fmt.Errorf("failed to parse quality policy: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

// Validate checks that penalties and thresholds are usable
func (p Policy) Validate() error {
	if p.Version == "" {
		return fmt.Errorf("quality policy: version is required")
	}
	for name, v := range map[string]float64{
		"missing_temp_penalty":   p.MissingTempPenalty,
		"missing_precip_penalty": p.MissingPrecipPenalty,
		"inconsistency_penalty":  p.InconsistencyPenalty,
		"outlier_penalty":        p.OutlierPenalty,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("quality policy: %s must be within [0,1], got %g", name, v)
		}
	}
	t := p.Thresholds
	if !(t.Excellent >= t.Good && t.Good >= t.Fair && t.Fair >= 0 && t.Excellent <= 1) {
		return fmt.Errorf("quality policy: thresholds must satisfy 1 >= excellent >= good >= fair >= 0")
	}
	for name, r := range map[string]Range{
		"temperature_c":    p.Ranges.Temperature,
		"precipitation_mm": p.Ranges.Precipitation,
		"humidity_pct":     p.Ranges.Humidity,
		"wind_speed_ms":    p.Ranges.WindSpeed,
	} {
		if r.Min > r.Max {
			return fmt.Errorf("quality policy: range %s has min > max", name)
		}
	}
	return nil
}
