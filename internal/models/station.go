package models

import (
	"fmt"
	"time"
)

// WeatherStation is the station dimension. The ingestion core only reads it;
// rows are created by the station metadata loader.
type WeatherStation struct {
	StationID string    `json:"station_id" db:"station_id"`
	Name      string    `json:"name" db:"name"`
	Latitude  float64   `json:"latitude" db:"latitude"`
	Longitude float64   `json:"longitude" db:"longitude"`
	Elevation *float64  `json:"elevation,omitempty" db:"elevation"`
	State     string    `json:"state" db:"state"`
	Country   string    `json:"country" db:"country"`
	Timezone  string    `json:"timezone" db:"timezone"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Validate checks station metadata before it is written
func (s *WeatherStation) Validate() error {
	if s.StationID == "" || len(s.StationID) > 20 {
		return &ValidationError{Field: "station_id", Value: s.StationID, Message: "invalid station_id"}
	}
	if s.Latitude < -90 || s.Latitude > 90 {
		return &ValidationError{Field: "latitude", Value: fmt.Sprintf("%g", s.Latitude), Message: "invalid latitude"}
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		return &ValidationError{Field: "longitude", Value: fmt.Sprintf("%g", s.Longitude), Message: "invalid longitude"}
	}
	if len(s.State) != 2 {
		return &ValidationError{Field: "state", Value: s.State, Message: "invalid state code"}
	}
	return nil
}
