package models

import "time"

// CornYield is one row of the annual corn grain yield reference table
// (thousands of metric tons).
type CornYield struct {
	Year      int       `json:"year" db:"year"`
	Yield     int64     `json:"yield" db:"yield"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
