package services

import "weather-warehouse/internal/models"

type stationInfo struct {
	name      string
	latitude  float64
	longitude float64
	elevation float64
	state     string
}

// knownStations holds metadata for the stations shipped in the sample data set
var knownStations = map[string]stationInfo{
	"USC00110072": {"Lincoln Municipal Airport", 40.8500, -96.7500, 362.0, "NE"},
	"USC00110187": {"Omaha Eppley Airfield", 41.3000, -95.9000, 299.0, "NE"},
	"USC00110338": {"Des Moines International Airport", 41.5333, -93.6500, 294.0, "IA"},
	"USC00111280": {"Cedar Rapids Municipal Airport", 41.8833, -91.7167, 265.0, "IA"},
	"USC00111436": {"Chicago O'Hare International Airport", 41.9786, -87.9048, 672.0, "IL"},
	"USC00112140": {"Springfield Capital Airport", 39.8500, -89.6500, 188.0, "IL"},
	"USC00112193": {"Indianapolis International Airport", 39.7167, -86.2833, 243.0, "IN"},
	"USC00112348": {"Fort Wayne International Airport", 40.9833, -85.2000, 247.0, "IN"},
	"USC00112483": {"Cleveland Hopkins International Airport", 41.4117, -81.8497, 791.0, "OH"},
	"USC00113335": {"Cincinnati Northern Kentucky International Airport", 39.0500, -84.6667, 273.0, "OH"},
}

// stationFromMetadata builds the station row for id, falling back to a
// placeholder for stations without known metadata
func stationFromMetadata(id string) *models.WeatherStation {
	station := &models.WeatherStation{
		StationID: id,
		Name:      "Weather Station " + id,
		State:     "XX",
		Country:   "USA",
		Timezone:  "UTC",
		Active:    true,
	}
	if info, ok := knownStations[id]; ok {
		elevation := info.elevation
		station.Name = info.name
		station.Latitude = info.latitude
		station.Longitude = info.longitude
		station.Elevation = &elevation
		station.State = info.state
	}
	return station
}
