package services

import (
	"context"
	"time"

	"weather-warehouse/internal/models"
	"weather-warehouse/internal/repository"
	"weather-warehouse/pkg/logging"
	"weather-warehouse/pkg/metrics"
)

// WeatherService exposes read-only accessors over stations and facts
type WeatherService struct {
	repo    repository.WeatherRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewWeatherService creates a new weather service
func NewWeatherService(repo repository.WeatherRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *WeatherService {
	return &WeatherService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// GetFact returns one fact; source defaults to manual
func (s *WeatherService) GetFact(ctx context.Context, stationID string, date time.Time, source string) (*models.WeatherFact, error) {
	if source == "" {
		source = models.DefaultSource
	}
	return s.repo.GetFact(ctx, stationID, date, source)
}

// ListFacts retrieves weather facts with filtering
func (s *WeatherService) ListFacts(ctx context.Context, filter repository.FactFilter) ([]*models.WeatherFact, int, error) {
	return s.repo.ListFacts(ctx, filter)
}

// GetStation retrieves one weather station
func (s *WeatherService) GetStation(ctx context.Context, stationID string) (*models.WeatherStation, error) {
	return s.repo.GetStation(ctx, stationID)
}

// ListStations retrieves weather stations with filtering
func (s *WeatherService) ListStations(ctx context.Context, filter repository.StationFilter) ([]*models.WeatherStation, int, error) {
	return s.repo.ListStations(ctx, filter)
}

// HealthCheck reports store health and capabilities
func (s *WeatherService) HealthCheck(ctx context.Context) (repository.Capabilities, error) {
	return s.repo.Capabilities(), s.repo.HealthCheck(ctx)
}
