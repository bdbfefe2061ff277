package services

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"weather-warehouse/internal/models"
	"weather-warehouse/internal/repository"
	"weather-warehouse/pkg/logging"
	"weather-warehouse/pkg/metrics"
)

// IngestionService reads station files and hands parsed records to the
// ingestion coordinator in batches.
type IngestionService struct {
	repo        repository.WeatherRepository
	coordinator *IngestionCoordinator
	clock       clockwork.Clock
	logger      *logging.StructuredLogger
	metrics     *metrics.Collector
}

// IngestionResult contains ingestion statistics for a directory run
type IngestionResult struct {
	RunID           string
	TotalFiles      int
	FailedFiles     int
	StationsCreated int
	ParseErrors     int
	Summary         IngestionSummary
	Duration        time.Duration
	Errors          []string
}

// FileIngestionResult contains per-file ingestion statistics
type FileIngestionResult struct {
	StationID      string
	StationCreated bool
	Lines          int
	ParseErrors    int
	Summary        IngestionSummary
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(repo repository.WeatherRepository, coordinator *IngestionCoordinator, clock clockwork.Clock, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	return &IngestionService{
		repo:        repo,
		coordinator: coordinator,
		clock:       clock,
		logger:      logger,
		metrics:     metricsCollector,
	}
}

// IngestDirectory ingests all weather data files from a directory under one run id
func (s *IngestionService) IngestDirectory(ctx context.Context, dataDir string, batchSize int, source string) (*IngestionResult, error) {
	startTime := s.clock.Now()
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)

	s.logger.Info(ctx, "[INGEST_START] Starting data ingestion", logging.Fields{
		"data_dir":   dataDir,
		"batch_size": batchSize,
		"source":     source,
		"stage":      "INITIALIZATION",
	})

	files, err := filepath.Glob(filepath.Join(dataDir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no data files found in %s", dataDir)
	}

	result := &IngestionResult{
		RunID:      runID,
		TotalFiles: len(files),
		Errors:     make([]string, 0),
	}

	s.logger.Info(ctx, "[INGEST_FILES] Found data files", logging.Fields{
		"file_count": len(files),
		"stage":      "FILE_DISCOVERY",
	})

	for _, filePath := range files {
		fileResult, err := s.IngestFile(ctx, filePath, batchSize, source, runID)
		if err != nil {
			result.FailedFiles++
			result.Errors = append(result.Errors, fmt.Sprintf("failed to ingest %s: %v", filePath, err))
			s.logger.Error(ctx, "[INGEST_FILE_ERROR] File ingestion failed", logging.Fields{
				"file_path": filePath,
				"stage":     "FILE_PROCESSING",
			}, err)
			s.metrics.RecordIngestionError("file_error")
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			continue
		}

		if fileResult.StationCreated {
			result.StationsCreated++
		}
		result.ParseErrors += fileResult.ParseErrors
		result.Summary.Merge(&fileResult.Summary)
	}

	result.Summary.RunID = runID
	result.Summary.Source = source
	result.Duration = s.clock.Since(startTime)

	s.logger.Info(ctx, "[INGEST_COMPLETE] Data ingestion completed", logging.Fields{
		"total_files":             result.TotalFiles,
		"failed_files":            result.FailedFiles,
		"stations_created":        result.StationsCreated,
		"parse_errors":            result.ParseErrors,
		"upserted":                result.Summary.Upserted,
		"failed":                  result.Summary.Failed,
		"aggregations_recomputed": result.Summary.AggregationsRecomputed,
		"duration_seconds":        result.Duration.Seconds(),
		"stage":                   "COMPLETE",
	})

	return result, nil
}

// IngestFile ingests one <station_id>.txt file, creating the station on
// first sight.
func (s *IngestionService) IngestFile(ctx context.Context, filePath string, batchSize int, source, runID string) (*FileIngestionResult, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	fileName := filepath.Base(filePath)
	stationID := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	result := &FileIngestionResult{StationID: stationID}

	created, err := s.EnsureStation(ctx, stationID)
	if err != nil {
		return nil, err
	}
	result.StationCreated = created

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	flush := func(batch []models.ObservationRecord) error {
		summary, err := s.coordinator.IngestBatch(ctx, batch, source, runID)
		if summary != nil {
			result.Summary.Merge(summary)
		}
		return err
	}

	batch := make([]models.ObservationRecord, 0, batchSize)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		result.Lines++

		raw, err := ParseLine(line)
		if err != nil {
			result.ParseErrors++
			s.metrics.RecordIngestionError("parse_error")
			s.logger.Debug(ctx, "[INGEST_PARSE_ERROR] Skipping malformed line", logging.Fields{
				"file_path": filePath,
				"line":      result.Lines,
				"error":     err.Error(),
			})
			continue
		}

		batch = append(batch, raw.ToRecord(stationID))
		if len(batch) >= batchSize {
			if err := flush(batch); err != nil {
				return nil, fmt.Errorf("failed to ingest batch: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	if len(batch) > 0 {
		if err := flush(batch); err != nil {
			return nil, fmt.Errorf("failed to ingest final batch: %w", err)
		}
	}

	s.logger.Info(ctx, "[INGEST_FILE_SUCCESS] File ingested", logging.Fields{
		"file_path":    filePath,
		"station_id":   stationID,
		"lines":        result.Lines,
		"parse_errors": result.ParseErrors,
		"upserted":     result.Summary.Upserted,
		"failed":       result.Summary.Failed,
		"stage":        "FILE_COMPLETE",
	})
	return result, nil
}

// EnsureStation creates the station row if it does not exist yet and
// reports whether it did so
func (s *IngestionService) EnsureStation(ctx context.Context, stationID string) (bool, error) {
	exists, err := s.repo.StationExists(ctx, stationID)
	if err != nil {
		return false, fmt.Errorf("failed to look up station: %w", err)
	}
	if exists {
		return false, nil
	}

	station := stationFromMetadata(stationID)
	if err := station.Validate(); err != nil {
		return false, err
	}
	now := s.clock.Now().UTC()
	station.CreatedAt = now
	station.UpdatedAt = now

	if err := s.repo.CreateStation(ctx, station); err != nil {
		return false, fmt.Errorf("failed to create station: %w", err)
	}
	s.logger.Info(ctx, "[INGEST_STATION_CREATED] Station created", logging.Fields{
		"station_id": stationID,
		"name":       station.Name,
		"state":      station.State,
	})
	return true, nil
}

// ParseLine parses a single line from a weather data file:
// YYYYMMDD\tMAX\tMIN\tPRECIP with optional HUMIDITY and WIND columns.
// Integer columns are tenths; -9999 marks a missing value.
func ParseLine(line string) (*models.RawWeatherRecord, error) {
	parts := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	if len(parts) < 4 || len(parts) > 6 {
		return nil, fmt.Errorf("invalid line format: expected 4 to 6 fields, got %d", len(parts))
	}

	maxTemp, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, fmt.Errorf("invalid max temperature: %w", err)
	}
	minTemp, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return nil, fmt.Errorf("invalid min temperature: %w", err)
	}
	precip, err := strconv.Atoi(strings.TrimSpace(parts[3]))
	if err != nil {
		return nil, fmt.Errorf("invalid precipitation: %w", err)
	}

	record := &models.RawWeatherRecord{
		Date:                 strings.TrimSpace(parts[0]),
		MaxTemperatureTenths: maxTemp,
		MinTemperatureTenths: minTemp,
		PrecipitationTenths:  precip,
	}
	if len(parts) > 4 {
		if record.Humidity, err = parseOptional(parts[4]); err != nil {
			return nil, fmt.Errorf("invalid humidity: %w", err)
		}
	}
	if len(parts) > 5 {
		if record.WindSpeed, err = parseOptional(parts[5]); err != nil {
			return nil, fmt.Errorf("invalid wind speed: %w", err)
		}
	}
	return record, nil
}

func parseOptional(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == strconv.Itoa(models.MissingValue) {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
