package services

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"

	"weather-warehouse/internal/models"
	"weather-warehouse/internal/repository"
	"weather-warehouse/pkg/logging"
)

// YieldService loads and serves the corn yield reference table
type YieldService struct {
	repo   repository.WeatherRepository
	clock  clockwork.Clock
	logger *logging.StructuredLogger
}

// NewYieldService creates a new yield service
func NewYieldService(repo repository.WeatherRepository, clock clockwork.Clock, logger *logging.StructuredLogger) *YieldService {
	return &YieldService{repo: repo, clock: clock, logger: logger}
}

// YieldLoadResult counts the rows of one yield file
type YieldLoadResult struct {
	Lines    int
	Upserted int
	Skipped  int
}

// LoadFile upserts every YEAR\tYIELD line of path, keyed by year
func (s *YieldService) LoadFile(ctx context.Context, path string) (*YieldLoadResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open yield file: %w", err)
	}
	defer file.Close()

	result := &YieldLoadResult{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		result.Lines++

		y, err := parseYieldLine(line)
		if err != nil {
			result.Skipped++
			s.logger.Warn(ctx, "[YIELD_PARSE_ERROR] Skipping malformed line", logging.Fields{
				"line":  result.Lines,
				"error": err.Error(),
			})
			continue
		}
		now := s.clock.Now().UTC()
		y.CreatedAt, y.UpdatedAt = now, now

		if err := s.repo.UpsertYield(ctx, y); err != nil {
			return result, fmt.Errorf("failed to store yield for %d: %w", y.Year, err)
		}
		result.Upserted++
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("error reading yield file: %w", err)
	}

	s.logger.Info(ctx, "[YIELD_LOAD_COMPLETE] Corn yields loaded", logging.Fields{
		"path":     path,
		"upserted": result.Upserted,
		"skipped":  result.Skipped,
	})
	return result, nil
}

// ListYields retrieves corn yields with filtering
func (s *YieldService) ListYields(ctx context.Context, filter repository.YieldFilter) ([]*models.CornYield, int, error) {
	return s.repo.ListYields(ctx, filter)
}

func parseYieldLine(line string) (*models.CornYield, error) {
	parts := strings.Fields(line)
	if len(parts) != 2 {
		return nil, fmt.Errorf("expected 2 fields, got %d", len(parts))
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid year: %w", err)
	}
	yield, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid yield: %w", err)
	}
	return &models.CornYield{Year: year, Yield: yield}, nil
}
