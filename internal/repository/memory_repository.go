package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"weather-warehouse/internal/models"
)

type aggKey struct {
	stationID    string
	year         int
	periodType   models.PeriodType
	periodNumber int
}

// MemoryRepository is an in-process WeatherRepository used by the demo
// binary and by service tests. Values are copied on the way in and out so
// callers never share rows with the store.
type MemoryRepository struct {
	mu           sync.RWMutex
	capabilities Capabilities
	stations     map[string]models.WeatherStation
	facts        map[models.FactKey]models.WeatherFact
	aggregations map[aggKey]models.WeatherAggregation
	yields       map[int]models.CornYield
}

// NewMemoryRepository creates an empty store that advertises native upsert
func NewMemoryRepository() *MemoryRepository {
	return NewMemoryRepositoryWithCapabilities(Capabilities{Upsert: true})
}

// NewMemoryRepositoryWithCapabilities creates an empty store with the given
// advertised features
func NewMemoryRepositoryWithCapabilities(c Capabilities) *MemoryRepository {
	return &MemoryRepository{
		capabilities: c,
		stations:     make(map[string]models.WeatherStation),
		facts:        make(map[models.FactKey]models.WeatherFact),
		aggregations: make(map[aggKey]models.WeatherAggregation),
		yields:       make(map[int]models.CornYield),
	}
}

func (m *MemoryRepository) Capabilities() Capabilities {
	return m.capabilities
}

func (m *MemoryRepository) CreateStation(_ context.Context, station *models.WeatherStation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stations[station.StationID]; !ok {
		m.stations[station.StationID] = *station
	}
	return nil
}

func (m *MemoryRepository) GetStation(_ context.Context, stationID string) (*models.WeatherStation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stations[stationID]
	if !ok {
		return nil, &models.NotFoundError{Resource: "weather_station", ID: stationID}
	}
	return &s, nil
}

func (m *MemoryRepository) StationExists(_ context.Context, stationID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.stations[stationID]
	return ok, nil
}

func (m *MemoryRepository) ListStations(_ context.Context, filter StationFilter) ([]*models.WeatherStation, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.WeatherStation
	for _, s := range m.stations {
		if filter.State != nil && s.State != *filter.State {
			continue
		}
		if filter.Country != nil && s.Country != *filter.Country {
			continue
		}
		if filter.Active != nil && s.Active != *filter.Active {
			continue
		}
		s := s
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	page, total := paginate(out, filter.Limit, filter.Offset)
	return page, total, nil
}

// UpsertFact stores the fact under its key. Facts for unknown stations are
// rejected the way the foreign key rejects them in PostgreSQL.
func (m *MemoryRepository) UpsertFact(_ context.Context, fact *models.WeatherFact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putFact(fact)
}

// ReplaceFact deletes and reinserts the fact under one lock. Used when the
// store is configured without native upsert.
func (m *MemoryRepository) ReplaceFact(_ context.Context, fact *models.WeatherFact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.facts, fact.Key())
	return m.putFact(fact)
}

func (m *MemoryRepository) putFact(fact *models.WeatherFact) error {
	if _, ok := m.stations[fact.StationID]; !ok {
		return &models.StorageError{
			Op:        "upsert_fact",
			Err:       fmt.Errorf("station %s does not exist", fact.StationID),
			Transient: true,
		}
	}
	m.facts[fact.Key()] = *fact
	return nil
}

func (m *MemoryRepository) GetFact(_ context.Context, stationID string, date time.Time, source string) (*models.WeatherFact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := models.FactKey{StationID: stationID, Date: date.Format(models.DateLayout), Source: source}
	f, ok := m.facts[key]
	if !ok {
		return nil, &models.NotFoundError{
			Resource: "weather_fact",
			ID:       fmt.Sprintf("%s:%s:%s", key.StationID, key.Date, key.Source),
		}
	}
	return &f, nil
}

func (m *MemoryRepository) ListFacts(_ context.Context, filter FactFilter) ([]*models.WeatherFact, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.WeatherFact
	for _, f := range m.facts {
		if filter.StationID != nil && f.StationID != *filter.StationID {
			continue
		}
		if filter.StartDate != nil && f.ObservationDate.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && f.ObservationDate.After(*filter.EndDate) {
			continue
		}
		if filter.Source != nil && f.Source != *filter.Source {
			continue
		}
		if filter.DataQuality != nil && f.DataQuality != *filter.DataQuality {
			continue
		}
		f := f
		out = append(out, &f)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.ObservationDate.Equal(b.ObservationDate) {
			return a.ObservationDate.After(b.ObservationDate)
		}
		if a.StationID != b.StationID {
			return a.StationID < b.StationID
		}
		return a.Source < b.Source
	})
	page, total := paginate(out, filter.Limit, filter.Offset)
	return page, total, nil
}

func (m *MemoryRepository) StationYears(_ context.Context) ([]models.StationYear, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[models.StationYear]bool)
	var keys []models.StationYear
	for _, f := range m.facts {
		k := models.StationYear{StationID: f.StationID, Year: f.ObservationDate.Year()}
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sortStationYears(keys)
	return keys, nil
}

// ReplaceAggregations holds the write lock for the whole read, build and
// swap, so no upsert interleaves with a recomputation.
func (m *MemoryRepository) ReplaceAggregations(_ context.Context, key models.StationYear, build AggregateBuilder) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var facts []*models.WeatherFact
	for _, f := range m.facts {
		if f.StationID == key.StationID && f.ObservationDate.Year() == key.Year {
			f := f
			facts = append(facts, &f)
		}
	}
	sort.Slice(facts, func(i, j int) bool {
		if !facts[i].ObservationDate.Equal(facts[j].ObservationDate) {
			return facts[i].ObservationDate.Before(facts[j].ObservationDate)
		}
		return facts[i].Source < facts[j].Source
	})

	rows, err := build(facts)
	if err != nil {
		return 0, err
	}

	for k := range m.aggregations {
		if k.stationID == key.StationID && k.year == key.Year {
			delete(m.aggregations, k)
		}
	}
	for _, row := range rows {
		m.aggregations[aggKey{row.StationID, row.Year, row.PeriodType, row.PeriodNumber}] = *row
	}
	return len(rows), nil
}

func (m *MemoryRepository) ListAggregations(_ context.Context, filter AggregationFilter) ([]*models.WeatherAggregation, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.WeatherAggregation
	for _, a := range m.aggregations {
		if filter.StationID != nil && a.StationID != *filter.StationID {
			continue
		}
		if filter.Year != nil && a.Year != *filter.Year {
			continue
		}
		if filter.PeriodType != nil && a.PeriodType != *filter.PeriodType {
			continue
		}
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		if a.StationID != b.StationID {
			return a.StationID < b.StationID
		}
		if a.PeriodType != b.PeriodType {
			return a.PeriodType < b.PeriodType
		}
		return a.PeriodNumber < b.PeriodNumber
	})
	page, total := paginate(out, filter.Limit, filter.Offset)
	return page, total, nil
}

func (m *MemoryRepository) UpsertYield(_ context.Context, y *models.CornYield) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.yields[y.Year]; ok {
		existing.Yield = y.Yield
		existing.UpdatedAt = y.UpdatedAt
		m.yields[y.Year] = existing
		return nil
	}
	m.yields[y.Year] = *y
	return nil
}

func (m *MemoryRepository) ListYields(_ context.Context, filter YieldFilter) ([]*models.CornYield, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.CornYield
	for _, y := range m.yields {
		if filter.Year != nil && y.Year != *filter.Year {
			continue
		}
		y := y
		out = append(out, &y)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	page, total := paginate(out, filter.Limit, filter.Offset)
	return page, total, nil
}

func (m *MemoryRepository) HealthCheck(context.Context) error {
	return nil
}

func paginate[T any](items []T, limit, offset int) ([]T, int) {
	total := len(items)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []T{}, total
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items, total
}

func sortStationYears(keys []models.StationYear) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].StationID != keys[j].StationID {
			return keys[i].StationID < keys[j].StationID
		}
		return keys[i].Year < keys[j].Year
	})
}
