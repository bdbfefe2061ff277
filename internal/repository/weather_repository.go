package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"weather-warehouse/internal/models"
	"weather-warehouse/pkg/database"
	"weather-warehouse/pkg/logging"
	"weather-warehouse/pkg/metrics"
)

const factColumns = `station_id, observation_date, source,
	raw_max_temp, raw_min_temp, raw_precip,
	max_temp_c, min_temp_c, precip_mm, precip_cm, humidity_pct, wind_speed_ms,
	data_quality, quality_score, missing_values, outlier_count, quality_notes,
	ingested_at, ingest_run_id`

const aggregationColumns = `station_id, year, period_type, period_number, period_start, period_end,
	avg_max_temp, avg_min_temp, total_precipitation, avg_quality_score,
	record_count, valid_record_count, completeness_ratio, calculated_at`

const factInsert = `INSERT INTO weather_facts (` + factColumns + `)
	VALUES (
		:station_id, :observation_date, :source,
		:raw_max_temp, :raw_min_temp, :raw_precip,
		:max_temp_c, :min_temp_c, :precip_mm, :precip_cm, :humidity_pct, :wind_speed_ms,
		:data_quality, :quality_score, :missing_values, :outlier_count, :quality_notes,
		:ingested_at, :ingest_run_id
	)`

const stationColumns = `station_id, name, latitude, longitude, elevation, state, country, timezone, active, created_at, updated_at`

// weatherRepository implements WeatherRepository on PostgreSQL
type weatherRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewWeatherRepository creates a PostgreSQL-backed repository
func NewWeatherRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) WeatherRepository {
	return &weatherRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

func (r *weatherRepository) Capabilities() Capabilities {
	c := r.db.Capabilities()
	return Capabilities{Upsert: c.Upsert, RangePartition: c.RangePartition}
}

func storageError(op string, err error) error {
	return &models.StorageError{Op: op, Err: err, Transient: database.IsTransientError(err)}
}

// CreateStation inserts station metadata, leaving an existing row untouched
func (r *weatherRepository) CreateStation(ctx context.Context, station *models.WeatherStation) error {
	query := `
		INSERT INTO stations (` + stationColumns + `)
		VALUES (:station_id, :name, :latitude, :longitude, :elevation, :state, :country, :timezone, :active, :created_at, :updated_at)
		ON CONFLICT (station_id) DO NOTHING
	`
	if _, err := r.db.DB().NamedExecContext(ctx, query, station); err != nil {
		r.metrics.RecordDBError("exec_error")
		return storageError("create_station", err)
	}

	r.logger.Debug(ctx, "[REPO_CREATE_STATION] Station created", logging.Fields{
		"station_id": station.StationID,
		"state":      station.State,
	})
	return nil
}

// GetStation retrieves a weather station by ID
func (r *weatherRepository) GetStation(ctx context.Context, stationID string) (*models.WeatherStation, error) {
	query := `SELECT ` + stationColumns + ` FROM stations WHERE station_id = $1`

	var station models.WeatherStation
	err := r.db.GetContext(ctx, "get_station", &station, query, stationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Resource: "weather_station", ID: stationID}
	}
	if err != nil {
		return nil, storageError("get_station", err)
	}
	return &station, nil
}

// StationExists is the metadata lookup used to validate fact upserts
func (r *weatherRepository) StationExists(ctx context.Context, stationID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, "station_exists", &exists,
		`SELECT EXISTS (SELECT 1 FROM stations WHERE station_id = $1)`, stationID)
	if err != nil {
		return false, storageError("station_exists", err)
	}
	return exists, nil
}

// ListStations retrieves weather stations with filtering and pagination
func (r *weatherRepository) ListStations(ctx context.Context, filter StationFilter) ([]*models.WeatherStation, int, error) {
	q := newFilterQuery(`SELECT ` + stationColumns + ` FROM stations WHERE 1=1`)
	if filter.State != nil {
		q.where("state = ?", *filter.State)
	}
	if filter.Country != nil {
		q.where("country = ?", *filter.Country)
	}
	if filter.Active != nil {
		q.where("active = ?", *filter.Active)
	}

	total, err := r.count(ctx, "count_stations", q)
	if err != nil {
		return nil, 0, err
	}

	var stations []*models.WeatherStation
	query, args := q.page("station_id", filter.Limit, filter.Offset)
	if err := r.db.SelectContext(ctx, "list_stations", &stations, query, args...); err != nil {
		return nil, 0, storageError("list_stations", err)
	}
	return stations, total, nil
}

// UpsertFact inserts the fact or replaces the data and lineage fields of the
// row already stored under the same (station_id, observation_date, source).
func (r *weatherRepository) UpsertFact(ctx context.Context, fact *models.WeatherFact) error {
	query := factInsert + `
		ON CONFLICT (station_id, observation_date, source) DO UPDATE SET
			raw_max_temp = EXCLUDED.raw_max_temp,
			raw_min_temp = EXCLUDED.raw_min_temp,
			raw_precip = EXCLUDED.raw_precip,
			max_temp_c = EXCLUDED.max_temp_c,
			min_temp_c = EXCLUDED.min_temp_c,
			precip_mm = EXCLUDED.precip_mm,
			precip_cm = EXCLUDED.precip_cm,
			humidity_pct = EXCLUDED.humidity_pct,
			wind_speed_ms = EXCLUDED.wind_speed_ms,
			data_quality = EXCLUDED.data_quality,
			quality_score = EXCLUDED.quality_score,
			missing_values = EXCLUDED.missing_values,
			outlier_count = EXCLUDED.outlier_count,
			quality_notes = EXCLUDED.quality_notes,
			ingested_at = EXCLUDED.ingested_at,
			ingest_run_id = EXCLUDED.ingest_run_id
	`

	timer := time.Now()
	_, err := r.db.DB().NamedExecContext(ctx, query, fact)
	r.metrics.DBQueryDuration.WithLabelValues("upsert_fact").Observe(time.Since(timer).Seconds())
	if err != nil {
		r.metrics.RecordDBError("upsert_error")
		return storageError("upsert_fact", err)
	}
	return nil
}

// ReplaceFact deletes and re-inserts the fact in one serializable
// transaction. It backs servers without ON CONFLICT; concurrent writers to
// the same key fail with a serialization error, which is transient.
func (r *weatherRepository) ReplaceFact(ctx context.Context, fact *models.WeatherFact) error {
	err := r.db.InTx(ctx, "replace_fact", sql.LevelSerializable, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM weather_facts WHERE station_id = $1 AND observation_date = $2 AND source = $3`,
			fact.StationID, fact.ObservationDate, fact.Source); err != nil {
			return err
		}
		_, err := tx.NamedExecContext(ctx, factInsert, fact)
		return err
	})
	if err != nil {
		return storageError("replace_fact", err)
	}
	return nil
}

// GetFact retrieves one fact by its primary key
func (r *weatherRepository) GetFact(ctx context.Context, stationID string, date time.Time, source string) (*models.WeatherFact, error) {
	query := `SELECT ` + factColumns + ` FROM weather_facts
		WHERE station_id = $1 AND observation_date = $2 AND source = $3`

	var fact models.WeatherFact
	err := r.db.GetContext(ctx, "get_fact", &fact, query, stationID, date, source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{
			Resource: "weather_fact",
			ID:       fmt.Sprintf("%s:%s:%s", stationID, date.Format(models.DateLayout), source),
		}
	}
	if err != nil {
		return nil, storageError("get_fact", err)
	}
	return &fact, nil
}

// ListFacts retrieves weather facts with filtering and pagination
func (r *weatherRepository) ListFacts(ctx context.Context, filter FactFilter) ([]*models.WeatherFact, int, error) {
	q := newFilterQuery(`SELECT ` + factColumns + ` FROM weather_facts WHERE 1=1`)
	if filter.StationID != nil {
		q.where("station_id = ?", *filter.StationID)
	}
	if filter.StartDate != nil {
		q.where("observation_date >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		q.where("observation_date <= ?", *filter.EndDate)
	}
	if filter.Source != nil {
		q.where("source = ?", *filter.Source)
	}
	if filter.DataQuality != nil {
		q.where("data_quality = ?", string(*filter.DataQuality))
	}

	total, err := r.count(ctx, "count_facts", q)
	if err != nil {
		return nil, 0, err
	}

	var facts []*models.WeatherFact
	query, args := q.page("observation_date DESC, station_id, source", filter.Limit, filter.Offset)
	if err := r.db.SelectContext(ctx, "list_facts", &facts, query, args...); err != nil {
		return nil, 0, storageError("list_facts", err)
	}
	return facts, total, nil
}

// StationYears lists every (station, year) that has at least one fact
func (r *weatherRepository) StationYears(ctx context.Context) ([]models.StationYear, error) {
	query := `
		SELECT DISTINCT station_id, EXTRACT(YEAR FROM observation_date)::int AS year
		FROM weather_facts
		ORDER BY station_id, year
	`
	var rows []struct {
		StationID string `db:"station_id"`
		Year      int    `db:"year"`
	}
	if err := r.db.SelectContext(ctx, "station_years", &rows, query); err != nil {
		return nil, storageError("station_years", err)
	}

	keys := make([]models.StationYear, len(rows))
	for i, row := range rows {
		keys[i] = models.StationYear{StationID: row.StationID, Year: row.Year}
	}
	return keys, nil
}

// ReplaceAggregations recomputes one station/year in a single transaction:
// it takes a transaction-scoped advisory lock on the key, reads the year's
// facts in one statement, and swaps every aggregation row for the year.
// Under READ COMMITTED the fact read sees all upserts committed before the
// lock was granted.
func (r *weatherRepository) ReplaceAggregations(ctx context.Context, key models.StationYear, build AggregateBuilder) (int, error) {
	timer := time.Now()
	start, end := YearBounds(key.Year)
	written := 0

	err := r.db.InTx(ctx, "replace_aggregations", sql.LevelReadCommitted, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), $2)`, key.StationID, key.Year); err != nil {
			return err
		}

		var facts []*models.WeatherFact
		err := tx.SelectContext(ctx, &facts, `SELECT `+factColumns+` FROM weather_facts
			WHERE station_id = $1 AND observation_date BETWEEN $2 AND $3
			ORDER BY observation_date, source`, key.StationID, start, end)
		if err != nil {
			return err
		}

		rows, err := build(facts)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM weather_aggregations WHERE station_id = $1 AND year = $2`,
			key.StationID, key.Year); err != nil {
			return err
		}

		insert := `INSERT INTO weather_aggregations (` + aggregationColumns + `)
			VALUES (:station_id, :year, :period_type, :period_number, :period_start, :period_end,
				:avg_max_temp, :avg_min_temp, :total_precipitation, :avg_quality_score,
				:record_count, :valid_record_count, :completeness_ratio, :calculated_at)`
		for _, row := range rows {
			if _, err := tx.NamedExecContext(ctx, insert, row); err != nil {
				return err
			}
		}
		written = len(rows)
		return nil
	})
	if err != nil {
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			return 0, err
		}
		return 0, storageError("replace_aggregations", err)
	}

	r.logger.Debug(ctx, "[REPO_REPLACE_AGGREGATIONS] Aggregations replaced", logging.Fields{
		"station_id":  key.StationID,
		"year":        key.Year,
		"rows":        written,
		"duration_ms": time.Since(timer).Milliseconds(),
	})
	return written, nil
}

// ListAggregations retrieves aggregations with filtering and pagination
func (r *weatherRepository) ListAggregations(ctx context.Context, filter AggregationFilter) ([]*models.WeatherAggregation, int, error) {
	q := newFilterQuery(`SELECT ` + aggregationColumns + ` FROM weather_aggregations WHERE 1=1`)
	if filter.StationID != nil {
		q.where("station_id = ?", *filter.StationID)
	}
	if filter.Year != nil {
		q.where("year = ?", *filter.Year)
	}
	if filter.PeriodType != nil {
		q.where("period_type = ?", string(*filter.PeriodType))
	}

	total, err := r.count(ctx, "count_aggregations", q)
	if err != nil {
		return nil, 0, err
	}

	var aggregations []*models.WeatherAggregation
	query, args := q.page("year DESC, station_id, period_type, period_number", filter.Limit, filter.Offset)
	if err := r.db.SelectContext(ctx, "list_aggregations", &aggregations, query, args...); err != nil {
		return nil, 0, storageError("list_aggregations", err)
	}
	return aggregations, total, nil
}

// UpsertYield writes one corn yield row keyed by year
func (r *weatherRepository) UpsertYield(ctx context.Context, y *models.CornYield) error {
	query := `
		INSERT INTO corn_yields (year, yield, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (year) DO UPDATE SET
			yield = EXCLUDED.yield,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, "upsert_yield", query, y.Year, y.Yield, y.UpdatedAt); err != nil {
		return storageError("upsert_yield", err)
	}
	return nil
}

// ListYields retrieves corn yields ordered by year
func (r *weatherRepository) ListYields(ctx context.Context, filter YieldFilter) ([]*models.CornYield, int, error) {
	q := newFilterQuery(`SELECT year, yield, created_at, updated_at FROM corn_yields WHERE 1=1`)
	if filter.Year != nil {
		q.where("year = ?", *filter.Year)
	}

	total, err := r.count(ctx, "count_yields", q)
	if err != nil {
		return nil, 0, err
	}

	var yields []*models.CornYield
	query, args := q.page("year", filter.Limit, filter.Offset)
	if err := r.db.SelectContext(ctx, "list_yields", &yields, query, args...); err != nil {
		return nil, 0, storageError("list_yields", err)
	}
	return yields, total, nil
}

// HealthCheck performs a repository health check
func (r *weatherRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

func (r *weatherRepository) count(ctx context.Context, queryType string, q *filterQuery) (int, error) {
	var total int
	countQuery := "SELECT COUNT(*) FROM (" + q.sql + ") AS count_query"
	if err := r.db.GetContext(ctx, queryType, &total, countQuery, q.args...); err != nil {
		return 0, storageError(queryType, err)
	}
	return total, nil
}

// filterQuery accumulates WHERE clauses with positional parameters
type filterQuery struct {
	sql  string
	args []interface{}
}

func newFilterQuery(base string) *filterQuery {
	return &filterQuery{sql: base}
}

// where appends " AND clause", replacing the single ? with the next $n
func (q *filterQuery) where(clause string, arg interface{}) {
	q.args = append(q.args, arg)
	placeholder := fmt.Sprintf("$%d", len(q.args))
	for i := 0; i < len(clause); i++ {
		if clause[i] == '?' {
			clause = clause[:i] + placeholder + clause[i+1:]
			break
		}
	}
	q.sql += " AND " + clause
}

// page returns the query with ordering and pagination applied
func (q *filterQuery) page(orderBy string, limit, offset int) (string, []interface{}) {
	query := q.sql + " ORDER BY " + orderBy
	args := append([]interface{}{}, q.args...)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, limit, offset)
	}
	return query, args
}
