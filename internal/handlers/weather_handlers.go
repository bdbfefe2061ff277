package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"weather-warehouse/internal/models"
	"weather-warehouse/internal/repository"
	"weather-warehouse/internal/services"
	"weather-warehouse/pkg/logging"
	"weather-warehouse/pkg/metrics"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// WeatherHandler handles the read API endpoints
type WeatherHandler struct {
	weatherService *services.WeatherService
	statsService   *services.StatisticsService
	yieldService   *services.YieldService
	logger         *logging.StructuredLogger
	metrics        *metrics.Collector
}

// NewWeatherHandler creates a new weather handler
func NewWeatherHandler(
	weatherService *services.WeatherService,
	statsService *services.StatisticsService,
	yieldService *services.YieldService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *WeatherHandler {
	return &WeatherHandler{
		weatherService: weatherService,
		statsService:   statsService,
		yieldService:   yieldService,
		logger:         logger,
		metrics:        metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Code      int    `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
	HasNext    bool        `json:"has_next"`
	HasPrev    bool        `json:"has_prev"`
}

type pagination struct {
	page  int
	limit int
}

func (p pagination) offset() int {
	return (p.page - 1) * p.limit
}

func (p pagination) response(data interface{}, total int) PaginatedResponse {
	totalPages := (total + p.limit - 1) / p.limit
	return PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       p.page,
		Limit:      p.limit,
		TotalPages: totalPages,
		HasNext:    p.page < totalPages,
		HasPrev:    p.page > 1,
	}
}

// parsePagination reads page and limit, rejecting malformed values
func parsePagination(r *http.Request) (pagination, error) {
	p := pagination{page: 1, limit: defaultLimit}
	q := r.URL.Query()

	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return p, &models.ValidationError{Field: "page", Value: v, Message: "page must be a positive integer"}
		}
		p.page = page
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxLimit {
			return p, &models.ValidationError{Field: "limit", Value: v, Message: "limit must be between 1 and 1000"}
		}
		p.limit = limit
	}
	// offset() must stay representable for every store
	if p.page-1 > math.MaxInt32/p.limit {
		return p, &models.ValidationError{Field: "page", Value: q.Get("page"), Message: "page out of range"}
	}
	return p, nil
}

func parseDateParam(r *http.Request, name string) (*time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	d, err := time.Parse(models.DateLayout, v)
	if err != nil {
		return nil, &models.ValidationError{Field: name, Value: v, Message: "invalid " + name + " format, expected YYYY-MM-DD"}
	}
	return &d, nil
}

func parseIntParam(r *http.Request, name string) (*int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, &models.ValidationError{Field: name, Value: v, Message: "invalid " + name + ", expected integer"}
	}
	return &n, nil
}

func stringParam(r *http.Request, name string) *string {
	if v := r.URL.Query().Get(name); v != "" {
		return &v
	}
	return nil
}

// ListFacts handles GET /api/weather
func (h *WeatherHandler) ListFacts(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/weather"
	defer h.observe(endpoint, time.Now())

	page, err := parsePagination(r)
	if err != nil {
		h.handleError(w, r, endpoint, err)
		return
	}
	filter := repository.FactFilter{
		StationID: stringParam(r, "station_id"),
		Source:    stringParam(r, "source"),
		Limit:     page.limit,
		Offset:    page.offset(),
	}
	if filter.StartDate, err = parseDateParam(r, "start_date"); err != nil {
		h.handleError(w, r, endpoint, err)
		return
	}
	if filter.EndDate, err = parseDateParam(r, "end_date"); err != nil {
		h.handleError(w, r, endpoint, err)
		return
	}
	if v := r.URL.Query().Get("data_quality"); v != "" {
		category, err := models.ParseQualityCategory(v)
		if err != nil {
			h.handleError(w, r, endpoint, err)
			return
		}
		filter.DataQuality = &category
	}

	facts, total, err := h.weatherService.ListFacts(r.Context(), filter)
	if err != nil {
		h.handleError(w, r, endpoint, err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, r.Method, "200")
	h.sendJSON(w, page.response(facts, total), http.StatusOK)
}

// GetFact handles GET /api/weather/{station_id}/{date}
func (h *WeatherHandler) GetFact(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/weather/{station_id}/{date}"
	defer h.observe(endpoint, time.Now())

	vars := mux.Vars(r)
	date, err := models.ParseObservationDate(vars["date"])
	if err != nil {
		h.handleError(w, r, endpoint, err)
		return
	}

	fact, err := h.weatherService.GetFact(r.Context(), vars["station_id"], date, r.URL.Query().Get("source"))
	if err != nil {
		h.handleError(w, r, endpoint, err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, r.Method, "200")
	h.sendJSON(w, fact, http.StatusOK)
}

// ListAggregations handles GET /api/weather/stats
func (h *WeatherHandler) ListAggregations(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/weather/stats"
	defer h.observe(endpoint, time.Now())

	page, err := parsePagination(r)
	if err != nil {
		h.handleError(w, r, endpoint, err)
		return
	}
	filter := repository.AggregationFilter{
		StationID: stringParam(r, "station_id"),
		Limit:     page.limit,
		Offset:    page.offset(),
	}
	if filter.Year, err = parseIntParam(r, "year"); err != nil {
		h.handleError(w, r, endpoint, err)
		return
	}
	if v := r.URL.Query().Get("period_type"); v != "" {
		pt, err := models.ParsePeriodType(v)
		if err != nil {
			h.handleError(w, r, endpoint, err)
			return
		}
		filter.PeriodType = &pt
	}

	aggregations, total, err := h.statsService.ListAggregations(r.Context(), filter)
	if err != nil {
		h.handleError(w, r, endpoint, err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, r.Method, "200")
	h.sendJSON(w, page.response(aggregations, total), http.StatusOK)
}

// ListStations handles GET /api/stations
func (h *WeatherHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/stations"
	defer h.observe(endpoint, time.Now())

	page, err := parsePagination(r)
	if err != nil {
		h.handleError(w, r, endpoint, err)
		return
	}
	filter := repository.StationFilter{
		State:   stringParam(r, "state"),
		Country: stringParam(r, "country"),
		Limit:   page.limit,
		Offset:  page.offset(),
	}
	if v := r.URL.Query().Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			h.handleError(w, r, endpoint, &models.ValidationError{Field: "active", Value: v, Message: "active must be true or false"})
			return
		}
		filter.Active = &active
	}

	stations, total, err := h.weatherService.ListStations(r.Context(), filter)
	if err != nil {
		h.handleError(w, r, endpoint, err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, r.Method, "200")
	h.sendJSON(w, page.response(stations, total), http.StatusOK)
}

// GetStation handles GET /api/stations/{station_id}
func (h *WeatherHandler) GetStation(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/stations/{station_id}"
	defer h.observe(endpoint, time.Now())

	station, err := h.weatherService.GetStation(r.Context(), mux.Vars(r)["station_id"])
	if err != nil {
		h.handleError(w, r, endpoint, err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, r.Method, "200")
	h.sendJSON(w, station, http.StatusOK)
}

// ListYields handles GET /api/yield
func (h *WeatherHandler) ListYields(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/yield"
	defer h.observe(endpoint, time.Now())

	page, err := parsePagination(r)
	if err != nil {
		h.handleError(w, r, endpoint, err)
		return
	}
	filter := repository.YieldFilter{Limit: page.limit, Offset: page.offset()}
	if filter.Year, err = parseIntParam(r, "year"); err != nil {
		h.handleError(w, r, endpoint, err)
		return
	}

	yields, total, err := h.yieldService.ListYields(r.Context(), filter)
	if err != nil {
		h.handleError(w, r, endpoint, err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, r.Method, "200")
	h.sendJSON(w, page.response(yields, total), http.StatusOK)
}

// HealthCheck handles GET /health
func (h *WeatherHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caps, err := h.weatherService.HealthCheck(ctx)
	status := map[string]interface{}{
		"status":       "healthy",
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"capabilities": caps,
	}
	code := http.StatusOK
	if err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK_FAILED] Store health check failed", logging.Fields{
			"error": err.Error(),
		})
		status["status"] = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	h.sendJSON(w, status, code)
}

func (h *WeatherHandler) observe(endpoint string, start time.Time) {
	h.metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// handleError maps the error taxonomy onto HTTP status codes
func (h *WeatherHandler) handleError(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	var ve *models.ValidationError
	var nf *models.NotFoundError

	status := http.StatusInternalServerError
	message := "internal server error"
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
		message = ve.Error()
	case errors.As(err, &nf):
		status = http.StatusNotFound
		message = nf.Error()
	default:
		h.logger.Error(r.Context(), "[API_ERROR] Request failed", logging.Fields{
			"endpoint": endpoint,
		}, err)
	}

	h.metrics.RecordAPIError(models.ErrorKind(err), endpoint)
	h.metrics.RecordAPIRequest(endpoint, r.Method, strconv.Itoa(status))
	h.sendJSON(w, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      status,
		RequestID: logging.RequestID(r.Context()),
	}, status)
}

// sendJSON sends a JSON response
func (h *WeatherHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn(context.Background(), "[API_ENCODE_ERROR] Failed to encode response", logging.Fields{
			"error": err.Error(),
		})
	}
}

// RegisterRoutes registers all read API routes
func (h *WeatherHandler) RegisterRoutes(router *mux.Router) {
	router.Use(RequestIDMiddleware)

	router.HandleFunc("/api/weather", h.ListFacts).Methods(http.MethodGet)
	router.HandleFunc("/api/weather/stats", h.ListAggregations).Methods(http.MethodGet)
	router.HandleFunc("/api/weather/{station_id}/{date}", h.GetFact).Methods(http.MethodGet)
	router.HandleFunc("/api/stations", h.ListStations).Methods(http.MethodGet)
	router.HandleFunc("/api/stations/{station_id}", h.GetStation).Methods(http.MethodGet)
	router.HandleFunc("/api/yield", h.ListYields).Methods(http.MethodGet)
	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods(http.MethodGet)
	router.HandleFunc("/api/docs", SwaggerUI).Methods(http.MethodGet)
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
}
