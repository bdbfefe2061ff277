package handlers

import (
	"encoding/json"
	"net/http"
)

const apiTitle = "Weather Warehouse API"

type schema = map[string]interface{}

func queryParam(name, description string, s schema) schema {
	return schema{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    false,
		"schema":      s,
	}
}

func pathParam(name, description string) schema {
	return schema{
		"name":        name,
		"in":          "path",
		"description": description,
		"required":    true,
		"schema":      schema{"type": "string"},
	}
}

func ref(name string) schema {
	return schema{"$ref": "#/components/schemas/" + name}
}

func jsonContent(s schema) schema {
	return schema{"content": schema{"application/json": schema{"schema": s}}}
}

func paginated(item string) schema {
	return schema{
		"type": "object",
		"properties": schema{
			"data":        schema{"type": "array", "items": ref(item)},
			"total":       schema{"type": "integer"},
			"page":        schema{"type": "integer"},
			"limit":       schema{"type": "integer"},
			"total_pages": schema{"type": "integer"},
			"has_next":    schema{"type": "boolean"},
			"has_prev":    schema{"type": "boolean"},
		},
	}
}

func getOperation(summary string, params []schema, ok schema, errorCodes ...string) schema {
	success := jsonContent(ok)
	success["description"] = "Successful response"
	responses := schema{"200": success}
	for _, code := range errorCodes {
		r := jsonContent(ref("Error"))
		r["description"] = map[string]string{
			"400": "Invalid parameters",
			"404": "Not found",
			"500": "Internal server error",
		}[code]
		responses[code] = r
	}
	return schema{"get": schema{
		"summary":    summary,
		"parameters": params,
		"responses":  responses,
	}}
}

func paginationParams() []schema {
	return []schema{
		queryParam("page", "Page number (default: 1)", schema{"type": "integer", "default": 1, "minimum": 1}),
		queryParam("limit", "Records per page (default: 100, max: 1000)", schema{"type": "integer", "default": 100, "minimum": 1, "maximum": 1000}),
	}
}

func nullable(t string) schema {
	return schema{"type": t, "nullable": true}
}

// openAPIDocument describes every read route registered by RegisterRoutes
func openAPIDocument() schema {
	str := schema{"type": "string"}
	integer := schema{"type": "integer"}
	date := schema{"type": "string", "format": "date"}

	return schema{
		"openapi": "3.0.0",
		"info": schema{
			"title":       apiTitle,
			"description": "Quality-scored daily weather facts and their annual, quarterly, and monthly aggregations",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": schema{
			"/api/weather": getOperation("List weather facts",
				append([]schema{
					queryParam("station_id", "Filter by station", str),
					queryParam("start_date", "Inclusive start date (YYYY-MM-DD)", date),
					queryParam("end_date", "Inclusive end date (YYYY-MM-DD)", date),
					queryParam("source", "Filter by source system", str),
					queryParam("data_quality", "Filter by quality category", schema{"type": "string", "enum": []string{"excellent", "good", "fair", "poor"}}),
				}, paginationParams()...),
				paginated("WeatherFact"), "400", "500"),
			"/api/weather/{station_id}/{date}": getOperation("Get a single weather fact",
				[]schema{
					pathParam("station_id", "Station identifier"),
					pathParam("date", "Observation date (YYYY-MM-DD or YYYYMMDD)"),
					queryParam("source", "Source system (default: manual)", str),
				},
				ref("WeatherFact"), "400", "404", "500"),
			"/api/weather/stats": getOperation("List weather aggregations",
				append([]schema{
					queryParam("station_id", "Filter by station", str),
					queryParam("year", "Filter by calendar year", integer),
					queryParam("period_type", "Filter by period", schema{"type": "string", "enum": []string{"annual", "quarterly", "monthly"}}),
				}, paginationParams()...),
				paginated("WeatherAggregation"), "400", "500"),
			"/api/stations": getOperation("List weather stations",
				append([]schema{
					queryParam("state", "Filter by state code", str),
					queryParam("country", "Filter by country", str),
					queryParam("active", "Filter by active flag", schema{"type": "boolean"}),
				}, paginationParams()...),
				paginated("WeatherStation"), "400", "500"),
			"/api/stations/{station_id}": getOperation("Get a weather station",
				[]schema{pathParam("station_id", "Station identifier")},
				ref("WeatherStation"), "404", "500"),
			"/api/yield": getOperation("List US corn grain yields",
				append([]schema{queryParam("year", "Filter by year", integer)}, paginationParams()...),
				paginated("CornYield"), "400", "500"),
			"/health": getOperation("Health check", nil, ref("Health")),
		},
		"components": schema{
			"schemas": schema{
				"WeatherFact": schema{
					"type": "object",
					"properties": schema{
						"station_id":       str,
						"observation_date": schema{"type": "string", "format": "date-time"},
						"source":           str,
						"raw_max_temp":     nullable("integer"),
						"raw_min_temp":     nullable("integer"),
						"raw_precip":       nullable("integer"),
						"max_temp_c":       nullable("number"),
						"min_temp_c":       nullable("number"),
						"precip_mm":        nullable("number"),
						"precip_cm":        nullable("number"),
						"humidity_pct":     nullable("number"),
						"wind_speed_ms":    nullable("number"),
						"data_quality":     schema{"type": "string", "enum": []string{"excellent", "good", "fair", "poor"}},
						"quality_score":    schema{"type": "number", "minimum": 0, "maximum": 1},
						"missing_values":   integer,
						"outlier_count":    integer,
						"quality_notes":    str,
						"ingested_at":      schema{"type": "string", "format": "date-time"},
						"ingest_run_id":    str,
					},
				},
				"WeatherAggregation": schema{
					"type": "object",
					"properties": schema{
						"station_id":          str,
						"year":                integer,
						"period_type":         str,
						"period_number":       integer,
						"period_start":        schema{"type": "string", "format": "date-time"},
						"period_end":          schema{"type": "string", "format": "date-time"},
						"avg_max_temp":        nullable("number"),
						"avg_min_temp":        nullable("number"),
						"total_precipitation": schema{"type": "number"},
						"avg_quality_score":   nullable("number"),
						"record_count":        integer,
						"valid_record_count":  integer,
						"completeness_ratio":  schema{"type": "number"},
						"calculated_at":       schema{"type": "string", "format": "date-time"},
					},
				},
				"WeatherStation": schema{
					"type": "object",
					"properties": schema{
						"station_id": str,
						"name":       str,
						"state":      str,
						"country":    str,
						"latitude":   schema{"type": "number"},
						"longitude":  schema{"type": "number"},
						"elevation":  nullable("number"),
						"timezone":   str,
						"active":     schema{"type": "boolean"},
					},
				},
				"CornYield": schema{
					"type": "object",
					"properties": schema{
						"year":  integer,
						"yield": integer,
					},
				},
				"Health": schema{
					"type": "object",
					"properties": schema{
						"status":       str,
						"timestamp":    schema{"type": "string", "format": "date-time"},
						"capabilities": schema{"type": "object"},
					},
				},
				"Error": schema{
					"type": "object",
					"properties": schema{
						"error":      str,
						"message":    str,
						"code":       integer,
						"request_id": str,
					},
				},
			},
		},
	}
}

// OpenAPISpec serves the OpenAPI 3.0 document for the read API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(openAPIDocument()); err != nil {
		http.Error(w, "failed to encode document", http.StatusInternalServerError)
	}
}
