// Command demo runs the full ingestion pipeline against an in-memory store,
// so the quality scoring and aggregation can be inspected without a database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"weather-warehouse/internal/models"
	"weather-warehouse/internal/quality"
	"weather-warehouse/internal/repository"
	"weather-warehouse/internal/services"
	"weather-warehouse/pkg/logging"
	"weather-warehouse/pkg/metrics"
)

const rule = "════════════════════════════════════════════════════════════════"

func main() {
	dataDir := flag.String("data-dir", "./wx_data", "Directory containing station files")
	policyPath := flag.String("policy", "", "Optional YAML quality policy")
	flag.Parse()

	if err := run(context.Background(), *dataDir, *policyPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dataDir, policyPath string) error {
	fmt.Println(rule)
	fmt.Println("WEATHER WAREHOUSE - IN-MEMORY PIPELINE DEMONSTRATION")
	fmt.Println(rule)
	fmt.Println()

	logger := logging.NewStructuredLogger("demo", "1.0.0", logging.WarnLevel)
	m := metrics.NewCollector("weather_demo", prometheus.NewRegistry())
	clock := clockwork.NewRealClock()

	policy := quality.DefaultPolicy()
	if policyPath != "" {
		var err error
		if policy, err = quality.LoadPolicy(policyPath); err != nil {
			return err
		}
	}
	scorer, err := quality.NewScorer(policy)
	if err != nil {
		return err
	}

	repo := repository.NewMemoryRepository()
	upserter, err := services.NewFactUpserter(repo, clock, logger, m)
	if err != nil {
		return err
	}
	engine := services.NewAggregationEngine(repo, clock, logger, m)
	coordinator := services.NewIngestionCoordinator(scorer, upserter, engine, services.DefaultCoordinatorConfig(), clock, logger, m)
	ingestion := services.NewIngestionService(repo, coordinator, clock, logger, m)

	result, err := ingestion.IngestDirectory(ctx, dataDir, 1000, "demo")
	if err != nil {
		return err
	}

	fmt.Println(rule)
	fmt.Println("PROCESSING SUMMARY")
	fmt.Println(rule)
	fmt.Printf("Policy version:         %s\n", policy.Version)
	fmt.Printf("Total weather files:    %d\n", result.TotalFiles)
	fmt.Printf("Unparseable lines:      %d\n", result.ParseErrors)
	fmt.Printf("Total records:          %d\n", result.Summary.Total)
	fmt.Printf("Upserted facts:         %d\n", result.Summary.Upserted)
	fmt.Printf("Station/years:          %d\n", result.Summary.AggregationsRecomputed)
	fmt.Println()

	fmt.Println("Quality distribution:")
	for _, c := range []models.QualityCategory{models.QualityExcellent, models.QualityGood, models.QualityFair, models.QualityPoor} {
		c := c
		_, n, err := repo.ListFacts(ctx, repository.FactFilter{DataQuality: &c})
		if err != nil {
			return err
		}
		share := 0.0
		if result.Summary.Upserted > 0 {
			share = float64(n) / float64(result.Summary.Upserted) * 100
		}
		fmt.Printf("  %-10s %8d  %6.2f%%\n", c, n, share)
	}
	fmt.Println()

	keys, err := repo.StationYears(ctx)
	if err != nil || len(keys) == 0 {
		return err
	}

	first := keys[0]
	fmt.Println(rule)
	fmt.Printf("AGGREGATIONS FOR %s\n", strings.ToUpper(first.String()))
	fmt.Println(rule)
	rows, _, err := repo.ListAggregations(ctx, repository.AggregationFilter{
		StationID: &first.StationID,
		Year:      &first.Year,
	})
	if err != nil {
		return err
	}
	for _, r := range rows {
		fmt.Printf("  %-9s %2d | Max: %s | Min: %s | Precip: %7.1f mm | %d/%d valid\n",
			r.PeriodType, r.PeriodNumber, celsius(r.AvgMaxTemp), celsius(r.AvgMinTemp),
			r.TotalPrecipitation, r.ValidRecordCount, r.RecordCount)
	}
	return nil
}

func celsius(v *float64) string {
	if v == nil {
		return "  NULL "
	}
	return fmt.Sprintf("%5.1f°C", *v)
}
