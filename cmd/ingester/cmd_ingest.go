package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"weather-warehouse/internal/services"
	"weather-warehouse/pkg/logging"
)

func newIngestCmd(get func() *app) *cobra.Command {
	var (
		dataDir   string
		batchSize int
		source    string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest every station file in a directory",
		Long:  `Parses each <station_id>.txt file, scores and upserts its records, and recomputes the aggregations of every station/year touched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx := cmd.Context()
			if dataDir == "" {
				dataDir = a.cfg.Ingestion.DataDir
			}
			if batchSize <= 0 {
				batchSize = a.cfg.Ingestion.BatchSize
			}
			if source == "" {
				source = a.cfg.Ingestion.Source
			}

			a.logger.Info(ctx, "[INGESTER_START] Starting weather data ingestion", logging.Fields{
				"version":    version,
				"data_dir":   dataDir,
				"batch_size": batchSize,
				"source":     source,
			})

			result, err := a.ingestion.IngestDirectory(ctx, dataDir, batchSize, source)
			if result != nil {
				printIngestion(result)
			}
			if err != nil {
				a.logger.Error(ctx, "[INGESTION_ERROR] Ingestion failed", logging.Fields{}, err)
				return err
			}

			a.logger.Info(ctx, "[INGESTER_COMPLETE] Ingestion completed", logging.Fields{
				"ingest_run_id":    result.RunID,
				"total_records":    result.Summary.Total,
				"upserted":         result.Summary.Upserted,
				"failed":           result.Summary.Failed,
				"duration_seconds": result.Duration.Seconds(),
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory containing station files (default from INGEST_DATA_DIR)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Records per coordinator batch (default from INGEST_BATCH_SIZE)")
	cmd.Flags().StringVar(&source, "source", "", "Source system recorded on each fact (default from INGEST_SOURCE)")
	return cmd
}

func printIngestion(result *services.IngestionResult) {
	s := result.Summary

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("INGESTION COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Run ID:                  %s\n", result.RunID)
	fmt.Printf("Total Files:             %d\n", result.TotalFiles)
	fmt.Printf("Failed Files:            %d\n", result.FailedFiles)
	fmt.Printf("Stations Created:        %d\n", result.StationsCreated)
	fmt.Printf("Unparseable Lines:       %d\n", result.ParseErrors)
	fmt.Printf("Total Records:           %d\n", s.Total)
	fmt.Printf("Upserted Records:        %d\n", s.Upserted)
	fmt.Printf("Failed Records:          %d\n", s.Failed)
	fmt.Printf("Aggregations Recomputed: %d\n", s.AggregationsRecomputed)
	fmt.Printf("Aggregations Failed:     %d\n", s.AggregationsFailed)
	fmt.Printf("Duration:                %v\n", result.Duration)
	if secs := result.Duration.Seconds(); secs > 0 {
		fmt.Printf("Records/Second:          %.2f\n", float64(s.Upserted)/secs)
	}

	var lines []string
	lines = append(lines, result.Errors...)
	for _, e := range s.Errors {
		lines = append(lines, fmt.Sprintf("%s %s: %s (%s)", e.StationID, e.Date, e.Message, e.Kind))
	}
	for _, e := range s.AggregationErrors {
		lines = append(lines, fmt.Sprintf("aggregate %s/%d: %s (%s)", e.StationID, e.Year, e.Message, e.Kind))
	}
	printErrors(lines)
}

func printErrors(lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Printf("\nErrors (%d):\n", len(lines))
	for i, msg := range lines {
		if i == 10 {
			fmt.Printf("  ... and %d more errors\n", len(lines)-10)
			break
		}
		fmt.Printf("  - %s\n", msg)
	}
}
