package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"weather-warehouse/internal/models"
	"weather-warehouse/pkg/logging"
)

func newAggregateCmd(get func() *app) *cobra.Command {
	var (
		stationID string
		year      int
		period    string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Recompute weather aggregations",
		Long: `Recomputes the annual, quarterly, and monthly aggregations of one station/year,
or of every station/year that has facts when --station is omitted. With --dry-run
the rows are computed and printed but not written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx := cmd.Context()

			if stationID == "" {
				if dryRun {
					return fmt.Errorf("--dry-run requires --station and --year")
				}
				result, err := a.stats.RecomputeAll(ctx)
				if err != nil {
					return err
				}
				fmt.Println(strings.Repeat("=", 80))
				fmt.Println("AGGREGATION COMPLETE")
				fmt.Println(strings.Repeat("=", 80))
				fmt.Printf("Station/Years: %d\n", result.StationYears)
				fmt.Printf("Recomputed:    %d\n", result.Recomputed)
				fmt.Printf("Failed:        %d\n", result.Failed)
				fmt.Printf("Rows Written:  %d\n", result.RowsWritten)
				fmt.Printf("Duration:      %v\n", result.Duration)

				lines := make([]string, 0, len(result.Errors))
				for _, e := range result.Errors {
					lines = append(lines, fmt.Sprintf("%s/%d: %s (%s)", e.StationID, e.Year, e.Message, e.Kind))
				}
				printErrors(lines)
				return nil
			}

			if err := a.engine.ValidateYear(year); err != nil {
				return err
			}

			if dryRun {
				types := models.PeriodTypes
				if period != "" {
					pt, err := models.ParsePeriodType(period)
					if err != nil {
						return err
					}
					types = []models.PeriodType{pt}
				}
				var rows []*models.WeatherAggregation
				for _, pt := range types {
					computed, err := a.engine.Compute(ctx, stationID, year, pt)
					if err != nil {
						return err
					}
					rows = append(rows, computed...)
				}
				printAggregations(rows)
				return nil
			}

			key := models.StationYear{StationID: stationID, Year: year}
			written, err := a.stats.Recompute(ctx, key)
			if err != nil {
				return err
			}
			a.logger.Info(ctx, "[AGGREGATE] Station/year recomputed", logging.Fields{
				"station_id":   stationID,
				"year":         year,
				"rows_written": written,
			})
			fmt.Printf("Recomputed %s: %d rows written\n", key, written)
			return nil
		},
	}

	cmd.Flags().StringVar(&stationID, "station", "", "Station to recompute (all station/years when omitted)")
	cmd.Flags().IntVar(&year, "year", 0, "Calendar year to recompute (required with --station)")
	cmd.Flags().StringVar(&period, "period", "", "Limit --dry-run output to annual, quarterly, or monthly")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute and print rows without writing them")
	return cmd
}

func printAggregations(rows []*models.WeatherAggregation) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PERIOD\tN\tSTART\tEND\tAVG_MAX_C\tAVG_MIN_C\tPRECIP_MM\tRECORDS\tVALID\tQUALITY")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%.1f\t%d\t%d\t%s\n",
			r.PeriodType, r.PeriodNumber,
			r.PeriodStart.Format(models.DateLayout), r.PeriodEnd.Format(models.DateLayout),
			optional(r.AvgMaxTemp), optional(r.AvgMinTemp),
			r.TotalPrecipitation, r.RecordCount, r.ValidRecordCount,
			optional(r.AvgQualityScore),
		)
	}
	w.Flush()
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
