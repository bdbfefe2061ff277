package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"weather-warehouse/pkg/logging"
)

func newYieldsCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "yields <file>",
		Short: "Load a US corn grain yield file",
		Long:  `Loads a whitespace-separated "<year> <yield>" file into the corn yield table, replacing existing years.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx := cmd.Context()

			result, err := a.yields.LoadFile(ctx, args[0])
			if err != nil {
				return err
			}

			a.logger.Info(ctx, "[YIELDS_COMPLETE] Corn yields loaded", logging.Fields{
				"file":     args[0],
				"lines":    result.Lines,
				"upserted": result.Upserted,
				"skipped":  result.Skipped,
			})
			fmt.Printf("Loaded %d yields from %s (%d lines skipped)\n", result.Upserted, args[0], result.Skipped)
			return nil
		},
	}
}
