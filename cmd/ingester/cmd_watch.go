package main

import (
	"github.com/spf13/cobra"

	"weather-warehouse/internal/services"
	"weather-warehouse/pkg/logging"
)

func newWatchCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll an incoming directory and ingest new station files",
		Long:  `Scans INGEST_WATCH_DIR every INGEST_WATCH_INTERVAL, ingests each station file found, and moves it to INGEST_ARCHIVE_DIR. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx := cmd.Context()

			watcher := services.NewWatchScheduler(a.ingestion, services.WatchConfig{
				IncomingDir: a.cfg.Ingestion.WatchDir,
				ArchiveDir:  a.cfg.Ingestion.ArchiveDir,
				Interval:    a.cfg.Ingestion.WatchInterval,
				BatchSize:   a.cfg.Ingestion.BatchSize,
				Source:      a.cfg.Ingestion.Source,
			}, a.logger)

			if err := watcher.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()

			a.logger.Info(ctx, "[SHUTDOWN] Stopping watch scheduler", logging.Fields{})
			watcher.Stop()
			return nil
		},
	}
}
