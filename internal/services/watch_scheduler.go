package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"

	"weather-warehouse/pkg/logging"
)

// WatchConfig configures the incoming directory watcher
type WatchConfig struct {
	IncomingDir string
	ArchiveDir  string
	Interval    time.Duration
	BatchSize   int
	Source      string
}

// WatchScheduler periodically ingests station files dropped into an incoming
// directory and moves each processed file to the archive directory.
type WatchScheduler struct {
	scheduler *gocron.Scheduler
	ingestion *IngestionService
	cfg       WatchConfig
	logger    *logging.StructuredLogger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewWatchScheduler creates a new watch scheduler
func NewWatchScheduler(ingestion *IngestionService, cfg WatchConfig, logger *logging.StructuredLogger) *WatchScheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &WatchScheduler{
		scheduler: s,
		ingestion: ingestion,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start schedules the scan job and starts the underlying scheduler. The first
// scan runs immediately.
func (w *WatchScheduler) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.cfg.ArchiveDir, 0o755); err != nil {
		return fmt.Errorf("failed to create archive dir: %w", err)
	}

	interval := w.cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	w.mu.Lock()
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	_, err := w.scheduler.Every(interval).Do(func() {
		if _, err := w.ScanOnce(w.ctx); err != nil {
			w.logger.Error(w.ctx, "[WATCH_SCAN_ERROR] Scan failed", logging.Fields{
				"incoming_dir": w.cfg.IncomingDir,
			}, err)
		}
	})
	if err != nil {
		return err
	}

	w.logger.Info(ctx, "[WATCH_START] Watching incoming directory", logging.Fields{
		"incoming_dir": w.cfg.IncomingDir,
		"archive_dir":  w.cfg.ArchiveDir,
		"interval":     interval.String(),
	})
	w.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels an in-flight scan
func (w *WatchScheduler) Stop() {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()
	w.scheduler.Stop()
}

// ScanOnce ingests every *.txt file currently in the incoming directory and
// returns the number of files archived. Files that fail stay in place and
// are retried on the next scan.
func (w *WatchScheduler) ScanOnce(ctx context.Context) (int, error) {
	files, err := filepath.Glob(filepath.Join(w.cfg.IncomingDir, "*.txt"))
	if err != nil {
		return 0, fmt.Errorf("failed to read incoming dir: %w", err)
	}
	if len(files) == 0 {
		return 0, nil
	}
	sort.Strings(files)

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)

	archived := 0
	for _, path := range files {
		if ctx.Err() != nil {
			return archived, ctx.Err()
		}

		result, err := w.ingestion.IngestFile(ctx, path, w.cfg.BatchSize, w.cfg.Source, runID)
		if err != nil {
			w.logger.Error(ctx, "[WATCH_FILE_ERROR] File ingestion failed", logging.Fields{
				"file_path": path,
			}, err)
			continue
		}

		dest := filepath.Join(w.cfg.ArchiveDir, filepath.Base(path))
		if err := os.Rename(path, dest); err != nil {
			return archived, fmt.Errorf("failed to archive %s: %w", path, err)
		}
		archived++

		w.logger.Info(ctx, "[WATCH_FILE_ARCHIVED] File ingested and archived", logging.Fields{
			"file_path": path,
			"archive":   dest,
			"upserted":  result.Summary.Upserted,
			"failed":    result.Summary.Failed,
		})
	}
	return archived, nil
}
