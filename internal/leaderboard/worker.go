package leaderboard

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/falling-trivia/internal/metrics"
)

// SnapshotWorker flushes changed boards to the snapshot store and
// periodically archives the top of every board.
type SnapshotWorker struct {
	store         *Store
	snapshots     SnapshotStore
	archive       Archive
	clock         Clock
	metrics       *metrics.Collectors
	logger        zerolog.Logger
	flushInterval time.Duration
	interval      time.Duration
	topN          int
}

// SnapshotWorkerOptions configures the worker. A nil Snapshots or Archive
// disables that half of the work.
type SnapshotWorkerOptions struct {
	Snapshots     SnapshotStore
	Archive       Archive
	Clock         Clock
	Metrics       *metrics.Collectors
	FlushInterval time.Duration
	Interval      time.Duration
	TopN          int
}

func NewSnapshotWorker(store *Store, opts SnapshotWorkerOptions, logger zerolog.Logger) *SnapshotWorker {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 10 * time.Second
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.TopN <= 0 {
		opts.TopN = 50
	}
	if opts.Clock == nil {
		opts.Clock = wallClock{}
	}
	return &SnapshotWorker{
		store:         store,
		snapshots:     opts.Snapshots,
		archive:       opts.Archive,
		clock:         opts.Clock,
		metrics:       opts.Metrics,
		logger:        logger.With().Str("component", "leaderboard_snapshot_worker").Logger(),
		flushInterval: opts.FlushInterval,
		interval:      opts.Interval,
		topN:          opts.TopN,
	}
}

// Run blocks until context cancellation, then performs a final flush.
func (w *SnapshotWorker) Run(ctx context.Context) error {
	if w.snapshots == nil && w.archive == nil {
		return nil
	}

	flush := time.NewTicker(w.flushInterval)
	defer flush.Stop()
	archive := time.NewTicker(w.interval)
	defer archive.Stop()

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.Flush(finalCtx)
			cancel()
			return ctx.Err()
		case <-flush.C:
			w.Flush(ctx)
		case <-archive.C:
			w.ArchiveAll(ctx)
		}
	}
}

// Flush writes boards changed since the last flush.
func (w *SnapshotWorker) Flush(ctx context.Context) {
	if w.snapshots == nil {
		return
	}
	dirty := w.store.DirtySnapshots()
	if len(dirty) == 0 {
		return
	}
	if err := w.snapshots.Save(ctx, dirty); err != nil {
		w.metrics.PersistenceFailed("leaderboard_flush")
		w.logger.Warn().Err(err).Int("boards", len(dirty)).Msg("snapshot flush failed")
		return
	}
	w.logger.Debug().Int("boards", len(dirty)).Msg("leaderboards flushed")
}

// ArchiveAll stores the top entries of every non-empty board.
func (w *SnapshotWorker) ArchiveAll(ctx context.Context) {
	if w.archive == nil {
		return
	}
	now := w.clock.Now().UTC()
	for _, snap := range w.store.Snapshots() {
		if len(snap.Entries) == 0 {
			continue
		}
		entries := snap.Entries
		if len(entries) > w.topN {
			entries = entries[:w.topN]
		}
		if err := w.archive.Insert(ctx, snap.Name, now, entries); err != nil {
			w.metrics.PersistenceFailed("leaderboard_archive")
			w.logger.Warn().Err(err).Str("board", snap.Name).Msg("snapshot failed")
			continue
		}
		w.logger.Info().
			Str("board", snap.Name).
			Int("entries", len(entries)).
			Time("generated_at", now).
			Msg("leaderboard snapshot persisted")
	}
}
