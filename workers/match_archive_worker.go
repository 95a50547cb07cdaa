// workers/match_archive_worker.go
package workers

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"match-lobby-system/models"
	"match-lobby-system/storage"
)

// MatchArchiveWorker mirrors closed matches into Postgres for reporting.
// It only reads engine state (the closed-match index and match records);
// the Postgres side is write-only from the engine's point of view, so the
// store's optimistic-concurrency discipline is untouched.
type MatchArchiveWorker struct {
	db       *gorm.DB
	store    *storage.Store
	interval time.Duration

	// upsert writes one archived row; swapped out in tests.
	upsert func(ctx context.Context, row models.ArchivedMatch) error

	// high-water mark of the closed-match index. Upserts are idempotent, so
	// starting from zero after a restart just re-archives already-mirrored rows.
	lastSeen float64
}

func NewMatchArchiveWorker(db *gorm.DB, store *storage.Store, interval time.Duration) *MatchArchiveWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	w := &MatchArchiveWorker{db: db, store: store, interval: interval}
	w.upsert = w.upsertRow
	return w
}

// Start archives on a fixed interval until ctx is cancelled.
func (w *MatchArchiveWorker) Start(ctx context.Context) {
	log.Info().Dur("interval", w.interval).Msg("match archive worker started")

	if err := w.archiveBatch(ctx); err != nil {
		log.Warn().Err(err).Msg("initial archive batch failed")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.archiveBatch(ctx); err != nil {
				log.Error().Err(err).Msg("archive batch failed")
			}
		case <-ctx.Done():
			log.Info().Msg("match archive worker stopped")
			return
		}
	}
}

// archiveBatch copies matches closed since the last batch into Postgres.
func (w *MatchArchiveWorker) archiveBatch(ctx context.Context) error {
	ids, err := w.store.ZRangeScoreBetween(ctx, storage.ClosedMatchesKey(), w.lastSeen, math.Inf(1))
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	archived := 0
	var newest float64
	failed := false
	for _, id := range ids {
		var match models.Match
		found, err := w.store.GetJSON(ctx, storage.MatchKey(id), &match)
		if err != nil {
			return err
		}
		if !found {
			continue
		}

		if err := w.upsert(ctx, toArchivedMatch(&match)); err != nil {
			log.Warn().Err(err).Str("match_id", match.ID).Msg("failed to archive match")
			// later rows still get archived, but the mark must not move past
			// this one or it would never be retried
			failed = true
			continue
		}
		archived++
		if ts := closedAtScore(&match); !failed && ts > newest {
			newest = ts
		}
	}

	if newest > w.lastSeen {
		w.lastSeen = newest
	}
	if archived > 0 {
		log.Info().Int("archived", archived).Msg("mirrored closed matches to postgres")
	}
	return nil
}

func (w *MatchArchiveWorker) upsertRow(ctx context.Context, row models.ArchivedMatch) error {
	return w.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"player2_name", "state", "winner", "total_score",
			"resolved_at", "cancelled_at",
		}),
	}).Create(&row).Error
}

func toArchivedMatch(m *models.Match) models.ArchivedMatch {
	row := models.ArchivedMatch{
		ID:          m.ID,
		Player1Name: m.Player1.Name,
		State:       m.State,
		TotalScore:  m.TotalScore,
		CreatedAt:   m.CreatedAt,
		ResolvedAt:  m.ResolvedAt,
		CancelledAt: m.CancelledAt,
	}
	if m.Player2 != nil {
		name := m.Player2.Name
		row.Player2Name = &name
	}
	if m.Winner != "" {
		winner := m.Winner
		row.Winner = &winner
	}
	return row
}

func closedAtScore(m *models.Match) float64 {
	switch {
	case m.ResolvedAt != nil:
		return float64(m.ResolvedAt.UnixNano())
	case m.CancelledAt != nil:
		return float64(m.CancelledAt.UnixNano())
	default:
		return 0
	}
}
