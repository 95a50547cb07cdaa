package services

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"match-lobby-system/models"
	"match-lobby-system/storage"
)

// StatsService owns the per-player win/loss record. The winner/loser pair is
// always written in one conditional transaction: there is no observable state
// where only one side of a match has been counted.
type StatsService struct {
	Store *storage.Store
}

func NewStatsService(store *storage.Store) *StatsService {
	return &StatsService{Store: store}
}

// RecordOutcome applies one resolved match to both players' records. Retries
// the optimistic transaction up to the bound when a concurrent update to
// either player's record wins the race.
func (s *StatsService) RecordOutcome(ctx context.Context, winnerName, loserName string) error {
	winnerKey := storage.PlayerStatsKey(winnerName)
	loserKey := storage.PlayerStatsKey(loserName)

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.Store.Atomically(ctx, func(tx *storage.Tx) error {
			winner := models.PlayerStats{PlayerName: winnerName}
			loser := models.PlayerStats{PlayerName: loserName}
			if _, err := tx.GetJSON(ctx, winnerKey, &winner); err != nil {
				return err
			}
			if _, err := tx.GetJSON(ctx, loserKey, &loser); err != nil {
				return err
			}

			now := time.Now().UTC()
			winner.Wins++
			winner.TotalMatches++
			winner.RecomputeWinRate()
			winner.LastUpdated = now
			loser.Losses++
			loser.TotalMatches++
			loser.RecomputeWinRate()
			loser.LastUpdated = now

			return tx.Exec(ctx, func(pipe redis.Pipeliner) error {
				if err := storage.PipeSetJSON(ctx, pipe, winnerKey, winner); err != nil {
					return err
				}
				return storage.PipeSetJSON(ctx, pipe, loserKey, loser)
			})
		}, winnerKey, loserKey)

		if eris.Is(err, storage.ErrConflict) {
			log.Debug().Str("winner", winnerName).Str("loser", loserName).
				Int("attempt", attempt+1).Msg("stats update lost race, retrying")
			continue
		}
		return err
	}
	return models.ErrContention
}

// GetPlayerStats returns a player's record, or nil when they have never
// finished a match.
func (s *StatsService) GetPlayerStats(ctx context.Context, playerName string) (*models.PlayerStats, error) {
	var stats models.PlayerStats
	found, err := s.Store.GetJSON(ctx, storage.PlayerStatsKey(playerName), &stats)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &stats, nil
}
