package services

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"match-lobby-system/models"
	"match-lobby-system/storage"
)

// maxTxAttempts bounds every optimistic retry loop. Losing the race this many
// times in a row surfaces as ErrContention, which callers may retry fresh.
const maxTxAttempts = 10

const (
	defaultLobbyLimit = 50
	maxLobbyLimit     = 100
)

// Notifier receives resolved-match events from the engine. Delivery is
// fire-and-forget: Enqueue must not block and failures never affect the
// match result.
type Notifier interface {
	Enqueue(event models.MatchResolvedEvent)
}

// MatchmakingService is the engine: it owns match creation, joining and
// cancellation, and is the only component that touches the lobby index, the
// match records and the stats service together. It keeps no in-process state,
// so any number of instances can run against the same store.
type MatchmakingService struct {
	Store    *storage.Store
	Stats    *StatsService
	Idem     *IdempotencyCache
	Notifier Notifier
}

func NewMatchmakingService(store *storage.Store, stats *StatsService, idem *IdempotencyCache, notifier Notifier) *MatchmakingService {
	return &MatchmakingService{Store: store, Stats: stats, Idem: idem, Notifier: notifier}
}

// CreateMatch opens a lobby for playerName. A player may hold at most one
// open lobby: a second create without an explicit cancel returns the existing
// match with ErrAlreadyWaiting instead of a duplicate.
func (s *MatchmakingService) CreateMatch(ctx context.Context, playerName string, score int64, level int, externalUserID, requestKey string) (*models.Match, error) {
	if err := validateSubmission(playerName, score, level); err != nil {
		return nil, err
	}

	return Replay(ctx, s.Idem, requestKey, MutationCacheTTL, func() (*models.Match, error) {
		return s.createMatch(ctx, playerName, score, level, externalUserID)
	})
}

func (s *MatchmakingService) createMatch(ctx context.Context, playerName string, score int64, level int, externalUserID string) (*models.Match, error) {
	lockKey := storage.WaitingLockKey(playerName)

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		var created, existing *models.Match

		err := s.Store.Atomically(ctx, func(tx *storage.Tx) error {
			lockedID, locked, err := tx.GetString(ctx, lockKey)
			if err != nil {
				return err
			}
			if locked {
				existing = &models.Match{}
				found, err := tx.GetJSON(ctx, storage.MatchKey(lockedID), existing)
				if err != nil {
					return err
				}
				if found {
					return models.ErrAlreadyWaiting
				}
				// lock points at a match that no longer exists; fall through
				// and let the new lobby overwrite it
				existing = nil
			}

			now := time.Now().UTC()
			match := &models.Match{
				ID: uuid.NewString(),
				Player1: models.PlayerSubmission{
					Name:           playerName,
					Score:          score,
					Level:          level,
					ExternalUserID: externalUserID,
					SubmittedAt:    now,
				},
				State:     models.MatchStateWaiting,
				CreatedAt: now,
			}

			err = tx.Exec(ctx, func(pipe redis.Pipeliner) error {
				if err := storage.PipeSetJSON(ctx, pipe, storage.MatchKey(match.ID), match); err != nil {
					return err
				}
				pipe.ZAdd(ctx, storage.OpenLobbiesKey(), redis.Z{
					Score:  float64(now.UnixNano()),
					Member: match.ID,
				})
				pipe.Set(ctx, lockKey, match.ID, 0)
				pipe.SAdd(ctx, storage.KnownPlayersKey(), playerName)
				pipe.Incr(ctx, storage.TotalMatchesKey())
				return storage.PipeSetNXJSON(ctx, pipe, storage.PlayerStatsKey(playerName), models.PlayerStats{
					PlayerName:  playerName,
					LastUpdated: now,
				})
			})
			if err != nil {
				return err
			}
			created = match
			return nil
		}, lockKey)

		switch {
		case err == nil:
			log.Info().Str("match_id", created.ID).Str("player", playerName).Msg("lobby opened")
			return created, nil
		case eris.Is(err, models.ErrAlreadyWaiting):
			return existing, models.ErrAlreadyWaiting
		case eris.Is(err, storage.ErrConflict):
			continue
		default:
			return nil, err
		}
	}
	return nil, models.ErrContention
}

// JoinMatch fills the second slot of a waiting match, resolves it and updates
// both players' stats. Among any number of concurrent joiners of the same
// match exactly one commits; the rest get a definitive precondition error.
func (s *MatchmakingService) JoinMatch(ctx context.Context, matchID, playerName string, score int64, level int, externalUserID, requestKey string) (*models.JoinResult, error) {
	if err := validateSubmission(playerName, score, level); err != nil {
		return nil, err
	}

	return Replay(ctx, s.Idem, requestKey, MutationCacheTTL, func() (*models.JoinResult, error) {
		return s.joinMatch(ctx, matchID, playerName, score, level, externalUserID)
	})
}

func (s *MatchmakingService) joinMatch(ctx context.Context, matchID, playerName string, score int64, level int, externalUserID string) (*models.JoinResult, error) {
	matchKey := storage.MatchKey(matchID)

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		var result *models.JoinResult

		// Every WAITING → {COMPLETED,CANCELLED} transition rewrites the match
		// record, so the watch on it also guards against an interleaved cancel.
		err := s.Store.Atomically(ctx, func(tx *storage.Tx) error {
			match := &models.Match{}
			found, err := tx.GetJSON(ctx, matchKey, match)
			if err != nil {
				return err
			}
			// hard failures: definitive, never retried
			switch {
			case !found:
				return models.ErrMatchNotFound
			case match.State != models.MatchStateWaiting:
				return models.ErrNotAvailable
			case match.Player1.Name == playerName:
				return models.ErrSelfJoin
			case match.Player2 != nil:
				return models.ErrAlreadyFull
			}

			now := time.Now().UTC()
			match.Player2 = &models.PlayerSubmission{
				Name:           playerName,
				Score:          score,
				Level:          level,
				ExternalUserID: externalUserID,
				SubmittedAt:    now,
			}
			resolution := ResolveMatch(match)
			match.State = models.MatchStateCompleted
			match.ResolvedAt = &now
			match.Winner = resolution.Winner
			match.TotalScore = resolution.TotalScore

			err = tx.Exec(ctx, func(pipe redis.Pipeliner) error {
				if err := storage.PipeSetJSON(ctx, pipe, matchKey, match); err != nil {
					return err
				}
				pipe.ZRem(ctx, storage.OpenLobbiesKey(), match.ID)
				pipe.Del(ctx, storage.WaitingLockKey(match.Player1.Name))
				pipe.Del(ctx, storage.WaitingLockKey(playerName))
				ts := float64(now.UnixNano())
				pipe.ZAdd(ctx, storage.PlayerMatchesKey(match.Player1.Name), redis.Z{Score: ts, Member: match.ID})
				pipe.ZAdd(ctx, storage.PlayerMatchesKey(playerName), redis.Z{Score: ts, Member: match.ID})
				pipe.ZAdd(ctx, storage.ClosedMatchesKey(), redis.Z{Score: ts, Member: match.ID})
				pipe.SAdd(ctx, storage.KnownPlayersKey(), playerName)
				return nil
			})
			if err != nil {
				return err
			}
			result = &models.JoinResult{Match: match, Resolution: resolution}
			return nil
		}, matchKey)

		switch {
		case err == nil:
			s.afterResolve(ctx, result)
			return result, nil
		case eris.Is(err, storage.ErrConflict):
			log.Debug().Str("match_id", matchID).Str("player", playerName).
				Int("attempt", attempt+1).Msg("join lost race, retrying")
			continue
		default:
			return nil, err
		}
	}
	return nil, models.ErrContention
}

// afterResolve runs the post-commit steps of a join: the paired stats update
// and the best-effort notification. The match itself is already committed;
// nothing here can roll it back.
func (s *MatchmakingService) afterResolve(ctx context.Context, result *models.JoinResult) {
	match, res := result.Match, result.Resolution

	if err := s.Stats.RecordOutcome(ctx, res.Winner, res.Loser); err != nil {
		log.Error().Err(err).Str("match_id", match.ID).
			Str("winner", res.Winner).Str("loser", res.Loser).
			Msg("stats update failed after match resolution")
	}

	if s.Notifier != nil {
		s.Notifier.Enqueue(models.MatchResolvedEvent{
			MatchID:    match.ID,
			Winner:     res.Winner,
			Loser:      res.Loser,
			Player1:    match.Player1.Name,
			Player2:    match.Player2.Name,
			TotalScore: res.TotalScore,
			IsTie:      res.IsTie,
			ResolvedAt: *match.ResolvedAt,
		})
	}

	log.Info().Str("match_id", match.ID).Str("winner", res.Winner).
		Int64("total_score", res.TotalScore).Msg("match resolved")
}

// CancelMatch closes a lobby before anyone joins it. Only the creator may
// cancel, and only while the match is still waiting; a second cancel sees
// ErrNotWaiting rather than double-cancelling.
func (s *MatchmakingService) CancelMatch(ctx context.Context, matchID, playerName string) error {
	return s.cancel(ctx, matchID, playerName, false)
}

func (s *MatchmakingService) cancel(ctx context.Context, matchID, playerName string, system bool) error {
	matchKey := storage.MatchKey(matchID)

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.Store.Atomically(ctx, func(tx *storage.Tx) error {
			match := &models.Match{}
			found, err := tx.GetJSON(ctx, matchKey, match)
			if err != nil {
				return err
			}
			switch {
			case !found:
				return models.ErrMatchNotFound
			case match.State != models.MatchStateWaiting:
				return models.ErrNotWaiting
			case !system && match.Player1.Name != playerName:
				return models.ErrNotCreator
			}

			now := time.Now().UTC()
			match.State = models.MatchStateCancelled
			match.CancelledAt = &now

			return tx.Exec(ctx, func(pipe redis.Pipeliner) error {
				if err := storage.PipeSetJSON(ctx, pipe, matchKey, match); err != nil {
					return err
				}
				pipe.ZRem(ctx, storage.OpenLobbiesKey(), match.ID)
				pipe.Del(ctx, storage.WaitingLockKey(match.Player1.Name))
				pipe.ZAdd(ctx, storage.ClosedMatchesKey(), redis.Z{
					Score:  float64(now.UnixNano()),
					Member: match.ID,
				})
				return nil
			})
		}, matchKey)

		switch {
		case err == nil:
			log.Info().Str("match_id", matchID).Bool("system", system).Msg("lobby cancelled")
			return nil
		case eris.Is(err, storage.ErrConflict):
			continue
		default:
			return err
		}
	}
	return models.ErrContention
}

// GetOpenLobbies lists up to limit open lobbies, oldest first. Index entries
// whose match has already left WAITING (a join racing this read) are skipped,
// not returned.
func (s *MatchmakingService) GetOpenLobbies(ctx context.Context, limit int, requestKey string) ([]models.LobbySummary, error) {
	return Replay(ctx, s.Idem, requestKey, ReadCacheTTL, func() ([]models.LobbySummary, error) {
		limit := capLimit(limit)
		ids, err := s.Store.ZRangeAsc(ctx, storage.OpenLobbiesKey(), int64(limit))
		if err != nil {
			return nil, err
		}

		summaries := make([]models.LobbySummary, 0, len(ids))
		for _, id := range ids {
			var match models.Match
			found, err := s.Store.GetJSON(ctx, storage.MatchKey(id), &match)
			if err != nil {
				return nil, err
			}
			if !found || !match.IsWaiting() {
				continue
			}
			summaries = append(summaries, models.LobbySummary{
				MatchID:      match.ID,
				CreatorName:  match.Player1.Name,
				CreatorScore: match.Player1.Score,
				CreatorLevel: match.Player1.Level,
				CreatedAt:    match.CreatedAt,
			})
		}
		return summaries, nil
	})
}

// GetMatchDetails returns a single match by ID. When a request key is
// supplied the response is cached briefly for replay.
func (s *MatchmakingService) GetMatchDetails(ctx context.Context, matchID, requestKey string) (*models.Match, error) {
	return Replay(ctx, s.Idem, requestKey, ReadCacheTTL, func() (*models.Match, error) {
		var match models.Match
		found, err := s.Store.GetJSON(ctx, storage.MatchKey(matchID), &match)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, models.ErrMatchNotFound
		}
		return &match, nil
	})
}

// GetPlayerMatches returns a player's finished matches, newest first.
func (s *MatchmakingService) GetPlayerMatches(ctx context.Context, playerName string, limit int, requestKey string) ([]models.Match, error) {
	return Replay(ctx, s.Idem, requestKey, ReadCacheTTL, func() ([]models.Match, error) {
		limit := capLimit(limit)
		ids, err := s.Store.ZRangeDesc(ctx, storage.PlayerMatchesKey(playerName), int64(limit))
		if err != nil {
			return nil, err
		}

		matches := make([]models.Match, 0, len(ids))
		for _, id := range ids {
			var match models.Match
			found, err := s.Store.GetJSON(ctx, storage.MatchKey(id), &match)
			if err != nil {
				return nil, err
			}
			if !found {
				continue
			}
			matches = append(matches, match)
		}
		return matches, nil
	})
}

// GetPlayerStats returns a player's record through the replay cache; the
// record itself is owned by the stats service.
func (s *MatchmakingService) GetPlayerStats(ctx context.Context, playerName, requestKey string) (*models.PlayerStats, error) {
	return Replay(ctx, s.Idem, requestKey, ReadCacheTTL, func() (*models.PlayerStats, error) {
		return s.Stats.GetPlayerStats(ctx, playerName)
	})
}

// GetMatchmakingStats returns the aggregate counters for dashboards.
func (s *MatchmakingService) GetMatchmakingStats(ctx context.Context, requestKey string) (*models.MatchmakingStats, error) {
	return Replay(ctx, s.Idem, requestKey, ReadCacheTTL, func() (*models.MatchmakingStats, error) {
		open, err := s.Store.ZCard(ctx, storage.OpenLobbiesKey())
		if err != nil {
			return nil, err
		}
		total, err := s.Store.GetInt64(ctx, storage.TotalMatchesKey())
		if err != nil {
			return nil, err
		}
		players, err := s.Store.SCard(ctx, storage.KnownPlayersKey())
		if err != nil {
			return nil, err
		}
		return &models.MatchmakingStats{
			OpenLobbies:   open,
			TotalMatches:  total,
			ActivePlayers: players,
		}, nil
	})
}

// ExpireStaleLobbies cancels lobbies that have waited longer than maxAge.
// Each one goes through the same conditional transaction as a player cancel,
// so a join landing mid-sweep simply wins. Returns the number reaped.
func (s *MatchmakingService) ExpireStaleLobbies(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := float64(time.Now().UTC().Add(-maxAge).UnixNano())
	ids, err := s.Store.ZRangeScoreBetween(ctx, storage.OpenLobbiesKey(), math.Inf(-1), cutoff)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, id := range ids {
		err := s.cancel(ctx, id, "", true)
		switch {
		case err == nil:
			reaped++
		case eris.Is(err, models.ErrNotWaiting), eris.Is(err, models.ErrMatchNotFound):
			// someone joined or cancelled it first
		default:
			return reaped, err
		}
	}
	return reaped, nil
}

func validateSubmission(playerName string, score int64, level int) error {
	if playerName == "" {
		return &models.ValidationError{Field: "player_name", Reason: "must not be empty"}
	}
	if score < 0 {
		return &models.ValidationError{Field: "score", Reason: "must not be negative"}
	}
	if level < 1 {
		return &models.ValidationError{Field: "level", Reason: "must be at least 1"}
	}
	return nil
}

func capLimit(limit int) int {
	if limit <= 0 {
		return defaultLobbyLimit
	}
	if limit > maxLobbyLimit {
		return maxLobbyLimit
	}
	return limit
}
