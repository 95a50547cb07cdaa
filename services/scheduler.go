package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

// StartLobbySweeper schedules the stale-lobby sweep. Lobbies nobody joins
// within maxAge are cancelled so the open list doesn't fill with abandoned
// entries. Returns the scheduler so the caller can shut it down.
func (s *MatchmakingService) StartLobbySweeper(ctx context.Context, interval, maxAge time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			reaped, err := s.ExpireStaleLobbies(ctx, maxAge)
			if err != nil {
				log.Error().Err(err).Msg("[Sweeper] stale lobby sweep failed")
				return
			}
			if reaped > 0 {
				log.Info().Int("reaped", reaped).Msg("[Sweeper] expired stale lobbies")
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	return sched, nil
}
