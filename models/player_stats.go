package models

import "time"

// PlayerStats tracks a player's cumulative record (denormalized for cheap reads).
// TotalMatches always equals Wins+Losses after any successful update; the
// winner/loser pair is written in one transaction so a match is never
// half-counted.
type PlayerStats struct {
	PlayerName   string    `json:"player_name"`
	Wins         int64     `json:"wins"`
	Losses       int64     `json:"losses"`
	TotalMatches int64     `json:"total_matches"`
	WinRate      float64   `json:"win_rate"`
	LastUpdated  time.Time `json:"last_updated"`
}

// RecomputeWinRate refreshes the derived rate from the raw counters.
func (s *PlayerStats) RecomputeWinRate() {
	if s.TotalMatches == 0 {
		s.WinRate = 0
		return
	}
	s.WinRate = float64(s.Wins) / float64(s.TotalMatches)
}
