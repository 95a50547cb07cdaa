package models

import "time"

// Match lifecycle states. A match moves WAITING → COMPLETED or
// WAITING → CANCELLED exactly once and never reverses.
const (
	MatchStateWaiting   = "WAITING"
	MatchStateCompleted = "COMPLETED"
	MatchStateCancelled = "CANCELLED"
)

// PlayerSubmission is one player's entry into a match: their score for the
// round plus enough identity to resolve and notify.
type PlayerSubmission struct {
	Name           string    `json:"name"`
	Score          int64     `json:"score"`
	Level          int       `json:"level"`
	ExternalUserID string    `json:"external_user_id,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// Match records a single head-to-head between two async submissions.
// Player2 is set iff the match completed; a cancelled match never gained one.
// Matches are kept forever for history and idempotent replay.
type Match struct {
	ID          string            `json:"id"`
	Player1     PlayerSubmission  `json:"player1"`
	Player2     *PlayerSubmission `json:"player2,omitempty"`
	State       string            `json:"state"`
	CreatedAt   time.Time         `json:"created_at"`
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty"`
	Winner      string            `json:"winner,omitempty"`
	TotalScore  int64             `json:"total_score"`
}

// IsWaiting reports whether the match is still open for a second player.
func (m *Match) IsWaiting() bool { return m.State == MatchStateWaiting }

// LobbySummary is the lightweight view of an open lobby returned to
// browsing players.
type LobbySummary struct {
	MatchID      string    `json:"match_id"`
	CreatorName  string    `json:"creator_name"`
	CreatorScore int64     `json:"creator_score"`
	CreatorLevel int       `json:"creator_level"`
	CreatedAt    time.Time `json:"created_at"`
}

// MatchResolution is the deterministic outcome computed once both
// submissions are known.
type MatchResolution struct {
	Winner      string `json:"winner"`
	Loser       string `json:"loser"`
	WinnerScore int64  `json:"winner_score"`
	LoserScore  int64  `json:"loser_score"`
	IsTie       bool   `json:"is_tie"`
	TotalScore  int64  `json:"total_score"`
}

// JoinResult is the full response to a successful join: the completed match
// and how it resolved.
type JoinResult struct {
	Match      *Match           `json:"match"`
	Resolution *MatchResolution `json:"resolution"`
}

// MatchResolvedEvent is the payload pushed to the notification sink after a
// match resolves. Delivery is best-effort and one-way.
type MatchResolvedEvent struct {
	MatchID    string    `json:"match_id"`
	Winner     string    `json:"winner"`
	Loser      string    `json:"loser"`
	Player1    string    `json:"player1"`
	Player2    string    `json:"player2"`
	TotalScore int64     `json:"total_score"`
	IsTie      bool      `json:"is_tie"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// MatchmakingStats is the aggregate counters view for dashboards.
type MatchmakingStats struct {
	OpenLobbies   int64 `json:"open_lobbies"`
	TotalMatches  int64 `json:"total_matches"`
	ActivePlayers int64 `json:"active_players"`
}
