package storage

import "fmt"

// All engine state lives under the MM: prefix. These keys are the only shared
// mutable state; they must only be written through Store.Atomically so the
// watch/transaction discipline holds across engine instances.

// MatchKey holds the JSON-encoded match record.
func MatchKey(matchID string) string {
	return fmt.Sprintf("MM:MATCH:%s", matchID)
}

// OpenLobbiesKey is the sorted set of WAITING match IDs scored by creation
// time (oldest first).
func OpenLobbiesKey() string {
	return "MM:LOBBY:OPEN"
}

// WaitingLockKey maps a player name to the ID of the one WAITING match they
// own. Present iff such a match exists.
func WaitingLockKey(playerName string) string {
	return fmt.Sprintf("MM:WAITING:%s", playerName)
}

// PlayerStatsKey holds the JSON-encoded cumulative record for a player.
func PlayerStatsKey(playerName string) string {
	return fmt.Sprintf("MM:STATS:%s", playerName)
}

// PlayerMatchesKey is the per-player sorted set of match IDs scored by the
// time the match closed for that player.
func PlayerMatchesKey(playerName string) string {
	return fmt.Sprintf("MM:PLAYER-MATCHES:%s", playerName)
}

// KnownPlayersKey is the set of every player name ever seen.
func KnownPlayersKey() string {
	return "MM:PLAYERS"
}

// TotalMatchesKey counts every match ever created.
func TotalMatchesKey() string {
	return "MM:TOTAL-MATCHES"
}

// ClosedMatchesKey is the sorted set of matches that left WAITING, scored by
// close time. The archive worker reads it incrementally.
func ClosedMatchesKey() string {
	return "MM:MATCHES:CLOSED"
}

// IdempotencyKey holds a TTL'd cached response for a client request key.
func IdempotencyKey(requestKey string) string {
	return fmt.Sprintf("MM:IDEM:%s", requestKey)
}
