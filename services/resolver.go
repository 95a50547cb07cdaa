package services

import "match-lobby-system/models"

// ResolveMatch deterministically decides the winner of a match with both
// submissions present. Pure, no I/O; calling it twice on the same match
// always yields the same outcome.
//
// Tie-break order: higher score, then higher level, then earlier submission.
// SubmittedAt values come from distinct store round-trips so the chain is a
// total order in practice; if even the timestamps collide, player1 (the
// lobby creator, who was there first) wins.
func ResolveMatch(m *models.Match) *models.MatchResolution {
	p1, p2 := m.Player1, *m.Player2

	winner, loser := p1, p2
	switch {
	case p2.Score > p1.Score:
		winner, loser = p2, p1
	case p2.Score < p1.Score:
		// p1 stays winner
	case p2.Level > p1.Level:
		winner, loser = p2, p1
	case p2.Level < p1.Level:
		// p1 stays winner
	case p2.SubmittedAt.Before(p1.SubmittedAt):
		winner, loser = p2, p1
	}

	return &models.MatchResolution{
		Winner:      winner.Name,
		Loser:       loser.Name,
		WinnerScore: winner.Score,
		LoserScore:  loser.Score,
		IsTie:       p1.Score == p2.Score,
		TotalScore:  p1.Score + p2.Score,
	}
}
