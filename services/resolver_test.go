package services_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"match-lobby-system/models"
	"match-lobby-system/services"
)

func matchWith(p1, p2 models.PlayerSubmission) *models.Match {
	return &models.Match{
		ID:      "test-match",
		Player1: p1,
		Player2: &p2,
		State:   models.MatchStateWaiting,
	}
}

func TestResolveMatchHigherScoreWins(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m := matchWith(
		models.PlayerSubmission{Name: "alice", Score: 50, Level: 3, SubmittedAt: base},
		models.PlayerSubmission{Name: "bob", Score: 70, Level: 3, SubmittedAt: base},
	)

	res := services.ResolveMatch(m)
	assert.Equal(t, "bob", res.Winner)
	assert.Equal(t, "alice", res.Loser)
	assert.Equal(t, int64(70), res.WinnerScore)
	assert.Equal(t, int64(50), res.LoserScore)
	assert.False(t, res.IsTie)
	assert.Equal(t, int64(120), res.TotalScore)
}

func TestResolveMatchIsDeterministic(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m := matchWith(
		models.PlayerSubmission{Name: "alice", Score: 50, Level: 2, SubmittedAt: base},
		models.PlayerSubmission{Name: "bob", Score: 70, Level: 9, SubmittedAt: base.Add(time.Minute)},
	)

	first := services.ResolveMatch(m)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, services.ResolveMatch(m))
	}
}

func TestResolveMatchTieBreakByLevel(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m := matchWith(
		models.PlayerSubmission{Name: "alice", Score: 60, Level: 3, SubmittedAt: base},
		models.PlayerSubmission{Name: "bob", Score: 60, Level: 5, SubmittedAt: base},
	)

	res := services.ResolveMatch(m)
	assert.Equal(t, "bob", res.Winner)
	assert.True(t, res.IsTie)
}

func TestResolveMatchTieBreakByEarlierSubmission(t *testing.T) {
	// equal score and level: whoever submitted first wins
	m := matchWith(
		models.PlayerSubmission{Name: "a", Score: 60, Level: 3, SubmittedAt: time.Unix(100, 0)},
		models.PlayerSubmission{Name: "b", Score: 60, Level: 3, SubmittedAt: time.Unix(50, 0)},
	)

	res := services.ResolveMatch(m)
	assert.Equal(t, "b", res.Winner)
	assert.Equal(t, "a", res.Loser)
	assert.True(t, res.IsTie)
}

func TestResolveMatchCreatorWinsFullTie(t *testing.T) {
	at := time.Unix(100, 0)
	m := matchWith(
		models.PlayerSubmission{Name: "a", Score: 60, Level: 3, SubmittedAt: at},
		models.PlayerSubmission{Name: "b", Score: 60, Level: 3, SubmittedAt: at},
	)

	res := services.ResolveMatch(m)
	assert.Equal(t, "a", res.Winner)
}

func TestResolveMatchTotalOrder(t *testing.T) {
	// any two distinct submissions produce exactly one winner and one loser
	subs := []models.PlayerSubmission{
		{Name: "p1", Score: 10, Level: 1, SubmittedAt: time.Unix(1, 0)},
		{Name: "p2", Score: 10, Level: 2, SubmittedAt: time.Unix(2, 0)},
		{Name: "p3", Score: 20, Level: 1, SubmittedAt: time.Unix(3, 0)},
		{Name: "p4", Score: 20, Level: 1, SubmittedAt: time.Unix(4, 0)},
	}
	for i := range subs {
		for j := range subs {
			if i == j {
				continue
			}
			res := services.ResolveMatch(matchWith(subs[i], subs[j]))
			assert.NotEqual(t, res.Winner, res.Loser)
			assert.Contains(t, []string{subs[i].Name, subs[j].Name}, res.Winner)
			assert.Contains(t, []string{subs[i].Name, subs[j].Name}, res.Loser)
		}
	}
}
