package achievement

import (
	"testing"

	"github.com/consistency-app/consistency-server/internal/league"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unlockedSet(ids ...string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func TestCatalogIDsUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, a := range Catalog {
		require.False(t, seen[a.ID], "duplicate catalog id %q", a.ID)
		seen[a.ID] = true
	}
}

func TestEvaluateFirstCompletion(t *testing.T) {
	stats := Stats{TotalPoints: 10, HabitsCompleted: 1, CurrentStreak: 1, League: league.TierUnranked}

	newly := Evaluate(stats, unlockedSet())
	assert.Contains(t, newly, "first_steps")
	assert.NotContains(t, newly, "points_100")
	assert.NotContains(t, newly, "streak_3")
}

func TestEvaluatePointsBoundary(t *testing.T) {
	stats := Stats{TotalPoints: 100, HabitsCompleted: 10, League: league.TierIron}

	newly := Evaluate(stats, unlockedSet("first_steps"))
	assert.Contains(t, newly, "points_100")

	stats.TotalPoints = 99
	assert.NotContains(t, Evaluate(stats, unlockedSet("first_steps")), "points_100")
}

func TestEvaluateStreakWeek(t *testing.T) {
	stats := Stats{CurrentStreak: 7, HabitsCompleted: 7, TotalPoints: 70}
	newly := Evaluate(stats, unlockedSet("first_steps", "streak_3"))
	assert.Contains(t, newly, "streak_week")
}

func TestEvaluateLeagueThresholds(t *testing.T) {
	stats := Stats{League: league.TierGold}
	newly := Evaluate(stats, unlockedSet())
	assert.Contains(t, newly, "league_bronze")
	assert.Contains(t, newly, "league_silver")
	assert.Contains(t, newly, "league_gold")
	assert.NotContains(t, newly, "league_diamond")
	assert.NotContains(t, newly, "league_radiant")
}

func TestEvaluateIdempotent(t *testing.T) {
	stats := Stats{TotalPoints: 1200, CurrentStreak: 14, HabitsCompleted: 60, FriendsCount: 6, League: league.TierGold}

	unlocked := unlockedSet()
	first := Evaluate(stats, unlocked)
	require.NotEmpty(t, first)

	for _, id := range first {
		unlocked[id] = true
	}
	assert.Empty(t, Evaluate(stats, unlocked), "second pass over merged set must unlock nothing")
}

func TestEvaluateMonotonic(t *testing.T) {
	lo := Stats{TotalPoints: 120, CurrentStreak: 3, HabitsCompleted: 5, FriendsCount: 1, League: league.TierIron}
	hi := Stats{TotalPoints: 6000, CurrentStreak: 30, HabitsCompleted: 100, FriendsCount: 10,
		HabitsCreated: 10, LikesGiven: 3, CommentsWritten: 2, League: league.TierRadiant}

	loSet := Evaluate(lo, unlockedSet())
	hiSet := Evaluate(hi, unlockedSet())

	hiLookup := unlockedSet(hiSet...)
	for _, id := range loSet {
		assert.True(t, hiLookup[id], "dominating stats must unlock %q too", id)
	}
}

func TestEvaluateCatalogOrder(t *testing.T) {
	stats := Stats{TotalPoints: 10000, CurrentStreak: 365, HabitsCompleted: 500, FriendsCount: 10,
		HabitsCreated: 10, LikesGiven: 1, CommentsWritten: 1, League: league.TierRadiant}

	newly := Evaluate(stats, unlockedSet())

	pos := map[string]int{}
	for i, a := range Catalog {
		pos[a.ID] = i
	}
	for i := 1; i < len(newly); i++ {
		assert.Less(t, pos[newly[i-1]], pos[newly[i]], "unlock order must follow catalog order")
	}
}

func TestEvaluateSkipsManualEntries(t *testing.T) {
	// Maxed-out stats still never auto-unlock the special entries.
	stats := Stats{TotalPoints: 1 << 20, CurrentStreak: 1000, HabitsCompleted: 1000, FriendsCount: 100,
		HabitsCreated: 100, LikesGiven: 100, CommentsWritten: 100, League: league.TierRadiant}
	newly := Evaluate(stats, unlockedSet())
	for _, id := range []string{"profile_complete", "early_bird", "night_owl", "perfectionist", "weekend_warrior", "comeback_kid"} {
		assert.NotContains(t, newly, id)
	}
}

func TestByID(t *testing.T) {
	a, ok := ByID("first_steps")
	require.True(t, ok)
	assert.Equal(t, "First Steps", a.Name)

	_, ok = ByID("no_such_achievement")
	assert.False(t, ok)
}
