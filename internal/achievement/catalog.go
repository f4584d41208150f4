// internal/achievement/catalog.go
package achievement

import "github.com/consistency-app/consistency-server/internal/league"

// Rarity buckets achievements for display.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Stats is the cumulative snapshot predicates are evaluated against.
// Callers must pass the freshest snapshot available: evaluating against stale
// numbers can miss unlocks until the next stat-mutating action.
type Stats struct {
	TotalPoints     int         `json:"total_points"`
	CurrentStreak   int         `json:"current_streak"`
	HabitsCompleted int         `json:"habits_completed"`
	HabitsCreated   int         `json:"habits_created"`
	FriendsCount    int         `json:"friends_count"`
	LikesGiven      int         `json:"likes_given"`
	CommentsWritten int         `json:"comments_written"`
	League          league.Tier `json:"league"`
}

// Achievement is a static catalog entry. Check is nil for entries that are
// never unlocked automatically (time-of-day and streak-recovery specials the
// product surfaces but does not yet track).
type Achievement struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Icon        string           `json:"icon"`
	Rarity      Rarity           `json:"rarity"`
	Check       func(Stats) bool `json:"-"`
}

// Catalog is the fixed achievement list. Evaluation order is list order.
var Catalog = []Achievement{
	// Getting started
	{ID: "first_steps", Name: "First Steps", Description: "Complete your first habit.", Icon: "🌱", Rarity: RarityCommon,
		Check: func(s Stats) bool { return s.HabitsCompleted >= 1 }},
	{ID: "habit_creator", Name: "Habit Creator", Description: "Create your first habit.", Icon: "📝", Rarity: RarityCommon,
		Check: func(s Stats) bool { return s.HabitsCreated >= 1 }},

	// Streak milestones
	{ID: "streak_3", Name: "Getting Started", Description: "Reach a 3-day streak.", Icon: "🔥", Rarity: RarityCommon,
		Check: func(s Stats) bool { return s.CurrentStreak >= 3 }},
	{ID: "streak_week", Name: "On Fire", Description: "Reach a 7-day streak.", Icon: "🔥", Rarity: RarityRare,
		Check: func(s Stats) bool { return s.CurrentStreak >= 7 }},
	{ID: "streak_14", Name: "Two Week Warrior", Description: "Reach a 14-day streak.", Icon: "⚔️", Rarity: RarityRare,
		Check: func(s Stats) bool { return s.CurrentStreak >= 14 }},
	{ID: "streak_month", Name: "Unstoppable", Description: "Reach a 30-day streak.", Icon: "🚀", Rarity: RarityEpic,
		Check: func(s Stats) bool { return s.CurrentStreak >= 30 }},
	{ID: "streak_60", Name: "Iron Will", Description: "Reach a 60-day streak.", Icon: "🛡️", Rarity: RarityEpic,
		Check: func(s Stats) bool { return s.CurrentStreak >= 60 }},
	{ID: "streak_100", Name: "Centurion", Description: "Reach a 100-day streak.", Icon: "💯", Rarity: RarityLegendary,
		Check: func(s Stats) bool { return s.CurrentStreak >= 100 }},
	{ID: "streak_365", Name: "Year of Discipline", Description: "Maintain a 365-day streak.", Icon: "👑", Rarity: RarityLegendary,
		Check: func(s Stats) bool { return s.CurrentStreak >= 365 }},

	// Points milestones
	{ID: "points_100", Name: "Point Starter", Description: "Earn 100 total points.", Icon: "⭐", Rarity: RarityCommon,
		Check: func(s Stats) bool { return s.TotalPoints >= 100 }},
	{ID: "points_500", Name: "Rising Star", Description: "Earn 500 total points.", Icon: "🌟", Rarity: RarityCommon,
		Check: func(s Stats) bool { return s.TotalPoints >= 500 }},
	{ID: "point_collector", Name: "Treasure Hunter", Description: "Earn 1,000 total points.", Icon: "💎", Rarity: RarityRare,
		Check: func(s Stats) bool { return s.TotalPoints >= 1000 }},
	{ID: "points_5000", Name: "Point Master", Description: "Earn 5,000 total points.", Icon: "💰", Rarity: RarityEpic,
		Check: func(s Stats) bool { return s.TotalPoints >= 5000 }},
	{ID: "points_10000", Name: "Legend", Description: "Earn 10,000 total points.", Icon: "🏆", Rarity: RarityLegendary,
		Check: func(s Stats) bool { return s.TotalPoints >= 10000 }},

	// Social
	{ID: "first_friend", Name: "Friendly", Description: "Add your first friend.", Icon: "🤝", Rarity: RarityCommon,
		Check: func(s Stats) bool { return s.FriendsCount >= 1 }},
	{ID: "social_butterfly", Name: "Social Butterfly", Description: "Add 5 friends.", Icon: "🦋", Rarity: RarityRare,
		Check: func(s Stats) bool { return s.FriendsCount >= 5 }},
	{ID: "popular", Name: "Popular", Description: "Add 10 friends.", Icon: "🌟", Rarity: RarityEpic,
		Check: func(s Stats) bool { return s.FriendsCount >= 10 }},
	{ID: "first_comment", Name: "Encourager", Description: "Leave your first comment.", Icon: "💬", Rarity: RarityCommon,
		Check: func(s Stats) bool { return s.CommentsWritten >= 1 }},
	{ID: "first_like", Name: "Supporter", Description: "Like your first post.", Icon: "❤️", Rarity: RarityCommon,
		Check: func(s Stats) bool { return s.LikesGiven >= 1 }},

	// Habit milestones
	{ID: "habit_5", Name: "Multi-Tasker", Description: "Create 5 different habits.", Icon: "📚", Rarity: RarityRare,
		Check: func(s Stats) bool { return s.HabitsCreated >= 5 }},
	{ID: "habit_10", Name: "Habit Collector", Description: "Create 10 different habits.", Icon: "🗂️", Rarity: RarityEpic,
		Check: func(s Stats) bool { return s.HabitsCreated >= 10 }},
	{ID: "completions_50", Name: "Committed", Description: "Complete 50 total habits.", Icon: "✅", Rarity: RarityRare,
		Check: func(s Stats) bool { return s.HabitsCompleted >= 50 }},
	{ID: "completions_100", Name: "Dedicated", Description: "Complete 100 total habits.", Icon: "🎯", Rarity: RarityEpic,
		Check: func(s Stats) bool { return s.HabitsCompleted >= 100 }},
	{ID: "completions_500", Name: "Master of Habits", Description: "Complete 500 total habits.", Icon: "🏅", Rarity: RarityLegendary,
		Check: func(s Stats) bool { return s.HabitsCompleted >= 500 }},

	// Specials, not auto-evaluated yet
	{ID: "profile_complete", Name: "Identity Forged", Description: "Complete your profile setup.", Icon: "🎭", Rarity: RarityCommon},
	{ID: "early_bird", Name: "Early Bird", Description: "Complete a habit before 6 AM.", Icon: "🌅", Rarity: RarityRare},
	{ID: "night_owl", Name: "Night Owl", Description: "Complete a habit after 11 PM.", Icon: "🦉", Rarity: RarityRare},
	{ID: "perfectionist", Name: "Perfectionist", Description: "Complete all habits in a single day.", Icon: "✨", Rarity: RarityEpic},
	{ID: "weekend_warrior", Name: "Weekend Warrior", Description: "Complete habits on both Saturday and Sunday.", Icon: "🗓️", Rarity: RarityCommon},
	{ID: "comeback_kid", Name: "Comeback Kid", Description: "Resume your streak after a break.", Icon: "🔄", Rarity: RarityRare},

	// League milestones
	{ID: "league_bronze", Name: "Bronze Contender", Description: "Reach Bronze league.", Icon: "🥉", Rarity: RarityCommon,
		Check: func(s Stats) bool { return league.AtLeast(s.League, league.TierBronze) }},
	{ID: "league_silver", Name: "Silver Challenger", Description: "Reach Silver league.", Icon: "🥈", Rarity: RarityRare,
		Check: func(s Stats) bool { return league.AtLeast(s.League, league.TierSilver) }},
	{ID: "league_gold", Name: "Gold Champion", Description: "Reach Gold league.", Icon: "🥇", Rarity: RarityRare,
		Check: func(s Stats) bool { return league.AtLeast(s.League, league.TierGold) }},
	{ID: "league_diamond", Name: "Diamond Elite", Description: "Reach Diamond league.", Icon: "💎", Rarity: RarityEpic,
		Check: func(s Stats) bool { return league.AtLeast(s.League, league.TierDiamond) }},
	{ID: "league_radiant", Name: "Radiant", Description: "Reach the highest league: Radiant.", Icon: "☀️", Rarity: RarityLegendary,
		Check: func(s Stats) bool { return league.AtLeast(s.League, league.TierRadiant) }},
}

// ByID looks an achievement up in the catalog.
func ByID(id string) (Achievement, bool) {
	for _, a := range Catalog {
		if a.ID == id {
			return a, true
		}
	}
	return Achievement{}, false
}

// Evaluate returns the IDs of catalog entries whose predicate holds for stats
// and that are not already in unlocked, in catalog order.
//
// Evaluate is pure: persisting the returned IDs (exactly once, tolerating
// duplicate-insert conflicts) is the caller's job. Once the result is merged
// into unlocked, re-evaluating the same snapshot returns nothing.
func Evaluate(stats Stats, unlocked map[string]bool) []string {
	var newly []string
	for _, a := range Catalog {
		if a.Check == nil || unlocked[a.ID] {
			continue
		}
		if a.Check(stats) {
			newly = append(newly, a.ID)
		}
	}
	return newly
}
