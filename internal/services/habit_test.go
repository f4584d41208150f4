package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consistency-app/consistency-server/internal/models"
	"github.com/consistency-app/consistency-server/internal/state"
)

func TestCreateHabit(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")

	habit, newly, err := env.habits.CreateHabit(user.ID, &models.CreateHabitRequest{
		Name: "  Morning Run  ",
	})
	require.NoError(t, err)

	assert.Equal(t, "Morning Run", habit.Name)
	assert.Equal(t, models.FrequencyDaily, habit.Frequency)
	assert.Contains(t, newly, "habit_creator")

	stats, err := env.users.GetUserStats(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.HabitsCreated)
}

func TestCreateHabitValidation(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")

	_, _, err := env.habits.CreateHabit(user.ID, &models.CreateHabitRequest{Name: "   "})
	assert.ErrorIs(t, err, ErrValidation)

	_, _, err = env.habits.CreateHabit(user.ID, &models.CreateHabitRequest{
		Name: "Read", Frequency: "hourly",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCompleteHabit(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	habit := env.createHabit(t, user.ID, "Meditate")

	result := env.completeHabit(t, user.ID, habit.ID)

	assert.Equal(t, 1, result.Habit.CurrentStreak)
	assert.Equal(t, 1, result.Habit.TotalCompletions)
	assert.True(t, result.Habit.CompletedToday)
	assert.Equal(t, models.HabitCompletionPoints, result.Completion.PointsEarned)
	assert.Equal(t, models.DayKey(time.Now().UTC()), result.Completion.CompletedOn)

	assert.Equal(t, models.HabitCompletionPoints, result.Stats.TotalPoints)
	assert.Equal(t, 1, result.Stats.HabitsCompleted)
	assert.Equal(t, 1, result.Stats.CurrentStreak)
	assert.Contains(t, result.NewAchievements, "first_steps")

	// The completion produced a feed post visible to the author.
	require.NotNil(t, result.Post)
	assert.Equal(t, "Meditate", result.Post.HabitName)
	feed, err := env.social.Feed(user.ID, 10)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, result.Post.ID, feed[0].ID)
}

func TestCompleteHabitRequiresProof(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	habit := env.createHabit(t, user.ID, "Meditate")

	_, err := env.habits.CompleteHabit(user.ID, habit.ID, &models.CompleteHabitRequest{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCompleteHabitTwiceSameDay(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	habit := env.createHabit(t, user.ID, "Meditate")

	env.completeHabit(t, user.ID, habit.ID)
	_, err := env.habits.CompleteHabit(user.ID, habit.ID, &models.CompleteHabitRequest{
		ProofImageURL: "https://img.example.com/again.jpg",
	})
	assert.ErrorIs(t, err, ErrAlreadyCompleted)

	// No double award.
	stats, err := env.users.GetUserStats(user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HabitCompletionPoints, stats.TotalPoints)
	assert.Equal(t, 1, stats.HabitsCompleted)
}

func TestCompleteHabitConcurrentSubmissions(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	habit := env.createHabit(t, user.ID, "Meditate")

	// Two rapid submissions race for the per-habit latch; exactly one may win.
	start := make(chan struct{})
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = env.habits.CompleteHabit(user.ID, habit.ID, &models.CompleteHabitRequest{
				ProofImageURL: "https://img.example.com/proof.jpg",
			})
		}(i)
	}
	close(start)
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrAlreadyCompleted):
			rejected++
		default:
			t.Fatalf("unexpected completion error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	// One log row, one award.
	var logs int
	require.NoError(t, env.db.Get(&logs, `SELECT COUNT(*) FROM habit_logs WHERE habit_id = ?`, habit.ID))
	assert.Equal(t, 1, logs)

	stats, err := env.users.GetUserStats(user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HabitCompletionPoints, stats.TotalPoints)
	assert.Equal(t, 1, stats.HabitsCompleted)
}

func TestCompleteHabitStreakExtends(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	habit := env.createHabit(t, user.ID, "Meditate")

	// A completion recorded yesterday extends today.
	yesterday := models.DayKey(time.Now().UTC().AddDate(0, 0, -1))
	_, err := env.db.Exec(
		`UPDATE habits SET current_streak = 4, longest_streak = 4, total_completions = 4, last_completed_on = ? WHERE id = ?`,
		yesterday, habit.ID)
	require.NoError(t, err)

	result := env.completeHabit(t, user.ID, habit.ID)
	assert.Equal(t, 5, result.Habit.CurrentStreak)
	assert.Equal(t, 5, result.Habit.LongestStreak)
	assert.Equal(t, 5, result.Completion.StreakCount)
	assert.Equal(t, 5, result.Stats.CurrentStreak)
}

func TestCompleteHabitStreakResetsAfterGap(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	habit := env.createHabit(t, user.ID, "Meditate")

	threeDaysAgo := models.DayKey(time.Now().UTC().AddDate(0, 0, -3))
	_, err := env.db.Exec(
		`UPDATE habits SET current_streak = 9, longest_streak = 9, last_completed_on = ? WHERE id = ?`,
		threeDaysAgo, habit.ID)
	require.NoError(t, err)

	result := env.completeHabit(t, user.ID, habit.ID)
	assert.Equal(t, 1, result.Habit.CurrentStreak)
	assert.Equal(t, 9, result.Habit.LongestStreak)
}

func TestCompleteHabitOptimisticStateCommits(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	habit := env.createHabit(t, user.ID, "Meditate")

	_, err := env.sync.Hydrate(user.ID)
	require.NoError(t, err)

	env.completeHabit(t, user.ID, habit.ID)

	var points, feedLen int
	var completedToday bool
	err = env.store.View(user.ID, func(snap state.Snapshot) {
		points = snap.Stats.TotalPoints
		feedLen = len(snap.Feed)
		completedToday = snap.Habits[0].CompletedToday
	})
	require.NoError(t, err)
	assert.Equal(t, models.HabitCompletionPoints, points)
	assert.Equal(t, 1, feedLen)
	assert.True(t, completedToday)
	assert.Empty(t, env.store.PendingKeys(user.ID))
}

func TestCompleteHabitRollsBackOnPersistFailure(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	habit := env.createHabit(t, user.ID, "Meditate")

	_, err := env.sync.Hydrate(user.ID)
	require.NoError(t, err)

	// Pre-insert today's log row directly so the unique (habit_id, day) index
	// rejects the transaction while the guard still believes today is open.
	today := models.DayKey(time.Now().UTC())
	yesterday := models.DayKey(time.Now().UTC().AddDate(0, 0, -1))
	_, err = env.db.Exec(`UPDATE habits SET last_completed_on = ? WHERE id = ?`, yesterday, habit.ID)
	require.NoError(t, err)
	_, err = env.db.Exec(
		`INSERT INTO habit_logs (id, habit_id, user_id, completed_on, proof_image_url, points_earned, streak_count)
		 VALUES ('conflict', ?, ?, ?, 'x', 10, 1)`,
		habit.ID, user.ID, today)
	require.NoError(t, err)

	_, err = env.sync.Hydrate(user.ID)
	require.NoError(t, err)

	_, err = env.habits.CompleteHabit(user.ID, habit.ID, &models.CompleteHabitRequest{
		ProofImageURL: "https://img.example.com/proof.jpg",
	})
	require.Error(t, err)

	// The optimistic mutation was undone: no points, no post, no pending op.
	var points, feedLen int
	err = env.store.View(user.ID, func(snap state.Snapshot) {
		points = snap.Stats.TotalPoints
		feedLen = len(snap.Feed)
	})
	require.NoError(t, err)
	assert.Zero(t, points)
	assert.Zero(t, feedLen)
	assert.Empty(t, env.store.PendingKeys(user.ID))
}

func TestCompleteHabitSurvivesAchievementPassFailure(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	habit := env.createHabit(t, user.ID, "Meditate")

	// Break the unlock store; the persisted completion must still succeed,
	// just without new unlocks.
	_, err := env.db.Exec(`DROP TABLE user_achievements`)
	require.NoError(t, err)

	result, err := env.habits.CompleteHabit(user.ID, habit.ID, &models.CompleteHabitRequest{
		ProofImageURL: "https://img.example.com/proof.jpg",
	})
	require.NoError(t, err)
	assert.Empty(t, result.NewAchievements)
	require.NotNil(t, result.Stats)
	assert.Equal(t, models.HabitCompletionPoints, result.Stats.TotalPoints)

	var logs int
	require.NoError(t, env.db.Get(&logs, `SELECT COUNT(*) FROM habit_logs WHERE habit_id = ?`, habit.ID))
	assert.Equal(t, 1, logs)
}

func TestDeleteHabit(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	habit := env.createHabit(t, user.ID, "Meditate")

	require.NoError(t, env.habits.DeleteHabit(user.ID, habit.ID))

	habits, err := env.habits.ListHabits(user.ID)
	require.NoError(t, err)
	assert.Empty(t, habits)

	err = env.habits.DeleteHabit(user.ID, habit.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteHabitOwnership(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	habit := env.createHabit(t, alice.ID, "Meditate")

	err := env.habits.DeleteHabit(bob.ID, habit.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListCompletions(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	habit := env.createHabit(t, user.ID, "Meditate")
	env.completeHabit(t, user.ID, habit.ID)

	completions, err := env.habits.ListCompletions(user.ID, habit.ID, 0)
	require.NoError(t, err)
	require.Len(t, completions, 1)
	assert.Equal(t, habit.ID, completions[0].HabitID)
}

func TestHeatmap(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	a := env.createHabit(t, user.ID, "Meditate")
	b := env.createHabit(t, user.ID, "Run")
	env.completeHabit(t, user.ID, a.ID)
	env.completeHabit(t, user.ID, b.ID)

	heatmap, err := env.habits.Heatmap(user.ID, 30)
	require.NoError(t, err)
	require.Len(t, heatmap, 1)
	assert.Equal(t, models.DayKey(time.Now().UTC()), heatmap[0].Date)
	assert.Equal(t, 2, heatmap[0].Count)
	assert.Equal(t, 2, heatmap[0].Level)
}

func TestHeatmapLevels(t *testing.T) {
	cases := []struct{ count, level int }{
		{0, 0}, {1, 1}, {2, 2}, {3, 2}, {4, 3}, {5, 3}, {6, 4}, {20, 4},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.level, heatmapLevel(tc.count), "count=%d", tc.count)
	}
}
