// internal/services/habit.go
package services

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/consistency-app/consistency-server/internal/database"
	"github.com/consistency-app/consistency-server/internal/logger"
	"github.com/consistency-app/consistency-server/internal/models"
	"github.com/consistency-app/consistency-server/internal/state"
)

// HabitService owns habit lifecycle and the completion engine: one user action
// becomes streak bookkeeping, a point award, a league recompute, a feed post
// and an achievement pass, persisted as a single transaction.
type HabitService struct {
	db           *database.DB
	store        *state.Store
	achievements *AchievementService
	leaderboard  *LeaderboardService // optional
	broadcaster  Broadcaster        // optional
	log          *logger.Log

	inflight sync.Map // habit ID -> struct{}, single-flight latch per habit
}

func NewHabitService(db *database.DB, store *state.Store, ach *AchievementService) *HabitService {
	return &HabitService{db: db, store: store, achievements: ach, log: logger.New()}
}

// WithLeaderboard attaches best-effort leaderboard updates.
func (s *HabitService) WithLeaderboard(lb *LeaderboardService) *HabitService {
	s.leaderboard = lb
	return s
}

// WithBroadcaster attaches realtime feed notifications.
func (s *HabitService) WithBroadcaster(b Broadcaster) *HabitService {
	s.broadcaster = b
	return s
}

// CreateHabit inserts a habit and bumps the creation counters.
func (s *HabitService) CreateHabit(userID string, req *models.CreateHabitRequest) (*models.Habit, []string, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, nil, fmt.Errorf("%w: habit name is required", ErrValidation)
	}
	switch req.Frequency {
	case "":
		req.Frequency = models.FrequencyDaily
	case models.FrequencyDaily, models.FrequencyWeekly, models.FrequencyYearly:
	default:
		return nil, nil, fmt.Errorf("%w: unknown frequency %q", ErrValidation, req.Frequency)
	}

	habit := &models.Habit{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
		Color:       req.Color,
		Frequency:   req.Frequency,
		CreatedAt:   time.Now().UTC(),
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExec(`
		INSERT INTO habits (id, user_id, name, description, icon, color, frequency, created_at)
		VALUES (:id, :user_id, :name, :description, :icon, :color, :frequency, :created_at)`, habit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create habit: %w", err)
	}
	if _, err := tx.Exec(`UPDATE users SET habits_created = habits_created + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), userID); err != nil {
		return nil, nil, fmt.Errorf("failed to update creation counter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit habit: %w", err)
	}

	s.store.Update(userID, func(snap *state.Snapshot) {
		snap.Habits = append(snap.Habits, *habit)
		if snap.Stats != nil {
			snap.Stats.HabitsCreated++
		}
	})

	newly, err := s.achievements.EvaluateNow(userID)
	if err != nil {
		s.log.WithError(err).Warn("achievement pass after habit creation failed")
	}
	return habit, newly, nil
}

// GetHabit fetches one habit owned by userID.
func (s *HabitService) GetHabit(userID, habitID string) (*models.Habit, error) {
	var habit models.Habit
	query := `SELECT id, user_id, name, description, icon, color, frequency, current_streak,
			  longest_streak, total_completions, last_completed_on, created_at, archived_at
			  FROM habits WHERE id = ? AND user_id = ?`
	err := s.db.Get(&habit, query, habitID, userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: habit", ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get habit: %w", err)
	}
	s.deriveCompletedToday(&habit, time.Now())
	return &habit, nil
}

// ListHabits returns the user's active habits with CompletedToday derived
// against the current UTC date.
func (s *HabitService) ListHabits(userID string) ([]models.Habit, error) {
	var habits []models.Habit
	query := `SELECT id, user_id, name, description, icon, color, frequency, current_streak,
			  longest_streak, total_completions, last_completed_on, created_at, archived_at
			  FROM habits WHERE user_id = ? AND archived_at IS NULL ORDER BY created_at`
	if err := s.db.Select(&habits, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	now := time.Now()
	for i := range habits {
		s.deriveCompletedToday(&habits[i], now)
	}
	return habits, nil
}

func (s *HabitService) deriveCompletedToday(h *models.Habit, now time.Time) {
	h.CompletedToday = h.LastCompletedOn != nil && *h.LastCompletedOn == models.DayKey(now)
}

// CompletionResult is everything one confirmed completion produced.
type CompletionResult struct {
	Habit           *models.Habit           `json:"habit"`
	Completion      *models.HabitCompletion `json:"completion"`
	Post            *models.FeedPost        `json:"post"`
	Stats           *models.UserStats       `json:"stats"`
	NewAchievements []string                `json:"new_achievements"`
}

// CompleteHabit runs the completion state machine for one habit at daily
// granularity. The whole effect is one SQL transaction; the session-state
// mirror is applied optimistically and rolled back if persistence fails.
//
// Streaks compare UTC calendar days: a completion the day after the previous
// one extends the streak, anything later resets it to 1. A second completion
// on the same day is rejected by the guard (and, against races, by the unique
// (habit_id, completed_on) index).
func (s *HabitService) CompleteHabit(userID, habitID string, req *models.CompleteHabitRequest) (*CompletionResult, error) {
	if strings.TrimSpace(req.ProofImageURL) == "" {
		return nil, fmt.Errorf("%w: proof image is required", ErrValidation)
	}

	// Single-flight per habit: a second submission while the first is still
	// persisting must not double-apply.
	if _, loaded := s.inflight.LoadOrStore(habitID, struct{}{}); loaded {
		return nil, ErrAlreadyCompleted
	}
	defer s.inflight.Delete(habitID)

	habit, err := s.GetHabit(userID, habitID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	today := models.DayKey(now)
	yesterday := models.DayKey(now.AddDate(0, 0, -1))

	if habit.LastCompletedOn != nil && *habit.LastCompletedOn == today {
		return nil, ErrAlreadyCompleted
	}

	streak := 1
	if habit.LastCompletedOn != nil && *habit.LastCompletedOn == yesterday {
		streak = habit.CurrentStreak + 1
	}
	longest := habit.LongestStreak
	if streak > longest {
		longest = streak
	}

	completion := &models.HabitCompletion{
		ID:            uuid.NewString(),
		HabitID:       habitID,
		UserID:        userID,
		CompletedAt:   now,
		CompletedOn:   today,
		ProofImageURL: req.ProofImageURL,
		Caption:       req.Caption,
		PointsEarned:  models.HabitCompletionPoints,
		StreakCount:   streak,
	}
	post := &models.FeedPost{
		ID:            uuid.NewString(),
		UserID:        userID,
		HabitID:       habitID,
		HabitName:     habit.Name,
		HabitIcon:     habit.Icon,
		ProofImageURL: req.ProofImageURL,
		Caption:       req.Caption,
		PointsEarned:  completion.PointsEarned,
		CreatedAt:     now,
	}

	// Optimistic session-state mutation, pending until the transaction lands.
	// The apply closure snapshots the fields it touches so undo can restore
	// them exactly on rollback.
	var prevHabits []models.Habit
	var prevStats *models.UserStats
	var prevFeed []models.FeedPost
	pending, perr := s.store.Begin(userID, "complete:"+habitID,
		func(snap *state.Snapshot) {
			prevHabits = append([]models.Habit(nil), snap.Habits...)
			prevFeed = snap.Feed
			if snap.Stats != nil {
				statsCopy := *snap.Stats
				prevStats = &statsCopy
			}
			for i := range snap.Habits {
				if snap.Habits[i].ID == habitID {
					snap.Habits[i].CurrentStreak = streak
					snap.Habits[i].LongestStreak = longest
					snap.Habits[i].TotalCompletions++
					snap.Habits[i].LastCompletedOn = &completion.CompletedOn
					snap.Habits[i].CompletedToday = true
				}
			}
			if snap.Stats != nil {
				snap.Stats.TotalPoints += completion.PointsEarned
				snap.Stats.HabitsCompleted++
				if streak > snap.Stats.CurrentStreak {
					snap.Stats.CurrentStreak = streak
				}
				if snap.Stats.CurrentStreak > snap.Stats.LongestStreak {
					snap.Stats.LongestStreak = snap.Stats.CurrentStreak
				}
				snap.Stats.RecomputeLeague()
			}
			snap.Feed = append([]models.FeedPost{*post}, snap.Feed...)
		},
		func(snap *state.Snapshot) {
			snap.Habits = prevHabits
			snap.Feed = prevFeed
			snap.Stats = prevStats
		},
	)
	switch {
	case perr == nil:
		// two-phase path active
	case errors.Is(perr, state.ErrInFlight):
		return nil, ErrAlreadyCompleted
	case errors.Is(perr, state.ErrNoSession):
		pending = nil // no hydrated mirror to maintain
	default:
		return nil, perr
	}

	if err := s.persistCompletion(userID, habit, completion, post, streak, longest); err != nil {
		if pending != nil {
			pending.Rollback()
		}
		return nil, err
	}
	if pending != nil {
		pending.Commit()
	}

	// The completion is durable from here on; follow-up reads and side effects
	// degrade to warnings rather than failing a persisted completion.
	stats, err := s.freshStats(userID)
	if err != nil {
		s.log.WithError(err).Warn("stats refresh after completion failed")
		stats = nil
	}

	newly, err := s.achievements.EvaluateNow(userID)
	if err != nil {
		s.log.WithError(err).Warn("achievement pass after completion failed")
	}

	if s.leaderboard != nil && stats != nil {
		if err := s.leaderboard.SetScore(userID, stats.TotalPoints); err != nil {
			s.log.WithError(err).Warn("leaderboard update failed")
		}
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastEvent(EventPostCreated, post)
		for _, id := range newly {
			s.broadcaster.BroadcastEvent(EventAchievementUnlocked, map[string]string{
				"user_id": userID, "achievement_id": id,
			})
		}
	}

	habit.CurrentStreak = streak
	habit.LongestStreak = longest
	habit.TotalCompletions++
	habit.LastCompletedOn = &completion.CompletedOn
	habit.CompletedToday = true

	return &CompletionResult{
		Habit:           habit,
		Completion:      completion,
		Post:            post,
		Stats:           stats,
		NewAchievements: newly,
	}, nil
}

func (s *HabitService) persistCompletion(userID string, habit *models.Habit,
	completion *models.HabitCompletion, post *models.FeedPost, streak, longest int) error {

	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExec(`
		INSERT INTO habit_logs (id, habit_id, user_id, completed_at, completed_on, proof_image_url, caption, points_earned, streak_count)
		VALUES (:id, :habit_id, :user_id, :completed_at, :completed_on, :proof_image_url, :caption, :points_earned, :streak_count)`,
		completion)
	if err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE habits SET current_streak = ?, longest_streak = ?, total_completions = total_completions + 1, last_completed_on = ?
		WHERE id = ?`,
		streak, longest, completion.CompletedOn, habit.ID)
	if err != nil {
		return fmt.Errorf("failed to update habit counters: %w", err)
	}

	// User-level streak is the best streak across the user's habits.
	_, err = tx.Exec(`
		UPDATE users SET
			points = points + ?,
			habits_completed = habits_completed + 1,
			current_streak = CASE WHEN ? > current_streak THEN ? ELSE current_streak END,
			longest_streak = CASE WHEN ? > longest_streak THEN ? ELSE longest_streak END,
			updated_at = ?
		WHERE id = ?`,
		completion.PointsEarned, streak, streak, streak, streak, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to award points: %w", err)
	}

	_, err = tx.NamedExec(`
		INSERT INTO posts (id, user_id, habit_id, habit_name, habit_icon, proof_image_url, caption, points_earned, created_at)
		VALUES (:id, :user_id, :habit_id, :habit_name, :habit_icon, :proof_image_url, :caption, :points_earned, :created_at)`,
		post)
	if err != nil {
		return fmt.Errorf("failed to create feed post: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit completion: %w", err)
	}
	return nil
}

func (s *HabitService) freshStats(userID string) (*models.UserStats, error) {
	var stats models.UserStats
	query := `SELECT id AS user_id, points, current_streak, longest_streak, habits_completed,
			  habits_created, likes_given, comments_written
			  FROM users WHERE id = ?`
	if err := s.db.Get(&stats, query, userID); err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}
	stats.RecomputeLeague()
	return &stats, nil
}

// DeleteHabit removes the habit and, by cascade, its completions. The session
// state keeps the habit until the delete is confirmed so a rejected delete
// never hides a habit that still exists remotely.
func (s *HabitService) DeleteHabit(userID, habitID string) error {
	res, err := s.db.Exec(`DELETE FROM habits WHERE id = ? AND user_id = ?`, habitID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete habit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: habit", ErrNotFound)
	}

	s.store.Update(userID, func(snap *state.Snapshot) {
		habits := snap.Habits[:0]
		for _, h := range snap.Habits {
			if h.ID != habitID {
				habits = append(habits, h)
			}
		}
		snap.Habits = habits
	})
	return nil
}

// ListCompletions returns a habit's completion events, newest first.
func (s *HabitService) ListCompletions(userID, habitID string, limit int) ([]models.HabitCompletion, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var completions []models.HabitCompletion
	query := `SELECT id, habit_id, user_id, completed_at, completed_on, proof_image_url, caption, points_earned, streak_count
			  FROM habit_logs WHERE habit_id = ? AND user_id = ?
			  ORDER BY completed_at DESC LIMIT ?`
	if err := s.db.Select(&completions, query, habitID, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	return completions, nil
}

// Heatmap aggregates the user's completions per UTC day over the trailing
// window, bucketed into intensity levels 0-4.
func (s *HabitService) Heatmap(userID string, days int) ([]models.HeatmapDay, error) {
	if days <= 0 || days > 366 {
		days = 365
	}
	since := models.DayKey(time.Now().UTC().AddDate(0, 0, -days))

	var rows []models.HeatmapDay
	query := `SELECT completed_on, COUNT(*) AS count FROM habit_logs
			  WHERE user_id = ? AND completed_on >= ?
			  GROUP BY completed_on ORDER BY completed_on`
	if err := s.db.Select(&rows, query, userID, since); err != nil {
		return nil, fmt.Errorf("failed to build heatmap: %w", err)
	}
	for i := range rows {
		rows[i].Level = heatmapLevel(rows[i].Count)
	}
	return rows, nil
}

func heatmapLevel(count int) int {
	switch {
	case count <= 0:
		return 0
	case count == 1:
		return 1
	case count <= 3:
		return 2
	case count <= 5:
		return 3
	default:
		return 4
	}
}
