// internal/services/achievements.go
package services

import (
	"fmt"
	"time"

	"github.com/consistency-app/consistency-server/internal/achievement"
	"github.com/consistency-app/consistency-server/internal/database"
	"github.com/consistency-app/consistency-server/internal/logger"
	"github.com/consistency-app/consistency-server/internal/models"
)

// AchievementService persists unlocks for the pure catalog evaluator.
type AchievementService struct {
	db  *database.DB
	log *logger.Log
}

func NewAchievementService(db *database.DB) *AchievementService {
	return &AchievementService{db: db, log: logger.New()}
}

// UnlockedSet returns the IDs the user has already unlocked.
func (s *AchievementService) UnlockedSet(userID string) (map[string]bool, error) {
	var ids []string
	if err := s.db.Select(&ids, `SELECT achievement_id FROM user_achievements WHERE user_id = ?`, userID); err != nil {
		return nil, fmt.Errorf("failed to load unlocked achievements: %w", err)
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// Unlock persists one unlock. The insert is idempotent: a concurrent or
// repeated unlock of the same pair is swallowed by the primary key.
func (s *AchievementService) Unlock(userID, achievementID string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO user_achievements (user_id, achievement_id, unlocked_at) VALUES (?, ?, ?)`,
		userID, achievementID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to unlock achievement %s: %w", achievementID, err)
	}
	return nil
}

// EvaluateNow builds the freshest stats snapshot for the user, runs the
// catalog, persists every newly-qualifying ID, and returns them in catalog
// order. Callers invoke it after every stat-mutating action; a stale snapshot
// can miss unlocks, so the snapshot is always read back from the store here.
func (s *AchievementService) EvaluateNow(userID string) ([]string, error) {
	stats, err := s.statsSnapshot(userID)
	if err != nil {
		return nil, err
	}
	unlocked, err := s.UnlockedSet(userID)
	if err != nil {
		return nil, err
	}

	newly := achievement.Evaluate(stats, unlocked)
	for _, id := range newly {
		if err := s.Unlock(userID, id); err != nil {
			return nil, err
		}
	}
	return newly, nil
}

func (s *AchievementService) statsSnapshot(userID string) (achievement.Stats, error) {
	var row models.UserStats
	query := `SELECT id AS user_id, points, current_streak, longest_streak, habits_completed,
			  habits_created, likes_given, comments_written
			  FROM users WHERE id = ?`
	if err := s.db.Get(&row, query, userID); err != nil {
		return achievement.Stats{}, fmt.Errorf("failed to read stats snapshot: %w", err)
	}
	row.RecomputeLeague()

	var friends int
	if err := s.db.Get(&friends, `SELECT COUNT(*) FROM follows WHERE follower_id = ?`, userID); err != nil {
		return achievement.Stats{}, fmt.Errorf("failed to count friends: %w", err)
	}

	return achievement.Stats{
		TotalPoints:     row.TotalPoints,
		CurrentStreak:   row.CurrentStreak,
		HabitsCompleted: row.HabitsCompleted,
		HabitsCreated:   row.HabitsCreated,
		FriendsCount:    friends,
		LikesGiven:      row.LikesGiven,
		CommentsWritten: row.CommentsWritten,
		League:          row.League,
	}, nil
}

// ListForUser merges the catalog with the user's unlock rows for display.
func (s *AchievementService) ListForUser(userID string) ([]models.AchievementView, error) {
	var rows []models.UserAchievement
	err := s.db.Select(&rows,
		`SELECT user_id, achievement_id, unlocked_at FROM user_achievements WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}

	unlockedAt := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		unlockedAt[r.AchievementID] = r.UnlockedAt
	}

	views := make([]models.AchievementView, 0, len(achievement.Catalog))
	for _, a := range achievement.Catalog {
		v := models.AchievementView{
			ID:          a.ID,
			Name:        a.Name,
			Description: a.Description,
			Icon:        a.Icon,
			Rarity:      string(a.Rarity),
		}
		if t, ok := unlockedAt[a.ID]; ok {
			v.Unlocked = true
			tt := t
			v.UnlockedAt = &tt
		}
		views = append(views, v)
	}
	return views, nil
}
