// internal/models/achievement.go
package models

import "time"

// UserAchievement is one unlocked (user, achievement) join row.
// The pair is unique; unlocking is a one-way transition.
type UserAchievement struct {
	UserID        string    `json:"user_id" db:"user_id"`
	AchievementID string    `json:"achievement_id" db:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at" db:"unlocked_at"`
}

// AchievementView is a catalog entry merged with the user's unlock state.
type AchievementView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	Rarity      string     `json:"rarity"`
	Unlocked    bool       `json:"unlocked"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
}
