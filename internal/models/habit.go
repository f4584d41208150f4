// internal/models/habit.go
package models

import "time"

// HabitCompletionPoints is the fixed award for one proof-backed completion.
const HabitCompletionPoints = 10

// HabitFrequency is how often a habit is meant to be completed.
type HabitFrequency string

const (
	FrequencyDaily  HabitFrequency = "daily"
	FrequencyWeekly HabitFrequency = "weekly"
	FrequencyYearly HabitFrequency = "yearly"
)

// Habit belongs to exactly one user. The streak counters live on the habit row
// and are maintained by the completion engine; CompletedToday is derived from
// LastCompletedOn against today's UTC date, never stored.
type Habit struct {
	ID               string         `json:"id" db:"id"`
	UserID           string         `json:"user_id" db:"user_id"`
	Name             string         `json:"name" db:"name"`
	Description      string         `json:"description" db:"description"`
	Icon             string         `json:"icon" db:"icon"`
	Color            string         `json:"color" db:"color"`
	Frequency        HabitFrequency `json:"frequency" db:"frequency"`
	CurrentStreak    int            `json:"current_streak" db:"current_streak"`
	LongestStreak    int            `json:"longest_streak" db:"longest_streak"`
	TotalCompletions int            `json:"total_completions" db:"total_completions"`
	LastCompletedOn  *string        `json:"last_completed_on" db:"last_completed_on"` // YYYY-MM-DD, UTC
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	ArchivedAt       *time.Time     `json:"archived_at" db:"archived_at"`
	CompletedToday   bool           `json:"completed_today" db:"-"`
}

// HabitCompletion is an immutable completion event with photographic proof.
type HabitCompletion struct {
	ID            string    `json:"id" db:"id"`
	HabitID       string    `json:"habit_id" db:"habit_id"`
	UserID        string    `json:"user_id" db:"user_id"`
	CompletedAt   time.Time `json:"completed_at" db:"completed_at"`
	CompletedOn   string    `json:"completed_on" db:"completed_on"` // YYYY-MM-DD, UTC day of CompletedAt
	ProofImageURL string    `json:"proof_image_url" db:"proof_image_url"`
	Caption       string    `json:"caption" db:"caption"`
	PointsEarned  int       `json:"points_earned" db:"points_earned"`
	StreakCount   int       `json:"streak_count" db:"streak_count"`
}

// CreateHabitRequest represents the request to create a habit.
type CreateHabitRequest struct {
	Name        string         `json:"name" validate:"required,min=1,max=60"`
	Description string         `json:"description" validate:"max=300"`
	Icon        string         `json:"icon"`
	Color       string         `json:"color"`
	Frequency   HabitFrequency `json:"frequency"`
}

// CompleteHabitRequest carries the proof for one completion.
type CompleteHabitRequest struct {
	ProofImageURL string `json:"proof_image_url" validate:"required"`
	Caption       string `json:"caption" validate:"max=300"`
}

// HeatmapDay is one cell of the completion heatmap.
type HeatmapDay struct {
	Date  string `json:"date" db:"completed_on"` // YYYY-MM-DD
	Count int    `json:"count" db:"count"`
	Level int    `json:"level" db:"-"` // 0-4 intensity bucket
}

// DayKey formats t's UTC calendar day the way completion rows store it.
// All day-boundary arithmetic in the engine uses UTC.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
