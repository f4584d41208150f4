// internal/models/social.go
package models

import "time"

// FeedPost is created exactly once per proof-bearing completion. Likes and
// Comments are projections over the likes/comments tables; IsLiked is filled
// per-viewer at query time.
type FeedPost struct {
	ID            string    `json:"id" db:"id"`
	UserID        string    `json:"user_id" db:"user_id"`
	Username      string    `json:"username" db:"username"`
	DisplayName   string    `json:"display_name" db:"display_name"`
	AvatarURL     string    `json:"avatar_url" db:"avatar_url"`
	HabitID       string    `json:"habit_id" db:"habit_id"`
	HabitName     string    `json:"habit_name" db:"habit_name"`
	HabitIcon     string    `json:"habit_icon" db:"habit_icon"`
	ProofImageURL string    `json:"proof_image_url" db:"proof_image_url"`
	Caption       string    `json:"caption" db:"caption"`
	PointsEarned  int       `json:"points_earned" db:"points_earned"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	Likes         int       `json:"likes" db:"likes"`
	Comments      int       `json:"comments" db:"comments"`
	IsLiked       bool      `json:"is_liked" db:"is_liked"`
}

// Comment belongs to a post, append-only, ordered by creation time.
type Comment struct {
	ID          string    `json:"id" db:"id"`
	PostID      string    `json:"post_id" db:"post_id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Username    string    `json:"username" db:"username"`
	DisplayName string    `json:"display_name" db:"display_name"`
	AvatarURL   string    `json:"avatar_url" db:"avatar_url"`
	Content     string    `json:"content" db:"content"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Friend is a directed follow edge projected with the friend's scoring fields.
type Friend struct {
	ID            string `json:"id" db:"id"`
	Username      string `json:"username" db:"username"`
	DisplayName   string `json:"display_name" db:"display_name"`
	AvatarURL     string `json:"avatar_url" db:"avatar_url"`
	TotalPoints   int    `json:"total_points" db:"points"`
	CurrentStreak int    `json:"current_streak" db:"current_streak"`
	League        string `json:"league" db:"-"`
	LeagueRank    int    `json:"league_rank" db:"-"`
}

// Message is one direct message between two users.
type Message struct {
	ID          string     `json:"id" db:"id"`
	SenderID    string     `json:"sender_id" db:"sender_id"`
	RecipientID string     `json:"recipient_id" db:"recipient_id"`
	Content     string     `json:"content" db:"content"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ReadAt      *time.Time `json:"read_at" db:"read_at"`
}

// Conversation is the derived per-partner view: latest message plus unread count.
type Conversation struct {
	Partner     Friend  `json:"partner"`
	LastMessage Message `json:"last_message"`
	Unread      int     `json:"unread"`
}

// LeaderboardEntry is one row of a points leaderboard.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id" db:"id"`
	Username    string `json:"username" db:"username"`
	DisplayName string `json:"display_name" db:"display_name"`
	AvatarURL   string `json:"avatar_url" db:"avatar_url"`
	TotalPoints int    `json:"total_points" db:"points"`
	League      string `json:"league"`
}
