// internal/models/user.go
package models

import (
	"time"

	"github.com/consistency-app/consistency-server/internal/league"
	"golang.org/x/crypto/bcrypt"
)

// User represents a user account and its profile row.
type User struct {
	ID          string     `json:"id" db:"id"`
	Username    string     `json:"username" db:"username"`
	Email       string     `json:"email" db:"email"`
	Password    string     `json:"-" db:"password_hash"` // Never expose in JSON
	DisplayName string     `json:"display_name" db:"display_name"`
	AvatarURL   string     `json:"avatar_url" db:"avatar_url"`
	Bio         string     `json:"bio" db:"bio"`
	Theme       string     `json:"theme" db:"theme"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at" db:"last_login_at"`
	IsActive    bool       `json:"is_active" db:"is_active"`
}

// UserStats is the cumulative scoring snapshot kept on the profile row.
// League and LeagueRank are derived from TotalPoints on every read, never stored.
type UserStats struct {
	UserID          string      `json:"user_id" db:"user_id"`
	TotalPoints     int         `json:"total_points" db:"points"`
	CurrentStreak   int         `json:"current_streak" db:"current_streak"`
	LongestStreak   int         `json:"longest_streak" db:"longest_streak"`
	HabitsCompleted int         `json:"habits_completed" db:"habits_completed"`
	HabitsCreated   int         `json:"habits_created" db:"habits_created"`
	LikesGiven      int         `json:"likes_given" db:"likes_given"`
	CommentsWritten int         `json:"comments_written" db:"comments_written"`
	League          league.Tier `json:"league" db:"-"`
	LeagueRank      league.Rank `json:"league_rank" db:"-"`
}

// RecomputeLeague re-derives the league fields from the point total.
// Must be called after every point mutation; the tier is never cached.
func (s *UserStats) RecomputeLeague() {
	s.League, s.LeagueRank = league.Classify(s.TotalPoints)
}

// CreateUserRequest represents the request to create a new user
type CreateUserRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=20"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	DisplayName string `json:"display_name" validate:"required,min=1,max=50"`
	ReferredBy  string `json:"referred_by,omitempty"`
}

// LoginRequest represents a login attempt
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ProfileUpdateRequest represents a profile update request
type ProfileUpdateRequest struct {
	DisplayName string `json:"display_name" validate:"required,min=1,max=50"`
	Email       string `json:"email" validate:"required,email"`
	AvatarURL   string `json:"avatar_url"`
	Bio         string `json:"bio" validate:"max=300"`
	Theme       string `json:"theme"`
}

// PasswordChangeRequest represents a password change request
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6"`
}

// SetPassword hashes and sets the user's password
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

// CheckPassword verifies a password against the user's hash
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}
