// internal/services/user.go
package services

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/closestmatch"

	"github.com/consistency-app/consistency-server/internal/achievement"
	"github.com/consistency-app/consistency-server/internal/database"
	"github.com/consistency-app/consistency-server/internal/logger"
	"github.com/consistency-app/consistency-server/internal/models"
)

type UserService struct {
	db  *database.DB
	log *logger.Log
}

func NewUserService(db *database.DB) *UserService {
	return &UserService{db: db, log: logger.New()}
}

// CreateUser creates a new user account
func (s *UserService) CreateUser(req *models.CreateUserRequest) (*models.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", ErrValidation)
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	// Check if username or email already exists
	if exists, err := s.UsernameExists(req.Username); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("%w: username", ErrAlreadyExists)
	}

	if exists, err := s.EmailExists(req.Email); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("%w: email", ErrAlreadyExists)
	}

	user := &models.User{
		ID:          uuid.NewString(),
		Username:    req.Username,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Theme:       "cyberpunk",
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	if err := user.SetPassword(req.Password); err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
		INSERT INTO users (id, username, email, password_hash, display_name, theme, created_at, updated_at, is_active)
		VALUES (:id, :username, :email, :password_hash, :display_name, :theme, :created_at, :updated_at, :is_active)
	`

	if _, err := s.db.NamedExec(query, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// Record the referral if the signup came through an invite link.
	// Best effort: a bad ref must not block account creation.
	if req.ReferredBy != "" {
		if err := s.recordReferral(user.ID, req.ReferredBy); err != nil {
			s.log.WithError(err).Warn("failed to record referral")
		}
	}

	return user, nil
}

func (s *UserService) recordReferral(userID, referredBy string) error {
	if referredBy == userID {
		return fmt.Errorf("%w: self-referral", ErrValidation)
	}
	if _, err := s.GetUserByID(referredBy); err != nil {
		return fmt.Errorf("referrer lookup: %w", err)
	}
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO referrals (user_id, referred_by) VALUES (?, ?)`,
		userID, referredBy,
	)
	return err
}

// AuthenticateUser validates login credentials and returns the user
func (s *UserService) AuthenticateUser(req *models.LoginRequest) (*models.User, error) {
	user, err := s.GetUserByEmail(strings.TrimSpace(strings.ToLower(req.Email)))
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if !user.CheckPassword(req.Password) {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, fmt.Errorf("account is disabled")
	}

	// Update last login time
	if err := s.UpdateLastLogin(user.ID); err != nil {
		// Non-fatal, just log it
		s.log.WithError(err).Warnf("failed to update last login for user %s", user.ID)
	}

	return user, nil
}

// GetUserByID retrieves a user by their ID
func (s *UserService) GetUserByID(id string) (*models.User, error) {
	var user models.User
	query := `SELECT id, username, email, password_hash, display_name, avatar_url, bio, theme,
			  created_at, updated_at, last_login_at, is_active
			  FROM users WHERE id = ?`

	err := s.db.Get(&user, query, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user", ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// GetUserByEmail retrieves a user by their email address
func (s *UserService) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	query := `SELECT id, username, email, password_hash, display_name, avatar_url, bio, theme,
			  created_at, updated_at, last_login_at, is_active
			  FROM users WHERE email = ?`

	err := s.db.Get(&user, query, email)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user", ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// UsernameExists checks if a username is already taken
func (s *UserService) UsernameExists(username string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM users WHERE username = ?`
	err := s.db.Get(&count, query, username)
	return count > 0, err
}

// EmailExists checks if an email is already registered
func (s *UserService) EmailExists(email string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM users WHERE email = ?`
	err := s.db.Get(&count, query, email)
	return count > 0, err
}

// UpdateLastLogin updates the user's last login timestamp
func (s *UserService) UpdateLastLogin(userID string) error {
	query := `UPDATE users SET last_login_at = ? WHERE id = ?`
	_, err := s.db.Exec(query, time.Now().UTC(), userID)
	return err
}

// GetUserStats retrieves the user's scoring snapshot with the league re-derived
// from the stored point total.
func (s *UserService) GetUserStats(userID string) (*models.UserStats, error) {
	var stats models.UserStats
	query := `SELECT id AS user_id, points, current_streak, longest_streak, habits_completed,
			  habits_created, likes_given, comments_written
			  FROM users WHERE id = ?`

	err := s.db.Get(&stats, query, userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user", ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}

	stats.RecomputeLeague()
	return &stats, nil
}

// UpdateProfile allows users to update their display name, email and presentation fields
func (s *UserService) UpdateProfile(userID string, req *models.ProfileUpdateRequest) error {
	// Check if email is taken by another user
	var count int
	query := `SELECT COUNT(*) FROM users WHERE email = ? AND id != ?`
	if err := s.db.Get(&count, query, req.Email, userID); err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: email", ErrAlreadyExists)
	}

	query = `UPDATE users SET display_name = ?, email = ?, avatar_url = ?, bio = ?, theme = ?, updated_at = ?
			 WHERE id = ?`
	_, err := s.db.Exec(query, req.DisplayName, req.Email, req.AvatarURL, req.Bio, req.Theme, time.Now().UTC(), userID)
	return err
}

// ChangePassword allows users to change their password
func (s *UserService) ChangePassword(userID, currentPassword, newPassword string) error {
	var user models.User
	query := `SELECT password_hash FROM users WHERE id = ?`
	if err := s.db.Get(&user, query, userID); err != nil {
		return fmt.Errorf("%w: user", ErrNotFound)
	}

	if !user.CheckPassword(currentPassword) {
		return fmt.Errorf("%w: current password is incorrect", ErrInvalidCredentials)
	}

	if err := user.SetPassword(newPassword); err != nil {
		return fmt.Errorf("failed to hash new password: %w", err)
	}

	updateQuery := `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`
	_, err := s.db.Exec(updateQuery, user.Password, time.Now().UTC(), userID)
	return err
}

// SearchUsers finds users by username or display name. Exact substring matches
// from SQL come first; closestmatch fills in fuzzy hits for typos.
func (s *UserService) SearchUsers(q string, limit int) ([]models.Friend, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	var results []models.Friend
	query := `SELECT id, username, display_name, avatar_url, points, current_streak
			  FROM users
			  WHERE is_active AND (username LIKE ? OR display_name LIKE ?)
			  ORDER BY points DESC LIMIT ?`
	pattern := "%" + q + "%"
	if err := s.db.Select(&results, query, pattern, pattern, limit); err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}

	if len(results) < limit {
		fuzzy, err := s.fuzzyUsernames(q, limit-len(results))
		if err != nil {
			s.log.WithError(err).Warn("fuzzy user search failed")
		} else {
			seen := make(map[string]bool, len(results))
			for _, r := range results {
				seen[r.Username] = true
			}
			for _, f := range fuzzy {
				if !seen[f.Username] {
					results = append(results, f)
				}
			}
		}
	}

	decorateLeagues(results)
	return results, nil
}

func (s *UserService) fuzzyUsernames(q string, limit int) ([]models.Friend, error) {
	var usernames []string
	if err := s.db.Select(&usernames, `SELECT username FROM users WHERE is_active`); err != nil {
		return nil, err
	}
	if len(usernames) == 0 {
		return nil, nil
	}

	cm := closestmatch.New(usernames, []int{2, 3})
	matches := cm.ClosestN(strings.ToLower(q), limit)

	var results []models.Friend
	for _, m := range matches {
		if m == "" {
			continue
		}
		var f models.Friend
		err := s.db.Get(&f,
			`SELECT id, username, display_name, avatar_url, points, current_streak FROM users WHERE username = ?`, m)
		if err != nil {
			continue
		}
		results = append(results, f)
	}
	return results, nil
}

// StatsSnapshot builds the fresh achievement snapshot for a user.
func (s *UserService) StatsSnapshot(userID string, friendsCount int) (achievement.Stats, error) {
	stats, err := s.GetUserStats(userID)
	if err != nil {
		return achievement.Stats{}, err
	}
	return achievement.Stats{
		TotalPoints:     stats.TotalPoints,
		CurrentStreak:   stats.CurrentStreak,
		HabitsCompleted: stats.HabitsCompleted,
		HabitsCreated:   stats.HabitsCreated,
		FriendsCount:    friendsCount,
		LikesGiven:      stats.LikesGiven,
		CommentsWritten: stats.CommentsWritten,
		League:          stats.League,
	}, nil
}
