// internal/services/social.go
package services

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/consistency-app/consistency-server/internal/database"
	"github.com/consistency-app/consistency-server/internal/league"
	"github.com/consistency-app/consistency-server/internal/logger"
	"github.com/consistency-app/consistency-server/internal/models"
	"github.com/consistency-app/consistency-server/internal/state"
)

// SocialService owns likes, comments, follows and the feed.
type SocialService struct {
	db           *database.DB
	store        *state.Store
	achievements *AchievementService
	log          *logger.Log
}

func NewSocialService(db *database.DB, store *state.Store, ach *AchievementService) *SocialService {
	return &SocialService{db: db, store: store, achievements: ach, log: logger.New()}
}

func decorateLeagues(friends []models.Friend) {
	for i := range friends {
		tier, rank := league.Classify(friends[i].TotalPoints)
		friends[i].League = string(tier)
		friends[i].LeagueRank = int(rank)
	}
}

// Feed returns recent posts by the user and everyone they follow, with like
// and comment counters projected from their tables and IsLiked filled for the
// viewer.
func (s *SocialService) Feed(viewerID string, limit int) ([]models.FeedPost, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var posts []models.FeedPost
	query := `
		SELECT p.id, p.user_id, u.username, u.display_name, u.avatar_url,
			   p.habit_id, p.habit_name, p.habit_icon, p.proof_image_url, p.caption,
			   p.points_earned, p.created_at,
			   (SELECT COUNT(*) FROM likes l WHERE l.post_id = p.id) AS likes,
			   (SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id) AS comments,
			   EXISTS(SELECT 1 FROM likes l WHERE l.post_id = p.id AND l.user_id = ?) AS is_liked
		FROM posts p
		JOIN users u ON u.id = p.user_id
		WHERE p.user_id = ? OR p.user_id IN (SELECT following_id FROM follows WHERE follower_id = ?)
		ORDER BY p.created_at DESC
		LIMIT ?`
	if err := s.db.Select(&posts, query, viewerID, viewerID, viewerID, limit); err != nil {
		return nil, fmt.Errorf("failed to load feed: %w", err)
	}
	return posts, nil
}

// LikeResult reports the post's counters after a toggle.
type LikeResult struct {
	PostID  string `json:"post_id"`
	Liked   bool   `json:"liked"`
	Likes   int    `json:"likes"`
	Pending bool   `json:"pending"`
}

// ToggleLike flips the viewer's like on a post. The remote operation matches
// the pre-toggle state (liked -> delete, not liked -> insert); the session
// counter is flipped optimistically and flipped back if the write fails.
// At-most-one-like-per-(post,user) is the table's primary key, so a racing
// duplicate insert is tolerated silently.
func (s *SocialService) ToggleLike(userID, postID string) (*LikeResult, error) {
	var exists int
	err := s.db.Get(&exists, `SELECT COUNT(*) FROM likes WHERE post_id = ? AND user_id = ?`, postID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read like state: %w", err)
	}
	wasLiked := exists > 0

	// Optimistic counter flip in the session mirror.
	delta := 1
	if wasLiked {
		delta = -1
	}
	flip := func(d int) func(*state.Snapshot) {
		return func(snap *state.Snapshot) {
			for i := range snap.Feed {
				if snap.Feed[i].ID == postID {
					snap.Feed[i].Likes += d
					snap.Feed[i].IsLiked = d > 0
				}
			}
		}
	}
	pending, perr := s.store.Begin(userID, "like:"+postID, flip(delta), flip(-delta))
	switch {
	case perr == nil:
	case errors.Is(perr, state.ErrInFlight):
		return nil, fmt.Errorf("%w: like toggle in flight", ErrAlreadyExists)
	case errors.Is(perr, state.ErrNoSession):
		pending = nil
	default:
		return nil, perr
	}

	if wasLiked {
		_, err = s.db.Exec(`DELETE FROM likes WHERE post_id = ? AND user_id = ?`, postID, userID)
	} else {
		err = s.activateLike(userID, postID)
	}
	if err != nil {
		if pending != nil {
			pending.Rollback()
		}
		return nil, fmt.Errorf("failed to persist like toggle: %w", err)
	}
	if pending != nil {
		pending.Commit()
	}

	if !wasLiked {
		if _, err := s.achievements.EvaluateNow(userID); err != nil {
			s.log.WithError(err).Warn("achievement pass after like failed")
		}
	}

	var likes int
	if err := s.db.Get(&likes, `SELECT COUNT(*) FROM likes WHERE post_id = ?`, postID); err != nil {
		return nil, fmt.Errorf("failed to count likes: %w", err)
	}
	return &LikeResult{PostID: postID, Liked: !wasLiked, Likes: likes}, nil
}

// activateLike inserts the like row and counts the activation. The insert is
// INSERT OR IGNORE, so a racing duplicate is tolerated; only an insert that
// actually landed a row counts toward likes_given.
func (s *SocialService) activateLike(userID, postID string) error {
	res, err := s.db.Exec(`INSERT OR IGNORE INTO likes (post_id, user_id) VALUES (?, ?)`, postID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil || n == 0 {
		return err
	}
	_, err = s.db.Exec(`UPDATE users SET likes_given = likes_given + 1 WHERE id = ?`, userID)
	return err
}

// AddComment appends a comment and bumps the viewer's comment counter.
func (s *SocialService) AddComment(userID, postID, content string) (*models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: comment is empty", ErrValidation)
	}

	var postExists int
	if err := s.db.Get(&postExists, `SELECT COUNT(*) FROM posts WHERE id = ?`, postID); err != nil {
		return nil, err
	}
	if postExists == 0 {
		return nil, fmt.Errorf("%w: post", ErrNotFound)
	}

	comment := &models.Comment{
		ID:        uuid.NewString(),
		PostID:    postID,
		UserID:    userID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO comments (id, post_id, user_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		comment.ID, comment.PostID, comment.UserID, comment.Content, comment.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add comment: %w", err)
	}
	if _, err := s.db.Exec(`UPDATE users SET comments_written = comments_written + 1 WHERE id = ?`, userID); err != nil {
		s.log.WithError(err).Warn("failed to bump comment counter")
	}

	s.store.Update(userID, func(snap *state.Snapshot) {
		for i := range snap.Feed {
			if snap.Feed[i].ID == postID {
				snap.Feed[i].Comments++
			}
		}
	})

	if _, err := s.achievements.EvaluateNow(userID); err != nil {
		s.log.WithError(err).Warn("achievement pass after comment failed")
	}
	return comment, nil
}

// ListComments is the lazy, on-demand comment fetch for a post's panel.
func (s *SocialService) ListComments(postID string) ([]models.Comment, error) {
	var comments []models.Comment
	query := `
		SELECT c.id, c.post_id, c.user_id, u.username, u.display_name, u.avatar_url, c.content, c.created_at
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.post_id = ?
		ORDER BY c.created_at`
	if err := s.db.Select(&comments, query, postID); err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return comments, nil
}

// Follow adds a directed edge. No approval workflow; following yourself or
// a missing user is rejected up front.
func (s *SocialService) Follow(followerID, followingID string) error {
	if followerID == followingID {
		return fmt.Errorf("%w: cannot follow yourself", ErrValidation)
	}
	var exists int
	if err := s.db.Get(&exists, `SELECT COUNT(*) FROM users WHERE id = ?`, followingID); err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("%w: user", ErrNotFound)
	}

	_, err := s.db.Exec(`INSERT OR IGNORE INTO follows (follower_id, following_id) VALUES (?, ?)`,
		followerID, followingID)
	if err != nil {
		return fmt.Errorf("failed to follow: %w", err)
	}

	if _, err := s.achievements.EvaluateNow(followerID); err != nil {
		s.log.WithError(err).Warn("achievement pass after follow failed")
	}
	return nil
}

// Unfollow removes the directed edge if present.
func (s *SocialService) Unfollow(followerID, followingID string) error {
	_, err := s.db.Exec(`DELETE FROM follows WHERE follower_id = ? AND following_id = ?`, followerID, followingID)
	if err != nil {
		return fmt.Errorf("failed to unfollow: %w", err)
	}
	return nil
}

// Friends lists who the user follows, with scoring fields for the leaderboard
// and friend cards.
func (s *SocialService) Friends(userID string) ([]models.Friend, error) {
	var friends []models.Friend
	query := `
		SELECT u.id, u.username, u.display_name, u.avatar_url, u.points, u.current_streak
		FROM follows f
		JOIN users u ON u.id = f.following_id
		WHERE f.follower_id = ?
		ORDER BY u.points DESC`
	if err := s.db.Select(&friends, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	decorateLeagues(friends)
	return friends, nil
}

// FriendsCount returns the size of the user's following set.
func (s *SocialService) FriendsCount(userID string) (int, error) {
	var count int
	err := s.db.Get(&count, `SELECT COUNT(*) FROM follows WHERE follower_id = ?`, userID)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return count, nil
}
