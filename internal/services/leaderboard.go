// internal/services/leaderboard.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/consistency-app/consistency-server/internal/database"
	"github.com/consistency-app/consistency-server/internal/league"
	"github.com/consistency-app/consistency-server/internal/logger"
	"github.com/consistency-app/consistency-server/internal/models"
)

const leaderboardKey = "leaderboard:points"

// LeaderboardService ranks users by total points. Redis keeps the hot sorted
// set; every read degrades to a SQL scan when redis is unreachable so the
// leaderboard never hard-fails.
type LeaderboardService struct {
	db  *database.DB
	rdb *redis.Client // nil when redis is not configured
	log *logger.Log
}

func NewLeaderboardService(db *database.DB, rdb *redis.Client) *LeaderboardService {
	return &LeaderboardService{db: db, rdb: rdb, log: logger.New()}
}

func (s *LeaderboardService) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 3*time.Second)
}

// SetScore records the user's point total in the sorted set. Best effort:
// callers log and move on when it fails.
func (s *LeaderboardService) SetScore(userID string, points int) error {
	if s.rdb == nil {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()
	return s.rdb.ZAdd(ctx, leaderboardKey, &redis.Z{Score: float64(points), Member: userID}).Err()
}

// Rank returns the user's 1-based global rank, or 0 when unranked/unknown.
func (s *LeaderboardService) Rank(userID string) (int, error) {
	if s.rdb != nil {
		ctx, cancel := s.ctx()
		defer cancel()
		rank, err := s.rdb.ZRevRank(ctx, leaderboardKey, userID).Result()
		if err == nil {
			return int(rank) + 1, nil
		}
		if err != redis.Nil {
			s.log.WithError(err).Warn("redis rank lookup failed, falling back to SQL")
		}
	}

	var rank int
	err := s.db.Get(&rank, `
		SELECT COUNT(*) + 1 FROM users
		WHERE points > (SELECT points FROM users WHERE id = ?)`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to compute rank: %w", err)
	}
	return rank, nil
}

// Top returns the global top-N by points.
func (s *LeaderboardService) Top(n int) ([]models.LeaderboardEntry, error) {
	if n <= 0 || n > 100 {
		n = 25
	}

	if s.rdb != nil {
		entries, err := s.topFromRedis(n)
		if err == nil {
			return entries, nil
		}
		s.log.WithError(err).Warn("redis leaderboard read failed, falling back to SQL")
	}
	return s.topFromSQL(n)
}

func (s *LeaderboardService) topFromRedis(n int) ([]models.LeaderboardEntry, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	zs, err := s.rdb.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]models.LeaderboardEntry, 0, len(zs))
	for i, z := range zs {
		userID, ok := z.Member.(string)
		if !ok {
			continue
		}
		var e models.LeaderboardEntry
		err := s.db.Get(&e, `SELECT id, username, display_name, avatar_url, points FROM users WHERE id = ?`, userID)
		if err != nil {
			// Profile row gone; the set entry is stale.
			continue
		}
		e.Rank = i + 1
		tier, _ := league.Classify(e.TotalPoints)
		e.League = string(tier)
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *LeaderboardService) topFromSQL(n int) ([]models.LeaderboardEntry, error) {
	var entries []models.LeaderboardEntry
	query := `SELECT id, username, display_name, avatar_url, points
			  FROM users WHERE is_active ORDER BY points DESC LIMIT ?`
	if err := s.db.Select(&entries, query, n); err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	for i := range entries {
		entries[i].Rank = i + 1
		tier, _ := league.Classify(entries[i].TotalPoints)
		entries[i].League = string(tier)
	}
	return entries, nil
}

// FriendsTop ranks the user and everyone they follow.
func (s *LeaderboardService) FriendsTop(userID string) ([]models.LeaderboardEntry, error) {
	var entries []models.LeaderboardEntry
	query := `
		SELECT id, username, display_name, avatar_url, points FROM users
		WHERE id = ? OR id IN (SELECT following_id FROM follows WHERE follower_id = ?)
		ORDER BY points DESC`
	if err := s.db.Select(&entries, query, userID, userID); err != nil {
		return nil, fmt.Errorf("failed to read friends leaderboard: %w", err)
	}
	for i := range entries {
		entries[i].Rank = i + 1
		tier, _ := league.Classify(entries[i].TotalPoints)
		entries[i].League = string(tier)
	}
	return entries, nil
}

// Rebuild reloads the whole sorted set from the users table, for startup or
// after redis data loss.
func (s *LeaderboardService) Rebuild() error {
	if s.rdb == nil {
		return nil
	}

	type row struct {
		ID     string `db:"id"`
		Points int    `db:"points"`
	}
	var rows []row
	if err := s.db.Select(&rows, `SELECT id, points FROM users WHERE is_active`); err != nil {
		return fmt.Errorf("failed to load scores for rebuild: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, leaderboardKey)
	for _, r := range rows {
		pipe.ZAdd(ctx, leaderboardKey, &redis.Z{Score: float64(r.Points), Member: r.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to rebuild leaderboard: %w", err)
	}
	return nil
}
