package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/consistency-app/consistency-server/internal/database"
	"github.com/consistency-app/consistency-server/internal/models"
	"github.com/consistency-app/consistency-server/internal/state"
)

// testEnv wires the full service graph against an in-memory database, the way
// main does but without redis or a broadcaster.
type testEnv struct {
	db           *database.DB
	store        *state.Store
	users        *UserService
	habits       *HabitService
	social       *SocialService
	messages     *MessageService
	achievements *AchievementService
	leaderboard  *LeaderboardService
	sync         *SyncService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.NewDB(":memory:")
	require.NoError(t, err)
	// Every pool connection to :memory: is its own database; pin the pool to
	// one connection so concurrent queries share the schema.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := state.NewStore()
	users := NewUserService(db)
	achievements := NewAchievementService(db)
	leaderboard := NewLeaderboardService(db, nil)
	habits := NewHabitService(db, store, achievements)
	social := NewSocialService(db, store, achievements)
	messages := NewMessageService(db)
	sync := NewSyncService(db, store, users, habits, social, messages)

	return &testEnv{
		db: db, store: store, users: users, habits: habits, social: social,
		messages: messages, achievements: achievements, leaderboard: leaderboard,
		sync: sync,
	}
}

func (e *testEnv) createUser(t *testing.T, username string) *models.User {
	t.Helper()
	user, err := e.users.CreateUser(&models.CreateUserRequest{
		Username:    username,
		Email:       fmt.Sprintf("%s@example.com", username),
		Password:    "hunter22",
		DisplayName: username,
	})
	require.NoError(t, err)
	return user
}

func (e *testEnv) createHabit(t *testing.T, userID, name string) *models.Habit {
	t.Helper()
	habit, _, err := e.habits.CreateHabit(userID, &models.CreateHabitRequest{Name: name})
	require.NoError(t, err)
	return habit
}

func (e *testEnv) completeHabit(t *testing.T, userID, habitID string) *CompletionResult {
	t.Helper()
	result, err := e.habits.CompleteHabit(userID, habitID, &models.CompleteHabitRequest{
		ProofImageURL: "https://img.example.com/proof.jpg",
		Caption:       "done",
	})
	require.NoError(t, err)
	return result
}
