// internal/services/sync.go
package services

import (
	"fmt"

	"github.com/consistency-app/consistency-server/internal/database"
	"github.com/consistency-app/consistency-server/internal/logger"
	"github.com/consistency-app/consistency-server/internal/state"
)

// SyncService is the reconciliation boundary. On sign-in it rebuilds the whole
// session snapshot from store truth — profile, habits, feed, friends,
// conversations — recomputing every derived field; any optimistic state that
// was never confirmed is discarded in the process. On sign-out it clears the
// session outright.
type SyncService struct {
	db       *database.DB
	store    *state.Store
	users    *UserService
	habits   *HabitService
	social   *SocialService
	messages *MessageService
	log      *logger.Log
}

func NewSyncService(db *database.DB, store *state.Store, users *UserService,
	habits *HabitService, social *SocialService, messages *MessageService) *SyncService {
	return &SyncService{
		db: db, store: store, users: users, habits: habits,
		social: social, messages: messages, log: logger.New(),
	}
}

// Hydrate performs the full re-hydration for a signed-in user and installs the
// result as the new session state. Each piece is fetched fresh; a failure in
// any required piece aborts hydration rather than installing a partial view.
func (s *SyncService) Hydrate(userID string) (state.Snapshot, error) {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		return state.Snapshot{}, fmt.Errorf("hydration: %w", err)
	}
	stats, err := s.users.GetUserStats(userID)
	if err != nil {
		return state.Snapshot{}, fmt.Errorf("hydration: %w", err)
	}
	habits, err := s.habits.ListHabits(userID)
	if err != nil {
		return state.Snapshot{}, fmt.Errorf("hydration: %w", err)
	}
	feed, err := s.social.Feed(userID, 50)
	if err != nil {
		return state.Snapshot{}, fmt.Errorf("hydration: %w", err)
	}
	friends, err := s.social.Friends(userID)
	if err != nil {
		return state.Snapshot{}, fmt.Errorf("hydration: %w", err)
	}
	conversations, err := s.messages.Conversations(userID)
	if err != nil {
		return state.Snapshot{}, fmt.Errorf("hydration: %w", err)
	}

	snap := state.Snapshot{
		User:          user,
		Stats:         stats,
		Habits:        habits,
		Feed:          feed,
		Friends:       friends,
		Conversations: conversations,
	}
	s.store.Hydrate(userID, snap)
	return snap, nil
}

// SignOut drops the user's session state entirely. No partial retention.
func (s *SyncService) SignOut(userID string) {
	s.store.Clear(userID)
}
