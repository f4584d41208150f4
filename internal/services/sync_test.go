package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consistency-app/consistency-server/internal/models"
	"github.com/consistency-app/consistency-server/internal/state"
)

func TestHydrateBuildsFullSnapshot(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	habit := env.createHabit(t, alice.ID, "Run")
	env.completeHabit(t, alice.ID, habit.ID)
	require.NoError(t, env.social.Follow(alice.ID, bob.ID))
	_, err := env.messages.Send(bob.ID, alice.ID, "nice run")
	require.NoError(t, err)

	snap, err := env.sync.Hydrate(alice.ID)
	require.NoError(t, err)

	require.NotNil(t, snap.User)
	assert.Equal(t, "alice", snap.User.Username)
	require.NotNil(t, snap.Stats)
	assert.Equal(t, 10, snap.Stats.TotalPoints)
	require.Len(t, snap.Habits, 1)
	assert.True(t, snap.Habits[0].CompletedToday)
	require.Len(t, snap.Feed, 1)
	require.Len(t, snap.Friends, 1)
	require.Len(t, snap.Conversations, 1)
	assert.Equal(t, 1, snap.Conversations[0].Unread)

	// The snapshot is installed as the live session.
	assert.True(t, env.store.HasSession(alice.ID))
}

func TestHydrateUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.sync.Hydrate("no-such-user")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, env.store.HasSession("no-such-user"))
}

func TestHydrateReplacesStaleState(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")

	// Seed a stale session, then re-hydrate; the store-of-truth view wins
	// wholesale.
	env.store.Hydrate(alice.ID, state.Snapshot{
		Stats: &models.UserStats{UserID: alice.ID, TotalPoints: 9999},
	})

	snap, err := env.sync.Hydrate(alice.ID)
	require.NoError(t, err)
	assert.Zero(t, snap.Stats.TotalPoints)

	var points int
	require.NoError(t, env.store.View(alice.ID, func(s state.Snapshot) {
		points = s.Stats.TotalPoints
	}))
	assert.Zero(t, points)
}

func TestSignOutClearsSession(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")

	_, err := env.sync.Hydrate(alice.ID)
	require.NoError(t, err)
	require.True(t, env.store.HasSession(alice.ID))

	env.sync.SignOut(alice.ID)
	assert.False(t, env.store.HasSession(alice.ID))

	err = env.store.View(alice.ID, func(state.Snapshot) {})
	assert.ErrorIs(t, err, state.ErrNoSession)
}
