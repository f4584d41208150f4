package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consistency-app/consistency-server/internal/models"
	"github.com/consistency-app/consistency-server/internal/state"
)

func TestToggleLike(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	habit := env.createHabit(t, alice.ID, "Run")
	post := env.completeHabit(t, alice.ID, habit.ID).Post

	// Like on.
	result, err := env.social.ToggleLike(bob.ID, post.ID)
	require.NoError(t, err)
	assert.True(t, result.Liked)
	assert.Equal(t, 1, result.Likes)

	// Like off.
	result, err = env.social.ToggleLike(bob.ID, post.ID)
	require.NoError(t, err)
	assert.False(t, result.Liked)
	assert.Zero(t, result.Likes)

	// Each activation counts toward likes_given; removal does not refund.
	stats, err := env.users.GetUserStats(bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.LikesGiven)
}

func TestActivateLikeDuplicateDoesNotRecount(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	habit := env.createHabit(t, alice.ID, "Run")
	post := env.completeHabit(t, alice.ID, habit.ID).Post

	// A duplicate activation is ignored by the primary key and must not bump
	// the counter a second time.
	require.NoError(t, env.social.activateLike(bob.ID, post.ID))
	require.NoError(t, env.social.activateLike(bob.ID, post.ID))

	stats, err := env.users.GetUserStats(bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.LikesGiven)

	var likes int
	require.NoError(t, env.db.Get(&likes, `SELECT COUNT(*) FROM likes WHERE post_id = ?`, post.ID))
	assert.Equal(t, 1, likes)
}

func TestToggleLikeRollsBackOnPersistFailure(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")

	// Seed a session whose feed holds a post the store of truth does not:
	// the like insert fails its foreign key and the optimistic flip reverts.
	env.store.Hydrate(alice.ID, state.Snapshot{
		Stats: &models.UserStats{UserID: alice.ID},
		Feed:  []models.FeedPost{{ID: "ghost-post", Likes: 3}},
	})

	_, err := env.social.ToggleLike(alice.ID, "ghost-post")
	require.Error(t, err)

	var likes int
	var isLiked bool
	require.NoError(t, env.store.View(alice.ID, func(snap state.Snapshot) {
		likes = snap.Feed[0].Likes
		isLiked = snap.Feed[0].IsLiked
	}))
	assert.Equal(t, 3, likes)
	assert.False(t, isLiked)
	assert.Empty(t, env.store.PendingKeys(alice.ID))

	stats, err := env.users.GetUserStats(alice.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.LikesGiven)
}

func TestToggleLikeUnlocksFirstLike(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	habit := env.createHabit(t, alice.ID, "Run")
	post := env.completeHabit(t, alice.ID, habit.ID).Post

	_, err := env.social.ToggleLike(bob.ID, post.ID)
	require.NoError(t, err)

	unlocked, err := env.achievements.UnlockedSet(bob.ID)
	require.NoError(t, err)
	assert.True(t, unlocked["first_like"])
}

func TestFeedVisibility(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	carol := env.createUser(t, "carol")

	habit := env.createHabit(t, alice.ID, "Run")
	post := env.completeHabit(t, alice.ID, habit.ID).Post

	// Bob follows alice and sees her post; carol does not.
	require.NoError(t, env.social.Follow(bob.ID, alice.ID))

	feed, err := env.social.Feed(bob.ID, 10)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, post.ID, feed[0].ID)
	assert.Equal(t, "alice", feed[0].Username)
	assert.False(t, feed[0].IsLiked)

	feed, err = env.social.Feed(carol.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, feed)
}

func TestFeedProjectsCounters(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	habit := env.createHabit(t, alice.ID, "Run")
	post := env.completeHabit(t, alice.ID, habit.ID).Post

	_, err := env.social.ToggleLike(bob.ID, post.ID)
	require.NoError(t, err)
	_, err = env.social.AddComment(bob.ID, post.ID, "nice one")
	require.NoError(t, err)

	feed, err := env.social.Feed(alice.ID, 10)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, 1, feed[0].Likes)
	assert.Equal(t, 1, feed[0].Comments)
	assert.False(t, feed[0].IsLiked) // alice herself has not liked it

	feedBob, err := env.social.Feed(bob.ID, 10)
	require.NoError(t, err)
	require.Len(t, feedBob, 1)
	assert.True(t, feedBob[0].IsLiked)
}

func TestAddComment(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	habit := env.createHabit(t, alice.ID, "Run")
	post := env.completeHabit(t, alice.ID, habit.ID).Post

	_, err := env.social.AddComment(bob.ID, post.ID, "   ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.social.AddComment(bob.ID, "no-such-post", "hello")
	assert.ErrorIs(t, err, ErrNotFound)

	comment, err := env.social.AddComment(bob.ID, post.ID, "keep it up")
	require.NoError(t, err)
	assert.Equal(t, "keep it up", comment.Content)

	comments, err := env.social.ListComments(post.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "bob", comments[0].Username)

	stats, err := env.users.GetUserStats(bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CommentsWritten)
}

func TestFollow(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	assert.ErrorIs(t, env.social.Follow(alice.ID, alice.ID), ErrValidation)
	assert.ErrorIs(t, env.social.Follow(alice.ID, "nobody"), ErrNotFound)

	require.NoError(t, env.social.Follow(alice.ID, bob.ID))
	// Re-following is a no-op.
	require.NoError(t, env.social.Follow(alice.ID, bob.ID))

	friends, err := env.social.Friends(alice.ID)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, "bob", friends[0].Username)
	assert.Equal(t, "unranked", friends[0].League)

	count, err := env.social.FriendsCount(alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	unlocked, err := env.achievements.UnlockedSet(alice.ID)
	require.NoError(t, err)
	assert.True(t, unlocked["first_friend"])
}

func TestUnfollow(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	require.NoError(t, env.social.Follow(alice.ID, bob.ID))
	require.NoError(t, env.social.Unfollow(alice.ID, bob.ID))

	friends, err := env.social.Friends(alice.ID)
	require.NoError(t, err)
	assert.Empty(t, friends)
}
