package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessage(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	_, err := env.messages.Send(alice.ID, bob.ID, "   ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.messages.Send(alice.ID, alice.ID, "hi me")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.messages.Send(alice.ID, "nobody", "hello?")
	assert.ErrorIs(t, err, ErrNotFound)

	msg, err := env.messages.Send(alice.ID, bob.ID, "you up for a run?")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, msg.SenderID)
	assert.Nil(t, msg.ReadAt)
}

func TestListConversation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	_, err := env.messages.Send(alice.ID, bob.ID, "one")
	require.NoError(t, err)
	_, err = env.messages.Send(bob.ID, alice.ID, "two")
	require.NoError(t, err)
	_, err = env.messages.Send(alice.ID, bob.ID, "three")
	require.NoError(t, err)

	// Both directions, oldest first, same view from either side.
	msgs, err := env.messages.ListConversation(alice.ID, bob.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "three", msgs[2].Content)

	msgsBob, err := env.messages.ListConversation(bob.ID, alice.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, msgs, msgsBob)
}

func TestConversationsProjection(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	carol := env.createUser(t, "carol")

	_, err := env.messages.Send(bob.ID, alice.ID, "hey")
	require.NoError(t, err)
	_, err = env.messages.Send(bob.ID, alice.ID, "you there?")
	require.NoError(t, err)
	_, err = env.messages.Send(carol.ID, alice.ID, "morning")
	require.NoError(t, err)

	conversations, err := env.messages.Conversations(alice.ID)
	require.NoError(t, err)
	require.Len(t, conversations, 2)

	// Newest partner first; one summary per partner with the latest message.
	assert.Equal(t, "carol", conversations[0].Partner.Username)
	assert.Equal(t, "morning", conversations[0].LastMessage.Content)
	assert.Equal(t, 1, conversations[0].Unread)

	assert.Equal(t, "bob", conversations[1].Partner.Username)
	assert.Equal(t, "you there?", conversations[1].LastMessage.Content)
	assert.Equal(t, 2, conversations[1].Unread)
}

func TestMarkRead(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	_, err := env.messages.Send(bob.ID, alice.ID, "hey")
	require.NoError(t, err)
	require.NoError(t, env.messages.MarkRead(alice.ID, bob.ID))

	conversations, err := env.messages.Conversations(alice.ID)
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Zero(t, conversations[0].Unread)
}
