// internal/services/message.go
package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/consistency-app/consistency-server/internal/database"
	"github.com/consistency-app/consistency-server/internal/logger"
	"github.com/consistency-app/consistency-server/internal/models"
)

// MessageService owns direct messages and the per-partner conversation view.
type MessageService struct {
	db          *database.DB
	broadcaster Broadcaster // optional
	log         *logger.Log
}

func NewMessageService(db *database.DB) *MessageService {
	return &MessageService{db: db, log: logger.New()}
}

// WithBroadcaster attaches realtime message delivery.
func (s *MessageService) WithBroadcaster(b Broadcaster) *MessageService {
	s.broadcaster = b
	return s
}

// Send appends one message from sender to recipient.
func (s *MessageService) Send(senderID, recipientID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrValidation)
	}
	if senderID == recipientID {
		return nil, fmt.Errorf("%w: cannot message yourself", ErrValidation)
	}
	var exists int
	if err := s.db.Get(&exists, `SELECT COUNT(*) FROM users WHERE id = ?`, recipientID); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: recipient", ErrNotFound)
	}

	msg := &models.Message{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO messages (id, sender_id, recipient_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.SenderID, msg.RecipientID, msg.Content, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastEvent(EventMessage, msg)
	}
	return msg, nil
}

// ListConversation returns the full exchange between the user and a partner,
// oldest first.
func (s *MessageService) ListConversation(userID, partnerID string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	var msgs []models.Message
	query := `
		SELECT id, sender_id, recipient_id, content, created_at, read_at
		FROM messages
		WHERE (sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)
		ORDER BY created_at
		LIMIT ?`
	if err := s.db.Select(&msgs, query, userID, partnerID, partnerID, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to list conversation: %w", err)
	}
	return msgs, nil
}

// MarkRead marks every message from partner to user as read.
func (s *MessageService) MarkRead(userID, partnerID string) error {
	_, err := s.db.Exec(
		`UPDATE messages SET read_at = ? WHERE recipient_id = ? AND sender_id = ? AND read_at IS NULL`,
		time.Now().UTC(), userID, partnerID)
	if err != nil {
		return fmt.Errorf("failed to mark messages read: %w", err)
	}
	return nil
}

// Conversations projects the flat message store into the per-partner summary
// view: the most recent message exchanged with each distinct partner, plus the
// count of their messages the user has not read yet. Ordered newest first.
func (s *MessageService) Conversations(userID string) ([]models.Conversation, error) {
	var msgs []models.Message
	query := `
		SELECT id, sender_id, recipient_id, content, created_at, read_at
		FROM messages
		WHERE sender_id = ? OR recipient_id = ?
		ORDER BY created_at DESC`
	if err := s.db.Select(&msgs, query, userID, userID); err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	latest := make(map[string]models.Message)
	unread := make(map[string]int)
	var order []string

	for _, m := range msgs {
		partner := m.SenderID
		if partner == userID {
			partner = m.RecipientID
		}
		if _, seen := latest[partner]; !seen {
			latest[partner] = m
			order = append(order, partner)
		}
		if m.RecipientID == userID && m.ReadAt == nil {
			unread[partner]++
		}
	}

	conversations := make([]models.Conversation, 0, len(order))
	for _, partnerID := range order {
		var partner models.Friend
		err := s.db.Get(&partner,
			`SELECT id, username, display_name, avatar_url, points, current_streak FROM users WHERE id = ?`,
			partnerID)
		if err != nil {
			s.log.WithError(err).Warnf("skipping conversation with missing user %s", partnerID)
			continue
		}
		conversations = append(conversations, models.Conversation{
			Partner:     partner,
			LastMessage: latest[partnerID],
			Unread:      unread[partnerID],
		})
	}
	decorateFriendLeagues(conversations)
	return conversations, nil
}

func decorateFriendLeagues(conversations []models.Conversation) {
	for i := range conversations {
		single := []models.Friend{conversations[i].Partner}
		decorateLeagues(single)
		conversations[i].Partner = single[0]
	}
}
