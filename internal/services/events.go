// internal/services/events.go
package services

// Broadcaster pushes realtime events to connected clients. The websocket hub
// implements it; services treat delivery as best effort.
type Broadcaster interface {
	BroadcastEvent(event string, payload interface{})
}

// Event names pushed over the realtime channel.
const (
	EventPostCreated         = "post_created"
	EventMessage             = "message"
	EventAchievementUnlocked = "achievement_unlocked"
)
