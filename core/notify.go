package core

import (
	"context"
	"time"
)

// Notification is a single message for one recipient. ID is stable across delivery attempts
// so consumers can drop duplicates.
type Notification struct {
	ID          string                 `json:"id"`
	RecipientID string                 `json:"recipient_id"`
	EventType   string                 `json:"event_type"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
}

func NewNotification(recipientID, eventType string, payload map[string]interface{}) Notification {
	return Notification{
		ID:          NewID(),
		RecipientID: recipientID,
		EventType:   eventType,
		Payload:     payload,
		CreatedAt:   NowFunc(),
	}
}

// Notifier delivers notifications to an external sink (task queue, email, ...).
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Outbox records notifications in the caller's transaction and delivers them after commit.
type Outbox interface {
	// Add must be called with the transaction that performs the state change.
	Add(ctx context.Context, exec DBExecutor, notes ...Notification) error
	// Deliver makes one best effort attempt after commit. Failures are left to the relay.
	Deliver(ctx context.Context, notes ...Notification)
}

// Recipients builds one notification per distinct recipient, skipping the actor and empty IDs.
func Recipients(actorID, eventType string, payload map[string]interface{}, recipientIDs ...string) []Notification {
	seen := make(map[string]bool, len(recipientIDs))
	notes := make([]Notification, 0, len(recipientIDs))
	for _, id := range recipientIDs {
		if id == "" || id == actorID || seen[id] {
			continue
		}
		seen[id] = true
		notes = append(notes, NewNotification(id, eventType, payload))
	}
	return notes
}
