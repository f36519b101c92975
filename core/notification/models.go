package notification

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Message is the outbox row of a notification.
type Message struct {
	ID            string    `db:"id"`
	RecipientID   string    `db:"recipient_id"`
	EventType     string    `db:"event_type"`
	Payload       string    `db:"payload"` // JSON
	Status        Status    `db:"status"`
	Attempts      int       `db:"attempts"`
	LastError     string    `db:"last_error"`
	NextAttemptAt time.Time `db:"next_attempt_at"`
	SentAt        null.Time `db:"sent_at"`
	CreatedAt     time.Time `db:"created_at"`
}

func newMessage(n core.Notification, nextAttemptAt time.Time) (Message, error) {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return Message{}, errors.Wrap(err, "encoding notification payload")
	}
	return Message{
		ID:            n.ID,
		RecipientID:   n.RecipientID,
		EventType:     n.EventType,
		Payload:       string(payload),
		Status:        StatusPending,
		NextAttemptAt: nextAttemptAt,
		CreatedAt:     n.CreatedAt,
	}, nil
}

func (m Message) Notification() (core.Notification, error) {
	n := core.Notification{
		ID:          m.ID,
		RecipientID: m.RecipientID,
		EventType:   m.EventType,
		CreatedAt:   m.CreatedAt,
	}
	if err := json.Unmarshal([]byte(m.Payload), &n.Payload); err != nil {
		return core.Notification{}, errors.Wrapf(err, "decoding payload of notification %s", m.ID)
	}
	return n, nil
}
