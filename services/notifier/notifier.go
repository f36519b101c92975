// Package notifier holds the sinks the notification outbox delivers to.
package notifier

import (
	"context"
	"encoding/json"
	"net/mail"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/user"
)

// RedisQueue pushes notifications as JSON documents onto a Redis list for background workers.
type RedisQueue struct {
	client *redis.Client
	key    string
}

var _ core.Notifier = (*RedisQueue)(nil)

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Notify(ctx context.Context, n core.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "encoding notification")
	}
	if err = q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return errors.Wrap(err, "pushing notification")
	}
	return nil
}

type UserGetter interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

// TemplateData is passed to the email templates as .Data.
type TemplateData struct {
	RecipientName string
	Payload       map[string]interface{}
}

var subjects = map[string]string{
	"submission.submitted":   "New submission to review",
	"submission.resubmitted": "Submission resubmitted",
	"submission.reviewed":    "Your submission was reviewed",
	"comment.posted":         "New comment on your article",
	"comment.replied":        "New reply to your comment",
}

// TemplateName maps an event type to the email template rendering it.
func TemplateName(eventType string) string {
	return strings.ReplaceAll(eventType, ".", "_")
}

// Email renders the template of the event and emails it to the recipient.
// Events without a template and inactive recipients are skipped.
type Email struct {
	users  UserGetter
	mailer core.EmailService
}

var _ core.Notifier = (*Email)(nil)

func NewEmail(users UserGetter, mailer core.EmailService) *Email {
	return &Email{users: users, mailer: mailer}
}

func (e *Email) Notify(ctx context.Context, n core.Notification) error {
	tmpl := TemplateName(n.EventType)
	if !core.HasTemplate(tmpl) {
		return nil
	}
	usr, err := e.users.GetByID(ctx, n.RecipientID)
	if err != nil {
		if err == user.ErrNotFound {
			return nil
		}
		return errors.Wrap(err, "finding recipient")
	}
	if !usr.IsActive {
		return nil
	}

	subject, ok := subjects[n.EventType]
	if !ok {
		subject = n.EventType
	}
	return e.mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: TemplateData{RecipientName: usr.Name, Payload: n.Payload},
	})
}

// Log writes notifications to a logger.
type Log struct {
	logger core.Logger
}

var _ core.Notifier = (*Log)(nil)

func NewLog(logger core.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Notify(_ context.Context, n core.Notification) error {
	l.logger.Info("notification", map[string]interface{}{
		"notification_id": n.ID,
		"recipient_id":    n.RecipientID,
		"event_type":      n.EventType,
		"payload":         n.Payload,
	})
	return nil
}

// Multi fans a notification out to every sink. All sinks are tried and the first failure is returned.
type Multi []core.Notifier

var _ core.Notifier = Multi(nil)

func (m Multi) Notify(ctx context.Context, n core.Notification) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.Notify(ctx, n); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
