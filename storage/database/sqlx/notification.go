package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/notification"
)

const notificationColumns = "id, recipient_id, event_type, payload, status, attempts, last_error, next_attempt_at, sent_at, created_at"

type notificationRepository struct {
	baseRepository
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(exec core.DBExecutor) *notificationRepository {
	return &notificationRepository{baseRepository{exec: exec}}
}

func (repo notificationRepository) InsertMessages(ctx context.Context, msgs []notification.Message, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	q := exe.Rebind("INSERT INTO notifications (" + notificationColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	for _, m := range msgs {
		_, err := exe.ExecContext(ctx, q,
			m.ID, m.RecipientID, m.EventType, m.Payload, m.Status, m.Attempts, m.LastError,
			m.NextAttemptAt.UTC(), m.SentAt, m.CreatedAt.UTC())
		if err != nil {
			return errors.Wrap(err, "inserting notification")
		}
	}
	return nil
}

func (repo notificationRepository) GetMessage(ctx context.Context, id string, exec ...core.DBExecutor) (notification.Message, error) {
	var m notification.Message
	if err := get(ctx, repo.getExec(exec), &m, "SELECT "+notificationColumns+" FROM notifications WHERE id = ?", id); err != nil {
		return notification.Message{}, trapNoRowsErr(err, notification.ErrNotFound, "finding notification")
	}
	return m, nil
}

func (repo notificationRepository) DueMessages(ctx context.Context, now time.Time, limit int, exec ...core.DBExecutor) ([]notification.Message, error) {
	msgs := make([]notification.Message, 0)
	err := selectAll(ctx, repo.getExec(exec), &msgs,
		"SELECT "+notificationColumns+" FROM notifications WHERE status = ? AND next_attempt_at <= ? "+
			"ORDER BY created_at, id LIMIT ?", notification.StatusPending, now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "selecting due notifications")
	}
	return msgs, nil
}

func (repo notificationRepository) MarkSent(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) (bool, error) {
	n, err := execAffected(ctx, repo.getExec(exec),
		"UPDATE notifications SET status = ?, sent_at = ? WHERE id = ? AND status = ?",
		notification.StatusSent, at.UTC(), id, notification.StatusPending)
	if err != nil {
		return false, errors.Wrap(err, "marking notification sent")
	}
	return n > 0, nil
}

func (repo notificationRepository) MarkAttempt(ctx context.Context, id string, attempts int, lastErr string, next time.Time, status notification.Status, exec ...core.DBExecutor) error {
	_, err := execAffected(ctx, repo.getExec(exec),
		"UPDATE notifications SET attempts = ?, last_error = ?, next_attempt_at = ?, status = ? WHERE id = ? AND status = ?",
		attempts, lastErr, next.UTC(), status, id, notification.StatusPending)
	if err != nil {
		return errors.Wrap(err, "recording notification attempt")
	}
	return nil
}
