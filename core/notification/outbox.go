package notification

import (
	"context"
	"errors"
	"time"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
)

var ErrNotFound = errors.New("notification not found")

// maxBackoff caps the delay between two delivery attempts.
const maxBackoff = time.Hour

type (
	Repository interface {
		InsertMessages(ctx context.Context, msgs []Message, exec ...core.DBExecutor) error
		GetMessage(ctx context.Context, id string, exec ...core.DBExecutor) (Message, error)
		// DueMessages returns pending messages whose next attempt is at or before now, oldest first.
		DueMessages(ctx context.Context, now time.Time, limit int, exec ...core.DBExecutor) ([]Message, error)
		// MarkSent flags a pending message as sent. Returns false when it was not pending anymore.
		MarkSent(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) (bool, error)
		// MarkAttempt records a failed attempt on a pending message.
		MarkAttempt(ctx context.Context, id string, attempts int, lastErr string, next time.Time, status Status, exec ...core.DBExecutor) error
	}

	// Outbox stores notifications with the state change that caused them and relays them to a Notifier.
	// Delivery is at least once; Notification.ID lets consumers drop duplicates.
	Outbox struct {
		repo     Repository
		notifier core.Notifier
		logger   core.Logger
		conf     core.OutboxConfig
	}
)

var _ core.Outbox = (*Outbox)(nil)

func NewOutbox(repo Repository, notifier core.Notifier, logger core.Logger, conf core.OutboxConfig) *Outbox {
	if conf.MaxAttempts <= 0 {
		conf.MaxAttempts = 1
	}
	if conf.BatchSize <= 0 {
		conf.BatchSize = 100
	}
	return &Outbox{repo: repo, notifier: notifier, logger: logger, conf: conf}
}

// Add stores notes in exec, which must be the transaction of the state change.
// The first relay attempt is deferred by one backoff so the post-commit Deliver goes first.
func (o *Outbox) Add(ctx context.Context, exec core.DBExecutor, notes ...core.Notification) error {
	if len(notes) == 0 {
		return nil
	}
	next := core.NowFunc().Add(o.conf.RetryBackoff)
	msgs := make([]Message, 0, len(notes))
	for _, n := range notes {
		msg, err := newMessage(n, next)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return o.repo.InsertMessages(ctx, msgs, exec)
}

// Deliver attempts every note once. Failures are logged and left for the relay.
func (o *Outbox) Deliver(ctx context.Context, notes ...core.Notification) {
	for _, n := range notes {
		o.attempt(ctx, n, 0)
	}
}

// backoff returns the delay before the next attempt, doubling with each failed attempt.
func (o *Outbox) backoff(attempts int) time.Duration {
	d := o.conf.RetryBackoff
	for i := 1; i < attempts && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// attempt delivers n; prevAttempts is the number of failed attempts recorded so far.
func (o *Outbox) attempt(ctx context.Context, n core.Notification, prevAttempts int) bool {
	err := o.notifier.Notify(ctx, n)
	now := core.NowFunc()
	if err == nil {
		if _, mErr := o.repo.MarkSent(ctx, n.ID, now); mErr != nil {
			o.logger.Error("marking notification sent", mErr, map[string]interface{}{"notification_id": n.ID})
		}
		return true
	}

	attempts := prevAttempts + 1
	status := StatusPending
	if attempts >= o.conf.MaxAttempts {
		status = StatusFailed
	}
	o.logger.Error("delivering notification", err, map[string]interface{}{
		"notification_id": n.ID,
		"event_type":      n.EventType,
		"attempts":        attempts,
		"status":          string(status),
	})
	if mErr := o.repo.MarkAttempt(ctx, n.ID, attempts, err.Error(), now.Add(o.backoff(attempts)), status); mErr != nil {
		o.logger.Error("recording notification attempt", mErr, map[string]interface{}{"notification_id": n.ID})
	}
	return false
}

// RelayOnce attempts every due message once and returns how many were delivered.
func (o *Outbox) RelayOnce(ctx context.Context) (int, error) {
	msgs, err := o.repo.DueMessages(ctx, core.NowFunc(), o.conf.BatchSize)
	if err != nil {
		return 0, err
	}

	var sent int
	for _, msg := range msgs {
		if ctx.Err() != nil {
			break
		}
		n, err := msg.Notification()
		if err != nil {
			// an undecodable payload never succeeds
			o.logger.Error("relaying notification", err)
			if mErr := o.repo.MarkAttempt(ctx, msg.ID, msg.Attempts+1, err.Error(), core.NowFunc(), StatusFailed); mErr != nil {
				o.logger.Error("recording notification attempt", mErr, map[string]interface{}{"notification_id": msg.ID})
			}
			continue
		}
		if o.attempt(ctx, n, msg.Attempts) {
			sent++
		}
	}
	return sent, nil
}

// Run relays due messages every PollInterval until ctx is cancelled.
func (o *Outbox) Run(ctx context.Context) error {
	interval := o.conf.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if sent, err := o.RelayOnce(ctx); err != nil {
			o.logger.Error("relaying notifications", err)
		} else if sent > 0 {
			o.logger.Info("relayed notifications", map[string]interface{}{"sent": sent})
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
