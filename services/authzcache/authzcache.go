// Package authzcache caches the answers of a user.Authorizer in Redis.
package authzcache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/user"
)

const keyPrefix = "authz:"

// Authorizer keeps one Redis hash per user holding the answers of next for ttl.
// Redis failures are logged and the question is passed to next.
type Authorizer struct {
	next   user.Authorizer
	client *redis.Client
	ttl    time.Duration
	logger core.Logger
}

var _ user.Authorizer = (*Authorizer)(nil)

func New(next user.Authorizer, client *redis.Client, ttl time.Duration, logger core.Logger) *Authorizer {
	return &Authorizer{next: next, client: client, ttl: ttl, logger: logger}
}

func userKey(userID string) string { return keyPrefix + userID }

func (a *Authorizer) HasRole(ctx context.Context, userID, role string) (bool, error) {
	return a.cached(ctx, userID, "role:"+role, func() (bool, error) {
		return a.next.HasRole(ctx, userID, role)
	})
}

func (a *Authorizer) CanReview(ctx context.Context, userID, courseID string) (bool, error) {
	return a.cached(ctx, userID, "review:"+courseID, func() (bool, error) {
		return a.next.CanReview(ctx, userID, courseID)
	})
}

// Invalidate drops every cached answer about the user. Call it after changing roles or assignments.
func (a *Authorizer) Invalidate(ctx context.Context, userID string) error {
	return a.client.Del(ctx, userKey(userID)).Err()
}

func (a *Authorizer) cached(ctx context.Context, userID, field string, load func() (bool, error)) (bool, error) {
	key := userKey(userID)
	val, err := a.client.HGet(ctx, key, field).Result()
	switch {
	case err == nil:
		return val == "1", nil
	case err != redis.Nil:
		a.logger.Warn("reading authorization cache", err, map[string]interface{}{"user_id": userID, "field": field})
	}

	ok, err := load()
	if err != nil {
		return false, err
	}
	val = "0"
	if ok {
		val = "1"
	}
	_, err = a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, field, val)
		pipe.Expire(ctx, key, a.ttl)
		return nil
	})
	if err != nil {
		a.logger.Warn("writing authorization cache", err, map[string]interface{}{"user_id": userID, "field": field})
	}
	return ok, nil
}
