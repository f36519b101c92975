package authzcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logsvc "github.com/ps965xx7vn-lgtm/backend-sub002/services/logger"
)

type stubAuthorizer struct {
	roles   map[string]bool
	courses map[string]bool
	err     error
	calls   int
}

func (s *stubAuthorizer) HasRole(_ context.Context, userID, role string) (bool, error) {
	s.calls++
	return s.roles[userID+role], s.err
}

func (s *stubAuthorizer) CanReview(_ context.Context, userID, courseID string) (bool, error) {
	s.calls++
	return s.courses[userID+courseID], s.err
}

func setup(t *testing.T) (*miniredis.Miniredis, *stubAuthorizer, *Authorizer) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	stub := &stubAuthorizer{
		roles:   map[string]bool{"u1reviewer:": true},
		courses: map[string]bool{"u1c1": true},
	}
	return mr, stub, New(stub, client, time.Minute, logsvc.Nop)
}

func TestAuthorizer_cachesAnswers(t *testing.T) {
	mr, stub, a := setup(t)
	ctx := context.Background()

	tests := []struct {
		name string
		ask  func() (bool, error)
		want bool
	}{
		{name: "role held", ask: func() (bool, error) { return a.HasRole(ctx, "u1", "reviewer:") }, want: true},
		{name: "role missing", ask: func() (bool, error) { return a.HasRole(ctx, "u1", "admin:") }, want: false},
		{name: "course assigned", ask: func() (bool, error) { return a.CanReview(ctx, "u1", "c1") }, want: true},
		{name: "course not assigned", ask: func() (bool, error) { return a.CanReview(ctx, "u1", "c2") }, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := stub.calls
			for i := 0; i < 3; i++ {
				got, err := tt.ask()
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.Equal(t, before+1, stub.calls, "answers are loaded once")
		})
	}

	assert.True(t, mr.Exists("authz:u1"))
	assert.Equal(t, time.Minute, mr.TTL("authz:u1"))

	mr.FastForward(2 * time.Minute)
	_, err := a.HasRole(ctx, "u1", "reviewer:")
	require.NoError(t, err)
	assert.Equal(t, 5, stub.calls, "expired answers are reloaded")
}

func TestAuthorizer_Invalidate(t *testing.T) {
	_, stub, a := setup(t)
	ctx := context.Background()

	ok, err := a.HasRole(ctx, "u1", "reviewer:")
	require.NoError(t, err)
	assert.True(t, ok)

	stub.roles["u1reviewer:"] = false
	require.NoError(t, a.Invalidate(ctx, "u1"))

	ok, err = a.HasRole(ctx, "u1", "reviewer:")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizer_errors(t *testing.T) {
	mr, stub, a := setup(t)
	ctx := context.Background()

	stub.err = errors.New("db down")
	_, err := a.HasRole(ctx, "u1", "reviewer:")
	assert.Error(t, err)
	assert.False(t, mr.Exists("authz:u1"), "failures are not cached")

	// redis down: answers come from the wrapped authorizer
	stub.err = nil
	mr.Close()
	ok, err := a.HasRole(ctx, "u1", "reviewer:")
	require.NoError(t, err)
	assert.True(t, ok)
}
