package di

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/user"
	"github.com/ps965xx7vn-lgtm/backend-sub002/storage/database"
)

func testConfig(t *testing.T) *core.Config {
	conf := core.NewTestConfig()
	conf.Database.Engine = database.EngineSQLite
	conf.Database.DSN = "file:" + filepath.Join(t.TempDir(), "di.db") + "?_foreign_keys=1&_busy_timeout=5000&_txlock=immediate"
	return conf
}

func TestNew(t *testing.T) {
	mr := miniredis.RunT(t)
	conf := testConfig(t)
	conf.Redis.Addr = mr.Addr()

	c, err := New(conf, Options{Name: "test", Migrate: true})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	require.NotNil(t, c.Redis)
	require.NotNil(t, c.AuthzCache)
	assert.NotNil(t, c.Submissions)
	assert.NotNil(t, c.Content)

	ctx := context.Background()
	n := core.NewNotification(core.NewID(), "comment.posted", map[string]interface{}{"comment_id": "c1"})
	err = core.WithTx(ctx, c.DB, func(tx core.DBExecutor) error {
		return c.Outbox.Add(ctx, tx, n)
	})
	require.NoError(t, err)
	c.Outbox.Deliver(ctx, n)

	items, err := mr.List(conf.Redis.NotificationQueue)
	require.NoError(t, err)
	assert.Len(t, items, 1, "notifications reach the task queue")
}

func TestNew_withoutRedis(t *testing.T) {
	tests := []struct {
		name string
		addr string
	}{
		{name: "not configured"},
		{name: "unreachable", addr: "127.0.0.1:1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := testConfig(t)
			conf.Redis.Addr = tt.addr

			c, err := New(conf, Options{Migrate: true})
			require.NoError(t, err)
			defer c.Close()

			assert.Nil(t, c.Redis)
			assert.Nil(t, c.AuthzCache)

			u, err := c.Users.Create(context.Background(), userFixture())
			require.NoError(t, err)
			ok, err := c.Users.HasRole(context.Background(), u.ID, "student:")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestNew_badEngine(t *testing.T) {
	conf := testConfig(t)
	conf.Database.Engine = "oracle"

	_, err := New(conf, Options{})
	assert.Error(t, err)
}

func userFixture() user.NewUser {
	return user.NewUser{Name: "Awe", Email: "awe@test.cd", Roles: []string{user.RoleStudent}}
}
