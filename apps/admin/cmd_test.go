package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/content"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/course"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/user"
	"github.com/ps965xx7vn-lgtm/backend-sub002/services/authzcache"
	logsvc "github.com/ps965xx7vn-lgtm/backend-sub002/services/logger"
	testutil "github.com/ps965xx7vn-lgtm/backend-sub002/tests"
)

func setup(t *testing.T) (*commandLine, *testutil.Env, *bytes.Buffer) {
	env := testutil.NewEnv(t)
	out := new(bytes.Buffer)

	// start CLI
	return &commandLine{
		db:         env.DB,
		usrSvc:     env.Users,
		courseSvc:  env.Courses,
		contentSvc: env.Content,
		outbox:     env.Outbox,
		in:         strings.NewReader(""),
		out:        out,
	}, env, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantOut    string
	extra      interface{}
}

func (tt cliTest) run(t *testing.T, cli *commandLine, out *bytes.Buffer) {
	t.Helper()
	out.Reset()
	err := cli.run(append([]string{"admin"}, tt.args...))
	switch {
	case tt.wantErr != nil:
		assert.ErrorIs(t, err, tt.wantErr)
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	default:
		assert.NoError(t, err)
	}
	if tt.wantOut != "" {
		assert.Contains(t, out.String(), tt.wantOut)
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli, _, out := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp, wantOut: "Usage:"},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp, wantOut: "Usage:"},
		{name: "help flag", args: []string{"adduser", "-h"}, wantErr: errHelp, wantOut: "-email"},
		{name: "unknown flag", args: []string{"addcourse", "-lol"}, wantErrStr: "flag provided but not defined: -lol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.run(t, cli, out) })
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, out := setup(t)

	orig := gooseRunFunc
	t.Cleanup(func() { gooseRunFunc = orig })
	gooseRunFunc = func(_ context.Context, _ *sqlx.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.run(t, cli, out) })
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, env, out := setup(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := authzcache.New(env.Users, client, time.Minute, logsvc.Nop)
	cli.authz = cache

	existing := env.CreateUser(t, "Awe", "awe@test.cd", user.RoleStudent)
	require.NoError(t, env.Users.SetActive(ctx, existing.ID, false))
	ok, err := cache.HasRole(ctx, existing.ID, user.RoleReviewer)
	require.NoError(t, err)
	require.False(t, ok)

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "new user without name", args: []string{"adduser", "-email", "new@test.cd"}, wantErrStr: "invalid input"},
		{name: "invalid role", args: []string{"adduser", "-name", "New", "-email", "new@test.cd", "-roles", "lol"}, wantErrStr: "invalid input"},
		{name: "create", args: []string{"adduser", "-name", "New", "-email", "New@Test.cd", "-roles", "admin:, student:"}, wantOut: "created user new@test.cd"},
		{name: "update existing", args: []string{"adduser", "-email", "awe@test.cd", "-roles", "reviewer:"}, wantOut: "roles=reviewer:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.run(t, cli, out) })
	}

	created, err := env.Users.GetByEmail(ctx, "new@test.cd")
	require.NoError(t, err)
	assert.Equal(t, "New", created.Name)
	assert.True(t, created.IsAdmin())
	assert.True(t, created.IsStudent())

	updated, err := env.Users.GetByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsActive)
	assert.Equal(t, []string{user.RoleReviewer}, updated.Roles)

	assert.False(t, mr.Exists("authz:"+existing.ID), "cached answers are dropped")
	ok, err = cache.HasRole(ctx, existing.ID, user.RoleReviewer)
	require.NoError(t, err)
	assert.True(t, ok)
}

func Test_commandLine_courses(t *testing.T) {
	cli, env, out := setup(t)
	ctx := context.Background()

	c := env.CreateCourse(t, "Go")
	reviewer := env.CreateUser(t, "Rev", "rev@test.cd")
	other := env.CreateUser(t, "Other", "other@test.cd", user.RoleStudent)

	tests := []cliTest{
		{name: "addcourse: no title", args: []string{"addcourse"}, wantErr: errHelp},
		{name: "addcourse", args: []string{"addcourse", "-title", "  Databases "}, wantOut: `created course "Databases"`},
		{name: "addlesson: missing course flag", args: []string{"addlesson", "-title", "Intro"}, wantErr: errHelp},
		{name: "addlesson: unknown course", args: []string{"addlesson", "-course", core.NewID(), "-title", "Intro"}, wantErr: course.ErrNotFound},
		{name: "addlesson", args: []string{"addlesson", "-course", c.ID, "-title", "Intro"}, wantOut: "in course " + c.ID},
		{name: "assignreviewer: missing user flag", args: []string{"assignreviewer", "-course", c.ID}, wantErr: errHelp},
		{name: "assignreviewer: unknown course", args: []string{"assignreviewer", "-course", "lol", "-user", reviewer.Email}, wantErr: course.ErrNotFound},
		{name: "assignreviewer: unknown user", args: []string{"assignreviewer", "-course", c.ID, "-user", "nobody@test.cd"}, wantErr: user.ErrNotFound},
		{name: "assignreviewer by email", args: []string{"assignreviewer", "-course", c.ID, "-user", reviewer.Email}, wantOut: "rev@test.cd now reviews course"},
		{name: "assignreviewer by id", args: []string{"assignreviewer", "-course", c.ID, "-user", other.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.run(t, cli, out) })
	}

	ids, err := env.Users.ReviewerIDs(ctx, c.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{reviewer.ID, other.ID}, ids)

	ok, err := env.Users.CanReview(ctx, other.ID, c.ID)
	require.NoError(t, err)
	assert.True(t, ok, "the reviewer role is granted on assignment")
}

func Test_commandLine_recount(t *testing.T) {
	cli, env, out := setup(t)
	ctx := context.Background()

	origIsTerminal := isTerminalFunc
	t.Cleanup(func() { isTerminalFunc = origIsTerminal })

	author := env.CreateUser(t, "Author", "author@test.cd")
	a1 := env.CreateArticle(t, author.ID, content.ArticlePublished, true)
	a2 := env.CreateArticle(t, author.ID, content.ArticlePublished, true)
	corrupt := func() {
		_, err := env.DB.Exec(env.DB.Rebind("UPDATE articles SET likes_count = ?, views_count = ?"), 7, 3)
		require.NoError(t, err)
	}
	counts := func(id string) (int, int) {
		a, err := env.Content.GetArticle(ctx, id)
		require.NoError(t, err)
		return a.LikesCount, a.ViewsCount
	}

	type extra struct {
		fd       bool // the input exposes a file descriptor
		terminal bool
		input    string
		fixed    bool
	}
	tests := []cliTest{
		{name: "no args", args: []string{"recount"}, wantErr: errHelp},
		{name: "both article and all", args: []string{"recount", "-article", a1.ID, "-all"}, wantErr: errHelp},
		{name: "unknown article", args: []string{"recount", "-article", core.NewID()}, wantErr: content.ErrArticleNotFound},
		{name: "one article", args: []string{"recount", "-article", a1.ID}, wantOut: "likes=0", extra: extra{}},
		{name: "all without terminal", args: []string{"recount", "-all"}, wantErr: errNotConfirmed, extra: extra{fd: true}},
		{name: "all from a plain reader", args: []string{"recount", "-all"}, wantErr: errNotConfirmed, extra: extra{terminal: true, input: "y\n"}},
		{name: "all declined", args: []string{"recount", "-all"}, wantErr: errNotConfirmed, extra: extra{fd: true, terminal: true, input: "n\n"}},
		{name: "all confirmed", args: []string{"recount", "-all"}, wantOut: "recounted 2 articles", extra: extra{fd: true, terminal: true, input: "y\n", fixed: true}},
		{name: "all with -yes", args: []string{"recount", "-all", "-yes"}, wantOut: "recounted 2 articles", extra: extra{fixed: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corrupt()
			ex, _ := tt.extra.(extra)
			gotFd := -1
			isTerminalFunc = func(fd int) bool {
				gotFd = fd
				return ex.terminal
			}
			cli.in = strings.NewReader(ex.input)
			if ex.fd {
				cli.in = fdReader{Reader: strings.NewReader(ex.input), fd: 42}
			}

			tt.run(t, cli, out)

			if ex.fd {
				assert.Equal(t, 42, gotFd, "the terminal check uses the command's input")
			} else {
				assert.Equal(t, -1, gotFd)
			}
			likes, views := counts(a2.ID)
			if ex.fixed {
				assert.Equal(t, 0, likes)
				assert.Equal(t, 0, views)
			} else {
				assert.Equal(t, 7, likes, "untouched")
				assert.Equal(t, 3, views, "untouched")
			}
		})
	}
}

// fdReader is an input that looks like an open file.
type fdReader struct {
	*strings.Reader
	fd uintptr
}

func (r fdReader) Fd() uintptr { return r.fd }

func Test_commandLine_relay(t *testing.T) {
	cli, env, out := setup(t)
	ctx := context.Background()
	clock := testutil.MockNow(t, time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC))

	n := core.NewNotification(core.NewID(), "comment.posted", nil)
	err := core.WithTx(ctx, env.DB, func(tx core.DBExecutor) error {
		return env.Outbox.Add(ctx, tx, n)
	})
	require.NoError(t, err)

	tests := []cliTest{
		{name: "nothing due", args: []string{"relay"}, wantOut: "delivered 0 notifications"},
		{name: "due", args: []string{"relay"}, wantOut: "delivered 1 notifications"},
		{name: "already sent", args: []string{"relay"}, wantOut: "delivered 0 notifications"},
	}
	for i, tt := range tests {
		if i == 1 {
			clock.Advance(env.Conf.Outbox.RetryBackoff)
		}
		t.Run(tt.name, func(t *testing.T) { tt.run(t, cli, out) })
	}
	assert.Equal(t, []string{"comment.posted"}, env.Notifier.Events(n.RecipientID))
}
