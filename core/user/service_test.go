package user_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core"
	"github.com/ps965xx7vn-lgtm/backend-sub002/core/user"
	testutil "github.com/ps965xx7vn-lgtm/backend-sub002/tests"
)

func TestService_Create(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	env.CreateUser(t, "Awe", "awe@test.cd")

	tests := []struct {
		name      string
		nu        user.NewUser
		wantField string
		wantErr   error
	}{
		{name: "blank name", nu: user.NewUser{Name: "  ", Email: "x@test.cd"}, wantField: "name"},
		{name: "invalid email", nu: user.NewUser{Name: "X", Email: "lol"}, wantField: "email"},
		{name: "unknown role", nu: user.NewUser{Name: "X", Email: "x@test.cd", Roles: []string{"lol"}}, wantField: "roles"},
		{name: "email taken", nu: user.NewUser{Name: "X", Email: " AWE@test.cd"}, wantField: "email", wantErr: user.ErrEmailExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Users.Create(ctx, tt.nu)
			var vErr *core.ValidationError
			require.True(t, errors.As(err, &vErr), "got %v", err)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, vErr.Err)
			}
			var fields []string
			for _, f := range vErr.Fields {
				fields = append(fields, f.Field)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}

	usr, err := env.Users.Create(ctx, user.NewUser{Name: "  Jo Doe ", Email: "Jo@Test.cd", Roles: []string{"Student:"}})
	require.NoError(t, err)
	assert.Equal(t, "Jo Doe", usr.Name)
	assert.Equal(t, "jo@test.cd", usr.Email)
	assert.True(t, usr.IsActive)
	assert.True(t, usr.IsStudent())

	got, err := env.Users.GetByEmail(ctx, "JO@test.cd")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)
	assert.Equal(t, []string{user.RoleStudent}, got.Roles)
}

func TestService_SetRoles(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	usr := env.CreateUser(t, "Awe", "awe@test.cd", user.RoleStudent)

	_, err := env.Users.SetRoles(ctx, usr.ID, []string{"lol"})
	var vErr *core.ValidationError
	assert.True(t, errors.As(err, &vErr))

	_, err = env.Users.SetRoles(ctx, core.NewID(), []string{user.RoleAdmin})
	assert.Equal(t, user.ErrNotFound, err)

	usr, err = env.Users.SetRoles(ctx, usr.ID, []string{"Admin:Owner", user.RoleReviewer})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{user.RoleAdminOwner, user.RoleReviewer}, usr.Roles)
	assert.False(t, usr.IsStudent())

	usr, err = env.Users.SetRoles(ctx, usr.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, usr.Roles)
}

func TestService_authorization(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	c1 := env.CreateCourse(t, "Go")
	c2 := env.CreateCourse(t, "SQL")
	admin := env.CreateUser(t, "Admin", "admin@test.cd", user.RoleAdminPrincipal)
	reviewer := env.CreateUser(t, "Rev", "rev@test.cd")
	student := env.CreateUser(t, "Stu", "stu@test.cd", user.RoleStudent)
	inactive := env.CreateUser(t, "Off", "off@test.cd", user.RoleAdminOwner)
	require.NoError(t, env.Users.SetActive(ctx, inactive.ID, false))

	env.AssignReviewer(t, c1.ID, reviewer.ID)
	env.AssignReviewer(t, c1.ID, reviewer.ID) // idempotent

	tests := []struct {
		name   string
		userID string
		role   string
		course string
		want   bool
	}{
		{name: "admin prefix", userID: admin.ID, role: user.RoleAdmin, want: true},
		{name: "admin reviews any course", userID: admin.ID, course: c2.ID, want: true},
		{name: "reviewer role granted", userID: reviewer.ID, role: user.RoleReviewer, want: true},
		{name: "reviewer assigned course", userID: reviewer.ID, course: c1.ID, want: true},
		{name: "reviewer other course", userID: reviewer.ID, course: c2.ID},
		{name: "student is not reviewer", userID: student.ID, role: user.RoleReviewer},
		{name: "student cannot review", userID: student.ID, course: c1.ID},
		{name: "inactive holds no role", userID: inactive.ID, role: user.RoleAdmin},
		{name: "inactive cannot review", userID: inactive.ID, course: c1.ID},
		{name: "unknown user", userID: core.NewID(), role: user.RoleStudent},
		{name: "malformed id", userID: "lol", course: c1.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got bool
			var err error
			if tt.course != "" {
				got, err = env.Users.CanReview(ctx, tt.userID, tt.course)
			} else {
				got, err = env.Users.HasRole(ctx, tt.userID, tt.role)
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	ids, err := env.Users.ReviewerIDs(ctx, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{reviewer.ID}, ids)

	assert.Equal(t, user.ErrNotFound, env.Users.AssignReviewer(ctx, c1.ID, core.NewID()))
}
