package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ps965xx7vn-lgtm/backend-sub002/core/user"
)

// addUser creates a user, or updates the roles of an existing one and reactivates it.
func (cli *commandLine) addUser(ctx context.Context, name, email string, roles []string) error {
	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	if err == user.ErrNotFound {
		if usr, err = cli.usrSvc.Create(ctx, user.NewUser{Name: name, Email: email, Roles: roles}); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "created user %s (%s)\n", usr.Email, usr.ID)
		return nil
	}
	if err != nil {
		return err
	}

	if len(roles) > 0 {
		if usr, err = cli.usrSvc.SetRoles(ctx, usr.ID, roles); err != nil {
			return err
		}
	}
	if err = cli.usrSvc.SetActive(ctx, usr.ID, true); err != nil {
		return err
	}
	if err = cli.invalidate(ctx, usr.ID); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "updated user %s (%s) roles=%s\n", usr.Email, usr.ID, strings.Join(usr.Roles, ","))
	return nil
}

// lookupUser resolves an email or an ID.
func (cli *commandLine) lookupUser(ctx context.Context, ref string) (user.User, error) {
	if strings.Contains(ref, "@") {
		return cli.usrSvc.GetByEmail(ctx, ref)
	}
	return cli.usrSvc.GetByID(ctx, ref)
}

// invalidate drops the cached authorization answers of a user whose roles changed.
func (cli *commandLine) invalidate(ctx context.Context, userID string) error {
	if cli.authz == nil {
		return nil
	}
	return cli.authz.Invalidate(ctx, userID)
}
