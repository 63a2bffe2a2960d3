package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/jazzedge/academy/core"
	"github.com/jazzedge/academy/core/user"
)

// addUser updates the user matching uname or email, or creates it.
func (cli *commandLine) addUser(name, uname, email, pwd string, roles []string) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	if err := cli.validate.Var(roles, "omitempty,allroles"); err != nil {
		return errors.Errorf("invalid roles %v", roles)
	}

	lookup := uname
	if lookup == "" {
		lookup = email
	}
	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(ctx, lookup)
	switch {
	case errors.Cause(err) == user.ErrNotFound:
		now := core.Now()
		usr = user.User{Name: name, Username: uname, Email: email, CreatedAt: now}
	case err != nil:
		return err
	}

	if name != "" {
		usr.Name = name
	}
	if len(roles) > 0 {
		usr.Roles = roles
	}
	usr.IsActive = true
	usr.UpdatedAt = core.Now()
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}

	if usr.ID == 0 {
		usr, err = cli.usrRepo.CreateUser(ctx, usr)
	} else {
		usr, err = cli.usrRepo.UpdateUser(ctx, usr)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %q saved (id %d)\n", usr.Username, usr.ID)
	return nil
}
