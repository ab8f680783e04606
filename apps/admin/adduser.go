package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/Marwebofficial/studio-sub000/core"
	"github.com/Marwebofficial/studio-sub000/core/user"
)

// addUser updates or creates a user.User, matched by username then email.
func (cli *commandLine) addUser(name, uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.findUser(ctx, user.GetFilter{Username: uname}, user.GetFilter{Email: email})
	isNew := errors.Cause(err) == user.ErrNotFound
	if err != nil && !isNew {
		return err
	}

	now := time.Now().UTC()
	if isNew {
		usr = user.User{Username: uname, Email: email, Roles: user.StudentRoles, CreatedAt: now}
	}
	if name = core.CleanString(name); name != "" {
		usr.Name = name
	}
	if isAdmin {
		usr.Roles = user.AllRoles
	}
	usr.UpdatedAt = now
	usr.SetActive(true)
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if isNew {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	}
	return err
}

func (cli *commandLine) findUser(ctx context.Context, filters ...user.GetFilter) (user.User, error) {
	for _, filter := range filters {
		usr, err := cli.usrRepo.GetUser(ctx, filter)
		if err == nil {
			return usr, nil
		}
		if errors.Cause(err) != user.ErrNotFound {
			return user.User{}, err
		}
	}
	return user.User{}, user.ErrNotFound
}
