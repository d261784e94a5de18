package main

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/smis/core/user"
)

func (cli *commandLine) login(ctx context.Context, args []string) error {
	fs := cli.flagSet("login")
	email := fs.String("email", "", "your email. The password will be prompted next.")
	if _, err := cli.parse(fs, args); err != nil {
		return err
	}
	if *email == "" {
		fs.Usage()
		return errHelp
	}
	pwd, err := cli.readPassword("Enter password:")
	if err != nil {
		return err
	}
	if pwd == "" {
		fs.Usage()
		return errHelp
	}
	if _, err = cli.store.Login(ctx, *email, pwd); err != nil {
		return err
	}
	_, err = cli.store.FetchClasses(ctx)
	return err
}

func (cli *commandLine) signup(ctx context.Context, args []string) error {
	fs := cli.flagSet("signup")
	email := fs.String("email", "", "your email. The password will be prompted next.")
	name := fs.String("name", "", "your full name")
	phone := fs.String("phone", "", "your phone number")
	if _, err := cli.parse(fs, args); err != nil {
		return err
	}
	if *email == "" {
		fs.Usage()
		return errHelp
	}
	pwd, err := cli.readPassword("Enter password:")
	if err != nil {
		return err
	}
	confirm, err := cli.readPassword("Confirm password:")
	if err != nil {
		return err
	}
	if pwd == "" {
		fs.Usage()
		return errHelp
	}
	if pwd != confirm {
		return errors.New("passwords do not match")
	}
	_, err = cli.store.Signup(ctx, user.NewUser{Email: *email, Password: pwd, Name: *name, Phone: *phone})
	return err
}

func (cli *commandLine) logout(ctx context.Context, _ []string) error {
	return cli.store.Logout(ctx)
}

func (cli *commandLine) whoami(context.Context, []string) error {
	st := cli.store.State()
	if st.CurrentUser == nil {
		cli.r.muted("not logged in")
		return nil
	}
	cli.r.user(*st.CurrentUser)
	return nil
}

func (cli *commandLine) profile(ctx context.Context, args []string) error {
	fs := cli.flagSet("profile")
	fs.String("name", "", "your full name")
	fs.String("email", "", "your email")
	fs.String("phone", "", "your phone number")
	avatar := fs.String("avatar", "", "path to a JPEG, PNG, GIF or BMP picture")
	if _, err := cli.parse(fs, args); err != nil {
		return err
	}

	pu := user.ProfileUpdate{
		Name:  fs.ptr("name"),
		Email: fs.ptr("email"),
		Phone: fs.ptr("phone"),
	}
	if *avatar != "" {
		f, err := os.Open(*avatar)
		if err != nil {
			return errors.Wrap(err, "opening avatar")
		}
		defer func() { _ = f.Close() }()
		pu.Avatar = &user.Avatar{Filename: f.Name(), Content: f}
	}
	if pu.Name == nil && pu.Email == nil && pu.Phone == nil && pu.Avatar == nil {
		return cli.whoami(ctx, nil)
	}

	usr, err := cli.store.UpdateProfile(ctx, pu)
	if err != nil {
		return err
	}
	cli.r.user(usr)
	return nil
}

func (cli *commandLine) passwd(ctx context.Context, _ []string) error {
	pwd, err := cli.readPassword("New password:")
	if err != nil {
		return err
	}
	if pwd == "" {
		return errHelp
	}
	return cli.store.UpdatePassword(ctx, pwd)
}

func (cli *commandLine) resetPassword(ctx context.Context, args []string) error {
	fs := cli.flagSet("resetpassword")
	email := fs.String("email", "", "the email of the account")
	if _, err := cli.parse(fs, args); err != nil {
		return err
	}
	if *email == "" {
		fs.Usage()
		return errHelp
	}
	return cli.store.ResetPassword(ctx, *email)
}
