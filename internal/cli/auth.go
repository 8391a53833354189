package cli

import (
	"errors"
	"fmt"

	"habitTrackerAPI/internal/logger"
	"habitTrackerAPI/internal/user"
)

type RegisterCmd struct {
	Email    string `arg:"" help:"Account email."`
	Name     string `short:"n" help:"Display name."`
	Password string `short:"p" help:"Password (prompted when omitted)." env:"HABITCTL_PASSWORD"`
}

func (c *RegisterCmd) Run(ctx *Context) error {
	password, err := passwordOrPrompt(ctx, c.Password)
	if err != nil {
		return err
	}
	req := user.RegisterRequest{Email: c.Email, Password: password}
	if c.Name != "" {
		req.Name = &c.Name
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return err
	}

	resp, err := ctx.Client.Register(ctx.Ctx, req)
	if err != nil {
		return err
	}
	if err := storeSession(ctx, resp); err != nil {
		return err
	}
	ctx.printf("Registered %s. Your share code is %s\n", resp.User.Email, resp.User.ShareCode)
	return nil
}

type LoginCmd struct {
	Email    string `arg:"" help:"Account email."`
	Password string `short:"p" help:"Password (prompted when omitted)." env:"HABITCTL_PASSWORD"`
}

func (c *LoginCmd) Run(ctx *Context) error {
	password, err := passwordOrPrompt(ctx, c.Password)
	if err != nil {
		return err
	}
	resp, err := ctx.Client.Login(ctx.Ctx, user.LoginRequest{Email: c.Email, Password: password})
	if err != nil {
		return err
	}
	if err := storeSession(ctx, resp); err != nil {
		return err
	}
	ctx.printf("Logged in as %s\n", resp.User.Email)
	return nil
}

type LogoutCmd struct{}

func (c *LogoutCmd) Run(ctx *Context) error {
	email := ctx.Config.Email
	ctx.Tracker.SignOut()
	ctx.Client.SetToken("")
	if email == "" {
		ctx.printf("Not logged in\n")
		return nil
	}
	if err := ctx.Tokens.Delete(ctx.Config.APIURL, email); err != nil {
		logger.Warn("Failed to delete stored token", "error", err)
	}
	ctx.Config.Email = ""
	if err := ctx.Config.Save(); err != nil {
		return err
	}
	ctx.printf("Logged out %s\n", email)
	return nil
}

type MeCmd struct{}

func (c *MeCmd) Run(ctx *Context) error {
	if err := ctx.requireSession(); err != nil {
		return err
	}
	u, err := ctx.Client.Me(ctx.Ctx)
	if err != nil {
		return err
	}
	name := "-"
	if u.Name != nil {
		name = *u.Name
	}
	ctx.printf("Email:      %s\nName:       %s\nShare code: %s\nMember since %s\n",
		u.Email, name, u.ShareCode, u.CreatedAt.Format("2006-01-02"))
	return nil
}

func passwordOrPrompt(ctx *Context, password string) (string, error) {
	if password != "" {
		return password, nil
	}
	password, err := ctx.secret("Password")
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", errors.New("password is required")
	}
	return password, nil
}

// storeSession keeps the token for later invocations. A missing keyring is
// not fatal: the session still works for this process.
func storeSession(ctx *Context, resp user.AuthResponse) error {
	ctx.Client.SetToken(resp.Token)
	ctx.Config.Email = resp.User.Email
	if err := ctx.Tokens.Save(ctx.Config.APIURL, resp.User.Email, resp.Token); err != nil {
		logger.Warn("Could not persist session token", "error", err)
		ctx.printf("warning: session token not saved (%v)\n", err)
	}
	if err := ctx.Config.Save(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}
