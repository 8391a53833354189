package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"habitTrackerAPI/internal/cli"
	"habitTrackerAPI/internal/client"
	"habitTrackerAPI/internal/config"
	"habitTrackerAPI/internal/habitsync"
	"habitTrackerAPI/internal/logger"
)

const version = "v0.1.0"

var CLI struct {
	Version kong.VersionFlag
	Config  string `help:"Config file path." type:"path" default:"~/.config/habitctl/config.toml"`
	API     string `help:"Override the API base URL." env:"HABITCTL_API_URL"`
	Debug   bool   `help:"Log debug output to stderr."`

	Register cli.RegisterCmd `cmd:"" help:"Create an account."`
	Login    cli.LoginCmd    `cmd:"" help:"Sign in and store the session token."`
	Logout   cli.LogoutCmd   `cmd:"" help:"Forget the stored session."`
	Me       cli.MeCmd       `cmd:"" help:"Show your profile and share code."`
	Habits   struct {
		List   cli.HabitsListCmd   `cmd:"" default:"1" help:"List habits with this week's progress."`
		Add    cli.HabitsAddCmd    `cmd:"" help:"Add a habit."`
		Edit   cli.HabitsEditCmd   `cmd:"" help:"Edit a habit."`
		Delete cli.HabitsDeleteCmd `cmd:"" help:"Delete a habit and its history."`
	} `cmd:"" help:"Manage habits."`
	Toggle  cli.ToggleCmd `cmd:"" help:"Toggle a habit's completion for a day."`
	Stats   cli.StatsCmd  `cmd:"" help:"Show completion statistics."`
	Friends struct {
		List     cli.FriendsListCmd     `cmd:"" default:"1" help:"List friends."`
		Requests cli.FriendsRequestsCmd `cmd:"" help:"List pending friend requests."`
		Add      cli.FriendsAddCmd      `cmd:"" help:"Send a friend request by share code."`
		Accept   cli.FriendsAcceptCmd   `cmd:"" help:"Accept a friend request."`
		Reject   cli.FriendsRejectCmd   `cmd:"" help:"Reject a friend request."`
		Remove   cli.FriendsRemoveCmd   `cmd:"" help:"Remove a friend."`
	} `cmd:"" help:"Manage friends."`
	Watch cli.WatchCmd `cmd:"" help:"Refresh in the background and print stats after each refresh."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("habitctl"),
		kong.Description("Habit tracker command line client"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	if err := run(kctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(kctx *kong.Context) error {
	cfg, err := config.LoadClient(CLI.Config)
	if err != nil {
		return err
	}
	if CLI.API != "" {
		cfg.APIURL = CLI.API
	}
	if CLI.Debug {
		cfg.Debug = true
	}
	if err := logger.Init(logger.Config{Debug: cfg.Debug, Dir: cfg.LogDir, Prefix: "habitctl", Quiet: true}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	tokens := cli.KeyringTokens{}
	opts := []client.Option{client.WithUserAgent("habitctl/" + version)}
	if cfg.Email != "" {
		token, err := tokens.Load(cfg.APIURL, cfg.Email)
		switch {
		case err == nil:
			opts = append(opts, client.WithToken(token))
		case errors.Is(err, config.ErrNoToken):
		default:
			logger.Warn("Could not read session token", "error", err)
		}
	}
	if cfg.HTTPCacheTTL > 0 {
		opts = append(opts, client.WithTransport(client.NewCachingTransport(http.DefaultTransport, cfg.HTTPCacheTTL)))
	}
	api, err := client.NewClient(cfg.APIURL, opts...)
	if err != nil {
		return err
	}

	tcfg := habitsync.DefaultConfig()
	tcfg.TTL = cfg.CacheTTL
	tcfg.Cooldown = cfg.RequestCooldown
	tcfg.PollInterval = cfg.PollInterval
	tcfg.UseDashboard = cfg.UseDashboard
	tracker := habitsync.New(api, tcfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer tracker.Deactivate()

	return kctx.Run(&cli.Context{
		Ctx:     ctx,
		Config:  &cfg,
		Client:  api,
		Tracker: tracker,
		Tokens:  tokens,
		In:      os.Stdin,
		Out:     os.Stdout,
	})
}
