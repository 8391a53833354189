package cli

import (
	"habitTrackerAPI/internal/friend"
)

type FriendsListCmd struct{}

func (c *FriendsListCmd) Run(ctx *Context) error {
	if err := ctx.requireSession(); err != nil {
		return err
	}
	friends, err := ctx.Tracker.Friends(ctx.Ctx)
	if err != nil {
		return err
	}
	if len(friends) == 0 {
		ctx.printf("No friends yet. Share your code from `habitctl me`\n")
		return nil
	}
	ctx.printf("%s\n", titleStyle.Render("Friends:"))
	for _, f := range friends {
		ctx.printf("  %s <%s>  code %s  (%s)\n", f.DisplayName(), f.Email, f.ShareCode, f.ID)
	}
	return nil
}

type FriendsRequestsCmd struct{}

func (c *FriendsRequestsCmd) Run(ctx *Context) error {
	if err := ctx.requireSession(); err != nil {
		return err
	}
	requests, err := ctx.Tracker.FriendRequests(ctx.Ctx)
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		ctx.printf("No pending friend requests\n")
		return nil
	}
	ctx.printf("%s\n", titleStyle.Render("Pending requests:"))
	for _, r := range requests {
		ctx.printf("  %s <%s>  (%s)\n", r.DisplayName(), r.Email, r.ID)
	}
	return nil
}

type FriendsAddCmd struct {
	Code string `arg:"" help:"The friend's share code."`
}

func (c *FriendsAddCmd) Run(ctx *Context) error {
	if err := ctx.requireSession(); err != nil {
		return err
	}
	conn, err := ctx.Tracker.AddFriend(ctx.Ctx, c.Code)
	if err != nil {
		return err
	}
	ctx.printf("Friend request sent to %s\n", conn.DisplayName())
	return nil
}

type FriendsAcceptCmd struct {
	ID string `arg:"" help:"Request id."`
}

func (c *FriendsAcceptCmd) Run(ctx *Context) error {
	return respond(ctx, c.ID, friend.ActionAccept, "Accepted friend request")
}

type FriendsRejectCmd struct {
	ID string `arg:"" help:"Request id."`
}

func (c *FriendsRejectCmd) Run(ctx *Context) error {
	return respond(ctx, c.ID, friend.ActionReject, "Rejected friend request")
}

type FriendsRemoveCmd struct {
	ID string `arg:"" help:"Connection id."`
}

func (c *FriendsRemoveCmd) Run(ctx *Context) error {
	if err := ctx.requireSession(); err != nil {
		return err
	}
	if err := ctx.Tracker.RemoveFriend(ctx.Ctx, c.ID); err != nil {
		return err
	}
	ctx.printf("Removed friend\n")
	return nil
}

func respond(ctx *Context, id string, action friend.Action, done string) error {
	if err := ctx.requireSession(); err != nil {
		return err
	}
	if err := ctx.Tracker.RespondFriend(ctx.Ctx, id, action); err != nil {
		return err
	}
	ctx.printf("%s\n", done)
	return nil
}
