package friend

import (
	"errors"
	"strings"
)

var (
	ErrShareCodeRequired = errors.New("share code is required")
	ErrInvalidShareCode  = errors.New("invalid share code")
	ErrSelfFriend        = errors.New("cannot add yourself as a friend")
	ErrAlreadyFriends    = errors.New("already friends with this user")
	ErrRequestNotFound   = errors.New("friend request not found")
	ErrInvalidAction     = errors.New("invalid action")
	ErrNotFound          = errors.New("friend connection not found")
)

type AddFriendRequest struct {
	ShareCode string `json:"shareCode"`
}

// Code returns the normalized share code.
func (r AddFriendRequest) Code() string {
	return strings.ToUpper(strings.TrimSpace(r.ShareCode))
}

type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

type RespondRequest struct {
	Action Action `json:"action"`
}

func (r RespondRequest) Validate() error {
	switch r.Action {
	case ActionAccept, ActionReject:
		return nil
	}
	return ErrInvalidAction
}
