package notification

import (
	"errors"
	"strings"
)

type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformWeb     Platform = "web"
)

var ErrInvalidDevice = errors.New("invalid device registration")

type DeviceToken struct {
	Token    string   `json:"token"`
	Platform Platform `json:"platform"`
}

type RegisterDeviceRequest struct {
	Token    string   `json:"token"`
	Platform Platform `json:"platform"`
}

func (r *RegisterDeviceRequest) Normalize() {
	r.Token = strings.TrimSpace(r.Token)
	r.Platform = Platform(strings.ToLower(strings.TrimSpace(string(r.Platform))))
}

func (r RegisterDeviceRequest) Validate() error {
	if r.Token == "" {
		return errors.Join(ErrInvalidDevice, errors.New("token is required"))
	}
	switch r.Platform {
	case PlatformAndroid, PlatformIOS, PlatformWeb, "":
		return nil
	}
	return errors.Join(ErrInvalidDevice, errors.New("unknown platform"))
}

type Kind string

const (
	KindFriendRequest  Kind = "friend_request"
	KindFriendAccepted Kind = "friend_accepted"
)

// Message is one push to every device of a user.
type Message struct {
	UserID string
	Kind   Kind
	Title  string
	Body   string
	Data   map[string]string
}
