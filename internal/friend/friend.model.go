package friend

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusBlocked  Status = "blocked"
)

// Connection is one directed row of friend_connections joined with the
// other user's public profile.
type Connection struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	FriendID  string    `json:"friend_id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`

	Email     string  `json:"email"`
	FullName  *string `json:"full_name,omitempty"`
	ShareCode string  `json:"share_code"`
}

func (c Connection) DisplayName() string {
	if c.FullName != nil && *c.FullName != "" {
		return *c.FullName
	}
	return c.Email
}
