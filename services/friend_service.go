package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"habitTrackerAPI/internal/friend"
	"habitTrackerAPI/internal/logger"
	"habitTrackerAPI/internal/notification"
)

// Notifier queues a push message.
type Notifier interface {
	Notify(msg notification.Message)
}

type FriendService struct {
	db       *pgxpool.Pool
	notifier Notifier
}

func NewFriendService(db *pgxpool.Pool, notifier Notifier) *FriendService {
	return &FriendService{db: db, notifier: notifier}
}

const connectionColumns = `fc.id::text, fc.user_id::text, fc.friend_id::text, fc.status, fc.created_at,
	u.email, u.full_name, u.share_code`

func scanConnection(row pgx.Row) (friend.Connection, error) {
	var c friend.Connection
	var status string
	err := row.Scan(&c.ID, &c.UserID, &c.FriendID, &status, &c.CreatedAt, &c.Email, &c.FullName, &c.ShareCode)
	c.Status = friend.Status(status)
	return c, err
}

func (s *FriendService) collect(ctx context.Context, query string, args ...any) ([]friend.Connection, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query friends: %w", err)
	}
	defer rows.Close()

	out := []friend.Connection{}
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan friend: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// List returns accepted connections with the friend's profile.
func (s *FriendService) List(ctx context.Context, userID string) ([]friend.Connection, error) {
	return s.collect(ctx, `
		SELECT `+connectionColumns+`
		FROM friend_connections fc
		JOIN users u ON u.id = fc.friend_id
		WHERE fc.user_id = $1 AND fc.status = 'accepted'
		ORDER BY fc.created_at DESC
	`, userID)
}

// Requests returns pending requests addressed to userID with the
// requester's profile.
func (s *FriendService) Requests(ctx context.Context, userID string) ([]friend.Connection, error) {
	return s.collect(ctx, `
		SELECT `+connectionColumns+`
		FROM friend_connections fc
		JOIN users u ON u.id = fc.user_id
		WHERE fc.friend_id = $1 AND fc.status = 'pending'
		ORDER BY fc.created_at DESC
	`, userID)
}

// Add sends a friend request to the owner of the share code.
func (s *FriendService) Add(ctx context.Context, userID string, req friend.AddFriendRequest) (friend.Connection, error) {
	code := req.Code()
	if code == "" {
		return friend.Connection{}, friend.ErrShareCodeRequired
	}

	var friendID string
	err := s.db.QueryRow(ctx, `SELECT id::text FROM users WHERE share_code = $1 AND is_active = true`, code).Scan(&friendID)
	if errors.Is(err, pgx.ErrNoRows) {
		return friend.Connection{}, friend.ErrInvalidShareCode
	}
	if err != nil {
		return friend.Connection{}, fmt.Errorf("failed to look up share code: %w", err)
	}
	if friendID == userID {
		return friend.Connection{}, friend.ErrSelfFriend
	}

	var exists bool
	err = s.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM friend_connections
			WHERE (user_id = $1 AND friend_id = $2)
			   OR (user_id = $2 AND friend_id = $1)
		)
	`, userID, friendID).Scan(&exists)
	if err != nil {
		return friend.Connection{}, fmt.Errorf("failed to check existing connection: %w", err)
	}
	if exists {
		return friend.Connection{}, friend.ErrAlreadyFriends
	}

	conn, err := scanConnection(s.db.QueryRow(ctx, `
		WITH fc AS (
			INSERT INTO friend_connections (user_id, friend_id, share_code, status)
			VALUES ($1, $2, $3, 'pending')
			RETURNING id, user_id, friend_id, status, created_at
		)
		SELECT `+connectionColumns+`
		FROM fc
		JOIN users u ON u.id = fc.friend_id
	`, userID, friendID, code))
	if err != nil {
		return friend.Connection{}, fmt.Errorf("failed to create friend request: %w", err)
	}

	s.notify(ctx, friendID, userID, notification.KindFriendRequest, conn.ID)
	logger.Debug("FriendService: request sent", "user_id", userID, "friend_id", friendID)
	return conn, nil
}

// Respond accepts or rejects a pending request addressed to userID.
// Accepting creates the reciprocal connection.
func (s *FriendService) Respond(ctx context.Context, userID, connectionID string, req friend.RespondRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if !validID(connectionID) {
		return friend.ErrRequestNotFound
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var requesterID string
	err = tx.QueryRow(ctx, `
		SELECT user_id::text FROM friend_connections
		WHERE id = $1 AND friend_id = $2 AND status = 'pending'
		FOR UPDATE
	`, connectionID, userID).Scan(&requesterID)
	if errors.Is(err, pgx.ErrNoRows) {
		return friend.ErrRequestNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load friend request: %w", err)
	}

	switch req.Action {
	case friend.ActionAccept:
		if _, err := tx.Exec(ctx, `UPDATE friend_connections SET status = 'accepted', updated_at = NOW() WHERE id = $1`, connectionID); err != nil {
			return fmt.Errorf("failed to accept friend request: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO friend_connections (user_id, friend_id, share_code, status)
			SELECT $1, u.id, u.share_code, 'accepted' FROM users u WHERE u.id = $2
			ON CONFLICT (user_id, friend_id) DO UPDATE SET status = 'accepted', updated_at = NOW()
		`, userID, requesterID)
		if err != nil {
			return fmt.Errorf("failed to create reciprocal connection: %w", err)
		}
	case friend.ActionReject:
		if _, err := tx.Exec(ctx, `UPDATE friend_connections SET status = 'blocked', updated_at = NOW() WHERE id = $1`, connectionID); err != nil {
			return fmt.Errorf("failed to reject friend request: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit friend response: %w", err)
	}
	if req.Action == friend.ActionAccept {
		s.notify(ctx, requesterID, userID, notification.KindFriendAccepted, connectionID)
	}
	return nil
}

// Remove deletes one of the caller's connections and its reverse row.
func (s *FriendService) Remove(ctx context.Context, userID, connectionID string) error {
	if !validID(connectionID) {
		return friend.ErrNotFound
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var friendID string
	err = tx.QueryRow(ctx, `
		DELETE FROM friend_connections WHERE id = $1 AND user_id = $2
		RETURNING friend_id::text
	`, connectionID, userID).Scan(&friendID)
	if errors.Is(err, pgx.ErrNoRows) {
		return friend.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to remove friend: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM friend_connections WHERE user_id = $1 AND friend_id = $2`, friendID, userID); err != nil {
		return fmt.Errorf("failed to remove reverse connection: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit friend removal: %w", err)
	}
	return nil
}

func (s *FriendService) notify(ctx context.Context, toUserID, fromUserID string, kind notification.Kind, connectionID string) {
	if s.notifier == nil {
		return
	}
	var email string
	var name *string
	if err := s.db.QueryRow(ctx, `SELECT email, full_name FROM users WHERE id = $1`, fromUserID).Scan(&email, &name); err != nil {
		logger.Warn("FriendService: failed to load sender for push", "user_id", fromUserID, "error", err)
		return
	}
	display := email
	if name != nil && *name != "" {
		display = *name
	}
	s.notifier.Notify(FriendMessage(toUserID, display, kind, connectionID))
}

// FriendMessage builds the push text for a friend event.
func FriendMessage(toUserID, fromName string, kind notification.Kind, connectionID string) notification.Message {
	msg := notification.Message{
		UserID: toUserID,
		Kind:   kind,
		Data:   map[string]string{"connection_id": connectionID},
	}
	switch kind {
	case notification.KindFriendAccepted:
		msg.Title = "Friend request accepted"
		msg.Body = fromName + " accepted your friend request"
	default:
		msg.Title = "New friend request"
		msg.Body = fromName + " wants to be your friend"
	}
	return msg
}
