package services

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"habitTrackerAPI/internal/notification"
)

const staleDeviceAge = "270 days"

// NotificationService stores device tokens and hands messages to the
// dispatcher.
type NotificationService struct {
	db         *pgxpool.Pool
	dispatcher *NotificationDispatcher
}

func NewNotificationService(db *pgxpool.Pool) *NotificationService {
	return &NotificationService{db: db}
}

// SetPushProvider starts the dispatcher with provider.
func (s *NotificationService) SetPushProvider(provider PushNotificationProvider) {
	s.dispatcher = NewNotificationDispatcher(s, provider, defaultDispatchWorkers)
	s.dispatcher.RunMaintenance(s.PruneStaleDevices)
}

func (s *NotificationService) RegisterDevice(ctx context.Context, userID string, req notification.RegisterDeviceRequest) error {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return err
	}
	platform := req.Platform
	if platform == "" {
		platform = notification.PlatformAndroid
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO device_tokens (token, user_id, platform, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (token) DO UPDATE
		SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform, updated_at = NOW()
	`, req.Token, userID, string(platform))
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

func (s *NotificationService) DeviceTokens(ctx context.Context, userID string) ([]notification.DeviceToken, error) {
	rows, err := s.db.Query(ctx, `SELECT token, platform FROM device_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []notification.DeviceToken
	for rows.Next() {
		var t notification.DeviceToken
		var platform string
		if err := rows.Scan(&t.Token, &platform); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		t.Platform = notification.Platform(platform)
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (s *NotificationService) PruneStaleDevices(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM device_tokens WHERE updated_at < NOW() - $1::interval`, staleDeviceAge)
	if err != nil {
		return 0, fmt.Errorf("failed to prune device tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Notify queues a push for msg.UserID. Without a provider it does nothing.
func (s *NotificationService) Notify(msg notification.Message) {
	if s == nil || s.dispatcher == nil {
		return
	}
	s.dispatcher.Dispatch(msg)
}

func (s *NotificationService) Stop() {
	if s.dispatcher != nil {
		s.dispatcher.Stop()
	}
}
