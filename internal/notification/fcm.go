package notification

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"habitTrackerAPI/internal/logger"
)

var ErrAllPushesFailed = errors.New("all push notifications failed")

// Sender is the part of the FCM messaging client the service uses.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type FCMService struct {
	client Sender
}

// NewFCMService initializes FCM from base64 encoded service account JSON,
// falling back to a credentials file.
func NewFCMService(ctx context.Context, encodedCreds, credentialsFile string) (*FCMService, error) {
	var opt option.ClientOption

	if encodedCreds != "" {
		decoded, err := base64.StdEncoding.DecodeString(encodedCreds)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 firebase credentials: %w", err)
		}
		opt = option.WithCredentialsJSON(decoded)
		logger.Info("FCM Service: initializing from FCM_SERVICE_ACCOUNT_JSON")
	} else {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("firebase credentials file %q: %w", credentialsFile, err)
		}
		opt = option.WithCredentialsFile(credentialsFile)
		logger.Info("FCM Service: initializing from credentials file", "path", credentialsFile)
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}
	return &FCMService{client: client}, nil
}

func NewFCMServiceWithSender(sender Sender) *FCMService {
	return &FCMService{client: sender}
}

// SendPush sends msg to each token one at a time. It fails only when every
// send failed.
func (s *FCMService) SendPush(ctx context.Context, tokens []DeviceToken, msg Message) error {
	if len(tokens) == 0 {
		return nil
	}

	data := make(map[string]string, len(msg.Data)+1)
	for k, v := range msg.Data {
		data[k] = v
	}
	if msg.Kind != "" {
		data["kind"] = string(msg.Kind)
	}

	sent, failed := 0, 0
	for _, t := range tokens {
		message := &messaging.Message{
			Token: t.Token,
			Notification: &messaging.Notification{
				Title: msg.Title,
				Body:  msg.Body,
			},
			Data: data,
		}
		switch t.Platform {
		case PlatformIOS:
			message.APNS = &messaging.APNSConfig{
				Payload: &messaging.APNSPayload{Aps: &messaging.Aps{Sound: "default"}},
			}
		case PlatformWeb:
			message.Webpush = &messaging.WebpushConfig{
				Notification: &messaging.WebpushNotification{Title: msg.Title, Body: msg.Body},
			}
		default:
			message.Android = &messaging.AndroidConfig{
				Priority:     "high",
				Notification: &messaging.AndroidNotification{Sound: "default"},
			}
		}

		if _, err := s.client.Send(ctx, message); err != nil {
			logger.Warn("FCM: failed to send", "platform", t.Platform, "error", err)
			failed++
			continue
		}
		sent++
	}

	logger.Debug("FCM: push finished", "sent", sent, "failed", failed)
	if sent == 0 && failed > 0 {
		return ErrAllPushesFailed
	}
	return nil
}
