package notification

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/google/uuid"
	"github.com/quocanhngo/hubtalk/internal/model"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// DeviceDirectory resolves a user's notification preference and push tokens
type DeviceDirectory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetUserDevices(ctx context.Context, userID uuid.UUID) ([]model.UserDevice, error)
}

// NotificationService handles FCM notifications. A nil service sends nothing.
type NotificationService struct {
	client *messaging.Client
	users  DeviceDirectory
	log    *zap.Logger
}

// NewNotificationService creates a new FCM notification service.
// It returns nil (push disabled) when no credentials are configured or Firebase fails to start.
func NewNotificationService(ctx context.Context, credentialsFile string, users DeviceDirectory, log *zap.Logger) *NotificationService {
	if credentialsFile == "" {
		log.Warn("firebase credentials not provided, push notifications disabled")
		return nil
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		log.Warn("failed to initialize firebase app, push notifications disabled", zap.Error(err))
		return nil
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		log.Warn("failed to get messaging client, push notifications disabled", zap.Error(err))
		return nil
	}

	log.Info("firebase messaging initialized")
	return &NotificationService{client: client, users: users, log: log}
}

// BuildMessageNotification is the multicast payload for a new chat message
func BuildMessageNotification(tokens []string, msg *model.Message) *messaging.MulticastMessage {
	body := msg.Content
	if body == "" {
		body = "Sent an attachment"
	}

	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: msg.SenderName,
			Body:  body,
		},
		Data: map[string]string{
			"type":            model.EventNewMessage,
			"conversation_id": msg.ConversationID.String(),
			"message_id":      msg.ID.String(),
			"sender_name":     msg.SenderName,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}
}

// SendMessageNotification pushes a new chat message to every device of receiverID
func (s *NotificationService) SendMessageNotification(ctx context.Context, receiverID uuid.UUID, msg *model.Message) error {
	if s == nil || s.client == nil {
		return nil
	}

	user, err := s.users.FindByID(ctx, receiverID)
	if err != nil {
		return err
	}
	if !user.IsNotificationEnabled {
		return nil
	}

	devices, err := s.users.GetUserDevices(ctx, receiverID)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return nil
	}

	tokens := make([]string, 0, len(devices))
	for _, d := range devices {
		tokens = append(tokens, d.FCMToken)
	}

	br, err := s.client.SendEachForMulticast(ctx, BuildMessageNotification(tokens, msg))
	if err != nil {
		return fmt.Errorf("error sending multicast message: %w", err)
	}

	if br.FailureCount > 0 {
		for idx, resp := range br.Responses {
			if !resp.Success {
				s.log.Warn("fcm delivery failed",
					zap.String("user_id", receiverID.String()),
					zap.String("token", tokens[idx]),
					zap.Error(resp.Error))
			}
		}
	}
	return nil
}
