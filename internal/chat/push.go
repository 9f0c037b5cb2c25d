// internal/chat/push.go

package chat

import (
    "context"
    "fmt"
    "log"

    firebase "firebase.google.com/go/v4"
    fcm "firebase.google.com/go/v4/messaging"
    "google.golang.org/api/option"
)

// PushService delivers notifications to users with no open websocket
// session.
type PushService interface {
    NotifyNewMessage(ctx context.Context, userID int64, msg *Message) error
}

type fcmPushService struct {
    client *fcm.Client
}

// NewFCMPushService builds a push service backed by Firebase Cloud
// Messaging. Each user is subscribed client-side to the topic user-<id>.
func NewFCMPushService(credentialsPath string) (PushService, error) {
    ctx := context.Background()

    opt := option.WithCredentialsFile(credentialsPath)
    app, err := firebase.NewApp(ctx, nil, opt)
    if err != nil {
        return nil, fmt.Errorf("error initializing firebase app: %v", err)
    }

    client, err := app.Messaging(ctx)
    if err != nil {
        return nil, fmt.Errorf("error getting messaging client: %v", err)
    }

    return &fcmPushService{client: client}, nil
}

func (s *fcmPushService) NotifyNewMessage(ctx context.Context, userID int64, msg *Message) error {
    body := "Sent you an attachment"
    if msg.Content != nil {
        body = *msg.Content
        if len(body) > 120 {
            body = body[:117] + "..."
        }
    }

    title := "New message"
    if msg.Sender != nil && msg.Sender.Username != "" {
        title = msg.Sender.Username
    }

    message := &fcm.Message{
        Topic: fmt.Sprintf("user-%d", userID),
        Notification: &fcm.Notification{
            Title: title,
            Body:  body,
        },
        Data: map[string]string{
            "type":       "new_message",
            "message_id": fmt.Sprintf("%d", msg.ID),
            "sender_id":  fmt.Sprintf("%d", msg.SenderID),
        },
    }

    if _, err := s.client.Send(ctx, message); err != nil {
        return fmt.Errorf("failed to send push notification: %v", err)
    }
    return nil
}

type mockPushService struct{}

// NewMockPushService returns a push service that only logs. Used when FCM
// credentials are not configured.
func NewMockPushService() PushService {
    return &mockPushService{}
}

func (s *mockPushService) NotifyNewMessage(ctx context.Context, userID int64, msg *Message) error {
    log.Printf("Mock push: new message %d for user %d", msg.ID, userID)
    return nil
}
