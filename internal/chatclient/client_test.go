// internal/chatclient/client_test.go
// Drives a Client against a real gateway instance end to end.

package chatclient

import (
	"context"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskroom/taskroom-backend/internal/auth"
	"github.com/taskroom/taskroom-backend/internal/chat"
	"github.com/taskroom/taskroom-backend/internal/common/utils"
)

const clientTestSecret = "chatclient-test-secret"

// stubChatService persists messages in memory and waves everything else
// through. It only has to be real enough for the gateway to run.
type stubChatService struct {
	mu     sync.Mutex
	nextID int64
	msgs   []*chat.Message
}

func (s *stubChatService) appendMsg(msg *chat.Message) (*chat.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	msg.Kind = msg.DeriveKind()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	msg.ID = s.nextID
	msg.CreatedAt = time.Now()
	s.msgs = append(s.msgs, msg)
	return msg, nil
}

func (s *stubChatService) SendPrivate(ctx context.Context, senderID int64, p *chat.SendPrivatePayload) (*chat.Message, error) {
	recipient := p.RecipientID
	content := p.Content
	msg := &chat.Message{SenderID: senderID, RecipientID: &recipient}
	if content != "" {
		msg.Content = &content
	}
	return s.appendMsg(msg)
}

func (s *stubChatService) SendGroup(ctx context.Context, senderID int64, p *chat.SendGroupPayload) (*chat.Message, error) {
	groupID := p.GroupID
	content := p.Content
	msg := &chat.Message{SenderID: senderID, GroupID: &groupID}
	if content != "" {
		msg.Content = &content
	}
	return s.appendMsg(msg)
}

func (s *stubChatService) MarkRead(ctx context.Context, userID int64, p *chat.MarkReadPayload) (int64, error) {
	return 0, nil
}

func (s *stubChatService) CheckMembership(ctx context.Context, groupID, userID int64) error {
	return nil
}

func (s *stubChatService) PrivateHistory(ctx context.Context, userID, otherID int64, page chat.Page) ([]*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*chat.Message
	for _, m := range s.msgs {
		if m.RecipientID == nil {
			continue
		}
		if (m.SenderID == userID && *m.RecipientID == otherID) ||
			(m.SenderID == otherID && *m.RecipientID == userID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *stubChatService) GroupHistory(ctx context.Context, userID, groupID int64, page chat.Page) ([]*chat.Message, error) {
	return nil, nil
}

func (s *stubChatService) EditMessage(ctx context.Context, messageID, userID int64, content string) (*chat.Message, error) {
	return nil, chat.ErrNotFound
}

func (s *stubChatService) DeleteMessage(ctx context.Context, messageID, userID int64) error {
	return chat.ErrNotFound
}

func (s *stubChatService) AddReaction(ctx context.Context, messageID, userID int64, emoji string) (*chat.Reaction, error) {
	return nil, chat.ErrNotFound
}

func (s *stubChatService) RemoveReaction(ctx context.Context, messageID, userID int64, emoji string) error {
	return nil
}

func (s *stubChatService) CreateGroup(ctx context.Context, creatorID int64, req *chat.CreateGroupRequest) (*chat.Group, error) {
	return nil, chat.ErrGroupNotFound
}

func (s *stubChatService) GetGroup(ctx context.Context, groupID int64) (*chat.Group, error) {
	return nil, chat.ErrGroupNotFound
}

func (s *stubChatService) ListGroups(ctx context.Context, userID int64) ([]*chat.Group, error) {
	return nil, nil
}

func (s *stubChatService) AddMember(ctx context.Context, actorID, groupID, userID int64) error {
	return chat.ErrGroupNotFound
}

func (s *stubChatService) RemoveMember(ctx context.Context, actorID, groupID, userID int64) error {
	return chat.ErrGroupNotFound
}

func (s *stubChatService) QuitGroup(ctx context.Context, userID, groupID int64) error {
	return chat.ErrGroupNotFound
}

func (s *stubChatService) DeleteGroup(ctx context.Context, actorID, groupID int64) error {
	return chat.ErrGroupNotFound
}

func (s *stubChatService) ListContacts(ctx context.Context, userID int64) ([]*chat.UserInfo, error) {
	return nil, nil
}

func (s *stubChatService) SetOnline(ctx context.Context, userID int64) error  { return nil }
func (s *stubChatService) SetOffline(ctx context.Context, userID int64) error { return nil }

func (s *stubChatService) ContactsOnline(ctx context.Context, userID int64) (map[int64]bool, error) {
	return map[int64]bool{}, nil
}

func (s *stubChatService) UploadAttachment(ctx context.Context, userID int64, file io.Reader, filename, contentType string) (string, error) {
	return "", chat.ErrNotFound
}

type clientFixture struct {
	srv     *httptest.Server
	service *stubChatService
	hub     *chat.Hub
}

func newClientFixture(t *testing.T) *clientFixture {
	t.Helper()

	service := &stubChatService{}
	hub := chat.NewHub(service, nil)
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	router := mux.NewRouter()
	middleware := auth.NewMiddleware(auth.NewResolver(clientTestSecret))
	handler := chat.NewHandler(service, hub, chat.DefaultSessionConfig(), 0)
	chat.RegisterRoutes(router, handler, middleware.Authenticate)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &clientFixture{srv: srv, service: service, hub: hub}
}

func (f *clientFixture) connect(t *testing.T, userID int64, handlers Handlers) *Client {
	t.Helper()

	token, err := utils.GenerateJWT(&utils.JWTClaims{
		UserID:    userID,
		Username:  "user",
		Type:      "access",
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
		IssuedAt:  time.Now().Unix(),
	}, clientTestSecret)
	require.NoError(t, err)

	client, err := New(Config{
		BaseURL: f.srv.URL,
		Token:   token,
		UserID:  userID,
	}, handlers)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.Connect(context.Background()))
	require.Eventually(t, func() bool {
		return f.hub.Rooms().UserOnline(userID)
	}, time.Second, 5*time.Millisecond)
	return client
}

func TestClientEndToEndPrivateConversation(t *testing.T) {
	f := newClientFixture(t)
	ctx := context.Background()

	bobReceived := make(chan *chat.Message, 4)
	aliceReceived := make(chan *chat.Message, 4)

	alice := f.connect(t, 1, Handlers{
		OnMessage: func(key ConvKey, msg *chat.Message) { aliceReceived <- msg },
	})
	bob := f.connect(t, 2, Handlers{
		OnMessage: func(key ConvKey, msg *chat.Message) { bobReceived <- msg },
	})

	// Bob opens the conversation with Alice: empty history, then ready
	require.NoError(t, bob.Open(ctx, PrivateConv(1)))
	assert.Equal(t, StateReady, bob.State().Phase(PrivateConv(1)))

	require.NoError(t, alice.SendPrivateText(2, "hello bob"))

	select {
	case msg := <-bobReceived:
		require.NotNil(t, msg.Content)
		assert.Equal(t, "hello bob", *msg.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("bob never received the live message")
	}

	// Alice's own echo reconciles into her conversation with Bob
	select {
	case msg := <-aliceReceived:
		assert.Equal(t, int64(1), msg.SenderID)
	case <-time.After(2 * time.Second):
		t.Fatal("alice never received her echo")
	}

	// The conversation is active on Bob's side, so nothing is unread
	assert.Equal(t, 0, bob.State().Unread(PrivateConv(1)))
	require.Len(t, bob.State().Messages(PrivateConv(1)), 1)

	require.Len(t, alice.State().Messages(PrivateConv(2)), 1)
}

func TestClientOpenMergesHistoryWithLivePush(t *testing.T) {
	f := newClientFixture(t)
	ctx := context.Background()

	// Two messages already on record before Bob connects
	_, err := f.service.SendPrivate(ctx, 1, &chat.SendPrivatePayload{RecipientID: 2, Content: "earlier"})
	require.NoError(t, err)
	_, err = f.service.SendPrivate(ctx, 1, &chat.SendPrivatePayload{RecipientID: 2, Content: "still earlier today"})
	require.NoError(t, err)

	received := make(chan *chat.Message, 4)
	bob := f.connect(t, 2, Handlers{
		OnMessage: func(key ConvKey, msg *chat.Message) { received <- msg },
	})
	alice := f.connect(t, 1, Handlers{})

	require.NoError(t, bob.Open(ctx, PrivateConv(1)))
	require.Len(t, bob.State().Messages(PrivateConv(1)), 2)

	require.NoError(t, alice.SendPrivateText(2, "and now live"))

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("live message never arrived")
	}

	messages := bob.State().Messages(PrivateConv(1))
	require.Len(t, messages, 3)
	assert.Equal(t, "and now live", *messages[2].Content)
}
