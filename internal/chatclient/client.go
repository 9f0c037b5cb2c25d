// internal/chatclient/client.go

package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/taskroom/taskroom-backend/internal/chat"
)

var ErrClosed = errors.New("chat client closed")

// Config wires a Client to the server.
type Config struct {
	// BaseURL is the HTTP origin of the chat API, e.g. http://localhost:8080
	BaseURL string
	// WSURL is the websocket endpoint, e.g. ws://localhost:8080/ws. Derived
	// from BaseURL when empty.
	WSURL string
	// Token is the access token used for both REST and the websocket.
	Token string
	// UserID is the authenticated user's own ID, needed to attribute
	// messages locally.
	UserID int64
	// HistoryLimit caps history fetches on conversation open.
	HistoryLimit int
}

// Handlers are optional callbacks invoked from the read loop.
type Handlers struct {
	// OnMessage fires after a live message has been merged into state.
	OnMessage func(key ConvKey, msg *chat.Message)
	// OnError fires on operation-scoped error events from the server.
	OnError func(message string)
	// OnGroupDeleted fires when a group the client had open is deleted.
	OnGroupDeleted func(groupID int64)
	// OnDisconnect fires when the read loop exits.
	OnDisconnect func(err error)
}

// Client owns the single live connection for an authenticated user and
// reconciles REST history with pushed events into per-conversation state.
type Client struct {
	cfg      Config
	rest     *RestClient
	state    *State
	handlers Handlers

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func New(cfg Config, handlers Handlers) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("chatclient: BaseURL required")
	}
	if cfg.Token == "" {
		return nil, errors.New("chatclient: Token required")
	}
	if cfg.WSURL == "" {
		derived, err := deriveWSURL(cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		cfg.WSURL = derived
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}

	return &Client{
		cfg:      cfg,
		rest:     NewRestClient(cfg.BaseURL, cfg.Token),
		state:    NewState(cfg.UserID),
		handlers: handlers,
	}, nil
}

func deriveWSURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("chatclient: parse BaseURL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	return u.String(), nil
}

// Connect dials the websocket and starts the read loop. Call once per
// Client.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.cfg.WSURL)
	if err != nil {
		return fmt.Errorf("chatclient: parse WSURL: %w", err)
	}
	q := u.Query()
	q.Set("token", c.cfg.Token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("chatclient: dial: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// State exposes the client-local conversation state for rendering.
func (c *Client) State() *State {
	return c.state
}

// Rest exposes the REST client for roster and presence calls.
func (c *Client) Rest() *RestClient {
	return c.rest
}

// Open makes a conversation the active one: previous conversation state is
// torn down, history is fetched, and for groups the live room is joined.
// Opening also marks the conversation read.
func (c *Client) Open(ctx context.Context, key ConvKey) error {
	c.state.BeginLoad(key)

	var (
		history []*chat.Message
		err     error
	)
	switch key.Type {
	case chat.ConversationPrivate:
		history, err = c.rest.PrivateHistory(ctx, key.ID, c.cfg.HistoryLimit)
	case chat.ConversationGroup:
		history, err = c.rest.GroupHistory(ctx, key.ID, c.cfg.HistoryLimit)
	default:
		return fmt.Errorf("chatclient: unknown conversation type %q", key.Type)
	}
	if err != nil {
		return err
	}

	c.state.FinishLoad(key, history)

	if key.Type == chat.ConversationGroup {
		if err := c.JoinGroupRoom(key.ID); err != nil {
			return err
		}
	}
	return c.MarkRead(key)
}

// JoinGroupRoom asks the server to add this connection to a group's live
// room. Idempotent server-side.
func (c *Client) JoinGroupRoom(groupID int64) error {
	return c.send(chat.EventJoinGroupRoom, chat.JoinGroupRoomPayload{GroupID: groupID})
}

// SendPrivateText sends a text message to another user. Delivery back to
// this client arrives as a newMessage event; sends are not reflected
// optimistically.
func (c *Client) SendPrivateText(recipientID int64, content string) error {
	return c.send(chat.EventSendPrivateMessage, chat.SendPrivatePayload{
		RecipientID: recipientID,
		Content:     content,
	})
}

// SendPrivate sends a full private payload including attachments.
func (c *Client) SendPrivate(payload chat.SendPrivatePayload) error {
	return c.send(chat.EventSendPrivateMessage, payload)
}

// SendGroupText sends a text message to a group.
func (c *Client) SendGroupText(groupID int64, content string) error {
	return c.send(chat.EventSendGroupMessage, chat.SendGroupPayload{
		GroupID: groupID,
		Content: content,
	})
}

// SendGroup sends a full group payload including attachments.
func (c *Client) SendGroup(payload chat.SendGroupPayload) error {
	return c.send(chat.EventSendGroupMessage, payload)
}

// MarkRead tells the server the caller has seen a conversation and resets
// the local unread counter once confirmed.
func (c *Client) MarkRead(key ConvKey) error {
	return c.send(chat.EventMarkMessagesRead, chat.MarkReadPayload{
		ConversationID: key.ID,
		Type:           key.Type,
	})
}

func (c *Client) send(eventType string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.conn == nil {
		return ErrClosed
	}

	event := chat.NewEvent(eventType, payload)
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(event)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	var loopErr error
	defer func() {
		if c.handlers.OnDisconnect != nil {
			c.handlers.OnDisconnect(loopErr)
		}
	}()

	for {
		var event chat.Event
		if err := conn.ReadJSON(&event); err != nil {
			if !c.isClosed() {
				loopErr = err
			}
			return
		}
		c.dispatch(event)
	}
}

func (c *Client) dispatch(event chat.Event) {
	switch event.Type {
	case chat.EventNewMessage:
		var msg chat.Message
		if err := json.Unmarshal(event.Data, &msg); err != nil {
			log.Printf("chatclient: bad newMessage payload: %v", err)
			return
		}
		key, added := c.state.ApplyLive(&msg)
		if added && c.handlers.OnMessage != nil {
			c.handlers.OnMessage(key, &msg)
		}

	case chat.EventMessagesRead:
		var data chat.MessagesReadData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return
		}
		c.state.ResetUnread(ConvKey{Type: data.Type, ID: data.ConversationID})

	case chat.EventGroupDeleted:
		var data chat.GroupDeletedData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return
		}
		c.state.Drop(GroupConv(data.GroupID))
		if c.handlers.OnGroupDeleted != nil {
			c.handlers.OnGroupDeleted(data.GroupID)
		}

	case chat.EventJoinedRoom:
		// Acknowledgement only; state already reflects the open

	case chat.EventError:
		var data chat.ErrorData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return
		}
		if c.handlers.OnError != nil {
			c.handlers.OnError(data.Message)
		}

	default:
		log.Printf("chatclient: unknown event type %q", event.Type)
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close shuts the connection down. The client cannot be reused afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn != nil {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		return c.conn.Close()
	}
	return nil
}
