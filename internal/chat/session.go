// internal/chat/session.go

package chat

import (
    "context"
    "encoding/json"
    "log"
    "time"

    "github.com/google/uuid"
    "github.com/gorilla/websocket"
)

const (
    defaultWriteTimeout = 10 * time.Second
    defaultPongTimeout  = 60 * time.Second
)

// SessionConfig bounds what a single connection may do
type SessionConfig struct {
    MaxMessageSize int64
    SendBuffer     int
    RateLimit      int
    RateWindow     time.Duration

    // WriteTimeout caps each outbound frame write; PongTimeout is how
    // long the connection may go without a pong before it is presumed
    // dead. Pings go out at 9/10 of PongTimeout.
    WriteTimeout time.Duration
    PongTimeout  time.Duration
}

func DefaultSessionConfig() SessionConfig {
    return SessionConfig{
        MaxMessageSize: 512 * 1024,
        SendBuffer:     256,
        RateLimit:      60,
        RateWindow:     10 * time.Second,
        WriteTimeout:   defaultWriteTimeout,
        PongTimeout:    defaultPongTimeout,
    }
}

// Session is one authenticated websocket connection. The gateway's
// client-originated operations are all handled here: every event is
// validated, persisted through the service, and fanned out via the hub
// before the handler returns.
type Session struct {
    id      string
    hub     *Hub
    conn    *websocket.Conn
    send    chan []byte
    userID  int64
    service Service
    limiter *RateLimiter
    cfg     SessionConfig
    closed  chan struct{}
}

func NewSession(hub *Hub, conn *websocket.Conn, userID int64, service Service, cfg SessionConfig) *Session {
    if cfg.WriteTimeout <= 0 {
        cfg.WriteTimeout = defaultWriteTimeout
    }
    if cfg.PongTimeout <= 0 {
        cfg.PongTimeout = defaultPongTimeout
    }

    return &Session{
        id:      uuid.NewString(),
        hub:     hub,
        conn:    conn,
        send:    make(chan []byte, cfg.SendBuffer),
        userID:  userID,
        service: service,
        limiter: NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
        cfg:     cfg,
        closed:  make(chan struct{}),
    }
}

// UserID returns the identity the connection is bound to
func (s *Session) UserID() int64 {
    return s.userID
}

func (s *Session) Start() {
    go s.writePump()
    go s.readPump()
}

// Close releases the session's write loop. Safe to call more than once.
func (s *Session) Close() {
    select {
    case <-s.closed:
    default:
        close(s.closed)
    }
}

func (s *Session) readPump() {
    defer func() {
        s.hub.requestUnregister(s)
        s.conn.Close()
    }()

    s.conn.SetReadLimit(s.cfg.MaxMessageSize)
    s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
    s.conn.SetPongHandler(func(string) error {
        s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
        return nil
    })

    for {
        _, data, err := s.conn.ReadMessage()
        if err != nil {
            if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
                log.Printf("WebSocket error (user %d): %v", s.userID, err)
            }
            break
        }

        s.dispatch(data)
    }
}

func (s *Session) writePump() {
    ticker := time.NewTicker(s.cfg.PongTimeout * 9 / 10)
    defer func() {
        ticker.Stop()
        s.conn.Close()
    }()

    for {
        select {
        case message, ok := <-s.send:
            s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
            if !ok {
                s.conn.WriteMessage(websocket.CloseMessage, []byte{})
                return
            }

            // One frame per event; concatenating would break JSON parsing
            // on the receiving side.
            if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
                return
            }

            n := len(s.send)
            for i := 0; i < n; i++ {
                if err := s.conn.WriteMessage(websocket.TextMessage, <-s.send); err != nil {
                    return
                }
            }

        case <-s.closed:
            s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
            s.conn.WriteMessage(websocket.CloseMessage, []byte{})
            return

        case <-ticker.C:
            s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
            if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
                return
            }
        }
    }
}

// dispatch routes one client event. A panic inside a handler aborts that
// event only; the connection and its other pending operations survive.
func (s *Session) dispatch(data []byte) {
    defer func() {
        if r := recover(); r != nil {
            log.Printf("Recovered panic handling event (user %d): %v", s.userID, r)
            s.sendError("internal error")
        }
    }()

    if !s.limiter.Allow() {
        s.sendError("rate limit exceeded")
        return
    }

    var event Event
    if err := json.Unmarshal(data, &event); err != nil {
        s.sendError("malformed event")
        return
    }

    eventsTotal.WithLabelValues(eventTypeLabel(event.Type)).Inc()

    switch event.Type {
    case EventSendPrivateMessage:
        s.handleSendPrivate(event.Data)

    case EventSendGroupMessage:
        s.handleSendGroup(event.Data)

    case EventJoinGroupRoom:
        s.handleJoinGroupRoom(event.Data)

    case EventMarkMessagesRead:
        s.handleMarkRead(event.Data)

    default:
        log.Printf("Unknown event type: %s", event.Type)
        s.sendError("unknown event type")
    }
}

// eventTypeLabel maps a client-supplied event type to a metric label.
// Unrecognized types collapse to one label; the type string is attacker
// controlled and must not mint time series.
func eventTypeLabel(eventType string) string {
    switch eventType {
    case EventSendPrivateMessage, EventSendGroupMessage, EventJoinGroupRoom, EventMarkMessagesRead:
        return eventType
    }
    return "unknown"
}

func (s *Session) handleSendPrivate(data json.RawMessage) {
    var payload SendPrivatePayload
    if err := json.Unmarshal(data, &payload); err != nil {
        s.sendError("malformed payload")
        return
    }

    msg, err := s.service.SendPrivate(context.Background(), s.userID, &payload)
    if err != nil {
        s.sendError(err.Error())
        return
    }

    messagesTotal.WithLabelValues(ConversationPrivate).Inc()
    s.hub.NotifyMessage(msg)
}

func (s *Session) handleSendGroup(data json.RawMessage) {
    var payload SendGroupPayload
    if err := json.Unmarshal(data, &payload); err != nil {
        s.sendError("malformed payload")
        return
    }

    msg, err := s.service.SendGroup(context.Background(), s.userID, &payload)
    if err != nil {
        s.sendError(err.Error())
        return
    }

    messagesTotal.WithLabelValues(ConversationGroup).Inc()
    s.hub.NotifyMessage(msg)
}

func (s *Session) handleJoinGroupRoom(data json.RawMessage) {
    var payload JoinGroupRoomPayload
    if err := json.Unmarshal(data, &payload); err != nil {
        s.sendError("malformed payload")
        return
    }

    // Membership is checked server-side; the room key is never trusted
    // from the client alone.
    if err := s.service.CheckMembership(context.Background(), payload.GroupID, s.userID); err != nil {
        s.sendError(err.Error())
        return
    }

    s.hub.Rooms().Join(GroupRoom(payload.GroupID), s)
    s.hub.EmitToSession(s, NewEvent(EventJoinedRoom, JoinedRoomData{GroupID: payload.GroupID}))
}

func (s *Session) handleMarkRead(data json.RawMessage) {
    var payload MarkReadPayload
    if err := json.Unmarshal(data, &payload); err != nil {
        s.sendError("malformed payload")
        return
    }

    count, err := s.service.MarkRead(context.Background(), s.userID, &payload)
    if err != nil {
        s.sendError(err.Error())
        return
    }

    // The server is the source of truth for read state: always confirm,
    // for both conversation types, so the client updates unread counters
    // without re-fetching.
    s.hub.EmitToSession(s, NewEvent(EventMessagesRead, MessagesReadData{
        ConversationID: payload.ConversationID,
        Type:           payload.Type,
        Count:          count,
    }))
}

// sendError reports an operation-scoped failure to this connection only
func (s *Session) sendError(message string) {
    wsErrorsTotal.Inc()
    s.hub.EmitToSession(s, NewEvent(EventError, ErrorData{Message: message}))
}
