// internal/chat/hub.go

package chat

import (
    "context"
    "encoding/json"
    "log"
    "sync"
    "time"
)

// Hub owns the set of live websocket sessions and mediates all fan-out.
// Sessions register on connect and unregister on disconnect; everything
// else goes through the room registry.
type Hub struct {
    rooms *RoomRegistry

    register   chan *Session
    unregister chan *Session

    service Service
    push    PushService

    // Context for graceful shutdown
    ctx    context.Context
    cancel context.CancelFunc

    // WaitGroup for pending operations
    wg sync.WaitGroup
}

func NewHub(service Service, push PushService) *Hub {
    ctx, cancel := context.WithCancel(context.Background())

    return &Hub{
        rooms:      NewRoomRegistry(),
        register:   make(chan *Session),
        unregister: make(chan *Session),
        service:    service,
        push:       push,
        ctx:        ctx,
        cancel:     cancel,
    }
}

// Rooms exposes the registry for membership checks
func (h *Hub) Rooms() *RoomRegistry {
    return h.rooms
}

func (h *Hub) Run() {
    defer h.cleanup()

    for {
        select {
        case sess := <-h.register:
            h.registerSession(sess)

        case sess := <-h.unregister:
            h.unregisterSession(sess)

        case <-h.ctx.Done():
            return
        }
    }
}

func (h *Hub) registerSession(sess *Session) {
    h.rooms.Bind(sess)
    h.rooms.Join(UserRoom(sess.userID), sess)
    activeConnections.Inc()

    h.wg.Add(1)
    go func() {
        defer h.wg.Done()
        if err := h.service.SetOnline(h.ctx, sess.userID); err != nil {
            log.Printf("Failed to set user %d online: %v", sess.userID, err)
        }
    }()

    log.Printf("User %d connected (session %s). Sessions: %d", sess.userID, sess.id, h.rooms.SessionCount())
}

// requestUnregister hands a session to the run loop. Falls through once
// the hub is shut down so pump goroutines and eviction senders never
// block on a stopped loop.
func (h *Hub) requestUnregister(sess *Session) {
    select {
    case h.unregister <- sess:
    case <-h.ctx.Done():
        sess.Close()
    }
}

func (h *Hub) unregisterSession(sess *Session) {
    // A session can reach here twice, once from its readPump and once
    // from a full-buffer eviction. Only the first pass does bookkeeping.
    if !h.rooms.RemoveSession(sess.id) {
        return
    }
    sess.Close()
    activeConnections.Dec()

    if !h.rooms.UserOnline(sess.userID) {
        h.wg.Add(1)
        go func() {
            defer h.wg.Done()
            if err := h.service.SetOffline(h.ctx, sess.userID); err != nil {
                log.Printf("Failed to set user %d offline: %v", sess.userID, err)
            }
        }()
    }

    log.Printf("User %d disconnected (session %s). Sessions: %d", sess.userID, sess.id, h.rooms.SessionCount())
}

// EmitToRoom delivers an event to every session currently joined to the
// room. Delivery is best-effort: a session whose send buffer is full is
// presumed dead and unregistered.
func (h *Hub) EmitToRoom(room string, event Event) {
    start := time.Now()
    data, err := json.Marshal(event)
    if err != nil {
        log.Printf("Error marshalling %s event: %v", event.Type, err)
        return
    }

    for _, sess := range h.rooms.Members(room) {
        select {
        case sess.send <- data:
        default:
            go h.requestUnregister(sess)
        }
    }
    fanoutDuration.Observe(time.Since(start).Seconds())
}

// EmitToSession delivers an event to one session only. Used for
// operation-scoped errors and confirmations, which are never broadcast.
func (h *Hub) EmitToSession(sess *Session, event Event) {
    data, err := json.Marshal(event)
    if err != nil {
        log.Printf("Error marshalling %s event: %v", event.Type, err)
        return
    }

    select {
    case sess.send <- data:
    default:
        go h.requestUnregister(sess)
    }
}

// NotifyMessage fans a persisted message out to its target rooms. The emit
// completes before the caller's event handler returns; cross-message
// ordering between concurrent senders is not guaranteed.
func (h *Hub) NotifyMessage(msg *Message) {
    event := NewEvent(EventNewMessage, msg)

    if msg.GroupID != nil {
        h.EmitToRoom(GroupRoom(*msg.GroupID), event)
        return
    }

    // Private: both the recipient's and the sender's identity rooms, so
    // the sender's other open sessions observe the send too.
    h.EmitToRoom(UserRoom(*msg.RecipientID), event)
    h.EmitToRoom(UserRoom(msg.SenderID), event)

    if h.push != nil && !h.rooms.UserOnline(*msg.RecipientID) {
        h.wg.Add(1)
        go func() {
            defer h.wg.Done()
            if err := h.push.NotifyNewMessage(h.ctx, *msg.RecipientID, msg); err != nil {
                log.Printf("Push notification failed for user %d: %v", *msg.RecipientID, err)
            }
        }()
    }
}

// EvictGroupRoom tells every joined session the group is gone, then drops
// the room so no further fan-out can target it.
func (h *Hub) EvictGroupRoom(groupID int64) {
    room := GroupRoom(groupID)
    h.EmitToRoom(room, NewEvent(EventGroupDeleted, GroupDeletedData{GroupID: groupID}))
    h.rooms.DropRoom(room)
}

func (h *Hub) cleanup() {
    for _, sess := range h.snapshotSessions() {
        sess.Close()
    }
    h.wg.Wait()
}

func (h *Hub) snapshotSessions() []*Session {
    h.rooms.mu.RLock()
    defer h.rooms.mu.RUnlock()

    seen := make(map[string]bool)
    var out []*Session
    for _, members := range h.rooms.rooms {
        for id, sess := range members {
            if !seen[id] {
                seen[id] = true
                out = append(out, sess)
            }
        }
    }
    return out
}

func (h *Hub) Shutdown() {
    h.cancel()
    h.wg.Wait()
}

// NewEvent wraps a payload in the wire envelope
func NewEvent(eventType string, payload interface{}) Event {
    return Event{
        Type:      eventType,
        Data:      mustMarshal(payload),
        Timestamp: time.Now(),
    }
}

func mustMarshal(v interface{}) json.RawMessage {
    data, err := json.Marshal(v)
    if err != nil {
        log.Printf("Error marshaling: %v", err)
        return json.RawMessage(`{}`)
    }
    return data
}
