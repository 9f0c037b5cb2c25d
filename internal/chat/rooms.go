// internal/chat/rooms.go

package chat

import (
    "fmt"
    "sync"
)

// UserRoom is the room key every connection implicitly joins on connect;
// private messages reach a user through it no matter which conversation
// their UI has open.
func UserRoom(userID int64) string {
    return fmt.Sprintf("user:%d", userID)
}

// GroupRoom is the room key for live group delivery. Only connections that
// explicitly joined it receive group events.
func GroupRoom(groupID int64) string {
    return fmt.Sprintf("group:%d", groupID)
}

// RoomRegistry is the in-memory mapping from room key to the set of live
// sessions, and session id to user identity. Pure bookkeeping; nothing here
// is persisted. Mutated concurrently by connect/disconnect/join from many
// connections, so every access goes through the mutex.
type RoomRegistry struct {
    mu    sync.RWMutex
    rooms map[string]map[string]*Session // room key -> session id -> session
    users map[string]int64               // session id -> user id
}

func NewRoomRegistry() *RoomRegistry {
    return &RoomRegistry{
        rooms: make(map[string]map[string]*Session),
        users: make(map[string]int64),
    }
}

// Bind records the session's user identity. Called once on connect.
func (r *RoomRegistry) Bind(sess *Session) {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.users[sess.id] = sess.userID
}

// Join adds a session to a room. Idempotent.
func (r *RoomRegistry) Join(room string, sess *Session) {
    r.mu.Lock()
    defer r.mu.Unlock()

    if r.rooms[room] == nil {
        r.rooms[room] = make(map[string]*Session)
    }
    r.rooms[room][sess.id] = sess
}

// Leave removes a session from one room
func (r *RoomRegistry) Leave(room, sessionID string) {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.leaveLocked(room, sessionID)
}

func (r *RoomRegistry) leaveLocked(room, sessionID string) {
    if members, ok := r.rooms[room]; ok {
        delete(members, sessionID)
        if len(members) == 0 {
            delete(r.rooms, room)
        }
    }
}

// RemoveSession drops a session from every room and forgets its identity.
// Called on disconnect so fan-out never targets a dead connection. Reports
// whether the session was still tracked, so a second disconnect for the
// same session is a no-op for the caller too.
func (r *RoomRegistry) RemoveSession(sessionID string) bool {
    r.mu.Lock()
    defer r.mu.Unlock()

    if _, ok := r.users[sessionID]; !ok {
        return false
    }
    for room := range r.rooms {
        r.leaveLocked(room, sessionID)
    }
    delete(r.users, sessionID)
    return true
}

// DropRoom evicts every session from a room. Used when a group is deleted.
func (r *RoomRegistry) DropRoom(room string) {
    r.mu.Lock()
    defer r.mu.Unlock()
    delete(r.rooms, room)
}

// Members returns a snapshot of the sessions currently in a room
func (r *RoomRegistry) Members(room string) []*Session {
    r.mu.RLock()
    defer r.mu.RUnlock()

    members := make([]*Session, 0, len(r.rooms[room]))
    for _, sess := range r.rooms[room] {
        members = append(members, sess)
    }
    return members
}

// InRoom reports whether a session currently holds membership in a room
func (r *RoomRegistry) InRoom(room, sessionID string) bool {
    r.mu.RLock()
    defer r.mu.RUnlock()
    _, ok := r.rooms[room][sessionID]
    return ok
}

// UserOnline reports whether any live session belongs to the user
func (r *RoomRegistry) UserOnline(userID int64) bool {
    r.mu.RLock()
    defer r.mu.RUnlock()
    return len(r.rooms[UserRoom(userID)]) > 0
}

// SessionCount returns the number of tracked sessions
func (r *RoomRegistry) SessionCount() int {
    r.mu.RLock()
    defer r.mu.RUnlock()
    return len(r.users)
}
