// internal/chat/rooms_test.go

package chat

import (
    "testing"

    "github.com/stretchr/testify/assert"
)

func testSession(id string, userID int64) *Session {
    return &Session{
        id:     id,
        userID: userID,
        send:   make(chan []byte, 8),
        closed: make(chan struct{}),
    }
}

func TestRegistryJoinLeave(t *testing.T) {
    reg := NewRoomRegistry()
    s1 := testSession("s1", 1)
    s2 := testSession("s2", 2)

    reg.Bind(s1)
    reg.Bind(s2)
    reg.Join(UserRoom(1), s1)
    reg.Join(GroupRoom(7), s1)
    reg.Join(GroupRoom(7), s2)

    assert.True(t, reg.InRoom(GroupRoom(7), "s1"))
    assert.Len(t, reg.Members(GroupRoom(7)), 2)
    assert.Equal(t, 2, reg.SessionCount())

    // Join is idempotent
    reg.Join(GroupRoom(7), s1)
    assert.Len(t, reg.Members(GroupRoom(7)), 2)

    reg.Leave(GroupRoom(7), "s1")
    assert.False(t, reg.InRoom(GroupRoom(7), "s1"))
    assert.Len(t, reg.Members(GroupRoom(7)), 1)
}

func TestRegistryRemoveSessionClearsAllRooms(t *testing.T) {
    reg := NewRoomRegistry()
    s1 := testSession("s1", 1)

    reg.Bind(s1)
    reg.Join(UserRoom(1), s1)
    reg.Join(GroupRoom(7), s1)
    reg.Join(GroupRoom(8), s1)

    assert.True(t, reg.RemoveSession("s1"))

    // No room may retain a disconnected session
    assert.Empty(t, reg.Members(UserRoom(1)))
    assert.Empty(t, reg.Members(GroupRoom(7)))
    assert.Empty(t, reg.Members(GroupRoom(8)))
    assert.Equal(t, 0, reg.SessionCount())
    assert.False(t, reg.UserOnline(1))

    // A repeat removal reports the session already gone
    assert.False(t, reg.RemoveSession("s1"))
}

func TestRegistryDropRoom(t *testing.T) {
    reg := NewRoomRegistry()
    s1 := testSession("s1", 1)
    s2 := testSession("s2", 2)

    reg.Bind(s1)
    reg.Bind(s2)
    reg.Join(GroupRoom(7), s1)
    reg.Join(GroupRoom(7), s2)
    reg.Join(UserRoom(1), s1)

    reg.DropRoom(GroupRoom(7))

    assert.Empty(t, reg.Members(GroupRoom(7)))
    // Sessions themselves survive, only the room is gone
    assert.True(t, reg.InRoom(UserRoom(1), "s1"))
    assert.Equal(t, 2, reg.SessionCount())
}

func TestRegistryUserOnline(t *testing.T) {
    reg := NewRoomRegistry()
    s1 := testSession("s1", 1)
    s1b := testSession("s1b", 1)

    reg.Bind(s1)
    reg.Bind(s1b)
    reg.Join(UserRoom(1), s1)
    reg.Join(UserRoom(1), s1b)

    assert.True(t, reg.UserOnline(1))

    // Still online while one of two tabs remains
    reg.RemoveSession("s1")
    assert.True(t, reg.UserOnline(1))

    reg.RemoveSession("s1b")
    assert.False(t, reg.UserOnline(1))
}
