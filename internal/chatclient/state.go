// internal/chatclient/state.go

package chatclient

import (
	"sort"
	"sync"
	"time"

	"github.com/taskroom/taskroom-backend/internal/chat"
)

// ConvKey addresses a conversation from the client's point of view: the
// other participant's user ID for private chat, the group ID for groups.
type ConvKey struct {
	Type string
	ID   int64
}

func PrivateConv(otherUserID int64) ConvKey {
	return ConvKey{Type: chat.ConversationPrivate, ID: otherUserID}
}

func GroupConv(groupID int64) ConvKey {
	return ConvKey{Type: chat.ConversationGroup, ID: groupID}
}

// ConvState is the lifecycle of a conversation's local message list.
type ConvState int

const (
	StateClosed ConvState = iota
	StateLoading
	StateReady
)

type conversation struct {
	state    ConvState
	messages []*chat.Message
	seen     map[int64]struct{}
	unread   int
}

// State holds the client-local view of all conversations. It is fed from
// two sources, REST history fetches and live pushed events, and merges
// them without duplication.
type State struct {
	mu       sync.Mutex
	selfID   int64
	active   *ConvKey
	convs    map[ConvKey]*conversation
	lastSeen map[int64]time.Time
}

func NewState(selfID int64) *State {
	return &State{
		selfID:   selfID,
		convs:    make(map[ConvKey]*conversation),
		lastSeen: make(map[int64]time.Time),
	}
}

func (s *State) conv(key ConvKey) *conversation {
	c, ok := s.convs[key]
	if !ok {
		c = &conversation{seen: make(map[int64]struct{})}
		s.convs[key] = c
	}
	return c
}

// BeginLoad tears down the previously active conversation and marks the
// new one as loading. Returns the key of the conversation that was active
// before, if any.
func (s *State) BeginLoad(key ConvKey) *ConvKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.active
	if prev != nil && *prev != key {
		if c, ok := s.convs[*prev]; ok {
			c.state = StateClosed
			c.messages = nil
			c.seen = make(map[int64]struct{})
		}
	}

	c := s.conv(key)
	c.state = StateLoading
	c.messages = nil
	c.seen = make(map[int64]struct{})

	k := key
	s.active = &k
	return prev
}

// FinishLoad installs the fetched history and moves the conversation to
// ready. The unread counter resets because opening a conversation marks
// it read.
func (s *State) FinishLoad(key ConvKey, history []*chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.conv(key)
	for _, msg := range history {
		s.mergeLocked(c, msg)
	}
	c.state = StateReady
	c.unread = 0
}

// ApplyLive merges a pushed message into the owning conversation. Returns
// the conversation key and whether the message was new (false means it was
// a duplicate and local state is unchanged).
func (s *State) ApplyLive(msg *chat.Message) (ConvKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.keyFor(msg)
	c := s.conv(key)
	added := s.mergeLocked(c, msg)
	if !added {
		return key, false
	}

	if msg.SenderID != s.selfID {
		s.lastSeen[msg.SenderID] = msg.CreatedAt
		if s.active == nil || *s.active != key {
			c.unread++
		}
	}
	return key, true
}

func (s *State) keyFor(msg *chat.Message) ConvKey {
	if msg.GroupID != nil {
		return GroupConv(*msg.GroupID)
	}
	// Private message: the conversation is addressed by the other party
	if msg.SenderID == s.selfID && msg.RecipientID != nil {
		return PrivateConv(*msg.RecipientID)
	}
	return PrivateConv(msg.SenderID)
}

// mergeLocked inserts msg keeping (CreatedAt, ID) ascending order. Messages
// already present by ID are ignored.
func (s *State) mergeLocked(c *conversation, msg *chat.Message) bool {
	if _, dup := c.seen[msg.ID]; dup {
		return false
	}
	c.seen[msg.ID] = struct{}{}

	i := sort.Search(len(c.messages), func(i int) bool {
		m := c.messages[i]
		if !m.CreatedAt.Equal(msg.CreatedAt) {
			return m.CreatedAt.After(msg.CreatedAt)
		}
		return m.ID > msg.ID
	})
	c.messages = append(c.messages, nil)
	copy(c.messages[i+1:], c.messages[i:])
	c.messages[i] = msg
	return true
}

// Messages returns a snapshot of the conversation's ordered message list.
func (s *State) Messages(key ConvKey) []*chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[key]
	if !ok {
		return nil
	}
	out := make([]*chat.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (s *State) Phase(key ConvKey) ConvState {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[key]
	if !ok {
		return StateClosed
	}
	return c.state
}

func (s *State) Unread(key ConvKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[key]
	if !ok {
		return 0
	}
	return c.unread
}

func (s *State) ResetUnread(key ConvKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.convs[key]; ok {
		c.unread = 0
	}
}

// Drop forgets a conversation entirely, used when its group is deleted.
func (s *State) Drop(key ConvKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.convs, key)
	if s.active != nil && *s.active == key {
		s.active = nil
	}
}

// Active returns the currently open conversation, if any.
func (s *State) Active() (ConvKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return ConvKey{}, false
	}
	return *s.active, true
}

// RecentSenders lists user IDs ordered by most recent incoming message,
// for sorting the contact list.
func (s *State) RecentSenders() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.lastSeen))
	for id := range s.lastSeen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.lastSeen[ids[i]], s.lastSeen[ids[j]]
		if !a.Equal(b) {
			return a.After(b)
		}
		return ids[i] < ids[j]
	})
	return ids
}
