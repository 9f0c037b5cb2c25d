// internal/chat/memstore_test.go

package chat

import (
    "context"
    "sort"
    "sync"
    "time"
)

// memStore is an in-memory Store used to exercise the service and the
// gateway without a database.
type memStore struct {
    mu          sync.Mutex
    nextMsgID   int64
    nextGroupID int64
    nextReactID int64
    messages    map[int64]*Message
    reactions   map[int64][]*Reaction
    groups      map[int64]*Group
    members     map[int64]map[int64]bool
    users       map[int64]*UserInfo
}

func newMemStore() *memStore {
    return &memStore{
        messages:  make(map[int64]*Message),
        reactions: make(map[int64][]*Reaction),
        groups:    make(map[int64]*Group),
        members:   make(map[int64]map[int64]bool),
        users:     make(map[int64]*UserInfo),
    }
}

func (s *memStore) Append(ctx context.Context, msg *Message) error {
    if err := msg.Validate(); err != nil {
        return err
    }
    msg.Kind = msg.DeriveKind()

    s.mu.Lock()
    defer s.mu.Unlock()

    s.nextMsgID++
    msg.ID = s.nextMsgID
    msg.CreatedAt = time.Now()

    stored := *msg
    s.messages[msg.ID] = &stored
    return nil
}

func (s *memStore) view(m *Message) *Message {
    out := *m
    if out.DeletedAt != nil {
        out.Content = nil
        out.Photo = nil
        out.File = nil
        out.MediaURL = nil
    }
    out.Reactions = append([]*Reaction(nil), s.reactions[m.ID]...)
    return &out
}

func (s *memStore) GetMessage(ctx context.Context, id int64) (*Message, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    m, ok := s.messages[id]
    if !ok {
        return nil, ErrNotFound
    }
    return s.view(m), nil
}

func (s *memStore) list(match func(*Message) bool, page Page) []*Message {
    var out []*Message
    for _, m := range s.messages {
        if page.Before > 0 && m.ID >= page.Before {
            continue
        }
        if match(m) {
            out = append(out, s.view(m))
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    if page.Limit > 0 && len(out) > page.Limit {
        out = out[len(out)-page.Limit:]
    }
    return out
}

func (s *memStore) ListForConversation(ctx context.Context, userA, userB int64, page Page) ([]*Message, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    return s.list(func(m *Message) bool {
        if m.RecipientID == nil {
            return false
        }
        return (m.SenderID == userA && *m.RecipientID == userB) ||
            (m.SenderID == userB && *m.RecipientID == userA)
    }, page), nil
}

func (s *memStore) ListForGroup(ctx context.Context, groupID int64, page Page) ([]*Message, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    return s.list(func(m *Message) bool {
        return m.GroupID != nil && *m.GroupID == groupID
    }, page), nil
}

func (s *memStore) MarkRead(ctx context.Context, ids []int64) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    for _, id := range ids {
        if m, ok := s.messages[id]; ok {
            m.IsRead = true
        }
    }
    return nil
}

func (s *memStore) MarkConversationRead(ctx context.Context, readerID, otherID int64) (int64, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    var count int64
    for _, m := range s.messages {
        if m.RecipientID != nil && *m.RecipientID == readerID &&
            m.SenderID == otherID && !m.IsRead {
            m.IsRead = true
            count++
        }
    }
    return count, nil
}

func (s *memStore) MarkGroupRead(ctx context.Context, readerID, groupID int64) (int64, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    var count int64
    for _, m := range s.messages {
        if m.GroupID != nil && *m.GroupID == groupID &&
            m.SenderID != readerID && !m.IsRead {
            m.IsRead = true
            count++
        }
    }
    return count, nil
}

func (s *memStore) SoftDelete(ctx context.Context, id, byUser int64) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    m, ok := s.messages[id]
    if !ok || m.DeletedAt != nil {
        return ErrNotFound
    }
    if m.SenderID != byUser {
        return ErrForbidden
    }
    now := time.Now()
    m.DeletedAt = &now
    return nil
}

func (s *memStore) Edit(ctx context.Context, id, byUser int64, content string) (*Message, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    m, ok := s.messages[id]
    if !ok || m.DeletedAt != nil {
        return nil, ErrNotFound
    }
    if m.SenderID != byUser {
        return nil, ErrForbidden
    }
    m.Content = &content
    m.IsEdited = true
    return s.view(m), nil
}

func (s *memStore) AddReaction(ctx context.Context, messageID, userID int64, emoji string) (*Reaction, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    if _, ok := s.messages[messageID]; !ok {
        return nil, ErrNotFound
    }
    for _, r := range s.reactions[messageID] {
        if r.UserID == userID && r.Emoji == emoji {
            return r, nil
        }
    }
    s.nextReactID++
    r := &Reaction{
        ID:        s.nextReactID,
        MessageID: messageID,
        UserID:    userID,
        Emoji:     emoji,
        CreatedAt: time.Now(),
    }
    s.reactions[messageID] = append(s.reactions[messageID], r)
    return r, nil
}

func (s *memStore) RemoveReaction(ctx context.Context, messageID, userID int64, emoji string) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    list := s.reactions[messageID]
    for i, r := range list {
        if r.UserID == userID && r.Emoji == emoji {
            s.reactions[messageID] = append(list[:i], list[i+1:]...)
            return nil
        }
    }
    return nil
}

func (s *memStore) CreateGroup(ctx context.Context, group *Group) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    s.nextGroupID++
    group.ID = s.nextGroupID
    group.CreatedAt = time.Now()

    members := map[int64]bool{group.CreatorID: true}
    for _, id := range group.MemberIDs {
        members[id] = true
    }
    s.members[group.ID] = members

    group.MemberIDs = memberIDs(members)
    stored := *group
    s.groups[group.ID] = &stored
    return nil
}

func memberIDs(members map[int64]bool) []int64 {
    ids := make([]int64, 0, len(members))
    for id := range members {
        ids = append(ids, id)
    }
    sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
    return ids
}

func (s *memStore) GetGroup(ctx context.Context, id int64) (*Group, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    g, ok := s.groups[id]
    if !ok {
        return nil, ErrGroupNotFound
    }
    out := *g
    out.MemberIDs = memberIDs(s.members[id])
    return &out, nil
}

func (s *memStore) ListGroupsForUser(ctx context.Context, userID int64) ([]*Group, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    var out []*Group
    for id, members := range s.members {
        if members[userID] {
            g := *s.groups[id]
            g.MemberIDs = memberIDs(members)
            out = append(out, &g)
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

func (s *memStore) AddMember(ctx context.Context, groupID, userID int64) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    members, ok := s.members[groupID]
    if !ok {
        return ErrGroupNotFound
    }
    members[userID] = true
    return nil
}

func (s *memStore) RemoveMember(ctx context.Context, groupID, userID int64) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    members, ok := s.members[groupID]
    if !ok {
        return ErrGroupNotFound
    }
    delete(members, userID)
    return nil
}

func (s *memStore) DeleteGroup(ctx context.Context, id int64) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    if _, ok := s.groups[id]; !ok {
        return ErrGroupNotFound
    }
    delete(s.groups, id)
    delete(s.members, id)
    return nil
}

func (s *memStore) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    return s.members[groupID][userID], nil
}

func (s *memStore) ListContacts(ctx context.Context, userID int64) ([]*UserInfo, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    seen := make(map[int64]bool)
    for _, m := range s.messages {
        if m.RecipientID == nil {
            continue
        }
        if m.SenderID == userID {
            seen[*m.RecipientID] = true
        } else if *m.RecipientID == userID {
            seen[m.SenderID] = true
        }
    }

    var out []*UserInfo
    for id := range seen {
        if u, ok := s.users[id]; ok {
            out = append(out, u)
        } else {
            out = append(out, &UserInfo{ID: id})
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

func (s *memStore) GetUserInfo(ctx context.Context, userID int64) (*UserInfo, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    u, ok := s.users[userID]
    if !ok {
        return nil, ErrNotFound
    }
    return u, nil
}
