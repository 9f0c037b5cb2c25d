// internal/chat/store.go

package chat

import (
    "context"
)

// Page bounds a history query. Before is an exclusive upper bound on the
// message id; zero means "latest".
type Page struct {
    Limit  int
    Before int64
}

// Store is the durability boundary for messages and groups. Append assigns
// the identifier and creation timestamp and enforces the write-time
// invariants; everything downstream of a successful Append is best-effort
// fan-out.
type Store interface {
    // Messages
    Append(ctx context.Context, msg *Message) error
    GetMessage(ctx context.Context, id int64) (*Message, error)
    ListForConversation(ctx context.Context, userA, userB int64, page Page) ([]*Message, error)
    ListForGroup(ctx context.Context, groupID int64, page Page) ([]*Message, error)
    MarkRead(ctx context.Context, ids []int64) error
    MarkConversationRead(ctx context.Context, readerID, otherID int64) (int64, error)
    MarkGroupRead(ctx context.Context, readerID, groupID int64) (int64, error)
    SoftDelete(ctx context.Context, id, byUser int64) error
    Edit(ctx context.Context, id, byUser int64, content string) (*Message, error)

    // Reactions
    AddReaction(ctx context.Context, messageID, userID int64, emoji string) (*Reaction, error)
    RemoveReaction(ctx context.Context, messageID, userID int64, emoji string) error

    // Groups
    CreateGroup(ctx context.Context, group *Group) error
    GetGroup(ctx context.Context, id int64) (*Group, error)
    ListGroupsForUser(ctx context.Context, userID int64) ([]*Group, error)
    AddMember(ctx context.Context, groupID, userID int64) error
    RemoveMember(ctx context.Context, groupID, userID int64) error
    DeleteGroup(ctx context.Context, id int64) error
    IsMember(ctx context.Context, groupID, userID int64) (bool, error)

    // Roster
    ListContacts(ctx context.Context, userID int64) ([]*UserInfo, error)
    GetUserInfo(ctx context.Context, userID int64) (*UserInfo, error)
}
