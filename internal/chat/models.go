// internal/chat/models.go

package chat

import (
    "encoding/json"
    "errors"
    "time"
)

var (
    // ErrInvalidScope is returned when a message names zero or both of
    // recipient/group. Every message belongs to exactly one conversation.
    ErrInvalidScope = errors.New("message must target exactly one of recipient or group")

    // ErrEmptyPayload is returned when a message carries neither content
    // nor an attachment.
    ErrEmptyPayload = errors.New("message must carry content, a photo or a file")

    ErrForbidden     = errors.New("not allowed to perform this operation")
    ErrNotFound      = errors.New("message not found")
    ErrNotMember     = errors.New("not a member of this group")
    ErrGroupNotFound = errors.New("group not found")
)

// MessageKind tags the payload variant of a message
type MessageKind string

const (
    KindText  MessageKind = "text"
    KindPhoto MessageKind = "photo"
    KindFile  MessageKind = "file"
)

// Message is the central chat entity. Exactly one of RecipientID/GroupID is
// set; []byte attachment fields travel base64-encoded over JSON.
type Message struct {
    ID               int64       `json:"id" db:"id"`
    SenderID         int64       `json:"sender_id" db:"sender_id"`
    RecipientID      *int64      `json:"recipient_id,omitempty" db:"recipient_id"`
    GroupID          *int64      `json:"group_id,omitempty" db:"group_id"`
    Content          *string     `json:"content,omitempty" db:"content"`
    Photo            []byte      `json:"photo,omitempty" db:"photo"`
    PhotoContentType *string     `json:"photo_content_type,omitempty" db:"photo_content_type"`
    File             []byte      `json:"file,omitempty" db:"file"`
    FileContentType  *string     `json:"file_content_type,omitempty" db:"file_content_type"`
    FileName         *string     `json:"file_name,omitempty" db:"file_name"`
    MediaURL         *string     `json:"media_url,omitempty" db:"media_url"`
    Kind             MessageKind `json:"kind" db:"kind"`
    IsRead           bool        `json:"is_read" db:"is_read"`
    IsEdited         bool        `json:"is_edited" db:"is_edited"`
    DeletedAt        *time.Time  `json:"deleted_at,omitempty" db:"deleted_at"`
    ParentMessageID  *int64      `json:"parent_message_id,omitempty" db:"parent_message_id"`
    CreatedAt        time.Time   `json:"created_at" db:"created_at"`

    // Computed fields
    Reactions []*Reaction `json:"reactions,omitempty"`
    Sender    *UserInfo   `json:"sender,omitempty"`
}

// Validate enforces the write-time invariants: exactly one scope field set,
// and a non-empty payload.
func (m *Message) Validate() error {
    if (m.RecipientID == nil) == (m.GroupID == nil) {
        return ErrInvalidScope
    }
    if !m.hasPayload() {
        return ErrEmptyPayload
    }
    return nil
}

func (m *Message) hasPayload() bool {
    if m.Content != nil && *m.Content != "" {
        return true
    }
    return len(m.Photo) > 0 || len(m.File) > 0 || (m.MediaURL != nil && *m.MediaURL != "")
}

// DeriveKind resolves the payload variant. Attachments win over text so a
// captioned photo still renders as a photo.
func (m *Message) DeriveKind() MessageKind {
    switch {
    case len(m.Photo) > 0:
        return KindPhoto
    case len(m.File) > 0:
        return KindFile
    case m.MediaURL != nil && *m.MediaURL != "":
        if m.FileName != nil && *m.FileName != "" {
            return KindFile
        }
        return KindPhoto
    default:
        return KindText
    }
}

// IsDeleted reports whether the message has been soft-deleted
func (m *Message) IsDeleted() bool {
    return m.DeletedAt != nil
}

// Reaction is an emoji attached to a message by a user
type Reaction struct {
    ID        int64     `json:"id" db:"id"`
    MessageID int64     `json:"message_id" db:"message_id"`
    UserID    int64     `json:"user_id" db:"user_id"`
    Emoji     string    `json:"emoji" db:"emoji"`
    CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Group is a named chat group. The creator is always a member and is the
// only identity allowed to delete the group or manage membership.
type Group struct {
    ID        int64     `json:"id" db:"id"`
    Name      string    `json:"name" db:"name"`
    CreatorID int64     `json:"creator_id" db:"creator_id"`
    CreatedAt time.Time `json:"created_at" db:"created_at"`

    // Computed fields
    MemberIDs []int64 `json:"member_ids,omitempty"`
}

// UserInfo is the roster view of a user
type UserInfo struct {
    ID          int64   `json:"id" db:"id"`
    Username    string  `json:"username" db:"username"`
    DisplayName string  `json:"display_name" db:"display_name"`
    AvatarURL   *string `json:"avatar_url,omitempty" db:"avatar_url"`
}

// Event envelope for everything crossing the websocket
type Event struct {
    Type      string          `json:"type"`
    Data      json.RawMessage `json:"data"`
    Timestamp time.Time       `json:"timestamp"`
}

// Client -> server event types
const (
    EventJoinGroupRoom      = "joinGroupRoom"
    EventSendPrivateMessage = "sendPrivateMessage"
    EventSendGroupMessage   = "sendGroupMessage"
    EventMarkMessagesRead   = "markMessagesAsRead"
)

// Server -> client event types
const (
    EventNewMessage   = "newMessage"
    EventJoinedRoom   = "joinedRoom"
    EventMessagesRead = "messagesRead"
    EventGroupDeleted = "groupDeleted"
    EventError        = "error"
)

// ConversationType discriminates mark-read and history requests
const (
    ConversationPrivate = "private"
    ConversationGroup   = "group"
)

// Request DTOs

type SendPrivatePayload struct {
    RecipientID      int64  `json:"recipient_id" validate:"required,gt=0"`
    Content          string `json:"content,omitempty"`
    Photo            []byte `json:"photo,omitempty"`
    PhotoContentType string `json:"photo_content_type,omitempty"`
    File             []byte `json:"file,omitempty"`
    FileContentType  string `json:"file_content_type,omitempty"`
    FileName         string `json:"file_name,omitempty"`
    ParentMessageID  *int64 `json:"parent_message_id,omitempty"`
}

type SendGroupPayload struct {
    GroupID          int64  `json:"group_id" validate:"required,gt=0"`
    Content          string `json:"content,omitempty"`
    Photo            []byte `json:"photo,omitempty"`
    PhotoContentType string `json:"photo_content_type,omitempty"`
    File             []byte `json:"file,omitempty"`
    FileContentType  string `json:"file_content_type,omitempty"`
    FileName         string `json:"file_name,omitempty"`
    ParentMessageID  *int64 `json:"parent_message_id,omitempty"`
}

type JoinGroupRoomPayload struct {
    GroupID int64 `json:"group_id" validate:"required,gt=0"`
}

type MarkReadPayload struct {
    ConversationID int64  `json:"conversation_id" validate:"required,gt=0"`
    Type           string `json:"type" validate:"required,oneof=private group"`
}

// Server event payloads

type JoinedRoomData struct {
    GroupID int64 `json:"group_id"`
}

type MessagesReadData struct {
    ConversationID int64  `json:"conversation_id"`
    Type           string `json:"type"`
    Count          int64  `json:"count"`
}

type GroupDeletedData struct {
    GroupID int64 `json:"group_id"`
}

type ErrorData struct {
    Message string `json:"message"`
}

type CreateGroupRequest struct {
    Name      string  `json:"name" validate:"required,min=1,max=120"`
    MemberIDs []int64 `json:"member_ids,omitempty"`
}

type AddMemberRequest struct {
    UserID int64 `json:"user_id" validate:"required,gt=0"`
}

type EditMessageRequest struct {
    Content string `json:"content" validate:"required,min=1"`
}

// Emoji length must stay within the message_reactions.emoji column.
type AddReactionRequest struct {
    Emoji string `json:"emoji" validate:"required,min=1,max=20"`
}
