// internal/chat/service.go

package chat

import (
    "context"
    "errors"
    "fmt"
    "io"
    "time"

    "github.com/go-redis/redis/v8"
    "github.com/google/uuid"

    "github.com/taskroom/taskroom-backend/internal/common/utils"
)

var (
    ErrCreatorCannotQuit = errors.New("group creator cannot quit; delete the group instead")
    ErrOnlyCreator       = errors.New("only the group creator may perform this operation")
)

// Service carries the chat business rules between the gateway/handlers and
// the store.
type Service interface {
    // Sends
    SendPrivate(ctx context.Context, senderID int64, payload *SendPrivatePayload) (*Message, error)
    SendGroup(ctx context.Context, senderID int64, payload *SendGroupPayload) (*Message, error)

    // Read tracking
    MarkRead(ctx context.Context, userID int64, payload *MarkReadPayload) (int64, error)

    // Membership
    CheckMembership(ctx context.Context, groupID, userID int64) error

    // History
    PrivateHistory(ctx context.Context, userID, otherID int64, page Page) ([]*Message, error)
    GroupHistory(ctx context.Context, userID, groupID int64, page Page) ([]*Message, error)

    // Message mutations
    EditMessage(ctx context.Context, messageID, userID int64, content string) (*Message, error)
    DeleteMessage(ctx context.Context, messageID, userID int64) error
    AddReaction(ctx context.Context, messageID, userID int64, emoji string) (*Reaction, error)
    RemoveReaction(ctx context.Context, messageID, userID int64, emoji string) error

    // Group lifecycle
    CreateGroup(ctx context.Context, creatorID int64, req *CreateGroupRequest) (*Group, error)
    GetGroup(ctx context.Context, groupID int64) (*Group, error)
    ListGroups(ctx context.Context, userID int64) ([]*Group, error)
    AddMember(ctx context.Context, actorID, groupID, userID int64) error
    RemoveMember(ctx context.Context, actorID, groupID, userID int64) error
    QuitGroup(ctx context.Context, userID, groupID int64) error
    DeleteGroup(ctx context.Context, actorID, groupID int64) error

    // Roster
    ListContacts(ctx context.Context, userID int64) ([]*UserInfo, error)

    // Presence
    SetOnline(ctx context.Context, userID int64) error
    SetOffline(ctx context.Context, userID int64) error
    ContactsOnline(ctx context.Context, userID int64) (map[int64]bool, error)

    // Attachments
    UploadAttachment(ctx context.Context, userID int64, file io.Reader, filename, contentType string) (string, error)
}

type ServiceConfig struct {
    HistoryPageLimit    int
    AttachmentThreshold int
    PresenceTTL         time.Duration
}

type chatService struct {
    store   Store
    storage StorageService
    redis   *redis.Client
    cfg     ServiceConfig
}

// NewService wires the chat business rules. redisClient and storage may be
// nil; presence and attachment offload degrade gracefully without them.
func NewService(store Store, storage StorageService, redisClient *redis.Client, cfg ServiceConfig) Service {
    if cfg.HistoryPageLimit <= 0 {
        cfg.HistoryPageLimit = 50
    }
    if cfg.AttachmentThreshold <= 0 {
        cfg.AttachmentThreshold = 256 * 1024
    }
    if cfg.PresenceTTL <= 0 {
        cfg.PresenceTTL = 90 * time.Second
    }
    return &chatService{
        store:   store,
        storage: storage,
        redis:   redisClient,
        cfg:     cfg,
    }
}

func (s *chatService) SendPrivate(ctx context.Context, senderID int64, payload *SendPrivatePayload) (*Message, error) {
    if err := utils.ValidateStruct(payload); err != nil {
        return nil, err
    }

    recipientID := payload.RecipientID
    msg := &Message{
        SenderID:        senderID,
        RecipientID:     &recipientID,
        ParentMessageID: payload.ParentMessageID,
    }
    s.applyPayload(msg, payload.Content, payload.Photo, payload.PhotoContentType,
        payload.File, payload.FileContentType, payload.FileName)

    if err := s.offloadAttachment(ctx, msg); err != nil {
        return nil, err
    }

    if err := s.store.Append(ctx, msg); err != nil {
        return nil, err
    }

    return msg, nil
}

func (s *chatService) SendGroup(ctx context.Context, senderID int64, payload *SendGroupPayload) (*Message, error) {
    if err := utils.ValidateStruct(payload); err != nil {
        return nil, err
    }

    if err := s.CheckMembership(ctx, payload.GroupID, senderID); err != nil {
        return nil, err
    }

    groupID := payload.GroupID
    msg := &Message{
        SenderID:        senderID,
        GroupID:         &groupID,
        ParentMessageID: payload.ParentMessageID,
    }
    s.applyPayload(msg, payload.Content, payload.Photo, payload.PhotoContentType,
        payload.File, payload.FileContentType, payload.FileName)

    if err := s.offloadAttachment(ctx, msg); err != nil {
        return nil, err
    }

    if err := s.store.Append(ctx, msg); err != nil {
        return nil, err
    }

    return msg, nil
}

func (s *chatService) applyPayload(msg *Message, content string, photo []byte, photoCT string, file []byte, fileCT, fileName string) {
    if content != "" {
        msg.Content = &content
    }
    if len(photo) > 0 {
        msg.Photo = photo
        if photoCT != "" {
            msg.PhotoContentType = &photoCT
        }
    }
    if len(file) > 0 {
        msg.File = file
        if fileCT != "" {
            msg.FileContentType = &fileCT
        }
        if fileName != "" {
            msg.FileName = &fileName
        }
    }
}

// offloadAttachment moves oversized attachment bytes to the storage
// backend and leaves only the URL on the message row.
func (s *chatService) offloadAttachment(ctx context.Context, msg *Message) error {
    if s.storage == nil {
        return nil
    }

    offload := func(data []byte, contentType, ext string) (string, error) {
        key := fmt.Sprintf("chat/%d/%s%s", msg.SenderID, uuid.NewString(), ext)
        return s.storage.Put(ctx, key, data, contentType)
    }

    if len(msg.Photo) > s.cfg.AttachmentThreshold {
        contentType := "application/octet-stream"
        if msg.PhotoContentType != nil {
            contentType = *msg.PhotoContentType
        }
        url, err := offload(msg.Photo, contentType, "")
        if err != nil {
            return fmt.Errorf("offload photo: %w", err)
        }
        msg.MediaURL = &url
        msg.Photo = nil
    }

    if len(msg.File) > s.cfg.AttachmentThreshold {
        contentType := "application/octet-stream"
        if msg.FileContentType != nil {
            contentType = *msg.FileContentType
        }
        url, err := offload(msg.File, contentType, "")
        if err != nil {
            return fmt.Errorf("offload file: %w", err)
        }
        msg.MediaURL = &url
        msg.File = nil
    }

    return nil
}

func (s *chatService) MarkRead(ctx context.Context, userID int64, payload *MarkReadPayload) (int64, error) {
    if err := utils.ValidateStruct(payload); err != nil {
        return 0, err
    }

    switch payload.Type {
    case ConversationPrivate:
        return s.store.MarkConversationRead(ctx, userID, payload.ConversationID)
    case ConversationGroup:
        if err := s.CheckMembership(ctx, payload.ConversationID, userID); err != nil {
            return 0, err
        }
        return s.store.MarkGroupRead(ctx, userID, payload.ConversationID)
    default:
        return 0, fmt.Errorf("unknown conversation type %q", payload.Type)
    }
}

func (s *chatService) CheckMembership(ctx context.Context, groupID, userID int64) error {
    ok, err := s.store.IsMember(ctx, groupID, userID)
    if err != nil {
        return err
    }
    if !ok {
        return ErrNotMember
    }
    return nil
}

func (s *chatService) PrivateHistory(ctx context.Context, userID, otherID int64, page Page) ([]*Message, error) {
    return s.store.ListForConversation(ctx, userID, otherID, s.boundPage(page))
}

func (s *chatService) GroupHistory(ctx context.Context, userID, groupID int64, page Page) ([]*Message, error) {
    if err := s.CheckMembership(ctx, groupID, userID); err != nil {
        return nil, err
    }
    return s.store.ListForGroup(ctx, groupID, s.boundPage(page))
}

func (s *chatService) boundPage(page Page) Page {
    if page.Limit <= 0 || page.Limit > s.cfg.HistoryPageLimit {
        page.Limit = s.cfg.HistoryPageLimit
    }
    return page
}

func (s *chatService) EditMessage(ctx context.Context, messageID, userID int64, content string) (*Message, error) {
    if content == "" {
        return nil, ErrEmptyPayload
    }
    return s.store.Edit(ctx, messageID, userID, content)
}

func (s *chatService) DeleteMessage(ctx context.Context, messageID, userID int64) error {
    return s.store.SoftDelete(ctx, messageID, userID)
}

func (s *chatService) AddReaction(ctx context.Context, messageID, userID int64, emoji string) (*Reaction, error) {
    if _, err := s.store.GetMessage(ctx, messageID); err != nil {
        return nil, err
    }
    return s.store.AddReaction(ctx, messageID, userID, emoji)
}

func (s *chatService) RemoveReaction(ctx context.Context, messageID, userID int64, emoji string) error {
    return s.store.RemoveReaction(ctx, messageID, userID, emoji)
}

func (s *chatService) CreateGroup(ctx context.Context, creatorID int64, req *CreateGroupRequest) (*Group, error) {
    if err := utils.ValidateStruct(req); err != nil {
        return nil, err
    }

    group := &Group{
        Name:      req.Name,
        CreatorID: creatorID,
        MemberIDs: req.MemberIDs,
    }
    if err := s.store.CreateGroup(ctx, group); err != nil {
        return nil, err
    }
    return group, nil
}

func (s *chatService) GetGroup(ctx context.Context, groupID int64) (*Group, error) {
    return s.store.GetGroup(ctx, groupID)
}

func (s *chatService) ListGroups(ctx context.Context, userID int64) ([]*Group, error) {
    return s.store.ListGroupsForUser(ctx, userID)
}

func (s *chatService) AddMember(ctx context.Context, actorID, groupID, userID int64) error {
    group, err := s.store.GetGroup(ctx, groupID)
    if err != nil {
        return err
    }
    if group.CreatorID != actorID {
        return ErrOnlyCreator
    }
    return s.store.AddMember(ctx, groupID, userID)
}

func (s *chatService) RemoveMember(ctx context.Context, actorID, groupID, userID int64) error {
    group, err := s.store.GetGroup(ctx, groupID)
    if err != nil {
        return err
    }
    if group.CreatorID != actorID {
        return ErrOnlyCreator
    }
    if userID == group.CreatorID {
        // Removing the creator would orphan the group
        return ErrCreatorCannotQuit
    }
    return s.store.RemoveMember(ctx, groupID, userID)
}

func (s *chatService) QuitGroup(ctx context.Context, userID, groupID int64) error {
    group, err := s.store.GetGroup(ctx, groupID)
    if err != nil {
        return err
    }
    if group.CreatorID == userID {
        return ErrCreatorCannotQuit
    }
    if err := s.CheckMembership(ctx, groupID, userID); err != nil {
        return err
    }
    return s.store.RemoveMember(ctx, groupID, userID)
}

func (s *chatService) DeleteGroup(ctx context.Context, actorID, groupID int64) error {
    group, err := s.store.GetGroup(ctx, groupID)
    if err != nil {
        return err
    }
    if group.CreatorID != actorID {
        return ErrOnlyCreator
    }
    return s.store.DeleteGroup(ctx, groupID)
}

func (s *chatService) ListContacts(ctx context.Context, userID int64) ([]*UserInfo, error) {
    return s.store.ListContacts(ctx, userID)
}

// Presence is tracked in redis with a TTL so a crashed server never leaves
// a user permanently "online".

func presenceKey(userID int64) string {
    return fmt.Sprintf("presence:%d", userID)
}

func (s *chatService) SetOnline(ctx context.Context, userID int64) error {
    if s.redis == nil {
        return nil
    }
    return s.redis.Set(ctx, presenceKey(userID), time.Now().Unix(), s.cfg.PresenceTTL).Err()
}

func (s *chatService) SetOffline(ctx context.Context, userID int64) error {
    if s.redis == nil {
        return nil
    }
    return s.redis.Del(ctx, presenceKey(userID)).Err()
}

func (s *chatService) ContactsOnline(ctx context.Context, userID int64) (map[int64]bool, error) {
    contacts, err := s.store.ListContacts(ctx, userID)
    if err != nil {
        return nil, err
    }

    status := make(map[int64]bool, len(contacts))
    for _, contact := range contacts {
        status[contact.ID] = false
    }
    if s.redis == nil || len(contacts) == 0 {
        return status, nil
    }

    keys := make([]string, 0, len(contacts))
    for _, contact := range contacts {
        keys = append(keys, presenceKey(contact.ID))
    }
    values, err := s.redis.MGet(ctx, keys...).Result()
    if err != nil {
        return nil, fmt.Errorf("presence lookup: %w", err)
    }
    for i, v := range values {
        status[contacts[i].ID] = v != nil
    }
    return status, nil
}

func (s *chatService) UploadAttachment(ctx context.Context, userID int64, file io.Reader, filename, contentType string) (string, error) {
    if s.storage == nil {
        return "", errors.New("attachment storage not configured")
    }

    data, err := io.ReadAll(file)
    if err != nil {
        return "", fmt.Errorf("read upload: %w", err)
    }

    key := fmt.Sprintf("chat/%d/%s-%s", userID, uuid.NewString(), filename)
    return s.storage.Put(ctx, key, data, contentType)
}
