// internal/chat/postgres.go

package chat

import (
    "context"
    "database/sql"
    "errors"
    "fmt"

    "github.com/jmoiron/sqlx"
    "github.com/lib/pq"
)

type postgresStore struct {
    db *sqlx.DB
}

// NewPostgresStore creates a Store backed by PostgreSQL
func NewPostgresStore(db *sqlx.DB) Store {
    return &postgresStore{db: db}
}

const messageColumns = `
    m.id, m.sender_id, m.recipient_id, m.group_id, m.content,
    m.photo, m.photo_content_type, m.file, m.file_content_type, m.file_name,
    m.media_url, m.kind, m.is_read, m.is_edited, m.deleted_at,
    m.parent_message_id, m.created_at`

// Append persists a new message. The id and creation timestamp are assigned
// here; the scope and payload invariants are enforced before any row is
// written.
func (s *postgresStore) Append(ctx context.Context, msg *Message) error {
    if err := msg.Validate(); err != nil {
        return err
    }
    msg.Kind = msg.DeriveKind()

    query := `
        INSERT INTO messages (
            sender_id, recipient_id, group_id, content,
            photo, photo_content_type, file, file_content_type, file_name,
            media_url, kind, parent_message_id
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
        ) RETURNING id, created_at`

    err := s.db.QueryRowContext(
        ctx, query,
        msg.SenderID, msg.RecipientID, msg.GroupID, msg.Content,
        msg.Photo, msg.PhotoContentType, msg.File, msg.FileContentType, msg.FileName,
        msg.MediaURL, msg.Kind, msg.ParentMessageID,
    ).Scan(&msg.ID, &msg.CreatedAt)
    if err != nil {
        return fmt.Errorf("append message: %w", err)
    }

    return nil
}

func (s *postgresStore) GetMessage(ctx context.Context, id int64) (*Message, error) {
    query := `SELECT` + messageColumns + ` FROM messages m WHERE m.id = $1`

    msg, err := s.scanMessage(s.db.QueryRowContext(ctx, query, id))
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrNotFound
        }
        return nil, fmt.Errorf("get message: %w", err)
    }

    if err := s.attachReactions(ctx, []*Message{msg}); err != nil {
        return nil, err
    }
    return msg, nil
}

// ListForConversation returns the private history between two users,
// ascending by creation time. The newest page is selected descending and
// reversed so pagination with Before walks backwards through history.
func (s *postgresStore) ListForConversation(ctx context.Context, userA, userB int64, page Page) ([]*Message, error) {
    query := `
        SELECT` + messageColumns + `
        FROM messages m
        WHERE ((m.sender_id = $1 AND m.recipient_id = $2)
            OR (m.sender_id = $2 AND m.recipient_id = $1))
          AND ($3 = 0 OR m.id < $3)
        ORDER BY m.id DESC
        LIMIT $4`

    return s.listMessages(ctx, query, userA, userB, page.Before, page.Limit)
}

func (s *postgresStore) ListForGroup(ctx context.Context, groupID int64, page Page) ([]*Message, error) {
    query := `
        SELECT` + messageColumns + `
        FROM messages m
        WHERE m.group_id = $1
          AND ($2 = 0 OR m.id < $2)
        ORDER BY m.id DESC
        LIMIT $3`

    return s.listMessages(ctx, query, groupID, page.Before, page.Limit)
}

func (s *postgresStore) listMessages(ctx context.Context, query string, args ...interface{}) ([]*Message, error) {
    rows, err := s.db.QueryContext(ctx, query, args...)
    if err != nil {
        return nil, fmt.Errorf("list messages: %w", err)
    }
    defer rows.Close()

    var messages []*Message
    for rows.Next() {
        msg, err := s.scanMessage(rows)
        if err != nil {
            return nil, fmt.Errorf("scan message: %w", err)
        }
        messages = append(messages, msg)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }

    // Reverse into ascending order
    for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
        messages[i], messages[j] = messages[j], messages[i]
    }

    if err := s.attachReactions(ctx, messages); err != nil {
        return nil, err
    }
    return messages, nil
}

type rowScanner interface {
    Scan(dest ...interface{}) error
}

func (s *postgresStore) scanMessage(row rowScanner) (*Message, error) {
    var msg Message
    err := row.Scan(
        &msg.ID, &msg.SenderID, &msg.RecipientID, &msg.GroupID, &msg.Content,
        &msg.Photo, &msg.PhotoContentType, &msg.File, &msg.FileContentType, &msg.FileName,
        &msg.MediaURL, &msg.Kind, &msg.IsRead, &msg.IsEdited, &msg.DeletedAt,
        &msg.ParentMessageID, &msg.CreatedAt,
    )
    if err != nil {
        return nil, err
    }

    // Soft-deleted rows stay in history so reply threads resolve, but their
    // payload is hidden.
    if msg.DeletedAt != nil {
        msg.Content = nil
        msg.Photo = nil
        msg.PhotoContentType = nil
        msg.File = nil
        msg.FileContentType = nil
        msg.FileName = nil
        msg.MediaURL = nil
    }

    return &msg, nil
}

func (s *postgresStore) attachReactions(ctx context.Context, messages []*Message) error {
    if len(messages) == 0 {
        return nil
    }

    ids := make([]int64, 0, len(messages))
    byID := make(map[int64]*Message, len(messages))
    for _, m := range messages {
        ids = append(ids, m.ID)
        byID[m.ID] = m
    }

    query := `
        SELECT id, message_id, user_id, emoji, created_at
        FROM message_reactions
        WHERE message_id = ANY($1)
        ORDER BY id`

    rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
    if err != nil {
        return fmt.Errorf("load reactions: %w", err)
    }
    defer rows.Close()

    for rows.Next() {
        var r Reaction
        if err := rows.Scan(&r.ID, &r.MessageID, &r.UserID, &r.Emoji, &r.CreatedAt); err != nil {
            return err
        }
        if msg, ok := byID[r.MessageID]; ok {
            msg.Reactions = append(msg.Reactions, &r)
        }
    }
    return rows.Err()
}

// MarkRead is idempotent: already-read ids are untouched
func (s *postgresStore) MarkRead(ctx context.Context, ids []int64) error {
    if len(ids) == 0 {
        return nil
    }

    query := `UPDATE messages SET is_read = TRUE WHERE id = ANY($1) AND is_read = FALSE`
    _, err := s.db.ExecContext(ctx, query, pq.Array(ids))
    return err
}

func (s *postgresStore) MarkConversationRead(ctx context.Context, readerID, otherID int64) (int64, error) {
    query := `
        UPDATE messages SET is_read = TRUE
        WHERE recipient_id = $1 AND sender_id = $2 AND is_read = FALSE`

    res, err := s.db.ExecContext(ctx, query, readerID, otherID)
    if err != nil {
        return 0, fmt.Errorf("mark conversation read: %w", err)
    }
    return res.RowsAffected()
}

func (s *postgresStore) MarkGroupRead(ctx context.Context, readerID, groupID int64) (int64, error) {
    query := `
        UPDATE messages SET is_read = TRUE
        WHERE group_id = $1 AND sender_id <> $2 AND is_read = FALSE`

    res, err := s.db.ExecContext(ctx, query, groupID, readerID)
    if err != nil {
        return 0, fmt.Errorf("mark group read: %w", err)
    }
    return res.RowsAffected()
}

// SoftDelete marks a message deleted without removing the row, so replies
// referencing it remain resolvable.
func (s *postgresStore) SoftDelete(ctx context.Context, id, byUser int64) error {
    query := `
        UPDATE messages SET deleted_at = NOW()
        WHERE id = $1 AND sender_id = $2 AND deleted_at IS NULL`

    res, err := s.db.ExecContext(ctx, query, id, byUser)
    if err != nil {
        return fmt.Errorf("soft delete: %w", err)
    }
    if n, _ := res.RowsAffected(); n > 0 {
        return nil
    }

    return s.classifyMutationFailure(ctx, id, byUser)
}

func (s *postgresStore) Edit(ctx context.Context, id, byUser int64, content string) (*Message, error) {
    query := `
        UPDATE messages SET content = $3, is_edited = TRUE
        WHERE id = $1 AND sender_id = $2 AND deleted_at IS NULL
        RETURNING id`

    var updated int64
    err := s.db.QueryRowContext(ctx, query, id, byUser, content).Scan(&updated)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, s.classifyMutationFailure(ctx, id, byUser)
        }
        return nil, fmt.Errorf("edit message: %w", err)
    }

    return s.GetMessage(ctx, updated)
}

// classifyMutationFailure distinguishes NotFound from Forbidden after an
// authorization-scoped update matched no rows.
func (s *postgresStore) classifyMutationFailure(ctx context.Context, id, byUser int64) error {
    var senderID int64
    err := s.db.QueryRowContext(ctx, `SELECT sender_id FROM messages WHERE id = $1 AND deleted_at IS NULL`, id).Scan(&senderID)
    if errors.Is(err, sql.ErrNoRows) {
        return ErrNotFound
    }
    if err != nil {
        return err
    }
    if senderID != byUser {
        return ErrForbidden
    }
    return ErrNotFound
}

func (s *postgresStore) AddReaction(ctx context.Context, messageID, userID int64, emoji string) (*Reaction, error) {
    query := `
        INSERT INTO message_reactions (message_id, user_id, emoji)
        VALUES ($1, $2, $3)
        ON CONFLICT (message_id, user_id, emoji) DO UPDATE SET emoji = EXCLUDED.emoji
        RETURNING id, message_id, user_id, emoji, created_at`

    var r Reaction
    err := s.db.QueryRowContext(ctx, query, messageID, userID, emoji).Scan(
        &r.ID, &r.MessageID, &r.UserID, &r.Emoji, &r.CreatedAt,
    )
    if err != nil {
        return nil, fmt.Errorf("add reaction: %w", err)
    }
    return &r, nil
}

func (s *postgresStore) RemoveReaction(ctx context.Context, messageID, userID int64, emoji string) error {
    query := `DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`
    _, err := s.db.ExecContext(ctx, query, messageID, userID, emoji)
    return err
}

// Groups

func (s *postgresStore) CreateGroup(ctx context.Context, group *Group) error {
    tx, err := s.db.BeginTxx(ctx, nil)
    if err != nil {
        return err
    }
    defer tx.Rollback()

    err = tx.QueryRowContext(ctx,
        `INSERT INTO chat_groups (name, creator_id) VALUES ($1, $2) RETURNING id, created_at`,
        group.Name, group.CreatorID,
    ).Scan(&group.ID, &group.CreatedAt)
    if err != nil {
        return fmt.Errorf("create group: %w", err)
    }

    // The creator is always a member
    members := append([]int64{group.CreatorID}, group.MemberIDs...)
    seen := make(map[int64]bool, len(members))
    group.MemberIDs = group.MemberIDs[:0]
    for _, userID := range members {
        if seen[userID] {
            continue
        }
        seen[userID] = true
        _, err = tx.ExecContext(ctx,
            `INSERT INTO chat_group_members (group_id, user_id) VALUES ($1, $2)`,
            group.ID, userID,
        )
        if err != nil {
            return fmt.Errorf("add group member: %w", err)
        }
        group.MemberIDs = append(group.MemberIDs, userID)
    }

    return tx.Commit()
}

func (s *postgresStore) GetGroup(ctx context.Context, id int64) (*Group, error) {
    var group Group
    err := s.db.QueryRowContext(ctx,
        `SELECT id, name, creator_id, created_at FROM chat_groups WHERE id = $1`, id,
    ).Scan(&group.ID, &group.Name, &group.CreatorID, &group.CreatedAt)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrGroupNotFound
        }
        return nil, fmt.Errorf("get group: %w", err)
    }

    rows, err := s.db.QueryContext(ctx,
        `SELECT user_id FROM chat_group_members WHERE group_id = $1 ORDER BY joined_at`, id,
    )
    if err != nil {
        return nil, fmt.Errorf("get group members: %w", err)
    }
    defer rows.Close()

    for rows.Next() {
        var userID int64
        if err := rows.Scan(&userID); err != nil {
            return nil, err
        }
        group.MemberIDs = append(group.MemberIDs, userID)
    }
    return &group, rows.Err()
}

func (s *postgresStore) ListGroupsForUser(ctx context.Context, userID int64) ([]*Group, error) {
    query := `
        SELECT g.id, g.name, g.creator_id, g.created_at
        FROM chat_groups g
        JOIN chat_group_members gm ON gm.group_id = g.id
        WHERE gm.user_id = $1
        ORDER BY g.created_at`

    rows, err := s.db.QueryContext(ctx, query, userID)
    if err != nil {
        return nil, fmt.Errorf("list groups: %w", err)
    }
    defer rows.Close()

    var groups []*Group
    for rows.Next() {
        var g Group
        if err := rows.Scan(&g.ID, &g.Name, &g.CreatorID, &g.CreatedAt); err != nil {
            return nil, err
        }
        groups = append(groups, &g)
    }
    return groups, rows.Err()
}

func (s *postgresStore) AddMember(ctx context.Context, groupID, userID int64) error {
    query := `
        INSERT INTO chat_group_members (group_id, user_id)
        VALUES ($1, $2)
        ON CONFLICT (group_id, user_id) DO NOTHING`

    _, err := s.db.ExecContext(ctx, query, groupID, userID)
    return err
}

func (s *postgresStore) RemoveMember(ctx context.Context, groupID, userID int64) error {
    query := `DELETE FROM chat_group_members WHERE group_id = $1 AND user_id = $2`
    _, err := s.db.ExecContext(ctx, query, groupID, userID)
    return err
}

// DeleteGroup removes the group and its membership rows. Messages keep
// their group_id so history stays queryable for auditing.
func (s *postgresStore) DeleteGroup(ctx context.Context, id int64) error {
    tx, err := s.db.BeginTxx(ctx, nil)
    if err != nil {
        return err
    }
    defer tx.Rollback()

    if _, err := tx.ExecContext(ctx, `DELETE FROM chat_group_members WHERE group_id = $1`, id); err != nil {
        return fmt.Errorf("delete group members: %w", err)
    }
    if _, err := tx.ExecContext(ctx, `DELETE FROM chat_groups WHERE id = $1`, id); err != nil {
        return fmt.Errorf("delete group: %w", err)
    }

    return tx.Commit()
}

func (s *postgresStore) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
    query := `
        SELECT EXISTS(
            SELECT 1 FROM chat_group_members
            WHERE group_id = $1 AND user_id = $2
        )`

    var exists bool
    err := s.db.QueryRowContext(ctx, query, groupID, userID).Scan(&exists)
    return exists, err
}

// ListContacts returns every user the given user has exchanged private
// messages with, for the roster bootstrap.
func (s *postgresStore) ListContacts(ctx context.Context, userID int64) ([]*UserInfo, error) {
    query := `
        SELECT DISTINCT u.id, u.username, u.display_name, u.avatar_url
        FROM users u
        JOIN messages m ON (m.sender_id = u.id AND m.recipient_id = $1)
                        OR (m.recipient_id = u.id AND m.sender_id = $1)
        ORDER BY u.username`

    rows, err := s.db.QueryContext(ctx, query, userID)
    if err != nil {
        return nil, fmt.Errorf("list contacts: %w", err)
    }
    defer rows.Close()

    var users []*UserInfo
    for rows.Next() {
        var u UserInfo
        if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL); err != nil {
            return nil, err
        }
        users = append(users, &u)
    }
    return users, rows.Err()
}

func (s *postgresStore) GetUserInfo(ctx context.Context, userID int64) (*UserInfo, error) {
    var u UserInfo
    err := s.db.QueryRowContext(ctx,
        `SELECT id, username, display_name, avatar_url FROM users WHERE id = $1`, userID,
    ).Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrNotFound
        }
        return nil, fmt.Errorf("get user info: %w", err)
    }
    return &u, nil
}
