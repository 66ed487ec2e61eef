package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messenger-service/internal/models"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrNotGroupChat = errors.New("not a group chat")
)

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	CreateOrGetDirectChat(ctx context.Context, userID, friendID int) (models.Chat, error)
	CreateGroupChat(ctx context.Context, adminID int, name, avatarURL string, memberIDs []int) (models.Chat, error)
	RenameGroup(ctx context.Context, chatID int, name string) error
	GetChat(ctx context.Context, chatID int) (models.Chat, error)
	ListChats(ctx context.Context, userID int) ([]models.Chat, error)
	IsParticipant(ctx context.Context, chatID, userID int) (bool, error)
	ParticipantIDs(ctx context.Context, chatID int) ([]int, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const chatColumns = `id, is_group, name, avatar_url, admin_id, created_at`

// directKey normalizes an unordered user pair into a unique lookup key, so a
// second creation request for the same pair lands on the existing row.
func directKey(userID, friendID int) string {
	if userID > friendID {
		userID, friendID = friendID, userID
	}
	return fmt.Sprintf("%d:%d", userID, friendID)
}

// CreateOrGetDirectChat returns the direct chat between two users, creating it
// if absent. Concurrent creations converge on the same row via the unique key.
func (r *ChatRepo) CreateOrGetDirectChat(ctx context.Context, userID, friendID int) (models.Chat, error) {
	if userID == friendID {
		return models.Chat{}, errors.New("cannot create chat with self")
	}
	key := directKey(userID, friendID)

	var chat models.Chat
	err := r.db.GetContext(ctx, &chat,
		`SELECT `+chatColumns+` FROM chats WHERE direct_key=$1`, key)
	if err == nil {
		return r.withParticipants(ctx, chat)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer tx.Rollback()

	err = tx.QueryRowxContext(ctx,
		`INSERT INTO chats (is_group, direct_key) VALUES (FALSE, $1) RETURNING `+chatColumns, key).
		StructScan(&chat)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			// lost the race, the other writer's row wins
			if err := r.db.GetContext(ctx, &chat,
				`SELECT `+chatColumns+` FROM chats WHERE direct_key=$1`, key); err != nil {
				return models.Chat{}, err
			}
			return r.withParticipants(ctx, chat)
		}
		return models.Chat{}, err
	}

	for _, id := range []int{userID, friendID} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)`, chat.ID, id); err != nil {
			return models.Chat{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return r.withParticipants(ctx, chat)
}

// CreateGroupChat creates a named group, optionally with an avatar, holding
// the admin and the given members.
func (r *ChatRepo) CreateGroupChat(ctx context.Context, adminID int, name, avatarURL string, memberIDs []int) (models.Chat, error) {
	members := map[int]struct{}{adminID: {}}
	for _, id := range memberIDs {
		members[id] = struct{}{}
	}
	if len(members) < 3 {
		return models.Chat{}, errors.New("group chat needs at least two members besides the admin")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer tx.Rollback()

	var chat models.Chat
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO chats (is_group, name, avatar_url, admin_id) VALUES (TRUE, $1, $2, $3) RETURNING `+chatColumns,
		name, avatarURL, adminID).StructScan(&chat)
	if err != nil {
		return models.Chat{}, err
	}

	for id := range members {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)`, chat.ID, id); err != nil {
			return models.Chat{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return r.withParticipants(ctx, chat)
}

// RenameGroup updates a group chat's name.
func (r *ChatRepo) RenameGroup(ctx context.Context, chatID int, name string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chats SET name=$2 WHERE id=$1 AND is_group=TRUE`, chatID, name)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotGroupChat
	}
	return nil
}

// GetChat fetches a chat with its participants inlined.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, err
	}
	return r.withParticipants(ctx, chat)
}

// ListChats returns the user's chats with participants and the latest
// non-fully-deleted message inlined, most recently active first.
func (r *ChatRepo) ListChats(ctx context.Context, userID int) ([]models.Chat, error) {
	query := `SELECT c.id, c.is_group, c.name, c.avatar_url, c.admin_id, c.created_at,
            m.id AS msg_id, m.sender_id AS msg_sender_id, m.content AS msg_content,
            m.is_edited AS msg_is_edited, m.deleted_for_all AS msg_deleted_for_all,
            m.created_at AS msg_created_at,
            u.name AS msg_sender_name, u.avatar_url AS msg_sender_avatar
        FROM chats c
        JOIN chat_participants cp ON cp.chat_id = c.id AND cp.user_id = $1
        LEFT JOIN LATERAL (
            SELECT * FROM messages
            WHERE chat_id = c.id AND deleted_for_all = FALSE
            ORDER BY created_at DESC, id DESC LIMIT 1
        ) m ON TRUE
        LEFT JOIN users u ON u.id = m.sender_id
        ORDER BY COALESCE(m.created_at, c.created_at) DESC`

	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []models.Chat
	for rows.Next() {
		var (
			chat      models.Chat
			msgID     sql.NullInt64
			senderID  sql.NullInt64
			content   sql.NullString
			isEdited  sql.NullBool
			delForAll sql.NullBool
			createdAt sql.NullTime
			sName     sql.NullString
			sAvatar   sql.NullString
		)
		if err := rows.Scan(&chat.ID, &chat.IsGroup, &chat.Name, &chat.AvatarURL, &chat.AdminID, &chat.CreatedAt,
			&msgID, &senderID, &content, &isEdited, &delForAll, &createdAt, &sName, &sAvatar); err != nil {
			return nil, err
		}
		if msgID.Valid {
			chat.LastMessage = &models.Message{
				ID:            int(msgID.Int64),
				ChatID:        chat.ID,
				SenderID:      int(senderID.Int64),
				Content:       content.String,
				IsEdited:      isEdited.Bool,
				DeletedForAll: delForAll.Bool,
				CreatedAt:     createdAt.Time,
				Sender: &models.UserSummary{
					ID:        int(senderID.Int64),
					Name:      sName.String,
					AvatarURL: sAvatar.String,
				},
			}
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return r.fillParticipants(ctx, chats)
}

// IsParticipant checks whether a user belongs to the chat.
func (r *ChatRepo) IsParticipant(ctx context.Context, chatID, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM chat_participants WHERE chat_id=$1 AND user_id=$2)`, chatID, userID)
	return exists, err
}

// ParticipantIDs returns the ids of everyone in the chat.
func (r *ChatRepo) ParticipantIDs(ctx context.Context, chatID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids,
		`SELECT user_id FROM chat_participants WHERE chat_id=$1 ORDER BY user_id`, chatID)
	return ids, err
}

func (r *ChatRepo) withParticipants(ctx context.Context, chat models.Chat) (models.Chat, error) {
	chats, err := r.fillParticipants(ctx, []models.Chat{chat})
	if err != nil {
		return models.Chat{}, err
	}
	return chats[0], nil
}

func (r *ChatRepo) fillParticipants(ctx context.Context, chats []models.Chat) ([]models.Chat, error) {
	if len(chats) == 0 {
		return chats, nil
	}
	chatIDs := make([]int, 0, len(chats))
	for _, c := range chats {
		chatIDs = append(chatIDs, c.ID)
	}

	rows, err := r.db.QueryxContext(ctx,
		`SELECT cp.chat_id, u.id, u.name, u.avatar_url
         FROM chat_participants cp JOIN users u ON u.id = cp.user_id
         WHERE cp.chat_id = ANY($1) ORDER BY u.id`, pq.Array(chatIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byChat := make(map[int][]models.UserSummary, len(chats))
	for rows.Next() {
		var chatID int
		var u models.UserSummary
		if err := rows.Scan(&chatID, &u.ID, &u.Name, &u.AvatarURL); err != nil {
			return nil, err
		}
		byChat[chatID] = append(byChat[chatID], u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range chats {
		chats[i].Participants = byChat[chats[i].ID]
	}
	return chats, nil
}
