package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for chat messages and read state.
type MessageRepository interface {
	CreateMessage(ctx context.Context, chatID, senderID int, content string) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	ListForUser(ctx context.Context, chatID, userID int) ([]models.Message, error)
	EditMessage(ctx context.Context, messageID, senderID int, content string) (models.Message, error)
	MarkDeletedForAll(ctx context.Context, messageID int) error
	AddDeletionFor(ctx context.Context, messageID, userID int) error
	DeleteAllInChat(ctx context.Context, chatID int) error
	LatestVisible(ctx context.Context, chatID int) (*models.Message, error)
	UnreadCounts(ctx context.Context, userID int) (map[int]int, error)
	MarkChatRead(ctx context.Context, chatID, userID int) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageSelect = `SELECT m.id, m.chat_id, m.sender_id, m.content, m.is_edited,
        m.edited_at, m.deleted_for_all, m.created_at,
        u.name AS sender_name, u.avatar_url AS sender_avatar
    FROM messages m JOIN users u ON u.id = m.sender_id`

type messageRow struct {
	models.Message
	SenderName   string `db:"sender_name"`
	SenderAvatar string `db:"sender_avatar"`
}

func (row messageRow) toMessage() models.Message {
	msg := row.Message
	msg.Sender = &models.UserSummary{ID: msg.SenderID, Name: row.SenderName, AvatarURL: row.SenderAvatar}
	return msg
}

// CreateMessage stores a message and returns it with the sender inlined.
func (r *MessageRepo) CreateMessage(ctx context.Context, chatID, senderID int, content string) (models.Message, error) {
	var id int
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (chat_id, sender_id, content) VALUES ($1, $2, $3) RETURNING id`,
		chatID, senderID, content).Scan(&id)
	if err != nil {
		return models.Message{}, err
	}
	return r.GetMessage(ctx, id)
}

// GetMessage retrieves a single message with its sender inlined.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, messageSelect+` WHERE m.id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.toMessage(), nil
}

// ListForUser returns chat messages in creation order, filtered per the
// viewer's visibility: messages the viewer deleted for themselves are absent,
// while a message deleted for all stays visible as its placeholder for
// everyone, whoever else deleted it.
func (r *MessageRepo) ListForUser(ctx context.Context, chatID, userID int) ([]models.Message, error) {
	query := messageSelect + `
        WHERE m.chat_id=$1
        AND (m.deleted_for_all = TRUE OR NOT EXISTS (
            SELECT 1 FROM message_deletions d WHERE d.message_id = m.id AND d.user_id = $2))
        ORDER BY m.created_at ASC, m.id ASC`
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, query, chatID, userID); err != nil {
		return nil, err
	}
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.toMessage())
	}
	return msgs, nil
}

// EditMessage replaces the content of the sender's own message. Refused once
// the message has been deleted for all.
func (r *MessageRepo) EditMessage(ctx context.Context, messageID, senderID int, content string) (models.Message, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET content=$3, is_edited=TRUE, edited_at=NOW()
         WHERE id=$1 AND sender_id=$2 AND deleted_for_all=FALSE`,
		messageID, senderID, content)
	if err != nil {
		return models.Message{}, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return models.Message{}, err
	}
	if count == 0 {
		return models.Message{}, ErrMessageNotFound
	}
	return r.GetMessage(ctx, messageID)
}

// MarkDeletedForAll replaces the content with the placeholder and flips the
// flag. Idempotent: a second delete overwrites placeholder with placeholder.
func (r *MessageRepo) MarkDeletedForAll(ctx context.Context, messageID int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET deleted_for_all=TRUE, content=$2 WHERE id=$1`,
		messageID, models.DeletedPlaceholder)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// AddDeletionFor adds the user to the message's deleted-for set. Set-union
// semantics: concurrent adds from different users never clobber each other.
func (r *MessageRepo) AddDeletionFor(ctx context.Context, messageID, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO message_deletions (message_id, user_id) VALUES ($1, $2)
         ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, userID)
	return err
}

// DeleteAllInChat bulk-removes every message in the chat.
func (r *MessageRepo) DeleteAllInChat(ctx context.Context, chatID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE chat_id=$1`, chatID)
	return err
}

// LatestVisible returns the most recent message not deleted for all, or nil
// when the chat has none. Used to recompute the chat-list preview.
func (r *MessageRepo) LatestVisible(ctx context.Context, chatID int) (*models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, messageSelect+`
        WHERE m.chat_id=$1 AND m.deleted_for_all=FALSE
        ORDER BY m.created_at DESC, m.id DESC LIMIT 1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	msg := row.toMessage()
	return &msg, nil
}

// UnreadCounts returns per-chat unread counters for the user, computed from
// the read watermark. Chats with nothing unread are absent from the map.
func (r *MessageRepo) UnreadCounts(ctx context.Context, userID int) (map[int]int, error) {
	query := `SELECT m.chat_id, COUNT(*) AS unread
        FROM messages m
        JOIN chat_participants cp ON cp.chat_id = m.chat_id AND cp.user_id = $1
        LEFT JOIN chat_reads r ON r.chat_id = m.chat_id AND r.user_id = $1
        WHERE m.sender_id <> $1
          AND m.deleted_for_all = FALSE
          AND (r.last_read_at IS NULL OR m.created_at > r.last_read_at)
        GROUP BY m.chat_id`

	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var chatID, unread int
		if err := rows.Scan(&chatID, &unread); err != nil {
			return nil, err
		}
		counts[chatID] = unread
	}
	return counts, rows.Err()
}

// MarkChatRead moves the user's read watermark for the chat to now.
func (r *MessageRepo) MarkChatRead(ctx context.Context, chatID, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_reads (chat_id, user_id, last_read_at) VALUES ($1, $2, NOW())
         ON CONFLICT (chat_id, user_id) DO UPDATE SET last_read_at = NOW()`, chatID, userID)
	return err
}
