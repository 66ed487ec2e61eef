package repositories

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationRepository defines interactions for per-user notifications.
// Mutations are scoped to the recipient: a notification id belonging to
// someone else behaves as if it did not exist.
type NotificationRepository interface {
	Create(ctx context.Context, n models.Notification) (models.Notification, error)
	List(ctx context.Context, userID, limit, offset int, unreadOnly bool) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, notificationID, userID int) error
	MarkAllRead(ctx context.Context, userID int) (int, error)
	Delete(ctx context.Context, notificationID, userID int) error
	UnreadCount(ctx context.Context, userID int) (int, error)
}

// NotificationRepo is a sqlx-backed repository.
type NotificationRepo struct {
	db *sqlx.DB
}

// NewNotificationRepo constructs NotificationRepo.
func NewNotificationRepo(db *sqlx.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

const notificationSelect = `SELECT n.id, n.user_id, n.sender_id, n.type, n.chat_id,
        n.message_id, n.content, n.is_read, n.read_at, n.created_at,
        u.name AS sender_name, u.avatar_url AS sender_avatar
    FROM notifications n JOIN users u ON u.id = n.sender_id`

type notificationRow struct {
	models.Notification
	SenderName   string `db:"sender_name"`
	SenderAvatar string `db:"sender_avatar"`
}

func (row notificationRow) toNotification() models.Notification {
	n := row.Notification
	n.Sender = &models.UserSummary{ID: n.SenderID, Name: row.SenderName, AvatarURL: row.SenderAvatar}
	return n
}

// Create stores a notification and returns it with the sender inlined.
func (r *NotificationRepo) Create(ctx context.Context, n models.Notification) (models.Notification, error) {
	var id int
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO notifications (user_id, sender_id, type, chat_id, message_id, content)
         VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		n.UserID, n.SenderID, n.Type, n.ChatID, n.MessageID, n.Content).Scan(&id)
	if err != nil {
		return models.Notification{}, err
	}
	var row notificationRow
	if err := r.db.GetContext(ctx, &row, notificationSelect+` WHERE n.id=$1`, id); err != nil {
		return models.Notification{}, err
	}
	return row.toNotification(), nil
}

// List returns the user's notifications, newest first, with the total count
// before pagination so callers can derive page numbers.
func (r *NotificationRepo) List(ctx context.Context, userID, limit, offset int, unreadOnly bool) ([]models.Notification, int, error) {
	filter := ` WHERE n.user_id=$1`
	if unreadOnly {
		filter += ` AND n.is_read=FALSE`
	}

	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM notifications n`+filter, userID); err != nil {
		return nil, 0, err
	}

	var rows []notificationRow
	query := notificationSelect + filter + ` ORDER BY n.created_at DESC, n.id DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit, offset); err != nil {
		return nil, 0, err
	}
	notifications := make([]models.Notification, 0, len(rows))
	for _, row := range rows {
		notifications = append(notifications, row.toNotification())
	}
	return notifications, total, nil
}

// MarkRead acknowledges one notification. Idempotent for the recipient;
// ErrNotificationNotFound for anyone else's id.
func (r *NotificationRepo) MarkRead(ctx context.Context, notificationID, userID int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read=TRUE, read_at=COALESCE(read_at, NOW())
         WHERE id=$1 AND user_id=$2`, notificationID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead acknowledges every unread notification and reports how many
// changed.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID int) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read=TRUE, read_at=NOW()
         WHERE user_id=$1 AND is_read=FALSE`, userID)
	if err != nil {
		return 0, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// Delete removes one of the recipient's notifications.
func (r *NotificationRepo) Delete(ctx context.Context, notificationID, userID int) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE id=$1 AND user_id=$2`, notificationID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// UnreadCount returns how many notifications the user has not acknowledged.
func (r *NotificationRepo) UnreadCount(ctx context.Context, userID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND is_read=FALSE`, userID)
	if err != nil {
		return 0, err
	}
	return count, nil
}
