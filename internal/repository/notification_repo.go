package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"noticeboard/internal/model"
)

var ErrNotificationNotFound = errors.New("notification not found")

type NotificationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewNotificationRepository(db *pgxpool.Pool, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

const insertNotificationQuery = `
	INSERT INTO notifications (type, recipient_id, recipient_type, sender_id, announcement_id, title, body, images)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id
`

// Insert creates one per-recipient notification. Used by the fan-out, so a
// failure here must only fail this recipient.
func (r *NotificationRepository) Insert(ctx context.Context, n *model.Notification) (int64, error) {
	images, err := json.Marshal(imageList(n.Content.Images))
	if err != nil {
		return 0, fmt.Errorf("failed to encode images: %w", err)
	}

	var id int64
	err = r.db.QueryRow(ctx, insertNotificationQuery,
		n.Type, n.RecipientID, n.RecipientType, n.SenderID, n.AnnouncementID,
		n.Title, n.Content.Text, images,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert notification: %w", err)
	}

	return id, nil
}

// InsertTx is the transactional variant used for the canonical copy.
func (r *NotificationRepository) InsertTx(ctx context.Context, tx pgx.Tx, n *model.Notification) (int64, error) {
	images, err := json.Marshal(imageList(n.Content.Images))
	if err != nil {
		return 0, fmt.Errorf("failed to encode images: %w", err)
	}

	var id int64
	err = tx.QueryRow(ctx, insertNotificationQuery,
		n.Type, n.RecipientID, n.RecipientType, n.SenderID, n.AnnouncementID,
		n.Title, n.Content.Text, images,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert notification: %w", err)
	}

	return id, nil
}

func (r *NotificationRepository) UpdateContentTx(ctx context.Context, tx pgx.Tx, id int64, title string, content model.Content) error {
	images, err := json.Marshal(imageList(content.Images))
	if err != nil {
		return fmt.Errorf("failed to encode images: %w", err)
	}

	query := `
		UPDATE notifications
		SET title = $1, body = $2, images = $3, updated_at = NOW()
		WHERE id = $4
	`
	res, err := tx.Exec(ctx, query, title, content.Text, images, id)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}

	return nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*model.Notification, error) {
	query := `
		SELECT id, type, recipient_id, recipient_type, sender_id, announcement_id,
		       title, body, images, is_read, read_at, created_at, updated_at
		FROM notifications
		WHERE id = $1
	`

	var (
		n      model.Notification
		images []byte
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&n.ID, &n.Type, &n.RecipientID, &n.RecipientType, &n.SenderID, &n.AnnouncementID,
		&n.Title, &n.Content.Text, &images, &n.IsRead, &n.ReadAt, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}

	if err := json.Unmarshal(images, &n.Content.Images); err != nil {
		return nil, fmt.Errorf("failed to decode images: %w", err)
	}

	return &n, nil
}

// MarkRead flips is_read for the recipient's own notification. Re-marking an
// already-read row succeeds without touching read_at.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id int64) error {
	query := `
		UPDATE notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, NOW()), updated_at = NOW()
		WHERE id = $1 AND recipient_id = $2
	`
	res, err := r.db.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}

	return nil
}

// CountRead counts read per-recipient copies; the canonical copy never
// carries announcement_id, so it is excluded by construction.
func (r *NotificationRepository) CountRead(ctx context.Context, announcementID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM notifications
		WHERE announcement_id = $1 AND is_read
	`

	var count int
	if err := r.db.QueryRow(ctx, query, announcementID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count read notifications: %w", err)
	}

	return count, nil
}

// DeleteByAnnouncementTx removes every per-recipient copy of an announcement.
func (r *NotificationRepository) DeleteByAnnouncementTx(ctx context.Context, tx pgx.Tx, announcementID int64) error {
	_, err := tx.Exec(ctx, `DELETE FROM notifications WHERE announcement_id = $1`, announcementID)
	if err != nil {
		return fmt.Errorf("failed to delete recipient notifications: %w", err)
	}
	return nil
}

// DeleteTx removes the canonical notification; the announcement row goes
// with it via the database-level cascade.
func (r *NotificationRepository) DeleteTx(ctx context.Context, tx pgx.Tx, id int64) error {
	res, err := tx.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func imageList(images []string) []string {
	if images == nil {
		return []string{}
	}
	return images
}
