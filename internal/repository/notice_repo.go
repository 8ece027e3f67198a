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

var ErrNoticeNotFound = errors.New("notice not found")

// NoticeRepository serves the public read side: only announcements with a
// COMPLETED batch are visible.
type NoticeRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewNoticeRepository(db *pgxpool.Pool, logger *zap.Logger) *NoticeRepository {
	return &NoticeRepository{
		db:     db,
		logger: logger,
	}
}

// ListForUser lists sent announcements, the caller's unread ones first, then
// most recent first. userID 0 is an anonymous viewer: no per-user copy, no
// read state, recency order only.
func (r *NoticeRepository) ListForUser(ctx context.Context, userID int64) ([]model.Notice, error) {
	query := `
		SELECT a.id, un.id, cn.title, cn.body, cn.images, a.priority,
		       COALESCE(un.is_read, FALSE), a.created_at
		FROM announcements a
		JOIN notifications cn ON cn.id = a.notification_id
		LEFT JOIN notifications un ON un.announcement_id = a.id AND un.recipient_id = $1
		WHERE EXISTS (
			SELECT 1 FROM notification_batches b
			WHERE b.announcement_id = a.id AND b.status = 'completed'
		)
		ORDER BY COALESCE(un.is_read, FALSE), a.created_at DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notices: %w", err)
	}
	defer rows.Close()

	var notices []model.Notice
	for rows.Next() {
		var (
			n      model.Notice
			images []byte
		)
		if err := rows.Scan(&n.AnnouncementID, &n.NotificationID, &n.Title, &n.Content.Text, &images, &n.Priority, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(images, &n.Content.Images); err != nil {
			return nil, fmt.Errorf("failed to decode images: %w", err)
		}
		notices = append(notices, n)
	}

	return notices, rows.Err()
}

// GetByNotificationID loads one delivered notice copy. Only per-recipient
// rows of a COMPLETED-batch announcement qualify; the canonical template row
// carries no announcement_id and is excluded by the join.
func (r *NoticeRepository) GetByNotificationID(ctx context.Context, notificationID int64) (*model.Notice, error) {
	query := `
		SELECT a.id, n.id, n.title, n.body, n.images, a.priority, n.is_read, n.created_at
		FROM notifications n
		JOIN announcements a ON a.id = n.announcement_id
		WHERE n.id = $1
		AND EXISTS (
			SELECT 1 FROM notification_batches b
			WHERE b.announcement_id = a.id AND b.status = 'completed'
		)
	`

	var (
		n      model.Notice
		images []byte
	)
	err := r.db.QueryRow(ctx, query, notificationID).Scan(
		&n.AnnouncementID, &n.NotificationID, &n.Title, &n.Content.Text, &images, &n.Priority, &n.IsRead, &n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoticeNotFound
		}
		return nil, fmt.Errorf("failed to get notice: %w", err)
	}

	if err := json.Unmarshal(images, &n.Content.Images); err != nil {
		return nil, fmt.Errorf("failed to decode images: %w", err)
	}

	return &n, nil
}
