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

var ErrAnnouncementNotFound = errors.New("announcement not found")

type AnnouncementRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAnnouncementRepository(db *pgxpool.Pool, logger *zap.Logger) *AnnouncementRepository {
	return &AnnouncementRepository{
		db:     db,
		logger: logger,
	}
}

func (r *AnnouncementRepository) InsertTx(ctx context.Context, tx pgx.Tx, a *model.Announcement) (int64, error) {
	targets, err := json.Marshal(stringList(a.TargetUserTypes))
	if err != nil {
		return 0, fmt.Errorf("failed to encode target user types: %w", err)
	}

	query := `
		INSERT INTO announcements (notification_id, target_user_types, priority, content_type, created_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	err = tx.QueryRow(ctx, query,
		a.NotificationID, targets, a.Priority, a.ContentType, a.CreatedBy, a.ExpiresAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert announcement: %w", err)
	}

	return id, nil
}

func (r *AnnouncementRepository) UpdateTx(ctx context.Context, tx pgx.Tx, a *model.Announcement) error {
	targets, err := json.Marshal(stringList(a.TargetUserTypes))
	if err != nil {
		return fmt.Errorf("failed to encode target user types: %w", err)
	}

	query := `
		UPDATE announcements
		SET target_user_types = $1, priority = $2, content_type = $3, expires_at = $4, updated_at = NOW()
		WHERE id = $5
	`
	res, err := tx.Exec(ctx, query, targets, a.Priority, a.ContentType, a.ExpiresAt, a.ID)
	if err != nil {
		return fmt.Errorf("failed to update announcement: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrAnnouncementNotFound
	}

	return nil
}

func (r *AnnouncementRepository) GetByID(ctx context.Context, id int64) (*model.Announcement, error) {
	query := `
		SELECT id, notification_id, target_user_types, priority, content_type,
		       created_by, expires_at, created_at, updated_at
		FROM announcements
		WHERE id = $1
	`

	a, err := scanAnnouncement(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAnnouncementNotFound
		}
		return nil, fmt.Errorf("failed to get announcement: %w", err)
	}

	return a, nil
}

// GetWithCanonical loads the announcement together with its canonical
// notification. The notification may be nil for a bare draft whose template
// row is already gone; deletion branches on that.
func (r *AnnouncementRepository) GetWithCanonical(ctx context.Context, id int64) (*model.Announcement, *model.Notification, error) {
	query := `
		SELECT a.id, a.notification_id, a.target_user_types, a.priority, a.content_type,
		       a.created_by, a.expires_at, a.created_at, a.updated_at,
		       n.id, n.title, n.body, n.images
		FROM announcements a
		LEFT JOIN notifications n ON n.id = a.notification_id
		WHERE a.id = $1
	`

	var (
		a       model.Announcement
		targets []byte
		notifID *int64
		title   *string
		body    *string
		images  []byte
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.NotificationID, &targets, &a.Priority, &a.ContentType,
		&a.CreatedBy, &a.ExpiresAt, &a.CreatedAt, &a.UpdatedAt,
		&notifID, &title, &body, &images,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrAnnouncementNotFound
		}
		return nil, nil, fmt.Errorf("failed to get announcement: %w", err)
	}

	if err := json.Unmarshal(targets, &a.TargetUserTypes); err != nil {
		return nil, nil, fmt.Errorf("failed to decode target user types: %w", err)
	}

	if notifID == nil {
		return &a, nil, nil
	}

	n := model.Notification{
		ID:       *notifID,
		Type:     model.TypeAnnouncement,
		SenderID: a.CreatedBy,
		Title:    *title,
		Content:  model.Content{Text: *body},
	}
	if err := json.Unmarshal(images, &n.Content.Images); err != nil {
		return nil, nil, fmt.Errorf("failed to decode images: %w", err)
	}

	return &a, &n, nil
}

const announcementViewQuery = `
	SELECT a.id, a.notification_id, a.target_user_types, a.priority, a.content_type,
	       a.created_by, a.expires_at, a.created_at, a.updated_at,
	       n.title, n.body, n.images,
	       COALESCE(u.name, ''),
	       COALESCE(b.sent_count, 0), COALESCE(b.total_recipients, 0),
	       (SELECT COUNT(*) FROM notifications rn WHERE rn.announcement_id = a.id AND rn.is_read),
	       EXISTS (SELECT 1 FROM notification_batches cb WHERE cb.announcement_id = a.id AND cb.status = 'completed')
	FROM announcements a
	JOIN notifications n ON n.id = a.notification_id
	LEFT JOIN users u ON u.id = a.created_by
	LEFT JOIN LATERAL (
		SELECT sent_count, total_recipients
		FROM notification_batches
		WHERE announcement_id = a.id AND status = 'completed'
		ORDER BY completed_at DESC
		LIMIT 1
	) b ON TRUE
`

// ListViews returns the composed admin listing, most recent first.
func (r *AnnouncementRepository) ListViews(ctx context.Context) ([]model.AnnouncementView, error) {
	rows, err := r.db.Query(ctx, announcementViewQuery+` ORDER BY a.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list announcements: %w", err)
	}
	defer rows.Close()

	var views []model.AnnouncementView
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}

	return views, rows.Err()
}

func (r *AnnouncementRepository) GetView(ctx context.Context, id int64) (*model.AnnouncementView, error) {
	v, err := scanView(r.db.QueryRow(ctx, announcementViewQuery+` WHERE a.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAnnouncementNotFound
		}
		return nil, fmt.Errorf("failed to get announcement view: %w", err)
	}
	return v, nil
}

// DeleteTx removes the announcement row directly. Only used when the
// canonical notification no longer exists and the cascade cannot fire.
func (r *AnnouncementRepository) DeleteTx(ctx context.Context, tx pgx.Tx, id int64) error {
	res, err := tx.Exec(ctx, `DELETE FROM announcements WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete announcement: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrAnnouncementNotFound
	}
	return nil
}

func scanAnnouncement(row pgx.Row) (*model.Announcement, error) {
	var (
		a       model.Announcement
		targets []byte
	)
	err := row.Scan(
		&a.ID, &a.NotificationID, &targets, &a.Priority, &a.ContentType,
		&a.CreatedBy, &a.ExpiresAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(targets, &a.TargetUserTypes); err != nil {
		return nil, fmt.Errorf("failed to decode target user types: %w", err)
	}
	return &a, nil
}

func scanView(row pgx.Row) (*model.AnnouncementView, error) {
	var (
		v       model.AnnouncementView
		targets []byte
		images  []byte
		sent    bool
	)
	err := row.Scan(
		&v.ID, &v.NotificationID, &targets, &v.Priority, &v.ContentType,
		&v.CreatedBy, &v.ExpiresAt, &v.CreatedAt, &v.UpdatedAt,
		&v.Title, &v.Content.Text, &images,
		&v.AuthorName,
		&v.SentCount, &v.TotalRecipients,
		&v.ReadCount,
		&sent,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(targets, &v.TargetUserTypes); err != nil {
		return nil, fmt.Errorf("failed to decode target user types: %w", err)
	}
	if err := json.Unmarshal(images, &v.Content.Images); err != nil {
		return nil, fmt.Errorf("failed to decode images: %w", err)
	}

	v.Status = model.StatusDraft
	if sent {
		v.Status = model.StatusSent
	}

	return &v, nil
}

func stringList(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
