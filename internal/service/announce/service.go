package announce

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"noticeboard/internal/model"
)

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type notificationRepo interface {
	InsertTx(ctx context.Context, tx pgx.Tx, n *model.Notification) (int64, error)
	UpdateContentTx(ctx context.Context, tx pgx.Tx, id int64, title string, content model.Content) error
	DeleteByAnnouncementTx(ctx context.Context, tx pgx.Tx, announcementID int64) error
	DeleteTx(ctx context.Context, tx pgx.Tx, id int64) error
}

type announcementRepo interface {
	InsertTx(ctx context.Context, tx pgx.Tx, a *model.Announcement) (int64, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, a *model.Announcement) error
	GetByID(ctx context.Context, id int64) (*model.Announcement, error)
	GetWithCanonical(ctx context.Context, id int64) (*model.Announcement, *model.Notification, error)
	GetView(ctx context.Context, id int64) (*model.AnnouncementView, error)
	ListViews(ctx context.Context) ([]model.AnnouncementView, error)
	DeleteTx(ctx context.Context, tx pgx.Tx, id int64) error
}

type batchRepo interface {
	DeleteByAnnouncementTx(ctx context.Context, tx pgx.Tx, announcementID int64) error
}

// DraftInput carries the admin-authored announcement fields.
type DraftInput struct {
	Title           string
	Content         model.Content
	Priority        model.Priority
	TargetUserTypes []string
	ContentType     string
	ExpiresAt       *time.Time
}

// Service owns the announcement entity and its canonical notification.
type Service struct {
	db      txBeginner
	notifs  notificationRepo
	anns    announcementRepo
	batches batchRepo
	logger  *zap.Logger
}

func NewService(db txBeginner, notifs notificationRepo, anns announcementRepo, batches batchRepo, logger *zap.Logger) *Service {
	return &Service{
		db:      db,
		notifs:  notifs,
		anns:    anns,
		batches: batches,
		logger:  logger,
	}
}

// CreateDraft creates the canonical notification and the announcement row in
// one transaction; both exist afterwards or neither does. The draft is
// invisible to other users until a dispatch completes.
func (s *Service) CreateDraft(ctx context.Context, in DraftInput, authorID int64, authorType string) (*model.AnnouncementView, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin draft transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// The canonical copy is addressed to the author: it is the content
	// template and the admin's own reference copy, never a real delivery.
	canonical := &model.Notification{
		Type:          model.TypeAnnouncement,
		RecipientID:   authorID,
		RecipientType: authorType,
		SenderID:      authorID,
		Title:         in.Title,
		Content:       in.Content,
	}
	notifID, err := s.notifs.InsertTx(ctx, tx, canonical)
	if err != nil {
		return nil, fmt.Errorf("create canonical notification: %w", err)
	}

	ann := &model.Announcement{
		NotificationID:  notifID,
		TargetUserTypes: in.TargetUserTypes,
		Priority:        in.Priority,
		ContentType:     in.ContentType,
		CreatedBy:       authorID,
		ExpiresAt:       in.ExpiresAt,
	}
	annID, err := s.anns.InsertTx(ctx, tx, ann)
	if err != nil {
		return nil, fmt.Errorf("create announcement: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit draft: %w", err)
	}

	s.logger.Info("announcement draft created",
		zap.Int64("announcement_id", annID),
		zap.Int64("author_id", authorID),
	)

	return s.anns.GetView(ctx, annID)
}

// Update edits the canonical notification's content and the announcement
// metadata atomically. Already-delivered per-recipient notifications are a
// record of what was actually sent and are never touched.
func (s *Service) Update(ctx context.Context, id int64, in DraftInput) (*model.AnnouncementView, error) {
	ann, err := s.anns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.notifs.UpdateContentTx(ctx, tx, ann.NotificationID, in.Title, in.Content); err != nil {
		return nil, fmt.Errorf("update canonical notification: %w", err)
	}

	ann.TargetUserTypes = in.TargetUserTypes
	ann.Priority = in.Priority
	ann.ContentType = in.ContentType
	ann.ExpiresAt = in.ExpiresAt
	if err := s.anns.UpdateTx(ctx, tx, ann); err != nil {
		return nil, fmt.Errorf("update announcement: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}

	return s.anns.GetView(ctx, id)
}

// Delete removes an announcement and everything derived from it in one
// transaction: batches first (they reference the announcement), then every
// per-recipient notification, then the canonical notification whose removal
// cascades to the announcement row at the database level. A bare draft whose
// canonical copy is already gone is deleted directly.
func (s *Service) Delete(ctx context.Context, id int64) error {
	_, canonical, err := s.anns.GetWithCanonical(ctx, id)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.batches.DeleteByAnnouncementTx(ctx, tx, id); err != nil {
		return fmt.Errorf("delete batches: %w", err)
	}

	if canonical != nil {
		if err := s.notifs.DeleteByAnnouncementTx(ctx, tx, id); err != nil {
			return fmt.Errorf("delete recipient notifications: %w", err)
		}
		if err := s.notifs.DeleteTx(ctx, tx, canonical.ID); err != nil {
			return fmt.Errorf("delete canonical notification: %w", err)
		}
	} else {
		if err := s.anns.DeleteTx(ctx, tx, id); err != nil {
			return fmt.Errorf("delete announcement: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	s.logger.Info("announcement deleted", zap.Int64("announcement_id", id))
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*model.AnnouncementView, error) {
	return s.anns.GetView(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]model.AnnouncementView, error) {
	return s.anns.ListViews(ctx)
}
