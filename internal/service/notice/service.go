package notice

import (
	"context"

	"go.uber.org/zap"

	"noticeboard/internal/model"
)

type noticeRepo interface {
	ListForUser(ctx context.Context, userID int64) ([]model.Notice, error)
	GetByNotificationID(ctx context.Context, notificationID int64) (*model.Notice, error)
}

type notificationRepo interface {
	MarkRead(ctx context.Context, userID, id int64) error
}

// Service is the public read side of the broadcast engine.
type Service struct {
	notices noticeRepo
	notifs  notificationRepo
	logger  *zap.Logger
}

func NewService(notices noticeRepo, notifs notificationRepo, logger *zap.Logger) *Service {
	return &Service{
		notices: notices,
		notifs:  notifs,
		logger:  logger,
	}
}

// List returns sent announcements, the caller's unread ones first. userID 0
// is an anonymous viewer.
func (s *Service) List(ctx context.Context, userID int64) ([]model.Notice, error) {
	return s.notices.ListForUser(ctx, userID)
}

func (s *Service) Get(ctx context.Context, notificationID int64) (*model.Notice, error) {
	return s.notices.GetByNotificationID(ctx, notificationID)
}

// MarkRead flips the caller's own copy to read. Marking an already-read
// notification is a no-op success, never an error.
func (s *Service) MarkRead(ctx context.Context, userID, notificationID int64) error {
	if err := s.notifs.MarkRead(ctx, userID, notificationID); err != nil {
		return err
	}

	s.logger.Debug("notification marked read",
		zap.Int64("user_id", userID),
		zap.Int64("notification_id", notificationID),
	)
	return nil
}
