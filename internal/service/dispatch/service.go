package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	mqcontracts "noticeboard/contracts/mq"
	"noticeboard/internal/model"
)

var (
	// ErrNoTemplate means the announcement has no canonical notification
	// left to use as the content template; it cannot be dispatched.
	ErrNoTemplate = errors.New("announcement has no content template")

	// ErrNothingToResend means the latest batch has no failed recipients.
	ErrNothingToResend = errors.New("no failed recipients to resend to")
)

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type announcementReader interface {
	GetWithCanonical(ctx context.Context, id int64) (*model.Announcement, *model.Notification, error)
}

type recipientResolver interface {
	ListActiveRecipients(ctx context.Context, excludeUserID int64) ([]model.User, error)
}

type batchStarter interface {
	InsertTx(ctx context.Context, tx pgx.Tx, announcementID int64, totalRecipients int) (int64, error)
	InsertRecipientsTx(ctx context.Context, tx pgx.Tx, batchID int64, recipients []model.BatchRecipient) error
	GetByID(ctx context.Context, id int64) (*model.NotificationBatch, error)
	LatestByAnnouncement(ctx context.Context, announcementID int64) (*model.NotificationBatch, error)
	RecipientsByStatus(ctx context.Context, batchID int64, status model.RecipientStatus) ([]model.BatchRecipient, error)
	Cancel(ctx context.Context, batchID int64) error
}

type jobPublisher interface {
	Publish(routingKey string, payload any) error
}

// Service is the request-path half of the broadcast orchestrator: it fixes
// the recipient snapshot, opens the PENDING batch and hands the fan-out to
// the worker over MQ. The HTTP caller gets an answer as soon as the batch
// row exists; progress is observed by polling GetBatch.
type Service struct {
	db        txBeginner
	anns      announcementReader
	users     recipientResolver
	batches   batchStarter
	publisher jobPublisher
	cache     *redis.Client
	logger    *zap.Logger
}

func NewService(
	db txBeginner,
	anns announcementReader,
	users recipientResolver,
	batches batchStarter,
	publisher jobPublisher,
	cache *redis.Client,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:        db,
		anns:      anns,
		users:     users,
		batches:   batches,
		publisher: publisher,
		cache:     cache,
		logger:    logger,
	}
}

// StartDispatch snapshots the recipients, creates the PENDING batch and
// publishes the dispatch job.
func (s *Service) StartDispatch(ctx context.Context, announcementID int64) (*model.NotificationBatch, error) {
	ann, canonical, err := s.anns.GetWithCanonical(ctx, announcementID)
	if err != nil {
		return nil, err
	}
	if canonical == nil {
		return nil, ErrNoTemplate
	}

	users, err := s.users.ListActiveRecipients(ctx, ann.CreatedBy)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}

	snapshot := make([]model.BatchRecipient, 0, len(users))
	for _, u := range users {
		snapshot = append(snapshot, model.BatchRecipient{
			RecipientID:   u.ID,
			RecipientType: u.UserType,
		})
	}

	return s.openBatch(ctx, announcementID, snapshot)
}

// Resend opens a new batch targeting only the recipients that failed in the
// announcement's most recent batch.
func (s *Service) Resend(ctx context.Context, announcementID int64) (*model.NotificationBatch, error) {
	latest, err := s.batches.LatestByAnnouncement(ctx, announcementID)
	if err != nil {
		return nil, err
	}

	failed, err := s.batches.RecipientsByStatus(ctx, latest.ID, model.RecipientFailed)
	if err != nil {
		return nil, err
	}
	if len(failed) == 0 {
		return nil, ErrNothingToResend
	}

	snapshot := make([]model.BatchRecipient, 0, len(failed))
	for _, rc := range failed {
		snapshot = append(snapshot, model.BatchRecipient{
			RecipientID:   rc.RecipientID,
			RecipientType: rc.RecipientType,
		})
	}

	return s.openBatch(ctx, announcementID, snapshot)
}

// Cancel moves the announcement's most recent batch out of pending; the
// worker notices between chunks and stops.
func (s *Service) Cancel(ctx context.Context, announcementID int64) error {
	latest, err := s.batches.LatestByAnnouncement(ctx, announcementID)
	if err != nil {
		return err
	}

	if err := s.batches.Cancel(ctx, latest.ID); err != nil {
		return err
	}

	s.invalidateBatchCache(ctx, latest.ID)
	return nil
}

func (s *Service) openBatch(ctx context.Context, announcementID int64, snapshot []model.BatchRecipient) (*model.NotificationBatch, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin batch transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batchID, err := s.batches.InsertTx(ctx, tx, announcementID, len(snapshot))
	if err != nil {
		return nil, fmt.Errorf("start batch: %w", err)
	}
	if err := s.batches.InsertRecipientsTx(ctx, tx, batchID, snapshot); err != nil {
		return nil, fmt.Errorf("persist recipient snapshot: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}

	payload := mqcontracts.DispatchRequestedPayload{
		MessageID:      uuid.New(),
		BatchID:        batchID,
		AnnouncementID: announcementID,
		RequestedAt:    time.Now(),
	}
	if err := s.publisher.Publish(mqcontracts.DispatchRequestedKey, payload); err != nil {
		// The batch stays observable as PENDING; the admin can cancel it and
		// trigger a fresh send.
		s.logger.Error("failed to publish dispatch job",
			zap.Int64("batch_id", batchID),
			zap.Int64("announcement_id", announcementID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("publish dispatch job: %w", err)
	}

	s.logger.Info("dispatch requested",
		zap.Int64("batch_id", batchID),
		zap.Int64("announcement_id", announcementID),
		zap.Int("total_recipients", len(snapshot)),
	)

	return &model.NotificationBatch{
		ID:              batchID,
		AnnouncementID:  announcementID,
		TotalRecipients: len(snapshot),
		Status:          model.BatchPending,
		StartedAt:       time.Now(),
	}, nil
}

// GetBatch reads a batch through a short-lived Redis cache so the admin UI
// can poll progress without hammering the database mid-dispatch.
func (s *Service) GetBatch(ctx context.Context, batchID int64) (*model.NotificationBatch, error) {
	key := batchCacheKey(batchID)

	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			var b model.NotificationBatch
			if err := json.Unmarshal(raw, &b); err == nil {
				return &b, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("batch cache read failed", zap.Int64("batch_id", batchID), zap.Error(err))
		}
	}

	b, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		ttl := 2 * time.Second
		if b.Status != model.BatchPending {
			ttl = 5 * time.Minute
		}
		if raw, err := json.Marshal(b); err == nil {
			if err := s.cache.Set(ctx, key, raw, ttl).Err(); err != nil {
				s.logger.Warn("batch cache write failed", zap.Int64("batch_id", batchID), zap.Error(err))
			}
		}
	}

	return b, nil
}

func (s *Service) invalidateBatchCache(ctx context.Context, batchID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, batchCacheKey(batchID)).Err(); err != nil {
		s.logger.Warn("batch cache invalidation failed", zap.Int64("batch_id", batchID), zap.Error(err))
	}
}

func batchCacheKey(batchID int64) string {
	return fmt.Sprintf("batch:%d", batchID)
}
