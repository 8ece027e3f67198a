package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"noticeboard/internal/model"
)

var (
	ErrBatchNotFound   = errors.New("batch not found")
	ErrBatchNotPending = errors.New("batch is not pending")
)

type BatchRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewBatchRepository(db *pgxpool.Pool, logger *zap.Logger) *BatchRepository {
	return &BatchRepository{
		db:     db,
		logger: logger,
	}
}

// InsertTx creates the PENDING batch row. It runs in the same transaction as
// the recipient snapshot insert so a crash mid-dispatch always leaves an
// observable pending batch with its full snapshot.
func (r *BatchRepository) InsertTx(ctx context.Context, tx pgx.Tx, announcementID int64, totalRecipients int) (int64, error) {
	query := `
		INSERT INTO notification_batches (announcement_id, total_recipients, status)
		VALUES ($1, $2, 'pending')
		RETURNING id
	`

	var id int64
	if err := tx.QueryRow(ctx, query, announcementID, totalRecipients).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert batch: %w", err)
	}

	return id, nil
}

// InsertRecipientsTx persists the recipient snapshot for a batch.
func (r *BatchRepository) InsertRecipientsTx(ctx context.Context, tx pgx.Tx, batchID int64, recipients []model.BatchRecipient) error {
	b := &pgx.Batch{}
	for _, rc := range recipients {
		b.Queue(
			`INSERT INTO batch_recipients (batch_id, recipient_id, recipient_type) VALUES ($1, $2, $3)`,
			batchID, rc.RecipientID, rc.RecipientType,
		)
	}

	res := tx.SendBatch(ctx, b)
	defer res.Close()

	for range recipients {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("failed to insert batch recipient: %w", err)
		}
	}

	return nil
}

func (r *BatchRepository) GetByID(ctx context.Context, id int64) (*model.NotificationBatch, error) {
	query := `
		SELECT id, announcement_id, total_recipients, sent_count, status, started_at, completed_at
		FROM notification_batches
		WHERE id = $1
	`

	var b model.NotificationBatch
	err := r.db.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.AnnouncementID, &b.TotalRecipients, &b.SentCount, &b.Status, &b.StartedAt, &b.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBatchNotFound
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	return &b, nil
}

func (r *BatchRepository) GetStatus(ctx context.Context, id int64) (model.BatchStatus, error) {
	var status model.BatchStatus
	err := r.db.QueryRow(ctx, `SELECT status FROM notification_batches WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrBatchNotFound
		}
		return "", fmt.Errorf("failed to get batch status: %w", err)
	}
	return status, nil
}

func (r *BatchRepository) LatestByAnnouncement(ctx context.Context, announcementID int64) (*model.NotificationBatch, error) {
	query := `
		SELECT id, announcement_id, total_recipients, sent_count, status, started_at, completed_at
		FROM notification_batches
		WHERE announcement_id = $1
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`

	var b model.NotificationBatch
	err := r.db.QueryRow(ctx, query, announcementID).Scan(
		&b.ID, &b.AnnouncementID, &b.TotalRecipients, &b.SentCount, &b.Status, &b.StartedAt, &b.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBatchNotFound
		}
		return nil, fmt.Errorf("failed to get latest batch: %w", err)
	}

	return &b, nil
}

// HasCompleted reports whether any batch for the announcement reached
// COMPLETED. This is the sole signal behind the DRAFT/SENT distinction.
func (r *BatchRepository) HasCompleted(ctx context.Context, announcementID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM notification_batches
			WHERE announcement_id = $1 AND status = 'completed'
		)
	`

	var sent bool
	if err := r.db.QueryRow(ctx, query, announcementID).Scan(&sent); err != nil {
		return false, fmt.Errorf("failed to check completed batches: %w", err)
	}

	return sent, nil
}

func (r *BatchRepository) RecipientsByStatus(ctx context.Context, batchID int64, status model.RecipientStatus) ([]model.BatchRecipient, error) {
	query := `
		SELECT batch_id, recipient_id, recipient_type, status, error, updated_at
		FROM batch_recipients
		WHERE batch_id = $1 AND status = $2
		ORDER BY recipient_id
	`

	rows, err := r.db.Query(ctx, query, batchID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch recipients: %w", err)
	}
	defer rows.Close()

	var recipients []model.BatchRecipient
	for rows.Next() {
		var rc model.BatchRecipient
		if err := rows.Scan(&rc.BatchID, &rc.RecipientID, &rc.RecipientType, &rc.Status, &rc.Error, &rc.UpdatedAt); err != nil {
			return nil, err
		}
		recipients = append(recipients, rc)
	}

	return recipients, rows.Err()
}

// MarkRecipient records one recipient's outcome on the snapshot row.
func (r *BatchRepository) MarkRecipient(ctx context.Context, batchID, recipientID int64, status model.RecipientStatus, errMsg *string) error {
	query := `
		UPDATE batch_recipients
		SET status = $1, error = $2, updated_at = NOW()
		WHERE batch_id = $3 AND recipient_id = $4
	`
	if _, err := r.db.Exec(ctx, query, status, errMsg, batchID, recipientID); err != nil {
		return fmt.Errorf("failed to mark batch recipient: %w", err)
	}
	return nil
}

// UpdateProgress flushes the running sent count so status polls see progress
// mid-dispatch.
func (r *BatchRepository) UpdateProgress(ctx context.Context, batchID int64, sentCount int) error {
	query := `
		UPDATE notification_batches
		SET sent_count = $1
		WHERE id = $2 AND status = 'pending'
	`
	if _, err := r.db.Exec(ctx, query, sentCount, batchID); err != nil {
		return fmt.Errorf("failed to update batch progress: %w", err)
	}
	return nil
}

// RecordOutcome writes the terminal status: COMPLETED when every recipient
// was written, FAILED otherwise. Only a pending batch can be finalized; the
// returned status reflects what is actually stored.
func (r *BatchRepository) RecordOutcome(ctx context.Context, batchID int64, sentCount, totalRecipients int) (model.BatchStatus, error) {
	query := `
		UPDATE notification_batches
		SET sent_count = $1,
		    status = CASE WHEN $1 >= $2 THEN 'completed' ELSE 'failed' END,
		    completed_at = NOW()
		WHERE id = $3 AND status = 'pending'
		RETURNING status
	`

	var status model.BatchStatus
	err := r.db.QueryRow(ctx, query, sentCount, totalRecipients, batchID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrBatchNotPending
		}
		return "", fmt.Errorf("failed to record batch outcome: %w", err)
	}

	return status, nil
}

// Cancel moves a pending batch to the CANCELLED terminal state. The
// dispatcher observes it between chunks and stops fanning out.
func (r *BatchRepository) Cancel(ctx context.Context, batchID int64) error {
	query := `
		UPDATE notification_batches
		SET status = 'cancelled', completed_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	res, err := r.db.Exec(ctx, query, batchID)
	if err != nil {
		return fmt.Errorf("failed to cancel batch: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrBatchNotPending
	}
	return nil
}

// DeleteByAnnouncementTx removes every batch of an announcement; snapshot
// rows go via the batch_recipients FK cascade.
func (r *BatchRepository) DeleteByAnnouncementTx(ctx context.Context, tx pgx.Tx, announcementID int64) error {
	_, err := tx.Exec(ctx, `DELETE FROM notification_batches WHERE announcement_id = $1`, announcementID)
	if err != nil {
		return fmt.Errorf("failed to delete batches: %w", err)
	}
	return nil
}
