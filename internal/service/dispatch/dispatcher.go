package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"noticeboard/config"
	"noticeboard/internal/model"
	"noticeboard/internal/repository"
	"noticeboard/pkg/metrics"
	"noticeboard/pkg/util"
)

type batchStore interface {
	GetByID(ctx context.Context, id int64) (*model.NotificationBatch, error)
	GetStatus(ctx context.Context, id int64) (model.BatchStatus, error)
	RecipientsByStatus(ctx context.Context, batchID int64, status model.RecipientStatus) ([]model.BatchRecipient, error)
	MarkRecipient(ctx context.Context, batchID, recipientID int64, status model.RecipientStatus, errMsg *string) error
	UpdateProgress(ctx context.Context, batchID int64, sentCount int) error
	RecordOutcome(ctx context.Context, batchID int64, sentCount, totalRecipients int) (model.BatchStatus, error)
}

type notificationWriter interface {
	Insert(ctx context.Context, n *model.Notification) (int64, error)
}

// Dispatcher runs the fan-out for one batch: a bounded worker pool writes
// per-recipient notifications, each write isolated so one bad recipient
// cannot abort the rest.
type Dispatcher struct {
	batches batchStore
	anns    announcementReader
	writer  notificationWriter
	limiter *rate.Limiter
	logger  *zap.Logger

	workers        int
	chunkSize      int
	writeTimeout   time.Duration
	transientRetry int
}

func NewDispatcher(
	cfg config.DispatchConfig,
	batches batchStore,
	anns announcementReader,
	writer notificationWriter,
	logger *zap.Logger,
) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 256
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 100
	}
	writeTimeout := time.Duration(cfg.WriteTimeoutMS) * time.Millisecond
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Second
	}

	return &Dispatcher{
		batches:        batches,
		anns:           anns,
		writer:         writer,
		limiter:        rate.NewLimiter(rate.Limit(rps), rps),
		logger:         logger,
		workers:        workers,
		chunkSize:      chunkSize,
		writeTimeout:   writeTimeout,
		transientRetry: cfg.TransientRetry,
	}
}

// Run executes the fan-out for batchID. Safe against MQ redelivery: anything
// but a pending batch is skipped, and recipients already marked sent are not
// in the pending snapshot.
func (d *Dispatcher) Run(ctx context.Context, batchID int64) error {
	start := time.Now()

	batch, err := d.batches.GetByID(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Status != model.BatchPending {
		d.logger.Info("skipping non-pending batch",
			zap.Int64("batch_id", batchID),
			zap.String("status", string(batch.Status)),
		)
		return nil
	}

	ann, canonical, err := d.anns.GetWithCanonical(ctx, batch.AnnouncementID)
	if err != nil && !errors.Is(err, repository.ErrAnnouncementNotFound) {
		// Transient load failure: surface it so the job is requeued.
		return err
	}
	if err != nil || canonical == nil {
		// The announcement disappeared between send and fan-out; nothing can
		// be delivered, so the batch fails with whatever was already sent.
		d.logger.Warn("announcement missing for pending batch",
			zap.Int64("batch_id", batchID),
			zap.Int64("announcement_id", batch.AnnouncementID),
			zap.Error(err),
		)
		d.finalize(ctx, batchID, batch.SentCount, batch.TotalRecipients, start)
		return nil
	}

	pending, err := d.batches.RecipientsByStatus(ctx, batchID, model.RecipientPending)
	if err != nil {
		return err
	}

	d.logger.Info("dispatch started",
		zap.Int64("batch_id", batchID),
		zap.Int64("announcement_id", ann.ID),
		zap.Int("pending", len(pending)),
		zap.Int("total", batch.TotalRecipients),
	)

	// Resumed batches keep the count already flushed to the row.
	var sent atomic.Int64
	sent.Store(int64(batch.SentCount))

	for offset := 0; offset < len(pending); offset += d.chunkSize {
		// Cancellation wins over queued work: re-read the status between
		// chunks and leave a cancelled batch in its terminal state.
		status, err := d.batches.GetStatus(ctx, batchID)
		if err == nil && status == model.BatchCancelled {
			d.logger.Info("dispatch cancelled",
				zap.Int64("batch_id", batchID),
				zap.Int64("sent", sent.Load()),
			)
			metrics.RecordDispatchDuration("cancelled", time.Since(start))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		end := offset + d.chunkSize
		if end > len(pending) {
			end = len(pending)
		}
		d.fanOutChunk(ctx, ann, canonical, batchID, pending[offset:end], &sent)

		if err := d.batches.UpdateProgress(ctx, batchID, int(sent.Load())); err != nil {
			d.logger.Warn("failed to flush batch progress", zap.Int64("batch_id", batchID), zap.Error(err))
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	d.finalize(ctx, batchID, int(sent.Load()), batch.TotalRecipients, start)
	return nil
}

func (d *Dispatcher) fanOutChunk(
	ctx context.Context,
	ann *model.Announcement,
	canonical *model.Notification,
	batchID int64,
	chunk []model.BatchRecipient,
	sent *atomic.Int64,
) {
	jobs := make(chan model.BatchRecipient)

	var wg sync.WaitGroup
	wg.Add(d.workers)
	for i := 0; i < d.workers; i++ {
		go func() {
			defer wg.Done()
			for rc := range jobs {
				if err := d.limiter.Wait(ctx); err != nil {
					if ctx.Err() != nil {
						// Shutdown, not a delivery failure: the recipient
						// stays pending for the redelivered run.
						continue
					}
					d.recordFailure(ctx, batchID, rc, err)
					continue
				}
				if err := d.writeOne(ctx, ann, canonical, rc); err != nil {
					if ctx.Err() != nil {
						continue
					}
					d.recordFailure(ctx, batchID, rc, err)
					continue
				}
				sent.Add(1)
				metrics.IncrementRecipientWrite("sent")
				if err := d.batches.MarkRecipient(ctx, batchID, rc.RecipientID, model.RecipientSent, nil); err != nil {
					d.logger.Warn("failed to mark recipient sent",
						zap.Int64("batch_id", batchID),
						zap.Int64("recipient_id", rc.RecipientID),
						zap.Error(err),
					)
				}
			}
		}()
	}

	for _, rc := range chunk {
		jobs <- rc
	}
	close(jobs)
	wg.Wait()
}

// writeOne creates a single recipient's notification with a bounded timeout.
// The delivered copy embeds its own image list so it stays stable if the
// announcement is edited afterwards.
func (d *Dispatcher) writeOne(ctx context.Context, ann *model.Announcement, canonical *model.Notification, rc model.BatchRecipient) error {
	n := &model.Notification{
		Type:           model.TypeAnnouncement,
		RecipientID:    rc.RecipientID,
		RecipientType:  rc.RecipientType,
		SenderID:       ann.CreatedBy,
		AnnouncementID: &ann.ID,
		Title:          canonical.Title,
		Content: model.Content{
			Text:   canonical.Content.Text,
			Images: append([]string(nil), canonical.Content.Images...),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= d.transientRetry; attempt++ {
		writeCtx, cancel := context.WithTimeout(ctx, d.writeTimeout)
		_, err := d.writer.Insert(writeCtx, n)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		retryable, kind := util.IsRetryableError(err)
		if !retryable {
			if kind == "duplicate_key" {
				// Already delivered on a previous attempt; count as sent.
				return nil
			}
			return err
		}
	}

	return lastErr
}

func (d *Dispatcher) recordFailure(ctx context.Context, batchID int64, rc model.BatchRecipient, err error) {
	metrics.IncrementRecipientWrite("failed")
	d.logger.Warn("recipient write failed",
		zap.Int64("batch_id", batchID),
		zap.Int64("recipient_id", rc.RecipientID),
		zap.Error(err),
	)

	msg := err.Error()
	if markErr := d.batches.MarkRecipient(ctx, batchID, rc.RecipientID, model.RecipientFailed, &msg); markErr != nil {
		d.logger.Warn("failed to mark recipient failed",
			zap.Int64("batch_id", batchID),
			zap.Int64("recipient_id", rc.RecipientID),
			zap.Error(markErr),
		)
	}
}

func (d *Dispatcher) finalize(ctx context.Context, batchID int64, sentCount, totalRecipients int, start time.Time) {
	status, err := d.batches.RecordOutcome(ctx, batchID, sentCount, totalRecipients)
	if err != nil {
		d.logger.Error("failed to record batch outcome",
			zap.Int64("batch_id", batchID),
			zap.Int("sent", sentCount),
			zap.Int("total", totalRecipients),
			zap.Error(err),
		)
		return
	}

	metrics.IncrementBatch(string(status))
	metrics.RecordDispatchDuration(string(status), time.Since(start))

	fields := []zap.Field{
		zap.Int64("batch_id", batchID),
		zap.Int("sent", sentCount),
		zap.Int("total", totalRecipients),
		zap.Duration("took", time.Since(start)),
	}
	if status == model.BatchFailed {
		d.logger.Warn("dispatch finished with failures", fields...)
	} else {
		d.logger.Info("dispatch finished", fields...)
	}
}
