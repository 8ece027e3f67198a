package mqhandler

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	mqcontracts "noticeboard/contracts/mq"
	"noticeboard/pkg/metrics"
	"noticeboard/pkg/util"
)

type batchRunner interface {
	Run(ctx context.Context, batchID int64) error
}

type DispatchRequestedHandler struct {
	dispatcher batchRunner
	deduper    *util.Deduper
	logger     *zap.Logger
}

func NewDispatchRequestedHandler(dispatcher batchRunner, deduper *util.Deduper, logger *zap.Logger) *DispatchRequestedHandler {
	return &DispatchRequestedHandler{
		dispatcher: dispatcher,
		deduper:    deduper,
		logger:     logger,
	}
}

func (h *DispatchRequestedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	start := time.Now()

	var p mqcontracts.DispatchRequestedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("failed to unmarshal dispatch payload", zap.Error(err))
		// Malformed payloads never become parseable; drop instead of requeue.
		return nil
	}

	if !h.deduper.AcquireOnce(ctx, "dispatch", p.MessageID.String()) {
		return nil
	}

	h.logger.Info("handling dispatch job",
		zap.Int64("batch_id", p.BatchID),
		zap.Int64("announcement_id", p.AnnouncementID),
	)

	err := h.dispatcher.Run(ctx, p.BatchID)
	if err != nil {
		// The message gets requeued; release the lock so the retry is not
		// deduped away. Run itself is safe to repeat.
		h.deduper.Release(ctx, "dispatch", p.MessageID.String())
	}
	metrics.RecordMQConsumeLatency(mqcontracts.DispatchRequestedKey, mqcontracts.DispatchQueue, time.Since(start))
	return err
}
