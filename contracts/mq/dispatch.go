package mq

import (
	"time"

	"github.com/google/uuid"
)

// DispatchRequestedPayload asks the worker to fan out one batch.
// MessageID is the dedup key for MQ redeliveries.
type DispatchRequestedPayload struct {
	MessageID      uuid.UUID `json:"message_id"`
	BatchID        int64     `json:"batch_id"`
	AnnouncementID int64     `json:"announcement_id"`
	RequestedAt    time.Time `json:"requested_at"`
}

const (
	DispatchRequestedKey = "announcement.dispatch"
	DispatchQueue        = "announcement.dispatch.q"
)
