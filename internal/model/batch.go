package model

import "time"

type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
	BatchCancelled BatchStatus = "cancelled"
)

// NotificationBatch is the bookkeeping row for one dispatch attempt.
// TotalRecipients is snapshotted before any fan-out write begins.
type NotificationBatch struct {
	ID              int64       `json:"id"`
	AnnouncementID  int64       `json:"announcement_id"`
	TotalRecipients int         `json:"total_recipients"`
	SentCount       int         `json:"sent_count"`
	Status          BatchStatus `json:"status"`
	StartedAt       time.Time   `json:"started_at"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
}

type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
)

// BatchRecipient is one entry of the recipient snapshot with its outcome.
type BatchRecipient struct {
	BatchID       int64           `json:"batch_id"`
	RecipientID   int64           `json:"recipient_id"`
	RecipientType string          `json:"recipient_type"`
	Status        RecipientStatus `json:"status"`
	Error         *string         `json:"error,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
