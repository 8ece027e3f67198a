package model

import "time"

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
)

// Status is derived from batch existence, never persisted: an announcement
// is SENT once any of its batches completed, DRAFT otherwise.
type Status string

const (
	StatusDraft Status = "DRAFT"
	StatusSent  Status = "SENT"
)

type Announcement struct {
	ID              int64      `json:"id"`
	NotificationID  int64      `json:"notification_id"`
	TargetUserTypes []string   `json:"target_user_types"`
	Priority        Priority   `json:"priority"`
	ContentType     string     `json:"content_type"`
	CreatedBy       int64      `json:"created_by"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// AnnouncementView is the composed admin-facing row: announcement metadata,
// the canonical notification's content, derived status and delivery counts.
type AnnouncementView struct {
	Announcement
	Title           string  `json:"title"`
	Content         Content `json:"content"`
	Status          Status  `json:"status"`
	SentCount       int     `json:"sent_count"`
	TotalRecipients int     `json:"total_recipients"`
	ReadCount       int     `json:"read_count"`
	AuthorName      string  `json:"author_name"`
}
