package model

import "time"

// Notice is the public-facing projection of a sent announcement.
// NotificationID is the caller's own delivered copy and is nil for
// unauthenticated viewers (who can read but never mark read).
type Notice struct {
	AnnouncementID int64     `json:"announcement_id"`
	NotificationID *int64    `json:"notification_id,omitempty"`
	Title          string    `json:"title"`
	Content        Content   `json:"content"`
	Priority       Priority  `json:"priority"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}
