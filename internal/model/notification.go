package model

import "time"

const TypeAnnouncement = "ANNOUNCEMENT"

// Content is the structured message body. Images is empty for plain-text
// notifications; delivered rows embed their own copy of the image list so
// they stay stable when the announcement is edited later.
type Content struct {
	Text   string   `json:"text"`
	Images []string `json:"images,omitempty"`
}

// Notification is one delivered message addressed to exactly one recipient.
// The canonical copy (the announcement's template, addressed to its author)
// has AnnouncementID unset; per-recipient copies carry the foreign key.
type Notification struct {
	ID             int64      `json:"id"`
	Type           string     `json:"type"`
	RecipientID    int64      `json:"recipient_id"`
	RecipientType  string     `json:"recipient_type"`
	SenderID       int64      `json:"sender_id"`
	AnnouncementID *int64     `json:"announcement_id,omitempty"`
	Title          string     `json:"title"`
	Content        Content    `json:"content"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
