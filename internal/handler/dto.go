package handler

import (
	"time"

	"noticeboard/internal/model"
	"noticeboard/internal/service/announce"
)

type AnnouncementRequest struct {
	Title           string     `json:"title" validate:"required,max=255"`
	Content         string     `json:"content" validate:"required"`
	Images          []string   `json:"images" validate:"dive,url"`
	Priority        string     `json:"priority" validate:"omitempty,oneof=LOW NORMAL HIGH"`
	TargetUserTypes []string   `json:"target_user_types"`
	ContentType     string     `json:"content_type"`
	ExpiresAt       *time.Time `json:"expires_at"`
}

func (r AnnouncementRequest) toInput() announce.DraftInput {
	priority := model.Priority(r.Priority)
	if priority == "" {
		priority = model.PriorityNormal
	}
	contentType := r.ContentType
	if contentType == "" {
		contentType = "TEXT"
	}

	return announce.DraftInput{
		Title: r.Title,
		Content: model.Content{
			Text:   r.Content,
			Images: r.Images,
		},
		Priority:        priority,
		TargetUserTypes: r.TargetUserTypes,
		ContentType:     contentType,
		ExpiresAt:       r.ExpiresAt,
	}
}

type ActionRequest struct {
	Action string `json:"action" validate:"required,oneof=publish send resend cancel"`
}
