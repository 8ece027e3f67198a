package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"noticeboard/internal/model"
	"noticeboard/internal/repository"
	"noticeboard/internal/respond"
	"noticeboard/pkg/logger"
)

type noticeService interface {
	List(ctx context.Context, userID int64) ([]model.Notice, error)
	Get(ctx context.Context, notificationID int64) (*model.Notice, error)
	MarkRead(ctx context.Context, userID, notificationID int64) error
}

type NoticeHandler struct {
	notices noticeService
	logger  *zap.Logger
}

func NewNoticeHandler(s noticeService, logger *zap.Logger) *NoticeHandler {
	return &NoticeHandler{
		notices: s,
		logger:  logger,
	}
}

// List serves authenticated and anonymous viewers alike; anonymous callers
// get recency order without read state.
func (h *NoticeHandler) List(c *gin.Context) {
	userID := c.GetInt64("user_id")

	notices, err := h.notices.List(c.Request.Context(), userID)
	if err != nil {
		logger.WithTrace(c.Request.Context(), h.logger).Error("failed to list notices", zap.Error(err))
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	if notices == nil {
		notices = []model.Notice{}
	}
	respond.OK(c, notices)
}

func (h *NoticeHandler) Get(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	notice, err := h.notices.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNoticeNotFound) {
			respond.Fail(c, http.StatusNotFound, err)
			return
		}
		logger.WithTrace(c.Request.Context(), h.logger).Error("failed to get notice", zap.Int64("notification_id", id), zap.Error(err))
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c, notice)
}

func (h *NoticeHandler) MarkRead(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	userID := c.GetInt64("user_id")

	if err := h.notices.MarkRead(c.Request.Context(), userID, id); err != nil {
		if errors.Is(err, repository.ErrNotificationNotFound) {
			respond.Fail(c, http.StatusNotFound, err)
			return
		}
		logger.WithTrace(c.Request.Context(), h.logger).Error("failed to mark notice read",
			zap.Int64("user_id", userID),
			zap.Int64("notification_id", id),
			zap.Error(err),
		)
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.Message(c, "marked as read")
}
