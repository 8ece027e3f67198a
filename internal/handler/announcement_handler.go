package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"noticeboard/internal/model"
	"noticeboard/internal/repository"
	"noticeboard/internal/respond"
	"noticeboard/internal/service/announce"
	"noticeboard/internal/service/dispatch"
	"noticeboard/pkg/logger"
)

type announceService interface {
	CreateDraft(ctx context.Context, in announce.DraftInput, authorID int64, authorType string) (*model.AnnouncementView, error)
	Update(ctx context.Context, id int64, in announce.DraftInput) (*model.AnnouncementView, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*model.AnnouncementView, error)
	List(ctx context.Context) ([]model.AnnouncementView, error)
}

type dispatchService interface {
	StartDispatch(ctx context.Context, announcementID int64) (*model.NotificationBatch, error)
	Resend(ctx context.Context, announcementID int64) (*model.NotificationBatch, error)
	Cancel(ctx context.Context, announcementID int64) error
	GetBatch(ctx context.Context, batchID int64) (*model.NotificationBatch, error)
}

type AnnouncementHandler struct {
	announcer  announceService
	dispatcher dispatchService
	validator  *validator.Validate
	logger     *zap.Logger
}

func NewAnnouncementHandler(a announceService, d dispatchService, v *validator.Validate, logger *zap.Logger) *AnnouncementHandler {
	return &AnnouncementHandler{
		announcer:  a,
		dispatcher: d,
		validator:  v,
		logger:     logger,
	}
}

func (h *AnnouncementHandler) Create(c *gin.Context) {
	var req AnnouncementRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("validation error: %s", err.Error()))
		return
	}

	authorID := c.GetInt64("user_id")
	authorType := c.GetString("role")

	view, err := h.announcer.CreateDraft(c.Request.Context(), req.toInput(), authorID, authorType)
	if err != nil {
		logger.WithTrace(c.Request.Context(), h.logger).Error("failed to create announcement", zap.Error(err))
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.Created(c, view)
}

func (h *AnnouncementHandler) Update(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	var req AnnouncementRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("validation error: %s", err.Error()))
		return
	}

	view, err := h.announcer.Update(c.Request.Context(), id, req.toInput())
	if err != nil {
		h.fail(c, id, "update", err)
		return
	}

	respond.OK(c, view)
}

// Action handles the publish/send/resend/cancel state transitions.
func (h *AnnouncementHandler) Action(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	var req ActionRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("validation error: %s", err.Error()))
		return
	}

	switch req.Action {
	case "publish":
		// Publishing flips nothing on its own: status is derived from batch
		// existence, so a draft stays a draft until a send completes.
		respond.Message(c, "announcement published")
	case "send":
		batch, err := h.dispatcher.StartDispatch(c.Request.Context(), id)
		if err != nil {
			h.fail(c, id, "send", err)
			return
		}
		respond.Accepted(c, batch)
	case "resend":
		batch, err := h.dispatcher.Resend(c.Request.Context(), id)
		if err != nil {
			h.fail(c, id, "resend", err)
			return
		}
		respond.Accepted(c, batch)
	case "cancel":
		if err := h.dispatcher.Cancel(c.Request.Context(), id); err != nil {
			h.fail(c, id, "cancel", err)
			return
		}
		respond.Message(c, "batch cancelled")
	}
}

func (h *AnnouncementHandler) Delete(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	if err := h.announcer.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, id, "delete", err)
		return
	}

	respond.Message(c, "announcement deleted")
}

func (h *AnnouncementHandler) Get(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	view, err := h.announcer.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, id, "get", err)
		return
	}

	respond.OK(c, view)
}

func (h *AnnouncementHandler) List(c *gin.Context) {
	views, err := h.announcer.List(c.Request.Context())
	if err != nil {
		logger.WithTrace(c.Request.Context(), h.logger).Error("failed to list announcements", zap.Error(err))
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	if views == nil {
		views = []model.AnnouncementView{}
	}
	respond.OK(c, views)
}

func (h *AnnouncementHandler) GetBatch(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	batch, err := h.dispatcher.GetBatch(c.Request.Context(), id)
	if err != nil {
		h.fail(c, id, "get batch", err)
		return
	}

	respond.OK(c, batch)
}

func (h *AnnouncementHandler) fail(c *gin.Context, id int64, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrAnnouncementNotFound),
		errors.Is(err, repository.ErrNotificationNotFound),
		errors.Is(err, repository.ErrBatchNotFound):
		respond.Fail(c, http.StatusNotFound, err)
	case errors.Is(err, dispatch.ErrNoTemplate),
		errors.Is(err, dispatch.ErrNothingToResend),
		errors.Is(err, repository.ErrBatchNotPending):
		respond.Fail(c, http.StatusBadRequest, err)
	default:
		logger.WithTrace(c.Request.Context(), h.logger).Error("announcement operation failed",
			zap.String("op", op),
			zap.Int64("announcement_id", id),
			zap.Error(err),
		)
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("internal server error"))
	}
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid id"))
		return 0, false
	}
	return id, true
}
