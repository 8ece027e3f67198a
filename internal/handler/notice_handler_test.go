package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"noticeboard/internal/model"
	"noticeboard/internal/repository"
)

type fakeNoticeService struct {
	notices   []model.Notice
	notice    *model.Notice
	listedFor int64
	marked    []int64
	markedBy  int64
	err       error
}

func (f *fakeNoticeService) List(_ context.Context, userID int64) ([]model.Notice, error) {
	f.listedFor = userID
	return f.notices, f.err
}

func (f *fakeNoticeService) Get(_ context.Context, _ int64) (*model.Notice, error) {
	return f.notice, f.err
}

func (f *fakeNoticeService) MarkRead(_ context.Context, userID, notificationID int64) error {
	if f.err != nil {
		return f.err
	}
	f.markedBy = userID
	f.marked = append(f.marked, notificationID)
	return nil
}

func TestNoticeListAnonymous(t *testing.T) {
	svc := &fakeNoticeService{}
	h := NewNoticeHandler(svc, zap.NewNop())

	c, w := testCtx(t, http.MethodGet, "/api/notices", nil)
	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(0), svc.listedFor)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestNoticeListAuthenticated(t *testing.T) {
	svc := &fakeNoticeService{notices: []model.Notice{{AnnouncementID: 1, Title: "Welcome"}}}
	h := NewNoticeHandler(svc, zap.NewNop())

	c, w := testCtx(t, http.MethodGet, "/api/notices", nil)
	c.Set("user_id", int64(9))
	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(9), svc.listedFor)
	assert.Contains(t, w.Body.String(), "Welcome")
}

func TestNoticeGetNotFound(t *testing.T) {
	h := NewNoticeHandler(&fakeNoticeService{err: repository.ErrNoticeNotFound}, zap.NewNop())

	c, w := testCtx(t, http.MethodGet, "/api/notices/99", nil)
	c.Params = gin.Params{{Key: "id", Value: "99"}}
	h.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarkReadScopedToCaller(t *testing.T) {
	svc := &fakeNoticeService{}
	h := NewNoticeHandler(svc, zap.NewNop())

	c, w := testCtx(t, http.MethodPatch, "/api/notices/100/read", nil)
	c.Params = gin.Params{{Key: "id", Value: "100"}}
	c.Set("user_id", int64(9))
	h.MarkRead(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(9), svc.markedBy)
	assert.Equal(t, []int64{100}, svc.marked)
}

func TestMarkReadMissingNotification(t *testing.T) {
	h := NewNoticeHandler(&fakeNoticeService{err: repository.ErrNotificationNotFound}, zap.NewNop())

	c, w := testCtx(t, http.MethodPatch, "/api/notices/100/read", nil)
	c.Params = gin.Params{{Key: "id", Value: "100"}}
	c.Set("user_id", int64(9))
	h.MarkRead(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
