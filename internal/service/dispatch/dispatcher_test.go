package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"noticeboard/config"
	"noticeboard/internal/model"
	"noticeboard/internal/repository"
)

type fakeBatchStore struct {
	mu sync.Mutex

	batch   *model.NotificationBatch
	pending []model.BatchRecipient

	marks    map[int64]model.RecipientStatus
	markErrs map[int64]string
	progress []int

	outcome     model.BatchStatus
	outcomeSent int
	outcomeSet  bool

	statusCalls int
	cancelAfter int
}

func newFakeBatchStore(batch *model.NotificationBatch, pending []model.BatchRecipient) *fakeBatchStore {
	return &fakeBatchStore{
		batch:    batch,
		pending:  pending,
		marks:    make(map[int64]model.RecipientStatus),
		markErrs: make(map[int64]string),
	}
}

func (f *fakeBatchStore) GetByID(_ context.Context, _ int64) (*model.NotificationBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := *f.batch
	return &b, nil
}

func (f *fakeBatchStore) GetStatus(_ context.Context, _ int64) (model.BatchStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.cancelAfter > 0 && f.statusCalls > f.cancelAfter {
		return model.BatchCancelled, nil
	}
	return f.batch.Status, nil
}

func (f *fakeBatchStore) RecipientsByStatus(_ context.Context, _ int64, status model.RecipientStatus) ([]model.BatchRecipient, error) {
	if status != model.RecipientPending {
		return nil, nil
	}
	return f.pending, nil
}

func (f *fakeBatchStore) MarkRecipient(_ context.Context, _ int64, recipientID int64, status model.RecipientStatus, errMsg *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks[recipientID] = status
	if errMsg != nil {
		f.markErrs[recipientID] = *errMsg
	}
	return nil
}

func (f *fakeBatchStore) UpdateProgress(_ context.Context, _ int64, sentCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, sentCount)
	return nil
}

func (f *fakeBatchStore) RecordOutcome(_ context.Context, _ int64, sentCount, totalRecipients int) (model.BatchStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := model.BatchFailed
	if sentCount >= totalRecipients {
		status = model.BatchCompleted
	}
	f.outcome = status
	f.outcomeSent = sentCount
	f.outcomeSet = true
	f.batch.Status = status
	return status, nil
}

type fakeAnnouncements struct {
	ann       *model.Announcement
	canonical *model.Notification
	err       error
}

func (f *fakeAnnouncements) GetWithCanonical(_ context.Context, _ int64) (*model.Announcement, *model.Notification, error) {
	return f.ann, f.canonical, f.err
}

type fakeWriter struct {
	mu       sync.Mutex
	nextID   int64
	inserted []model.Notification
	attempts map[int64]int
	failFor  map[int64]error
	failOnce map[int64]error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		attempts: make(map[int64]int),
		failFor:  make(map[int64]error),
		failOnce: make(map[int64]error),
	}
}

func (f *fakeWriter) Insert(_ context.Context, n *model.Notification) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[n.RecipientID]++
	if err, ok := f.failOnce[n.RecipientID]; ok {
		delete(f.failOnce, n.RecipientID)
		return 0, err
	}
	if err, ok := f.failFor[n.RecipientID]; ok {
		return 0, err
	}
	f.nextID++
	f.inserted = append(f.inserted, *n)
	return f.nextID, nil
}

func testDispatchConfig() config.DispatchConfig {
	return config.DispatchConfig{
		Workers:        2,
		RatePerSec:     1000,
		ChunkSize:      2,
		WriteTimeoutMS: 1000,
		TransientRetry: 1,
	}
}

func pendingRecipients(ids ...int64) []model.BatchRecipient {
	out := make([]model.BatchRecipient, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.BatchRecipient{
			BatchID:       1,
			RecipientID:   id,
			RecipientType: "student",
			Status:        model.RecipientPending,
		})
	}
	return out
}

func testAnnouncement() (*model.Announcement, *model.Notification) {
	ann := &model.Announcement{ID: 10, NotificationID: 100, CreatedBy: 7}
	canonical := &model.Notification{
		ID:          100,
		Type:        model.TypeAnnouncement,
		RecipientID: 7,
		SenderID:    7,
		Title:       "Maintenance window",
		Content:     model.Content{Text: "Systems down at midnight", Images: []string{"https://cdn.example.com/a.png"}},
	}
	return ann, canonical
}

func TestRunDeliversToAllRecipients(t *testing.T) {
	ann, canonical := testAnnouncement()
	batch := &model.NotificationBatch{ID: 1, AnnouncementID: ann.ID, TotalRecipients: 5, Status: model.BatchPending}
	store := newFakeBatchStore(batch, pendingRecipients(1, 2, 3, 4, 5))
	writer := newFakeWriter()

	d := NewDispatcher(testDispatchConfig(), store, &fakeAnnouncements{ann: ann, canonical: canonical}, writer, zap.NewNop())
	require.NoError(t, d.Run(context.Background(), 1))

	assert.Len(t, writer.inserted, 5)
	for _, n := range writer.inserted {
		require.NotNil(t, n.AnnouncementID)
		assert.Equal(t, ann.ID, *n.AnnouncementID)
		assert.Equal(t, canonical.Title, n.Title)
		assert.Equal(t, canonical.Content.Text, n.Content.Text)
		assert.Equal(t, ann.CreatedBy, n.SenderID)
	}

	assert.True(t, store.outcomeSet)
	assert.Equal(t, model.BatchCompleted, store.outcome)
	assert.Equal(t, 5, store.outcomeSent)
	for id := int64(1); id <= 5; id++ {
		assert.Equal(t, model.RecipientSent, store.marks[id])
	}
}

func TestRunIsolatesRecipientFailures(t *testing.T) {
	ann, canonical := testAnnouncement()
	batch := &model.NotificationBatch{ID: 1, AnnouncementID: ann.ID, TotalRecipients: 5, Status: model.BatchPending}
	store := newFakeBatchStore(batch, pendingRecipients(1, 2, 3, 4, 5))
	writer := newFakeWriter()
	writer.failFor[2] = errors.New("boom")
	writer.failFor[4] = errors.New("boom")

	d := NewDispatcher(testDispatchConfig(), store, &fakeAnnouncements{ann: ann, canonical: canonical}, writer, zap.NewNop())
	require.NoError(t, d.Run(context.Background(), 1))

	assert.Len(t, writer.inserted, 3)
	assert.Equal(t, model.BatchFailed, store.outcome)
	assert.Equal(t, 3, store.outcomeSent)
	assert.Equal(t, model.RecipientFailed, store.marks[2])
	assert.Equal(t, model.RecipientFailed, store.marks[4])
	assert.Equal(t, "boom", store.markErrs[2])
	assert.Equal(t, model.RecipientSent, store.marks[1])
	assert.Equal(t, model.RecipientSent, store.marks[3])
	assert.Equal(t, model.RecipientSent, store.marks[5])
}

func TestRunSkipsNonPendingBatch(t *testing.T) {
	ann, canonical := testAnnouncement()
	batch := &model.NotificationBatch{ID: 1, AnnouncementID: ann.ID, TotalRecipients: 3, Status: model.BatchCompleted}
	store := newFakeBatchStore(batch, pendingRecipients(1, 2, 3))
	writer := newFakeWriter()

	d := NewDispatcher(testDispatchConfig(), store, &fakeAnnouncements{ann: ann, canonical: canonical}, writer, zap.NewNop())
	require.NoError(t, d.Run(context.Background(), 1))

	assert.Empty(t, writer.inserted)
	assert.False(t, store.outcomeSet)
}

func TestRunStopsWhenBatchCancelled(t *testing.T) {
	ann, canonical := testAnnouncement()
	batch := &model.NotificationBatch{ID: 1, AnnouncementID: ann.ID, TotalRecipients: 4, Status: model.BatchPending}
	store := newFakeBatchStore(batch, pendingRecipients(1, 2, 3, 4))
	store.cancelAfter = 1
	writer := newFakeWriter()

	d := NewDispatcher(testDispatchConfig(), store, &fakeAnnouncements{ann: ann, canonical: canonical}, writer, zap.NewNop())
	require.NoError(t, d.Run(context.Background(), 1))

	// Chunk size is 2: one chunk completes before the cancel is observed.
	assert.Len(t, writer.inserted, 2)
	assert.False(t, store.outcomeSet)
}

func TestRunFailsBatchWhenAnnouncementMissing(t *testing.T) {
	batch := &model.NotificationBatch{ID: 1, AnnouncementID: 999, TotalRecipients: 3, Status: model.BatchPending}
	store := newFakeBatchStore(batch, pendingRecipients(1, 2, 3))
	writer := newFakeWriter()

	d := NewDispatcher(testDispatchConfig(), store, &fakeAnnouncements{}, writer, zap.NewNop())
	require.NoError(t, d.Run(context.Background(), 1))

	assert.Empty(t, writer.inserted)
	assert.True(t, store.outcomeSet)
	assert.Equal(t, model.BatchFailed, store.outcome)
	assert.Equal(t, 0, store.outcomeSent)
}

func TestRunFailsBatchWhenAnnouncementDeleted(t *testing.T) {
	batch := &model.NotificationBatch{ID: 1, AnnouncementID: 999, TotalRecipients: 3, Status: model.BatchPending}
	store := newFakeBatchStore(batch, pendingRecipients(1, 2, 3))
	writer := newFakeWriter()

	d := NewDispatcher(testDispatchConfig(), store, &fakeAnnouncements{err: repository.ErrAnnouncementNotFound}, writer, zap.NewNop())
	require.NoError(t, d.Run(context.Background(), 1))

	assert.Empty(t, writer.inserted)
	assert.True(t, store.outcomeSet)
	assert.Equal(t, model.BatchFailed, store.outcome)
}

func TestRunSurfacesTransientAnnouncementLoadError(t *testing.T) {
	batch := &model.NotificationBatch{ID: 1, AnnouncementID: 10, TotalRecipients: 3, Status: model.BatchPending}
	store := newFakeBatchStore(batch, pendingRecipients(1, 2, 3))
	writer := newFakeWriter()

	// A connection blip while loading the announcement must requeue the job,
	// never burn the batch.
	d := NewDispatcher(testDispatchConfig(), store, &fakeAnnouncements{err: errors.New("connection reset by peer")}, writer, zap.NewNop())
	require.Error(t, d.Run(context.Background(), 1))

	assert.Empty(t, writer.inserted)
	assert.False(t, store.outcomeSet)
}

func TestRunRetriesTransientWriteErrors(t *testing.T) {
	ann, canonical := testAnnouncement()
	batch := &model.NotificationBatch{ID: 1, AnnouncementID: ann.ID, TotalRecipients: 2, Status: model.BatchPending}
	store := newFakeBatchStore(batch, pendingRecipients(1, 2))
	writer := newFakeWriter()
	writer.failOnce[1] = errors.New("connection reset by peer")

	d := NewDispatcher(testDispatchConfig(), store, &fakeAnnouncements{ann: ann, canonical: canonical}, writer, zap.NewNop())
	require.NoError(t, d.Run(context.Background(), 1))

	assert.Len(t, writer.inserted, 2)
	assert.Equal(t, 2, writer.attempts[1])
	assert.Equal(t, model.BatchCompleted, store.outcome)
	assert.Equal(t, model.RecipientSent, store.marks[1])
}

func TestRunCountsDuplicateWriteAsSent(t *testing.T) {
	ann, canonical := testAnnouncement()
	batch := &model.NotificationBatch{ID: 1, AnnouncementID: ann.ID, TotalRecipients: 2, Status: model.BatchPending}
	store := newFakeBatchStore(batch, pendingRecipients(1, 2))
	writer := newFakeWriter()
	writer.failFor[2] = errors.New(`duplicate key value violates unique constraint "notifications_pkey"`)

	d := NewDispatcher(testDispatchConfig(), store, &fakeAnnouncements{ann: ann, canonical: canonical}, writer, zap.NewNop())
	require.NoError(t, d.Run(context.Background(), 1))

	assert.Equal(t, model.BatchCompleted, store.outcome)
	assert.Equal(t, 2, store.outcomeSent)
	assert.Equal(t, model.RecipientSent, store.marks[2])
	assert.Equal(t, 1, writer.attempts[2])
}

func TestRunResumesFromFlushedProgress(t *testing.T) {
	ann, canonical := testAnnouncement()
	batch := &model.NotificationBatch{ID: 1, AnnouncementID: ann.ID, TotalRecipients: 5, SentCount: 3, Status: model.BatchPending}
	store := newFakeBatchStore(batch, pendingRecipients(4, 5))
	writer := newFakeWriter()

	d := NewDispatcher(testDispatchConfig(), store, &fakeAnnouncements{ann: ann, canonical: canonical}, writer, zap.NewNop())
	require.NoError(t, d.Run(context.Background(), 1))

	assert.Len(t, writer.inserted, 2)
	assert.Equal(t, model.BatchCompleted, store.outcome)
	assert.Equal(t, 5, store.outcomeSent)
}

func TestFanOutLeavesRecipientsPendingOnShutdown(t *testing.T) {
	ann, canonical := testAnnouncement()
	batch := &model.NotificationBatch{ID: 1, AnnouncementID: ann.ID, TotalRecipients: 2, Status: model.BatchPending}
	store := newFakeBatchStore(batch, pendingRecipients(1, 2))
	writer := newFakeWriter()
	d := NewDispatcher(testDispatchConfig(), store, &fakeAnnouncements{ann: ann, canonical: canonical}, writer, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sent atomic.Int64
	d.fanOutChunk(ctx, ann, canonical, 1, pendingRecipients(1, 2), &sent)

	// Cancellation must not poison the snapshot with FAILED marks; the
	// redelivered run picks the recipients up again.
	assert.Empty(t, store.marks)
	assert.Empty(t, writer.inserted)
	assert.Zero(t, sent.Load())
}

func TestWriteOneEmbedsOwnImageCopy(t *testing.T) {
	ann, canonical := testAnnouncement()
	batch := &model.NotificationBatch{ID: 1, AnnouncementID: ann.ID, TotalRecipients: 1, Status: model.BatchPending}
	store := newFakeBatchStore(batch, pendingRecipients(1))
	writer := newFakeWriter()

	d := NewDispatcher(testDispatchConfig(), store, &fakeAnnouncements{ann: ann, canonical: canonical}, writer, zap.NewNop())
	require.NoError(t, d.Run(context.Background(), 1))

	require.Len(t, writer.inserted, 1)
	delivered := writer.inserted[0]
	require.Equal(t, canonical.Content.Images, delivered.Content.Images)

	// Editing the announcement afterwards must not reach into delivered rows.
	canonical.Content.Images[0] = "https://cdn.example.com/edited.png"
	assert.Equal(t, "https://cdn.example.com/a.png", delivered.Content.Images[0])
}
