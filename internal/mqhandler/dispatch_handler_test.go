package mqhandler

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeRunner struct {
	runs []int64
}

func (f *fakeRunner) Run(_ context.Context, batchID int64) error {
	f.runs = append(f.runs, batchID)
	return nil
}

func TestHandleDropsMalformedPayload(t *testing.T) {
	runner := &fakeRunner{}
	h := NewDispatchRequestedHandler(runner, nil, zap.NewNop())

	// A malformed payload is acked away, never requeued and never dispatched.
	err := h.Handle(context.Background(), json.RawMessage(`{"batch_id": "not a number"`))
	assert.NoError(t, err)
	assert.Empty(t, runner.runs)
}
