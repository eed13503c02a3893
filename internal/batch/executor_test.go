package batch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/blueberrycongee/aicore/internal/coretypes"
	coreerrors "github.com/blueberrycongee/aicore/pkg/errors"
)

type stubProcessor struct {
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	fail        func(coretypes.ProcessingRequest) bool
}

func (s *stubProcessor) Process(ctx context.Context, req coretypes.ProcessingRequest) (coretypes.ProcessingResponse, error) {
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		max := s.maxInFlight.Load()
		if cur <= max || s.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}

	time.Sleep(time.Millisecond)

	if s.fail != nil && s.fail(req) {
		return coretypes.ProcessingResponse{}, coreerrors.NewValidationError("forced failure")
	}
	return coretypes.ProcessingResponse{Success: true, Operation: req.Operation, TraceID: req.TraceID}, nil
}

func makeItems(n int) []coretypes.ProcessingRequest {
	items := make([]coretypes.ProcessingRequest, n)
	for i := range items {
		items[i] = coretypes.ProcessingRequest{Text: "item", Operation: coretypes.Summarize}
	}
	return items
}

func TestProcessBatchPreservesOrderAndCounts(t *testing.T) {
	proc := &stubProcessor{}
	exec := New(proc, 4)

	resp := exec.ProcessBatch(context.Background(), coretypes.BatchRequest{BatchID: "b1", Items: makeItems(20)})

	assert.Equal(t, 20, resp.Total)
	assert.Equal(t, 20, resp.Completed)
	assert.Equal(t, 0, resp.Failed)
	assert.Equal(t, resp.Total, resp.Completed+resp.Failed)
	for _, item := range resp.Items {
		assert.True(t, item.IsOK())
	}
}

func TestProcessBatchBoundsConcurrency(t *testing.T) {
	proc := &stubProcessor{}
	exec := New(proc, 3)

	exec.ProcessBatch(context.Background(), coretypes.BatchRequest{BatchID: "b2", Items: makeItems(30)})

	assert.LessOrEqual(t, int(proc.maxInFlight.Load()), 3)
}

func TestProcessBatchIsolatesPerItemFailure(t *testing.T) {
	var count atomic.Int32
	proc := &stubProcessor{fail: func(coretypes.ProcessingRequest) bool {
		return count.Add(1)%2 == 0
	}}
	exec := New(proc, 5)

	resp := exec.ProcessBatch(context.Background(), coretypes.BatchRequest{BatchID: "b3", Items: makeItems(10)})

	assert.Equal(t, 10, resp.Total)
	assert.Equal(t, resp.Total, resp.Completed+resp.Failed)
	assert.Greater(t, resp.Failed, 0)
	assert.Greater(t, resp.Completed, 0)
}

func TestNewClampsConcurrencyLimit(t *testing.T) {
	exec := New(&stubProcessor{}, 0)
	assert.Equal(t, DefaultConcurrencyLimit, exec.limiter.(fixedLimiter).sem.Capacity())

	exec2 := New(&stubProcessor{}, 1000)
	assert.Equal(t, MaxConcurrencyLimit, exec2.limiter.(fixedLimiter).sem.Capacity())
}

func TestNewAdaptiveBoundsConcurrencyToMaxLimit(t *testing.T) {
	proc := &stubProcessor{}
	exec := NewAdaptive(proc, 2, 4)

	resp := exec.ProcessBatch(context.Background(), coretypes.BatchRequest{BatchID: "b4", Items: makeItems(20)})

	assert.Equal(t, 20, resp.Total)
	assert.Equal(t, 20, resp.Completed)
	assert.LessOrEqual(t, int(proc.maxInFlight.Load()), 4)
}
