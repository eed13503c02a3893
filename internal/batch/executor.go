// Package batch implements the BatchExecutor component (spec §4.5): a
// bounded-concurrency fan-out over a list of ProcessingRequests that share
// one batch id, with per-item isolation and index-ordered results.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/blueberrycongee/aicore/internal/coretypes"
	"github.com/blueberrycongee/aicore/internal/resilience"
	coreerrors "github.com/blueberrycongee/aicore/pkg/errors"
)

const (
	DefaultConcurrencyLimit = 10
	MaxConcurrencyLimit     = 50
)

// Processor is the single-request path the executor fans out over. It is
// satisfied by *registry.TextProcessor.
type Processor interface {
	Process(ctx context.Context, req coretypes.ProcessingRequest) (coretypes.ProcessingResponse, error)
}

// concurrencyLimiter is the fan-out throttle ProcessBatch acquires one
// permit from per item. Both the fixed semaphore and the adaptive limiter
// satisfy it; Release always receives the item's observed latency, which
// the fixed limiter ignores and the adaptive one feeds back into its limit.
type concurrencyLimiter interface {
	Acquire(ctx context.Context) error
	Release(rtt time.Duration)
}

type fixedLimiter struct{ sem *resilience.Semaphore }

func (f fixedLimiter) Acquire(ctx context.Context) error { return f.sem.Acquire(ctx) }
func (f fixedLimiter) Release(time.Duration)             { f.sem.Release() }

type adaptiveLimiter struct{ al *resilience.AdaptiveLimiter }

func (a adaptiveLimiter) Acquire(ctx context.Context) error { return a.al.Acquire(ctx) }
func (a adaptiveLimiter) Release(rtt time.Duration)         { a.al.Release(rtt) }

// Executor runs BatchRequests through a Processor with bounded concurrency.
type Executor struct {
	processor Processor
	limiter   concurrencyLimiter
}

// New constructs an Executor bounded by a fixed-size semaphore.
// concurrencyLimit is capped at MaxConcurrencyLimit; zero or a negative
// value selects DefaultConcurrencyLimit.
func New(processor Processor, concurrencyLimit int) *Executor {
	if concurrencyLimit <= 0 {
		concurrencyLimit = DefaultConcurrencyLimit
	}
	if concurrencyLimit > MaxConcurrencyLimit {
		concurrencyLimit = MaxConcurrencyLimit
	}
	return &Executor{
		processor: processor,
		limiter:   fixedLimiter{sem: resilience.NewSemaphore(concurrencyLimit)},
	}
}

// NewAdaptive constructs an Executor whose concurrency bound is sized by a
// resilience.AdaptiveLimiter instead of a fixed semaphore: the limit grows
// and shrinks with the batch's own observed per-item latency, between
// minLimit and maxLimit. Useful when a batch's items hit a provider whose
// healthy concurrency varies with load, rather than a known-fixed pool.
func NewAdaptive(processor Processor, minLimit, maxLimit int) *Executor {
	return &Executor{
		processor: processor,
		limiter:   adaptiveLimiter{al: resilience.NewAdaptiveLimiter(float64(minLimit), float64(maxLimit))},
	}
}

// ProcessBatch fans req.Items out across the executor's concurrency
// limiter. Each item is an independent invocation of the single-request
// path; one item's failure never cancels the others (spec §4.5). If ctx is
// cancelled, in-flight items still run to their own per-attempt timeouts
// but no new item is started.
func (e *Executor) ProcessBatch(ctx context.Context, req coretypes.BatchRequest) coretypes.BatchResponse {
	total := len(req.Items)
	results := make([]coretypes.PerItemResult, total)

	var wg sync.WaitGroup
	// Started items run on a context detached from ctx's cancellation, so
	// cancelling the batch never aborts an item that is already in flight.
	itemCtx := context.WithoutCancel(ctx)

	for i, item := range req.Items {
		item.TraceID = req.BatchID

		err := ctx.Err()
		if err == nil {
			err = e.limiter.Acquire(ctx)
		}
		if err != nil {
			// Context already cancelled before this item started: it never
			// runs, and is recorded as failed rather than left zero-valued.
			results[i] = errItemResult(err)
			continue
		}

		wg.Add(1)
		go func(idx int, item coretypes.ProcessingRequest) {
			defer wg.Done()
			start := time.Now()
			results[idx] = e.runItem(itemCtx, item)
			e.limiter.Release(time.Since(start))
		}(i, item)
	}

	wg.Wait()

	completed, failed := 0, 0
	for _, r := range results {
		if r.IsOK() {
			completed++
		} else {
			failed++
		}
	}

	return coretypes.BatchResponse{
		BatchID:   req.BatchID,
		Total:     total,
		Completed: completed,
		Failed:    failed,
		Items:     results,
	}
}

// runItem recovers from a panic in the single-request path so that one
// item's crash never takes down the rest of the batch.
func (e *Executor) runItem(ctx context.Context, item coretypes.ProcessingRequest) (result coretypes.PerItemResult) {
	defer func() {
		if r := recover(); r != nil {
			result = errItemResult(coreerrors.NewInternalError("", "", "item processing panicked"))
		}
	}()

	resp, err := e.processor.Process(ctx, item)
	if err != nil {
		return errItemResult(err)
	}
	return coretypes.PerItemResult{OK: &resp}
}

func errItemResult(err error) coretypes.PerItemResult {
	var le *coreerrors.LLMError
	if errors.As(err, &le) {
		return coretypes.PerItemResult{ErrorKind: le.Type, ErrMessage: le.Message}
	}
	return coretypes.PerItemResult{ErrorKind: coreerrors.TypeInternalError, ErrMessage: err.Error()}
}
