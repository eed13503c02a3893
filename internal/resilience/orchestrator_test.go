package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/blueberrycongee/aicore/pkg/errors"
)

func TestOrchestratorOpensAfterConsecutiveTransientFailures(t *testing.T) {
	o := NewOrchestrator(nil)
	require.NoError(t, o.RegisterOperation("summarize", StrategyBalanced))

	// balanced: max_attempts=3, failure_threshold=5 consecutive *circuit*
	// failures (each Execute call that exhausts its own retries counts once).
	failing := func(ctx context.Context) (string, error) {
		return "", coreerrors.NewTransientAIError("acme", "model-x", "upstream hiccup")
	}
	fallback := func(ctx context.Context) (string, error) {
		return "Service temporarily unavailable; please retry shortly.", nil
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, degraded, err := Execute[string](ctx, o, "summarize", failing, fallback)
		require.NoError(t, err)
		assert.True(t, degraded)
	}

	b, ok := o.getBinding("summarize")
	require.True(t, ok)
	assert.Equal(t, StateOpen, b.cb.State())

	var workCalled bool
	guarded := func(ctx context.Context) (string, error) {
		workCalled = true
		return "", coreerrors.NewTransientAIError("acme", "model-x", "still down")
	}
	value, degraded, err := Execute[string](ctx, o, "summarize", guarded, fallback)
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.False(t, workCalled, "work must not run while the breaker is open")
	assert.Equal(t, "Service temporarily unavailable; please retry shortly.", value)
}

func TestOrchestratorHalfOpenSingleProbeRecovers(t *testing.T) {
	o := NewOrchestrator(nil)
	require.NoError(t, o.RegisterOperation("sentiment", StrategyAggressive))
	// aggressive: failure_threshold=3, cooldown=5s, halfopen_required_successes=1.

	b, ok := o.getBinding("sentiment")
	require.True(t, ok)

	ctx := context.Background()
	failing := func(ctx context.Context) (int, error) {
		return 0, coreerrors.NewTransientAIError("acme", "m", "boom")
	}
	for i := 0; i < 3; i++ {
		_, _, _ = Execute[int](ctx, o, "sentiment", failing, nil)
	}
	assert.Equal(t, StateOpen, b.cb.State())

	// Force the cooldown to have elapsed so the next call probes half-open.
	b.cb.mu.Lock()
	b.cb.lastFailureTime = time.Now().Add(-b.cfg.CooldownMS - time.Second)
	b.cb.mu.Unlock()

	succeeding := func(ctx context.Context) (int, error) { return 7, nil }
	value, degraded, err := Execute[int](ctx, o, "sentiment", succeeding, nil)
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Equal(t, 7, value)
	assert.Equal(t, StateClosed, b.cb.State())
}

func TestOrchestratorRetriesTransientBeforeSucceeding(t *testing.T) {
	o := NewOrchestrator(nil)
	require.NoError(t, o.RegisterOperation("qa", StrategyBalanced))

	attempts := 0
	work := func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", coreerrors.NewTransientAIError("acme", "m", "retry me")
		}
		return "final answer", nil
	}

	value, degraded, err := Execute[string](context.Background(), o, "qa", work, nil)
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Equal(t, "final answer", value)
	assert.Equal(t, 3, attempts)
}

func TestOrchestratorPermanentFailureSkipsRetries(t *testing.T) {
	o := NewOrchestrator(nil)
	require.NoError(t, o.RegisterOperation("questions", StrategyBalanced))

	attempts := 0
	work := func(ctx context.Context) (string, error) {
		attempts++
		return "", coreerrors.NewValidationError("bad input")
	}
	fallback := func(ctx context.Context) (string, error) { return "fallback", nil }

	value, degraded, err := Execute[string](context.Background(), o, "questions", work, fallback)
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Equal(t, "fallback", value)
	assert.Equal(t, 1, attempts, "a permanent failure must not be retried")
}

func TestOrchestratorCancellationBypassesBreakerAndFallback(t *testing.T) {
	o := NewOrchestrator(nil)
	require.NoError(t, o.RegisterOperation("key_points", StrategyBalanced))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fallbackCalled := false
	fallback := func(ctx context.Context) (string, error) {
		fallbackCalled = true
		return "fallback", nil
	}
	work := func(ctx context.Context) (string, error) {
		return "", context.Canceled
	}

	_, degraded, err := Execute[string](ctx, o, "key_points", work, fallback)
	assert.Error(t, err)
	assert.False(t, degraded)
	assert.False(t, fallbackCalled)

	b, ok := o.getBinding("key_points")
	require.True(t, ok)
	assert.Equal(t, StateClosed, b.cb.State(), "cancellation must not count toward opening the breaker")
}

func TestOrchestratorUnregisteredOperation(t *testing.T) {
	o := NewOrchestrator(nil)
	_, _, err := Execute[string](context.Background(), o, "missing", func(ctx context.Context) (string, error) {
		return "", nil
	}, nil)
	assert.ErrorIs(t, err, ErrOperationNotRegistered)
}

func TestOrchestratorOverrideMaxAttemptsAppliesToEveryBinding(t *testing.T) {
	o := NewOrchestrator(nil)
	require.NoError(t, o.RegisterOperation("summarize", StrategyBalanced))
	require.NoError(t, o.RegisterOperation("sentiment", StrategyAggressive))

	o.OverrideMaxAttempts(7)

	for _, id := range []string{"summarize", "sentiment"} {
		b, ok := o.getBinding(id)
		require.True(t, ok)
		assert.Equal(t, 7, b.cfg.MaxAttempts)
	}
}

func TestOrchestratorOverrideMaxAttemptsIgnoresNonPositive(t *testing.T) {
	o := NewOrchestrator(nil)
	require.NoError(t, o.RegisterOperation("summarize", StrategyBalanced))

	o.OverrideMaxAttempts(0)

	b, ok := o.getBinding("summarize")
	require.True(t, ok)
	assert.Equal(t, strategyPresets[StrategyBalanced].MaxAttempts, b.cfg.MaxAttempts)
}
