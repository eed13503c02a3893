package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	coreerrors "github.com/blueberrycongee/aicore/pkg/errors"
)

// StrategyConfig is frozen at startup from a named preset (spec §3.3).
type StrategyConfig struct {
	MaxAttempts               int
	BaseBackoff               time.Duration
	MaxBackoff                time.Duration
	Timeout                   time.Duration
	FailureThreshold          int
	CooldownMS                time.Duration
	HalfOpenRequiredSuccesses int
}

// Preset names recognized by the orchestrator.
const (
	StrategyAggressive   = "aggressive"
	StrategyBalanced     = "balanced"
	StrategyConservative = "conservative"
)

// strategyPresets holds the exact defaults from spec §4.3's preset table.
var strategyPresets = map[string]StrategyConfig{
	StrategyAggressive: {
		MaxAttempts:               2,
		BaseBackoff:               100 * time.Millisecond,
		MaxBackoff:                1000 * time.Millisecond,
		Timeout:                   5000 * time.Millisecond,
		FailureThreshold:          3,
		CooldownMS:                5000 * time.Millisecond,
		HalfOpenRequiredSuccesses: 1,
	},
	StrategyBalanced: {
		MaxAttempts:               3,
		BaseBackoff:               250 * time.Millisecond,
		MaxBackoff:                4000 * time.Millisecond,
		Timeout:                   15000 * time.Millisecond,
		FailureThreshold:          5,
		CooldownMS:                15000 * time.Millisecond,
		HalfOpenRequiredSuccesses: 2,
	},
	StrategyConservative: {
		MaxAttempts:               5,
		BaseBackoff:               500 * time.Millisecond,
		MaxBackoff:                15000 * time.Millisecond,
		Timeout:                   45000 * time.Millisecond,
		FailureThreshold:          8,
		CooldownMS:                60000 * time.Millisecond,
		HalfOpenRequiredSuccesses: 3,
	},
}

// StrategyPreset returns the frozen config for a named strategy.
func StrategyPreset(name string) (StrategyConfig, bool) {
	cfg, ok := strategyPresets[name]
	return cfg, ok
}

// Metrics receives per-operation resilience events. A nil Metrics is valid;
// callers that don't care about metrics pass nil to NewOrchestrator.
type Metrics interface {
	RecordAttempt(operationID string)
	RecordSuccess(operationID string, duration time.Duration)
	RecordFailure(operationID, kind string)
	RecordFallback(operationID string)
	RecordStateTransition(operationID string, from, to CircuitState)
}

// ErrOperationNotRegistered is returned by Execute when operationID was
// never bound via RegisterOperation.
var ErrOperationNotRegistered = errors.New("resilience: operation not registered")

type binding struct {
	cb        *CircuitBreaker
	cfg       StrategyConfig
	probeBusy atomic.Bool
}

// Orchestrator implements the ResilienceOrchestrator component (spec §4.3):
// a per-operation circuit breaker, retry with full-jitter backoff, timeout
// enforcement and typed fallback invocation.
type Orchestrator struct {
	mu       sync.RWMutex
	bindings map[string]*binding
	metrics  Metrics
}

// NewOrchestrator constructs an empty orchestrator. metrics may be nil.
func NewOrchestrator(metrics Metrics) *Orchestrator {
	return &Orchestrator{
		bindings: make(map[string]*binding),
		metrics:  metrics,
	}
}

// RegisterOperation binds operationID to a named strategy preset.
// Idempotent: re-registering with the same strategy is a no-op; with a
// different strategy it rebuilds the binding (and its circuit breaker,
// which loses accumulated state — intended only for startup wiring, never
// at request time).
func (o *Orchestrator) RegisterOperation(operationID, strategy string) error {
	cfg, ok := StrategyPreset(strategy)
	if !ok {
		return fmt.Errorf("resilience: unknown strategy %q", strategy)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if existing, ok := o.bindings[operationID]; ok && existing.cfg == cfg {
		return nil
	}

	cb := NewCircuitBreaker(operationID, CircuitBreakerConfig{
		FailureThreshold:    cfg.FailureThreshold,
		SuccessThreshold:    cfg.HalfOpenRequiredSuccesses,
		Timeout:             cfg.CooldownMS,
		HalfOpenMaxRequests: cfg.HalfOpenRequiredSuccesses,
	})
	if o.metrics != nil {
		m := o.metrics
		id := operationID
		cb.OnStateChange(func(_ string, from, to CircuitState) {
			m.RecordStateTransition(id, from, to)
		})
	}

	o.bindings[operationID] = &binding{cb: cb, cfg: cfg}
	return nil
}

// OverrideMaxAttempts rewrites MaxAttempts on every currently registered
// binding's strategy config (the RESILIENCE_MAX_ATTEMPTS tier-1 override,
// spec §4.1). It only touches the retry count; circuit breaker thresholds
// and backoff/timeout values stay whatever the operation's named strategy
// preset set them to. Call it once at startup, after every operation has
// been registered.
func (o *Orchestrator) OverrideMaxAttempts(attempts int) {
	if attempts <= 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, b := range o.bindings {
		b.cfg.MaxAttempts = attempts
	}
}

func (o *Orchestrator) getBinding(operationID string) (*binding, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	b, ok := o.bindings[operationID]
	return b, ok
}

// OpenBreakers lists the operation ids whose circuit breaker is currently
// Open or HalfOpen, for the health endpoint (spec §6.1).
func (o *Orchestrator) OpenBreakers() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var open []string
	for operationID, b := range o.bindings {
		if state := b.cb.State(); state == StateOpen || state == StateHalfOpen {
			open = append(open, operationID)
		}
	}
	return open
}

// classification of a work error, used to decide retry vs. breaker impact.
type classification int

const (
	classTransient classification = iota
	classPermanent
	classCancelled
)

func classify(ctx context.Context, err error) classification {
	if err == nil {
		return classPermanent // unreachable in practice; guarded by caller
	}
	if errors.Is(err, context.Canceled) && ctx.Err() == context.Canceled {
		return classCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return classTransient
	}
	if coreerrors.IsTransient(err) {
		return classTransient
	}
	return classPermanent
}

func errorKind(err error) string {
	var le *coreerrors.LLMError
	if errors.As(err, &le) {
		return le.Type
	}
	return "unknown"
}

// fullJitterBackoff returns a uniformly random duration in [0, backoff]
// where backoff = min(maxBackoff, baseBackoff * 2^(attempt-1)).
func fullJitterBackoff(baseBackoff, maxBackoff time.Duration, attempt int) time.Duration {
	backoff := baseBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > maxBackoff || backoff <= 0 {
		backoff = maxBackoff
	}
	if backoff <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(backoff) + 1))
}

// Execute runs work under operationID's bound strategy: circuit breaker
// gating, bounded retries with full-jitter backoff, per-attempt timeout,
// and a typed fallback on exhaustion or an open breaker. degraded is true
// whenever fallback was invoked rather than work succeeding directly.
//
// Execute is a free function, not a method, because Go methods cannot
// introduce their own type parameters; T is inferred from work.
func Execute[T any](ctx context.Context, o *Orchestrator, operationID string, work func(context.Context) (T, error), fallback func(context.Context) (T, error)) (result T, degraded bool, err error) {
	var zero T

	b, ok := o.getBinding(operationID)
	if !ok {
		return zero, false, ErrOperationNotRegistered
	}

	state := b.cb.State()
	if state != StateClosed {
		if !b.probeBusy.CompareAndSwap(false, true) {
			return runFallback(ctx, o, operationID, fallback, zero)
		}
		defer b.probeBusy.Store(false)
	}

	if !b.cb.Allow() {
		return runFallback(ctx, o, operationID, fallback, zero)
	}

	var lastErr error
	for attempt := 1; attempt <= b.cfg.MaxAttempts; attempt++ {
		if o.metrics != nil {
			o.metrics.RecordAttempt(operationID)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
		start := time.Now()
		value, werr := work(attemptCtx)
		duration := time.Since(start)
		cancel()

		if werr == nil {
			b.cb.RecordSuccess()
			if o.metrics != nil {
				o.metrics.RecordSuccess(operationID, duration)
			}
			return value, false, nil
		}

		lastErr = werr
		kind := errorKind(werr)
		if o.metrics != nil {
			o.metrics.RecordFailure(operationID, kind)
		}

		switch classify(ctx, werr) {
		case classCancelled:
			// Accounted for above via RecordFailure's metrics call, but the
			// breaker itself is not touched, and no fallback is produced.
			return zero, false, werr

		case classTransient:
			if attempt == b.cfg.MaxAttempts {
				b.cb.RecordFailure()
				break
			}
			sleep := fullJitterBackoff(b.cfg.BaseBackoff, b.cfg.MaxBackoff, attempt)
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return zero, false, ctx.Err()
			}
			continue

		case classPermanent:
			b.cb.RecordFailure()
		}
		break
	}

	return runFallback(ctx, o, operationID, fallback, zero, lastErr)
}

func runFallback[T any](ctx context.Context, o *Orchestrator, operationID string, fallback func(context.Context) (T, error), zero T, causes ...error) (T, bool, error) {
	if fallback == nil {
		if len(causes) > 0 {
			return zero, false, causes[0]
		}
		return zero, false, ErrCircuitOpen
	}
	if o.metrics != nil {
		o.metrics.RecordFallback(operationID)
	}
	value, err := fallback(ctx)
	return value, true, err
}
