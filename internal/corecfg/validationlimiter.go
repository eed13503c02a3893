package corecfg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/blueberrycongee/aicore/internal/resilience"
)

// ValidationResult is what the rate-limited validation endpoint returns;
// a rejected call still returns IsValid=false rather than an error, per
// spec §4.1.
type ValidationResult struct {
	IsValid    bool
	Suggestion string
}

// clientLimiter is one client id's per-minute/per-hour token buckets plus
// its last-call time for the cooldown, and a trailing-minute timestamp log
// purely for the RequestsLastMinute accounting query (spec §8.1) — the
// buckets themselves decide admission, the log only answers "how many".
type clientLimiter struct {
	mu       sync.Mutex
	minute   *rate.Limiter
	hour     *rate.Limiter
	lastCall time.Time
	recent   []time.Time
}

// ValidationLimiter rate-limits calls to configuration-validation endpoints
// per client id: a per-minute cap and a per-hour cap enforced by
// golang.org/x/time/rate token buckets, plus a per-request cooldown (spec
// §4.1). When a distributed limiter is set, the minute/hour decision is
// made against that shared backend instead, so the cap holds across every
// instance of the process rather than per-instance; a distributed backend
// error fails open to the local buckets rather than blocking validation
// calls on a Redis outage.
type ValidationLimiter struct {
	mu          sync.Mutex
	clients     map[string]*clientLimiter
	perMinute   int
	perHour     int
	cooldown    time.Duration
	distributed resilience.DistributedLimiter
	now         func() time.Time
}

// DefaultValidationLimiter returns a limiter with spec's defaults: 60/min,
// 1000/hour, 1s cooldown.
func DefaultValidationLimiter() *ValidationLimiter {
	return NewValidationLimiter(60, 1000, time.Second)
}

func NewValidationLimiter(perMinute, perHour int, cooldown time.Duration) *ValidationLimiter {
	return &ValidationLimiter{
		clients:   make(map[string]*clientLimiter),
		perMinute: perMinute,
		perHour:   perHour,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// SetDistributedLimiter wires a cross-instance backend (e.g.
// resilience.RedisLimiter) in place of the local per-instance buckets.
func (l *ValidationLimiter) SetDistributedLimiter(d resilience.DistributedLimiter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.distributed = d
}

func (l *ValidationLimiter) clientFor(clientID string) *clientLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.clients[clientID]
	if !ok {
		c = &clientLimiter{
			minute: rate.NewLimiter(rate.Limit(float64(l.perMinute)/60.0), l.perMinute),
			hour:   rate.NewLimiter(rate.Limit(float64(l.perHour)/3600.0), l.perHour),
		}
		l.clients[clientID] = c
	}
	return c
}

// CheckRateLimit records one call attempt for clientID and reports whether
// it is accepted under the minute/hour caps and the cooldown.
func (l *ValidationLimiter) CheckRateLimit(clientID string) ValidationResult {
	c := l.clientFor(clientID)
	now := l.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastCall.IsZero() && now.Sub(c.lastCall) < l.cooldown {
		wait := l.cooldown - now.Sub(c.lastCall)
		return ValidationResult{IsValid: false, Suggestion: fmt.Sprintf("retry after %s", wait.Round(time.Millisecond))}
	}

	allowed, suggestion := l.admit(clientID, c)
	if !allowed {
		return ValidationResult{IsValid: false, Suggestion: suggestion}
	}

	c.recent = pruneBefore(c.recent, now.Add(-time.Minute))
	c.recent = append(c.recent, now)
	c.lastCall = now
	return ValidationResult{IsValid: true}
}

// admit decides against the distributed backend when one is set, falling
// back to the local token buckets on a backend error or when none is set.
func (l *ValidationLimiter) admit(clientID string, c *clientLimiter) (bool, string) {
	l.mu.Lock()
	distributed := l.distributed
	l.mu.Unlock()

	if distributed != nil {
		descriptors := []resilience.Descriptor{
			{Key: clientID, Value: "config_validation_minute", Limit: int64(l.perMinute), Type: resilience.LimitTypeRequests, Window: time.Minute},
			{Key: clientID, Value: "config_validation_hour", Limit: int64(l.perHour), Type: resilience.LimitTypeRequests, Window: time.Hour},
		}
		results, err := distributed.CheckAllow(context.Background(), descriptors)
		if err == nil && len(results) == 2 {
			if !results[0].Allowed {
				return false, "per-minute validation limit reached; retry in under a minute"
			}
			if !results[1].Allowed {
				return false, "per-hour validation limit reached; retry later"
			}
			return true, ""
		}
		// Distributed backend unreachable: fail open to the local buckets
		// rather than blocking every validation call on a Redis outage.
	}

	if !c.minute.Allow() {
		return false, "per-minute validation limit reached; retry in under a minute"
	}
	if !c.hour.Allow() {
		return false, "per-hour validation limit reached; retry later"
	}
	return true, ""
}

// RequestsLastMinute reports how many accepted calls fall in the trailing
// 60s window for clientID — the rate-limit accounting invariant (spec §8.1).
func (l *ValidationLimiter) RequestsLastMinute(clientID string) int {
	c := l.clientFor(clientID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recent = pruneBefore(c.recent, l.now().Add(-time.Minute))
	return len(c.recent)
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
