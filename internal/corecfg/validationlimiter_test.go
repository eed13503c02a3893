package corecfg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/aicore/internal/resilience"
)

type stubDistributedLimiter struct {
	results []resilience.LimitResult
	err     error
	calls   int
}

func (s *stubDistributedLimiter) CheckAllow(context.Context, []resilience.Descriptor) ([]resilience.LimitResult, error) {
	s.calls++
	return s.results, s.err
}

func TestValidationLimiterUsesDistributedLimiterWhenSet(t *testing.T) {
	l := NewValidationLimiter(60, 1000, 0)
	stub := &stubDistributedLimiter{results: []resilience.LimitResult{
		{Allowed: true}, {Allowed: true},
	}}
	l.SetDistributedLimiter(stub)

	result := l.CheckRateLimit("client-x")

	assert.True(t, result.IsValid)
	assert.Equal(t, 1, stub.calls)
}

func TestValidationLimiterDeniesWhenDistributedMinuteLimitExceeded(t *testing.T) {
	l := NewValidationLimiter(60, 1000, 0)
	stub := &stubDistributedLimiter{results: []resilience.LimitResult{
		{Allowed: false}, {Allowed: true},
	}}
	l.SetDistributedLimiter(stub)

	result := l.CheckRateLimit("client-y")

	assert.False(t, result.IsValid)
	assert.Contains(t, result.Suggestion, "per-minute")
}

func TestValidationLimiterFailsOpenToLocalBucketsOnDistributedError(t *testing.T) {
	l := NewValidationLimiter(2, 1000, 0)
	stub := &stubDistributedLimiter{err: errors.New("redis unavailable")}
	l.SetDistributedLimiter(stub)

	require.True(t, l.CheckRateLimit("client-z").IsValid)
	require.True(t, l.CheckRateLimit("client-z").IsValid)
	assert.False(t, l.CheckRateLimit("client-z").IsValid, "local bucket still caps at perMinute after the backend fails")
}

func TestValidationLimiterEnforcesCooldown(t *testing.T) {
	l := NewValidationLimiter(1000, 100000, 50*time.Millisecond)

	require.True(t, l.CheckRateLimit("client-c").IsValid)
	result := l.CheckRateLimit("client-c")
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Suggestion, "retry after")
}
