package cachecore

import (
	"context"
	"errors"
	"sync"
	"time"

	pkgcache "github.com/blueberrycongee/aicore/pkg/cache"
)

// remoteBreakerCooldown is the cool-down for the facade's own circuit
// breaker protecting the remote tier, per spec §4.2 ("internal to the
// facade (cool-down 30 s)").
const remoteBreakerCooldown = 30 * time.Second

// remoteGuard wraps a remote cache backend with a lightweight breaker so
// that once the remote tier starts failing, subsequent calls short-circuit
// to failure without I/O until the cool-down elapses.
type remoteGuard struct {
	backend pkgcache.Cache

	mu       sync.Mutex
	open     bool
	openedAt time.Time
}

func newRemoteGuard(backend pkgcache.Cache) *remoteGuard {
	return &remoteGuard{backend: backend}
}

var errRemoteCircuitOpen = errors.New("cachecore: remote tier circuit open")

func (g *remoteGuard) allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return true
	}
	if time.Since(g.openedAt) >= remoteBreakerCooldown {
		g.open = false
		return true
	}
	return false
}

func (g *remoteGuard) recordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = true
	g.openedAt = time.Now()
}

func (g *remoteGuard) recordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = false
}

func (g *remoteGuard) get(ctx context.Context, key string) ([]byte, error) {
	if !g.allow() {
		return nil, errRemoteCircuitOpen
	}
	v, err := g.backend.Get(ctx, key)
	if err != nil {
		g.recordFailure()
		return nil, err
	}
	g.recordSuccess()
	return v, nil
}

func (g *remoteGuard) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !g.allow() {
		return errRemoteCircuitOpen
	}
	if err := g.backend.Set(ctx, key, value, ttl); err != nil {
		g.recordFailure()
		return err
	}
	g.recordSuccess()
	return nil
}

func (g *remoteGuard) deleteGlob(ctx context.Context, keys []string) {
	if !g.allow() {
		return
	}
	for _, k := range keys {
		if err := g.backend.Delete(ctx, k); err != nil {
			g.recordFailure()
			return
		}
	}
	g.recordSuccess()
}

func (g *remoteGuard) ping(ctx context.Context) error {
	if !g.allow() {
		return errRemoteCircuitOpen
	}
	if err := g.backend.Ping(ctx); err != nil {
		g.recordFailure()
		return err
	}
	g.recordSuccess()
	return nil
}

func (g *remoteGuard) isOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}
