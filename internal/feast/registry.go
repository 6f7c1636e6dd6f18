package feast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/hansang/internal/session"
)

// Factory はセッションコンテキストからResolverを生成する。
type Factory func(ctx context.Context, sc *session.Context) *Resolver

type entry struct {
	resolver *Resolver
	lastUsed time.Time
}

// Registry はデバイスIDごとにResolverを保持する。
// 一定時間使われなかったResolverはSweepで閉じて破棄する。
type Registry struct {
	factory Factory
	idle    time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry はRegistryを生成する。
func NewRegistry(factory Factory, idle time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		factory: factory,
		idle:    idle,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// For はデバイスのResolverを返す。なければ生成する。
func (g *Registry) For(ctx context.Context, sc *session.Context) *Resolver {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.entries[sc.DeviceID]; ok {
		e.lastUsed = g.now()
		return e.resolver
	}

	r := g.factory(ctx, sc)
	g.entries[sc.DeviceID] = &entry{resolver: r, lastUsed: g.now()}
	return r
}

// Evict はデバイスのResolverを閉じて破棄する。ログアウト時に使う。
func (g *Registry) Evict(deviceID string) {
	g.mu.Lock()
	e, ok := g.entries[deviceID]
	delete(g.entries, deviceID)
	g.mu.Unlock()

	if ok {
		e.resolver.Close()
	}
}

// Sweep はidle時間を超えて使われていないResolverを閉じ、破棄した件数を返す。
func (g *Registry) Sweep() int {
	cutoff := g.now().Add(-g.idle)

	g.mu.Lock()
	var stale []*Resolver
	for id, e := range g.entries {
		if e.lastUsed.Before(cutoff) {
			stale = append(stale, e.resolver)
			delete(g.entries, id)
		}
	}
	g.mu.Unlock()

	for _, r := range stale {
		r.Close()
	}
	return len(stale)
}

// Len は保持しているResolverの数を返す。
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// Run はctxが終了するまで定期的にSweepを実行する。終了時にすべてのResolverを閉じる。
func (g *Registry) Run(ctx context.Context) {
	interval := g.idle / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.Close()
			return
		case <-ticker.C:
			if n := g.Sweep(); n > 0 {
				g.logger.Debug("アイドル状態のResolverを破棄しました", slog.Int("count", n))
			}
		}
	}
}

// Close はすべてのResolverを閉じて破棄する。
func (g *Registry) Close() {
	g.mu.Lock()
	entries := g.entries
	g.entries = make(map[string]*entry)
	g.mu.Unlock()

	for _, e := range entries {
		e.resolver.Close()
	}
}
