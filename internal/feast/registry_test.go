package feast

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/hansang/internal/session"
)

func newTestRegistry(idle time.Duration) (*Registry, *int) {
	created := 0
	g := NewRegistry(func(ctx context.Context, sc *session.Context) *Resolver {
		created++
		return NewResolver(ctx, &mockHostBackend{}, sc.Device, testLogger(), nil)
	}, idle, testLogger())
	return g, &created
}

func TestRegistry_ReusesResolverPerDevice(t *testing.T) {
	g, created := newTestRegistry(time.Minute)
	ctx := context.Background()

	a := g.For(ctx, session.NewMemoryContext("dev-1", "tab-1"))
	b := g.For(ctx, session.NewMemoryContext("dev-1", "tab-2"))
	c := g.For(ctx, session.NewMemoryContext("dev-2", "tab-3"))

	if a != b {
		t.Error("同じデバイスで別のResolverが返された")
	}
	if a == c {
		t.Error("別のデバイスで同じResolverが返された")
	}
	if *created != 2 {
		t.Errorf("生成回数 = %d, want 2", *created)
	}
}

func TestRegistry_SweepEvictsIdle(t *testing.T) {
	g, _ := newTestRegistry(time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	ctx := context.Background()

	r := g.For(ctx, session.NewMemoryContext("dev-1", "tab-1"))
	g.For(ctx, session.NewMemoryContext("dev-2", "tab-2"))

	now = now.Add(2 * time.Minute)
	g.For(ctx, session.NewMemoryContext("dev-2", "tab-2"))

	if n := g.Sweep(); n != 1 {
		t.Errorf("破棄件数 = %d, want 1", n)
	}
	if g.Len() != 1 {
		t.Errorf("Len = %d, want 1", g.Len())
	}
	if r.lifetime.Err() == nil {
		t.Error("破棄されたResolverが閉じられていない")
	}
}

func TestRegistry_Evict(t *testing.T) {
	g, created := newTestRegistry(time.Minute)
	ctx := context.Background()
	sc := session.NewMemoryContext("dev-1", "tab-1")

	r := g.For(ctx, sc)
	g.Evict("dev-1")
	if r.lifetime.Err() == nil {
		t.Error("Evict後にResolverが閉じられていない")
	}

	g.For(ctx, sc)
	if *created != 2 {
		t.Errorf("生成回数 = %d, want 2", *created)
	}
}
