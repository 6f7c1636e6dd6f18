package flight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestDo_CollapsesConcurrentCalls は同時呼び出しが1回の実行にまとまることを検証する。
func TestDo_CollapsesConcurrentCalls(t *testing.T) {
	var g Group
	var calls atomic.Int32
	release := make(chan struct{})

	const n = 10
	var wg sync.WaitGroup
	results := make([]any, n)
	started := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started <- struct{}{}
			v, err := g.Do("k", func() (any, error) {
				calls.Add(1)
				<-release
				return "value", nil
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results[i] = v
		}(i)
	}
	for i := 0; i < n; i++ {
		<-started
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	for i, v := range results {
		if v != "value" {
			t.Errorf("results[%d] = %v, want value", i, v)
		}
	}
}

// TestDo_DoesNotLatch はDoが完了後に再実行されることを検証する。
func TestDo_DoesNotLatch(t *testing.T) {
	var g Group
	var calls int
	for i := 0; i < 3; i++ {
		g.Do("k", func() (any, error) {
			calls++
			return nil, nil
		})
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

// TestOnce_LatchesSuccess は成功結果がラッチされることを検証する。
func TestOnce_LatchesSuccess(t *testing.T) {
	var g Group
	var calls int
	fn := func() (any, error) {
		calls++
		return calls, nil
	}

	first, _ := g.Once("k", fn)
	second, _ := g.Once("k", fn)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if first != 1 || second != 1 {
		t.Errorf("results = %v, %v, want 1, 1", first, second)
	}
	if !g.Latched("k") {
		t.Error("expected key to be latched")
	}
}

// TestOnce_LatchesFailure は失敗結果もラッチされることを検証する。
func TestOnce_LatchesFailure(t *testing.T) {
	var g Group
	boom := errors.New("boom")
	var calls int

	for i := 0; i < 2; i++ {
		_, err := g.Once("k", func() (any, error) {
			calls++
			return nil, boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("err = %v, want boom", err)
		}
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

// TestForget_AllowsRetry はForget後に再実行されることを検証する。
func TestForget_AllowsRetry(t *testing.T) {
	var g Group
	var calls int
	fn := func() (any, error) {
		calls++
		return nil, errors.New("fail")
	}

	g.Once("k", fn)
	g.Forget("k")
	g.Once("k", fn)

	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

// TestOnce_KeysAreIndependent はキーごとに独立してラッチされることを検証する。
func TestOnce_KeysAreIndependent(t *testing.T) {
	var g Group
	a, _ := g.Once("a", func() (any, error) { return "A", nil })
	b, _ := g.Once("b", func() (any, error) { return "B", nil })
	if a != "A" || b != "B" {
		t.Errorf("got %v, %v", a, b)
	}
}

// TestDoContext_ReturnsOnCancel は待機中のキャンセルで即座に戻ることを検証する。
func TestDoContext_ReturnsOnCancel(t *testing.T) {
	var g Group
	release := make(chan struct{})
	defer close(release)

	go g.Do("k", func() (any, error) {
		<-release
		return nil, nil
	})
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.DoContext(ctx, "k", func() (any, error) { return nil, nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
