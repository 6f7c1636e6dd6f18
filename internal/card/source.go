package card

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/hansang/internal/flight"
	"github.com/hitoshi/hansang/internal/model"
)

// Fetcher はカード一覧を取得する。
type Fetcher func(ctx context.Context) ([]model.Card, error)

// Snapshot はSourceの現在の状態。
type Snapshot struct {
	Data    []model.Card
	Loading bool
	Err     error
	Loaded  bool
}

// Source はキャッシュ優先で再検証するカード一覧の保持者。
// 取得中も直前のデータを返し続け、失敗してもデータは消さない。
type Source struct {
	fetch   Fetcher
	timeout time.Duration
	flight  flight.Group

	mu      sync.RWMutex
	data    []model.Card
	loading bool
	loaded  bool
	err     error
}

// NewSource はSourceを生成する。initialが空でなければ取得前から表示できる。
func NewSource(fetch Fetcher, initial []model.Card, timeout time.Duration) *Source {
	return &Source{
		fetch:   fetch,
		timeout: timeout,
		data:    initial,
		loaded:  len(initial) > 0,
	}
}

// Snapshot は現在の状態を返す。
func (s *Source) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Data: s.data, Loading: s.loading, Err: s.err, Loaded: s.loaded}
}

// Refetch は取得を実行し、完了まで待つ。
// 実行中の取得があればそれに合流する。
func (s *Source) Refetch(ctx context.Context) error {
	_, err := s.flight.DoContext(ctx, "fetch", func() (any, error) {
		return nil, s.run(context.WithoutCancel(ctx))
	})
	return err
}

// Revalidate はバックグラウンドで取得を開始し、すぐに戻る。
func (s *Source) Revalidate(ctx context.Context) {
	detached := context.WithoutCancel(ctx)
	go s.flight.Do("fetch", func() (any, error) {
		return nil, s.run(detached)
	})
}

func (s *Source) run(ctx context.Context) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	cards, err := s.fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	s.err = err
	if err == nil {
		if cards == nil {
			cards = []model.Card{}
		}
		s.data = cards
		s.loaded = true
	}
	return err
}
