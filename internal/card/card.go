// Package card はホストとゲストのカード一覧を1つの表示形にまとめる。
//
// 閲覧モードに応じてホスト側（自分の생일한상）かゲスト側（招待された생일한상）の
// ソースを選び、どちらも model.Card に正規化して返す。
package card

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/hansang/internal/metrics"
	"github.com/hitoshi/hansang/internal/mode"
	"github.com/hitoshi/hansang/internal/model"
	"github.com/hitoshi/hansang/internal/security"
	"github.com/hitoshi/hansang/internal/session"
)

// fetchTimeout はバックグラウンド再検証1回あたりの上限。
const fetchTimeout = 15 * time.Second

// GuestBackend はゲスト側のカード取得と投稿。*feastapi.GuestAPI が実装する。
type GuestBackend interface {
	Feast(ctx context.Context) (model.Feast, error)
	CreateCard(ctx context.Context, card model.NewCard) error
}

// HostCardsFunc はホストの今年のカード一覧を取得する。
type HostCardsFunc func(ctx context.Context, sc *session.Context) ([]model.Card, error)

// GuestAPIFunc はセッションコンテキストのゲストトークンを使うGuestBackendを返す。
type GuestAPIFunc func(sc *session.Context) GuestBackend

// View は表示用にまとめたカード一覧。
type View struct {
	Data      []model.Card `json:"data"`
	IsLoading bool         `json:"isLoading"`
	Error     string       `json:"error,omitempty"`
	Err       error        `json:"-"`
}

func viewOf(snap Snapshot) View {
	v := View{
		Data:      snap.Data,
		IsLoading: snap.Loading && len(snap.Data) == 0,
		Err:       snap.Err,
	}
	if v.Data == nil {
		v.Data = []model.Card{}
	}
	if snap.Err != nil {
		v.Error = snap.Err.Error()
	}
	return v
}

type sourceEntry struct {
	source   *Source
	lastUsed time.Time
}

// Aggregator はモードごとのSourceを保持し、表示用のViewを返す。
type Aggregator struct {
	hostCards HostCardsFunc
	guestAPI  GuestAPIFunc
	sanitizer security.TextSanitizerService
	images    security.ImageChecker
	logger    *slog.Logger
	metrics   metrics.MetricsCollector
	now       func() time.Time

	mu      sync.Mutex
	sources map[string]*sourceEntry
}

// NewAggregator はAggregatorを生成する。
func NewAggregator(hostCards HostCardsFunc, guestAPI GuestAPIFunc, sanitizer security.TextSanitizerService, images security.ImageChecker, logger *slog.Logger, m metrics.MetricsCollector) *Aggregator {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Aggregator{
		hostCards: hostCards,
		guestAPI:  guestAPI,
		sanitizer: sanitizer,
		images:    images,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
		sources:   make(map[string]*sourceEntry),
	}
}

// source はモードに対応するSourceを返す。なければ生成する。
// ホストはデバイス単位、ゲストはタブと招待先ホスト単位で保持する。
func (a *Aggregator) source(sc *session.Context, st mode.State) *Source {
	var key string
	var fetch Fetcher
	if st.IsGuest() {
		key = "guest:" + sc.TabID + ":" + st.SharedHostID
		api := a.guestAPI(sc)
		fetch = func(ctx context.Context) ([]model.Card, error) {
			f, err := api.Feast(ctx)
			if err != nil {
				return nil, err
			}
			return f.Cards, nil
		}
	} else {
		key = "host:" + sc.DeviceID
		fetch = func(ctx context.Context) ([]model.Card, error) {
			return a.hostCards(ctx, sc)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.sources[key]; ok {
		e.lastUsed = a.now()
		return e.source
	}
	src := NewSource(fetch, nil, fetchTimeout)
	a.sources[key] = &sourceEntry{source: src, lastUsed: a.now()}
	return src
}

// Peek は取得を起こさずに現在のViewを返す。
func (a *Aggregator) Peek(sc *session.Context, st mode.State) View {
	return viewOf(a.source(sc, st).Snapshot())
}

// View はキャッシュ済みのデータがあればそれを返してバックグラウンドで再検証する。
// データがなければ取得を待ってから返す。
func (a *Aggregator) View(ctx context.Context, sc *session.Context, st mode.State) View {
	src := a.source(sc, st)
	snap := src.Snapshot()
	if len(snap.Data) > 0 {
		src.Revalidate(ctx)
		return viewOf(snap)
	}

	if err := src.Refetch(ctx); err != nil {
		a.logger.Warn("カード一覧の取得に失敗しました",
			slog.String("mode", string(st.Mode)),
			slog.String("error", err.Error()),
		)
	}
	return viewOf(src.Snapshot())
}

// Refetch はキャッシュを使わずに取得し直す。
func (a *Aggregator) Refetch(ctx context.Context, sc *session.Context, st mode.State) (View, error) {
	src := a.source(sc, st)
	err := src.Refetch(ctx)
	return viewOf(src.Snapshot()), err
}

// Submit はゲストとしてカードを投稿する。
// メッセージは無害化し、画像URLは安全性と画像であることを確認してから送る。
// 成功するまで何もキャッシュせず、成功後にゲスト側のソースを取得し直す。
func (a *Aggregator) Submit(ctx context.Context, sc *session.Context, st mode.State, message, imageURL string) (View, error) {
	if !st.IsGuest() || !sc.Guest.Ready(ctx) {
		return View{}, model.NewGuestNotReadyError()
	}

	text, err := a.sanitizer.Message(message)
	if err != nil {
		return View{}, model.NewInvalidMessageError(err.Error())
	}
	if err := a.images.CheckImage(ctx, imageURL); err != nil {
		a.logger.Info("カード画像を拒否しました",
			slog.String("image_url", imageURL),
			slog.String("error", err.Error()),
		)
		return View{}, model.NewInvalidImageError(err.Error())
	}

	if err := a.guestAPI(sc).CreateCard(ctx, model.NewCard{MessageText: text, ImageURL: imageURL}); err != nil {
		return View{}, err
	}
	a.metrics.RecordCardSubmitted()

	src := a.source(sc, st)
	if err := src.Refetch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn("投稿後のカード一覧の取得に失敗しました", slog.String("error", err.Error()))
	}
	return viewOf(src.Snapshot()), nil
}

// Forget はデバイスのホスト側ソースを破棄する。ログアウト時に使う。
func (a *Aggregator) Forget(deviceID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sources, "host:"+deviceID)
}

// Sweep はidle時間を超えて使われていないソースを破棄し、件数を返す。
func (a *Aggregator) Sweep(idle time.Duration) int {
	cutoff := a.now().Add(-idle)
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for key, e := range a.sources {
		if e.lastUsed.Before(cutoff) {
			delete(a.sources, key)
			n++
		}
	}
	return n
}
