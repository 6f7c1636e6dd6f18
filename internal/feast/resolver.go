// Package feast はホストの今年の생일한상を探し、なければ作成する。
//
// Resolverはデバイスごとに1つ作られ、デバイスストレージのキャッシュを初期状態として使う。
// 作成とプリロードはResolverの存続期間中に高々1回だけ実行される。
package feast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/hansang/internal/clientstate"
	"github.com/hitoshi/hansang/internal/feastapi"
	"github.com/hitoshi/hansang/internal/flight"
	"github.com/hitoshi/hansang/internal/metrics"
	"github.com/hitoshi/hansang/internal/model"
)

const (
	keyCreate  = "create"
	keyPreload = "preload"
	keyReload  = "reload"
)

// ErrNoFeast は操作対象の생일한상IDが分からないことを示す。
var ErrNoFeast = errors.New("no feast for this year")

// HostBackend はResolverが使うホスト用エンドポイント。
// *feastapi.HostAPI が実装する。
type HostBackend interface {
	ListFeasts(ctx context.Context) ([]model.FeastSummary, error)
	ThisYear(ctx context.Context, id model.ID) (model.Feast, error)
	CreateFeast(ctx context.Context) (model.Feast, error)
	DeleteFeast(ctx context.Context, id model.ID) error
	Period(ctx context.Context, id model.ID) (model.VisibilityPeriod, error)
	SetVisibility(ctx context.Context, id model.ID, visible bool) error
}

// Lookup はFindExistingThisYearの結果。
type Lookup struct {
	Exists   bool     `json:"exists"`
	PickedID model.ID `json:"pickedId,omitempty"`
	Code     string   `json:"code,omitempty"`
}

// EnsureResult はEnsureThisYearCreatedの結果。
type EnsureResult struct {
	AlreadyExists bool `json:"alreadyExists"`
}

// Resolver はデバイス単位で今年の생일한상を解決する。
type Resolver struct {
	api     HostBackend
	storage clientstate.Storage
	logger  *slog.Logger
	metrics metrics.MetricsCollector

	flight flight.Group

	// lifetime はCloseで終了し、実行中のプリロードを中断する
	lifetime context.Context
	cancel   context.CancelFunc

	mu   sync.RWMutex
	data *model.Feast
}

// NewResolver はResolverを生成する。
// デバイスストレージにlastFeastId/lastFeastCodeがあれば、それを初期状態にする。
func NewResolver(ctx context.Context, api HostBackend, storage clientstate.Storage, logger *slog.Logger, m metrics.MetricsCollector) *Resolver {
	if m == nil {
		m = metrics.Nop{}
	}
	lifetime, cancel := context.WithCancel(context.Background())
	r := &Resolver{
		api:      api,
		storage:  storage,
		logger:   logger,
		metrics:  m,
		lifetime: lifetime,
		cancel:   cancel,
	}

	if id := clientstate.GetString(ctx, storage, clientstate.KeyLastFeastID); id != "" {
		r.data = &model.Feast{
			BirthdayID: model.ID(id),
			Code:       clientstate.GetString(ctx, storage, clientstate.KeyLastFeastCode),
		}
	}
	return r
}

// Data は現在の状態を返す。まだ何も分かっていなければfalse。
func (r *Resolver) Data() (model.Feast, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.data == nil {
		return model.Feast{}, false
	}
	return *r.data, true
}

// Close は実行中のプリロードを中断する。
func (r *Resolver) Close() {
	r.cancel()
}

// FindExistingThisYear は今年の생일한상を探す。
//
// 候補IDはキャッシュ、なければ一覧の先頭。一覧が空なら今年の検索は行わない。
// 今年の検索が404やエラーになった場合は「まだない」として扱う。
// セッション切れだけはエラーとして返す。
func (r *Resolver) FindExistingThisYear(ctx context.Context) (Lookup, error) {
	id, err := r.candidateID(ctx)
	if err != nil {
		return Lookup{}, err
	}
	if id == "" {
		return Lookup{Exists: false}, nil
	}

	f, err := r.api.ThisYear(ctx, id)
	if err != nil {
		if errors.Is(err, feastapi.ErrSessionExpired) || ctx.Err() != nil {
			return Lookup{}, err
		}
		if !errors.Is(err, feastapi.ErrNotFound) {
			r.logger.Warn("今年の생일한상の取得に失敗しました",
				slog.String("birthday_id", id.String()),
				slog.String("error", err.Error()),
			)
		}
		return Lookup{Exists: false, PickedID: id}, nil
	}

	if f.BirthdayID == "" {
		f.BirthdayID = id
	}
	r.remember(ctx, f)
	return Lookup{Exists: true, PickedID: f.BirthdayID, Code: f.Code}, nil
}

// candidateID はキャッシュ済みのID、なければ一覧の先頭のIDを返す。
func (r *Resolver) candidateID(ctx context.Context) (model.ID, error) {
	if id := clientstate.GetString(ctx, r.storage, clientstate.KeyLastFeastID); id != "" {
		return model.ID(id), nil
	}

	list, err := r.api.ListFeasts(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list feasts: %w", err)
	}
	if len(list) == 0 {
		return "", nil
	}
	return list[0].BirthdayID, nil
}

// EnsureThisYearCreated は今年の생일한상がなければ作成する。
// 作成はResolverの存続期間中に高々1回で、失敗してもやり直さない。
func (r *Resolver) EnsureThisYearCreated(ctx context.Context) (EnsureResult, error) {
	found, err := r.FindExistingThisYear(ctx)
	if err != nil {
		return EnsureResult{}, err
	}
	if found.Exists {
		return EnsureResult{AlreadyExists: true}, nil
	}

	_, err = r.flight.Once(keyCreate, func() (any, error) {
		return r.create(context.WithoutCancel(ctx))
	})
	if err != nil {
		return EnsureResult{}, err
	}
	return EnsureResult{AlreadyExists: false}, nil
}

func (r *Resolver) create(ctx context.Context) (model.Feast, error) {
	f, err := r.api.CreateFeast(ctx)
	if err != nil {
		r.logger.Error("생일한상の作成に失敗しました", slog.String("error", err.Error()))
		return model.Feast{}, fmt.Errorf("failed to create feast: %w", err)
	}

	// 作成レスポンスに共有コードがなければ今年の検索で補う
	if f.Code == "" && f.BirthdayID != "" {
		if full, err := r.api.ThisYear(ctx, f.BirthdayID); err == nil {
			f = full
		}
	}

	r.metrics.RecordFeastCreated()
	r.remember(ctx, f)
	r.logger.Info("생일한상を作成しました", slog.String("birthday_id", f.BirthdayID.String()))
	return f, nil
}

// PreloadThisYearQuietly は今年の생일한상を探し、なければ作成してキャッシュを温める。
// Resolverの存続期間中に1回だけ実行され、エラーは呼び出し元に返さない。
// ctxの終了またはCloseで中断される。
func (r *Resolver) PreloadThisYearQuietly(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(r.lifetime, cancel)
	defer stop()

	r.flight.Once(keyPreload, func() (any, error) {
		if _, err := r.EnsureThisYearCreated(ctx); err != nil {
			r.metrics.RecordPrefetchFailure()
			r.logger.Debug("プリロードに失敗しました", slog.String("error", err.Error()))
		}
		return nil, nil
	})
}

// Reload はキャッシュを使わずに今年の생일한상を取得し直す。
// 同時に呼ばれた場合は1回の取得にまとめる。
func (r *Resolver) Reload(ctx context.Context) (model.Feast, error) {
	v, err := r.flight.DoContext(ctx, keyReload, func() (any, error) {
		return r.reload(context.WithoutCancel(ctx))
	})
	if err != nil {
		return model.Feast{}, err
	}
	return v.(model.Feast), nil
}

func (r *Resolver) reload(ctx context.Context) (model.Feast, error) {
	id := r.currentID()
	if id == "" {
		list, err := r.api.ListFeasts(ctx)
		if err != nil {
			return model.Feast{}, fmt.Errorf("failed to list feasts: %w", err)
		}
		if len(list) == 0 {
			return model.Feast{}, ErrNoFeast
		}
		id = list[0].BirthdayID
	}

	f, err := r.api.ThisYear(ctx, id)
	if err != nil {
		if errors.Is(err, feastapi.ErrNotFound) {
			r.forget(ctx)
			return model.Feast{}, ErrNoFeast
		}
		return model.Feast{}, err
	}
	if f.BirthdayID == "" {
		f.BirthdayID = id
	}
	r.remember(ctx, f)
	return f, nil
}

// Delete は今年の생일한상を削除し、キャッシュを消す。
// 削除後は再び作成できるよう作成とプリロードのラッチを解除する。
func (r *Resolver) Delete(ctx context.Context) error {
	id := r.currentID()
	if id == "" {
		return ErrNoFeast
	}
	if err := r.api.DeleteFeast(ctx, id); err != nil {
		return r.gone(ctx, fmt.Errorf("failed to delete feast: %w", err))
	}
	r.forget(ctx)
	r.flight.Forget(keyCreate)
	r.flight.Forget(keyPreload)
	return nil
}

// VisibilityPeriod は公開期間を取得する。
func (r *Resolver) VisibilityPeriod(ctx context.Context) (model.VisibilityPeriod, error) {
	id := r.currentID()
	if id == "" {
		return model.VisibilityPeriod{}, ErrNoFeast
	}
	p, err := r.api.Period(ctx, id)
	if err != nil {
		return model.VisibilityPeriod{}, r.gone(ctx, err)
	}
	return p, nil
}

// SetVisibility は公開・非公開を切り替え、最新の状態を取得し直す。
func (r *Resolver) SetVisibility(ctx context.Context, visible bool) (model.Feast, error) {
	id := r.currentID()
	if id == "" {
		return model.Feast{}, ErrNoFeast
	}
	if err := r.api.SetVisibility(ctx, id, visible); err != nil {
		return model.Feast{}, r.gone(ctx, fmt.Errorf("failed to set visibility: %w", err))
	}
	return r.Reload(ctx)
}

// gone はキャッシュしていた생일한상がバックエンドで404になった場合にキャッシュを消し、ErrNoFeastを返す。
// それ以外のエラーはそのまま返す。
func (r *Resolver) gone(ctx context.Context, err error) error {
	if !errors.Is(err, feastapi.ErrNotFound) {
		return err
	}
	r.forget(ctx)
	return ErrNoFeast
}

func (r *Resolver) currentID() model.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.data == nil {
		return ""
	}
	return r.data.BirthdayID
}

// remember はメモリ上の状態とデバイスストレージのキャッシュを更新する。
func (r *Resolver) remember(ctx context.Context, f model.Feast) {
	r.mu.Lock()
	r.data = &f
	r.mu.Unlock()

	if err := r.storage.Set(ctx, clientstate.KeyLastFeastID, f.BirthdayID.String()); err != nil {
		r.logger.Warn("lastFeastIdの保存に失敗しました", slog.String("error", err.Error()))
	}
	if err := r.storage.Set(ctx, clientstate.KeyLastFeastCode, f.Code); err != nil {
		r.logger.Warn("lastFeastCodeの保存に失敗しました", slog.String("error", err.Error()))
	}
}

func (r *Resolver) forget(ctx context.Context) {
	r.mu.Lock()
	r.data = nil
	r.mu.Unlock()

	_ = r.storage.Remove(ctx, clientstate.KeyLastFeastID)
	_ = r.storage.Remove(ctx, clientstate.KeyLastFeastCode)
}
