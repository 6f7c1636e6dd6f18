// Package bootstrap はユーザー単位のルートに入るときの判定と副作用を扱う。
//
// Shell.Enterは所有者の確認とリダイレクトを決め、ホストには今年の생일한상の
// プリフェッチとオンボーディング、ゲストにはニックネーム登録のゲートを用意する。
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/hansang/internal/clientstate"
	"github.com/hitoshi/hansang/internal/metrics"
	"github.com/hitoshi/hansang/internal/mode"
	"github.com/hitoshi/hansang/internal/model"
	"github.com/hitoshi/hansang/internal/security"
	"github.com/hitoshi/hansang/internal/session"
)

// Pages はユーザー単位のルートで表示できるページ。
var Pages = []string{
	"main", "history", "visibility", "account", "my-feast-qr", "theme",
	"quiz", "create-quiz", "write", "play", "message",
}

// hostOnlyPages はゲストとして開けないホスト管理用のページ。
var hostOnlyPages = map[string]bool{
	"history":     true,
	"visibility":  true,
	"account":     true,
	"my-feast-qr": true,
	"theme":       true,
	"create-quiz": true,
}

var knownPages = func() map[string]bool {
	m := make(map[string]bool, len(Pages))
	for _, p := range Pages {
		m[p] = true
	}
	return m
}()

// ErrMissingCode はゲスト認証に使う招待コードがないことを示す。
var ErrMissingCode = errors.New("invitation code is required")

// Route は入ろうとしているルート。
type Route struct {
	UserID string
	Page   string
	Code   string
	// ClientNav はクライアント側のナビゲーションであることを示す。
	// trueのときは同じマウントとして扱い、ゲストモードを維持する。
	ClientNav bool
}

// GuestAuthBackend はゲスト認証エンドポイント。*feastapi.PublicAPI が実装する。
type GuestAuthBackend interface {
	GuestAuth(ctx context.Context, code, nickname string) (model.GuestTokens, error)
}

// PrefetchFunc はホストの今年の생일한상をプリフェッチする。エラーは返さない。
type PrefetchFunc func(ctx context.Context, sc *session.Context)

// Config はShellの設定。
type Config struct {
	PrefetchTimeout time.Duration
	Location        *time.Location
}

// Shell はユーザー単位のルートのブートストラップを行う。
type Shell struct {
	prefetch  PrefetchFunc
	guestAuth GuestAuthBackend
	sanitizer security.TextSanitizerService
	config    Config
	logger    *slog.Logger
	metrics   metrics.MetricsCollector
	now       func() time.Time

	wg sync.WaitGroup
}

// NewShell はShellを生成する。
func NewShell(prefetch PrefetchFunc, guestAuth GuestAuthBackend, sanitizer security.TextSanitizerService, config Config, logger *slog.Logger, m metrics.MetricsCollector) *Shell {
	if m == nil {
		m = metrics.Nop{}
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &Shell{
		prefetch:  prefetch,
		guestAuth: guestAuth,
		sanitizer: sanitizer,
		config:    config,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// Enter はルートに入る際の判定を行う。
//
//  1. 未知のページは拒否する。
//  2. 招待コードがあるか、同じマウントでゲストのままならゲストとして許可する。
//  3. 保存済みのホストIDがなければログインへ、ルートと違えば自分のメインへ移動させる。
//  4. ホストならプリフェッチを起動し、オンボーディングのゲートを計算する。
func (s *Shell) Enter(ctx context.Context, sc *session.Context, r Route) (Decision, error) {
	if !knownPages[r.Page] {
		return Deny("unknown page"), nil
	}

	stored := sc.Host.HostUserID(ctx)
	in := mode.Input{UserID: r.UserID, Code: r.Code, StoredHostID: stored}

	provider := mode.NewProvider(sc.Tab)
	var st mode.State
	var err error
	if r.ClientNav {
		st, err = provider.Navigate(ctx, in)
	} else {
		st, err = provider.Mount(ctx, in)
	}

	if errors.Is(err, mode.ErrNotRepresentable) {
		if stored == "" {
			return RedirectTo(LoginPath), nil
		}
		return RedirectTo(HostMainPath(stored)), nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("failed to resolve mode: %w", err)
	}

	if st.IsGuest() {
		if hostOnlyPages[r.Page] {
			return Deny("host only page"), nil
		}
		return Allow(st, Gates{GuestOnboarding: !sc.Guest.Ready(ctx)}), nil
	}

	s.startPrefetch(ctx, sc)
	return Allow(st, s.hostGates(ctx, sc)), nil
}

// startPrefetch はリクエストから切り離してプリフェッチを起動する。
// PrefetchTimeoutで打ち切られる。
func (s *Shell) startPrefetch(ctx context.Context, sc *session.Context) {
	if s.prefetch == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		pctx := detached
		if s.config.PrefetchTimeout > 0 {
			var cancel context.CancelFunc
			pctx, cancel = context.WithTimeout(detached, s.config.PrefetchTimeout)
			defer cancel()
		}
		s.prefetch(pctx, sc)
	}()
}

// Wait は起動済みのプリフェッチがすべて終わるまで待つ。
func (s *Shell) Wait() {
	s.wg.Wait()
}

// today は設定されたタイムゾーンでの今日の日付。
func (s *Shell) today() string {
	return s.now().In(s.config.Location).Format("2006-01-02")
}

// hostGates はホストのオンボーディングを計算する。
// ウェルカムは1日1回、クイズ作成の案内はウェルカムを今日見た後に一度だけ。
func (s *Shell) hostGates(ctx context.Context, sc *session.Context) Gates {
	welcome := clientstate.GetString(ctx, sc.Device, clientstate.KeyWelcomeSeenDate) != s.today()
	prompt := !welcome && clientstate.GetString(ctx, sc.Device, clientstate.KeyQuizPromptSeen) != "true"
	return Gates{Welcome: welcome, QuizPrompt: prompt}
}

// AcknowledgeWelcome はウェルカムを今日見たことを記録する。
func (s *Shell) AcknowledgeWelcome(ctx context.Context, sc *session.Context) (Gates, error) {
	if err := sc.Device.Set(ctx, clientstate.KeyWelcomeSeenDate, s.today()); err != nil {
		return Gates{}, fmt.Errorf("failed to save welcome flag: %w", err)
	}
	return s.hostGates(ctx, sc), nil
}

// AcknowledgeQuizPrompt はクイズ作成の案内を見たことを記録する。以後表示しない。
func (s *Shell) AcknowledgeQuizPrompt(ctx context.Context, sc *session.Context) (Gates, error) {
	if err := sc.Device.Set(ctx, clientstate.KeyQuizPromptSeen, "true"); err != nil {
		return Gates{}, fmt.Errorf("failed to save quiz prompt flag: %w", err)
	}
	return s.hostGates(ctx, sc), nil
}

// WaitGuestReady はゲストセッションが揃うまでintervalごとに確認する。
// 揃えばnil、ctxが終了すればctx.Err()を返す。
func WaitGuestReady(ctx context.Context, sc *session.Context, interval time.Duration) error {
	if sc.Guest.Ready(ctx) {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if sc.Guest.Ready(ctx) {
				return nil
			}
		}
	}
}

// GuestHandshake はニックネームを検証し、招待コードでゲスト認証を行ってセッションを保存する。
// codeが空ならタブのマウント記録の招待コードを使う。失敗した場合は何も保存しない。
func (s *Shell) GuestHandshake(ctx context.Context, sc *session.Context, code, nickname string) (session.GuestSnapshot, error) {
	if code == "" {
		if st, ok := mode.NewProvider(sc.Tab).State(ctx); ok && st.IsGuest() {
			code = st.Code
		}
	}
	if code == "" {
		return session.GuestSnapshot{}, ErrMissingCode
	}

	nick, err := s.sanitizer.Nickname(nickname)
	if err != nil {
		return session.GuestSnapshot{}, model.NewInvalidNicknameError(err.Error())
	}

	tokens, err := s.guestAuth.GuestAuth(ctx, code, nick)
	if err == nil && tokens.AccessToken == "" {
		err = errors.New("guest auth returned no access token")
	}
	if err != nil {
		s.metrics.RecordGuestAuth("failure")
		s.logger.Warn("ゲスト認証に失敗しました",
			slog.String("tab_id", sc.TabID),
			slog.String("error", err.Error()),
		)
		return session.GuestSnapshot{}, err
	}

	if err := sc.Guest.Save(ctx, tokens, nick); err != nil {
		return session.GuestSnapshot{}, err
	}
	s.metrics.RecordGuestAuth("success")
	s.logger.Info("ゲストが入場しました", slog.String("tab_id", sc.TabID))
	return sc.Guest.Snapshot(ctx)
}
