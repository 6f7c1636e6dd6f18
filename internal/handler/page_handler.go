package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/hansang/internal/bootstrap"
	"github.com/hitoshi/hansang/internal/feast"
	"github.com/hitoshi/hansang/internal/feastapi"
	"github.com/hitoshi/hansang/internal/middleware"
	"github.com/hitoshi/hansang/internal/mode"
	"github.com/hitoshi/hansang/internal/model"
	"github.com/hitoshi/hansang/internal/session"
)

// ShellInterface はページのブートストラップを行うサービスインターフェース。
type ShellInterface interface {
	Enter(ctx context.Context, sc *session.Context, r bootstrap.Route) (bootstrap.Decision, error)
	AcknowledgeWelcome(ctx context.Context, sc *session.Context) (bootstrap.Gates, error)
	AcknowledgeQuizPrompt(ctx context.Context, sc *session.Context) (bootstrap.Gates, error)
	GuestHandshake(ctx context.Context, sc *session.Context, code, nickname string) (session.GuestSnapshot, error)
}

// FeastResolver はデバイス単位の今年の생일한상の解決。*feast.Resolver が実装する。
type FeastResolver interface {
	Data() (model.Feast, bool)
	FindExistingThisYear(ctx context.Context) (feast.Lookup, error)
	EnsureThisYearCreated(ctx context.Context) (feast.EnsureResult, error)
	Reload(ctx context.Context) (model.Feast, error)
	Delete(ctx context.Context) error
	VisibilityPeriod(ctx context.Context) (model.VisibilityPeriod, error)
	SetVisibility(ctx context.Context, visible bool) (model.Feast, error)
}

// FeastResolverFunc はセッションのデバイスに対応するFeastResolverを返す。
type FeastResolverFunc func(ctx context.Context, sc *session.Context) FeastResolver

// PageHandler はユーザー単位のルートのHTTPハンドラー。
type PageHandler struct {
	shell  ShellInterface
	feasts FeastResolverFunc
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(shell ShellInterface, feasts FeastResolverFunc) *PageHandler {
	return &PageHandler{shell: shell, feasts: feasts}
}

// pageBootstrap は表示を許可したページに返す初期データ。
type pageBootstrap struct {
	Page         string          `json:"page"`
	Mode         mode.Mode       `json:"mode"`
	SharedHostID string          `json:"sharedHostId"`
	Code         string          `json:"code,omitempty"`
	Gates        bootstrap.Gates `json:"gates"`
	Feast        *model.Feast    `json:"feast,omitempty"`
}

// Root は保存済みのホストのメインページ、なければログインへ移動させる。
// GET /u
func (h *PageHandler) Root(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	if id := sc.Host.HostUserID(r.Context()); id != "" {
		http.Redirect(w, r, bootstrap.HostMainPath(id), http.StatusTemporaryRedirect)
		return
	}
	http.Redirect(w, r, bootstrap.LoginPath, http.StatusTemporaryRedirect)
}

// Page はユーザー単位のページに入る。
// GET /u/{userId}/{page}?code=xxx
func (h *PageHandler) Page(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	route := bootstrap.Route{
		UserID:    chi.URLParam(r, "userId"),
		Page:      chi.URLParam(r, "page"),
		Code:      r.URL.Query().Get("code"),
		ClientNav: r.Header.Get(middleware.NavigationHeaderName) == "client",
	}

	d, err := h.shell.Enter(ctx, sc, route)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	switch d.Kind {
	case bootstrap.KindRedirect:
		http.Redirect(w, r, d.Location, http.StatusTemporaryRedirect)
		return
	case bootstrap.KindDeny:
		middleware.WriteErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "PAGE_NOT_FOUND",
			Message:  "페이지를 찾을 수 없습니다.",
			Category: "system",
			Action:   "주소를 확인해 주세요.",
		})
		return
	}

	page := pageBootstrap{
		Page:         route.Page,
		Mode:         d.State.Mode,
		SharedHostID: d.State.SharedHostID,
		Code:         d.State.Code,
		Gates:        d.Gates,
	}

	if !d.State.IsGuest() {
		f, err := h.hostFeast(ctx, sc)
		if errors.Is(err, feastapi.ErrSessionExpired) {
			http.Redirect(w, r, loginErrorPath("session_expired"), http.StatusTemporaryRedirect)
			return
		}
		page.Feast = f
	}

	writeJSON(w, http.StatusOK, page)
}

// hostFeast はキャッシュ済みの今年の생일한상を返す。
// キャッシュがなければ既存のものを探すだけで、作成はプリフェッチに任せる。
func (h *PageHandler) hostFeast(ctx context.Context, sc *session.Context) (*model.Feast, error) {
	res := h.feasts(ctx, sc)
	if f, ok := res.Data(); ok {
		return &f, nil
	}

	if _, err := res.FindExistingThisYear(ctx); err != nil {
		if !errors.Is(err, feastapi.ErrSessionExpired) {
			slog.Warn("failed to look up feast for page", slog.String("error", err.Error()))
		}
		return nil, err
	}
	if f, ok := res.Data(); ok {
		return &f, nil
	}
	return nil, nil
}

// AcknowledgeWelcome はウェルカムを今日見たことを記録する。
// POST /api/onboarding/welcome
func (h *PageHandler) AcknowledgeWelcome(w http.ResponseWriter, r *http.Request) {
	h.acknowledge(w, r, h.shell.AcknowledgeWelcome)
}

// AcknowledgeQuizPrompt はクイズ作成の案内を見たことを記録する。
// POST /api/onboarding/quiz-prompt
func (h *PageHandler) AcknowledgeQuizPrompt(w http.ResponseWriter, r *http.Request) {
	h.acknowledge(w, r, h.shell.AcknowledgeQuizPrompt)
}

func (h *PageHandler) acknowledge(w http.ResponseWriter, r *http.Request, ack func(context.Context, *session.Context) (bootstrap.Gates, error)) {
	sc, ok := hostSession(w, r)
	if !ok {
		return
	}
	gates, err := ack(r.Context(), sc)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gates)
}

// hostSession はログイン済みのホストのセッションを返す。
// 未ログインなら401を書き込んでfalseを返す。
func hostSession(w http.ResponseWriter, r *http.Request) (*session.Context, bool) {
	sc, ok := sessionFrom(w, r)
	if !ok {
		return nil, false
	}
	if sc.Host.HostUserID(r.Context()) == "" {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNotLoggedInError())
		return nil, false
	}
	return sc, true
}
