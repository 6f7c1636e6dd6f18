package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hitoshi/hansang/internal/bootstrap"
	"github.com/hitoshi/hansang/internal/feastapi"
	"github.com/hitoshi/hansang/internal/middleware"
	"github.com/hitoshi/hansang/internal/mode"
	"github.com/hitoshi/hansang/internal/model"
	"github.com/hitoshi/hansang/internal/session"
)

// GuestFeastBackend はゲストとして参照する생일한상のエンドポイント。*feastapi.GuestAPI が実装する。
type GuestFeastBackend interface {
	Feast(ctx context.Context) (model.Feast, error)
	Images(ctx context.Context) ([]model.CardImage, error)
}

// GuestFeastFunc はセッションのゲストトークンで呼び出すGuestFeastBackendを返す。
type GuestFeastFunc func(sc *session.Context) GuestFeastBackend

// GuestHandlerConfig はゲストハンドラーの設定。
type GuestHandlerConfig struct {
	PollInterval time.Duration // 準備完了の確認間隔
	WaitMax      time.Duration // ロングポーリングの最大待ち時間
}

// GuestHandler は招待コードで入ったゲストのHTTPハンドラー。
type GuestHandler struct {
	shell    ShellInterface
	guestAPI GuestFeastFunc
	cards    CardServiceInterface
	config   GuestHandlerConfig
}

// NewGuestHandler はGuestHandlerを生成する。
func NewGuestHandler(shell ShellInterface, guestAPI GuestFeastFunc, cards CardServiceInterface, config GuestHandlerConfig) *GuestHandler {
	return &GuestHandler{shell: shell, guestAPI: guestAPI, cards: cards, config: config}
}

type guestSessionRequest struct {
	Code     string `json:"code"`
	Nickname string `json:"nickname"`
}

// StartSession はニックネームを登録してゲストセッションを開始する。
// codeを省略した場合はタブのマウント記録の招待コードを使う。
// POST /api/guest/session
func (h *GuestHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	var req guestSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	snap, err := h.shell.GuestHandshake(r.Context(), sc, req.Code, req.Nickname)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, guestStatus{Ready: snap.Ready(), Nickname: snap.Nickname})
}

// Ready はゲストセッションが揃っているかを返す。
// wait=1 のときは揃うかWaitMaxが過ぎるまで待つ。
// GET /api/guest/ready
func (h *GuestHandler) Ready(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	if wait := r.URL.Query().Get("wait"); wait == "1" || wait == "true" {
		ctx, cancel := context.WithTimeout(r.Context(), h.config.WaitMax)
		err := bootstrap.WaitGuestReady(ctx, sc, h.config.PollInterval)
		cancel()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return
		}
	}

	snap, err := sc.Guest.Snapshot(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, guestStatus{Ready: snap.Ready(), Nickname: snap.Nickname})
}

// guestSession はゲストとしてマウントされ、セッションが揃っているタブを返す。
// そうでなければ403を書き込んでfalseを返す。
func guestSession(w http.ResponseWriter, r *http.Request) (*session.Context, mode.State, bool) {
	sc, ok := sessionFrom(w, r)
	if !ok {
		return nil, mode.State{}, false
	}
	st, mounted := mode.NewProvider(sc.Tab).State(r.Context())
	if !mounted || !st.IsGuest() || !sc.Guest.Ready(r.Context()) {
		middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewGuestNotReadyError())
		return nil, mode.State{}, false
	}
	return sc, st, true
}

// Feast は招待先の생일한상を返す。
// GET /api/guest/feast
func (h *GuestHandler) Feast(w http.ResponseWriter, r *http.Request) {
	sc, _, ok := guestSession(w, r)
	if !ok {
		return
	}
	f, err := h.guestAPI(sc).Feast(r.Context())
	if err != nil {
		if errors.Is(err, feastapi.ErrNotFound) {
			err = model.NewFeastNotFoundError()
		}
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// Images はカードに使える画像素材を返す。
// GET /api/guest/images
func (h *GuestHandler) Images(w http.ResponseWriter, r *http.Request) {
	sc, _, ok := guestSession(w, r)
	if !ok {
		return
	}
	images, err := h.guestAPI(sc).Images(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if images == nil {
		images = []model.CardImage{}
	}
	writeJSON(w, http.StatusOK, images)
}

// Cards は招待先のカード一覧を返す。
// GET /api/guest/cards
func (h *GuestHandler) Cards(w http.ResponseWriter, r *http.Request) {
	sc, st, ok := guestSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.cards.View(r.Context(), sc, st))
}

type submitCardRequest struct {
	Message  string `json:"message"`
	ImageURL string `json:"imageUrl"`
}

// SubmitCard はカードを投稿し、更新後のカード一覧を返す。
// POST /api/guest/cards
func (h *GuestHandler) SubmitCard(w http.ResponseWriter, r *http.Request) {
	sc, st, ok := guestSession(w, r)
	if !ok {
		return
	}
	var req submitCardRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	v, err := h.cards.Submit(r.Context(), sc, st, req.Message, req.ImageURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}
