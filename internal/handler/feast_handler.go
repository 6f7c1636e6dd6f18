package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/hitoshi/hansang/internal/card"
	"github.com/hitoshi/hansang/internal/feastapi"
	"github.com/hitoshi/hansang/internal/mode"
	"github.com/hitoshi/hansang/internal/model"
	"github.com/hitoshi/hansang/internal/session"
)

// CardServiceInterface はカード一覧と投稿のサービスインターフェース。
type CardServiceInterface interface {
	View(ctx context.Context, sc *session.Context, st mode.State) card.View
	Refetch(ctx context.Context, sc *session.Context, st mode.State) (card.View, error)
	Submit(ctx context.Context, sc *session.Context, st mode.State, message, imageURL string) (card.View, error)
}

// FeastHandler はホストの생일한상とカード一覧のHTTPハンドラー。
type FeastHandler struct {
	feasts FeastResolverFunc
	cards  CardServiceInterface
}

// NewFeastHandler はFeastHandlerを生成する。
func NewFeastHandler(feasts FeastResolverFunc, cards CardServiceInterface) *FeastHandler {
	return &FeastHandler{feasts: feasts, cards: cards}
}

type feastResponse struct {
	Exists        bool         `json:"exists"`
	AlreadyExists *bool        `json:"alreadyExists,omitempty"`
	Feast         *model.Feast `json:"feast,omitempty"`
}

func newFeastResponse(res FeastResolver) feastResponse {
	f, ok := res.Data()
	if !ok {
		return feastResponse{}
	}
	return feastResponse{Exists: true, Feast: &f}
}

// Get は今年の생일한상を返す。キャッシュがなければ既存のものを探す。作成はしない。
// GET /api/feast
func (h *FeastHandler) Get(w http.ResponseWriter, r *http.Request) {
	sc, ok := hostSession(w, r)
	if !ok {
		return
	}
	res := h.feasts(r.Context(), sc)
	if _, cached := res.Data(); !cached {
		if _, err := res.FindExistingThisYear(r.Context()); err != nil {
			handleServiceError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, newFeastResponse(res))
}

// Ensure は今年の생일한상がなければ作成する。
// POST /api/feast/ensure
func (h *FeastHandler) Ensure(w http.ResponseWriter, r *http.Request) {
	sc, ok := hostSession(w, r)
	if !ok {
		return
	}
	res := h.feasts(r.Context(), sc)
	result, err := res.EnsureThisYearCreated(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := newFeastResponse(res)
	resp.AlreadyExists = &result.AlreadyExists
	writeJSON(w, http.StatusOK, resp)
}

// Reload は今年の생일한상をバックエンドから取得し直す。
// POST /api/feast/reload
func (h *FeastHandler) Reload(w http.ResponseWriter, r *http.Request) {
	sc, ok := hostSession(w, r)
	if !ok {
		return
	}
	f, err := h.feasts(r.Context(), sc).Reload(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feastResponse{Exists: true, Feast: &f})
}

// Delete は今年の생일한상を削除する。
// DELETE /api/feast
func (h *FeastHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sc, ok := hostSession(w, r)
	if !ok {
		return
	}
	if err := h.feasts(r.Context(), sc).Delete(r.Context()); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Period は公開期間を返す。
// GET /api/feast/period
func (h *FeastHandler) Period(w http.ResponseWriter, r *http.Request) {
	sc, ok := hostSession(w, r)
	if !ok {
		return
	}
	p, err := h.feasts(r.Context(), sc).VisibilityPeriod(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type visibilityRequest struct {
	Visible *bool `json:"visible"`
}

// SetVisibility は公開・非公開を切り替える。
// PUT /api/feast/visibility
func (h *FeastHandler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	sc, ok := hostSession(w, r)
	if !ok {
		return
	}
	var req visibilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Visible == nil {
		handleServiceError(w, invalidRequestError("visible 값이 필요합니다."))
		return
	}

	f, err := h.feasts(r.Context(), sc).SetVisibility(r.Context(), *req.Visible)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feastResponse{Exists: true, Feast: &f})
}

// Cards はホストのカード一覧を返す。
// キャッシュがあれば即座に返し、裏で再検証する。
// GET /api/feast/cards
func (h *FeastHandler) Cards(w http.ResponseWriter, r *http.Request) {
	sc, ok := hostSession(w, r)
	if !ok {
		return
	}
	v := h.cards.View(r.Context(), sc, hostState(r.Context(), sc))
	if len(v.Data) == 0 && errors.Is(v.Err, feastapi.ErrSessionExpired) {
		handleServiceError(w, v.Err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// RefetchCards はホストのカード一覧を取得し直す。
// POST /api/feast/cards/refetch
func (h *FeastHandler) RefetchCards(w http.ResponseWriter, r *http.Request) {
	sc, ok := hostSession(w, r)
	if !ok {
		return
	}
	v, err := h.cards.Refetch(r.Context(), sc, hostState(r.Context(), sc))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func hostState(ctx context.Context, sc *session.Context) mode.State {
	return mode.State{Mode: mode.ModeHost, SharedHostID: sc.Host.HostUserID(ctx)}
}
