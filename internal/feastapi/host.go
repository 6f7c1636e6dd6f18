package feastapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/hitoshi/hansang/internal/model"
	"github.com/hitoshi/hansang/internal/session"
)

// HostAPI はホストのbearerトークンで呼ぶエンドポイント。
type HostAPI struct {
	c     *Client
	store *session.TokenStore
}

func (a *HostAPI) do(ctx context.Context, cl call) error {
	_, err := a.c.do(ctx, Host(a.store), cl)
	return err
}

// Logout はバックエンドのセッションを破棄する。リフレッシュCookieも送る。
func (a *HostAPI) Logout(ctx context.Context) error {
	return a.do(ctx, call{
		op:            "auth.logout",
		method:        http.MethodPost,
		path:          "/api/auth-user/logout",
		refreshCookie: a.store.RefreshCookie(ctx),
	})
}

// Me はログイン中のホスト情報を取得する。
func (a *HostAPI) Me(ctx context.Context) (model.HostUser, error) {
	var out model.HostUser
	err := a.do(ctx, call{op: "user.me", method: http.MethodGet, path: "/api-user/me", out: &out})
	return out, err
}

// UpdateNickname はホストのニックネームを変更する。
func (a *HostAPI) UpdateNickname(ctx context.Context, nickname string) error {
	return a.do(ctx, call{
		op:     "user.update_nickname",
		method: http.MethodPatch,
		path:   "/api-user/me/nickname",
		body:   map[string]string{"nickname": nickname},
	})
}

// CreateFeast は今年の생일한상を作成する。
func (a *HostAPI) CreateFeast(ctx context.Context) (model.Feast, error) {
	var out model.Feast
	err := a.do(ctx, call{op: "feast.create", method: http.MethodPost, path: "/api-user/birthday/create", out: &out})
	return out, err
}

// ListFeasts はホストの생일한상一覧を取得する。
func (a *HostAPI) ListFeasts(ctx context.Context) ([]model.FeastSummary, error) {
	var out []model.FeastSummary
	err := a.do(ctx, call{op: "feast.list", method: http.MethodGet, path: "/api-user/birthday/get/all", out: &out})
	return out, err
}

// ThisYear はidを起点に今年の생일한상を取得する。存在しなければErrNotFound。
func (a *HostAPI) ThisYear(ctx context.Context, id model.ID) (model.Feast, error) {
	var out model.Feast
	err := a.do(ctx, call{
		op:     "feast.this_year",
		method: http.MethodGet,
		path:   "/api-user/birthday/get/this-year/" + url.PathEscape(id.String()),
		out:    &out,
	})
	return out, err
}

// DeleteFeast は생일한상を削除する。
func (a *HostAPI) DeleteFeast(ctx context.Context, id model.ID) error {
	return a.do(ctx, call{
		op:     "feast.delete",
		method: http.MethodDelete,
		path:   "/api-user/birthday/delete/" + url.PathEscape(id.String()),
	})
}

// Period は公開期間を取得する。
func (a *HostAPI) Period(ctx context.Context, id model.ID) (model.VisibilityPeriod, error) {
	var out model.VisibilityPeriod
	err := a.do(ctx, call{
		op:     "feast.period",
		method: http.MethodGet,
		path:   "/api-user/birthday/get/period/" + url.PathEscape(id.String()),
		out:    &out,
	})
	return out, err
}

// SetVisibility は公開・非公開を切り替える。
func (a *HostAPI) SetVisibility(ctx context.Context, id model.ID, visible bool) error {
	return a.do(ctx, call{
		op:     "feast.set_visibility",
		method: http.MethodPatch,
		path:   "/api-user/birthday/visible/" + url.PathEscape(id.String()),
		body:   map[string]bool{"isVisible": visible},
	})
}

// CreateQuiz はO/Xクイズを作成する。
func (a *HostAPI) CreateQuiz(ctx context.Context, q model.NewQuiz) (model.Quiz, error) {
	var out model.Quiz
	err := a.do(ctx, call{op: "quiz.create", method: http.MethodPost, path: "/api-user/quiz/create", body: q, out: &out})
	return out, err
}

// Quiz はクイズを取得する。
func (a *HostAPI) Quiz(ctx context.Context, id model.ID) (model.Quiz, error) {
	var out model.Quiz
	err := a.do(ctx, call{
		op:     "quiz.get",
		method: http.MethodGet,
		path:   "/api-user/quiz/get/" + url.PathEscape(id.String()),
		out:    &out,
	})
	return out, err
}

// DeleteQuestion はクイズの1問を削除する。
func (a *HostAPI) DeleteQuestion(ctx context.Context, questionID model.ID) error {
	return a.do(ctx, call{
		op:     "quiz.delete_question",
		method: http.MethodDelete,
		path:   "/api-user/quiz/delete/" + url.PathEscape(questionID.String()),
	})
}

// QuizRanking はクイズのランキングを取得する。
func (a *HostAPI) QuizRanking(ctx context.Context, id model.ID) ([]model.RankingEntry, error) {
	var out []model.RankingEntry
	err := a.do(ctx, call{
		op:     "quiz.ranking",
		method: http.MethodGet,
		path:   "/api-user/quiz/get/ranking/" + url.PathEscape(id.String()),
		out:    &out,
	})
	return out, err
}
