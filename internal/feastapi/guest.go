package feastapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/hitoshi/hansang/internal/model"
)

// GuestAPI はゲストのbearerトークンで呼ぶエンドポイント。
// 401はErrGuestSessionExpiredになり、再発行は行わない。
type GuestAPI struct {
	c *Client
	p Principal
}

func (a *GuestAPI) do(ctx context.Context, cl call) error {
	_, err := a.c.do(ctx, a.p, cl)
	return err
}

// Feast は招待されたホストの생일한상を取得する。
func (a *GuestAPI) Feast(ctx context.Context) (model.Feast, error) {
	var out model.Feast
	err := a.do(ctx, call{op: "guest.feast", method: http.MethodGet, path: "/api-guest/birthday", out: &out})
	return out, err
}

// Images はカードに使える画像素材の一覧を取得する。
func (a *GuestAPI) Images(ctx context.Context) ([]model.CardImage, error) {
	var out []model.CardImage
	err := a.do(ctx, call{op: "guest.images", method: http.MethodGet, path: "/api-guest/image", out: &out})
	return out, err
}

// CreateCard はカードを投稿する。
func (a *GuestAPI) CreateCard(ctx context.Context, card model.NewCard) error {
	return a.do(ctx, call{op: "guest.card_create", method: http.MethodPost, path: "/api-guest/card", body: card})
}

// Quiz はクイズを取得する。
func (a *GuestAPI) Quiz(ctx context.Context, id model.ID) (model.Quiz, error) {
	var out model.Quiz
	err := a.do(ctx, call{
		op:     "guest.quiz_get",
		method: http.MethodGet,
		path:   "/api-guest/quiz/get/" + url.PathEscape(id.String()),
		out:    &out,
	})
	return out, err
}

// SubmitQuiz は回答を提出する。
func (a *GuestAPI) SubmitQuiz(ctx context.Context, id model.ID, sub model.QuizSubmission) (model.QuizResult, error) {
	var out model.QuizResult
	err := a.do(ctx, call{
		op:     "guest.quiz_submit",
		method: http.MethodPost,
		path:   "/api-guest/quiz/submit/" + url.PathEscape(id.String()),
		body:   sub,
		out:    &out,
	})
	return out, err
}

// QuizRanking はクイズのランキングを取得する。
func (a *GuestAPI) QuizRanking(ctx context.Context, id model.ID) ([]model.RankingEntry, error) {
	var out []model.RankingEntry
	err := a.do(ctx, call{
		op:     "guest.quiz_ranking",
		method: http.MethodGet,
		path:   "/api-guest/quiz/get/ranking/" + url.PathEscape(id.String()),
		out:    &out,
	})
	return out, err
}
