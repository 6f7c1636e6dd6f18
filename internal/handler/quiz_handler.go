package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/hansang/internal/feastapi"
	"github.com/hitoshi/hansang/internal/model"
	"github.com/hitoshi/hansang/internal/session"
)

// QuizServiceInterface はクイズハンドラーが必要とするサービスインターフェース。
type QuizServiceInterface interface {
	Create(ctx context.Context, sc *session.Context, q model.NewQuiz) (model.Quiz, error)
	Get(ctx context.Context, sc *session.Context, id model.ID) (model.Quiz, error)
	DeleteQuestion(ctx context.Context, sc *session.Context, questionID model.ID) error
	Ranking(ctx context.Context, sc *session.Context, id model.ID) ([]model.RankingEntry, error)
	GuestGet(ctx context.Context, sc *session.Context, id model.ID) (model.Quiz, error)
	Submit(ctx context.Context, sc *session.Context, id model.ID, answers []model.QuizAnswer) (model.QuizResult, error)
	GuestRanking(ctx context.Context, sc *session.Context, id model.ID) ([]model.RankingEntry, error)
}

// QuizHandler はO/XクイズのHTTPハンドラー。
type QuizHandler struct {
	service QuizServiceInterface
}

// NewQuizHandler はQuizHandlerを生成する。
func NewQuizHandler(service QuizServiceInterface) *QuizHandler {
	return &QuizHandler{service: service}
}

// quizID はパスのquizIdを返す。省略されたルートでは空。
func quizID(r *http.Request) model.ID {
	return model.ID(chi.URLParam(r, "quizId"))
}

// handleQuizError はバックエンドの404をクイズが見つからないエラーとして返す。
func handleQuizError(w http.ResponseWriter, err error, id model.ID) {
	if errors.Is(err, feastapi.ErrNotFound) {
		err = model.NewQuizNotFoundError(id.String())
	}
	handleServiceError(w, err)
}

// Create はクイズを作成する。
// POST /api/quiz
func (h *QuizHandler) Create(w http.ResponseWriter, r *http.Request) {
	sc, ok := hostSession(w, r)
	if !ok {
		return
	}
	var req model.NewQuiz
	if !decodeJSON(w, r, &req) {
		return
	}

	q, err := h.service.Create(r.Context(), sc, req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

// Get はホストのクイズを返す。quizIdがなければ最後に作成・参照したクイズ。
// GET /api/quiz, GET /api/quiz/{quizId}
func (h *QuizHandler) Get(w http.ResponseWriter, r *http.Request) {
	sc, ok := hostSession(w, r)
	if !ok {
		return
	}
	q, err := h.service.Get(r.Context(), sc, quizID(r))
	if err != nil {
		handleQuizError(w, err, quizID(r))
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// DeleteQuestion はクイズの1問を削除する。
// DELETE /api/quiz/questions/{questionId}
func (h *QuizHandler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	sc, ok := hostSession(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteQuestion(r.Context(), sc, model.ID(chi.URLParam(r, "questionId"))); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Ranking はホストのクイズのランキングを返す。
// GET /api/quiz/ranking, GET /api/quiz/{quizId}/ranking
func (h *QuizHandler) Ranking(w http.ResponseWriter, r *http.Request) {
	sc, ok := hostSession(w, r)
	if !ok {
		return
	}
	entries, err := h.service.Ranking(r.Context(), sc, quizID(r))
	if err != nil {
		handleQuizError(w, err, quizID(r))
		return
	}
	writeJSON(w, http.StatusOK, rankingOrEmpty(entries))
}

// GuestGet はゲストとしてクイズを返す。
// GET /api/guest/quiz/{quizId}
func (h *QuizHandler) GuestGet(w http.ResponseWriter, r *http.Request) {
	sc, _, ok := guestSession(w, r)
	if !ok {
		return
	}
	q, err := h.service.GuestGet(r.Context(), sc, quizID(r))
	if err != nil {
		handleQuizError(w, err, quizID(r))
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// Submit はゲストの回答を提出する。
// POST /api/guest/quiz/{quizId}/answers
func (h *QuizHandler) Submit(w http.ResponseWriter, r *http.Request) {
	sc, _, ok := guestSession(w, r)
	if !ok {
		return
	}
	var req model.QuizSubmission
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.Submit(r.Context(), sc, quizID(r), req.Answers)
	if err != nil {
		handleQuizError(w, err, quizID(r))
		return
	}
	res.Ranking = rankingOrEmpty(res.Ranking)
	writeJSON(w, http.StatusOK, res)
}

// GuestRanking はゲストとしてランキングを返す。
// GET /api/guest/quiz/{quizId}/ranking
func (h *QuizHandler) GuestRanking(w http.ResponseWriter, r *http.Request) {
	sc, _, ok := guestSession(w, r)
	if !ok {
		return
	}
	entries, err := h.service.GuestRanking(r.Context(), sc, quizID(r))
	if err != nil {
		handleQuizError(w, err, quizID(r))
		return
	}
	writeJSON(w, http.StatusOK, rankingOrEmpty(entries))
}

func rankingOrEmpty(entries []model.RankingEntry) []model.RankingEntry {
	if entries == nil {
		return []model.RankingEntry{}
	}
	return entries
}
