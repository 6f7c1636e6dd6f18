// Package quiz はホストのO/Xクイズ作成とゲストの回答を扱う。
package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hitoshi/hansang/internal/clientstate"
	"github.com/hitoshi/hansang/internal/feastapi"
	"github.com/hitoshi/hansang/internal/flight"
	"github.com/hitoshi/hansang/internal/metrics"
	"github.com/hitoshi/hansang/internal/model"
	"github.com/hitoshi/hansang/internal/security"
	"github.com/hitoshi/hansang/internal/session"
)

// MaxQuestions は1つのクイズに含められる最大問題数。
const MaxQuestions = 10

// HostBackend はホスト側のクイズエンドポイント。*feastapi.HostAPI が実装する。
type HostBackend interface {
	CreateQuiz(ctx context.Context, q model.NewQuiz) (model.Quiz, error)
	Quiz(ctx context.Context, id model.ID) (model.Quiz, error)
	DeleteQuestion(ctx context.Context, questionID model.ID) error
	QuizRanking(ctx context.Context, id model.ID) ([]model.RankingEntry, error)
}

// GuestBackend はゲスト側のクイズエンドポイント。*feastapi.GuestAPI が実装する。
type GuestBackend interface {
	Quiz(ctx context.Context, id model.ID) (model.Quiz, error)
	SubmitQuiz(ctx context.Context, id model.ID, sub model.QuizSubmission) (model.QuizResult, error)
	QuizRanking(ctx context.Context, id model.ID) ([]model.RankingEntry, error)
}

// Service はクイズのユースケースを提供する。
type Service struct {
	hostAPI   func(sc *session.Context) HostBackend
	guestAPI  func(sc *session.Context) GuestBackend
	sanitizer security.TextSanitizerService
	logger    *slog.Logger
	metrics   metrics.MetricsCollector

	submissions flight.Group
}

// NewService はServiceを生成する。
func NewService(
	hostAPI func(sc *session.Context) HostBackend,
	guestAPI func(sc *session.Context) GuestBackend,
	sanitizer security.TextSanitizerService,
	logger *slog.Logger,
	m metrics.MetricsCollector,
) *Service {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		hostAPI:   hostAPI,
		guestAPI:  guestAPI,
		sanitizer: sanitizer,
		logger:    logger,
		metrics:   m,
	}
}

// Create はクイズを作成し、lastQuizIdを保存する。
// birthdayIdが空ならデバイスにキャッシュされた今年の생일한상を使う。
// sequenceが0の問題には並び順どおりの番号を振る。
func (s *Service) Create(ctx context.Context, sc *session.Context, q model.NewQuiz) (model.Quiz, error) {
	if q.BirthdayID == "" {
		q.BirthdayID = model.ID(clientstate.GetString(ctx, sc.Device, clientstate.KeyLastFeastID))
	}
	if q.BirthdayID == "" {
		return model.Quiz{}, model.NewFeastNotFoundError()
	}
	if len(q.Questions) == 0 {
		return model.Quiz{}, model.NewInvalidQuizError("문항이 없습니다")
	}
	if len(q.Questions) > MaxQuestions {
		return model.Quiz{}, model.NewInvalidQuizError(fmt.Sprintf("문항은 최대 %d개입니다", MaxQuestions))
	}

	questions := make([]model.Question, len(q.Questions))
	for i, question := range q.Questions {
		content := s.sanitizer.Clean(question.Content)
		if content == "" {
			return model.Quiz{}, model.NewInvalidQuizError(fmt.Sprintf("%d번 문항이 비어 있습니다", i+1))
		}
		question.Content = content
		if question.Sequence == 0 {
			question.Sequence = i + 1
		}
		questions[i] = question
	}
	q.Questions = questions

	created, err := s.hostAPI(sc).CreateQuiz(ctx, q)
	if err != nil {
		return model.Quiz{}, err
	}
	s.remember(ctx, sc, created.QuizID)
	return created, nil
}

// Get はクイズを取得する。idが空ならlastQuizIdを使う。
func (s *Service) Get(ctx context.Context, sc *session.Context, id model.ID) (model.Quiz, error) {
	if id == "" {
		id = model.ID(clientstate.GetString(ctx, sc.Device, clientstate.KeyLastQuizID))
	}
	if id == "" {
		return model.Quiz{}, model.NewQuizNotFoundError("")
	}

	q, err := s.hostAPI(sc).Quiz(ctx, id)
	if err != nil {
		if errors.Is(err, feastapi.ErrNotFound) {
			s.remember(ctx, sc, "")
			return model.Quiz{}, model.NewQuizNotFoundError(id.String())
		}
		return model.Quiz{}, err
	}
	sortQuestions(q.Questions)
	s.remember(ctx, sc, q.QuizID)
	return q, nil
}

// DeleteQuestion はクイズの1問を削除する。
func (s *Service) DeleteQuestion(ctx context.Context, sc *session.Context, questionID model.ID) error {
	if questionID == "" {
		return model.NewInvalidQuizError("문항 ID가 없습니다")
	}
	return s.hostAPI(sc).DeleteQuestion(ctx, questionID)
}

// Ranking はホストのクイズのランキングを返す。idが空ならlastQuizIdを使う。
func (s *Service) Ranking(ctx context.Context, sc *session.Context, id model.ID) ([]model.RankingEntry, error) {
	if id == "" {
		id = model.ID(clientstate.GetString(ctx, sc.Device, clientstate.KeyLastQuizID))
	}
	if id == "" {
		return nil, model.NewQuizNotFoundError("")
	}
	entries, err := s.hostAPI(sc).QuizRanking(ctx, id)
	if err != nil {
		return nil, err
	}
	return sortRanking(entries), nil
}

// GuestGet はゲストとしてクイズを取得する。
func (s *Service) GuestGet(ctx context.Context, sc *session.Context, id model.ID) (model.Quiz, error) {
	if !sc.Guest.Ready(ctx) {
		return model.Quiz{}, model.NewGuestNotReadyError()
	}
	q, err := s.guestAPI(sc).Quiz(ctx, id)
	if err != nil {
		if errors.Is(err, feastapi.ErrNotFound) {
			return model.Quiz{}, model.NewQuizNotFoundError(id.String())
		}
		return model.Quiz{}, err
	}
	sortQuestions(q.Questions)
	return q, nil
}

// Submit はゲストの回答を提出する。
//
// すべての問題にちょうど1回ずつ答えていなければ拒否する。
// 同じタブの同じクイズへの同時の提出は1本にまとめる。
// 成功した結果はタブのストレージに保存し、以後の提出にはそれを返す。
// 失敗した場合は何も残さないので、やり直すことができる。
func (s *Service) Submit(ctx context.Context, sc *session.Context, id model.ID, answers []model.QuizAnswer) (model.QuizResult, error) {
	if !sc.Guest.Ready(ctx) {
		return model.QuizResult{}, model.NewGuestNotReadyError()
	}
	if res, ok := s.submitted(ctx, sc, id); ok {
		return res, nil
	}

	api := s.guestAPI(sc)
	v, err := s.submissions.DoContext(ctx, sc.TabID+":"+id.String(), func() (any, error) {
		// 直前に終わった提出の結果があればそれを使う
		if res, ok := s.submitted(ctx, sc, id); ok {
			return res, nil
		}

		q, err := api.Quiz(ctx, id)
		if err != nil {
			if errors.Is(err, feastapi.ErrNotFound) {
				return nil, model.NewQuizNotFoundError(id.String())
			}
			return nil, err
		}
		if err := validateAnswers(q.Questions, answers); err != nil {
			return nil, err
		}

		res, err := api.SubmitQuiz(ctx, id, model.QuizSubmission{Answers: answers})
		if err != nil {
			return nil, err
		}
		res.Ranking = sortRanking(res.Ranking)
		s.metrics.RecordQuizSubmitted()
		s.saveSubmitted(ctx, sc, id, res)
		return res, nil
	})
	if err != nil {
		return model.QuizResult{}, err
	}
	return v.(model.QuizResult), nil
}

// submitted はタブに保存された提出済みの結果を返す。
func (s *Service) submitted(ctx context.Context, sc *session.Context, id model.ID) (model.QuizResult, bool) {
	raw := clientstate.GetString(ctx, sc.Tab, clientstate.KeyQuizResultPrefix+id.String())
	if raw == "" {
		return model.QuizResult{}, false
	}
	var res model.QuizResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		s.logger.Warn("保存済みのクイズ結果を読み込めません", slog.String("quiz_id", id.String()), slog.String("error", err.Error()))
		return model.QuizResult{}, false
	}
	res.Ranking = sortRanking(res.Ranking)
	return res, true
}

func (s *Service) saveSubmitted(ctx context.Context, sc *session.Context, id model.ID, res model.QuizResult) {
	b, err := json.Marshal(res)
	if err == nil {
		err = sc.Tab.Set(ctx, clientstate.KeyQuizResultPrefix+id.String(), string(b))
	}
	if err != nil {
		s.logger.Warn("クイズ結果の保存に失敗しました", slog.String("quiz_id", id.String()), slog.String("error", err.Error()))
	}
}

// GuestRanking はゲストとしてランキングを取得する。
func (s *Service) GuestRanking(ctx context.Context, sc *session.Context, id model.ID) ([]model.RankingEntry, error) {
	if !sc.Guest.Ready(ctx) {
		return nil, model.NewGuestNotReadyError()
	}
	entries, err := s.guestAPI(sc).QuizRanking(ctx, id)
	if err != nil {
		return nil, err
	}
	return sortRanking(entries), nil
}

func (s *Service) remember(ctx context.Context, sc *session.Context, id model.ID) {
	if err := sc.Device.Set(ctx, clientstate.KeyLastQuizID, id.String()); err != nil {
		s.logger.Warn("lastQuizIdの保存に失敗しました", slog.String("error", err.Error()))
	}
}

// validateAnswers は各問題にちょうど1回ずつ答えているかを検証する。
func validateAnswers(questions []model.Question, answers []model.QuizAnswer) error {
	if len(answers) != len(questions) {
		return model.NewInvalidQuizError(fmt.Sprintf("%d개 문항 중 %d개에 답했습니다", len(questions), len(answers)))
	}

	want := make(map[model.ID]bool, len(questions))
	for _, q := range questions {
		want[q.QuestionID] = true
	}
	seen := make(map[model.ID]bool, len(answers))
	for _, a := range answers {
		if !want[a.QuestionID] {
			return model.NewInvalidQuizError(fmt.Sprintf("알 수 없는 문항입니다: %s", a.QuestionID))
		}
		if seen[a.QuestionID] {
			return model.NewInvalidQuizError(fmt.Sprintf("중복된 답변입니다: %s", a.QuestionID))
		}
		seen[a.QuestionID] = true
	}
	return nil
}

func sortQuestions(qs []model.Question) {
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Sequence < qs[j].Sequence })
}

func sortRanking(entries []model.RankingEntry) []model.RankingEntry {
	if entries == nil {
		return []model.RankingEntry{}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Rank < entries[j].Rank })
	return entries
}
