package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/hansang/internal/metrics"
	"github.com/hitoshi/hansang/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionConfig     middleware.SessionConfig
	SessionBuilder    middleware.SessionBuilder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 運用
	MetricsGatherer prometheus.Gatherer
	HealthCheck     func(ctx context.Context) error

	// 認証
	AuthService  AuthServiceInterface
	AuthConfig   AuthHandlerConfig
	ForgetDevice func(deviceID string)

	// ページと생일한상
	Shell  ShellInterface
	Feasts FeastResolverFunc
	Cards  CardServiceInterface

	// ゲスト
	GuestAPI    GuestFeastFunc
	GuestConfig GuestHandlerConfig

	// クイズ
	QuizService QuizServiceInterface
}

// NewRouter はページ・APIのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Session → Logging → CSRF → RateLimit(General, /apiのみ)
//
// /health と /metrics はセッションの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.Get("/health", healthHandler(deps.HealthCheck))
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.ForgetDevice)
	pageHandler := NewPageHandler(deps.Shell, deps.Feasts)
	feastHandler := NewFeastHandler(deps.Feasts, deps.Cards)
	guestHandler := NewGuestHandler(deps.Shell, deps.GuestAPI, deps.Cards, deps.GuestConfig)
	quizHandler := NewQuizHandler(deps.QuizService)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionConfig, deps.SessionBuilder))
		r.Use(middleware.NewLoggingMiddleware(logger))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// ログイン・ログアウト
		r.Get("/login", authHandler.LoginPage)
		r.Get("/auth/kakao/login", authHandler.KakaoLogin)
		r.Get("/auth/kakao/callback", authHandler.Callback)
		r.Post("/auth/logout", authHandler.Logout)

		// ユーザー単位のページ
		r.Get("/u", pageHandler.Root)
		r.Get("/u/{userId}/{page}", pageHandler.Page)

		r.Route("/api", func(r chi.Router) {
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))
			r.Get("/session", authHandler.SessionStatus)
			r.Get("/me", authHandler.Me)
			r.Put("/me/nickname", authHandler.UpdateNickname)

			r.Post("/onboarding/welcome", pageHandler.AcknowledgeWelcome)
			r.Post("/onboarding/quiz-prompt", pageHandler.AcknowledgeQuizPrompt)

			r.Route("/feast", func(r chi.Router) {
				r.Get("/", feastHandler.Get)
				r.Delete("/", feastHandler.Delete)
				r.Post("/ensure", feastHandler.Ensure)
				r.Post("/reload", feastHandler.Reload)
				r.Get("/period", feastHandler.Period)
				r.Put("/visibility", feastHandler.SetVisibility)
				r.Get("/cards", feastHandler.Cards)
				r.Post("/cards/refetch", feastHandler.RefetchCards)
			})

			r.Route("/quiz", func(r chi.Router) {
				r.Post("/", quizHandler.Create)
				r.Get("/", quizHandler.Get)
				r.Get("/ranking", quizHandler.Ranking)
				r.Delete("/questions/{questionId}", quizHandler.DeleteQuestion)
				r.Get("/{quizId}", quizHandler.Get)
				r.Get("/{quizId}/ranking", quizHandler.Ranking)
			})

			r.Route("/guest", func(r chi.Router) {
				r.Post("/session", guestHandler.StartSession)
				r.Get("/ready", guestHandler.Ready)
				r.Get("/feast", guestHandler.Feast)
				r.Get("/images", guestHandler.Images)
				r.Get("/cards", guestHandler.Cards)
				// カード投稿はタブ単位の制限を追加
				r.With(deps.RateLimiter.CardSubmitMiddleware()).Post("/cards", guestHandler.SubmitCard)

				r.Get("/quiz/{quizId}", quizHandler.GuestGet)
				r.Post("/quiz/{quizId}/answers", quizHandler.Submit)
				r.Get("/quiz/{quizId}/ranking", quizHandler.GuestRanking)
			})
		})
	})

	return r
}

// healthHandler はヘルスチェックのハンドラーを返す。checkがnilなら常に200を返す。
func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				slog.Warn("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
