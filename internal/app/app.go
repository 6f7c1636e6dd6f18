package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/hansang/internal/auth"
	"github.com/hitoshi/hansang/internal/bootstrap"
	"github.com/hitoshi/hansang/internal/card"
	"github.com/hitoshi/hansang/internal/clientstate"
	"github.com/hitoshi/hansang/internal/config"
	"github.com/hitoshi/hansang/internal/database"
	"github.com/hitoshi/hansang/internal/feast"
	"github.com/hitoshi/hansang/internal/feastapi"
	"github.com/hitoshi/hansang/internal/handler"
	"github.com/hitoshi/hansang/internal/logger"
	"github.com/hitoshi/hansang/internal/metrics"
	"github.com/hitoshi/hansang/internal/middleware"
	"github.com/hitoshi/hansang/internal/model"
	"github.com/hitoshi/hansang/internal/quiz"
	"github.com/hitoshi/hansang/internal/repository"
	"github.com/hitoshi/hansang/internal/security"
	"github.com/hitoshi/hansang/internal/session"
	"github.com/hitoshi/hansang/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// cleanupInterval はクライアント状態のクリーンアップ間隔。
const cleanupInterval = 24 * time.Hour

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	if w == nil {
		w = os.Stdout
	}

	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_LEVELを反映する
	slog.SetDefault(logger.SetupWithLevel(w, logger.ParseLevel(cfg.LogLevel)))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// StorageFactory はオーナーID（デバイスIDまたはタブID）に束縛されたStorageを返す。
type StorageFactory func(ownerID string) clientstate.Storage

// RepositoryStorage はclient_stateリポジトリに保存するStorageFactoryを返す。
func RepositoryStorage(repo repository.ClientStateRepository) StorageFactory {
	return func(ownerID string) clientstate.Storage {
		return clientstate.NewScoped(ownerID, repo)
	}
}

// Infra はserveモードが外部に依存する部分。
type Infra struct {
	Storage     StorageFactory
	TokenCache  session.TokenCache
	Registry    *prometheus.Registry
	HealthCheck func(ctx context.Context) error
	// HTTPClient はバックエンド呼び出しに使う。nilならBackendTimeoutのクライアントを作る
	HTTPClient *http.Client
}

// Services はserveモードで組み立てた依存関係。
type Services struct {
	Router  http.Handler
	Feasts  *feast.Registry
	Cards   *card.Aggregator
	Shell   *bootstrap.Shell
	Limiter *middleware.RateLimiter
}

// NewServices は設定とインフラから全ドメインサービスとルーターを組み立てる。
func NewServices(cfg *config.Config, infra Infra) *Services {
	log := slog.Default()

	// 1. メトリクスとバックエンドクライアント
	collector := metrics.NewCollector(infra.Registry)
	httpClient := infra.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.BackendTimeout}
	}
	client := feastapi.NewClient(httpClient, cfg.BackendBaseURL, cfg.RefreshCookieName, log, collector)

	// 2. セキュリティサービス
	sanitizer := security.NewTextSanitizer()
	images := security.NewImageGuard(security.NewSSRFGuard(), cfg.ImageCheckTimeout)

	// 3. 생일한상の解決（デバイス単位）
	feasts := feast.NewRegistry(func(ctx context.Context, sc *session.Context) *feast.Resolver {
		return feast.NewResolver(ctx, client.Host(sc.Host), sc.Device, log, collector)
	}, cfg.ResolverIdleTimeout, log)

	// 4. カード一覧
	hostCards := func(ctx context.Context, sc *session.Context) ([]model.Card, error) {
		f, err := feasts.For(ctx, sc).Reload(ctx)
		if errors.Is(err, feast.ErrNoFeast) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return f.Cards, nil
	}
	cards := card.NewAggregator(hostCards, func(sc *session.Context) card.GuestBackend {
		return client.Guest(sc.Guest)
	}, sanitizer, images, log, collector)

	// 5. クイズ、認証、ブートストラップ
	quizService := quiz.NewService(
		func(sc *session.Context) quiz.HostBackend { return client.Host(sc.Host) },
		func(sc *session.Context) quiz.GuestBackend { return client.Guest(sc.Guest) },
		sanitizer, log, collector,
	)

	authService := auth.NewService(
		auth.NewKakaoProvider(auth.KakaoConfig{
			ClientID:    cfg.KakaoClientID,
			RedirectURL: cfg.KakaoRedirectURL,
		}),
		client.Public(),
		func(sc *session.Context) auth.HostBackend { return client.Host(sc.Host) },
		sanitizer,
	)

	shell := bootstrap.NewShell(func(ctx context.Context, sc *session.Context) {
		feasts.For(ctx, sc).PreloadThisYearQuietly(ctx)
	}, client.Public(), sanitizer, bootstrap.Config{
		PrefetchTimeout: cfg.PrefetchTimeout,
		Location:        cfg.Location(),
	}, log, collector)

	// 6. ルーター
	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitCardSubmit))

	forgetDevice := func(deviceID string) {
		feasts.Evict(deviceID)
		cards.Forget(deviceID)
	}

	router := handler.NewRouter(&handler.RouterDeps{
		SessionConfig: middleware.SessionConfig{
			DeviceMaxAge: cfg.DeviceMaxAge,
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		SessionBuilder: func(deviceID, tabID string) *session.Context {
			return session.NewContext(deviceID, tabID,
				infra.Storage(deviceID), infra.Storage(tabID),
				infra.TokenCache, cfg.TokenCacheTTL)
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: limiter,
		Logger:      log,

		MetricsGatherer: infra.Registry,
		HealthCheck:     infra.HealthCheck,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},
		ForgetDevice: forgetDevice,

		Shell: shell,
		Feasts: func(ctx context.Context, sc *session.Context) handler.FeastResolver {
			return feasts.For(ctx, sc)
		},
		Cards: cards,

		GuestAPI: func(sc *session.Context) handler.GuestFeastBackend {
			return client.Guest(sc.Guest)
		},
		GuestConfig: handler.GuestHandlerConfig{
			PollInterval: cfg.GuestPollInterval,
			WaitMax:      cfg.GuestWaitMax,
		},

		QuizService: quizService,
	})

	return &Services{
		Router:  router,
		Feasts:  feasts,
		Cards:   cards,
		Shell:   shell,
		Limiter: limiter,
	}
}

// Start はResolverとカードソースのアイドル破棄をctxが終了するまで実行する。
func (s *Services) Start(ctx context.Context, idle time.Duration) {
	go s.Feasts.Run(ctx)

	interval := idle / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Cards.Sweep(idle); n > 0 {
				slog.Debug("アイドル状態のカードソースを破棄しました", slog.Int("count", n))
			}
		}
	}
}

// Close はバックグラウンド処理を止め、実行中のプリフェッチの終了を待つ。
func (s *Services) Close() {
	s.Limiter.Stop()
	s.Feasts.Close()
	s.Shell.Wait()
}

// newTokenCache はREDIS_URLが設定されていればRedis、なければプロセス内のキャッシュを返す。
func newTokenCache(ctx context.Context, cfg *config.Config) (session.TokenCache, func(), error) {
	if cfg.RedisURL == "" {
		slog.Info("using in-process token cache")
		return session.NewMemoryTokenCache(), func() {}, nil
	}

	cache, err := session.NewRedisTokenCache(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to configure redis: %w", err)
	}
	if err := cache.Ping(ctx); err != nil {
		cache.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Info("redis token cache connection established")
	return cache, func() { cache.Close() }, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. トークンキャッシュ
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache, closeCache, err := newTokenCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	// 3. 依存関係の組み立て
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := NewServices(cfg, Infra{
		Storage:     RepositoryStorage(repository.NewPostgresClientStateRepo(db)),
		TokenCache:  cache,
		Registry:    reg,
		HealthCheck: db.PingContext,
	})
	go svc.Start(ctx, cfg.ResolverIdleTimeout)

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     svc.Router,
		ReadTimeout: 15 * time.Second,
		// ゲストの準備完了ロングポーリングより長くする
		WriteTimeout: cfg.GuestWaitMax + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	cancel()
	svc.Close()

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、client_stateのクリーンアップジョブを日次で実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(
		repository.NewPostgresClientStateRepo(db),
		slog.Default(),
		cfg.StateRetentionDays,
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cleanupInterval),
		slog.Int("retention_days", cfg.StateRetentionDays),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	v, err := database.RunMigrations(cfg.DatabaseURL, slog.Default())
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("from_version", uint64(v.Before)),
		slog.Uint64("to_version", uint64(v.After)),
		slog.Bool("changed", v.Changed()),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
