package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Backend（생일한상 REST API）
	BackendBaseURL      string        `env:"BACKEND_BASE_URL,required"`
	BackendTimeout      time.Duration `env:"BACKEND_TIMEOUT" envDefault:"10s"`
	RefreshCookieName   string        `env:"BACKEND_REFRESH_COOKIE" envDefault:"refreshToken"`
	PrefetchTimeout     time.Duration `env:"PREFETCH_TIMEOUT" envDefault:"15s"`
	ResolverIdleTimeout time.Duration `env:"RESOLVER_IDLE_TIMEOUT" envDefault:"30m"`

	// Kakao
	KakaoClientID    string `env:"KAKAO_CLIENT_ID,required"`
	KakaoRedirectURL string `env:"KAKAO_REDIRECT_URL,required"`

	// Token cache（未設定の場合はプロセス内キャッシュ）
	RedisURL string `env:"REDIS_URL"`

	// Session
	DeviceMaxAge int           `env:"DEVICE_MAX_AGE" envDefault:"31536000"`
	TokenCacheTTL time.Duration `env:"TOKEN_CACHE_TTL" envDefault:"1h"`

	// Onboarding
	TimeZone          string        `env:"TIME_ZONE" envDefault:"Asia/Seoul"`
	GuestPollInterval time.Duration `env:"GUEST_POLL_INTERVAL" envDefault:"500ms"`
	GuestWaitMax      time.Duration `env:"GUEST_WAIT_MAX" envDefault:"25s"`

	// Image check
	ImageCheckTimeout time.Duration `env:"IMAGE_CHECK_TIMEOUT" envDefault:"5s"`

	// Rate Limit（req/min）
	RateLimitGeneral    int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitCardSubmit int `env:"RATE_LIMIT_CARD_SUBMIT" envDefault:"10"`

	// Cleanup
	StateRetentionDays int `env:"STATE_RETENTION_DAYS" envDefault:"400"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL,required"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.GuestPollInterval <= 0 {
		return nil, fmt.Errorf("GUEST_POLL_INTERVAL must be positive: %s", cfg.GuestPollInterval)
	}

	cfg.BackendBaseURL = strings.TrimRight(cfg.BackendBaseURL, "/")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	return cfg, nil
}

// Location は設定されたタイムゾーンを返す。
// 読み込みに失敗した場合はKST(UTC+9)の固定ゾーンを返す。
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}
