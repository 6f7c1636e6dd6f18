// Package auth はホストのカカオログイン、ログアウト、アカウント操作を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/hansang/internal/clientstate"
	"github.com/hitoshi/hansang/internal/model"
	"github.com/hitoshi/hansang/internal/security"
	"github.com/hitoshi/hansang/internal/session"
)

// LoginURLProvider は認可URLを生成するプロバイダーのインターフェース。
type LoginURLProvider interface {
	GetLoginURL(state string) string
}

// LoginBackend は認可コードをホストトークンに交換する。*feastapi.PublicAPI が実装する。
type LoginBackend interface {
	KakaoLogin(ctx context.Context, code string) (model.LoginResult, string, error)
}

// HostBackend はログイン後のホスト操作。*feastapi.HostAPI が実装する。
type HostBackend interface {
	Logout(ctx context.Context) error
	Me(ctx context.Context) (model.HostUser, error)
	UpdateNickname(ctx context.Context, nickname string) error
}

// deviceCacheKeys はホストが変わったときやログアウト時に消すデバイスキャッシュ。
var deviceCacheKeys = []string{
	clientstate.KeyLastFeastID,
	clientstate.KeyLastFeastCode,
	clientstate.KeyLastQuizID,
	clientstate.KeyWelcomeSeenDate,
	clientstate.KeyQuizPromptSeen,
}

// Service はホスト認証に関するビジネスロジックを提供する。
type Service struct {
	provider  LoginURLProvider
	login     LoginBackend
	hostAPI   func(sc *session.Context) HostBackend
	sanitizer security.TextSanitizerService
}

// NewService はServiceを生成する。
func NewService(
	provider LoginURLProvider,
	login LoginBackend,
	hostAPI func(sc *session.Context) HostBackend,
	sanitizer security.TextSanitizerService,
) *Service {
	return &Service{
		provider:  provider,
		login:     login,
		hostAPI:   hostAPI,
		sanitizer: sanitizer,
	}
}

// GetLoginURL は認可URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.provider.GetLoginURL(state)
}

// HandleCallback は認可コードをバックエンドでトークンに交換し、デバイスに保存する。
// 前回と別のホストでログインした場合は前のホストのキャッシュを消す。
func (s *Service) HandleCallback(ctx context.Context, sc *session.Context, code string) (model.LoginResult, error) {
	if code == "" {
		return model.LoginResult{}, fmt.Errorf("authorization code is required")
	}

	res, refreshCookie, err := s.login.KakaoLogin(ctx, code)
	if err != nil {
		return model.LoginResult{}, fmt.Errorf("failed to exchange kakao code: %w", err)
	}
	if res.UserID == "" || res.AuthToken == "" {
		return model.LoginResult{}, errors.New("login response is missing user id or token")
	}

	if prev := sc.Host.HostUserID(ctx); prev != "" && prev != res.UserID.String() {
		clearDeviceCaches(ctx, sc)
	}

	if err := sc.Host.Set(ctx, res.AuthToken); err != nil {
		return model.LoginResult{}, fmt.Errorf("failed to store token: %w", err)
	}
	if err := sc.Host.SetHostUserID(ctx, res.UserID.String()); err != nil {
		return model.LoginResult{}, fmt.Errorf("failed to store host user id: %w", err)
	}
	if refreshCookie != "" {
		if err := sc.Host.SetRefreshCookie(ctx, refreshCookie); err != nil {
			return model.LoginResult{}, fmt.Errorf("failed to store refresh cookie: %w", err)
		}
	}

	slog.Info("host logged in",
		slog.String("user_id", res.UserID.String()),
		slog.String("device_id", sc.DeviceID),
	)
	return res, nil
}

// Logout はバックエンドのログアウトを試み、結果に関係なくデバイスの認証情報を消す。
func (s *Service) Logout(ctx context.Context, sc *session.Context) error {
	if token, _ := sc.Host.Get(ctx); token != "" {
		if err := s.hostAPI(sc).Logout(ctx); err != nil {
			slog.Warn("backend logout failed",
				slog.String("device_id", sc.DeviceID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := sc.Host.ClearIdentity(ctx); err != nil {
		return fmt.Errorf("failed to clear host identity: %w", err)
	}
	clearDeviceCaches(ctx, sc)

	slog.Info("host logged out", slog.String("device_id", sc.DeviceID))
	return nil
}

// Me はログイン中のホストを取得する。
func (s *Service) Me(ctx context.Context, sc *session.Context) (model.HostUser, error) {
	if sc.Host.HostUserID(ctx) == "" {
		return model.HostUser{}, model.NewNotLoggedInError()
	}
	return s.hostAPI(sc).Me(ctx)
}

// UpdateNickname はニックネームを検証してから変更する。
func (s *Service) UpdateNickname(ctx context.Context, sc *session.Context, nickname string) (string, error) {
	if sc.Host.HostUserID(ctx) == "" {
		return "", model.NewNotLoggedInError()
	}
	cleaned, err := s.sanitizer.Nickname(nickname)
	if err != nil {
		return "", model.NewInvalidNicknameError(err.Error())
	}
	if err := s.hostAPI(sc).UpdateNickname(ctx, cleaned); err != nil {
		return "", err
	}
	return cleaned, nil
}

// GenerateState はCSRF対策用のstateを生成する。
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func clearDeviceCaches(ctx context.Context, sc *session.Context) {
	for _, key := range deviceCacheKeys {
		if err := sc.Device.Remove(ctx, key); err != nil {
			slog.Warn("failed to clear device cache",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}
