// Package session はホストトークンストアとゲストセッションストアを提供する。
//
// どちらもモジュールレベルのグローバル変数ではなく、リクエストごとに組み立てる
// Contextとして受け渡す。テストでは独立したインスタンスを差し込める。
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/hansang/internal/clientstate"
)

const tokenCachePrefix = clientstate.Prefix + "token:"

// TokenStore はホストのアクセストークンを保持する。
// メモリ層（TokenCache）を先に参照し、なければデバイスストレージを参照する。
type TokenStore struct {
	deviceID string
	cache    TokenCache
	storage  clientstate.Storage
	ttl      time.Duration
}

// NewTokenStore はTokenStoreを生成する。
func NewTokenStore(deviceID string, cache TokenCache, storage clientstate.Storage, ttl time.Duration) *TokenStore {
	return &TokenStore{
		deviceID: deviceID,
		cache:    cache,
		storage:  storage,
		ttl:      ttl,
	}
}

// DeviceID はストアが属するデバイスIDを返す。
func (s *TokenStore) DeviceID() string { return s.deviceID }

func (s *TokenStore) cacheKey() string { return tokenCachePrefix + s.deviceID }

// Get は現在のアクセストークンを返す。未保存の場合は空文字列。
// 読み取りのみで、どちらの層にも書き込まない。
func (s *TokenStore) Get(ctx context.Context) (string, error) {
	if v, ok, err := s.cache.Get(ctx, s.cacheKey()); err == nil && ok {
		return v, nil
	}

	v, ok, err := s.storage.Get(ctx, clientstate.KeyAccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to read access token: %w", err)
	}
	if !ok {
		return "", nil
	}
	return v, nil
}

// Set はメモリ層と永続層を同時に更新する。空文字列は両方をクリアする。
// 永続層の書き込みに失敗した場合はメモリ層に触れずにエラーを返す。
func (s *TokenStore) Set(ctx context.Context, token string) error {
	if err := s.storage.Set(ctx, clientstate.KeyAccessToken, token); err != nil {
		return fmt.Errorf("failed to persist access token: %w", err)
	}

	if token == "" {
		return s.cache.Delete(ctx, s.cacheKey())
	}
	if err := s.cache.Set(ctx, s.cacheKey(), token, s.ttl); err != nil {
		// 古い値を残さない。次のGetは永続層から読む。
		_ = s.cache.Delete(ctx, s.cacheKey())
	}
	return nil
}

// Clear はSet(ctx, "")と同じ。
func (s *TokenStore) Clear(ctx context.Context) error {
	return s.Set(ctx, "")
}

// HostUserID はログイン済みホストのユーザーIDを返す。未ログインなら空文字列。
func (s *TokenStore) HostUserID(ctx context.Context) string {
	return clientstate.GetString(ctx, s.storage, clientstate.KeyHostUserID)
}

// SetHostUserID はホストのユーザーIDを保存する。空文字列で削除。
func (s *TokenStore) SetHostUserID(ctx context.Context, userID string) error {
	return s.storage.Set(ctx, clientstate.KeyHostUserID, userID)
}

// RefreshCookie はバックエンドから受け取ったリフレッシュCookieの値を返す。
func (s *TokenStore) RefreshCookie(ctx context.Context) string {
	return clientstate.GetString(ctx, s.storage, clientstate.KeyHostRefreshCookie)
}

// SetRefreshCookie はリフレッシュCookieの値を保存する。空文字列で削除。
func (s *TokenStore) SetRefreshCookie(ctx context.Context, value string) error {
	return s.storage.Set(ctx, clientstate.KeyHostRefreshCookie, value)
}

// ClearIdentity はトークン、ユーザーID、リフレッシュCookieをまとめて削除する。
// ログアウトと再発行失敗時に使う。
func (s *TokenStore) ClearIdentity(ctx context.Context) error {
	if err := s.Clear(ctx); err != nil {
		return err
	}
	if err := s.SetHostUserID(ctx, ""); err != nil {
		return err
	}
	return s.SetRefreshCookie(ctx, "")
}
