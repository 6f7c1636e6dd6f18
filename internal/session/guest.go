package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/hansang/internal/clientstate"
	"github.com/hitoshi/hansang/internal/model"
)

// GuestStore はタブセッションに紐づくゲストのトークンとニックネームを保持する。
type GuestStore struct {
	storage clientstate.Storage
}

// GuestSnapshot はゲストセッションの現在値。
type GuestSnapshot struct {
	AccessToken  string
	RefreshToken string
	Nickname     string
}

// Ready はアクセストークンと空でないニックネームが揃っているかを返す。
func (g GuestSnapshot) Ready() bool {
	return g.AccessToken != "" && strings.TrimSpace(g.Nickname) != ""
}

// NewGuestStore はGuestStoreを生成する。
func NewGuestStore(storage clientstate.Storage) *GuestStore {
	return &GuestStore{storage: storage}
}

// AccessToken はゲストのアクセストークンを返す。
func (g *GuestStore) AccessToken(ctx context.Context) (string, error) {
	v, _, err := g.storage.Get(ctx, clientstate.KeyGuestAccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to read guest token: %w", err)
	}
	return v, nil
}

// Snapshot は保存されている値をまとめて返す。
func (g *GuestStore) Snapshot(ctx context.Context) (GuestSnapshot, error) {
	var snap GuestSnapshot
	var err error
	if snap.AccessToken, _, err = g.storage.Get(ctx, clientstate.KeyGuestAccessToken); err != nil {
		return GuestSnapshot{}, fmt.Errorf("failed to read guest token: %w", err)
	}
	if snap.RefreshToken, _, err = g.storage.Get(ctx, clientstate.KeyGuestRefreshToken); err != nil {
		return GuestSnapshot{}, fmt.Errorf("failed to read guest refresh token: %w", err)
	}
	if snap.Nickname, _, err = g.storage.Get(ctx, clientstate.KeyGuestNickname); err != nil {
		return GuestSnapshot{}, fmt.Errorf("failed to read guest nickname: %w", err)
	}
	return snap, nil
}

// Ready はゲストがオンボーディングを完了しているかを返す。
// 読み取りに失敗した場合は未完了として扱う。
func (g *GuestStore) Ready(ctx context.Context) bool {
	snap, err := g.Snapshot(ctx)
	if err != nil {
		return false
	}
	return snap.Ready()
}

// Save はゲスト認証の結果とニックネームを保存する。
func (g *GuestStore) Save(ctx context.Context, tokens model.GuestTokens, nickname string) error {
	if err := g.storage.Set(ctx, clientstate.KeyGuestAccessToken, tokens.AccessToken); err != nil {
		return fmt.Errorf("failed to save guest token: %w", err)
	}
	if err := g.storage.Set(ctx, clientstate.KeyGuestRefreshToken, tokens.RefreshToken); err != nil {
		return fmt.Errorf("failed to save guest refresh token: %w", err)
	}
	if err := g.storage.Set(ctx, clientstate.KeyGuestNickname, nickname); err != nil {
		return fmt.Errorf("failed to save guest nickname: %w", err)
	}
	return nil
}

// Clear はゲストセッションを削除する。
func (g *GuestStore) Clear(ctx context.Context) error {
	for _, key := range []string{
		clientstate.KeyGuestAccessToken,
		clientstate.KeyGuestRefreshToken,
		clientstate.KeyGuestNickname,
	} {
		if err := g.storage.Remove(ctx, key); err != nil {
			return fmt.Errorf("failed to clear guest session: %w", err)
		}
	}
	return nil
}
