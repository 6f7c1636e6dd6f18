package feastapi

import (
	"context"
	"net/http"

	"github.com/hitoshi/hansang/internal/model"
)

// PublicAPI は認証不要のエンドポイント。
type PublicAPI struct {
	c *Client
}

// KakaoLogin はカカオ認可コードをホストのトークンに交換する。
// バックエンドがSet-Cookieで返したリフレッシュCookieの値も返す。
func (a *PublicAPI) KakaoLogin(ctx context.Context, code string) (model.LoginResult, string, error) {
	var out model.LoginResult
	resp, err := a.c.do(ctx, Anonymous(), call{
		op:     "auth.kakao_login",
		method: http.MethodPost,
		path:   "/api/auth-user/kakao-login",
		body:   map[string]string{"code": code},
		out:    &out,
	})
	if err != nil {
		return model.LoginResult{}, "", err
	}
	return out, resp.cookie(a.c.refreshCookieName), nil
}

// GuestAuth は招待コードとニックネームでゲストトークンを取得する。
func (a *PublicAPI) GuestAuth(ctx context.Context, code, nickname string) (model.GuestTokens, error) {
	var out model.GuestTokens
	_, err := a.c.do(ctx, Anonymous(), call{
		op:     "auth.guest",
		method: http.MethodPost,
		path:   "/api/auth-guest",
		body:   map[string]string{"code": code, "nickname": nickname},
		out:    &out,
	})
	return out, err
}
