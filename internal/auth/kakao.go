package auth

import (
	"net/url"
)

const defaultKakaoAuthURL = "https://kauth.kakao.com/oauth/authorize"

// KakaoConfig はカカオログインの設定。
type KakaoConfig struct {
	ClientID    string
	RedirectURL string

	// テスト用にオーバーライド可能なURL
	AuthURL string
}

// KakaoProvider はカカオの認可URLを組み立てる。
// 認可コードのトークン交換はバックエンドが行う。
type KakaoProvider struct {
	config KakaoConfig
}

// NewKakaoProvider はKakaoProviderを生成する。
func NewKakaoProvider(config KakaoConfig) *KakaoProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultKakaoAuthURL
	}
	return &KakaoProvider{config: config}
}

// GetLoginURL はカカオの認可URLを生成する。
func (p *KakaoProvider) GetLoginURL(state string) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"state":         {state},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// compile-time interface check
var _ LoginURLProvider = (*KakaoProvider)(nil)
