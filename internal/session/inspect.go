package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo はJWTから読み取った表示用の情報。
type TokenInfo struct {
	Subject   string
	ExpiresAt time.Time
}

// Expired はnow時点で期限切れかを返す。期限のないトークンは期限切れにならない。
func (i TokenInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// InspectToken は署名を検証せずにJWTのsubとexpを読み取る。
// 署名鍵はバックエンドだけが持つため、結果は表示や早期案内にのみ使い、認可判断には使わない。
func InspectToken(token string) (TokenInfo, error) {
	if token == "" {
		return TokenInfo{}, fmt.Errorf("empty token")
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("failed to parse token: %w", err)
	}

	info := TokenInfo{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}
