// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/hitoshi/hansang/internal/session"
)

const (
	// DeviceCookieName はデバイスIDを保持する永続Cookieの名前。
	DeviceCookieName = "device_id"
	// TabCookieName はタブセッションIDを保持するセッションCookieの名前。
	TabCookieName = "tab_id"
	// TabHeaderName はページ側がタブごとに持つIDを送るためのヘッダー。
	// 有効なUUIDであればCookieより優先する。
	TabHeaderName = "X-Tab-Id"
)

// SessionBuilder はデバイスIDとタブIDからセッションコンテキストを組み立てる。
type SessionBuilder func(deviceID, tabID string) *session.Context

// SessionConfig はセッションミドルウェアの設定。
type SessionConfig struct {
	DeviceMaxAge int // デバイスCookieの有効期間（秒）
	CookieSecure bool
	CookieDomain string
}

// NewSessionMiddleware はデバイスCookieとタブCookieを読み取り、
// なければ発行してセッションコンテキストをリクエストコンテキストに注入する。
// 未ログインでも拒否はしない。ホスト・ゲストの判定は後段で行う。
func NewSessionMiddleware(config SessionConfig, build SessionBuilder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID, ok := validID(cookieValue(r, DeviceCookieName))
			if !ok {
				deviceID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     DeviceCookieName,
					Value:    deviceID,
					Path:     "/",
					Domain:   config.CookieDomain,
					MaxAge:   config.DeviceMaxAge,
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			tabID, ok := validID(r.Header.Get(TabHeaderName))
			if !ok {
				tabID, ok = validID(cookieValue(r, TabCookieName))
			}
			if !ok {
				tabID = uuid.NewString()
				// MaxAgeなし: ブラウザを閉じると消える
				http.SetCookie(w, &http.Cookie{
					Name:     TabCookieName,
					Value:    tabID,
					Path:     "/",
					Domain:   config.CookieDomain,
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			sc := build(deviceID, tabID)
			next.ServeHTTP(w, r.WithContext(session.WithContext(r.Context(), sc)))
		})
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// validID はUUIDとして解釈できる値だけを受け付け、正規化した文字列を返す。
func validID(v string) (string, bool) {
	if v == "" {
		return "", false
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return "", false
	}
	return id.String(), true
}
