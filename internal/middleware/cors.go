package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// NewCORSMiddleware は指定されたオリジンに対するCORSミドルウェアを返す。
// credentials送信と共存するため、ワイルドカード(*)は使用しない。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{allowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", csrfHeaderName, TabHeaderName, NavigationHeaderName},
		AllowCredentials: true,
		MaxAge:           86400,
	})
}

// NavigationHeaderName はクライアント側のナビゲーションであることを示すヘッダー。
// 値が "client" のとき、同じマウント内の移動として扱う。
const NavigationHeaderName = "X-Navigation"
