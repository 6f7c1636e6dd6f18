package session

import (
	"context"
	"time"

	"github.com/hitoshi/hansang/internal/clientstate"
)

// Context はリクエスト単位のセッションコンテキスト。
// デバイス（localStorage相当）とタブ（sessionStorage相当）のストレージ、
// ホストトークンストア、ゲストセッションストアをまとめる。
type Context struct {
	DeviceID string
	TabID    string

	Device clientstate.Storage
	Tab    clientstate.Storage

	Host  *TokenStore
	Guest *GuestStore
}

// NewContext はContextを組み立てる。
func NewContext(deviceID, tabID string, device, tab clientstate.Storage, cache TokenCache, tokenTTL time.Duration) *Context {
	return &Context{
		DeviceID: deviceID,
		TabID:    tabID,
		Device:   device,
		Tab:      tab,
		Host:     NewTokenStore(deviceID, cache, device, tokenTTL),
		Guest:    NewGuestStore(tab),
	}
}

// NewMemoryContext はメモリストレージだけで構成したContextを返す。テスト用。
func NewMemoryContext(deviceID, tabID string) *Context {
	return NewContext(deviceID, tabID, clientstate.NewMemory(), clientstate.NewMemory(), NewMemoryTokenCache(), time.Hour)
}

type contextKey struct{}

// WithContext はセッションコンテキストをcontext.Contextに格納する。
func WithContext(ctx context.Context, sc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, sc)
}

// FromContext はcontext.Contextからセッションコンテキストを取り出す。
func FromContext(ctx context.Context) (*Context, bool) {
	sc, ok := ctx.Value(contextKey{}).(*Context)
	return sc, ok && sc != nil
}
