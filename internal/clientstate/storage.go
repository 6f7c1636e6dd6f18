// Package clientstate はブラウザごとの永続状態（localStorage / sessionStorage 相当）を提供する。
//
// デバイスCookieに紐づくストレージはタブやプロセスの再起動をまたいで残り、
// タブセッションCookieに紐づくストレージはタブを閉じると参照されなくなる。
// どちらも同じ client_state テーブルに owner_id 単位で保存される。
package clientstate

import (
	"context"
	"sync"

	"github.com/hitoshi/hansang/internal/repository"
)

// Prefix は全キー共通の名前空間。
const Prefix = "hansang:"

// 永続化キー
const (
	KeyAccessToken       = Prefix + "accessToken"
	KeyHostUserID        = Prefix + "hostUserId"
	KeyHostRefreshCookie = Prefix + "hostRefreshCookie"
	KeyLastFeastID       = Prefix + "lastFeastId"
	KeyLastFeastCode     = Prefix + "lastFeastCode"
	KeyLastQuizID        = Prefix + "lastQuizId"
	KeyGuestAccessToken  = Prefix + "guestAccessToken"
	KeyGuestRefreshToken = Prefix + "guestRefreshToken"
	KeyGuestNickname     = Prefix + "guestNickname"
	KeyGuestMount        = Prefix + "guestMount"
	KeyWelcomeSeenDate   = Prefix + "welcomeSeenDate"
	KeyQuizPromptSeen    = Prefix + "quizPromptSeen"

	// KeyQuizResultPrefix にクイズIDを付けたキーへ、タブで提出済みの結果を保存する
	KeyQuizResultPrefix = Prefix + "quizResult:"
)

// Storage はキー・バリュー形式のクライアント状態ストレージ。
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Scoped はリポジトリに保存する、オーナーIDに束縛されたStorage。
type Scoped struct {
	ownerID string
	repo    repository.ClientStateRepository
}

// NewScoped はScopedを生成する。
func NewScoped(ownerID string, repo repository.ClientStateRepository) *Scoped {
	return &Scoped{ownerID: ownerID, repo: repo}
}

// OwnerID は束縛されたオーナーIDを返す。
func (s *Scoped) OwnerID() string { return s.ownerID }

// Get は値を取得する。
func (s *Scoped) Get(ctx context.Context, key string) (string, bool, error) {
	return s.repo.Get(ctx, s.ownerID, key)
}

// Set は値を保存する。空文字列は削除として扱う。
func (s *Scoped) Set(ctx context.Context, key, value string) error {
	if value == "" {
		return s.repo.Delete(ctx, s.ownerID, key)
	}
	return s.repo.Set(ctx, s.ownerID, key, value)
}

// Remove は値を削除する。
func (s *Scoped) Remove(ctx context.Context, key string) error {
	return s.repo.Delete(ctx, s.ownerID, key)
}

// Memory はプロセス内のmapで保持するStorage。
// テストおよびDBなしの動作確認に使用する。
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory は空のMemoryを生成する。
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Get は値を取得する。
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set は値を保存する。空文字列は削除として扱う。
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value == "" {
		delete(m.values, key)
		return nil
	}
	m.values[key] = value
	return nil
}

// Remove は値を削除する。
func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Len は保持しているキー数を返す。テスト用。
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

// GetString は値を取得し、存在しない場合やエラーの場合は空文字列を返す。
// 読み取り失敗を「未保存」として扱ってよい箇所（キャッシュ優先の初期表示など）で使う。
func GetString(ctx context.Context, s Storage, key string) string {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return ""
	}
	return v
}

var (
	_ Storage = (*Scoped)(nil)
	_ Storage = (*Memory)(nil)
)
