// Package security はゲスト入力の無害化と外部URLの安全性検証を提供する。
//
// TextSanitizer はゲストが送るメッセージやニックネームからHTMLを取り除く。
// bluemondayのStrictPolicyで全タグを除去し、プレーンテキストとして扱う。
package security

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	// MaxNicknameLength はニックネームの最大文字数。
	MaxNicknameLength = 10
	// MaxMessageLength はカードメッセージの最大文字数。
	MaxMessageLength = 200
)

var (
	// ErrEmptyText は無害化後に空になったことを示す。
	ErrEmptyText = errors.New("text is empty")
	// ErrTextTooLong は最大文字数を超えたことを示す。
	ErrTextTooLong = errors.New("text is too long")
)

// TextSanitizerService はゲスト入力テキストの無害化のインターフェース。
type TextSanitizerService interface {
	// Clean はHTMLタグを除去し、前後の空白を落としたプレーンテキストを返す。
	Clean(raw string) string
	// Nickname はClean後のニックネームを検証して返す。
	Nickname(raw string) (string, error)
	// Message はClean後のカードメッセージを検証して返す。
	Message(raw string) (string, error)
}

// textSanitizer はTextSanitizerServiceの実装。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean はHTMLタグを除去する。
// StrictPolicyはエスケープ済みの文字列を返すため、表示用のテキストに戻す。
func (s *textSanitizer) Clean(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

// Nickname は1〜MaxNicknameLength文字のニックネームを返す。
func (s *textSanitizer) Nickname(raw string) (string, error) {
	return s.bounded(raw, MaxNicknameLength)
}

// Message は1〜MaxMessageLength文字のメッセージを返す。
func (s *textSanitizer) Message(raw string) (string, error) {
	return s.bounded(raw, MaxMessageLength)
}

func (s *textSanitizer) bounded(raw string, max int) (string, error) {
	cleaned := s.Clean(raw)
	if cleaned == "" {
		return "", ErrEmptyText
	}
	if n := utf8.RuneCountInString(cleaned); n > max {
		return "", fmt.Errorf("%w: %d > %d", ErrTextTooLong, n, max)
	}
	return cleaned, nil
}
