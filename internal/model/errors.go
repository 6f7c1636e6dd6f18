package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, guest, validation, feast, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeNotLoggedIn         = "NOT_LOGGED_IN"
	ErrCodeSessionExpired      = "SESSION_EXPIRED"
	ErrCodeGuestSessionExpired = "GUEST_SESSION_EXPIRED"
	ErrCodeGuestNotReady       = "GUEST_NOT_READY"
	ErrCodeInvalidNickname     = "INVALID_NICKNAME"
	ErrCodeInvalidMessage      = "INVALID_MESSAGE"
	ErrCodeInvalidImage        = "INVALID_IMAGE"
	ErrCodeInvalidQuiz         = "INVALID_QUIZ"
	ErrCodeFeastNotFound       = "FEAST_NOT_FOUND"
	ErrCodeQuizNotFound        = "QUIZ_NOT_FOUND"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeNotOwner            = "NOT_OWNER"
	ErrCodeBackendUnavailable  = "BACKEND_UNAVAILABLE"
	ErrCodeRateLimited         = "RATE_LIMITED"
)

// NewNotLoggedInError はホスト未ログインエラーを生成する。
func NewNotLoggedInError() *APIError {
	return &APIError{
		Code:     ErrCodeNotLoggedIn,
		Message:  "로그인이 필요합니다.",
		Category: "auth",
		Action:   "카카오 계정으로 다시 로그인해 주세요.",
	}
}

// NewSessionExpiredError はトークン再発行に失敗した場合のエラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "로그인 세션이 만료되었습니다.",
		Category: "auth",
		Action:   "다시 로그인해 주세요.",
	}
}

// NewGuestSessionExpiredError はゲストトークンが失効した場合のエラーを生成する。
// ゲストセッションは再発行しないため、招待リンクから入り直してもらう。
func NewGuestSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeGuestSessionExpired,
		Message:  "게스트 세션이 만료되었습니다.",
		Category: "guest",
		Action:   "초대 링크로 다시 입장해 주세요.",
	}
}

// NewGuestNotReadyError はゲストのニックネーム登録が済んでいない場合のエラーを生成する。
func NewGuestNotReadyError() *APIError {
	return &APIError{
		Code:     ErrCodeGuestNotReady,
		Message:  "닉네임 등록이 필요합니다.",
		Category: "guest",
		Action:   "닉네임을 입력하고 입장해 주세요.",
	}
}

// NewInvalidNicknameError は無効なニックネームエラーを生成する。
func NewInvalidNicknameError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidNickname,
		Message:  fmt.Sprintf("사용할 수 없는 닉네임입니다: %s", reason),
		Category: "validation",
		Action:   "1~10자의 닉네임을 입력해 주세요.",
	}
}

// NewInvalidMessageError は無効なカードメッセージエラーを生成する。
func NewInvalidMessageError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMessage,
		Message:  fmt.Sprintf("메시지를 보낼 수 없습니다: %s", reason),
		Category: "validation",
		Action:   "메시지 내용을 확인해 주세요.",
	}
}

// NewInvalidImageError は無効なカード画像エラーを生成する。
func NewInvalidImageError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImage,
		Message:  fmt.Sprintf("이미지를 사용할 수 없습니다: %s", reason),
		Category: "validation",
		Action:   "제공된 이미지 중에서 선택해 주세요.",
	}
}

// NewInvalidQuizError は無効なクイズ作成・回答エラーを生成する。
func NewInvalidQuizError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQuiz,
		Message:  fmt.Sprintf("퀴즈 요청이 올바르지 않습니다: %s", reason),
		Category: "validation",
		Action:   "모든 문항에 O 또는 X로 답해 주세요.",
	}
}

// NewFeastNotFoundError は今年の誕生日テーブルが存在しない場合のエラーを生成する。
func NewFeastNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeFeastNotFound,
		Message:  "올해의 생일한상을 찾을 수 없습니다.",
		Category: "feast",
		Action:   "잠시 후 다시 시도해 주세요.",
	}
}

// NewQuizNotFoundError はクイズが見つからない場合のエラーを生成する。
func NewQuizNotFoundError(quizID string) *APIError {
	return &APIError{
		Code:     ErrCodeQuizNotFound,
		Message:  fmt.Sprintf("퀴즈를 찾을 수 없습니다: %s", quizID),
		Category: "feast",
		Action:   "퀴즈 링크를 확인해 주세요.",
	}
}

// NewNotFoundError はバックエンドが対象を見つけられなかった場合の汎用エラーを生成する。
func NewNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "요청한 항목을 찾을 수 없습니다.",
		Category: "system",
		Action:   "새로고침 후 다시 시도해 주세요.",
	}
}

// NewNotOwnerError はホスト本人以外がホスト専用操作を行った場合のエラーを生成する。
func NewNotOwnerError() *APIError {
	return &APIError{
		Code:     ErrCodeNotOwner,
		Message:  "본인의 생일한상만 관리할 수 있습니다.",
		Category: "auth",
		Action:   "내 생일한상으로 이동해 주세요.",
	}
}

// NewBackendUnavailableError はバックエンド呼び出しが失敗した場合のエラーを生成する。
func NewBackendUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeBackendUnavailable,
		Message:  "서버와 통신하지 못했습니다.",
		Category: "system",
		Action:   "잠시 후 다시 시도해 주세요.",
	}
}

// NewRateLimitedError はレート制限を超えた場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "요청이 너무 많습니다.",
		Category: "system",
		Action:   "잠시 후 다시 시도해 주세요.",
	}
}
