// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/hansang/internal/bootstrap"
	"github.com/hitoshi/hansang/internal/feast"
	"github.com/hitoshi/hansang/internal/feastapi"
	"github.com/hitoshi/hansang/internal/middleware"
	"github.com/hitoshi/hansang/internal/model"
	"github.com/hitoshi/hansang/internal/session"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをvに読み込む。失敗時は400を書き込んでfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, invalidRequestError("요청 본문을 읽을 수 없습니다."))
		return false
	}
	return true
}

func invalidRequestError(message string) *model.APIError {
	return &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  message,
		Category: "validation",
		Action:   "요청 내용을 확인해 주세요.",
	}
}

// sessionFrom はリクエストのセッションコンテキストを返す。
// SessionMiddlewareを通っていなければ500を書き込んでfalseを返す。
func sessionFrom(w http.ResponseWriter, r *http.Request) (*session.Context, bool) {
	sc, ok := session.FromContext(r.Context())
	if !ok {
		slog.Error("session context missing", slog.String("path", r.URL.Path))
		middleware.WriteInternalServerError(w)
		return nil, false
	}
	return sc, true
}

// handleServiceError はサービス層から返されたエラーを統一フォーマットのレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	apiErr, status := toAPIError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", slog.String("error", err.Error()))
	}
	middleware.WriteErrorResponse(w, status, apiErr)
}

// toAPIError はエラーをAPIErrorとHTTPステータスに変換する。
func toAPIError(err error) (*model.APIError, int) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr, mapAPIErrorToHTTPStatus(apiErr)
	}

	var statusErr *feastapi.StatusError
	switch {
	case errors.Is(err, feastapi.ErrSessionExpired):
		return model.NewSessionExpiredError(), http.StatusUnauthorized
	case errors.Is(err, feastapi.ErrGuestSessionExpired):
		return model.NewGuestSessionExpiredError(), http.StatusUnauthorized
	case errors.Is(err, feast.ErrNoFeast):
		return model.NewFeastNotFoundError(), http.StatusNotFound
	case errors.Is(err, feastapi.ErrNotFound):
		return model.NewNotFoundError(), http.StatusNotFound
	case errors.Is(err, bootstrap.ErrMissingCode):
		return invalidRequestError("초대 코드가 필요합니다."), http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return model.NewBackendUnavailableError(), http.StatusGatewayTimeout
	case errors.As(err, &statusErr):
		if statusErr.Status == http.StatusForbidden {
			return model.NewNotOwnerError(), http.StatusForbidden
		}
		return model.NewBackendUnavailableError(), http.StatusBadGateway
	}

	return &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "일시적인 오류가 발생했습니다.",
		Category: "system",
		Action:   "잠시 후 다시 시도해 주세요.",
	}, http.StatusInternalServerError
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeNotLoggedIn, model.ErrCodeSessionExpired, model.ErrCodeGuestSessionExpired:
		return http.StatusUnauthorized
	case model.ErrCodeGuestNotReady, model.ErrCodeNotOwner:
		return http.StatusForbidden
	case model.ErrCodeInvalidNickname, model.ErrCodeInvalidMessage, model.ErrCodeInvalidImage,
		model.ErrCodeInvalidQuiz, "INVALID_REQUEST":
		return http.StatusBadRequest
	case model.ErrCodeFeastNotFound, model.ErrCodeQuizNotFound, model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeBackendUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
