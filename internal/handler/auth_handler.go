package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/hansang/internal/auth"
	"github.com/hitoshi/hansang/internal/bootstrap"
	"github.com/hitoshi/hansang/internal/mode"
	"github.com/hitoshi/hansang/internal/model"
	"github.com/hitoshi/hansang/internal/session"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, sc *session.Context, code string) (model.LoginResult, error)
	Logout(ctx context.Context, sc *session.Context) error
	Me(ctx context.Context, sc *session.Context) (model.HostUser, error)
	UpdateNickname(ctx context.Context, sc *session.Context, nickname string) (string, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain string
	CookieSecure bool
}

// AuthHandler はカカオログインとホストアカウントのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
	// forgetDevice はホストが変わったときにデバイス単位のメモリ上の状態を捨てる
	forgetDevice func(deviceID string)
	newState     func() (string, error)
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, forgetDevice func(deviceID string)) *AuthHandler {
	if forgetDevice == nil {
		forgetDevice = func(string) {}
	}
	return &AuthHandler{
		service:      service,
		config:       config,
		forgetDevice: forgetDevice,
		newState:     auth.GenerateState,
	}
}

// loginPage はログインページのブートストラップ。
type loginPage struct {
	LoginURL string `json:"loginUrl"`
	Error    string `json:"error,omitempty"`
}

// LoginPage はログインページを返す。ログイン済みなら自分のメインへ移動させる。
// GET /login
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	errCode := r.URL.Query().Get("error")
	if id := sc.Host.HostUserID(r.Context()); id != "" && errCode == "" {
		http.Redirect(w, r, bootstrap.HostMainPath(id), http.StatusTemporaryRedirect)
		return
	}

	writeJSON(w, http.StatusOK, loginPage{LoginURL: "/auth/kakao/login", Error: errCode})
}

// KakaoLogin はカカオの認可フローを開始する。
// GET /auth/kakao/login
func (h *AuthHandler) KakaoLogin(w http.ResponseWriter, r *http.Request) {
	state, err := h.newState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		http.Redirect(w, r, loginErrorPath("login_failed"), http.StatusTemporaryRedirect)
		return
	}

	h.setStateCookie(w, state, 600)
	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はカカオの認可コールバックを処理する。
// GET /auth/kakao/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("device_id", sc.DeviceID))
		http.Redirect(w, r, loginErrorPath("invalid_state"), http.StatusTemporaryRedirect)
		return
	}
	h.setStateCookie(w, "", -1)

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Redirect(w, r, loginErrorPath("missing_code"), http.StatusTemporaryRedirect)
		return
	}

	res, err := h.service.HandleCallback(r.Context(), sc, code)
	if err != nil {
		slog.Error("kakao callback failed", slog.String("error", err.Error()))
		http.Redirect(w, r, loginErrorPath("login_failed"), http.StatusTemporaryRedirect)
		return
	}

	h.forgetDevice(sc.DeviceID)
	http.Redirect(w, r, bootstrap.HostMainPath(res.UserID.String()), http.StatusTemporaryRedirect)
}

// Logout はホストの認証情報を破棄してログインページへ移動させる。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	if err := h.service.Logout(r.Context(), sc); err != nil {
		slog.Error("failed to logout", slog.String("error", err.Error()))
	}
	h.forgetDevice(sc.DeviceID)

	http.Redirect(w, r, bootstrap.LoginPath, http.StatusSeeOther)
}

// Me は現在のホスト情報を返す。
// GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	user, err := h.service.Me(r.Context(), sc)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type nicknameRequest struct {
	Nickname string `json:"nickname"`
}

// UpdateNickname はホストのニックネームを変更する。
// PUT /api/me/nickname
func (h *AuthHandler) UpdateNickname(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	var req nicknameRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	nickname, err := h.service.UpdateNickname(r.Context(), sc, req.Nickname)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nicknameRequest{Nickname: nickname})
}

// sessionStatus はデバイスとタブのセッション状態。
type sessionStatus struct {
	LoggedIn       bool        `json:"loggedIn"`
	HostUserID     string      `json:"hostUserId,omitempty"`
	TokenExpiresAt *time.Time  `json:"tokenExpiresAt,omitempty"`
	Guest          guestStatus `json:"guest"`
	Mount          *mode.State `json:"mount,omitempty"`
}

type guestStatus struct {
	Ready    bool   `json:"ready"`
	Nickname string `json:"nickname,omitempty"`
}

// SessionStatus はセッション状態を返す。
// トークンの有効期限は署名を検証せずに読み取った表示用の値。
// GET /api/session
func (h *AuthHandler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	status := sessionStatus{HostUserID: sc.Host.HostUserID(ctx)}
	if token, err := sc.Host.Get(ctx); err == nil && token != "" {
		status.LoggedIn = status.HostUserID != ""
		if info, err := session.InspectToken(token); err == nil && !info.ExpiresAt.IsZero() {
			exp := info.ExpiresAt
			status.TokenExpiresAt = &exp
		}
	}

	if snap, err := sc.Guest.Snapshot(ctx); err == nil {
		status.Guest = guestStatus{Ready: snap.Ready(), Nickname: snap.Nickname}
	}
	if st, ok := mode.NewProvider(sc.Tab).State(ctx); ok {
		status.Mount = &st
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *AuthHandler) setStateCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func loginErrorPath(reason string) string {
	return bootstrap.LoginPath + "?error=" + url.QueryEscape(reason)
}
