package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/hansang/internal/bootstrap"
	"github.com/hitoshi/hansang/internal/card"
	"github.com/hitoshi/hansang/internal/feastapi"
	"github.com/hitoshi/hansang/internal/mode"
	"github.com/hitoshi/hansang/internal/model"
	"github.com/hitoshi/hansang/internal/session"
)

type mockGuestBackend struct {
	feastFn  func(ctx context.Context) (model.Feast, error)
	imagesFn func(ctx context.Context) ([]model.CardImage, error)
}

func (m *mockGuestBackend) Feast(ctx context.Context) (model.Feast, error) {
	if m.feastFn != nil {
		return m.feastFn(ctx)
	}
	return model.Feast{}, nil
}

func (m *mockGuestBackend) Images(ctx context.Context) ([]model.CardImage, error) {
	if m.imagesFn != nil {
		return m.imagesFn(ctx)
	}
	return nil, nil
}

func newTestGuestHandler(shell ShellInterface, backend GuestFeastBackend, cards CardServiceInterface) *GuestHandler {
	return NewGuestHandler(shell, func(*session.Context) GuestFeastBackend { return backend }, cards, GuestHandlerConfig{
		PollInterval: 5 * time.Millisecond,
		WaitMax:      50 * time.Millisecond,
	})
}

func TestGuestHandler_StartSession(t *testing.T) {
	var gotCode, gotNickname string
	shell := &mockShell{
		guestHandshakeFn: func(_ context.Context, _ *session.Context, code, nickname string) (session.GuestSnapshot, error) {
			gotCode, gotNickname = code, nickname
			return session.GuestSnapshot{AccessToken: "g", Nickname: nickname}, nil
		},
	}
	h := newTestGuestHandler(shell, &mockGuestBackend{}, &mockCards{})

	w := serve(guestContext(t, false), http.MethodPost, "/api/guest/session", h.StartSession,
		jsonRequest(http.MethodPost, "/api/guest/session", `{"nickname":"민수"}`))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if gotCode != "" || gotNickname != "민수" {
		t.Errorf("handshake args = (%q, %q)", gotCode, gotNickname)
	}
	var got guestStatus
	decodeBody(t, w, &got)
	if !got.Ready || got.Nickname != "민수" {
		t.Errorf("status = %+v", got)
	}
}

func TestGuestHandler_StartSession_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"ニックネーム不正", model.NewInvalidNicknameError("empty"), http.StatusBadRequest, model.ErrCodeInvalidNickname},
		{"招待コードなし", bootstrap.ErrMissingCode, http.StatusBadRequest, "INVALID_REQUEST"},
		{"バックエンド障害", &feastapi.StatusError{Status: http.StatusServiceUnavailable}, http.StatusBadGateway, model.ErrCodeBackendUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shell := &mockShell{
				guestHandshakeFn: func(context.Context, *session.Context, string, string) (session.GuestSnapshot, error) {
					return session.GuestSnapshot{}, tt.err
				},
			}
			h := newTestGuestHandler(shell, &mockGuestBackend{}, &mockCards{})

			w := serve(guestContext(t, false), http.MethodPost, "/api/guest/session", h.StartSession,
				jsonRequest(http.MethodPost, "/api/guest/session", `{"nickname":"x"}`))

			assertErrorCode(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestGuestHandler_Ready_Immediate(t *testing.T) {
	h := newTestGuestHandler(&mockShell{}, &mockGuestBackend{}, &mockCards{})

	w := serve(guestContext(t, false), http.MethodGet, "/api/guest/ready", h.Ready, httptest.NewRequest(http.MethodGet, "/api/guest/ready", nil))

	var got guestStatus
	decodeBody(t, w, &got)
	if got.Ready {
		t.Error("ニックネーム登録前は準備完了ではありません")
	}
}

func TestGuestHandler_Ready_WaitReturnsWhenSessionArrives(t *testing.T) {
	h := newTestGuestHandler(&mockShell{}, &mockGuestBackend{}, &mockCards{})
	h.config.WaitMax = 2 * time.Second
	sc := guestContext(t, false)

	go func() {
		time.Sleep(20 * time.Millisecond)
		sc.Guest.Save(context.Background(), model.GuestTokens{AccessToken: "g"}, "민수")
	}()

	start := time.Now()
	w := serve(sc, http.MethodGet, "/api/guest/ready", h.Ready, httptest.NewRequest(http.MethodGet, "/api/guest/ready?wait=1", nil))

	var got guestStatus
	decodeBody(t, w, &got)
	if !got.Ready || got.Nickname != "민수" {
		t.Errorf("status = %+v", got)
	}
	if time.Since(start) >= 2*time.Second {
		t.Error("準備完了後すぐに返るべきです")
	}
}

func TestGuestHandler_Ready_WaitTimesOutNotReady(t *testing.T) {
	h := newTestGuestHandler(&mockShell{}, &mockGuestBackend{}, &mockCards{})

	w := serve(guestContext(t, false), http.MethodGet, "/api/guest/ready", h.Ready, httptest.NewRequest(http.MethodGet, "/api/guest/ready?wait=1", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got guestStatus
	decodeBody(t, w, &got)
	if got.Ready {
		t.Error("タイムアウト時は準備未完了を返すべきです")
	}
}

func TestGuestHandler_RequiresReadyGuest(t *testing.T) {
	h := newTestGuestHandler(&mockShell{}, &mockGuestBackend{}, &mockCards{})

	tests := []struct {
		name string
		sc   *session.Context
	}{
		{"マウントなし", session.NewMemoryContext("d", "t")},
		{"ニックネーム未登録", guestContext(t, false)},
		{"ホスト", hostContext(t)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(tt.sc, http.MethodGet, "/api/guest/feast", h.Feast, httptest.NewRequest(http.MethodGet, "/api/guest/feast", nil))
			assertErrorCode(t, w, http.StatusForbidden, model.ErrCodeGuestNotReady)
		})
	}
}

func TestGuestHandler_Feast(t *testing.T) {
	backend := &mockGuestBackend{feastFn: func(context.Context) (model.Feast, error) {
		return model.Feast{BirthdayID: "11", UserID: "7"}, nil
	}}
	h := newTestGuestHandler(&mockShell{}, backend, &mockCards{})

	w := serve(guestContext(t, true), http.MethodGet, "/api/guest/feast", h.Feast, httptest.NewRequest(http.MethodGet, "/api/guest/feast", nil))

	var got model.Feast
	decodeBody(t, w, &got)
	if got.BirthdayID != "11" {
		t.Errorf("feast = %+v", got)
	}
}

func TestGuestHandler_Feast_GuestSessionExpired(t *testing.T) {
	backend := &mockGuestBackend{feastFn: func(context.Context) (model.Feast, error) {
		return model.Feast{}, feastapi.ErrGuestSessionExpired
	}}
	h := newTestGuestHandler(&mockShell{}, backend, &mockCards{})

	w := serve(guestContext(t, true), http.MethodGet, "/api/guest/feast", h.Feast, httptest.NewRequest(http.MethodGet, "/api/guest/feast", nil))

	assertErrorCode(t, w, http.StatusUnauthorized, model.ErrCodeGuestSessionExpired)
}

// ゲストの생일한상の404は生일한상なし、画像素材の404は汎用のNOT_FOUNDになること。
func TestGuestHandler_NotFoundCodes(t *testing.T) {
	backend := &mockGuestBackend{
		feastFn: func(context.Context) (model.Feast, error) {
			return model.Feast{}, fmt.Errorf("guest.feast: %w", feastapi.ErrNotFound)
		},
		imagesFn: func(context.Context) ([]model.CardImage, error) {
			return nil, fmt.Errorf("guest.images: %w", feastapi.ErrNotFound)
		},
	}
	h := newTestGuestHandler(&mockShell{}, backend, &mockCards{})

	w := serve(guestContext(t, true), http.MethodGet, "/api/guest/feast", h.Feast, httptest.NewRequest(http.MethodGet, "/api/guest/feast", nil))
	assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeFeastNotFound)

	w = serve(guestContext(t, true), http.MethodGet, "/api/guest/images", h.Images, httptest.NewRequest(http.MethodGet, "/api/guest/images", nil))
	assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeNotFound)
}

func TestGuestHandler_Images_EmptyIsArray(t *testing.T) {
	h := newTestGuestHandler(&mockShell{}, &mockGuestBackend{}, &mockCards{})

	w := serve(guestContext(t, true), http.MethodGet, "/api/guest/images", h.Images, httptest.NewRequest(http.MethodGet, "/api/guest/images", nil))

	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want []", body)
	}
}

func TestGuestHandler_Cards_UsesMountState(t *testing.T) {
	var gotState mode.State
	cards := &mockCards{viewFn: func(_ context.Context, _ *session.Context, st mode.State) card.View {
		gotState = st
		return card.View{Data: []model.Card{}}
	}}
	h := newTestGuestHandler(&mockShell{}, &mockGuestBackend{}, cards)

	serve(guestContext(t, true), http.MethodGet, "/api/guest/cards", h.Cards, httptest.NewRequest(http.MethodGet, "/api/guest/cards", nil))

	if !gotState.IsGuest() || gotState.Code != "INVITE" || gotState.SharedHostID != "7" {
		t.Errorf("state = %+v", gotState)
	}
}

func TestGuestHandler_SubmitCard(t *testing.T) {
	var gotMessage, gotImage string
	cards := &mockCards{submitFn: func(_ context.Context, _ *session.Context, _ mode.State, message, imageURL string) (card.View, error) {
		gotMessage, gotImage = message, imageURL
		return card.View{Data: []model.Card{{CardID: "1", Message: message, Nickname: "민수"}}}, nil
	}}
	h := newTestGuestHandler(&mockShell{}, &mockGuestBackend{}, cards)

	w := serve(guestContext(t, true), http.MethodPost, "/api/guest/cards", h.SubmitCard,
		jsonRequest(http.MethodPost, "/api/guest/cards", `{"message":"생일 축하해","imageUrl":"https://cdn.example.com/cake.png"}`))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if gotMessage != "생일 축하해" || gotImage != "https://cdn.example.com/cake.png" {
		t.Errorf("submit args = (%q, %q)", gotMessage, gotImage)
	}
}

func TestGuestHandler_SubmitCard_InvalidMessage(t *testing.T) {
	cards := &mockCards{submitFn: func(context.Context, *session.Context, mode.State, string, string) (card.View, error) {
		return card.View{}, model.NewInvalidMessageError("empty")
	}}
	h := newTestGuestHandler(&mockShell{}, &mockGuestBackend{}, cards)

	w := serve(guestContext(t, true), http.MethodPost, "/api/guest/cards", h.SubmitCard,
		jsonRequest(http.MethodPost, "/api/guest/cards", `{"message":""}`))

	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeInvalidMessage)
}
