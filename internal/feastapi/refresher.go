package feastapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/hansang/internal/session"
)

const opReissue = "auth.reissue"

// errNoToken は再発行レスポンスにトークンが含まれていないことを示す。
var errNoToken = errors.New("reissue response carried no access token")

// Refresher はデバイス単位でホストトークンの再発行を1本にまとめる。
// 同時に401を受けたリクエストは実行中の再発行を待ち、その結果を共有する。
type Refresher struct {
	c  *Client
	sf singleflight.Group
}

func newRefresher(c *Client) *Refresher {
	return &Refresher{c: c}
}

// Refresh はfailedTokenで401になったリクエストのために新しいトークンを返す。
//
// ストアのトークンがすでにfailedTokenから置き換わっていれば再発行せずにそれを返す。
// 再発行に失敗した場合はストアをクリアしてErrSessionExpiredを返す。
func (r *Refresher) Refresh(ctx context.Context, store *session.TokenStore, failedToken string) (string, error) {
	if current, err := store.Get(ctx); err == nil && current != "" && current != failedToken {
		return current, nil
	}

	// 待機者のキャンセルで共有中の再発行が中断されないようにする
	shared := context.WithoutCancel(ctx)
	ch := r.sf.DoChan(store.DeviceID(), func() (any, error) {
		if current, err := store.Get(shared); err == nil && current != "" && current != failedToken {
			return current, nil
		}
		return r.reissue(shared, store)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// reissue は再発行エンドポイントを呼び、結果をストアに反映する。
func (r *Refresher) reissue(ctx context.Context, store *session.TokenStore) (string, error) {
	token, cookie, err := r.call(ctx, store.RefreshCookie(ctx))
	if err != nil {
		r.c.metrics.RecordReissue("failure")
		r.c.logger.Warn("トークンの再発行に失敗しました",
			slog.String("device_id", store.DeviceID()),
			slog.String("error", err.Error()),
		)
		r.clearIdentity(ctx, store)
		return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}

	if err := store.Set(ctx, token); err != nil {
		r.c.metrics.RecordReissue("failure")
		return "", fmt.Errorf("failed to store reissued token: %w", err)
	}
	if cookie != "" {
		if err := store.SetRefreshCookie(ctx, cookie); err != nil {
			r.c.logger.Warn("リフレッシュCookieの保存に失敗しました",
				slog.String("device_id", store.DeviceID()),
				slog.String("error", err.Error()),
			)
		}
	}

	r.c.metrics.RecordReissue("success")
	r.c.logger.Info("トークンを再発行しました", slog.String("device_id", store.DeviceID()))
	return token, nil
}

// expire は再発行したトークンでも401になった場合にホストのセッションを終了させる。
func (r *Refresher) expire(ctx context.Context, store *session.TokenStore, op string) {
	r.c.logger.Warn("再発行後のトークンが拒否されたためセッションを終了します",
		slog.String("device_id", store.DeviceID()),
		slog.String("operation", op),
	)
	r.clearIdentity(ctx, store)
}

// clearIdentity はトークン、ホストID、リフレッシュCookieを消す。
func (r *Refresher) clearIdentity(ctx context.Context, store *session.TokenStore) {
	if err := store.ClearIdentity(ctx); err != nil {
		r.c.logger.Error("トークンストアのクリアに失敗しました",
			slog.String("device_id", store.DeviceID()),
			slog.String("error", err.Error()),
		)
	}
}

// call はPOST /api/auth-user/reissueを実行し、新しいトークンとローテートされたリフレッシュCookieを返す。
// トークンはボディ（accessToken / authToken）またはAuthorizationヘッダーから読む。
func (r *Refresher) call(ctx context.Context, refreshCookie string) (string, string, error) {
	resp, err := r.c.send(ctx, call{
		op:            opReissue,
		method:        http.MethodPost,
		path:          "/api/auth-user/reissue",
		refreshCookie: refreshCookie,
	}, "")
	if err != nil {
		return "", "", err
	}
	if err := r.c.check(opReissue, resp); err != nil {
		return "", "", err
	}

	var body struct {
		AccessToken string `json:"accessToken"`
		AuthToken   string `json:"authToken"`
	}
	if err := decode(resp.body, &body); err != nil {
		return "", "", fmt.Errorf("%s: failed to decode response: %w", opReissue, err)
	}

	token := body.AccessToken
	if token == "" {
		token = body.AuthToken
	}
	if token == "" {
		token = strings.TrimPrefix(resp.header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		return "", "", errNoToken
	}
	return token, resp.cookie(r.c.refreshCookieName), nil
}
