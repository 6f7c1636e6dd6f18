// Package feastapi は생일한상バックエンドREST APIのクライアントを提供する。
//
// 1つのトランスポートを明示的なPrincipal（匿名・ホスト・ゲスト）でパラメータ化する。
// ホストの401は再発行を1回だけ試みて再送し、ゲストの401は再発行せずに呼び出し元へ返す。
package feastapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/hansang/internal/metrics"
	"github.com/hitoshi/hansang/internal/session"
)

// maxBodySize はレスポンスボディの読み取り上限。
const maxBodySize = 1 << 20

var (
	// ErrSessionExpired はホストトークンの再発行に失敗したことを示す。
	// トークンストアはクリア済みで、再ログインが必要。
	ErrSessionExpired = errors.New("host session expired")
	// ErrGuestSessionExpired はゲストトークンが拒否されたことを示す。ゲストは再発行しない。
	ErrGuestSessionExpired = errors.New("guest session expired")
	// ErrNotFound はバックエンドが404を返したことを示す。
	ErrNotFound = errors.New("resource not found")
)

// StatusError は2xx以外（401・404を除く）のレスポンスを表す。
type StatusError struct {
	Operation string
	Status    int
	Body      string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: backend returned status %d", e.Operation, e.Status)
}

// IsStatus はerrがstatusのStatusErrorかどうかを返す。
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}

type principalKind int

const (
	kindAnonymous principalKind = iota
	kindHost
	kindGuest
)

// Principal はリクエストの認証主体。
type Principal struct {
	kind  principalKind
	host  *session.TokenStore
	guest *session.GuestStore
}

// Anonymous は認証ヘッダーを付けない主体を返す。
func Anonymous() Principal { return Principal{kind: kindAnonymous} }

// Host はホストトークンストアを使う主体を返す。
func Host(store *session.TokenStore) Principal { return Principal{kind: kindHost, host: store} }

// Guest はゲストセッションストアを使う主体を返す。
func Guest(store *session.GuestStore) Principal { return Principal{kind: kindGuest, guest: store} }

func (p Principal) token(ctx context.Context) (string, error) {
	switch p.kind {
	case kindHost:
		return p.host.Get(ctx)
	case kindGuest:
		return p.guest.AccessToken(ctx)
	default:
		return "", nil
	}
}

// Client はバックエンドAPIのHTTPクライアント。
type Client struct {
	httpClient        *http.Client
	baseURL           string
	refreshCookieName string
	logger            *slog.Logger
	metrics           metrics.MetricsCollector
	refresher         *Refresher
}

// NewClient はClientを生成する。metricsがnilの場合は記録しない。
func NewClient(httpClient *http.Client, baseURL, refreshCookieName string, logger *slog.Logger, m metrics.MetricsCollector) *Client {
	if m == nil {
		m = metrics.Nop{}
	}
	c := &Client{
		httpClient:        httpClient,
		baseURL:           strings.TrimRight(baseURL, "/"),
		refreshCookieName: refreshCookieName,
		logger:            logger,
		metrics:           m,
	}
	c.refresher = newRefresher(c)
	return c
}

// Public は認証不要のエンドポイントを返す。
func (c *Client) Public() *PublicAPI { return &PublicAPI{c: c} }

// Host はホスト用エンドポイントを返す。
func (c *Client) Host(store *session.TokenStore) *HostAPI {
	return &HostAPI{c: c, store: store}
}

// Guest はゲスト用エンドポイントを返す。
func (c *Client) Guest(store *session.GuestStore) *GuestAPI {
	return &GuestAPI{c: c, p: Guest(store)}
}

// Refresher はクライアントが使う再発行コーディネーターを返す。
func (c *Client) Refresher() *Refresher { return c.refresher }

// call は1回のAPI呼び出しの内容。
type call struct {
	op     string
	method string
	path   string
	body   any
	out    any
	// refreshCookie が空でない場合はCookieヘッダーとして送る
	refreshCookie string
}

// response は送信結果のうち呼び出し元が参照する部分。
type response struct {
	status  int
	header  http.Header
	cookies []*http.Cookie
	body    []byte
}

// do はPrincipalのトークンを付けてcallを実行する。
// ホストの401は1回だけ再発行と再送を行い、再送も401ならErrSessionExpiredを返す。
func (c *Client) do(ctx context.Context, p Principal, cl call) (*response, error) {
	token, err := p.token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, cl, token)
	if err != nil {
		return nil, err
	}

	if resp.status == http.StatusUnauthorized {
		switch p.kind {
		case kindGuest:
			return nil, fmt.Errorf("%s: %w", cl.op, ErrGuestSessionExpired)
		case kindHost:
			newToken, err := c.refresher.Refresh(ctx, p.host, token)
			if err != nil {
				return nil, err
			}
			resp, err = c.send(ctx, cl, newToken)
			if err != nil {
				return nil, err
			}
			if resp.status == http.StatusUnauthorized {
				// 再発行直後のトークンも拒否された場合はセッションを終了する
				c.refresher.expire(ctx, p.host, cl.op)
				return nil, fmt.Errorf("%s: %w", cl.op, ErrSessionExpired)
			}
		}
	}

	if err := c.check(cl.op, resp); err != nil {
		return nil, err
	}
	if cl.out != nil {
		if err := decode(resp.body, cl.out); err != nil {
			c.logger.Error("バックエンドレスポンスのパースに失敗しました",
				slog.String("operation", cl.op),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("%s: failed to decode response: %w", cl.op, err)
		}
	}
	return resp, nil
}

// send はHTTPリクエストを1回送信し、ボディを読み切って返す。
func (c *Client) send(ctx context.Context, cl call, token string) (*response, error) {
	var body io.Reader
	if cl.body != nil {
		b, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to encode request: %w", cl.op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", cl.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if cl.refreshCookie != "" && c.refreshCookieName != "" {
		req.AddCookie(&http.Cookie{Name: c.refreshCookieName, Value: cl.refreshCookie})
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordBackendLatency(cl.op, time.Since(start))
	if err != nil {
		c.metrics.RecordBackendRequest(cl.op, 0)
		c.logger.Error("バックエンドAPIの呼び出しに失敗しました",
			slog.String("operation", cl.op),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", cl.op, err)
	}
	defer resp.Body.Close()
	c.metrics.RecordBackendRequest(cl.op, resp.StatusCode)

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response: %w", cl.op, err)
	}

	return &response{
		status:  resp.StatusCode,
		header:  resp.Header,
		cookies: resp.Cookies(),
		body:    b,
	}, nil
}

// check はステータスコードをエラーに変換する。
func (c *Client) check(op string, resp *response) error {
	switch {
	case resp.status >= 200 && resp.status < 300:
		return nil
	case resp.status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	default:
		c.logger.Warn("バックエンドAPIがエラーステータスを返しました",
			slog.String("operation", op),
			slog.Int("http_status", resp.status),
		)
		return &StatusError{Operation: op, Status: resp.status, Body: string(resp.body)}
	}
}

// cookie はレスポンスのSet-Cookieからnameの値を返す。
func (r *response) cookie(name string) string {
	for _, ck := range r.cookies {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// decode はボディをoutへデコードする。{"data": ...}で包まれていれば中身を使う。
// 空ボディは何もしない。
func decode(body []byte, out any) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}

	if body[0] == '{' {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(body, &envelope); err == nil {
			if data, ok := envelope["data"]; ok {
				if len(data) == 0 || string(data) == "null" {
					return nil
				}
				return json.Unmarshal(data, out)
			}
		}
	}
	return json.Unmarshal(body, out)
}
