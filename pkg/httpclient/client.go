package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HeaderRequestID はリクエストIDを伝播するためのHTTPヘッダーキー。
const HeaderRequestID = "X-Request-ID"

// Client はアップストリーム通信用のHTTPクライアント。
// 並行利用しても安全で、リトライは行わない。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先サービスのベースURL。
	baseURL string
	// maxResponseBytes はレスポンスボディの読み取り上限。0は無制限。
	maxResponseBytes int64
}

// ErrResponseTooLarge はレスポンスボディが読み取り上限を超えたことを表す。
var ErrResponseTooLarge = errors.New("レスポンスボディが上限を超えています")

// Option はClientの設定を変更する関数。
type Option func(*Client)

// WithTimeout は1リクエストあたりのタイムアウトを設定する。
// 0を指定するとタイムアウトを課さない。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithMaxResponseBytes はレスポンスボディの読み取り上限を設定する。
// 0以下を指定すると上限を課さない。
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) {
		c.maxResponseBytes = max(n, 0)
	}
}

// WithHTTPClient は内部で使用するhttp.Clientを差し替える。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New は新しいアップストリーム通信用HTTPクライアントを生成する。
// baseURLには接続先サービスのベースURL（例: "http://rag-api:8001"）を指定する。
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL は接続先のベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL はパスに対応するアップストリームのURLを返す。
func (c *Client) URL(path string) string {
	return c.baseURL + path
}

// Response はアップストリームから受け取った成功レスポンス。
type Response struct {
	// StatusCode はアップストリームが返したステータスコード（2xx）。
	StatusCode int
	// ContentType はアップストリームが返したContent-Type。
	ContentType string
	// Body はレスポンスボディの生バイト列。
	Body []byte
}

// StatusError はアップストリームが2xx以外のステータスを返したことを表す。
type StatusError struct {
	// StatusCode はアップストリームが返したステータスコード。
	StatusCode int
	// Body はアップストリームが返したレスポンスボディ。
	Body []byte
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("Request failed with status code %d", e.StatusCode)
}

// PostJSON は指定パスにJSONボディをそのままPOSTする。
func (c *Client) PostJSON(ctx context.Context, path string, body []byte) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// Get は指定パスにボディなしのGETリクエストを送信する。
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// do はHTTPリクエストを1回だけ実行する共通処理。
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// コンテキストからリクエストIDを伝播する
	if requestID, ok := ctx.Value(contextKeyRequestID).(string); ok && requestID != "" {
		req.Header.Set(HeaderRequestID, requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := c.readBody(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: respBody}
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        respBody,
	}, nil
}

// readBody は上限を超えない範囲でレスポンスボディを読み取る。
func (c *Client) readBody(r io.Reader) ([]byte, error) {
	if c.maxResponseBytes > 0 {
		r = io.LimitReader(r, c.maxResponseBytes+1)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗: %w", err)
	}
	if c.maxResponseBytes > 0 && int64(len(body)) > c.maxResponseBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrResponseTooLarge, c.maxResponseBytes)
	}
	return body, nil
}

// contextKey はコンテキストキーの型。
type contextKey string

// contextKeyRequestID はコンテキストにリクエストIDを格納するためのキー。
const contextKeyRequestID contextKey = "request_id"

// WithRequestID はコンテキストにリクエストIDを設定する。
// アップストリームへのリクエストにX-Request-IDヘッダーとして付与される。
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}
