package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// defaultMaxResponseBytes は上流レスポンスとして読み込む最大バイト数の既定値。
const defaultMaxResponseBytes int64 = 32 << 20

// Client は上流API用のHTTPクライアント。
// リトライは行わず、1回の呼び出しにつき1回だけリクエストを送る。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は上流APIのベースURL。
	baseURL string
	// maxResponseBytes は読み込むレスポンスボディの上限。
	maxResponseBytes int64
}

// Option はClientの設定を変更する。
type Option func(*Client)

// WithTimeout はリクエスト全体のタイムアウトを設定する。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithTransport は下位のRoundTripperを差し替える。
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// WithMaxResponseBytes はレスポンスボディの上限を設定する。
// 上限を超えるレスポンスはKindResponseTooLargeのエラーになる。
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) {
		c.maxResponseBytes = n
	}
}

// New は新しい上流APIクライアントを生成する。
// baseURLには上流APIのベースURL（例: "http://backend:8000"）を指定する。
// トランスポートはOpenTelemetryで計装し、トレースコンテキストを上流に伝播する。
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL:          baseURL,
		maxResponseBytes: defaultMaxResponseBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PostJSON は指定パスにJSONボディでPOSTリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) PostJSON(ctx context.Context, path string, body any, result any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, result)
}

// GetJSON は指定パスにGETリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) GetJSON(ctx context.Context, path string, result any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, result)
}

// Relay はbodyをそのまま上流に送り、2xxの場合はレスポンスボディをそのまま返す。
// bodyがnilの場合はボディ無しで送信する。
// 2xxで空のボディは "{}" として返す。
func (c *Client) Relay(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	respBody, err := c.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(respBody) {
		return nil, &Error{
			Kind:       KindInvalidResponse,
			Method:     method,
			Path:       path,
			StatusCode: http.StatusOK,
			Err:        fmt.Errorf("JSONではないボディ（%dバイト）", len(respBody)),
		}
	}
	return json.RawMessage(respBody), nil
}

// doJSON はJSON形式のHTTPリクエストを実行する共通処理。
func (c *Client) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
		}
		payload = b
	}

	respBody, err := c.do(ctx, method, path, payload)
	if err != nil {
		return err
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return &Error{
				Kind:       KindInvalidResponse,
				Method:     method,
				Path:       path,
				StatusCode: http.StatusOK,
				Err:        fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err),
			}
		}
	}
	return nil
}

// do はリクエストを1回送信し、2xxの場合にレスポンスボディを返す。
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	// コンテキストからリクエストIDを伝播する
	if requestID, ok := ctx.Value(contextKeyRequestID).(string); ok && requestID != "" {
		req.Header.Set(HeaderRequestID, requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindUnreachable, Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return nil, &Error{Kind: KindUnreachable, Method: method, Path: path, Err: fmt.Errorf("レスポンスの読み取りに失敗: %w", err)}
	}
	if int64(len(respBody)) > c.maxResponseBytes {
		return nil, &Error{
			Kind:       KindResponseTooLarge,
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("レスポンスが%dバイトを超えています", c.maxResponseBytes),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			Kind:       KindUpstreamStatus,
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       respBody,
		}
	}
	return respBody, nil
}

// HeaderRequestID はリクエストIDを伝播するHTTPヘッダーキー。
const HeaderRequestID = "X-Request-ID"

// contextKey はコンテキストキーの型。
type contextKey string

// contextKeyRequestID はコンテキストにリクエストIDを格納するためのキー。
const contextKeyRequestID contextKey = "request_id"

// WithRequestID はコンテキストにリクエストIDを設定する。
// 上流APIへのリクエストにX-Request-IDヘッダーとして付与される。
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}
