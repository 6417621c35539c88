// Package gateway はbKash Tokenized Checkout APIのクライアントを提供する。
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const (
	tokenGrantPath = "/tokenized/checkout/token/grant"
	createPath     = "/tokenized/checkout/create"
	executePath    = "/tokenized/checkout/execute"
)

// TransactionStatusCompleted はexecuteレスポンスで入金成立を示す唯一の値。
const TransactionStatusCompleted = "Completed"

// ErrUnavailable はネットワーク障害やゲートウェイ側の一時障害を表す。
// リトライ上限まで試行した後もこのエラーになった場合、呼び出し元は
// 操作全体をやり直してよい（リトライ可能）。
var ErrUnavailable = errors.New("gateway unavailable")

// Config はbKashクライアントの設定。
type Config struct {
	BaseURL   string // sandbox/productionの切り替えはこのURLのみで行う
	AppKey    string
	AppSecret string
	Username  string
	Password  string

	Timeout    time.Duration
	MaxRetries int

	// テスト用にオーバーライド可能なURL
	TokenGrantURL string
	CreateURL     string
	ExecuteURL    string
}

// MetricsRecorder はゲートウェイ呼び出しのメトリクス記録インターフェース。
// internal/metricsのCollectorの部分集合として定義する。
type MetricsRecorder interface {
	RecordGatewayCall(operation, outcome string)
	RecordGatewayLatency(duration time.Duration)
}

// Client はbKash Tokenized Checkout APIのクライアント。
// token grant / create / execute の3操作を提供する。
// 認証トークンはキャッシュせず、各操作で毎回grantし直す前提の設計。
type Client struct {
	config     Config
	httpClient *http.Client
	metrics    MetricsRecorder
}

// NewClient はClientを生成する。metricsはnil可。
func NewClient(config Config, metrics MetricsRecorder) *Client {
	if config.TokenGrantURL == "" {
		config.TokenGrantURL = config.BaseURL + tokenGrantPath
	}
	if config.CreateURL == "" {
		config.CreateURL = config.BaseURL + createPath
	}
	if config.ExecuteURL == "" {
		config.ExecuteURL = config.BaseURL + executePath
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		metrics:    metrics,
	}
}

// tokenGrantResponse はtoken grantエンドポイントのレスポンス。
type tokenGrantResponse struct {
	IDToken string `json:"id_token"`
}

// CreateRequest はチェックアウト作成リクエスト。
type CreateRequest struct {
	Mode                  string `json:"mode"`
	PayerReference        string `json:"payerReference"`
	CallbackURL           string `json:"callbackURL"`
	Amount                string `json:"amount"`
	Currency              string `json:"currency"`
	Intent                string `json:"intent"`
	MerchantInvoiceNumber string `json:"merchantInvoiceNumber"`
}

// NewCreateRequest は入金用のCreateRequestを生成する。
// modeは0011（tokenized checkout）、intentはsale固定。
func NewCreateRequest(userID, callbackURL string, amount decimal.Decimal, currency, invoiceNumber string) CreateRequest {
	return CreateRequest{
		Mode:                  "0011",
		PayerReference:        userID,
		CallbackURL:           callbackURL,
		Amount:                amount.StringFixed(2),
		Currency:              currency,
		Intent:                "sale",
		MerchantInvoiceNumber: invoiceNumber,
	}
}

// CreateResponse はチェックアウト作成レスポンス。
// RawにはホストされたチェックアウトUIの起動にフロントエンドが必要とする
// フィールドを含むレスポンス全体を保持する。
type CreateResponse struct {
	PaymentID string
	BkashURL  string
	Raw       json.RawMessage
}

// ExecuteResponse はexecute（capture）レスポンス。
// TransactionStatusが"Completed"の場合のみ入金成立とみなす。
type ExecuteResponse struct {
	PaymentID         string `json:"paymentID"`
	TrxID             string `json:"trxID"`
	TransactionStatus string `json:"transactionStatus"`
}

// GrantToken はapp key/secretを短命のbearerトークンに交換する。
func (c *Client) GrantToken(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"app_key":    c.config.AppKey,
		"app_secret": c.config.AppSecret,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal token grant request: %w", err)
	}

	respBody, err := c.post(ctx, "token_grant", c.config.TokenGrantURL, body, func(req *http.Request) {
		req.Header.Set("username", c.config.Username)
		req.Header.Set("password", c.config.Password)
	})
	if err != nil {
		return "", err
	}

	var tokenResp tokenGrantResponse
	if err := json.Unmarshal(respBody, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token grant response: %w", err)
	}
	if tokenResp.IDToken == "" {
		return "", fmt.Errorf("empty id_token in token grant response")
	}

	return tokenResp.IDToken, nil
}

// CreatePayment はチェックアウトセッションを作成する。
// 成功時、ゲートウェイ発行のpaymentIDとレスポンス全体を返す。
func (c *Client) CreatePayment(ctx context.Context, token string, createReq CreateRequest) (*CreateResponse, error) {
	body, err := json.Marshal(createReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal create request: %w", err)
	}

	respBody, err := c.post(ctx, "create", c.config.CreateURL, body, func(req *http.Request) {
		req.Header.Set("Authorization", token)
		req.Header.Set("X-App-Key", c.config.AppKey)
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		PaymentID string `json:"paymentID"`
		BkashURL  string `json:"bkashURL"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse create response: %w", err)
	}
	if parsed.PaymentID == "" {
		return nil, fmt.Errorf("empty paymentID in create response")
	}

	return &CreateResponse{
		PaymentID: parsed.PaymentID,
		BkashURL:  parsed.BkashURL,
		Raw:       json.RawMessage(respBody),
	}, nil
}

// ExecutePayment はチェックアウトのexecute（capture）を実行し、確定した取引
// ステータスを返す。リダイレクトの成否ヒントは信用せず、この呼び出しの結果
// のみを入金成立の根拠とする。
func (c *Client) ExecutePayment(ctx context.Context, token, paymentID string) (*ExecuteResponse, error) {
	body, err := json.Marshal(map[string]string{"paymentID": paymentID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execute request: %w", err)
	}

	respBody, err := c.post(ctx, "execute", c.config.ExecuteURL, body, func(req *http.Request) {
		req.Header.Set("Authorization", token)
		req.Header.Set("X-App-Key", c.config.AppKey)
	})
	if err != nil {
		return nil, err
	}

	var execResp ExecuteResponse
	if err := json.Unmarshal(respBody, &execResp); err != nil {
		return nil, fmt.Errorf("failed to parse execute response: %w", err)
	}
	if execResp.TransactionStatus == "" {
		return nil, fmt.Errorf("empty transactionStatus in execute response")
	}

	return &execResp, nil
}

// post はJSONボディをPOSTし、リトライポリシーに従ってレスポンスボディを返す。
// トランスポートエラーと429/5xxはバックオフ付きで再試行し、それ以外の
// 非2xxは即座にエラーを返す。
func (c *Client) post(ctx context.Context, operation, url string, body []byte, setHeaders func(*http.Request)) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(attempt - 1)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(delay):
			}
		}

		respBody, result, err := c.doOnce(ctx, operation, url, body, setHeaders)
		if err != nil {
			lastErr = err
			continue
		}

		switch result {
		case CallResultOK:
			return respBody, nil
		case CallResultRetry:
			lastErr = fmt.Errorf("%w: %s returned retryable status", ErrUnavailable, operation)
			continue
		default:
			return nil, fmt.Errorf("%s request rejected by gateway: %s", operation, truncate(respBody, 256))
		}
	}

	return nil, fmt.Errorf("%w: %s failed after %d attempts: %v", ErrUnavailable, operation, c.config.MaxRetries, lastErr)
}

// doOnce は1回分のHTTP呼び出しを行い、ステータス分類と共に結果を返す。
func (c *Client) doOnce(ctx context.Context, operation, url string, body []byte, setHeaders func(*http.Request)) ([]byte, CallResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, CallResultRetry, fmt.Errorf("failed to create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.RecordGatewayLatency(time.Since(start))
	}
	if err != nil {
		c.recordCall(operation, "transport_error")
		return nil, CallResultRetry, fmt.Errorf("%w: %s request failed: %v", ErrUnavailable, operation, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordCall(operation, "read_error")
		return nil, CallResultRetry, fmt.Errorf("%w: failed to read %s response: %v", ErrUnavailable, operation, err)
	}

	result := ClassifyHTTPStatus(resp.StatusCode)
	switch result {
	case CallResultOK:
		c.recordCall(operation, "ok")
	case CallResultRetry:
		c.recordCall(operation, "retryable_status")
	default:
		c.recordCall(operation, "rejected")
	}

	return respBody, result, nil
}

func (c *Client) recordCall(operation, outcome string) {
	if c.metrics != nil {
		c.metrics.RecordGatewayCall(operation, outcome)
	}
}

// truncate はエラーメッセージ用にレスポンスボディを切り詰める。
func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
