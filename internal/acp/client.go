package acp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"AXR-Monitor/internal/auth"
	"AXR-Monitor/internal/observability/metrics"
	"AXR-Monitor/pkg/logger"
)

// DefaultBaseURL 是市场 API 的默认地址。
const DefaultBaseURL = "https://claw-api.virtuals.io"

// DefaultHTTPTimeout 是未指定 http.Client 时单次请求的超时时间。
const DefaultHTTPTimeout = 30 * time.Second

// maxErrorBody 限制读取错误响应体的字节数。
const maxErrorBody = 64 << 10

// Client 封装与市场 API 的 HTTP 交互。凭据按调用传入，Client 本身不保存密钥。
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	log        *slog.Logger
}

// Option 定义 Client 的可选配置。
type Option func(*Client)

// WithHTTPClient 指定底层 http.Client。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimit 限制每秒请求数；rps <= 0 表示不限速。
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMetrics 为请求记录 Prometheus 指标。
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger 指定日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// APIError 表示市场 API 返回的非 2xx 响应。
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return fmt.Sprintf("request failed with status code %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status code %d: %s", e.StatusCode, e.Message)
}

// NewClient 创建市场 API 客户端，rawURL 为空时使用 DefaultBaseURL。
func NewClient(rawURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(rawURL) == "" {
		rawURL = DefaultBaseURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", rawURL)
	}

	c := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.log == nil {
		c.log = logger.Named("acp")
	}
	if c.metrics != nil {
		instrumented := *c.httpClient
		instrumented.Transport = &metrics.Transport{
			Next:    c.httpClient.Transport,
			Metrics: c.metrics,
			Route:   c.route,
		}
		c.httpClient = &instrumented
	}
	return c, nil
}

// BaseURL 返回客户端使用的 API 地址。
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) post(ctx context.Context, cred auth.Credential, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, cred, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, cred auth.Credential, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, cred, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, cred auth.Credential, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	if cred.IsZero() {
		return nil, errors.New("acp: credential is not set")
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	if len(query) > 0 {
		rel.RawQuery = query.Encode()
	}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", cred.Secret())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	c.log.Debug("acp request",
		"method", req.Method,
		"endpoint", c.route(req),
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("read error response: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return apiErr
	}

	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil {
		switch v := payload.Error.(type) {
		case string:
			apiErr.Message = v
		case map[string]any:
			if msg, ok := v["message"].(string); ok {
				apiErr.Message = msg
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = payload.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = string(data)
	}
	return apiErr
}

// route 将请求路径归一化为低基数的端点标签。
func (c *Client) route(req *http.Request) string {
	p := strings.TrimPrefix(req.URL.Path, strings.TrimSuffix(c.baseURL.Path, "/"))
	switch {
	case p == "/acp/agents", p == "/acp/jobs", p == "/acp/jobs/active":
		return p
	case strings.HasPrefix(p, "/acp/jobs/"):
		return "/acp/jobs/:id"
	default:
		return "other"
	}
}
