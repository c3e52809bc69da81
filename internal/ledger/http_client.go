package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const holdersPageSize = 1000

// HTTPClient 通过 JSON/HTTP 访问账本网关
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// HTTPClientOption 客户端选项
type HTTPClientOption func(*HTTPClient)

// WithHTTPClient 替换底层 *http.Client
func WithHTTPClient(c *http.Client) HTTPClientOption {
	return func(h *HTTPClient) { h.httpClient = c }
}

// WithRateLimit 限制每秒请求数，rps <= 0 表示不限流
func WithRateLimit(rps float64, burst int) HTTPClientOption {
	return func(h *HTTPClient) {
		if rps <= 0 {
			h.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst <= 0 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewHTTPClient 创建账本网关客户端
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, opts ...HTTPClientOption) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &HTTPClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(20), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type holdersPage struct {
	Holders []Holder `json:"holders"`
}

// GetHolders 分页拉取全部持有人
func (c *HTTPClient) GetHolders(ctx context.Context, assetID string) ([]Holder, error) {
	var all []Holder
	for offset := 0; ; offset += holdersPageSize {
		path := fmt.Sprintf("/assets/%s/holders?limit=%d&offset=%d", url.PathEscape(assetID), holdersPageSize, offset)
		data, err := c.doRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		var page holdersPage
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("%w: decode holders: %v", ErrUnavailable, err)
		}
		all = append(all, page.Holders...)
		if len(page.Holders) < holdersPageSize {
			return all, nil
		}
	}
}

// Transfer 提交单笔转账
func (c *HTTPClient) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "/transfers", req)
	if err != nil {
		return TransferResult{}, err
	}
	var res TransferResult
	if err := json.Unmarshal(data, &res); err != nil {
		return TransferResult{}, fmt.Errorf("%w: decode transfer: %v", ErrUnavailable, err)
	}
	if res.TxID == "" {
		return TransferResult{}, fmt.Errorf("%w: empty tx id", ErrUnavailable)
	}
	return res, nil
}

type apiError struct {
	Error string `json:"error"`
}

func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", ErrUnavailable, err)
	}

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, errorMessage(data))
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, errorMessage(data))
	}
	return data, nil
}

func errorMessage(data []byte) string {
	var e apiError
	if err := json.Unmarshal(data, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(data))
}

// IsUnavailable 是否为账本不可用类错误
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }

var _ Client = (*HTTPClient)(nil)
