package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// RejectionError 交易所以非 2xx 拒绝了请求（区别于网络错误）。
type RejectionError struct {
	StatusCode int
	Body       string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("exchange rejected request: status %d %s", e.StatusCode, e.Body)
}

// IsRejection reports whether err is an exchange-side rejection.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}

// Client 简化的 RIT REST 客户端；HTTPClient 可注入 httptest。
// 所有调用都带短超时，失败不在本层重试（下个周期自然重试）。
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Limiter    RateLimiter
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &http.Client{Timeout: timeout}
}

// Case 查询场次状态与当前 tick。
func (c *Client) Case(ctx context.Context) (Case, error) {
	var out Case
	err := c.get(ctx, "/case", nil, &out)
	return out, err
}

// Securities 查询全部品种的持仓与盈亏。
func (c *Client) Securities(ctx context.Context) ([]Security, error) {
	var out []Security
	err := c.get(ctx, "/securities", nil, &out)
	return out, err
}

// Book 查询单品种盘口。
func (c *Client) Book(ctx context.Context, ticker string) (Book, error) {
	var out Book
	err := c.get(ctx, "/securities/book", url.Values{"ticker": {ticker}}, &out)
	return out, err
}

// OpenOrders 查询全部未完成订单。
func (c *Client) OpenOrders(ctx context.Context) ([]OpenOrder, error) {
	var out []OpenOrder
	err := c.get(ctx, "/orders", url.Values{"status": {"OPEN"}}, &out)
	return out, err
}

// PlaceLimit 提交一笔限价单；非 2xx 返回 *RejectionError。
func (c *Client) PlaceLimit(ctx context.Context, ticker, action string, quantity int, price float64) error {
	params := url.Values{
		"ticker":   {ticker},
		"type":     {"LIMIT"},
		"action":   {action},
		"quantity": {strconv.Itoa(quantity)},
		"price":    {strconv.FormatFloat(price, 'f', 2, 64)},
	}
	return c.post(ctx, "/orders", params)
}

// CancelAll 撤销单品种全部挂单。
func (c *Client) CancelAll(ctx context.Context, ticker string) error {
	return c.post(ctx, "/commands/cancel", url.Values{"ticker": {ticker}})
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, path, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return newRejection(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, params url.Values) error {
	resp, err := c.do(ctx, http.MethodPost, path, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// 拒单原因在 body 里，必须先读再排干
	if resp.StatusCode >= 300 {
		return newRejection(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values) (*http.Response, error) {
	if c == nil || c.HTTPClient == nil {
		return nil, fmt.Errorf("http client not set")
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	endpoint := c.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", c.APIKey)
	return c.HTTPClient.Do(req)
}

func newRejection(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return &RejectionError{StatusCode: resp.StatusCode, Body: string(body)}
}
