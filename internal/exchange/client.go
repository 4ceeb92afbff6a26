// Package exchange queries the Bybit v5 account transaction log.
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"options-ledger/internal/domain"
	"options-ledger/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL     = "https://api.bybit.com"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
	DefaultRecvWindow  = 5000
	DefaultRatePerSec  = 10.0

	// MaxPageLimit is the largest page size accepted by the endpoint.
	MaxPageLimit = 50

	transactionLogPath = "/v5/account/transaction-log"
)

// Client implements a signed, retried, rate limited transaction-log reader.
type Client struct {
	baseURL     string
	apiKey      string
	apiSecret   string
	recvWindow  int
	client      *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	now         func() time.Time
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithRateLimit paces requests to perSec with the given burst.
// A non-positive perSec disables pacing.
func WithRateLimit(perSec float64, burst int) ClientOption {
	return func(c *Client) {
		if perSec <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

// WithRecvWindow sets the X-BAPI-RECV-WINDOW value in milliseconds.
func WithRecvWindow(ms int) ClientOption {
	return func(c *Client) {
		c.recvWindow = ms
	}
}

// WithClock overrides the signing clock.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a transaction-log client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL, apiKey, apiSecret string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		apiSecret:   apiSecret,
		recvWindow:  DefaultRecvWindow,
		client:      &http.Client{Timeout: DefaultTimeout},
		limiter:     rate.NewLimiter(rate.Limit(DefaultRatePerSec), 1),
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether API credentials are present.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.apiSecret != ""
}

// FetchTransactions returns one page of the transaction log.
func (c *Client) FetchTransactions(ctx context.Context, q domain.Query) (*domain.Page, error) {
	params := queryParams(q)

	var result transactionLogResult
	if err := c.get(ctx, transactionLogPath, params, &result); err != nil {
		return nil, err
	}

	page := &domain.Page{
		Items:      make([]domain.RawTransaction, 0, len(result.List)),
		NextCursor: result.NextPageCursor,
	}
	for i, raw := range result.List {
		var item transactionLogItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decode item %d: %w", i, err)
		}
		category := q.Category
		if item.Category != "" {
			category = domain.Category(item.Category)
		}
		page.Items = append(page.Items, item.toRaw(category, raw))
	}
	return page, nil
}

func queryParams(q domain.Query) url.Values {
	params := url.Values{}
	if q.AccountType != "" {
		params.Set("accountType", q.AccountType)
	}
	if q.Category != "" {
		params.Set("category", string(q.Category))
	}
	if q.Limit > 0 {
		limit := q.Limit
		if limit > MaxPageLimit {
			limit = MaxPageLimit
		}
		params.Set("limit", strconv.Itoa(limit))
	}
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}
	if q.StartTime != nil {
		params.Set("startTime", strconv.FormatInt(*q.StartTime, 10))
	}
	if q.EndTime != nil {
		params.Set("endTime", strconv.FormatInt(*q.EndTime, 10))
	}
	return params
}

// sign computes the v5 request signature for a GET query string.
func (c *Client) sign(timestamp, queryString string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(timestamp + c.apiKey + strconv.Itoa(c.recvWindow) + queryString))
	return hex.EncodeToString(mac.Sum(nil))
}

// get performs a signed GET with retries and exponential backoff.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	queryString := params.Encode()
	endpoint := c.baseURL + path
	if queryString != "" {
		endpoint += "?" + queryString
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
		req.Header.Set("X-BAPI-API-KEY", c.apiKey)
		req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
		req.Header.Set("X-BAPI-RECV-WINDOW", strconv.Itoa(c.recvWindow))
		req.Header.Set("X-BAPI-SIGN", c.sign(timestamp, queryString))

		start := time.Now()
		resp, err := c.client.Do(req)
		observability.RecordExchangeLatency(path, time.Since(start).Seconds())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			observability.RecordExchangeRetry("transport")
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			observability.RecordExchangeRetry("read")
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			observability.RecordExchangeRetry("rate_limited")
			continue
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
			observability.RecordExchangeRetry("server_error")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		}

		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}

		if env.RetCode != 0 {
			// API errors are not retried
			observability.RecordExchangeError(strconv.Itoa(env.RetCode))
			return &APIError{Code: env.RetCode, Message: env.RetMsg}
		}

		if result != nil && len(env.Result) > 0 {
			if err := json.Unmarshal(env.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
