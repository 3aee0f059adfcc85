// Package sender implements the HTTP client for the orchestrator's scan
// ingestion API. One consolidated client serves single-record submission,
// batch upload, the health probe and token database sync; all of them go
// through the same bounded retry loop.
package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/aln-labs/scanship/pkg/log"
	"github.com/aln-labs/scanship/pkg/scan"
)

const (
	scanEndpoint   = "/api/scan"
	batchEndpoint  = "/api/scan/batch"
	healthEndpoint = "/health"
	tokensEndpoint = "/api/tokens"
)

// HTTPClient abstracts HTTP request execution for testing and custom
// transports. The standard *http.Client satisfies this interface.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Response is the outcome of one HTTP attempt. A transport-level failure
// (refusal, timeout, DNS) is reported as Code -1 and is always retryable.
type Response struct {
	Code    int
	Body    []byte
	Success bool // true for 2xx
}

// Config holds the sync client settings. The default retry schedule is
// 6 attempts backed off 1,2,4,8,16,30 seconds.
type Config struct {
	BaseURL  string
	DeviceID string

	MaxAttempts int
	Backoff     []time.Duration

	ScanTimeout   time.Duration
	BatchTimeout  time.Duration
	HealthTimeout time.Duration
}

// SetDefaults fills zero fields with default values.
func (c *Config) SetDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 6
	}
	if len(c.Backoff) == 0 {
		c.Backoff = []time.Duration{
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			16 * time.Second,
			30 * time.Second,
		}
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = 10 * time.Second
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 30 * time.Second
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = 5 * time.Second
	}
}

// Client issues requests against the orchestrator API.
type Client struct {
	cfg    Config
	http   HTTPClient
	logger log.Logger

	// sleep is swapped out in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration)

	mu      sync.RWMutex
	baseURL string
}

// New creates a client. A nil httpClient gets a default *http.Client.
func New(cfg Config, httpClient HTTPClient, logger log.Logger) *Client {
	cfg.SetDefaults()
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		logger:  logger,
		sleep:   sleepCtx,
		baseURL: trimSlash(cfg.BaseURL),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func trimSlash(u string) string {
	for len(u) > 0 && u[len(u)-1] == '/' {
		u = u[:len(u)-1]
	}
	return u
}

// BaseURL returns the current orchestrator base URL.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// SetBaseURL replaces the orchestrator base URL. Used by config reload.
func (c *Client) SetBaseURL(u string) {
	c.mu.Lock()
	c.baseURL = trimSlash(u)
	c.mu.Unlock()
}

// request performs a single HTTP attempt with a per-request timeout.
func (c *Client) request(ctx context.Context, method, rawURL string, body []byte, timeout time.Duration) Response {
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(rctx, method, rawURL, rd)
	if err != nil {
		return Response{Code: -1}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{Code: -1}
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	return Response{
		Code:    resp.StatusCode,
		Body:    b,
		Success: resp.StatusCode >= 200 && resp.StatusCode < 300,
	}
}

// WithRetry runs fn up to MaxAttempts times. It stops immediately on
// success or on a terminal response (404, 409: the server has definitively
// processed or rejected the request). Between attempts it sleeps the
// schedule's i-th backoff, clamped to the last entry. Exhausted attempts
// return the last failure.
func (c *Client) WithRetry(ctx context.Context, op string, fn func() Response) Response {
	var resp Response
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		resp = fn()

		if resp.Success || resp.Code == http.StatusNotFound || resp.Code == http.StatusConflict {
			if attempt > 1 {
				c.logger.Info("request succeeded after retries",
					log.String("op", op),
					log.Int("attempt", attempt),
				)
			}
			return resp
		}

		c.logger.Warn("request failed",
			log.String("op", op),
			log.Int("attempt", attempt),
			log.Int("maxAttempts", c.cfg.MaxAttempts),
			log.Int("code", resp.Code),
		)

		if attempt < c.cfg.MaxAttempts {
			i := attempt - 1
			if i >= len(c.cfg.Backoff) {
				i = len(c.cfg.Backoff) - 1
			}
			c.sleep(ctx, c.cfg.Backoff[i])
			if ctx.Err() != nil {
				return resp
			}
		}
	}

	c.logger.Error("request failed, attempts exhausted",
		log.String("op", op),
		log.Int("attempts", c.cfg.MaxAttempts),
	)
	return resp
}

// HealthCheck probes the orchestrator liveness endpoint, identifying the
// device via query parameter. Success is an exact 200.
func (c *Client) HealthCheck(ctx context.Context) bool {
	u := c.BaseURL() + healthEndpoint + "?deviceId=" + url.QueryEscape(c.cfg.DeviceID)
	resp := c.WithRetry(ctx, "health check", func() Response {
		return c.request(ctx, http.MethodGet, u, nil, c.cfg.HealthTimeout)
	})
	return resp.Code == http.StatusOK
}

// SendScan submits one record. A 409 Conflict counts as success: the
// orchestrator already has this scan and suppressed the duplicate.
func (c *Client) SendScan(ctx context.Context, rec scan.Record) bool {
	body, err := json.Marshal(rec)
	if err != nil {
		c.logger.Error("marshal scan", log.Err(err))
		return false
	}

	u := c.BaseURL() + scanEndpoint
	resp := c.WithRetry(ctx, "scan submission", func() Response {
		return c.request(ctx, http.MethodPost, u, body, c.cfg.ScanTimeout)
	})

	if resp.Code == http.StatusConflict {
		c.logger.Info("scan already known to orchestrator",
			log.String("tokenId", rec.TokenID))
		return true
	}
	return resp.Success
}

// batchPayload is the wire format of the batch endpoint.
type batchPayload struct {
	Transactions []scan.Record `json:"transactions"`
}

// SendBatch uploads records in one request. Success is an exact 200; there
// is no partial-success decoding, so on any other code the whole batch
// stays queued for retry.
func (c *Client) SendBatch(ctx context.Context, recs []scan.Record) bool {
	if len(recs) == 0 {
		return true
	}
	body, err := json.Marshal(batchPayload{Transactions: recs})
	if err != nil {
		c.logger.Error("marshal batch", log.Err(err))
		return false
	}

	u := c.BaseURL() + batchEndpoint
	resp := c.WithRetry(ctx, "batch upload", func() Response {
		return c.request(ctx, http.MethodPost, u, body, c.cfg.BatchTimeout)
	})
	return resp.Code == http.StatusOK
}

// FetchTokens downloads the orchestrator's token database for the local
// mirror. Returns the raw JSON body.
func (c *Client) FetchTokens(ctx context.Context) ([]byte, error) {
	u := c.BaseURL() + tokensEndpoint
	resp := c.WithRetry(ctx, "token sync", func() Response {
		return c.request(ctx, http.MethodGet, u, nil, c.cfg.BatchTimeout)
	})
	if resp.Code != http.StatusOK {
		return nil, fmt.Errorf("token sync: status %d", resp.Code)
	}
	return resp.Body, nil
}
