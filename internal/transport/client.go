package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultBaseDelay        = 1000 * time.Millisecond
	defaultMaxAttempts      = 3
	maxBackoffDelay         = 30 * time.Second
	jitterWindow            = 1000 * time.Millisecond
	defaultHeartbeatTimeout = 5 * time.Second
)

// Request is one logical call against the upstream server. Attempts and
// Timeout override the client defaults when non-zero.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    interface{}
	Timeout time.Duration
}

// Options tunes the retry policy and the heartbeat probe deadline.
type Options struct {
	BaseDelay        time.Duration
	MaxAttempts      int
	HeartbeatTimeout time.Duration
	HTTPClient       *http.Client
}

// Client executes requests against the upstream POS server with automatic
// retry and bearer-token authentication. It is stateless apart from the token
// and base configuration, and safe for concurrent use.
type Client struct {
	baseURL          string
	httpClient       *http.Client
	baseDelay        time.Duration
	maxAttempts      int
	heartbeatTimeout time.Duration

	mu    sync.RWMutex
	token string

	// jitter is swappable so backoff tests are deterministic.
	jitter func() time.Duration
	// sleep is swappable so retry tests don't wait wall-clock time.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a transport client for the given base URL and token.
func NewClient(baseURL, token string, opts Options) *Client {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:          strings.TrimRight(baseURL, "/"),
		httpClient:       opts.HTTPClient,
		baseDelay:        opts.BaseDelay,
		maxAttempts:      opts.MaxAttempts,
		heartbeatTimeout: opts.HeartbeatTimeout,
		token:            token,
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(jitterWindow)))
		},
		sleep: sleepCtx,
	}
}

// SetToken rotates the bearer token. The new token is attached to the very
// next request — the swap is guarded by the same lock the request path reads
// under, so there is no race window.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Backoff returns the delay before retry number attempt (starting at 1):
// min(base * 2^(attempt-1) + jitter, 30s). The deterministic component is
// monotonically non-decreasing in the attempt number.
func (c *Client) Backoff(attempt int) time.Duration {
	d := c.baseDelay << uint(attempt-1)
	if d > maxBackoffDelay || d <= 0 { // <= 0 guards shift overflow
		d = maxBackoffDelay
	}
	d += c.jitter()
	if d > maxBackoffDelay {
		d = maxBackoffDelay
	}
	return d
}

// Execute runs one logical request, retrying per the default policy, and
// decodes a JSON response body into out (when out is non-nil). Failures are
// returned as a typed *Error.
func (c *Client) Execute(ctx context.Context, req Request, out interface{}) error {
	op := req.Method + " " + req.Path

	var lastErr *Error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.Backoff(attempt)
			log.Warn().
				Str("op", op).
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Str("kind", lastErr.Kind.String()).
				Msg("transport: retrying request")
			if err := c.sleep(ctx, delay); err != nil {
				return &Error{Kind: KindCancelled, Op: op, Err: err}
			}
		}

		err := c.doOnce(ctx, req, op, out)
		if err == nil {
			return nil
		}
		te, ok := err.(*Error)
		if !ok {
			return err
		}
		if !te.Retryable() {
			return te
		}
		lastErr = te
	}
	return lastErr
}

// doOnce performs a single HTTP attempt with classification.
func (c *Client) doOnce(ctx context.Context, req Request, op string, out interface{}) error {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("transport: marshal body for %s: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	u := c.baseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return fmt.Errorf("transport: create request for %s: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if tok := c.currentToken(); tok != "" {
		httpReq.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &Error{Kind: classifyErr(err), Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &Error{Kind: classifyStatus(resp.StatusCode), Status: resp.StatusCode, Op: op}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("transport: decode response for %s: %w", op, err)
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
