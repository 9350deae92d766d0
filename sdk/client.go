// Package sdk is a Go client for the quadchat HTTP and WebSocket API.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
)

const (
	defaultBaseURL    = "http://localhost:8080"
	defaultMaxRetries = 2
	defaultRetryWait  = 200 * time.Millisecond

	memberTokenHeader = "X-Member-Token"
)

type Client struct {
	cfg     config
	baseURL *url.URL

	Rooms *RoomService
}

// NewClient builds a client. QUADCHAT_BASE_URL overrides the default base
// URL; options override both.
func NewClient(opts ...Option) (*Client, error) {
	cfg := config{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		dialer:     websocket.DefaultDialer,
		maxRetries: defaultMaxRetries,
		retryWait:  defaultRetryWait,
	}
	if v, ok := os.LookupEnv("QUADCHAT_BASE_URL"); ok && v != "" {
		cfg.baseURL = v
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	base, err := url.Parse(strings.TrimRight(cfg.baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("quadchat: invalid base url %q", cfg.baseURL)
	}

	c := &Client{cfg: cfg, baseURL: base}
	c.Rooms = &RoomService{client: c}
	return c, nil
}

// Health calls /api/health and reports nil when the server is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.execute(ctx, http.MethodGet, "/api/health", nil, nil)
}

// execute sends one JSON request. 503 responses are retried with exponential
// backoff, honoring Retry-After; every other failure is returned as is.
func (c *Client) execute(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("quadchat: failed to encode request: %w", err)
		}
	}

	operation := func() (struct{}, error) {
		err := c.do(ctx, method, path, payload, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable {
			return struct{}{}, err
		}
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.retryWait

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.cfg.maxRetries+1),
	)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.memberToken != "" {
		req.Header.Set(memberTokenHeader, c.cfg.memberToken)
	}

	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(apiErr)
		if wait, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && resp.StatusCode == http.StatusServiceUnavailable {
			return errors.Join(apiErr, backoff.RetryAfter(wait))
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("quadchat: failed to decode response: %w", err)
	}
	return nil
}

// send runs the request through the configured middlewares.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	next := c.cfg.httpClient.Do
	for i := len(c.cfg.middlewares) - 1; i >= 0; i-- {
		mw, inner := c.cfg.middlewares[i], next
		next = func(r *http.Request) (*http.Response, error) { return mw(r, inner) }
	}
	return next(req)
}

func roomPath(code string, parts ...string) string {
	path := "/api/rooms/" + url.PathEscape(code)
	for _, p := range parts {
		path += "/" + p
	}
	return path
}
