// Package api is the client of the leads backend. Reads go through a shared
// cache which is invalidated synchronously by every successful mutation.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jakopako/leadsync/internal/cache"
	"github.com/jakopako/leadsync/internal/log"
)

type Config struct {
	BaseURL        string `yaml:"base_url" env:"LEADSYNC_BACKEND_URL" env-default:"http://localhost:8000"`
	Token          string `yaml:"token" env:"LEADSYNC_TOKEN"`
	TimeoutMS      int    `yaml:"timeout_ms" env-default:"30000"`
	MaxRetries     int    `yaml:"max_retries" env-default:"3"`
	InitialDelayMS int    `yaml:"initial_delay_ms" env-default:"1000"`
	MaxDelayMS     int    `yaml:"max_delay_ms" env-default:"10000"`
}

// TTLs are the lifetimes of the cached reads.
type TTLs struct {
	Campaigns time.Duration `yaml:"campaigns" env-default:"5m"`
	Stats     time.Duration `yaml:"stats" env-default:"2m"`
	Leads     time.Duration `yaml:"leads" env-default:"3m"`
}

func DefaultTTLs() TTLs {
	return TTLs{Campaigns: 5 * time.Minute, Stats: 2 * time.Minute, Leads: 3 * time.Minute}
}

// TokenSource supplies the bearer token of every request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ErrNoToken is wrapped by errors of the TokenSource. Requests failing
// with it are never retried.
var ErrNoToken = errors.New("failed to get token")

type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

type Client struct {
	baseURL      string
	httpClient   *http.Client
	tokens       TokenSource
	cache        *cache.Cache
	ttls         TTLs
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
	// onUnauthorized is called after a 401, e.g. to drop the stored session.
	onUnauthorized func(ctx context.Context)
}

type Option func(*Client)

func WithTTLs(ttls TTLs) Option {
	return func(c *Client) {
		c.ttls = ttls
	}
}

func WithUnauthorizedHandler(f func(ctx context.Context)) Option {
	return func(c *Client) {
		c.onUnauthorized = f
	}
}

// NewClient returns a client for the backend at cfg.BaseURL. A nil cache
// gets replaced by a private one. If tokens is nil cfg.Token is used.
func NewClient(cfg Config, tokens TokenSource, c *cache.Cache, opts ...Option) *Client {
	if c == nil {
		c = cache.New()
	}
	if tokens == nil {
		tokens = StaticToken(cfg.Token)
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cl := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		tokens:       tokens,
		cache:        c,
		ttls:         DefaultTTLs(),
		maxRetries:   cfg.MaxRetries,
		initialDelay: time.Duration(cfg.InitialDelayMS) * time.Millisecond,
		maxDelay:     time.Duration(cfg.MaxDelayMS) * time.Millisecond,
	}
	if cl.initialDelay <= 0 {
		cl.initialDelay = time.Second
	}
	if cl.maxDelay < cl.initialDelay {
		cl.maxDelay = 10 * cl.initialDelay
	}
	for _, o := range opts {
		o(cl)
	}
	return cl
}

// Cache returns the cache shared with other readers of the backend.
func (c *Client) Cache() *cache.Cache {
	return c.cache
}

// InvalidateLeads drops all cached lead listings.
func (c *Client) InvalidateLeads() {
	c.cache.Invalidate(cache.LeadsPrefix)
}

// InvalidateStats drops all cached stats.
func (c *Client) InvalidateStats() {
	c.cache.Invalidate(cache.StatsPrefix)
}

// request sends a request with a json body and returns the response body.
// If retry is set, failures that might be transient are retried with
// exponential backoff.
func (c *Client) request(ctx context.Context, method, path string, body any, retry bool) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}
	if !retry || c.maxRetries <= 0 {
		return c.do(ctx, method, path, payload)
	}
	logger := log.LoggerFromContext(ctx)
	op := func() ([]byte, error) {
		b, err := c.do(ctx, method, path, payload)
		if err != nil && !isTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return b, err
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval: c.initialDelay,
		Multiplier:      2,
		MaxInterval:     c.maxDelay,
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, d time.Duration) {
			logger.Warn("retrying request", slog.String("method", method), slog.String("path", path), slog.Duration("delay", d), slog.String("err", err.Error()))
		}),
	)
}

func isTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return retryable(se.StatusCode)
	}
	var de *DuplicateError
	var ve *ValidationError
	if errors.As(err, &de) || errors.As(err, &ve) || errors.Is(err, ErrNoToken) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoToken, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response: %w", method, path, err)
	}
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return b, nil
	}
	msg := message(b)
	switch res.StatusCode {
	case http.StatusConflict:
		return nil, &DuplicateError{Message: msg}
	case http.StatusUnprocessableEntity:
		if isDuplicateMessage(msg) {
			return nil, &DuplicateError{Message: msg}
		}
		if msg == "" {
			msg = "validation failed"
		}
		return nil, &ValidationError{Message: msg, Fields: fieldErrors(b)}
	case http.StatusUnauthorized:
		if c.onUnauthorized != nil {
			c.onUnauthorized(ctx)
		}
	}
	return nil, &StatusError{StatusCode: res.StatusCode, Message: msg}
}

func isDuplicateMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "already been taken") || strings.Contains(msg, "duplicate")
}
