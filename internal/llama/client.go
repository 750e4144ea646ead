package llama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/web3-frozen/chain-efficiency/internal/metrics"
)

const (
	DefaultAPIBase         = "https://api.llama.fi"
	DefaultStablecoinsBase = "https://stablecoins.llama.fi"

	DefaultMaxRetries = 3
	DefaultRetryDelay = 1 * time.Second
	DefaultTimeout    = 30 * time.Second
	DefaultBatchSize  = 5
	DefaultBatchPause = 200 * time.Millisecond
)

// Config controls where the client points and how hard it retries.
type Config struct {
	APIBase         string
	StablecoinsBase string
	MaxRetries      int
	RetryDelay      time.Duration
	Timeout         time.Duration
	BatchSize       int
	BatchPause      time.Duration
}

// DefaultConfig returns the production DefiLlama endpoints and retry policy.
func DefaultConfig() Config {
	return Config{
		APIBase:         DefaultAPIBase,
		StablecoinsBase: DefaultStablecoinsBase,
		MaxRetries:      DefaultMaxRetries,
		RetryDelay:      DefaultRetryDelay,
		Timeout:         DefaultTimeout,
		BatchSize:       DefaultBatchSize,
		BatchPause:      DefaultBatchPause,
	}
}

// Client talks to the DefiLlama HTTP API.
type Client struct {
	client *http.Client
	logger *slog.Logger
	cfg    Config
}

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		cfg:    cfg,
	}
}

// errNullBody marks a 2xx response whose body is JSON null.
var errNullBody = errors.New("empty response body")

// Response is the uniform result of a fetch. Exactly one of Data and Error
// is set.
type Response[T any] struct {
	Data      *T        `json:"data"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Attempts  int       `json:"attempts"`

	endpoint string
	url      string
}

// OK reports whether the response carries data.
func (r Response[T]) OK() bool { return r.Error == "" && r.Data != nil }

// Err returns the failure as a *RequestError, or nil on success.
func (r Response[T]) Err() error {
	if r.Error == "" {
		return nil
	}
	return &RequestError{Endpoint: r.endpoint, URL: r.url, Attempts: r.Attempts, Message: r.Error}
}

// RequestError describes a fetch that failed on every attempt.
type RequestError struct {
	Endpoint string
	URL      string
	Attempts int
	Message  string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s (after %d attempts)", e.Endpoint, e.Message, e.Attempts)
}

// Fetch GETs url and decodes the JSON body into T. A failed attempt (transport
// error, non-2xx status or bad body) is retried after RetryDelay × attempt,
// up to MaxRetries attempts in total. Fetch never returns an error value:
// failures end up in the envelope.
func Fetch[T any](ctx context.Context, c *Client, endpoint, url string) Response[T] {
	start := time.Now()
	defer func() {
		metrics.FetchDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	var (
		lastErr  error
		attempts int
	)
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		attempts = attempt
		data, err := getJSON[T](ctx, c, url)
		if err == nil {
			metrics.FetchTotal.WithLabelValues(endpoint, "success").Inc()
			return Response[T]{
				Data:      data,
				Timestamp: time.Now(),
				Attempts:  attempts,
				endpoint:  endpoint,
				url:       url,
			}
		}
		lastErr = err
		if attempt == c.cfg.MaxRetries {
			break
		}

		metrics.FetchRetriesTotal.WithLabelValues(endpoint).Inc()
		delay := c.cfg.RetryDelay * time.Duration(attempt)
		c.logger.Warn("fetch failed, retrying",
			"endpoint", endpoint, "url", url, "attempt", attempt, "delay", delay, "error", err)
		if err := sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	metrics.FetchTotal.WithLabelValues(endpoint, "error").Inc()
	c.logger.Error("fetch failed", "endpoint", endpoint, "url", url, "attempts", attempts, "error", lastErr)
	return Response[T]{
		Error:     lastErr.Error(),
		Timestamp: time.Now(),
		Attempts:  attempts,
		endpoint:  endpoint,
		url:       url,
	}
}

func getJSON[T any](ctx context.Context, c *Client, url string) (*T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if bytes.Equal(raw, []byte("null")) {
		return nil, errNullBody
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
