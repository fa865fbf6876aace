package emailclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/heraldhq/herald/internal/backoff"
	"github.com/heraldhq/herald/internal/logging"
)

const (
	defaultAttemptTimeout   = 10 * time.Second
	defaultMaxRetries       = 3
	defaultBackoffInterval  = 2 * time.Second
	defaultBackoffBase      = 2
	defaultBreakerThreshold = 5
	defaultBreakerReset     = 60 * time.Second
)

// Client delivers greeting messages over the HTTP email API. Each Send runs a
// bounded retry loop with exponential backoff; every individual HTTP attempt
// passes through a circuit breaker so a hard-down remote is skipped cheaply.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	logger         *logging.Logger
	maxRetries     int
	attemptTimeout time.Duration
	backoff        backoff.Backoff
	breaker        *gobreaker.CircuitBreaker
	metrics        *Metrics
}

type sendRequest struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithMaxRetries(maxRetries int) ClientOption {
	return func(c *Client) { c.maxRetries = maxRetries }
}

func WithAttemptTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.attemptTimeout = timeout }
}

func WithBackoff(b backoff.Backoff) ClientOption {
	return func(c *Client) { c.backoff = b }
}

// WithBreakerSettings tunes when the breaker trips and how long it stays open
// before allowing a half-open probe.
func WithBreakerSettings(threshold uint32, reset time.Duration) ClientOption {
	return func(c *Client) {
		c.breaker = newBreaker(threshold, reset)
	}
}

func New(baseURL string, logger *logging.Logger, opts ...ClientOption) *Client {
	client := &Client{
		baseURL:        baseURL,
		logger:         logger,
		maxRetries:     defaultMaxRetries,
		attemptTimeout: defaultAttemptTimeout,
		backoff: &backoff.ExponentialBackoff{
			Interval: defaultBackoffInterval,
			Base:     defaultBackoffBase,
		},
		breaker: newBreaker(defaultBreakerThreshold, defaultBreakerReset),
		metrics: &Metrics{},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: client.attemptTimeout}
	}
	return client
}

func newBreaker(threshold uint32, reset time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "email-api",
		MaxRequests: 1,
		Timeout:     reset,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
}

// Metrics exposes the client's delivery counters.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// Send posts the message to the email API, retrying transient failures up to
// the configured limit. Terminal failures (most 4xx) and an open breaker end
// the loop immediately. The returned error is the last attempt's error.
func (c *Client) Send(ctx context.Context, email string, message string) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = c.attempt(ctx, email, message)
		if lastErr == nil {
			return nil
		}

		c.logger.Ctx(ctx).Warn("email delivery attempt failed",
			zap.Int("attempt", attempt+1),
			zap.String("classification", Classification(lastErr)),
			zap.Error(lastErr))

		if errors.Is(lastErr, ErrBreakerOpen) {
			// Waiting out an open breaker inside the per-message loop would
			// just stall the processor; let the record's retry schedule own it.
			return lastErr
		}
		if !Retryable(lastErr) || attempt >= c.maxRetries {
			return lastErr
		}

		select {
		case <-time.After(c.backoff.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) attempt(ctx context.Context, email string, message string) error {
	c.metrics.recordAttempt()

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.post(ctx, email, message)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = ErrBreakerOpen
	}
	if err != nil {
		c.metrics.recordFailure(err)
		return err
	}

	c.metrics.recordSuccess(time.Now())
	return nil
}

func (c *Client) post(ctx context.Context, email string, message string) error {
	body, err := json.Marshal(sendRequest{Email: email, Message: message})
	if err != nil {
		return fmt.Errorf("marshaling send request: %w", err)
	}

	// Cancellation aborts at the retry boundary (the backoff select in Send),
	// never mid-request: an in-flight attempt runs to its own timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/send-email", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}
