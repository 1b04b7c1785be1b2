package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"codeboard/internal/logger"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

const (
	retryBaseDelay = 250 * time.Millisecond
	retryMaxDelay  = 2 * time.Second
	userAgent      = "codeboard/1.0"
)

var errTransport = errors.New("transport failure")

// ClientConfig configures the GraphQL client
type ClientConfig struct {
	URL               string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
}

// Client talks to the provider's GraphQL endpoint.
// Requests are paced by a shared token bucket so batch refreshes respect provider limits.
type Client struct {
	url        string
	timeout    time.Duration
	maxRetries int
	limiter    *rate.Limiter
}

// NewClient creates a new GraphQL client
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &Client{
		url:        cfg.URL,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
}

// StatusError is returned when the provider answers with a non-2xx status
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider responded with status %d: %s", e.Code, e.Body)
}

// Query posts a GraphQL request and returns the decoded envelope ({"data": ..., "errors": ...})
func (c *Client) Query(ctx context.Context, req GraphQLRequest) (Raw, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		envelope, err := c.do(ctx, req)
		if err == nil {
			return envelope, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == c.maxRetries {
			break
		}

		logger.Debug().
			Err(err).
			Str("operation", req.OperationName).
			Int("attempt", attempt+1).
			Msg("🔁 Retrying provider request")

		if err := sleepWithBackoff(ctx, attempt); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// requestTimeout caps the configured timeout at what is left of the context deadline
func (c *Client) requestTimeout(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, context.DeadlineExceeded
		}
		if remaining < timeout {
			timeout = remaining
		}
	}
	return timeout, nil
}

// do performs one HTTP round trip through a fiber client agent.
// The agent cannot be cancelled mid-flight, so the context only bounds it through the timeout.
func (c *Client) do(ctx context.Context, req GraphQLRequest) (Raw, error) {
	timeout, err := c.requestTimeout(ctx)
	if err != nil {
		return nil, err
	}

	agent := fiber.Post(c.url)
	agent.Timeout(timeout)
	agent.UserAgent(userAgent)
	agent.Set("Referer", refererFor(c.url))
	agent.JSON(req)

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("execute request: %w", ctxErr)
		}
		return nil, fmt.Errorf("execute request: %w: %w", errTransport, errors.Join(errs...))
	}

	if code < 200 || code >= 300 {
		return nil, &StatusError{Code: code, Body: truncate(strings.TrimSpace(string(body)), 200)}
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var envelope Raw
	if err := decoder.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if envelope == nil {
		return nil, errors.New("decode response: empty body")
	}

	return envelope, nil
}

// UserProfile runs the full profile query and returns its data payload
func (c *Client) UserProfile(ctx context.Context, username string) (Raw, error) {
	envelope, err := c.Query(ctx, UserProfileRequest(username))
	if err != nil {
		return nil, err
	}
	return dataOf(envelope)
}

// RecentSubmissions returns up to limit recent submissions of any status
func (c *Client) RecentSubmissions(ctx context.Context, username string, limit int) ([]Raw, error) {
	envelope, err := c.Query(ctx, RecentSubmissionsRequest(username, limit))
	if err != nil {
		return nil, err
	}
	data, err := dataOf(envelope)
	if err != nil {
		return nil, err
	}
	return data.Objects("recentSubmissionList"), nil
}

// ContestRanking returns the userContestRanking object, or nil if the user never competed
func (c *Client) ContestRanking(ctx context.Context, username string) (Raw, error) {
	envelope, err := c.Query(ctx, ContestRankingRequest(username))
	if err != nil {
		return nil, err
	}
	data, err := dataOf(envelope)
	if err != nil {
		return nil, err
	}
	return data.Object("userContestRanking"), nil
}

// dataOf unwraps the GraphQL data payload. Errors are reported only when data is absent.
func dataOf(envelope Raw) (Raw, error) {
	if data := envelope.Object("data"); data != nil {
		return data, nil
	}

	var messages []string
	for _, e := range envelope.Objects("errors") {
		if msg := e.String("message"); msg != "" {
			messages = append(messages, msg)
		}
	}
	if len(messages) == 0 {
		return nil, errors.New("provider response has no data")
	}
	return nil, fmt.Errorf("provider errors: %s", strings.Join(messages, "; "))
}

func isRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case fiber.StatusTooManyRequests, fiber.StatusInternalServerError, fiber.StatusBadGateway,
			fiber.StatusServiceUnavailable, fiber.StatusGatewayTimeout:
			return true
		}
		return false
	}
	// Transport failures (timeouts, resets) are worth another try
	return errors.Is(err, errTransport)
}

func sleepWithBackoff(ctx context.Context, attempt int) error {
	delay := retryBaseDelay * time.Duration(1<<attempt)
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}

	jitter := time.Duration(rand.Int63n(int64(delay/2) + 1))
	delay += jitter
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func refererFor(url string) string {
	if i := strings.Index(url, "/graphql"); i > 0 {
		return url[:i]
	}
	return url
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
