package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// Predefined errors for resilient downloads.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrBodyTooLarge is returned when a response exceeds MaxBodyBytes.
	ErrBodyTooLarge = errors.New("response body too large")
)

// DefaultMaxBodyBytes bounds a downloaded feed.
const DefaultMaxBodyBytes = 64 << 20

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies this client for circuit breaker naming.
	Name string

	// Timeout is the timeout of a single attempt.
	// Default: 10 seconds
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts.
	// Default: 3
	MaxRetries uint64

	// InitialInterval is the initial retry backoff interval.
	// Default: 200ms
	InitialInterval time.Duration

	// MaxInterval is the maximum retry backoff interval.
	// Default: 2 seconds
	MaxInterval time.Duration

	// MaxBodyBytes bounds the size of a downloaded body.
	// Default: 64 MiB
	MaxBodyBytes int64

	// UserAgent is sent with every request when set.
	UserAgent string

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig
}

// DefaultClientConfig returns defaults suited to polling a transit feed.
func DefaultClientConfig(name string) ClientConfig {
	cbConfig := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxBodyBytes:    DefaultMaxBodyBytes,
		CircuitBreaker:  &cbConfig,
	}
}

// Client downloads documents with retries behind a circuit breaker.
type Client struct {
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker[[]byte]
	config         ClientConfig
}

// NewClient creates a new resilient HTTP client.
func NewClient(cfg ClientConfig) *Client {
	defaults := DefaultClientConfig(cfg.Name)
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = defaults.InitialInterval
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = defaults.MaxInterval
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if cfg.CircuitBreaker == nil {
		cfg.CircuitBreaker = defaults.CircuitBreaker
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		circuitBreaker: NewCircuitBreaker[[]byte](*cfg.CircuitBreaker),
		config:         cfg,
	}
}

// Get downloads url and returns the response body.
// Network errors and 5xx responses are retried with exponential backoff;
// any other non-2xx status fails immediately with a *StatusError.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.MaxInterval = c.config.MaxInterval
	bo.MaxElapsedTime = 0 // Unlimited, we control retries via WithMaxRetries

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx)

	operation := func() ([]byte, error) {
		body, err := c.circuitBreaker.Execute(func() ([]byte, error) {
			return c.fetch(ctx, url)
		})
		if err == nil {
			return body, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, backoff.Permanent(ErrCircuitOpen)
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return nil, backoff.Permanent(err)
		}
		if errors.Is(err, ErrBodyTooLarge) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	body, err := backoff.RetryWithData(operation, policy)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	return body, nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // draining for reuse
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if int64(len(body)) > c.config.MaxBodyBytes {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}

// StatusError is returned for a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Retryable reports whether the status is a server error.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.circuitBreaker.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.circuitBreaker.Counts()
}
