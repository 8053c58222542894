// Package okx is the REST client for the OKX v5 API: public market data,
// account queries, leverage and order placement for USDT-margined swaps.
package okx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/perpbot/internal/crypto"
	"github.com/alanyoungcy/perpbot/internal/domain"
)

// DefaultBaseURL is the production REST root. Demo trading uses the same
// host with the x-simulated-trading header.
const DefaultBaseURL = "https://www.okx.com"

// RetryConfig bounds the capped exponential backoff used at every call site.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxTries        uint
}

// DefaultRetryConfig returns the retry policy used when none is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
		MaxTries:        4,
	}
}

// ClientConfig holds connection parameters for the venue client.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	SecretKey  string
	Passphrase string
	Simulated  bool // demo trading account

	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Retry             RetryConfig

	// BreakerFailures consecutive infrastructure failures open the breaker
	// for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration

	// SharedLimit requests per SharedWindow across all processes using the
	// same API key, enforced when a shared limiter is attached.
	SharedLimit  int
	SharedWindow time.Duration
}

// Client is the REST client for the OKX v5 API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       *crypto.HMACAuth
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	retry      RetryConfig
	shared     domain.RateLimiter
	sharedKey  string
	sharedN    int
	sharedWin  time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// NewClient creates a venue client from cfg.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.Retry.MaxTries == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	if cfg.SharedWindow <= 0 {
		cfg.SharedWindow = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "okx"))

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "okx",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Venue rejections mean the venue is up; only transport and 5xx
		// failures count against the breaker.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			return err == nil || (errors.As(err, &apiErr) && !apiErr.Transient())
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("okx: circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		auth: &crypto.HMACAuth{
			Key:        cfg.APIKey,
			Secret:     cfg.SecretKey,
			Passphrase: cfg.Passphrase,
			Simulated:  cfg.Simulated,
		},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker:   breaker,
		retry:     cfg.Retry,
		sharedKey: "okx:" + cfg.APIKey,
		sharedN:   cfg.SharedLimit,
		sharedWin: cfg.SharedWindow,
		now:       time.Now,
		logger:    logger,
	}
}

// SetSharedLimiter attaches a cross-process limiter for signed requests.
func (c *Client) SetSharedLimiter(rl domain.RateLimiter) {
	c.shared = rl
}

// HasCredentials reports whether signed endpoints can be called.
func (c *Client) HasCredentials() bool {
	return c.auth.Valid()
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// do sends one logical request, retrying transient failures with capped
// exponential backoff, and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, signed bool, out any) error {
	requestPath := path
	if len(query) > 0 {
		requestPath += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("okx: marshal request body: %w", err)
		}
		payload = b
	}

	if signed {
		if !c.auth.Valid() {
			return fmt.Errorf("okx: %s %s: %w", method, path, domain.ErrMissingCredentials)
		}
		if c.shared != nil && c.sharedN > 0 {
			if err := c.shared.Wait(ctx, c.sharedKey, c.sharedN, c.sharedWin); err != nil {
				return fmt.Errorf("okx: shared rate limit: %w", err)
			}
		}
	}

	operation := func() (json.RawMessage, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		res, err := c.breaker.Execute(func() (any, error) {
			return c.roundTrip(ctx, method, requestPath, payload, signed)
		})
		if err != nil {
			if ctx.Err() != nil || !retryable(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return res.(json.RawMessage), nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.retry.InitialInterval
	eb.MaxInterval = c.retry.MaxInterval
	eb.Multiplier = c.retry.Multiplier

	data, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(c.retry.MaxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.WarnContext(ctx, "okx: retrying request",
				slog.String("method", method),
				slog.String("path", path),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		}),
	)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("okx: %s %s: venue circuit open: %w", method, path, err)
		}
		return fmt.Errorf("okx: %s %s: %w", method, path, err)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("okx: decode %s data: %w", path, err)
		}
	}
	return nil
}

// roundTrip performs a single HTTP exchange and returns the envelope data.
func (c *Client) roundTrip(ctx context.Context, method, requestPath string, payload []byte, signed bool) (json.RawMessage, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if signed {
		for k, v := range c.auth.HeadersAt(method, requestPath, string(payload), c.now()) {
			req.Header.Set(k, v)
		}
	} else if c.auth.Simulated {
		req.Header.Set(crypto.HeaderSimulatedTrading, "1")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return decodeEnvelope(resp.StatusCode, respBody)
}

// decodeEnvelope maps HTTP status and the body's code field to errors.
func decodeEnvelope(statusCode int, body []byte) (json.RawMessage, error) {
	var env envelope
	decodeErr := json.Unmarshal(body, &env)

	if decodeErr == nil && env.Code != "" && env.Code != "0" {
		apiErr := &APIError{HTTPStatus: statusCode, Code: env.Code, Msg: env.Msg}
		var items []itemStatus
		if json.Unmarshal(env.Data, &items) == nil {
			for _, it := range items {
				if it.SCode != "" && it.SCode != "0" {
					apiErr.SCode, apiErr.SMsg = it.SCode, it.SMsg
					break
				}
			}
		}
		return nil, apiErr
	}

	if err := checkHTTPStatus(statusCode, body); err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode envelope: %w", decodeErr)
	}
	return env.Data, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return &statusError{status: statusCode, body: bodyStr}
	}
}
