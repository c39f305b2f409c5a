// Package fetcher performs JSON requests against the wallet backend. The base
// URL is resolved on every call so an override takes effect immediately.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"

	"promo-gate/internal/observability"
)

var (
	ErrTransport   = errors.New("upstream transport failure")
	ErrStatus      = errors.New("upstream returned non-success status")
	ErrDecode      = errors.New("upstream returned malformed body")
	ErrUnavailable = errors.New("upstream circuit open")
)

// maxBody caps how much of a response is read.
const maxBody = 4 << 20

// StatusError carries the HTTP status of a non-2xx response.
type StatusError struct{ Code int }

func (e *StatusError) Error() string { return fmt.Sprintf("upstream status %d", e.Code) }
func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// BaseURLResolver yields the backend base address at call time.
type BaseURLResolver interface {
	BaseURL(ctx context.Context) string
}

// StaticBaseURL is a fixed resolver.
type StaticBaseURL string

func (s StaticBaseURL) BaseURL(context.Context) string { return string(s) }

type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      3,
		Interval:         10 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

type Client struct {
	http    *http.Client
	base    BaseURLResolver
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func New(base BaseURLResolver, timeout time.Duration, bc BreakerConfig) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "upstream",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bc.FailureThreshold
		},
		// A 4xx or a malformed body means the backend is up. A caller that
		// went away says nothing about the backend either way.
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, ErrDecode) || errors.Is(err, context.Canceled) {
				return true
			}
			var se *StatusError
			return errors.As(err, &se) && se.Code < 500
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
			observability.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		base:    base,
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

// Get issues a GET and decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post sends body as JSON and decodes the JSON response into out (if non-nil).
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, payload, out)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any) error {
	url := c.URL(ctx, path)

	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, url, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		observability.UpstreamFetches.WithLabelValues(path, "unavailable").Inc()
		return fmt.Errorf("%s %s: %w", method, path, ErrUnavailable)
	}
	if err != nil {
		observability.UpstreamFetches.WithLabelValues(path, outcome(err)).Inc()
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			observability.UpstreamFetches.WithLabelValues(path, "decode").Inc()
			return fmt.Errorf("%s %s: %w: %v", method, path, ErrDecode, err)
		}
	}
	observability.UpstreamFetches.WithLabelValues(path, "ok").Inc()
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode}
	}
	return raw, nil
}

// URL joins the current base URL and path.
func (c *Client) URL(ctx context.Context, path string) string {
	base := strings.TrimRight(c.base.BaseURL(ctx), "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func (c *Client) BreakerState() gobreaker.State { return c.breaker.State() }

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrStatus):
		return "status"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "rejected"
	}
}
