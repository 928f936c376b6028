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

// ErrCircuitOpen is returned without contacting the remote when the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ClientConfig configures a resilient HTTP client.
type ClientConfig struct {
	Name            string
	Timeout         time.Duration // per attempt
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Breaker         *BreakerConfig
	Registry        *Registry // optional; records outcomes for health reporting
}

// DefaultClientConfig returns defaults for a named remote dependency.
func DefaultClientConfig(name string) ClientConfig {
	b := DefaultBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         5 * time.Second,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Breaker:         &b,
	}
}

// Client executes requests through a circuit breaker with exponential backoff.
type Client struct {
	name     string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	cfg      ClientConfig
	registry *Registry
}

// NewClient creates a resilient client, filling unset fields from DefaultClientConfig.
func NewClient(cfg ClientConfig) *Client {
	def := DefaultClientConfig(cfg.Name)
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.Breaker == nil {
		cfg.Breaker = def.Breaker
	}

	c := &Client{
		name:     cfg.Name,
		http:     &http.Client{Timeout: cfg.Timeout},
		breaker:  NewBreaker[*http.Response](*cfg.Breaker), //nolint:bodyclose // type parameter
		cfg:      cfg,
		registry: cfg.Registry,
	}
	if c.registry != nil {
		c.registry.Register(cfg.Name, c)
	}
	return c
}

// Name returns the dependency name.
func (c *Client) Name() string { return c.name }

// Do executes req using its own context.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext executes req, retrying network errors and 5xx responses.
// Request bodies are replayed on retry through req.GetBody.
// 4xx responses are returned as-is without retry.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval
	bo.MaxElapsedTime = 0

	var last *http.Response
	attempt := func() error {
		if last != nil {
			drain(last)
			last = nil
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // returned to caller
			r, err := c.send(ctx, req)
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= 500 {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			last = resp
			return err
		}
		last = resp
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx)
	err := backoff.Retry(attempt, policy)
	c.record(err, last)

	if err != nil {
		if last != nil {
			// Exhausted retries on a 5xx: hand back the final response.
			return last, nil
		}
		return nil, err
	}
	return last, nil
}

func (c *Client) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	out := req.Clone(ctx)
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, fmt.Errorf("request body for %s cannot be replayed", c.name)
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replay request body: %w", err)
		}
		out.Body = body
	}
	return c.http.Do(out)
}

func (c *Client) record(err error, resp *http.Response) {
	if c.registry == nil {
		return
	}
	switch {
	case err != nil && resp == nil:
		c.registry.RecordFailure(c.name, err)
	case resp != nil && resp.StatusCode >= 500:
		c.registry.RecordFailure(c.name, &ServerError{StatusCode: resp.StatusCode})
	default:
		c.registry.RecordSuccess(c.name)
	}
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// State returns the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Counts returns the breaker counters.
func (c *Client) Counts() gobreaker.Counts {
	return c.breaker.Counts()
}

// ServerError is a 5xx response from a remote dependency.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}
