// Package remote talks to a LanguageTool-compatible HTTP service.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"prosa/internal/backend"
)

const (
	DefaultTimeout       = 30 * time.Second
	DefaultRetries       = 3
	DefaultConcurrency   = 4
	DefaultRetryInterval = 200 * time.Millisecond
)

// Options configure a Client.
type Options struct {
	// Endpoint is the service base URL, e.g. http://localhost:8081.
	Endpoint string
	// Timeout bounds one HTTP attempt.
	Timeout time.Duration
	// Retries is the number of extra attempts after a transient failure.
	Retries       int
	RetryInterval time.Duration
	// Concurrency bounds in-flight requests.
	Concurrency int
	HTTPClient  *http.Client
	Logger      *slog.Logger
	// Name is reported in Capabilities.
	Name string
}

// Client is a remote Backend.
type Client struct {
	base   *url.URL
	opts   Options
	http   *http.Client
	sem    *semaphore.Weighted
	log    *slog.Logger
	closed atomic.Bool
}

// Endpoint builds a base URL from host and port. A host with a scheme is
// used as is.
func Endpoint(host string, port int) string {
	if host == "" {
		host = "localhost"
	}
	if strings.Contains(host, "://") {
		if port == 0 {
			return host
		}
		u, err := url.Parse(host)
		if err != nil {
			return host
		}
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
		return u.String()
	}
	if port == 0 {
		port = 8081
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// New validates opts and returns a client. No connection is made.
func New(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, &backend.ConfigError{Field: "host", Msg: "no endpoint configured"}
	}
	u, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, &backend.ConfigError{Field: "host", Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &backend.ConfigError{Field: "host", Msg: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return nil, &backend.ConfigError{Field: "host", Msg: "endpoint has no host"}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Name == "" {
		opts.Name = "remote"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Client{
		base: u,
		opts: opts,
		http: client,
		sem:  semaphore.NewWeighted(int64(opts.Concurrency)),
		log:  log,
	}, nil
}

func (c *Client) url(path string) string {
	return strings.TrimSuffix(c.base.String(), "/") + path
}

// Capabilities implements backend.Backend.
func (c *Client) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		Name:                c.opts.Name,
		ServerSideDisabling: true,
		MaxConcurrent:       c.opts.Concurrency,
	}
}

// statusError is a non-2xx answer.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("HTTP %d", e.code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.code, e.body)
}

// Check implements backend.Backend. Transient failures (network errors,
// 5xx, 429) are retried; the final failure is a *backend.ConnectionError.
func (c *Client) Check(ctx context.Context, req backend.Request) ([]backend.Match, error) {
	if c.closed.Load() {
		return nil, backend.ErrClosed
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	form := url.Values{}
	form.Set("text", req.Text)
	form.Set("language", req.LanguageTag())
	if len(req.DisabledRules) > 0 {
		form.Set("disabledRules", strings.Join(req.DisabledRules, ","))
	}
	body := form.Encode()

	attempts := 0
	var matches []backend.Match
	op := func() error {
		attempts++
		var err error
		matches, err = c.post(ctx, req.Text, body)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		var se *statusError
		if errors.As(err, &se) && se.code < 500 && se.code != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.log.Debug("check request failed, retrying", "endpoint", c.base.String(), "attempt", attempts, "wait", wait, "err", err)
	}

	err := backoff.RetryNotify(op, c.policy(ctx), notify)
	if err == nil {
		return matches, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, &backend.ConnectionError{Endpoint: c.base.String(), Attempts: attempts, Err: err}
}

func (c *Client) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.opts.RetryInterval
	exp.MaxInterval = 16 * c.opts.RetryInterval
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.opts.Retries)), ctx)
}

func (c *Client) post(ctx context.Context, text, body string) ([]backend.Match, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/v2/check"), strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}
	matches, err := backend.DecodeLT(text, resp.Body)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	return matches, nil
}

// Ping asks the service for its language list. It is the readiness probe
// of the bundled backend.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/v2/languages"), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

// Close rejects further checks and drops idle connections.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.http.CloseIdleConnections()
	return nil
}
