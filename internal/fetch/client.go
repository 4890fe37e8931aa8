// Package fetch provides the HTTP client source adapters use to talk to
// upstream APIs: DNS caching, bounded retry with exponential backoff and a
// circuit breaker per upstream host.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cenk/backoff"
	"github.com/rs/dnscache"
	circuit "github.com/rubyist/circuitbreaker"
	"golang.org/x/text/encoding/charmap"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrRateLimited  = errors.New("rate limited by upstream")
	ErrUpstreamDown = errors.New("upstream unavailable")
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 32 << 20

// HTTPError is an unexpected non-success response.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// Client fetches upstream documents.
//
// Thread-safety: Client is safe for concurrent use.
type Client struct {
	http             *http.Client
	userAgent        string
	maxRetries       int
	baseDelay        time.Duration
	breakerThreshold int64
	logger           *slog.Logger

	breakers map[string]*circuit.Breaker
	mu       sync.RWMutex

	stopRefresh chan struct{}
	closeOnce   sync.Once
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. DNS caching is then up to the caller.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithMaxRetries sets the maximum retry attempts after the first try.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithBaseDelay sets the initial delay for exponential backoff.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = d
	}
}

// WithBreakerThreshold sets how many consecutive failures trip a host's breaker.
func WithBreakerThreshold(n int64) Option {
	return func(c *Client) {
		c.breakerThreshold = n
	}
}

// WithLogger sets the logger for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a Client. Call Close to stop the DNS refresh loop.
func NewClient(opts ...Option) *Client {
	resolver := &dnscache.Resolver{}
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				resolver.Refresh(true)
			case <-stop:
				return
			}
		}
	}()

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	c := &Client{
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					host, port, err := net.SplitHostPort(addr)
					if err != nil {
						return nil, err
					}
					ips, err := resolver.LookupHost(ctx, host)
					if err != nil {
						return nil, err
					}
					for _, ip := range ips {
						conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
						if err == nil {
							return conn, nil
						}
					}
					return nil, fmt.Errorf("failed to dial any resolved IP for %s", host)
				},
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		userAgent:        "coresync/1.0",
		maxRetries:       3,
		baseDelay:        500 * time.Millisecond,
		breakerThreshold: 5,
		logger:           slog.Default(),
		breakers:         make(map[string]*circuit.Breaker),
		stopRefresh:      stop,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close stops background DNS refreshing.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.stopRefresh) })
}

// Get returns the body of a successful GET. Rate limiting, 5xx responses and
// transport errors are retried with exponential backoff; 404 and other 4xx
// responses are not.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	host := hostOf(rawURL)
	breaker := c.breaker(host)

	if !breaker.Ready() {
		return nil, fmt.Errorf("circuit breaker open for %s: %w", host, ErrUpstreamDown)
	}

	var (
		body    []byte
		lastErr error
	)
	// A missing resource is an answer, not a failure of the host, so it is
	// kept out of the breaker's failure count.
	err := breaker.Call(func() error {
		body, lastErr = c.getWithRetry(ctx, rawURL)
		if errors.Is(lastErr, ErrNotFound) {
			return nil
		}
		return lastErr
	}, 0)
	if lastErr != nil {
		return nil, lastErr
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) getWithRetry(ctx context.Context, rawURL string) ([]byte, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.baseDelay
	exp.RandomizationFactor = 0.1
	exp.Multiplier = 2
	exp.MaxElapsedTime = 0
	exp.Reset()

	var policy backoff.BackOff = exp
	policy = backoff.WithMaxRetries(policy, uint64(max(c.maxRetries, 0)))
	policy = backoff.WithContext(policy, ctx)

	var body []byte
	attempt := 0
	op := func() error {
		attempt++
		var err error
		body, err = c.do(ctx, rawURL)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("retrying upstream request",
			"url", rawURL,
			"attempt", attempt,
			"wait", wait,
			"error", err)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return body, nil
}

func retryable(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamDown) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return false
	}
	// Transport errors: connection refused, reset, timeouts.
	return true
}

func (c *Client) do(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", rawURL, err)
		}
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", rawURL, ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%s: %w", rawURL, ErrRateLimited)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%s: HTTP %d: %w", rawURL, resp.StatusCode, ErrUpstreamDown)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: rawURL, Body: string(snippet)}
	}
}

// GetJSON fetches rawURL and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	body, err := c.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding %s: %w", rawURL, err)
	}
	return nil
}

// GetText fetches rawURL as text. Bodies that are not valid UTF-8 are decoded
// as ISO-8859-1.
func (c *Client) GetText(ctx context.Context, rawURL string) (string, error) {
	body, err := c.Get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return decodeText(body)
}

func decodeText(body []byte) (string, error) {
	if utf8.Valid(body) {
		return string(body), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("decoding latin-1 body: %w", err)
	}
	return string(decoded), nil
}

// breaker returns or creates the circuit breaker for host.
func (c *Client) breaker(host string) *circuit.Breaker {
	c.mu.RLock()
	b, ok := c.breakers[host]
	c.mu.RUnlock()
	if ok {
		return b
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.breakers[host]; ok {
		return b
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	b = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(c.breakerThreshold),
	})
	c.breakers[host] = b
	return b
}

// BreakerStates reports "open" or "closed" per upstream host.
func (c *Client) BreakerStates() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	states := make(map[string]string, len(c.breakers))
	for host, b := range c.breakers {
		if b.Tripped() {
			states[host] = "open"
		} else {
			states[host] = "closed"
		}
	}
	return states
}

// hostOf extracts the host used to group breaker state.
func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		if len(rawURL) > 50 {
			return rawURL[:50]
		}
		return rawURL
	}
	return parsed.Host
}
