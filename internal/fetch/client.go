// Package fetch is the HTTP layer of the crawler: colly collectors with
// retries, rate limiting and charset repair.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

const (
	acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptJSON = "application/json, text/javascript, */*; q=0.01"
)

// Config controls collector behavior and retry policy.
type Config struct {
	UserAgent         string
	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	RequestsPerSecond float64
}

// Request describes a single HTTP call.
type Request struct {
	Method string
	URL    string
	Body   []byte
	Header http.Header
}

// Response is a fully read, charset-normalized HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client issues requests through a shared colly collector.
type Client struct {
	cfg       Config
	base      *colly.Collector
	transport *http.Transport
	retry     *LinearRetryPolicy
	limiter   *hostLimiter
	metrics   *Metrics
	logger    *zap.Logger
}

// New builds a Client. metrics may be nil.
func New(cfg Config, logger *zap.Logger, metrics *Metrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := newHTTPTransport()
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.WithTransport(&charsetTransport{base: transport})
	c.SetRequestTimeout(timeout)

	return &Client{
		cfg:       cfg,
		base:      c,
		transport: transport,
		retry:     NewLinearRetryPolicy(cfg.MaxRetries, cfg.RetryDelay),
		limiter:   newHostLimiter(cfg.RequestsPerSecond),
		metrics:   metrics,
		logger:    logger,
	}
}

// FetchText GETs rawURL and returns the decoded body.
func (c *Client) FetchText(ctx context.Context, rawURL string) (string, error) {
	header := http.Header{}
	header.Set("Accept", acceptHTML)
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, URL: rawURL, Header: header})
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

// FetchJSON GETs rawURL as an AJAX call and decodes the body into out. An
// empty referer defaults to the origin of rawURL.
func (c *Client) FetchJSON(ctx context.Context, rawURL, referer string, out any) error {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, URL: rawURL, Header: jsonHeaders(rawURL, referer)})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDecode, rawURL, err)
	}
	return nil
}

// Do executes req, retrying transient failures with linear backoff.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	var (
		lastErr error
		attempt int
	)
	for attempt = 1; ; attempt++ {
		if err := c.limiter.Wait(ctx, req.URL); err != nil {
			return Response{}, err
		}
		start := time.Now()
		resp, err := c.once(ctx, req)
		if err == nil {
			c.metrics.observe(req.Method, "ok", time.Since(start).Seconds())
			return resp, nil
		}
		c.metrics.observe(req.Method, "error", time.Since(start).Seconds())
		lastErr = err

		if ctx.Err() != nil {
			return Response{}, fmt.Errorf("fetch %s canceled: %w", req.URL, ctx.Err())
		}
		if !c.retry.ShouldRetry(err, attempt) {
			break
		}
		delay := c.retry.Backoff(attempt)
		c.logger.Warn("fetch attempt failed, retrying",
			zap.String("url", req.URL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		c.metrics.retried()
		if err := Pause(ctx, delay); err != nil {
			return Response{}, err
		}
	}

	if transient(lastErr) {
		return Response{}, fmt.Errorf("%w: %s %s after %d attempts: %w", ErrExhausted, req.Method, req.URL, attempt, lastErr)
	}
	return Response{}, lastErr
}

// Close releases idle connections.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

func (c *Client) once(ctx context.Context, req Request) (Response, error) {
	var (
		result   Response
		fetchErr error
		status   int
	)
	collector := c.base.Clone()
	collector.OnResponse(func(r *colly.Response) {
		result = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Header:     r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		var body io.Reader
		if len(req.Body) > 0 {
			body = bytes.NewReader(req.Body)
		}
		done <- collector.Request(req.Method, req.URL, body, nil, req.Header.Clone())
	}()

	select {
	case <-ctx.Done():
		return Response{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if status != 0 && (status < 200 || status > 299) {
			return Response{}, &StatusError{Method: req.Method, URL: req.URL, Code: status}
		}
		if err != nil {
			return Response{}, fmt.Errorf("colly %s %s: %w", req.Method, req.URL, err)
		}
		if fetchErr != nil {
			return Response{}, fmt.Errorf("colly response %s: %w", req.URL, fetchErr)
		}
		return result, nil
	}
}

func jsonHeaders(rawURL, referer string) http.Header {
	header := http.Header{}
	header.Set("Accept", acceptJSON)
	header.Set("X-Requested-With", "XMLHttpRequest")
	if referer == "" {
		referer = origin(rawURL)
	}
	if referer != "" {
		header.Set("Referer", referer)
	}
	return header
}

func origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/"
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
	}
}
