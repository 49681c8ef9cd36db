// Package http executes requests over net/http with per-phase timing,
// optional proxying and a cap on the response size kept.
package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"sync"
	"time"

	"github.com/sadopc/reqdeck/internal/protocol"
)

const (
	// DefaultTimeout bounds a call when neither the request nor the client
	// sets one.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBodyBytes caps how much of a response body is read.
	DefaultMaxBodyBytes int64 = 10 << 20

	maxRedirects = 10
)

var errTooManyRedirects = errors.New("too many redirects")

// Client implements the "http" protocol. The underlying transport is built
// on first use and shared until a setter changes how it must be built.
type Client struct {
	timeout      time.Duration
	maxBodyBytes int64

	mu        sync.Mutex
	insecure  bool
	proxy     *proxySettings
	transport *http.Transport
}

// New returns a client with the default timeout and body cap.
func New() *Client {
	return &Client{
		timeout:      DefaultTimeout,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
}

// SetTimeout changes the timeout used when a request carries none.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// SetMaxBodyBytes limits the response bytes kept. n <= 0 keeps everything.
func (c *Client) SetMaxBodyBytes(n int64) {
	c.maxBodyBytes = n
}

// SetInsecure disables TLS certificate verification.
func (c *Client) SetInsecure(insecure bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insecure = insecure
	c.transport = nil
}

// SetProxy routes calls through proxyURL (http, https or socks5) except for
// the comma separated hosts in noProxy. An empty proxyURL falls back to the
// proxy environment variables.
func (c *Client) SetProxy(proxyURL, noProxy string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transport = nil
	c.proxy = nil
	if proxyURL != "" {
		c.proxy = &proxySettings{raw: proxyURL, bypass: parseBypass(noProxy)}
	}
}

func (c *Client) Name() string { return "http" }

// Validate checks that req names a method and an absolute URL.
func (c *Client) Validate(req *protocol.Request) error {
	switch {
	case req.URL == "":
		return errors.New("URL is required")
	case req.Method == "":
		return errors.New("method is required")
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid URL: %q is not absolute", req.URL)
	}
	return nil
}

// Execute performs the call. Any response the server sends, including 4xx and
// 5xx, is returned without error; errors mean no response was received.
func (c *Client) Execute(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if err := c.Validate(req); err != nil {
		return nil, err
	}
	transport, err := c.getTransport()
	if err != nil {
		return nil, fmt.Errorf("configuring transport: %w", err)
	}

	var timer phaseTimer
	httpReq, err := newHTTPRequest(httptrace.WithClientTrace(ctx, timer.trace()), req)
	if err != nil {
		return nil, err
	}

	hc := &http.Client{
		Timeout:   c.timeoutFor(req),
		Transport: transport,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}

	start := time.Now()
	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	readStart := time.Now()
	body, truncated, err := readBody(resp.Body, c.maxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	transfer := time.Since(readStart)
	total := time.Since(start)

	return &protocol.Response{
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        int64(len(body)),
		Truncated:   truncated,
		Timing:      timer.detail(transfer, total),
	}, nil
}

func (c *Client) timeoutFor(req *protocol.Request) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	return c.timeout
}

func newHTTPRequest(ctx context.Context, req *protocol.Request) (*http.Request, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// readBody reads at most limit bytes from r and reports whether more were
// available.
func readBody(r io.Reader, limit int64) ([]byte, bool, error) {
	if limit <= 0 {
		b, err := io.ReadAll(r)
		return b, false, err
	}
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(b)) > limit {
		return b[:limit], true, nil
	}
	return b, false, nil
}

func (c *Client) getTransport() (*http.Transport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == nil {
		t, err := c.buildTransport()
		if err != nil {
			return nil, err
		}
		c.transport = t
	}
	return c.transport, nil
}

// buildTransport must be called with c.mu held or before c is shared.
func (c *Client) buildTransport() (*http.Transport, error) {
	t := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if c.insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	if c.proxy != nil {
		if err := c.proxy.apply(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}
