// Package cetus is the HTTP client for the Cetus search and alerting API.
package cetus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/cetus/internal/apperr"
)

const (
	// DefaultHost is the public API host.
	DefaultHost = "alerting.sparkits.ca"
	// PageSize is the most records the query endpoint returns per request.
	PageSize = 10000

	maxErrorBody = 500
)

// Client talks to the Cetus API.
type Client struct {
	apiKey   string
	baseURL  string
	timeout  time.Duration
	pageSize int
	http     *http.Client
	logger   *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the https://{host} base URL.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithPageSize changes the page size used to detect the last page.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// New returns a client for host authenticating with apiKey.
func New(apiKey, host string, timeout time.Duration, opts ...ClientOption) *Client {
	if host == "" {
		host = DefaultHost
	}
	c := &Client{
		apiKey:   apiKey,
		baseURL:  "https://" + host,
		timeout:  timeout,
		pageSize: PageSize,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: timeout}
	}
	return c
}

func (c *Client) host() string {
	if u, err := url.Parse(c.baseURL); err == nil && u.Host != "" {
		return u.Host
	}
	return c.baseURL
}

// do sends one request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("cetus: encode request: %w", err)
		}
		reader = bytes.NewReader(b)
		c.logger.Debug("cetus: request", slog.String("method", method), slog.String("path", path), slog.String("body", string(b)))
	} else {
		c.logger.Debug("cetus: request", slog.String("method", method), slog.String("path", path))
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("cetus: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("cetus: response", slog.Int("status", resp.StatusCode))

	if err := statusError(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", apperr.ErrCancelled, ctx.Err())
		}
		return fmt.Errorf("%w: decode response: %v", apperr.ErrAPI, err)
	}
	return nil
}

func (c *Client) transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", apperr.ErrCancelled, ctx.Err())
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: request timed out after %s", apperr.ErrTransport, c.timeout)
	}
	return fmt.Errorf("%w: failed to connect to %s", apperr.ErrTransport, c.host())
}

// statusError maps HTTP error statuses. Authentication failures use fixed
// messages so server responses never reach the user.
func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: invalid API key", apperr.ErrAuthentication)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: access denied, check your permissions", apperr.ErrAuthentication)
	case resp.StatusCode == http.StatusNotFound:
		return apperr.ErrNotFound
	case resp.StatusCode >= 400:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &apperr.APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(b))}
	}
	return nil
}
