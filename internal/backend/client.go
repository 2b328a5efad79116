// Package backend is the HTTP client for the fiber operations REST API.
// It translates domain operations into requests, normalizes the API's
// heterogeneous response envelopes, and reports failures as *Error.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds every request that does not use the short timeout.
	DefaultTimeout = 60 * time.Second
	// DefaultShortTimeout bounds search and billing reads.
	DefaultShortTimeout = 15 * time.Second
	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 8 << 20
	// requestIDHeader carries a per-request correlation ID.
	requestIDHeader = "X-Request-ID"
)

// Client calls the operations API. It is safe for concurrent use and never
// retries on its own.
type Client struct {
	baseURL      string
	http         *http.Client
	timeout      time.Duration
	shortTimeout time.Duration
	log          *zap.Logger
}

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	BaseURL      string        // e.g. "https://ops.example.net"
	Timeout      time.Duration // defaults to DefaultTimeout
	ShortTimeout time.Duration // defaults to DefaultShortTimeout
	HTTPClient   *http.Client  // defaults to a client without its own timeout
	Logger       *zap.Logger   // defaults to zap.NewNop()
}

// New creates a Client.
func New(opts ClientOpts) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("backend: base url is required")
	}
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend: base url %q must be absolute", opts.BaseURL)
	}
	c := &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		http:         opts.HTTPClient,
		timeout:      opts.Timeout,
		shortTimeout: opts.ShortTimeout,
		log:          opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.shortTimeout <= 0 {
		c.shortTimeout = DefaultShortTimeout
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c, nil
}

// request describes one API call.
type request struct {
	op          string
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	short       bool
}

// getJSON issues a GET and returns the raw response body.
func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, short bool) (json.RawMessage, error) {
	return c.do(ctx, request{op: op, method: http.MethodGet, path: path, query: query, short: short})
}

// postJSON issues a POST with a JSON body and returns the raw response body.
func (c *Client) postJSON(ctx context.Context, op, path string, payload interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Op: op, Kind: KindDecode, Message: "invalid request payload", Err: err}
	}
	return c.do(ctx, request{
		op:          op,
		method:      http.MethodPost,
		path:        path,
		body:        bytes.NewReader(data),
		contentType: "application/json",
	})
}

// do executes req under the appropriate timeout and maps every failure to
// an *Error.
func (c *Client) do(ctx context.Context, req request) (json.RawMessage, error) {
	timeout := c.timeout
	if req.short {
		timeout = c.shortTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := c.baseURL + "/" + strings.TrimLeft(req.path, "/")
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, req.body)
	if err != nil {
		return nil, &Error{Op: req.op, Kind: KindTransport, Message: err.Error(), Err: err}
	}
	reqID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(requestIDHeader, reqID)
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		apiErr := transportError(ctx, req.op, err)
		c.log.Warn("backend request failed",
			zap.String("op", req.op),
			zap.String("method", req.method),
			zap.String("path", req.path),
			zap.String("request_id", reqID),
			zap.String("kind", string(apiErr.Kind)),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err),
		)
		return nil, apiErr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(ctx, req.op, err)
	}

	c.log.Debug("backend request",
		zap.String("op", req.op),
		zap.String("method", req.method),
		zap.String("path", req.path),
		zap.String("request_id", reqID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, upstreamError(req.op, resp.StatusCode, body)
	}
	return json.RawMessage(body), nil
}

// decode unmarshals raw into v, reporting failures as decode errors.
func decode(op string, raw json.RawMessage, v interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &Error{Op: op, Kind: KindDecode, Message: "unexpected response from server", Err: err}
	}
	return nil
}
