// Package llmclient provides the base HTTP client shared by every upstream provider:
// - Request marshaling/unmarshaling
// - Standardized error parsing with upstream request-id propagation
// - Observability hooks around each upstream call
//
// Calls are made exactly once. A failed upstream call fails the gateway request.
package llmclient

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"lingogate/internal/core"
	"lingogate/internal/httpclient"
)

// maxErrorBody bounds how much of an upstream error body is read.
const maxErrorBody = 64 << 10

// requestIDHeaders lists the headers upstream providers use to echo their request id.
var requestIDHeaders = []string{"x-request-id", "request-id", "apim-request-id", "x-trace-id"}

// Config holds configuration for the upstream client
type Config struct {
	// ProviderName identifies the provider for error messages and metrics
	ProviderName string

	// BaseURL is the API base URL
	BaseURL string

	// Hooks observe every upstream call. Zero value disables them.
	Hooks Hooks
}

// RequestInfo describes a completed upstream call for hooks.
type RequestInfo struct {
	Provider   string
	Endpoint   string
	Method     string
	StatusCode int // 0 when no response was received
	Duration   time.Duration
	Stream     bool
	Err        error
}

// Hooks are optional callbacks invoked around upstream calls.
type Hooks struct {
	OnRequestEnd func(ctx context.Context, info RequestInfo)
}

func (h Hooks) end(ctx context.Context, info RequestInfo) {
	if h.OnRequestEnd != nil {
		h.OnRequestEnd(ctx, info)
	}
}

// HeaderSetter is a function that sets headers on an HTTP request
type HeaderSetter func(req *http.Request)

// Client is a base HTTP client for upstream providers
type Client struct {
	httpClient   *http.Client
	config       Config
	headerSetter HeaderSetter
}

// New creates a client backed by a fresh pooled HTTP client.
func New(config Config, headerSetter HeaderSetter) *Client {
	return NewWithHTTPClient(httpclient.NewDefaultHTTPClient(), config, headerSetter)
}

// NewWithHTTPClient creates a client sharing the given HTTP client (and its connection pool).
func NewWithHTTPClient(httpClient *http.Client, config Config, headerSetter HeaderSetter) *Client {
	if httpClient == nil {
		httpClient = httpclient.NewDefaultHTTPClient()
	}
	return &Client{
		httpClient:   httpClient,
		config:       config,
		headerSetter: headerSetter,
	}
}

// SetBaseURL updates the base URL
func (c *Client) SetBaseURL(url string) {
	c.config.BaseURL = strings.TrimRight(url, "/")
}

// BaseURL returns the current base URL
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Request represents an HTTP request to be made
type Request struct {
	Method   string
	Endpoint string
	// Body is JSON marshaled when not nil.
	Body any
	// RawBody is sent as-is with ContentType. Ignored when Body is set.
	RawBody     []byte
	ContentType string
	Headers     map[string]string
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Do executes a request and unmarshals the JSON response into result
func (c *Client) Do(ctx context.Context, req Request, result any) error {
	resp, err := c.DoRaw(ctx, req)
	if err != nil {
		return err
	}

	if result != nil {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			return core.NewProviderError(c.config.ProviderName, http.StatusBadGateway, "failed to unmarshal response: "+err.Error(), err)
		}
	}

	return nil
}

// DoRaw executes a request and returns the raw 2xx response.
// Non-2xx responses are converted to GatewayErrors.
func (c *Client) DoRaw(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	info := RequestInfo{Provider: c.config.ProviderName, Endpoint: endpointLabel(req.Endpoint), Method: req.Method}

	resp, err := c.send(ctx, req)
	if err != nil {
		info.Duration, info.Err = time.Since(start), err
		c.config.Hooks.end(ctx, info)
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck
	}()
	info.StatusCode = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gwErr := c.errorFromResponse(resp)
		info.Duration, info.Err = time.Since(start), gwErr
		c.config.Hooks.end(ctx, info)
		return nil, gwErr
	}

	body, err := io.ReadAll(resp.Body)
	info.Duration = time.Since(start)
	if err != nil {
		gwErr := core.NewProviderError(c.config.ProviderName, http.StatusBadGateway, "failed to read response: "+err.Error(), err)
		info.Err = gwErr
		c.config.Hooks.end(ctx, info)
		return nil, gwErr
	}
	c.config.Hooks.end(ctx, info)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// DoStream executes a streaming request, returning the response body (caller must close).
// Errors are only returned before any body byte is handed out.
func (c *Client) DoStream(ctx context.Context, req Request) (io.ReadCloser, error) {
	start := time.Now()
	info := RequestInfo{Provider: c.config.ProviderName, Endpoint: endpointLabel(req.Endpoint), Method: req.Method, Stream: true}

	resp, err := c.send(ctx, req)
	if err != nil {
		info.Duration, info.Err = time.Since(start), err
		c.config.Hooks.end(ctx, info)
		return nil, err
	}
	info.StatusCode = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gwErr := c.errorFromResponse(resp)
		_ = resp.Body.Close() //nolint:errcheck
		info.Duration, info.Err = time.Since(start), gwErr
		c.config.Hooks.end(ctx, info)
		return nil, gwErr
	}

	// Duration for streams is time to first byte of headers.
	info.Duration = time.Since(start)
	c.config.Hooks.end(ctx, info)
	return resp.Body, nil
}

// send builds and performs a single HTTP request
func (c *Client) send(ctx context.Context, req Request) (*http.Response, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewProviderError(c.config.ProviderName, http.StatusBadGateway, "failed to send request: "+sanitizeTransportError(err), err)
	}
	return resp, nil
}

// buildRequest creates an HTTP request from a Request
func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	url := c.config.BaseURL + req.Endpoint

	var bodyReader io.Reader
	contentType := req.ContentType
	switch {
	case req.Body != nil:
		bodyBytes, err := json.Marshal(req.Body)
		if err != nil {
			return nil, core.NewInvalidRequestError("failed to marshal request", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
		contentType = "application/json"
	case req.RawBody != nil:
		bodyReader = bytes.NewReader(req.RawBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bodyReader)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to create request", err)
	}

	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	// Apply provider-specific headers
	if c.headerSetter != nil {
		c.headerSetter(httpReq)
	}

	// Apply request-specific headers
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	return httpReq, nil
}

// errorFromResponse reads a bounded, decoded error body and maps it to a GatewayError.
func (c *Client) errorFromResponse(resp *http.Response) *core.GatewayError {
	body, err := readDecodedBody(resp, maxErrorBody)
	if err != nil {
		body = []byte("failed to read error response")
	}
	return core.ParseProviderError(c.config.ProviderName, resp.StatusCode, body, UpstreamRequestID(resp.Header))
}

// UpstreamRequestID returns the first request id header the provider sent.
func UpstreamRequestID(h http.Header) string {
	for _, name := range requestIDHeaders {
		if v := h.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// readDecodedBody reads up to limit bytes, undoing any Content-Encoding the
// transport did not already strip. Providers occasionally compress error pages.
func readDecodedBody(resp *http.Response, limit int64) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		r = brotli.NewReader(resp.Body)
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close() //nolint:errcheck
		r = gz
	case "deflate":
		fr := flate.NewReader(resp.Body)
		defer fr.Close() //nolint:errcheck
		r = fr
	}
	return io.ReadAll(io.LimitReader(r, limit))
}

// endpointLabel strips ids and query strings so metrics labels stay bounded.
func endpointLabel(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}
	parts := strings.Split(endpoint, "/")
	for i, p := range parts {
		if looksLikeID(p) {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

func looksLikeID(segment string) bool {
	if strings.HasPrefix(segment, "thread_") || strings.HasPrefix(segment, "run_") {
		return true
	}
	if len(segment) < 16 {
		return false
	}
	hasDigit := false
	for _, r := range segment {
		switch {
		case r == '-' || r == '.':
			return false
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	return hasDigit
}

// sanitizeTransportError drops the request URL from transport errors.
func sanitizeTransportError(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 && strings.Contains(msg, "://") {
		return msg[i+2:]
	}
	return msg
}
