// Package api implements the HTTP client for the remote ContextStream
// service. It owns request construction, the response envelope adapter,
// and the typed error model — nothing in here makes resolution or
// packing decisions.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	// defaultBaseURL is the production API endpoint.
	defaultBaseURL = "https://api.contextstream.io/v1"

	// requestTimeout bounds every remote call. Background ingestion
	// uploads reuse the same client, so this must cover a full batch.
	requestTimeout = 30 * time.Second
)

// Version is set at build time via ldflags and reported in User-Agent.
var Version = "dev"

// Error is a typed remote failure carrying an HTTP-like status and a
// machine-readable code. Callers pattern-match on Code/Status to decide
// whether a retry with a reduced payload is worth attempting.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("contextstream api: %s (%d %s)", e.Message, e.Status, e.Code)
}

// IsShapeMismatch reports whether the error indicates the server
// rejected the request body's shape (unknown or mistyped fields).
// These are recoverable by resending a minimal payload.
func (e *Error) IsShapeMismatch() bool {
	if e.Code == "BAD_REQUEST" || e.Code == "VALIDATION_ERROR" {
		return true
	}
	return e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity
}

// Options configures a single request.
type Options struct {
	Method string
	Body   any
}

// Client talks to the ContextStream API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a client from the environment:
// CONTEXTSTREAM_API_URL (optional) and CONTEXTSTREAM_API_KEY.
func NewClient() *Client {
	base := os.Getenv("CONTEXTSTREAM_API_URL")
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  os.Getenv("CONTEXTSTREAM_API_KEY"),
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// NewClientAt builds a client against an explicit base URL. Used by
// tests with httptest servers.
func NewClientAt(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// Request performs one API call and returns the raw JSON body.
// Non-2xx responses become a *Error; transport failures are wrapped
// stdlib errors.
func (c *Client) Request(ctx context.Context, path string, opts Options) (json.RawMessage, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var reader io.Reader
	if opts.Body != nil {
		encoded, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "contextstream/"+Version)
	if opts.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp.StatusCode, body)
	}
	return body, nil
}

// RequestWithFallback issues a write request and, if the server
// rejects the body's shape, retries exactly once with the minimal
// payload. This recovers from optional fields the caller sent
// speculatively against an older server.
func (c *Client) RequestWithFallback(ctx context.Context, path string, method string, full, minimal any) (json.RawMessage, error) {
	raw, err := c.Request(ctx, path, Options{Method: method, Body: full})
	if err == nil {
		return raw, nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.IsShapeMismatch() && minimal != nil {
		return c.Request(ctx, path, Options{Method: method, Body: minimal})
	}
	return nil, err
}

// errorBody covers both error response shapes the API emits:
// a flat {code, message} and a nested {error: {code, message}}.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// decodeError builds a *Error from a non-2xx response body.
func decodeError(status int, body []byte) *Error {
	parsed := errorBody{}
	_ = json.Unmarshal(body, &parsed)
	if parsed.Err != nil {
		parsed.Code = parsed.Err.Code
		parsed.Message = parsed.Err.Message
	}
	if parsed.Code == "" {
		parsed.Code = http.StatusText(status)
		parsed.Code = strings.ToUpper(strings.ReplaceAll(parsed.Code, " ", "_"))
	}
	if parsed.Message == "" {
		parsed.Message = string(body)
		if parsed.Message == "" {
			parsed.Message = http.StatusText(status)
		}
	}
	return &Error{Status: status, Code: parsed.Code, Message: parsed.Message}
}
