// Package client is the single HTTP dispatcher every backend call goes
// through. It knows three things: the service's base URL, how to speak JSON,
// and how to fetch a bearer token for the Authorization header.
//
// TOKEN HANDLING:
// The client never stores a token. It holds a TokenSource — an injected
// function that produces a fresh token on demand (the auth package wires an
// oauth2 silent-refresh flow behind it). If retrieval fails, or the source
// hands back one of the literal junk values "undefined"/"null" that leak out
// of misconfigured providers, the request simply goes out without the header.
// Some endpoints accept unauthenticated calls, so that's the caller's problem
// to surface, not ours.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ingsis25/snippet-searcher/internal/apperror"
)

// TokenSource produces a bearer token for an outgoing request.
// Implementations may refresh silently; a returned error is non-fatal.
type TokenSource func(ctx context.Context) (string, error)

// DefaultTimeout bounds a single backend round-trip. Snippet execution is
// the slowest call we make and the runner gives up well before this.
const DefaultTimeout = 30 * time.Second

// Client dispatches JSON requests against one backend service.
//
// The token source lives behind a mutex: the session provider replaces it on
// login/logout, and the last writer wins. That is the only shared mutable
// state in this package.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu     sync.RWMutex
	tokens TokenSource
}

// New creates a Client rooted at baseURL. Trailing slashes are trimmed so
// path joining stays predictable.
func New(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logger,
	}
}

// SetTokenSource installs or replaces the token retrieval function used by
// subsequent requests. Passing nil clears it. Idempotent; last writer wins.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	c.tokens = ts
	c.mu.Unlock()
}

// HasTokenSource reports whether a token source is currently installed.
// The ops layer uses this to fail fast on operations that strictly require
// authentication, before any network call.
func (c *Client) HasTokenSource() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens != nil
}

// errorBody is the JSON shape backends use for error responses.
// Every field is optional — plenty of services answer plain text.
type errorBody struct {
	Message     string   `json:"message"`
	Code        string   `json:"code"`
	Diagnostics []string `json:"diagnostics"`
}

// Do issues a request and decodes a 2xx JSON response into out (out may be
// nil to discard the body). path is joined onto the base URL; query may be
// nil. A non-2xx status returns an *apperror.AppError built from the parsed
// error body — never a secondary decode error.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	resp, err := c.send(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if out == nil {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// DoText is Do for endpoints that answer with a plain string body
// (delete confirmations, the check-owner probe).
func (c *Client) DoText(ctx context.Context, method, path string, query url.Values, body any) (string, error) {
	resp, err := c.send(ctx, method, path, query, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("client: reading %s %s response: %w", method, path, err)
	}
	// Some backends wrap the string in JSON quotes; tolerate both.
	text := strings.TrimSpace(string(raw))
	var unquoted string
	if json.Unmarshal(raw, &unquoted) == nil {
		text = unquoted
	}
	return text, nil
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, nil, body, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, nil)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("client: encoding %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("client: building %s %s request: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.authorize(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// authorize attaches the bearer header when a token source is installed and
// actually yields something usable. Failures are logged and swallowed — the
// request proceeds unauthenticated.
func (c *Client) authorize(ctx context.Context, req *http.Request) {
	c.mu.RLock()
	ts := c.tokens
	c.mu.RUnlock()
	if ts == nil {
		return
	}

	token, err := ts(ctx)
	if err != nil {
		c.logger.Warn("token retrieval failed, sending request unauthenticated",
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()),
		)
		return
	}
	if token == "" || token == "undefined" || token == "null" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

// checkStatus turns a non-2xx response into a typed error.
//
// The body is parsed on a best-effort basis: JSON {message, code, diagnostics}
// first, raw text as the message next, and a generic "HTTP <status>" line when
// the body is empty or unreadable. Parse failures never escalate.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	raw, _ := io.ReadAll(resp.Body)

	var parsed errorBody
	if len(raw) > 0 {
		json.Unmarshal(raw, &parsed)
	}

	message := parsed.Message
	if message == "" {
		if text := strings.TrimSpace(string(raw)); text != "" && !strings.HasPrefix(text, "{") {
			message = text
		}
	}
	if message == "" {
		message = fmt.Sprintf("HTTP %d %s", resp.StatusCode, resp.Request.URL.Path)
	}

	return apperror.FromStatus(resp.StatusCode, parsed.Code, message, parsed.Diagnostics)
}
