package openai

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
)

// DefaultBaseURL is the default base URL for the OpenAI API.
const DefaultBaseURL = "https://api.openai.com/v1"

// chatCompletionsPath is appended to the base URL unless it already
// points at a chat completions endpoint.
const chatCompletionsPath = "/chat/completions"

// Client is a client for the OpenAI chat completions API, or any
// provider exposing a compatible endpoint.
//
// https://platform.openai.com/docs/api-reference/chat
type Client struct {
	// APIKey is the API key to use for requests.
	APIKey string

	// HTTPClient is the HTTP client to use for requests.
	HTTPClient *http.Client

	// Organization is the organization to use for requests.
	Organization string

	// BaseURL is either the API base (e.g. https://api.openai.com/v1) or
	// the full chat completions endpoint of a compatible provider.
	BaseURL string

	// Logger receives debug output for each request. Defaults to a
	// logger that discards everything.
	Logger *slog.Logger

	// Limiters, when set, are waited on before each chat request.
	Limiters *RateLimiters

	// Metrics, when set, records request counts and latencies.
	Metrics *Metrics
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithHTTPClient is a ClientOption that sets the HTTP client to use for requests.
//
// If the client is nil, then http.DefaultClient is used
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		if c == nil {
			c = http.DefaultClient
		}
		client.HTTPClient = c
	}
}

// WithOrganization is a ClientOption that sets the organization to use for requests.
//
// https://platform.openai.com/docs/api-reference/authentication
func WithOrganization(org string) ClientOption {
	return func(client *Client) {
		client.Organization = org
	}
}

// WithBaseURL is a ClientOption that points the client at another API base,
// or directly at a chat completions endpoint such as
// https://api.siliconflow.cn/v1/chat/completions.
func WithBaseURL(baseURL string) ClientOption {
	return func(client *Client) {
		if baseURL != "" {
			client.BaseURL = baseURL
		}
	}
}

// WithLogger is a ClientOption that sets the structured logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(client *Client) {
		if l != nil {
			client.Logger = l
		}
	}
}

// WithRateLimiters is a ClientOption that enables client side rate limiting.
func WithRateLimiters(rl *RateLimiters) ClientOption {
	return func(client *Client) {
		client.Limiters = rl
	}
}

// WithMetrics is a ClientOption that enables Prometheus metrics.
func WithMetrics(m *Metrics) ClientOption {
	return func(client *Client) {
		client.Metrics = m
	}
}

// NewClient returns a new Client with the given API key.
//
// # Example
//
//	c := openai.NewClient(os.Getenv("OPENAI_API_KEY"))
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		APIKey:     apiKey,
		HTTPClient: http.DefaultClient,
		BaseURL:    DefaultBaseURL,
		Logger:     slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ChatURL returns the chat completions endpoint the client sends requests to.
func (c *Client) ChatURL() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", c.BaseURL, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid base URL %q: scheme must be http or https", c.BaseURL)
	}

	if u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q: missing host", c.BaseURL)
	}

	if !strings.HasSuffix(strings.TrimRight(u.Path, "/"), chatCompletionsPath) {
		u.Path = strings.TrimRight(u.Path, "/") + chatCompletionsPath
	}

	return u.String(), nil
}

// post sends the JSON encoding of body to the chat endpoint. A non-2xx
// response is returned as an *APIError and the body is closed.
func (c *Client) post(ctx context.Context, body any, accept string) (*http.Response, error) {
	endpoint, err := c.ChatURL()
	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}

	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Accept", accept)
	r.Header.Set("Authorization", "Bearer "+c.APIKey)

	if c.Organization != "" {
		r.Header.Set("OpenAI-Organization", c.Organization)
	}

	resp, err := c.HTTPClient.Do(r)
	if err != nil {
		c.Logger.ErrorContext(ctx, "chat request failed", "url", endpoint, "error", err)
		return nil, err
	}

	c.Logger.DebugContext(ctx, "chat response", "url", endpoint, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       string(body),
		}
		c.Logger.ErrorContext(ctx, "chat request rejected", "status", resp.StatusCode, "body", apiErr.Body)
		return nil, apiErr
	}

	return resp, nil
}

// wait blocks on the request rate limiter, then on the token limiter, if
// configured. Tokens reserved by earlier replies leave the token limiter
// in debt, which holds later requests back until it is repaid.
func (c *Client) wait(ctx context.Context) error {
	if c.Limiters == nil {
		return nil
	}

	if l := c.Limiters.Chat.Requests; l != nil {
		if err := l.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	if l := c.Limiters.Chat.Tokens; l != nil {
		if err := l.WaitN(ctx, 1); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	return nil
}

// reserveTokens accounts for tokens spent by a reply against the token
// limiter. It never blocks. A reply larger than the burst is counted as
// the whole burst.
func (c *Client) reserveTokens(n int64) {
	if c.Limiters == nil || c.Limiters.Chat.Tokens == nil || n <= 0 {
		return
	}

	l := c.Limiters.Chat.Tokens
	if burst := int64(l.Burst()); burst > 0 {
		n = min(n, burst)
	}
	l.ReserveN(timeNow(), int(n))
}
