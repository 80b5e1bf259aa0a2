package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// NewHTTPClient builds the process-wide pooled HTTP client shared by every
// adapter. It carries no Client.Timeout: a whole-exchange timeout would
// sever long streams mid-flight, so deadlines are enforced per request
// through contexts instead.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        64,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}

// ClientOptions configures the shared HTTP plumbing for one provider
// endpoint.
type ClientOptions struct {
	// UnaryTimeout bounds a complete non-streaming exchange. Zero leaves
	// only the caller's context deadline.
	UnaryTimeout time.Duration

	// StreamTimeout bounds a streaming exchange from dial to last byte.
	// Zero leaves only the caller's context deadline.
	StreamTimeout time.Duration

	// Headers are added to every request.
	Headers map[string]string

	// HTTP is the shared pooled client. Nil builds a private one; the
	// Client never closes it either way.
	HTTP *http.Client
}

// Client is the shared HTTP plumbing for adapters: connection pooling,
// header assembly, deadline budgets, and status classification into the
// typed errors. It never retries; the engine's key-scoped loop owns retry
// policy.
type Client struct {
	name          string
	baseURL       string
	headers       map[string]string
	http          *http.Client
	unaryTimeout  time.Duration
	streamTimeout time.Duration
}

// NewClient builds a Client for one provider endpoint.
func NewClient(name, baseURL string, opts ClientOptions) *Client {
	httpClient := opts.HTTP
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	return &Client{
		name:          name,
		baseURL:       strings.TrimRight(baseURL, "/"),
		headers:       opts.Headers,
		http:          httpClient,
		unaryTimeout:  opts.UnaryTimeout,
		streamTimeout: opts.StreamTimeout,
	}
}

// WithBaseURL returns a copy of the Client targeting base, sharing the
// underlying HTTP client. Profile-level endpoint overrides use this; an
// empty base returns the Client unchanged.
func (c *Client) WithBaseURL(base string) *Client {
	if base == "" {
		return c
	}
	clone := *c
	clone.baseURL = strings.TrimRight(base, "/")
	return &clone
}

// Post sends a JSON body and returns the response with its body still open
// when the status is 2xx. The stream budget applies: closing the body
// releases its deadline. Any other status is read, closed, and classified
// into a typed error.
func (c *Client) Post(ctx context.Context, path string, headers map[string]string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	ctx, cancel := c.budget(ctx, c.streamTimeout)
	resp, err := c.do(ctx, http.MethodPost, path, headers, "application/json", bytes.NewReader(payload), c.streamTimeout)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &deadlineBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// PostJSON sends a JSON body and decodes a JSON response into out. The
// unary budget applies to the whole exchange.
func (c *Client) PostJSON(ctx context.Context, path string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	ctx, cancel := c.budget(ctx, c.unaryTimeout)
	defer cancel()
	resp, err := c.do(ctx, http.MethodPost, path, headers, "application/json", bytes.NewReader(payload), c.unaryTimeout)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.decode(resp.Body, out)
}

// GetJSON performs a GET and decodes a JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, headers map[string]string, out any) error {
	ctx, cancel := c.budget(ctx, c.unaryTimeout)
	defer cancel()
	resp, err := c.do(ctx, http.MethodGet, path, headers, "", nil, c.unaryTimeout)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.decode(resp.Body, out)
}

// PostMultipart sends a multipart form (audio uploads) and decodes a JSON
// response into out. fields are plain form values; file is streamed under
// fieldName with the given filename.
func (c *Client) PostMultipart(ctx context.Context, path string, headers map[string]string, fields map[string]string, fieldName, filename string, file io.Reader, out any) error {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := form.WriteField(k, v); err != nil {
			return fmt.Errorf("encoding form field %q: %w", k, err)
		}
	}
	part, err := form.CreateFormFile(fieldName, filename)
	if err != nil {
		return fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copying upload: %w", err)
	}
	if err := form.Close(); err != nil {
		return err
	}

	ctx, cancel := c.budget(ctx, c.unaryTimeout)
	defer cancel()
	resp, err := c.do(ctx, http.MethodPost, path, headers, form.FormDataContentType(), &buf, c.unaryTimeout)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.decode(resp.Body, out)
}

// budget derives a context bounded by timeout. Zero means no extra bound.
func (c *Client) budget(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// deadlineBody ties a budget's cancel to the response body so the deadline
// is released exactly when the stream is done with.
type deadlineBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *deadlineBody) Close() error {
	b.cancel()
	return b.ReadCloser.Close()
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, contentType string, body io.Reader, timeout time.Duration) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Provider: c.name, Timeout: timeout}
		}
		return nil, &NetworkError{Provider: c.name, Cause: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	resp.Body.Close()
	return nil, c.classify(resp, string(errorBody))
}

// classify maps a non-2xx response to the typed error that drives the key
// lifecycle.
func (c *Client) classify(resp *http.Response, body string) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Provider: c.name, StatusCode: resp.StatusCode, Message: body}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			Provider:   c.name,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    body,
		}
	case resp.StatusCode == http.StatusBadRequest:
		return &BadRequestError{Provider: c.name, Message: summarize(body), Body: body}
	case resp.StatusCode >= 500:
		return &UpstreamError{Provider: c.name, StatusCode: resp.StatusCode, Message: body}
	default:
		// Remaining 4xx (404 on a bad model name, 422, ...) blame the
		// request, not the key.
		return &BadRequestError{Provider: c.name, Message: summarize(body), Body: body}
	}
}

func (c *Client) decode(r io.Reader, out any) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return &ParseError{Provider: c.name, Cause: err}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ParseError{Provider: c.name, Raw: string(raw), Cause: err}
	}
	return nil
}

// parseRetryAfter handles both delay-seconds and HTTP-date forms.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 0
}

// summarize trims an error body to a log-friendly single line.
func summarize(body string) string {
	s := strings.Join(strings.Fields(body), " ")
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	return s
}
