// Package backend talks to the safe-walk HTTP service: speech synthesis, place
// search, safe route planning, walking-route point claims and recommended
// exercise areas.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultTTSTimeout  = 15 * time.Second
	DefaultVoiceName   = "ko-KR-HyunsuMultilingualNeural"
	MaxSynthesisLength = 1000
	maxErrorBodyLength = 4 << 10
)

// TokenProvider returns the bearer token for authenticated endpoints. An empty
// token means the user is not logged in.
type TokenProvider func(ctx context.Context) (string, error)

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
	ttsTimeout time.Duration
	voiceName  string
	token      TokenProvider
}

type ClientOption func(*Client)

// WithHTTPClient replaces the instrumented default client. The provided
// client's transport is used as is.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithTTSTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.ttsTimeout = timeout
		}
	}
}

// WithVoiceName sets the voice_name form field sent to /api/tts.
func WithVoiceName(voiceName string) ClientOption {
	return func(c *Client) {
		if voiceName != "" {
			c.voiceName = voiceName
		}
	}
}

func WithTokenProvider(provider TokenProvider) ClientOption {
	return func(c *Client) { c.token = provider }
}

// WithToken uses a fixed bearer token.
func WithToken(token string) ClientOption {
	return WithTokenProvider(func(context.Context) (string, error) { return token, nil })
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host required", baseURL)
	}

	client := &Client{
		baseURL: parsed,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
		timeout:    DefaultTimeout,
		ttsTimeout: DefaultTTSTimeout,
		voiceName:  DefaultVoiceName,
	}
	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Authenticated reports whether a bearer token is currently available.
func (c *Client) Authenticated(ctx context.Context) bool {
	if c.token == nil {
		return false
	}
	token, err := c.token(ctx)
	return err == nil && token != ""
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	auth        bool
	timeout     time.Duration
}

func jsonBody(v any) (io.Reader, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}
	return bytes.NewReader(body), nil
}

// do runs a single request. Requests are never retried; callers decide what a
// failure means for the user.
func (c *Client) do(ctx context.Context, span trace.Span, req request, out any) error {
	timeout := req.timeout
	if timeout == 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.endpoint(req.path, req.query), req.body)
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		return err
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	if req.auth {
		token := ""
		if c.token != nil {
			if token, err = c.token(ctx); err != nil {
				err = fmt.Errorf("error getting token: %w", err)
				span.RecordError(err)
				return err
			}
		}
		if token == "" {
			span.RecordError(ErrPermissionDenied)
			return fmt.Errorf("%w: not logged in", ErrPermissionDenied)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	span.SetAttributes(attribute.String("request.url", httpReq.URL.String()))
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		err = errors.Join(ErrNetworkFailure, fmt.Errorf("error sending request: %w", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		if errorBody, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength)); err != nil {
			span.RecordError(fmt.Errorf("error reading error body: %w", err))
		} else {
			statusErr.Detail = parseDetail(errorBody)
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		span.RecordError(statusErr)
		span.SetStatus(codes.Error, statusErr.Error())
		return statusErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		err = fmt.Errorf("error unmarshalling JSON: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func parseDetail(body []byte) string {
	var parsed struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return strings.TrimSpace(string(body))
	}

	var detail string
	if len(parsed.Detail) > 0 && json.Unmarshal(parsed.Detail, &detail) == nil {
		return detail
	}
	if len(parsed.Detail) > 0 {
		// FastAPI validation errors come back as a list of objects.
		return string(parsed.Detail)
	}
	if parsed.Message != "" {
		return parsed.Message
	}
	return parsed.Error
}
