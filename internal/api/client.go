// Package api is the authenticated request layer of the video generation
// client. Every call goes through Client.Execute, which attaches the session
// credentials, recovers once from an expired access token by refreshing the
// token pair, and hands the service's JSON envelope back untouched.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"videoclient/internal/domain"
	"videoclient/internal/infra"
)

// DefaultAppID identifies this client to the service.
const DefaultAppID = "WEB_ADMIN"

// Header names attached to every call.
const (
	HeaderAppID     = "x-app-id"
	HeaderRequestID = "X-Request-ID"
)

// Outcome tells which path a call took through the executor.
type Outcome int

const (
	// OutcomeOK means the first attempt produced the result.
	OutcomeOK Outcome = iota
	// OutcomeRefreshedRetry means the first attempt was rejected with 401,
	// the token pair was refreshed and the single retry produced the result.
	OutcomeRefreshedRetry
	// OutcomeSessionExpired means the session could not be recovered and
	// has been cleared.
	OutcomeSessionExpired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRefreshedRetry:
		return "refreshed_retry"
	case OutcomeSessionExpired:
		return "session_expired"
	default:
		return "unknown"
	}
}

// Options configures the client.
type Options struct {
	BaseURL string
	AppID   string
	Store   domain.CredentialStore
	// OnSessionExpired runs after a failed recovery cleared the store. The
	// CLI uses it to tell the user to log in again.
	OnSessionExpired func()
	HTTPClient       *http.Client
	Logger           *infra.Logger
	RequestTimeout   time.Duration
	RefreshTimeout   time.Duration
}

// Client executes authenticated calls against the video generation service.
type Client struct {
	baseURL          string
	appID            string
	store            domain.CredentialStore
	onSessionExpired func()
	httpClient       *http.Client
	logger           *infra.Logger
	refreshTimeout   time.Duration
	refreshGroup     singleflight.Group
}

// Request describes one call. Body is sent as is; callers serialize it.
type Request struct {
	Method string
	Path   string
	Body   []byte
	Header http.Header
	// SkipAuthRetry disables the refresh-and-retry path. Login and the
	// refresh call itself use it.
	SkipAuthRetry bool
}

// Result is the envelope returned by the service with its data left raw.
type Result struct {
	Outcome  Outcome
	Status   int
	Envelope domain.Envelope[json.RawMessage]
}

// TransportError reports a call that produced no usable envelope: network
// failure, unreadable body or a body that is not a JSON envelope.
type TransportError struct {
	Method string
	Path   string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("api: %s %s: status %d: %v", e.Method, e.Path, e.Status, e.Err)
	}
	return fmt.Sprintf("api: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{domain.ErrTransport, e.Err}
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	if opts.Store == nil {
		return nil, errors.New("api: credential store is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:3002"
	}
	appID := strings.TrimSpace(opts.AppID)
	if appID == "" {
		appID = DefaultAppID
	}
	refreshTimeout := opts.RefreshTimeout
	if refreshTimeout <= 0 {
		refreshTimeout = 15 * time.Second
	}
	return &Client{
		baseURL:          baseURL,
		appID:            appID,
		store:            opts.Store,
		onSessionExpired: opts.OnSessionExpired,
		httpClient:       httpClient,
		logger:           infra.LoggerOrDiscard(opts.Logger),
		refreshTimeout:   refreshTimeout,
	}, nil
}

// Execute performs req with the current credentials. A 401 triggers one
// refresh and one retry; if that fails the store is cleared and the error
// wraps domain.ErrSessionExpired. Any JSON envelope is returned verbatim,
// whatever the HTTP status.
func (c *Client) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	requestID := uuid.NewString()

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	status, body, err := c.send(ctx, req, token, requestID)
	if err != nil {
		return nil, err
	}
	if status != http.StatusUnauthorized || req.SkipAuthRetry {
		return c.result(req, status, body, OutcomeOK)
	}

	c.logger.Info().
		Str("path", req.Path).
		Str("request_id", requestID).
		Msg("api: access token rejected, refreshing session")
	if !c.sharedRefresh(ctx, token) {
		return c.expire(ctx, req)
	}
	fresh, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	status, body, err = c.send(ctx, req, fresh, requestID)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		c.logger.Warn().Str("path", req.Path).Msg("api: retry rejected after refresh")
		return c.expire(ctx, req)
	}
	return c.result(req, status, body, OutcomeRefreshedRetry)
}

func (c *Client) expire(ctx context.Context, req Request) (*Result, error) {
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error().Err(err).Msg("api: failed to clear expired session")
	}
	c.logger.Warn().Str("path", req.Path).Msg("api: session expired")
	if c.onSessionExpired != nil {
		c.onSessionExpired()
	}
	return &Result{Outcome: OutcomeSessionExpired, Status: http.StatusUnauthorized},
		fmt.Errorf("api: %s %s: %w", req.Method, req.Path, domain.ErrSessionExpired)
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	creds, err := c.store.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("api: read session: %w", err)
	}
	if creds == nil {
		return "", nil
	}
	return creds.AccessToken, nil
}

func (c *Client) send(ctx context.Context, req Request, token, requestID string) (int, []byte, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.endpoint(req.Path), body)
	if err != nil {
		return 0, nil, fmt.Errorf("api: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(HeaderAppID, c.appID)
	httpReq.Header.Set(HeaderRequestID, requestID)
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	for key, values := range req.Header {
		httpReq.Header.Del(key)
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, &TransportError{Method: req.Method, Path: req.Path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &TransportError{Method: req.Method, Path: req.Path, Status: resp.StatusCode, Err: err}
	}
	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Str("request_id", requestID).
		Dur("elapsed", time.Since(start)).
		Msg("api: call finished")
	return resp.StatusCode, raw, nil
}

func (c *Client) result(req Request, status int, body []byte, outcome Outcome) (*Result, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &TransportError{Method: req.Method, Path: req.Path, Status: status, Err: errors.New("response is not a json envelope")}
	}
	res := &Result{Outcome: outcome, Status: status}
	if err := json.Unmarshal(trimmed, &res.Envelope); err != nil {
		return nil, &TransportError{Method: req.Method, Path: req.Path, Status: status, Err: fmt.Errorf("decode envelope: %w", err)}
	}
	return res, nil
}

func (c *Client) endpoint(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// Decode converts the raw envelope data into T. Data of a business failure
// is decoded best effort since services often send an empty string or null.
func Decode[T any](res *Result) (*domain.Envelope[T], error) {
	if res == nil {
		return nil, errors.New("api: nil result")
	}
	env := &domain.Envelope[T]{Code: res.Envelope.Code, Message: res.Envelope.Message}
	data := bytes.TrimSpace(res.Envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return env, nil
	}
	if err := json.Unmarshal(data, &env.Data); err != nil {
		if !env.OK() {
			return env, nil
		}
		return nil, fmt.Errorf("api: decode data: %w", errors.Join(domain.ErrTransport, err))
	}
	return env, nil
}
