// Package apiclient talks to the admin backend's /auth endpoints.
//
// Every call the session core makes goes through Client. Authenticated calls
// carry the bearer token from a TokenSource; a 401 on one of them is handed to
// the AuthFailureHandler once, and the request is replayed once with the token
// the handler returns.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"consoleauth/internal/platform/logger"
	dErrors "consoleauth/pkg/domain-errors"
	"consoleauth/pkg/platform/sentinel"
	"consoleauth/pkg/requestcontext"
)

const (
	tracerName       = "consoleauth/apiclient"
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "consoleauth/dev"
	maxErrorBody     = 64 << 10
)

// TokenSource yields the current access token. An empty token sends the
// request without Authorization.
type TokenSource func(ctx context.Context) string

// AuthFailureHandler is invoked when an authenticated request is rejected with
// 401. It returns a fresh access token to replay the request with, or an error
// if the session could not be recovered.
type AuthFailureHandler func(ctx context.Context) (string, error)

// Client is the backend API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
	tracer     trace.Tracer

	mu            sync.RWMutex
	tokenSource   TokenSource
	onAuthFailure AuthFailureHandler
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithVersion sets the User-Agent to consoleauth/<version>.
func WithVersion(version string) Option {
	return func(c *Client) {
		if version != "" {
			c.userAgent = "consoleauth/" + version
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracerProvider overrides the global OpenTelemetry provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokenSource = ts }
}

// WithAuthFailureHandler sets the 401 recovery hook.
func WithAuthFailureHandler(h AuthFailureHandler) Option {
	return func(c *Client) { c.onAuthFailure = h }
}

// New creates a client rooted at baseURL (for example
// http://localhost:8080/api/v1).
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("apiclient: base URL is required")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		userAgent:  defaultUserAgent,
		logger:     logger.Discard(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Bind attaches the session's token source and recovery hook. The session
// manager calls it when it is constructed around this client.
func (c *Client) Bind(ts TokenSource, onAuthFailure AuthFailureHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokenSource = ts
	c.onAuthFailure = onAuthFailure
}

// BaseURL returns the root every endpoint path is joined to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) hooks() (TokenSource, AuthFailureHandler) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokenSource, c.onAuthFailure
}

// call describes one endpoint invocation.
type call struct {
	op     string
	method string
	path   string
	body   any
	out    any

	// public endpoints never send a bearer and never trigger recovery.
	public    bool
	noRecover bool
}

func (c *Client) do(ctx context.Context, cl call) error {
	ctx, span := c.tracer.Start(ctx, "apiclient."+cl.op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", cl.method),
		attribute.String("http.route", cl.path),
	)

	tokenSource, onAuthFailure := c.hooks()
	var bearer string
	if !cl.public && tokenSource != nil {
		bearer = tokenSource(ctx)
	}

	err := c.send(ctx, span, cl, bearer)
	if err == nil || cl.public || cl.noRecover || onAuthFailure == nil || !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
		recordResult(span, err)
		return err
	}

	c.logger.DebugContext(ctx, "authenticated request rejected, attempting recovery",
		"op", cl.op,
		"request_id", requestcontext.RequestID(ctx),
	)
	fresh, recoverErr := onAuthFailure(ctx)
	if recoverErr != nil {
		span.SetAttributes(attribute.Bool("auth.recovered", false))
		recordResult(span, err)
		return err
	}
	span.SetAttributes(attribute.Bool("auth.recovered", true))
	err = c.send(ctx, span, cl, fresh)
	recordResult(span, err)
	return err
}

func (c *Client) send(ctx context.Context, span trace.Span, cl call, bearer string) error {
	var body io.Reader
	if cl.body != nil {
		payload, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", cl.op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", cl.op, err)
	}
	requestID := requestcontext.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", cl.op, ctxErr)
		}
		c.logger.WarnContext(ctx, "backend unreachable",
			"op", cl.op,
			"request_id", requestID,
			"error", err,
		)
		return dErrors.Wrap(fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err), dErrors.CodeUnavailable, "backend unreachable")
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	return decodeResponse(resp, cl.out)
}

func recordResult(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
