// Package amtclient talks to the brokerage REST API: a generic request
// executor, the OAuth2 token retriever and the user-principals call.
package amtclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/market-stream/common/logger"
	"github.com/YaganovValera/market-stream/common/telemetry"
	"github.com/YaganovValera/market-stream/services/streamer/internal/metrics"
)

var tracer = telemetry.Tracer("streamer/amtclient")

// ContentType selects how a request body is encoded.
type ContentType int

const (
	ContentJSON ContentType = iota
	ContentForm
)

// MIME returns the Content-type header value.
func (c ContentType) MIME() string {
	if c == ContentForm {
		return "application/x-www-form-urlencoded"
	}
	return "application/json"
}

// TokenSource supplies the bearer token for authenticated calls.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Request describes one REST call.
//
// Body is url.Values for ContentForm and any JSON-encodable value for
// ContentJSON. GET requests never carry a body.
type Request struct {
	Method       string
	URL          string
	Body         any
	ContentType  ContentType
	Query        url.Values
	RequiresAuth bool
}

// RequestError is returned for any non-2xx response.
type RequestError struct {
	URL        string
	StatusCode int
	Body       []byte
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("amtclient: request %s failed: status=%d body=%q", e.URL, e.StatusCode, e.Body)
}

// Executor performs REST calls and decodes JSON responses.
type Executor struct {
	client *http.Client
	tokens TokenSource
	log    *logger.Logger
}

// NewExecutor builds an executor. tokens may be nil for calls that never
// authenticate (the token exchange itself).
func NewExecutor(client *http.Client, tokens TokenSource, log *logger.Logger) *Executor {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Executor{client: client, tokens: tokens, log: log.Named("http")}
}

// WithTokenSource returns a copy of e authenticating through tokens.
func (e *Executor) WithTokenSource(tokens TokenSource) *Executor {
	cp := *e
	cp.tokens = tokens
	return &cp
}

// Execute sends req and decodes a successful JSON response into out.
// A nil out discards the body.
func (e *Executor) Execute(ctx context.Context, req Request, out any) error {
	ctx, span := tracer.Start(ctx, "Execute", trace.WithAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.url", req.URL),
	))
	defer span.End()

	httpReq, err := e.build(ctx, req)
	if err != nil {
		telemetry.Fail(span, err)
		return err
	}

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		telemetry.Fail(span, err)
		metrics.RequestLatency.WithLabelValues(httpReq.URL.Host, "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("amtclient: %s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.RequestLatency.WithLabelValues(httpReq.URL.Host, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if err != nil {
		telemetry.Fail(span, err)
		return fmt.Errorf("amtclient: read body %s: %w", req.URL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rerr := &RequestError{URL: req.URL, StatusCode: resp.StatusCode, Body: body}
		span.SetStatus(codes.Error, "non-2xx status")
		e.log.WithContext(ctx).Warn("request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL),
			zap.Int("status", resp.StatusCode),
		)
		return rerr
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		telemetry.Fail(span, err)
		return fmt.Errorf("amtclient: decode response %s: %w", req.URL, err)
	}
	return nil
}

func (e *Executor) build(ctx context.Context, req Request) (*http.Request, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("amtclient: parse url %q: %w", req.URL, err)
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	switch req.Method {
	case http.MethodGet:
	case http.MethodPost:
		b, err := encodeBody(req.Body, req.ContentType)
		if err != nil {
			return nil, err
		}
		if b != nil {
			body = bytes.NewReader(b)
		}
	default:
		return nil, fmt.Errorf("amtclient: unsupported method %q", req.Method)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("amtclient: new request: %w", err)
	}
	httpReq.Header.Set("Content-type", req.ContentType.MIME())

	if req.RequiresAuth && e.tokens != nil {
		token, err := e.tokens.AccessToken(ctx)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	return httpReq, nil
}

func encodeBody(body any, ct ContentType) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	if ct == ContentForm {
		switch v := body.(type) {
		case url.Values:
			return []byte(v.Encode()), nil
		case string:
			return []byte(v), nil
		default:
			return nil, errors.New("amtclient: form body must be url.Values or string")
		}
	}
	if s, ok := body.(string); ok {
		return []byte(s), nil
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("amtclient: encode json body: %w", err)
	}
	return b, nil
}
