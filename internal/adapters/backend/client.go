// Package backend is the HTTP client for the remote post backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/samirrijal/discoverymap/internal/core/domain"
	"github.com/samirrijal/discoverymap/internal/pkg/metrics"
	"github.com/samirrijal/discoverymap/internal/pkg/telemetry"
)

// HTTPError is a non-2xx backend response. The backend reports failures
// as {"error": ..., "detail": ...}.
type HTTPError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Detail  string `json:"detail"`
}

func (e *HTTPError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Detail != "" {
		return fmt.Sprintf("backend %d: %s: %s", e.Status, msg, e.Detail)
	}
	return fmt.Sprintf("backend %d: %s", e.Status, msg)
}

// Temporary reports whether the request may succeed on retry.
func (e *HTTPError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Options configures the backend client.
type Options struct {
	BaseURL        string
	Token          string
	Timeout        time.Duration
	RateLimit      float64
	Burst          int
	MaxRetries     int
	InitialBackoff time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Client implements ports.PostSource over the backend REST API.
type Client struct {
	base           *url.URL
	token          string
	http           *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	initialBackoff time.Duration
	log            *slog.Logger
	tracer         trace.Tracer
}

// New creates a backend client.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, eris.Errorf("backend: invalid base url %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 20
	}
	if opts.Burst <= 0 {
		opts.Burst = max(int(opts.RateLimit), 1)
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 200 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &Client{
		base:           base,
		token:          opts.Token,
		http:           client,
		limiter:        rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst),
		maxRetries:     opts.MaxRetries,
		initialBackoff: opts.InitialBackoff,
		log:            opts.Logger,
		tracer:         telemetry.Tracer(),
	}, nil
}

// RecentPosts reads the recent feed. Anonymous callers get the public
// feed; an identity adds that user's private posts.
func (c *Client) RecentPosts(ctx context.Context, identity string) ([]domain.Post, error) {
	var page domain.PostPage
	var err error
	if identity == "" {
		err = c.do(ctx, "recent", http.MethodGet, "/api/posts/recent", nil, nil, &page)
	} else {
		body := map[string]string{"user_id": identity}
		err = c.do(ctx, "recent", http.MethodPost, "/api/posts/recent", nil, body, &page)
	}
	if err != nil {
		return nil, err
	}
	return page.Posts, nil
}

// SearchPosts runs a backend text search.
func (c *Client) SearchPosts(ctx context.Context, query string, limit int) ([]domain.Post, error) {
	q := url.Values{}
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var page domain.PostPage
	if err := c.do(ctx, "search", http.MethodGet, "/api/search", q, nil, &page); err != nil {
		return nil, err
	}
	return page.Posts, nil
}

// Ping checks that the backend answers.
func (c *Client) Ping(ctx context.Context) error {
	var page domain.PostPage
	return c.do(ctx, "recent", http.MethodGet, "/api/posts/recent", nil, nil, &page)
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, body, out interface{}) error {
	ctx, span := c.tracer.Start(ctx, telemetry.SpanBackendCall,
		trace.WithAttributes(attribute.String(telemetry.AttrEndpoint, endpoint)))
	defer span.End()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "backend: encode request")
		}
	}

	u := *c.base
	u.Path = c.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	target := u.String()

	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(eris.Wrap(err, "backend: rate limiter wait"))
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return backoff.Permanent(eris.Wrap(err, "backend: build request"))
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			metrics.BackendRequestDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return eris.Wrapf(err, "backend: %s %s", method, path)
		}
		defer resp.Body.Close()
		metrics.BackendRequestDuration.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			herr := decodeError(resp)
			if herr.Temporary() {
				return herr
			}
			return backoff.Permanent(herr)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(eris.Wrap(err, "backend: decode response"))
		}
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.initialBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.maxRetries)), ctx)
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		c.log.Warn("backend request failed, retrying", "endpoint", endpoint, "wait", wait.String(), "error", err)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func decodeError(resp *http.Response) *HTTPError {
	herr := &HTTPError{Status: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(data) == 0 {
		return herr
	}
	if json.Unmarshal(data, herr) != nil || herr.Message == "" {
		herr.Message = strings.TrimSpace(string(data))
	}
	return herr
}

// AsHTTPError extracts a backend HTTPError from err.
func AsHTTPError(err error) (*HTTPError, bool) {
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr, true
	}
	return nil, false
}
