package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/promosync/internal/config"
	"github.com/smallbiznis/promosync/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultAPIVersion = "2024-10"
	maxBodyBytes      = 8 << 20
)

// Request is a single GraphQL operation.
type Request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// ThrottleStatus is the query cost budget reported with every response.
type ThrottleStatus struct {
	MaximumAvailable   float64 `json:"maximumAvailable"`
	CurrentlyAvailable float64 `json:"currentlyAvailable"`
	RestoreRate        float64 `json:"restoreRate"`
	RequestedCost      float64 `json:"-"`
}

type Response struct {
	Data     json.RawMessage
	Errors   []GraphQLError
	Throttle *ThrottleStatus
}

type rawResponse struct {
	Data       json.RawMessage `json:"data"`
	Errors     []GraphQLError  `json:"errors"`
	Extensions struct {
		Cost struct {
			RequestedQueryCost float64         `json:"requestedQueryCost"`
			ThrottleStatus     *ThrottleStatus `json:"throttleStatus"`
		} `json:"cost"`
	} `json:"extensions"`
}

// Querier runs GraphQL operations against one shop.
type Querier interface {
	Query(ctx context.Context, shop string, req Request) (*Response, error)
}

type sleepFunc func(ctx context.Context, d time.Duration) error

// Client is the Admin GraphQL client. It paces calls per shop, retries
// throttled and transient failures, and brakes when the cost budget runs low.
type Client struct {
	httpClient  *http.Client
	credentials CredentialSource
	limits      config.LimitsSource
	apiVersion  string
	endpoint    func(shop string) string
	log         *zap.Logger
	metrics     *metrics.SyncMetrics
	tracer      trace.Tracer

	sleep  sleepFunc
	jitter func(n int64) int64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

type Option func(*Client)

// WithEndpoint overrides the per-shop GraphQL URL.
func WithEndpoint(fn func(shop string) string) Option {
	return func(c *Client) { c.endpoint = fn }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func withSleeper(fn sleepFunc) Option {
	return func(c *Client) { c.sleep = fn }
}

func withJitter(fn func(n int64) int64) Option {
	return func(c *Client) { c.jitter = fn }
}

func NewClient(cfg config.ShopifyConfig, credentials CredentialSource, limits config.LimitsSource, log *zap.Logger, m *metrics.SyncMetrics, opts ...Option) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	apiVersion := strings.TrimSpace(cfg.APIVersion)
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		credentials: credentials,
		limits:      limits,
		apiVersion:  apiVersion,
		log:         log.Named("shopify.client"),
		metrics:     m,
		tracer:      otel.Tracer("promosync/shopify"),
		sleep:       sleepContext,
		jitter:      rand.Int63n,
		limiters:    make(map[string]*rate.Limiter),
	}
	c.endpoint = func(shop string) string {
		return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", shop, c.apiVersion)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query runs req against shop, retrying throttled and transient failures.
func (c *Client) Query(ctx context.Context, shop string, req Request) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "shopify.query", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("shopify.shop", shop))

	token, err := c.credentials.AccessToken(ctx, shop)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "credentials")
		return nil, err
	}

	limits := c.limits.Limits()
	attempts := limits.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := c.backoff(limits, attempt-1)
			c.log.Debug("retrying shopify query",
				zap.String("shop", shop),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		if err := c.limiterFor(shop, limits).Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.do(ctx, shop, token, req)
		if err != nil {
			if !IsRetryable(err) {
				c.metrics.IncUpstreamRequest("error")
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
			lastErr = err
			c.metrics.IncUpstreamRetry(retryCause(err))
			continue
		}

		c.metrics.IncUpstreamRequest("ok")
		if resp.Throttle != nil {
			span.SetAttributes(attribute.Float64("shopify.throttle.available", resp.Throttle.CurrentlyAvailable))
			if err := c.brake(ctx, shop, limits, resp.Throttle); err != nil {
				return nil, err
			}
		}
		span.SetAttributes(attribute.Int("shopify.attempts", attempt+1))
		return resp, nil
	}

	terminal := &TerminalError{Attempts: attempts, Last: lastErr}
	c.metrics.IncUpstreamRequest("exhausted")
	span.RecordError(terminal)
	span.SetStatus(codes.Error, "retries exhausted")
	c.log.Warn("shopify query retries exhausted",
		zap.String("shop", shop),
		zap.Int("attempts", attempts),
		zap.Error(lastErr),
	)
	return nil, terminal
}

func (c *Client) do(ctx context.Context, shop, token string, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(shop), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Shopify-Access-Token", token)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: http 429", ErrThrottled)
	case httpResp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: http %d", ErrTransient, httpResp.StatusCode)
	case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: http %d", ErrUnauthorized, httpResp.StatusCode)
	case httpResp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: http 404", ErrNotFound)
	case httpResp.StatusCode >= 300:
		return nil, fmt.Errorf("shopify: unexpected http %d", httpResp.StatusCode)
	}

	var raw rawResponse
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	resp := &Response{Data: raw.Data, Errors: raw.Errors}
	if ts := raw.Extensions.Cost.ThrottleStatus; ts != nil {
		ts.RequestedCost = raw.Extensions.Cost.RequestedQueryCost
		resp.Throttle = ts
	}

	if len(raw.Errors) > 0 {
		if retryable := classifyGraphQLErrors(raw.Errors); retryable != nil {
			return nil, fmt.Errorf("%w: %s", retryable, raw.Errors[0].Message)
		}
		return nil, &QueryError{Errors: raw.Errors}
	}
	return resp, nil
}

// backoff returns BaseDelay*2^n plus jitter in [0, delay/2), capped at MaxDelay.
func (c *Client) backoff(limits config.Limits, n int) time.Duration {
	delay := float64(limits.BaseDelay) * math.Pow(2, float64(n))
	if delay > float64(limits.MaxDelay) {
		delay = float64(limits.MaxDelay)
	}
	d := time.Duration(delay)
	if half := int64(d / 2); half > 0 {
		d += time.Duration(c.jitter(half))
	}
	if d > limits.MaxDelay {
		d = limits.MaxDelay
	}
	return d
}

func (c *Client) brake(ctx context.Context, shop string, limits config.Limits, ts *ThrottleStatus) error {
	c.metrics.ObserveThrottle(ts.CurrentlyAvailable)
	wait := brakeDuration(limits, ts)
	if wait <= 0 {
		return nil
	}
	c.log.Info("shopify budget low, braking",
		zap.String("shop", shop),
		zap.Float64("available", ts.CurrentlyAvailable),
		zap.Float64("restore_rate", ts.RestoreRate),
		zap.Duration("sleep", wait),
	)
	c.metrics.ObserveThrottleSleep(wait)
	return c.sleep(ctx, wait)
}

// brakeDuration is ceil(deficit / restoreRate) seconds, bounded by four times MaxDelay.
func brakeDuration(limits config.Limits, ts *ThrottleStatus) time.Duration {
	if ts == nil || ts.CurrentlyAvailable >= limits.ThrottleThreshold || ts.RestoreRate <= 0 {
		return 0
	}
	seconds := math.Ceil((limits.ThrottleThreshold - ts.CurrentlyAvailable) / ts.RestoreRate)
	wait := time.Duration(seconds) * time.Second
	if ceiling := 4 * limits.MaxDelay; wait > ceiling {
		wait = ceiling
	}
	return wait
}

func (c *Client) limiterFor(shop string, limits config.Limits) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[shop]
	if !ok {
		l = rate.NewLimiter(rate.Limit(limits.RequestsPerSecond), limits.Burst)
		c.limiters[shop] = l
		return l
	}
	if l.Limit() != rate.Limit(limits.RequestsPerSecond) {
		l.SetLimit(rate.Limit(limits.RequestsPerSecond))
	}
	if l.Burst() != limits.Burst {
		l.SetBurst(limits.Burst)
	}
	return l
}

func retryCause(err error) string {
	if errors.Is(err, ErrThrottled) {
		return "throttled"
	}
	return "transient"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
