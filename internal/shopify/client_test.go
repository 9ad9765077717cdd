package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/promosync/internal/config"
	"github.com/smallbiznis/promosync/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testShop = "demo.myshopify.com"

type recordedSleeps struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
	return nil
}

func (r *recordedSleeps) all() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.sleeps...)
}

func testLimits() config.Limits {
	l := config.DefaultLimits()
	l.RequestsPerSecond = 1000
	l.Burst = 100
	l.MaxRetries = 3
	l.BaseDelay = 100 * time.Millisecond
	l.MaxDelay = time.Second
	return l
}

func newTestClient(t *testing.T, handler http.HandlerFunc, limits config.Limits) (*Client, *recordedSleeps) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sleeps := &recordedSleeps{}
	m := metrics.NewSyncMetrics(prometheus.NewRegistry(), metrics.Config{})
	c := NewClient(
		config.ShopifyConfig{},
		StaticCredentials{testShop: "shpat_test"},
		config.StaticLimits(limits),
		zap.NewNop(),
		m,
		WithEndpoint(func(string) string { return srv.URL }),
		withSleeper(sleeps.sleep),
		withJitter(func(int64) int64 { return 0 }),
	)
	return c, sleeps
}

func writeJSON(t *testing.T, w http.ResponseWriter, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func throttleExt(available, restore float64) map[string]any {
	return map[string]any{
		"cost": map[string]any{
			"requestedQueryCost": 10,
			"throttleStatus": map[string]any{
				"maximumAvailable":   1000,
				"currentlyAvailable": available,
				"restoreRate":        restore,
			},
		},
	}
}

func TestQuerySendsTokenAndParsesThrottle(t *testing.T) {
	c, sleeps := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shpat_test", r.Header.Get("X-Shopify-Access-Token"))
		writeJSON(t, w, map[string]any{
			"data":       map[string]any{"ok": true},
			"extensions": throttleExt(900, 50),
		})
	}, testLimits())

	resp, err := c.Query(context.Background(), testShop, Request{Query: "{ ok }"})
	require.NoError(t, err)
	require.NotNil(t, resp.Throttle)
	assert.Equal(t, float64(900), resp.Throttle.CurrentlyAvailable)
	assert.Equal(t, float64(10), resp.Throttle.RequestedCost)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Data))
	assert.Empty(t, sleeps.all())
}

func TestQueryBrakesWhenBudgetLow(t *testing.T) {
	c, sleeps := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"data":       map[string]any{},
			"extensions": throttleExt(40, 50),
		})
	}, testLimits())

	_, err := c.Query(context.Background(), testShop, Request{Query: "{ ok }"})
	require.NoError(t, err)
	// ceil((100 - 40) / 50) = 2 seconds
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeps.all())
}

func TestBrakeDurationIsBounded(t *testing.T) {
	limits := testLimits()
	wait := brakeDuration(limits, &ThrottleStatus{CurrentlyAvailable: 0, RestoreRate: 1})
	assert.Equal(t, 4*limits.MaxDelay, wait)
	assert.Zero(t, brakeDuration(limits, &ThrottleStatus{CurrentlyAvailable: 0, RestoreRate: 0}))
	assert.Zero(t, brakeDuration(limits, nil))
}

func TestQueryRetriesThrottledThenSucceeds(t *testing.T) {
	var calls int32
	c, sleeps := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			writeJSON(t, w, map[string]any{
				"errors": []map[string]any{{
					"message":    "Throttled",
					"extensions": map[string]any{"code": "THROTTLED"},
				}},
			})
			return
		}
		writeJSON(t, w, map[string]any{"data": map[string]any{}})
	}, testLimits())

	_, err := c.Query(context.Background(), testShop, Request{Query: "{ ok }"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, sleeps.all())
}

func TestQueryExhaustsRetriesOnServerErrors(t *testing.T) {
	var calls int32
	limits := testLimits()
	c, sleeps := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}, limits)

	_, err := c.Query(context.Background(), testShop, Request{Query: "{ ok }"})
	require.Error(t, err)

	var terminal *TerminalError
	require.True(t, errors.As(err, &terminal))
	assert.Equal(t, limits.MaxRetries+1, terminal.Attempts)
	assert.True(t, errors.Is(err, ErrTransient))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, int32(limits.MaxRetries+1), atomic.LoadInt32(&calls))

	got := sleeps.all()
	require.Len(t, got, limits.MaxRetries)
	for _, d := range got {
		assert.LessOrEqual(t, d, limits.MaxDelay)
	}
}

func TestQueryTemporarilyUnavailableIsRetried(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			writeJSON(t, w, map[string]any{
				"errors": []map[string]any{{"message": "Service temporarily unavailable"}},
			})
			return
		}
		writeJSON(t, w, map[string]any{"data": map[string]any{}})
	}, testLimits())

	_, err := c.Query(context.Background(), testShop, Request{Query: "{ ok }"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestQueryPropagatesNonRetryableErrors(t *testing.T) {
	var calls int32
	c, sleeps := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(t, w, map[string]any{
			"errors": []map[string]any{{"message": "Field 'nope' doesn't exist"}},
		})
	}, testLimits())

	_, err := c.Query(context.Background(), testShop, Request{Query: "{ nope }"})
	var queryErr *QueryError
	require.True(t, errors.As(err, &queryErr))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, sleeps.all())
}

func TestQueryUnauthorized(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, testLimits())

	_, err := c.Query(context.Background(), testShop, Request{Query: "{ ok }"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestQueryMissingCredentials(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}, testLimits())

	_, err := c.Query(context.Background(), "other.myshopify.com", Request{Query: "{ ok }"})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	c, _ := newTestClient(t, func(http.ResponseWriter, *http.Request) {}, testLimits())
	limits := testLimits()
	assert.Equal(t, 100*time.Millisecond, c.backoff(limits, 0))
	assert.Equal(t, 400*time.Millisecond, c.backoff(limits, 2))
	assert.Equal(t, time.Second, c.backoff(limits, 10))

	c.jitter = func(n int64) int64 { return n - 1 }
	d := c.backoff(limits, 1)
	assert.GreaterOrEqual(t, d, 200*time.Millisecond)
	assert.Less(t, d, 300*time.Millisecond)
}
