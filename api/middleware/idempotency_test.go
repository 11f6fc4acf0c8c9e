package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
)

// memoryResponses is an in-process ResponseStore. ttls records the last TTL
// written per key.
type memoryResponses struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryResponses() *memoryResponses {
	return &memoryResponses{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryResponses) Get(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryResponses) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key], m.ttls[key] = value.(string), ttl
	return true, nil
}

func (m *memoryResponses) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	switch v := value.(type) {
	case string:
		m.data[key] = v
	case []byte:
		m.data[key] = string(v)
	}
	m.ttls[key] = ttl
	return nil
}

func (m *memoryResponses) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryResponses) IdempotencyKey(scope, id string) string {
	return "test:" + scope + ":" + id
}

func send(h http.Handler, path, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouteTTLSelection(t *testing.T) {
	cases := []struct {
		method, path string
		want         time.Duration
	}{
		{http.MethodPost, "/api/v1/checkout", criticalIdempotencyTTL},
		{http.MethodPost, "/api/v1/seller/payouts", criticalIdempotencyTTL},
		{http.MethodPost, "/api/v1/orders/456/cancel", criticalIdempotencyTTL},
		{http.MethodPost, "/api/v1/orders/456/retry-payment", criticalIdempotencyTTL},
		{http.MethodPost, "/api/v1/seller/pickups/scan", criticalIdempotencyTTL},
		{http.MethodPost, "/api/v1/seller/orders/abc/ready", defaultIdempotencyTTL},
		{http.MethodPost, "/api/v1/cart/lines", defaultIdempotencyTTL},
		{http.MethodPost, "/api/v1/slot-locks", defaultIdempotencyTTL},
		{http.MethodGet, "/api/v1/seller/payouts/balance", 0},
		{http.MethodPost, "/api/v1/webhooks/stripe", 0},
		{http.MethodPost, "/api/v1/orders/456/cancel/extra", 0},
	}
	for _, tc := range cases {
		ttl, ok := routeTTL(tc.method, tc.path)
		assert.Equal(t, tc.want != 0, ok, "%s %s", tc.method, tc.path)
		assert.Equal(t, tc.want, ttl, "%s %s", tc.method, tc.path)
	}
}

func TestIdempotencyPassesThroughUnlistedRoutes(t *testing.T) {
	calls := 0
	h := Idempotency(newMemoryResponses(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	assert.Equal(t, http.StatusOK, send(h, "/api/v1/webhooks/stripe", "", `{}`).Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotencyRejectsMissingOrLongKey(t *testing.T) {
	h := Idempotency(newMemoryResponses(), nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run without a usable key")
	}))

	assert.Equal(t, http.StatusBadRequest, send(h, "/api/v1/checkout", "", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, send(h, "/api/v1/checkout", strings.Repeat("k", maxKeyLength+1), `{}`).Code)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newMemoryResponses()
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"order_ids":["o-1"]}`))
	}))

	first := send(h, "/api/v1/checkout", "chk-1", `{"cart":"c-1"}`)
	require.Equal(t, http.StatusAccepted, first.Code)
	assert.Empty(t, first.Header().Get("Idempotent-Replayed"))

	again := send(h, "/api/v1/checkout", "chk-1", `{"cart":"c-1"}`)
	assert.Equal(t, http.StatusAccepted, again.Code)
	assert.Equal(t, "application/json", again.Header().Get("Content-Type"))
	assert.Equal(t, "true", again.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, `{"order_ids":["o-1"]}`, again.Body.String())
	assert.Equal(t, 1, calls)

	for key, ttl := range store.ttls {
		assert.Equal(t, criticalIdempotencyTTL, ttl, key)
	}
}

func TestIdempotencyLetsServerFaultsRetry(t *testing.T) {
	store := newMemoryResponses()
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	assert.Equal(t, http.StatusServiceUnavailable, send(h, "/api/v1/seller/payouts", "payout-1", `{"amount_cents":500}`).Code)
	assert.Equal(t, http.StatusCreated, send(h, "/api/v1/seller/payouts", "payout-1", `{"amount_cents":500}`).Code)
	assert.Equal(t, 2, calls)
	assert.Len(t, store.data, 1, "only the successful response is kept")
}

func TestIdempotencyRejectsReusedKeyWithNewBody(t *testing.T) {
	h := Idempotency(newMemoryResponses(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send(h, "/api/v1/checkout", "xyz", `{"cart":"a"}`)
	resp := send(h, "/api/v1/checkout", "xyz", `{"cart":"b"}`)
	require.Equal(t, http.StatusConflict, resp.Code)

	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.Equal(t, string(pkgerrors.CodeIdempotency), payload.Error.Code)
}

func TestIdempotencyRejectsDuplicateWhileFirstRuns(t *testing.T) {
	store := newMemoryResponses()
	var dup *httptest.ResponseRecorder
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		dup = send(Idempotency(store, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("duplicate must not reach the handler")
		})), "/api/v1/checkout", "race", `{}`)
		w.WriteHeader(http.StatusCreated)
	}))

	assert.Equal(t, http.StatusCreated, send(h, "/api/v1/checkout", "race", `{}`).Code)
	require.NotNil(t, dup)
	assert.Equal(t, http.StatusConflict, dup.Code)
}

func TestIdempotencyReleasesKeyOnPanic(t *testing.T) {
	store := newMemoryResponses()
	h := Idempotency(store, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	assert.Panics(t, func() { send(h, "/api/v1/checkout", "panic", `{}`) })
	assert.Empty(t, store.data)
}
