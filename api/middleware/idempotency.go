package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/marketcart-backend/api/responses"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/marketcart-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
	maxKeyLength      = 255

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour

	// pendingMarker holds the key while the first request runs. It expires on
	// its own if the process dies mid-request.
	pendingMarker = "pending"
	inflightTTL   = 2 * time.Minute
)

// ResponseStore keeps idempotent responses between retries.
type ResponseStore interface {
	pkgredis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type idempotencyRule struct {
	method  string
	pattern string // path.Match syntax
	ttl     time.Duration
}

// Money-moving and state-changing routes keep responses for 7 days, the rest for 24h.
var idempotencyRules = []idempotencyRule{
	{http.MethodPost, "/api/v1/cart/lines", defaultIdempotencyTTL},
	{http.MethodPost, "/api/v1/slot-locks", defaultIdempotencyTTL},
	{http.MethodPost, "/api/v1/notifications/*/read", defaultIdempotencyTTL},
	{http.MethodPost, "/api/v1/notifications/read-all", defaultIdempotencyTTL},
	{http.MethodPost, "/api/v1/seller/blocks", defaultIdempotencyTTL},
	{http.MethodPost, "/api/v1/seller/onboarding", defaultIdempotencyTTL},
	{http.MethodPost, "/api/v1/seller/orders/*/ready", defaultIdempotencyTTL},
	{http.MethodPost, "/api/v1/orders/*/reconcile", defaultIdempotencyTTL},

	{http.MethodPost, "/api/v1/checkout", criticalIdempotencyTTL},
	{http.MethodPost, "/api/v1/seller/payouts", criticalIdempotencyTTL},
	{http.MethodPost, "/api/v1/orders/*/cancel", criticalIdempotencyTTL},
	{http.MethodPost, "/api/v1/orders/*/retry-payment", criticalIdempotencyTTL},
	{http.MethodPost, "/api/v1/seller/orders/*/cancel", criticalIdempotencyTTL},
	{http.MethodPost, "/api/v1/seller/pickups/scan", criticalIdempotencyTTL},
}

// routeTTL matches on the request path. Route patterns are incomplete while
// middleware mounted on a parent router runs.
func routeTTL(method, urlPath string) (time.Duration, bool) {
	for _, rule := range idempotencyRules {
		if rule.method != method {
			continue
		}
		if ok, _ := path.Match(rule.pattern, urlPath); ok {
			return rule.ttl, true
		}
	}
	return 0, false
}

type idempotencyRecord struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	RequestHash string `json:"request_hash"`
}

// Idempotency requires an Idempotency-Key on the routes in idempotencyRules.
// The first request under a key runs and its response is stored; retries with
// the same body replay it, retries with another body are rejected, and a retry
// racing the first request gets a conflict. 5xx responses are not stored.
func Idempotency(store ResponseStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			fail := func(err error) { responses.WriteError(ctx, logg, w, err) }

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			switch {
			case clientKey == "":
				fail(pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case len(clientKey) > maxKeyLength:
				fail(pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key is too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				fail(pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			sum := sha256.Sum256(body)
			requestHash := hex.EncodeToString(sum[:])

			scope := strings.Join([]string{UserIDFromContext(ctx), SellerIDFromContext(ctx), r.Method, r.URL.Path}, "|")
			key := store.IdempotencyKey(scope, clientKey)

			claimed, err := store.SetNX(ctx, key, pendingMarker, inflightTTL)
			if err != nil {
				fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replay(w, r, store, key, requestHash, fail)
				return
			}

			capture := &responseCapture{ResponseWriter: w, status: http.StatusOK}
			released := false
			release := func() {
				if !released {
					released = true
					if err := store.Del(ctx, key); err != nil && logg != nil {
						logg.Error(ctx, "release idempotency key", err)
					}
				}
			}
			defer func() {
				if p := recover(); p != nil {
					release()
					panic(p)
				}
			}()
			next.ServeHTTP(capture, r)

			if capture.status >= http.StatusInternalServerError {
				release()
				return
			}
			payload, err := json.Marshal(idempotencyRecord{
				Status:      capture.status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
				RequestHash: requestHash,
			})
			if err == nil {
				err = store.Set(ctx, key, string(payload), ttl)
			}
			if err != nil && logg != nil {
				logg.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, r *http.Request, store ResponseStore, key, requestHash string, fail func(error)) {
	stored, err := store.Get(r.Context(), key)
	switch {
	case errors.Is(err, redis.Nil), err == nil && stored == pendingMarker:
		fail(pkgerrors.New(pkgerrors.CodeConflict, "a request with this Idempotency-Key is still in progress"))
		return
	case err != nil:
		fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}

	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if record.RequestHash != requestHash {
		fail(pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(record.Body)
}

type responseCapture struct {
	http.ResponseWriter
	body        bytes.Buffer
	status      int
	wroteHeader bool
}

func (c *responseCapture) WriteHeader(code int) {
	if !c.wroteHeader {
		c.status, c.wroteHeader = code, true
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	c.wroteHeader = true
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
