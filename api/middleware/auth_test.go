package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/pkg/auth"
	"github.com/angelmondragon/marketcart-backend/pkg/config"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if got := resp.Header().Get("WWW-Authenticate"); got != `Bearer realm="marketcart", error="invalid_token"` {
		t.Fatalf("unexpected challenge %q", got)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer   abc ", "abc", true},
		{"abc", "abc", true},
		{"Bearer ", "", false},
		{"  bearer\t", "", false},
		{"Bearer", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		token, ok := bearerToken(tt.header)
		if token != tt.token || ok != tt.ok {
			t.Fatalf("bearerToken(%q) = %q, %v", tt.header, token, ok)
		}
	}
}

func TestAuthSeedsSellerClaims(t *testing.T) {
	sellerID := uuid.New()
	token := mintTestToken(t, enums.RoleSeller, &sellerID)

	var captured struct {
		user   string
		role   string
		seller string
	}
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.user = UserIDFromContext(r.Context())
		captured.role = RoleFromContext(r.Context())
		captured.seller = SellerIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.user == "" {
		t.Fatal("expected user id in context")
	}
	if captured.role != string(enums.RoleSeller) {
		t.Fatalf("expected role seller got %s", captured.role)
	}
	if captured.seller != sellerID.String() {
		t.Fatalf("expected seller %s got %s", sellerID, captured.seller)
	}
}

func TestAuthCustomerTokenHasNoSeller(t *testing.T) {
	token := mintTestToken(t, enums.RoleCustomer, nil)

	var seller string
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seller = SellerIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if seller != "" {
		t.Fatalf("expected empty seller got %s", seller)
	}
}

func TestRequireSeller(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	chain := RequireSeller(nil)(ok)

	tests := []struct {
		name   string
		role   string
		seller string
		want   int
	}{
		{"customer", string(enums.RoleCustomer), "", http.StatusForbidden},
		{"seller without id", string(enums.RoleSeller), "", http.StatusForbidden},
		{"seller with bad id", string(enums.RoleSeller), "not-a-uuid", http.StatusForbidden},
		{"seller", string(enums.RoleSeller), uuid.NewString(), http.StatusNoContent},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		ctx := WithRole(req.Context(), tt.role)
		if tt.seller != "" {
			ctx = WithSellerID(ctx, tt.seller)
		}
		resp := httptest.NewRecorder()
		chain.ServeHTTP(resp, req.WithContext(ctx))
		if resp.Code != tt.want {
			t.Fatalf("%s: expected %d got %d", tt.name, tt.want, resp.Code)
		}
	}
}

func TestRequireRoleAcceptsAnyListed(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	chain := RequireRole(nil, enums.RoleSeller, enums.RoleAdmin)(ok)

	for role, want := range map[enums.Role]int{
		enums.RoleAdmin:    http.StatusNoContent,
		enums.RoleSeller:   http.StatusNoContent,
		enums.RoleCustomer: http.StatusForbidden,
		"":                 http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		resp := httptest.NewRecorder()
		chain.ServeHTTP(resp, req.WithContext(WithRole(req.Context(), string(role))))
		if resp.Code != want {
			t.Fatalf("role %q: expected %d got %d", role, want, resp.Code)
		}
	}
}

func mintTestToken(t *testing.T, role enums.Role, sellerID *uuid.UUID) string {
	t.Helper()
	token, err := auth.MintAccessToken(testJWT, time.Now(), auth.AccessTokenPayload{
		UserID:   uuid.New(),
		Role:     role,
		SellerID: sellerID,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}
