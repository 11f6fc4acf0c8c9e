package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/marketcart-backend/api/responses"
	pkgauth "github.com/angelmondragon/marketcart-backend/pkg/auth"
	"github.com/angelmondragon/marketcart-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
)

// Auth verifies the bearer access token and seeds the request context, and
// its log fields, with the caller's user id, role and seller id.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				challenge(w, "")
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParseAccessToken(cfg, token)
			if err != nil {
				challenge(w, "invalid_token")
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			fields := map[string]any{
				"user_id":    claims.UserID.String(),
				"actor_role": string(claims.Role),
			}
			ctx := withActor(r.Context(), func(a *actor) {
				a.userID = claims.UserID.String()
				a.role = string(claims.Role)
				if claims.SellerID != nil {
					a.sellerID = claims.SellerID.String()
					fields["seller_id"] = a.sellerID
				}
			})
			if logg != nil {
				ctx = logg.WithFields(ctx, fields)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts "Bearer <token>" in any case, or a bare token. A scheme
// with nothing after it is not a token.
func bearerToken(header string) (string, bool) {
	header = strings.TrimLeft(header, " \t")
	if scheme, rest, found := strings.Cut(header, " "); found && strings.EqualFold(scheme, "bearer") {
		header = rest
	} else if strings.EqualFold(strings.TrimSpace(header), "bearer") {
		return "", false
	}
	header = strings.TrimSpace(header)
	return header, header != ""
}

func challenge(w http.ResponseWriter, code string) {
	value := `Bearer realm="marketcart"`
	if code != "" {
		value += `, error="` + code + `"`
	}
	w.Header().Set("WWW-Authenticate", value)
}
