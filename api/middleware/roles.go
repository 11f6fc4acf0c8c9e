package middleware

import (
	"net/http"
	"slices"

	"github.com/angelmondragon/marketcart-backend/api/responses"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
)

// RequireRole admits tokens whose role is one of roles.
func RequireRole(logg *logger.Logger, roles ...enums.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := enums.Role(RoleFromContext(r.Context()))
			if !slices.Contains(roles, role) {
				err := pkgerrors.New(pkgerrors.CodeForbidden, "role not permitted for this route")
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSeller admits seller tokens that carry a well-formed seller id, so
// handlers behind it can rely on SellerUUID.
func RequireSeller(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return RequireRole(logg, enums.RoleSeller)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := SellerUUID(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
