package middleware

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/angelmondragon/marketcart-backend/api/responses"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
)

// Recoverer turns a handler panic into a 500 envelope. http.ErrAbortHandler is
// re-raised so net/http can drop the connection.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				switch rec {
				case nil:
					return
				case http.ErrAbortHandler:
					panic(rec)
				}
				responses.WriteError(panicContext(r, logg), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, panicError(rec), "handler panic"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func panicError(rec any) error {
	if err, ok := rec.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", rec)
}

func panicContext(r *http.Request, logg *logger.Logger) context.Context {
	if logg == nil {
		return r.Context()
	}
	return logg.WithFields(r.Context(), map[string]any{
		"stack":  string(debug.Stack()),
		"method": r.Method,
		"path":   r.URL.Path,
	})
}
