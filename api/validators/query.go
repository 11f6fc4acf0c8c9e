package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/pagination"
	"github.com/angelmondragon/marketcart-backend/pkg/types"
)

func queryValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

func queryError(key, message string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(map[string]any{"field": key})
}

// ParseQueryInt reads an optional bounded integer. Missing values yield defaultVal.
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, queryError(key, key+" must be numeric")
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" out of range").
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseQueryDate reads a YYYY-MM-DD value and returns it unchanged.
func ParseQueryDate(r *http.Request, key string, required bool) (string, error) {
	raw := queryValue(r, key)
	if raw == "" {
		if required {
			return "", queryError(key, key+" date is required")
		}
		return "", nil
	}
	if _, err := types.ParseDate(raw); err != nil {
		return "", queryError(key, key+" must be YYYY-MM-DD")
	}
	return raw, nil
}

func ParseQueryBool(r *http.Request, key string) (bool, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, queryError(key, "invalid "+key+" value")
	}
	return value, nil
}

// ParsePage reads the limit and cursor pair shared by every list endpoint.
func ParsePage(r *http.Request) (int, string, error) {
	limit, err := ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return 0, "", err
	}
	return limit, queryValue(r, "cursor"), nil
}
