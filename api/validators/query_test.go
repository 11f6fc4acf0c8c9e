package validators

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/pagination"
)

func TestParsePageDefaultsAndBounds(t *testing.T) {
	limit, cursor, err := ParsePage(httptest.NewRequest("GET", "/orders", nil))
	require.NoError(t, err)
	assert.Equal(t, pagination.DefaultLimit, limit)
	assert.Empty(t, cursor)

	limit, cursor, err = ParsePage(httptest.NewRequest("GET", "/orders?limit=5&cursor=+abc+", nil))
	require.NoError(t, err)
	assert.Equal(t, 5, limit)
	assert.Equal(t, "abc", cursor)

	_, _, err = ParsePage(httptest.NewRequest("GET", "/orders?limit=1000", nil))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestParseQueryDate(t *testing.T) {
	req := httptest.NewRequest("GET", "/slots?start=2026-03-02&end=03/09/2026", nil)

	start, err := ParseQueryDate(req, "start", true)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", start)

	_, err = ParseQueryDate(req, "end", false)
	require.Error(t, err)

	missing, err := ParseQueryDate(req, "until", false)
	require.NoError(t, err)
	assert.Empty(t, missing)

	_, err = ParseQueryDate(req, "until", true)
	require.Error(t, err)
}

func TestParseQueryBool(t *testing.T) {
	value, err := ParseQueryBool(httptest.NewRequest("GET", "/n?unreadOnly=true", nil), "unreadOnly")
	require.NoError(t, err)
	assert.True(t, value)

	_, err = ParseQueryBool(httptest.NewRequest("GET", "/n?unreadOnly=maybe", nil), "unreadOnly")
	require.Error(t, err)
}

func TestSanitizeStringKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "café", SanitizeString("  café au lait ", 4))
	assert.Equal(t, "ab", SanitizeString("a\x00b\x07", 0))
	assert.Equal(t, "line one\nline two", SanitizeString("line one\nline two", 0))
}
