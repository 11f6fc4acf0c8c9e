package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketcart-backend/pkg/config"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
)

var testCfg = config.JWTConfig{Secret: "secret", Issuer: "marketcart", ExpirationMinutes: 30}

func TestMintAndParseAccessToken(t *testing.T) {
	now := time.Now().UTC()
	userID, sellerID := uuid.New(), uuid.New()

	token, err := MintAccessToken(testCfg, now, AccessTokenPayload{UserID: userID, Role: enums.RoleSeller, SellerID: &sellerID})
	require.NoError(t, err)

	claims, err := ParseAccessToken(testCfg, token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, enums.RoleSeller, claims.Role)
	require.NotNil(t, claims.SellerID)
	assert.Equal(t, sellerID, *claims.SellerID)
	assert.Equal(t, "marketcart", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestParseAccessTokenRejects(t *testing.T) {
	customer := AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleCustomer}
	valid, err := MintAccessToken(testCfg, time.Now(), customer)
	require.NoError(t, err)
	expired, err := MintAccessToken(testCfg, time.Now().Add(-time.Hour), customer)
	require.NoError(t, err)

	otherIssuer := testCfg
	otherIssuer.Issuer = "someone-else"
	foreign, err := MintAccessToken(otherIssuer, time.Now(), customer)
	require.NoError(t, err)

	// a seller token signed elsewhere without the seller scope
	unscoped, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
		UserID: uuid.New(),
		Role:   enums.RoleSeller,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testCfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte(testCfg.Secret))
	require.NoError(t, err)

	wrongAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, AccessTokenClaims{
		UserID: uuid.New(),
		Role:   enums.RoleCustomer,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testCfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte(testCfg.Secret))
	require.NoError(t, err)

	cases := map[string]struct {
		token string
		want  string
	}{
		"bad signature": {valid + "x", "signature"},
		"expired":       {expired, "expired"},
		"issuer":        {foreign, "issuer"},
		"seller scope":  {unscoped, ErrSellerScope.Error()},
		"algorithm":     {wrongAlg, "signing method"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAccessToken(testCfg, tc.token)
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestMintAccessTokenRejectsBadInput(t *testing.T) {
	_, err := MintAccessToken(testCfg, time.Now(), AccessTokenPayload{UserID: uuid.New()})
	assert.ErrorContains(t, err, "invalid role")

	_, err = MintAccessToken(testCfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleSeller})
	assert.ErrorIs(t, err, ErrSellerScope)

	_, err = MintAccessToken(config.JWTConfig{Secret: "s", Issuer: "i"}, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleCustomer})
	assert.ErrorContains(t, err, "expiration")

	_, err = ParseAccessToken(config.JWTConfig{Issuer: "i"}, "x.y.z")
	assert.ErrorContains(t, err, "secret")
}
