package stripe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/marketcart-backend/pkg/config"
)

func TestNewClientValidatesEnvironmentAndKeys(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.StripeConfig
		wantErr string
	}{
		{name: "missing key", cfg: config.StripeConfig{Secret: "whsec_x", Env: "test"}, wantErr: "api key is required"},
		{name: "missing secret", cfg: config.StripeConfig{APIKey: "sk_test_123", Env: "test"}, wantErr: "webhook secret is required"},
		{name: "unknown env", cfg: config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_x", Env: "staging"}, wantErr: "must be test or live"},
		{name: "live key in test", cfg: config.StripeConfig{APIKey: "sk_live_123", Secret: "whsec_x", Env: "test"}, wantErr: "sk_test_ or rk_test_"},
		{name: "test key in live", cfg: config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_x", Env: "live"}, wantErr: "sk_live_ or rk_live_"},
		{name: "restricted test key", cfg: config.StripeConfig{APIKey: "rk_test_123", Secret: "whsec_x", Env: "test"}},
		{name: "live", cfg: config.StripeConfig{APIKey: "sk_live_123", Secret: " whsec_x ", Env: "LIVE"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(context.Background(), tc.cfg, nil)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "whsec_x", client.SigningSecret())
			assert.Equal(t, tc.cfg.APIKey, stripe.Key)
			assert.Equal(t, tc.cfg.Environment() == "live", client.IsLive())
		})
	}
}

func TestNilClientAccessors(t *testing.T) {
	var c *Client
	assert.Empty(t, c.Environment())
	assert.Empty(t, c.SigningSecret())
	assert.False(t, c.IsLive())
}
