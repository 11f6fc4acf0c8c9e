package redis

import "strings"

const keyNamespace = "mc"

// IdempotencyKey namespaces a processed marker or a stored HTTP response.
func (c *Client) IdempotencyKey(scope, id string) string {
	return key("idempotency", scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return key("rate_limit", scope)
}

// OnboardingStateKey holds the seller bound to a connected-account onboarding state token.
func (c *Client) OnboardingStateKey(state string) string {
	return key("onboarding_state", state)
}

func key(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}
