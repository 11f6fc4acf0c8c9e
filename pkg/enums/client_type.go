package enums

import (
	"fmt"
	"strings"
)

// ClientType selects the payment handle returned to the caller.
type ClientType string

const (
	ClientTypeWeb    ClientType = "web"
	ClientTypeNative ClientType = "native"
)

var validClientTypes = []ClientType{ClientTypeWeb, ClientTypeNative}

// String implements fmt.Stringer.
func (c ClientType) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ClientType.
func (c ClientType) IsValid() bool {
	for _, candidate := range validClientTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseClientType converts raw input into a ClientType. Empty input defaults to web.
func ParseClientType(value string) (ClientType, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ClientTypeWeb, nil
	}
	for _, candidate := range validClientTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid client type %q", value)
}

// PaymentReferenceKind records which processor object an order reference points at.
type PaymentReferenceKind string

const (
	PaymentReferenceCheckoutSession PaymentReferenceKind = "checkout_session"
	PaymentReferencePaymentIntent   PaymentReferenceKind = "payment_intent"
)

// IsValid reports whether the value is a known PaymentReferenceKind.
func (k PaymentReferenceKind) IsValid() bool {
	return k == PaymentReferenceCheckoutSession || k == PaymentReferencePaymentIntent
}

// ReferenceKindFor maps a client type onto the processor object it produces.
func ReferenceKindFor(client ClientType) PaymentReferenceKind {
	if client == ClientTypeNative {
		return PaymentReferencePaymentIntent
	}
	return PaymentReferenceCheckoutSession
}
