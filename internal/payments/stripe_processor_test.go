package payments

import (
	"testing"

	"github.com/stripe/stripe-go/v84"
)

func TestSessionStateMapping(t *testing.T) {
	tests := []struct {
		name string
		sess *stripe.CheckoutSession
		want PaymentState
	}{
		{name: "open", sess: &stripe.CheckoutSession{Status: stripe.CheckoutSessionStatusOpen}, want: PaymentStateOpen},
		{name: "expired", sess: &stripe.CheckoutSession{Status: stripe.CheckoutSessionStatusExpired}, want: PaymentStateExpired},
		{
			name: "paid",
			sess: &stripe.CheckoutSession{Status: stripe.CheckoutSessionStatusComplete, PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid},
			want: PaymentStatePaid,
		},
		{
			name: "async pending",
			sess: &stripe.CheckoutSession{Status: stripe.CheckoutSessionStatusComplete, PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid},
			want: PaymentStateProcessing,
		},
		{
			name: "async failed",
			sess: &stripe.CheckoutSession{
				Status:        stripe.CheckoutSessionStatusComplete,
				PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid,
				PaymentIntent: &stripe.PaymentIntent{
					Status:           stripe.PaymentIntentStatusRequiresPaymentMethod,
					LastPaymentError: &stripe.Error{Msg: "declined"},
				},
			},
			want: PaymentStateFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SessionState(tt.sess); got != tt.want {
				t.Fatalf("expected %s got %s", tt.want, got)
			}
		})
	}
}

func TestIntentStateMapping(t *testing.T) {
	tests := map[stripe.PaymentIntentStatus]PaymentState{
		stripe.PaymentIntentStatusSucceeded:             PaymentStatePaid,
		stripe.PaymentIntentStatusProcessing:            PaymentStateProcessing,
		stripe.PaymentIntentStatusCanceled:              PaymentStateExpired,
		stripe.PaymentIntentStatusRequiresPaymentMethod: PaymentStateOpen,
		stripe.PaymentIntentStatusRequiresAction:        PaymentStateOpen,
	}
	for status, want := range tests {
		if got := IntentState(&stripe.PaymentIntent{Status: status}); got != want {
			t.Fatalf("status %s: expected %s got %s", status, want, got)
		}
	}
}
