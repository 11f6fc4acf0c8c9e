package cutoff

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
)

func strPtr(v string) *string { return &v }

func fixedAt(t *testing.T, tz string, hour, minute, second int) func() time.Time {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	at := time.Date(2026, 3, 1, hour, minute, second, 0, loc)
	return func() time.Time { return at.UTC() }
}

func TestIsSameDayAllowedPastCutoff(t *testing.T) {
	seller := &models.Seller{SameDayPickupAllowed: true, CutoffTime: strPtr("17:00:00"), Timezone: "America/Chicago"}
	policy := NewPolicy(fixedAt(t, "America/Chicago", 17, 1, 0))

	decision, err := policy.IsSameDayAllowed(seller)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("expected same-day to be refused after cutoff")
	}
	if decision.Reason != ReasonPastCutoff {
		t.Fatalf("unexpected reason %q", decision.Reason)
	}
}

func TestIsSameDayAllowedBoundaries(t *testing.T) {
	cases := []struct {
		name    string
		seller  *models.Seller
		now     func() time.Time
		allowed bool
		reason  string
	}{
		{
			name:    "flag disabled",
			seller:  &models.Seller{SameDayPickupAllowed: false, Timezone: "UTC"},
			now:     fixedAt(t, "UTC", 8, 0, 0),
			allowed: false,
			reason:  ReasonSameDayDisabled,
		},
		{
			name:    "no cutoff",
			seller:  &models.Seller{SameDayPickupAllowed: true, Timezone: "UTC"},
			now:     fixedAt(t, "UTC", 23, 59, 0),
			allowed: true,
		},
		{
			name:    "exactly at cutoff",
			seller:  &models.Seller{SameDayPickupAllowed: true, CutoffTime: strPtr("17:00:00"), Timezone: "UTC"},
			now:     fixedAt(t, "UTC", 17, 0, 0),
			allowed: true,
		},
		{
			name:    "one second past",
			seller:  &models.Seller{SameDayPickupAllowed: true, CutoffTime: strPtr("17:00:00"), Timezone: "UTC"},
			now:     fixedAt(t, "UTC", 17, 0, 1),
			allowed: false,
			reason:  ReasonPastCutoff,
		},
		{
			name:    "evaluated in seller zone",
			seller:  &models.Seller{SameDayPickupAllowed: true, CutoffTime: strPtr("17:00"), Timezone: "Asia/Tokyo"},
			now:     fixedAt(t, "Asia/Tokyo", 9, 0, 0),
			allowed: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := NewPolicy(tc.now).IsSameDayAllowed(tc.seller)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if decision.Allowed != tc.allowed || decision.Reason != tc.reason {
				t.Fatalf("got %+v want allowed=%v reason=%q", decision, tc.allowed, tc.reason)
			}
		})
	}
}

func TestIsSameDayAllowedMalformedCutoff(t *testing.T) {
	for _, raw := range []string{"5pm", "25:00:00", "17-00-00", "7:00"} {
		seller := &models.Seller{SameDayPickupAllowed: true, CutoffTime: strPtr(raw)}
		_, err := NewPolicy(nil).IsSameDayAllowed(seller)
		if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("cutoff %q: expected validation error, got %v", raw, err)
		}
	}
}

func TestIsToday(t *testing.T) {
	// 23:30 in New York on Mar 1 is already Mar 2 in UTC.
	policy := NewPolicy(fixedAt(t, "America/New_York", 23, 30, 0))
	seller := &models.Seller{Timezone: "America/New_York"}
	if !policy.IsToday(seller, "2026-03-01") {
		t.Fatalf("expected Mar 1 to be today for the seller")
	}
	if policy.IsToday(&models.Seller{Timezone: "UTC"}, "2026-03-01") {
		t.Fatalf("expected Mar 1 not to be today in UTC")
	}
}

func TestHasStarted(t *testing.T) {
	policy := NewPolicy(fixedAt(t, "UTC", 10, 0, 0))
	seller := &models.Seller{Timezone: "UTC"}
	cases := []struct {
		date   string
		minute int
		want   bool
	}{
		{date: "2026-02-28", minute: 900, want: true},
		{date: "2026-03-01", minute: 540, want: true},
		{date: "2026-03-01", minute: 600, want: true},
		{date: "2026-03-01", minute: 630, want: false},
		{date: "2026-03-02", minute: 0, want: false},
	}
	for _, tc := range cases {
		if got := policy.HasStarted(seller, tc.date, tc.minute); got != tc.want {
			t.Fatalf("HasStarted(%s, %d) = %v, want %v", tc.date, tc.minute, got, tc.want)
		}
	}
}
