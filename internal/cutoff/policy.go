// Package cutoff decides whether a seller still accepts same-day pickups or
// bookings at the current moment in the seller's timezone.
package cutoff

import (
	"strings"
	"time"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
)

const (
	ReasonSameDayDisabled = "same_day_disabled"
	ReasonPastCutoff      = "past_cutoff"
)

var cutoffLayouts = []string{"15:04:05", "15:04"}

// Decision is the result of a same-day check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Cutoff  string `json:"cutoff,omitempty"`
}

// Policy evaluates same-day rules against an injected clock. Nothing is cached.
type Policy struct {
	now func() time.Time
}

func NewPolicy(now func() time.Time) *Policy {
	if now == nil {
		now = time.Now
	}
	return &Policy{now: now}
}

// IsSameDayAllowed applies the seller flag first, then the optional cutoff
// compared against the seller's local wall clock.
func (p *Policy) IsSameDayAllowed(seller *models.Seller) (Decision, error) {
	if seller == nil {
		return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, "seller required")
	}
	if !seller.SameDayPickupAllowed {
		return Decision{Allowed: false, Reason: ReasonSameDayDisabled}, nil
	}
	if seller.CutoffTime == nil || strings.TrimSpace(*seller.CutoffTime) == "" {
		return Decision{Allowed: true}, nil
	}

	cutoffOfDay, err := parseCutoff(*seller.CutoffTime)
	if err != nil {
		return Decision{}, err
	}

	local := p.now().In(location(seller.Timezone))
	sinceMidnight := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second
	if sinceMidnight > cutoffOfDay {
		return Decision{Allowed: false, Reason: ReasonPastCutoff, Cutoff: *seller.CutoffTime}, nil
	}
	return Decision{Allowed: true, Cutoff: *seller.CutoffTime}, nil
}

// IsToday reports whether date (YYYY-MM-DD) is the current date in the seller's zone.
func (p *Policy) IsToday(seller *models.Seller, date string) bool {
	tz := ""
	if seller != nil {
		tz = seller.Timezone
	}
	return p.now().In(location(tz)).Format("2006-01-02") == date
}

// HasStarted reports whether date at minute (minutes after midnight) is already
// in the past on the seller's local clock.
func (p *Policy) HasStarted(seller *models.Seller, date string, minute int) bool {
	tz := ""
	if seller != nil {
		tz = seller.Timezone
	}
	local := p.now().In(location(tz))
	today := local.Format("2006-01-02")
	if date != today {
		return date < today
	}
	return minute <= local.Hour()*60+local.Minute()
}

func parseCutoff(raw string) (time.Duration, error) {
	value := strings.TrimSpace(raw)
	for _, layout := range cutoffLayouts {
		if len(value) != len(layout) {
			continue
		}
		parsed, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		return time.Duration(parsed.Hour())*time.Hour +
			time.Duration(parsed.Minute())*time.Minute +
			time.Duration(parsed.Second())*time.Second, nil
	}
	return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid cutoff time format").
		WithDetails(map[string]any{"cutoff_time": raw, "expected": "HH:MM:SS"})
}

func location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
