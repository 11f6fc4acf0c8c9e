package enums

import "fmt"

// PayoutStatus tracks a seller withdrawal.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusPending,
	PayoutStatusProcessing,
	PayoutStatusCompleted,
	PayoutStatusFailed,
}

// String implements fmt.Stringer.
func (s PayoutStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PayoutStatus.
func (s PayoutStatus) IsValid() bool {
	for _, candidate := range validPayoutStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsInFlight reports whether the payout still holds balance without having settled.
func (s PayoutStatus) IsInFlight() bool {
	return s == PayoutStatusPending || s == PayoutStatusProcessing
}

// ParsePayoutStatus converts raw input into a PayoutStatus. Processor statuses such as
// "paid" and "in_transit" are folded onto the local lifecycle.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	switch value {
	case "paid":
		return PayoutStatusCompleted, nil
	case "in_transit":
		return PayoutStatusProcessing, nil
	case "canceled":
		return PayoutStatusFailed, nil
	}
	for _, candidate := range validPayoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout status %q", value)
}
