package enums

import "fmt"

// PointsRedemptionStatus tracks a reserved points redemption until it settles.
type PointsRedemptionStatus string

const (
	PointsRedemptionReserved PointsRedemptionStatus = "reserved"
	PointsRedemptionDebited  PointsRedemptionStatus = "debited"
	PointsRedemptionReleased PointsRedemptionStatus = "released"
	PointsRedemptionFailed   PointsRedemptionStatus = "failed"
)

var validPointsRedemptionStatuses = []PointsRedemptionStatus{
	PointsRedemptionReserved,
	PointsRedemptionDebited,
	PointsRedemptionReleased,
	PointsRedemptionFailed,
}

// IsValid reports whether the value is a known PointsRedemptionStatus.
func (s PointsRedemptionStatus) IsValid() bool {
	for _, candidate := range validPointsRedemptionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePointsRedemptionStatus converts raw input into a PointsRedemptionStatus.
func ParsePointsRedemptionStatus(value string) (PointsRedemptionStatus, error) {
	for _, candidate := range validPointsRedemptionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid points redemption status %q", value)
}
