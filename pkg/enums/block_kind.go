package enums

import "fmt"

// BlockKind separates seller-declared unavailability from confirmed bookings.
type BlockKind string

const (
	BlockKindSeller  BlockKind = "seller"
	BlockKindBooking BlockKind = "booking"
)

var validBlockKinds = []BlockKind{BlockKindSeller, BlockKindBooking}

// IsValid reports whether the value is a known BlockKind.
func (k BlockKind) IsValid() bool {
	for _, candidate := range validBlockKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseBlockKind converts raw input into a BlockKind.
func ParseBlockKind(value string) (BlockKind, error) {
	for _, candidate := range validBlockKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid block kind %q", value)
}
