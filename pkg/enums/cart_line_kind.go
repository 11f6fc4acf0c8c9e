package enums

import "fmt"

// CartLineKind distinguishes purchasable products from bookable services.
type CartLineKind string

const (
	CartLineKindProduct CartLineKind = "product"
	CartLineKindService CartLineKind = "service"
)

var validCartLineKinds = []CartLineKind{CartLineKindProduct, CartLineKindService}

// String implements fmt.Stringer.
func (k CartLineKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known CartLineKind.
func (k CartLineKind) IsValid() bool {
	for _, candidate := range validCartLineKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseCartLineKind converts raw input into a CartLineKind.
func ParseCartLineKind(value string) (CartLineKind, error) {
	for _, candidate := range validCartLineKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart line kind %q", value)
}
