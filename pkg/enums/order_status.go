package enums

import "fmt"

// OrderStatus tracks the lifecycle of a per-seller order.
type OrderStatus string

const (
	OrderStatusAwaitingPayment OrderStatus = "awaiting_payment"
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusProcessing      OrderStatus = "processing"
	OrderStatusReady           OrderStatus = "ready"
	OrderStatusComplete        OrderStatus = "complete"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusAwaitingPayment,
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusReady,
	OrderStatusComplete,
	OrderStatusCancelled,
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusAwaitingPayment: {OrderStatusPending, OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusPending:         {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing:      {OrderStatusReady, OrderStatusComplete, OrderStatusCancelled},
	OrderStatusReady:           {OrderStatusComplete, OrderStatusCancelled},
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsRevenueRecognized reports whether an order in this status counts toward seller revenue.
func (s OrderStatus) IsRevenueRecognized() bool {
	switch s {
	case OrderStatusProcessing, OrderStatusReady, OrderStatusComplete:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions exist.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusComplete || s == OrderStatusCancelled
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, candidate := range orderTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// OrderStatusesInto lists every status that may transition into target.
func OrderStatusesInto(target OrderStatus) []OrderStatus {
	var from []OrderStatus
	for _, candidate := range validOrderStatuses {
		if candidate.CanTransitionTo(target) {
			from = append(from, candidate)
		}
	}
	return from
}

// RevenueRecognizedStatuses lists the statuses whose frozen seller amount counts as revenue.
func RevenueRecognizedStatuses() []OrderStatus {
	return []OrderStatus{OrderStatusProcessing, OrderStatusReady, OrderStatusComplete}
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
