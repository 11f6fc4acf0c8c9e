package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder    OutboxAggregateType = "order"
	AggregateCheckout OutboxAggregateType = "checkout"
	AggregatePayout   OutboxAggregateType = "payout"
	AggregateSeller   OutboxAggregateType = "seller"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateCheckout,
	AggregatePayout,
	AggregateSeller,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event.
type OutboxEventType string

const (
	EventOrderCreated        OutboxEventType = "order.created"
	EventOrderPaymentPending OutboxEventType = "order.payment_pending"
	EventOrderPaid           OutboxEventType = "order.paid"
	EventOrderReady          OutboxEventType = "order.ready"
	EventOrderPickedUp       OutboxEventType = "order.picked_up"
	EventOrderCancelled      OutboxEventType = "order.cancelled"
	EventOrderAbandoned      OutboxEventType = "order.abandoned"
	EventPayoutRequested     OutboxEventType = "payout.requested"
	EventPayoutFailed        OutboxEventType = "payout.failed"
	EventSellerOnboarded     OutboxEventType = "seller.onboarded"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderPaymentPending,
	EventOrderPaid,
	EventOrderReady,
	EventOrderPickedUp,
	EventOrderCancelled,
	EventOrderAbandoned,
	EventPayoutRequested,
	EventPayoutFailed,
	EventSellerOnboarded,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
