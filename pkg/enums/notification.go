package enums

import "fmt"

// NotificationType labels an in-app notification.
type NotificationType string

const (
	NotificationTypeOrderPlaced     NotificationType = "order_placed"
	NotificationTypeOrderPaid       NotificationType = "order_paid"
	NotificationTypeOrderReady      NotificationType = "order_ready"
	NotificationTypeOrderPickedUp   NotificationType = "order_picked_up"
	NotificationTypeOrderCancelled  NotificationType = "order_cancelled"
	NotificationTypePaymentFailed   NotificationType = "payment_failed"
	NotificationTypePayoutRequested NotificationType = "payout_requested"
	NotificationTypePayoutFailed    NotificationType = "payout_failed"
	NotificationTypeSellerOnboarded NotificationType = "seller_onboarded"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderPlaced,
	NotificationTypeOrderPaid,
	NotificationTypeOrderReady,
	NotificationTypeOrderPickedUp,
	NotificationTypeOrderCancelled,
	NotificationTypePaymentFailed,
	NotificationTypePayoutRequested,
	NotificationTypePayoutFailed,
	NotificationTypeSellerOnboarded,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
