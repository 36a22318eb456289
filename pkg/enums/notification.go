package enums

// NotificationType groups customer inbox entries.
type NotificationType string

const (
	NotificationTypePayment  NotificationType = "payment"
	NotificationTypeOrder    NotificationType = "order"
	NotificationTypeRequest  NotificationType = "request"
	NotificationTypeRefund   NotificationType = "refund"
	NotificationTypeDelivery NotificationType = "delivery"
)

var validNotificationTypes = []NotificationType{
	NotificationTypePayment,
	NotificationTypeOrder,
	NotificationTypeRequest,
	NotificationTypeRefund,
	NotificationTypeDelivery,
}

func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}
