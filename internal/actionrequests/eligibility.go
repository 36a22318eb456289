package actionrequests

import (
	"fmt"
	"time"

	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
)

const defaultReturnWindowDays = 10

// ReturnEligibility checks the return window for an item. The window closes
// windowDays after delivery, inclusive.
func ReturnEligibility(item models.OrderItem, now time.Time, windowDays int) Eligibility {
	if windowDays <= 0 {
		windowDays = defaultReturnWindowDays
	}
	if item.Status != enums.OrderItemStatusDelivered || item.DeliveredAt == nil {
		return Eligibility{Message: "Item must be delivered before it can be returned"}
	}
	deadline := item.DeliveredAt.UTC().AddDate(0, 0, windowDays)
	now = now.UTC()
	if now.After(deadline) {
		return Eligibility{
			Message: fmt.Sprintf("Return period expired (allowed within %d days of delivery)", windowDays),
		}
	}
	left := int(deadline.Sub(now) / (24 * time.Hour))
	return Eligibility{Eligible: true, DaysLeft: left, Message: daysLeftText(left)}
}

func daysLeftText(days int) string {
	if days == 1 {
		return "1 day left to return"
	}
	return fmt.Sprintf("%d days left to return", days)
}
