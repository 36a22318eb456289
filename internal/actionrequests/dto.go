package actionrequests

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/shopcore-backend/internal/refunds"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
)

// RequestCancelInput asks to cancel one item. OrderID is optional; when set
// it must match the item's order.
type RequestCancelInput struct {
	OrderID uuid.UUID
	ItemID  uuid.UUID
	UserID  uuid.UUID
	Reason  enums.CancellationReason
	Note    string
}

// RequestReturnInput asks to return one delivered item.
type RequestReturnInput struct {
	OrderID uuid.UUID
	ItemID  uuid.UUID
	UserID  uuid.UUID
	Reason  string
}

// CancelOrderInput cancels every open item of an order at once.
type CancelOrderInput struct {
	OrderID uuid.UUID
	UserID  uuid.UUID
	Reason  enums.CancellationReason
	Note    string
}

// Outcome is what the customer sees after asking. Immediate is set when the
// item was closed on the spot; otherwise Request holds the pending request.
type Outcome struct {
	Immediate bool                  `json:"immediate"`
	Request   *models.ActionRequest `json:"request,omitempty"`
	Order     *models.Order         `json:"order,omitempty"`
	Item      *models.OrderItem     `json:"item,omitempty"`
	Refund    *refunds.Outcome      `json:"refund,omitempty"`
	DaysLeft  *int                  `json:"days_left,omitempty"`
	Message   string                `json:"message"`
}

// CancelOrderResult reports a whole-order cancellation.
type CancelOrderResult struct {
	Order       *models.Order      `json:"order"`
	Items       []models.OrderItem `json:"items"`
	RefundCents int64              `json:"refund_cents"`
	Message     string             `json:"message"`
}

// DecideInput carries a staff decision on a pending request.
type DecideInput struct {
	RequestID uuid.UUID
	StaffID   uuid.UUID
	Note      string
}

// Decision reports the result of approving or rejecting a request.
// AlreadyDecided is set when the request was in the target state before.
type Decision struct {
	Request        *models.ActionRequest `json:"request"`
	Order          *models.Order         `json:"order,omitempty"`
	Item           *models.OrderItem     `json:"item,omitempty"`
	Refund         *refunds.Outcome      `json:"refund,omitempty"`
	AlreadyDecided bool                  `json:"already_decided"`
}

// Eligibility answers whether a delivered item may still be returned.
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	DaysLeft int    `json:"days_left"`
	Message  string `json:"message"`
}
