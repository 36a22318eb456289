package orders

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopcore-backend/internal/cart"
	"github.com/angelmondragon/shopcore-backend/internal/coupons"
	"github.com/angelmondragon/shopcore-backend/internal/refunds"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
)

// Address is the shipping address snapshotted onto the order.
type Address struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Line1    string `json:"line1"`
	Line2    string `json:"line2,omitempty"`
	City     string `json:"city"`
	State    string `json:"state"`
	Postcode string `json:"postcode"`
	Country  string `json:"country"`
}

func (a Address) validate() error {
	required := map[string]string{
		"full_name": a.FullName,
		"phone":     a.Phone,
		"line1":     a.Line1,
		"city":      a.City,
		"state":     a.State,
		"postcode":  a.Postcode,
	}
	for _, field := range []string{"full_name", "phone", "line1", "city", "state", "postcode"} {
		if strings.TrimSpace(required[field]) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("address.%s is required", field))
		}
	}
	return nil
}

// CreateInput is a checkout request.
type CreateInput struct {
	UserID        uuid.UUID
	Cart          cart.Snapshot
	Address       Address
	PaymentMethod enums.PaymentMethod
	AppliedCoupon *coupons.Applied
}

// CreateResult carries the new order and any coupon that was dropped on the
// way.
type CreateResult struct {
	Order         *models.Order `json:"order"`
	CouponDropped string        `json:"coupon_dropped,omitempty"`
}

// MarkPaidInput identifies the order by id or by the gateway correlation id.
type MarkPaidInput struct {
	OrderID          uuid.UUID
	GatewayOrderID   string
	GatewayPaymentID string
}

// MarkPaidResult reports what a settlement did. Reopened is set when a
// failed order was placed after all; Refund is set when the payment was
// returned because the order could not be placed.
type MarkPaidResult struct {
	Order       *models.Order    `json:"order"`
	AlreadyPaid bool             `json:"already_paid"`
	Reopened    bool             `json:"reopened,omitempty"`
	Refund      *refunds.Outcome `json:"refund,omitempty"`
}

// PaymentFailedInput identifies a pending order whose payment did not settle.
type PaymentFailedInput struct {
	OrderID        uuid.UUID
	GatewayOrderID string
	Reason         string
}

// TransitionInput is a staff status change.
type TransitionInput struct {
	OrderID uuid.UUID
	Action  enums.OrderAction
	ActorID uuid.UUID
}

// TransitionResult summarises a staff status change.
type TransitionResult struct {
	Order        *models.Order     `json:"order"`
	UpdatedItems int               `json:"updated_items"`
	FrozenItems  int               `json:"frozen_items"`
	Refunds      []refunds.Outcome `json:"refunds,omitempty"`
	Previous     enums.OrderStatus `json:"previous_status"`
	Action       enums.OrderAction `json:"action"`
}

// CloseItemInput moves one item to CANCELLED or RETURNED.
type CloseItemInput struct {
	OrderID            uuid.UUID
	ItemID             uuid.UUID
	Status             enums.OrderItemStatus
	RefundKind         refunds.Kind
	CancellationReason *enums.CancellationReason
	Note               string
	ReturnReason       string
	Actor              *outbox.ActorRef
}

// CloseItemResult reports the effects of closing an item.
type CloseItemResult struct {
	Order    *models.Order     `json:"order"`
	Item     *models.OrderItem `json:"item"`
	Changed  bool              `json:"changed"`
	Refund   *refunds.Outcome  `json:"refund,omitempty"`
	Shipping *refunds.Outcome  `json:"shipping_refund,omitempty"`
}
