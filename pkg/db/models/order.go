package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/enums"
)

// Order is the financial record of a checkout. Orders are never deleted.
type Order struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	OrderNumber   string              `gorm:"column:order_number;not null;uniqueIndex:ux_orders_number"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	Status        enums.OrderStatus   `gorm:"column:status;type:text;not null;index"`
	SubtotalCents int64               `gorm:"column:subtotal_cents;not null"`
	ShippingCents int64               `gorm:"column:shipping_cents;not null;default:0"`
	DiscountCents int64               `gorm:"column:discount_cents;not null;default:0"`
	TotalCents    int64               `gorm:"column:total_cents;not null"`
	CouponID      *uuid.UUID          `gorm:"column:coupon_id;type:uuid"`

	ShipFullName string `gorm:"column:ship_full_name;not null"`
	ShipPhone    string `gorm:"column:ship_phone;not null"`
	ShipLine1    string `gorm:"column:ship_line1;not null"`
	ShipLine2    string `gorm:"column:ship_line2"`
	ShipCity     string `gorm:"column:ship_city;not null"`
	ShipState    string `gorm:"column:ship_state;not null"`
	ShipPostcode string `gorm:"column:ship_postcode;not null"`
	ShipCountry  string `gorm:"column:ship_country;not null"`

	DeliveryDays         int        `gorm:"column:delivery_days;not null"`
	ExpectedDeliveryDate *time.Time `gorm:"column:expected_delivery_date;type:date"`
	DelayNotified        bool       `gorm:"column:delay_notified;not null;default:false"`

	GatewayOrderID   *string `gorm:"column:gateway_order_id;index"`
	GatewayPaymentID *string `gorm:"column:gateway_payment_id"`

	PaidAt       *time.Time `gorm:"column:paid_at"`
	ProcessingAt *time.Time `gorm:"column:processing_at"`
	PackedAt     *time.Time `gorm:"column:packed_at"`
	ShippedAt    *time.Time `gorm:"column:shipped_at"`
	DeliveredAt  *time.Time `gorm:"column:delivered_at"`
	CancelledAt  *time.Time `gorm:"column:cancelled_at"`
	FailedAt     *time.Time `gorm:"column:failed_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// IsPaid reports whether money has been collected for the order.
func (o Order) IsPaid() bool {
	return o.PaidAt != nil
}
