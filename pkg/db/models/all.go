package models

// All lists every persisted model, in dependency order, for AutoMigrate in
// sqlite mode and tests.
func All() []any {
	return []any{
		&Product{},
		&ProductVariant{},
		&StockTransaction{},
		&DeliveryZone{},
		&Coupon{},
		&Order{},
		&OrderItem{},
		&CouponUsage{},
		&ActionRequest{},
		&WalletAccount{},
		&WalletTransaction{},
		&Refund{},
		&OutboxEvent{},
		&OutboxDLQ{},
		&Notification{},
	}
}
