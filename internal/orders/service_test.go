package orders

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/internal/cart"
	"github.com/angelmondragon/shopcore-backend/internal/coupons"
	"github.com/angelmondragon/shopcore-backend/internal/refunds"
	"github.com/angelmondragon/shopcore-backend/internal/stock"
	"github.com/angelmondragon/shopcore-backend/internal/wallet"
	"github.com/angelmondragon/shopcore-backend/pkg/config"
	"github.com/angelmondragon/shopcore-backend/pkg/db"
	"github.com/angelmondragon/shopcore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
)

var start = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

type harness struct {
	client  *db.Client
	svc     *Service
	wallet  *wallet.Service
	coupons *coupons.Service
	clock   time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := dbtest.Open(t, "orders")
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	h := &harness{client: client, clock: start}
	now := func() time.Time { return h.clock }

	emitter := outbox.NewService(outbox.NewRepository(client.DB()), logg)
	stockSvc, err := stock.NewService(stock.ServiceParams{Repo: stock.NewRepository(client.DB()), Tx: client, Logger: logg})
	require.NoError(t, err)
	walletSvc, err := wallet.NewService(wallet.ServiceParams{Repo: wallet.NewRepository(client.DB()), Tx: client, Logger: logg})
	require.NoError(t, err)
	couponSvc, err := coupons.NewService(coupons.ServiceParams{Repo: coupons.NewRepository(client.DB()), Logger: logg, Now: now})
	require.NoError(t, err)
	pricer, err := cart.NewService(cart.NewRepository(client.DB()))
	require.NoError(t, err)
	refundSvc, err := refunds.NewService(refunds.ServiceParams{
		Repo:   refunds.NewRepository(client.DB()),
		Wallet: walletSvc,
		Outbox: emitter,
		Logger: logg,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(client.DB()),
		Tx:      client,
		Cart:    pricer,
		Coupons: couponSvc,
		Stock:   stockSvc,
		Wallet:  walletSvc,
		Refunds: refundSvc,
		Outbox:  emitter,
		Logger:  logg,
		Fulfillment: config.FulfillmentConfig{
			ReturnWindowDays:    10,
			DefaultDeliveryDays: 5,
			DelayExtensionDays:  3,
			CODMaxCents:         300000,
			PendingOrderTTL:     30 * time.Minute,
			PaymentRetryWindow:  168 * time.Hour,
		},
		Now: now,
	})
	require.NoError(t, err)
	h.svc = svc
	h.wallet = walletSvc
	h.coupons = couponSvc
	return h
}

// seedVariant inserts an active product with a single default variant.
func (h *harness) seedVariant(t *testing.T, name string, priceCents int64, stockQty int) (models.Product, models.ProductVariant) {
	t.Helper()
	p := dbtest.Product(t, h.client.DB(), name, priceCents, priceCents, 0)
	v := dbtest.Variant(t, h.client.DB(), p.ID, "Black", stockQty, true)
	return p, v
}

func (h *harness) variantStock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var v models.ProductVariant
	require.NoError(t, h.client.DB().First(&v, "id = ?", id).Error)
	return v.Stock
}

func (h *harness) fund(t *testing.T, userID uuid.UUID, cents int64) {
	t.Helper()
	_, err := h.wallet.Credit(context.Background(), wallet.CreditInput{
		UserID:         userID,
		AmountCents:    cents,
		Description:    "Top up",
		IdempotencyKey: "topup:" + uuid.NewString(),
	})
	require.NoError(t, err)
}

func (h *harness) balance(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	bal, err := h.wallet.Balance(context.Background(), userID)
	require.NoError(t, err)
	return bal
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	order, err := h.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return order
}

func (h *harness) closeItem(t *testing.T, input CloseItemInput) (*CloseItemResult, error) {
	t.Helper()
	var res *CloseItemResult
	err := h.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		res, err = h.svc.CloseItem(context.Background(), tx, input)
		return err
	})
	return res, err
}

func address() Address {
	return Address{
		FullName: "Asha Rao",
		Phone:    "9800000000",
		Line1:    "12 MG Road",
		City:     "Bengaluru",
		State:    "KA",
		Postcode: "560001",
	}
}

func line(p models.Product, v models.ProductVariant, qty int) cart.Line {
	id := v.ID
	return cart.Line{ProductID: p.ID, VariantID: &id, Quantity: qty}
}

func TestCreateReservesStockAndRejectsOversell(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, v := h.seedVariant(t, "Trail Shoe", 100000, 5)
	user := uuid.New()

	res, err := h.svc.Create(ctx, CreateInput{
		UserID:        user,
		Cart:          cart.Snapshot{Lines: []cart.Line{line(p, v, 3)}},
		Address:       address(),
		PaymentMethod: enums.PaymentMethodCOD,
	})
	require.NoError(t, err)
	order := res.Order
	assert.Equal(t, enums.OrderStatusPlaced, order.Status)
	assert.Nil(t, order.PaidAt)
	assert.Equal(t, int64(300000), order.TotalCents)
	assert.Equal(t, 5, order.DeliveryDays)
	require.NotNil(t, order.ExpectedDeliveryDate)
	assert.True(t, order.ExpectedDeliveryDate.Equal(time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)))
	require.Len(t, order.Items, 1)
	assert.Equal(t, enums.OrderItemStatusPlaced, order.Items[0].Status)
	assert.NotNil(t, order.Items[0].PlacedAt)
	assert.Equal(t, 2, h.variantStock(t, v.ID))

	_, err = h.svc.Create(ctx, CreateInput{
		UserID:        user,
		Cart:          cart.Snapshot{Lines: []cart.Line{line(p, v, 3)}},
		Address:       address(),
		PaymentMethod: enums.PaymentMethodCOD,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock))
	assert.Equal(t, 2, h.variantStock(t, v.ID))

	var count int64
	require.NoError(t, h.client.DB().Model(&models.Order{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreateRejectsCODAboveMaximum(t *testing.T) {
	h := newHarness(t)
	p, v := h.seedVariant(t, "Sofa", 400000, 2)

	_, err := h.svc.Create(context.Background(), CreateInput{
		UserID:        uuid.New(),
		Cart:          cart.Snapshot{Lines: []cart.Line{line(p, v, 1)}},
		Address:       address(),
		PaymentMethod: enums.PaymentMethodCOD,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Contains(t, err.Error(), "COD is not available for orders above")
	assert.Equal(t, 2, h.variantStock(t, v.ID))
}

func TestCreateRejectsCODForZone(t *testing.T) {
	h := newHarness(t)
	p, v := h.seedVariant(t, "Lamp", 50000, 2)
	require.NoError(t, h.client.DB().Create(&models.DeliveryZone{
		Postcode: "560001", DeliveryDays: 2, IsServiceable: true, IsCODAvailable: false,
	}).Error)

	_, err := h.svc.Create(context.Background(), CreateInput{
		UserID:        uuid.New(),
		Cart:          cart.Snapshot{Lines: []cart.Line{line(p, v, 1)}},
		Address:       address(),
		PaymentMethod: enums.PaymentMethodCOD,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COD is not available for this pincode.")

	res, err := h.svc.Create(context.Background(), CreateInput{
		UserID:        uuid.New(),
		Cart:          cart.Snapshot{Lines: []cart.Line{line(p, v, 1)}},
		Address:       address(),
		PaymentMethod: enums.PaymentMethodGateway,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Order.DeliveryDays)
}

func TestCreateWalletDebitsExactlyTheTotal(t *testing.T) {
	h := newHarness(t)
	p, v := h.seedVariant(t, "Backpack", 120000, 4)
	user := uuid.New()
	h.fund(t, user, 500000)

	res, err := h.svc.Create(context.Background(), CreateInput{
		UserID:        user,
		Cart:          cart.Snapshot{Lines: []cart.Line{line(p, v, 2)}},
		Address:       address(),
		PaymentMethod: enums.PaymentMethodWallet,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPlaced, res.Order.Status)
	assert.NotNil(t, res.Order.PaidAt)
	assert.Equal(t, int64(260000), h.balance(t, user))
}

func TestCreateWalletShortfallRollsBack(t *testing.T) {
	h := newHarness(t)
	p, v := h.seedVariant(t, "Backpack", 120000, 4)
	user := uuid.New()
	h.fund(t, user, 1000)

	_, err := h.svc.Create(context.Background(), CreateInput{
		UserID:        user,
		Cart:          cart.Snapshot{Lines: []cart.Line{line(p, v, 1)}},
		Address:       address(),
		PaymentMethod: enums.PaymentMethodWallet,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientBalance))
	assert.Equal(t, 4, h.variantStock(t, v.ID))
	assert.Equal(t, int64(1000), h.balance(t, user))
}

func TestCreateRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	p, v := h.seedVariant(t, "Cap", 10000, 4)

	_, err := h.svc.Create(context.Background(), CreateInput{
		UserID:        uuid.New(),
		Cart:          cart.Snapshot{Lines: []cart.Line{line(p, v, 1)}},
		Address:       Address{FullName: "Asha"},
		PaymentMethod: enums.PaymentMethodCOD,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.Create(context.Background(), CreateInput{
		UserID:        uuid.New(),
		Cart:          cart.Snapshot{},
		Address:       address(),
		PaymentMethod: enums.PaymentMethodCOD,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func seedTenPercentCoupon(t *testing.T, conn *gorm.DB, code string) models.Coupon {
	t.Helper()
	c := models.Coupon{
		Code:          code,
		DiscountType:  enums.DiscountTypePercent,
		DiscountValue: 1000,
		StartsOn:      start.AddDate(0, 0, -1),
		ExpiresOn:     start.AddDate(0, 0, 30),
		UsageLimit:    100,
		PerUserLimit:  1,
		IsActive:      true,
	}
	require.NoError(t, conn.Create(&c).Error)
	return c
}

func TestMarkPaidTwiceCompletesUsageOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, v := h.seedVariant(t, "Jacket", 200000, 3)
	coupon := seedTenPercentCoupon(t, h.client.DB(), "TENOFF")
	user := uuid.New()

	applied, err := h.coupons.ApplyCoupon(ctx, user, "TENOFF", coupons.CartSummary{ItemCount: 1, TotalCents: 200000})
	require.NoError(t, err)

	res, err := h.svc.Create(ctx, CreateInput{
		UserID:        user,
		Cart:          cart.Snapshot{Lines: []cart.Line{line(p, v, 1)}},
		Address:       address(),
		PaymentMethod: enums.PaymentMethodGateway,
		AppliedCoupon: applied,
	})
	require.NoError(t, err)
	order := res.Order
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	require.NotNil(t, order.GatewayOrderID)
	assert.Equal(t, order.OrderNumber, *order.GatewayOrderID)
	assert.Equal(t, int64(180000), order.TotalCents)
	assert.Nil(t, order.Items[0].PlacedAt)

	var usages int64
	require.NoError(t, h.client.DB().Model(&models.CouponUsage{}).Count(&usages).Error)
	assert.Zero(t, usages)

	first, err := h.svc.MarkPaid(ctx, MarkPaidInput{GatewayOrderID: order.OrderNumber, GatewayPaymentID: "sq-pay-1"})
	require.NoError(t, err)
	assert.False(t, first.AlreadyPaid)
	assert.Equal(t, enums.OrderStatusPlaced, first.Order.Status)

	second, err := h.svc.MarkPaid(ctx, MarkPaidInput{OrderID: order.ID, GatewayPaymentID: "sq-pay-1"})
	require.NoError(t, err)
	assert.True(t, second.AlreadyPaid)

	require.NoError(t, h.client.DB().Model(&models.CouponUsage{}).Count(&usages).Error)
	assert.Equal(t, int64(1), usages)
	var stored models.Coupon
	require.NoError(t, h.client.DB().First(&stored, "id = ?", coupon.ID).Error)
	assert.Equal(t, 1, stored.UsedCount)

	fresh := h.reload(t, order.ID)
	require.NotNil(t, fresh.PaidAt)
	require.NotNil(t, fresh.GatewayPaymentID)
	assert.Equal(t, "sq-pay-1", *fresh.GatewayPaymentID)
	assert.NotNil(t, fresh.Items[0].PlacedAt)
}

func TestSecondSettlementPastCouponLimitIsNotRecorded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, v := h.seedVariant(t, "Jacket", 200000, 3)
	coupon := seedTenPercentCoupon(t, h.client.DB(), "TENOFF")
	user := uuid.New()

	var pending []*models.Order
	for i := 0; i < 2; i++ {
		applied, err := h.coupons.ApplyCoupon(ctx, user, "TENOFF", coupons.CartSummary{ItemCount: 1, TotalCents: 200000})
		require.NoError(t, err)
		res, err := h.svc.Create(ctx, CreateInput{
			UserID:        user,
			Cart:          cart.Snapshot{Lines: []cart.Line{line(p, v, 1)}},
			Address:       address(),
			PaymentMethod: enums.PaymentMethodGateway,
			AppliedCoupon: applied,
		})
		require.NoError(t, err)
		require.NotNil(t, res.Order.CouponID)
		pending = append(pending, res.Order)
	}

	for i, order := range pending {
		paid, err := h.svc.MarkPaid(ctx, MarkPaidInput{OrderID: order.ID, GatewayPaymentID: fmt.Sprintf("sq-pay-%d", i)})
		require.NoError(t, err)
		assert.Equal(t, enums.OrderStatusPlaced, paid.Order.Status)
	}

	var usages []models.CouponUsage
	require.NoError(t, h.client.DB().Where("coupon_id = ?", coupon.ID).Find(&usages).Error)
	require.Len(t, usages, 1)
	assert.Equal(t, pending[0].ID, usages[0].OrderID)
	var stored models.Coupon
	require.NoError(t, h.client.DB().First(&stored, "id = ?", coupon.ID).Error)
	assert.Equal(t, 1, stored.UsedCount)
}

func TestPaymentFailureReleasesStockAndRetryReserves(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, v := h.seedVariant(t, "Tent", 150000, 5)
	user := uuid.New()

	res, err := h.svc.Create(ctx, CreateInput{
		UserID:        user,
		Cart:          cart.Snapshot{Lines: []cart.Line{line(p, v, 2)}},
		Address:       address(),
		PaymentMethod: enums.PaymentMethodGateway,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, h.variantStock(t, v.ID))

	failed, changed, err := h.svc.MarkPaymentFailed(ctx, PaymentFailedInput{OrderID: res.Order.ID, Reason: "card declined"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, enums.OrderStatusFailed, failed.Status)
	assert.Equal(t, 5, h.variantStock(t, v.ID))

	_, changed, err = h.svc.MarkPaymentFailed(ctx, PaymentFailedInput{OrderID: res.Order.ID})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 5, h.variantStock(t, v.ID))

	_, err = h.svc.RetryPayment(ctx, res.Order.ID, uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	retried, err := h.svc.RetryPayment(ctx, res.Order.ID, user)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, retried.Status)
	assert.Nil(t, retried.FailedAt)
	assert.Equal(t, 3, h.variantStock(t, v.ID))
}

func TestRetryPaymentWindowExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, v := h.seedVariant(t, "Tent", 150000, 5)
	user := uuid.New()

	res, err := h.svc.Create(ctx, CreateInput{
		UserID:        user,
		Cart:          cart.Snapshot{Lines: []cart.Line{line(p, v, 1)}},
		Address:       address(),
		PaymentMethod: enums.PaymentMethodGateway,
	})
	require.NoError(t, err)
	_, _, err = h.svc.MarkPaymentFailed(ctx, PaymentFailedInput{OrderID: res.Order.ID})
	require.NoError(t, err)

	h.clock = start.AddDate(0, 0, 8)
	_, err = h.svc.RetryPayment(ctx, res.Order.ID, user)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, 5, h.variantStock(t, v.ID))
}

func TestExpireStalePending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, v := h.seedVariant(t, "Stove", 80000, 4)

	res, err := h.svc.Create(ctx, CreateInput{
		UserID:        uuid.New(),
		Cart:          cart.Snapshot{Lines: []cart.Line{line(p, v, 1)}},
		Address:       address(),
		PaymentMethod: enums.PaymentMethodGateway,
	})
	require.NoError(t, err)

	h.clock = start.Add(10 * time.Minute)
	expired, err := h.svc.ExpireStalePending(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)

	h.clock = start.Add(31 * time.Minute)
	expired, err = h.svc.ExpireStalePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assert.Equal(t, enums.OrderStatusFailed, h.reload(t, res.Order.ID).Status)
	assert.Equal(t, 4, h.variantStock(t, v.ID))
}

func TestLateSettlementPlacesExpiredOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, v := h.seedVariant(t, "Stove", 80000, 4)

	res, err := h.svc.Create(ctx, CreateInput{
		UserID:        uuid.New(),
		Cart:          cart.Snapshot{Lines: []cart.Line{line(p, v, 1)}},
		Address:       address(),
		PaymentMethod: enums.PaymentMethodGateway,
	})
	require.NoError(t, err)

	h.clock = start.Add(31 * time.Minute)
	expired, err := h.svc.ExpireStalePending(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, expired)
	require.Equal(t, 4, h.variantStock(t, v.ID))

	paid, err := h.svc.MarkPaid(ctx, MarkPaidInput{OrderID: res.Order.ID, GatewayPaymentID: "sq_pay_1"})
	require.NoError(t, err)
	assert.True(t, paid.Reopened)
	assert.Nil(t, paid.Refund)

	order := h.reload(t, res.Order.ID)
	assert.Equal(t, enums.OrderStatusPlaced, order.Status)
	assert.NotNil(t, order.PaidAt)
	assert.Nil(t, order.FailedAt)
	require.NotNil(t, order.GatewayPaymentID)
	assert.Equal(t, "sq_pay_1", *order.GatewayPaymentID)
	assert.Equal(t, 3, h.variantStock(t, v.ID))

	again, err := h.svc.MarkPaid(ctx, MarkPaidInput{OrderID: res.Order.ID, GatewayPaymentID: "sq_pay_1"})
	require.NoError(t, err)
	assert.True(t, again.AlreadyPaid)
	assert.Equal(t, 3, h.variantStock(t, v.ID))
}

func TestLateSettlementWithoutStockIsRefunded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, v := h.seedVariant(t, "Stove", 80000, 1)
	user := uuid.New()

	late, err := h.svc.Create(ctx, CreateInput{
		UserID:        user,
		Cart:          cart.Snapshot{Lines: []cart.Line{line(p, v, 1)}},
		Address:       address(),
		PaymentMethod: enums.PaymentMethodGateway,
	})
	require.NoError(t, err)

	h.clock = start.Add(31 * time.Minute)
	_, err = h.svc.ExpireStalePending(ctx)
	require.NoError(t, err)

	// Someone else buys the last unit before the first payment lands.
	other, err := h.svc.Create(ctx, CreateInput{
		UserID:        uuid.New(),
		Cart:          cart.Snapshot{Lines: []cart.Line{line(p, v, 1)}},
		Address:       address(),
		PaymentMethod: enums.PaymentMethodGateway,
	})
	require.NoError(t, err)
	require.Equal(t, 0, h.variantStock(t, v.ID))

	paid, err := h.svc.MarkPaid(ctx, MarkPaidInput{OrderID: late.Order.ID, GatewayPaymentID: "sq_pay_1"})
	require.NoError(t, err)
	require.NotNil(t, paid.Refund)
	assert.False(t, paid.Reopened)
	assert.Equal(t, late.Order.TotalCents, paid.Refund.AmountCents)
	assert.Equal(t, enums.RefundMethodWallet, paid.Refund.Method)

	order := h.reload(t, late.Order.ID)
	assert.Equal(t, enums.OrderStatusFailed, order.Status)
	assert.Nil(t, order.PaidAt)
	require.NotNil(t, order.GatewayPaymentID)
	assert.Equal(t, "sq_pay_1", *order.GatewayPaymentID)
	assert.Equal(t, late.Order.TotalCents, h.balance(t, user))
	assert.Equal(t, 0, h.variantStock(t, v.ID))
	assert.Equal(t, enums.OrderStatusPending, h.reload(t, other.Order.ID).Status)

	var audit []models.Refund
	require.NoError(t, h.client.DB().Where("order_id = ?", late.Order.ID).Find(&audit).Error)
	require.Len(t, audit, 1)
	assert.Equal(t, enums.RefundTypeOrder, audit[0].RefundType)
	assert.Equal(t, refunds.LateSettlementKey(late.Order.ID, "sq_pay_1"), audit[0].IdempotencyKey)

	// Square redelivers the same callback.
	_, err = h.svc.MarkPaid(ctx, MarkPaidInput{OrderID: late.Order.ID, GatewayPaymentID: "sq_pay_1"})
	require.NoError(t, err)
	assert.Equal(t, late.Order.TotalCents, h.balance(t, user))
}

func TestLateSettlementOnFailedWalletOrderConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, v := h.seedVariant(t, "Stove", 80000, 2)
	user := uuid.New()
	h.fund(t, user, 80000)

	res, err := h.svc.Create(ctx, CreateInput{
		UserID:        user,
		Cart:          cart.Snapshot{Lines: []cart.Line{line(p, v, 1)}},
		Address:       address(),
		PaymentMethod: enums.PaymentMethodWallet,
	})
	require.NoError(t, err)
	require.NoError(t, h.client.DB().Model(&models.Order{}).Where("id = ?", res.Order.ID).
		Update("status", enums.OrderStatusFailed).Error)

	_, err = h.svc.MarkPaid(ctx, MarkPaidInput{OrderID: res.Order.ID, GatewayPaymentID: "sq_pay_9"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestTransitionRejectsPendingOrders(t *testing.T) {
	h := newHarness(t)
	p, v := h.seedVariant(t, "Stove", 80000, 4)
	res, err := h.svc.Create(context.Background(), CreateInput{
		UserID:        uuid.New(),
		Cart:          cart.Snapshot{Lines: []cart.Line{line(p, v, 1)}},
		Address:       address(),
		PaymentMethod: enums.PaymentMethodGateway,
	})
	require.NoError(t, err)

	_, err = h.svc.Transition(context.Background(), TransitionInput{OrderID: res.Order.ID, Action: enums.OrderActionShipped, ActorID: uuid.New()})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))
}

func TestTransitionCascadeSkipsClosedItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pa, va := h.seedVariant(t, "Kettle", 30000, 5)
	pb, vb := h.seedVariant(t, "Toaster", 40000, 5)
	staff := uuid.New()

	res, err := h.svc.Create(ctx, CreateInput{
		UserID:        uuid.New(),
		Cart:          cart.Snapshot{Lines: []cart.Line{line(pa, va, 1), line(pb, vb, 2)}},
		Address:       address(),
		PaymentMethod: enums.PaymentMethodCOD,
	})
	require.NoError(t, err)
	var kettle, toaster models.OrderItem
	for _, it := range res.Order.Items {
		if it.ProductID == pa.ID {
			kettle = it
		} else {
			toaster = it
		}
	}

	closed, err := h.closeItem(t, CloseItemInput{
		OrderID:    res.Order.ID,
		ItemID:     kettle.ID,
		Status:     enums.OrderItemStatusCancelled,
		RefundKind: refunds.KindCancel,
		Note:       "changed my mind",
	})
	require.NoError(t, err)
	assert.True(t, closed.Changed)
	assert.Nil(t, closed.Refund)
	assert.Equal(t, enums.OrderStatusPartiallyCancelled, closed.Order.Status)
	assert.Equal(t, 5, h.variantStock(t, va.ID))

	shipped, err := h.svc.Transition(ctx, TransitionInput{OrderID: res.Order.ID, Action: enums.OrderActionShipped, ActorID: staff})
	require.NoError(t, err)
	assert.Equal(t, 1, shipped.UpdatedItems)
	assert.Equal(t, 1, shipped.FrozenItems)
	assert.Equal(t, enums.OrderStatusPartiallyCancelled, shipped.Order.Status)
	for _, it := range shipped.Order.Items {
		if it.ID == kettle.ID {
			assert.Equal(t, enums.OrderItemStatusCancelled, it.Status)
			assert.Nil(t, it.ShippedAt)
		} else {
			assert.Equal(t, enums.OrderItemStatusShipped, it.Status)
			assert.NotNil(t, it.ShippedAt)
			assert.NotNil(t, it.ProcessingAt)
		}
	}
	assert.NotNil(t, shipped.Order.ShippedAt)
	assert.NotNil(t, shipped.Order.PackedAt)

	delivered, err := h.svc.Transition(ctx, TransitionInput{OrderID: res.Order.ID, Action: enums.OrderActionDelivered, ActorID: staff})
	require.NoError(t, err)
	assert.NotNil(t, delivered.Order.PaidAt)

	_, err = h.svc.Transition(ctx, TransitionInput{OrderID: res.Order.ID, Action: enums.OrderActionCancelled, ActorID: staff})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))

	_, err = h.svc.Transition(ctx, TransitionInput{OrderID: res.Order.ID, Action: enums.OrderActionPacked, ActorID: staff})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))

	returned, err := h.closeItem(t, CloseItemInput{
		OrderID:      res.Order.ID,
		ItemID:       toaster.ID,
		Status:       enums.OrderItemStatusReturned,
		RefundKind:   refunds.KindReturn,
		ReturnReason: "damaged",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusReturned, returned.Order.Status)
	assert.Equal(t, 5, h.variantStock(t, vb.ID))
}

// walletOrder places a 2000-rupee wallet order with a 10% coupon: item A 1300,
// item B 700, total paid 1800.
func walletOrder(t *testing.T, h *harness) (*models.Order, models.OrderItem, models.OrderItem, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	pa, va := h.seedVariant(t, "Item A", 130000, 5)
	pb, vb := h.seedVariant(t, "Item B", 70000, 5)
	seedTenPercentCoupon(t, h.client.DB(), "SAVE10")
	user := uuid.New()
	h.fund(t, user, 200000)

	applied, err := h.coupons.ApplyCoupon(ctx, user, "SAVE10", coupons.CartSummary{ItemCount: 2, TotalCents: 200000})
	require.NoError(t, err)
	res, err := h.svc.Create(ctx, CreateInput{
		UserID:        user,
		Cart:          cart.Snapshot{Lines: []cart.Line{line(pa, va, 1), line(pb, vb, 1)}},
		Address:       address(),
		PaymentMethod: enums.PaymentMethodWallet,
		AppliedCoupon: applied,
	})
	require.NoError(t, err)
	require.Equal(t, int64(180000), res.Order.TotalCents)
	require.Equal(t, int64(20000), h.balance(t, user))

	var a, b models.OrderItem
	for _, it := range res.Order.Items {
		if it.ProductID == pa.ID {
			a = it
		} else {
			b = it
		}
	}
	return res.Order, a, b, user
}

func TestCancelItemRefundsProportionalShare(t *testing.T) {
	h := newHarness(t)
	order, itemA, _, user := walletOrder(t, h)

	res, err := h.closeItem(t, CloseItemInput{
		OrderID:    order.ID,
		ItemID:     itemA.ID,
		Status:     enums.OrderItemStatusCancelled,
		RefundKind: refunds.KindCancel,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Refund)
	assert.Equal(t, int64(117000), res.Refund.AmountCents)
	assert.Equal(t, enums.RefundMethodWallet, res.Refund.Method)
	assert.Equal(t, int64(117000), res.Item.RefundCents)
	require.NotNil(t, res.Item.RefundIdempotencyKey)
	assert.Equal(t, refunds.ItemKey(refunds.KindCancel, itemA.ID), *res.Item.RefundIdempotencyKey)
	assert.Equal(t, enums.OrderStatusPartiallyCancelled, res.Order.Status)
	assert.Equal(t, int64(137000), h.balance(t, user))

	again, err := h.closeItem(t, CloseItemInput{
		OrderID:    order.ID,
		ItemID:     itemA.ID,
		Status:     enums.OrderItemStatusCancelled,
		RefundKind: refunds.KindCancel,
	})
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Equal(t, int64(137000), h.balance(t, user))

	_, err = h.closeItem(t, CloseItemInput{
		OrderID:    order.ID,
		ItemID:     itemA.ID,
		Status:     enums.OrderItemStatusReturned,
		RefundKind: refunds.KindReturn,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))
}

func TestAdminCancelRefundsEveryOpenItem(t *testing.T) {
	h := newHarness(t)
	order, itemA, itemB, user := walletOrder(t, h)

	res, err := h.svc.Transition(context.Background(), TransitionInput{OrderID: order.ID, Action: enums.OrderActionCancelled, ActorID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, res.Order.Status)
	assert.NotNil(t, res.Order.CancelledAt)
	assert.Equal(t, 2, res.UpdatedItems)
	require.Len(t, res.Refunds, 2)
	assert.Equal(t, int64(200000), h.balance(t, user))
	assert.Equal(t, 5, h.variantStock(t, *itemA.VariantID))
	assert.Equal(t, 5, h.variantStock(t, *itemB.VariantID))

	var keys []string
	require.NoError(t, h.client.DB().Model(&models.Refund{}).Where("order_id = ?", order.ID).Pluck("idempotency_key", &keys).Error)
	assert.ElementsMatch(t, []string{
		refunds.ItemKey(refunds.KindAdminCancel, itemA.ID),
		refunds.ItemKey(refunds.KindAdminCancel, itemB.ID),
	}, keys)

	_, err = h.svc.Transition(context.Background(), TransitionInput{OrderID: order.ID, Action: enums.OrderActionCancelled, ActorID: uuid.New()})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))
	assert.Equal(t, int64(200000), h.balance(t, user))
}

func TestReturnRequiresDelivery(t *testing.T) {
	h := newHarness(t)
	order, itemA, _, _ := walletOrder(t, h)

	_, err := h.closeItem(t, CloseItemInput{
		OrderID:    order.ID,
		ItemID:     itemA.ID,
		Status:     enums.OrderItemStatusReturned,
		RefundKind: refunds.KindReturn,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))

	_, err = h.closeItem(t, CloseItemInput{OrderID: order.ID, ItemID: uuid.New(), Status: enums.OrderItemStatusCancelled})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestExtendDelayedDeliveries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, v := h.seedVariant(t, "Chair", 50000, 3)
	res, err := h.svc.Create(ctx, CreateInput{
		UserID:        uuid.New(),
		Cart:          cart.Snapshot{Lines: []cart.Line{line(p, v, 1)}},
		Address:       address(),
		PaymentMethod: enums.PaymentMethodCOD,
	})
	require.NoError(t, err)
	require.NoError(t, h.client.DB().Model(&models.Order{}).Where("id = ?", res.Order.ID).Update("delay_notified", true).Error)

	onTime := time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC)
	n, err := h.svc.ExtendDelayedDeliveries(ctx, onTime)
	require.NoError(t, err)
	assert.Zero(t, n)

	late := time.Date(2026, 10, 22, 8, 0, 0, 0, time.UTC)
	n, err = h.svc.ExtendDelayedDeliveries(ctx, late)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	fresh := h.reload(t, res.Order.ID)
	require.NotNil(t, fresh.ExpectedDeliveryDate)
	assert.Equal(t, "2026-10-25", fresh.ExpectedDeliveryDate.UTC().Format("2006-01-02"))
	assert.False(t, fresh.DelayNotified)

	n, err = h.svc.ExtendDelayedDeliveries(ctx, late)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, h.svc.MarkDelayNotified(ctx, res.Order.ID))
	assert.True(t, h.reload(t, res.Order.ID).DelayNotified)
}

func TestGetForUserHidesOtherUsersOrders(t *testing.T) {
	h := newHarness(t)
	p, v := h.seedVariant(t, "Chair", 50000, 3)
	owner := uuid.New()
	res, err := h.svc.Create(context.Background(), CreateInput{
		UserID:        owner,
		Cart:          cart.Snapshot{Lines: []cart.Line{line(p, v, 1)}},
		Address:       address(),
		PaymentMethod: enums.PaymentMethodCOD,
	})
	require.NoError(t, err)

	got, err := h.svc.GetForUser(context.Background(), owner, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Order.OrderNumber, got.OrderNumber)

	_, err = h.svc.GetForUser(context.Background(), uuid.New(), res.Order.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}
