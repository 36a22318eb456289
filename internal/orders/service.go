package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/internal/stock"
	"github.com/angelmondragon/shopcore-backend/internal/wallet"
	"github.com/angelmondragon/shopcore-backend/pkg/config"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/metrics"
	"github.com/angelmondragon/shopcore-backend/pkg/money"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

const defaultDeliveryDays = 5

// ServiceParams wires the order state machine.
type ServiceParams struct {
	Repo        Repository
	Tx          txRunner
	Cart        cartPricer
	Coupons     couponLedger
	Stock       stockLedger
	Wallet      walletDebitor
	Refunds     refundIssuer
	Outbox      outbox.Emitter
	Logger      *logger.Logger
	Metrics     *metrics.LedgerMetrics
	Fulfillment config.FulfillmentConfig
	Now         func() time.Time
}

// Service owns order and order item status.
type Service struct {
	repo    Repository
	tx      txRunner
	cart    cartPricer
	coupons couponLedger
	stock   stockLedger
	wallet  walletDebitor
	refunds refundIssuer
	outbox  outbox.Emitter
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
	cfg     config.FulfillmentConfig
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Cart == nil:
		return nil, fmt.Errorf("cart pricer required")
	case params.Coupons == nil:
		return nil, fmt.Errorf("coupon service required")
	case params.Stock == nil:
		return nil, fmt.Errorf("stock ledger required")
	case params.Wallet == nil:
		return nil, fmt.Errorf("wallet ledger required")
	case params.Refunds == nil:
		return nil, fmt.Errorf("refund service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:    params.Repo,
		tx:      params.Tx,
		cart:    params.Cart,
		coupons: params.Coupons,
		stock:   params.Stock,
		wallet:  params.Wallet,
		refunds: params.Refunds,
		outbox:  params.Outbox,
		logg:    params.Logger,
		metrics: params.Metrics,
		cfg:     params.Fulfillment,
		now:     now,
	}, nil
}

// Create prices the cart, reserves stock and records the order in one
// transaction. A shortfall on any line rolls everything back.
func (s *Service) Create(ctx context.Context, input CreateInput) (*CreateResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}
	if err := input.Address.validate(); err != nil {
		return nil, err
	}
	if err := input.Cart.Validate(); err != nil {
		return nil, err
	}

	var result *CreateResult
	err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.create(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}

	order := result.Order
	logCtx := s.logg.WithOrderID(s.logg.WithUserID(ctx, input.UserID.String()), order.ID.String())
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"order_number":   order.OrderNumber,
		"payment_method": order.PaymentMethod,
		"status":         order.Status,
		"total_cents":    order.TotalCents,
		"items":          len(order.Items),
	}), "order created")
	return result, nil
}

func (s *Service) create(ctx context.Context, tx *gorm.DB, input CreateInput) (*CreateResult, error) {
	repo := s.repo.WithTx(tx)
	now := s.now().UTC()

	priced, err := s.cart.Price(ctx, tx, input.Cart)
	if err != nil {
		return nil, err
	}

	result := &CreateResult{}
	var discount int64
	var couponID *uuid.UUID
	if input.AppliedCoupon != nil {
		reval, err := s.coupons.RevalidateTx(ctx, tx, input.UserID, input.AppliedCoupon, priced.Summary())
		if err != nil {
			return nil, err
		}
		if reval.Kept && reval.Applied != nil {
			discount = money.Min(reval.Applied.DiscountCents, priced.SubtotalCents)
			id := reval.Applied.CouponID
			couponID = &id
		} else {
			result.CouponDropped = reval.Reason
		}
	}
	shipping := s.cfg.ShippingCents
	total := priced.SubtotalCents - discount + shipping

	zone, err := repo.FindDeliveryZone(ctx, input.Address.Postcode)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery zone")
	}
	if input.PaymentMethod == enums.PaymentMethodCOD {
		if s.cfg.CODMaxCents > 0 && total > s.cfg.CODMaxCents {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("COD is not available for orders above %s.", money.FormatWhole(s.cfg.CODMaxCents)))
		}
		if zone != nil && !zone.IsCODAvailable {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "COD is not available for this pincode.")
		}
	}
	days := s.deliveryDays(zone)

	number, err := s.nextOrderNumber(ctx, repo, now)
	if err != nil {
		return nil, err
	}

	expected := civilDate(now).AddDate(0, 0, days)
	order := &models.Order{
		UserID:               input.UserID,
		OrderNumber:          number,
		PaymentMethod:        input.PaymentMethod,
		Status:               enums.OrderStatusPlaced,
		SubtotalCents:        priced.SubtotalCents,
		ShippingCents:        shipping,
		DiscountCents:        discount,
		TotalCents:           total,
		CouponID:             couponID,
		ShipFullName:         strings.TrimSpace(input.Address.FullName),
		ShipPhone:            strings.TrimSpace(input.Address.Phone),
		ShipLine1:            strings.TrimSpace(input.Address.Line1),
		ShipLine2:            strings.TrimSpace(input.Address.Line2),
		ShipCity:             strings.TrimSpace(input.Address.City),
		ShipState:            strings.TrimSpace(input.Address.State),
		ShipPostcode:         strings.TrimSpace(input.Address.Postcode),
		ShipCountry:          countryOrDefault(input.Address.Country),
		DeliveryDays:         days,
		ExpectedDeliveryDate: &expected,
		CreatedAt:            now,
	}
	switch input.PaymentMethod {
	case enums.PaymentMethodGateway:
		order.Status = enums.OrderStatusPending
		order.GatewayOrderID = &number
	case enums.PaymentMethodWallet:
		order.PaidAt = &now
	}
	if err := repo.CreateOrder(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order")
	}

	items := make([]models.OrderItem, len(priced.Lines))
	for i, line := range priced.Lines {
		items[i] = models.OrderItem{
			OrderID:        order.ID,
			ProductID:      line.ProductID,
			VariantID:      line.VariantID,
			ProductName:    line.ProductName,
			VariantColor:   line.VariantColor,
			ImageURL:       line.ImageURL,
			OfferLabel:     line.OfferLabel,
			MRPCents:       line.MRPCents,
			UnitPriceCents: line.UnitPriceCents,
			Quantity:       line.Quantity,
			LineTotalCents: line.LineTotalCents,
			Status:         enums.OrderItemStatusPlaced,
		}
		if order.Status == enums.OrderStatusPlaced {
			items[i].PlacedAt = &now
		}
	}
	if err := repo.CreateItems(ctx, items); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order items")
	}

	actorID := input.UserID
	if _, err := s.stock.ReserveLines(ctx, tx, movementLines(items, &actorID, "Order "+number)); err != nil {
		return nil, err
	}

	if input.PaymentMethod == enums.PaymentMethodWallet && total > 0 {
		if _, err := s.wallet.DebitTx(ctx, tx, wallet.DebitInput{
			UserID:         input.UserID,
			AmountCents:    total,
			Description:    fmt.Sprintf("Payment for order %s", number),
			Reference:      order.ID.String(),
			IdempotencyKey: "order:" + order.ID.String() + ":payment",
		}); err != nil {
			return nil, err
		}
	}

	if order.Status == enums.OrderStatusPlaced && couponID != nil {
		if err := s.coupons.CompleteUsage(ctx, tx, input.UserID, *couponID, order.ID); err != nil {
			return nil, err
		}
	}

	if err := s.emit(ctx, tx, enums.EventOrderCreated, enums.AggregateOrder, order.ID,
		&outbox.ActorRef{UserID: input.UserID, Role: enums.RoleCustomer.String()},
		payloads.OrderCreatedEvent{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			UserID:        order.UserID,
			PaymentMethod: order.PaymentMethod,
			Status:        order.Status,
			TotalCents:    order.TotalCents,
			ItemCount:     priced.ItemCount,
		}); err != nil {
		return nil, err
	}

	order.Items = items
	result.Order = order
	return result, nil
}

// Get loads an order with its items.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindOrder(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "order not found", "load order")
	}
	return order, nil
}

// GetForUser is Get restricted to the order's owner. Other users' orders
// read as missing.
func (s *Service) GetForUser(ctx context.Context, userID, id uuid.UUID) (*models.Order, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// ListForUser pages a user's orders newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.ListForUser(ctx, userID, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return rows, next, nil
}

func (s *Service) deliveryDays(zone *models.DeliveryZone) int {
	if zone != nil && zone.IsServiceable && zone.DeliveryDays > 0 {
		return zone.DeliveryDays
	}
	if s.cfg.DefaultDeliveryDays > 0 {
		return s.cfg.DefaultDeliveryDays
	}
	return defaultDeliveryDays
}

// nextOrderNumber builds YYMMDDhhmm-XXXXXX, retrying on the rare collision.
func (s *Service) nextOrderNumber(ctx context.Context, repo Repository, now time.Time) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		number := FormatOrderNumber(now, uuid.New())
		taken, err := repo.OrderNumberTaken(ctx, number)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check order number")
		}
		if !taken {
			return number, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeConflict, "could not allocate order number")
}

// FormatOrderNumber renders the minute stamp and the first six hex digits of
// seed.
func FormatOrderNumber(now time.Time, seed uuid.UUID) string {
	hex := strings.ReplaceAll(seed.String(), "-", "")
	return now.Format("0601021504") + "-" + strings.ToUpper(hex[:6])
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, id uuid.UUID, actor *outbox.ActorRef, data any) error {
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   id,
		Actor:         actor,
		Data:          data,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit "+string(eventType))
	}
	return nil
}

func movementLines(items []models.OrderItem, actorID *uuid.UUID, reason string) []stock.MovementInput {
	lines := make([]stock.MovementInput, 0, len(items))
	for i := range items {
		itemID := items[i].ID
		lines = append(lines, stock.MovementInput{
			ProductID:   items[i].ProductID,
			VariantID:   items[i].VariantID,
			Qty:         items[i].Quantity,
			OrderItemID: &itemID,
			ActorID:     actorID,
			Reason:      reason,
		})
	}
	return lines
}

func notFoundOr(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func countryOrDefault(country string) string {
	if c := strings.TrimSpace(country); c != "" {
		return c
	}
	return "India"
}
