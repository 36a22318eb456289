package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/internal/cart"
	"github.com/angelmondragon/shopcore-backend/internal/coupons"
	"github.com/angelmondragon/shopcore-backend/internal/refunds"
	"github.com/angelmondragon/shopcore-backend/internal/stock"
	"github.com/angelmondragon/shopcore-backend/internal/wallet"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateItems(ctx context.Context, items []models.OrderItem) error
	OrderNumberTaken(ctx context.Context, number string) (bool, error)
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockOrderByGatewayID(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	FindItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error)
	ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	UpdateItem(ctx context.Context, id uuid.UUID, updates map[string]any) error
	FindDeliveryZone(ctx context.Context, postcode string) (*models.DeliveryZone, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	ListOverdue(ctx context.Context, today time.Time, limit int) ([]uuid.UUID, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithRetryTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cartPricer interface {
	Price(ctx context.Context, tx *gorm.DB, snapshot cart.Snapshot) (*cart.Priced, error)
}

type couponLedger interface {
	RevalidateTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID, applied *coupons.Applied, cart coupons.CartSummary) (*coupons.Revalidation, error)
	CompleteUsage(ctx context.Context, tx *gorm.DB, userID, couponID, orderID uuid.UUID) error
}

type stockLedger interface {
	Release(ctx context.Context, tx *gorm.DB, input stock.MovementInput) (*stock.Movement, error)
	ReserveLines(ctx context.Context, tx *gorm.DB, lines []stock.MovementInput) ([]stock.Movement, error)
	ReleaseLines(ctx context.Context, tx *gorm.DB, lines []stock.MovementInput) ([]stock.Movement, error)
}

type walletDebitor interface {
	DebitTx(ctx context.Context, tx *gorm.DB, input wallet.DebitInput) (*models.WalletTransaction, error)
}

type refundIssuer interface {
	Issue(ctx context.Context, tx *gorm.DB, in refunds.IssueInput) (*refunds.Outcome, error)
	IssueShipping(ctx context.Context, tx *gorm.DB, in refunds.ShippingInput) (*refunds.Outcome, error)
	IssueLateSettlement(ctx context.Context, tx *gorm.DB, in refunds.LateSettlementInput) (*refunds.Outcome, error)
}
