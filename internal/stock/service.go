package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/metrics"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithRetryTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// MovementInput targets a variant, or a product when VariantID is nil.
type MovementInput struct {
	ProductID   uuid.UUID
	VariantID   *uuid.UUID
	Qty         int
	OrderItemID *uuid.UUID
	ActorID     *uuid.UUID
	Reason      string
}

// AdjustInput is a staff correction or restock.
type AdjustInput struct {
	MovementInput
	Type enums.StockTransactionType
}

// Movement reports the stock before/after a single ledger row.
type Movement struct {
	ProductID     uuid.UUID  `json:"product_id"`
	VariantID     *uuid.UUID `json:"variant_id,omitempty"`
	TransactionID uuid.UUID  `json:"transaction_id"`
	Before        int        `json:"before"`
	After         int        `json:"after"`
	ProductBefore int        `json:"product_before"`
	ProductAfter  int        `json:"product_after"`
}

// ServiceParams wires the stock ledger.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Logger  *logger.Logger
	Metrics *metrics.LedgerMetrics
}

// Service is the stock ledger. Every mutation locks the product row and then
// the variant row, writes the new stock, re-derives the product total and
// appends one stock_transactions row.
type Service struct {
	repo    Repository
	tx      txRunner
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		repo:    params.Repo,
		tx:      params.Tx,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// Reserve decrements stock inside tx.
func (s *Service) Reserve(ctx context.Context, tx *gorm.DB, input MovementInput) (*Movement, error) {
	if input.Qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if strings.TrimSpace(input.Reason) == "" {
		input.Reason = "Stock reserved"
	}
	return s.move(ctx, tx, enums.StockTxnReserve, input, -input.Qty)
}

// Release returns stock inside tx. It never fails for lack of stock.
func (s *Service) Release(ctx context.Context, tx *gorm.DB, input MovementInput) (*Movement, error) {
	if input.Qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if strings.TrimSpace(input.Reason) == "" {
		input.Reason = "Stock released"
	}
	return s.move(ctx, tx, enums.StockTxnRelease, input, input.Qty)
}

// Adjust applies a MANUAL_ADD, MANUAL_SUBTRACT or RESTOCK inside tx.
func (s *Service) Adjust(ctx context.Context, tx *gorm.DB, input AdjustInput) (*Movement, error) {
	if input.Qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	switch input.Type {
	case enums.StockTxnManualAdd, enums.StockTxnRestock:
		return s.move(ctx, tx, input.Type, input.MovementInput, input.Qty)
	case enums.StockTxnManualSubtract:
		return s.move(ctx, tx, input.Type, input.MovementInput, -input.Qty)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("adjustment type %q not allowed", input.Type))
	}
}

// ReserveLines reserves a batch in lock order and returns movements indexed
// like lines. The first shortfall aborts the batch; the caller's transaction
// rolls back the earlier reservations.
func (s *Service) ReserveLines(ctx context.Context, tx *gorm.DB, lines []MovementInput) ([]Movement, error) {
	return s.moveLines(ctx, tx, lines, s.Reserve)
}

// ReleaseLines is the inverse of ReserveLines.
func (s *Service) ReleaseLines(ctx context.Context, tx *gorm.DB, lines []MovementInput) ([]Movement, error) {
	return s.moveLines(ctx, tx, lines, s.Release)
}

func (s *Service) moveLines(
	ctx context.Context,
	tx *gorm.DB,
	lines []MovementInput,
	fn func(context.Context, *gorm.DB, MovementInput) (*Movement, error),
) ([]Movement, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	resolved := make([]MovementInput, len(lines))
	repo := s.repo.WithTx(tx)
	for i, line := range lines {
		r, err := s.resolveProduct(ctx, repo, line)
		if err != nil {
			return nil, err
		}
		resolved[i] = r
	}

	order := make([]int, len(resolved))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		la, lb := resolved[order[a]], resolved[order[b]]
		if c := strings.Compare(la.ProductID.String(), lb.ProductID.String()); c != 0 {
			return c < 0
		}
		return strings.Compare(variantKey(la.VariantID), variantKey(lb.VariantID)) < 0
	})

	out := make([]Movement, len(resolved))
	for _, idx := range order {
		mv, err := fn(ctx, tx, resolved[idx])
		if err != nil {
			return nil, err
		}
		out[idx] = *mv
	}
	return out, nil
}

// ReserveStock runs Reserve in its own retried transaction.
func (s *Service) ReserveStock(ctx context.Context, input MovementInput) (*Movement, error) {
	var mv *Movement
	err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		var err error
		mv, err = s.Reserve(ctx, tx, input)
		return err
	})
	return mv, err
}

// ReleaseStock runs Release in its own retried transaction.
func (s *Service) ReleaseStock(ctx context.Context, input MovementInput) (*Movement, error) {
	var mv *Movement
	err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		var err error
		mv, err = s.Release(ctx, tx, input)
		return err
	})
	return mv, err
}

// AdjustStock runs Adjust in its own retried transaction.
func (s *Service) AdjustStock(ctx context.Context, input AdjustInput) (*Movement, error) {
	var mv *Movement
	err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		var err error
		mv, err = s.Adjust(ctx, tx, input)
		return err
	})
	return mv, err
}

// ListTransactions pages a product's stock history.
func (s *Service) ListTransactions(ctx context.Context, productID uuid.UUID, params pagination.Params) ([]models.StockTransaction, string, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.ListTransactions(ctx, productID, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock transactions")
	}
	return rows, next, nil
}

func (s *Service) move(ctx context.Context, tx *gorm.DB, kind enums.StockTransactionType, input MovementInput, delta int) (*Movement, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for stock movement")
	}
	repo := s.repo.WithTx(tx)

	input, err := s.resolveProduct(ctx, repo, input)
	if err != nil {
		return nil, err
	}

	product, err := repo.LockProduct(ctx, input.ProductID)
	if err != nil {
		return nil, notFoundOr(err, "product not found", "lock product")
	}

	var variant *models.ProductVariant
	if input.VariantID != nil {
		variant, err = repo.LockVariant(ctx, *input.VariantID)
		if err != nil {
			return nil, notFoundOr(err, "variant not found", "lock variant")
		}
	} else {
		count, err := repo.CountVariants(ctx, product.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count variants")
		}
		if count > 0 {
			variant, err = repo.LockDefaultVariant(ctx, product.ID)
			if err != nil {
				return nil, notFoundOr(err, "variant not found", "lock default variant")
			}
		}
	}

	mv := &Movement{ProductID: product.ID, ProductBefore: product.StockQuantity}
	if variant != nil {
		id := variant.ID
		mv.VariantID = &id
		mv.Before = variant.Stock
		mv.After = variant.Stock + delta
		if mv.After < 0 {
			s.metrics.InsufficientStock()
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock,
				fmt.Sprintf("Insufficient stock for %s - %s. Only %d available.", product.Name, variant.Color, variant.Stock))
		}
		if err := repo.SetVariantStock(ctx, variant.ID, mv.After); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update variant stock")
		}
		total, err := repo.SumVariantStock(ctx, product.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum variant stock")
		}
		if err := repo.SetProductStock(ctx, product.ID, total); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sync product stock")
		}
		mv.ProductAfter = total
	} else {
		mv.Before = product.StockQuantity
		mv.After = product.StockQuantity + delta
		if mv.After < 0 {
			s.metrics.InsufficientStock()
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock,
				fmt.Sprintf("Insufficient stock for %s. Only %d available.", product.Name, product.StockQuantity))
		}
		if err := repo.SetProductStock(ctx, product.ID, mv.After); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product stock")
		}
		mv.ProductAfter = mv.After
	}

	row := &models.StockTransaction{
		ProductID:   product.ID,
		VariantID:   mv.VariantID,
		OrderItemID: input.OrderItemID,
		Type:        kind,
		Quantity:    delta,
		StockBefore: mv.Before,
		StockAfter:  mv.After,
		Reason:      input.Reason,
		ActorID:     input.ActorID,
	}
	if err := repo.AppendTransaction(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append stock transaction")
	}
	mv.TransactionID = row.ID

	s.metrics.StockMovement(kind.String(), delta)
	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
		"product_id": product.ID.String(),
		"variant":    variantKey(mv.VariantID),
		"type":       kind.String(),
		"delta":      delta,
		"after":      mv.After,
	}), "stock movement recorded")
	return mv, nil
}

// resolveProduct fills ProductID from the variant when only the variant is known.
func (s *Service) resolveProduct(ctx context.Context, repo Repository, input MovementInput) (MovementInput, error) {
	if input.VariantID == nil {
		if input.ProductID == uuid.Nil {
			return input, pkgerrors.New(pkgerrors.CodeValidation, "product or variant is required")
		}
		return input, nil
	}
	variant, err := repo.FindVariant(ctx, *input.VariantID)
	if err != nil {
		return input, notFoundOr(err, "variant not found", "load variant")
	}
	if input.ProductID != uuid.Nil && input.ProductID != variant.ProductID {
		return input, pkgerrors.New(pkgerrors.CodeValidation, "variant does not belong to product")
	}
	input.ProductID = variant.ProductID
	return input, nil
}

// VerifyProductTotal checks that a product with variants carries the sum of
// their stock.
func VerifyProductTotal(ctx context.Context, db *gorm.DB, productID uuid.UUID) error {
	repo := NewRepository(db)
	count, err := repo.CountVariants(ctx, productID)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	var product models.Product
	if err := db.WithContext(ctx).First(&product, "id = ?", productID).Error; err != nil {
		return err
	}
	total, err := repo.SumVariantStock(ctx, productID)
	if err != nil {
		return err
	}
	if total != product.StockQuantity {
		return fmt.Errorf("product %s stock_quantity %d != variant total %d", productID, product.StockQuantity, total)
	}
	return nil
}

func notFoundOr(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

func variantKey(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
