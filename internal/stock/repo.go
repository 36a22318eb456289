package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

// Repository covers the stock tables. Stock transactions are append only.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindVariant(ctx context.Context, variantID uuid.UUID) (*models.ProductVariant, error)
	LockProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	LockVariant(ctx context.Context, variantID uuid.UUID) (*models.ProductVariant, error)
	LockDefaultVariant(ctx context.Context, productID uuid.UUID) (*models.ProductVariant, error)
	CountVariants(ctx context.Context, productID uuid.UUID) (int64, error)
	SetVariantStock(ctx context.Context, variantID uuid.UUID, stock int) error
	SetProductStock(ctx context.Context, productID uuid.UUID, qty int) error
	SumVariantStock(ctx context.Context, productID uuid.UUID) (int, error)
	AppendTransaction(ctx context.Context, txn *models.StockTransaction) error
	ListTransactions(ctx context.Context, productID uuid.UUID, params pagination.Params) ([]models.StockTransaction, string, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a stock repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindVariant(ctx context.Context, variantID uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	if err := r.db.WithContext(ctx).First(&variant, "id = ?", variantID).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *repository) LockProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&product, "id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) LockVariant(ctx context.Context, variantID uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&variant, "id = ?", variantID).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *repository) LockDefaultVariant(ctx context.Context, productID uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ?", productID).
		Order("is_default DESC").
		Order("created_at ASC").
		First(&variant).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *repository) CountVariants(ctx context.Context, productID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Where("product_id = ?", productID).
		Count(&count).Error
	return count, err
}

func (r *repository) SetVariantStock(ctx context.Context, variantID uuid.UUID, stock int) error {
	return r.db.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Where("id = ?", variantID).
		Updates(map[string]any{"stock": stock, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) SetProductStock(ctx context.Context, productID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]any{"stock_quantity": qty, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) SumVariantStock(ctx context.Context, productID uuid.UUID) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Select("COALESCE(SUM(stock), 0)").
		Where("product_id = ?", productID).
		Scan(&total).Error
	return int(total), err
}

func (r *repository) AppendTransaction(ctx context.Context, txn *models.StockTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

// ListTransactions pages the product's movements newest first.
func (r *repository) ListTransactions(ctx context.Context, productID uuid.UUID, params pagination.Params) ([]models.StockTransaction, string, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	var rows []models.StockTransaction
	query := r.db.WithContext(ctx).
		Where("product_id = ?", productID)
	if err := pagination.Newest(query, cursor, limit).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	rows, next := pagination.Trim(rows, limit, func(row models.StockTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return rows, next, nil
}
