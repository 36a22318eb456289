package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
)

// Repository covers the product and variant rows touched by variant upkeep.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	ListVariants(ctx context.Context, productID uuid.UUID) ([]models.ProductVariant, error)
	SetDefault(ctx context.Context, variantIDs []uuid.UUID, isDefault bool) error
	SyncProductStock(ctx context.Context, productID uuid.UUID) (int, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
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

// ListVariants returns a product's variants oldest first.
func (r *repository) ListVariants(ctx context.Context, productID uuid.UUID) ([]models.ProductVariant, error) {
	var variants []models.ProductVariant
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ?", productID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&variants).Error
	return variants, err
}

func (r *repository) SetDefault(ctx context.Context, variantIDs []uuid.UUID, isDefault bool) error {
	if len(variantIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Where("id IN ?", variantIDs).
		Update("is_default", isDefault).Error
}

// SyncProductStock re-derives stock_quantity from the variants and returns it.
func (r *repository) SyncProductStock(ctx context.Context, productID uuid.UUID) (int, error) {
	var total int
	if err := r.db.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Select("COALESCE(SUM(stock), 0)").
		Where("product_id = ?", productID).
		Scan(&total).Error; err != nil {
		return 0, err
	}
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Update("stock_quantity", total).Error
	return total, err
}
