package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
)

type txRunner interface {
	WithRetryTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service keeps product variants consistent.
type Service interface {
	EnsureDefaultVariant(ctx context.Context, productID uuid.UUID) (*DefaultVariantResult, error)
}

// DefaultVariantResult describes what EnsureDefaultVariant changed.
type DefaultVariantResult struct {
	ProductID        uuid.UUID   `json:"product_id"`
	DefaultVariantID *uuid.UUID  `json:"default_variant_id,omitempty"`
	Promoted         bool        `json:"promoted"`
	Demoted          []uuid.UUID `json:"demoted,omitempty"`
	StockQuantity    int         `json:"stock_quantity"`
}

type service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
}

func NewService(repo Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

// EnsureDefaultVariant leaves exactly one default variant on a product that
// has variants. With none flagged the oldest is promoted; with several the
// oldest flagged one is kept. The product total is re-derived either way.
func (s *service) EnsureDefaultVariant(ctx context.Context, productID uuid.UUID) (*DefaultVariantResult, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	var result *DefaultVariantResult
	err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := repo.LockProduct(ctx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock product")
		}

		variants, err := repo.ListVariants(ctx, productID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list variants")
		}

		res := &DefaultVariantResult{ProductID: productID, StockQuantity: product.StockQuantity}
		if len(variants) > 0 {
			keep := -1
			var demote []uuid.UUID
			for i, v := range variants {
				if !v.IsDefault {
					continue
				}
				if keep < 0 {
					keep = i
					continue
				}
				demote = append(demote, v.ID)
			}
			// demote first so the single-default index never sees two rows
			if err := repo.SetDefault(ctx, demote, false); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "demote variants")
			}
			if keep < 0 {
				keep = 0
				if err := repo.SetDefault(ctx, []uuid.UUID{variants[0].ID}, true); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promote variant")
				}
				res.Promoted = true
			}
			id := variants[keep].ID
			res.DefaultVariantID = &id
			res.Demoted = demote

			total, err := repo.SyncProductStock(ctx, productID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sync product stock")
			}
			res.StockQuantity = total
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Promoted || len(result.Demoted) > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"product_id": productID.String(),
			"promoted":   result.Promoted,
			"demoted":    len(result.Demoted),
		}), "default variant repaired")
	}
	return result, nil
}
