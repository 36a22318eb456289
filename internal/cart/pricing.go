package cart

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
)

const maxLineQuantity = 100

// Service prices cart snapshots against the live catalog.
type Service struct {
	repo Repository
}

func NewService(repo Repository) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	return &Service{repo: repo}, nil
}

// Validate checks the shape of a snapshot before any lookups.
func (s Snapshot) Validate() error {
	if len(s.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	for i, line := range s.Lines {
		if line.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("lines[%d].product_id is required", i))
		}
		if line.VariantID != nil && *line.VariantID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("lines[%d].variant_id is invalid", i))
		}
		if line.Quantity <= 0 || line.Quantity > maxLineQuantity {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("lines[%d].quantity must be between 1 and %d", i, maxLineQuantity))
		}
	}
	return nil
}

// Merge folds duplicate (product, variant) lines into one, keeping the order
// of first appearance.
func (s Snapshot) Merge() Snapshot {
	index := make(map[string]int, len(s.Lines))
	merged := make([]Line, 0, len(s.Lines))
	for _, line := range s.Lines {
		key := lineKey(line.ProductID, line.VariantID)
		if i, ok := index[key]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[key] = len(merged)
		merged = append(merged, line)
	}
	return Snapshot{Lines: merged}
}

// Price resolves every line to its current catalog price. Inside an order
// transaction tx is the transaction; nil reads from the base connection.
func (s *Service) Price(ctx context.Context, tx *gorm.DB, snapshot Snapshot) (*Priced, error) {
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}
	snapshot = snapshot.Merge()

	ids := make([]uuid.UUID, 0, len(snapshot.Lines))
	seen := make(map[uuid.UUID]struct{}, len(snapshot.Lines))
	for _, line := range snapshot.Lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}

	products, err := s.repo.WithTx(tx).ProductsByID(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}

	priced := &Priced{Lines: make([]PricedLine, 0, len(snapshot.Lines))}
	for _, line := range snapshot.Lines {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		if !product.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s is no longer available", product.Name))
		}
		pl, err := priceLine(product, line)
		if err != nil {
			return nil, err
		}
		priced.Lines = append(priced.Lines, pl)
		priced.SubtotalCents += pl.LineTotalCents
		priced.ItemCount += pl.Quantity
		if pl.Discounted {
			priced.HasDiscountedLine = true
		}
	}
	return priced, nil
}

func priceLine(product models.Product, line Line) (PricedLine, error) {
	pl := PricedLine{
		ProductID:      product.ID,
		ProductName:    product.Name,
		ImageURL:       product.ImageURL,
		OfferLabel:     strings.TrimSpace(product.OfferLabel),
		MRPCents:       product.MRPCents,
		UnitPriceCents: product.PriceCents,
		Quantity:       line.Quantity,
	}
	var variant *models.ProductVariant
	if line.VariantID != nil {
		variant = findVariant(product.Variants, *line.VariantID)
		if variant == nil {
			return PricedLine{}, pkgerrors.New(pkgerrors.CodeValidation, "variant does not belong to product")
		}
	} else {
		variant = defaultVariant(product.Variants)
	}
	if variant != nil {
		id := variant.ID
		pl.VariantID = &id
		pl.VariantColor = variant.Color
		if variant.PriceCents != nil {
			pl.UnitPriceCents = *variant.PriceCents
		}
	}
	if pl.UnitPriceCents < 0 {
		return PricedLine{}, pkgerrors.New(pkgerrors.CodeInternal, "product has negative price")
	}
	if pl.MRPCents < pl.UnitPriceCents {
		pl.MRPCents = pl.UnitPriceCents
	}
	pl.Discounted = pl.MRPCents > pl.UnitPriceCents
	pl.LineTotalCents = pl.UnitPriceCents * int64(pl.Quantity)
	return pl, nil
}

// defaultVariant picks the flagged default, falling back to the oldest.
func defaultVariant(variants []models.ProductVariant) *models.ProductVariant {
	for i := range variants {
		if variants[i].IsDefault {
			return &variants[i]
		}
	}
	if len(variants) > 0 {
		return &variants[0]
	}
	return nil
}

func findVariant(variants []models.ProductVariant, id uuid.UUID) *models.ProductVariant {
	for i := range variants {
		if variants[i].ID == id {
			return &variants[i]
		}
	}
	return nil
}
