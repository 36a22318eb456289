package stock

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopcore-backend/api/middleware"
	"github.com/angelmondragon/shopcore-backend/api/responses"
	"github.com/angelmondragon/shopcore-backend/api/validators"
	"github.com/angelmondragon/shopcore-backend/internal/catalog"
	internalstock "github.com/angelmondragon/shopcore-backend/internal/stock"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

type ledger interface {
	ReserveStock(ctx context.Context, input internalstock.MovementInput) (*internalstock.Movement, error)
	ReleaseStock(ctx context.Context, input internalstock.MovementInput) (*internalstock.Movement, error)
	AdjustStock(ctx context.Context, input internalstock.AdjustInput) (*internalstock.Movement, error)
	ListTransactions(ctx context.Context, productID uuid.UUID, params pagination.Params) ([]models.StockTransaction, string, error)
}

type movementRequest struct {
	ProductID   uuid.UUID  `json:"product_id"`
	VariantID   *uuid.UUID `json:"variant_id,omitempty"`
	Quantity    int        `json:"quantity" validate:"gt=0"`
	OrderItemID *uuid.UUID `json:"order_item_id,omitempty"`
	Reason      string     `json:"reason" validate:"max=255"`
}

type adjustRequest struct {
	movementRequest
	Type string `json:"type" validate:"required,oneof=MANUAL_ADD MANUAL_SUBTRACT RESTOCK"`
}

// TransactionPage is one page of a product's stock history.
type TransactionPage struct {
	Transactions []models.StockTransaction `json:"transactions"`
	NextCursor   string                    `json:"next_cursor,omitempty"`
}

func (m movementRequest) input(actorID uuid.UUID) internalstock.MovementInput {
	return internalstock.MovementInput{
		ProductID:   m.ProductID,
		VariantID:   m.VariantID,
		Qty:         m.Quantity,
		OrderItemID: m.OrderItemID,
		ActorID:     &actorID,
		Reason:      validators.SanitizeString(m.Reason, 255),
	}
}

// Reserve takes stock out of the sellable quantity.
func Reserve(svc ledger, logg *logger.Logger) http.HandlerFunc {
	return movement(svc.ReserveStock, logg)
}

// Release puts reserved stock back.
func Release(svc ledger, logg *logger.Logger) http.HandlerFunc {
	return movement(svc.ReleaseStock, logg)
}

// Adjust records a manual correction or restock.
func Adjust(svc ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req adjustRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		mv, err := svc.AdjustStock(r.Context(), internalstock.AdjustInput{
			MovementInput: req.input(actorID),
			Type:          enums.StockTransactionType(req.Type),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mv)
	}
}

// History pages the stock ledger of one product.
func History(svc ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, next, err := svc.ListTransactions(r.Context(), productID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, TransactionPage{Transactions: rows, NextCursor: next})
	}
}

// DefaultVariant repairs the default-variant flag of a product.
func DefaultVariant(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.EnsureDefaultVariant(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func movement(fn func(context.Context, internalstock.MovementInput) (*internalstock.Movement, error), logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req movementRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		mv, err := fn(r.Context(), req.input(actorID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mv)
	}
}
