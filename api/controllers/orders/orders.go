package orders

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopcore-backend/api/middleware"
	"github.com/angelmondragon/shopcore-backend/api/responses"
	"github.com/angelmondragon/shopcore-backend/api/validators"
	"github.com/angelmondragon/shopcore-backend/internal/cart"
	"github.com/angelmondragon/shopcore-backend/internal/coupons"
	internalorders "github.com/angelmondragon/shopcore-backend/internal/orders"
	"github.com/angelmondragon/shopcore-backend/internal/refunds"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/money"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

type orderCreator interface {
	Create(ctx context.Context, input internalorders.CreateInput) (*internalorders.CreateResult, error)
}

type orderReader interface {
	GetForUser(ctx context.Context, userID, id uuid.UUID) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
}

type paymentRetrier interface {
	RetryPayment(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error)
}

type orderTransitioner interface {
	Transition(ctx context.Context, input internalorders.TransitionInput) (*internalorders.TransitionResult, error)
}

type createOrderRequest struct {
	Lines         []cart.Line            `json:"lines" validate:"required,min=1,dive"`
	Address       internalorders.Address `json:"address"`
	PaymentMethod string                 `json:"payment_method" validate:"required,oneof=COD GATEWAY WALLET"`
	Coupon        *coupons.Applied       `json:"coupon,omitempty"`
}

type transitionRequest struct {
	Action string `json:"action" validate:"required,oneof=PROCESSING PACKED SHIPPED DELIVERED CANCELLED"`
}

// OrderPage is one page of a customer's orders.
type OrderPage struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// RefundQuote is what closing an item would refund right now.
type RefundQuote struct {
	OrderID     uuid.UUID          `json:"order_id"`
	ItemID      uuid.UUID          `json:"item_id"`
	Refundable  bool               `json:"refundable"`
	Method      enums.RefundMethod `json:"method,omitempty"`
	AmountCents int64              `json:"amount_cents"`
	Amount      string             `json:"amount"`
}

// Create places an order from a cart snapshot.
func Create(svc orderCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), internalorders.CreateInput{
			UserID:        userID,
			Cart:          cart.Snapshot{Lines: req.Lines},
			Address:       req.Address,
			PaymentMethod: enums.PaymentMethod(req.PaymentMethod),
			AppliedCoupon: req.Coupon,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// List returns the caller's orders newest first.
func List(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, next, err := svc.ListForUser(r.Context(), userID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, OrderPage{Orders: rows, NextCursor: next})
	}
}

// Detail returns one of the caller's orders with its items.
func Detail(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetForUser(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// RetryPayment reopens a failed online payment.
func RetryPayment(svc paymentRetrier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.RetryPayment(r.Context(), orderID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// RefundQuoteHandler prices a cancel or return of one item without changing anything.
func RefundQuoteHandler(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetForUser(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var item *models.OrderItem
		for i := range order.Items {
			if order.Items[i].ID == itemID {
				item = &order.Items[i]
				break
			}
		}
		if item == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order item not found"))
			return
		}

		quote := RefundQuote{OrderID: order.ID, ItemID: item.ID}
		if refunds.Refundable(*order) {
			quote.Refundable = true
			quote.Method = refunds.PreferredMethod(*order)
			quote.AmountCents = refunds.ComputeItemRefund(*order, *item)
		}
		quote.Amount = money.Format(quote.AmountCents)
		responses.WriteSuccess(w, quote)
	}
}

// AdminTransition applies a staff status action to every open item.
func AdminTransition(svc orderTransitioner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		staffID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req transitionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Transition(r.Context(), internalorders.TransitionInput{
			OrderID: orderID,
			Action:  enums.OrderAction(req.Action),
			ActorID: staffID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
