package coupons

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/api/middleware"
	"github.com/angelmondragon/shopcore-backend/api/responses"
	"github.com/angelmondragon/shopcore-backend/api/validators"
	"github.com/angelmondragon/shopcore-backend/internal/cart"
	internalcoupons "github.com/angelmondragon/shopcore-backend/internal/coupons"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
)

type couponService interface {
	EvaluateCoupon(ctx context.Context, userID uuid.UUID, code string, cart internalcoupons.CartSummary) (*internalcoupons.Result, *models.Coupon, error)
	ApplyCoupon(ctx context.Context, userID uuid.UUID, code string, cart internalcoupons.CartSummary) (*internalcoupons.Applied, error)
	RevalidateCoupon(ctx context.Context, userID uuid.UUID, applied *internalcoupons.Applied, cart internalcoupons.CartSummary) (*internalcoupons.Revalidation, error)
}

type cartPricer interface {
	Price(ctx context.Context, tx *gorm.DB, snapshot cart.Snapshot) (*cart.Priced, error)
}

type codeRequest struct {
	Code  string      `json:"code" validate:"max=64"`
	Lines []cart.Line `json:"lines" validate:"required,min=1"`
}

type revalidateRequest struct {
	Applied *internalcoupons.Applied `json:"applied"`
	Lines   []cart.Line              `json:"lines" validate:"required,min=1"`
}

// Evaluation is an evaluate response. Code and Title are set for known codes.
type Evaluation struct {
	internalcoupons.Result
	Code  string `json:"code,omitempty"`
	Title string `json:"title,omitempty"`
}

// Evaluate reports whether a code applies to the priced cart without
// attaching it.
func Evaluate(svc couponService, pricer cartPricer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, req, summary, err := priceRequest(r, pricer)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, coupon, err := svc.EvaluateCoupon(r.Context(), userID, req.Code, summary)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := Evaluation{Result: *res}
		if coupon != nil {
			out.Code = coupon.Code
			out.Title = coupon.Title
		}
		responses.WriteSuccess(w, out)
	}
}

// Apply evaluates and returns the attachment the client keeps with its cart.
func Apply(svc couponService, pricer cartPricer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, req, summary, err := priceRequest(r, pricer)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		applied, err := svc.ApplyCoupon(r.Context(), userID, req.Code, summary)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, applied)
	}
}

// Revalidate re-checks an attached coupon after the cart changed.
func Revalidate(svc couponService, pricer cartPricer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req revalidateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		priced, err := pricer.Price(r.Context(), nil, cart.Snapshot{Lines: req.Lines})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := svc.RevalidateCoupon(r.Context(), userID, req.Applied, priced.Summary())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

func priceRequest(r *http.Request, pricer cartPricer) (uuid.UUID, codeRequest, internalcoupons.CartSummary, error) {
	var req codeRequest
	userID, err := middleware.RequireActorID(r.Context())
	if err != nil {
		return uuid.Nil, req, internalcoupons.CartSummary{}, err
	}
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		return uuid.Nil, req, internalcoupons.CartSummary{}, err
	}
	req.Code = strings.TrimSpace(req.Code)
	priced, err := pricer.Price(r.Context(), nil, cart.Snapshot{Lines: req.Lines})
	if err != nil {
		return uuid.Nil, req, internalcoupons.CartSummary{}, err
	}
	return userID, req, priced.Summary(), nil
}
