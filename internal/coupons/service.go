package coupons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
)

// Revalidation is the outcome of re-checking an attached coupon after a cart
// change. A coupon that no longer qualifies is detached, never an error.
type Revalidation struct {
	Kept    bool     `json:"kept"`
	Applied *Applied `json:"applied,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

type ServiceParams struct {
	Repo   Repository
	Logger *logger.Logger
	Now    func() time.Time
}

type Service struct {
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{repo: params.Repo, logg: params.Logger, now: now}, nil
}

// EvaluateCoupon loads the coupon and the user's history and evaluates it
// against cart. Unknown codes come back as an ineligible result.
func (s *Service) EvaluateCoupon(ctx context.Context, userID uuid.UUID, code string, cart CartSummary) (*Result, *models.Coupon, error) {
	if strings.TrimSpace(code) == "" {
		return &Result{Reason: "Please enter a coupon code"}, nil, nil
	}
	coupon, err := s.repo.FindByCode(ctx, code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Result{Reason: "Invalid coupon code"}, nil, nil
	}
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	res, err := s.evaluate(ctx, s.repo, userID, *coupon, cart)
	if err != nil {
		return nil, nil, err
	}
	return res, coupon, nil
}

// ApplyCoupon evaluates and returns the attachment, or a CodeCouponIneligible
// error carrying the reason.
func (s *Service) ApplyCoupon(ctx context.Context, userID uuid.UUID, code string, cart CartSummary) (*Applied, error) {
	res, coupon, err := s.EvaluateCoupon(ctx, userID, code, cart)
	if err != nil {
		return nil, err
	}
	if !res.Eligible {
		return nil, pkgerrors.New(pkgerrors.CodeCouponIneligible, res.Reason)
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"user_id":        userID.String(),
		"coupon_code":    coupon.Code,
		"discount_cents": res.DiscountCents,
	}), "coupon applied")
	return &Applied{CouponID: coupon.ID, Code: coupon.Code, Title: coupon.Title, DiscountCents: res.DiscountCents}, nil
}

// RevalidateCoupon re-checks an attached coupon against the current cart and
// reprices it.
func (s *Service) RevalidateCoupon(ctx context.Context, userID uuid.UUID, applied *Applied, cart CartSummary) (*Revalidation, error) {
	return s.RevalidateTx(ctx, nil, userID, applied, cart)
}

// RevalidateTx is RevalidateCoupon reading through tx when one is given. Inside
// a transaction the coupon row stays locked until commit, so concurrent
// checkouts see each other's usage.
func (s *Service) RevalidateTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID, applied *Applied, cart CartSummary) (*Revalidation, error) {
	if applied == nil || applied.CouponID == uuid.Nil {
		return &Revalidation{}, nil
	}
	repo := s.repo.WithTx(tx)
	var (
		coupon *models.Coupon
		err    error
	)
	if tx != nil {
		coupon, err = repo.LockByID(ctx, applied.CouponID)
	} else {
		coupon, err = repo.FindByID(ctx, applied.CouponID)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Revalidation{Reason: "Invalid coupon code"}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	res, err := s.evaluate(ctx, repo, userID, *coupon, cart)
	if err != nil {
		return nil, err
	}
	if !res.Eligible {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"user_id":     userID.String(),
			"coupon_code": coupon.Code,
			"reason":      res.Reason,
		}), "coupon detached")
		return &Revalidation{Reason: fmt.Sprintf("Coupon %s removed: %s", coupon.Code, res.Reason)}, nil
	}
	return &Revalidation{
		Kept:    true,
		Applied: &Applied{CouponID: coupon.ID, Code: coupon.Code, Title: coupon.Title, DiscountCents: res.DiscountCents},
	}, nil
}

// CompleteUsage records that userID redeemed couponID on orderID. Repeated
// calls for the same order change nothing. The coupon row is locked and its
// limits checked again; a redemption that would exceed them is logged and not
// recorded, since the order was already priced with the discount.
func (s *Service) CompleteUsage(ctx context.Context, tx *gorm.DB, userID, couponID, orderID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required for coupon usage")
	}
	repo := s.repo.WithTx(tx)
	coupon, err := repo.LockByID(ctx, couponID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock coupon")
	}
	exists, err := repo.UsageExists(ctx, couponID, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check coupon usage")
	}
	if exists {
		return nil
	}
	used, err := repo.CountUsage(ctx, userID, couponID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count coupon usage")
	}
	if reason := limitReached(*coupon, int(used)); reason != "" {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"user_id":     userID.String(),
			"order_id":    orderID.String(),
			"coupon_code": coupon.Code,
			"reason":      reason,
		}), "coupon usage not recorded")
		return nil
	}

	created, err := repo.CreateUsage(ctx, &models.CouponUsage{UserID: userID, CouponID: couponID, OrderID: orderID})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record coupon usage")
	}
	if !created {
		return nil
	}
	if err := repo.IncrementUsed(ctx, couponID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment coupon usage")
	}
	coupon.UsedCount++
	if coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit && coupon.IsActive {
		if err := repo.Deactivate(ctx, couponID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate coupon")
		}
		s.logg.Info(s.logg.WithField(ctx, "coupon_code", coupon.Code), "coupon reached usage limit")
	}
	return nil
}

func limitReached(c models.Coupon, usedByUser int) string {
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return "usage limit reached"
	}
	if usedByUser >= PerUserLimit(c) {
		return "per-user limit reached"
	}
	return ""
}

func (s *Service) evaluate(ctx context.Context, repo Repository, userID uuid.UUID, coupon models.Coupon, cart CartSummary) (*Result, error) {
	today := s.now()
	if ok, reason := CheckValidity(coupon, today); !ok {
		return &Result{Reason: reason}, nil
	}
	history, err := s.history(ctx, repo, userID, coupon)
	if err != nil {
		return nil, err
	}
	res := Evaluate(coupon, today, history, cart)
	return &res, nil
}

func (s *Service) history(ctx context.Context, repo Repository, userID uuid.UUID, coupon models.Coupon) (UserHistory, error) {
	var history UserHistory
	if coupon.FirstTimeOnly {
		prior, err := repo.HasPriorOrders(ctx, userID)
		if err != nil {
			return history, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order history")
		}
		history.HasPriorOrders = prior
	}
	used, err := repo.CountUsage(ctx, userID, coupon.ID)
	if err != nil {
		return history, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count coupon usage")
	}
	history.UsageCount = int(used)
	return history, nil
}
