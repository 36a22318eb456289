package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/internal/refunds"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox/payloads"
)

const staleBatchSize = 200

// MarkPaid records gateway settlement. Orders already past PENDING are left
// alone, so duplicate callbacks are harmless. A settlement that arrives after
// the order failed reserves the stock again and places the order; when the
// stock is gone the payment is refunded instead and the order stays FAILED.
func (s *Service) MarkPaid(ctx context.Context, input MarkPaidInput) (*MarkPaidResult, error) {
	if input.OrderID == uuid.Nil && strings.TrimSpace(input.GatewayOrderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id or gateway order id required")
	}
	paymentID := strings.TrimSpace(input.GatewayPaymentID)

	var result *MarkPaidResult
	err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := lockTarget(ctx, repo, input.OrderID, input.GatewayOrderID)
		if err != nil {
			return err
		}

		reopened := false
		switch order.Status {
		case enums.OrderStatusPending:
		case enums.OrderStatusFailed:
			if order.PaymentMethod != enums.PaymentMethodGateway {
				return pkgerrors.New(pkgerrors.CodeStateConflict,
					fmt.Sprintf("order %s is %s and cannot be marked paid", order.OrderNumber, order.Status))
			}
			// The same payment already came back once and was refunded.
			if order.GatewayPaymentID != nil && paymentID != "" && *order.GatewayPaymentID == paymentID {
				result, err = s.refundLateSettlement(ctx, tx, repo, order, paymentID)
				return err
			}
			ok, err := s.reserveForSettlement(ctx, tx, repo, order)
			if err != nil {
				return err
			}
			if !ok {
				result, err = s.refundLateSettlement(ctx, tx, repo, order, paymentID)
				return err
			}
			reopened = true
		case enums.OrderStatusCancelled:
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order %s is %s and cannot be marked paid", order.OrderNumber, order.Status))
		default:
			result = &MarkPaidResult{Order: order, AlreadyPaid: true}
			return nil
		}

		now := s.now().UTC()
		updates := map[string]any{
			"status":     enums.OrderStatusPlaced,
			"paid_at":    now,
			"updated_at": now,
		}
		if reopened {
			updates["failed_at"] = nil
			order.FailedAt = nil
		}
		if paymentID != "" {
			updates["gateway_payment_id"] = paymentID
			order.GatewayPaymentID = &paymentID
		}
		if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		order.Status = enums.OrderStatusPlaced
		order.PaidAt = &now

		items, err := repo.ListItems(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
		}
		for i := range items {
			if items[i].PlacedAt != nil {
				continue
			}
			if err := repo.UpdateItem(ctx, items[i].ID, map[string]any{"placed_at": now}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp order item")
			}
			items[i].PlacedAt = &now
		}
		order.Items = items

		if order.CouponID != nil {
			if err := s.coupons.CompleteUsage(ctx, tx, order.UserID, *order.CouponID, order.ID); err != nil {
				return err
			}
		}

		if err := s.emit(ctx, tx, enums.EventOrderPaid, enums.AggregateOrder, order.ID, outbox.System(),
			payloads.OrderPaidEvent{
				OrderID:          order.ID,
				OrderNumber:      order.OrderNumber,
				PaymentMethod:    order.PaymentMethod,
				GatewayPaymentID: order.GatewayPaymentID,
				TotalCents:       order.TotalCents,
				PaidAt:           now,
			}); err != nil {
			return err
		}
		result = &MarkPaidResult{Order: order, Reopened: reopened}
		return nil
	})
	if err != nil {
		return nil, err
	}

	orderCtx := s.logg.WithOrderID(ctx, result.Order.ID.String())
	switch {
	case result.Refund != nil:
		s.logg.Warn(s.logg.WithFields(orderCtx, map[string]any{
			"payment_id":    paymentID,
			"refund_method": result.Refund.Method.String(),
			"amount_cents":  result.Refund.AmountCents,
		}), "payment settled after order failed, refunded")
	case result.Reopened:
		s.logg.Warn(s.logg.WithField(orderCtx, "payment_id", paymentID), "payment settled after order failed, order placed")
	case !result.AlreadyPaid:
		s.logg.Info(orderCtx, "order marked paid")
	}
	return result, nil
}

// reserveForSettlement takes the order's stock again inside a savepoint. It
// reports false when the lines can no longer be reserved.
func (s *Service) reserveForSettlement(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order) (bool, error) {
	items, err := repo.ListItems(ctx, order.ID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
	}
	err = tx.Transaction(func(sp *gorm.DB) error {
		_, err := s.stock.ReserveLines(ctx, sp, movementLines(items, nil, "Late payment: Order "+order.OrderNumber))
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock),
		pkgerrors.HasCode(err, pkgerrors.CodeNotFound),
		pkgerrors.HasCode(err, pkgerrors.CodeValidation):
		return false, nil
	}
	return false, err
}

// refundLateSettlement keeps the order FAILED, records which payment came in
// and hands the whole amount back.
func (s *Service) refundLateSettlement(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, paymentID string) (*MarkPaidResult, error) {
	if paymentID != "" && (order.GatewayPaymentID == nil || *order.GatewayPaymentID != paymentID) {
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"gateway_payment_id": paymentID,
			"updated_at":         s.now().UTC(),
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record late payment")
		}
		order.GatewayPaymentID = &paymentID
	}
	out, err := s.refunds.IssueLateSettlement(ctx, tx, refunds.LateSettlementInput{Order: order, Actor: outbox.System()})
	if err != nil {
		return nil, err
	}
	return &MarkPaidResult{Order: order, Refund: out}, nil
}

// MarkPaymentFailed fails a PENDING order and returns its reserved stock.
// Anything other than PENDING is left untouched and reported unchanged.
func (s *Service) MarkPaymentFailed(ctx context.Context, input PaymentFailedInput) (*models.Order, bool, error) {
	if input.OrderID == uuid.Nil && strings.TrimSpace(input.GatewayOrderID) == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "order id or gateway order id required")
	}

	var (
		order   *models.Order
		changed bool
	)
	err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = lockTarget(ctx, repo, input.OrderID, input.GatewayOrderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusPending {
			return nil
		}

		items, err := repo.ListItems(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
		}
		if _, err := s.stock.ReleaseLines(ctx, tx, movementLines(items, nil, "Payment failed: Order "+order.OrderNumber)); err != nil {
			return err
		}

		now := s.now().UTC()
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status":     enums.OrderStatusFailed,
			"failed_at":  now,
			"updated_at": now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order failed")
		}
		order.Status = enums.OrderStatusFailed
		order.FailedAt = &now
		order.Items = items
		changed = true

		return s.emit(ctx, tx, enums.EventOrderPaymentFailed, enums.AggregateOrder, order.ID, outbox.System(),
			payloads.OrderPaymentEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				Status:      order.Status,
				Reason:      strings.TrimSpace(input.Reason),
			})
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		s.logg.Warn(s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
			"reason": input.Reason,
		}), "order payment failed, stock released")
	}
	return order, changed, nil
}

// RetryPayment reopens a FAILED gateway order for another payment attempt,
// reserving its stock again. The whole order is re-reserved or nothing is.
func (s *Service) RetryPayment(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var order *models.Order
	err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = repo.LockOrder(ctx, orderID)
		if err != nil {
			return notFoundOr(err, "order not found", "lock order")
		}
		if order.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if order.PaymentMethod != enums.PaymentMethodGateway || order.Status != enums.OrderStatusFailed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only failed online payments can be retried")
		}
		now := s.now().UTC()
		if window := s.retryWindow(); now.Sub(order.CreatedAt) > window {
			return pkgerrors.New(pkgerrors.CodeValidation, "Payment retry window has expired")
		}

		items, err := repo.ListItems(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
		}
		if _, err := s.stock.ReserveLines(ctx, tx, movementLines(items, &userID, "Payment retry: Order "+order.OrderNumber)); err != nil {
			return err
		}
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status":     enums.OrderStatusPending,
			"failed_at":  nil,
			"updated_at": now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reopen order")
		}
		order.Status = enums.OrderStatusPending
		order.FailedAt = nil
		order.Items = items

		return s.emit(ctx, tx, enums.EventOrderPaymentRetried, enums.AggregateOrder, order.ID,
			&outbox.ActorRef{UserID: userID, Role: enums.RoleCustomer.String()},
			payloads.OrderPaymentEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				Status:      order.Status,
			})
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order payment retry opened")
	return order, nil
}

// ExpireStalePending fails gateway orders whose payment never arrived within
// the pending TTL. Each order is handled in its own transaction.
func (s *Service) ExpireStalePending(ctx context.Context) (int, error) {
	ttl := s.cfg.PendingOrderTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	cutoff := s.now().UTC().Add(-ttl)
	ids, err := s.repo.ListStalePending(ctx, cutoff, staleBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale pending orders")
	}

	var errs error
	expired := 0
	for _, id := range ids {
		_, changed, err := s.MarkPaymentFailed(ctx, PaymentFailedInput{OrderID: id, Reason: "payment not completed in time"})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", id, err))
			continue
		}
		if changed {
			expired++
		}
	}
	return expired, errs
}

func (s *Service) retryWindow() time.Duration {
	if s.cfg.PaymentRetryWindow > 0 {
		return s.cfg.PaymentRetryWindow
	}
	return 7 * 24 * time.Hour
}

func lockTarget(ctx context.Context, repo Repository, orderID uuid.UUID, gatewayOrderID string) (*models.Order, error) {
	var (
		order *models.Order
		err   error
	)
	if orderID != uuid.Nil {
		order, err = repo.LockOrder(ctx, orderID)
	} else {
		order, err = repo.LockOrderByGatewayID(ctx, gatewayOrderID)
	}
	if err != nil {
		return nil, notFoundOr(err, "order not found", "lock order")
	}
	return order, nil
}
