package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox/payloads"
)

const overdueBatchSize = 200

// ExtendDelayedDeliveries pushes the expected delivery date of overdue open
// orders out by the configured extension and clears delay_notified so the
// customer hears about the new date. It returns how many orders moved.
func (s *Service) ExtendDelayedDeliveries(ctx context.Context, today time.Time) (int, error) {
	today = civilDate(today)
	ids, err := s.repo.ListOverdue(ctx, today, overdueBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list overdue orders")
	}
	days := s.cfg.DelayExtensionDays
	if days <= 0 {
		days = 3
	}
	next := today.AddDate(0, 0, days)

	var errs error
	extended := 0
	for _, id := range ids {
		moved := false
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			order, err := repo.LockOrder(ctx, id)
			if err != nil {
				return notFoundOr(err, "order not found", "lock order")
			}
			switch order.Status {
			case enums.OrderStatusPlaced, enums.OrderStatusConfirmed, enums.OrderStatusShipped:
			default:
				return nil
			}
			if order.ExpectedDeliveryDate == nil || !civilDate(*order.ExpectedDeliveryDate).Before(today) {
				return nil
			}
			previous := civilDate(*order.ExpectedDeliveryDate)
			if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
				"expected_delivery_date": next,
				"delay_notified":         false,
				"updated_at":             s.now().UTC(),
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "extend delivery date")
			}
			moved = true
			return s.emit(ctx, tx, enums.EventOrderDeliveryExtended, enums.AggregateOrder, order.ID, outbox.System(),
				payloads.OrderDeliveryExtendedEvent{
					OrderID:              order.ID,
					PreviousDeliveryDate: previous,
					ExpectedDeliveryDate: next,
				})
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("extend order %s: %w", id, err))
			continue
		}
		if moved {
			extended++
		}
	}

	if extended > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"extended":      extended,
			"expected_date": next.Format("2006-01-02"),
		}), "delayed deliveries extended")
	}
	return extended, errs
}

// MarkDelayNotified records that the customer was told about the current
// expected delivery date.
func (s *Service) MarkDelayNotified(ctx context.Context, orderID uuid.UUID) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if err := s.repo.UpdateOrder(ctx, orderID, map[string]any{
		"delay_notified": true,
		"updated_at":     s.now().UTC(),
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark delay notified")
	}
	return nil
}
