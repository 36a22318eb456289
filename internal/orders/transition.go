package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/internal/refunds"
	"github.com/angelmondragon/shopcore-backend/internal/stock"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox/payloads"
)

// Transition applies a staff action to the whole order. Items that are
// already CANCELLED or RETURNED are never touched.
func (s *Service) Transition(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Action.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown action %q", input.Action))
	}
	actor := &outbox.ActorRef{UserID: input.ActorID, Role: enums.RoleStaff.String()}

	var result *TransitionResult
	err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockOrder(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err, "order not found", "lock order")
		}
		items, err := repo.ListItems(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
		}

		if order.Status == enums.OrderStatusPending || order.Status == enums.OrderStatusFailed {
			return s.reject(input.Action, "order is awaiting payment")
		}
		cancel := input.Action == enums.OrderActionCancelled
		var updatable []int
		for i := range items {
			if IsClosed(items[i].Status) {
				continue
			}
			if cancel && items[i].Status == enums.OrderItemStatusDelivered {
				continue
			}
			updatable = append(updatable, i)
		}
		if len(updatable) == 0 {
			return s.reject(input.Action, "order has no updatable items")
		}
		if !ActionAllowed(*order, input.Action) {
			return s.reject(input.Action, fmt.Sprintf("%s is not allowed for an order that is %s", input.Action, order.Status))
		}

		now := s.now().UTC()
		res := &TransitionResult{
			Previous:     order.Status,
			Action:       input.Action,
			UpdatedItems: len(updatable),
			FrozenItems:  len(items) - len(updatable),
		}

		if cancel {
			targets := make([]models.OrderItem, 0, len(updatable))
			for _, idx := range updatable {
				targets = append(targets, items[idx])
			}
			actorID := input.ActorID
			reason := fmt.Sprintf("Admin cancelled order: %s", order.OrderNumber)
			if _, err := s.stock.ReleaseLines(ctx, tx, movementLines(targets, &actorID, reason)); err != nil {
				return err
			}
		}

		status := itemStatusFor(input.Action)
		for _, idx := range updatable {
			item := &items[idx]
			updates := stampItem(item, input.Action, now)
			updates["status"] = status
			updates["updated_at"] = now
			if cancel {
				updates["cancellation_note"] = "Cancelled by staff"
				item.CancellationNote = "Cancelled by staff"
			}
			if err := repo.UpdateItem(ctx, item.ID, updates); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order item")
			}
			item.Status = status
		}

		if cancel && refunds.Refundable(*order) {
			for _, idx := range updatable {
				out, err := s.refunds.Issue(ctx, tx, refunds.IssueInput{
					Order:  order,
					Item:   &items[idx],
					Kind:   refunds.KindAdminCancel,
					Reason: "Order cancelled by staff",
					Actor:  actor,
				})
				if err != nil {
					return err
				}
				if !out.Skipped {
					res.Refunds = append(res.Refunds, *out)
				}
			}
			ship, err := s.refunds.IssueShipping(ctx, tx, refunds.ShippingInput{Order: order, Items: items, Actor: actor})
			if err != nil {
				return err
			}
			if !ship.Skipped {
				res.Refunds = append(res.Refunds, *ship)
			}
		}
		if cancel {
			for _, idx := range updatable {
				if err := s.emit(ctx, tx, enums.EventOrderItemCancelled, enums.AggregateOrderItem, items[idx].ID, actor,
					payloads.OrderItemClosedEvent{
						OrderID:     order.ID,
						OrderItemID: items[idx].ID,
						Status:      enums.OrderItemStatusCancelled,
						Quantity:    items[idx].Quantity,
						Reason:      "Cancelled by staff",
					}); err != nil {
					return err
				}
			}
		}

		updates := stampOrder(order, input.Action, now)
		if input.Action == enums.OrderActionDelivered && order.PaymentMethod == enums.PaymentMethodCOD && order.PaidAt == nil {
			// cash is collected on delivery
			updates["paid_at"] = now
			order.PaidAt = &now
		}
		order.Status = RecomputeStatus(items)
		updates["status"] = order.Status
		updates["updated_at"] = now
		if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
		}

		if err := s.emit(ctx, tx, enums.EventOrderStatusChanged, enums.AggregateOrder, order.ID, actor,
			payloads.OrderStatusChangedEvent{
				OrderID:   order.ID,
				Action:    input.Action.String(),
				OldStatus: res.Previous,
				NewStatus: order.Status,
			}); err != nil {
			return err
		}

		fresh, err := repo.ListItems(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order items")
		}
		order.Items = fresh
		res.Order = order
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, input.OrderID.String()), map[string]any{
		"action":     input.Action,
		"old_status": result.Previous,
		"new_status": result.Order.Status,
		"updated":    result.UpdatedItems,
		"frozen":     result.FrozenItems,
		"refunds":    len(result.Refunds),
	}), "order transitioned")
	return result, nil
}

// CloseItem cancels or returns a single item inside tx: stock goes back,
// the item is frozen, a refund is issued when the order is refundable and the
// order status is recomputed. Closing an item already in the target state
// changes nothing.
func (s *Service) CloseItem(ctx context.Context, tx *gorm.DB, input CloseItemInput) (*CloseItemResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required to close an item")
	}
	if input.Status != enums.OrderItemStatusCancelled && input.Status != enums.OrderItemStatusReturned {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "items can only be closed as CANCELLED or RETURNED")
	}
	repo := s.repo.WithTx(tx)

	order, err := repo.LockOrder(ctx, input.OrderID)
	if err != nil {
		return nil, notFoundOr(err, "order not found", "lock order")
	}
	items, err := repo.ListItems(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
	}
	idx := -1
	for i := range items {
		if items[i].ID == input.ItemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
	}
	item := &items[idx]
	res := &CloseItemResult{Order: order, Item: item}

	if item.Status == input.Status {
		order.Items = items
		return res, nil
	}
	if IsClosed(item.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("item is already %s", item.Status))
	}
	if order.Status == enums.OrderStatusPending || order.Status == enums.OrderStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "order is awaiting payment")
	}
	switch input.Status {
	case enums.OrderItemStatusCancelled:
		if item.Status == enums.OrderItemStatusDelivered {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "delivered items can only be returned")
		}
	case enums.OrderItemStatusReturned:
		if item.Status != enums.OrderItemStatusDelivered {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "only delivered items can be returned")
		}
	}

	now := s.now().UTC()
	var actorID *uuid.UUID
	if input.Actor != nil && input.Actor.UserID != uuid.Nil {
		id := input.Actor.UserID
		actorID = &id
	}
	verb := "cancelled"
	if input.Status == enums.OrderItemStatusReturned {
		verb = "returned"
	}
	itemID := item.ID
	if _, err := s.stock.Release(ctx, tx, stock.MovementInput{
		ProductID:   item.ProductID,
		VariantID:   item.VariantID,
		Qty:         item.Quantity,
		OrderItemID: &itemID,
		ActorID:     actorID,
		Reason:      fmt.Sprintf("Item %s: Order %s", verb, order.OrderNumber),
	}); err != nil {
		return nil, err
	}

	updates := map[string]any{"status": input.Status, "updated_at": now}
	if input.Status == enums.OrderItemStatusCancelled {
		updates["cancelled_at"] = now
		item.CancelledAt = &now
		if input.CancellationReason != nil {
			updates["cancellation_reason"] = *input.CancellationReason
			item.CancellationReason = input.CancellationReason
		}
		if note := strings.TrimSpace(input.Note); note != "" {
			updates["cancellation_note"] = note
			item.CancellationNote = note
		}
	} else {
		updates["returned_at"] = now
		item.ReturnedAt = &now
		if reason := strings.TrimSpace(input.ReturnReason); reason != "" {
			updates["return_reason"] = reason
			item.ReturnReason = reason
		}
	}
	if err := repo.UpdateItem(ctx, item.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close order item")
	}
	item.Status = input.Status
	res.Changed = true

	var refundCents int64
	if refunds.Refundable(*order) {
		out, err := s.refunds.Issue(ctx, tx, refunds.IssueInput{
			Order:  order,
			Item:   item,
			Kind:   input.RefundKind,
			Reason: firstNonEmpty(input.ReturnReason, input.Note, "Item "+verb),
			Actor:  input.Actor,
		})
		if err != nil {
			return nil, err
		}
		if !out.Skipped {
			res.Refund = out
			refundCents = out.AmountCents
		}
		ship, err := s.refunds.IssueShipping(ctx, tx, refunds.ShippingInput{Order: order, Items: items, Actor: input.Actor})
		if err != nil {
			return nil, err
		}
		if !ship.Skipped {
			res.Shipping = ship
		}
	}

	eventType := enums.EventOrderItemCancelled
	if input.Status == enums.OrderItemStatusReturned {
		eventType = enums.EventOrderItemReturned
	}
	if err := s.emit(ctx, tx, eventType, enums.AggregateOrderItem, item.ID, input.Actor,
		payloads.OrderItemClosedEvent{
			OrderID:     order.ID,
			OrderItemID: item.ID,
			Status:      input.Status,
			Quantity:    item.Quantity,
			Reason:      firstNonEmpty(input.ReturnReason, input.Note),
			RefundCents: refundCents,
		}); err != nil {
		return nil, err
	}

	if err := s.applyRecomputed(ctx, tx, repo, order, items, input.Actor, now); err != nil {
		return nil, err
	}

	fresh, err := repo.FindItem(ctx, item.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order item")
	}
	items[idx] = *fresh
	res.Item = &items[idx]
	order.Items = items
	return res, nil
}

// Recompute re-derives an order's status from its items inside tx and
// returns it. PENDING and FAILED orders keep their status.
func (s *Service) Recompute(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (enums.OrderStatus, error) {
	if tx == nil {
		return "", pkgerrors.New(pkgerrors.CodeInternal, "transaction required to recompute an order")
	}
	repo := s.repo.WithTx(tx)
	order, err := repo.LockOrder(ctx, orderID)
	if err != nil {
		return "", notFoundOr(err, "order not found", "lock order")
	}
	items, err := repo.ListItems(ctx, orderID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
	}
	if err := s.applyRecomputed(ctx, tx, repo, order, items, outbox.System(), s.now().UTC()); err != nil {
		return "", err
	}
	return order.Status, nil
}

func (s *Service) applyRecomputed(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, items []models.OrderItem, actor *outbox.ActorRef, now time.Time) error {
	if order.Status == enums.OrderStatusPending || order.Status == enums.OrderStatusFailed {
		return nil
	}
	next := RecomputeStatus(items)
	if next == order.Status {
		return nil
	}
	updates := map[string]any{"status": next, "updated_at": now}
	switch next {
	case enums.OrderStatusCancelled:
		if order.CancelledAt == nil {
			updates["cancelled_at"] = now
			order.CancelledAt = &now
		}
	case enums.OrderStatusDelivered:
		if order.DeliveredAt == nil {
			updates["delivered_at"] = now
			order.DeliveredAt = &now
		}
	}
	if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	previous := order.Status
	order.Status = next
	return s.emit(ctx, tx, enums.EventOrderStatusChanged, enums.AggregateOrder, order.ID, actor,
		payloads.OrderStatusChangedEvent{OrderID: order.ID, OldStatus: previous, NewStatus: next})
}

func (s *Service) reject(action enums.OrderAction, msg string) error {
	s.metrics.TransitionRejected(action.String())
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, msg)
}

// stampOrder forward-fills the order timestamps implied by action.
func stampOrder(order *models.Order, action enums.OrderAction, now time.Time) map[string]any {
	updates := map[string]any{}
	fill := func(column string, field **time.Time) {
		if *field == nil {
			updates[column] = now
			*field = &now
		}
	}
	switch action {
	case enums.OrderActionCancelled:
		fill("cancelled_at", &order.CancelledAt)
	case enums.OrderActionDelivered:
		fill("delivered_at", &order.DeliveredAt)
		fallthrough
	case enums.OrderActionShipped:
		fill("shipped_at", &order.ShippedAt)
		fallthrough
	case enums.OrderActionPacked:
		fill("packed_at", &order.PackedAt)
		fallthrough
	case enums.OrderActionProcessing:
		fill("processing_at", &order.ProcessingAt)
	}
	return updates
}

// stampItem is stampOrder for a single item.
func stampItem(item *models.OrderItem, action enums.OrderAction, now time.Time) map[string]any {
	updates := map[string]any{}
	fill := func(column string, field **time.Time) {
		if *field == nil {
			updates[column] = now
			*field = &now
		}
	}
	switch action {
	case enums.OrderActionCancelled:
		fill("cancelled_at", &item.CancelledAt)
	case enums.OrderActionDelivered:
		fill("delivered_at", &item.DeliveredAt)
		fallthrough
	case enums.OrderActionShipped:
		fill("shipped_at", &item.ShippedAt)
		fallthrough
	case enums.OrderActionPacked:
		fill("packed_at", &item.PackedAt)
		fallthrough
	case enums.OrderActionProcessing:
		fill("processing_at", &item.ProcessingAt)
		fill("placed_at", &item.PlacedAt)
	}
	return updates
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
