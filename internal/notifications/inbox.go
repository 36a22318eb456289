package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/money"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

// Inbox reads and acknowledges a customer's notifications.
type Inbox struct {
	repo InboxRepository
	now  func() time.Time
}

func NewInbox(repo InboxRepository) (*Inbox, error) {
	if repo == nil {
		return nil, fmt.Errorf("inbox repository required")
	}
	return &Inbox{repo: repo, now: time.Now}, nil
}

func (i *Inbox) List(ctx context.Context, userID uuid.UUID, params ListParams) ([]models.Notification, string, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := i.repo.ListForUser(ctx, userID, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	return rows, next, nil
}

func (i *Inbox) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	found, err := i.repo.MarkRead(ctx, userID, id, i.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (i *Inbox) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := i.repo.MarkAllRead(ctx, userID, i.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return n, nil
}

// draft is a notification before its owner is known.
type draft struct {
	orderID uuid.UUID
	kind    enums.NotificationType
	title   string
	message string
}

// compose turns one domain event into customer copy. ok is false for events
// customers do not hear about.
func compose(eventType enums.OutboxEventType, data json.RawMessage) (draft, bool, error) {
	switch eventType {
	case enums.EventOrderPaid:
		var p payloads.OrderPaidEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return draft{}, false, err
		}
		return draft{
			orderID: p.OrderID,
			kind:    enums.NotificationTypePayment,
			title:   "Payment received",
			message: fmt.Sprintf("We received %s for order %s.", money.Format(p.TotalCents), p.OrderNumber),
		}, true, nil

	case enums.EventOrderPaymentFailed:
		var p payloads.OrderPaymentEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return draft{}, false, err
		}
		return draft{
			orderID: p.OrderID,
			kind:    enums.NotificationTypePayment,
			title:   "Payment failed",
			message: fmt.Sprintf("Payment for order %s did not go through. You can retry from your orders page.", p.OrderNumber),
		}, true, nil

	case enums.EventOrderStatusChanged:
		var p payloads.OrderStatusChangedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return draft{}, false, err
		}
		switch p.NewStatus {
		case enums.OrderStatusShipped:
			return draft{orderID: p.OrderID, kind: enums.NotificationTypeOrder, title: "Order shipped", message: "Your order is on its way."}, true, nil
		case enums.OrderStatusDelivered:
			return draft{orderID: p.OrderID, kind: enums.NotificationTypeOrder, title: "Order delivered", message: "Your order has been delivered."}, true, nil
		}
		return draft{}, false, nil

	case enums.EventOrderItemCancelled, enums.EventOrderItemReturned:
		var p payloads.OrderItemClosedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return draft{}, false, err
		}
		verb := "cancelled"
		if p.Status == enums.OrderItemStatusReturned {
			verb = "returned"
		}
		msg := fmt.Sprintf("%d unit(s) of an item in your order were %s.", p.Quantity, verb)
		if p.RefundCents > 0 {
			msg += fmt.Sprintf(" A refund of %s is on its way.", money.Format(p.RefundCents))
		}
		return draft{orderID: p.OrderID, kind: enums.NotificationTypeOrder, title: "Item " + verb, message: msg}, true, nil

	case enums.EventActionRequestDecided:
		var p payloads.ActionRequestEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return draft{}, false, err
		}
		kind := "cancellation"
		if p.Kind == enums.ActionRequestReturn {
			kind = "return"
		}
		outcome := "approved"
		if p.State == enums.ActionRequestRejected {
			outcome = "rejected"
		}
		msg := fmt.Sprintf("Your %s request was %s.", kind, outcome)
		if reason := strings.TrimSpace(p.Reason); reason != "" && p.State == enums.ActionRequestRejected {
			msg += " Reason: " + reason
		}
		title := strings.ToUpper(kind[:1]) + kind[1:] + " request " + outcome
		return draft{orderID: p.OrderID, kind: enums.NotificationTypeRequest, title: title, message: msg}, true, nil

	case enums.EventRefundIssued:
		var p payloads.RefundIssuedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return draft{}, false, err
		}
		if p.AmountCents <= 0 {
			return draft{}, false, nil
		}
		return draft{
			orderID: p.OrderID,
			kind:    enums.NotificationTypeRefund,
			title:   "Refund issued",
			message: fmt.Sprintf("%s has been refunded to your %s.", money.Format(p.AmountCents), refundDestination(p.Method)),
		}, true, nil

	case enums.EventOrderDeliveryExtended:
		var p payloads.OrderDeliveryExtendedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return draft{}, false, err
		}
		return draft{
			orderID: p.OrderID,
			kind:    enums.NotificationTypeDelivery,
			title:   "Delivery delayed",
			message: fmt.Sprintf("Your order is running late. New expected delivery: %s.", p.ExpectedDeliveryDate.Format("2 Jan 2006")),
		}, true, nil
	}
	return draft{}, false, nil
}

func refundDestination(method enums.RefundMethod) string {
	switch method {
	case enums.RefundMethodGateway:
		return "original payment method"
	case enums.RefundMethodStoreCredit:
		return "store credit"
	default:
		return "wallet"
	}
}
