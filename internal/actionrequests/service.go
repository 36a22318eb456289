package actionrequests

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/internal/notifications"
	"github.com/angelmondragon/shopcore-backend/internal/orders"
	"github.com/angelmondragon/shopcore-backend/internal/refunds"
	"github.com/angelmondragon/shopcore-backend/pkg/config"
	"github.com/angelmondragon/shopcore-backend/pkg/db"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/money"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox/payloads"
)

const (
	pendingIndex         = "ux_action_requests_pending"
	defaultNotifyTimeout = 5 * time.Second
)

type txRunner interface {
	WithRetryTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type itemCloser interface {
	CloseItem(ctx context.Context, tx *gorm.DB, input orders.CloseItemInput) (*orders.CloseItemResult, error)
}

// ServiceParams wires the request workflow.
type ServiceParams struct {
	Repo        Repository
	Tx          txRunner
	Orders      itemCloser
	Outbox      outbox.Emitter
	Notifier    notifications.Notifier
	Logger      *logger.Logger
	Fulfillment config.FulfillmentConfig
	Now         func() time.Time
}

// Service turns customer cancel and return asks into immediate closes or
// pending requests, and applies staff decisions.
type Service struct {
	repo     Repository
	tx       txRunner
	orders   itemCloser
	outbox   outbox.Emitter
	notifier notifications.Notifier
	logg     *logger.Logger
	cfg      config.FulfillmentConfig
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("action request repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:     params.Repo,
		tx:       params.Tx,
		orders:   params.Orders,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		logg:     params.Logger,
		cfg:      params.Fulfillment,
		now:      now,
	}, nil
}

// RequestCancel cancels an item that has not shipped yet, or opens a pending
// request for staff when it already has.
func (s *Service) RequestCancel(ctx context.Context, input RequestCancelInput) (*Outcome, error) {
	if input.ItemID == uuid.Nil || input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id and user id are required")
	}
	if !input.Reason.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Please select a cancellation reason.")
	}
	note := strings.TrimSpace(input.Note)

	var (
		outcome *Outcome
		notice  *notifications.StaffNotice
	)
	err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		outcome, notice = nil, nil
		repo := s.repo.WithTx(tx)
		order, item, err := s.loadOwned(ctx, repo, input.OrderID, input.ItemID, input.UserID)
		if err != nil {
			return err
		}

		switch item.Status {
		case enums.OrderItemStatusPlaced, enums.OrderItemStatusConfirmed:
			reason := input.Reason
			res, err := s.orders.CloseItem(ctx, tx, orders.CloseItemInput{
				OrderID:            order.ID,
				ItemID:             item.ID,
				Status:             enums.OrderItemStatusCancelled,
				RefundKind:         refunds.KindCancel,
				CancellationReason: &reason,
				Note:               note,
				Actor:              customer(input.UserID),
			})
			if err != nil {
				return err
			}
			outcome = &Outcome{
				Immediate: true,
				Order:     res.Order,
				Item:      res.Item,
				Refund:    res.Refund,
				Message:   cancelledText(res.Refund),
			}
			return nil
		case enums.OrderItemStatusShipped:
			req, err := s.open(ctx, tx, repo, order, item, enums.ActionRequestCancel, string(input.Reason), note, input.UserID)
			if err != nil {
				return err
			}
			notice = staffNotice(req, order, item)
			outcome = &Outcome{
				Request: req,
				Order:   order,
				Item:    item,
				Message: "Cancellation request sent. Awaiting approval.",
			}
			return nil
		case enums.OrderItemStatusDelivered:
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "Item already delivered. Request a return instead.")
		default:
			return pkgerrors.New(pkgerrors.CodeInvalidTransition,
				fmt.Sprintf("Item is %s and cannot be cancelled", strings.ToLower(string(item.Status))))
		}
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithItemID(s.logg.WithOrderID(ctx, outcome.Item.OrderID.String()), outcome.Item.ID.String())
	if outcome.Immediate {
		s.logg.Info(logCtx, "order item cancelled by customer")
	} else {
		s.logg.Info(s.logg.WithField(logCtx, "request_id", outcome.Request.ID.String()), "cancel request opened")
		s.notifyStaff(ctx, *notice)
	}
	return outcome, nil
}

// RequestReturn opens a pending return request for a delivered item inside
// its return window.
func (s *Service) RequestReturn(ctx context.Context, input RequestReturnInput) (*Outcome, error) {
	if input.ItemID == uuid.Nil || input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id and user id are required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Please provide a valid reason.")
	}

	var (
		outcome *Outcome
		notice  *notifications.StaffNotice
	)
	err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		outcome, notice = nil, nil
		repo := s.repo.WithTx(tx)
		order, item, err := s.loadOwned(ctx, repo, input.OrderID, input.ItemID, input.UserID)
		if err != nil {
			return err
		}
		if item.Status != enums.OrderItemStatusDelivered {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "Item must be delivered before it can be returned")
		}
		check := ReturnEligibility(*item, s.now(), s.cfg.ReturnWindowDays)
		if !check.Eligible {
			return pkgerrors.New(pkgerrors.CodeValidation, check.Message)
		}

		req, err := s.open(ctx, tx, repo, order, item, enums.ActionRequestReturn, reason, "", input.UserID)
		if err != nil {
			return err
		}
		notice = staffNotice(req, order, item)
		days := check.DaysLeft
		outcome = &Outcome{
			Request:  req,
			Order:    order,
			Item:     item,
			DaysLeft: &days,
			Message:  "Return request sent. " + check.Message + ".",
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, outcome.Item.OrderID.String()), map[string]any{
		"item_id":    outcome.Item.ID.String(),
		"request_id": outcome.Request.ID.String(),
		"days_left":  *outcome.DaysLeft,
	}), "return request opened")
	s.notifyStaff(ctx, *notice)
	return outcome, nil
}

// CancelOrder cancels every open item of an order, provided none of them has
// shipped. Items already closed are left alone.
func (s *Service) CancelOrder(ctx context.Context, input CancelOrderInput) (*CancelOrderResult, error) {
	if input.OrderID == uuid.Nil || input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and user id are required")
	}
	if !input.Reason.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Please select a cancellation reason.")
	}
	note := strings.TrimSpace(input.Note)

	var result *CancelOrderResult
	err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		result = nil
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrder(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err, "order not found", "load order")
		}
		if order.UserID != input.UserID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		items, err := repo.ListItems(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
		}

		var open []models.OrderItem
		for _, item := range items {
			switch item.Status {
			case enums.OrderItemStatusPlaced, enums.OrderItemStatusConfirmed:
				open = append(open, item)
			case enums.OrderItemStatusCancelled, enums.OrderItemStatusReturned:
			default:
				return pkgerrors.New(pkgerrors.CodeInvalidTransition,
					"Some items are already shipped. Request cancellation for those items instead.")
			}
		}
		if len(open) == 0 {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "No items left to cancel")
		}

		result = &CancelOrderResult{}
		actor := customer(input.UserID)
		for _, item := range open {
			reason := input.Reason
			res, err := s.orders.CloseItem(ctx, tx, orders.CloseItemInput{
				OrderID:            order.ID,
				ItemID:             item.ID,
				Status:             enums.OrderItemStatusCancelled,
				RefundKind:         refunds.KindCancel,
				CancellationReason: &reason,
				Note:               note,
				Actor:              actor,
			})
			if err != nil {
				return err
			}
			result.Order = res.Order
			result.Items = append(result.Items, *res.Item)
			if res.Refund != nil {
				result.RefundCents += res.Refund.AmountCents
			}
			if res.Shipping != nil {
				result.RefundCents += res.Shipping.AmountCents
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Message = "Order cancelled successfully."
	if result.RefundCents > 0 {
		result.Message = fmt.Sprintf("Order cancelled. %s refunded.", money.Format(result.RefundCents))
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, input.OrderID.String()), map[string]any{
		"items":        len(result.Items),
		"refund_cents": result.RefundCents,
	}), "order cancelled by customer")
	return result, nil
}

// CheckReturn reports whether an item owned by the user can still be
// returned, and how many days remain.
func (s *Service) CheckReturn(ctx context.Context, itemID, userID uuid.UUID) (*Eligibility, error) {
	_, item, err := s.loadOwned(ctx, s.repo, uuid.Nil, itemID, userID)
	if err != nil {
		return nil, err
	}
	check := ReturnEligibility(*item, s.now(), s.cfg.ReturnWindowDays)
	if check.Eligible {
		pending, err := s.repo.FindPending(ctx, item.ID, enums.ActionRequestReturn)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending return")
		}
		if pending != nil {
			check = Eligibility{Message: "Return request already pending"}
		}
	}
	return &check, nil
}

func (s *Service) loadOwned(ctx context.Context, repo Repository, orderID, itemID, userID uuid.UUID) (*models.Order, *models.OrderItem, error) {
	item, err := repo.FindItem(ctx, itemID)
	if err != nil {
		return nil, nil, notFoundOr(err, "order item not found", "load order item")
	}
	if orderID != uuid.Nil && item.OrderID != orderID {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
	}
	order, err := repo.FindOrder(ctx, item.OrderID)
	if err != nil {
		return nil, nil, notFoundOr(err, "order not found", "load order")
	}
	if order.UserID != userID {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
	}
	return order, item, nil
}

// open records a PENDING request. At most one pending request per item and
// kind can exist; the partial unique index settles concurrent attempts.
func (s *Service) open(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, item *models.OrderItem, kind enums.ActionRequestKind, reason, note string, userID uuid.UUID) (*models.ActionRequest, error) {
	existing, err := repo.FindPending(ctx, item.ID, kind)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending request")
	}
	if existing != nil {
		return nil, duplicate(kind)
	}

	req := &models.ActionRequest{
		ID:          uuid.New(),
		OrderID:     order.ID,
		OrderItemID: item.ID,
		Kind:        kind,
		Reason:      reason,
		Note:        note,
		State:       enums.ActionRequestPending,
		RequestedBy: userID,
		CreatedAt:   s.now().UTC(),
	}
	if err := repo.Create(ctx, req); err != nil {
		if db.IsUniqueViolation(err, pendingIndex) || db.IsUniqueViolation(err, "action_requests.") {
			return nil, duplicate(kind)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create action request")
	}

	if err := s.emit(ctx, tx, enums.EventActionRequestCreated, req, customer(userID)); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, req *models.ActionRequest, actor *outbox.ActorRef) error {
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateActionRequest,
		AggregateID:   req.ID,
		Actor:         actor,
		Data: payloads.ActionRequestEvent{
			RequestID:   req.ID,
			OrderID:     req.OrderID,
			OrderItemID: req.OrderItemID,
			Kind:        req.Kind,
			State:       req.State,
			Reason:      req.Reason,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit "+string(eventType))
	}
	return nil
}

// notifyStaff runs after commit and never blocks the caller. Failures are
// logged; the request stays visible in the pending queue either way.
func (s *Service) notifyStaff(ctx context.Context, notice notifications.StaffNotice) {
	if s.notifier == nil {
		return
	}
	timeout := s.cfg.ApprovalNotifyTimeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	go func() {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := s.notifier.NotifyStaff(nctx, notice); err != nil {
			s.logg.Error(s.logg.WithField(nctx, "request_id", notice.RequestID.String()), "staff notification failed", err)
		}
	}()
}

func staffNotice(req *models.ActionRequest, order *models.Order, item *models.OrderItem) *notifications.StaffNotice {
	reason := req.Reason
	if req.Note != "" {
		reason = reason + ": " + req.Note
	}
	return &notifications.StaffNotice{
		RequestID:   req.ID,
		Kind:        req.Kind,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		OrderItemID: item.ID,
		ProductName: item.ProductName,
		Reason:      reason,
		RequestedBy: req.RequestedBy,
		RequestedAt: req.CreatedAt,
	}
}

func cancelledText(refund *refunds.Outcome) string {
	if refund == nil || refund.Skipped || refund.AmountCents <= 0 {
		return "Item cancelled successfully."
	}
	return fmt.Sprintf("Item cancelled. %s refunded.", money.Format(refund.AmountCents))
}

func duplicate(kind enums.ActionRequestKind) error {
	if kind == enums.ActionRequestReturn {
		return pkgerrors.New(pkgerrors.CodeDuplicateRequest, "Return already requested and is pending.")
	}
	return pkgerrors.New(pkgerrors.CodeDuplicateRequest, "Cancellation already requested and is pending.")
}

func customer(userID uuid.UUID) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: userID, Role: enums.RoleCustomer.String()}
}

func notFoundOr(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
