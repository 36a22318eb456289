package refunds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/internal/wallet"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/metrics"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/shopcore-backend/pkg/square"
)

// Gateway refunds a settled payment. *square.Client implements it.
type Gateway interface {
	RefundPayment(ctx context.Context, params square.RefundParams) (*square.RefundResult, error)
}

type walletCreditor interface {
	CreditTx(ctx context.Context, tx *gorm.DB, input wallet.CreditInput) (*models.WalletTransaction, error)
}

// IssueInput identifies one item refund. IdempotencyKey defaults to
// ItemKey(Kind, Item.ID).
type IssueInput struct {
	Order          *models.Order
	Item           *models.OrderItem
	Kind           Kind
	Reason         string
	IdempotencyKey string
	Actor          *outbox.ActorRef
}

// ShippingInput refunds the shipping share after items close.
type ShippingInput struct {
	Order *models.Order
	Items []models.OrderItem
	Actor *outbox.ActorRef
}

// Outcome reports what a refund call did. Skipped is set when nothing moved,
// either because the key was already used or because nothing is owed.
// LateSettlementInput returns a whole payment that arrived for an order which
// could not be placed any more. Order.GatewayPaymentID should name the payment.
type LateSettlementInput struct {
	Order *models.Order
	Actor *outbox.ActorRef
}

type Outcome struct {
	Method      enums.RefundMethod `json:"method,omitempty"`
	Status      enums.RefundStatus `json:"status,omitempty"`
	AmountCents int64              `json:"amount_cents"`
	RefundID    string             `json:"refund_id,omitempty"`
	Skipped     bool               `json:"skipped"`
}

type ServiceParams struct {
	Repo    Repository
	Wallet  walletCreditor
	Gateway Gateway
	Outbox  outbox.Emitter
	Logger  *logger.Logger
	Metrics *metrics.LedgerMetrics
}

// Service chooses the refund channel by payment method and records each
// refund once per idempotency key.
type Service struct {
	repo    Repository
	wallet  walletCreditor
	gateway Gateway
	outbox  outbox.Emitter
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("refund repository required")
	}
	if params.Wallet == nil {
		return nil, fmt.Errorf("wallet ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		repo:    params.Repo,
		wallet:  params.Wallet,
		gateway: params.Gateway,
		outbox:  params.Outbox,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// Issue refunds one item inside tx. Unpaid orders and repeated keys are no-ops.
func (s *Service) Issue(ctx context.Context, tx *gorm.DB, in IssueInput) (*Outcome, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for refund")
	}
	if in.Order == nil || in.Item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order and item are required")
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" {
		key = ItemKey(in.Kind, in.Item.ID)
	}
	if !in.Order.IsPaid() {
		return &Outcome{Skipped: true}, nil
	}

	repo := s.repo.WithTx(tx)
	if existing, err := repo.FindByKey(ctx, key); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check refund idempotency")
	} else if existing != nil {
		return outcomeFrom(existing), nil
	}

	amount := ComputeItemRefund(*in.Order, *in.Item)
	if amount <= 0 {
		return &Outcome{Skipped: true}, nil
	}
	itemID := in.Item.ID
	out, err := s.route(ctx, tx, routeInput{
		order:       in.Order,
		itemID:      &itemID,
		amount:      amount,
		key:         key,
		reason:      in.Reason,
		description: in.Item.ProductName,
	})
	if err != nil || out.Skipped {
		return out, err
	}

	now := time.Now().UTC()
	fields := map[string]any{
		"refund_status":          out.Status,
		"refund_cents":           amount,
		"refund_method":          out.Method,
		"refund_idempotency_key": key,
		"updated_at":             now,
	}
	if out.RefundID != "" {
		fields["refund_id"] = out.RefundID
	}
	if out.Status == enums.RefundStatusCompleted {
		fields["refund_processed_at"] = now
	}
	if err := repo.UpdateItemRefund(ctx, itemID, fields); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update item refund")
	}
	if err := s.record(ctx, tx, in.Order.ID, &itemID, enums.RefundTypeItem, key, out, in.Actor); err != nil {
		return nil, err
	}
	return out, nil
}

// IssueShipping refunds the shipping share not yet refunded. The partial key
// is used at most once; the full key settles the remainder when every item
// has closed.
func (s *Service) IssueShipping(ctx context.Context, tx *gorm.DB, in ShippingInput) (*Outcome, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for refund")
	}
	if in.Order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	if !Refundable(*in.Order) {
		return &Outcome{Skipped: true}, nil
	}
	target, full := ComputeShippingRefund(*in.Order, in.Items)
	if target <= 0 {
		return &Outcome{Skipped: true}, nil
	}

	repo := s.repo.WithTx(tx)
	key := ShippingKey(in.Order.ID, full)
	if existing, err := repo.FindByKey(ctx, key); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check refund idempotency")
	} else if existing != nil {
		return outcomeFrom(existing), nil
	}
	already, err := repo.SumShipping(ctx, in.Order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum shipping refunds")
	}
	amount := target - already
	if amount <= 0 {
		return &Outcome{Skipped: true}, nil
	}

	out, err := s.route(ctx, tx, routeInput{
		order:       in.Order,
		amount:      amount,
		key:         key,
		reason:      "Shipping refund",
		description: "Shipping",
	})
	if err != nil || out.Skipped {
		return out, err
	}
	if err := s.record(ctx, tx, in.Order.ID, nil, enums.RefundTypeShipping, key, out, in.Actor); err != nil {
		return nil, err
	}
	return out, nil
}

// IssueLateSettlement refunds the full order total. The payment is refunded
// through the gateway when possible and credited to the wallet otherwise.
// Repeating the call for the same payment is a no-op.
func (s *Service) IssueLateSettlement(ctx context.Context, tx *gorm.DB, in LateSettlementInput) (*Outcome, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for refund")
	}
	if in.Order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	if in.Order.TotalCents <= 0 {
		return &Outcome{Skipped: true}, nil
	}
	paymentID := ""
	if in.Order.GatewayPaymentID != nil {
		paymentID = strings.TrimSpace(*in.Order.GatewayPaymentID)
	}
	key := LateSettlementKey(in.Order.ID, paymentID)

	repo := s.repo.WithTx(tx)
	if existing, err := repo.FindByKey(ctx, key); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check refund idempotency")
	} else if existing != nil {
		return outcomeFrom(existing), nil
	}

	out, err := s.route(ctx, tx, routeInput{
		order:       in.Order,
		amount:      in.Order.TotalCents,
		key:         key,
		reason:      "Payment received after order expired",
		description: "Late payment",
	})
	if err != nil || out.Skipped {
		return out, err
	}
	if err := s.record(ctx, tx, in.Order.ID, nil, enums.RefundTypeOrder, key, out, in.Actor); err != nil {
		return nil, err
	}
	return out, nil
}

// ListForOrder returns the refund audit rows of an order.
func (s *Service) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error) {
	rows, err := s.repo.ListForOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list refunds")
	}
	return rows, nil
}

type routeInput struct {
	order       *models.Order
	itemID      *uuid.UUID
	amount      int64
	key         string
	reason      string
	description string
}

func (s *Service) route(ctx context.Context, tx *gorm.DB, in routeInput) (*Outcome, error) {
	order := in.order
	switch order.PaymentMethod {
	case enums.PaymentMethodGateway:
		paymentID := ""
		if order.GatewayPaymentID != nil {
			paymentID = strings.TrimSpace(*order.GatewayPaymentID)
		}
		if s.gateway == nil || paymentID == "" {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"order_id":        order.ID.String(),
				"idempotency_key": in.key,
			}), "no gateway payment to refund; crediting wallet")
			return s.toWallet(ctx, tx, in, enums.RefundMethodWallet, "Refund")
		}
		res, err := s.gateway.RefundPayment(ctx, square.RefundParams{
			PaymentID:      paymentID,
			AmountCents:    in.amount,
			Reason:         in.reason,
			IdempotencyKey: in.key,
		})
		if err != nil {
			s.logg.Error(s.logg.WithFields(ctx, map[string]any{
				"order_id":        order.ID.String(),
				"idempotency_key": in.key,
			}), "gateway refund failed; crediting wallet", err)
			return s.toWallet(ctx, tx, in, enums.RefundMethodWallet, "Refund")
		}
		return &Outcome{
			Method:      enums.RefundMethodGateway,
			Status:      enums.RefundStatusProcessing,
			AmountCents: in.amount,
			RefundID:    res.RefundID,
		}, nil
	case enums.PaymentMethodCOD:
		return s.toWallet(ctx, tx, in, enums.RefundMethodStoreCredit, "Store credit")
	default:
		return s.toWallet(ctx, tx, in, enums.RefundMethodWallet, "Refund")
	}
}

func (s *Service) toWallet(ctx context.Context, tx *gorm.DB, in routeInput, method enums.RefundMethod, label string) (*Outcome, error) {
	meta := map[string]any{"idempotency_key": in.key}
	if in.itemID != nil {
		meta["order_item_id"] = in.itemID.String()
	}
	txn, err := s.wallet.CreditTx(ctx, tx, wallet.CreditInput{
		UserID:         in.order.UserID,
		AmountCents:    in.amount,
		Description:    fmt.Sprintf("%s: %s (Order %s)", label, in.description, in.order.OrderNumber),
		Reference:      in.order.ID.String(),
		IdempotencyKey: in.key,
		Meta:           meta,
	})
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return &Outcome{Skipped: true}, nil
	}
	return &Outcome{
		Method:      method,
		Status:      enums.RefundStatusCompleted,
		AmountCents: in.amount,
		RefundID:    txn.TransactionRef,
	}, nil
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, itemID *uuid.UUID, kind enums.RefundType, key string, out *Outcome, actor *outbox.ActorRef) error {
	row := &models.Refund{
		OrderID:        orderID,
		OrderItemID:    itemID,
		RefundType:     kind,
		Method:         out.Method,
		AmountCents:    out.AmountCents,
		Status:         out.Status,
		IdempotencyKey: key,
	}
	if out.RefundID != "" {
		id := out.RefundID
		row.GatewayRefundID = &id
	}
	if err := s.repo.WithTx(tx).Create(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
	}

	if actor == nil {
		actor = outbox.System()
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRefundIssued,
		AggregateType: enums.AggregateRefund,
		AggregateID:   row.ID,
		Actor:         actor,
		Data: payloads.RefundIssuedEvent{
			RefundID:       row.ID,
			OrderID:        orderID,
			OrderItemID:    itemID,
			RefundType:     kind,
			Method:         out.Method,
			Status:         out.Status,
			AmountCents:    out.AmountCents,
			IdempotencyKey: key,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit refund_issued")
	}

	s.metrics.Refund(out.Method.String(), out.AmountCents)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":        orderID.String(),
		"method":          out.Method.String(),
		"amount_cents":    out.AmountCents,
		"idempotency_key": key,
	}), "refund issued")
	return nil
}

func outcomeFrom(row *models.Refund) *Outcome {
	out := &Outcome{
		Method:      row.Method,
		Status:      row.Status,
		AmountCents: row.AmountCents,
		Skipped:     true,
	}
	if row.GatewayRefundID != nil {
		out.RefundID = *row.GatewayRefundID
	}
	return out
}
