package squarewebhook

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/shopcore-backend/internal/orders"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
)

type paymentSettler interface {
	MarkPaid(ctx context.Context, input orders.MarkPaidInput) (*orders.MarkPaidResult, error)
	MarkPaymentFailed(ctx context.Context, input orders.PaymentFailedInput) (*models.Order, bool, error)
}

type ServiceParams struct {
	Orders paymentSettler
	Logger *logger.Logger
}

// Service settles orders from Square payment events.
type Service struct {
	orders paymentSettler
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{orders: params.Orders, logg: params.Logger}, nil
}

type Event struct {
	EventID string    `json:"event_id"`
	Type    string    `json:"type"`
	Data    EventData `json:"data"`
}

type EventData struct {
	Type   string      `json:"type"`
	ID     string      `json:"id"`
	Object EventObject `json:"object"`
}

type EventObject struct {
	Payment *Payment `json:"payment"`
}

// Payment is the subset of a Square payment the settlement flow reads.
// ReferenceID carries our order number.
type Payment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ReferenceID string `json:"reference_id"`
	OrderID     string `json:"order_id"`
}

const (
	statusCompleted = "COMPLETED"
	statusFailed    = "FAILED"
	statusCanceled  = "CANCELED"
)

// HandleEvent applies a payment event. Unrelated event types and
// intermediate payment statuses are acknowledged without effect.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}
	switch strings.ToLower(event.Type) {
	case "payment.created", "payment.updated":
	default:
		return nil
	}

	payment := event.Data.Object.Payment
	if payment == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
	}
	reference := strings.TrimSpace(payment.ReferenceID)
	if reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment reference id missing")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_number": reference,
		"payment_id":   payment.ID,
		"status":       payment.Status,
	})

	var err error
	switch status := strings.ToUpper(strings.TrimSpace(payment.Status)); status {
	case statusCompleted:
		var res *orders.MarkPaidResult
		res, err = s.orders.MarkPaid(ctx, orders.MarkPaidInput{
			GatewayOrderID:   reference,
			GatewayPaymentID: payment.ID,
		})
		if err == nil && res != nil && res.Refund != nil {
			s.logg.Warn(ctx, "square payment landed on a failed order and was refunded")
		}
	case statusFailed, statusCanceled:
		_, _, err = s.orders.MarkPaymentFailed(ctx, orders.PaymentFailedInput{
			GatewayOrderID: reference,
			Reason:         fmt.Sprintf("square payment %s", strings.ToLower(status)),
		})
	default:
		return nil
	}

	// Square redelivers until it gets a 2xx, so outcomes that can never
	// succeed are acknowledged and logged instead of retried.
	if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) || pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		s.logg.Warn(ctx, "square payment event ignored: "+err.Error())
		return nil
	}
	return err
}
