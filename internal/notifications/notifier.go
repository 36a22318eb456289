package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
)

// StaffNotice tells staff that a customer request is waiting for review.
type StaffNotice struct {
	RequestID   uuid.UUID               `json:"request_id"`
	Kind        enums.ActionRequestKind `json:"kind"`
	OrderID     uuid.UUID               `json:"order_id"`
	OrderNumber string                  `json:"order_number"`
	OrderItemID uuid.UUID               `json:"order_item_id"`
	ProductName string                  `json:"product_name"`
	Reason      string                  `json:"reason,omitempty"`
	RequestedBy uuid.UUID               `json:"requested_by"`
	RequestedAt time.Time               `json:"requested_at"`
}

// Subject is the one-line summary shown in staff inboxes.
func (n StaffNotice) Subject() string {
	kind := "Cancel"
	if n.Kind == enums.ActionRequestReturn {
		kind = "Return"
	}
	return fmt.Sprintf("%s request: %s", kind, n.OrderNumber)
}

// Body is the plain-text detail of the notice.
func (n StaffNotice) Body() string {
	reason := strings.TrimSpace(n.Reason)
	if reason == "" {
		reason = "N/A"
	}
	return fmt.Sprintf("Item %s %s requested by %s\nProduct: %s\nReason: %s",
		n.OrderItemID, strings.ToLower(string(n.Kind)), n.RequestedBy, n.ProductName, reason)
}

// Notifier delivers staff notices. Callers treat failures as best effort.
type Notifier interface {
	NotifyStaff(ctx context.Context, notice StaffNotice) error
}

// LogNotifier writes notices to the service log only.
type LogNotifier struct {
	logg *logger.Logger
}

func NewLogNotifier(logg *logger.Logger) *LogNotifier {
	return &LogNotifier{logg: logg}
}

func (n *LogNotifier) NotifyStaff(ctx context.Context, notice StaffNotice) error {
	if n == nil || n.logg == nil {
		return nil
	}
	n.logg.Info(n.logg.WithFields(ctx, map[string]any{
		"request_id":   notice.RequestID.String(),
		"order_id":     notice.OrderID.String(),
		"order_number": notice.OrderNumber,
		"kind":         notice.Kind,
		"subject":      notice.Subject(),
	}), "staff notification")
	return nil
}
