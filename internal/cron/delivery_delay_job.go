package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/shopcore-backend/pkg/logger"
)

type deliveryExtender interface {
	ExtendDelayedDeliveries(ctx context.Context, today time.Time) (int, error)
}

// NewDeliveryDelayJob moves overdue expected delivery dates forward.
func NewDeliveryDelayJob(orders deliveryExtender, logg *logger.Logger) (Job, error) {
	if orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &deliveryDelayJob{orders: orders, logg: logg, now: time.Now}, nil
}

type deliveryDelayJob struct {
	orders deliveryExtender
	logg   *logger.Logger
	now    func() time.Time
}

func (j *deliveryDelayJob) Name() string { return "delivery-delay" }

func (j *deliveryDelayJob) Run(ctx context.Context) error {
	moved, err := j.orders.ExtendDelayedDeliveries(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("extend delayed deliveries (%d moved): %w", moved, err)
	}
	return nil
}
