package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/shopcore-backend/pkg/logger"
)

type pendingExpirer interface {
	ExpireStalePending(ctx context.Context) (int, error)
}

// NewPendingExpiryJob fails gateway orders whose payment never settled,
// returning their reserved stock.
func NewPendingExpiryJob(orders pendingExpirer, logg *logger.Logger) (Job, error) {
	if orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &pendingExpiryJob{orders: orders, logg: logg}, nil
}

type pendingExpiryJob struct {
	orders pendingExpirer
	logg   *logger.Logger
}

func (j *pendingExpiryJob) Name() string { return "pending-order-expiry" }

func (j *pendingExpiryJob) Run(ctx context.Context) error {
	expired, err := j.orders.ExpireStalePending(ctx)
	if expired > 0 {
		j.logg.Info(j.logg.WithField(ctx, "expired", expired), "stale pending orders expired")
	}
	if err != nil {
		return fmt.Errorf("expire pending orders: %w", err)
	}
	return nil
}
