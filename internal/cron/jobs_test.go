package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeOrders struct {
	expired   int
	expireErr error
	today     time.Time
	moved     int
}

func (f *fakeOrders) ExpireStalePending(context.Context) (int, error) {
	return f.expired, f.expireErr
}

func (f *fakeOrders) ExtendDelayedDeliveries(_ context.Context, today time.Time) (int, error) {
	f.today = today
	return f.moved, nil
}

func TestPendingExpiryJobReportsFailures(t *testing.T) {
	orders := &fakeOrders{expired: 2}
	job, err := NewPendingExpiryJob(orders, testLogger())
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if job.Name() != "pending-order-expiry" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	orders.expireErr = errors.New("one order failed")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error to surface")
	}
}

func TestDeliveryDelayJobPassesToday(t *testing.T) {
	orders := &fakeOrders{moved: 1}
	jobIface, err := NewDeliveryDelayJob(orders, testLogger())
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	job := jobIface.(*deliveryDelayJob)
	now := time.Date(2026, 10, 22, 6, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !orders.today.Equal(now) {
		t.Fatalf("expected %s, got %s", now, orders.today)
	}
}
