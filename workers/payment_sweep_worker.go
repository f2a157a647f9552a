// workers/payment_sweep_worker.go
package workers

import (
	"context"
	"time"

	"kenya-earn/logging"
	"kenya-earn/services"

	"go.uber.org/zap"
)

// Sweeper is the part of the payment service the worker drives.
type Sweeper interface {
	SweepPending(ctx context.Context, minAge, ttl time.Duration) (services.SweepStats, error)
}

// PaymentSweepWorker re-verifies activation payments stuck pending, for
// callbacks that never arrived or failed while being processed.
type PaymentSweepWorker struct {
	sweeper  Sweeper
	interval time.Duration
	minAge   time.Duration
	ttl      time.Duration
}

func NewPaymentSweepWorker(sweeper Sweeper, interval, minAge, ttl time.Duration) *PaymentSweepWorker {
	return &PaymentSweepWorker{
		sweeper:  sweeper,
		interval: interval,
		minAge:   minAge,
		ttl:      ttl,
	}
}

// RunOnce performs a single pass.
func (w *PaymentSweepWorker) RunOnce(ctx context.Context) (services.SweepStats, error) {
	return w.sweeper.SweepPending(ctx, w.minAge, w.ttl)
}

// Start polls until ctx is cancelled.
func (w *PaymentSweepWorker) Start(ctx context.Context) {
	logging.Logger.Info("Starting payment sweep worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Logger.Info("Payment sweep worker stopped.")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				// Keep polling; the next tick retries the same window
				logging.Logger.Error("❌ payment sweep failed", zap.Error(err))
			}
		}
	}
}
