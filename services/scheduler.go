// services/scheduler.go
package services

import (
	"time"

	"kenya-earn/logging"
	"kenya-earn/models"
	"kenya-earn/monitoring"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RefreshBacklogGauges publishes how many payments and withdrawals are waiting.
func RefreshBacklogGauges(db *gorm.DB) error {
	var payments, withdrawals int64
	if err := db.Model(&models.Payment{}).Where("status = ?", models.PaymentPending).Count(&payments).Error; err != nil {
		return err
	}
	if err := db.Model(&models.Transaction{}).
		Where("type = ? AND status = ?", models.TransactionWithdrawal, models.TransactionPending).
		Count(&withdrawals).Error; err != nil {
		return err
	}
	monitoring.PendingPayments.Set(float64(payments))
	monitoring.PendingWithdrawals.Set(float64(withdrawals))
	return nil
}

// StartHousekeeping runs the backlog gauges job every interval.
// The caller owns the returned scheduler and shuts it down.
func StartHousekeeping(db *gorm.DB, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if err := RefreshBacklogGauges(db); err != nil {
				logging.Logger.Error("[Scheduler] backlog gauges failed", zap.Error(err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	return sched, nil
}
