package app

import (
	"context"
	"fmt"
	"time"

	"github.com/kunaal-theme/notify/internal/config"
	"github.com/kunaal-theme/notify/internal/modules/queue"
	pkgcron "github.com/kunaal-theme/notify/internal/pkg/cron"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const eventRetentionDays = 90

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, worker *queue.Worker, db *gorm.DB, cfg *config.AppConfig, logger *zap.Logger) {
	interval := time.Duration(cfg.Newsletter.WorkerIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	sched.Register(pkgcron.Job{
		Name:        "email_queue_worker",
		Description: "deliver due queued emails",
		Interval:    interval,
		Fn: func(ctx context.Context) error {
			result, err := worker.ProcessDueBatch(ctx, time.Now().UTC())
			if err != nil {
				logger.Warn("queue batch failed", zap.Error(err))
				return err
			}
			if result.Processed > 0 || result.Skipped > 0 {
				logger.Info("queue batch done",
					zap.Int("processed", result.Processed),
					zap.Int("sent", result.Sent),
					zap.Int("failed", result.Failed),
					zap.Int("retried", result.Retried),
					zap.Int("skipped", result.Skipped),
				)
			}
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "events_cleanup",
		Description: fmt.Sprintf("delete click events older than %d days", eventRetentionDays),
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			cutoff := time.Now().AddDate(0, 0, -eventRetentionDays)
			deleted, err := queue.PruneEvents(db, cutoff)
			if err != nil {
				logger.Warn("event cleanup failed", zap.Error(err))
				return err
			}
			if deleted > 0 {
				logger.Info("event cleanup done", zap.Int64("deleted", deleted))
			}
			return nil
		},
	})
}
