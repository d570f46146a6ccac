package jobs

import (
	"context"
	"fmt"
	"time"

	"greenos-alerts/internal/repository"

	"go.uber.org/zap"
)

// RetentionJob 清理超过保留期的已解决告警
type RetentionJob struct {
	alertsRepo repository.AlertsRepository
	logger     *zap.Logger

	retention time.Duration
	now       func() time.Time
}

func NewRetentionJob(alertsRepo repository.AlertsRepository, retention time.Duration, logger *zap.Logger) *RetentionJob {
	return &RetentionJob{
		alertsRepo: alertsRepo,
		logger:     logger,
		retention:  retention,
		now:        time.Now,
	}
}

// Run 单次清理
func (j *RetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.retention)
	deleted, err := j.alertsRepo.DeleteResolvedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to delete resolved alerts: %w", err)
	}

	if deleted > 0 {
		j.logger.Info("Resolved alerts purged",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
	return nil
}
