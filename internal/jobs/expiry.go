package jobs

import (
	"context"
	"fmt"
	"time"

	"greenos-alerts/internal/repository"

	"go.uber.org/zap"
)

// ExpiryJob 把长期无人处理的报警置为 expired
type ExpiryJob struct {
	alertsRepo repository.AlertsRepository
	logger     *zap.Logger

	maxOpenAge time.Duration
	now        func() time.Time
}

func NewExpiryJob(alertsRepo repository.AlertsRepository, maxOpenAge time.Duration, logger *zap.Logger) *ExpiryJob {
	return &ExpiryJob{
		alertsRepo: alertsRepo,
		logger:     logger,
		maxOpenAge: maxOpenAge,
		now:        time.Now,
	}
}

// Run 单次过期扫描
func (j *ExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.maxOpenAge)
	expired, err := j.alertsRepo.ExpireAlertsCreatedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to expire alerts: %w", err)
	}

	if expired > 0 {
		j.logger.Info("Stale open alerts expired",
			zap.Int64("expired", expired),
			zap.Time("cutoff", cutoff),
		)
	}
	return nil
}
