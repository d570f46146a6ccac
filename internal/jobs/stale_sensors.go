package jobs

import (
	"context"
	"fmt"
	"time"

	"greenos-alerts/internal/notifier"
	"greenos-alerts/internal/repository"

	"go.uber.org/zap"
)

// StaleSensorJob 巡检超时未上报的传感器并推送掉线告警
type StaleSensorJob struct {
	sensorsRepo repository.SensorsRepository
	publisher   notifier.Publisher
	logger      *zap.Logger

	staleAfter time.Duration
	now        func() time.Time
}

func NewStaleSensorJob(sensorsRepo repository.SensorsRepository, publisher notifier.Publisher, staleAfter time.Duration, logger *zap.Logger) *StaleSensorJob {
	return &StaleSensorJob{
		sensorsRepo: sensorsRepo,
		publisher:   publisher,
		logger:      logger,
		staleAfter:  staleAfter,
		now:         time.Now,
	}
}

// Run 单次巡检
func (j *StaleSensorJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.staleAfter)
	sensors, err := j.sensorsRepo.ListStaleSensors(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list stale sensors: %w", err)
	}

	for _, sensor := range sensors {
		j.logger.Warn("Sensor has stopped reporting",
			zap.String("sensor_id", sensor.SensorID),
			zap.String("farm_id", sensor.FarmID),
			zap.Timep("last_reading_at", sensor.LastReadingAt),
		)
		j.publisher.NotifyUser(ctx, sensor.FarmID, map[string]interface{}{
			"type":            "sensor_stale",
			"sensor_id":       sensor.SensorID,
			"sensor_name":     sensor.Name,
			"farm_id":         sensor.FarmID,
			"last_reading_at": sensor.LastReadingAt,
		})
	}

	if len(sensors) > 0 {
		j.logger.Info("Stale sensor sweep finished",
			zap.Int("stale_count", len(sensors)),
		)
	}
	return nil
}
