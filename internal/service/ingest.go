package service

import (
	"context"
	"time"

	"greenos-alerts/internal/domain"
	"greenos-alerts/internal/evaluator"
	"greenos-alerts/internal/notifier"
	"greenos-alerts/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// IngestService 读数入库 + 告警评估
type IngestService struct {
	sensorsRepo  repository.SensorsRepository
	readingsRepo repository.ReadingsRepository
	engine       *evaluator.Engine
	publisher    notifier.Publisher
	logger       *zap.Logger
	now          func() time.Time
}

func NewIngestService(
	sensorsRepo repository.SensorsRepository,
	readingsRepo repository.ReadingsRepository,
	engine *evaluator.Engine,
	publisher notifier.Publisher,
	logger *zap.Logger,
) *IngestService {
	return &IngestService{
		sensorsRepo:  sensorsRepo,
		readingsRepo: readingsRepo,
		engine:       engine,
		publisher:    publisher,
		logger:       logger,
		now:          time.Now,
	}
}

// IngestResult 单条读数的处理结果
type IngestResult struct {
	Reading *domain.SensorReading `json:"reading"`
	Alerts  []*domain.Alert       `json:"alerts"`
}

// Ingest 处理一条传感器读数：
// 套用校准偏移、落库、刷新传感器最新值、评估告警规则、推送通知。
// 评估失败不影响读数本身的入库。
// 传感器不属于该 farm 时返回 ErrNotFound（跨租户写入一律拒绝）。
func (s *IngestService) Ingest(ctx context.Context, farmID, sensorID string, rawValue decimal.Decimal, recordedAt time.Time) (*IngestResult, error) {
	sensor, err := s.sensorsRepo.GetSensor(ctx, farmID, sensorID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if recordedAt.IsZero() {
		recordedAt = now
	}

	// value = 原始值 + 校准偏移
	value := rawValue.Add(sensor.CalibrationOffset)
	reading := &domain.SensorReading{
		SensorID:   sensorID,
		Value:      decimal.NullDecimal{Decimal: value, Valid: true},
		RawValue:   decimal.NullDecimal{Decimal: rawValue, Valid: true},
		RecordedAt: recordedAt,
		ReceivedAt: now,
	}
	if err := s.readingsRepo.CreateReading(ctx, reading); err != nil {
		return nil, err
	}

	if err := s.sensorsRepo.UpdateLastReading(ctx, sensorID, value, recordedAt); err != nil {
		s.logger.Warn("Failed to update sensor last reading",
			zap.String("sensor_id", sensorID),
			zap.Error(err))
	}

	alerts, err := s.engine.Evaluate(ctx, sensor, reading)
	if err != nil {
		// 读数已入库，评估失败只记录
		s.logger.Error("Failed to evaluate alert rules",
			zap.String("sensor_id", sensorID),
			zap.Error(err))
		alerts = nil
	}

	s.publisher.PublishReading(ctx, sensor, reading)

	return &IngestResult{Reading: reading, Alerts: alerts}, nil
}

// ListReadings 查询历史读数（先校验传感器归属，跨 farm 返回 ErrNotFound）
func (s *IngestService) ListReadings(ctx context.Context, farmID, sensorID string, start, end *time.Time, limit int) ([]*domain.SensorReading, error) {
	if _, err := s.sensorsRepo.GetSensor(ctx, farmID, sensorID); err != nil {
		return nil, err
	}
	return s.readingsRepo.ListReadings(ctx, sensorID, start, end, limit)
}
