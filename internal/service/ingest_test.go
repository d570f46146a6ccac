package service

import (
	"context"
	"testing"
	"time"

	"greenos-alerts/internal/domain"
	"greenos-alerts/internal/evaluator"
	"greenos-alerts/internal/notifier"
	"greenos-alerts/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestIngestService(t *testing.T) (*IngestService, *repository.MemorySensorsRepo, *repository.MemoryAlertRulesRepo, *repository.MemoryAlertsRepo) {
	t.Helper()
	sensorsRepo := repository.NewMemorySensorsRepo()
	readingsRepo := repository.NewMemoryReadingsRepo()
	rulesRepo := repository.NewMemoryAlertRulesRepo()
	alertsRepo := repository.NewMemoryAlertsRepo()
	engine := evaluator.NewEngine(rulesRepo, alertsRepo, notifier.NopPublisher{}, zap.NewNop())
	svc := NewIngestService(sensorsRepo, readingsRepo, engine, notifier.NopPublisher{}, zap.NewNop())
	return svc, sensorsRepo, rulesRepo, alertsRepo
}

func TestIngestAppliesCalibrationOffset(t *testing.T) {
	svc, sensorsRepo, _, _ := newTestIngestService(t)
	ctx := context.Background()

	sensorsRepo.PutSensor(domain.Sensor{
		SensorID:          "sensor-1",
		FarmID:            "farm-1",
		Name:              "Tank A pH probe",
		SensorType:        domain.SensorTypePH,
		CalibrationOffset: decimal.NewFromFloat(0.2),
		IsActive:          true,
	})

	recordedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	result, err := svc.Ingest(ctx, "farm-1", "sensor-1", decimal.NewFromFloat(6.8), recordedAt)
	require.NoError(t, err)
	require.NotNil(t, result.Reading)
	assert.True(t, result.Reading.Value.Decimal.Equal(decimal.NewFromFloat(7.0)))
	assert.True(t, result.Reading.RawValue.Decimal.Equal(decimal.NewFromFloat(6.8)))
	assert.Equal(t, recordedAt, result.Reading.RecordedAt)
	assert.NotZero(t, result.Reading.ReadingID)

	// 传感器最新值已刷新
	sensor, err := sensorsRepo.GetSensor(ctx, "farm-1", "sensor-1")
	require.NoError(t, err)
	require.True(t, sensor.LastValue.Valid)
	assert.True(t, sensor.LastValue.Decimal.Equal(decimal.NewFromFloat(7.0)))
	require.NotNil(t, sensor.LastReadingAt)
	assert.Equal(t, recordedAt, *sensor.LastReadingAt)
}

func TestIngestTriggersEvaluation(t *testing.T) {
	svc, sensorsRepo, rulesRepo, _ := newTestIngestService(t)
	ctx := context.Background()

	sensorsRepo.PutSensor(domain.Sensor{
		SensorID:   "sensor-1",
		FarmID:     "farm-1",
		Name:       "Tank A pH probe",
		SensorType: domain.SensorTypePH,
		IsActive:   true,
	})
	require.NoError(t, rulesRepo.CreateRule(ctx, &domain.AlertRule{
		RuleID:          "rule-1",
		FarmID:          "farm-1",
		SensorType:      domain.SensorTypePH,
		Condition:       domain.ConditionAbove,
		ThresholdMax:    decimal.NullDecimal{Decimal: decimal.NewFromFloat(7.0), Valid: true},
		Severity:        domain.SeverityCritical,
		CooldownMinutes: 15,
		IsActive:        true,
	}))

	result, err := svc.Ingest(ctx, "farm-1", "sensor-1", decimal.NewFromFloat(7.5), time.Now())
	require.NoError(t, err)
	require.Len(t, result.Alerts, 1)
	assert.Equal(t, domain.SeverityCritical, result.Alerts[0].Severity)
	assert.Equal(t, "PH alert on Tank A pH probe", result.Alerts[0].Title)
}

func TestIngestUnknownSensor(t *testing.T) {
	svc, _, _, _ := newTestIngestService(t)

	_, err := svc.Ingest(context.Background(), "farm-1", "nope", decimal.NewFromFloat(7.5), time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIngestRejectsCrossFarmSensor(t *testing.T) {
	svc, sensorsRepo, _, alertsRepo := newTestIngestService(t)
	ctx := context.Background()

	sensorsRepo.PutSensor(domain.Sensor{
		SensorID:   "sensor-b",
		FarmID:     "farm-b",
		Name:       "Tank B pH probe",
		SensorType: domain.SensorTypePH,
		IsActive:   true,
	})

	// farm-a 成员不能向 farm-b 的传感器写读数
	_, err := svc.Ingest(ctx, "farm-a", "sensor-b", decimal.NewFromFloat(9.0), time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	count, err := alertsRepo.CountActiveAlerts(ctx, "farm-b", "")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestListReadingsRejectsCrossFarmSensor(t *testing.T) {
	svc, sensorsRepo, _, _ := newTestIngestService(t)
	ctx := context.Background()

	sensorsRepo.PutSensor(domain.Sensor{
		SensorID:   "sensor-b",
		FarmID:     "farm-b",
		Name:       "Tank B pH probe",
		SensorType: domain.SensorTypePH,
		IsActive:   true,
	})
	_, err := svc.Ingest(ctx, "farm-b", "sensor-b", decimal.NewFromFloat(6.8), time.Now())
	require.NoError(t, err)

	// 本农场可见
	readings, err := svc.ListReadings(ctx, "farm-b", "sensor-b", nil, nil, 10)
	require.NoError(t, err)
	assert.Len(t, readings, 1)

	// 其他农场不可见
	_, err = svc.ListReadings(ctx, "farm-a", "sensor-b", nil, nil, 10)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIngestInactiveSensorStoresButSkipsEvaluation(t *testing.T) {
	svc, sensorsRepo, rulesRepo, alertsRepo := newTestIngestService(t)
	ctx := context.Background()

	sensorsRepo.PutSensor(domain.Sensor{
		SensorID:   "sensor-1",
		FarmID:     "farm-1",
		Name:       "Tank A pH probe",
		SensorType: domain.SensorTypePH,
		IsActive:   false,
	})
	require.NoError(t, rulesRepo.CreateRule(ctx, &domain.AlertRule{
		RuleID:          "rule-1",
		FarmID:          "farm-1",
		SensorType:      domain.SensorTypePH,
		Condition:       domain.ConditionAbove,
		ThresholdMax:    decimal.NullDecimal{Decimal: decimal.NewFromFloat(7.0), Valid: true},
		Severity:        domain.SeverityWarning,
		CooldownMinutes: 15,
		IsActive:        true,
	}))

	result, err := svc.Ingest(ctx, "farm-1", "sensor-1", decimal.NewFromFloat(9.0), time.Now())
	require.NoError(t, err)
	assert.NotNil(t, result.Reading)
	assert.Empty(t, result.Alerts)

	count, err := alertsRepo.CountActiveAlerts(ctx, "farm-1", "")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
