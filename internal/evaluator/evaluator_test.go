package evaluator

import (
	"context"
	"testing"
	"time"

	"greenos-alerts/internal/domain"
	"greenos-alerts/internal/notifier"
	"greenos-alerts/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T) (*Engine, *repository.MemoryAlertRulesRepo, *repository.MemoryAlertsRepo) {
	t.Helper()
	rulesRepo := repository.NewMemoryAlertRulesRepo()
	alertsRepo := repository.NewMemoryAlertsRepo()
	engine := NewEngine(rulesRepo, alertsRepo, notifier.NopPublisher{}, zap.NewNop())
	return engine, rulesRepo, alertsRepo
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func nullDec(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: dec(s), Valid: true}
}

func testSensor(zoneID *string) *domain.Sensor {
	unit := "pH"
	return &domain.Sensor{
		SensorID:   "sensor-1",
		FarmID:     "farm-1",
		ZoneID:     zoneID,
		Name:       "Tank A pH probe",
		SensorType: domain.SensorTypePH,
		Unit:       &unit,
		IsActive:   true,
	}
}

func testReading(value string, at time.Time) *domain.SensorReading {
	return &domain.SensorReading{
		ReadingID:  1,
		SensorID:   "sensor-1",
		Value:      nullDec(value),
		RecordedAt: at,
		ReceivedAt: at,
	}
}

func aboveRule(threshold string, cooldownMinutes int) *domain.AlertRule {
	return &domain.AlertRule{
		RuleID:          "rule-1",
		FarmID:          "farm-1",
		SensorType:      domain.SensorTypePH,
		Condition:       domain.ConditionAbove,
		ThresholdMax:    nullDec(threshold),
		Severity:        domain.SeverityWarning,
		CooldownMinutes: cooldownMinutes,
		IsActive:        true,
	}
}

func TestEvaluateCooldownSequence(t *testing.T) {
	engine, rulesRepo, alertsRepo := newTestEngine(t)
	ctx := context.Background()

	rule := aboveRule("7.0", 15)
	require.NoError(t, rulesRepo.CreateRule(ctx, rule))

	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := t0
	engine.SetClock(func() time.Time { return clock })

	sensor := testSensor(nil)

	// t0: 7.5 越限，创建第一条告警
	alerts, err := engine.Evaluate(ctx, sensor, testReading("7.5", t0))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	first := alerts[0]
	assert.Equal(t, domain.AlertStatusActive, first.Status)
	assert.Equal(t, domain.SeverityWarning, first.Severity)
	assert.True(t, first.TriggeredValue.Equal(dec("7.5")))

	// t0+5m: 7.8 仍越限，但在冷却期内，不创建
	clock = t0.Add(5 * time.Minute)
	alerts, err = engine.Evaluate(ctx, sensor, testReading("7.8", clock))
	require.NoError(t, err)
	assert.Empty(t, alerts)

	// t0+10m: 6.9 未越限
	clock = t0.Add(10 * time.Minute)
	alerts, err = engine.Evaluate(ctx, sensor, testReading("6.9", clock))
	require.NoError(t, err)
	assert.Empty(t, alerts)

	// t0+20m: 8.0 越限且冷却期已过，创建第二条
	clock = t0.Add(20 * time.Minute)
	alerts, err = engine.Evaluate(ctx, sensor, testReading("8.0", clock))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.NotEqual(t, first.AlertID, alerts[0].AlertID)

	count, err := alertsRepo.CountActiveAlerts(ctx, "farm-1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestEvaluateBoundaryEquality(t *testing.T) {
	engine, rulesRepo, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, rulesRepo.CreateRule(ctx, aboveRule("7.0", 15)))

	// 等于阈值不算越限（严格比较）
	alerts, err := engine.Evaluate(ctx, testSensor(nil), testReading("7.0", time.Now()))
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestEvaluateBelowCondition(t *testing.T) {
	engine, rulesRepo, _ := newTestEngine(t)
	ctx := context.Background()

	rule := &domain.AlertRule{
		RuleID:          "rule-below",
		FarmID:          "farm-1",
		SensorType:      domain.SensorTypePH,
		Condition:       domain.ConditionBelow,
		ThresholdMin:    nullDec("5.5"),
		Severity:        domain.SeverityCritical,
		CooldownMinutes: 15,
		IsActive:        true,
	}
	require.NoError(t, rulesRepo.CreateRule(ctx, rule))

	alerts, err := engine.Evaluate(ctx, testSensor(nil), testReading("5.4", time.Now()))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.SeverityCritical, alerts[0].Severity)

	// 等于下限不触发
	alerts, err = engine.Evaluate(ctx, testSensor(nil), testReading("5.5", time.Now()))
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestEvaluateOutsideRangeCondition(t *testing.T) {
	engine, rulesRepo, _ := newTestEngine(t)
	ctx := context.Background()

	rule := &domain.AlertRule{
		RuleID:          "rule-range",
		FarmID:          "farm-1",
		SensorType:      domain.SensorTypePH,
		Condition:       domain.ConditionOutsideRange,
		ThresholdMin:    nullDec("5.5"),
		ThresholdMax:    nullDec("7.0"),
		Severity:        domain.SeverityWarning,
		CooldownMinutes: 1,
		IsActive:        true,
	}
	require.NoError(t, rulesRepo.CreateRule(ctx, rule))

	// 区间内不触发（含边界）
	for _, v := range []string{"5.5", "6.2", "7.0"} {
		alerts, err := engine.Evaluate(ctx, testSensor(nil), testReading(v, time.Now()))
		require.NoError(t, err)
		assert.Empty(t, alerts, "value %s should not trigger", v)
	}

	alerts, err := engine.Evaluate(ctx, testSensor(nil), testReading("7.1", time.Now()))
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestEvaluateZoneScoping(t *testing.T) {
	engine, rulesRepo, _ := newTestEngine(t)
	ctx := context.Background()

	zoneA := "zone-a"
	rule := aboveRule("7.0", 15)
	rule.ZoneID = &zoneA
	require.NoError(t, rulesRepo.CreateRule(ctx, rule))

	// 传感器在其它区域，规则不适用
	zoneB := "zone-b"
	alerts, err := engine.Evaluate(ctx, testSensor(&zoneB), testReading("8.0", time.Now()))
	require.NoError(t, err)
	assert.Empty(t, alerts)

	// 传感器未分配区域，区域规则同样不适用
	alerts, err = engine.Evaluate(ctx, testSensor(nil), testReading("8.0", time.Now()))
	require.NoError(t, err)
	assert.Empty(t, alerts)

	// 区域匹配时触发
	alerts, err = engine.Evaluate(ctx, testSensor(&zoneA), testReading("8.0", time.Now()))
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestEvaluateFarmWideRuleAppliesToZonedSensor(t *testing.T) {
	engine, rulesRepo, _ := newTestEngine(t)
	ctx := context.Background()

	// 规则无 zone → 作用于全农场
	require.NoError(t, rulesRepo.CreateRule(ctx, aboveRule("7.0", 15)))

	zoneB := "zone-b"
	alerts, err := engine.Evaluate(ctx, testSensor(&zoneB), testReading("8.0", time.Now()))
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestEvaluateSkipsMalformedRule(t *testing.T) {
	engine, rulesRepo, _ := newTestEngine(t)
	ctx := context.Background()

	// above 规则缺 threshold_max：跳过而非报错
	malformed := &domain.AlertRule{
		RuleID:          "rule-bad",
		FarmID:          "farm-1",
		SensorType:      domain.SensorTypePH,
		Condition:       domain.ConditionAbove,
		Severity:        domain.SeverityInfo,
		CooldownMinutes: 15,
		IsActive:        true,
	}
	require.NoError(t, rulesRepo.CreateRule(ctx, malformed))
	healthy := aboveRule("7.0", 15)
	healthy.RuleID = "rule-good"
	require.NoError(t, rulesRepo.CreateRule(ctx, healthy))

	alerts, err := engine.Evaluate(ctx, testSensor(nil), testReading("8.0", time.Now()))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "rule-good", *alerts[0].AlertRuleID)
}

func TestEvaluateInactiveSensorIsNoop(t *testing.T) {
	engine, rulesRepo, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, rulesRepo.CreateRule(ctx, aboveRule("7.0", 15)))

	sensor := testSensor(nil)
	sensor.IsActive = false
	alerts, err := engine.Evaluate(ctx, sensor, testReading("9.0", time.Now()))
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestEvaluateInactiveRuleIgnored(t *testing.T) {
	engine, rulesRepo, _ := newTestEngine(t)
	ctx := context.Background()

	rule := aboveRule("7.0", 15)
	rule.IsActive = false
	require.NoError(t, rulesRepo.CreateRule(ctx, rule))

	alerts, err := engine.Evaluate(ctx, testSensor(nil), testReading("9.0", time.Now()))
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestEvaluateSeverityFrozenAtTrigger(t *testing.T) {
	engine, rulesRepo, alertsRepo := newTestEngine(t)
	ctx := context.Background()

	rule := aboveRule("7.0", 15)
	require.NoError(t, rulesRepo.CreateRule(ctx, rule))

	alerts, err := engine.Evaluate(ctx, testSensor(nil), testReading("8.0", time.Now()))
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	// 规则后续改为 critical，已有告警仍保持 warning
	require.NoError(t, rulesRepo.UpdateRule(ctx, "farm-1", rule.RuleID, map[string]interface{}{
		"severity": domain.SeverityCritical,
	}))

	stored, err := alertsRepo.GetAlert(ctx, "farm-1", alerts[0].AlertID)
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityWarning, stored.Severity)
}

func TestEvaluateRuleFailureIsolation(t *testing.T) {
	rulesRepo := repository.NewMemoryAlertRulesRepo()
	alertsRepo := repository.NewMemoryAlertsRepo()
	failing := &failOnRuleAlertsRepo{AlertsRepository: alertsRepo, failRuleID: "rule-broken"}
	engine := NewEngine(rulesRepo, failing, notifier.NopPublisher{}, zap.NewNop())
	ctx := context.Background()

	broken := aboveRule("7.0", 15)
	broken.RuleID = "rule-broken"
	require.NoError(t, rulesRepo.CreateRule(ctx, broken))
	healthy := aboveRule("7.0", 15)
	healthy.RuleID = "rule-ok"
	healthy.CreatedAt = time.Now().Add(time.Second)
	require.NoError(t, rulesRepo.CreateRule(ctx, healthy))

	// rule-broken 存储报错，rule-ok 仍应正常触发
	alerts, err := engine.Evaluate(ctx, testSensor(nil), testReading("8.0", time.Now()))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "rule-ok", *alerts[0].AlertRuleID)
}

type failOnRuleAlertsRepo struct {
	repository.AlertsRepository
	failRuleID string
}

func (r *failOnRuleAlertsRepo) GetRecentAlertForRule(ctx context.Context, ruleID string, since time.Time) (*domain.Alert, error) {
	if ruleID == r.failRuleID {
		return nil, assert.AnError
	}
	return r.AlertsRepository.GetRecentAlertForRule(ctx, ruleID, since)
}
