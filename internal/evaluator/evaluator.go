package evaluator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"greenos-alerts/internal/domain"
	"greenos-alerts/internal/notifier"
	"greenos-alerts/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine 告警规则评估引擎
//
// 每条传感器读数到达时，取该农场下匹配传感器类型的全部启用规则，
// 逐条评估阈值条件；单条规则失败不影响其余规则（隔离处理）。
type Engine struct {
	rulesRepo  repository.AlertRulesRepository
	alertsRepo repository.AlertsRepository
	publisher  notifier.Publisher
	logger     *zap.Logger

	// 可注入时钟（测试用）
	now func() time.Time
}

// NewEngine 创建评估引擎
func NewEngine(
	rulesRepo repository.AlertRulesRepository,
	alertsRepo repository.AlertsRepository,
	publisher notifier.Publisher,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		rulesRepo:  rulesRepo,
		alertsRepo: alertsRepo,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock 替换时钟（仅测试使用）
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Evaluate 用一条读数评估所有匹配规则，返回本次新建的告警
func (e *Engine) Evaluate(ctx context.Context, sensor *domain.Sensor, reading *domain.SensorReading) ([]*domain.Alert, error) {
	if sensor == nil || reading == nil {
		return nil, nil
	}
	// 停用的传感器不参与评估
	if !sensor.IsActive {
		return nil, nil
	}
	if !reading.Value.Valid {
		return nil, nil
	}

	rules, err := e.rulesRepo.ListActiveRulesForSensorType(ctx, sensor.FarmID, sensor.SensorType)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules for sensor %s: %w", sensor.SensorID, err)
	}

	var created []*domain.Alert
	for _, rule := range rules {
		alert, err := e.evaluateRule(ctx, rule, sensor, reading)
		if err != nil {
			e.logger.Error("Failed to evaluate alert rule",
				zap.String("rule_id", rule.RuleID),
				zap.String("sensor_id", sensor.SensorID),
				zap.Error(err),
			)
			continue
		}
		if alert != nil {
			created = append(created, alert)
		}
	}

	return created, nil
}

// evaluateRule 评估单条规则，命中且不在冷却期时创建告警
func (e *Engine) evaluateRule(ctx context.Context, rule *domain.AlertRule, sensor *domain.Sensor, reading *domain.SensorReading) (*domain.Alert, error) {
	// 区域过滤：规则无 zone 时作用于全农场
	if !rule.AppliesToZone(sensor.ZoneID) {
		return nil, nil
	}

	value := reading.Value.Decimal
	violated, ok := rule.Violated(value)
	if !ok {
		// 阈值缺失的规则跳过，不算失败
		e.logger.Warn("Skipping malformed alert rule",
			zap.String("rule_id", rule.RuleID),
			zap.String("condition", rule.Condition),
		)
		return nil, nil
	}
	if !violated {
		return nil, nil
	}

	now := e.now()
	since := now.Add(-rule.Cooldown())

	// 冷却期去重：以同规则最近一条告警的 created_at 为准
	recent, err := e.alertsRepo.GetRecentAlertForRule(ctx, rule.RuleID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to check cooldown for rule %s: %w", rule.RuleID, err)
	}
	if recent != nil {
		e.logger.Debug("Alert suppressed by cooldown",
			zap.String("rule_id", rule.RuleID),
			zap.String("recent_alert_id", recent.AlertID),
		)
		return nil, nil
	}

	ruleID := rule.RuleID
	readingID := reading.ReadingID
	message := fmt.Sprintf("Value %s violated threshold (rule: %s)", value.String(), rule.Condition)
	alert := &domain.Alert{
		AlertID:         uuid.NewString(),
		FarmID:          sensor.FarmID,
		AlertRuleID:     &ruleID,
		SensorID:        sensor.SensorID,
		SensorReadingID: &readingID,
		Severity:        rule.Severity, // 触发时点固化，规则后续修改不回溯
		Title:           fmt.Sprintf("%s alert on %s", strings.ToUpper(sensor.SensorType), sensor.Name),
		Message:         &message,
		TriggeredValue:  value,
		Status:          domain.AlertStatusActive,
		CreatedAt:       now,
	}

	// 单语句条件插入，封死检查与写入之间的竞态
	inserted, err := e.alertsRepo.CreateAlertIfNoneSince(ctx, alert, since)
	if err != nil {
		return nil, fmt.Errorf("failed to create alert for rule %s: %w", rule.RuleID, err)
	}
	if !inserted {
		e.logger.Debug("Alert suppressed by concurrent insert",
			zap.String("rule_id", rule.RuleID),
		)
		return nil, nil
	}

	e.logger.Info("Alert created",
		zap.String("alert_id", alert.AlertID),
		zap.String("rule_id", rule.RuleID),
		zap.String("sensor_id", sensor.SensorID),
		zap.String("severity", alert.Severity),
		zap.String("triggered_value", value.String()),
	)

	e.publisher.PublishAlert(ctx, alert)

	return alert, nil
}
