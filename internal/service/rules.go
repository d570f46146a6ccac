package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"greenos-alerts/internal/domain"
	"greenos-alerts/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RulesService 告警规则管理
type RulesService struct {
	rulesRepo repository.AlertRulesRepository
	logger    *zap.Logger
	now       func() time.Time
}

func NewRulesService(rulesRepo repository.AlertRulesRepository, logger *zap.Logger) *RulesService {
	return &RulesService{
		rulesRepo: rulesRepo,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateRule 校验并创建规则
func (s *RulesService) CreateRule(ctx context.Context, rule *domain.AlertRule) (*domain.AlertRule, error) {
	if rule == nil {
		return nil, fmt.Errorf("%w: rule is required", domain.ErrValidation)
	}
	if rule.FarmID == "" {
		return nil, fmt.Errorf("%w: farm_id is required", domain.ErrValidation)
	}
	if rule.CooldownMinutes == 0 {
		rule.CooldownMinutes = 15
	}
	if len(rule.NotifyChannels) == 0 {
		rule.NotifyChannels = json.RawMessage(`["dashboard"]`)
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	rule.RuleID = uuid.NewString()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if err := s.rulesRepo.CreateRule(ctx, rule); err != nil {
		return nil, err
	}

	s.logger.Info("Alert rule created",
		zap.String("rule_id", rule.RuleID),
		zap.String("farm_id", rule.FarmID),
		zap.String("sensor_type", rule.SensorType),
		zap.String("condition", rule.Condition),
	)
	return rule, nil
}

func (s *RulesService) GetRule(ctx context.Context, farmID, ruleID string) (*domain.AlertRule, error) {
	return s.rulesRepo.GetRule(ctx, farmID, ruleID)
}

func (s *RulesService) ListRules(ctx context.Context, farmID string, page, size int) ([]*domain.AlertRule, int, error) {
	return s.rulesRepo.ListRules(ctx, farmID, page, size)
}

// UpdateRule 部分更新：先合并到当前规则重新校验，再落库
func (s *RulesService) UpdateRule(ctx context.Context, farmID, ruleID string, updates map[string]interface{}) (*domain.AlertRule, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", domain.ErrValidation)
	}

	current, err := s.rulesRepo.GetRule(ctx, farmID, ruleID)
	if err != nil {
		return nil, err
	}

	merged := *current
	if err := applyRuleUpdates(&merged, updates); err != nil {
		return nil, err
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	if err := s.rulesRepo.UpdateRule(ctx, farmID, ruleID, updates); err != nil {
		return nil, err
	}

	s.logger.Info("Alert rule updated",
		zap.String("rule_id", ruleID),
		zap.String("farm_id", farmID),
	)
	return s.rulesRepo.GetRule(ctx, farmID, ruleID)
}

// DeleteRule 硬删除规则，既有告警保留（alert_rule_id 置 NULL）
func (s *RulesService) DeleteRule(ctx context.Context, farmID, ruleID string) error {
	if err := s.rulesRepo.DeleteRule(ctx, farmID, ruleID); err != nil {
		return err
	}
	s.logger.Info("Alert rule deleted",
		zap.String("rule_id", ruleID),
		zap.String("farm_id", farmID),
	)
	return nil
}

// applyRuleUpdates 把部分更新合并到规则副本上（仅用于重新校验）
func applyRuleUpdates(rule *domain.AlertRule, updates map[string]interface{}) error {
	for field, value := range updates {
		switch field {
		case "zone_id":
			if value == nil {
				rule.ZoneID = nil
			} else if s, ok := value.(string); ok {
				rule.ZoneID = &s
			}
		case "sensor_type":
			if s, ok := value.(string); ok {
				rule.SensorType = s
			}
		case "condition":
			if s, ok := value.(string); ok {
				rule.Condition = s
			}
		case "threshold_min":
			d, err := updateDecimal(value)
			if err != nil {
				return fmt.Errorf("%w: invalid threshold_min", domain.ErrValidation)
			}
			rule.ThresholdMin = d
		case "threshold_max":
			d, err := updateDecimal(value)
			if err != nil {
				return fmt.Errorf("%w: invalid threshold_max", domain.ErrValidation)
			}
			rule.ThresholdMax = d
		case "severity":
			if s, ok := value.(string); ok {
				rule.Severity = s
			}
		case "cooldown_minutes":
			switch n := value.(type) {
			case int:
				rule.CooldownMinutes = n
			case float64:
				rule.CooldownMinutes = int(n)
			case json.Number:
				v, err := n.Int64()
				if err != nil {
					return fmt.Errorf("%w: invalid cooldown_minutes", domain.ErrValidation)
				}
				rule.CooldownMinutes = int(v)
			}
		case "is_active":
			if b, ok := value.(bool); ok {
				rule.IsActive = b
			}
		case "notify_channels", "escalation_policy_id":
			// 不影响阈值校验
		default:
			return fmt.Errorf("%w: unknown field %s", domain.ErrValidation, field)
		}
	}
	return nil
}

func updateDecimal(value interface{}) (decimal.NullDecimal, error) {
	switch x := value.(type) {
	case nil:
		return decimal.NullDecimal{}, nil
	case decimal.Decimal:
		return decimal.NullDecimal{Decimal: x, Valid: true}, nil
	case float64:
		return decimal.NullDecimal{Decimal: decimal.NewFromFloat(x), Valid: true}, nil
	case json.Number:
		// UseNumber 解码得到的字面量，精度无损
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		return decimal.NullDecimal{Decimal: d, Valid: true}, nil
	case string:
		d, err := decimal.NewFromString(x)
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		return decimal.NullDecimal{Decimal: d, Valid: true}, nil
	}
	return decimal.NullDecimal{}, fmt.Errorf("unsupported type %T", value)
}
