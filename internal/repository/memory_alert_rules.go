package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"greenos-alerts/internal/domain"
)

// MemoryAlertRulesRepo AlertRulesRepository 的内存实现（测试/无库模式）
type MemoryAlertRulesRepo struct {
	mu    sync.RWMutex
	rules map[string]domain.AlertRule // ruleID -> rule
}

func NewMemoryAlertRulesRepo() *MemoryAlertRulesRepo {
	return &MemoryAlertRulesRepo{
		rules: map[string]domain.AlertRule{},
	}
}

func (r *MemoryAlertRulesRepo) CreateRule(_ context.Context, rule *domain.AlertRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule is required", domain.ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[rule.RuleID] = *rule
	return nil
}

func (r *MemoryAlertRulesRepo) GetRule(_ context.Context, farmID, ruleID string) (*domain.AlertRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[ruleID]
	if !ok || rule.FarmID != farmID {
		return nil, fmt.Errorf("%w: alert rule %s", domain.ErrNotFound, ruleID)
	}
	out := rule
	return &out, nil
}

func (r *MemoryAlertRulesRepo) UpdateRule(_ context.Context, farmID, ruleID string, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[ruleID]
	if !ok || rule.FarmID != farmID {
		return fmt.Errorf("%w: alert rule %s", domain.ErrNotFound, ruleID)
	}
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
			rule.ThresholdMin = toNullDecimal(value)
		case "threshold_max":
			rule.ThresholdMax = toNullDecimal(value)
		case "severity":
			if s, ok := value.(string); ok {
				rule.Severity = s
			}
		case "cooldown_minutes":
			if n, ok := toInt(value); ok {
				rule.CooldownMinutes = n
			}
		case "is_active":
			if b, ok := value.(bool); ok {
				rule.IsActive = b
			}
		case "notify_channels":
			if b, ok := value.([]byte); ok {
				rule.NotifyChannels = json.RawMessage(b)
			} else if m, ok := value.(json.RawMessage); ok {
				rule.NotifyChannels = m
			}
		case "escalation_policy_id":
			if value == nil {
				rule.EscalationPolicyID = nil
			} else if s, ok := value.(string); ok {
				rule.EscalationPolicyID = &s
			}
		}
	}
	rule.UpdatedAt = time.Now()
	r.rules[ruleID] = rule
	return nil
}

func (r *MemoryAlertRulesRepo) DeleteRule(_ context.Context, farmID, ruleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[ruleID]
	if !ok || rule.FarmID != farmID {
		return fmt.Errorf("%w: alert rule %s", domain.ErrNotFound, ruleID)
	}
	delete(r.rules, ruleID)
	return nil
}

func (r *MemoryAlertRulesRepo) ListRules(_ context.Context, farmID string, page, size int) ([]*domain.AlertRule, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*domain.AlertRule, 0, len(r.rules))
	for id := range r.rules {
		rule := r.rules[id]
		if rule.FarmID != farmID {
			continue
		}
		out := rule
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (r *MemoryAlertRulesRepo) ListActiveRulesForSensorType(_ context.Context, farmID, sensorType string) ([]*domain.AlertRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*domain.AlertRule{}
	for id := range r.rules {
		rule := r.rules[id]
		if rule.FarmID != farmID || rule.SensorType != sensorType || !rule.IsActive {
			continue
		}
		c := rule
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
