package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// 报警规则条件（alert_rules.condition）
const (
	ConditionAbove        = "above"
	ConditionBelow        = "below"
	ConditionOutsideRange = "outside_range"
)

// 报警级别（info < warning < critical）
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// severityRanks 级别排序（用于排序和过滤，不用于存储）
var severityRanks = map[string]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityCritical: 2,
}

// SeverityRank 返回级别序号，未知级别返回 -1
func SeverityRank(severity string) int {
	if rank, ok := severityRanks[severity]; ok {
		return rank
	}
	return -1
}

// AlertRule 报警规则领域模型（对应 alert_rules 表）
type AlertRule struct {
	RuleID string `db:"rule_id"` // UUID, PRIMARY KEY
	FarmID string `db:"farm_id"` // UUID, NOT NULL

	// 作用域：zone_id 为 NULL 表示整个农场生效
	ZoneID *string `db:"zone_id"` // UUID, nullable

	SensorType string `db:"sensor_type"` // VARCHAR(50), NOT NULL
	Condition  string `db:"condition"`   // CHECK IN ('above', 'below', 'outside_range')

	// 阈值：above 需要 max，below 需要 min，outside_range 需要两者
	ThresholdMin decimal.NullDecimal `db:"threshold_min"` // NUMERIC(10,4), nullable
	ThresholdMax decimal.NullDecimal `db:"threshold_max"` // NUMERIC(10,4), nullable

	Severity        string `db:"severity"`         // CHECK IN ('info', 'warning', 'critical')
	CooldownMinutes int    `db:"cooldown_minutes"` // INTEGER, NOT NULL, >= 1, DEFAULT 15
	IsActive        bool   `db:"is_active"`        // BOOLEAN, DEFAULT TRUE

	// 通知渠道列表（JSONB，如 ["email", "websocket"]）
	NotifyChannels json.RawMessage `db:"notify_channels"` // JSONB, nullable

	// 升级策略引用（仅存储，不执行）
	EscalationPolicyID *string `db:"escalation_policy_id"` // UUID, nullable

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Validate 校验规则不变式（创建和更新前调用）
func (r *AlertRule) Validate() error {
	switch r.Condition {
	case ConditionAbove:
		if !r.ThresholdMax.Valid {
			return fmt.Errorf("%w: threshold_max required when condition is 'above'", ErrValidation)
		}
	case ConditionBelow:
		if !r.ThresholdMin.Valid {
			return fmt.Errorf("%w: threshold_min required when condition is 'below'", ErrValidation)
		}
	case ConditionOutsideRange:
		if !r.ThresholdMin.Valid || !r.ThresholdMax.Valid {
			return fmt.Errorf("%w: both threshold_min and threshold_max required for 'outside_range'", ErrValidation)
		}
		if !r.ThresholdMin.Decimal.LessThan(r.ThresholdMax.Decimal) {
			return fmt.Errorf("%w: threshold_min must be less than threshold_max", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: invalid condition: %s", ErrValidation, r.Condition)
	}

	if SeverityRank(r.Severity) < 0 {
		return fmt.Errorf("%w: invalid severity: %s", ErrValidation, r.Severity)
	}
	if r.CooldownMinutes < 1 {
		return fmt.Errorf("%w: cooldown_minutes must be >= 1", ErrValidation)
	}
	return nil
}

// AppliesToZone 判断规则是否作用于指定区域
// 规则 zone_id 为 NULL 表示农场范围（任意区域都匹配）；
// 规则指定了 zone_id 时，必须与传感器所在区域一致。
func (r *AlertRule) AppliesToZone(zoneID *string) bool {
	if r.ZoneID == nil {
		return true
	}
	if zoneID == nil {
		return false
	}
	return *r.ZoneID == *zoneID
}

// Violated 判断读数值是否违反规则条件
// 边界值等于阈值不算违反（所有条件均为严格比较）。
// 第二个返回值为 false 表示规则缺少必要阈值（不变式被破坏），调用方应跳过该规则。
func (r *AlertRule) Violated(value decimal.Decimal) (bool, bool) {
	switch r.Condition {
	case ConditionAbove:
		if !r.ThresholdMax.Valid {
			return false, false
		}
		return value.GreaterThan(r.ThresholdMax.Decimal), true
	case ConditionBelow:
		if !r.ThresholdMin.Valid {
			return false, false
		}
		return value.LessThan(r.ThresholdMin.Decimal), true
	case ConditionOutsideRange:
		if !r.ThresholdMin.Valid || !r.ThresholdMax.Valid {
			return false, false
		}
		return value.LessThan(r.ThresholdMin.Decimal) || value.GreaterThan(r.ThresholdMax.Decimal), true
	default:
		return false, false
	}
}

// Cooldown 返回冷却时长
func (r *AlertRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}
