package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// 报警状态（alerts.status）
// 状态单调前进：active → acknowledged → resolved；resolved 和 expired 为终态。
const (
	AlertStatusActive       = "active"
	AlertStatusAcknowledged = "acknowledged"
	AlertStatusResolved     = "resolved"
	AlertStatusExpired      = "expired"
)

// alertTransitions 状态转换表（显式表驱动，拒绝一切未列出的转换）
var alertTransitions = map[string]map[string]bool{
	AlertStatusActive: {
		AlertStatusAcknowledged: true,
		AlertStatusResolved:     true,
		AlertStatusExpired:      true,
	},
	AlertStatusAcknowledged: {
		AlertStatusResolved: true,
		AlertStatusExpired:  true,
	},
	// resolved 和 expired 为终态，无出边
}

// CanTransition 校验状态转换是否合法
func CanTransition(from, to string) error {
	if alertTransitions[from][to] {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Alert 报警领域模型（对应 alerts 表）
// severity/title/message/triggered_value 在触发时从规则快照复制，
// 规则后续修改或删除不影响历史报警（rule_id 在规则删除时置 NULL）。
type Alert struct {
	AlertID string `db:"alert_id"` // UUID, PRIMARY KEY

	// farm_id 冗余存储：规则删除后仍可按农场查询报警历史
	FarmID string `db:"farm_id"` // UUID, NOT NULL

	AlertRuleID     *string `db:"alert_rule_id"`     // UUID, nullable, ON DELETE SET NULL
	SensorID        string  `db:"sensor_id"`         // UUID, NOT NULL
	SensorReadingID *int64  `db:"sensor_reading_id"` // BIGINT, nullable

	Severity       string          `db:"severity"` // 触发时从规则复制
	Title          string          `db:"title"`
	Message        *string         `db:"message"`
	TriggeredValue decimal.Decimal `db:"triggered_value"` // NUMERIC(10,4), NOT NULL

	Status string `db:"status"` // DEFAULT 'active'

	AcknowledgedBy *string    `db:"acknowledged_by"` // UUID, nullable
	AcknowledgedAt *time.Time `db:"acknowledged_at"`
	ResolvedAt     *time.Time `db:"resolved_at"`
	Notes          *string    `db:"notes"`

	CreatedAt time.Time `db:"created_at"` // 冷却去重基于该时间
}
