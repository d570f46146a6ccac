package domain

import (
	"encoding/json"
	"time"
)

// EscalationPolicy 升级策略领域模型（对应 escalation_policies 表）
// 仅存储策略定义；步骤的执行（按延迟逐级通知）由外部协作方负责。
type EscalationPolicy struct {
	PolicyID string `db:"policy_id"` // UUID, PRIMARY KEY
	FarmID   string `db:"farm_id"`   // UUID, NOT NULL
	Name     string `db:"name"`

	// 有序步骤列表（JSONB，每步形如 {"delay_minutes": 10, "channel": "email", "target": "..."}）
	Steps json.RawMessage `db:"steps"` // JSONB, NOT NULL

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
