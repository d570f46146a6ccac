package repository

import (
	"context"

	"greenos-alerts/internal/domain"
)

// AlertRulesRepository 报警规则Repository接口
type AlertRulesRepository interface {
	// 创建规则（调用方负责先校验规则不变式）
	CreateRule(ctx context.Context, rule *domain.AlertRule) error

	// 获取单个规则（需验证 farm_id）
	GetRule(ctx context.Context, farmID, ruleID string) (*domain.AlertRule, error)

	// 更新规则（部分更新，updates 为字段名到新值的映射）
	UpdateRule(ctx context.Context, farmID, ruleID string, updates map[string]interface{}) error

	// 硬删除规则（关联报警的 rule_id 置 NULL，历史保留）
	DeleteRule(ctx context.Context, farmID, ruleID string) error

	// 列表查询（分页）
	ListRules(ctx context.Context, farmID string, page, size int) ([]*domain.AlertRule, int, error)

	// 获取指定传感器类型的活跃规则（评估引擎使用）
	ListActiveRulesForSensorType(ctx context.Context, farmID, sensorType string) ([]*domain.AlertRule, error)
}
