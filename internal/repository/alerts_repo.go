package repository

import (
	"context"
	"time"

	"greenos-alerts/internal/domain"
)

// AlertFilters 报警过滤条件（空字符串表示不过滤）
type AlertFilters struct {
	// 状态过滤
	Status   string
	Statuses []string // IN 查询

	// 级别过滤
	Severity string

	// 关联过滤
	SensorID string
	RuleID   string

	// 时间段过滤（created_at）
	StartTime *time.Time
	EndTime   *time.Time
}

// AlertsRepository 报警Repository接口
type AlertsRepository interface {
	// 创建报警
	CreateAlert(ctx context.Context, alert *domain.Alert) error

	// 条件创建：仅当该规则自 since 以来没有报警时插入（冷却去重，单语句原子）
	// 返回 false 表示冷却窗口内已有报警，本次被抑制
	CreateAlertIfNoneSince(ctx context.Context, alert *domain.Alert, since time.Time) (bool, error)

	// 获取单个报警（需验证 farm_id）
	GetAlert(ctx context.Context, farmID, alertID string) (*domain.Alert, error)

	// 列表查询（支持过滤、分页，按 created_at 倒序）
	ListAlerts(ctx context.Context, farmID string, filters AlertFilters, page, size int) ([]*domain.Alert, int, error)

	// 获取规则自 since 以来最近一次报警（冷却检查；无则返回 nil, nil）
	GetRecentAlertForRule(ctx context.Context, ruleID string, since time.Time) (*domain.Alert, error)

	// 更新报警（部分更新，生命周期管理使用）
	UpdateAlert(ctx context.Context, farmID, alertID string, updates map[string]interface{}) error

	// 统计活跃报警数量（severity 为空表示不过滤级别）
	CountActiveAlerts(ctx context.Context, farmID, severity string) (int, error)

	// 删除 cutoff 之前已解决的报警（保留期清理任务使用）
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// 将 cutoff 之前仍未关闭的报警置为 expired（过期任务使用）
	ExpireAlertsCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// 查询时间窗口内创建的报警（跨农场，报表任务使用）
	ListAlertsCreatedBetween(ctx context.Context, start, end time.Time) ([]*domain.Alert, error)
}
