package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"greenos-alerts/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PostgresAlertRulesRepository AlertRulesRepository 的 PostgreSQL 实现
type PostgresAlertRulesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresAlertRulesRepository(db *sql.DB, logger *zap.Logger) *PostgresAlertRulesRepository {
	return &PostgresAlertRulesRepository{db: db, logger: logger}
}

const alertRuleColumns = `
	rule_id,
	farm_id,
	zone_id,
	sensor_type,
	condition,
	threshold_min,
	threshold_max,
	severity,
	cooldown_minutes,
	is_active,
	notify_channels,
	escalation_policy_id,
	created_at,
	updated_at`

// CreateRule 创建规则
func (r *PostgresAlertRulesRepository) CreateRule(ctx context.Context, rule *domain.AlertRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule is required", domain.ErrValidation)
	}
	if rule.FarmID == "" {
		return fmt.Errorf("%w: farm_id is required", domain.ErrValidation)
	}

	query := `
		INSERT INTO alert_rules (` + alertRuleColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		rule.RuleID,
		rule.FarmID,
		rule.ZoneID,
		rule.SensorType,
		rule.Condition,
		rule.ThresholdMin,
		rule.ThresholdMax,
		rule.Severity,
		rule.CooldownMinutes,
		rule.IsActive,
		rule.NotifyChannels,
		rule.EscalationPolicyID,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to create alert rule: %v", domain.ErrStorage, err)
	}

	return nil
}

// GetRule 获取单个规则（需验证 farm_id）
func (r *PostgresAlertRulesRepository) GetRule(ctx context.Context, farmID, ruleID string) (*domain.AlertRule, error) {
	if farmID == "" {
		return nil, fmt.Errorf("%w: farm_id is required", domain.ErrValidation)
	}
	if ruleID == "" {
		return nil, fmt.Errorf("%w: rule_id is required", domain.ErrValidation)
	}

	query := `
		SELECT ` + alertRuleColumns + `
		FROM alert_rules
		WHERE rule_id = $1
		  AND farm_id = $2
	`

	rule, err := scanAlertRule(r.db.QueryRowContext(ctx, query, ruleID, farmID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: alert rule %s", domain.ErrNotFound, ruleID)
		}
		return nil, fmt.Errorf("%w: failed to get alert rule: %v", domain.ErrStorage, err)
	}

	return rule, nil
}

// UpdateRule 更新规则（部分更新）
func (r *PostgresAlertRulesRepository) UpdateRule(ctx context.Context, farmID, ruleID string, updates map[string]interface{}) error {
	if farmID == "" {
		return fmt.Errorf("%w: farm_id is required", domain.ErrValidation)
	}
	if ruleID == "" {
		return fmt.Errorf("%w: rule_id is required", domain.ErrValidation)
	}
	if len(updates) == 0 {
		return fmt.Errorf("%w: updates cannot be empty", domain.ErrValidation)
	}

	// 允许更新的字段
	allowedFields := map[string]bool{
		"zone_id":              true,
		"sensor_type":          true,
		"condition":            true,
		"threshold_min":        true,
		"threshold_max":        true,
		"severity":             true,
		"cooldown_minutes":     true,
		"is_active":            true,
		"notify_channels":      true,
		"escalation_policy_id": true,
	}

	setParts := []string{}
	args := []interface{}{}
	argN := 1

	for field, value := range updates {
		if !allowedFields[field] {
			return fmt.Errorf("%w: field '%s' is not allowed to update", domain.ErrValidation, field)
		}
		setParts = append(setParts, fmt.Sprintf("%s = $%d", field, argN))
		args = append(args, value)
		argN++
	}

	setParts = append(setParts, "updated_at = CURRENT_TIMESTAMP")

	args = append(args, ruleID, farmID)
	query := fmt.Sprintf(`
		UPDATE alert_rules
		SET %s
		WHERE rule_id = $%d AND farm_id = $%d
	`, strings.Join(setParts, ", "), argN, argN+1)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: failed to update alert rule: %v", domain.ErrStorage, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get rows affected: %v", domain.ErrStorage, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: alert rule %s", domain.ErrNotFound, ruleID)
	}

	return nil
}

// DeleteRule 硬删除规则
// alerts.alert_rule_id 外键为 ON DELETE SET NULL，历史报警保留（已冗余 severity/title 快照）
func (r *PostgresAlertRulesRepository) DeleteRule(ctx context.Context, farmID, ruleID string) error {
	if farmID == "" {
		return fmt.Errorf("%w: farm_id is required", domain.ErrValidation)
	}
	if ruleID == "" {
		return fmt.Errorf("%w: rule_id is required", domain.ErrValidation)
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM alert_rules WHERE rule_id = $1 AND farm_id = $2`,
		ruleID, farmID,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to delete alert rule: %v", domain.ErrStorage, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get rows affected: %v", domain.ErrStorage, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: alert rule %s", domain.ErrNotFound, ruleID)
	}

	return nil
}

// ListRules 列表查询（分页，按创建时间倒序）
func (r *PostgresAlertRulesRepository) ListRules(ctx context.Context, farmID string, page, size int) ([]*domain.AlertRule, int, error) {
	if farmID == "" {
		return []*domain.AlertRule{}, 0, nil
	}

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alert_rules WHERE farm_id = $1`, farmID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to count alert rules: %v", domain.ErrStorage, err)
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	query := `
		SELECT ` + alertRuleColumns + `
		FROM alert_rules
		WHERE farm_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, farmID, size, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to query alert rules: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	rules, err := collectAlertRules(rows)
	if err != nil {
		return nil, 0, err
	}

	return rules, total, nil
}

// ListActiveRulesForSensorType 获取指定传感器类型的活跃规则
func (r *PostgresAlertRulesRepository) ListActiveRulesForSensorType(ctx context.Context, farmID, sensorType string) ([]*domain.AlertRule, error) {
	if farmID == "" {
		return nil, fmt.Errorf("%w: farm_id is required", domain.ErrValidation)
	}
	if sensorType == "" {
		return nil, fmt.Errorf("%w: sensor_type is required", domain.ErrValidation)
	}

	query := `
		SELECT ` + alertRuleColumns + `
		FROM alert_rules
		WHERE farm_id = $1
		  AND sensor_type = $2
		  AND is_active = TRUE
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, farmID, sensorType)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query active alert rules: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	return collectAlertRules(rows)
}

// rowScanner 兼容 *sql.Row 和 *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlertRule(row rowScanner) (*domain.AlertRule, error) {
	var rule domain.AlertRule
	var zoneID, escalationPolicyID sql.NullString
	var thresholdMin, thresholdMax decimal.NullDecimal
	var notifyChannels []byte

	err := row.Scan(
		&rule.RuleID,
		&rule.FarmID,
		&zoneID,
		&rule.SensorType,
		&rule.Condition,
		&thresholdMin,
		&thresholdMax,
		&rule.Severity,
		&rule.CooldownMinutes,
		&rule.IsActive,
		&notifyChannels,
		&escalationPolicyID,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if zoneID.Valid {
		rule.ZoneID = &zoneID.String
	}
	if escalationPolicyID.Valid {
		rule.EscalationPolicyID = &escalationPolicyID.String
	}
	rule.ThresholdMin = thresholdMin
	rule.ThresholdMax = thresholdMax
	if len(notifyChannels) > 0 {
		rule.NotifyChannels = notifyChannels
	} else {
		rule.NotifyChannels = json.RawMessage("[]")
	}

	return &rule, nil
}

func collectAlertRules(rows *sql.Rows) ([]*domain.AlertRule, error) {
	rules := []*domain.AlertRule{}
	for rows.Next() {
		rule, err := scanAlertRule(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan alert rule: %v", domain.ErrStorage, err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate alert rules: %v", domain.ErrStorage, err)
	}
	return rules, nil
}
