package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"greenos-alerts/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PostgresAlertsRepository AlertsRepository 的 PostgreSQL 实现
type PostgresAlertsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresAlertsRepository(db *sql.DB, logger *zap.Logger) *PostgresAlertsRepository {
	return &PostgresAlertsRepository{db: db, logger: logger}
}

const alertColumns = `
	alert_id,
	farm_id,
	alert_rule_id,
	sensor_id,
	sensor_reading_id,
	severity,
	title,
	message,
	triggered_value,
	status,
	acknowledged_by,
	acknowledged_at,
	resolved_at,
	notes,
	created_at`

// CreateAlert 创建报警
func (r *PostgresAlertsRepository) CreateAlert(ctx context.Context, alert *domain.Alert) error {
	if alert == nil {
		return fmt.Errorf("%w: alert is required", domain.ErrValidation)
	}
	if alert.FarmID == "" {
		return fmt.Errorf("%w: farm_id is required", domain.ErrValidation)
	}

	query := `
		INSERT INTO alerts (` + alertColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		alert.AlertID,
		alert.FarmID,
		alert.AlertRuleID,
		alert.SensorID,
		alert.SensorReadingID,
		alert.Severity,
		alert.Title,
		alert.Message,
		alert.TriggeredValue,
		alert.Status,
		alert.AcknowledgedBy,
		alert.AcknowledgedAt,
		alert.ResolvedAt,
		alert.Notes,
		alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to create alert: %v", domain.ErrStorage, err)
	}

	return nil
}

// CreateAlertIfNoneSince 条件创建：仅当该规则自 since 以来没有报警时插入。
// 单条 INSERT ... SELECT WHERE NOT EXISTS，冷却检查和写入在一个语句内完成，
// 并发读数竞争时最多只有一条报警落库。
func (r *PostgresAlertsRepository) CreateAlertIfNoneSince(ctx context.Context, alert *domain.Alert, since time.Time) (bool, error) {
	if alert == nil {
		return false, fmt.Errorf("%w: alert is required", domain.ErrValidation)
	}
	if alert.AlertRuleID == nil {
		return false, fmt.Errorf("%w: alert_rule_id is required for deduplicated create", domain.ErrValidation)
	}

	query := `
		INSERT INTO alerts (` + alertColumns + `
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		WHERE NOT EXISTS (
			SELECT 1 FROM alerts
			WHERE alert_rule_id = $3
			  AND created_at >= $16
		)
	`

	result, err := r.db.ExecContext(ctx, query,
		alert.AlertID,
		alert.FarmID,
		alert.AlertRuleID,
		alert.SensorID,
		alert.SensorReadingID,
		alert.Severity,
		alert.Title,
		alert.Message,
		alert.TriggeredValue,
		alert.Status,
		alert.AcknowledgedBy,
		alert.AcknowledgedAt,
		alert.ResolvedAt,
		alert.Notes,
		alert.CreatedAt,
		since,
	)
	if err != nil {
		return false, fmt.Errorf("%w: failed to create alert: %v", domain.ErrStorage, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: failed to get rows affected: %v", domain.ErrStorage, err)
	}

	return rowsAffected > 0, nil
}

// GetAlert 获取单个报警（需验证 farm_id）
func (r *PostgresAlertsRepository) GetAlert(ctx context.Context, farmID, alertID string) (*domain.Alert, error) {
	if farmID == "" {
		return nil, fmt.Errorf("%w: farm_id is required", domain.ErrValidation)
	}
	if alertID == "" {
		return nil, fmt.Errorf("%w: alert_id is required", domain.ErrValidation)
	}

	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE alert_id = $1
		  AND farm_id = $2
	`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, alertID, farmID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: alert %s", domain.ErrNotFound, alertID)
		}
		return nil, fmt.Errorf("%w: failed to get alert: %v", domain.ErrStorage, err)
	}

	return alert, nil
}

// buildAlertWhere 构建 WHERE 子句
func buildAlertWhere(farmID string, filters AlertFilters, args *[]interface{}, argN *int) []string {
	where := []string{fmt.Sprintf("farm_id = $%d", *argN)}
	*args = append(*args, farmID)
	*argN++

	if filters.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", *argN))
		*args = append(*args, filters.Status)
		*argN++
	}
	if len(filters.Statuses) > 0 {
		placeholders := make([]string, len(filters.Statuses))
		for i := range filters.Statuses {
			placeholders[i] = fmt.Sprintf("$%d", *argN)
			*args = append(*args, filters.Statuses[i])
			*argN++
		}
		where = append(where, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filters.Severity != "" {
		where = append(where, fmt.Sprintf("severity = $%d", *argN))
		*args = append(*args, filters.Severity)
		*argN++
	}
	if filters.SensorID != "" {
		where = append(where, fmt.Sprintf("sensor_id = $%d", *argN))
		*args = append(*args, filters.SensorID)
		*argN++
	}
	if filters.RuleID != "" {
		where = append(where, fmt.Sprintf("alert_rule_id = $%d", *argN))
		*args = append(*args, filters.RuleID)
		*argN++
	}
	if filters.StartTime != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", *argN))
		*args = append(*args, *filters.StartTime)
		*argN++
	}
	if filters.EndTime != nil {
		where = append(where, fmt.Sprintf("created_at <= $%d", *argN))
		*args = append(*args, *filters.EndTime)
		*argN++
	}

	return where
}

// ListAlerts 列表查询（支持过滤、分页）
func (r *PostgresAlertsRepository) ListAlerts(ctx context.Context, farmID string, filters AlertFilters, page, size int) ([]*domain.Alert, int, error) {
	if farmID == "" {
		return []*domain.Alert{}, 0, nil
	}

	args := []interface{}{}
	argN := 1
	where := buildAlertWhere(farmID, filters, &args, &argN)
	whereClause := "WHERE " + strings.Join(where, " AND ")

	var total int
	queryCount := fmt.Sprintf(`SELECT COUNT(*) FROM alerts %s`, whereClause)
	if err := r.db.QueryRowContext(ctx, queryCount, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: failed to count alerts: %v", domain.ErrStorage, err)
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`
		SELECT `+alertColumns+`
		FROM alerts
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, len(args)+1, len(args)+2)
	args = append(args, size, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to query alerts: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	alerts, err := collectAlerts(rows)
	if err != nil {
		return nil, 0, err
	}

	return alerts, total, nil
}

// GetRecentAlertForRule 获取规则自 since 以来最近一次报警（冷却检查）
// 没有找到返回 nil, nil
func (r *PostgresAlertsRepository) GetRecentAlertForRule(ctx context.Context, ruleID string, since time.Time) (*domain.Alert, error) {
	if ruleID == "" {
		return nil, fmt.Errorf("%w: rule_id is required", domain.ErrValidation)
	}

	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE alert_rule_id = $1
		  AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, ruleID, since))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to query recent alert: %v", domain.ErrStorage, err)
	}

	return alert, nil
}

// UpdateAlert 更新报警（部分更新）
func (r *PostgresAlertsRepository) UpdateAlert(ctx context.Context, farmID, alertID string, updates map[string]interface{}) error {
	if farmID == "" {
		return fmt.Errorf("%w: farm_id is required", domain.ErrValidation)
	}
	if alertID == "" {
		return fmt.Errorf("%w: alert_id is required", domain.ErrValidation)
	}
	if len(updates) == 0 {
		return fmt.Errorf("%w: updates cannot be empty", domain.ErrValidation)
	}

	// 允许更新的字段（创建时快照的字段不可变）
	allowedFields := map[string]bool{
		"status":          true,
		"acknowledged_by": true,
		"acknowledged_at": true,
		"resolved_at":     true,
		"notes":           true,
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

	args = append(args, alertID, farmID)
	query := fmt.Sprintf(`
		UPDATE alerts
		SET %s
		WHERE alert_id = $%d AND farm_id = $%d
	`, strings.Join(setParts, ", "), argN, argN+1)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: failed to update alert: %v", domain.ErrStorage, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get rows affected: %v", domain.ErrStorage, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: alert %s", domain.ErrNotFound, alertID)
	}

	return nil
}

// CountActiveAlerts 统计活跃报警数量
func (r *PostgresAlertsRepository) CountActiveAlerts(ctx context.Context, farmID, severity string) (int, error) {
	if farmID == "" {
		return 0, nil
	}

	query := `SELECT COUNT(*) FROM alerts WHERE farm_id = $1 AND status = 'active'`
	args := []interface{}{farmID}
	if severity != "" {
		query += ` AND severity = $2`
		args = append(args, severity)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("%w: failed to count active alerts: %v", domain.ErrStorage, err)
	}

	return total, nil
}

// DeleteResolvedBefore 删除 cutoff 之前已解决的报警（保留期清理）
func (r *PostgresAlertsRepository) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM alerts WHERE status = 'resolved' AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete resolved alerts: %v", domain.ErrStorage, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get rows affected: %v", domain.ErrStorage, err)
	}

	return rowsAffected, nil
}

// ExpireAlertsCreatedBefore 将 cutoff 之前仍未关闭的报警置为 expired（过期任务）
func (r *PostgresAlertsRepository) ExpireAlertsCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET status = 'expired' WHERE status IN ('active', 'acknowledged') AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to expire alerts: %v", domain.ErrStorage, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get rows affected: %v", domain.ErrStorage, err)
	}

	return rowsAffected, nil
}

// ListAlertsCreatedBetween 查询时间窗口内创建的报警（跨农场，报表任务使用）
func (r *PostgresAlertsRepository) ListAlertsCreatedBetween(ctx context.Context, start, end time.Time) ([]*domain.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE created_at >= $1
		  AND created_at < $2
		ORDER BY farm_id, created_at
	`

	rows, err := r.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query alerts: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

func scanAlert(row rowScanner) (*domain.Alert, error) {
	var alert domain.Alert
	var ruleID, acknowledgedBy, message, notes sql.NullString
	var readingID sql.NullInt64
	var acknowledgedAt, resolvedAt sql.NullTime
	var triggeredValue decimal.Decimal

	err := row.Scan(
		&alert.AlertID,
		&alert.FarmID,
		&ruleID,
		&alert.SensorID,
		&readingID,
		&alert.Severity,
		&alert.Title,
		&message,
		&triggeredValue,
		&alert.Status,
		&acknowledgedBy,
		&acknowledgedAt,
		&resolvedAt,
		&notes,
		&alert.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if ruleID.Valid {
		alert.AlertRuleID = &ruleID.String
	}
	if readingID.Valid {
		alert.SensorReadingID = &readingID.Int64
	}
	if message.Valid {
		alert.Message = &message.String
	}
	if acknowledgedBy.Valid {
		alert.AcknowledgedBy = &acknowledgedBy.String
	}
	if acknowledgedAt.Valid {
		alert.AcknowledgedAt = &acknowledgedAt.Time
	}
	if resolvedAt.Valid {
		alert.ResolvedAt = &resolvedAt.Time
	}
	if notes.Valid {
		alert.Notes = &notes.String
	}
	alert.TriggeredValue = triggeredValue

	return &alert, nil
}

func collectAlerts(rows *sql.Rows) ([]*domain.Alert, error) {
	alerts := []*domain.Alert{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan alert: %v", domain.ErrStorage, err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate alerts: %v", domain.ErrStorage, err)
	}
	return alerts, nil
}
