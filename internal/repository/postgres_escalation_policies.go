package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"greenos-alerts/internal/domain"

	"go.uber.org/zap"
)

// PostgresEscalationPoliciesRepository EscalationPoliciesRepository 的 PostgreSQL 实现
type PostgresEscalationPoliciesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresEscalationPoliciesRepository(db *sql.DB, logger *zap.Logger) *PostgresEscalationPoliciesRepository {
	return &PostgresEscalationPoliciesRepository{db: db, logger: logger}
}

// CreatePolicy 创建升级策略
func (r *PostgresEscalationPoliciesRepository) CreatePolicy(ctx context.Context, policy *domain.EscalationPolicy) error {
	if policy == nil {
		return fmt.Errorf("%w: policy is required", domain.ErrValidation)
	}
	if policy.FarmID == "" {
		return fmt.Errorf("%w: farm_id is required", domain.ErrValidation)
	}
	if policy.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO escalation_policies (
			policy_id, farm_id, name, steps, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`,
		policy.PolicyID,
		policy.FarmID,
		policy.Name,
		policy.Steps,
		policy.CreatedAt,
		policy.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to create escalation policy: %v", domain.ErrStorage, err)
	}

	return nil
}

// GetPolicy 获取单个升级策略（需验证 farm_id）
func (r *PostgresEscalationPoliciesRepository) GetPolicy(ctx context.Context, farmID, policyID string) (*domain.EscalationPolicy, error) {
	if farmID == "" {
		return nil, fmt.Errorf("%w: farm_id is required", domain.ErrValidation)
	}
	if policyID == "" {
		return nil, fmt.Errorf("%w: policy_id is required", domain.ErrValidation)
	}

	var policy domain.EscalationPolicy
	var steps []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT policy_id, farm_id, name, steps, created_at, updated_at
		FROM escalation_policies
		WHERE policy_id = $1 AND farm_id = $2
	`, policyID, farmID).Scan(
		&policy.PolicyID,
		&policy.FarmID,
		&policy.Name,
		&steps,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: escalation policy %s", domain.ErrNotFound, policyID)
		}
		return nil, fmt.Errorf("%w: failed to get escalation policy: %v", domain.ErrStorage, err)
	}

	if len(steps) > 0 {
		policy.Steps = steps
	} else {
		policy.Steps = json.RawMessage("[]")
	}

	return &policy, nil
}

// ListPolicies 列表查询
func (r *PostgresEscalationPoliciesRepository) ListPolicies(ctx context.Context, farmID string) ([]*domain.EscalationPolicy, error) {
	if farmID == "" {
		return []*domain.EscalationPolicy{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT policy_id, farm_id, name, steps, created_at, updated_at
		FROM escalation_policies
		WHERE farm_id = $1
		ORDER BY name
	`, farmID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query escalation policies: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	policies := []*domain.EscalationPolicy{}
	for rows.Next() {
		var policy domain.EscalationPolicy
		var steps []byte
		if err := rows.Scan(
			&policy.PolicyID,
			&policy.FarmID,
			&policy.Name,
			&steps,
			&policy.CreatedAt,
			&policy.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: failed to scan escalation policy: %v", domain.ErrStorage, err)
		}
		if len(steps) > 0 {
			policy.Steps = steps
		} else {
			policy.Steps = json.RawMessage("[]")
		}
		policies = append(policies, &policy)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate escalation policies: %v", domain.ErrStorage, err)
	}

	return policies, nil
}

// DeletePolicy 删除升级策略（alert_rules.escalation_policy_id 置 NULL）
func (r *PostgresEscalationPoliciesRepository) DeletePolicy(ctx context.Context, farmID, policyID string) error {
	if farmID == "" {
		return fmt.Errorf("%w: farm_id is required", domain.ErrValidation)
	}
	if policyID == "" {
		return fmt.Errorf("%w: policy_id is required", domain.ErrValidation)
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM escalation_policies WHERE policy_id = $1 AND farm_id = $2`,
		policyID, farmID,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to delete escalation policy: %v", domain.ErrStorage, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get rows affected: %v", domain.ErrStorage, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: escalation policy %s", domain.ErrNotFound, policyID)
	}

	return nil
}
