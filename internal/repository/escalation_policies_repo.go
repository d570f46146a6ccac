package repository

import (
	"context"

	"greenos-alerts/internal/domain"
)

// EscalationPoliciesRepository 升级策略Repository接口（仅存储，不执行步骤）
type EscalationPoliciesRepository interface {
	CreatePolicy(ctx context.Context, policy *domain.EscalationPolicy) error
	GetPolicy(ctx context.Context, farmID, policyID string) (*domain.EscalationPolicy, error)
	ListPolicies(ctx context.Context, farmID string) ([]*domain.EscalationPolicy, error)
	DeletePolicy(ctx context.Context, farmID, policyID string) error
}
