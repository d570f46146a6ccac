package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"greenos-alerts/internal/domain"
	"greenos-alerts/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PoliciesService 升级策略管理。
// 策略仅存储并挂接到规则上，升级步骤的执行由外部通知系统负责。
type PoliciesService struct {
	policiesRepo repository.EscalationPoliciesRepository
	logger       *zap.Logger
	now          func() time.Time
}

func NewPoliciesService(policiesRepo repository.EscalationPoliciesRepository, logger *zap.Logger) *PoliciesService {
	return &PoliciesService{
		policiesRepo: policiesRepo,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *PoliciesService) CreatePolicy(ctx context.Context, policy *domain.EscalationPolicy) (*domain.EscalationPolicy, error) {
	if policy == nil {
		return nil, fmt.Errorf("%w: policy is required", domain.ErrValidation)
	}
	if policy.FarmID == "" {
		return nil, fmt.Errorf("%w: farm_id is required", domain.ErrValidation)
	}
	if policy.Name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if len(policy.Steps) == 0 {
		policy.Steps = json.RawMessage("[]")
	} else if !json.Valid(policy.Steps) {
		return nil, fmt.Errorf("%w: steps must be valid JSON", domain.ErrValidation)
	}

	now := s.now()
	policy.PolicyID = uuid.NewString()
	policy.CreatedAt = now
	policy.UpdatedAt = now
	if err := s.policiesRepo.CreatePolicy(ctx, policy); err != nil {
		return nil, err
	}

	s.logger.Info("Escalation policy created",
		zap.String("policy_id", policy.PolicyID),
		zap.String("farm_id", policy.FarmID),
	)
	return policy, nil
}

func (s *PoliciesService) GetPolicy(ctx context.Context, farmID, policyID string) (*domain.EscalationPolicy, error) {
	return s.policiesRepo.GetPolicy(ctx, farmID, policyID)
}

func (s *PoliciesService) ListPolicies(ctx context.Context, farmID string) ([]*domain.EscalationPolicy, error) {
	return s.policiesRepo.ListPolicies(ctx, farmID)
}

func (s *PoliciesService) DeletePolicy(ctx context.Context, farmID, policyID string) error {
	if err := s.policiesRepo.DeletePolicy(ctx, farmID, policyID); err != nil {
		return err
	}
	s.logger.Info("Escalation policy deleted",
		zap.String("policy_id", policyID),
		zap.String("farm_id", farmID),
	)
	return nil
}
