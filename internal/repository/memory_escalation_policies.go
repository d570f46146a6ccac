package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"greenos-alerts/internal/domain"
)

// MemoryEscalationPoliciesRepo EscalationPoliciesRepository 的内存实现
type MemoryEscalationPoliciesRepo struct {
	mu       sync.RWMutex
	policies map[string]domain.EscalationPolicy
}

func NewMemoryEscalationPoliciesRepo() *MemoryEscalationPoliciesRepo {
	return &MemoryEscalationPoliciesRepo{
		policies: map[string]domain.EscalationPolicy{},
	}
}

func (r *MemoryEscalationPoliciesRepo) CreatePolicy(_ context.Context, policy *domain.EscalationPolicy) error {
	if policy == nil {
		return fmt.Errorf("%w: policy is required", domain.ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[policy.PolicyID] = *policy
	return nil
}

func (r *MemoryEscalationPoliciesRepo) GetPolicy(_ context.Context, farmID, policyID string) (*domain.EscalationPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	policy, ok := r.policies[policyID]
	if !ok || policy.FarmID != farmID {
		return nil, fmt.Errorf("%w: escalation policy %s", domain.ErrNotFound, policyID)
	}
	out := policy
	return &out, nil
}

func (r *MemoryEscalationPoliciesRepo) ListPolicies(_ context.Context, farmID string) ([]*domain.EscalationPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*domain.EscalationPolicy{}
	for id := range r.policies {
		policy := r.policies[id]
		if policy.FarmID != farmID {
			continue
		}
		c := policy
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *MemoryEscalationPoliciesRepo) DeletePolicy(_ context.Context, farmID, policyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	policy, ok := r.policies[policyID]
	if !ok || policy.FarmID != farmID {
		return fmt.Errorf("%w: escalation policy %s", domain.ErrNotFound, policyID)
	}
	delete(r.policies, policyID)
	return nil
}
