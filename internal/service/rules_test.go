package service

import (
	"context"
	"testing"

	"greenos-alerts/internal/domain"
	"greenos-alerts/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRulesService(t *testing.T) (*RulesService, *repository.MemoryAlertRulesRepo) {
	t.Helper()
	repo := repository.NewMemoryAlertRulesRepo()
	return NewRulesService(repo, zap.NewNop()), repo
}

func ruleInput() *domain.AlertRule {
	return &domain.AlertRule{
		FarmID:          "farm-1",
		SensorType:      domain.SensorTypePH,
		Condition:       domain.ConditionAbove,
		ThresholdMax:    decimal.NullDecimal{Decimal: decimal.NewFromFloat(7.0), Valid: true},
		Severity:        domain.SeverityWarning,
		CooldownMinutes: 15,
		IsActive:        true,
	}
}

func TestCreateRuleAssignsDefaults(t *testing.T) {
	svc, _ := newTestRulesService(t)
	ctx := context.Background()

	input := ruleInput()
	input.CooldownMinutes = 0 // 未提供时取默认 15
	created, err := svc.CreateRule(ctx, input)
	require.NoError(t, err)
	assert.NotEmpty(t, created.RuleID)
	assert.Equal(t, 15, created.CooldownMinutes)
	assert.JSONEq(t, `["dashboard"]`, string(created.NotifyChannels))
	assert.False(t, created.CreatedAt.IsZero())
}

func TestCreateRuleRejectsInvalid(t *testing.T) {
	svc, _ := newTestRulesService(t)
	ctx := context.Background()

	input := ruleInput()
	input.ThresholdMax = decimal.NullDecimal{}
	_, err := svc.CreateRule(ctx, input)
	assert.ErrorIs(t, err, domain.ErrValidation)

	input = ruleInput()
	input.FarmID = ""
	_, err = svc.CreateRule(ctx, input)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpdateRuleRevalidatesMergedState(t *testing.T) {
	svc, _ := newTestRulesService(t)
	ctx := context.Background()

	created, err := svc.CreateRule(ctx, ruleInput())
	require.NoError(t, err)

	// 把 condition 改成 below 但没有 threshold_min：合并后不成立
	_, err = svc.UpdateRule(ctx, "farm-1", created.RuleID, map[string]interface{}{
		"condition": domain.ConditionBelow,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	// 同时补上 threshold_min 则合法
	updated, err := svc.UpdateRule(ctx, "farm-1", created.RuleID, map[string]interface{}{
		"condition":     domain.ConditionBelow,
		"threshold_min": 5.5,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ConditionBelow, updated.Condition)
	assert.True(t, updated.ThresholdMin.Valid)
}

func TestUpdateRuleRejectsUnknownField(t *testing.T) {
	svc, _ := newTestRulesService(t)
	ctx := context.Background()

	created, err := svc.CreateRule(ctx, ruleInput())
	require.NoError(t, err)

	_, err = svc.UpdateRule(ctx, "farm-1", created.RuleID, map[string]interface{}{
		"farm_id": "farm-2",
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDeleteRule(t *testing.T) {
	svc, _ := newTestRulesService(t)
	ctx := context.Background()

	created, err := svc.CreateRule(ctx, ruleInput())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRule(ctx, "farm-1", created.RuleID))
	_, err = svc.GetRule(ctx, "farm-1", created.RuleID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// 再删一次
	assert.ErrorIs(t, svc.DeleteRule(ctx, "farm-1", created.RuleID), domain.ErrNotFound)
}
