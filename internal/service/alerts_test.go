package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"greenos-alerts/internal/domain"
	"greenos-alerts/internal/notifier"
	"greenos-alerts/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAlertsService(t *testing.T, cache *redis.Client) (*AlertsService, *repository.MemoryAlertsRepo) {
	t.Helper()
	alertsRepo := repository.NewMemoryAlertsRepo()
	svc := NewAlertsService(alertsRepo, notifier.NopPublisher{}, cache, AlertsCacheConfig{
		KeyPrefix: "greenos:farm:",
		TTL:       30 * time.Second,
	}, zap.NewNop())
	return svc, alertsRepo
}

func seedAlert(t *testing.T, repo *repository.MemoryAlertsRepo, status string) *domain.Alert {
	t.Helper()
	ruleID := uuid.NewString()
	alert := &domain.Alert{
		AlertID:        uuid.NewString(),
		FarmID:         "farm-1",
		AlertRuleID:    &ruleID,
		SensorID:       "sensor-1",
		Severity:       domain.SeverityWarning,
		Title:          "PH alert on Tank A pH probe",
		TriggeredValue: decimal.NewFromFloat(7.5),
		Status:         status,
		CreatedAt:      time.Now(),
	}
	require.NoError(t, repo.CreateAlert(context.Background(), alert))
	return alert
}

func TestAcknowledgeActiveAlert(t *testing.T) {
	svc, repo := newTestAlertsService(t, nil)
	ctx := context.Background()
	alert := seedAlert(t, repo, domain.AlertStatusActive)

	notes := "checking the dosing pump"
	updated, err := svc.Acknowledge(ctx, "farm-1", alert.AlertID, "user-1", &notes)
	require.NoError(t, err)
	assert.Equal(t, domain.AlertStatusAcknowledged, updated.Status)
	require.NotNil(t, updated.AcknowledgedBy)
	assert.Equal(t, "user-1", *updated.AcknowledgedBy)
	assert.NotNil(t, updated.AcknowledgedAt)
	require.NotNil(t, updated.Notes)
	assert.Equal(t, notes, *updated.Notes)
}

func TestAcknowledgeRequiresActiveStatus(t *testing.T) {
	svc, repo := newTestAlertsService(t, nil)
	ctx := context.Background()

	resolved := seedAlert(t, repo, domain.AlertStatusResolved)
	_, err := svc.Acknowledge(ctx, "farm-1", resolved.AlertID, "user-1", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	acked := seedAlert(t, repo, domain.AlertStatusAcknowledged)
	_, err = svc.Acknowledge(ctx, "farm-1", acked.AlertID, "user-1", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestResolveFromActiveAndAcknowledged(t *testing.T) {
	svc, repo := newTestAlertsService(t, nil)
	ctx := context.Background()

	active := seedAlert(t, repo, domain.AlertStatusActive)
	updated, err := svc.Resolve(ctx, "farm-1", active.AlertID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.AlertStatusResolved, updated.Status)
	assert.NotNil(t, updated.ResolvedAt)

	acked := seedAlert(t, repo, domain.AlertStatusAcknowledged)
	updated, err = svc.Resolve(ctx, "farm-1", acked.AlertID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.AlertStatusResolved, updated.Status)
}

func TestResolveAlreadyResolvedRejected(t *testing.T) {
	svc, repo := newTestAlertsService(t, nil)
	ctx := context.Background()

	alert := seedAlert(t, repo, domain.AlertStatusActive)
	_, err := svc.Resolve(ctx, "farm-1", alert.AlertID, nil)
	require.NoError(t, err)

	// 重复解决视为非法转换
	_, err = svc.Resolve(ctx, "farm-1", alert.AlertID, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestLifecycleCrossFarmIsolation(t *testing.T) {
	svc, repo := newTestAlertsService(t, nil)
	ctx := context.Background()

	alert := seedAlert(t, repo, domain.AlertStatusActive)
	_, err := svc.Acknowledge(ctx, "farm-2", alert.AlertID, "user-1", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListActiveAlertsCaching(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	svc, repo := newTestAlertsService(t, cache)
	ctx := context.Background()
	seedAlert(t, repo, domain.AlertStatusActive)
	seedAlert(t, repo, domain.AlertStatusResolved)

	alerts, err := svc.ListActiveAlerts(ctx, "farm-1")
	require.NoError(t, err)
	assert.Len(t, alerts, 1)

	// 缓存已写入
	cached, err := cache.Get(ctx, "greenos:farm:farm-1:active_alerts").Bytes()
	require.NoError(t, err)
	var fromCache []*domain.Alert
	require.NoError(t, json.Unmarshal(cached, &fromCache))
	assert.Len(t, fromCache, 1)

	// 缓存命中：仓库里新增的活跃告警在 TTL 内不可见
	seedAlert(t, repo, domain.AlertStatusActive)
	alerts, err = svc.ListActiveAlerts(ctx, "farm-1")
	require.NoError(t, err)
	assert.Len(t, alerts, 1)

	// 确认告警会使缓存失效
	_, err = svc.Acknowledge(ctx, "farm-1", alerts[0].AlertID, "user-1", nil)
	require.NoError(t, err)
	alerts, err = svc.ListActiveAlerts(ctx, "farm-1")
	require.NoError(t, err)
	assert.Len(t, alerts, 1) // 剩下后来新增的那条
}

func TestCountActive(t *testing.T) {
	svc, repo := newTestAlertsService(t, nil)
	ctx := context.Background()

	a := seedAlert(t, repo, domain.AlertStatusActive)
	require.NoError(t, repo.UpdateAlert(ctx, "farm-1", a.AlertID, map[string]interface{}{
		"status": domain.AlertStatusActive,
	}))
	b := seedAlert(t, repo, domain.AlertStatusActive)
	require.NoError(t, repo.UpdateAlert(ctx, "farm-1", b.AlertID, map[string]interface{}{
		"status": domain.AlertStatusActive,
	}))
	seedAlert(t, repo, domain.AlertStatusResolved)

	count, err := svc.CountActive(ctx, "farm-1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = svc.CountActive(ctx, "farm-1", domain.SeverityCritical)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
