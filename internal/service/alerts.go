package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"greenos-alerts/internal/domain"
	"greenos-alerts/internal/notifier"
	"greenos-alerts/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// AlertsService 告警生命周期管理
//
// 状态机：active → acknowledged → resolved/expired，
// 非法流转返回 domain.ErrInvalidTransition。
type AlertsService struct {
	alertsRepo repository.AlertsRepository
	publisher  notifier.Publisher
	cache      *redis.Client // 可为 nil（无缓存模式）
	logger     *zap.Logger

	cacheKeyPrefix string
	cacheTTL       time.Duration
	now            func() time.Time
}

type AlertsCacheConfig struct {
	KeyPrefix string
	TTL       time.Duration
}

func NewAlertsService(
	alertsRepo repository.AlertsRepository,
	publisher notifier.Publisher,
	cache *redis.Client,
	cacheCfg AlertsCacheConfig,
	logger *zap.Logger,
) *AlertsService {
	return &AlertsService{
		alertsRepo:     alertsRepo,
		publisher:      publisher,
		cache:          cache,
		logger:         logger,
		cacheKeyPrefix: cacheCfg.KeyPrefix,
		cacheTTL:       cacheCfg.TTL,
		now:            time.Now,
	}
}

func (s *AlertsService) GetAlert(ctx context.Context, farmID, alertID string) (*domain.Alert, error) {
	return s.alertsRepo.GetAlert(ctx, farmID, alertID)
}

func (s *AlertsService) ListAlerts(ctx context.Context, farmID string, filters repository.AlertFilters, page, size int) ([]*domain.Alert, int, error) {
	return s.alertsRepo.ListAlerts(ctx, farmID, filters, page, size)
}

// Acknowledge 确认告警（仅 active 可确认）
func (s *AlertsService) Acknowledge(ctx context.Context, farmID, alertID, userID string, notes *string) (*domain.Alert, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}

	alert, err := s.alertsRepo.GetAlert(ctx, farmID, alertID)
	if err != nil {
		return nil, err
	}
	if err := domain.CanTransition(alert.Status, domain.AlertStatusAcknowledged); err != nil {
		return nil, err
	}

	now := s.now()
	updates := map[string]interface{}{
		"status":          domain.AlertStatusAcknowledged,
		"acknowledged_by": userID,
		"acknowledged_at": now,
	}
	if notes != nil {
		updates["notes"] = *notes
	}
	if err := s.alertsRepo.UpdateAlert(ctx, farmID, alertID, updates); err != nil {
		return nil, err
	}

	s.invalidateActiveCache(ctx, farmID)
	updated, err := s.alertsRepo.GetAlert(ctx, farmID, alertID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Alert acknowledged",
		zap.String("alert_id", alertID),
		zap.String("farm_id", farmID),
		zap.String("user_id", userID),
	)
	s.publisher.PublishAlert(ctx, updated)
	return updated, nil
}

// Resolve 解决告警（active 或 acknowledged 可解决；重复解决视为非法流转）
func (s *AlertsService) Resolve(ctx context.Context, farmID, alertID string, notes *string) (*domain.Alert, error) {
	alert, err := s.alertsRepo.GetAlert(ctx, farmID, alertID)
	if err != nil {
		return nil, err
	}
	if err := domain.CanTransition(alert.Status, domain.AlertStatusResolved); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"status":      domain.AlertStatusResolved,
		"resolved_at": s.now(),
	}
	if notes != nil {
		updates["notes"] = *notes
	}
	if err := s.alertsRepo.UpdateAlert(ctx, farmID, alertID, updates); err != nil {
		return nil, err
	}

	s.invalidateActiveCache(ctx, farmID)
	updated, err := s.alertsRepo.GetAlert(ctx, farmID, alertID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Alert resolved",
		zap.String("alert_id", alertID),
		zap.String("farm_id", farmID),
	)
	s.publisher.PublishAlert(ctx, updated)
	return updated, nil
}

// CountActive 活跃告警计数（可按严重级过滤）
func (s *AlertsService) CountActive(ctx context.Context, farmID, severity string) (int, error) {
	return s.alertsRepo.CountActiveAlerts(ctx, farmID, severity)
}

// ListActiveAlerts 活跃告警列表，带短 TTL 的 Redis 缓存（仪表盘轮询用）
func (s *AlertsService) ListActiveAlerts(ctx context.Context, farmID string) ([]*domain.Alert, error) {
	key := s.activeCacheKey(farmID)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key).Bytes()
		if err == nil {
			var alerts []*domain.Alert
			if err := json.Unmarshal(cached, &alerts); err == nil {
				return alerts, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn("Failed to read active alerts cache",
				zap.String("farm_id", farmID),
				zap.Error(err))
		}
	}

	alerts, _, err := s.alertsRepo.ListAlerts(ctx, farmID, repository.AlertFilters{
		Status: domain.AlertStatusActive,
	}, 1, 500)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(alerts); err == nil {
			if err := s.cache.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
				s.logger.Warn("Failed to write active alerts cache",
					zap.String("farm_id", farmID),
					zap.Error(err))
			}
		}
	}

	return alerts, nil
}

func (s *AlertsService) activeCacheKey(farmID string) string {
	return fmt.Sprintf("%s%s:active_alerts", s.cacheKeyPrefix, farmID)
}

func (s *AlertsService) invalidateActiveCache(ctx context.Context, farmID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, s.activeCacheKey(farmID)).Err(); err != nil {
		s.logger.Warn("Failed to invalidate active alerts cache",
			zap.String("farm_id", farmID),
			zap.Error(err))
	}
}
