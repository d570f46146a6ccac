package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"greenos-alerts/internal/domain"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Publisher 向下游推送告警/读数通知。实现必须是 fire-and-forget：
// 推送失败只记录日志，绝不影响调用方的主流程。
type Publisher interface {
	PublishAlert(ctx context.Context, alert *domain.Alert)
	PublishReading(ctx context.Context, sensor *domain.Sensor, reading *domain.SensorReading)
	// NotifyUser 写入收件箱，recipientID 可以是用户或农场
	NotifyUser(ctx context.Context, recipientID string, payload interface{})
}

// envelope 通知统一信封
type envelope struct {
	Type      string      `json:"type"`
	FarmID    string      `json:"farm_id"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// RedisPublisher 基于 Redis PUBLISH 的实现
type RedisPublisher struct {
	client         *redis.Client
	logger         *zap.Logger
	alertsChannel  string
	sensorsChannel string
	userKeyPrefix  string
	userCacheTTL   time.Duration
}

type RedisPublisherConfig struct {
	AlertsChannel  string
	SensorsChannel string
	UserKeyPrefix  string
	UserCacheTTL   time.Duration
}

func NewRedisPublisher(client *redis.Client, logger *zap.Logger, cfg RedisPublisherConfig) *RedisPublisher {
	return &RedisPublisher{
		client:         client,
		logger:         logger,
		alertsChannel:  cfg.AlertsChannel,
		sensorsChannel: cfg.SensorsChannel,
		userKeyPrefix:  cfg.UserKeyPrefix,
		userCacheTTL:   cfg.UserCacheTTL,
	}
}

func (p *RedisPublisher) PublishAlert(ctx context.Context, alert *domain.Alert) {
	if alert == nil {
		return
	}
	p.publish(ctx, p.alertsChannel, envelope{
		Type:      "alert",
		FarmID:    alert.FarmID,
		Data:      alert,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (p *RedisPublisher) PublishReading(ctx context.Context, sensor *domain.Sensor, reading *domain.SensorReading) {
	if sensor == nil || reading == nil {
		return
	}
	p.publish(ctx, p.sensorsChannel, envelope{
		Type:      "sensor_reading",
		FarmID:    sensor.FarmID,
		Data:      reading,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// NotifyUser 把通知写入用户收件箱（LPUSH + LTRIM 保留最近 100 条）
func (p *RedisPublisher) NotifyUser(ctx context.Context, userID string, payload interface{}) {
	if userID == "" {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("Failed to marshal user notification",
			zap.String("user_id", userID),
			zap.Error(err))
		return
	}

	key := fmt.Sprintf("%s%s:notifications", p.userKeyPrefix, userID)
	pipe := p.client.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, 99)
	pipe.Expire(ctx, key, p.userCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		p.logger.Warn("Failed to push user notification",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

func (p *RedisPublisher) publish(ctx context.Context, channel string, env envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		p.logger.Warn("Failed to marshal notification",
			zap.String("channel", channel),
			zap.Error(err))
		return
	}
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		p.logger.Warn("Failed to publish notification",
			zap.String("channel", channel),
			zap.String("type", env.Type),
			zap.Error(err))
	}
}

// NopPublisher 空实现（测试/无 Redis 模式）
type NopPublisher struct{}

func (NopPublisher) PublishAlert(context.Context, *domain.Alert)                          {}
func (NopPublisher) PublishReading(context.Context, *domain.Sensor, *domain.SensorReading) {}
func (NopPublisher) NotifyUser(context.Context, string, interface{})                       {}
