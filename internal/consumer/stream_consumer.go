package consumer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"greenos-alerts/internal/service"
	"greenos-alerts/pkg/redisx"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StreamConsumer 从 Redis Streams 消费传感器读数
//
// 消息格式：{farm_id, sensor_id, value, recorded_at}（recorded_at 为 Unix 秒，可缺省）。
// farm_id 由网关写入，入库时与传感器归属比对，跨租户消息不会落库。
// 处理成功后 XACK；解析失败的消息直接 ACK 丢弃（重投也不可能成功），
// 处理失败的消息不 ACK，等待重新投递（至少一次语义）。
type StreamConsumer struct {
	redisClient *redis.Client
	ingest      *service.IngestService
	logger      *zap.Logger

	stream    string
	group     string
	consumer  string
	batchSize int64
}

type StreamConsumerConfig struct {
	Stream    string
	Group     string
	Consumer  string
	BatchSize int64
}

func NewStreamConsumer(redisClient *redis.Client, ingest *service.IngestService, cfg StreamConsumerConfig, logger *zap.Logger) *StreamConsumer {
	return &StreamConsumer{
		redisClient: redisClient,
		ingest:      ingest,
		logger:      logger,
		stream:      cfg.Stream,
		group:       cfg.Group,
		consumer:    cfg.Consumer,
		batchSize:   cfg.BatchSize,
	}
}

// Start 启动消费循环（阻塞直到 ctx 取消）
func (c *StreamConsumer) Start(ctx context.Context) error {
	if err := redisx.CreateConsumerGroup(ctx, c.redisClient, c.stream, c.group); err != nil {
		return err
	}

	c.logger.Info("Stream consumer started",
		zap.String("stream", c.stream),
		zap.String("group", c.group),
		zap.String("consumer", c.consumer),
	)

	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if err := c.consumeBatch(ctx); err != nil {
				c.logger.Error("Failed to consume readings stream",
					zap.Error(err),
					zap.Duration("backoff", backoff),
				)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(backoff):
					backoff *= 2
					if backoff > maxBackoff {
						backoff = maxBackoff
					}
				}
			} else {
				backoff = time.Second
			}
		}
	}
}

func (c *StreamConsumer) consumeBatch(ctx context.Context) error {
	messages, err := redisx.ReadFromStream(ctx, c.redisClient, c.stream, c.group, c.consumer, c.batchSize)
	if err != nil {
		return fmt.Errorf("failed to read from stream %s: %w", c.stream, err)
	}

	for _, msg := range messages {
		if err := c.processMessage(ctx, msg); err != nil {
			c.logger.Error("Failed to process reading message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			// 不 ACK，等待重投
			continue
		}
		if err := redisx.AckMessage(ctx, c.redisClient, c.stream, c.group, msg.ID); err != nil {
			c.logger.Warn("Failed to ack message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}

	return nil
}

func (c *StreamConsumer) processMessage(ctx context.Context, msg redisx.StreamMessage) error {
	farmID, sensorID, value, recordedAt, err := parseReadingMessage(msg.Values)
	if err != nil {
		// 格式错误的消息重投也不会成功，ACK 掉
		c.logger.Warn("Dropping malformed reading message",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		if ackErr := redisx.AckMessage(ctx, c.redisClient, c.stream, c.group, msg.ID); ackErr != nil {
			c.logger.Warn("Failed to ack malformed message", zap.Error(ackErr))
		}
		return nil
	}

	if _, err := c.ingest.Ingest(ctx, farmID, sensorID, value, recordedAt); err != nil {
		return fmt.Errorf("failed to ingest reading for sensor %s: %w", sensorID, err)
	}

	return nil
}

func parseReadingMessage(values map[string]interface{}) (string, string, decimal.Decimal, time.Time, error) {
	farmID, _ := values["farm_id"].(string)
	if farmID == "" {
		return "", "", decimal.Decimal{}, time.Time{}, fmt.Errorf("missing farm_id")
	}

	sensorID, _ := values["sensor_id"].(string)
	if sensorID == "" {
		return "", "", decimal.Decimal{}, time.Time{}, fmt.Errorf("missing sensor_id")
	}

	rawValue, _ := values["value"].(string)
	if rawValue == "" {
		return "", "", decimal.Decimal{}, time.Time{}, fmt.Errorf("missing value")
	}
	value, err := decimal.NewFromString(rawValue)
	if err != nil {
		return "", "", decimal.Decimal{}, time.Time{}, fmt.Errorf("invalid value %q: %w", rawValue, err)
	}

	var recordedAt time.Time
	if rawTS, ok := values["recorded_at"].(string); ok && rawTS != "" {
		ts, err := strconv.ParseInt(rawTS, 10, 64)
		if err != nil {
			return "", "", decimal.Decimal{}, time.Time{}, fmt.Errorf("invalid recorded_at %q: %w", rawTS, err)
		}
		recordedAt = time.Unix(ts, 0).UTC()
	}

	return farmID, sensorID, value, recordedAt, nil
}
