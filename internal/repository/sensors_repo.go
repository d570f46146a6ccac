package repository

import (
	"context"
	"time"

	"greenos-alerts/internal/domain"

	"github.com/shopspring/decimal"
)

// SensorsRepository 传感器Repository接口（报警服务只需要读取和回写最新值）
type SensorsRepository interface {
	// 获取单个传感器（需验证 farm_id）
	GetSensor(ctx context.Context, farmID, sensorID string) (*domain.Sensor, error)

	// 回写最新读数快照（last_value / last_reading_at）
	UpdateLastReading(ctx context.Context, sensorID string, value decimal.Decimal, at time.Time) error

	// 查询失联传感器：活跃且最近一次读数早于 cutoff（后台任务使用）
	ListStaleSensors(ctx context.Context, cutoff time.Time) ([]*domain.Sensor, error)
}

// ReadingsRepository 传感器读数Repository接口
type ReadingsRepository interface {
	// 写入读数（回填自增 ReadingID）
	CreateReading(ctx context.Context, reading *domain.SensorReading) error

	// 查询读数历史（按 recorded_at 倒序）
	ListReadings(ctx context.Context, sensorID string, start, end *time.Time, limit int) ([]*domain.SensorReading, error)
}
