package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sensor types supported by the platform (sensors table, sensor_type column).
const (
	SensorTypePH              = "ph"
	SensorTypeEC              = "ec"
	SensorTypeTemperature     = "temperature"
	SensorTypeHumidity        = "humidity"
	SensorTypeCO2             = "co2"
	SensorTypeDissolvedOxygen = "dissolved_oxygen"
	SensorTypeWaterLevel      = "water_level"
	SensorTypeLight           = "light"
)

// Sensor 对应 sensors 表
type Sensor struct {
	SensorID          string              `db:"sensor_id"` // UUID, PRIMARY KEY
	FarmID            string              `db:"farm_id"`   // UUID, NOT NULL
	ZoneID            *string             `db:"zone_id"`   // UUID, nullable（null = 未绑定区域）
	Name              string              `db:"name"`
	SensorType        string              `db:"sensor_type"`
	Unit              *string             `db:"unit"`
	HardwareID        *string             `db:"hardware_id"`
	CalibrationOffset decimal.Decimal     `db:"calibration_offset"` // NUMERIC(10,4), DEFAULT 0
	IsActive          bool                `db:"is_active"`
	LastValue         decimal.NullDecimal `db:"last_value"`      // NUMERIC(10,4), nullable
	LastReadingAt     *time.Time          `db:"last_reading_at"` // TIMESTAMPTZ, nullable
	CreatedAt         time.Time           `db:"created_at"`
	UpdatedAt         time.Time           `db:"updated_at"`
}

// SensorReading 对应 sensor_readings 表（BIGSERIAL 主键，高写入量）
type SensorReading struct {
	ReadingID  int64               `db:"reading_id"`
	SensorID   string              `db:"sensor_id"`
	Value      decimal.NullDecimal `db:"value"`     // 校准后的值，nullable
	RawValue   decimal.NullDecimal `db:"raw_value"` // 设备上报的原始值
	RecordedAt time.Time           `db:"recorded_at"`
	ReceivedAt time.Time           `db:"received_at"`
}
