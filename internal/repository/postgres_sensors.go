package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"greenos-alerts/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PostgresSensorsRepository SensorsRepository 的 PostgreSQL 实现
type PostgresSensorsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresSensorsRepository(db *sql.DB, logger *zap.Logger) *PostgresSensorsRepository {
	return &PostgresSensorsRepository{db: db, logger: logger}
}

const sensorColumns = `
	sensor_id,
	farm_id,
	zone_id,
	name,
	sensor_type,
	unit,
	hardware_id,
	calibration_offset,
	is_active,
	last_value,
	last_reading_at,
	created_at,
	updated_at`

// GetSensor 获取单个传感器（需验证 farm_id）
func (r *PostgresSensorsRepository) GetSensor(ctx context.Context, farmID, sensorID string) (*domain.Sensor, error) {
	if farmID == "" {
		return nil, fmt.Errorf("%w: farm_id is required", domain.ErrValidation)
	}
	if sensorID == "" {
		return nil, fmt.Errorf("%w: sensor_id is required", domain.ErrValidation)
	}

	query := `
		SELECT ` + sensorColumns + `
		FROM sensors
		WHERE sensor_id = $1
		  AND farm_id = $2
	`

	sensor, err := scanSensor(r.db.QueryRowContext(ctx, query, sensorID, farmID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: sensor %s", domain.ErrNotFound, sensorID)
		}
		return nil, fmt.Errorf("%w: failed to get sensor: %v", domain.ErrStorage, err)
	}

	return sensor, nil
}

// UpdateLastReading 回写最新读数快照
func (r *PostgresSensorsRepository) UpdateLastReading(ctx context.Context, sensorID string, value decimal.Decimal, at time.Time) error {
	if sensorID == "" {
		return fmt.Errorf("%w: sensor_id is required", domain.ErrValidation)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE sensors
		SET last_value = $1,
		    last_reading_at = $2,
		    updated_at = CURRENT_TIMESTAMP
		WHERE sensor_id = $3
	`, value, at, sensorID)
	if err != nil {
		return fmt.Errorf("%w: failed to update sensor last reading: %v", domain.ErrStorage, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get rows affected: %v", domain.ErrStorage, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: sensor %s", domain.ErrNotFound, sensorID)
	}

	return nil
}

// ListStaleSensors 查询失联传感器：活跃且最近一次读数早于 cutoff
// 从未上报过的传感器（last_reading_at IS NULL）不计入失联
func (r *PostgresSensorsRepository) ListStaleSensors(ctx context.Context, cutoff time.Time) ([]*domain.Sensor, error) {
	query := `
		SELECT ` + sensorColumns + `
		FROM sensors
		WHERE is_active = TRUE
		  AND last_reading_at IS NOT NULL
		  AND last_reading_at < $1
		ORDER BY last_reading_at
	`

	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query stale sensors: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	sensors := []*domain.Sensor{}
	for rows.Next() {
		sensor, err := scanSensor(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan sensor: %v", domain.ErrStorage, err)
		}
		sensors = append(sensors, sensor)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate sensors: %v", domain.ErrStorage, err)
	}

	return sensors, nil
}

func scanSensor(row rowScanner) (*domain.Sensor, error) {
	var sensor domain.Sensor
	var zoneID, unit, hardwareID sql.NullString
	var lastValue decimal.NullDecimal
	var lastReadingAt sql.NullTime

	err := row.Scan(
		&sensor.SensorID,
		&sensor.FarmID,
		&zoneID,
		&sensor.Name,
		&sensor.SensorType,
		&unit,
		&hardwareID,
		&sensor.CalibrationOffset,
		&sensor.IsActive,
		&lastValue,
		&lastReadingAt,
		&sensor.CreatedAt,
		&sensor.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if zoneID.Valid {
		sensor.ZoneID = &zoneID.String
	}
	if unit.Valid {
		sensor.Unit = &unit.String
	}
	if hardwareID.Valid {
		sensor.HardwareID = &hardwareID.String
	}
	sensor.LastValue = lastValue
	if lastReadingAt.Valid {
		sensor.LastReadingAt = &lastReadingAt.Time
	}

	return &sensor, nil
}
