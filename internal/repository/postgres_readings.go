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

// PostgresReadingsRepository ReadingsRepository 的 PostgreSQL 实现
type PostgresReadingsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresReadingsRepository(db *sql.DB, logger *zap.Logger) *PostgresReadingsRepository {
	return &PostgresReadingsRepository{db: db, logger: logger}
}

// CreateReading 写入读数并回填自增 reading_id
func (r *PostgresReadingsRepository) CreateReading(ctx context.Context, reading *domain.SensorReading) error {
	if reading == nil {
		return fmt.Errorf("%w: reading is required", domain.ErrValidation)
	}
	if reading.SensorID == "" {
		return fmt.Errorf("%w: sensor_id is required", domain.ErrValidation)
	}

	query := `
		INSERT INTO sensor_readings (
			sensor_id,
			value,
			raw_value,
			recorded_at,
			received_at
		) VALUES (
			$1, $2, $3, $4, $5
		)
		RETURNING reading_id
	`

	err := r.db.QueryRowContext(ctx, query,
		reading.SensorID,
		reading.Value,
		reading.RawValue,
		reading.RecordedAt,
		reading.ReceivedAt,
	).Scan(&reading.ReadingID)
	if err != nil {
		return fmt.Errorf("%w: failed to create sensor reading: %v", domain.ErrStorage, err)
	}

	return nil
}

// ListReadings 查询读数历史（按 recorded_at 倒序）
func (r *PostgresReadingsRepository) ListReadings(ctx context.Context, sensorID string, start, end *time.Time, limit int) ([]*domain.SensorReading, error) {
	if sensorID == "" {
		return nil, fmt.Errorf("%w: sensor_id is required", domain.ErrValidation)
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT reading_id, sensor_id, value, raw_value, recorded_at, received_at
		FROM sensor_readings
		WHERE sensor_id = $1
	`
	args := []interface{}{sensorID}
	argN := 2

	if start != nil {
		query += fmt.Sprintf(" AND recorded_at >= $%d", argN)
		args = append(args, *start)
		argN++
	}
	if end != nil {
		query += fmt.Sprintf(" AND recorded_at <= $%d", argN)
		args = append(args, *end)
		argN++
	}

	query += fmt.Sprintf(" ORDER BY recorded_at DESC LIMIT $%d", argN)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query sensor readings: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	readings := []*domain.SensorReading{}
	for rows.Next() {
		var reading domain.SensorReading
		var rawValue decimal.NullDecimal
		if err := rows.Scan(
			&reading.ReadingID,
			&reading.SensorID,
			&reading.Value,
			&rawValue,
			&reading.RecordedAt,
			&reading.ReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: failed to scan sensor reading: %v", domain.ErrStorage, err)
		}
		reading.RawValue = rawValue
		readings = append(readings, &reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate sensor readings: %v", domain.ErrStorage, err)
	}

	return readings, nil
}
