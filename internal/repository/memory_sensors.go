package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"greenos-alerts/internal/domain"

	"github.com/shopspring/decimal"
)

// MemorySensorsRepo SensorsRepository 的内存实现（测试/无库模式）
type MemorySensorsRepo struct {
	mu      sync.RWMutex
	sensors map[string]domain.Sensor // sensorID -> sensor
}

func NewMemorySensorsRepo() *MemorySensorsRepo {
	return &MemorySensorsRepo{
		sensors: map[string]domain.Sensor{},
	}
}

// PutSensor 测试用：直接写入传感器
func (r *MemorySensorsRepo) PutSensor(sensor domain.Sensor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sensors[sensor.SensorID] = sensor
}

func (r *MemorySensorsRepo) GetSensor(_ context.Context, farmID, sensorID string) (*domain.Sensor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sensor, ok := r.sensors[sensorID]
	if !ok || sensor.FarmID != farmID {
		return nil, fmt.Errorf("%w: sensor %s", domain.ErrNotFound, sensorID)
	}
	out := sensor
	return &out, nil
}

func (r *MemorySensorsRepo) UpdateLastReading(_ context.Context, sensorID string, value decimal.Decimal, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sensor, ok := r.sensors[sensorID]
	if !ok {
		return fmt.Errorf("%w: sensor %s", domain.ErrNotFound, sensorID)
	}
	sensor.LastValue = decimal.NullDecimal{Decimal: value, Valid: true}
	t := at
	sensor.LastReadingAt = &t
	sensor.UpdatedAt = time.Now()
	r.sensors[sensorID] = sensor
	return nil
}

func (r *MemorySensorsRepo) ListStaleSensors(_ context.Context, cutoff time.Time) ([]*domain.Sensor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*domain.Sensor{}
	for id := range r.sensors {
		sensor := r.sensors[id]
		if !sensor.IsActive || sensor.LastReadingAt == nil || !sensor.LastReadingAt.Before(cutoff) {
			continue
		}
		c := sensor
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SensorID < out[j].SensorID
	})
	return out, nil
}

// MemoryReadingsRepo ReadingsRepository 的内存实现
type MemoryReadingsRepo struct {
	mu       sync.RWMutex
	nextID   int64
	readings []domain.SensorReading
}

func NewMemoryReadingsRepo() *MemoryReadingsRepo {
	return &MemoryReadingsRepo{nextID: 1}
}

func (r *MemoryReadingsRepo) CreateReading(_ context.Context, reading *domain.SensorReading) error {
	if reading == nil {
		return fmt.Errorf("%w: reading is required", domain.ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	reading.ReadingID = r.nextID
	r.nextID++
	r.readings = append(r.readings, *reading)
	return nil
}

func (r *MemoryReadingsRepo) ListReadings(_ context.Context, sensorID string, start, end *time.Time, limit int) ([]*domain.SensorReading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	out := []*domain.SensorReading{}
	for i := range r.readings {
		reading := r.readings[i]
		if reading.SensorID != sensorID {
			continue
		}
		if start != nil && reading.RecordedAt.Before(*start) {
			continue
		}
		if end != nil && reading.RecordedAt.After(*end) {
			continue
		}
		c := reading
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RecordedAt.After(out[j].RecordedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
