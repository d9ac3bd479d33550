package models

import (
	"time"

	"github.com/google/uuid"
)

type SensorReading struct {
	ID         int64     `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	SensorType string    `json:"sensor_type"` // temperature/humidity/ammonia/...
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// SensorAverage is the aggregate for one sensor type. UserID is nil for the global row.
type SensorAverage struct {
	SensorType    string     `json:"sensor_type"`
	UserID        *uuid.UUID `json:"user_id,omitempty"`
	Average       float64    `json:"average"`
	MinValue      float64    `json:"min_value"`
	MaxValue      float64    `json:"max_value"`
	TotalReadings int        `json:"total_readings"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
