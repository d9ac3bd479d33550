package services

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tsiken/backend/internal/apperr"
	"github.com/tsiken/backend/internal/models"
	"go.uber.org/zap"
)

var sensorTypePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,63}$`)

// Metadata keys a multi-sensor reading may carry besides sensor values.
var sensorMetaKeys = map[string]bool{
	"timestamp": true,
	"userId":    true,
	"readingId": true,
	"deviceId":  true,
	"location":  true,
}

// ReadingInput is either one sensor value or a multi-sensor reading.
type ReadingInput struct {
	SensorType string         `json:"sensor_type,omitempty"`
	Value      *float64       `json:"value,omitempty"`
	Readings   map[string]any `json:"readings,omitempty"`
	RecordedAt *time.Time     `json:"recorded_at,omitempty"`
}

type SensorService struct {
	sensors SensorStore
	log     *zap.Logger
}

func NewSensorService(sensors SensorStore, log *zap.Logger) *SensorService {
	return &SensorService{sensors: sensors, log: log}
}

// Record stores every sensor value in in and returns the stored readings.
func (s *SensorService) Record(ctx context.Context, userID uuid.UUID, in ReadingInput) ([]models.SensorReading, error) {
	values := make(map[string]float64, len(in.Readings)+1)
	for k, v := range in.Readings {
		if sensorMetaKeys[k] {
			continue
		}
		f, ok := v.(float64)
		if !ok {
			return nil, apperr.Field("readings", fmt.Sprintf("%s must be a number", k))
		}
		values[k] = f
	}
	if in.SensorType != "" {
		if in.Value == nil {
			return nil, apperr.Field("value", "value is required")
		}
		values[in.SensorType] = *in.Value
	}
	if len(values) == 0 {
		return nil, apperr.Field("readings", "no sensor values given")
	}

	at := time.Now().UTC()
	if in.RecordedAt != nil && !in.RecordedAt.IsZero() {
		at = in.RecordedAt.UTC()
	}

	types := make([]string, 0, len(values))
	for k, v := range values {
		if !sensorTypePattern.MatchString(k) {
			return nil, apperr.Field("sensor_type", fmt.Sprintf("invalid sensor type %q", k))
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, apperr.Field("value", fmt.Sprintf("%s must be a finite number", k))
		}
		types = append(types, k)
	}
	sort.Strings(types)

	out := make([]models.SensorReading, 0, len(types))
	for _, t := range types {
		rd := models.SensorReading{UserID: userID, SensorType: t, Value: values[t], RecordedAt: at}
		if err := s.sensors.AddReading(ctx, &rd); err != nil {
			return nil, fmt.Errorf("add %s reading: %w", t, err)
		}
		out = append(out, rd)
	}
	return out, nil
}

// Averages returns the per-user aggregates, or the all-user ones when
// userID is nil.
func (s *SensorService) Averages(ctx context.Context, userID *uuid.UUID) ([]models.SensorAverage, error) {
	return s.sensors.Averages(ctx, userID)
}

func (s *SensorService) Recompute(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := s.sensors.RecomputeAverages(ctx)
	if err != nil {
		return 0, fmt.Errorf("recompute sensor averages: %w", err)
	}
	s.log.Info("sensor averages recomputed", zap.Int64("rows", n), zap.Duration("took", time.Since(start)))
	return n, nil
}
