package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tsiken/backend/internal/models"
	"go.uber.org/zap"
)

// DetectionWatcher polls detection servers and captures a predator at most
// once per cooldown window per server.
type DetectionWatcher struct {
	detections    *DetectionService
	camera        Camera
	rdb           *redis.Client
	minConfidence float64
	cooldown      time.Duration
	log           *zap.Logger
}

func NewDetectionWatcher(
	detections *DetectionService,
	camera Camera,
	rdb *redis.Client,
	minConfidence float64,
	cooldown time.Duration,
	log *zap.Logger,
) *DetectionWatcher {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &DetectionWatcher{
		detections:    detections,
		camera:        camera,
		rdb:           rdb,
		minConfidence: minConfidence,
		cooldown:      cooldown,
		log:           log,
	}
}

func cooldownKey(serverURL string) string {
	return "detection_cooldown:" + serverURL
}

// Check reads the current frame of serverURL and captures its best predator
// for owner. It returns nil when nothing was captured.
func (w *DetectionWatcher) Check(ctx context.Context, owner uuid.UUID, serverURL string) (*models.PredatorDetection, error) {
	frame, err := w.camera.Detections(ctx, serverURL)
	if err != nil {
		return nil, fmt.Errorf("read detections: %w", err)
	}
	best := CheckForPredators(frame, w.minConfidence)
	if best == nil {
		return nil, nil
	}

	acquired, err := w.rdb.SetNX(ctx, cooldownKey(serverURL), best.Class, w.cooldown).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire cooldown: %w", err)
	}
	if !acquired {
		w.log.Debug("predator seen during cooldown",
			zap.String("server_url", serverURL),
			zap.String("class", best.Class),
		)
		return nil, nil
	}

	d, err := w.detections.Capture(ctx, owner, serverURL, best)
	if err != nil {
		// let the next poll retry
		_ = w.rdb.Del(ctx, cooldownKey(serverURL)).Err()
		return nil, err
	}
	w.log.Info("predator captured",
		zap.String("server_url", serverURL),
		zap.String("class", d.DetectedClass),
		zap.Float64("confidence", d.Confidence),
	)
	return d, nil
}
