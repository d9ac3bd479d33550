package models

import (
	"time"

	"github.com/google/uuid"
)

// Detection review statuses
const (
	DetectionStatusNew           = "new"
	DetectionStatusReviewed      = "reviewed"
	DetectionStatusFalsePositive = "false-positive"
)

var ValidDetectionTransitions = map[string][]string{
	DetectionStatusNew:           {DetectionStatusReviewed, DetectionStatusFalsePositive},
	DetectionStatusReviewed:      {DetectionStatusFalsePositive},
	DetectionStatusFalsePositive: {DetectionStatusReviewed},
}

func IsValidDetectionTransition(from, to string) bool {
	allowed, ok := ValidDetectionTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

type PredatorDetection struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	UserName        string    `json:"user_name"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	DetectedClass   string    `json:"detected_class"`
	Confidence      float64   `json:"confidence"`
	ImageURL        string    `json:"image_url,omitempty"`
	ImagePath       string    `json:"image_path"`
	BBox            []float64 `json:"bbox,omitempty"`
	ServerURL       string    `json:"server_url,omitempty"`
	Status          string    `json:"status"`
	FPS             *float64  `json:"fps,omitempty"`
	TotalDetections int       `json:"total_detections"`
	DetectedAt      time.Time `json:"detected_at"`
}
