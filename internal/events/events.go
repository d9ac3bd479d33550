package events

import "context"

// Event types
const (
	EventPredatorDetected  = "predator_detected"
	EventDetectionReviewed = "detection_reviewed"
	EventAccountRevoked    = "account_revoked"
)

// Streams
const (
	StreamDetections = "events:detections"
	StreamAccounts   = "events:accounts"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

// Subscriber delivers events from one or more streams until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, handler func(stream string, event Event), streams ...string) error
}
