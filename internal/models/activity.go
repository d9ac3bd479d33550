package models

import "time"

// Log source collections. Each feature writes to its own append-only stream.
const (
	CollectionAddFeedSchedule    = "addFeedSchedule_logs"
	CollectionEditFeedSchedule   = "editFeedSchedule_logs"
	CollectionDeleteFeedSchedule = "deleteFeedSchedule_logs"
	CollectionAddWaterSchedule   = "addWaterSchedule_logs"
	CollectionEditWaterSchedule  = "editWaterSchedule_logs"
	CollectionDeleteWaterSched   = "deleteWaterSchedule_logs"
	CollectionWateringActivity   = "wateringActivity_logs"
	CollectionNightTime          = "nightTime_logs"
	CollectionReport             = "report_logs"
	CollectionSession            = "session_logs"
	CollectionPredatorDetection  = "predatorDetection_logs"
	CollectionUserManagement     = "userManagement_logs"
)

// LogCollections is the fixed set of streams merged into the activity log.
var LogCollections = []string{
	CollectionAddFeedSchedule,
	CollectionEditFeedSchedule,
	CollectionDeleteFeedSchedule,
	CollectionAddWaterSchedule,
	CollectionEditWaterSchedule,
	CollectionDeleteWaterSched,
	CollectionWateringActivity,
	CollectionNightTime,
	CollectionReport,
	CollectionSession,
	CollectionPredatorDetection,
	CollectionUserManagement,
}

func IsLogCollection(name string) bool {
	for _, c := range LogCollections {
		if c == name {
			return true
		}
	}
	return false
}

// Sentinel labels used when an actor cannot be resolved.
const (
	UnknownActorName = "Unknown"
	UnknownActorRole = "N/A"
)

// RawRecord is one document read from a log collection, before normalization.
type RawRecord struct {
	ID         string
	Collection string
	Data       map[string]any
}

// LogEntry is the normalized, read-only projection of one action record.
type LogEntry struct {
	ID               string    `json:"id"`
	SourceCollection string    `json:"source_collection"`
	ActorID          string    `json:"actor_id,omitempty"`
	ActorDisplayName string    `json:"actor_display_name"`
	ActorRole        string    `json:"actor_role"`
	Action           string    `json:"action"`
	Description      string    `json:"description"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// NewLogRecord is a record appended to a log collection.
type NewLogRecord struct {
	Collection  string
	UserID      string
	UserName    string
	Action      string
	Description string
	Meta        map[string]any
	Timestamp   time.Time
}
