package activity

import (
	"context"
	"fmt"
	"strings"

	"github.com/tsiken/backend/internal/metrics"
	"github.com/tsiken/backend/internal/models"
	"go.uber.org/zap"
)

type sourceDefaults struct {
	action      string
	description string
}

var defaultsByCollection = map[string]sourceDefaults{
	models.CollectionAddFeedSchedule:    {"Added feed schedule", "A feed schedule was added"},
	models.CollectionEditFeedSchedule:   {"Edited feed schedule", "A feed schedule was updated"},
	models.CollectionDeleteFeedSchedule: {"Deleted feed schedule", "A feed schedule was removed"},
	models.CollectionAddWaterSchedule:   {"Added water schedule", "A water schedule was added"},
	models.CollectionEditWaterSchedule:  {"Edited water schedule", "A water schedule was updated"},
	models.CollectionDeleteWaterSched:   {"Deleted water schedule", "A water schedule was removed"},
	models.CollectionWateringActivity:   {"Watering activity", "Watering was triggered"},
	models.CollectionNightTime:          {"Night time settings", "Night time settings were changed"},
	models.CollectionReport:             {"Exported report", "A report was exported"},
	models.CollectionSession:            {"Session", "Session activity"},
	models.CollectionPredatorDetection:  {"Predator detected", "A predator was detected"},
	models.CollectionUserManagement:     {"User management", "A user account was changed"},
}

// Normalizer maps raw records to LogEntry values.
type Normalizer struct {
	resolver *Resolver
	log      *zap.Logger
}

func NewNormalizer(resolver *Resolver, log *zap.Logger) *Normalizer {
	return &Normalizer{resolver: resolver, log: log}
}

func (n *Normalizer) Normalize(ctx context.Context, rec models.RawRecord) models.LogEntry {
	d := rec.Data
	defs := defaultsByCollection[rec.Collection]

	occurredAt, ok := NormalizeTime(d["timestamp"])
	if !ok {
		metrics.TimestampFallbacks.WithLabelValues(rec.Collection).Inc()
		n.log.Warn("unresolvable log timestamp, using epoch",
			zap.String("collection", rec.Collection),
			zap.String("id", rec.ID),
			zap.Any("timestamp", d["timestamp"]),
		)
	}

	entry := models.LogEntry{
		ID:               rec.ID,
		SourceCollection: rec.Collection,
		ActorID:          firstString(d, "userId", "userID", "uid"),
		Action:           firstString(d, "action"),
		Description:      firstString(d, "description", "details"),
		OccurredAt:       occurredAt,
	}

	if entry.Action == "" {
		entry.Action = defs.action
		if entry.Action == "" {
			entry.Action = rec.Collection
		}
	}
	if entry.Description == "" {
		entry.Description = describe(rec.Collection, d, defs)
	}

	var name, role string
	if n.resolver != nil {
		name, role = n.resolver.Resolve(ctx, entry.ActorID)
	}
	if name == "" {
		name = inlineName(d)
	}
	if role == "" {
		role = firstString(d, "role")
	}
	if name == "" {
		name = models.UnknownActorName
	}
	if role == "" {
		role = models.UnknownActorRole
	}
	entry.ActorDisplayName = name
	entry.ActorRole = role

	return entry
}

func describe(collection string, d map[string]any, defs sourceDefaults) string {
	switch collection {
	case models.CollectionReport:
		if name := firstString(d, "reportName", "fileName"); name != "" {
			if typ := firstString(d, "type"); typ != "" {
				return fmt.Sprintf("Exported %s (%s)", name, strings.ToUpper(typ))
			}
			return "Exported " + name
		}
	case models.CollectionPredatorDetection:
		if class := firstString(d, "detectedClass"); class != "" {
			return fmt.Sprintf("Detected %s", class)
		}
	}
	if defs.description != "" {
		return defs.description
	}
	return "No description"
}

func inlineName(d map[string]any) string {
	full := strings.TrimSpace(firstString(d, "firstName") + " " + firstString(d, "lastName"))
	if full != "" && !strings.Contains(full, "N/A") {
		return full
	}
	return firstString(d, "userName", "username", "email")
}

func firstString(d map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := d[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}
