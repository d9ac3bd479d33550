package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tsiken/backend/internal/models"
	"github.com/tsiken/backend/internal/repositories"
)

// UserStore is satisfied by repositories.UserRepo.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByMobile(ctx context.Context, mobile string) (bool, error)
	List(ctx context.Context, f repositories.UserFilter) ([]models.User, error)
	UpdateProfile(ctx context.Context, u *models.User) error
	UpdateRole(ctx context.Context, id uuid.UUID, role string) error
	SetLocked(ctx context.Context, id uuid.UUID, locked bool) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	TouchLastLogin(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// LogWriter appends to a log collection. Both the Postgres repo and the
// Firestore source implement it.
type LogWriter interface {
	Append(ctx context.Context, rec models.NewLogRecord) error
}

// DetectionStore is satisfied by repositories.DetectionRepo.
type DetectionStore interface {
	Create(ctx context.Context, d *models.PredatorDetection) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PredatorDetection, error)
	List(ctx context.Context, f repositories.DetectionFilter) ([]models.PredatorDetection, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// SnapshotStore is satisfied by blob.Store.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, userID string, at time.Time, jpeg []byte) (string, error)
	PresignedURL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// SensorStore is satisfied by repositories.SensorRepo.
type SensorStore interface {
	AddReading(ctx context.Context, rd *models.SensorReading) error
	RecomputeAverages(ctx context.Context) (int64, error)
	Averages(ctx context.Context, userID *uuid.UUID) ([]models.SensorAverage, error)
}

// ScheduleStore is satisfied by repositories.ScheduleRepo.
type ScheduleStore interface {
	ListFeeds(ctx context.Context, userID uuid.UUID) ([]models.FeedSchedule, error)
	GetFeed(ctx context.Context, userID uuid.UUID, feedNo int) (*models.FeedSchedule, error)
	CreateFeed(ctx context.Context, f *models.FeedSchedule) error
	UpdateFeedTime(ctx context.Context, userID uuid.UUID, feedNo int, t models.ClockTime) error
	DeleteFeed(ctx context.Context, userID uuid.UUID, feedNo int) error
	GetWatering(ctx context.Context, userID uuid.UUID) (*models.WateringSchedule, error)
	UpsertWatering(ctx context.Context, w *models.WateringSchedule) error
	DeleteWatering(ctx context.Context, userID uuid.UUID) error
	GetNightTime(ctx context.Context, userID uuid.UUID) (*models.NightTime, error)
	UpsertNightTime(ctx context.Context, n *models.NightTime) error
}
