package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tsiken/backend/internal/apperr"
	"github.com/tsiken/backend/internal/models"
	"github.com/tsiken/backend/internal/repositories"
	"go.uber.org/zap"
)

const wateringLayout = "Jan 2, 2006 3:04 PM"

type WateringInput struct {
	ScheduledAt     time.Time `json:"scheduled_at"`
	Liters          float64   `json:"liters"`
	DurationMinutes int       `json:"duration_minutes"`
}

// ScheduleService manages a user's feeding times, watering schedule and
// night time. Every change is appended to its activity log collection.
type ScheduleService struct {
	schedules ScheduleStore
	users     UserStore
	logs      LogWriter
	loc       *time.Location
	now       func() time.Time
	log       *zap.Logger
}

func NewScheduleService(schedules ScheduleStore, users UserStore, logs LogWriter, loc *time.Location, log *zap.Logger) *ScheduleService {
	if loc == nil {
		loc = time.UTC
	}
	return &ScheduleService{schedules: schedules, users: users, logs: logs, loc: loc, now: time.Now, log: log}
}

func (s *ScheduleService) Feeds(ctx context.Context, userID uuid.UUID) ([]models.FeedSchedule, error) {
	return s.schedules.ListFeeds(ctx, userID)
}

func (s *ScheduleService) AddFeed(ctx context.Context, userID uuid.UUID, at models.ClockTime) (*models.FeedSchedule, error) {
	if !at.Valid() {
		return nil, apperr.Field("time", "time must be between 00:00 and 23:59")
	}
	owner, err := s.owner(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureFreeSlot(ctx, userID, 0, at); err != nil {
		return nil, err
	}

	f := &models.FeedSchedule{UserID: userID, Time: at}
	if err := s.schedules.CreateFeed(ctx, f); err != nil {
		return nil, feedConflict(err, at, "create feeding schedule")
	}

	s.appendLog(ctx, owner, models.CollectionAddFeedSchedule, "Add new feeding schedule",
		fmt.Sprintf("Added %s", at.Display()),
		map[string]any{"feedId": f.FeedNo, "newTime": at.Display()})
	return f, nil
}

func (s *ScheduleService) UpdateFeed(ctx context.Context, userID uuid.UUID, feedNo int, at models.ClockTime) (*models.FeedSchedule, error) {
	if !at.Valid() {
		return nil, apperr.Field("time", "time must be between 00:00 and 23:59")
	}
	owner, err := s.owner(ctx, userID)
	if err != nil {
		return nil, err
	}
	f, err := s.feed(ctx, userID, feedNo)
	if err != nil {
		return nil, err
	}
	if f.Time == at {
		return f, nil
	}
	if err := s.ensureFreeSlot(ctx, userID, feedNo, at); err != nil {
		return nil, err
	}

	old := f.Time
	if err := s.schedules.UpdateFeedTime(ctx, userID, feedNo, at); err != nil {
		return nil, feedConflict(err, at, "update feeding schedule")
	}
	f.Time = at
	f.UpdatedAt = s.now().UTC()

	s.appendLog(ctx, owner, models.CollectionEditFeedSchedule, "Updated feeding time",
		fmt.Sprintf("From %s to %s", old.Display(), at.Display()),
		map[string]any{"feedId": feedNo, "oldTime": old.Display(), "newTime": at.Display()})
	return f, nil
}

func (s *ScheduleService) DeleteFeed(ctx context.Context, userID uuid.UUID, feedNo int) error {
	owner, err := s.owner(ctx, userID)
	if err != nil {
		return err
	}
	f, err := s.feed(ctx, userID, feedNo)
	if err != nil {
		return err
	}
	if err := s.schedules.DeleteFeed(ctx, userID, feedNo); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperr.NotFound("feeding schedule not found")
		}
		return fmt.Errorf("delete feeding schedule: %w", err)
	}

	s.appendLog(ctx, owner, models.CollectionDeleteFeedSchedule, "Deleted a feeding schedule",
		fmt.Sprintf("Deleted %s", f.Time.Display()),
		map[string]any{"feedId": feedNo, "oldTime": f.Time.Display()})
	return nil
}

// Watering returns the user's watering schedule, or nil when none is set.
func (s *ScheduleService) Watering(ctx context.Context, userID uuid.UUID) (*models.WateringSchedule, error) {
	w, err := s.schedules.GetWatering(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	return w, err
}

// SaveWatering sets or replaces the watering schedule. Schedules in the past
// are rejected.
func (s *ScheduleService) SaveWatering(ctx context.Context, userID uuid.UUID, in WateringInput) (*models.WateringSchedule, error) {
	fields := map[string]string{}
	if in.ScheduledAt.IsZero() {
		fields["scheduled_at"] = "scheduled_at is required"
	} else if in.ScheduledAt.Before(s.now()) {
		fields["scheduled_at"] = "watering cannot be scheduled in the past"
	}
	if in.Liters <= 0 || math.IsNaN(in.Liters) || math.IsInf(in.Liters, 0) {
		fields["liters"] = "liters must be greater than zero"
	}
	if in.DurationMinutes <= 0 {
		fields["duration_minutes"] = "duration must be greater than zero"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid watering schedule", fields)
	}

	owner, err := s.owner(ctx, userID)
	if err != nil {
		return nil, err
	}
	prev, err := s.Watering(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load watering schedule: %w", err)
	}

	w := &models.WateringSchedule{
		UserID:          userID,
		ScheduledAt:     in.ScheduledAt.UTC(),
		Liters:          in.Liters,
		DurationMinutes: in.DurationMinutes,
	}
	if err := s.schedules.UpsertWatering(ctx, w); err != nil {
		return nil, fmt.Errorf("save watering schedule: %w", err)
	}

	meta := map[string]any{
		"scheduledTime": w.ScheduledAt.Format(time.RFC3339),
		"liters":        w.Liters,
		"duration":      w.DurationMinutes,
	}
	if prev == nil {
		s.appendLog(ctx, owner, models.CollectionAddWaterSchedule, "Add new watering schedule",
			fmt.Sprintf("Added %s", s.wateringTime(w.ScheduledAt)), meta)
	} else {
		s.appendLog(ctx, owner, models.CollectionEditWaterSchedule, "Updated watering schedule",
			fmt.Sprintf("From %s to %s", s.wateringTime(prev.ScheduledAt), s.wateringTime(w.ScheduledAt)), meta)
	}
	s.appendLog(ctx, owner, models.CollectionWateringActivity, "New watering schedule",
		fmt.Sprintf("Watering schedule : Duration: %d, Liters: %s, Time : %s",
			w.DurationMinutes, strconv.FormatFloat(w.Liters, 'f', -1, 64), w.ScheduledAt.In(s.loc).Format("3:04 PM")),
		meta)
	return w, nil
}

func (s *ScheduleService) DeleteWatering(ctx context.Context, userID uuid.UUID) error {
	owner, err := s.owner(ctx, userID)
	if err != nil {
		return err
	}
	prev, err := s.Watering(ctx, userID)
	if err != nil {
		return fmt.Errorf("load watering schedule: %w", err)
	}
	if prev == nil {
		return apperr.NotFound("watering schedule not found")
	}
	if err := s.schedules.DeleteWatering(ctx, userID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperr.NotFound("watering schedule not found")
		}
		return fmt.Errorf("delete watering schedule: %w", err)
	}

	s.appendLog(ctx, owner, models.CollectionDeleteWaterSched, "Deleted watering schedule",
		fmt.Sprintf("Deleted %s", s.wateringTime(prev.ScheduledAt)),
		map[string]any{"scheduledTime": prev.ScheduledAt.Format(time.RFC3339)})
	return nil
}

// NightTime returns the user's night time, or nil when none is set.
func (s *ScheduleService) NightTime(ctx context.Context, userID uuid.UUID) (*models.NightTime, error) {
	n, err := s.schedules.GetNightTime(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	return n, err
}

func (s *ScheduleService) SetNightTime(ctx context.Context, userID uuid.UUID, at models.ClockTime) (*models.NightTime, error) {
	if !at.Valid() {
		return nil, apperr.Field("starts_at", "time must be between 00:00 and 23:59")
	}
	owner, err := s.owner(ctx, userID)
	if err != nil {
		return nil, err
	}
	n := &models.NightTime{UserID: userID, StartsAt: at}
	if err := s.schedules.UpsertNightTime(ctx, n); err != nil {
		return nil, fmt.Errorf("save night time: %w", err)
	}

	s.appendLog(ctx, owner, models.CollectionNightTime, "Set the night time",
		fmt.Sprintf("Night time starts at %s", at.Display()),
		map[string]any{"selectedTime": at.String()})
	return n, nil
}

func (s *ScheduleService) owner(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, err
	}
	return u, nil
}

func (s *ScheduleService) feed(ctx context.Context, userID uuid.UUID, feedNo int) (*models.FeedSchedule, error) {
	f, err := s.schedules.GetFeed(ctx, userID, feedNo)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.NotFound("feeding schedule not found")
		}
		return nil, err
	}
	return f, nil
}

// ensureFreeSlot rejects at when another of the user's feeds, other than
// skip, already uses it.
func (s *ScheduleService) ensureFreeSlot(ctx context.Context, userID uuid.UUID, skip int, at models.ClockTime) error {
	feeds, err := s.schedules.ListFeeds(ctx, userID)
	if err != nil {
		return fmt.Errorf("list feeding schedules: %w", err)
	}
	for _, f := range feeds {
		if f.FeedNo != skip && f.Time == at {
			return duplicateFeed(at)
		}
	}
	return nil
}

func duplicateFeed(at models.ClockTime) error {
	return apperr.Conflict("time", fmt.Sprintf("a feeding schedule already exists at %s", at.Display()))
}

func feedConflict(err error, at models.ClockTime, op string) error {
	if c, ok := repositories.UniqueViolation(err); ok && c == repositories.ConstraintFeedTime {
		return duplicateFeed(at)
	}
	if errors.Is(err, repositories.ErrNotFound) {
		return apperr.NotFound("feeding schedule not found")
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *ScheduleService) wateringTime(t time.Time) string {
	return t.In(s.loc).Format(wateringLayout)
}

func (s *ScheduleService) appendLog(ctx context.Context, owner *models.User, collection, action, description string, meta map[string]any) {
	meta["firstName"] = owner.FirstName
	meta["lastName"] = owner.LastName
	if err := s.logs.Append(ctx, models.NewLogRecord{
		Collection:  collection,
		UserID:      owner.ID.String(),
		UserName:    owner.DisplayName(),
		Action:      action,
		Description: description,
		Meta:        meta,
		Timestamp:   s.now().UTC(),
	}); err != nil {
		s.log.Warn("failed to append schedule log",
			zap.String("collection", collection),
			zap.String("user_id", owner.ID.String()),
			zap.Error(err),
		)
	}
}
