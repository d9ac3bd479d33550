package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tsiken/backend/internal/models"
)

// ConstraintFeedTime guards against two feeds at the same time of day.
const ConstraintFeedTime = "feed_schedules_user_time_key"

type ScheduleRepo struct {
	pool *pgxpool.Pool
}

func NewScheduleRepo(pool *pgxpool.Pool) *ScheduleRepo {
	return &ScheduleRepo{pool: pool}
}

func (r *ScheduleRepo) ListFeeds(ctx context.Context, userID uuid.UUID) ([]models.FeedSchedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, feed_no, label, feed_time, updated_at
		FROM feed_schedules WHERE user_id = $1
		ORDER BY feed_time
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.FeedSchedule{}
	for rows.Next() {
		var f models.FeedSchedule
		if err := rows.Scan(&f.ID, &f.UserID, &f.FeedNo, &f.Label, (*int)(&f.Time), &f.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *ScheduleRepo) GetFeed(ctx context.Context, userID uuid.UUID, feedNo int) (*models.FeedSchedule, error) {
	var f models.FeedSchedule
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, feed_no, label, feed_time, updated_at
		FROM feed_schedules WHERE user_id = $1 AND feed_no = $2
	`, userID, feedNo).Scan(&f.ID, &f.UserID, &f.FeedNo, &f.Label, (*int)(&f.Time), &f.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &f, nil
}

// CreateFeed numbers the feed one past the user's highest feed and labels
// it "Schedule <n>".
func (r *ScheduleRepo) CreateFeed(ctx context.Context, f *models.FeedSchedule) error {
	return r.pool.QueryRow(ctx, `
		WITH next AS (
			SELECT COALESCE(MAX(feed_no), 0) + 1 AS n FROM feed_schedules WHERE user_id = $1
		)
		INSERT INTO feed_schedules (user_id, feed_no, label, feed_time)
		SELECT $1, n, 'Schedule ' || n, $2 FROM next
		RETURNING id, feed_no, label, updated_at
	`, f.UserID, int(f.Time)).Scan(&f.ID, &f.FeedNo, &f.Label, &f.UpdatedAt)
}

func (r *ScheduleRepo) UpdateFeedTime(ctx context.Context, userID uuid.UUID, feedNo int, t models.ClockTime) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE feed_schedules SET feed_time = $3, updated_at = now()
		WHERE user_id = $1 AND feed_no = $2
	`, userID, feedNo, int(t))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ScheduleRepo) DeleteFeed(ctx context.Context, userID uuid.UUID, feedNo int) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM feed_schedules WHERE user_id = $1 AND feed_no = $2`, userID, feedNo)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ScheduleRepo) GetWatering(ctx context.Context, userID uuid.UUID) (*models.WateringSchedule, error) {
	var w models.WateringSchedule
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, scheduled_at, liters, duration_min, updated_at
		FROM watering_schedules WHERE user_id = $1
	`, userID).Scan(&w.UserID, &w.ScheduledAt, &w.Liters, &w.DurationMinutes, &w.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &w, nil
}

func (r *ScheduleRepo) UpsertWatering(ctx context.Context, w *models.WateringSchedule) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO watering_schedules (user_id, scheduled_at, liters, duration_min)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			scheduled_at = EXCLUDED.scheduled_at,
			liters = EXCLUDED.liters,
			duration_min = EXCLUDED.duration_min,
			updated_at = now()
		RETURNING updated_at
	`, w.UserID, w.ScheduledAt, w.Liters, w.DurationMinutes).Scan(&w.UpdatedAt)
}

func (r *ScheduleRepo) DeleteWatering(ctx context.Context, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM watering_schedules WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ScheduleRepo) GetNightTime(ctx context.Context, userID uuid.UUID) (*models.NightTime, error) {
	var n models.NightTime
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, starts_at, updated_at FROM night_time_settings WHERE user_id = $1
	`, userID).Scan(&n.UserID, (*int)(&n.StartsAt), &n.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}

func (r *ScheduleRepo) UpsertNightTime(ctx context.Context, n *models.NightTime) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO night_time_settings (user_id, starts_at)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET starts_at = EXCLUDED.starts_at, updated_at = now()
		RETURNING updated_at
	`, n.UserID, int(n.StartsAt)).Scan(&n.UpdatedAt)
}
