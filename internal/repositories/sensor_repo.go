package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tsiken/backend/internal/models"
)

type SensorRepo struct {
	pool *pgxpool.Pool
}

func NewSensorRepo(pool *pgxpool.Pool) *SensorRepo {
	return &SensorRepo{pool: pool}
}

func (r *SensorRepo) AddReading(ctx context.Context, rd *models.SensorReading) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO sensor_readings (user_id, sensor_type, value, recorded_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
		RETURNING id, recorded_at
	`, rd.UserID, rd.SensorType, rd.Value, nullTime(rd.RecordedAt)).Scan(&rd.ID, &rd.RecordedAt)
}

// RecomputeAverages rebuilds per-user and all-user averages for every sensor
// type in one transaction and returns the number of rows written.
func (r *SensorRepo) RecomputeAverages(ctx context.Context) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	perUser, err := tx.Exec(ctx, `
		INSERT INTO sensor_averages (sensor_type, user_id, average, min_value, max_value, total_readings, updated_at)
		SELECT sensor_type, user_id, ROUND(AVG(value)::numeric, 2), MIN(value), MAX(value), COUNT(*), now()
		FROM sensor_readings
		GROUP BY sensor_type, user_id
		ON CONFLICT (sensor_type, COALESCE(user_id, '00000000-0000-0000-0000-000000000000'::uuid)) DO UPDATE SET
			average = EXCLUDED.average,
			min_value = EXCLUDED.min_value,
			max_value = EXCLUDED.max_value,
			total_readings = EXCLUDED.total_readings,
			updated_at = EXCLUDED.updated_at
	`)
	if err != nil {
		return 0, err
	}

	global, err := tx.Exec(ctx, `
		INSERT INTO sensor_averages (sensor_type, user_id, average, min_value, max_value, total_readings, updated_at)
		SELECT sensor_type, NULL, ROUND(AVG(value)::numeric, 2), MIN(value), MAX(value), COUNT(*), now()
		FROM sensor_readings
		GROUP BY sensor_type
		ON CONFLICT (sensor_type, COALESCE(user_id, '00000000-0000-0000-0000-000000000000'::uuid)) DO UPDATE SET
			average = EXCLUDED.average,
			min_value = EXCLUDED.min_value,
			max_value = EXCLUDED.max_value,
			total_readings = EXCLUDED.total_readings,
			updated_at = EXCLUDED.updated_at
	`)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return perUser.RowsAffected() + global.RowsAffected(), nil
}

// Averages returns the rows for userID, or the all-user rows when userID is nil.
func (r *SensorRepo) Averages(ctx context.Context, userID *uuid.UUID) ([]models.SensorAverage, error) {
	query := `SELECT sensor_type, user_id, average, min_value, max_value, total_readings, updated_at
		FROM sensor_averages WHERE user_id IS NULL ORDER BY sensor_type`
	args := []any{}
	if userID != nil {
		query = `SELECT sensor_type, user_id, average, min_value, max_value, total_readings, updated_at
			FROM sensor_averages WHERE user_id = $1 ORDER BY sensor_type`
		args = append(args, *userID)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.SensorAverage{}
	for rows.Next() {
		var a models.SensorAverage
		if err := rows.Scan(&a.SensorType, &a.UserID, &a.Average, &a.MinValue, &a.MaxValue, &a.TotalReadings, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
