package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tsiken/backend/internal/models"
)

// ActivityLogRepo stores every log collection in one table keyed by the
// collection name. It is the Postgres-backed log source.
type ActivityLogRepo struct {
	pool *pgxpool.Pool
}

func NewActivityLogRepo(pool *pgxpool.Pool) *ActivityLogRepo {
	return &ActivityLogRepo{pool: pool}
}

func (r *ActivityLogRepo) Append(ctx context.Context, rec models.NewLogRecord) error {
	if !models.IsLogCollection(rec.Collection) {
		return fmt.Errorf("unknown log collection %q", rec.Collection)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	data := make(map[string]any, len(rec.Meta)+5)
	for k, v := range rec.Meta {
		data[k] = v
	}
	data["userId"] = rec.UserID
	data["timestamp"] = rec.Timestamp.UTC().Format(time.RFC3339Nano)
	if rec.UserName != "" {
		data["userName"] = rec.UserName
	}
	if rec.Action != "" {
		data["action"] = rec.Action
	}
	if rec.Description != "" {
		data["description"] = rec.Description
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO activity_logs (collection, user_id, data, created_at)
		VALUES ($1, $2, $3, $4)
	`, rec.Collection, rec.UserID, data, rec.Timestamp)
	return err
}

// Read returns the raw records of one collection, optionally only those of
// actorID. Records without a stored timestamp get the row creation time.
func (r *ActivityLogRepo) Read(ctx context.Context, collection, actorID string) ([]models.RawRecord, error) {
	query := `SELECT id::text, data, created_at FROM activity_logs WHERE collection = $1`
	args := []any{collection}
	if actorID != "" {
		query += ` AND user_id = $2`
		args = append(args, actorID)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []models.RawRecord
	for rows.Next() {
		var (
			id        string
			data      map[string]any
			createdAt time.Time
		)
		if err := rows.Scan(&id, &data, &createdAt); err != nil {
			return nil, err
		}
		if data == nil {
			data = map[string]any{}
		}
		if _, ok := data["timestamp"]; !ok {
			data["timestamp"] = createdAt
		}
		recs = append(recs, models.RawRecord{ID: id, Collection: collection, Data: data})
	}
	return recs, rows.Err()
}
