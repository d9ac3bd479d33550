package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tsiken/backend/internal/models"
)

type DetectionRepo struct {
	pool *pgxpool.Pool
}

func NewDetectionRepo(pool *pgxpool.Pool) *DetectionRepo {
	return &DetectionRepo{pool: pool}
}

const detectionColumns = `id, user_id, user_name, first_name, last_name, detected_class, confidence,
	image_path, bbox, server_url, status, fps, total_detections, detected_at`

func scanDetection(row pgx.Row) (*models.PredatorDetection, error) {
	var d models.PredatorDetection
	err := row.Scan(&d.ID, &d.UserID, &d.UserName, &d.FirstName, &d.LastName, &d.DetectedClass, &d.Confidence,
		&d.ImagePath, &d.BBox, &d.ServerURL, &d.Status, &d.FPS, &d.TotalDetections, &d.DetectedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

func (r *DetectionRepo) Create(ctx context.Context, d *models.PredatorDetection) error {
	if d.Status == "" {
		d.Status = models.DetectionStatusNew
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO predator_detections (user_id, user_name, first_name, last_name, detected_class, confidence,
			image_path, bbox, server_url, status, fps, total_detections, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`, d.UserID, d.UserName, d.FirstName, d.LastName, d.DetectedClass, d.Confidence,
		d.ImagePath, d.BBox, d.ServerURL, d.Status, d.FPS, d.TotalDetections, d.DetectedAt,
	).Scan(&d.ID)
}

func (r *DetectionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PredatorDetection, error) {
	return scanDetection(r.pool.QueryRow(ctx, `SELECT `+detectionColumns+` FROM predator_detections WHERE id = $1`, id))
}

type DetectionFilter struct {
	UserID *uuid.UUID
	Status *string
	Limit  int
	Offset int
}

func (r *DetectionRepo) List(ctx context.Context, f DetectionFilter) ([]models.PredatorDetection, error) {
	query := `SELECT ` + detectionColumns + ` FROM predator_detections`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.UserID != nil {
		where = append(where, fmt.Sprintf("user_id = $%d", argIdx))
		args = append(args, *f.UserID)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	query += fmt.Sprintf(" ORDER BY detected_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.PredatorDetection{}
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (r *DetectionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE predator_detections SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DetectionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM predator_detections WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
