package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tsiken/backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `id, first_name, middle_name, last_name, email, mobile_number, role,
	password_hash, verified, account_locked, created_by, created_at, last_login`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.FirstName, &u.MiddleName, &u.LastName, &u.Email, &u.MobileNumber, &u.Role,
		&u.PasswordHash, &u.Verified, &u.AccountLocked, &u.CreatedBy, &u.CreatedAt, &u.LastLogin)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO users (first_name, middle_name, last_name, email, mobile_number, role, password_hash, verified, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, u.FirstName, u.MiddleName, u.LastName, u.Email, u.MobileNumber, u.Role, u.PasswordHash, u.Verified, u.CreatedBy,
	).Scan(&u.ID, &u.CreatedAt)
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email))))
}

// GetProfile resolves an actor id for log labelling. Unknown or malformed
// ids yield a nil profile.
func (r *UserRepo) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, nil
	}
	var p models.UserProfile
	err = r.pool.QueryRow(ctx, `
		SELECT id::text, first_name, last_name, email, role FROM users WHERE id = $1
	`, uid).Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Role)
	if err != nil {
		if notFound(err) == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *UserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`,
		strings.ToLower(strings.TrimSpace(email))).Scan(&exists)
	return exists, err
}

func (r *UserRepo) ExistsByMobile(ctx context.Context, mobile string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE mobile_number = $1)`,
		strings.TrimSpace(mobile)).Scan(&exists)
	return exists, err
}

type UserFilter struct {
	Role   *string
	Search string
	Limit  int
	Offset int
}

func (r *UserRepo) List(ctx context.Context, f UserFilter) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.Role != nil {
		where = append(where, fmt.Sprintf("role = $%d", argIdx))
		args = append(args, *f.Role)
		argIdx++
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, fmt.Sprintf("(first_name || ' ' || last_name ILIKE $%d OR email ILIKE $%d)", argIdx, argIdx))
		args = append(args, "%"+s+"%")
		argIdx++
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (r *UserRepo) UpdateProfile(ctx context.Context, u *models.User) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET first_name = $1, middle_name = $2, last_name = $3, mobile_number = $4
		WHERE id = $5
	`, u.FirstName, u.MiddleName, u.LastName, u.MobileNumber, u.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepo) UpdateRole(ctx context.Context, id uuid.UUID, role string) error {
	return r.execOne(ctx, `UPDATE users SET role = $1 WHERE id = $2`, role, id)
}

func (r *UserRepo) SetLocked(ctx context.Context, id uuid.UUID, locked bool) error {
	return r.execOne(ctx, `UPDATE users SET account_locked = $1 WHERE id = $2`, locked, id)
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	return r.execOne(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, hash, id)
}

func (r *UserRepo) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	return r.execOne(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, time.Now(), id)
}

func (r *UserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.execOne(ctx, `DELETE FROM users WHERE id = $1`, id)
}

func (r *UserRepo) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
