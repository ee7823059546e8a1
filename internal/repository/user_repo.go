package repository

import (
	"context"
	"errors"

	"dating_platform/internal/db"
	"dating_platform/internal/domain"

	"github.com/jackc/pgx/v5"
)

type UserRepository struct{}

func NewUserRepository() *UserRepository {
	return &UserRepository{}
}

const userColumns = `id, email, username, role, is_active, is_suspended, created_at`

func (r *UserRepository) GetByID(ctx context.Context, q db.Querier, id int64) (*domain.User, error) {
	row := q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *UserRepository) GetByEmail(ctx context.Context, q db.Querier, email string) (*domain.User, error) {
	row := q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// LockForUpdate locks the user row for the rest of the transaction. Role
// changes for one user serialize on it.
func (r *UserRepository) LockForUpdate(ctx context.Context, q db.Querier, id int64) (*domain.User, error) {
	row := q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
	return scanUser(row)
}

// LockForShare keeps the user row from being deleted or re-keyed until the
// transaction ends. Used when a row will reference the user by foreign key.
func (r *UserRepository) LockForShare(ctx context.Context, q db.Querier, id int64) (*domain.User, error) {
	row := q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR SHARE`, id)
	return scanUser(row)
}

func (r *UserRepository) Create(ctx context.Context, q db.Querier, u *domain.User) error {
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	return q.QueryRow(ctx,
		`INSERT INTO users (email, username, role, is_active, is_suspended)
		 VALUES ($1, $2, $3, TRUE, FALSE)
		 RETURNING id, is_active, is_suspended, created_at`,
		u.Email, u.Username, u.Role,
	).Scan(&u.ID, &u.IsActive, &u.IsSuspended, &u.CreatedAt)
}

func (r *UserRepository) UpdateRole(ctx context.Context, q db.Querier, id int64, role string) error {
	_, err := q.Exec(ctx, `UPDATE users SET role = $2 WHERE id = $1`, id, role)
	return err
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.Role, &u.IsActive, &u.IsSuspended, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
