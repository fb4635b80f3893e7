package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/diagnosis/parcel-bookings/internal/domain"
)

type NewUser struct {
	Email        string
	PasswordHash string
	Name         string
	LastName     string
}

type UsersRepo interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByEmailLogin(ctx context.Context, email string) (*domain.User, error)
	Register(ctx context.Context, in NewUser) (*domain.User, error)
	ConfirmUser(ctx context.Context, id int64) error
	EditUserByID(ctx context.Context, id int64, in domain.EditUserRequest) (*domain.User, error)
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	DeleteUser(ctx context.Context, id int64) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
}

type UsersRepoImpl struct{ db DBTX }

func NewUsersRepo(db DBTX) *UsersRepoImpl { return &UsersRepoImpl{db: db} }

const userCols = `user_id, email, password_hash, name, last_name, phone, is_verified, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.LastName, &u.Phone, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return &u, nil
}

func (r *UsersRepoImpl) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE lower(email) = lower($1)`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return scanUser(r.db.QueryRow(ctx, q, email))
}

// FindByEmailLogin only matches accounts that finished email verification.
func (r *UsersRepoImpl) FindByEmailLogin(ctx context.Context, email string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE lower(email) = lower($1) AND is_verified`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return scanUser(r.db.QueryRow(ctx, q, email))
}

func (r *UsersRepoImpl) Register(ctx context.Context, in NewUser) (*domain.User, error) {
	const q = `
INSERT INTO users (email, password_hash, name, last_name)
VALUES ($1, $2, $3, $4)
RETURNING ` + userCols
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	u, err := scanUser(r.db.QueryRow(ctx, q, in.Email, in.PasswordHash, in.Name, in.LastName))
	if err != nil && isUniqueViolation(err, "users_email_key") {
		return nil, domain.ErrDuplicateEmail
	}
	return u, err
}

func (r *UsersRepoImpl) ConfirmUser(ctx context.Context, id int64) error {
	const q = `UPDATE users SET is_verified = TRUE, updated_at = now() WHERE user_id = $1`
	return r.execOne(ctx, q, id)
}

func (r *UsersRepoImpl) EditUserByID(ctx context.Context, id int64, in domain.EditUserRequest) (*domain.User, error) {
	const q = `
UPDATE users SET
  name       = COALESCE($2, name),
  last_name  = COALESCE($3, last_name),
  phone      = COALESCE($4, phone),
  updated_at = now()
WHERE user_id = $1
RETURNING ` + userCols
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return scanUser(r.db.QueryRow(ctx, q, id, in.Name, in.LastName, in.Phone))
}

func (r *UsersRepoImpl) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE user_id = $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return scanUser(r.db.QueryRow(ctx, q, id))
}

// DeleteUser removes the account; its bookings go with it via ON DELETE CASCADE.
func (r *UsersRepoImpl) DeleteUser(ctx context.Context, id int64) error {
	const q = `DELETE FROM users WHERE user_id = $1`
	return r.execOne(ctx, q, id)
}

func (r *UsersRepoImpl) UpdatePassword(ctx context.Context, id int64, hash string) error {
	const q = `UPDATE users SET password_hash = $2, updated_at = now() WHERE user_id = $1`
	return r.execOne(ctx, q, id, hash)
}

func (r *UsersRepoImpl) execOne(ctx context.Context, q string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	ct, err := r.db.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
