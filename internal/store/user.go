package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/voxscribe/apiserver/internal/db"
	"github.com/voxscribe/apiserver/types"
)

// UserRepository handles persistence for identity accounts.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	const query = `
		SELECT id, email, password_hash, created_at, updated_at
		FROM auth_users
		WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT id, email, password_hash, created_at, updated_at
		FROM auth_users
		WHERE lower(email) = lower($1)`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) scanOne(row *sql.Row) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO auth_users (id, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	); err != nil {
		return types.User{}, mapError(err)
	}
	return user, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `
		UPDATE auth_users
		SET password_hash = $1,
			updated_at = $2
		WHERE id = $3`
	return execOne(ctx, r.db, query, passwordHash, time.Now().UTC(), id)
}

// ChangeEmail is the privileged out-of-band email change on the account record.
func (r *UserRepository) ChangeEmail(ctx context.Context, id, email string) error {
	const query = `
		UPDATE auth_users
		SET email = $1,
			updated_at = $2
		WHERE id = $3`
	if err := execOne(ctx, r.db, query, email, time.Now().UTC(), id); err != nil {
		return mapError(err)
	}
	return nil
}

// DeleteUser removes an account together with its transcriptions and profile
// in a single transaction.
func (r *UserRepository) DeleteUser(ctx context.Context, id string) error {
	return db.WithTx(ctx, r.db, func(ctx context.Context, tx db.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transcriptions WHERE user_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id); err != nil {
			return err
		}
		return execOne(ctx, tx, `DELETE FROM auth_users WHERE id = $1`, id)
	})
}

func execOne(ctx context.Context, conn db.DBTX, query string, args ...any) error {
	result, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
