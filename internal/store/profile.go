package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/voxscribe/apiserver/types"
)

// ProfileRepository handles persistence for profiles.
type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileColumns = `id, first_name, last_name, email, role, created_at, updated_at`

func (r *ProfileRepository) Get(ctx context.Context, id string) (types.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	var profile types.Profile
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&profile.ID,
		&profile.FirstName,
		&profile.LastName,
		&profile.Email,
		&profile.Role,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Profile{}, ErrNotFound
		}
		return types.Profile{}, mapError(err)
	}
	return profile, nil
}

// GetRole reads only the role column.
func (r *ProfileRepository) GetRole(ctx context.Context, id string) (types.Role, error) {
	const query = `SELECT role FROM profiles WHERE id = $1`
	var role types.Role
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", mapError(err)
	}
	return role, nil
}

// List returns every profile, most recently created first.
func (r *ProfileRepository) List(ctx context.Context) ([]types.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := make([]types.Profile, 0)
	for rows.Next() {
		var profile types.Profile
		if err := rows.Scan(
			&profile.ID,
			&profile.FirstName,
			&profile.LastName,
			&profile.Email,
			&profile.Role,
			&profile.CreatedAt,
			&profile.UpdatedAt,
		); err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (r *ProfileRepository) Create(ctx context.Context, profile types.Profile) (types.Profile, error) {
	now := time.Now().UTC()
	profile.CreatedAt = now
	profile.UpdatedAt = now
	if profile.Role == "" {
		profile.Role = types.RoleUser
	}

	const query = `
		INSERT INTO profiles (id, first_name, last_name, email, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		profile.ID,
		profile.FirstName,
		profile.LastName,
		profile.Email,
		profile.Role,
		profile.CreatedAt,
		profile.UpdatedAt,
	); err != nil {
		return types.Profile{}, mapError(err)
	}
	return profile, nil
}

// Update writes the non-nil self-editable fields and returns the stored profile.
func (r *ProfileRepository) Update(ctx context.Context, id string, update types.ProfileUpdate) (types.Profile, error) {
	query := `
		UPDATE profiles
		SET first_name = COALESCE($1, first_name),
			last_name = COALESCE($2, last_name),
			email = COALESCE($3, email),
			updated_at = $4
		WHERE id = $5
		RETURNING ` + profileColumns
	return r.updateReturning(ctx, query, update.FirstName, update.LastName, update.Email, time.Now().UTC(), id)
}

func (r *ProfileRepository) UpdateRole(ctx context.Context, id string, role types.Role) (types.Profile, error) {
	query := `
		UPDATE profiles
		SET role = $1,
			updated_at = $2
		WHERE id = $3
		RETURNING ` + profileColumns
	return r.updateReturning(ctx, query, role, time.Now().UTC(), id)
}

func (r *ProfileRepository) updateReturning(ctx context.Context, query string, args ...any) (types.Profile, error) {
	var profile types.Profile
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&profile.ID,
		&profile.FirstName,
		&profile.LastName,
		&profile.Email,
		&profile.Role,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Profile{}, ErrNotFound
		}
		return types.Profile{}, mapError(err)
	}
	return profile, nil
}

func (r *ProfileRepository) Delete(ctx context.Context, id string) error {
	return execOne(ctx, r.db, `DELETE FROM profiles WHERE id = $1`, id)
}
