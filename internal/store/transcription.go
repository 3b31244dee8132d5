package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/voxscribe/apiserver/types"
)

// TranscriptionRepository handles persistence for transcriptions.
type TranscriptionRepository struct {
	db *sql.DB
}

func NewTranscriptionRepository(db *sql.DB) *TranscriptionRepository {
	return &TranscriptionRepository{db: db}
}

func (r *TranscriptionRepository) Get(ctx context.Context, id string) (types.Transcription, error) {
	const query = `
		SELECT id, user_id, audio_path, text_content, created_at
		FROM transcriptions
		WHERE id = $1`
	var t types.Transcription
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID,
		&t.UserID,
		&t.AudioPath,
		&t.TextContent,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Transcription{}, ErrNotFound
		}
		return types.Transcription{}, mapError(err)
	}
	return t, nil
}

func (r *TranscriptionRepository) Create(ctx context.Context, t types.Transcription) (types.Transcription, error) {
	t.CreatedAt = time.Now().UTC()

	const query = `
		INSERT INTO transcriptions (id, user_id, audio_path, text_content, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		t.ID,
		t.UserID,
		t.AudioPath,
		t.TextContent,
		t.CreatedAt,
	); err != nil {
		return types.Transcription{}, mapError(err)
	}
	return t, nil
}

// ListByUser returns the user's transcriptions, most recent first.
func (r *TranscriptionRepository) ListByUser(ctx context.Context, userID string) ([]types.Transcription, error) {
	const query = `
		SELECT id, user_id, audio_path, text_content, created_at
		FROM transcriptions
		WHERE user_id = $1
		ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]types.Transcription, 0)
	for rows.Next() {
		var t types.Transcription
		if err := rows.Scan(&t.ID, &t.UserID, &t.AudioPath, &t.TextContent, &t.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// ListAll returns every transcription annotated with the owner's email,
// most recent first.
func (r *TranscriptionRepository) ListAll(ctx context.Context) ([]types.AnnotatedTranscription, error) {
	const query = `
		SELECT t.id, t.user_id, t.audio_path, t.text_content, t.created_at, COALESCE(p.email, '')
		FROM transcriptions t
		LEFT JOIN profiles p ON p.id = t.user_id
		ORDER BY t.created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]types.AnnotatedTranscription, 0)
	for rows.Next() {
		var t types.AnnotatedTranscription
		if err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.AudioPath,
			&t.TextContent,
			&t.CreatedAt,
			&t.OwnerEmail,
		); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *TranscriptionRepository) Delete(ctx context.Context, id string) error {
	return execOne(ctx, r.db, `DELETE FROM transcriptions WHERE id = $1`, id)
}

// DeleteByUser removes all transcriptions owned by userID. Deleting zero rows
// is not an error.
func (r *TranscriptionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM transcriptions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, mapError(err)
	}
	return result.RowsAffected()
}
