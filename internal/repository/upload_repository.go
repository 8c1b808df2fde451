package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"profiledrive/internal/domain"
)

const uploadColumns = `id, owner_id, kind, sub_type, staging_key, expected_last_changed_at,
        lock_token, status, created_at, expires_at, completed_at`

type UploadRepository struct {
	db *sqlx.DB
}

func NewUploadRepository(db *sqlx.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

func (r *UploadRepository) Create(ctx context.Context, s *domain.UploadSession) error {
	query := `
        INSERT INTO upload_sessions (id, owner_id, kind, sub_type, staging_key,
            expected_last_changed_at, lock_token, status, created_at, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.OwnerID, s.Kind, s.SubType, s.StagingKey,
		s.ExpectedLastChangedAt, s.LockToken, s.Status, s.CreatedAt, s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create upload session: %w", err)
	}
	return nil
}

// Get возвращает сессию только ее владельцу
func (r *UploadRepository) Get(ctx context.Context, ownerID string, id uuid.UUID) (*domain.UploadSession, error) {
	var s domain.UploadSession
	query := `SELECT ` + uploadColumns + ` FROM upload_sessions WHERE id = $1 AND owner_id = $2`

	err := r.db.GetContext(ctx, &s, query, id, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get upload session: %w", err)
	}
	return &s, nil
}

// Transition меняет статус, только если сессия все еще в статусе from
func (r *UploadRepository) Transition(ctx context.Context, id uuid.UUID, from, to domain.UploadStatus, at time.Time) error {
	query := `
        UPDATE upload_sessions
        SET status = $3, completed_at = $4
        WHERE id = $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query, id, from, to, at)
	if err != nil {
		return fmt.Errorf("failed to update upload session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return ErrStaleWrite
	}
	return nil
}

// ListExpired возвращает незавершенные сессии с истекшим сроком
func (r *UploadRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.UploadSession, error) {
	sessions := []domain.UploadSession{}
	query := `SELECT ` + uploadColumns + ` FROM upload_sessions
        WHERE status = 'pending' AND expires_at <= $1
        ORDER BY expires_at
        LIMIT $2`

	if err := r.db.SelectContext(ctx, &sessions, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list expired upload sessions: %w", err)
	}
	return sessions, nil
}

// ListPendingByOwner возвращает незавершенные сессии владельца
func (r *UploadRepository) ListPendingByOwner(ctx context.Context, ownerID string) ([]domain.UploadSession, error) {
	sessions := []domain.UploadSession{}
	query := `SELECT ` + uploadColumns + ` FROM upload_sessions
        WHERE owner_id = $1 AND status = 'pending'
        ORDER BY created_at`

	if err := r.db.SelectContext(ctx, &sessions, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list pending upload sessions: %w", err)
	}
	return sessions, nil
}

// ListClosed возвращает закрытые сессии, ссылки которых истекли до before
func (r *UploadRepository) ListClosed(ctx context.Context, before time.Time, limit int) ([]domain.UploadSession, error) {
	sessions := []domain.UploadSession{}
	query := `SELECT ` + uploadColumns + ` FROM upload_sessions
        WHERE status <> 'pending' AND expires_at <= $1
        ORDER BY expires_at
        LIMIT $2`

	if err := r.db.SelectContext(ctx, &sessions, query, before, limit); err != nil {
		return nil, fmt.Errorf("failed to list closed upload sessions: %w", err)
	}
	return sessions, nil
}

// Delete удаляет закрытую сессию; pending не трогается
func (r *UploadRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM upload_sessions WHERE id = $1 AND status <> 'pending'`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete upload session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
