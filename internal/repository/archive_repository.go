package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"profiledrive/internal/domain"
)

const archiveColumns = `id, owner_id, kind, sub_type, object_key, created_at`

type ArchiveRepository struct {
	db *sqlx.DB
}

func NewArchiveRepository(db *sqlx.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// Create сохраняет запись об архивной копии; created_at задается вызывающим
func (r *ArchiveRepository) Create(ctx context.Context, entry *domain.ArchiveEntry) error {
	query := `
        INSERT INTO archive_entries (owner_id, kind, sub_type, object_key, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id`

	err := r.db.QueryRowxContext(ctx, query,
		entry.OwnerID, entry.Kind, entry.SubType, entry.ObjectKey, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			return fmt.Errorf("archive entry with key %q already exists: %w", entry.ObjectKey, err)
		}
		return fmt.Errorf("failed to create archive entry: %w", err)
	}
	return nil
}

// Latest возвращает самую свежую архивную запись слота
func (r *ArchiveRepository) Latest(ctx context.Context, ref domain.SlotRef) (*domain.ArchiveEntry, error) {
	var entry domain.ArchiveEntry
	query := `SELECT ` + archiveColumns + ` FROM archive_entries
        WHERE owner_id = $1 AND kind = $2 AND sub_type = $3
        ORDER BY created_at DESC, id DESC
        LIMIT 1`

	err := r.db.GetContext(ctx, &entry, query, ref.OwnerID, ref.Kind, ref.SubType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest archive entry: %w", err)
	}
	return &entry, nil
}

func (r *ArchiveRepository) List(ctx context.Context, ref domain.SlotRef, limit int) ([]domain.ArchiveEntry, error) {
	entries := []domain.ArchiveEntry{}
	query := `SELECT ` + archiveColumns + ` FROM archive_entries
        WHERE owner_id = $1 AND kind = $2 AND sub_type = $3
        ORDER BY created_at DESC, id DESC
        LIMIT $4`

	if err := r.db.SelectContext(ctx, &entries, query, ref.OwnerID, ref.Kind, ref.SubType, limit); err != nil {
		return nil, fmt.Errorf("failed to list archive entries: %w", err)
	}
	return entries, nil
}

func (r *ArchiveRepository) Get(ctx context.Context, ownerID string, id int64) (*domain.ArchiveEntry, error) {
	var entry domain.ArchiveEntry
	query := `SELECT ` + archiveColumns + ` FROM archive_entries WHERE id = $1 AND owner_id = $2`

	err := r.db.GetContext(ctx, &entry, query, id, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get archive entry: %w", err)
	}
	return &entry, nil
}

func (r *ArchiveRepository) Delete(ctx context.Context, ownerID string, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM archive_entries WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete archive entry: %w", err)
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

// ListByOwner возвращает весь архив владельца по всем слотам
func (r *ArchiveRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.ArchiveEntry, error) {
	entries := []domain.ArchiveEntry{}
	query := `SELECT ` + archiveColumns + ` FROM archive_entries WHERE owner_id = $1 ORDER BY id`

	if err := r.db.SelectContext(ctx, &entries, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list owner archive: %w", err)
	}
	return entries, nil
}
