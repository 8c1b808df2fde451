package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"profiledrive/internal/domain"
)

const slotColumns = `owner_id, kind, sub_type, current_key, last_changed_at, created_at, updated_at`

type AssetSlotRepository struct {
	db *sqlx.DB
}

func NewAssetSlotRepository(db *sqlx.DB) *AssetSlotRepository {
	return &AssetSlotRepository{db: db}
}

func (r *AssetSlotRepository) Get(ctx context.Context, ref domain.SlotRef) (*domain.AssetSlot, error) {
	var slot domain.AssetSlot
	query := `SELECT ` + slotColumns + ` FROM asset_slots WHERE owner_id = $1 AND kind = $2 AND sub_type = $3`

	err := r.db.GetContext(ctx, &slot, query, ref.OwnerID, ref.Kind, ref.SubType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get asset slot: %w", err)
	}
	return &slot, nil
}

// Ensure создает пустой слот, если его еще нет, и возвращает текущее состояние
func (r *AssetSlotRepository) Ensure(ctx context.Context, ref domain.SlotRef) (*domain.AssetSlot, error) {
	query := `
        INSERT INTO asset_slots (owner_id, kind, sub_type)
        VALUES ($1, $2, $3)
        ON CONFLICT (owner_id, kind, sub_type) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, ref.OwnerID, ref.Kind, ref.SubType); err != nil {
		return nil, fmt.Errorf("failed to ensure asset slot: %w", err)
	}
	return r.Get(ctx, ref)
}

func (r *AssetSlotRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.AssetSlot, error) {
	slots := []domain.AssetSlot{}
	query := `SELECT ` + slotColumns + ` FROM asset_slots WHERE owner_id = $1 ORDER BY kind, sub_type`

	if err := r.db.SelectContext(ctx, &slots, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list asset slots: %w", err)
	}
	return slots, nil
}

// CommitPointer переводит указатель на новый ключ, если last_changed_at не изменился
// с момента выдачи ссылки. changedAt == nil оставляет отметку времени как есть.
func (r *AssetSlotRepository) CommitPointer(ctx context.Context, ref domain.SlotRef, key string, changedAt, expected *time.Time) error {
	query := `
        UPDATE asset_slots
        SET current_key = $4,
            last_changed_at = COALESCE($5::timestamptz, last_changed_at),
            updated_at = CURRENT_TIMESTAMP
        WHERE owner_id = $1 AND kind = $2 AND sub_type = $3
          AND last_changed_at IS NOT DISTINCT FROM $6::timestamptz`

	result, err := r.db.ExecContext(ctx, query, ref.OwnerID, ref.Kind, ref.SubType, key, changedAt, expected)
	if err != nil {
		return fmt.Errorf("failed to commit pointer: %w", err)
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

// SetCurrentKey меняет только ключ; используется восстановлением
func (r *AssetSlotRepository) SetCurrentKey(ctx context.Context, ref domain.SlotRef, key string) error {
	query := `
        UPDATE asset_slots
        SET current_key = $4, updated_at = CURRENT_TIMESTAMP
        WHERE owner_id = $1 AND kind = $2 AND sub_type = $3`

	result, err := r.db.ExecContext(ctx, query, ref.OwnerID, ref.Kind, ref.SubType, key)
	if err != nil {
		return fmt.Errorf("failed to set current key: %w", err)
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

// DeleteOwner удаляет все слоты владельца; архив удаляется каскадно.
// Сессии загрузки остаются до очистки промежуточных объектов
func (r *AssetSlotRepository) DeleteOwner(ctx context.Context, ownerID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM asset_slots WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete asset slots: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}
