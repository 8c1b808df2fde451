package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"profiledrive/internal/domain"
)

type SlotRepository interface {
	Get(ctx context.Context, ref domain.SlotRef) (*domain.AssetSlot, error)
	Ensure(ctx context.Context, ref domain.SlotRef) (*domain.AssetSlot, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.AssetSlot, error)
	CommitPointer(ctx context.Context, ref domain.SlotRef, key string, changedAt, expected *time.Time) error
	SetCurrentKey(ctx context.Context, ref domain.SlotRef, key string) error
	DeleteOwner(ctx context.Context, ownerID string) (int64, error)
}

type ArchiveRepository interface {
	Create(ctx context.Context, entry *domain.ArchiveEntry) error
	Latest(ctx context.Context, ref domain.SlotRef) (*domain.ArchiveEntry, error)
	List(ctx context.Context, ref domain.SlotRef, limit int) ([]domain.ArchiveEntry, error)
	Get(ctx context.Context, ownerID string, id int64) (*domain.ArchiveEntry, error)
	Delete(ctx context.Context, ownerID string, id int64) error
	ListByOwner(ctx context.Context, ownerID string) ([]domain.ArchiveEntry, error)
}

type UploadRepository interface {
	Create(ctx context.Context, s *domain.UploadSession) error
	Get(ctx context.Context, ownerID string, id uuid.UUID) (*domain.UploadSession, error)
	Transition(ctx context.Context, id uuid.UUID, from, to domain.UploadStatus, at time.Time) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.UploadSession, error)
	ListPendingByOwner(ctx context.Context, ownerID string) ([]domain.UploadSession, error)
	ListClosed(ctx context.Context, before time.Time, limit int) ([]domain.UploadSession, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ChangeRecorder пишет запись журнала изменений документа
type ChangeRecorder interface {
	RecordChange(ctx context.Context, ownerID, subType string, ts time.Time) (*domain.ChangeEvent, error)
}
