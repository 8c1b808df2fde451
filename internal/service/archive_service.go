package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"profiledrive/internal/domain"
	"profiledrive/internal/metrics"
	"profiledrive/internal/repository"
	"profiledrive/internal/service/s3"
)

const defaultHistoryLimit = 50

// Restored - результат восстановления последней архивной версии
type Restored struct {
	Entry      domain.ArchiveEntry `json:"entry"`
	CurrentKey string              `json:"current_key"`
}

// ArchiveManager сохраняет вытесняемую версию до перезаписи и восстанавливает ее
type ArchiveManager struct {
	store    s3.ObjectStore
	archives ArchiveRepository
	buckets  domain.Buckets
	metrics  metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
	newID    func() uuid.UUID
}

func NewArchiveManager(store s3.ObjectStore, archives ArchiveRepository, buckets domain.Buckets, m metrics.Metrics) *ArchiveManager {
	if m == nil {
		m = metrics.Noop{}
	}
	return &ArchiveManager{
		store:    store,
		archives: archives,
		buckets:  buckets,
		metrics:  m,
		logger:   slog.Default().With("component", "archive"),
		now:      time.Now,
		newID:    uuid.New,
	}
}

// ArchiveCurrent копирует текущий объект слота в новый архивный ключ и записывает
// запись архива. Возвращает ErrNoCurrentVersion, если архивировать нечего.
func (m *ArchiveManager) ArchiveCurrent(ctx context.Context, slot *domain.AssetSlot) (*domain.ArchiveEntry, error) {
	if !slot.Kind.Archived() {
		return nil, fmt.Errorf("%w: %s is not archived", ErrUnsupportedOperation, slot.Kind)
	}
	if !slot.HasCurrent() {
		return nil, ErrNoCurrentVersion
	}

	at := m.now().UTC()
	src := m.buckets.Locate(slot.Kind, *slot.CurrentKey)
	dst := m.buckets.Locate(slot.Kind, slot.Kind.ArchiveKey(slot.OwnerID, at, m.newID()))

	if err := m.store.Copy(ctx, src, dst); err != nil {
		if errors.Is(err, s3.ErrObjectNotFound) {
			// указатель есть, а объекта нет: считаем слот пустым
			m.logger.Warn("current object missing, skipping archive", "owner_id", slot.OwnerID, "key", src.Key)
			return nil, ErrNoCurrentVersion
		}
		return nil, fmt.Errorf("failed to archive current version: %w", err)
	}

	entry := &domain.ArchiveEntry{
		OwnerID:   slot.OwnerID,
		Kind:      slot.Kind,
		SubType:   slot.SubType,
		ObjectKey: dst.Key,
		CreatedAt: at,
	}
	if err := m.archives.Create(ctx, entry); err != nil {
		m.logger.Error("archive copy left without record", "owner_id", slot.OwnerID, "key", dst.Key, "error", err)
		return nil, fmt.Errorf("failed to record archive entry: %w", err)
	}

	m.metrics.IncArchiveCreated(string(slot.Kind))
	m.logger.Info("archived current version", "owner_id", slot.OwnerID, "entry_id", entry.ID, "key", dst.Key)
	return entry, nil
}

// RestoreLatest копирует самую свежую архивную версию обратно в текущий ключ слота.
// Остальные записи архива не трогаются.
func (m *ArchiveManager) RestoreLatest(ctx context.Context, ref domain.SlotRef) (*Restored, error) {
	entry, err := m.archives.Latest(ctx, ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoArchiveAvailable
		}
		return nil, fmt.Errorf("failed to get latest archive entry: %w", err)
	}

	src := m.buckets.Locate(ref.Kind, entry.ObjectKey)
	exists, err := m.store.Exists(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("failed to check archived object: %w", err)
	}
	if !exists {
		return nil, &ArchiveStaleError{Entry: *entry}
	}

	currentKey := ref.CurrentKey()
	if err := m.store.Copy(ctx, src, m.buckets.Locate(ref.Kind, currentKey)); err != nil {
		if errors.Is(err, s3.ErrObjectNotFound) {
			return nil, &ArchiveStaleError{Entry: *entry}
		}
		return nil, fmt.Errorf("failed to restore archived version: %w", err)
	}

	return &Restored{Entry: *entry, CurrentKey: currentKey}, nil
}

// PruneStale удаляет запись архива, если ее объект действительно отсутствует
func (m *ArchiveManager) PruneStale(ctx context.Context, ownerID string, entryID int64) error {
	entry, err := m.archives.Get(ctx, ownerID, entryID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrArchiveEntryNotFound
		}
		return fmt.Errorf("failed to get archive entry: %w", err)
	}

	exists, err := m.store.Exists(ctx, m.buckets.Locate(entry.Kind, entry.ObjectKey))
	if err != nil {
		return fmt.Errorf("failed to check archived object: %w", err)
	}
	if exists {
		return ErrArchiveNotStale
	}

	if err := m.archives.Delete(ctx, ownerID, entryID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrArchiveEntryNotFound
		}
		return fmt.Errorf("failed to delete archive entry: %w", err)
	}

	m.logger.Info("pruned stale archive entry", "owner_id", ownerID, "entry_id", entryID)
	return nil
}

// History возвращает архив слота, новые записи первыми
func (m *ArchiveManager) History(ctx context.Context, ref domain.SlotRef, limit int) ([]domain.ArchiveEntry, error) {
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	entries, err := m.archives.List(ctx, ref, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}
	return entries, nil
}
