package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"profiledrive/internal/domain"
	"profiledrive/internal/locks"
	"profiledrive/internal/repository"
	"profiledrive/internal/service/s3"
)

// DeletionReport - что было удалено вместе с владельцем
type DeletionReport struct {
	OwnerID          string `json:"owner_id"`
	SlotsDeleted     int64  `json:"slots_deleted"`
	ObjectsDeleted   int    `json:"objects_deleted"`
	UploadsCancelled int    `json:"uploads_cancelled"`
}

// AccountService удаляет все активы владельца. Журнал изменений не удаляется.
type AccountService struct {
	slots    SlotRepository
	archives ArchiveRepository
	uploads  UploadRepository
	store    s3.ObjectStore
	locks    locks.Store
	buckets  domain.Buckets
	now      func() time.Time
	logger   *slog.Logger
}

func NewAccountService(slots SlotRepository, archives ArchiveRepository, uploads UploadRepository,
	store s3.ObjectStore, lockStore locks.Store, buckets domain.Buckets) *AccountService {
	return &AccountService{
		slots:    slots,
		archives: archives,
		uploads:  uploads,
		store:    store,
		locks:    lockStore,
		buckets:  buckets,
		now:      time.Now,
		logger:   slog.Default().With("component", "account"),
	}
}

// DeleteOwner отменяет незавершенные загрузки, удаляет объекты, затем строки;
// повторный вызов безопасен
func (s *AccountService) DeleteOwner(ctx context.Context, ownerID string) (*DeletionReport, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}

	cancelled, err := s.cancelUploads(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	slots, err := s.slots.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list asset slots: %w", err)
	}
	entries, err := s.archives.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive entries: %w", err)
	}

	byBucket := make(map[string][]string)
	var order []string
	add := func(loc domain.Location) {
		if _, ok := byBucket[loc.Bucket]; !ok {
			order = append(order, loc.Bucket)
		}
		byBucket[loc.Bucket] = append(byBucket[loc.Bucket], loc.Key)
	}
	for _, slot := range slots {
		if slot.HasCurrent() {
			add(s.buckets.Locate(slot.Kind, *slot.CurrentKey))
		}
	}
	for _, entry := range entries {
		add(s.buckets.Locate(entry.Kind, entry.ObjectKey))
	}

	report := &DeletionReport{OwnerID: ownerID, UploadsCancelled: cancelled}
	for _, bucket := range order {
		keys := byBucket[bucket]
		if err := s.store.DeleteMany(ctx, bucket, keys); err != nil {
			return nil, fmt.Errorf("failed to delete owner objects: %w", err)
		}
		report.ObjectsDeleted += len(keys)
	}

	report.SlotsDeleted, err = s.slots.DeleteOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete owner records: %w", err)
	}

	s.logger.Info("owner assets deleted", "owner_id", ownerID,
		"slots", report.SlotsDeleted, "objects", report.ObjectsDeleted, "uploads_cancelled", cancelled)
	return report, nil
}

// cancelUploads закрывает незавершенные сессии владельца и снимает их блокировки.
// Строки сессий остаются: PUT по еще живой ссылке удалит очистка загрузок
func (s *AccountService) cancelUploads(ctx context.Context, ownerID string) (int, error) {
	sessions, err := s.uploads.ListPendingByOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending uploads: %w", err)
	}

	now := s.now().UTC()
	cancelled := 0
	for i := range sessions {
		session := &sessions[i]
		err := s.uploads.Transition(ctx, session.ID, domain.UploadPending, domain.UploadCancelled, now)
		if errors.Is(err, repository.ErrStaleWrite) {
			// сессию успели завершить или истечь
			continue
		}
		if err != nil {
			return cancelled, fmt.Errorf("failed to cancel upload session: %w", err)
		}
		cancelled++

		if session.LockToken != "" {
			if _, err := s.locks.Release(ctx, session.Ref().LockKey(), session.LockToken); err != nil {
				s.logger.Warn("failed to release slot lock", "upload_id", session.ID, "error", err)
			}
		}
		if err := s.store.Delete(ctx, s.buckets.Locate(session.Kind, session.StagingKey)); err != nil {
			s.logger.Warn("failed to delete staged upload", "upload_id", session.ID, "error", err)
		}
	}
	return cancelled, nil
}
