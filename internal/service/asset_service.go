package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"profiledrive/internal/domain"
	"profiledrive/internal/locks"
	"profiledrive/internal/metrics"
	"profiledrive/internal/policy"
	"profiledrive/internal/repository"
	"profiledrive/internal/service/s3"
)

const (
	defaultLockGrace  = 60 * time.Second
	defaultSweepBatch = 100
)

var DefaultSubTypes = []string{"10th", "12th"}

type AssetConfig struct {
	Window      time.Duration
	UploadTTL   time.Duration
	DownloadTTL time.Duration
	LockGrace   time.Duration
	SubTypes    []string
	SweepBatch  int
}

func (c AssetConfig) withDefaults() AssetConfig {
	if c.Window == 0 {
		c.Window = policy.DefaultWindow
	}
	if c.UploadTTL <= 0 {
		c.UploadTTL = DefaultUploadTTL
	}
	if c.DownloadTTL <= 0 {
		c.DownloadTTL = DefaultDownloadTTL
	}
	if c.LockGrace <= 0 {
		c.LockGrace = defaultLockGrace
	}
	if len(c.SubTypes) == 0 {
		c.SubTypes = DefaultSubTypes
	}
	if c.SweepBatch <= 0 {
		c.SweepBatch = defaultSweepBatch
	}
	return c
}

// AssetDeps - зависимости оркестратора
type AssetDeps struct {
	Slots   SlotRepository
	Uploads UploadRepository
	Store   s3.ObjectStore
	Issuer  *CapabilityIssuer
	Archive *ArchiveManager
	Audit   ChangeRecorder
	Locks   locks.Store
	Buckets domain.Buckets
	Metrics metrics.Metrics
}

// UploadTicket - разрешение на прямую загрузку в хранилище
type UploadTicket struct {
	UploadID   uuid.UUID            `json:"upload_id"`
	Slot       domain.SlotRef       `json:"slot"`
	Capability *domain.Capability   `json:"capability"`
	Archived   *domain.ArchiveEntry `json:"archived,omitempty"`
	ExpiresAt  time.Time            `json:"expires_at"`
}

// CompletionResult - итог подтверждения загрузки
type CompletionResult struct {
	Slot        domain.SlotRef      `json:"slot"`
	CurrentKey  string              `json:"current_key"`
	ChangedAt   time.Time           `json:"changed_at"`
	AuditLogged bool                `json:"audit_logged"`
	Notified    bool                `json:"notified"`
	Event       *domain.ChangeEvent `json:"event,omitempty"`
}

type RestoreResult struct {
	Slot       domain.SlotRef      `json:"slot"`
	Entry      domain.ArchiveEntry `json:"entry"`
	CurrentKey string              `json:"current_key"`
}

// SlotView - указатель слота вместе со ссылкой на скачивание
type SlotView struct {
	Slot     domain.AssetSlot   `json:"slot"`
	Download *domain.Capability `json:"download,omitempty"`
}

type ProfileView struct {
	OwnerID string     `json:"owner_id"`
	Slots   []SlotView `json:"slots"`
}

// AssetService управляет жизненным циклом слотов: политика, архив, выдача ссылок,
// фиксация указателя после подтверждения и журнал изменений
type AssetService struct {
	slots   SlotRepository
	uploads UploadRepository
	store   s3.ObjectStore
	issuer  *CapabilityIssuer
	archive *ArchiveManager
	audit   ChangeRecorder
	locks   locks.Store
	buckets domain.Buckets
	metrics metrics.Metrics
	cfg     AssetConfig
	logger  *slog.Logger
	now     func() time.Time
}

func NewAssetService(deps AssetDeps, cfg AssetConfig) *AssetService {
	m := deps.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	lockStore := deps.Locks
	if lockStore == nil {
		lockStore = locks.NewMemoryStore()
	}
	return &AssetService{
		slots:   deps.Slots,
		uploads: deps.Uploads,
		store:   deps.Store,
		issuer:  deps.Issuer,
		archive: deps.Archive,
		audit:   deps.Audit,
		locks:   lockStore,
		buckets: deps.Buckets,
		metrics: m,
		cfg:     cfg.withDefaults(),
		logger:  slog.Default().With("component", "assets"),
		now:     time.Now,
	}
}

// SlotFor проверяет тип и подтип и возвращает адрес слота
func (s *AssetService) SlotFor(ownerID string, kind domain.AssetKind, subType string) (domain.SlotRef, error) {
	if ownerID == "" {
		return domain.SlotRef{}, ErrOwnerRequired
	}
	if !kind.Valid() {
		return domain.SlotRef{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if kind.SubTyped() {
		if !slices.Contains(s.cfg.SubTypes, subType) {
			return domain.SlotRef{}, fmt.Errorf("%w: %q", ErrInvalidSubType, subType)
		}
	} else if subType != "" {
		return domain.SlotRef{}, fmt.Errorf("%w: %s takes no sub type", ErrInvalidSubType, kind)
	}
	return domain.SlotRef{OwnerID: ownerID, Kind: kind, SubType: subType}, nil
}

// BeginUpload проверяет политику, архивирует текущую версию и выдает ссылку на загрузку.
// Для сериализуемых типов блокировка слота держится до подтверждения или истечения сессии.
func (s *AssetService) BeginUpload(ctx context.Context, ownerID string, kind domain.AssetKind, subType string) (*UploadTicket, error) {
	ref, err := s.SlotFor(ownerID, kind, subType)
	if err != nil {
		return nil, err
	}

	var token string
	if kind.Serialized() {
		token, err = s.acquire(ctx, ref, s.cfg.UploadTTL+s.cfg.LockGrace)
		if err != nil {
			return nil, err
		}
	}
	issued := false
	defer func() {
		if !issued && token != "" {
			s.release(ctx, ref, token)
		}
	}()

	slot, err := s.slots.Ensure(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to load asset slot: %w", err)
	}

	now := s.now().UTC()
	if kind.CooldownGated() {
		decision := policy.Evaluate(slot.LastChangedAt, now, s.cfg.Window)
		if decision.Skewed {
			s.logger.Warn("last change is in the future, allowing", "owner_id", ownerID, "kind", kind,
				"last_changed_at", slot.LastChangedAt, "now", now)
		}
		if !decision.Allowed() {
			s.metrics.IncPolicyDenied(string(kind))
			s.metrics.IncMutation(string(kind), "denied")
			return nil, &PolicyDeniedError{Kind: kind, Remaining: decision.Remaining}
		}
	}

	var archived *domain.ArchiveEntry
	if kind.Archived() {
		archived, err = s.archive.ArchiveCurrent(ctx, slot)
		if err != nil && !errors.Is(err, ErrNoCurrentVersion) {
			s.metrics.IncMutation(string(kind), "failed")
			return nil, err
		}
	}

	uploadID := uuid.New()
	session := &domain.UploadSession{
		ID:                    uploadID,
		OwnerID:               ownerID,
		Kind:                  kind,
		SubType:               subType,
		StagingKey:            kind.StagingKey(ownerID, uploadID),
		ExpectedLastChangedAt: slot.LastChangedAt,
		LockToken:             token,
		Status:                domain.UploadPending,
		CreatedAt:             now,
		ExpiresAt:             now.Add(s.cfg.UploadTTL),
	}
	if err := s.uploads.Create(ctx, session); err != nil {
		s.metrics.IncMutation(string(kind), "failed")
		return nil, fmt.Errorf("failed to create upload session: %w", err)
	}

	capability, err := s.issuer.IssueUpload(ctx, s.buckets.Locate(kind, session.StagingKey), s.cfg.UploadTTL, kind.ContentClass())
	if err != nil {
		if terr := s.uploads.Transition(ctx, session.ID, domain.UploadPending, domain.UploadFailed, s.now().UTC()); terr != nil {
			s.logger.Warn("failed to mark upload session failed", "upload_id", session.ID, "error", terr)
		}
		s.metrics.IncMutation(string(kind), "failed")
		return nil, err
	}

	issued = true
	s.metrics.IncMutation(string(kind), "issued")
	s.logger.Info("upload capability issued", "owner_id", ownerID, "kind", kind, "sub_type", subType,
		"upload_id", session.ID, "archived", archived != nil)

	return &UploadTicket{
		UploadID:   session.ID,
		Slot:       ref,
		Capability: capability,
		Archived:   archived,
		ExpiresAt:  session.ExpiresAt,
	}, nil
}

// CompleteUpload подтверждает загрузку: проверяет промежуточный объект, копирует его
// в текущий ключ, фиксирует указатель с условием на last_changed_at и пишет журнал
// изменений для аудируемых типов
func (s *AssetService) CompleteUpload(ctx context.Context, ownerID string, uploadID uuid.UUID) (*CompletionResult, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}

	session, err := s.uploads.Get(ctx, ownerID, uploadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUploadNotFound
		}
		return nil, fmt.Errorf("failed to get upload session: %w", err)
	}

	switch session.Status {
	case domain.UploadPending:
	case domain.UploadExpired:
		return nil, ErrUploadExpired
	default:
		return nil, ErrUploadClosed
	}

	ref := session.Ref()
	now := s.now().UTC()
	if session.Expired(now) {
		s.closeSession(ctx, session, domain.UploadExpired, now)
		return nil, ErrUploadExpired
	}

	staging := s.buckets.Locate(session.Kind, session.StagingKey)
	if _, err := s.store.Stat(ctx, staging); err != nil {
		if errors.Is(err, s3.ErrObjectNotFound) {
			return nil, ErrUploadNotConfirmed
		}
		return nil, fmt.Errorf("failed to confirm upload: %w", err)
	}

	// текущий объект меняется только после подтверждения и под блокировкой слота
	currentKey := ref.CurrentKey()
	if err := s.store.Copy(ctx, staging, s.buckets.Locate(session.Kind, currentKey)); err != nil {
		return nil, fmt.Errorf("failed to promote upload: %w", err)
	}

	var changedAt *time.Time
	if session.Kind.CooldownGated() {
		changedAt = &now
	}
	if err := s.slots.CommitPointer(ctx, ref, currentKey, changedAt, session.ExpectedLastChangedAt); err != nil {
		if errors.Is(err, repository.ErrStaleWrite) {
			s.closeSession(ctx, session, domain.UploadFailed, now)
			s.metrics.IncMutation(string(session.Kind), "conflict")
			return nil, ErrConcurrentMutation
		}
		return nil, fmt.Errorf("failed to commit pointer: %w", err)
	}

	if err := s.uploads.Transition(ctx, session.ID, domain.UploadPending, domain.UploadCompleted, now); err != nil {
		if errors.Is(err, repository.ErrStaleWrite) {
			return nil, ErrUploadClosed
		}
		return nil, fmt.Errorf("failed to complete upload session: %w", err)
	}
	if session.LockToken != "" {
		s.release(ctx, ref, session.LockToken)
	}
	s.dropStaging(ctx, session)

	s.metrics.IncMutation(string(session.Kind), "committed")
	result := &CompletionResult{
		Slot:       ref,
		CurrentKey: currentKey,
		ChangedAt:  now,
	}

	if session.Kind.Audited() && s.audit != nil {
		ev, err := s.audit.RecordChange(ctx, ownerID, session.SubType, now)
		if err != nil {
			s.logger.Error("change record not written", "owner_id", ownerID, "sub_type", session.SubType, "error", err)
		} else {
			result.AuditLogged = true
			result.Notified = ev.Notified
			result.Event = ev
		}
	}

	s.logger.Info("pointer committed", "owner_id", ownerID, "kind", session.Kind, "sub_type", session.SubType,
		"upload_id", session.ID)
	return result, nil
}

// Restore возвращает в текущий слот самую свежую архивную версию
func (s *AssetService) Restore(ctx context.Context, ownerID string, kind domain.AssetKind) (*RestoreResult, error) {
	ref, err := s.SlotFor(ownerID, kind, "")
	if err != nil {
		return nil, err
	}
	if !kind.Archived() {
		return nil, fmt.Errorf("%w: restore of %s", ErrUnsupportedOperation, kind)
	}

	token, err := s.acquire(ctx, ref, s.cfg.LockGrace)
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, ref, token)

	restored, err := s.archive.RestoreLatest(ctx, ref)
	if err != nil {
		var stale *ArchiveStaleError
		switch {
		case errors.As(err, &stale):
			s.metrics.IncRestore(string(kind), "stale")
			s.logger.Warn("latest archive entry is stale", "owner_id", ownerID, "entry_id", stale.Entry.ID)
		case errors.Is(err, ErrNoArchiveAvailable):
			s.metrics.IncRestore(string(kind), "empty")
		default:
			s.metrics.IncRestore(string(kind), "failed")
		}
		return nil, err
	}

	if err := s.slots.SetCurrentKey(ctx, ref, restored.CurrentKey); err != nil {
		s.metrics.IncRestore(string(kind), "failed")
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("failed to update pointer after restore: %w", err)
	}

	s.metrics.IncRestore(string(kind), "restored")
	s.logger.Info("restored archived version", "owner_id", ownerID, "kind", kind, "entry_id", restored.Entry.ID)
	return &RestoreResult{Slot: ref, Entry: restored.Entry, CurrentKey: restored.CurrentKey}, nil
}

// Slot возвращает указатель слота
func (s *AssetService) Slot(ctx context.Context, ownerID string, kind domain.AssetKind, subType string) (*domain.AssetSlot, error) {
	ref, err := s.SlotFor(ownerID, kind, subType)
	if err != nil {
		return nil, err
	}
	slot, err := s.slots.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("failed to get asset slot: %w", err)
	}
	return slot, nil
}

// DownloadCapability выдает ссылку на скачивание текущей версии
func (s *AssetService) DownloadCapability(ctx context.Context, ownerID string, kind domain.AssetKind, subType string) (*domain.Capability, error) {
	slot, err := s.Slot(ctx, ownerID, kind, subType)
	if err != nil {
		return nil, err
	}
	if !slot.HasCurrent() {
		return nil, ErrSlotNotFound
	}
	return s.issuer.IssueDownload(ctx, s.buckets.Locate(kind, *slot.CurrentKey), s.cfg.DownloadTTL)
}

// Profile возвращает все слоты владельца со ссылками на скачивание
func (s *AssetService) Profile(ctx context.Context, ownerID string) (*ProfileView, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}

	slots, err := s.slots.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list asset slots: %w", err)
	}

	view := &ProfileView{OwnerID: ownerID, Slots: make([]SlotView, 0, len(slots))}
	for _, slot := range slots {
		sv := SlotView{Slot: slot}
		if slot.HasCurrent() {
			capability, err := s.issuer.IssueDownload(ctx, s.buckets.Locate(slot.Kind, *slot.CurrentKey), s.cfg.DownloadTTL)
			if err != nil {
				return nil, err
			}
			sv.Download = capability
		}
		view.Slots = append(view.Slots, sv)
	}
	return view, nil
}

func (s *AssetService) History(ctx context.Context, ownerID string, kind domain.AssetKind, limit int) ([]domain.ArchiveEntry, error) {
	ref, err := s.SlotFor(ownerID, kind, "")
	if err != nil {
		return nil, err
	}
	if !kind.Archived() {
		return nil, fmt.Errorf("%w: history of %s", ErrUnsupportedOperation, kind)
	}
	return s.archive.History(ctx, ref, limit)
}

func (s *AssetService) PruneStale(ctx context.Context, ownerID string, entryID int64) error {
	if ownerID == "" {
		return ErrOwnerRequired
	}
	return s.archive.PruneStale(ctx, ownerID, entryID)
}

// ExpireStaleUploads закрывает просроченные сессии и освобождает их блокировки.
// Закрытые сессии, чьи ссылки истекли больше LockGrace назад, удаляются вместе
// с промежуточными объектами. Возвращает число обработанных сессий
func (s *AssetService) ExpireStaleUploads(ctx context.Context) (int, error) {
	now := s.now().UTC()
	sessions, err := s.uploads.ListExpired(ctx, now, s.cfg.SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired uploads: %w", err)
	}

	expired := 0
	for i := range sessions {
		session := &sessions[i]
		if err := s.uploads.Transition(ctx, session.ID, domain.UploadPending, domain.UploadExpired, now); err != nil {
			if !errors.Is(err, repository.ErrStaleWrite) {
				s.logger.Warn("failed to expire upload session", "upload_id", session.ID, "error", err)
			}
			continue
		}
		if session.LockToken != "" {
			s.release(ctx, session.Ref(), session.LockToken)
		}
		expired++
	}

	s.metrics.IncUploadsExpired(expired)
	if expired > 0 {
		s.logger.Info("expired stale upload sessions", "count", expired)
	}

	removed, err := s.purgeClosedUploads(ctx, now)
	if err != nil {
		return expired, err
	}
	return expired + removed, nil
}

// purgeClosedUploads удаляет промежуточные объекты закрытых сессий. Запас LockGrace
// покрывает PUT, начатый до истечения ссылки
func (s *AssetService) purgeClosedUploads(ctx context.Context, now time.Time) (int, error) {
	sessions, err := s.uploads.ListClosed(ctx, now.Add(-s.cfg.LockGrace), s.cfg.SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list closed uploads: %w", err)
	}

	removed := 0
	for i := range sessions {
		session := &sessions[i]
		if err := s.store.Delete(ctx, s.buckets.Locate(session.Kind, session.StagingKey)); err != nil {
			s.logger.Warn("failed to delete staged upload", "upload_id", session.ID, "error", err)
			continue
		}
		if err := s.uploads.Delete(ctx, session.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("failed to delete upload session", "upload_id", session.ID, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("purged closed upload sessions", "count", removed)
	}
	return removed, nil
}

func (s *AssetService) dropStaging(ctx context.Context, session *domain.UploadSession) {
	// остаток подберет purgeClosedUploads
	if err := s.store.Delete(context.WithoutCancel(ctx), s.buckets.Locate(session.Kind, session.StagingKey)); err != nil {
		s.logger.Warn("failed to delete staged upload", "upload_id", session.ID, "error", err)
	}
}

func (s *AssetService) closeSession(ctx context.Context, session *domain.UploadSession, to domain.UploadStatus, at time.Time) {
	err := s.uploads.Transition(ctx, session.ID, domain.UploadPending, to, at)
	if err != nil && !errors.Is(err, repository.ErrStaleWrite) {
		s.logger.Warn("failed to close upload session", "upload_id", session.ID, "status", to, "error", err)
	}
	if session.LockToken != "" {
		s.release(ctx, session.Ref(), session.LockToken)
	}
}

func (s *AssetService) acquire(ctx context.Context, ref domain.SlotRef, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := s.locks.Acquire(ctx, ref.LockKey(), token, ttl)
	if err != nil {
		return "", fmt.Errorf("failed to acquire slot lock: %w", err)
	}
	if !ok {
		s.metrics.IncMutation(string(ref.Kind), "conflict")
		return "", ErrConcurrentMutation
	}
	return token, nil
}

func (s *AssetService) release(ctx context.Context, ref domain.SlotRef, token string) {
	// освобождаем даже при отмененном запросе
	ok, err := s.locks.Release(context.WithoutCancel(ctx), ref.LockKey(), token)
	if err != nil {
		s.logger.Warn("failed to release slot lock", "slot", ref.LockKey(), "error", err)
		return
	}
	if !ok {
		s.logger.Debug("slot lock already released", "slot", ref.LockKey())
	}
}
