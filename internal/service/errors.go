package service

import (
	"errors"
	"fmt"
	"time"

	"profiledrive/internal/domain"
)

var (
	ErrPolicyDenied         = errors.New("mutation denied by cooldown policy")
	ErrNoCurrentVersion     = errors.New("slot has no current version")
	ErrNoArchiveAvailable   = errors.New("no archived version available")
	ErrArchiveEntryStale    = errors.New("archived object is missing from storage")
	ErrArchiveEntryNotFound = errors.New("archive entry not found")
	ErrArchiveNotStale      = errors.New("archived object still exists")
	ErrCapabilityIssuance   = errors.New("failed to issue capability")
	ErrConcurrentMutation   = errors.New("another mutation of this slot is in progress")
	ErrSlotNotFound         = errors.New("asset slot not found")
	ErrUploadNotFound       = errors.New("upload session not found")
	ErrUploadExpired        = errors.New("upload session expired")
	ErrUploadClosed         = errors.New("upload session already closed")
	ErrUploadNotConfirmed   = errors.New("uploaded object not found in storage")
	ErrInvalidKind          = errors.New("invalid asset kind")
	ErrInvalidSubType       = errors.New("invalid asset sub type")
	ErrUnsupportedOperation = errors.New("operation not supported for asset kind")
	ErrOwnerRequired        = errors.New("owner id is required")
)

// PolicyDeniedError - отказ по окну перезаписи с оставшимся временем ожидания
type PolicyDeniedError struct {
	Kind      domain.AssetKind
	Remaining time.Duration
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("%s can be changed again in %s", e.Kind, e.Remaining.Round(time.Second))
}

func (e *PolicyDeniedError) Unwrap() error { return ErrPolicyDenied }

// ArchiveStaleError - запись архива есть, а объекта в хранилище нет
type ArchiveStaleError struct {
	Entry domain.ArchiveEntry
}

func (e *ArchiveStaleError) Error() string {
	return fmt.Sprintf("archive entry %d is stale: %s", e.Entry.ID, e.Entry.ObjectKey)
}

func (e *ArchiveStaleError) Unwrap() error { return ErrArchiveEntryStale }

type LogStage string

const (
	LogStageWrite  LogStage = "write"
	LogStageNotify LogStage = "notify"
)

// LogFailure - сбой журнала изменений; мутацию никогда не отменяет
type LogFailure struct {
	Stage LogStage
	Err   error
}

func (e *LogFailure) Error() string {
	return fmt.Sprintf("audit %s failed: %v", e.Stage, e.Err)
}

func (e *LogFailure) Unwrap() error { return e.Err }
