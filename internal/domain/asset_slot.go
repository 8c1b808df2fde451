package domain

import (
	"time"

	"github.com/google/uuid"
)

// AssetSlot - указатель на текущую версию актива владельца
type AssetSlot struct {
	OwnerID       string     `json:"owner_id" db:"owner_id"`
	Kind          AssetKind  `json:"kind" db:"kind"`
	SubType       string     `json:"sub_type,omitempty" db:"sub_type"`
	CurrentKey    *string    `json:"current_key,omitempty" db:"current_key"`
	LastChangedAt *time.Time `json:"last_changed_at,omitempty" db:"last_changed_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

func (s *AssetSlot) Ref() SlotRef {
	return SlotRef{OwnerID: s.OwnerID, Kind: s.Kind, SubType: s.SubType}
}

func (s *AssetSlot) HasCurrent() bool {
	return s.CurrentKey != nil && *s.CurrentKey != ""
}

// ArchiveEntry - вытесненная версия актива
type ArchiveEntry struct {
	ID        int64     `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Kind      AssetKind `json:"kind" db:"kind"`
	SubType   string    `json:"sub_type,omitempty" db:"sub_type"`
	ObjectKey string    `json:"object_key" db:"object_key"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadCompleted UploadStatus = "completed"
	UploadExpired   UploadStatus = "expired"
	UploadFailed    UploadStatus = "failed"
	UploadCancelled UploadStatus = "cancelled"
)

// UploadSession фиксирует выданную ссылку на загрузку до подтверждения клиентом
type UploadSession struct {
	ID                    uuid.UUID    `json:"id" db:"id"`
	OwnerID               string       `json:"owner_id" db:"owner_id"`
	Kind                  AssetKind    `json:"kind" db:"kind"`
	SubType               string       `json:"sub_type,omitempty" db:"sub_type"`
	StagingKey            string       `json:"staging_key" db:"staging_key"`
	ExpectedLastChangedAt *time.Time   `json:"-" db:"expected_last_changed_at"`
	LockToken             string       `json:"-" db:"lock_token"`
	Status                UploadStatus `json:"status" db:"status"`
	CreatedAt             time.Time    `json:"created_at" db:"created_at"`
	ExpiresAt             time.Time    `json:"expires_at" db:"expires_at"`
	CompletedAt           *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
}

func (u *UploadSession) Ref() SlotRef {
	return SlotRef{OwnerID: u.OwnerID, Kind: u.Kind, SubType: u.SubType}
}

func (u *UploadSession) Expired(now time.Time) bool {
	return !now.Before(u.ExpiresAt)
}
