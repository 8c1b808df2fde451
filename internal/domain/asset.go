// domain/asset.go
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AssetKind определяет тип слота и связанное с ним поведение
type AssetKind string

const (
	KindProfilePicture AssetKind = "profile_picture"
	KindMarksCard      AssetKind = "marks_card"
)

// ContentClass задает ожидаемый класс содержимого по соглашению с клиентом
type ContentClass string

const (
	ContentClassImage    ContentClass = "image"
	ContentClassDocument ContentClass = "document"
)

// ContentType возвращает тип содержимого, который подписывается в ссылку на загрузку
func (c ContentClass) ContentType() string {
	switch c {
	case ContentClassImage:
		return "image/*"
	case ContentClassDocument:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// BucketRole указывает, в каком бакете живут объекты
type BucketRole string

const (
	BucketPictures BucketRole = "pictures"
	BucketMarks    BucketRole = "marks"
	BucketLogs     BucketRole = "logs"
)

type kindTraits struct {
	bucket   BucketRole
	class    ContentClass
	cooldown bool
	archived bool
	audited  bool
	subTyped bool
	ext      string
}

var kindTable = map[AssetKind]kindTraits{
	KindProfilePicture: {
		bucket:   BucketPictures,
		class:    ContentClassImage,
		cooldown: true,
		archived: true,
		ext:      ".jpg",
	},
	KindMarksCard: {
		bucket:   BucketMarks,
		class:    ContentClassDocument,
		audited:  true,
		subTyped: true,
		ext:      ".pdf",
	},
}

// ParseAssetKind разбирает строковое представление типа
func ParseAssetKind(raw string) (AssetKind, error) {
	kind := AssetKind(strings.TrimSpace(raw))
	if !kind.Valid() {
		return "", fmt.Errorf("unknown asset kind %q", raw)
	}
	return kind, nil
}

func (k AssetKind) Valid() bool {
	_, ok := kindTable[k]
	return ok
}

func (k AssetKind) traits() kindTraits {
	return kindTable[k]
}

func (k AssetKind) Bucket() BucketRole         { return k.traits().bucket }
func (k AssetKind) ContentClass() ContentClass { return k.traits().class }

// CooldownGated сообщает, ограничена ли смена слота временным окном
func (k AssetKind) CooldownGated() bool { return k.traits().cooldown }

// Archived сообщает, сохраняется ли предыдущая версия перед перезаписью
func (k AssetKind) Archived() bool { return k.traits().archived }

// Audited сообщает, пишется ли журнал изменений
func (k AssetKind) Audited() bool { return k.traits().audited }

// SubTyped сообщает, адресуется ли слот дополнительным подтипом (например, классом)
func (k AssetKind) SubTyped() bool { return k.traits().subTyped }

// Serialized сообщает, нужна ли блокировка слота на время мутации
func (k AssetKind) Serialized() bool {
	s := k.traits()
	return s.cooldown || s.archived
}

// CurrentKey строит ключ текущего объекта слота
func (k AssetKind) CurrentKey(ownerID, subType string) string {
	switch k {
	case KindProfilePicture:
		return fmt.Sprintf("%s/current/profile%s", ownerID, k.traits().ext)
	case KindMarksCard:
		return fmt.Sprintf("%s/%s_markscard%s", ownerID, subType, k.traits().ext)
	default:
		return fmt.Sprintf("%s/%s/%s", ownerID, k, subType)
	}
}

// StagingKey строит ключ для загрузки одной сессии. Клиент пишет только сюда,
// текущий объект меняется копированием после подтверждения
func (k AssetKind) StagingKey(ownerID string, uploadID uuid.UUID) string {
	return fmt.Sprintf("%s/uploads/%s%s", ownerID, uploadID.String(), k.traits().ext)
}

// ArchiveKey строит уникальный ключ архивной копии: время в наносекундах плюс случайный uuid
func (k AssetKind) ArchiveKey(ownerID string, at time.Time, id uuid.UUID) string {
	return fmt.Sprintf("%s/archive/%d_%s%s", ownerID, at.UTC().UnixNano(), id.String(), k.traits().ext)
}

// SlotRef адресует один слот владельца
type SlotRef struct {
	OwnerID string    `json:"owner_id"`
	Kind    AssetKind `json:"kind"`
	SubType string    `json:"sub_type,omitempty"`
}

// LockKey возвращает имя ресурса для блокировки слота
func (r SlotRef) LockKey() string {
	if r.SubType == "" {
		return fmt.Sprintf("slot:%s:%s", r.OwnerID, r.Kind)
	}
	return fmt.Sprintf("slot:%s:%s:%s", r.OwnerID, r.Kind, r.SubType)
}

func (r SlotRef) CurrentKey() string {
	return r.Kind.CurrentKey(r.OwnerID, r.SubType)
}

// Location - адрес объекта в хранилище
type Location struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func (l Location) String() string {
	return l.Bucket + "/" + l.Key
}

// Buckets связывает роли бакетов с их именами
type Buckets struct {
	Pictures string
	Marks    string
	Logs     string
}

func (b Buckets) For(role BucketRole) string {
	switch role {
	case BucketPictures:
		return b.Pictures
	case BucketMarks:
		return b.Marks
	case BucketLogs:
		return b.Logs
	default:
		return ""
	}
}

// Locate возвращает адрес объекта для ключа в бакете типа слота
func (b Buckets) Locate(kind AssetKind, key string) Location {
	return Location{Bucket: b.For(kind.Bucket()), Key: key}
}
