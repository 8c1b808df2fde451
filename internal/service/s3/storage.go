// storage.go
package s3

import (
	"context"
	"errors"
	"net/http"
	"time"

	"profiledrive/internal/domain"
)

// ErrObjectNotFound возвращается, когда объекта нет в бакете
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore определяет операции с объектами, которые выполняет сам сервис
type ObjectStore interface {
	Put(ctx context.Context, loc domain.Location, body []byte, contentType string) error
	Copy(ctx context.Context, src, dst domain.Location) error
	Exists(ctx context.Context, loc domain.Location) (bool, error)
	Stat(ctx context.Context, loc domain.Location) (*ObjectInfo, error)
	Delete(ctx context.Context, loc domain.Location) error
	DeleteMany(ctx context.Context, bucket string, keys []string) error
}

// Presigner выдает подписанные ссылки; сами данные через сервис не проходят
type Presigner interface {
	PresignPut(ctx context.Context, loc domain.Location, contentType string, ttl time.Duration) (*PresignedRequest, error)
	PresignGet(ctx context.Context, loc domain.Location, ttl time.Duration) (*PresignedRequest, error)
}

// Storage определяет интерфейс для работы с S3-совместимым хранилищем
type Storage interface {
	ObjectStore
	Presigner
}

// PresignedRequest - подписанный запрос, который клиент выполняет сам
type PresignedRequest struct {
	URL          string
	Method       string
	SignedHeader http.Header
}

// ObjectInfo - метаданные объекта из HEAD
type ObjectInfo struct {
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}
