package service

import (
	"context"
	"fmt"
	"time"

	"profiledrive/internal/domain"
	"profiledrive/internal/service/s3"
)

const (
	DefaultUploadTTL   = 300 * time.Second
	DefaultDownloadTTL = 3600 * time.Second
)

// CapabilityIssuer выдает подписанные ссылки на одну операцию с одним объектом.
// Данные через сервис не проходят.
type CapabilityIssuer struct {
	presigner   s3.Presigner
	uploadTTL   time.Duration
	downloadTTL time.Duration
	now         func() time.Time
}

func NewCapabilityIssuer(presigner s3.Presigner, uploadTTL, downloadTTL time.Duration) *CapabilityIssuer {
	if uploadTTL <= 0 {
		uploadTTL = DefaultUploadTTL
	}
	if downloadTTL <= 0 {
		downloadTTL = DefaultDownloadTTL
	}
	return &CapabilityIssuer{
		presigner:   presigner,
		uploadTTL:   uploadTTL,
		downloadTTL: downloadTTL,
		now:         time.Now,
	}
}

// IssueUpload подписывает PUT; тип содержимого задается классом и не проверяется сервером
func (c *CapabilityIssuer) IssueUpload(ctx context.Context, loc domain.Location, ttl time.Duration, class domain.ContentClass) (*domain.Capability, error) {
	if ttl <= 0 {
		ttl = c.uploadTTL
	}
	if loc.Bucket == "" || loc.Key == "" {
		return nil, fmt.Errorf("%w: empty location", ErrCapabilityIssuance)
	}

	contentType := class.ContentType()
	issuedAt := c.now()
	req, err := c.presigner.PresignPut(ctx, loc, contentType, ttl)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCapabilityIssuance, err)
	}

	return &domain.Capability{
		Operation:     domain.OperationUpload,
		Method:        req.Method,
		URL:           req.URL,
		Bucket:        loc.Bucket,
		Key:           loc.Key,
		ContentType:   contentType,
		SignedHeaders: req.SignedHeader,
		ExpiresAt:     issuedAt.Add(ttl).UTC(),
	}, nil
}

func (c *CapabilityIssuer) IssueDownload(ctx context.Context, loc domain.Location, ttl time.Duration) (*domain.Capability, error) {
	if ttl <= 0 {
		ttl = c.downloadTTL
	}
	if loc.Bucket == "" || loc.Key == "" {
		return nil, fmt.Errorf("%w: empty location", ErrCapabilityIssuance)
	}

	issuedAt := c.now()
	req, err := c.presigner.PresignGet(ctx, loc, ttl)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCapabilityIssuance, err)
	}

	return &domain.Capability{
		Operation:     domain.OperationDownload,
		Method:        req.Method,
		URL:           req.URL,
		Bucket:        loc.Bucket,
		Key:           loc.Key,
		SignedHeaders: req.SignedHeader,
		ExpiresAt:     issuedAt.Add(ttl).UTC(),
	}, nil
}
