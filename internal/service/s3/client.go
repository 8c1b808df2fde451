package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"profiledrive/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	// DeleteObjects принимает не более 1000 ключей за запрос
	deleteBatchSize = 1000
)

// Client предоставляет методы для работы с S3-совместимым хранилищем
type Client struct {
	client  *s3.Client
	presign *s3.PresignClient
	logger  *slog.Logger
}

var _ Storage = (*Client)(nil)

// NewClient создает новый экземпляр клиента S3 и проверяет доступ к бакетам
func NewClient(conf *Config) (*Client, error) {
	c, err := newClient(conf)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	for _, bucket := range []string{conf.PicBucket, conf.MarksBucket, conf.LogBucket} {
		_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
			Bucket: aws.String(bucket),
		})
		if err != nil {
			return nil, fmt.Errorf("unable to access bucket %s: %w", bucket, err)
		}
	}

	return c, nil
}

func newClient(conf *Config) (*Client, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("missing required configuration: %w", err)
	}

	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		conf.AccessKeyID,
		conf.SecretAccessKey,
		"",
	))

	opts := s3.Options{
		Region:           conf.Region,
		Credentials:      creds,
		RetryMode:        aws.RetryModeAdaptive,
		RetryMaxAttempts: 3,
		UsePathStyle:     conf.UsePathStyle,
	}
	if conf.Endpoint != "" {
		opts.BaseEndpoint = aws.String(conf.Endpoint)
	}

	client := s3.New(opts)

	return &Client{
		client:  client,
		presign: s3.NewPresignClient(client),
		logger:  slog.Default().With("component", "s3"),
	}, nil
}

// Put записывает объект целиком
func (h *Client) Put(ctx context.Context, loc domain.Location, body []byte, contentType string) error {
	if loc.Key == "" {
		return fmt.Errorf("key is required")
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
		Body:   bytes.NewReader(body),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := h.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object %s: %w", loc, err)
	}
	return nil
}

// Copy копирует объект на стороне хранилища
func (h *Client) Copy(ctx context.Context, src, dst domain.Location) error {
	if src.Key == "" || dst.Key == "" {
		return fmt.Errorf("source and destination keys are required")
	}

	_, err := h.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dst.Bucket),
		Key:        aws.String(dst.Key),
		CopySource: aws.String(copySource(src)),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, src)
		}
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}

	h.logger.Debug("object copied", "src", src.String(), "dst", dst.String())
	return nil
}

// Exists проверяет наличие объекта через HEAD
func (h *Client) Exists(ctx context.Context, loc domain.Location) (bool, error) {
	_, err := h.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}

// Stat возвращает метаданные объекта или ErrObjectNotFound
func (h *Client) Stat(ctx context.Context, loc domain.Location) (*ObjectInfo, error) {
	out, err := h.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, loc)
		}
		return nil, fmt.Errorf("failed to stat object %s: %w", loc, err)
	}

	return &ObjectInfo{
		Size:         aws.ToInt64(out.ContentLength),
		ETag:         aws.ToString(out.ETag),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// Delete удаляет объект; отсутствие объекта ошибкой не считается
func (h *Client) Delete(ctx context.Context, loc domain.Location) error {
	if loc.Key == "" {
		return fmt.Errorf("key is required")
	}

	_, err := h.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	return nil
}

// DeleteMany удаляет ключи пачками
func (h *Client) DeleteMany(ctx context.Context, bucket string, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := h.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects from %s: %w", bucket, err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("failed to delete %d objects from %s, first %s: %s",
				len(out.Errors), bucket, aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}
	return nil
}

// PresignPut подписывает PUT с заявленным типом содержимого
func (h *Client) PresignPut(ctx context.Context, loc domain.Location, contentType string, ttl time.Duration) (*PresignedRequest, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	req, err := h.presign.PresignPutObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to presign put for %s: %w", loc, err)
	}
	return &PresignedRequest{URL: req.URL, Method: req.Method, SignedHeader: req.SignedHeader}, nil
}

// PresignGet подписывает GET
func (h *Client) PresignGet(ctx context.Context, loc domain.Location, ttl time.Duration) (*PresignedRequest, error) {
	req, err := h.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to presign get for %s: %w", loc, err)
	}
	return &PresignedRequest{URL: req.URL, Method: req.Method, SignedHeader: req.SignedHeader}, nil
}

func copySource(src domain.Location) string {
	segments := strings.Split(src.Key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return src.Bucket + "/" + strings.Join(segments, "/")
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
