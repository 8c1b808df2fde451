// Package locks сериализует мутации одного слота между запросами и экземплярами сервиса.
package locks

import (
	"context"
	"errors"
	"strings"
	"time"
)

const defaultTTL = 30 * time.Second

var errInvalidArgs = errors.New("resource and token required")

// Store выдает исключительные блокировки с ограниченным временем жизни.
// Acquire возвращает false, если ресурс занят другим токеном.
// Release снимает блокировку только для того же токена.
type Store interface {
	Acquire(ctx context.Context, resource, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, resource, token string) (bool, error)
}

func normalize(resource, token string) (string, string, error) {
	resource = strings.TrimSpace(resource)
	token = strings.TrimSpace(token)
	if resource == "" || token == "" {
		return "", "", errInvalidArgs
	}
	return resource, token, nil
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultTTL
	}
	return ttl
}

func lockKey(resource string) string {
	return "lock:" + resource
}
